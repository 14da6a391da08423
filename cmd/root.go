package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qubex-tech/VantageAI-CRM-sub003/cmd/worker"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/config"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
)

var (
	cfgPath string
	rootCmd = &cobra.Command{
		Use:   "automation",
		Short: "Practice automation pipeline CLI",
	}
)

func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (defaults are embedded)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(worker.NewWorkerCmd())
}

// loadConfig reads the config and initialises the global logger from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}
