package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 5, cfg.Outbox.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Outbox.BaseDelay)
	assert.Equal(t, time.Hour, cfg.Outbox.MaxDelay)
	assert.Equal(t, "automation.events", cfg.Kafka.Topic)
	assert.False(t, cfg.Matcher.Dedup.Enabled)
	assert.Equal(t, "1", cfg.Matcher.CountryCode)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, []string{"sms", "email"}, cfg.Providers[0].Channels)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("outbox:\n  batch_size: 7\n"), 0o600))

	t.Setenv("AUTOMATION_OUTBOX_MAX_ATTEMPTS", "9")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Outbox.BatchSize)
	assert.Equal(t, 9, cfg.Outbox.MaxAttempts)
	// untouched keys keep their defaults
	assert.Equal(t, 5*time.Minute, cfg.Outbox.ClaimLease)
}
