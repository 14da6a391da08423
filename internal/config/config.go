package config

import (
	"bytes"
	_ "embed"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

// ---- Root ----

type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	MySQL      DatabaseConfig   `mapstructure:"mysql"`
	ClickHouse DatabaseConfig   `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Matcher    MatcherConfig    `mapstructure:"matcher"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Providers  []ProviderConfig `mapstructure:"providers"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// ---- Leaf structs ----

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Addr       string `mapstructure:"addr"`
	AdminToken string `mapstructure:"admin_token"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type KafkaConfig struct {
	Brokers        []string      `mapstructure:"brokers"`
	Topic          string        `mapstructure:"topic"`
	GroupID        string        `mapstructure:"group_id"`
	MinBytes       int           `mapstructure:"min_bytes"`
	MaxBytes       int           `mapstructure:"max_bytes"`
	CommitInterval int           `mapstructure:"commit_interval_ms"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// OutboxConfig tunes the polling publisher. BaseDelay/MaxDelay drive the
// exponential backoff between delivery attempts.
type OutboxConfig struct {
	BatchSize    int           `mapstructure:"batch_size"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	BaseDelay    time.Duration `mapstructure:"base_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	ClaimLease   time.Duration `mapstructure:"claim_lease"`
}

type MatcherConfig struct {
	Workers         int           `mapstructure:"workers"`
	RuleConcurrency int           `mapstructure:"rule_concurrency"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout"`
	CountryCode     string        `mapstructure:"country_code"`
	Dedup           DedupConfig   `mapstructure:"dedup"`
}

type DedupConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// MetricsConfig is the standalone /metrics listener used by the workers.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

// ProviderConfig describes one channel adapter endpoint (SMS/email relay).
type ProviderConfig struct {
	Name       string        `mapstructure:"name"`
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	Channels   []string      `mapstructure:"channels"`
	Path       string        `mapstructure:"path"`
	TimeoutMs  int           `mapstructure:"timeout_ms"`
	MaxRetries int           `mapstructure:"max_retries"`
	Breaker    BreakerConfig `mapstructure:"breaker"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (AUTOMATION_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		_ = v.MergeInConfig()
	}

	// env override (AUTOMATION_OUTBOX_BATCH_SIZE -> outbox.batch_size)
	v.SetEnvPrefix("AUTOMATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
