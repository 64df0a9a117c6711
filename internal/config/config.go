// Package config handles configuration loading and validation for the pool
// coordinator.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the coordinator.
type Config struct {
	Pool       PoolConfig       `mapstructure:"pool"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Stratum    StratumConfig    `mapstructure:"stratum"`
	Validation ValidationConfig `mapstructure:"validation"`
	Payouts    PayoutsConfig    `mapstructure:"payouts"`
	API        APIConfig        `mapstructure:"api"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Profiling  ProfilingConfig  `mapstructure:"profiling"`
	Security   SecurityConfig   `mapstructure:"security"`
	Log        LogConfig        `mapstructure:"log"`
}

// PoolConfig defines pool identity and fee settings.
type PoolConfig struct {
	Name      string  `mapstructure:"name"`
	FeePercent float64 `mapstructure:"fee_percent"`
}

// RedisConfig defines the Store's Redis connection settings.
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StratumConfig defines the WebSocket Stratum server settings.
type StratumConfig struct {
	Bind string `mapstructure:"bind"`
}

// ValidationConfig defines share validation tuning.
type ValidationConfig struct {
	SpotCheckCount int `mapstructure:"spot_check_count"`
	SampleRate     int `mapstructure:"sample_rate"`
}

// PayoutsConfig defines payout calculation settings.
type PayoutsConfig struct {
	MinPayout     uint64        `mapstructure:"min_payout"`
	WindowHours   float64       `mapstructure:"window_hours"`
	Interval      time.Duration `mapstructure:"interval"`
	MaintenanceInterval time.Duration `mapstructure:"maintenance_interval"`
	RetentionHours float64      `mapstructure:"retention_hours"`
}

// APIConfig defines the HTTP API server settings (also serves the
// Stratum WebSocket upgrade at GET /).
type APIConfig struct {
	Bind        string   `mapstructure:"bind"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// MetricsConfig defines the Prometheus scrape endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
}

// WebhookConfig mirrors notify.WebhookConfig for mapstructure decoding;
// cmd/starkpool copies it into a notify.WebhookConfig at wiring time.
type WebhookConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DiscordURL   string `mapstructure:"discord_url"`
	TelegramBot  string `mapstructure:"telegram_bot"`
	TelegramChat string `mapstructure:"telegram_chat"`
	PoolURL      string `mapstructure:"pool_url"`
}

// TelemetryConfig configures the New Relic APM agent.
type TelemetryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	AppName    string `mapstructure:"app_name"`
	LicenseKey string `mapstructure:"license_key"`
}

// ProfilingConfig configures the pprof debug server.
type ProfilingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Bind    string `mapstructure:"bind"`
}

// SecurityConfig defines connection- and rate-limiting settings.
type SecurityConfig struct {
	MaxConnectionsPerIP int `mapstructure:"max_connections_per_ip"`
	RateLimitShares     int `mapstructure:"rate_limit_shares"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads configuration from file, environment, and defaults, in that
// precedence order (lowest to highest: defaults, file, env).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/starkpool")
	}

	v.SetEnvPrefix("POOL")
	v.AutomaticEnv()

	// Flattened env overrides named explicitly in the external interface
	// surface, since viper's automatic nested-key env binding requires an
	// exact name match (POOL_REDIS_URL rather than POOL_REDIS_URL_URL).
	v.BindEnv("redis.url", "POOL_REDIS_URL")
	v.BindEnv("pool.name", "POOL_NAME")
	v.BindEnv("pool.fee_percent", "POOL_FEE_PERCENT")
	v.BindEnv("payouts.min_payout", "POOL_MIN_PAYOUT")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pool.name", "STARK Pool")
	v.SetDefault("pool.fee_percent", 2.0)

	v.SetDefault("redis.url", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("stratum.bind", "0.0.0.0:3333")

	v.SetDefault("validation.spot_check_count", 5)
	v.SetDefault("validation.sample_rate", 10)

	v.SetDefault("payouts.min_payout", uint64(1000))
	v.SetDefault("payouts.window_hours", 24.0)
	v.SetDefault("payouts.interval", "1h")
	v.SetDefault("payouts.maintenance_interval", "5m")
	v.SetDefault("payouts.retention_hours", 48.0)

	v.SetDefault("api.bind", "0.0.0.0:8080")
	v.SetDefault("api.cors_origins", []string{"*"})

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	v.SetDefault("webhook.enabled", false)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.app_name", "STARK Pool Coordinator")

	v.SetDefault("profiling.enabled", false)
	v.SetDefault("profiling.bind", "127.0.0.1:6060")

	v.SetDefault("security.max_connections_per_ip", 100)
	v.SetDefault("security.rate_limit_shares", 100)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Pool.Name == "" {
		return fmt.Errorf("pool.name is required")
	}
	if c.Pool.FeePercent < 0 || c.Pool.FeePercent > 100 {
		return fmt.Errorf("pool.fee_percent must be between 0 and 100")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required")
	}
	if c.Stratum.Bind == "" {
		return fmt.Errorf("stratum.bind is required")
	}
	if c.Payouts.MinPayout == 0 {
		return fmt.Errorf("payouts.min_payout must be > 0")
	}
	if c.Validation.SpotCheckCount <= 0 {
		return fmt.Errorf("validation.spot_check_count must be positive")
	}
	return nil
}
