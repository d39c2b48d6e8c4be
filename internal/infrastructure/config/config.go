package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
	Rates    RatesConfig
	Queue    QueueConfig
	HTTP     HTTPConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds the embedded register database settings
type DatabaseConfig struct {
	Path        string // SQLite file path, ":memory:" for tests
	BusyTimeout time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// RatesConfig holds exchange rate cache configuration
type RatesConfig struct {
	DefaultTTL      time.Duration // validity window of a fetched rate
	ManualTTL       time.Duration // validity window of a manual override
	FetchTimeout    time.Duration // bound on one source fetch
	Capacity        int           // max cached entries before LRU eviction
	SweepInterval   time.Duration // periodic expired/LRU sweep cadence
	ServeStale      bool          // stale-while-revalidate on/off
	DefaultSource   string        // source consulted when callers do not name one
	DefaultCurrency string
}

// QueueConfig holds offline action queue configuration
type QueueConfig struct {
	MaxSize        int
	MaxConcurrency int
	MaxRetries     int
	BaseBackoff    time.Duration
	SyncInterval   time.Duration // periodic processing tick while online
	ActionTimeout  time.Duration // per-executor deadline
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with POS_ prefix (e.g., POS_DATABASE_PATH)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The only boolean with a true default; viper cannot tell unset from false.
	v.SetDefault("rates.serve_stale", true)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Path:        v.GetString("database.path"),
			BusyTimeout: v.GetDuration("database.busy_timeout"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Rates: RatesConfig{
			DefaultTTL:      v.GetDuration("rates.default_ttl"),
			ManualTTL:       v.GetDuration("rates.manual_ttl"),
			FetchTimeout:    v.GetDuration("rates.fetch_timeout"),
			Capacity:        v.GetInt("rates.capacity"),
			SweepInterval:   v.GetDuration("rates.sweep_interval"),
			ServeStale:      v.GetBool("rates.serve_stale"),
			DefaultSource:   v.GetString("rates.default_source"),
			DefaultCurrency: v.GetString("rates.default_currency"),
		},
		Queue: QueueConfig{
			MaxSize:        v.GetInt("queue.max_size"),
			MaxConcurrency: v.GetInt("queue.max_concurrency"),
			MaxRetries:     v.GetInt("queue.max_retries"),
			BaseBackoff:    v.GetDuration("queue.base_backoff"),
			SyncInterval:   v.GetDuration("queue.sync_interval"),
			ActionTimeout:  v.GetDuration("queue.action_timeout"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:  v.GetDuration("http.read_timeout"),
			WriteTimeout: v.GetDuration("http.write_timeout"),
			IdleTimeout:  v.GetDuration("http.idle_timeout"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "optical-pos"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "pos.db"
	}
	if cfg.Database.BusyTimeout == 0 {
		cfg.Database.BusyTimeout = 5 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Rates.DefaultTTL == 0 {
		cfg.Rates.DefaultTTL = 15 * time.Minute
	}
	if cfg.Rates.ManualTTL == 0 {
		cfg.Rates.ManualTTL = 4 * time.Hour
	}
	if cfg.Rates.FetchTimeout == 0 {
		cfg.Rates.FetchTimeout = 10 * time.Second
	}
	if cfg.Rates.Capacity == 0 {
		cfg.Rates.Capacity = 50
	}
	if cfg.Rates.SweepInterval == 0 {
		cfg.Rates.SweepInterval = time.Minute
	}
	if cfg.Rates.DefaultSource == "" {
		cfg.Rates.DefaultSource = "reserve_bank"
	}
	if cfg.Rates.DefaultCurrency == "" {
		cfg.Rates.DefaultCurrency = "ZWG"
	}
	if cfg.Queue.MaxSize == 0 {
		cfg.Queue.MaxSize = 200
	}
	if cfg.Queue.MaxConcurrency == 0 {
		cfg.Queue.MaxConcurrency = 3
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 3
	}
	if cfg.Queue.BaseBackoff == 0 {
		cfg.Queue.BaseBackoff = 2 * time.Second
	}
	if cfg.Queue.SyncInterval == 0 {
		cfg.Queue.SyncInterval = 30 * time.Second
	}
	if cfg.Queue.ActionTimeout == 0 {
		cfg.Queue.ActionTimeout = 30 * time.Second
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Queue.MaxConcurrency <= 0 {
		return fmt.Errorf("queue.max_concurrency must be positive")
	}
	if c.Queue.MaxSize < c.Queue.MaxConcurrency {
		return fmt.Errorf("queue.max_size (%d) cannot be below queue.max_concurrency (%d)",
			c.Queue.MaxSize, c.Queue.MaxConcurrency)
	}
	if c.Rates.Capacity <= 0 {
		return fmt.Errorf("rates.capacity must be positive")
	}
	switch c.Rates.DefaultCurrency {
	case "USD", "ZWG":
	default:
		return fmt.Errorf("rates.default_currency must be USD or ZWG, got %q", c.Rates.DefaultCurrency)
	}
	return nil
}
