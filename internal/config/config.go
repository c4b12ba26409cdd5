// Package config loads and validates mirror configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Remote  RemoteConfig  `mapstructure:"remote"`
	Domain  DomainConfig  `mapstructure:"domain"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	DB      DBConfig      `mapstructure:"db"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RemoteConfig points at the listing search API.
type RemoteConfig struct {
	URL              string `mapstructure:"url"`
	APIKey           string `mapstructure:"api_key"`
	OriginURL        string `mapstructure:"origin_url"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// DomainConfig bounds the full year/price space the partitioner covers.
type DomainConfig struct {
	YearMin  int   `mapstructure:"year_min"`
	YearMax  int   `mapstructure:"year_max"`
	PriceMin int64 `mapstructure:"price_min"`
	PriceMax int64 `mapstructure:"price_max"`
}

// FetchConfig governs paging and batch concurrency.
type FetchConfig struct {
	PageSize  int `mapstructure:"page_size"`
	Threads   int `mapstructure:"threads"`
	Threshold int `mapstructure:"threshold"`
}

// ProxyConfig controls the optional outbound proxy pool.
type ProxyConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	File           string `mapstructure:"file"`
	CheckURL       string `mapstructure:"check_url"`
	CheckTimeoutMs int    `mapstructure:"check_timeout_ms"`
	MaxAttempts    int    `mapstructure:"max_attempts"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// ServerConfig controls the ops HTTP endpoint served during runs.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.url", "https://graph.cars.com/graphql/api")
	v.SetDefault("remote.origin_url", "https://auto.com/cars")
	v.SetDefault("remote.timeout_seconds", 30)
	v.SetDefault("remote.max_retries", 3)
	v.SetDefault("remote.backoff_initial_ms", 250)
	v.SetDefault("remote.backoff_max_ms", 5000)
	v.SetDefault("domain.year_min", 1900)
	v.SetDefault("domain.year_max", 2024)
	v.SetDefault("domain.price_min", 0)
	v.SetDefault("domain.price_max", 500000000)
	v.SetDefault("fetch.page_size", 250)
	v.SetDefault("fetch.threads", 30)
	v.SetDefault("fetch.threshold", 10000)
	v.SetDefault("proxy.enabled", false)
	v.SetDefault("proxy.file", "proxies.json")
	v.SetDefault("proxy.check_url", "https://www.google.com")
	v.SetDefault("proxy.check_timeout_ms", 1000)
	v.SetDefault("proxy.max_attempts", 10)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Remote.URL == "" {
		return fmt.Errorf("remote.url is required")
	}
	if c.Remote.TimeoutSeconds <= 0 {
		return fmt.Errorf("remote.timeout_seconds must be > 0")
	}
	if c.Domain.YearMin > c.Domain.YearMax {
		return fmt.Errorf("domain.year_min must be <= domain.year_max")
	}
	if c.Domain.PriceMin > c.Domain.PriceMax {
		return fmt.Errorf("domain.price_min must be <= domain.price_max")
	}
	if c.Fetch.PageSize <= 0 {
		return fmt.Errorf("fetch.page_size must be > 0")
	}
	if c.Fetch.Threads <= 0 {
		return fmt.Errorf("fetch.threads must be > 0")
	}
	if c.Fetch.Threshold <= 0 {
		return fmt.Errorf("fetch.threshold must be > 0")
	}
	if c.Proxy.Enabled && c.Proxy.File == "" {
		return fmt.Errorf("proxy.file must be set when proxy is enabled")
	}
	if c.Proxy.Enabled && c.Proxy.MaxAttempts <= 0 {
		return fmt.Errorf("proxy.max_attempts must be > 0 when proxy is enabled")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// RequestTimeout converts the remote timeout config into a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}
