package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
type Config struct {
	PostgresURL    string `mapstructure:"POSTGRES_URL"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	ServerPort     string `mapstructure:"SERVER_PORT"`
	UserAgent      string `mapstructure:"USER_AGENT"`
	CrawlWorkers   int    `mapstructure:"CRAWL_WORKERS"`
	MaxRetries     int    `mapstructure:"MAX_RETRIES"`
	RequestTimeout int    `mapstructure:"REQUEST_TIMEOUT"`
	FetchDelayMS   int    `mapstructure:"FETCH_DELAY_MS"`
	RenderEnabled  bool   `mapstructure:"RENDER_ENABLED"`
	RenderTimeout  int    `mapstructure:"RENDER_TIMEOUT"`

	// Manager service settings. The crawler polls the manager for tasks
	// when MANAGER_URL is set; otherwise only the local API is served.
	ManagerURL   string `mapstructure:"MANAGER_URL"`
	ClientID     string `mapstructure:"CLIENT_ID"`
	PollInterval int    `mapstructure:"POLL_INTERVAL"`

	DeduplicationDays int `mapstructure:"DEDUPLICATION_DAYS"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present.
	// This allows configuration purely through environment variables in production.
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("USER_AGENT", "cryptocrawl/1.0")
	viper.SetDefault("CRAWL_WORKERS", 10)
	viper.SetDefault("MAX_RETRIES", 3)
	viper.SetDefault("REQUEST_TIMEOUT", 30) // in seconds
	viper.SetDefault("FETCH_DELAY_MS", 50)
	viper.SetDefault("RENDER_ENABLED", false)
	viper.SetDefault("RENDER_TIMEOUT", 20) // in seconds
	viper.SetDefault("POLL_INTERVAL", 10)  // in seconds
	viper.SetDefault("DEDUPLICATION_DAYS", 2)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// RequestTimeoutDuration returns the per-request HTTP timeout.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// RenderTimeoutDuration returns the per-page headless render timeout.
func (c *Config) RenderTimeoutDuration() time.Duration {
	return time.Duration(c.RenderTimeout) * time.Second
}

// PollIntervalDuration returns the manager polling interval.
func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}
