// Package config loads and validates the application configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Stats    StatsConfig    `mapstructure:"stats"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the HTTP API configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	IngestToken     string        `mapstructure:"ingest_token"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StatsConfig sizes the per-stream statistics components.
type StatsConfig struct {
	RingCapacity       int     `mapstructure:"ring_capacity"`
	HistogramMin       float64 `mapstructure:"histogram_min"`
	HistogramMax       float64 `mapstructure:"histogram_max"`
	EMAHalfLife        int     `mapstructure:"ema_half_life"`
	DensityBucketSize  int64   `mapstructure:"density_bucket_size"`
	RollingWindowMode  string  `mapstructure:"rolling_window_mode"`
	RollingWindowSize  int64   `mapstructure:"rolling_window_size"`
	DeviationThreshold float64 `mapstructure:"deviation_threshold"`
}

// AlertsConfig holds alert evaluation defaults.
type AlertsConfig struct {
	Cooldown          time.Duration `mapstructure:"cooldown"`
	GapZScore         float64       `mapstructure:"gap_z_score"`
	ClusterMinCount   int           `mapstructure:"cluster_min_count"`
	ClusterWindowSpan int64         `mapstructure:"cluster_window_span"`
	ClusterWindowSecs float64       `mapstructure:"cluster_window_seconds"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath             string        `mapstructure:"db_path"`
	MaxStreams         int           `mapstructure:"max_streams"`
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	v.SetEnvPrefix("PUMPSENTRY")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("stats.ring_capacity", 50)
	v.SetDefault("stats.histogram_min", 0.0)
	v.SetDefault("stats.histogram_max", 10000.0)
	v.SetDefault("stats.ema_half_life", 20)
	v.SetDefault("stats.density_bucket_size", 1000)
	v.SetDefault("stats.rolling_window_mode", "time")
	v.SetDefault("stats.rolling_window_size", 300)
	v.SetDefault("stats.deviation_threshold", 2.0)

	v.SetDefault("alerts.cooldown", "10s")
	v.SetDefault("alerts.gap_z_score", 2.0)
	v.SetDefault("alerts.cluster_min_count", 2)
	v.SetDefault("alerts.cluster_window_span", 2000)
	v.SetDefault("alerts.cluster_window_seconds", 60.0)

	v.SetDefault("storage.db_path", "./data/pumpsentry.db")
	v.SetDefault("storage.max_streams", 100)
	v.SetDefault("storage.checkpoint_interval", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Stats.RingCapacity < 1 {
		return fmt.Errorf("stats.ring_capacity must be at least 1")
	}
	if c.Stats.HistogramMax <= c.Stats.HistogramMin {
		return fmt.Errorf("stats.histogram_max must exceed stats.histogram_min")
	}
	if c.Stats.EMAHalfLife < 1 {
		return fmt.Errorf("stats.ema_half_life must be at least 1")
	}
	if c.Stats.DensityBucketSize < 1 {
		return fmt.Errorf("stats.density_bucket_size must be at least 1")
	}
	if c.Stats.RollingWindowMode != "time" && c.Stats.RollingWindowMode != "count" {
		return fmt.Errorf("stats.rolling_window_mode must be one of: time, count")
	}
	if c.Stats.RollingWindowSize < 1 {
		return fmt.Errorf("stats.rolling_window_size must be at least 1")
	}
	if c.Stats.DeviationThreshold <= 0 {
		return fmt.Errorf("stats.deviation_threshold must be positive")
	}

	if c.Alerts.Cooldown <= 0 {
		return fmt.Errorf("alerts.cooldown must be positive")
	}
	if c.Alerts.GapZScore <= 0 {
		return fmt.Errorf("alerts.gap_z_score must be positive")
	}
	if c.Alerts.ClusterMinCount < 1 {
		return fmt.Errorf("alerts.cluster_min_count must be at least 1")
	}
	if c.Alerts.ClusterWindowSpan < 1 {
		return fmt.Errorf("alerts.cluster_window_span must be at least 1")
	}
	if c.Alerts.ClusterWindowSecs <= 0 {
		return fmt.Errorf("alerts.cluster_window_seconds must be positive")
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxStreams < 1 {
		return fmt.Errorf("storage.max_streams must be at least 1")
	}
	if c.Storage.CheckpointInterval < time.Minute {
		return fmt.Errorf("storage.checkpoint_interval must be at least 1 minute")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
