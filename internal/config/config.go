package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Path string `yaml:"path" env:"SLOTKEEPER_DB_PATH"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled" env:"SLOTKEEPER_BACKUP_ENABLED"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address" env:"SLOTKEEPER_REDIS_ADDR"`
		Password string `yaml:"password" env:"SLOTKEEPER_REDIS_PASSWORD"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Cache struct {
		Enabled    bool `yaml:"enabled" env:"SLOTKEEPER_CACHE_ENABLED"`
		TTLSeconds int  `yaml:"ttl_seconds"`
		Size       int  `yaml:"size"`
	} `yaml:"cache"`

	HTTP struct {
		Address          string   `yaml:"address" env:"SLOTKEEPER_HTTP_ADDR"`
		APIKey           string   `yaml:"api_key" env:"SLOTKEEPER_API_KEY"`
		RateLimitPerSec  float64  `yaml:"rate_limit_per_sec"`
		RateLimitBurst   int      `yaml:"rate_limit_burst"`
		TrustedProxies   []string `yaml:"trusted_proxies" env:"SLOTKEEPER_TRUSTED_PROXIES" envSeparator:","`
		RequestTimeoutMS int      `yaml:"request_timeout_ms"`
	} `yaml:"http"`

	GRPC struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port" env:"SLOTKEEPER_GRPC_PORT"`
	} `yaml:"grpc"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Engine struct {
		AutoRollback       bool `yaml:"auto_rollback" env:"SLOTKEEPER_AUTO_ROLLBACK"`
		PersistGenerated   bool `yaml:"persist_generated" env:"SLOTKEEPER_PERSIST_GENERATED"`
		SessionIdleMinutes int  `yaml:"session_idle_minutes"`
	} `yaml:"engine"`

	Logging struct {
		Level  string `yaml:"level" env:"SLOTKEEPER_LOG_LEVEL"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`

	TemplatePath string `yaml:"template_path" env:"SLOTKEEPER_TEMPLATE_PATH"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	cfg.Engine.AutoRollback = true
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// SLOTKEEPER_* variables win over the file.
	if err = env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment overrides: %w", err)
	}

	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/slotkeeper.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "data/backups"
	}
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Cache.Size <= 0 {
		c.Cache.Size = 256
	}
	if c.TemplatePath == "" {
		c.TemplatePath = "configs/template.yaml"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) CacheTTL() time.Duration {
	if c.Cache.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func (c *Config) SessionIdle() time.Duration {
	if c.Engine.SessionIdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Engine.SessionIdleMinutes) * time.Minute
}

func (c *Config) RequestTimeout() time.Duration {
	if c.HTTP.RequestTimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.HTTP.RequestTimeoutMS) * time.Millisecond
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}
