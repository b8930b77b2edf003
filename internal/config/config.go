// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/epg-crawler/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Process  ProcessConfig  `mapstructure:"process"`
	Source   SourceConfig   `mapstructure:"source"`
	DB       DBConfig       `mapstructure:"db"`
	Mail     MailConfig     `mapstructure:"mail"`
	Timezone string         `mapstructure:"timezone"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Mirror   MirrorConfig   `mapstructure:"mirror"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// ProcessConfig names the process in run records and bounds reporting.
type ProcessConfig struct {
	Name                 string `mapstructure:"name"`
	ReportTimeoutSeconds int    `mapstructure:"report_timeout_seconds"`
}

// SourceConfig points at the guide endpoints.
type SourceConfig struct {
	GridBaseURL    string `mapstructure:"grid_base_url"`
	BackendBaseURL string `mapstructure:"backend_base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
}

// MailConfig describes the SMTP relay. Credentials live in persistence.
type MailConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	TLSPolicy      string `mapstructure:"tls_policy"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LoggingConfig toggles zap development features and file rotation.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	// File enables a rotated JSON log file next to console output.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ScheduleConfig sets when the crawl runs in schedule mode.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// MirrorConfig selects where raw guide snapshots are copied.
type MirrorConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// CacheConfig selects the event description cache.
type CacheConfig struct {
	Backend     string        `mapstructure:"backend"`
	TTL         time.Duration `mapstructure:"ttl"`
	RedisURL    string        `mapstructure:"redis_url"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
}

// Backend names accepted by the mirror and cache sections.
const (
	BackendNone   = "none"
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Load builds a Config from .env, disk and environment, in increasing priority.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("EPG")
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
	v.SetDefault("process.name", "SkyEpg")
	v.SetDefault("process.report_timeout_seconds", 60)
	v.SetDefault("source.grid_base_url", crawler.DefaultGridBase)
	v.SetDefault("source.backend_base_url", crawler.DefaultBackendBase)
	v.SetDefault("source.user_agent", "epg-crawler/0.1")
	v.SetDefault("source.timeout_seconds", 15)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_minutes", 30)
	v.SetDefault("mail.host", "smtp.gmail.com")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.tls_policy", "mandatory")
	v.SetDefault("mail.timeout_seconds", 30)
	v.SetDefault("timezone", "Europe/Rome")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 7)
	v.SetDefault("schedule.cron", "30 4 * * *")
	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("mirror.backend", BackendNone)
	v.SetDefault("mirror.dir", "snapshots")
	v.SetDefault("mirror.bucket", "")
	v.SetDefault("mirror.prefix", "")
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.redis_prefix", "epg:descr:")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Process.Name) == "" {
		return fmt.Errorf("process.name is required")
	}
	if c.Source.GridBaseURL == "" || c.Source.BackendBaseURL == "" {
		return fmt.Errorf("source.grid_base_url and source.backend_base_url are required")
	}
	if c.Source.TimeoutSeconds <= 0 {
		return fmt.Errorf("source.timeout_seconds must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Mail.Port <= 0 {
		return fmt.Errorf("mail.port must be > 0")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Mirror.Backend {
	case BackendNone:
	case BackendLocal:
		if c.Mirror.Dir == "" {
			return fmt.Errorf("mirror.dir is required for the local backend")
		}
	case BackendGCS:
		if c.Mirror.Bucket == "" {
			return fmt.Errorf("mirror.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unknown mirror.backend %q", c.Mirror.Backend)
	}
	switch c.Cache.Backend {
	case BackendNone, BackendMemory:
	case BackendRedis:
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	return nil
}

// Location resolves the configured time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SourceTimeout converts the source timeout into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}

// ReportTimeout bounds how long the run report may take.
func (c Config) ReportTimeout() time.Duration {
	return time.Duration(c.Process.ReportTimeoutSeconds) * time.Second
}
