package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the mailer.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	SES      SESConfig      `yaml:"ses"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Feeds    FeedsConfig    `yaml:"feeds"`
	Site     SiteConfig     `yaml:"site"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the listen host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// RedisConfig holds the optional Redis settings (run locks).
type RedisConfig struct {
	URL string `yaml:"url"`
}

// SESConfig holds AWS SES credentials and sender identity.
type SESConfig struct {
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	Region         string `yaml:"region"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured SES timeout as a duration.
func (c SESConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Configured reports whether sending credentials are present. Without them
// the transport reports every send as skipped rather than failing the run.
func (c SESConfig) Configured() bool {
	return c.AccessKey != "" && c.SecretKey != "" && c.FromEmail != ""
}

// CampaignSchedule is the local-time slot for one recurring campaign.
// TargetDay is a day of month; 0 means "any day" (the campaign then runs
// whenever the hour/minute window matches, typically gated by the
// subscriber markers instead).
type CampaignSchedule struct {
	TargetDay  int `yaml:"target_day"`
	TargetHour int `yaml:"target_hour"`
}

// ScheduleConfig holds the timezone-aware run gate settings shared by the
// cron entry point.
type ScheduleConfig struct {
	Timezone      string           `yaml:"timezone"`
	WindowMinutes int              `yaml:"window_minutes"`
	StudyUpdate   CampaignSchedule `yaml:"study_update"`
	Newsletter    CampaignSchedule `yaml:"newsletter"`
}

// DispatchConfig holds engine limits and the entry-point shared secrets.
type DispatchConfig struct {
	CronSecret        string `yaml:"cron_secret"`
	AdminToken        string `yaml:"admin_token"`
	DefaultWindowDays int    `yaml:"default_window_days"`
	DefaultMaxItems   int    `yaml:"default_max_items"`
	LockTTLMinutes    int    `yaml:"lock_ttl_minutes"`
}

// LockTTL bounds how long a crashed run can hold the dispatch lock.
func (c DispatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// FeedsConfig holds the publication feed refresher settings.
type FeedsConfig struct {
	PublicationsURL        string `yaml:"publications_url"`
	RefreshIntervalMinutes int    `yaml:"refresh_interval_minutes"`
}

// RefreshInterval returns the poll interval as a duration.
func (c FeedsConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMinutes) * time.Minute
}

// SiteConfig holds public-facing URLs used inside composed emails.
type SiteConfig struct {
	BaseURL          string `yaml:"base_url"`
	OrganizationName string `yaml:"organization_name"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Defaults returns a configuration with every default applied, as if an
// empty file had been loaded. Used by tests and tooling.
func Defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.SES.TimeoutSeconds == 0 {
		cfg.SES.TimeoutSeconds = 30
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "ca-central-1"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "America/Toronto"
	}
	if cfg.Schedule.WindowMinutes == 0 {
		cfg.Schedule.WindowMinutes = 10
	}
	if cfg.Schedule.StudyUpdate.TargetHour == 0 {
		cfg.Schedule.StudyUpdate.TargetHour = 7
	}
	if cfg.Schedule.Newsletter.TargetHour == 0 {
		cfg.Schedule.Newsletter.TargetHour = 7
	}
	if cfg.Dispatch.DefaultWindowDays == 0 {
		cfg.Dispatch.DefaultWindowDays = 30
	}
	if cfg.Dispatch.DefaultMaxItems == 0 {
		cfg.Dispatch.DefaultMaxItems = 8
	}
	if cfg.Dispatch.LockTTLMinutes == 0 {
		cfg.Dispatch.LockTTLMinutes = 15
	}
	if cfg.Feeds.RefreshIntervalMinutes == 0 {
		cfg.Feeds.RefreshIntervalMinutes = 360
	}
	if cfg.Site.OrganizationName == "" {
		cfg.Site.OrganizationName = "Kidney Clinical Research Unit"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file (if present) is loaded first, so secrets can live in .env
// locally and in real env vars in the deployed environment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.SES.AccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.SES.SecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("MAIL_FROM_EMAIL"); v != "" {
		cfg.SES.FromEmail = v
	}
	if v := os.Getenv("CRON_SECRET"); v != "" {
		cfg.Dispatch.CronSecret = v
	}
	if v := os.Getenv("ADMIN_API_TOKEN"); v != "" {
		cfg.Dispatch.AdminToken = v
	}
	if v := os.Getenv("PUBLICATIONS_FEED_URL"); v != "" {
		cfg.Feeds.PublicationsURL = v
	}
	if v := os.Getenv("SITE_BASE_URL"); v != "" {
		cfg.Site.BaseURL = v
	}

	return cfg, nil
}

// Validate rejects configuration the server cannot safely start with.
// The shared secrets are required: an empty secret would turn the trigger
// endpoints into open mass-send endpoints.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required (DATABASE_URL)")
	}
	if c.Dispatch.CronSecret == "" {
		return fmt.Errorf("cron secret is required (CRON_SECRET)")
	}
	if c.Dispatch.AdminToken == "" {
		return fmt.Errorf("admin token is required (ADMIN_API_TOKEN)")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid schedule timezone %q: %w", c.Schedule.Timezone, err)
	}
	return nil
}
