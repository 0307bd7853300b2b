// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const defaultWarmupDays = 60

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Storage struct {
		Driver      string        `yaml:"driver"`
		DatabaseURL string        `yaml:"database_url"`
		RedisURL    string        `yaml:"redis_url"`
		SQLitePath  string        `yaml:"sqlite_path"`
		CacheTTL    time.Duration `yaml:"cache_ttl"`
	} `yaml:"storage"`
	Simulation struct {
		Seed           int64           `yaml:"seed"` // 0 draws a seed per session
		StartDate      string          `yaml:"start_date"`
		WarmupDays     int             `yaml:"warmup_days"`
		HistoryWindow  int             `yaml:"history_window"`
		UseSentiment   bool            `yaml:"use_sentiment"`
		MaxPerPosition decimal.Decimal `yaml:"max_per_position"`
		MaxPerClass    decimal.Decimal `yaml:"max_per_class"`
	} `yaml:"simulation"`
	Schedule struct {
		AdvanceCron string `yaml:"advance_cron"` // empty disables auto-advance
	} `yaml:"schedule"`
	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	// Zero is a valid warmup, so its default is set before decoding rather
	// than inferred from the zero value afterwards.
	cfg.Simulation.WarmupDays = defaultWarmupDays

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	return cfg, nil
}

func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("SIM_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SIM_SEED: %w", err)
		}
		cfg.Simulation.Seed = seed
	}
	if v := os.Getenv("ADVANCE_CRON"); v != "" {
		cfg.Schedule.AdvanceCron = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 5 * time.Second
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
		if cfg.Storage.DatabaseURL != "" {
			cfg.Storage.Driver = DriverPostgres
		}
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "data/echopolis.db"
	}
	if cfg.Storage.CacheTTL == 0 {
		cfg.Storage.CacheTTL = 30 * time.Second
	}
	if cfg.Simulation.StartDate == "" {
		cfg.Simulation.StartDate = "2024-01-01"
	}
	if cfg.Simulation.HistoryWindow == 0 {
		cfg.Simulation.HistoryWindow = 365
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 10
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 3
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 28
	}
}

// Validate checks that all fields hold usable values.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("storage.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if _, err := c.StartDate(); err != nil {
		return fmt.Errorf("simulation.start_date: %w", err)
	}
	if c.Simulation.WarmupDays < 0 {
		return fmt.Errorf("simulation.warmup_days must not be negative")
	}
	if c.Simulation.HistoryWindow < 60 {
		return fmt.Errorf("simulation.history_window must be at least 60")
	}
	if c.Simulation.MaxPerPosition.IsNegative() || c.Simulation.MaxPerClass.IsNegative() {
		return fmt.Errorf("simulation exposure limits must not be negative")
	}
	if c.Schedule.AdvanceCron != "" {
		if _, err := cronParser.Parse(c.Schedule.AdvanceCron); err != nil {
			return fmt.Errorf("schedule.advance_cron: %w", err)
		}
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// cronParser accepts the six-field (with seconds) specs the scheduler runs.
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// StartDate parses simulation.start_date as YYYY-MM-DD in UTC.
func (c *Config) StartDate() (time.Time, error) {
	return time.ParseInLocation("2006-01-02", c.Simulation.StartDate, time.UTC)
}

// LogLevel parses logging.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(c.Logging.Level))); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return lvl, nil
}
