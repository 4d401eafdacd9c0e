package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LogConfig controls the process logger.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`
	// JSON switches from the human console writer to JSON lines.
	JSON bool `yaml:"json"`
}

// SchedulerConfig controls the per-guild update loop.
type SchedulerConfig struct {
	// TickInterval is the delay between two board updates of one guild.
	TickInterval time.Duration `yaml:"tick_interval"`
	// RefetchEvery is the number of ticks between two calendar downloads.
	RefetchEvery int `yaml:"refetch_every"`
	// HonorLeadTime makes role pings start LeadTime minutes before an
	// occurrence instead of at its start.
	HonorLeadTime bool `yaml:"honor_lead_time"`
	// BotRescan is a cron spec for picking up newly stored bot identities.
	BotRescan string `yaml:"bot_rescan"`
}

// CalendarConfig controls feed downloads.
type CalendarConfig struct {
	// CacheDir keeps the last good body per feed URL on disk. Empty disables it.
	CacheDir string        `yaml:"cache_dir"`
	Timeout  time.Duration `yaml:"timeout"`
}

// GatewayConfig holds knobs for calls the bot makes on its own initiative.
type GatewayConfig struct {
	// RevokePerSecond paces the role revocations done after a reaction clear.
	RevokePerSecond int `yaml:"revoke_per_second"`
}

// CommandsConfig controls the chat command router.
type CommandsConfig struct {
	Prefix string `yaml:"prefix"`
}

// Config - Process configuration loaded from YAML
type Config struct {
	// Database is the bbolt file holding bot and guild records.
	Database string `yaml:"database"`
	// Timezone is the IANA zone used for week/month boundaries and formatting.
	Timezone string `yaml:"timezone"`

	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Calendar  CalendarConfig  `yaml:"calendar"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Commands  CommandsConfig  `yaml:"commands"`
}

// Default returns an in-memory default configuration.
func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values so partially written files still work.
func (c *Config) Normalize() {
	if c.Database == "" {
		c.Database = "data/data.db"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Scheduler.TickInterval <= 0 {
		c.Scheduler.TickInterval = 10 * time.Second
	}
	if c.Scheduler.RefetchEvery <= 0 {
		c.Scheduler.RefetchEvery = 10
	}
	if c.Scheduler.BotRescan == "" {
		c.Scheduler.BotRescan = "@every 1m"
	}
	if c.Calendar.Timeout <= 0 {
		c.Calendar.Timeout = 15 * time.Second
	}
	if c.Gateway.RevokePerSecond <= 0 {
		c.Gateway.RevokePerSecond = 50
	}
	if c.Commands.Prefix == "" {
		c.Commands.Prefix = "!board"
	}
}

// Location resolves Timezone, falling back to UTC for unknown zones.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Load reads the YAML file at path. A missing file is created with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			// Even if save fails the defaults are usable, let the caller decide.
			return cfg, Save(path, cfg)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".botto-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
