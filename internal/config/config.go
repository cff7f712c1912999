package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	Rules       RulesConfig       `mapstructure:"rules"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Server      ServerConfig      `mapstructure:"server"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Log         LogConfig         `mapstructure:"log"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RulesConfig selects the rule tables. Path, when set, replaces the built-in set.
type RulesConfig struct {
	Set  string `mapstructure:"set"`
	Path string `mapstructure:"path"`
}

// EngineConfig holds the classification and dedup heuristics.
type EngineConfig struct {
	MinAmount           float64       `mapstructure:"min_amount"`
	AcceptanceThreshold float64       `mapstructure:"acceptance_threshold"`
	AmountTolerance     float64       `mapstructure:"amount_tolerance"`
	TimeWindow          time.Duration `mapstructure:"time_window"`
	DebitWinsTies       bool          `mapstructure:"debit_wins_ties"`
	Timezone            string        `mapstructure:"timezone"`
}

// BatchConfig bounds historical scans.
type BatchConfig struct {
	MaxMessages int `mapstructure:"max_messages"`
	Workers     int `mapstructure:"workers"`
	YieldEvery  int `mapstructure:"yield_every"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// MaintenanceConfig schedules the duplicate cleanup pass. An empty schedule disables it.
type MaintenanceConfig struct {
	CleanupSchedule string `mapstructure:"cleanup_schedule"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Location resolves the engine timezone, falling back to UTC.
func (c EngineConfig) Location() *time.Location {
	if strings.TrimSpace(c.Timezone) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Default returns the configuration used when no file or env overrides exist.
func Default() Config {
	return Config{
		Database: DatabaseConfig{Path: filepath.Join(os.Getenv("HOME"), ".local", "share", "smsledger", "smsledger.db")},
		Rules:    RulesConfig{Set: "in"},
		Engine: EngineConfig{
			MinAmount:           1.0,
			AcceptanceThreshold: 0.65,
			AmountTolerance:     1.0,
			TimeWindow:          10 * time.Minute,
			DebitWinsTies:       true,
			Timezone:            "Asia/Kolkata",
		},
		Batch:       BatchConfig{MaxMessages: 5000, Workers: 4, YieldEvery: 50},
		Server:      ServerConfig{Addr: "127.0.0.1:8686"},
		Maintenance: MaintenanceConfig{CleanupSchedule: "@daily"},
		Log:         LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads configuration from file and env. Env var overrides use prefix SMSLEDGER_.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetConfigType("toml")

	cfgPath := os.Getenv("SMSLEDGER_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "smsledger"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("SMSLEDGER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// an explicit path that is missing is an error, the default location is optional
		if cfgPath != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate rejects parameter combinations the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Engine.MinAmount < 0:
		return fmt.Errorf("config: engine.min_amount must not be negative")
	case c.Engine.AcceptanceThreshold < 0 || c.Engine.AcceptanceThreshold > 1:
		return fmt.Errorf("config: engine.acceptance_threshold must be within [0,1]")
	case c.Engine.AmountTolerance < 0:
		return fmt.Errorf("config: engine.amount_tolerance must not be negative")
	case c.Engine.TimeWindow < 0:
		return fmt.Errorf("config: engine.time_window must not be negative")
	case c.Batch.MaxMessages <= 0:
		return fmt.Errorf("config: batch.max_messages must be positive")
	}
	return nil
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := os.Getenv("SMSLEDGER_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "smsledger", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	set(v, cfg)
	v.Set("engine.time_window", cfg.Engine.TimeWindow.String())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	for k, val := range flatten(c) {
		v.SetDefault(k, val)
	}
}

func set(v *viper.Viper, c Config) {
	for k, val := range flatten(c) {
		v.Set(k, val)
	}
}

func flatten(c Config) map[string]any {
	return map[string]any{
		"database.path":                c.Database.Path,
		"rules.set":                    c.Rules.Set,
		"rules.path":                   c.Rules.Path,
		"engine.min_amount":            c.Engine.MinAmount,
		"engine.acceptance_threshold":  c.Engine.AcceptanceThreshold,
		"engine.amount_tolerance":      c.Engine.AmountTolerance,
		"engine.time_window":           c.Engine.TimeWindow,
		"engine.debit_wins_ties":       c.Engine.DebitWinsTies,
		"engine.timezone":              c.Engine.Timezone,
		"batch.max_messages":           c.Batch.MaxMessages,
		"batch.workers":                c.Batch.Workers,
		"batch.yield_every":            c.Batch.YieldEvery,
		"server.addr":                  c.Server.Addr,
		"maintenance.cleanup_schedule": c.Maintenance.CleanupSchedule,
		"log.level":                    c.Log.Level,
		"log.format":                   c.Log.Format,
	}
}
