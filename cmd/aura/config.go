package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/auraos/orchestrator/internal/engine"
	"github.com/auraos/orchestrator/internal/provider"
)

// Config holds all aura server configuration.
// Priority: flags > AURA_* env vars > settings.yaml > defaults.
type Config struct {
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	DBPath            string        `mapstructure:"db_path"`
	CycleInterval     time.Duration `mapstructure:"cycle_interval"`
	OptimizeInterval  time.Duration `mapstructure:"optimize_interval"`
	BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`
	HistoryTail       int           `mapstructure:"history_tail"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	SeedBuiltin       bool          `mapstructure:"seed_builtin"`
	WorkflowsDir      string        `mapstructure:"workflows_dir"`
	MCP               bool          `mapstructure:"mcp"`
	Provider          string        `mapstructure:"provider"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("db_path", filepath.Join(auraDir(), "aura.db"))
	v.SetDefault("cycle_interval", engine.DefaultCycleInterval)
	v.SetDefault("optimize_interval", engine.DefaultOptimizeInterval)
	v.SetDefault("broadcast_interval", engine.DefaultBroadcastInterval)
	v.SetDefault("history_tail", engine.DefaultHistoryTail)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("seed_builtin", true)
	v.SetDefault("workflows_dir", filepath.Join(auraDir(), "workflows"))
	v.SetDefault("mcp", true)
	v.SetDefault("provider", "")
}

// auraDir is $AURA_HOME, falling back to ~/.aura.
func auraDir() string {
	if dir := os.Getenv("AURA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aura"
	}
	return filepath.Join(home, ".aura")
}

func settingsPath() string {
	return filepath.Join(auraDir(), "settings.yaml")
}

// newViper layers defaults, the settings file and AURA_* env vars. An
// explicit configFile must exist; the default settings.yaml may be absent.
func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AURA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
		return v, nil
	}

	v.SetConfigFile(settingsPath())
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", settingsPath(), err)
		}
	}
	return v, nil
}

func loadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("log_format must be text or json, got %q", cfg.LogFormat)
	}
	if cfg.CycleInterval <= 0 || cfg.OptimizeInterval <= 0 || cfg.BroadcastInterval <= 0 {
		return Config{}, errors.New("cycle_interval, optimize_interval and broadcast_interval must be positive")
	}
	if cfg.HistoryTail <= 0 {
		return Config{}, fmt.Errorf("history_tail must be positive, got %d", cfg.HistoryTail)
	}
	if _, err := provider.Parse(cfg.Provider); err != nil {
		return Config{}, fmt.Errorf("provider: %w", err)
	}
	return cfg, nil
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.LogFormat != new.LogFormat {
		d.RestartNeeded = append(d.RestartNeeded, "log_format")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.CycleInterval != new.CycleInterval {
		d.RestartNeeded = append(d.RestartNeeded, "cycle_interval")
	}
	if old.OptimizeInterval != new.OptimizeInterval {
		d.RestartNeeded = append(d.RestartNeeded, "optimize_interval")
	}
	if old.BroadcastInterval != new.BroadcastInterval {
		d.RestartNeeded = append(d.RestartNeeded, "broadcast_interval")
	}
	if old.HistoryTail != new.HistoryTail {
		d.RestartNeeded = append(d.RestartNeeded, "history_tail")
	}
	if old.MetricsAddr != new.MetricsAddr {
		d.RestartNeeded = append(d.RestartNeeded, "metrics_addr")
	}
	if old.MCP != new.MCP {
		d.RestartNeeded = append(d.RestartNeeded, "mcp")
	}
	if old.Provider != new.Provider {
		d.RestartNeeded = append(d.RestartNeeded, "provider")
	}
	return d
}
