package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("AURA_HOME", home)

	v, err := newViper("")
	require.NoError(t, err)
	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, filepath.Join(home, "aura.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(home, "workflows"), cfg.WorkflowsDir)
	assert.Equal(t, 15*time.Second, cfg.CycleInterval)
	assert.Equal(t, 5*time.Minute, cfg.OptimizeInterval)
	assert.Equal(t, 10*time.Second, cfg.BroadcastInterval)
	assert.Equal(t, 10, cfg.HistoryTail)
	assert.True(t, cfg.SeedBuiltin)
	assert.True(t, cfg.MCP)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Empty(t, cfg.Provider)
}

func TestLoadConfig_SettingsFileAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("AURA_HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, "settings.yaml"), []byte(`
log_level: debug
log_format: json
cycle_interval: 30s
history_tail: 25
metrics_addr: ":9464"
`), 0o600))
	t.Setenv("AURA_CYCLE_INTERVAL", "1m")
	t.Setenv("AURA_SEED_BUILTIN", "false")

	v, err := newViper("")
	require.NoError(t, err)
	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, time.Minute, cfg.CycleInterval, "env beats settings file")
	assert.Equal(t, 25, cfg.HistoryTail)
	assert.Equal(t, ":9464", cfg.MetricsAddr)
	assert.False(t, cfg.SeedBuiltin)
}

func TestNewViper_ExplicitFile(t *testing.T) {
	t.Setenv("AURA_HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: \"\"\nmcp: false\n"), 0o600))

	v, err := newViper(path)
	require.NoError(t, err)
	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Empty(t, cfg.DBPath)
	assert.False(t, cfg.MCP)

	_, err = newViper(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"log format", map[string]string{"AURA_LOG_FORMAT": "xml"}},
		{"zero interval", map[string]string{"AURA_BROADCAST_INTERVAL": "0s"}},
		{"history tail", map[string]string{"AURA_HISTORY_TAIL": "0"}},
		{"unknown provider", map[string]string{"AURA_PROVIDER": "openai"}},
		{"empty static provider", map[string]string{"AURA_PROVIDER": "static:"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AURA_HOME", t.TempDir())
			for k, val := range tt.env {
				t.Setenv(k, val)
			}
			v, err := newViper("")
			require.NoError(t, err)
			_, err = loadConfig(v)
			assert.Error(t, err)
		})
	}
}

func TestDiffConfigs(t *testing.T) {
	old := Config{LogLevel: "info", LogFormat: "text", CycleInterval: time.Second, MCP: true}

	d := diffConfigs(old, old)
	assert.False(t, d.LogLevelChanged)
	assert.Empty(t, d.RestartNeeded)

	next := old
	next.LogLevel = "debug"
	next.CycleInterval = 2 * time.Second
	next.MetricsAddr = ":9464"
	next.Provider = "static:ok"
	d = diffConfigs(old, next)
	assert.True(t, d.LogLevelChanged)
	assert.Equal(t, []string{"cycle_interval", "metrics_addr", "provider"}, d.RestartNeeded)
}
