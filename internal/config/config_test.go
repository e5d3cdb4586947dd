package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "an explicit path must exist")

	cfg, err = loadFromDir(t, "")
	require.NoError(t, err)

	assert.Equal(t, "AlphaDesk", cfg.App.Name)
	assert.Equal(t, 5, cfg.Trading.IntervalMinutes)
	assert.Equal(t, 10000.0, cfg.Trading.InitialCapitalPerAgent)
	assert.Equal(t, "weighted", cfg.Trading.ConsortiumMode)
	assert.True(t, cfg.Trading.PaperTrading)
	assert.False(t, cfg.Trading.SubstituteSymbols)
	assert.Equal(t, 0.05, cfg.Risk.DailyMaxDrawdown)
	assert.Equal(t, 8081, cfg.API.Port)
	assert.Equal(t, 9100, cfg.Monitoring.PrometheusPort)
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := loadFromDir(t, `
trading:
  interval_minutes: 15
  consortium_mode: vote
  agents:
    - name: warren
      model_handle: gpt-4o
      personality: value investor
`)
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Trading.IntervalMinutes)
	assert.Equal(t, "vote", cfg.Trading.ConsortiumMode)
	require.Len(t, cfg.Trading.Agents, 1)
	assert.Equal(t, "warren", cfg.Trading.Agents[0].Name)
	assert.Equal(t, "gpt-4o", cfg.Trading.Agents[0].ModelHandle)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero interval", func(c *Config) { c.Trading.IntervalMinutes = 0 }, "interval_minutes"},
		{"negative capital", func(c *Config) { c.Trading.InitialCapitalPerAgent = -1 }, "initial_capital_per_agent"},
		{"negative fee", func(c *Config) { c.Trading.SimulatedFeePerTrade = -0.5 }, "simulated_fee_per_trade"},
		{"bad consortium mode", func(c *Config) { c.Trading.ConsortiumMode = "dictator" }, "consortium_mode"},
		{"drawdown out of range", func(c *Config) { c.Risk.DailyMaxDrawdown = 1.5 }, "daily_max_drawdown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadFromDir(t, "")
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestIntervalAndTimeoutHelpers(t *testing.T) {
	cfg, err := loadFromDir(t, "")
	require.NoError(t, err)

	assert.Equal(t, "5m0s", cfg.Trading.Interval().String())
	assert.Equal(t, "2m0s", cfg.LLM.GetTimeout().String())
	assert.Equal(t, "30s", cfg.Broker.GetTimeout().String())
	assert.Contains(t, cfg.Database.GetDSN(), "dbname=alphadesk")
	assert.Equal(t, "localhost:6379", cfg.Redis.GetRedisAddr())
}

// loadFromDir writes an optional config.yaml into a temp dir and loads it
func loadFromDir(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	if yaml != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))
		return Load(filepath.Join(dir, "config.yaml"))
	}
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	return Load("")
}
