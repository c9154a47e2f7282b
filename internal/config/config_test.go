package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("LOG_FORMAT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Contains(t, cfg.Database.URL, "croptap")
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Market.TxMaxRetries)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/market?sslmode=disable")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_WRITE_TIMEOUT", "30s")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("TX_MAX_RETRIES", "7")
	t.Setenv("BCRYPT_COST", "4")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/market?sslmode=disable", cfg.Database.URL)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 7, cfg.Market.TxMaxRetries)
	assert.Equal(t, 4, cfg.Market.BcryptCost)
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "many")
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{URL: "postgres://x", MaxOpenConns: 10, MaxIdleConns: 2},
			Log:      LogConfig{Level: "info", Format: "json"},
			Market:   MarketConfig{TxMaxRetries: 3, BcryptCost: 10},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing url", mutate: func(c *Config) { c.Database.URL = "" }, errMsg: "DATABASE_URL"},
		{name: "idle above open", mutate: func(c *Config) { c.Database.MaxIdleConns = 20 }, errMsg: "DATABASE_MAX_IDLE_CONNS"},
		{name: "negative retries", mutate: func(c *Config) { c.Market.TxMaxRetries = -1 }, errMsg: "TX_MAX_RETRIES"},
		{name: "bcrypt cost too low", mutate: func(c *Config) { c.Market.BcryptCost = 1 }, errMsg: "BCRYPT_COST"},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }, errMsg: "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
