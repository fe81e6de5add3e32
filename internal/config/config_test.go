package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, uint16(8080), cfg.HTTP.Port)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30, cfg.Redis.RateLimitPerMinute)
	assert.Equal(t, "https://api.dexscreener.com/latest/dex", cfg.MarketData.BaseURL)
	assert.Equal(t, "test-secret", cfg.Auth.JWTSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/yaps.db")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://coinyaps.com,https://www.coinyaps.com")
	t.Setenv("DEXSCREENER_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/yaps.db", cfg.Database.SQLitePath)
	assert.Equal(t, []string{"https://coinyaps.com", "https://www.coinyaps.com"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.MarketData.Timeout)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	assert.ErrorContains(t, err, "unsupported DB_DRIVER")
}

func TestDSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "yaps", SSLMode: "require"}
	assert.Equal(t, "host=db user=u password=p dbname=yaps port=5433 sslmode=require", c.DSN())
}
