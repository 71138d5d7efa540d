package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("APP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, 7*24*time.Hour, cfg.TokenExpires)
	assert.Equal(t, 300*time.Second, cfg.OTPTTL)
	assert.Equal(t, 3, cfg.OTPMaxRetries)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.True(t, cfg.CookieSecure)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("OTP_MAX_RETRIES", "5")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, 5, cfg.OTPMaxRetries)
	assert.Equal(t, 0, cfg.RedisDB)
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
}
