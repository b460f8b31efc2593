package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("SESSION_SECRET", "test-session-secret")
}

func TestLoad_AllRequiredVarsSet(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/test", cfg.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "test-session-secret", cfg.SessionSecret)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, 2*time.Minute, cfg.StaleThreshold)
	assert.Equal(t, 10*time.Second, cfg.MetricsInterval)
	assert.Equal(t, 2*time.Second, cfg.LogoutGrace)
	assert.Equal(t, 10000, cfg.MaxConnections)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name    string
		skipEnv string
		wantErr string
	}{
		{"missing DATABASE_URL", "DATABASE_URL", "DATABASE_URL is required"},
		{"missing REDIS_URL", "REDIS_URL", "REDIS_URL is required"},
		{"missing SESSION_SECRET", "SESSION_SECRET", "SESSION_SECRET is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.skipEnv, "")

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_InvalidDurations(t *testing.T) {
	tests := []struct {
		name    string
		envVar  string
		value   string
		wantErr string
	}{
		{"zero heartbeat", "HEARTBEAT_INTERVAL", "0s", "HEARTBEAT_INTERVAL must be positive"},
		{"negative stale threshold", "STALE_THRESHOLD", "-1m", "STALE_THRESHOLD must be positive"},
		{"zero metrics interval", "METRICS_INTERVAL", "0s", "METRICS_INTERVAL must be positive"},
		{"negative logout grace", "LOGOUT_GRACE", "-1s", "LOGOUT_GRACE must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.envVar, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func TestLoad_StaleThresholdMustExceedHeartbeat(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HEARTBEAT_INTERVAL", "1m")
	t.Setenv("STALE_THRESHOLD", "1m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STALE_THRESHOLD must be larger than HEARTBEAT_INTERVAL")
}

func TestLoad_ZeroLogoutGraceAllowed(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOGOUT_GRACE", "0s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.LogoutGrace)
}

func TestLoad_InvalidMaxConnections(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_CONNECTIONS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Equal(t, "MAX_CONNECTIONS must be positive", err.Error())
}
