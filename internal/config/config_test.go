package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBase(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE", StoreMemory)
}

func TestLoadDefaults(t *testing.T) {
	setBase(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":8090", cfg.AppPort)
	assert.Equal(t, 72*time.Hour, cfg.RespondWindow)
	assert.Equal(t, 14*24*time.Hour, cfg.SubmitWindow)
	assert.Equal(t, 25*time.Second, cfg.StreamHeartbeat)
	assert.Equal(t, "@every 1m", cfg.SweepSchedule)
	assert.Equal(t, 100, cfg.SweepBatchSize)
	assert.Equal(t, 64, cfg.StreamBuffer)
	assert.False(t, cfg.RedisEnabled())
	assert.False(t, cfg.ArtifactStoreEnabled())
}

func TestLoadOverrides(t *testing.T) {
	setBase(t)
	t.Setenv("REVIEW_RESPOND_WINDOW", "2h")
	t.Setenv("SWEEP_BATCH_SIZE", "10")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("WS_ALLOWED_ORIGINS", "app.example.com,*.example.org")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, cfg.RespondWindow)
	assert.Equal(t, 10, cfg.SweepBatchSize)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, []string{"app.example.com", "*.example.org"}, cfg.WSAllowedOrigins)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing jwt secret", env: map[string]string{"JWT_SECRET": ""}},
		{name: "bad duration", env: map[string]string{"STREAM_HEARTBEAT": "soon"}},
		{name: "non-positive duration", env: map[string]string{"REVIEW_SUBMIT_WINDOW": "0s"}},
		{name: "bad int", env: map[string]string{"REDIS_DB": "x"}},
		{name: "zero batch", env: map[string]string{"SWEEP_BATCH_SIZE": "0"}},
		{name: "unknown store", env: map[string]string{"STORE": "mongo"}},
		{name: "postgres without db vars", env: map[string]string{"STORE": StorePostgres}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBase(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
