package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"MEALFLOW_ADDR", "MEALFLOW_DATABASE_URL",
		"MEALFLOW_JWT_SIGNING_KEY", "MEALFLOW_OUTBOX_INTERVAL",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 5*time.Second, cfg.OutboxInterval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.NotEmpty(t, cfg.JWTSigningKey)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("MEALFLOW_ADDR", ":9090")
	t.Setenv("MEALFLOW_DATABASE_URL", "postgres://localhost/mealflow")
	t.Setenv("MEALFLOW_JWT_SIGNING_KEY", "prod-key")
	t.Setenv("MEALFLOW_OUTBOX_INTERVAL", "250ms")

	cfg := FromEnv()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "postgres://localhost/mealflow", cfg.DatabaseURL)
	assert.Equal(t, "prod-key", cfg.JWTSigningKey)
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxInterval)
}

func TestFromEnv_BadIntervalFallsBack(t *testing.T) {
	t.Setenv("MEALFLOW_OUTBOX_INTERVAL", "soon")
	assert.Equal(t, 5*time.Second, FromEnv().OutboxInterval)
}
