package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadConfigDefaultsAndFile(t *testing.T) {
	uploads := filepath.Join(t.TempDir(), "uploads")
	dir := writeConfig(t, `
server:
  port: "9090"
jwt:
  secret: short
  expire_hours: 2
storage:
  type: local
  local_path: `+uploads+`
payment:
  pending_ttl: 24h
cors:
  allowed_origins: ["https://app.example.com"]
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.Mode)
	assert.Equal(t, 2*time.Hour, cfg.JWT.ExpireTime)
	assert.Equal(t, 24*time.Hour, cfg.Payment.PendingTTL)
	assert.Equal(t, "thb", cfg.Payment.Currency)
	assert.EqualValues(t, 5*1024*1024, cfg.Payment.ProofMaxBytes)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORS.AllowedOrigins)
	assert.DirExists(t, uploads)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	dir := writeConfig(t, "storage:\n  type: minio\n")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_env")
	t.Setenv("DATABASE_DRIVER", "sqlite")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "whsec_env", cfg.Stripe.WebhookSecret)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoadConfigRejectsShortSecretInRelease(t *testing.T) {
	dir := writeConfig(t, "server:\n  mode: release\njwt:\n  secret: too-short\nstorage:\n  type: minio\n")
	_, err := LoadConfig(dir)
	assert.Error(t, err)
}
