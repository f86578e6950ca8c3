package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Dispatch.TypingMin)
	assert.Equal(t, 15*time.Second, cfg.Dispatch.TypingMax)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.PacingMin)
	assert.Equal(t, 300*time.Second, cfg.Dispatch.PacingMax)
	assert.Equal(t, time.Minute, cfg.Dispatch.Cooldown)
	assert.Equal(t, 10, cfg.Dispatch.ColdCapacity)
	assert.Equal(t, 50, cfg.Dispatch.WarmCapacity)
	assert.Equal(t, 7*24*time.Hour, cfg.Dispatch.WarmWindow)
	assert.Equal(t, 3, cfg.RateLimit.CampaignRuns)
	assert.Equal(t, "memory", cfg.Queue.Driver)
	assert.False(t, cfg.Telegram.Mock)
	assert.InDelta(t, 0.9, cfg.Telegram.MockSuccessRate, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.SendTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("DISPATCH_PACING_MIN", "1s")
	t.Setenv("DISPATCH_PACING_MAX", "2s")
	t.Setenv("DATABASE_POSTGRES_HOST", "db.internal")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.Dispatch.PacingMin)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.PacingMax)
	assert.Contains(t, cfg.Database.Postgres.DSN(), "host=db.internal")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("queue:\n  driver: rabbitmq\ndispatch:\n  warm_capacity: 25\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "rabbitmq", cfg.Queue.Driver)
	assert.Equal(t, 25, cfg.Dispatch.WarmCapacity)
}

func TestLoadEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("app:\n  environment: staging\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.staging.yaml"), []byte("dispatch:\n  cold_capacity: 5\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Dispatch.ColdCapacity)
}

func TestLoadRejectsBrokenEnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("app:\n  environment: staging\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.staging.yaml"), []byte("dispatch: [unclosed\n"), 0o644))

	_, err := Load(dir)
	assert.ErrorContains(t, err, "config.staging")
}

func TestLoadRejectsInvertedRange(t *testing.T) {
	t.Setenv("DISPATCH_TYPING_MIN", "20s")

	_, err := Load(t.TempDir())
	assert.Error(t, err)
}
