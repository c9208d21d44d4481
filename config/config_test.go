package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgomes/vibectx/store"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, path, err := Load(context.Background(), LoadOptions{})
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, DefaultConfig().Engine, cfg.Engine)
	assert.Equal(t, store.KindFile, cfg.Store.Backend)
	assert.Equal(t, ".vibectx", cfg.Store.Dir)
	assert.Equal(t, store.DefaultOriginCacheSize, cfg.OriginCacheSize)
	assert.Equal(t, 4, cfg.HarnessConcurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "us-east-1", cfg.Store.S3.Region)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vibectx.yaml"), []byte(`
engine:
  step_quota: 1000
store:
  backend: memory
ignored_origins: ["std/", "vendor/"]
log:
  level: debug
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.env"), []byte("VIBECTX_HARNESS_CONCURRENCY=9\n"), 0o644))
	t.Setenv("VIBECTX_LOG_FORMAT", "json")
	t.Cleanup(func() { os.Unsetenv("VIBECTX_HARNESS_CONCURRENCY") })

	cfg, path, err := Load(context.Background(), LoadOptions{EnvFiles: []string{"test.env"}})
	require.NoError(t, err)
	assert.Equal(t, "vibectx.yaml", filepath.Base(path))
	assert.Equal(t, 1000, cfg.Engine.StepQuota)
	assert.Equal(t, 64, cfg.Engine.RecursionLimit)
	assert.Equal(t, store.KindMemory, cfg.Store.Backend)
	assert.Equal(t, []string{"std/", "vendor/"}, cfg.IgnoredOrigins)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 9, cfg.HarnessConcurrency)

	assert.Equal(t, 1000, cfg.VibesConfig().StepQuota)
	assert.Equal(t, store.KindMemory, cfg.StoreConfig().Kind)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte("[store]\nbackend = \"tape\"\n"), 0o644))

	_, _, err := Load(context.Background(), LoadOptions{ConfigFile: path})
	assert.ErrorContains(t, err, "unknown store backend")

	_, _, err = Load(context.Background(), LoadOptions{ConfigFile: filepath.Join(dir, "missing.yaml")})
	assert.Error(t, err)
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Load(ctx, LoadOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(LogConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "unit", "base")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"unit":"base"`)

	_, err = NewLogger(LogConfig{Level: "loud"}, &buf)
	assert.Error(t, err)
	_, err = NewLogger(LogConfig{Format: "xml"}, &buf)
	assert.Error(t, err)
}
