package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "Learning Plan Manager", cfg.AppName)
	assert.Equal(t, BackendBadger, cfg.Backend)
	assert.Equal(t, ".coursefs", filepath.Base(cfg.DataDir))
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coursefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app_name: Study Planner
data_dir: /srv/courses
backend: file
badger:
  gc_interval: 1m
  gc_discard_ratio: 0.7
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Study Planner", cfg.AppName)
	assert.Equal(t, BackendFile, cfg.Backend)
	assert.Equal(t, time.Minute, cfg.Badger.GCInterval)
	assert.Equal(t, 0.7, cfg.Badger.GCDiscardRatio)
	assert.True(t, cfg.Badger.SyncWrites, "unset keys keep defaults")
}

func TestLoad_UnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coursefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bakend: file\n"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coursefs.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().AppName, cfg.AppName)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.applyEnv(env(map[string]string{
		"COURSEFS_DATA":     "/tmp/x",
		"COURSEFS_BACKEND":  "MEMORY",
		"COURSEFS_APP_NAME": "Other",
		"DEBUG":             "1",
	}))
	assert.Equal(t, "/tmp/x", cfg.DataDir)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, "Other", cfg.AppName)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend": func(c *Config) { c.Backend = "sqlite" },
		"no data dir":     func(c *Config) { c.DataDir = "" },
		"bad level":       func(c *Config) { c.LogLevel = "loud" },
		"bad gc ratio":    func(c *Config) { c.Badger.GCDiscardRatio = 1.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Backend = BackendMemory
	cfg.DataDir = ""
	assert.NoError(t, cfg.Validate())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.LogLevel = "warn"
	logger := NewLogger(cfg, &buf)
	assert.Equal(t, log.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.WithField("course", "c1").Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "course=c1")
}

func TestLoad_LeavesValidationToCaller(t *testing.T) {
	t.Setenv("COURSEFS_BACKEND", "bogus")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "bogus", cfg.Backend)
	assert.Error(t, cfg.Validate())

	cfg.Backend = BackendFile
	assert.NoError(t, cfg.Validate())
}
