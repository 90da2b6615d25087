// Package config loads coursefs settings: built-in defaults, then an
// optional YAML file, then COURSEFS_* environment variables.
package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Store backends accepted in Config.Backend.
const (
	BackendBadger = "badger"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config is the full set of settings.
type Config struct {
	AppName  string       `yaml:"app_name"`
	DataDir  string       `yaml:"data_dir"`
	Backend  string       `yaml:"backend"`
	LogLevel string       `yaml:"log_level"`
	Badger   BadgerConfig `yaml:"badger"`
}

// BadgerConfig tunes the badger backend.
type BadgerConfig struct {
	SyncWrites     bool          `yaml:"sync_writes"`
	GCInterval     time.Duration `yaml:"gc_interval"`
	GCDiscardRatio float64       `yaml:"gc_discard_ratio"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	dataDir := ".coursefs"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".coursefs")
	}
	return Config{
		AppName:  "Learning Plan Manager",
		DataDir:  dataDir,
		Backend:  BackendBadger,
		LogLevel: "info",
		Badger: BadgerConfig{
			SyncWrites:     true,
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
		},
	}
}

// Load reads path on top of the defaults and applies environment
// overrides. A missing file is not an error when path is empty. The
// result is not validated; callers apply their own overrides first.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "open config")
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", path)
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("COURSEFS_DATA"); v != "" {
		c.DataDir = v
	}
	if v := getenv("COURSEFS_BACKEND"); v != "" {
		c.Backend = strings.ToLower(v)
	}
	if v := getenv("COURSEFS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("COURSEFS_APP_NAME"); v != "" {
		c.AppName = v
	}
	if getenv("DEBUG") == "1" {
		c.LogLevel = "debug"
	}
}

// Validate rejects settings no store can run with.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendBadger, BackendFile:
		if c.DataDir == "" {
			return errors.Errorf("backend %s needs a data_dir", c.Backend)
		}
	case BackendMemory:
	default:
		return errors.Errorf("unknown backend %q (want badger, file or memory)", c.Backend)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log_level")
	}
	if c.Backend == BackendBadger && c.Badger.GCInterval > 0 &&
		(c.Badger.GCDiscardRatio <= 0 || c.Badger.GCDiscardRatio >= 1) {
		return errors.Errorf("badger.gc_discard_ratio %v out of range (0,1)", c.Badger.GCDiscardRatio)
	}
	return nil
}

// NewLogger builds the process logger.
func NewLogger(c Config, out io.Writer) *log.Logger {
	logger := log.New()
	logger.SetOutput(out)
	logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}
