// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath      = "provsync.toml"
	DefaultHTTPAddr        = "127.0.0.1:7788"
	DefaultStoreDriver     = "json"
	DefaultStoreFile       = "registry.json"
	DefaultProbeTrials     = 3
	DefaultProbeTimeout    = 8
	DefaultProbeIntervalMs = 200
	DefaultProbeCacheTTL   = 600
	DefaultWatchDebounceMs = 300
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log    LogConfig    `toml:"log"`
	Server ServerConfig `toml:"server"`
	Store  StoreConfig  `toml:"store"`
	Paths  PathsConfig  `toml:"paths"`
	Probe  ProbeConfig  `toml:"probe"`
	Watch  WatchConfig  `toml:"watch"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP command surface listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// StoreConfig selects where the canonical registry is persisted.
// Driver is "json" or "sqlite".
type StoreConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
}

// PathsConfig overrides the roots the tool adapters resolve files against.
// Home defaults to the user home directory, Project to the working directory.
type PathsConfig struct {
	Home    string `toml:"home"`
	Project string `toml:"project"`
}

// ProbeConfig tunes endpoint probing. Schedule is a cron expression; empty
// disables periodic re-probing.
type ProbeConfig struct {
	Trials          int    `toml:"trials"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	MinIntervalMs   int    `toml:"min_interval_ms"`
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
	Schedule        string `toml:"schedule"`
}

// WatchConfig controls the external-change watcher used by serve.
type WatchConfig struct {
	Enabled    bool `toml:"enabled"`
	DebounceMs int  `toml:"debounce_ms"`
}

// Timeout returns the per-trial timeout.
func (c ProbeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// MinInterval returns the minimum spacing between trials against one URL.
func (c ProbeConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMs) * time.Millisecond
}

// CacheTTL returns how long the last probe result per provider is kept.
func (c ProbeConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Debounce returns the watcher debounce window.
func (c WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Store: StoreConfig{
			Driver: DefaultStoreDriver,
		},
		Probe: ProbeConfig{
			Trials:          DefaultProbeTrials,
			TimeoutSeconds:  DefaultProbeTimeout,
			MinIntervalMs:   DefaultProbeIntervalMs,
			CacheTTLSeconds: DefaultProbeCacheTTL,
		},
		Watch: WatchConfig{
			DebounceMs: DefaultWatchDebounceMs,
		},
	}
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
// A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg.resolve()
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg.resolve()
}

// resolve fills the path defaults that depend on the environment.
func (c Config) resolve() (Config, error) {
	if strings.TrimSpace(c.Paths.Home) == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return c, err
		}
		c.Paths.Home = home
	}
	if strings.TrimSpace(c.Paths.Project) == "" {
		wd, err := os.Getwd()
		if err != nil {
			return c, err
		}
		c.Paths.Project = wd
	}
	if strings.TrimSpace(c.Store.Driver) == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		name := DefaultStoreFile
		if c.Store.Driver == "sqlite" {
			name = "registry.db"
		}
		c.Store.Path = filepath.Join(c.Paths.Home, ".provsync", name)
	}
	if c.Probe.Trials <= 0 {
		c.Probe.Trials = DefaultProbeTrials
	}
	if c.Probe.TimeoutSeconds <= 0 {
		c.Probe.TimeoutSeconds = DefaultProbeTimeout
	}
	if c.Probe.MinIntervalMs < 0 {
		c.Probe.MinIntervalMs = 0
	}
	if c.Watch.DebounceMs <= 0 {
		c.Watch.DebounceMs = DefaultWatchDebounceMs
	}
	return c, nil
}
