// Package config holds the engine-wide configuration keys,
// loaded from YAML with environment-variable overrides, via a
// Config / DefaultConfig / applyEnvOverrides trio.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is the runtime profile override (PROFILE_DEFAULT).
type Profile string

const (
	ProfileAuto    Profile = "auto"
	ProfileStatic  Profile = "STATIC"
	ProfileDynamic Profile = "DYNAMIC"
)

// Config is the full set of engine-recognized configuration keys.
type Config struct {
	MaxHealRounds        int     `yaml:"max_heal_rounds"`
	EnableMemory         bool    `yaml:"enable_memory"`
	CacheTTLHotSeconds   int     `yaml:"cache_ttl_hot_s"`
	CacheRetentionWarmD  int     `yaml:"cache_retention_warm_d"`
	DriftThreshold       float64 `yaml:"drift_threshold"`
	ProfileDefault       Profile `yaml:"profile_default"`
	Stealth              bool    `yaml:"stealth"`
	PersistentProfiles   bool    `yaml:"persistent_profiles"`
	ProfileDir           string  `yaml:"profile_dir"`
	MaxParallel          int     `yaml:"max_parallel"`

	Browser BrowserConfig `yaml:"browser"`
	Store   StoreConfig   `yaml:"store"`
	Verbose bool          `yaml:"verbose"`
}

// BrowserConfig holds the browser launch knobs (launch target,
// viewport, navigation timeout).
type BrowserConfig struct {
	DebuggerURL         string   `yaml:"debugger_url"`
	Launch              []string `yaml:"launch"`
	Headless            bool     `yaml:"headless"`
	ViewportWidth       int      `yaml:"viewport_width"`
	ViewportHeight      int      `yaml:"viewport_height"`
	NavigationTimeoutMs int      `yaml:"navigation_timeout_ms"`
}

// StoreConfig configures the sqlite-backed warm cache / heal history / run store.
type StoreConfig struct {
	SQLitePath  string `yaml:"sqlite_path"`
	RedisAddr   string `yaml:"redis_addr"` // optional hot-tier backend
	ArtifactDir string `yaml:"artifact_dir"`
}

// NavigationTimeout returns the navigation timeout, defaulting to 30s.
func (b BrowserConfig) NavigationTimeout() time.Duration {
	if b.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(b.NavigationTimeoutMs) * time.Millisecond
}

// DefaultConfig returns the documented defaults for every recognized key.
func DefaultConfig() *Config {
	return &Config{
		MaxHealRounds:       3,
		EnableMemory:        true,
		CacheTTLHotSeconds:  3600,
		CacheRetentionWarmD: 7,
		DriftThreshold:      0.35,
		ProfileDefault:      ProfileAuto,
		Stealth:             false,
		PersistentProfiles:  false,
		ProfileDir:          "",
		MaxParallel:         4,
		Browser: BrowserConfig{
			Headless:            true,
			ViewportWidth:       1920,
			ViewportHeight:      1080,
			NavigationTimeoutMs: 30000,
		},
		Store: StoreConfig{
			SQLitePath:  "data/engine.db",
			ArtifactDir: "data/artifacts",
		},
	}
}

// Load reads a YAML config file over the defaults, then applies env
// overrides. A missing file is not an error; defaults are used as-is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets shells override any config key via environment
// variables without a config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MAX_HEAL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxHealRounds = n
		}
	}
	if v := os.Getenv("ENABLE_MEMORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.EnableMemory = b
		}
	}
	if v := os.Getenv("CACHE_TTL_HOT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CacheTTLHotSeconds = n
		}
	}
	if v := os.Getenv("CACHE_RETENTION_WARM_D"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.CacheRetentionWarmD = n
		}
	}
	if v := os.Getenv("DRIFT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.DriftThreshold = f
		}
	}
	if v := os.Getenv("PROFILE_DEFAULT"); v != "" {
		c.ProfileDefault = Profile(v)
	}
	if v := os.Getenv("STEALTH"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Stealth = b
		}
	}
	if v := os.Getenv("PERSISTENT_PROFILES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.PersistentProfiles = b
		}
	}
	if v := os.Getenv("PROFILE_DIR"); v != "" {
		c.ProfileDir = v
	}
	if v := os.Getenv("MAX_PARALLEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxParallel = n
		}
	}
}
