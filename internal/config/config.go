// Package config provides configuration management for clusterd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Defaults for the clustering pipeline.
const (
	DefaultThreshold       = 0.82
	DefaultMergeThreshold  = 0.90
	DefaultEmbeddingDim    = 768
	DefaultBatchLimit      = 1000
	DefaultStalenessWindow = 72 * time.Hour
	DefaultMaxConns        = 4
)

// Config holds all clusterd settings.
type Config struct {
	// Database
	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`
	MaxConns int    `yaml:"max_conns"`

	// Clustering
	Threshold      float64 `yaml:"threshold"`
	MergeThreshold float64 `yaml:"merge_threshold"`
	EmbeddingDim   int     `yaml:"embedding_dim"`
	BatchLimit     int     `yaml:"batch_limit"`

	// ThresholdDecay lowers the join threshold by this amount per scheduled
	// pass, down to ThresholdFloor, so clusters that missed the strict pass
	// still form on later ones. Zero disables decay.
	ThresholdDecay float64 `yaml:"threshold_decay"`
	ThresholdFloor float64 `yaml:"threshold_floor"`

	// Maintenance
	StalenessWindow Duration `yaml:"staleness_window"`

	// Locking
	LockPath string `yaml:"lock_path"`
}

var (
	global   *Config
	globalMu sync.Mutex
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DBDriver:        "sqlite",
		DBDSN:           filepath.Join(DataDir(), "clusterd.db"),
		MaxConns:        DefaultMaxConns,
		Threshold:       DefaultThreshold,
		MergeThreshold:  DefaultMergeThreshold,
		EmbeddingDim:    DefaultEmbeddingDim,
		BatchLimit:      DefaultBatchLimit,
		ThresholdDecay:  0,
		ThresholdFloor:  0.70,
		StalenessWindow: Duration(DefaultStalenessWindow),
		LockPath:        filepath.Join(DataDir(), "run.lock"),
	}
}

// DataDir returns the clusterd data directory (~/.clusterd).
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".clusterd")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.yaml")
}

// EnsureDataDir creates the data directory if missing.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o750)
}

// EnsureSettings writes a default settings file if none exists.
func EnsureSettings() error {
	path := SettingsPath()
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal default settings: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// EnsureAll initializes the data directory and settings file.
func EnsureAll() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	return EnsureSettings()
}

// Load reads settings from the settings file, falling back to defaults
// when the file is missing or malformed, then applies CLUSTERD_*
// environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(SettingsPath())
	if err == nil {
		if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
			log.Warn().Err(unmarshalErr).Str("path", SettingsPath()).Msg("Malformed settings file, using defaults")
			cfg = Default()
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// Get returns the cached global configuration, loading it on first use.
func Get() *Config {
	globalMu.Lock()
	defer globalMu.Unlock()
	if global == nil {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load settings, using defaults")
			cfg = Default()
		}
		global = cfg
	}
	return global
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLUSTERD_DB_DRIVER"); v != "" {
		cfg.DBDriver = v
	}
	if v := os.Getenv("CLUSTERD_DB_DSN"); v != "" {
		cfg.DBDSN = v
	}
	if v := os.Getenv("CLUSTERD_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f < 1 {
			cfg.Threshold = f
		}
	}
	if v := os.Getenv("CLUSTERD_MERGE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f < 1 {
			cfg.MergeThreshold = f
		}
	}
	if v := os.Getenv("CLUSTERD_EMBEDDING_DIM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.EmbeddingDim = n
		}
	}
	if v := os.Getenv("CLUSTERD_BATCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.BatchLimit = n
		}
	}
	if v := os.Getenv("CLUSTERD_LOCK_PATH"); v != "" {
		cfg.LockPath = v
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return fmt.Errorf("threshold %v out of range (0,1)", c.Threshold)
	}
	if c.MergeThreshold <= 0 || c.MergeThreshold >= 1 {
		return fmt.Errorf("merge_threshold %v out of range (0,1)", c.MergeThreshold)
	}
	if c.MergeThreshold < c.Threshold {
		return fmt.Errorf("merge_threshold %v below threshold %v", c.MergeThreshold, c.Threshold)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("embedding_dim %d must be positive", c.EmbeddingDim)
	}
	if c.DBDriver != "sqlite" && c.DBDriver != "postgres" {
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	return nil
}

// Thresholds returns the join and merge thresholds for the given scheduled
// pass number, applying the configured decay with its floor. Pass 0 is the
// strictest.
func (c *Config) Thresholds(pass int) (threshold, mergeThreshold float64) {
	threshold = c.Threshold
	if c.ThresholdDecay > 0 && pass > 0 {
		threshold -= c.ThresholdDecay * float64(pass)
		if threshold < c.ThresholdFloor {
			threshold = c.ThresholdFloor
		}
	}
	mergeThreshold = c.MergeThreshold
	if mergeThreshold < threshold {
		mergeThreshold = threshold
	}
	return threshold, mergeThreshold
}
