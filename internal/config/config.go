// Package config handles the global configuration file and credential
// resolution.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigDir is the directory name under XDG_CONFIG_HOME.
	ConfigDir = "akin"
	// ConfigFile is the config file name.
	ConfigFile = "config.yml"
	// DataDirName is the directory name under XDG_DATA_HOME.
	DataDirName = "akin"
	// DBFile is the catalogue database file name.
	DBFile = "akin.db"
)

// KeywordBoost tunes the exact-overlap bonus applied on top of embedding
// similarity.
type KeywordBoost struct {
	Disabled bool    `yaml:"disabled,omitempty"`
	PerToken float64 `yaml:"per_token,omitempty"`
	Max      float64 `yaml:"max,omitempty"`
}

// CacheConfig tunes the in-process match result cache.
type CacheConfig struct {
	MaxEntries       int `yaml:"max_entries,omitempty"`
	TTLMinutes       int `yaml:"ttl_m,omitempty"`
	CleanupIntervalS int `yaml:"cleanup_interval_s,omitempty"`
}

// Config is the global configuration stored in ~/.config/akin/config.yml.
// Zero values mean "use the built-in default"; only the fields a user has
// set are written back by Save.
type Config struct {
	APIKey            string       `yaml:"api_key,omitempty"`
	APIBase           string       `yaml:"api_base,omitempty"`
	Model             string       `yaml:"model,omitempty"`
	Dimension         int          `yaml:"dimension,omitempty"`
	RequestsPerMinute int          `yaml:"requests_per_minute,omitempty"`
	MaxBatchSize      int          `yaml:"max_batch_size,omitempty"`
	MaxRetries        int          `yaml:"max_retries,omitempty"`
	RetryBaseDelayMs  int          `yaml:"retry_base_delay_ms,omitempty"`
	RequestTimeoutS   int          `yaml:"request_timeout_s,omitempty"`
	KeywordBoost      KeywordBoost `yaml:"keyword_boost,omitempty"`
	DefaultCollection string       `yaml:"default_collection,omitempty"`
	DataDir           string       `yaml:"data_dir,omitempty"`
	Cache             CacheConfig  `yaml:"cache,omitempty"`
	MaxCandidates     int          `yaml:"max_candidates,omitempty"`
	PageSize          int          `yaml:"page_size,omitempty"`
	ChunkSize         int          `yaml:"chunk_size,omitempty"`
	LookupWorkers     int          `yaml:"lookup_workers,omitempty"`
}

// configCache caches the loaded config for the process lifetime.
var configCache *Config

// Path returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/akin/config.yml.
func Path() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, ConfigDir, ConfigFile)
}

// Load reads the global configuration file.
// Returns an empty config (not an error) if the file doesn't exist.
func Load() (*Config, error) {
	if configCache != nil {
		return configCache, nil
	}

	path := Path()
	if path == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DataDir != "" {
		cfg.DataDir = ExpandPath(cfg.DataDir)
	}

	configCache = &cfg
	return &cfg, nil
}

// ResetCache clears the cached config. Useful for testing.
func ResetCache() {
	configCache = nil
}

// Save writes the configuration to the global config file, creating the
// directory if needed.
func (c *Config) Save() error {
	path := Path()
	if path == "" {
		return fmt.Errorf("cannot determine config path")
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	configCache = nil
	return nil
}

// ResolveAPIKey returns the provider credential: AKIN_API_KEY wins, then
// OPENAI_API_KEY, then the config file value. Empty means no credential.
func (c *Config) ResolveAPIKey() string {
	if key := os.Getenv("AKIN_API_KEY"); key != "" {
		return key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	return c.APIKey
}

// ResolveDataDir returns the data directory: the configured data_dir, or
// XDG_DATA_HOME/akin, or ~/.local/share/akin.
func (c *Config) ResolveDataDir() string {
	if c.DataDir != "" {
		return ExpandPath(c.DataDir)
	}
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, DataDirName)
}

// DBPath returns the path to the catalogue database.
func (c *Config) DBPath() string {
	dir := c.ResolveDataDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, DBFile)
}

// SettableKeys lists the keys accepted by Set, for help output.
var SettableKeys = []string{
	"api_key", "api_base", "model", "dimension", "requests_per_minute",
	"max_batch_size", "max_retries", "default_collection", "data_dir",
}

// Set assigns a config value by key name, parsing numeric values.
func (c *Config) Set(key, value string) error {
	switch key {
	case "api_key":
		c.APIKey = value
	case "api_base":
		c.APIBase = value
	case "model":
		c.Model = value
	case "dimension":
		return setInt(&c.Dimension, key, value)
	case "requests_per_minute":
		return setInt(&c.RequestsPerMinute, key, value)
	case "max_batch_size":
		return setInt(&c.MaxBatchSize, key, value)
	case "max_retries":
		return setInt(&c.MaxRetries, key, value)
	case "default_collection":
		c.DefaultCollection = value
	case "data_dir":
		c.DataDir = ExpandPath(value)
	default:
		return fmt.Errorf("unknown config key %q (valid keys: %v)", key, SettableKeys)
	}
	return nil
}

func setInt(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fmt.Errorf("invalid value for %s: %q", key, value)
	}
	*dst = n
	return nil
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[1:])
}
