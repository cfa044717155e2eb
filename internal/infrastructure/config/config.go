// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for kin configuration.
	DefaultConfigDir = ".kin"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultDatabaseFile is the default SQLite file name inside the config directory.
	DefaultDatabaseFile = "kin.db"
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	SQLite      SQLiteConfig      `yaml:"sqlite,omitempty"`
	LLM         LLMConfig         `yaml:"llm,omitempty"`
	Redis       RedisConfig       `yaml:"redis,omitempty"`
	Validation  ValidationConfig  `yaml:"validation,omitempty"`
	Deduction   DeductionConfig   `yaml:"deduction,omitempty"`
	Suggestions SuggestionsConfig `yaml:"suggestions,omitempty"`
	Profiles    ProfilesConfig    `yaml:"profiles,omitempty"`
	Log         LogConfig         `yaml:"log,omitempty"`
	Metrics     MetricsConfig     `yaml:"metrics,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite relational database.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database. Relative paths are
	// resolved against the config directory.
	Path string `yaml:"path,omitempty"`
}

// LLMConfig holds configuration for the relationship guesser.
// An empty provider or api key disables the guesser.
type LLMConfig struct {
	Provider      string  `yaml:"provider,omitempty"`
	Model         string  `yaml:"model,omitempty"`
	APIKey        string  `yaml:"api_key,omitempty"`
	BaseURL       string  `yaml:"base_url,omitempty"`
	MinConfidence float64 `yaml:"min_confidence,omitempty"`

	RequestsPerSecond float64       `yaml:"requests_per_second,omitempty"`
	Burst             int           `yaml:"burst,omitempty"`
	MaxFailures       uint32        `yaml:"max_failures,omitempty"`
	OpenTimeout       time.Duration `yaml:"open_timeout,omitempty"`
}

// Enabled reports whether the guesser should be wired.
func (c LLMConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != "none" && c.APIKey != ""
}

// RedisConfig holds configuration for the task queue and event publisher.
// An empty Addr disables both.
type RedisConfig struct {
	Addr          string `yaml:"addr,omitempty"`
	Password      string `yaml:"password,omitempty"`
	DB            int    `yaml:"db,omitempty"`
	QueueKey      string `yaml:"queue_key,omitempty"`
	EventsChannel string `yaml:"events_channel,omitempty"`
	Shards        int    `yaml:"shards,omitempty"`
	MaxAttempts   int    `yaml:"max_attempts,omitempty"`
}

// ValidationConfig holds the age gap rules, in years.
type ValidationConfig struct {
	ParentChildMinGap int `yaml:"parent_child_min_gap,omitempty"`
	ParentChildMaxGap int `yaml:"parent_child_max_gap,omitempty"`
	SiblingMaxGap     int `yaml:"sibling_max_gap,omitempty"`
	GrandparentMinGap int `yaml:"grandparent_min_gap,omitempty"`
}

// DeductionConfig controls when propagation runs.
type DeductionConfig struct {
	// Async defers propagation to the worker. Requires redis.
	Async bool `yaml:"async,omitempty"`
}

// SuggestionsConfig controls suggestion generation.
type SuggestionsConfig struct {
	Limit int `yaml:"limit,omitempty"`
}

// ProfilesConfig controls the in-process profile cache.
type ProfilesConfig struct {
	CacheSize int           `yaml:"cache_size,omitempty"`
	CacheTTL  time.Duration `yaml:"cache_ttl,omitempty"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// MetricsConfig controls the Prometheus endpoint served by the worker.
type MetricsConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		SQLite: SQLiteConfig{
			Path: DefaultDatabaseFile,
		},
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			MinConfidence:     0.7,
			RequestsPerSecond: 2,
			Burst:             4,
			MaxFailures:       5,
			OpenTimeout:       30 * time.Second,
		},
		Redis: RedisConfig{
			QueueKey:      "kin:jobs",
			EventsChannel: "kin:events",
			Shards:        8,
			MaxAttempts:   5,
		},
		Validation: ValidationConfig{
			ParentChildMinGap: 15,
			ParentChildMaxGap: 60,
			SiblingMaxGap:     25,
			GrandparentMinGap: 30,
		},
		Suggestions: SuggestionsConfig{
			Limit: 50,
		},
		Profiles: ProfilesConfig{
			CacheSize: 1024,
			CacheTTL:  time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the .kin directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := ConfigFilePath(basePath)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'kin init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	if cfg.SQLite.Path != ":memory:" && !filepath.IsAbs(cfg.SQLite.Path) {
		cfg.SQLite.Path = filepath.Join(ConfigDir(basePath), cfg.SQLite.Path)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if addr := os.Getenv("KIN_REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if level := os.Getenv("KIN_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if async := os.Getenv("KIN_DEDUCTION_ASYNC"); async != "" {
		if v, err := strconv.ParseBool(async); err == nil {
			c.Deduction.Async = v
		}
	}
}

// ConfigDir returns the path to the .kin config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}
