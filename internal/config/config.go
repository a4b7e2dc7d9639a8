// ABOUTME: Configuration loading and parsing for agentchat
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete agentchat configuration
type Config struct {
	Database Database `yaml:"database"`
	Storage  Storage  `yaml:"storage"`
	Session  Session  `yaml:"session"`
	Agent    Agent    `yaml:"agent"`
	Worker   Worker   `yaml:"worker"`
	Logging  Logging  `yaml:"logging"`
}

// Database holds database configuration
type Database struct {
	Path string `yaml:"path"`
}

// Storage holds blob storage configuration
type Storage struct {
	Dir string `yaml:"dir"`
}

// Session holds bearer credential configuration. Token takes precedence
// over TokenFile; TokenFile over TokenEnv.
type Session struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
	TokenEnv  string `yaml:"token_env"`
}

// Agent holds agent run defaults
type Agent struct {
	DefaultModel string `yaml:"default_model"`
}

// Worker holds the in-process run worker configuration
type Worker struct {
	Enabled bool `yaml:"enabled"`

	ChunkDelay    time.Duration `yaml:"-"`
	ChunkDelayRaw string        `yaml:"chunk_delay"`
}

// Logging holds logging configuration
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Worker.ChunkDelayRaw != "" {
		cfg.Worker.ChunkDelay, err = time.ParseDuration(cfg.Worker.ChunkDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing chunk_delay %q: %w", cfg.Worker.ChunkDelayRaw, err)
		}
	}

	return nil
}
