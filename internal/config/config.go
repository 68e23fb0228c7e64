// Package config provides unified configuration loading for simbatch.
// It supports loading from YAML files, a .env file and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/artimmus/simbatch/internal/runfile"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config contains all simbatch configuration settings.
type Config struct {
	// Naming holds the run-file naming conventions.
	Naming runfile.Naming `json:"naming" yaml:"naming"`

	// External configures the numerical tool invoked for each ensemble.
	External ExternalConfig `json:"external" yaml:"external"`

	// Workers bounds how many ensembles are processed at once. 1 is sequential.
	Workers int `json:"workers" yaml:"workers"`

	// History configures the operation ledger.
	History HistoryConfig `json:"history" yaml:"history"`

	// Logging contains settings for operational and event logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// ExternalConfig describes how the external numerical tool is launched.
// The command line is Binary, then Args, then "<function>('<args>');quit".
type ExternalConfig struct {
	Binary string   `json:"binary" yaml:"binary"`
	Args   []string `json:"args" yaml:"args"`

	// ScriptsDir holds the analysis scripts (<function>.m). When set, the
	// script is symlinked into the ensemble directory before each invocation.
	ScriptsDir string `json:"scripts_dir,omitempty" yaml:"scripts_dir,omitempty"`

	// Timeout bounds a single invocation. Zero disables the limit.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// Retries is the number of extra attempts after a failed invocation.
	Retries int `json:"retries" yaml:"retries"`
}

// HistoryConfig configures the SQLite operation ledger.
type HistoryConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Path of the database file. Empty means <state dir>/history.db.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// LoggingConfig configures simbatch's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "warn", "info" (default), "debug", or "trace".
	// "debug" and "trace" also write events to <state dir>/events.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Naming: runfile.DefaultNaming(),
		External: ExternalConfig{
			Binary:  "matlab",
			Args:    []string{"-nosplash", "-nodesktop", "-nodisplay", "-r"},
			Timeout: 2 * time.Hour,
			Retries: 0,
		},
		Workers: 1,
		History: HistoryConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// StateDir returns ~/.simbatch, where the default config, history database
// and event log live.
func StateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".simbatch"), nil
}

// Load loads configuration.
// Order: defaults -> path (or ~/.simbatch/config.yaml) -> ./.env -> environment variables.
// An explicit path must exist; the default file is optional.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		if dir, err := StateDir(); err == nil {
			candidate := filepath.Join(dir, "config.yaml")
			if _, statErr := os.Stat(candidate); statErr == nil {
				path = candidate
			}
		}
	}
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
// Keys absent from the file keep their default values.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.External.ScriptsDir = expandEnvVars(config.External.ScriptsDir)
	config.History.Path = expandEnvVars(config.History.Path)

	return config, nil
}

// HistoryPath returns the configured database path, or the default under StateDir.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Naming.DataPrefix == "" || c.Naming.SeedPrefix == "" {
		return fmt.Errorf("naming: data_prefix and seed_prefix must not be empty")
	}
	if c.Naming.DataPrefix == c.Naming.SeedPrefix {
		return fmt.Errorf("naming: data_prefix and seed_prefix must differ")
	}
	if c.Naming.ResultFile == "" || c.Naming.MedianFile == "" || c.Naming.AxisFilePrefix == "" {
		return fmt.Errorf("naming: result_file, median_file and axis_file_prefix must not be empty")
	}

	if c.External.Binary == "" {
		return fmt.Errorf("external.binary must not be empty")
	}
	if c.External.Timeout < 0 {
		return fmt.Errorf("external.timeout must be non-negative, got %v", c.External.Timeout)
	}
	if c.External.Retries < 0 {
		return fmt.Errorf("external.retries must be non-negative, got %d", c.External.Retries)
	}

	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}

	validLevels := map[string]bool{"warn": true, "info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: warn, info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// loadDotEnv exports the variables in path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies SIMBATCH_* environment variable overrides to the config.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("SIMBATCH_EXTERNAL_BINARY"); v != "" {
		config.External.Binary = v
	}
	if v := os.Getenv("SIMBATCH_EXTERNAL_ARGS"); v != "" {
		config.External.Args = strings.Fields(v)
	}
	if v := os.Getenv("SIMBATCH_SCRIPTS_DIR"); v != "" {
		config.External.ScriptsDir = v
	}
	if v := os.Getenv("SIMBATCH_EXTERNAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.External.Timeout = d
		}
	}
	if v := os.Getenv("SIMBATCH_EXTERNAL_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.External.Retries = n
		}
	}

	if v := os.Getenv("SIMBATCH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Workers = n
		}
	}

	if v := os.Getenv("SIMBATCH_HISTORY_ENABLED"); v != "" {
		config.History.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SIMBATCH_HISTORY_PATH"); v != "" {
		config.History.Path = v
	}

	if v := os.Getenv("SIMBATCH_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
