package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "simOutputData_", cfg.Naming.DataPrefix)
	assert.Equal(t, ".txt", cfg.Naming.DataSuffix)
	assert.Equal(t, "simRunSeed_", cfg.Naming.SeedPrefix)
	assert.Equal(t, "consistencyOfDataResult", cfg.Naming.ResultFile)
	assert.Equal(t, "matlab", cfg.External.Binary)
	assert.Equal(t, 2*time.Hour, cfg.External.Timeout)
	assert.Equal(t, 0, cfg.External.Retries)
	assert.Equal(t, 1, cfg.Workers)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("SIMBATCH_TEST_SCRIPTS", "/opt/analysis")

	content := `
naming:
  data_prefix: runData_
external:
  binary: octave
  args: ["--no-gui", "--eval"]
  scripts_dir: ${SIMBATCH_TEST_SCRIPTS}/m
  timeout: 90s
  retries: 2
workers: 4
history:
  enabled: false
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "runData_", cfg.Naming.DataPrefix)
	assert.Equal(t, "simRunSeed_", cfg.Naming.SeedPrefix, "unset keys keep defaults")
	assert.Equal(t, "octave", cfg.External.Binary)
	assert.Equal(t, []string{"--no-gui", "--eval"}, cfg.External.Args)
	assert.Equal(t, "/opt/analysis/m", cfg.External.ScriptsDir)
	assert.Equal(t, 90*time.Second, cfg.External.Timeout)
	assert.Equal(t, 2, cfg.External.Retries)
	assert.Equal(t, 4, cfg.Workers)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("workers: [1, 2\n"), 0600))
	_, err = LoadFromFile(bad)
	assert.Error(t, err)
}

func TestLoad_ExplicitPathAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", filepath.Join(dir, "home"))
	path := filepath.Join(dir, "simbatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 3\n"), 0600))

	t.Setenv("SIMBATCH_WORKERS", "6")
	t.Setenv("SIMBATCH_EXTERNAL_TIMEOUT", "5m")
	t.Setenv("SIMBATCH_EXTERNAL_ARGS", "-batch")
	t.Setenv("SIMBATCH_HISTORY_ENABLED", "0")
	t.Setenv("SIMBATCH_LOG_LEVEL", "trace")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, 5*time.Minute, cfg.External.Timeout)
	assert.Equal(t, []string{"-batch"}, cfg.External.Args)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "trace", cfg.Logging.Level)
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SIMBATCH_DOTENV_TEST=from-file\nSIMBATCH_DOTENV_KEEP=from-file\n"), 0600))

	t.Setenv("SIMBATCH_DOTENV_KEEP", "from-env")
	t.Cleanup(func() { os.Unsetenv("SIMBATCH_DOTENV_TEST") })

	require.NoError(t, loadDotEnv(envFile))
	assert.Equal(t, "from-file", os.Getenv("SIMBATCH_DOTENV_TEST"))
	assert.Equal(t, "from-env", os.Getenv("SIMBATCH_DOTENV_KEEP"), "existing variables are not overridden")

	assert.NoError(t, loadDotEnv(filepath.Join(dir, "absent.env")))
}

func TestHistoryPath(t *testing.T) {
	cfg := Default()
	cfg.History.Path = "/var/lib/simbatch/h.db"
	p, err := cfg.HistoryPath()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/simbatch/h.db", p)

	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg.History.Path = ""
	p, err = cfg.HistoryPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".simbatch", "history.db"), p)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"empty data prefix", func(c *Config) { c.Naming.DataPrefix = "" }, true},
		{"same prefixes", func(c *Config) { c.Naming.SeedPrefix = c.Naming.DataPrefix }, true},
		{"empty result file", func(c *Config) { c.Naming.ResultFile = "" }, true},
		{"empty binary", func(c *Config) { c.External.Binary = "" }, true},
		{"negative timeout", func(c *Config) { c.External.Timeout = -time.Second }, true},
		{"zero timeout allowed", func(c *Config) { c.External.Timeout = 0 }, false},
		{"negative retries", func(c *Config) { c.External.Retries = -1 }, true},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"empty log level", func(c *Config) { c.Logging.Level = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
