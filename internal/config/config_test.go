package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 100, cfg.Generation.MaxNewTokens)
	assert.Equal(t, 5, cfg.Generation.NumBeams)
	assert.Equal(t, 0.7, cfg.Generation.Temperature)
	assert.Equal(t, 50, cfg.Generation.TopK)
	assert.Equal(t, 0.9, cfg.Generation.TopP)
	assert.True(t, cfg.Generation.DoSample)

	assert.Equal(t, 1, cfg.Training.Epochs)
	assert.Equal(t, 2, cfg.Training.BatchSize)
	assert.Equal(t, 512, cfg.Training.MaxLength)
	assert.Equal(t, 100, cfg.Training.LoggingSteps)
	assert.Equal(t, 500, cfg.Training.SaveSteps)
	assert.Equal(t, 1, cfg.Training.SaveTotalLimit)
	assert.Equal(t, 4, cfg.Training.NumWorkers)
	assert.Equal(t, "fine_tuning_run", cfg.Training.RunName)
	assert.Equal(t, "tensorboard", cfg.Training.ReportTo)
	assert.True(t, strings.HasSuffix(cfg.Training.LoggingDir, filepath.Join("Documents", "logs")))
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
generation:
  num_beams: 3
training:
  epochs: 2
  report_to: none
hub:
  endpoint: http://localhost:9999
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Generation.NumBeams)
	assert.Equal(t, 2, cfg.Training.Epochs)
	assert.Equal(t, "none", cfg.Training.ReportTo)
	assert.Equal(t, "http://localhost:9999", cfg.Hub.Endpoint)
	// untouched keys keep their defaults
	assert.Equal(t, 500, cfg.Training.SaveSteps)
	assert.Equal(t, 0.9, cfg.Generation.TopP)
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Training.SaveSteps, cfg.Training.SaveSteps)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("TUNEBOX_TRAINING_EPOCHS", "3")
	t.Setenv("TUNEBOX_DEVICE_PREFERENCE", "cpu")

	cfg, err := Load(writeFile(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Training.Epochs)
	assert.Equal(t, "cpu", cfg.Device.Preference)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_HFTokenFallback(t *testing.T) {
	t.Setenv("HF_TOKEN", "hf_secret")
	cfg, err := Load(writeFile(t, "hub:\n  cache_dir: /tmp/models\n"))
	require.NoError(t, err)
	assert.Equal(t, "hf_secret", cfg.Hub.Token)

	cfg, err = Load(writeFile(t, "hub:\n  token: configured\n"))
	require.NoError(t, err)
	assert.Equal(t, "configured", cfg.Hub.Token)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"zero new tokens", func(c *Config) { c.Generation.MaxNewTokens = 0 }},
		{"temperature too high", func(c *Config) { c.Generation.Temperature = 3 }},
		{"top_p zero", func(c *Config) { c.Generation.TopP = 0 }},
		{"no beams", func(c *Config) { c.Generation.NumBeams = 0 }},
		{"no epochs", func(c *Config) { c.Training.Epochs = 0 }},
		{"tiny max length", func(c *Config) { c.Training.MaxLength = 1 }},
		{"bad dtype", func(c *Config) { c.Training.SaveDType = "q4" }},
		{"bad report_to", func(c *Config) { c.Training.ReportTo = "wandb" }},
		{"bad device", func(c *Config) { c.Device.Preference = "tpu" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestExpandPaths(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("TUNEBOX_TEST_DIR", "/srv/tunebox")

	cfg := DefaultConfig()
	cfg.Hub.CacheDir = "~/models"
	cfg.Logging.File = "$TUNEBOX_TEST_DIR/tunebox.log"
	cfg.ExpandPaths()

	assert.Equal(t, filepath.Join(home, "models"), cfg.Hub.CacheDir)
	assert.Equal(t, "/srv/tunebox/tunebox.log", cfg.Logging.File)
}
