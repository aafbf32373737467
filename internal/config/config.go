package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Generation GenerationConfig `mapstructure:"generation"`
	Training   TrainingConfig   `mapstructure:"training"`
	Hub        HubConfig        `mapstructure:"hub"`
	Device     DeviceConfig     `mapstructure:"device"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Studio     StudioConfig     `mapstructure:"studio"`
}

// GenerationConfig controls chat decoding
type GenerationConfig struct {
	MaxNewTokens  int     `mapstructure:"max_new_tokens"`
	Temperature   float64 `mapstructure:"temperature"`
	TopK          int     `mapstructure:"top_k"`
	TopP          float64 `mapstructure:"top_p"`
	NumBeams      int     `mapstructure:"num_beams"`
	DoSample      bool    `mapstructure:"do_sample"`
	LengthPenalty float64 `mapstructure:"length_penalty"`
	Seed          int64   `mapstructure:"seed"`
}

// TrainingConfig mirrors the trainer arguments used by finetune
type TrainingConfig struct {
	Epochs         int     `mapstructure:"epochs"`
	BatchSize      int     `mapstructure:"batch_size"`
	MaxLength      int     `mapstructure:"max_length"`
	LoggingSteps   int     `mapstructure:"logging_steps"`
	SaveSteps      int     `mapstructure:"save_steps"`
	SaveTotalLimit int     `mapstructure:"save_total_limit"`
	NumWorkers     int     `mapstructure:"num_workers"`
	LearningRate   float64 `mapstructure:"learning_rate"`
	WeightDecay    float64 `mapstructure:"weight_decay"`
	AdamBeta1      float64 `mapstructure:"adam_beta1"`
	AdamBeta2      float64 `mapstructure:"adam_beta2"`
	AdamEpsilon    float64 `mapstructure:"adam_epsilon"`
	MaxGradNorm    float64 `mapstructure:"max_grad_norm"`
	WarmupSteps    int     `mapstructure:"warmup_steps"`
	Seed           int64   `mapstructure:"seed"`
	OutputDir      string  `mapstructure:"output_dir"`
	LoggingDir     string  `mapstructure:"logging_dir"`
	RunName        string  `mapstructure:"run_name"`
	ReportTo       string  `mapstructure:"report_to"`
	DisableTQDM    bool    `mapstructure:"disable_tqdm"`
	SaveDType      string  `mapstructure:"save_dtype"`
}

// HubConfig points the model manager at a checkpoint hub
type HubConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Token          string `mapstructure:"token"`
	CacheDir       string `mapstructure:"cache_dir"`
	MaxCacheSizeGB int    `mapstructure:"max_cache_size_gb"`
}

type DeviceConfig struct {
	Preference string `mapstructure:"preference"`
	Workers    int    `mapstructure:"workers"`
}

type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Console bool   `mapstructure:"console"`
}

type StudioConfig struct {
	HistoryFile string `mapstructure:"history_file"`
	Executable  string `mapstructure:"executable"`
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	tuneboxDir := filepath.Join(home, ".tunebox")

	return &Config{
		Generation: GenerationConfig{
			MaxNewTokens:  100,
			Temperature:   0.7,
			TopK:          50,
			TopP:          0.9,
			NumBeams:      5,
			DoSample:      true,
			LengthPenalty: 1.0,
			Seed:          0,
		},
		Training: TrainingConfig{
			Epochs:         1,
			BatchSize:      2,
			MaxLength:      512,
			LoggingSteps:   100,
			SaveSteps:      500,
			SaveTotalLimit: 1,
			NumWorkers:     4,
			LearningRate:   5e-5,
			WeightDecay:    0,
			AdamBeta1:      0.9,
			AdamBeta2:      0.999,
			AdamEpsilon:    1e-8,
			MaxGradNorm:    1.0,
			WarmupSteps:    0,
			Seed:           42,
			OutputDir:      filepath.Join("path", "to", "storing", "finetuned model"),
			LoggingDir:     filepath.Join(home, "Documents", "logs"),
			RunName:        "fine_tuning_run",
			ReportTo:       "tensorboard",
			DisableTQDM:    false,
			SaveDType:      "f32",
		},
		Hub: HubConfig{
			Endpoint:       "https://huggingface.co",
			CacheDir:       filepath.Join(tuneboxDir, "models"),
			MaxCacheSizeGB: 20,
		},
		Device: DeviceConfig{
			Preference: "auto",
			Workers:    0,
		},
		Logging: LoggingConfig{
			Level:   "info",
			File:    "",
			Console: true,
		},
		Studio: StudioConfig{
			HistoryFile: filepath.Join(tuneboxDir, "chat_history.json"),
		},
	}
}

// Load loads configuration from file, environment, and defaults
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	cfg := DefaultConfig()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("finding home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".tunebox"))
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("TUNEBOX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is okay, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// HF_TOKEN is honoured when no hub token is configured
	if cfg.Hub.Token == "" {
		cfg.Hub.Token = os.Getenv("HF_TOKEN")
	}

	cfg.ExpandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	g := c.Generation
	if g.MaxNewTokens < 1 {
		return errors.New("generation.max_new_tokens must be at least 1")
	}
	if g.Temperature <= 0 || g.Temperature > 2 {
		return errors.New("generation.temperature must be in (0, 2]")
	}
	if g.TopK < 0 {
		return errors.New("generation.top_k must not be negative")
	}
	if g.TopP <= 0 || g.TopP > 1 {
		return errors.New("generation.top_p must be in (0, 1]")
	}
	if g.NumBeams < 1 {
		return errors.New("generation.num_beams must be at least 1")
	}

	t := c.Training
	if t.Epochs < 1 {
		return errors.New("training.epochs must be at least 1")
	}
	if t.BatchSize < 1 {
		return errors.New("training.batch_size must be at least 1")
	}
	if t.MaxLength < 2 {
		return errors.New("training.max_length must be at least 2")
	}
	if t.LoggingSteps < 1 || t.SaveSteps < 1 {
		return errors.New("training.logging_steps and training.save_steps must be positive")
	}
	if t.SaveTotalLimit < 0 || t.NumWorkers < 0 {
		return errors.New("training.save_total_limit and training.num_workers must not be negative")
	}
	if t.LearningRate <= 0 {
		return errors.New("training.learning_rate must be positive")
	}
	if !contains([]string{"f32", "f16"}, t.SaveDType) {
		return fmt.Errorf("training.save_dtype must be one of: %v", []string{"f32", "f16"})
	}
	if !contains([]string{"tensorboard", "none"}, t.ReportTo) {
		return fmt.Errorf("training.report_to must be one of: %v", []string{"tensorboard", "none"})
	}

	validDevices := []string{"auto", "cpu", "accelerator"}
	if !contains(validDevices, c.Device.Preference) {
		return fmt.Errorf("device.preference must be one of: %v", validDevices)
	}
	if c.Device.Workers < 0 {
		return errors.New("device.workers must not be negative")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	return nil
}

// ExpandPaths expands ~ and environment variables in paths
func (c *Config) ExpandPaths() {
	c.Training.LoggingDir = expandPath(c.Training.LoggingDir)
	c.Hub.CacheDir = expandPath(c.Hub.CacheDir)
	c.Logging.File = expandPath(c.Logging.File)
	c.Studio.HistoryFile = expandPath(c.Studio.HistoryFile)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return os.ExpandEnv(path)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("generation.max_new_tokens", cfg.Generation.MaxNewTokens)
	v.SetDefault("generation.temperature", cfg.Generation.Temperature)
	v.SetDefault("generation.top_k", cfg.Generation.TopK)
	v.SetDefault("generation.top_p", cfg.Generation.TopP)
	v.SetDefault("generation.num_beams", cfg.Generation.NumBeams)
	v.SetDefault("generation.do_sample", cfg.Generation.DoSample)
	v.SetDefault("generation.length_penalty", cfg.Generation.LengthPenalty)
	v.SetDefault("generation.seed", cfg.Generation.Seed)

	v.SetDefault("training.epochs", cfg.Training.Epochs)
	v.SetDefault("training.batch_size", cfg.Training.BatchSize)
	v.SetDefault("training.max_length", cfg.Training.MaxLength)
	v.SetDefault("training.logging_steps", cfg.Training.LoggingSteps)
	v.SetDefault("training.save_steps", cfg.Training.SaveSteps)
	v.SetDefault("training.save_total_limit", cfg.Training.SaveTotalLimit)
	v.SetDefault("training.num_workers", cfg.Training.NumWorkers)
	v.SetDefault("training.learning_rate", cfg.Training.LearningRate)
	v.SetDefault("training.weight_decay", cfg.Training.WeightDecay)
	v.SetDefault("training.adam_beta1", cfg.Training.AdamBeta1)
	v.SetDefault("training.adam_beta2", cfg.Training.AdamBeta2)
	v.SetDefault("training.adam_epsilon", cfg.Training.AdamEpsilon)
	v.SetDefault("training.max_grad_norm", cfg.Training.MaxGradNorm)
	v.SetDefault("training.warmup_steps", cfg.Training.WarmupSteps)
	v.SetDefault("training.seed", cfg.Training.Seed)
	v.SetDefault("training.output_dir", cfg.Training.OutputDir)
	v.SetDefault("training.logging_dir", cfg.Training.LoggingDir)
	v.SetDefault("training.run_name", cfg.Training.RunName)
	v.SetDefault("training.report_to", cfg.Training.ReportTo)
	v.SetDefault("training.disable_tqdm", cfg.Training.DisableTQDM)
	v.SetDefault("training.save_dtype", cfg.Training.SaveDType)

	v.SetDefault("hub.endpoint", cfg.Hub.Endpoint)
	v.SetDefault("hub.token", cfg.Hub.Token)
	v.SetDefault("hub.cache_dir", cfg.Hub.CacheDir)
	v.SetDefault("hub.max_cache_size_gb", cfg.Hub.MaxCacheSizeGB)

	v.SetDefault("device.preference", cfg.Device.Preference)
	v.SetDefault("device.workers", cfg.Device.Workers)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)

	v.SetDefault("studio.history_file", cfg.Studio.HistoryFile)
	v.SetDefault("studio.executable", cfg.Studio.Executable)
}
