package trainer

import (
	"fmt"

	"github.com/xupit3r/tunebox/internal/gguf"
)

// TrainingArguments configures a training run
type TrainingArguments struct {
	OutputDir string
	RunName   string

	NumTrainEpochs          int
	PerDeviceTrainBatchSize int
	DataloaderNumWorkers    int

	LoggingDir   string
	LoggingSteps int
	ReportTo     string // "tensorboard" or "none"
	DisableTQDM  bool

	SaveSteps      int
	SaveTotalLimit int // <= 0 keeps every checkpoint
	SaveDType      gguf.GGMLType

	LearningRate float64
	WeightDecay  float64
	AdamBeta1    float64
	AdamBeta2    float64
	AdamEpsilon  float64
	MaxGradNorm  float64 // <= 0 disables clipping
	WarmupSteps  int

	Seed int64
}

// DefaultArguments returns the fine-tuning defaults: one epoch, batch
// size 2, logging every 100 steps, a checkpoint every 500 steps keeping
// only the newest, and 4 data loading workers.
func DefaultArguments(outputDir string) TrainingArguments {
	return TrainingArguments{
		OutputDir:               outputDir,
		RunName:                 "fine_tuning_run",
		NumTrainEpochs:          1,
		PerDeviceTrainBatchSize: 2,
		DataloaderNumWorkers:    4,
		LoggingSteps:            100,
		ReportTo:                "tensorboard",
		SaveSteps:               500,
		SaveTotalLimit:          1,
		SaveDType:               gguf.GGML_TYPE_F32,
		LearningRate:            5e-5,
		AdamBeta1:               0.9,
		AdamBeta2:               0.999,
		AdamEpsilon:             1e-8,
		MaxGradNorm:             1.0,
		Seed:                    42,
	}
}

// Validate checks argument ranges
func (a *TrainingArguments) Validate() error {
	if a.OutputDir == "" {
		return fmt.Errorf("output_dir is required")
	}
	if a.NumTrainEpochs <= 0 {
		return fmt.Errorf("num_train_epochs must be positive, got %d", a.NumTrainEpochs)
	}
	if a.PerDeviceTrainBatchSize <= 0 {
		return fmt.Errorf("per_device_train_batch_size must be positive, got %d", a.PerDeviceTrainBatchSize)
	}
	if a.DataloaderNumWorkers < 0 {
		return fmt.Errorf("dataloader_num_workers cannot be negative, got %d", a.DataloaderNumWorkers)
	}
	if a.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be positive, got %g", a.LearningRate)
	}
	if a.AdamBeta1 < 0 || a.AdamBeta1 >= 1 || a.AdamBeta2 < 0 || a.AdamBeta2 >= 1 {
		return fmt.Errorf("adam betas must be in [0, 1), got %g and %g", a.AdamBeta1, a.AdamBeta2)
	}
	if a.WarmupSteps < 0 {
		return fmt.Errorf("warmup_steps cannot be negative, got %d", a.WarmupSteps)
	}
	return nil
}
