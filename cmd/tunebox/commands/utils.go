package commands

import (
	"fmt"
	"io"

	"github.com/enescakir/emoji"
	"github.com/xupit3r/tunebox/internal/config"
	"github.com/xupit3r/tunebox/internal/device"
	"github.com/xupit3r/tunebox/internal/gguf"
	"github.com/xupit3r/tunebox/internal/model"
	"github.com/xupit3r/tunebox/internal/trainer"
)

// status prints one status line prefixed by the emoji for alias
// (":rocket:" and friends). An empty alias prints the text alone.
func status(out io.Writer, alias, format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	if alias == "" {
		fmt.Fprintln(out, text)
		return
	}
	fmt.Fprintf(out, "%s %s\n", emoji.Parse(alias), text)
}

// newManager builds the hub model manager from the hub config section
func newManager(c *config.Config) (*model.Manager, error) {
	return model.NewManager(model.Options{
		CacheDir:       c.Hub.CacheDir,
		MaxCacheSizeGB: c.Hub.MaxCacheSizeGB,
		Endpoint:       c.Hub.Endpoint,
		Token:          c.Hub.Token,
	})
}

// selectDevice honours a --device flag before the configured preference
func selectDevice(c *config.Config, flag string) (device.Device, error) {
	dev, err := device.Select(pick(flag, c.Device.Preference), c.Device.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to select device: %w", err)
	}
	return dev, nil
}

// trainingArguments maps the training config section onto trainer arguments
func trainingArguments(t config.TrainingConfig, outputDir string) (trainer.TrainingArguments, error) {
	dtype, err := gguf.ParseGGMLType(t.SaveDType)
	if err != nil {
		return trainer.TrainingArguments{}, fmt.Errorf("training.save_dtype: %w", err)
	}

	args := trainer.DefaultArguments(outputDir)
	args.RunName = t.RunName
	args.NumTrainEpochs = t.Epochs
	args.PerDeviceTrainBatchSize = t.BatchSize
	args.DataloaderNumWorkers = t.NumWorkers
	args.LoggingDir = t.LoggingDir
	args.LoggingSteps = t.LoggingSteps
	args.ReportTo = t.ReportTo
	args.DisableTQDM = t.DisableTQDM
	args.SaveSteps = t.SaveSteps
	args.SaveTotalLimit = t.SaveTotalLimit
	args.SaveDType = dtype
	args.LearningRate = t.LearningRate
	args.WeightDecay = t.WeightDecay
	args.AdamBeta1 = t.AdamBeta1
	args.AdamBeta2 = t.AdamBeta2
	args.AdamEpsilon = t.AdamEpsilon
	args.MaxGradNorm = t.MaxGradNorm
	args.WarmupSteps = t.WarmupSteps
	args.Seed = t.Seed
	return args, nil
}
