package trainer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xupit3r/tunebox/internal/dataset"
	"github.com/xupit3r/tunebox/internal/logging"
	"github.com/xupit3r/tunebox/internal/tokenizer"
	"github.com/xupit3r/tunebox/internal/transformer"
)

// ErrNoTrainingData is returned when Train is called with an empty dataset
var ErrNoTrainingData = errors.New("no training data")

// TrainOutput summarises a finished run
type TrainOutput struct {
	GlobalStep   int
	TrainingLoss float64
	Metrics      map[string]float64
}

// Trainer runs the causal language modelling loop over a tokenized dataset
type Trainer struct {
	model     *transformer.Model
	tokenizer *tokenizer.Tokenizer
	args      TrainingArguments
	train     []dataset.Example
	collator  dataset.CausalLMCollator
	handler   callbackHandler
	state     *TrainerState
	control   *TrainerControl
}

// Option customises a Trainer
type Option func(*Trainer)

// WithCallbacks appends callbacks after the built-in ones
func WithCallbacks(callbacks ...Callback) Option {
	return func(t *Trainer) {
		for _, cb := range callbacks {
			t.AddCallback(cb)
		}
	}
}

// New builds a trainer. The tokenizer is written alongside every
// checkpoint and may be nil.
func New(model *transformer.Model, tok *tokenizer.Tokenizer, args TrainingArguments, train []dataset.Example, collator dataset.CausalLMCollator, opts ...Option) (*Trainer, error) {
	if model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if err := args.Validate(); err != nil {
		return nil, fmt.Errorf("invalid training arguments: %w", err)
	}

	t := &Trainer{
		model:     model,
		tokenizer: tok,
		args:      args,
		train:     train,
		collator:  collator,
		state:     &TrainerState{},
		control:   &TrainerControl{},
	}

	t.AddCallback(flowCallback{})
	if args.ReportTo == "tensorboard" {
		t.AddCallback(NewTensorBoardCallback())
	}
	t.AddCallback(LogPrinterCallback{})
	if !args.DisableTQDM && IsTerminal(os.Stderr) {
		t.AddCallback(NewProgressBarCallback(os.Stderr))
	}

	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// AddCallback registers an additional callback
func (t *Trainer) AddCallback(cb Callback) {
	t.handler.add(cb)
}

// State returns the live trainer state
func (t *Trainer) State() *TrainerState {
	return t.state
}

// Args returns the training arguments
func (t *Trainer) Args() TrainingArguments {
	return t.args
}

// Train runs every epoch, logging, checkpointing and notifying callbacks
// along the way.
func (t *Trainer) Train(ctx context.Context) (*TrainOutput, error) {
	if len(t.train) == 0 {
		return nil, ErrNoTrainingData
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	args := &t.args
	loader := newDataLoader(t.train, t.collator, args.PerDeviceTrainBatchSize, args.DataloaderNumWorkers, args.Seed)
	stepsPerEpoch := loader.Len()
	maxSteps := stepsPerEpoch * args.NumTrainEpochs

	t.state = &TrainerState{
		MaxSteps:       maxSteps,
		NumTrainEpochs: args.NumTrainEpochs,
		TrainBatchSize: args.PerDeviceTrainBatchSize,
		LoggingSteps:   args.LoggingSteps,
		SaveSteps:      args.SaveSteps,
		LogHistory:     []LogEntry{},
		StartTime:      time.Now(),
	}
	t.control = &TrainerControl{}
	state, control := t.state, t.control

	params := t.model.Parameters()
	opt := NewAdamW(params, args.AdamBeta1, args.AdamBeta2, args.AdamEpsilon, args.WeightDecay)

	logging.WithFields(logrus.Fields{
		"examples":   len(t.train),
		"epochs":     args.NumTrainEpochs,
		"batch_size": args.PerDeviceTrainBatchSize,
		"max_steps":  maxSteps,
		"params":     t.model.NumParams(),
	}).Info("Running training")

	t.handler.trainBegin(args, state, control)

	var totalLoss, loggedLoss float64
	lastLogStep := 0

	for epoch := 0; epoch < args.NumTrainEpochs && !control.ShouldTrainingStop; epoch++ {
		stepInEpoch := 0
		for batch := range loader.Epoch(ctx) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			t.model.ZeroGrad()
			loss, err := t.model.ForwardBackward(batch)
			if err != nil {
				return nil, fmt.Errorf("step %d: %w", state.GlobalStep+1, err)
			}
			gradNorm := ClipGradNorm(params, args.MaxGradNorm)
			opt.Step(args.LearningRate * LinearSchedule(state.GlobalStep, args.WarmupSteps, maxSteps))

			state.GlobalStep++
			stepInEpoch++
			state.Epoch = float64(epoch) + float64(stepInEpoch)/float64(stepsPerEpoch)
			totalLoss += loss

			t.handler.stepEnd(args, state, control)

			if control.ShouldLog {
				logs := map[string]float64{
					"loss":          round4((totalLoss - loggedLoss) / float64(state.GlobalStep-lastLogStep)),
					"learning_rate": args.LearningRate * LinearSchedule(state.GlobalStep, args.WarmupSteps, maxSteps),
					"grad_norm":     gradNorm,
					"epoch":         round4(state.Epoch),
				}
				loggedLoss = totalLoss
				lastLogStep = state.GlobalStep
				t.log(logs)
				control.ShouldLog = false
			}

			if control.ShouldSave {
				if err := t.saveCheckpoint(); err != nil {
					return nil, err
				}
				control.ShouldSave = false
			}

			if control.ShouldTrainingStop {
				break
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	runtime := math.Max(time.Since(state.StartTime).Seconds(), 1e-9)
	trainLoss := totalLoss / float64(max(1, state.GlobalStep))
	metrics := map[string]float64{
		"train_runtime":            math.Round(runtime*1e4) / 1e4,
		"train_samples_per_second": round3(float64(len(t.train)*args.NumTrainEpochs) / runtime),
		"train_steps_per_second":   round3(float64(state.GlobalStep) / runtime),
		"train_loss":               trainLoss,
		"epoch":                    round4(state.Epoch),
	}
	t.log(metrics)
	t.handler.trainEnd(args, state, control)

	return &TrainOutput{
		GlobalStep:   state.GlobalStep,
		TrainingLoss: trainLoss,
		Metrics:      metrics,
	}, nil
}

func (t *Trainer) log(logs map[string]float64) {
	entry := LogEntry{"step": float64(t.state.GlobalStep)}
	for k, v := range logs {
		entry[k] = v
	}
	t.state.LogHistory = append(t.state.LogHistory, entry)
	t.handler.log(&t.args, t.state, t.control, logs)
}

func (t *Trainer) saveCheckpoint() error {
	dir := CheckpointDir(t.args.OutputDir, t.state.GlobalStep)
	logging.Infof("Saving model checkpoint to %s", dir)
	if err := saveCheckpoint(dir, t.model, t.tokenizer, t.state, &t.args); err != nil {
		return fmt.Errorf("saving checkpoint %s: %w", dir, err)
	}
	if err := rotateCheckpoints(t.args.OutputDir, t.args.SaveTotalLimit); err != nil {
		return err
	}
	t.handler.save(&t.args, t.state, t.control)
	return nil
}

// SaveModel writes the model and tokenizer into dir, defaulting to the
// output directory.
func (t *Trainer) SaveModel(dir string) error {
	if dir == "" {
		dir = t.args.OutputDir
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	if err := t.model.Save(dir, t.args.SaveDType); err != nil {
		return err
	}
	if t.tokenizer != nil {
		return t.tokenizer.Save(dir)
	}
	return nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

func round3(v float64) float64 {
	return math.Round(v*1e3) / 1e3
}
