package trainer

import "time"

// LogEntry is one row of the training log history, keyed by metric name.
// Every entry carries "step".
type LogEntry map[string]float64

// TrainerState is the progress of a run, saved with every checkpoint
type TrainerState struct {
	GlobalStep     int        `json:"global_step"`
	MaxSteps       int        `json:"max_steps"`
	Epoch          float64    `json:"epoch"`
	NumTrainEpochs int        `json:"num_train_epochs"`
	TrainBatchSize int        `json:"train_batch_size"`
	LoggingSteps   int        `json:"logging_steps"`
	SaveSteps      int        `json:"save_steps"`
	LogHistory     []LogEntry `json:"log_history"`
	StartTime      time.Time  `json:"start_time"`
}

// TrainerControl carries decisions callbacks make for the training loop
type TrainerControl struct {
	ShouldLog          bool
	ShouldSave         bool
	ShouldTrainingStop bool
}

// Callback observes and steers the training loop
type Callback interface {
	OnTrainBegin(args *TrainingArguments, state *TrainerState, control *TrainerControl)
	OnStepEnd(args *TrainingArguments, state *TrainerState, control *TrainerControl)
	OnLog(args *TrainingArguments, state *TrainerState, control *TrainerControl, logs map[string]float64)
	OnSave(args *TrainingArguments, state *TrainerState, control *TrainerControl)
	OnTrainEnd(args *TrainingArguments, state *TrainerState, control *TrainerControl)
}

// BaseCallback implements Callback with no-ops; embed it and override
// the events you need.
type BaseCallback struct{}

func (BaseCallback) OnTrainBegin(*TrainingArguments, *TrainerState, *TrainerControl) {}
func (BaseCallback) OnStepEnd(*TrainingArguments, *TrainerState, *TrainerControl)    {}
func (BaseCallback) OnLog(*TrainingArguments, *TrainerState, *TrainerControl, map[string]float64) {
}
func (BaseCallback) OnSave(*TrainingArguments, *TrainerState, *TrainerControl)     {}
func (BaseCallback) OnTrainEnd(*TrainingArguments, *TrainerState, *TrainerControl) {}

// flowCallback decides when to log, save and stop
type flowCallback struct {
	BaseCallback
}

func (flowCallback) OnStepEnd(args *TrainingArguments, state *TrainerState, control *TrainerControl) {
	if args.LoggingSteps > 0 && state.GlobalStep%args.LoggingSteps == 0 {
		control.ShouldLog = true
	}
	if args.SaveSteps > 0 && state.GlobalStep%args.SaveSteps == 0 {
		control.ShouldSave = true
	}
	if state.GlobalStep >= state.MaxSteps {
		control.ShouldTrainingStop = true
	}
}

// callbackHandler fans events out to callbacks in registration order
type callbackHandler struct {
	callbacks []Callback
}

func (h *callbackHandler) add(cb Callback) {
	h.callbacks = append(h.callbacks, cb)
}

func (h *callbackHandler) trainBegin(args *TrainingArguments, state *TrainerState, control *TrainerControl) {
	for _, cb := range h.callbacks {
		cb.OnTrainBegin(args, state, control)
	}
}

func (h *callbackHandler) stepEnd(args *TrainingArguments, state *TrainerState, control *TrainerControl) {
	for _, cb := range h.callbacks {
		cb.OnStepEnd(args, state, control)
	}
}

func (h *callbackHandler) log(args *TrainingArguments, state *TrainerState, control *TrainerControl, logs map[string]float64) {
	for _, cb := range h.callbacks {
		cb.OnLog(args, state, control, logs)
	}
}

func (h *callbackHandler) save(args *TrainingArguments, state *TrainerState, control *TrainerControl) {
	for _, cb := range h.callbacks {
		cb.OnSave(args, state, control)
	}
}

func (h *callbackHandler) trainEnd(args *TrainingArguments, state *TrainerState, control *TrainerControl) {
	for _, cb := range h.callbacks {
		cb.OnTrainEnd(args, state, control)
	}
}
