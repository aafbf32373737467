package trainer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/apoorvam/goterminal"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/xupit3r/tunebox/internal/logging"
)

const barWidth = 30

// ProgressBarCallback redraws a single-line progress bar after every step
type ProgressBarCallback struct {
	BaseCallback
	writer *goterminal.Writer
	start  time.Time
}

// NewProgressBarCallback returns a bar writing to out
func NewProgressBarCallback(out io.Writer) *ProgressBarCallback {
	return &ProgressBarCallback{writer: goterminal.New(out)}
}

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (c *ProgressBarCallback) OnTrainBegin(args *TrainingArguments, state *TrainerState, control *TrainerControl) {
	c.start = time.Now()
	c.render(state)
}

func (c *ProgressBarCallback) OnStepEnd(args *TrainingArguments, state *TrainerState, control *TrainerControl) {
	c.render(state)
}

func (c *ProgressBarCallback) OnTrainEnd(args *TrainingArguments, state *TrainerState, control *TrainerControl) {
	c.render(state)
	c.writer.Reset()
}

func (c *ProgressBarCallback) render(state *TrainerState) {
	fmt.Fprintln(c.writer, formatBar(state.GlobalStep, state.MaxSteps, time.Since(c.start)))
	c.writer.Clear()
	c.writer.Print()
}

// formatBar renders " 40%|████████          | 4/10 [00:12<00:18, 0.33it/s]"
func formatBar(step, total int, elapsed time.Duration) string {
	frac := 0.0
	if total > 0 {
		frac = float64(step) / float64(total)
	}
	filled := int(frac * barWidth)
	bar := strings.Repeat("█", filled) + strings.Repeat(" ", barWidth-filled)

	rate := 0.0
	remaining := time.Duration(0)
	if step > 0 && elapsed > 0 {
		rate = float64(step) / elapsed.Seconds()
		remaining = time.Duration(float64(elapsed) / float64(step) * float64(total-step))
	}
	return fmt.Sprintf("%3d%%|%s| %d/%d [%s<%s, %.2fit/s]",
		int(frac*100), bar, step, total, clock(elapsed), clock(remaining), rate)
}

func clock(d time.Duration) string {
	s := int(d.Round(time.Second).Seconds())
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s/60%60, s%60)
	}
	return fmt.Sprintf("%02d:%02d", s/60, s%60)
}

// LogPrinterCallback writes every log entry through logrus
type LogPrinterCallback struct {
	BaseCallback
}

func (LogPrinterCallback) OnLog(args *TrainingArguments, state *TrainerState, control *TrainerControl, logs map[string]float64) {
	fields := logrus.Fields{"step": state.GlobalStep}
	for k, v := range logs {
		fields[k] = v
	}
	logging.WithFields(fields).Info("Training log")
}
