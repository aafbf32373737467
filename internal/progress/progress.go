// Package progress implements the line protocol fine-tuning uses to
// report completion to a parent process: one "__PROGRESS__:<percent>"
// line on stdout per training step.
package progress

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/xupit3r/tunebox/internal/trainer"
)

// Prefix starts every progress line
const Prefix = "__PROGRESS__:"

// Reporter writes progress lines
type Reporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewReporter writes to out, or stdout when out is nil
func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{out: out}
}

// Percent computes the truncated completion percentage. It returns 0 for
// a non-positive total.
func Percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	return int(float64(current) / float64(total) * 100)
}

// Report prints the progress line for current of total steps
func (r *Reporter) Report(current, total int) {
	r.print(Percent(current, total))
}

// Done prints the final 100% line
func (r *Reporter) Done() {
	r.print(100)
}

func (r *Reporter) print(pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s%d\n", Prefix, pct)
	if f, ok := r.out.(interface{ Sync() error }); ok {
		f.Sync()
	}
}

// Callback reports trainer progress after every step
type Callback struct {
	trainer.BaseCallback
	reporter *Reporter
	total    int
}

// NewCallback returns a trainer callback printing through r
func NewCallback(r *Reporter) *Callback {
	return &Callback{reporter: r}
}

func (c *Callback) OnTrainBegin(args *trainer.TrainingArguments, state *trainer.TrainerState, control *trainer.TrainerControl) {
	c.total = state.MaxSteps
}

func (c *Callback) OnStepEnd(args *trainer.TrainingArguments, state *trainer.TrainerState, control *trainer.TrainerControl) {
	c.reporter.Report(state.GlobalStep, c.total)
}

// ParseLine extracts the percentage from a progress line. ok is false
// for any other line.
func ParseLine(line string) (pct int, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(line), Prefix)
	if !found {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, false
	}
	return v, true
}
