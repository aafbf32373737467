package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xupit3r/tunebox/internal/trainer"
)

func TestPercent(t *testing.T) {
	tests := []struct {
		current, total, want int
	}{
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 66},
		{3, 3, 100},
		{5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Percent(tt.current, tt.total), "%d/%d", tt.current, tt.total)
	}
}

func TestCallback(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)
	cb := NewCallback(r)

	args := &trainer.TrainingArguments{}
	state := &trainer.TrainerState{MaxSteps: 3}
	control := &trainer.TrainerControl{}

	cb.OnTrainBegin(args, state, control)
	for step := 1; step <= 3; step++ {
		state.GlobalStep = step
		cb.OnStepEnd(args, state, control)
	}
	r.Done()

	assert.Equal(t, "__PROGRESS__:33\n__PROGRESS__:66\n__PROGRESS__:100\n__PROGRESS__:100\n", buf.String())
}

func TestParseLine(t *testing.T) {
	pct, ok := ParseLine("__PROGRESS__:42\n")
	assert.True(t, ok)
	assert.Equal(t, 42, pct)

	_, ok = ParseLine("🚀 Starting fine-tuning...")
	assert.False(t, ok)

	_, ok = ParseLine("__PROGRESS__:abc")
	assert.False(t, ok)
}
