package tui

import (
	"strings"

	"github.com/xupit3r/tunebox/internal/progress"
)

// Fine-tuning status texts
const (
	StatusWaiting   = "Waiting to start fine-tuning..."
	StatusStarting  = "Starting fine-tuning..."
	StatusComplete  = "Fine-tuning complete!"
	CompleteMarker  = "🎉 Fine-tuning complete"
	StatusFailedFmt = "Fine-tuning failed: %v"
)

// fineTuneStatus is what the fine-tune view shows about a running job
type fineTuneStatus struct {
	Text     string
	Progress float64 // 0..1
	Running  bool
}

var keywordStatus = []struct {
	keyword  string
	text     string
	progress float64
}{
	{"downloading model", "Downloading model...", 0.2},
	{"preparing data", "Preparing data...", 0.4},
	{"training model", "Training the model...", 0.7},
	{"saving model", "Saving the model...", 0.9},
	{"epoch", "Fine-tuning in progress...", -1},
}

// applyLine updates the status from one line of subprocess output
func applyLine(s fineTuneStatus, line string) fineTuneStatus {
	if strings.Contains(line, progress.Prefix) {
		if pct, ok := progress.ParseLine(line[strings.Index(line, progress.Prefix):]); ok {
			s.Progress = float64(pct) / 100
		}
	}
	for _, k := range keywordStatus {
		if strings.Contains(line, k.keyword) {
			s.Text = k.text
			if k.progress >= 0 {
				s.Progress = k.progress
			}
		}
	}
	if strings.Contains(line, CompleteMarker) {
		s.Text = StatusComplete
		s.Running = false
		s.Progress = 1
	}
	return s
}
