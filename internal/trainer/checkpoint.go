package trainer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/xupit3r/tunebox/internal/logging"
	"github.com/xupit3r/tunebox/internal/tokenizer"
	"github.com/xupit3r/tunebox/internal/transformer"
)

const (
	// CheckpointPrefix names checkpoint directories under the output dir
	CheckpointPrefix = "checkpoint-"
	// StateFileName holds the serialized TrainerState
	StateFileName = "training_state.json"
)

// CheckpointDir returns the checkpoint directory for step
func CheckpointDir(outputDir string, step int) string {
	return filepath.Join(outputDir, fmt.Sprintf("%s%d", CheckpointPrefix, step))
}

// SaveState writes state as indented JSON into dir
func SaveState(dir string, state *TrainerState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding trainer state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, StateFileName), data, 0644); err != nil {
		return fmt.Errorf("writing trainer state: %w", err)
	}
	return nil
}

// LoadState reads a TrainerState previously written by SaveState
func LoadState(dir string) (*TrainerState, error) {
	data, err := os.ReadFile(filepath.Join(dir, StateFileName))
	if err != nil {
		return nil, fmt.Errorf("reading trainer state: %w", err)
	}
	var state TrainerState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decoding trainer state: %w", err)
	}
	return &state, nil
}

func saveCheckpoint(dir string, model *transformer.Model, tok *tokenizer.Tokenizer, state *TrainerState, args *TrainingArguments) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}
	if err := model.Save(dir, args.SaveDType); err != nil {
		return err
	}
	if tok != nil {
		if err := tok.Save(dir); err != nil {
			return err
		}
	}
	return SaveState(dir, state)
}

// listCheckpoints returns checkpoint directories sorted by step, oldest first
func listCheckpoints(outputDir string) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type ckpt struct {
		path string
		step int
	}
	var found []ckpt
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), CheckpointPrefix) {
			continue
		}
		step, err := strconv.Atoi(strings.TrimPrefix(e.Name(), CheckpointPrefix))
		if err != nil {
			continue
		}
		found = append(found, ckpt{path: filepath.Join(outputDir, e.Name()), step: step})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].step < found[j].step })

	paths := make([]string, len(found))
	for i, c := range found {
		paths[i] = c.path
	}
	return paths, nil
}

// rotateCheckpoints deletes the oldest checkpoints beyond limit
func rotateCheckpoints(outputDir string, limit int) error {
	if limit <= 0 {
		return nil
	}
	paths, err := listCheckpoints(outputDir)
	if err != nil {
		return fmt.Errorf("listing checkpoints: %w", err)
	}
	for len(paths) > limit {
		logging.Debugf("Deleting older checkpoint %s due to save_total_limit", paths[0])
		if err := os.RemoveAll(paths[0]); err != nil {
			return fmt.Errorf("removing checkpoint %s: %w", paths[0], err)
		}
		paths = paths[1:]
	}
	return nil
}
