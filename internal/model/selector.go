package model

import (
	"fmt"

	"github.com/xupit3r/tunebox/internal/system"
)

// Selector picks registry models that fit the machine's memory
type Selector struct {
	availableRAM int64
}

// NewSelector probes available RAM
func NewSelector() (*Selector, error) {
	info, err := system.GetRAMInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to determine available RAM: %w", err)
	}
	return NewSelectorWithRAM(info.AvailableBytes), nil
}

// NewSelectorWithRAM uses a fixed RAM budget
func NewSelectorWithRAM(availableBytes int64) *Selector {
	return &Selector{availableRAM: availableBytes}
}

// CanFit reports whether the model can be fine-tuned within available RAM
func (s *Selector) CanFit(model *ModelInfo) bool {
	return system.TrainingBytes(model.NumParams) <= s.availableRAM
}

// SelectBest picks the largest recommended model that fits
func (s *Selector) SelectBest() (*ModelInfo, error) {
	var candidates []ModelInfo
	for _, m := range Registry {
		if s.CanFit(&m) {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no registry model fits in %s of RAM", system.FormatBytes(s.availableRAM))
	}

	if recommended := FilterRecommended(candidates); len(recommended) > 0 {
		candidates = recommended
	}

	sorted := SortByParams(candidates)
	return &sorted[0], nil
}

// AvailableRAM returns the RAM budget in bytes
func (s *Selector) AvailableRAM() int64 {
	return s.availableRAM
}
