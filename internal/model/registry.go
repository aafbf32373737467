package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// RequiredFiles are fetched for every hub checkpoint
var RequiredFiles = []string{"model.gguf", "tokenizer.gguf"}

// ErrModelNotFound is returned when a reference names no known model
var ErrModelNotFound = errors.New("model not found")

// ModelInfo contains metadata about a hub checkpoint
type ModelInfo struct {
	ID            string            // Alias or repository id
	Name          string            // Display name
	Repo          string            // Hub repository path (org/name)
	NumParams     int64             // Scalar parameter count
	ContextWindow int               // Max context tokens
	Checksums     map[string]string // SHA-256 per file, when published
	Recommended   bool
	Description   string
	Tags          []string
}

// Registry lists checkpoints addressable by alias
var Registry = []ModelInfo{
	{
		ID:            "tunegpt-tiny",
		Name:          "TuneGPT Tiny",
		Repo:          "xupit3r/tunegpt-tiny",
		NumParams:     890_000,
		ContextWindow: 512,
		Recommended:   true,
		Description:   "Byte-level base model for quick fine-tuning experiments",
		Tags:          []string{"base", "byte-level", "fast"},
	},
	{
		ID:            "tunegpt-small",
		Name:          "TuneGPT Small",
		Repo:          "xupit3r/tunegpt-small",
		NumParams:     12_600_000,
		ContextWindow: 1024,
		Recommended:   true,
		Description:   "Larger base model with a BPE vocabulary",
		Tags:          []string{"base", "bpe"},
	},
	{
		ID:            "tunegpt-small-instruct",
		Name:          "TuneGPT Small Instruct",
		Repo:          "xupit3r/tunegpt-small-instruct",
		NumParams:     12_600_000,
		ContextWindow: 1024,
		Description:   "Small model tuned on instruction/response records",
		Tags:          []string{"instruct", "chat", "bpe"},
	},
}

// GetModelByID returns a registry entry by alias
func GetModelByID(id string) (*ModelInfo, error) {
	for _, model := range Registry {
		if model.ID == id {
			m := model
			return &m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrModelNotFound, id)
}

// IsRepoID reports whether ref looks like an org/name repository id
func IsRepoID(ref string) bool {
	org, name, ok := strings.Cut(ref, "/")
	if !ok || org == "" || name == "" || strings.Contains(name, "/") {
		return false
	}
	return !strings.HasPrefix(org, ".") && !strings.ContainsAny(ref, `\: `)
}

// Lookup maps a reference to model info: a registry alias, or an
// org/name repository not listed in the registry.
func Lookup(ref string) (*ModelInfo, error) {
	if info, err := GetModelByID(ref); err == nil {
		return info, nil
	}
	for _, model := range Registry {
		if model.Repo == ref {
			m := model
			return &m, nil
		}
	}
	if IsRepoID(ref) {
		return &ModelInfo{ID: ref, Name: ref, Repo: ref}, nil
	}
	return nil, fmt.Errorf("%w: %q is not a local directory, registry alias or org/name repository", ErrModelNotFound, ref)
}

// FilterByTag filters models by a specific tag
func FilterByTag(models []ModelInfo, tag string) []ModelInfo {
	var filtered []ModelInfo

	for _, model := range models {
		for _, t := range model.Tags {
			if strings.EqualFold(t, tag) {
				filtered = append(filtered, model)
				break
			}
		}
	}

	return filtered
}

// FilterRecommended returns only recommended models
func FilterRecommended(models []ModelInfo) []ModelInfo {
	var filtered []ModelInfo

	for _, model := range models {
		if model.Recommended {
			filtered = append(filtered, model)
		}
	}

	return filtered
}

// SortByParams sorts models by parameter count (descending)
func SortByParams(models []ModelInfo) []ModelInfo {
	sorted := make([]ModelInfo, len(models))
	copy(sorted, models)

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].NumParams > sorted[j].NumParams
	})

	return sorted
}

// ListAll returns all models in the registry
func ListAll() []ModelInfo {
	return Registry
}
