package model

import (
	"errors"
	"testing"
)

func TestGetModelByID(t *testing.T) {
	tests := []struct {
		id        string
		shouldErr bool
	}{
		{"tunegpt-tiny", false},
		{"tunegpt-small", false},
		{"nonexistent-model", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			model, err := GetModelByID(tt.id)
			if tt.shouldErr {
				if !errors.Is(err, ErrModelNotFound) {
					t.Errorf("Expected ErrModelNotFound for ID %s, got %v", tt.id, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error for ID %s: %v", tt.id, err)
			}
			if model.ID != tt.id {
				t.Errorf("Expected ID %s, got %s", tt.id, model.ID)
			}
		})
	}
}

func TestIsRepoID(t *testing.T) {
	tests := []struct {
		ref  string
		want bool
	}{
		{"org/name", true},
		{"xupit3r/tunegpt-tiny", true},
		{"huggingFaceBaseModel", false},
		{"/path/to/model", false},
		{"./local/dir", false},
		{"a/b/c", false},
		{"org/", false},
		{"C:/models", false},
	}

	for _, tt := range tests {
		if got := IsRepoID(tt.ref); got != tt.want {
			t.Errorf("IsRepoID(%q) = %v; want %v", tt.ref, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	info, err := Lookup("tunegpt-tiny")
	if err != nil {
		t.Fatalf("Lookup alias failed: %v", err)
	}
	if info.Repo != "xupit3r/tunegpt-tiny" {
		t.Errorf("Unexpected repo %s", info.Repo)
	}

	info, err = Lookup("xupit3r/tunegpt-small")
	if err != nil || info.ID != "tunegpt-small" {
		t.Errorf("Registry repo should map to its alias, got %+v, %v", info, err)
	}

	info, err = Lookup("someone/custom")
	if err != nil {
		t.Fatalf("Lookup repo failed: %v", err)
	}
	if info.ID != "someone/custom" || info.Repo != "someone/custom" {
		t.Errorf("Unexpected info %+v", info)
	}

	if _, err := Lookup("huggingFaceBaseModel"); !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got %v", err)
	}
}

func TestFilterByTag(t *testing.T) {
	models := ListAll()

	base := FilterByTag(models, "BASE")
	if len(base) != 2 {
		t.Errorf("Expected 2 base models, got %d", len(base))
	}

	if len(FilterByTag(models, "missing")) != 0 {
		t.Error("Expected no models for unknown tag")
	}
}

func TestFilterRecommended(t *testing.T) {
	recommended := FilterRecommended(ListAll())

	if len(recommended) == 0 {
		t.Error("Expected at least one recommended model")
	}

	for _, m := range recommended {
		if !m.Recommended {
			t.Errorf("Model %s in recommended list but not marked as recommended", m.ID)
		}
	}
}

func TestSortByParams(t *testing.T) {
	models := ListAll()
	sorted := SortByParams(models)

	if len(sorted) != len(models) {
		t.Errorf("Expected %d models, got %d after sorting", len(models), len(sorted))
	}

	for i := 1; i < len(sorted); i++ {
		if sorted[i].NumParams > sorted[i-1].NumParams {
			t.Errorf("Models not sorted: %s before %s", sorted[i-1].ID, sorted[i].ID)
		}
	}
}

func TestListAll(t *testing.T) {
	for _, m := range ListAll() {
		if m.ID == "" || m.Name == "" || m.Repo == "" {
			t.Errorf("Model %+v missing identity fields", m)
		}
		if m.NumParams <= 0 {
			t.Errorf("Model %s has invalid parameter count: %d", m.ID, m.NumParams)
		}
		if m.ContextWindow <= 0 {
			t.Errorf("Model %s has invalid context window: %d", m.ID, m.ContextWindow)
		}
	}
}

func TestSelector(t *testing.T) {
	// tiny needs ~14 MB to train, small ~200 MB
	sel := NewSelectorWithRAM(100 << 20)
	best, err := sel.SelectBest()
	if err != nil {
		t.Fatalf("SelectBest failed: %v", err)
	}
	if best.ID != "tunegpt-tiny" {
		t.Errorf("Expected tunegpt-tiny, got %s", best.ID)
	}

	best, _ = NewSelectorWithRAM(8 << 30).SelectBest()
	if best.ID != "tunegpt-small" {
		t.Errorf("Expected tunegpt-small, got %s", best.ID)
	}

	if _, err := NewSelectorWithRAM(1 << 20).SelectBest(); err == nil {
		t.Error("Expected error when nothing fits")
	}
}
