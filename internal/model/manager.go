package model

import (
	"context"
	"fmt"
	"os"

	"github.com/xupit3r/tunebox/internal/logging"
)

// Options configures a Manager
type Options struct {
	CacheDir       string
	MaxCacheSizeGB int
	Endpoint       string
	Token          string
}

// Manager resolves model references to local checkpoint directories
type Manager struct {
	Cache      *CacheManager
	Downloader *Downloader

	selector *Selector
}

// NewManager creates a new model manager
func NewManager(opts Options) (*Manager, error) {
	cache, err := NewCacheManager(opts.CacheDir, opts.MaxCacheSizeGB)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache manager: %w", err)
	}

	return &Manager{
		Cache:      cache,
		Downloader: NewDownloader(cache, opts.Endpoint, opts.Token),
	}, nil
}

// Resolve returns a local directory for ref. Existing directories are
// used as-is; "auto" picks the best registry model for this machine;
// anything else is looked up as an alias or org/name repository and
// downloaded into the cache when missing.
func (m *Manager) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty model reference")
	}
	if info, err := os.Stat(ref); err == nil && info.IsDir() {
		return ref, nil
	}

	model, err := m.lookup(ref)
	if err != nil {
		return "", err
	}
	return m.EnsureModel(ctx, model)
}

func (m *Manager) lookup(ref string) (*ModelInfo, error) {
	if ref != "auto" {
		return Lookup(ref)
	}
	if m.selector == nil {
		sel, err := NewSelector()
		if err != nil {
			return nil, err
		}
		m.selector = sel
	}
	return m.selector.SelectBest()
}

// EnsureModel makes sure model is cached and valid, downloading it if
// needed, and returns its directory.
func (m *Manager) EnsureModel(ctx context.Context, model *ModelInfo) (string, error) {
	if m.Cache.Has(model.ID) {
		valid, err := m.Cache.VerifyChecksum(model.ID)
		if err != nil {
			return "", fmt.Errorf("failed to verify model: %w", err)
		}
		if valid {
			if err := m.Cache.UpdateLastUsed(model.ID); err != nil {
				return "", err
			}
			return m.Cache.GetModelPath(model.ID), nil
		}
		logging.Warnf("Cached copy of %s failed verification, downloading again", model.ID)
	}

	dir, err := m.Downloader.Download(ctx, model)
	if err != nil {
		return "", err
	}
	if err := m.Cache.UpdateLastUsed(model.ID); err != nil {
		return "", err
	}
	if err := m.Cache.Prune(); err != nil {
		logging.Warnf("Cache prune failed: %v", err)
	}
	return dir, nil
}

// SetSelector overrides the RAM-based selector used for "auto"
func (m *Manager) SetSelector(s *Selector) {
	m.selector = s
}
