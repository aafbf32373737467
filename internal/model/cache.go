package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// CachedModel represents a checkpoint directory stored in the cache
type CachedModel struct {
	ID           string            `json:"id"`
	Repo         string            `json:"repo"`
	Path         string            `json:"path"`
	SizeBytes    int64             `json:"size_bytes"`
	Checksums    map[string]string `json:"checksums"`
	DownloadedAt time.Time         `json:"downloaded_at"`
	LastUsed     time.Time         `json:"last_used"`
	UseCount     int               `json:"use_count"`
}

// CacheManifest tracks cached models
type CacheManifest struct {
	Version string        `json:"version"`
	Models  []CachedModel `json:"models"`
}

// CacheManager manages the model cache
type CacheManager struct {
	CacheDir       string
	MaxCacheSizeGB int

	mu           sync.Mutex
	manifest     *CacheManifest
	manifestPath string
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string, maxCacheSizeGB int) (*CacheManager, error) {
	if strings.HasPrefix(cacheDir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cacheDir = filepath.Join(home, cacheDir[1:])
	}

	// .downloading holds partial files between attempts
	if err := os.MkdirAll(filepath.Join(cacheDir, ".downloading"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	cm := &CacheManager{
		CacheDir:       cacheDir,
		MaxCacheSizeGB: maxCacheSizeGB,
		manifestPath:   filepath.Join(cacheDir, "manifest.json"),
	}

	if err := cm.loadManifest(); err != nil {
		return nil, err
	}

	return cm, nil
}

func (cm *CacheManager) loadManifest() error {
	data, err := os.ReadFile(cm.manifestPath)
	if os.IsNotExist(err) {
		cm.manifest = &CacheManifest{
			Version: "1.0",
			Models:  []CachedModel{},
		}
		return cm.saveManifest()
	}
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}

	var manifest CacheManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}

	cm.manifest = &manifest
	return nil
}

func (cm *CacheManager) saveManifest() error {
	data, err := json.MarshalIndent(cm.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	tmp := cm.manifestPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return os.Rename(tmp, cm.manifestPath)
}

// List returns a snapshot of all cached models
func (cm *CacheManager) List() []CachedModel {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	out := make([]CachedModel, len(cm.manifest.Models))
	copy(out, cm.manifest.Models)
	return out
}

func (cm *CacheManager) find(modelID string) int {
	for i := range cm.manifest.Models {
		if cm.manifest.Models[i].ID == modelID {
			return i
		}
	}
	return -1
}

// Get returns a copy of a cached model entry
func (cm *CacheManager) Get(modelID string) (*CachedModel, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	i := cm.find(modelID)
	if i < 0 {
		return nil, fmt.Errorf("%w in cache: %s", ErrModelNotFound, modelID)
	}
	m := cm.manifest.Models[i]
	return &m, nil
}

// Has checks if a model is cached
func (cm *CacheManager) Has(modelID string) bool {
	_, err := cm.Get(modelID)
	return err == nil
}

// Add records a completed checkpoint directory in the manifest
func (cm *CacheManager) Add(modelID, repo, dir string, checksums map[string]string) error {
	size, err := dirSize(dir)
	if err != nil {
		return fmt.Errorf("failed to stat model directory: %w", err)
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	now := time.Now()
	if i := cm.find(modelID); i >= 0 {
		m := &cm.manifest.Models[i]
		m.Repo = repo
		m.Path = dir
		m.SizeBytes = size
		m.Checksums = checksums
		m.LastUsed = now
		return cm.saveManifest()
	}

	cm.manifest.Models = append(cm.manifest.Models, CachedModel{
		ID:           modelID,
		Repo:         repo,
		Path:         dir,
		SizeBytes:    size,
		Checksums:    checksums,
		DownloadedAt: now,
		LastUsed:     now,
	})
	return cm.saveManifest()
}

// Remove deletes a cached model directory and its manifest entry
func (cm *CacheManager) Remove(modelID string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.removeLocked(modelID)
}

func (cm *CacheManager) removeLocked(modelID string) error {
	i := cm.find(modelID)
	if i < 0 {
		return fmt.Errorf("%w in cache: %s", ErrModelNotFound, modelID)
	}

	if err := os.RemoveAll(cm.manifest.Models[i].Path); err != nil {
		return fmt.Errorf("failed to delete model directory: %w", err)
	}

	cm.manifest.Models = append(cm.manifest.Models[:i], cm.manifest.Models[i+1:]...)
	return cm.saveManifest()
}

// UpdateLastUsed updates the last used timestamp for a model
func (cm *CacheManager) UpdateLastUsed(modelID string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	i := cm.find(modelID)
	if i < 0 {
		return fmt.Errorf("%w in cache: %s", ErrModelNotFound, modelID)
	}
	cm.manifest.Models[i].LastUsed = time.Now()
	cm.manifest.Models[i].UseCount++
	return cm.saveManifest()
}

// GetTotalSize returns the total size of cached models in bytes
func (cm *CacheManager) GetTotalSize() int64 {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	var total int64
	for _, model := range cm.manifest.Models {
		total += model.SizeBytes
	}
	return total
}

// VerifyChecksum checks every recorded file checksum of a cached model.
// A missing file fails verification.
func (cm *CacheManager) VerifyChecksum(modelID string) (bool, error) {
	cached, err := cm.Get(modelID)
	if err != nil {
		return false, err
	}

	for _, name := range RequiredFiles {
		path := filepath.Join(cached.Path, name)
		if _, err := os.Stat(path); err != nil {
			return false, nil
		}
		want := cached.Checksums[name]
		if want == "" {
			continue
		}
		computed, err := ComputeSHA256(path)
		if err != nil {
			return false, err
		}
		if computed != want {
			return false, nil
		}
	}
	return true, nil
}

// Prune removes least recently used models to stay under the size limit.
// The most recently used model is always kept.
func (cm *CacheManager) Prune() error {
	if cm.MaxCacheSizeGB <= 0 {
		return nil
	}
	maxBytes := int64(cm.MaxCacheSizeGB) * 1024 * 1024 * 1024
	return cm.pruneTo(maxBytes)
}

func (cm *CacheManager) pruneTo(maxBytes int64) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var total int64
	for _, m := range cm.manifest.Models {
		total += m.SizeBytes
	}

	for total > maxBytes && len(cm.manifest.Models) > 1 {
		oldest := 0
		for i, m := range cm.manifest.Models {
			if m.LastUsed.Before(cm.manifest.Models[oldest].LastUsed) {
				oldest = i
			}
		}
		victim := cm.manifest.Models[oldest]
		if err := cm.removeLocked(victim.ID); err != nil {
			return err
		}
		total -= victim.SizeBytes
	}
	return nil
}

// Clear removes all cached models
func (cm *CacheManager) Clear() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	for _, model := range cm.manifest.Models {
		if err := os.RemoveAll(model.Path); err != nil {
			return fmt.Errorf("failed to delete %s: %w", model.Path, err)
		}
	}

	cm.manifest.Models = []CachedModel{}
	return cm.saveManifest()
}

func cacheKey(modelID string) string {
	return "models--" + strings.ReplaceAll(modelID, "/", "--")
}

// GetModelPath returns the checkpoint directory for a model
func (cm *CacheManager) GetModelPath(modelID string) string {
	return filepath.Join(cm.CacheDir, cacheKey(modelID))
}

// GetDownloadPath returns the partial download path for one model file
func (cm *CacheManager) GetDownloadPath(modelID, file string) string {
	return filepath.Join(cm.CacheDir, ".downloading", cacheKey(modelID)+"--"+file+".part")
}

// ComputeSHA256 computes the SHA256 checksum of a file
func ComputeSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
