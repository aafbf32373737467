package model

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xupit3r/tunebox/internal/logging"
)

// DefaultEndpoint is the hub queried when none is configured
const DefaultEndpoint = "https://huggingface.co"

// ProgressFunc is called during download to report progress
type ProgressFunc func(file string, downloaded, total int64, speed float64)

// Downloader fetches checkpoint files from the hub
type Downloader struct {
	CacheManager *CacheManager
	Client       *http.Client
	Endpoint     string
	Token        string
	ProgressFunc ProgressFunc
}

// NewDownloader creates a new downloader
func NewDownloader(cacheManager *CacheManager, endpoint, token string) *Downloader {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Downloader{
		CacheManager: cacheManager,
		Client: &http.Client{
			Timeout: 0, // No timeout for large downloads
		},
		Endpoint: strings.TrimRight(endpoint, "/"),
		Token:    token,
	}
}

// Download fetches every required file of model into its cache
// directory and records it in the manifest. It returns the directory.
func (d *Downloader) Download(ctx context.Context, model *ModelInfo) (string, error) {
	if d.CacheManager.Has(model.ID) {
		valid, err := d.CacheManager.VerifyChecksum(model.ID)
		if err == nil && valid {
			return d.CacheManager.GetModelPath(model.ID), nil
		}
		if err := d.CacheManager.Remove(model.ID); err != nil {
			return "", fmt.Errorf("failed to remove invalid cached model: %w", err)
		}
	}

	dir := d.CacheManager.GetModelPath(model.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}

	checksums := make(map[string]string, len(RequiredFiles))
	for _, file := range RequiredFiles {
		url := BuildURL(d.Endpoint, model.Repo, file)
		logging.WithFields(logrus.Fields{"repo": model.Repo, "file": file}).Info("Downloading")

		sum, err := d.downloadFile(ctx, url, file, d.CacheManager.GetDownloadPath(model.ID, file),
			filepath.Join(dir, file), model.Checksums[file])
		if err != nil {
			return "", fmt.Errorf("downloading %s from %s: %w", file, model.Repo, err)
		}
		checksums[file] = sum
	}

	if err := d.CacheManager.Add(model.ID, model.Repo, dir, checksums); err != nil {
		return "", fmt.Errorf("failed to update cache manifest: %w", err)
	}
	return dir, nil
}

// downloadFile resumes tempPath when present, verifies the optional
// checksum and moves the result to finalPath. It returns the SHA-256.
func (d *Downloader) downloadFile(ctx context.Context, url, name, tempPath, finalPath, wantSHA string) (string, error) {
	var offset int64
	if info, err := os.Stat(tempPath); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	if d.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.Token)
	}

	resp, err := d.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// server ignored the range; start over
		offset = 0
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		// partial file is already complete
		resp.Body.Close()
		return d.finish(tempPath, finalPath, wantSHA)
	default:
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	totalSize := resp.ContentLength
	if totalSize >= 0 {
		totalSize += offset
	}

	flag := os.O_CREATE | os.O_WRONLY
	if offset > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}

	file, err := os.OpenFile(tempPath, flag, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open temp file: %w", err)
	}

	if err := d.downloadWithProgress(resp.Body, file, name, offset, totalSize); err != nil {
		file.Close()
		return "", fmt.Errorf("download failed: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", err
	}

	return d.finish(tempPath, finalPath, wantSHA)
}

func (d *Downloader) finish(tempPath, finalPath, wantSHA string) (string, error) {
	computed, err := ComputeSHA256(tempPath)
	if err != nil {
		return "", fmt.Errorf("failed to compute checksum: %w", err)
	}
	if wantSHA != "" && computed != wantSHA {
		os.Remove(tempPath)
		return "", fmt.Errorf("checksum mismatch: expected %s, got %s", wantSHA, computed)
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", fmt.Errorf("failed to move file to final location: %w", err)
	}
	return computed, nil
}

func (d *Downloader) downloadWithProgress(src io.Reader, dst io.Writer, name string, offset, total int64) error {
	buf := make([]byte, 32*1024)
	downloaded := offset
	startTime := time.Now()
	lastUpdate := time.Now()

	report := func() {
		if d.ProgressFunc == nil {
			return
		}
		elapsed := time.Since(startTime).Seconds()
		speed := 0.0
		if elapsed > 0 {
			speed = float64(downloaded-offset) / elapsed
		}
		d.ProgressFunc(name, downloaded, total, speed)
	}

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			downloaded += int64(n)

			if time.Since(lastUpdate) > 500*time.Millisecond {
				report()
				lastUpdate = time.Now()
			}
		}

		if err == io.EOF {
			report()
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// BuildURL builds the download URL for one repository file
func BuildURL(endpoint, repo, file string) string {
	return fmt.Sprintf("%s/%s/resolve/main/%s", strings.TrimRight(endpoint, "/"), repo, file)
}

// CleanupFailedDownloads removes partial downloads older than 24 hours
func (d *Downloader) CleanupFailedDownloads() error {
	downloadDir := filepath.Join(d.CacheManager.CacheDir, ".downloading")

	entries, err := os.ReadDir(downloadDir)
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-24 * time.Hour)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoff) {
			os.Remove(filepath.Join(downloadDir, entry.Name()))
		}
	}

	return nil
}
