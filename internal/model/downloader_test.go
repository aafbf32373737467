package model

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeHub struct {
	mu       sync.Mutex
	files    map[string][]byte
	requests []*http.Request
}

func newFakeHub(repo string) *fakeHub {
	return &fakeHub{files: map[string][]byte{
		"/" + repo + "/resolve/main/model.gguf":     bytes.Repeat([]byte("m"), 4096),
		"/" + repo + "/resolve/main/tokenizer.gguf": []byte("tokenizer-bytes"),
	}}
}

func (h *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.requests = append(h.requests, r.Clone(context.Background()))
	data, ok := h.files[r.URL.Path]
	h.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, filepath.Base(r.URL.Path), time.Time{}, bytes.NewReader(data))
}

func newTestDownloader(t *testing.T, hub http.Handler) (*Downloader, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	cm, err := NewCacheManager(t.TempDir(), 10)
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	return NewDownloader(cm, srv.URL, "secret"), srv
}

func TestBuildURL(t *testing.T) {
	got := BuildURL("https://huggingface.co/", "org/name", "model.gguf")
	want := "https://huggingface.co/org/name/resolve/main/model.gguf"
	if got != want {
		t.Errorf("BuildURL = %s; want %s", got, want)
	}
}

func TestDownload(t *testing.T) {
	hub := newFakeHub("org/name")
	d, _ := newTestDownloader(t, hub)

	var reported []string
	d.ProgressFunc = func(file string, downloaded, total int64, speed float64) {
		reported = append(reported, file)
		if downloaded > total && total >= 0 {
			t.Errorf("%s: downloaded %d exceeds total %d", file, downloaded, total)
		}
	}

	dir, err := d.Download(context.Background(), &ModelInfo{ID: "org/name", Repo: "org/name"})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	for _, name := range RequiredFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("Missing %s: %v", name, err)
		}
		if !bytes.Equal(data, hub.files["/org/name/resolve/main/"+name]) {
			t.Errorf("%s content mismatch", name)
		}
	}

	for _, r := range hub.requests {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Expected bearer token, got %q", got)
		}
	}

	cached, err := d.CacheManager.Get("org/name")
	if err != nil {
		t.Fatalf("Model not recorded in manifest: %v", err)
	}
	if len(cached.Checksums) != len(RequiredFiles) {
		t.Errorf("Expected %d checksums, got %d", len(RequiredFiles), len(cached.Checksums))
	}
	if len(reported) < len(RequiredFiles) {
		t.Errorf("Expected progress reports for every file, got %v", reported)
	}

	// cached and valid: no further requests
	before := len(hub.requests)
	if _, err := d.Download(context.Background(), &ModelInfo{ID: "org/name", Repo: "org/name"}); err != nil {
		t.Fatalf("Second download failed: %v", err)
	}
	if len(hub.requests) != before {
		t.Error("Cached model should not be downloaded again")
	}
}

func TestDownload_Resume(t *testing.T) {
	hub := newFakeHub("org/name")
	d, _ := newTestDownloader(t, hub)

	full := hub.files["/org/name/resolve/main/model.gguf"]
	part := d.CacheManager.GetDownloadPath("org/name", "model.gguf")
	if err := os.WriteFile(part, full[:1000], 0644); err != nil {
		t.Fatal(err)
	}

	dir, err := d.Download(context.Background(), &ModelInfo{ID: "org/name", Repo: "org/name"})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	if got := hub.requests[0].Header.Get("Range"); got != "bytes=1000-" {
		t.Errorf("Expected resume range, got %q", got)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "model.gguf"))
	if !bytes.Equal(data, full) {
		t.Error("Resumed file does not match source")
	}
	if _, err := os.Stat(part); !os.IsNotExist(err) {
		t.Error("Partial file should be moved into place")
	}
}

func TestDownload_ChecksumMismatch(t *testing.T) {
	hub := newFakeHub("org/name")
	d, _ := newTestDownloader(t, hub)

	model := &ModelInfo{
		ID:        "org/name",
		Repo:      "org/name",
		Checksums: map[string]string{"model.gguf": strings.Repeat("0", 64)},
	}
	_, err := d.Download(context.Background(), model)
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Fatalf("Expected checksum mismatch, got %v", err)
	}
	if d.CacheManager.Has("org/name") {
		t.Error("Failed download should not be recorded")
	}
}

func TestDownload_NotFound(t *testing.T) {
	d, _ := newTestDownloader(t, newFakeHub("org/name"))

	_, err := d.Download(context.Background(), &ModelInfo{ID: "org/other", Repo: "org/other"})
	if err == nil || !strings.Contains(err.Error(), "status 404") {
		t.Fatalf("Expected 404 error, got %v", err)
	}
}

func TestDownload_Cancelled(t *testing.T) {
	d, _ := newTestDownloader(t, newFakeHub("org/name"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Download(ctx, &ModelInfo{ID: "org/name", Repo: "org/name"}); err == nil {
		t.Fatal("Expected error for cancelled context")
	}
}

func TestCleanupFailedDownloads(t *testing.T) {
	d, _ := newTestDownloader(t, newFakeHub("org/name"))

	stale := d.CacheManager.GetDownloadPath("old", "model.gguf")
	fresh := d.CacheManager.GetDownloadPath("new", "model.gguf")
	os.WriteFile(stale, []byte("x"), 0644)
	os.WriteFile(fresh, []byte("x"), 0644)
	old := time.Now().Add(-48 * time.Hour)
	os.Chtimes(stale, old, old)

	if err := d.CleanupFailedDownloads(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("Stale partial download should be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("Fresh partial download should be kept")
	}
}
