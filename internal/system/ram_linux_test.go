package system

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadMeminfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meminfo")
	content := "MemTotal:       16384 kB\nMemFree:         1024 kB\nMemAvailable:    8192 kB\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	total, available, err := readMeminfo(path)
	if err != nil {
		t.Fatalf("readMeminfo failed: %v", err)
	}
	if total != 16384*1024 {
		t.Errorf("total = %d; want %d", total, 16384*1024)
	}
	if available != 8192*1024 {
		t.Errorf("available = %d; want %d", available, 8192*1024)
	}
}

func TestReadMeminfo_NoAvailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meminfo")
	if err := os.WriteFile(path, []byte("MemTotal: 16384 kB\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := readMeminfo(path); err == nil {
		t.Error("Expected error without MemAvailable")
	}
}
