package system

import (
	"errors"
	"fmt"
	"runtime"
)

// RAMInfo contains information about system memory
type RAMInfo struct {
	TotalBytes     int64
	AvailableBytes int64
	UsedBytes      int64
}

// ErrInsufficientMemory is returned when a workload will not fit in RAM
var ErrInsufficientMemory = errors.New("insufficient memory")

// GetRAMInfo returns information about system RAM
func GetRAMInfo() (*RAMInfo, error) {
	info, err := getRAMInfo()
	if err != nil {
		return nil, err
	}
	info.UsedBytes = info.TotalBytes - info.AvailableBytes
	return info, nil
}

// FormatBytes formats bytes as human-readable string
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// InferenceBytes estimates resident memory for serving a float32 model
// with numParams weights.
func InferenceBytes(numParams int64) int64 {
	return numParams * 4
}

// TrainingBytes estimates resident memory for fine-tuning: weights,
// gradients and both AdamW moment buffers, all float32.
func TrainingBytes(numParams int64) int64 {
	return numParams * 4 * 4
}

// CheckAvailable returns ErrInsufficientMemory when required exceeds the
// currently available RAM.
func CheckAvailable(required int64) error {
	info, err := GetRAMInfo()
	if err != nil {
		return err
	}
	return checkFits(required, info)
}

func checkFits(required int64, info *RAMInfo) error {
	if required > info.AvailableBytes {
		return fmt.Errorf("%w: need %s, %s available", ErrInsufficientMemory,
			FormatBytes(required), FormatBytes(info.AvailableBytes))
	}
	return nil
}

// GetPlatform returns the current platform as os/arch
func GetPlatform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}
