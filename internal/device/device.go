package device

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sys/cpu"
)

// Device represents a compute device used for matrix products
type Device interface {
	// Type returns the device type
	Type() DeviceType

	// Name returns a human-readable device name
	Name() string

	// Workers returns how many goroutines a parallel kernel may use
	Workers() int

	// Features lists the instruction set extensions the device exposes
	Features() []string

	// ParallelFor splits [0, n) into contiguous chunks and runs fn on each
	// chunk concurrently, returning when all chunks are done.
	ParallelFor(n int, fn func(start, end int))
}

// DeviceType represents the type of compute device
type DeviceType int

const (
	DeviceTypeCPU DeviceType = iota
	DeviceTypeAccelerator
)

func (dt DeviceType) String() string {
	switch dt {
	case DeviceTypeCPU:
		return "cpu"
	case DeviceTypeAccelerator:
		return "accelerator"
	default:
		return "unknown"
	}
}

// ErrNoAccelerator is returned when an accelerator is requested but none is available
var ErrNoAccelerator = errors.New("no accelerator backend available")

// Backend constructs an accelerator device, failing when the hardware is absent.
type Backend func(workers int) (Device, error)

var (
	backendsMu sync.Mutex
	backends   []Backend
)

// RegisterBackend adds an accelerator backend probed by Select.
func RegisterBackend(b Backend) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends = append(backends, b)
}

func probeAccelerator(workers int) (Device, error) {
	backendsMu.Lock()
	defer backendsMu.Unlock()

	var errs []string
	for _, b := range backends {
		dev, err := b(workers)
		if err == nil {
			return dev, nil
		}
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoAccelerator, strings.Join(errs, "; "))
	}
	return nil, ErrNoAccelerator
}

// Select returns a device for the given preference ("auto", "cpu" or
// "accelerator"). "auto" prefers an accelerator and falls back to the CPU.
// workers <= 0 means GOMAXPROCS.
func Select(preference string, workers int) (Device, error) {
	switch preference {
	case "", "auto":
		if dev, err := probeAccelerator(workers); err == nil {
			return dev, nil
		}
		return NewCPUDevice(workers), nil
	case "cpu":
		return NewCPUDevice(workers), nil
	case "accelerator":
		return probeAccelerator(workers)
	default:
		return nil, fmt.Errorf("unknown device preference %q (want auto, cpu or accelerator)", preference)
	}
}

// CPUDevice runs kernels on goroutines
type CPUDevice struct {
	name    string
	workers int
}

// NewCPUDevice creates a new CPU device
func NewCPUDevice(workers int) *CPUDevice {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &CPUDevice{
		name:    fmt.Sprintf("CPU (%s)", runtime.GOARCH),
		workers: workers,
	}
}

func (d *CPUDevice) Type() DeviceType { return DeviceTypeCPU }
func (d *CPUDevice) Name() string     { return d.name }
func (d *CPUDevice) Workers() int     { return d.workers }

// Features reports SIMD extensions detected on this CPU
func (d *CPUDevice) Features() []string {
	var feats []string
	switch runtime.GOARCH {
	case "amd64", "386":
		add := func(ok bool, name string) {
			if ok {
				feats = append(feats, name)
			}
		}
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		if cpu.ARM64.HasASIMD {
			feats = append(feats, "neon")
		}
		if cpu.ARM64.HasFPHP {
			feats = append(feats, "fp16")
		}
		if cpu.ARM64.HasSVE {
			feats = append(feats, "sve")
		}
	}
	return feats
}

// ParallelFor splits the range across the device's workers
func (d *CPUDevice) ParallelFor(n int, fn func(start, end int)) {
	workers := d.workers
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		if n > 0 {
			fn(0, n)
		}
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// Describe returns a one-line summary used in logs
func Describe(d Device) string {
	feats := d.Features()
	if len(feats) == 0 {
		return fmt.Sprintf("%s, %d workers", d.Name(), d.Workers())
	}
	return fmt.Sprintf("%s, %d workers, %s", d.Name(), d.Workers(), strings.Join(feats, "+"))
}
