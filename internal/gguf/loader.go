package gguf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/x448/float16"
)

// LoadFloat32 reads a tensor into memory and widens it to float32.
// The returned shape lists dimensions outermost first (row-major).
func (g *GGUFFile) LoadFloat32(name string) ([]float32, []int, error) {
	info, ok := g.Tensors[name]
	if !ok {
		return nil, nil, fmt.Errorf("tensor %s not found in GGUF file", name)
	}
	if info.Type != GGML_TYPE_F32 && info.Type != GGML_TYPE_F16 {
		return nil, nil, fmt.Errorf("tensor %s has unsupported type %s", name, info.Type)
	}

	f, err := os.Open(g.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open GGUF file: %w", err)
	}
	defer f.Close()

	raw := make([]byte, info.Size)
	if _, err := f.ReadAt(raw, g.tensorDataOffset+int64(info.Offset)); err != nil && err != io.EOF {
		return nil, nil, fmt.Errorf("failed to read tensor %s: %w", name, err)
	}

	n := int(info.Elements())
	data := make([]float32, n)
	switch info.Type {
	case GGML_TYPE_F32:
		for i := 0; i < n; i++ {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case GGML_TYPE_F16:
		for i := 0; i < n; i++ {
			data[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
	}

	return data, info.Shape(), nil
}

// Shape returns the tensor dimensions outermost first.
func (ti *TensorInfo) Shape() []int {
	shape := make([]int, len(ti.Dims))
	for i, d := range ti.Dims {
		shape[len(ti.Dims)-1-i] = int(d)
	}
	return shape
}

// GetTensorInfo returns information about a tensor without loading it
func (g *GGUFFile) GetTensorInfo(name string) (*TensorInfo, error) {
	info, ok := g.Tensors[name]
	if !ok {
		return nil, fmt.Errorf("tensor %s not found in GGUF file", name)
	}
	return info, nil
}

// ListTensors returns all tensor names in file order
func (g *GGUFFile) ListTensors() []string {
	names := make([]string, len(g.order))
	copy(names, g.order)
	return names
}

// HasTensor reports whether the file contains the named tensor
func (g *GGUFFile) HasTensor(name string) bool {
	_, ok := g.Tensors[name]
	return ok
}
