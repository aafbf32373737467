package transformer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xupit3r/tunebox/internal/device"
	"github.com/xupit3r/tunebox/internal/gguf"
	"github.com/xupit3r/tunebox/internal/logging"
)

// FileName is the weights artifact inside a model directory
const FileName = "model.gguf"

// Load reads dir/model.gguf
func Load(dir string, dev device.Device) (*Model, error) {
	path := filepath.Join(dir, FileName)
	g, err := gguf.ParseGGUF(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	cfg, err := NewConfigFromGGUF(g)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if dev == nil {
		dev = device.NewCPUDevice(0)
	}

	m := newEmptyModel(cfg, dev)
	for _, p := range m.Parameters() {
		data, shape, err := g.LoadFloat32(p.Name)
		if err != nil {
			return nil, err
		}
		if !sameShape(shape, p.Shape) {
			return nil, fmt.Errorf("tensor %s: expected shape %v, got %v", p.Name, p.Shape, shape)
		}
		p.Data = data
	}

	logging.Debugf("Loaded %s: %s (%d params)", path, cfg, m.NumParams())
	return m, nil
}

// Save writes dir/model.gguf with tensors stored as dtype (F32 or F16)
func (m *Model) Save(dir string, dtype gguf.GGMLType) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	cfg := m.config
	key := func(k string) string { return fmt.Sprintf(k, Architecture) }

	w := gguf.NewWriter()
	w.Set(gguf.KeyArchitecture, Architecture)
	w.Set(gguf.KeyFileType, uint32(dtype))
	w.Set(key(gguf.KeyContextLength), uint32(cfg.ContextLength))
	w.Set(key(gguf.KeyEmbeddingLength), uint32(cfg.HiddenDim))
	w.Set(key(gguf.KeyBlockCount), uint32(cfg.NumLayers))
	w.Set(key(gguf.KeyAttentionHeadCount), uint32(cfg.NumHeads))
	w.Set(key(gguf.KeyFFNLength), uint32(cfg.IntermediateDim))
	w.Set(key(gguf.KeyNormRMSEps), float32(cfg.RMSNormEps))
	w.Set(key(gguf.KeyVocabSize), uint32(cfg.VocabSize))

	for _, p := range m.Parameters() {
		if err := w.AddTensor(p.Name, p.Shape, dtype, p.Data); err != nil {
			return err
		}
	}

	return w.Save(filepath.Join(dir, FileName))
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
