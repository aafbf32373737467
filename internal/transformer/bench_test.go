package transformer

import (
	"testing"

	"github.com/xupit3r/tunebox/internal/device"
)

func benchModel(b *testing.B) *Model {
	b.Helper()
	cfg := DefaultConfig(257)
	cfg.ContextLength = 128
	m, err := NewModel(cfg, 1, device.NewCPUDevice(0))
	if err != nil {
		b.Fatal(err)
	}
	return m
}

func benchBatch(batchSize, seqLen int) *Batch {
	batch := &Batch{}
	for i := 0; i < batchSize; i++ {
		ids := make([]int, seqLen)
		mask := make([]int, seqLen)
		for j := range ids {
			ids[j] = (i*31 + j*7) % 256
			mask[j] = 1
		}
		batch.InputIDs = append(batch.InputIDs, ids)
		batch.AttentionMask = append(batch.AttentionMask, mask)
		batch.Labels = append(batch.Labels, ids)
	}
	return batch
}

// BenchmarkForwardBackward measures one training step's compute
func BenchmarkForwardBackward(b *testing.B) {
	m := benchModel(b)
	batch := benchBatch(2, 128)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.ZeroGrad()
		if _, err := m.ForwardBackward(batch); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkNextLogits measures one decoding step over a 64 token prefix
func BenchmarkNextLogits(b *testing.B) {
	m := benchModel(b)
	tokens := benchBatch(1, 64).InputIDs[0]

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.NextLogits(tokens); err != nil {
			b.Fatal(err)
		}
	}
}
