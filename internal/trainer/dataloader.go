package trainer

import (
	"context"
	"math/rand"

	"github.com/xupit3r/tunebox/internal/dataset"
	"github.com/xupit3r/tunebox/internal/transformer"
)

// dataLoader yields shuffled, collated batches
type dataLoader struct {
	examples  []dataset.Example
	collator  dataset.CausalLMCollator
	batchSize int
	workers   int
	rng       *rand.Rand
}

func newDataLoader(examples []dataset.Example, collator dataset.CausalLMCollator, batchSize, workers int, seed int64) *dataLoader {
	return &dataLoader{
		examples:  examples,
		collator:  collator,
		batchSize: batchSize,
		workers:   workers,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// Len is the number of batches per epoch; the last batch may be short
func (d *dataLoader) Len() int {
	return (len(d.examples) + d.batchSize - 1) / d.batchSize
}

func (d *dataLoader) epochBatches() [][]dataset.Example {
	order := d.rng.Perm(len(d.examples))
	batches := make([][]dataset.Example, 0, d.Len())
	for start := 0; start < len(order); start += d.batchSize {
		end := min(start+d.batchSize, len(order))
		batch := make([]dataset.Example, 0, end-start)
		for _, idx := range order[start:end] {
			batch = append(batch, d.examples[idx])
		}
		batches = append(batches, batch)
	}
	return batches
}

// Epoch streams one epoch of batches in shuffled order. With workers,
// collation runs ahead of the consumer while preserving order.
func (d *dataLoader) Epoch(ctx context.Context) <-chan *transformer.Batch {
	batches := d.epochBatches()
	out := make(chan *transformer.Batch)

	if d.workers <= 0 {
		go func() {
			defer close(out)
			for _, b := range batches {
				select {
				case out <- d.collator.Collate(b):
				case <-ctx.Done():
					return
				}
			}
		}()
		return out
	}

	// Each batch gets its own result channel; the pending queue bounds
	// how far workers run ahead.
	pending := make(chan chan *transformer.Batch, d.workers*2)
	jobs := make(chan func())

	for w := 0; w < d.workers; w++ {
		go func() {
			for job := range jobs {
				job()
			}
		}()
	}

	go func() {
		defer close(pending)
		defer close(jobs)
		for _, b := range batches {
			b := b
			result := make(chan *transformer.Batch, 1)
			select {
			case pending <- result:
			case <-ctx.Done():
				return
			}
			select {
			case jobs <- func() { result <- d.collator.Collate(b) }:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer close(out)
		for result := range pending {
			var batch *transformer.Batch
			select {
			case batch = <-result:
			case <-ctx.Done():
				return
			}
			select {
			case out <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
