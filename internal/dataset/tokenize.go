package dataset

import (
	"fmt"

	"github.com/xupit3r/tunebox/internal/tokenizer"
	"github.com/xupit3r/tunebox/internal/transformer"
)

// Example is one tokenized, fixed-length training sequence
type Example struct {
	InputIDs      []int
	AttentionMask []int
}

// Tokenize encodes every record's text, truncating and padding to maxLength
func Tokenize(tok *tokenizer.Tokenizer, records []Record, maxLength int) ([]Example, error) {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}

	enc, err := tok.EncodeBatch(texts, tokenizer.BatchOptions{
		Truncation: true,
		Padding:    tokenizer.PadMaxLength,
		MaxLength:  maxLength,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize dataset: %w", err)
	}

	examples := make([]Example, len(records))
	for i := range examples {
		examples[i] = Example{InputIDs: enc.InputIDs[i], AttentionMask: enc.AttentionMask[i]}
	}
	return examples, nil
}

// CausalLMCollator builds language-modelling batches: labels copy the
// input ids with padding positions set to the ignore index.
type CausalLMCollator struct {
	PadID int
}

// Collate stacks examples into a batch
func (c CausalLMCollator) Collate(examples []Example) *transformer.Batch {
	batch := &transformer.Batch{
		InputIDs:      make([][]int, len(examples)),
		AttentionMask: make([][]int, len(examples)),
		Labels:        make([][]int, len(examples)),
	}

	for i, ex := range examples {
		labels := make([]int, len(ex.InputIDs))
		for j, id := range ex.InputIDs {
			if id == c.PadID {
				labels[j] = transformer.IgnoreIndex
			} else {
				labels[j] = id
			}
		}
		batch.InputIDs[i] = ex.InputIDs
		batch.AttentionMask[i] = ex.AttentionMask
		batch.Labels[i] = labels
	}

	return batch
}
