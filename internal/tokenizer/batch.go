package tokenizer

import "fmt"

// PaddingStrategy controls how EncodeBatch pads sequences
type PaddingStrategy int

const (
	// PadNone leaves every sequence at its own length
	PadNone PaddingStrategy = iota
	// PadMaxLength right-pads every sequence to MaxLength
	PadMaxLength
	// PadLongest right-pads to the longest sequence in the batch
	PadLongest
)

// BatchOptions configures EncodeBatch
type BatchOptions struct {
	Truncation bool
	Padding    PaddingStrategy
	MaxLength  int
	AddBOS     bool
	AddEOS     bool
}

// BatchEncoding holds token ids and the matching attention masks
type BatchEncoding struct {
	InputIDs      [][]int
	AttentionMask [][]int
}

// EncodeBatch encodes texts, truncating and padding per opts. Padding is
// applied on the right with the pad id; the mask is 1 for real tokens.
func (t *Tokenizer) EncodeBatch(texts []string, opts BatchOptions) (*BatchEncoding, error) {
	if opts.Padding != PadNone && t.padID < 0 {
		return nil, fmt.Errorf("tokenizer has no padding token; set one before padding")
	}
	if (opts.Truncation || opts.Padding == PadMaxLength) && opts.MaxLength <= 0 {
		return nil, fmt.Errorf("max length must be positive, got %d", opts.MaxLength)
	}

	enc := &BatchEncoding{
		InputIDs:      make([][]int, len(texts)),
		AttentionMask: make([][]int, len(texts)),
	}

	longest := 0
	for i, text := range texts {
		ids := t.Encode(text, opts.AddBOS, opts.AddEOS)
		if opts.Truncation && len(ids) > opts.MaxLength {
			ids = ids[:opts.MaxLength]
		}
		enc.InputIDs[i] = ids
		if len(ids) > longest {
			longest = len(ids)
		}
	}

	target := 0
	switch opts.Padding {
	case PadMaxLength:
		target = opts.MaxLength
	case PadLongest:
		target = longest
	}

	for i, ids := range enc.InputIDs {
		mask := make([]int, len(ids), max(len(ids), target))
		for j := range mask {
			mask[j] = 1
		}
		for len(ids) < target {
			ids = append(ids, t.padID)
			mask = append(mask, 0)
		}
		enc.InputIDs[i] = ids
		enc.AttentionMask[i] = mask
	}

	return enc, nil
}
