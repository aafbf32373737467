package tokenizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xupit3r/tunebox/internal/gguf"
	"github.com/xupit3r/tunebox/internal/logging"
)

// FileName is the tokenizer artifact inside a model directory
const FileName = "tokenizer.gguf"

// Load reads dir/tokenizer.gguf
func Load(dir string) (*Tokenizer, error) {
	path := filepath.Join(dir, FileName)
	g, err := gguf.ParseGGUF(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer: %w", err)
	}
	t, err := NewTokenizerFromGGUF(g)
	if err != nil {
		return nil, fmt.Errorf("invalid tokenizer %s: %w", path, err)
	}
	return t, nil
}

// Save writes the tokenizer to dir/tokenizer.gguf, creating dir if needed
func (t *Tokenizer) Save(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	w := gguf.NewWriter()
	w.Set(gguf.KeyTokenizerModel, t.modelType)
	w.Set(gguf.KeyTokenizerTokens, t.tokens)
	w.Set(gguf.KeyTokenizerTokenType, t.types)
	w.Set(gguf.KeyTokenizerScores, t.scores)
	if len(t.mergeList) > 0 {
		w.Set(gguf.KeyTokenizerMerges, t.mergeList)
	}
	for key, id := range map[string]int{
		gguf.KeyTokenizerBOSID: t.bosID,
		gguf.KeyTokenizerEOSID: t.eosID,
		gguf.KeyTokenizerPADID: t.padID,
		gguf.KeyTokenizerUNKID: t.unkID,
	} {
		if id >= 0 {
			w.Set(key, uint32(id))
		}
	}

	return w.Save(filepath.Join(dir, FileName))
}

// Resolver maps a model reference to a local directory
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Export copies the tokenizer of base into dest so dest loads standalone.
// It returns the path of the written file.
func Export(ctx context.Context, r Resolver, base, dest string) (string, error) {
	dir, err := r.Resolve(ctx, base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", base, err)
	}

	t, err := Load(dir)
	if err != nil {
		return "", err
	}

	if err := t.Save(dest); err != nil {
		return "", fmt.Errorf("failed to save tokenizer to %s: %w", dest, err)
	}

	logging.WithFields(map[string]interface{}{
		"base":  base,
		"dest":  dest,
		"vocab": t.VocabSize(),
	}).Info("Exported tokenizer")

	return filepath.Join(dest, FileName), nil
}
