package transformer

import (
	"fmt"

	"github.com/xupit3r/tunebox/internal/gguf"
)

// Architecture is the general.architecture value of tunebox checkpoints
const Architecture = "tunegpt"

// Config holds transformer model hyperparameters
type Config struct {
	// Model architecture
	Architecture string

	// Sequence and dimensions
	ContextLength   int // Maximum sequence length (learned positions)
	VocabSize       int // Rows of the token embedding and LM head
	HiddenDim       int // Model dimension (embedding_length)
	NumLayers       int // Number of transformer blocks
	IntermediateDim int // FFN intermediate dimension

	// Attention configuration
	NumHeads int // Number of attention heads
	HeadDim  int // Dimension per head (HiddenDim / NumHeads)

	// Normalization
	RMSNormEps float64 // RMSNorm epsilon
}

// DefaultConfig returns a small model suitable for fine-tuning on a CPU
func DefaultConfig(vocabSize int) *Config {
	cfg := &Config{
		Architecture:    Architecture,
		ContextLength:   512,
		VocabSize:       vocabSize,
		HiddenDim:       128,
		NumLayers:       4,
		NumHeads:        4,
		IntermediateDim: 512,
		RMSNormEps:      1e-5,
	}
	cfg.HeadDim = cfg.HiddenDim / cfg.NumHeads
	return cfg
}

// NewConfigFromGGUF creates a Config from GGUF metadata
func NewConfigFromGGUF(ggufFile *gguf.GGUFFile) (*Config, error) {
	cfg := &Config{}

	cfg.Architecture = ggufFile.GetArchitecture()
	if cfg.Architecture != Architecture {
		return nil, fmt.Errorf("unsupported architecture %q (want %s)", cfg.Architecture, Architecture)
	}

	required := []struct {
		key  string
		name string
		dst  *int
	}{
		{gguf.KeyContextLength, "context_length", &cfg.ContextLength},
		{gguf.KeyEmbeddingLength, "embedding_length", &cfg.HiddenDim},
		{gguf.KeyBlockCount, "block_count", &cfg.NumLayers},
		{gguf.KeyAttentionHeadCount, "attention.head_count", &cfg.NumHeads},
	}
	for _, r := range required {
		val, ok := ggufFile.GetMetadataInt(r.key)
		if !ok {
			return nil, fmt.Errorf("%s not found in metadata", r.name)
		}
		*r.dst = val
	}

	if val, ok := ggufFile.GetMetadataInt(gguf.KeyFFNLength); ok {
		cfg.IntermediateDim = val
	} else {
		// Default to 4 * HiddenDim (common for transformers)
		cfg.IntermediateDim = 4 * cfg.HiddenDim
	}

	if val, ok := ggufFile.GetMetadataFloat(gguf.KeyNormRMSEps); ok {
		cfg.RMSNormEps = val
	} else {
		cfg.RMSNormEps = 1e-5
	}

	// The embedding table is authoritative for vocab size; it can be larger
	// than the base tokenizer after special tokens were added.
	if info, err := ggufFile.GetTensorInfo("token_embd.weight"); err == nil {
		cfg.VocabSize = info.Shape()[0]
	} else if val, ok := ggufFile.GetMetadataInt(gguf.KeyVocabSize); ok {
		cfg.VocabSize = val
	}

	if cfg.NumHeads > 0 {
		cfg.HeadDim = cfg.HiddenDim / cfg.NumHeads
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ContextLength <= 0 {
		return fmt.Errorf("context_length must be positive, got %d", c.ContextLength)
	}
	if c.VocabSize <= 0 {
		return fmt.Errorf("vocab_size must be positive, got %d", c.VocabSize)
	}
	if c.HiddenDim <= 0 {
		return fmt.Errorf("hidden_dim must be positive, got %d", c.HiddenDim)
	}
	if c.NumLayers <= 0 {
		return fmt.Errorf("num_layers must be positive, got %d", c.NumLayers)
	}
	if c.NumHeads <= 0 {
		return fmt.Errorf("num_heads must be positive, got %d", c.NumHeads)
	}
	if c.HiddenDim%c.NumHeads != 0 {
		return fmt.Errorf("hidden_dim (%d) must be divisible by num_heads (%d)", c.HiddenDim, c.NumHeads)
	}
	if c.IntermediateDim <= 0 {
		return fmt.Errorf("intermediate_dim must be positive, got %d", c.IntermediateDim)
	}
	if c.RMSNormEps <= 0 {
		return fmt.Errorf("rms_norm_eps must be positive, got %e", c.RMSNormEps)
	}

	return nil
}

// String returns a human-readable representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{arch=%s, ctx=%d, vocab=%d, dim=%d, layers=%d, heads=%d, head_dim=%d, ffn=%d, eps=%e}",
		c.Architecture, c.ContextLength, c.VocabSize, c.HiddenDim, c.NumLayers,
		c.NumHeads, c.HeadDim, c.IntermediateDim, c.RMSNormEps,
	)
}
