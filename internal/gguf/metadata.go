package gguf

import (
	"fmt"
)

// GGMLType represents tensor data types in GGUF files
type GGMLType uint32

// Tensor types understood by tunebox checkpoints. Quantized types
// are recognised by the parser but cannot be loaded.
const (
	GGML_TYPE_F32  GGMLType = 0
	GGML_TYPE_F16  GGMLType = 1
	GGML_TYPE_Q4_0 GGMLType = 2
	GGML_TYPE_Q8_0 GGMLType = 8
	GGML_TYPE_Q4_K GGMLType = 12
	GGML_TYPE_Q6_K GGMLType = 14
)

// String returns the string representation of the GGML type
func (g GGMLType) String() string {
	switch g {
	case GGML_TYPE_F32:
		return "F32"
	case GGML_TYPE_F16:
		return "F16"
	case GGML_TYPE_Q4_0:
		return "Q4_0"
	case GGML_TYPE_Q8_0:
		return "Q8_0"
	case GGML_TYPE_Q4_K:
		return "Q4_K"
	case GGML_TYPE_Q6_K:
		return "Q6_K"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", g)
	}
}

// ParseGGMLType maps a dtype name ("f32", "f16") to its GGML type
func ParseGGMLType(name string) (GGMLType, error) {
	switch name {
	case "f32", "F32":
		return GGML_TYPE_F32, nil
	case "f16", "F16":
		return GGML_TYPE_F16, nil
	default:
		return 0, fmt.Errorf("unsupported tensor dtype %q", name)
	}
}

// ValueType represents metadata value types in GGUF files
type ValueType uint32

// GGUF metadata value type constants
const (
	GGUF_METADATA_VALUE_TYPE_UINT8   ValueType = 0
	GGUF_METADATA_VALUE_TYPE_INT8    ValueType = 1
	GGUF_METADATA_VALUE_TYPE_UINT16  ValueType = 2
	GGUF_METADATA_VALUE_TYPE_INT16   ValueType = 3
	GGUF_METADATA_VALUE_TYPE_UINT32  ValueType = 4
	GGUF_METADATA_VALUE_TYPE_INT32   ValueType = 5
	GGUF_METADATA_VALUE_TYPE_FLOAT32 ValueType = 6
	GGUF_METADATA_VALUE_TYPE_BOOL    ValueType = 7
	GGUF_METADATA_VALUE_TYPE_STRING  ValueType = 8
	GGUF_METADATA_VALUE_TYPE_ARRAY   ValueType = 9
	GGUF_METADATA_VALUE_TYPE_UINT64  ValueType = 10
	GGUF_METADATA_VALUE_TYPE_INT64   ValueType = 11
	GGUF_METADATA_VALUE_TYPE_FLOAT64 ValueType = 12
)

// Common metadata keys for GGUF files
const (
	KeyArchitecture       = "general.architecture"                // "tunegpt"
	KeyName               = "general.name"                        // Model name
	KeyAlignment          = "general.alignment"                   // Tensor data alignment
	KeyFileType           = "general.file_type"                   // Dominant tensor type
	KeyContextLength      = "%s.context_length"                   // Max sequence length
	KeyEmbeddingLength    = "%s.embedding_length"                 // Hidden dimension
	KeyBlockCount         = "%s.block_count"                      // Number of layers
	KeyAttentionHeadCount = "%s.attention.head_count"             // Number of attention heads
	KeyFFNLength          = "%s.feed_forward_length"              // FFN intermediate size
	KeyNormRMSEps         = "%s.attention.layer_norm_rms_epsilon" // RMSNorm epsilon
	KeyVocabSize          = "%s.vocab_size"                       // Embedding rows
	KeyTokenizerModel     = "tokenizer.ggml.model"                // "bytebpe", "gpt2"
	KeyTokenizerTokens    = "tokenizer.ggml.tokens"               // Token strings (array)
	KeyTokenizerTokenType = "tokenizer.ggml.token_type"           // 1 normal, 3 control
	KeyTokenizerScores    = "tokenizer.ggml.scores"               // Token scores (array)
	KeyTokenizerMerges    = "tokenizer.ggml.merges"               // BPE merges (array)
	KeyTokenizerBOSID     = "tokenizer.ggml.bos_token_id"         // BOS token ID
	KeyTokenizerEOSID     = "tokenizer.ggml.eos_token_id"         // EOS token ID
	KeyTokenizerPADID     = "tokenizer.ggml.padding_token_id"     // Padding token ID
	KeyTokenizerUNKID     = "tokenizer.ggml.unknown_token_id"     // Unknown token ID
)

const defaultAlignment = 32

// TensorInfo describes a tensor in the GGUF file
type TensorInfo struct {
	Name   string   // Tensor name (e.g., "token_embd.weight")
	Dims   []uint64 // Tensor dimensions, innermost first
	Type   GGMLType // Tensor data type
	Offset uint64   // Offset from tensorDataOffset
	Size   uint64   // Size in bytes
}

// Elements returns the number of values stored in the tensor
func (ti *TensorInfo) Elements() uint64 {
	n := uint64(1)
	for _, d := range ti.Dims {
		n *= d
	}
	return n
}

// GGUFFile represents a parsed GGUF file
type GGUFFile struct {
	path    string
	magic   uint32
	version uint32

	tensorCount uint64
	kvCount     uint64

	// Metadata key-value pairs
	Metadata map[string]interface{}

	// Tensor information (name -> info)
	Tensors map[string]*TensorInfo

	// Tensor names in file order
	order []string

	// Offset where tensor data begins (after alignment)
	tensorDataOffset int64
}

// Version returns the GGUF file version
func (g *GGUFFile) Version() uint32 {
	return g.version
}

// Path returns the file path
func (g *GGUFFile) Path() string {
	return g.path
}

// TensorCount returns the number of tensors in the file
func (g *GGUFFile) TensorCount() uint64 {
	return g.tensorCount
}

// MetadataCount returns the number of metadata key-value pairs
func (g *GGUFFile) MetadataCount() uint64 {
	return g.kvCount
}

// calculateTensorSize calculates the size in bytes for a tensor
func calculateTensorSize(dims []uint64, dtype GGMLType) uint64 {
	elements := uint64(1)
	for _, dim := range dims {
		elements *= dim
	}

	switch dtype {
	case GGML_TYPE_F32:
		return elements * 4
	case GGML_TYPE_F16:
		return elements * 2
	case GGML_TYPE_Q4_0:
		return ((elements + 31) / 32) * 18
	case GGML_TYPE_Q8_0:
		return ((elements + 31) / 32) * 34
	case GGML_TYPE_Q4_K:
		return ((elements + 255) / 256) * 144
	case GGML_TYPE_Q6_K:
		return ((elements + 255) / 256) * 210
	default:
		return 0
	}
}

func alignUp(n, alignment int64) int64 {
	return (n + alignment - 1) / alignment * alignment
}
