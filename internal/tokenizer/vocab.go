package tokenizer

import (
	"fmt"

	"github.com/xupit3r/tunebox/internal/gguf"
)

// Token type codes stored in tokenizer.ggml.token_type
const (
	TokenTypeNormal  int32 = 1
	TokenTypeUnknown int32 = 2
	TokenTypeControl int32 = 3
)

// Tokenizer implements BPE (Byte-Pair Encoding) tokenization
type Tokenizer struct {
	// Vocabulary: token string → token ID
	vocab map[string]int

	// Reverse vocabulary: token ID → token string
	tokens []string

	// Per-token type codes; control tokens are special
	types []int32

	// Token scores, carried through save/load untouched
	scores []float32

	// BPE merge rules: "token1 token2" → merge rank
	// Lower rank = applied earlier (higher priority)
	merges map[string]int

	// Merge strings in rank order, for saving
	mergeList []string

	// Special token IDs, -1 when unset
	bosID int
	eosID int
	padID int
	unkID int

	// Model type ("bytebpe" or "gpt2")
	modelType string

	// Control token strings, longest first, matched literally before BPE
	specialTokens []string
}

// NewTokenizer creates a new empty tokenizer
func NewTokenizer() *Tokenizer {
	return &Tokenizer{
		vocab:  make(map[string]int),
		tokens: make([]string, 0),
		types:  make([]int32, 0),
		scores: make([]float32, 0),
		merges: make(map[string]int),
		bosID:  -1,
		eosID:  -1,
		padID:  -1,
		unkID:  -1,
	}
}

// NewTokenizerFromGGUF creates a tokenizer from GGUF metadata
func NewTokenizerFromGGUF(ggufFile *gguf.GGUFFile) (*Tokenizer, error) {
	t := NewTokenizer()

	if modelType, ok := ggufFile.Metadata[gguf.KeyTokenizerModel].(string); ok {
		t.modelType = modelType
	} else {
		t.modelType = ModelByteBPE
	}

	tokens := ggufFile.GetTokens()
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no tokens found in GGUF metadata")
	}
	t.tokens = tokens

	t.vocab = make(map[string]int, len(tokens))
	for id, token := range tokens {
		t.vocab[token] = id
	}

	types := ggufFile.GetTokenTypes()
	if len(types) == len(tokens) {
		t.types = types
	} else {
		t.types = make([]int32, len(tokens))
		for i := range t.types {
			t.types[i] = TokenTypeNormal
		}
	}

	scores := ggufFile.GetTokenScores()
	if len(scores) == len(tokens) {
		t.scores = scores
	} else {
		t.scores = make([]float32, len(tokens))
	}

	t.mergeList = ggufFile.GetMerges()
	t.merges = make(map[string]int, len(t.mergeList))
	for rank, merge := range t.mergeList {
		t.merges[merge] = rank
	}

	lookup := func(key string) int {
		if v, ok := ggufFile.Metadata[key]; ok {
			if id, ok := convertToInt(v); ok && id >= 0 && id < len(tokens) {
				return id
			}
		}
		return -1
	}
	t.bosID = lookup(gguf.KeyTokenizerBOSID)
	t.eosID = lookup(gguf.KeyTokenizerEOSID)
	t.padID = lookup(gguf.KeyTokenizerPADID)
	t.unkID = lookup(gguf.KeyTokenizerUNKID)

	if t.unkID < 0 {
		if id, ok := t.vocab["<unk>"]; ok {
			t.unkID = id
		} else if id, ok := t.vocab["<UNK>"]; ok {
			t.unkID = id
		}
	}

	t.rebuildSpecialTokens()
	return t, nil
}

// VocabSize returns the vocabulary size, including added tokens
func (t *Tokenizer) VocabSize() int {
	return len(t.tokens)
}

// BOSID returns the beginning-of-sequence token ID
func (t *Tokenizer) BOSID() int {
	return t.bosID
}

// EOSID returns the end-of-sequence token ID
func (t *Tokenizer) EOSID() int {
	return t.eosID
}

// PadID returns the padding token ID, or -1 when the tokenizer has none
func (t *Tokenizer) PadID() int {
	return t.padID
}

// UNKID returns the unknown token ID
func (t *Tokenizer) UNKID() int {
	return t.unkID
}

// ModelType returns the tokenizer model type
func (t *Tokenizer) ModelType() string {
	return t.modelType
}

// PadToken returns the padding token string, or "" when unset
func (t *Tokenizer) PadToken() string {
	return t.IDToToken(t.padID)
}

// SetPadID makes an existing token the padding token
func (t *Tokenizer) SetPadID(id int) error {
	if id < 0 || id >= len(t.tokens) {
		return fmt.Errorf("pad token id %d out of range [0, %d)", id, len(t.tokens))
	}
	t.padID = id
	return nil
}

// AddSpecialTokens appends control tokens that are not already in the
// vocabulary and returns how many were added.
func (t *Tokenizer) AddSpecialTokens(tokens ...string) int {
	added := 0
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if id, ok := t.vocab[tok]; ok {
			t.types[id] = TokenTypeControl
			continue
		}
		t.vocab[tok] = len(t.tokens)
		t.tokens = append(t.tokens, tok)
		t.types = append(t.types, TokenTypeControl)
		t.scores = append(t.scores, 0)
		added++
	}
	t.rebuildSpecialTokens()
	return added
}

// IsSpecial reports whether id is a control token or one of the
// BOS/EOS/PAD ids
func (t *Tokenizer) IsSpecial(id int) bool {
	if id < 0 || id >= len(t.tokens) {
		return false
	}
	if id == t.bosID || id == t.eosID || id == t.padID {
		return true
	}
	return t.types[id] == TokenTypeControl
}

// TokenToID converts a token string to its ID
// Returns -1 if token not found
func (t *Tokenizer) TokenToID(token string) int {
	if id, ok := t.vocab[token]; ok {
		return id
	}
	return -1
}

// IDToToken converts a token ID to its string
// Returns empty string if ID is out of range
func (t *Tokenizer) IDToToken(id int) string {
	if id >= 0 && id < len(t.tokens) {
		return t.tokens[id]
	}
	return ""
}

func (t *Tokenizer) rebuildSpecialTokens() {
	t.specialTokens = t.specialTokens[:0]
	for id, tok := range t.tokens {
		if t.types[id] == TokenTypeControl && tok != "" {
			t.specialTokens = append(t.specialTokens, tok)
		}
	}
	// longest first so "<|a|>x" never shadows "<|a|>xy"
	sortByLenDesc(t.specialTokens)
}

// convertToInt converts various integer types to int
func convertToInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	default:
		return 0, false
	}
}
