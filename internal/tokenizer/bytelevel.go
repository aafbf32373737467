package tokenizer

// Tokenizer model names stored in tokenizer.ggml.model
const (
	ModelByteBPE = "bytebpe"
	ModelGPT2    = "gpt2"
)

// EndOfText is the BOS/EOS token of the byte-level tokenizer
const EndOfText = "<|endoftext|>"

// NewByteLevel builds a base tokenizer with one token per byte value and
// <|endoftext|> as both BOS and EOS. It has no padding token.
func NewByteLevel() *Tokenizer {
	t := NewTokenizer()
	t.modelType = ModelByteBPE

	for b := 0; b < 256; b++ {
		tok := string([]byte{byte(b)})
		t.vocab[tok] = b
		t.tokens = append(t.tokens, tok)
		t.types = append(t.types, TokenTypeNormal)
		t.scores = append(t.scores, 0)
	}

	t.AddSpecialTokens(EndOfText)
	t.bosID = t.vocab[EndOfText]
	t.eosID = t.bosID
	return t
}
