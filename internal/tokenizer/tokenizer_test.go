package tokenizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xupit3r/tunebox/internal/gguf"
)

// createMockTokenizer creates a simple test tokenizer
func createMockTokenizer() *Tokenizer {
	t := NewTokenizer()
	t.modelType = "test"

	t.tokens = []string{
		"<unk>", // 0
		"<s>",   // 1 (BOS)
		"</s>",  // 2 (EOS)
		"<pad>", // 3
		"h",     // 4
		"e",     // 5
		"l",     // 6
		"o",     // 7
		"w",     // 8
		"r",     // 9
		"d",     // 10
		" ",     // 11
		"he",    // 12 (merge of h+e)
		"ll",    // 13 (merge of l+l)
		"hell",  // 14 (merge of he+ll)
		"hello", // 15 (merge of hell+o)
		"wo",    // 16
		"wor",   // 17
		"worl",  // 18
		"world", // 19
	}

	t.vocab = make(map[string]int)
	for id, token := range t.tokens {
		t.vocab[token] = id
	}

	t.types = make([]int32, len(t.tokens))
	for i := range t.types {
		t.types[i] = TokenTypeNormal
	}
	for _, id := range []int{0, 1, 2, 3} {
		t.types[id] = TokenTypeControl
	}
	t.scores = make([]float32, len(t.tokens))

	t.mergeList = []string{"h e", "l l", "he ll", "hell o", "w o", "wo r", "wor l", "worl d"}
	t.merges = make(map[string]int)
	for rank, m := range t.mergeList {
		t.merges[m] = rank
	}

	t.bosID = 1
	t.eosID = 2
	t.padID = 3
	t.unkID = 0
	t.rebuildSpecialTokens()

	return t
}

func TestNewTokenizer(t *testing.T) {
	tok := NewTokenizer()
	if tok.VocabSize() != 0 {
		t.Errorf("Expected empty vocab, got size %d", tok.VocabSize())
	}
	if tok.BOSID() != -1 || tok.PadID() != -1 {
		t.Errorf("Expected unset special ids, got bos=%d pad=%d", tok.BOSID(), tok.PadID())
	}
}

func TestTokenizerGetters(t *testing.T) {
	tok := createMockTokenizer()

	if tok.VocabSize() != 20 {
		t.Errorf("Expected vocab size 20, got %d", tok.VocabSize())
	}
	if tok.BOSID() != 1 || tok.EOSID() != 2 || tok.PadID() != 3 || tok.UNKID() != 0 {
		t.Errorf("Unexpected special ids")
	}
	if tok.PadToken() != "<pad>" {
		t.Errorf("Expected <pad>, got %q", tok.PadToken())
	}
	if tok.TokenToID("hello") != 15 || tok.TokenToID("missing") != -1 {
		t.Error("TokenToID mismatch")
	}
	if tok.IDToToken(19) != "world" || tok.IDToToken(99) != "" {
		t.Error("IDToToken mismatch")
	}
}

func TestEncode(t *testing.T) {
	tok := createMockTokenizer()

	tests := []struct {
		name   string
		text   string
		bos    bool
		eos    bool
		expect []int
	}{
		{"single word", "hello", false, false, []int{15}},
		{"two words", "hello world", false, false, []int{15, 11, 19}},
		{"with bos and eos", "hello", true, true, []int{1, 15, 2}},
		{"unknown byte", "hx", false, false, []int{4, 0}},
		{"empty", "", true, false, []int{1}},
		{"special inline", "hello</s>world", false, false, []int{15, 2, 19}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Encode(tt.text, tt.bos, tt.eos)
			if !reflect.DeepEqual(got, tt.expect) {
				t.Errorf("Encode(%q) = %v, want %v", tt.text, got, tt.expect)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	tok := createMockTokenizer()

	if got := tok.Decode([]int{1, 15, 11, 19, 2, 3}, true); got != "hello world" {
		t.Errorf("Decode(skip) = %q", got)
	}
	if got := tok.Decode([]int{1, 15, 2}, false); got != "<s>hello</s>" {
		t.Errorf("Decode(keep) = %q", got)
	}
	if got := tok.Decode([]int{15, 999, -1}, true); got != "hello" {
		t.Errorf("Decode(invalid) = %q", got)
	}
	if got := tok.Decode(nil, true); got != "" {
		t.Errorf("Decode(nil) = %q", got)
	}
}

func TestByteLevelRoundTrip(t *testing.T) {
	tok := NewByteLevel()

	if tok.VocabSize() != 257 {
		t.Fatalf("Expected 257 tokens, got %d", tok.VocabSize())
	}
	if tok.BOSID() != 256 || tok.EOSID() != 256 {
		t.Errorf("Expected BOS/EOS 256, got %d/%d", tok.BOSID(), tok.EOSID())
	}
	if tok.PadID() != -1 {
		t.Errorf("Byte-level tokenizer should have no pad, got %d", tok.PadID())
	}

	texts := []string{
		"### Instruction:\nSay hi\n### Response:\nhi",
		"na\u00efve caf\u00e9 \u2615",
		"",
	}
	for _, text := range texts {
		ids := tok.Encode(text, false, true)
		if got := tok.Decode(ids, true); got != text {
			t.Errorf("round trip %q -> %q", text, got)
		}
	}
}

func TestEncodeNormalizesNFC(t *testing.T) {
	tok := NewByteLevel()

	decomposed := "cafe\u0301"
	composed := "caf\u00e9"
	if !reflect.DeepEqual(tok.Encode(decomposed, false, false), tok.Encode(composed, false, false)) {
		t.Error("Expected NFC-equivalent strings to encode identically")
	}
}

func TestAddSpecialTokensAndPad(t *testing.T) {
	tok := NewByteLevel()

	if added := tok.AddSpecialTokens("[PAD]"); added != 1 {
		t.Fatalf("Expected 1 added token, got %d", added)
	}
	if added := tok.AddSpecialTokens("[PAD]", EndOfText); added != 0 {
		t.Errorf("Expected no new tokens, got %d", added)
	}
	padID := tok.TokenToID("[PAD]")
	if padID != 257 {
		t.Fatalf("Expected [PAD] at 257, got %d", padID)
	}
	if err := tok.SetPadID(padID); err != nil {
		t.Fatalf("SetPadID failed: %v", err)
	}
	if err := tok.SetPadID(1000); err == nil {
		t.Error("Expected out of range error")
	}

	ids := tok.Encode("a[PAD]b", false, false)
	if !reflect.DeepEqual(ids, []int{'a', padID, 'b'}) {
		t.Errorf("Expected literal special match, got %v", ids)
	}
	if got := tok.Decode(ids, true); got != "ab" {
		t.Errorf("Decode skipping special = %q", got)
	}
}

func TestEncodeBatch(t *testing.T) {
	tok := NewByteLevel()
	tok.SetPadID(tok.EOSID())

	enc, err := tok.EncodeBatch([]string{"abc", "abcdefgh"}, BatchOptions{
		Truncation: true,
		Padding:    PadMaxLength,
		MaxLength:  5,
	})
	if err != nil {
		t.Fatalf("EncodeBatch failed: %v", err)
	}

	wantIDs := [][]int{{'a', 'b', 'c', 256, 256}, {'a', 'b', 'c', 'd', 'e'}}
	wantMask := [][]int{{1, 1, 1, 0, 0}, {1, 1, 1, 1, 1}}
	if !reflect.DeepEqual(enc.InputIDs, wantIDs) {
		t.Errorf("InputIDs = %v, want %v", enc.InputIDs, wantIDs)
	}
	if !reflect.DeepEqual(enc.AttentionMask, wantMask) {
		t.Errorf("AttentionMask = %v, want %v", enc.AttentionMask, wantMask)
	}

	enc, err = tok.EncodeBatch([]string{"a", "abc"}, BatchOptions{Padding: PadLongest})
	if err != nil {
		t.Fatalf("EncodeBatch(longest) failed: %v", err)
	}
	if len(enc.InputIDs[0]) != 3 || enc.AttentionMask[0][2] != 0 {
		t.Errorf("Expected padding to longest, got %v / %v", enc.InputIDs[0], enc.AttentionMask[0])
	}
}

func TestEncodeBatch_NoPadToken(t *testing.T) {
	tok := NewByteLevel()
	if _, err := tok.EncodeBatch([]string{"a"}, BatchOptions{Padding: PadMaxLength, MaxLength: 4}); err == nil {
		t.Error("Expected error when padding without a pad token")
	}

	enc, err := tok.EncodeBatch([]string{"hello"}, BatchOptions{Truncation: true, MaxLength: 2})
	if err != nil {
		t.Fatalf("EncodeBatch failed: %v", err)
	}
	if len(enc.InputIDs[0]) != 2 {
		t.Errorf("Expected truncation to 2, got %v", enc.InputIDs[0])
	}
}

func TestSaveLoad(t *testing.T) {
	dir := t.TempDir()
	tok := createMockTokenizer()

	if err := tok.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.VocabSize() != tok.VocabSize() {
		t.Errorf("Vocab size %d != %d", loaded.VocabSize(), tok.VocabSize())
	}
	if loaded.BOSID() != 1 || loaded.EOSID() != 2 || loaded.PadID() != 3 || loaded.UNKID() != 0 {
		t.Error("Special ids not preserved")
	}
	if loaded.ModelType() != "test" {
		t.Errorf("Expected model type test, got %s", loaded.ModelType())
	}
	if !reflect.DeepEqual(loaded.Encode("hello world", false, false), tok.Encode("hello world", false, false)) {
		t.Error("Encoding changed after reload")
	}

	g, err := gguf.ParseGGUF(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatalf("ParseGGUF failed: %v", err)
	}
	if g.TensorCount() != 0 {
		t.Errorf("Tokenizer file should carry no tensors, got %d", g.TensorCount())
	}
}

func TestSaveLoad_NoPad(t *testing.T) {
	dir := t.TempDir()
	if err := NewByteLevel().Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.PadID() != -1 {
		t.Errorf("Expected no pad after reload, got %d", loaded.PadID())
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("Expected error for missing tokenizer file")
	}
}

type dirResolver map[string]string

func (r dirResolver) Resolve(_ context.Context, ref string) (string, error) {
	if dir, ok := r[ref]; ok {
		return dir, nil
	}
	return "", errors.New("unknown model")
}

func TestExport(t *testing.T) {
	base := t.TempDir()
	if err := NewByteLevel().Save(base); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(t.TempDir(), "finetuned")
	path, err := Export(context.Background(), dirResolver{"base": base}, "base", dest)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if path != filepath.Join(dest, FileName) {
		t.Errorf("Unexpected export path %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Exported file missing: %v", err)
	}

	if _, err := Export(context.Background(), dirResolver{}, "nope", dest); err == nil {
		t.Error("Expected resolve error")
	}
}

func TestConvertToInt(t *testing.T) {
	tests := []struct {
		input  interface{}
		expect int
		ok     bool
	}{
		{int32(5), 5, true},
		{uint32(7), 7, true},
		{uint64(9), 9, true},
		{"x", 0, false},
		{1.5, 0, false},
	}
	for _, tt := range tests {
		got, ok := convertToInt(tt.input)
		if got != tt.expect || ok != tt.ok {
			t.Errorf("convertToInt(%v) = %d, %v", tt.input, got, ok)
		}
	}
}
