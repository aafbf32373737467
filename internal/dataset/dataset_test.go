package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xupit3r/tunebox/internal/tokenizer"
	"github.com/xupit3r/tunebox/internal/transformer"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadJSONL(t *testing.T) {
	path := writeFile(t, `{"instruction": "Greet", "input": "Bob", "output": "Hi Bob"}

{"instruction": "Count", "input": "", "output": "3"}
`)

	records, err := LoadJSONL(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Greet", records[0].Instruction)
	assert.Equal(t, "### Instruction:\nGreet\n### Input:\nBob\n### Response:\nHi Bob", records[0].Text)
	assert.Equal(t, "3", records[1].Output)
}

func TestLoadJSONL_Empty(t *testing.T) {
	records, err := LoadJSONL(writeFile(t, ""))
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestLoadJSONL_MissingKey(t *testing.T) {
	path := writeFile(t, `{"instruction": "a", "input": "b", "output": "c"}
{"instruction": "a", "input": "b"}
`)

	_, err := LoadJSONL(path)
	require.Error(t, err)

	var keyErr *KeyError
	require.True(t, errors.As(err, &keyErr))
	assert.Equal(t, 2, keyErr.Line)
	assert.Equal(t, "output", keyErr.Key)
}

func TestLoadJSONL_NonStringValue(t *testing.T) {
	tests := []struct {
		name string
		line string
		key  string
		got  string
	}{
		{"number", `{"instruction": "a", "input": "b", "output": 3}`, "output", "number"},
		{"null", `{"instruction": "a", "input": null, "output": "c"}`, "input", "null"},
		{"boolean", `{"instruction": true, "input": "b", "output": "c"}`, "instruction", "boolean"},
		{"array", `{"instruction": "a", "input": ["x"], "output": "c"}`, "input", "array"},
		{"object", `{"instruction": "a", "input": "b", "output": {"k": 1}}`, "output", "object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, `{"instruction": "a", "input": "b", "output": "c"}`+"\n"+tt.line+"\n")

			_, err := LoadJSONL(path)
			require.Error(t, err)

			var typeErr *FieldTypeError
			require.True(t, errors.As(err, &typeErr))
			assert.Equal(t, 2, typeErr.Line)
			assert.Equal(t, tt.key, typeErr.Key)
			assert.Equal(t, tt.got, typeErr.Got)
		})
	}
}

func TestLoadJSONL_Malformed(t *testing.T) {
	_, err := LoadJSONL(writeFile(t, "{\"instruction\": \n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ":1:")
}

func TestLoadJSONL_MissingFile(t *testing.T) {
	_, err := LoadJSONL(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}

func TestTokenizeAndCollate(t *testing.T) {
	tok := tokenizer.NewByteLevel()
	require.NoError(t, tok.SetPadID(tok.EOSID()))

	records := []Record{{Text: "abc"}, {Text: "abcdefghij"}}
	examples, err := Tokenize(tok, records, 8)
	require.NoError(t, err)
	require.Len(t, examples, 2)

	assert.Equal(t, []int{'a', 'b', 'c', 256, 256, 256, 256, 256}, examples[0].InputIDs)
	assert.Equal(t, []int{1, 1, 1, 0, 0, 0, 0, 0}, examples[0].AttentionMask)
	assert.Len(t, examples[1].InputIDs, 8)

	batch := CausalLMCollator{PadID: tok.PadID()}.Collate(examples)
	assert.Equal(t, 2, batch.Size())
	ig := transformer.IgnoreIndex
	assert.Equal(t, []int{'a', 'b', 'c', ig, ig, ig, ig, ig}, batch.Labels[0])
	assert.Equal(t, examples[1].InputIDs, batch.Labels[1])
}

func TestTokenize_NoPadToken(t *testing.T) {
	_, err := Tokenize(tokenizer.NewByteLevel(), []Record{{Text: "x"}}, 4)
	assert.Error(t, err)
}
