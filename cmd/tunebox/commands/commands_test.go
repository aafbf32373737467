package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xupit3r/tunebox/internal/gguf"
	"github.com/xupit3r/tunebox/internal/model"
	"github.com/xupit3r/tunebox/internal/progress"
	"github.com/xupit3r/tunebox/internal/tokenizer"
	"github.com/xupit3r/tunebox/internal/transformer"
)

// writeConfig writes a config that keeps runs small and inside dir
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf(`generation:
  max_new_tokens: 4
  num_beams: 2
  seed: 7
training:
  max_length: 16
  logging_steps: 1
  save_steps: 1
  num_workers: 1
  report_to: none
  disable_tqdm: true
  logging_dir: %s
hub:
  cache_dir: %s
device:
  preference: cpu
  workers: 2
logging:
  console: false
studio:
  history_file: %s
`, filepath.Join(dir, "logs"), filepath.Join(dir, "cache"), filepath.Join(dir, "history.json"))
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))
	return path
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns everything it printed
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeJSONL(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
}

func initTinyModel(t *testing.T, cfgPath, dir string) {
	t.Helper()
	out, err := execute(t, "--config", cfgPath, "model", "init", dir,
		"--layers", "1", "--dim", "16", "--heads", "2", "--context", "32", "--seed", "1")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Created "+dir)
}

func TestCompletionCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"bash completion", []string{"completion", "bash"}, false},
		{"zsh completion", []string{"completion", "zsh"}, false},
		{"fish completion", []string{"completion", "fish"}, false},
		{"powershell completion", []string{"completion", "powershell"}, false},
		{"invalid shell", []string{"completion", "invalid"}, true},
		{"no shell specified", []string{"completion"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfgPath := writeConfig(t, t.TempDir())
			out, err := execute(t, append([]string{"--config", cfgPath}, tt.args...)...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, "tunebox")
		})
	}
}

func TestModelIDCompletions(t *testing.T) {
	all, directive := completeModelIDs(modelDownloadCmd, nil, "")
	assert.Len(t, all, len(model.ListAll()))
	assert.Equal(t, cobra.ShellCompDirectiveNoFileComp, directive)
	for _, c := range all {
		assert.Contains(t, c, "\t")
	}

	small, _ := completeModelIDs(modelInfoCmd, nil, "tunegpt-small")
	assert.Len(t, small, 2)

	none, _ := completeModelIDs(modelRemoveCmd, []string{"tunegpt-tiny"}, "")
	assert.Empty(t, none)
}

func TestVersion(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())
	out, err := execute(t, "--config", cfgPath, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Tunebox v"+version)
}

func TestChat_LoadErrorExitsZero(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	out, err := execute(t, "--config", cfgPath, "chat",
		"--message", "hello", "--modelPath", filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "❌ Error loading model: "), out)
}

func TestChat_RequiresFlags(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())
	_, err := execute(t, "--config", cfgPath, "chat", "--message", "hello")
	assert.Error(t, err)
}

func writeBrokenConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generation: [unclosed\n"), 0644))
	return path
}

func TestChat_BadConfigFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	cfgPath := writeBrokenConfig(t, dir)

	out, err := execute(t, "--config", cfgPath, "chat", "--message", "hi",
		"--modelPath", filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Contains(t, out, "Error loading config")
	assert.Contains(t, out, "Error loading model")
}

func TestBadConfigFailsOtherCommands(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	cfgPath := writeBrokenConfig(t, dir)

	_, err := execute(t, "--config", cfgPath, "model", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading config")
}

func TestFinetune_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	base := filepath.Join(dir, "base")
	initTinyModel(t, cfgPath, base)

	data := filepath.Join(dir, "train.jsonl")
	writeJSONL(t, data,
		`{"instruction": "Say hi", "input": "", "output": "hi"}`,
		`{"instruction": "Add", "input": "1+1", "output": "2"}`,
		`{"instruction": "Echo", "input": "ok", "output": "ok"}`,
	)
	outDir := filepath.Join(dir, "tuned")

	out, err := execute(t, "--config", cfgPath, "finetune",
		"--model", base, "--data", data, "--output_dir", outDir)
	require.NoError(t, err, out)

	want := []string{
		"🧠 Loading tokenizer: " + base,
		"✅ Tokenizer loaded.",
		"Setting pad_token to eos_token.",
		"🧠 Loading model...",
		"✅ Model loaded.",
		"📂 Loading dataset...",
		"📁 Reading JSONL file: " + data,
		"✅ Loaded 3 records.",
		"🧪 Tokenizing data...",
		"✅ Data ready.",
		"🚀 Starting fine-tuning...",
		"__PROGRESS__:50",
		"__PROGRESS__:100",
		"🎉 Fine-tuning complete.",
		"📦 Model saved to: " + outDir,
	}
	pos := 0
	for _, w := range want {
		idx := strings.Index(out[pos:], w)
		require.GreaterOrEqual(t, idx, 0, "missing %q after offset %d in:\n%s", w, pos, out)
		pos += idx + len(w)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	pct, ok := progress.ParseLine(lines[len(lines)-1])
	require.True(t, ok, "last line should be a progress marker")
	assert.Equal(t, 100, pct)

	assert.FileExists(t, filepath.Join(outDir, "model.gguf"))
	assert.FileExists(t, filepath.Join(outDir, "tokenizer.gguf"))
	assert.DirExists(t, filepath.Join(outDir, "checkpoint-2"))
	assert.NoDirExists(t, filepath.Join(outDir, "checkpoint-1"))

	reply, err := execute(t, "--config", cfgPath, "chat", "--message", "hi", "--modelPath", outDir, "--seed", "3")
	require.NoError(t, err)
	assert.NotContains(t, reply, "Error loading model")
	assert.NotContains(t, reply, "Error: Model not loaded.")
}

// stripEOS rewrites dir/tokenizer.gguf without an EOS (or pad) id
func stripEOS(t *testing.T, dir string) {
	t.Helper()
	path := filepath.Join(dir, tokenizer.FileName)
	g, err := gguf.ParseGGUF(path)
	require.NoError(t, err)

	w := gguf.NewWriter()
	w.Set(gguf.KeyTokenizerModel, tokenizer.ModelByteBPE)
	w.Set(gguf.KeyTokenizerTokens, g.GetTokens())
	w.Set(gguf.KeyTokenizerTokenType, g.GetTokenTypes())
	w.Set(gguf.KeyTokenizerScores, g.GetTokenScores())
	if bos, ok := g.GetMetadataInt(gguf.KeyTokenizerBOSID); ok {
		w.Set(gguf.KeyTokenizerBOSID, uint32(bos))
	}
	require.NoError(t, w.Save(path))

	tok, err := tokenizer.Load(dir)
	require.NoError(t, err)
	require.Equal(t, -1, tok.EOSID())
	require.Equal(t, -1, tok.PadID())
	require.Equal(t, 257, tok.VocabSize())
}

func TestFinetune_AddsPadTokenWithoutEOS(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	base := filepath.Join(dir, "base")
	initTinyModel(t, cfgPath, base)
	stripEOS(t, base)

	data := filepath.Join(dir, "train.jsonl")
	writeJSONL(t, data,
		`{"instruction": "Say hi", "input": "", "output": "hi"}`,
		`{"instruction": "Echo", "input": "ok", "output": "ok"}`,
	)
	outDir := filepath.Join(dir, "tuned")

	out, err := execute(t, "--config", cfgPath, "finetune",
		"--model", base, "--data", data, "--output_dir", outDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Adding a new special token as pad_token: [PAD]")
	assert.NotContains(t, out, "Setting pad_token to eos_token.")

	lm, err := transformer.Load(outDir, nil)
	require.NoError(t, err)
	assert.Equal(t, 258, lm.Config().VocabSize)

	tok, err := tokenizer.Load(outDir)
	require.NoError(t, err)
	assert.Equal(t, 258, tok.VocabSize())
	assert.Equal(t, 257, tok.PadID())
	assert.Equal(t, 257, tok.TokenToID("[PAD]"))
	assert.Equal(t, -1, tok.EOSID())

	reply, err := execute(t, "--config", cfgPath, "chat", "--message", "hi", "--modelPath", outDir)
	require.NoError(t, err)
	assert.NotContains(t, reply, "Error loading model")
}

func TestFinetune_MissingKey(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	base := filepath.Join(dir, "base")
	initTinyModel(t, cfgPath, base)

	data := filepath.Join(dir, "bad.jsonl")
	writeJSONL(t, data, `{"instruction": "Say hi", "output": "hi"}`)

	out, err := execute(t, "--config", cfgPath, "finetune",
		"--model", base, "--data", data, "--output_dir", filepath.Join(dir, "tuned"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input")
	assert.NotContains(t, out, "Starting fine-tuning")
	assert.NotContains(t, out, "__PROGRESS__")
}

func TestFinetune_UnknownModel(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	data := filepath.Join(dir, "train.jsonl")
	writeJSONL(t, data, `{"instruction": "a", "input": "", "output": "b"}`)

	_, err := execute(t, "--config", cfgPath, "finetune", "--model", "not-a-model", "--data", data)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrModelNotFound)
}

func TestExportTokenizer(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	base := filepath.Join(dir, "base")
	initTinyModel(t, cfgPath, base)

	dest := filepath.Join(dir, "export")
	out, err := execute(t, "--config", cfgPath, "export-tokenizer", "--base", base, "--dest", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Tokenizer saved to:")
	assert.FileExists(t, filepath.Join(dest, "tokenizer.gguf"))
}

func TestExportTokenizer_Placeholders(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())
	_, err := execute(t, "--config", cfgPath, "export-tokenizer")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrModelNotFound)
}

func TestModelInit_BadDType(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	_, err := execute(t, "--config", cfgPath, "model", "init", filepath.Join(dir, "m"), "--dtype", "q4")
	assert.Error(t, err)
}

func TestFormatParams(t *testing.T) {
	assert.Equal(t, "512", formatParams(512))
	assert.Equal(t, "890K", formatParams(890_000))
	assert.Equal(t, "12.6M", formatParams(12_600_000))
	assert.Equal(t, "1.5B", formatParams(1_500_000_000))
}

func TestModelInspect(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	base := filepath.Join(dir, "base")
	initTinyModel(t, cfgPath, base)

	out, err := execute(t, "--config", cfgPath, "model", "inspect", base)
	require.NoError(t, err)
	assert.Contains(t, out, "Architecture: tunegpt")
	assert.Contains(t, out, "token_embd.weight")
	assert.Contains(t, out, "blk.0.ffn_down.weight")

	out, err = execute(t, "--config", cfgPath, "model", "inspect",
		filepath.Join(base, "tokenizer.gguf"))
	require.NoError(t, err)
	assert.Contains(t, out, "values]")

	out, err = execute(t, "--config", cfgPath, "model", "inspect", base, "--tensor", "output.weight")
	require.NoError(t, err)
	assert.Contains(t, out, "Tensor: output.weight")
	assert.Contains(t, out, "Shape:")

	_, err = execute(t, "--config", cfgPath, "model", "inspect", base, "--tensor", "nope")
	assert.Error(t, err)
}
