package gguf

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, dtype GGMLType) string {
	t.Helper()

	w := NewWriter()
	w.Set(KeyArchitecture, "tunegpt")
	w.Set(KeyName, "tiny")
	w.Set("tunegpt.block_count", uint32(2))
	w.Set("tunegpt.attention.layer_norm_rms_epsilon", float32(1e-5))
	w.Set(KeyTokenizerTokens, []string{"a", "b", "<|endoftext|>"})
	w.Set(KeyTokenizerTokenType, []int32{1, 1, 3})
	w.Set(KeyTokenizerScores, []float32{0, -1, 0})
	w.Set("general.quantized", false)

	if err := w.AddTensor("token_embd.weight", []int{3, 2}, dtype, []float32{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatalf("AddTensor failed: %v", err)
	}
	if err := w.AddTensor("output_norm.weight", []int{3}, dtype, []float32{0.5, -0.25, 1}); err != nil {
		t.Fatalf("AddTensor failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "model.gguf")
	if err := w.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	return path
}

func TestWriterRoundTrip(t *testing.T) {
	for _, dtype := range []GGMLType{GGML_TYPE_F32, GGML_TYPE_F16} {
		t.Run(dtype.String(), func(t *testing.T) {
			g, err := ParseGGUF(writeTestFile(t, dtype))
			if err != nil {
				t.Fatalf("ParseGGUF failed: %v", err)
			}

			if g.Version() != 3 {
				t.Errorf("Expected version 3, got %d", g.Version())
			}
			if g.TensorCount() != 2 {
				t.Errorf("Expected 2 tensors, got %d", g.TensorCount())
			}
			if g.GetArchitecture() != "tunegpt" {
				t.Errorf("Expected tunegpt, got %s", g.GetArchitecture())
			}

			names := g.ListTensors()
			if len(names) != 2 || names[0] != "token_embd.weight" || names[1] != "output_norm.weight" {
				t.Errorf("Unexpected tensor order: %v", names)
			}

			data, shape, err := g.LoadFloat32("token_embd.weight")
			if err != nil {
				t.Fatalf("LoadFloat32 failed: %v", err)
			}
			if len(shape) != 2 || shape[0] != 3 || shape[1] != 2 {
				t.Errorf("Expected shape [3 2], got %v", shape)
			}
			for i, want := range []float32{1, 2, 3, 4, 5, 6} {
				if data[i] != want {
					t.Errorf("data[%d] = %v, want %v", i, data[i], want)
				}
			}

			norm, _, err := g.LoadFloat32("output_norm.weight")
			if err != nil {
				t.Fatalf("LoadFloat32 failed: %v", err)
			}
			if norm[1] != -0.25 {
				t.Errorf("Expected -0.25, got %v", norm[1])
			}
		})
	}
}

func TestMetadataHelpers(t *testing.T) {
	g, err := ParseGGUF(writeTestFile(t, GGML_TYPE_F32))
	if err != nil {
		t.Fatalf("ParseGGUF failed: %v", err)
	}

	if n, ok := g.GetMetadataInt(KeyBlockCount); !ok || n != 2 {
		t.Errorf("Expected block count 2, got %d (%v)", n, ok)
	}
	if eps, ok := g.GetMetadataFloat(KeyNormRMSEps); !ok || math.Abs(eps-1e-5) > 1e-9 {
		t.Errorf("Expected eps 1e-5, got %v (%v)", eps, ok)
	}
	if name, ok := g.GetMetadataString(KeyName); !ok || name != "tiny" {
		t.Errorf("Expected name tiny, got %q", name)
	}
	if q, ok := g.GetMetadataBool("general.quantized"); !ok || q {
		t.Errorf("Expected quantized=false, got %v (%v)", q, ok)
	}

	tokens := g.GetTokens()
	if len(tokens) != 3 || tokens[2] != "<|endoftext|>" {
		t.Errorf("Unexpected tokens: %v", tokens)
	}
	types := g.GetTokenTypes()
	if len(types) != 3 || types[2] != 3 {
		t.Errorf("Unexpected token types: %v", types)
	}
	if scores := g.GetTokenScores(); len(scores) != 3 || scores[1] != -1 {
		t.Errorf("Unexpected scores: %v", scores)
	}
	if merges := g.GetMerges(); merges != nil {
		t.Errorf("Expected no merges, got %v", merges)
	}
}

func TestLoadFloat32_Missing(t *testing.T) {
	g, err := ParseGGUF(writeTestFile(t, GGML_TYPE_F32))
	if err != nil {
		t.Fatalf("ParseGGUF failed: %v", err)
	}
	if _, _, err := g.LoadFloat32("nope.weight"); err == nil {
		t.Error("Expected error for missing tensor")
	}
	if g.HasTensor("nope.weight") {
		t.Error("HasTensor should be false")
	}
	if _, err := g.GetTensorInfo("token_embd.weight"); err != nil {
		t.Errorf("GetTensorInfo failed: %v", err)
	}
}

func TestAddTensor_Errors(t *testing.T) {
	w := NewWriter()
	if err := w.AddTensor("x", []int{2, 2}, GGML_TYPE_F32, []float32{1, 2, 3}); err == nil {
		t.Error("Expected shape mismatch error")
	}
	if err := w.AddTensor("x", []int{1}, GGML_TYPE_Q4_0, []float32{1}); err == nil {
		t.Error("Expected unsupported dtype error")
	}
}

func TestParseGGUF_InvalidMagic(t *testing.T) {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, uint32(0x12345678))
	binary.Write(buf, binary.LittleEndian, uint32(3))

	path := filepath.Join(t.TempDir(), "bad.gguf")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ParseGGUF(path); err == nil {
		t.Error("Expected error for invalid magic")
	}
}

func TestParseGGUF_UnsupportedVersion(t *testing.T) {
	buf := &bytes.Buffer{}
	binary.Write(buf, binary.LittleEndian, uint32(ggufMagic))
	binary.Write(buf, binary.LittleEndian, uint32(99))

	path := filepath.Join(t.TempDir(), "v99.gguf")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := ParseGGUF(path); err == nil {
		t.Error("Expected error for unsupported version")
	}
}

func TestParseGGUF_FileNotFound(t *testing.T) {
	if _, err := ParseGGUF("/nonexistent/model.gguf"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestParseGGMLType(t *testing.T) {
	tests := []struct {
		name    string
		want    GGMLType
		wantErr bool
	}{
		{"f32", GGML_TYPE_F32, false},
		{"F16", GGML_TYPE_F16, false},
		{"q4_0", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseGGMLType(tt.name)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseGGMLType(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseGGMLType(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCalculateTensorSize(t *testing.T) {
	tests := []struct {
		dims  []uint64
		dtype GGMLType
		want  uint64
	}{
		{[]uint64{4, 8}, GGML_TYPE_F32, 128},
		{[]uint64{4, 8}, GGML_TYPE_F16, 64},
		{[]uint64{32}, GGML_TYPE_Q4_0, 18},
		{[]uint64{256}, GGML_TYPE_Q6_K, 210},
	}
	for _, tt := range tests {
		if got := calculateTensorSize(tt.dims, tt.dtype); got != tt.want {
			t.Errorf("calculateTensorSize(%v, %s) = %d, want %d", tt.dims, tt.dtype, got, tt.want)
		}
	}
}
