package tui

import (
	"strings"
	"testing"
)

func TestHighlightCode(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
	}{
		{
			name:     "Go code block",
			input:    "```go\npackage main\n\nfunc main() {\n}\n```",
			contains: []string{"┌─ go ─", "package", "main", "func", "└─"},
		},
		{
			name:     "Python code block",
			input:    "```python\ndef hello():\n    print('hello')\n```",
			contains: []string{"┌─ python ─", "def", "hello"},
		},
		{
			name:     "No language specified",
			input:    "```\nsome code\n```",
			contains: []string{"│ some code"},
		},
		{
			name:     "Text without code blocks",
			input:    "This is plain text",
			contains: []string{"This is plain text"},
		},
		{
			name:     "Multiple code blocks",
			input:    "Text\n```go\nvar x int\n```\nMore text\n```python\ny = 1\n```",
			contains: []string{"Text", "More text", "var", "x", "y", "="},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := StripANSI(HighlightCode(tt.input))
			for _, expected := range tt.contains {
				if !strings.Contains(result, expected) {
					t.Errorf("Expected output to contain %q, got:\n%s", expected, result)
				}
			}
			if strings.Contains(result, "```") {
				t.Errorf("Fences should be replaced, got:\n%s", result)
			}
		})
	}
}

func TestHighlightCode_PlainUnchanged(t *testing.T) {
	in := "### Response:\nNo code here."
	if got := HighlightCode(in); got != in {
		t.Errorf("Expected %q unchanged, got %q", in, got)
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"ANSI color codes", "\x1b[31mRed\x1b[0m text", "Red text"},
		{"No ANSI codes", "Plain text", "Plain text"},
		{"Multiple ANSI codes", "\x1b[1m\x1b[31mBold Red\x1b[0m\x1b[0m", "Bold Red"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := StripANSI(tt.input); result != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestFormatCodeBlock(t *testing.T) {
	result := FormatCodeBlock("line1\nline2", "text")
	want := "┌─ text ─\n│ line1\n│ line2\n└─"
	if result != want {
		t.Errorf("Expected:\n%s\ngot:\n%s", want, result)
	}
}

func TestHighlightCodeBlock(t *testing.T) {
	for _, lang := range []string{"go", "python", "unknown"} {
		result := highlightCodeBlock("some text", lang)
		if strings.TrimSpace(StripANSI(result)) != "some text" {
			t.Errorf("%s: highlighting should preserve text, got %q", lang, StripANSI(result))
		}
	}
}
