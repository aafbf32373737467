package tui

import (
	"bytes"
	"regexp"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
)

var (
	codeBlockRegex = regexp.MustCompile("(?s)```(\\w*)\\n(.*?)```")
	ansiRegex      = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// HighlightCode renders fenced code blocks in a model reply as framed,
// syntax highlighted blocks. Text outside fences is left untouched.
func HighlightCode(text string) string {
	return codeBlockRegex.ReplaceAllStringFunc(text, func(match string) string {
		submatch := codeBlockRegex.FindStringSubmatch(match)
		if len(submatch) < 3 {
			return match
		}

		language := submatch[1]
		code := strings.TrimSuffix(submatch[2], "\n")
		if language == "" {
			if l := lexers.Analyse(code); l != nil {
				language = strings.ToLower(l.Config().Name)
			} else {
				language = "text"
			}
		}

		return FormatCodeBlock(highlightCodeBlock(code, language), language)
	})
}

var (
	codeFormatter = formatters.TTY256
	styleOnce     sync.Once
	style         *chroma.Style
)

// codeStyle picks a chroma style that reads on the terminal background
func codeStyle() *chroma.Style {
	styleOnce.Do(func() {
		name := "monokai"
		if !lipgloss.HasDarkBackground() {
			name = "github"
		}
		style = styles.Get(name)
	})
	return style
}

func highlightCodeBlock(code, language string) string {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}

	var buf bytes.Buffer
	if err := codeFormatter.Format(&buf, codeStyle(), iterator); err != nil {
		return code
	}

	// lexers append a newline; keep any trailing reset codes on the last line
	lines := strings.Split(buf.String(), "\n")
	if n := len(lines); n > 1 && StripANSI(lines[n-1]) == "" {
		lines[n-2] += lines[n-1]
		lines = lines[:n-1]
	}
	return strings.Join(lines, "\n")
}

// StripANSI removes ANSI color codes from text
func StripANSI(text string) string {
	return ansiRegex.ReplaceAllString(text, "")
}

// FormatCodeBlock wraps code with visual markers
func FormatCodeBlock(code, language string) string {
	var sb strings.Builder
	sb.WriteString("┌─ " + language + " ─\n")
	for _, line := range strings.Split(code, "\n") {
		sb.WriteString("│ " + line + "\n")
	}
	sb.WriteString("└─")
	return sb.String()
}
