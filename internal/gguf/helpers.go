package gguf

import "strings"

// GetArchitecture returns general.architecture, or "unknown"
func (g *GGUFFile) GetArchitecture() string {
	if arch, ok := g.Metadata[KeyArchitecture].(string); ok {
		return arch
	}
	return "unknown"
}

// lookup finds key, expanding a %s placeholder with the architecture
// ("%s.block_count" -> "tunegpt.block_count").
func (g *GGUFFile) lookup(key string) (interface{}, bool) {
	if v, ok := g.Metadata[key]; ok {
		return v, true
	}
	if !strings.Contains(key, "%s") {
		return nil, false
	}
	v, ok := g.Metadata[strings.Replace(key, "%s", g.GetArchitecture(), 1)]
	return v, ok
}

// GetMetadataString returns a string value
func (g *GGUFFile) GetMetadataString(key string) (string, bool) {
	v, _ := g.lookup(key)
	s, ok := v.(string)
	return s, ok
}

// GetMetadataInt returns an integer value of any stored width
func (g *GGUFFile) GetMetadataInt(key string) (int, bool) {
	v, _ := g.lookup(key)
	return asInt(v)
}

// GetMetadataFloat returns a float32 or float64 value
func (g *GGUFFile) GetMetadataFloat(key string) (float64, bool) {
	v, _ := g.lookup(key)
	return asFloat(v)
}

// GetMetadataBool returns a boolean value
func (g *GGUFFile) GetMetadataBool(key string) (bool, bool) {
	v, _ := g.lookup(key)
	b, ok := v.(bool)
	return b, ok
}

// GetTokens returns tokenizer.ggml.tokens
func (g *GGUFFile) GetTokens() []string {
	return arrayOf(g.Metadata[KeyTokenizerTokens], func(v interface{}) (string, bool) {
		s, ok := v.(string)
		return s, ok
	})
}

// GetTokenScores returns tokenizer.ggml.scores
func (g *GGUFFile) GetTokenScores() []float32 {
	return arrayOf(g.Metadata[KeyTokenizerScores], func(v interface{}) (float32, bool) {
		f, ok := asFloat(v)
		return float32(f), ok
	})
}

// GetMerges returns tokenizer.ggml.merges
func (g *GGUFFile) GetMerges() []string {
	return arrayOf(g.Metadata[KeyTokenizerMerges], func(v interface{}) (string, bool) {
		s, ok := v.(string)
		return s, ok
	})
}

// GetTokenTypes returns the per-token type codes (1 normal, 3 control)
func (g *GGUFFile) GetTokenTypes() []int32 {
	return arrayOf(g.Metadata[KeyTokenizerTokenType], func(v interface{}) (int32, bool) {
		n, ok := asInt(v)
		return int32(n), ok
	})
}

// arrayOf converts a parsed metadata array, skipping elements conv rejects.
// It returns nil when raw is not an array.
func arrayOf[T any](raw interface{}, conv func(interface{}) (T, bool)) []T {
	items, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]T, 0, len(items))
	for _, item := range items {
		if v, ok := conv(item); ok {
			out = append(out, v)
		}
	}
	return out
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch f := v.(type) {
	case float32:
		return float64(f), true
	case float64:
		return f, true
	}
	return 0, false
}
