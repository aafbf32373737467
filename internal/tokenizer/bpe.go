package tokenizer

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Encode converts text to token IDs using BPE algorithm
// If addBOS is true, prepends BOS token
// If addEOS is true, appends EOS token
func (t *Tokenizer) Encode(text string, addBOS, addEOS bool) []int {
	ids := make([]int, 0, len(text)+2)

	if addBOS && t.bosID >= 0 {
		ids = append(ids, t.bosID)
	}

	text = norm.NFC.String(text)
	for _, seg := range t.splitSpecial(text) {
		if seg.special {
			ids = append(ids, t.vocab[seg.text])
			continue
		}
		ids = t.encodeSegment(seg.text, ids)
	}

	if addEOS && t.eosID >= 0 {
		ids = append(ids, t.eosID)
	}

	return ids
}

type segment struct {
	text    string
	special bool
}

// splitSpecial cuts text around literal occurrences of control tokens
func (t *Tokenizer) splitSpecial(text string) []segment {
	if len(t.specialTokens) == 0 {
		return []segment{{text: text}}
	}

	var segs []segment
	start := 0
	for i := 0; i < len(text); {
		matched := ""
		for _, sp := range t.specialTokens {
			if strings.HasPrefix(text[i:], sp) {
				matched = sp
				break
			}
		}
		if matched == "" {
			i++
			continue
		}
		if i > start {
			segs = append(segs, segment{text: text[start:i]})
		}
		segs = append(segs, segment{text: matched, special: true})
		i += len(matched)
		start = i
	}
	if start < len(text) {
		segs = append(segs, segment{text: text[start:]})
	}
	return segs
}

// encodeSegment runs BPE over a span of ordinary text and appends the ids
func (t *Tokenizer) encodeSegment(text string, ids []int) []int {
	if text == "" {
		return ids
	}

	var tokens []string
	if t.modelType == ModelGPT2 {
		// GPT2-style preprocessing: spaces become Ġ and merges work on runes
		text = strings.ReplaceAll(text, " ", "Ġ")
		text = strings.ReplaceAll(text, "\n", "Ċ")
		for _, r := range text {
			tokens = append(tokens, string(r))
		}
	} else {
		b := []byte(text)
		tokens = make([]string, len(b))
		for i, c := range b {
			tokens[i] = string([]byte{c})
		}
	}

	// Apply BPE merges iteratively
	for len(t.merges) > 0 {
		bestRank := -1
		bestPos := -1

		for i := 0; i < len(tokens)-1; i++ {
			if rank, ok := t.merges[tokens[i]+" "+tokens[i+1]]; ok {
				if bestRank == -1 || rank < bestRank {
					bestRank = rank
					bestPos = i
				}
			}
		}

		if bestRank == -1 {
			break
		}

		merged := tokens[bestPos] + tokens[bestPos+1]
		tokens = append(tokens[:bestPos+1], tokens[bestPos+2:]...)
		tokens[bestPos] = merged
	}

	for _, token := range tokens {
		if id, ok := t.vocab[token]; ok {
			ids = append(ids, id)
		} else if t.unkID >= 0 {
			ids = append(ids, t.unkID)
		}
	}
	return ids
}

// Decode converts token IDs back to text
// If skipSpecial is true, skips BOS/EOS/PAD and other control tokens
func (t *Tokenizer) Decode(ids []int, skipSpecial bool) string {
	if len(ids) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, id := range ids {
		if skipSpecial && t.IsSpecial(id) {
			continue
		}

		token := t.IDToToken(id)
		if token == "" {
			continue // Skip invalid IDs
		}

		builder.WriteString(token)
	}

	out := builder.String()
	if t.modelType == ModelGPT2 {
		out = strings.NewReplacer("Ġ", " ", "Ċ", "\n").Replace(out)
	}
	return strings.ToValidUTF8(out, "�")
}

func sortByLenDesc(s []string) {
	sort.SliceStable(s, func(i, j int) bool { return len(s[i]) > len(s[j]) })
}
