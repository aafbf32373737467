package inference

import (
	"context"
	"math"
	"sort"
)

// GenerationConfig controls a single Generate call
type GenerationConfig struct {
	MaxNewTokens  int     // Tokens generated beyond the prompt
	NumBeams      int     // 1 disables beam search
	DoSample      bool    // Sample instead of taking the top candidates
	Temperature   float32 // Applied to beam scores before sampling
	TopK          int     // 0 disables top-k
	TopP          float32 // 1 disables nucleus filtering
	LengthPenalty float64 // Hypothesis score = sum logprobs / len^penalty
	EOSID         int     // Ends a hypothesis; -1 when the tokenizer has none
	Seed          int64
}

// logitsFunc returns next-token logits for a sequence
type logitsFunc func(tokens []int) ([]float32, error)

type beam struct {
	tokens []int
	score  float32
}

type candidate struct {
	beam  int
	token int
	score float32
	key   float64
}

// beamHypotheses keeps the best finished sequences, at most numBeams
type beamHypotheses struct {
	numBeams      int
	lengthPenalty float64
	tokens        [][]int
	scores        []float64
	worst         float64
}

func newBeamHypotheses(numBeams int, lengthPenalty float64) *beamHypotheses {
	return &beamHypotheses{numBeams: numBeams, lengthPenalty: lengthPenalty, worst: 1e9}
}

func (h *beamHypotheses) add(tokens []int, sumLogprobs float32) {
	score := float64(sumLogprobs) / math.Pow(float64(len(tokens)), h.lengthPenalty)
	if len(h.scores) >= h.numBeams && score <= h.worst {
		return
	}

	h.tokens = append(h.tokens, tokens)
	h.scores = append(h.scores, score)

	if len(h.scores) > h.numBeams {
		worstIdx := 0
		for i, s := range h.scores {
			if s < h.scores[worstIdx] {
				worstIdx = i
			}
		}
		h.tokens = append(h.tokens[:worstIdx], h.tokens[worstIdx+1:]...)
		h.scores = append(h.scores[:worstIdx], h.scores[worstIdx+1:]...)
		h.worst = math.Inf(1)
		for _, s := range h.scores {
			h.worst = math.Min(h.worst, s)
		}
	} else {
		h.worst = math.Min(score, h.worst)
	}
}

// isDone reports whether no running beam can beat the worst kept hypothesis
func (h *beamHypotheses) isDone(bestSumLogprobs float32, curLen int) bool {
	if len(h.scores) < h.numBeams {
		return false
	}
	cur := float64(bestSumLogprobs) / math.Pow(float64(curLen), h.lengthPenalty)
	return h.worst >= cur
}

func (h *beamHypotheses) best() []int {
	if len(h.scores) == 0 {
		return nil
	}
	bestIdx := 0
	for i, s := range h.scores {
		if s > h.scores[bestIdx] {
			bestIdx = i
		}
	}
	return h.tokens[bestIdx]
}

// beamSearch runs beam search, or beam sampling when cfg.DoSample is set.
// Every step scores each running beam with log-softmax plus the beam score,
// warps the rows, picks 2*NumBeams candidates over all beams and keeps the
// best NumBeams that do not end in EOS. The returned sequence includes the
// prompt.
func beamSearch(ctx context.Context, next logitsFunc, prompt []int, cfg GenerationConfig, s *Sampler) ([]int, error) {
	nb := cfg.NumBeams
	maxLen := len(prompt) + cfg.MaxNewTokens

	beams := make([]beam, nb)
	for i := range beams {
		beams[i] = beam{tokens: prompt}
		if i > 0 {
			// only the first beam is live at the start
			beams[i].score = -1e9
		}
	}

	hyps := newBeamHypotheses(nb, cfg.LengthPenalty)
	done := false

	for curLen := len(prompt); curLen < maxLen; curLen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var rows [][]float32
		var prev []float32
		for i, b := range beams {
			var logits []float32
			if i > 0 && sameTokens(b.tokens, beams[i-1].tokens) {
				logits = prev
			} else {
				var err error
				if logits, err = next(b.tokens); err != nil {
					return nil, err
				}
			}
			prev = logits

			ls := logSoftmax(logits)
			row := make([]float32, len(ls))
			for v, l := range ls {
				row[v] = float32(l) + b.score
			}
			if cfg.DoSample {
				s.Warp(row)
			}
			rows = append(rows, row)
		}

		var cands []candidate
		if cfg.DoSample {
			cands = s.sampleCandidates(rows, 2*nb)
		} else {
			cands = topCandidates(rows, 2*nb)
		}
		if len(cands) == 0 {
			break
		}
		sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

		var nextBeams []beam
		for rank, c := range cands {
			if cfg.EOSID >= 0 && c.token == cfg.EOSID {
				if rank >= nb {
					continue
				}
				hyps.add(beams[c.beam].tokens, c.score)
			} else {
				tokens := make([]int, len(beams[c.beam].tokens)+1)
				copy(tokens, beams[c.beam].tokens)
				tokens[len(tokens)-1] = c.token
				nextBeams = append(nextBeams, beam{tokens: tokens, score: c.score})
			}
			if len(nextBeams) == nb {
				break
			}
		}

		done = hyps.isDone(cands[0].score, curLen)
		if len(nextBeams) == 0 {
			break
		}
		beams = nextBeams
		if done {
			break
		}
	}

	if !done {
		for _, b := range beams {
			hyps.add(b.tokens, b.score)
		}
	}

	if best := hyps.best(); best != nil {
		return best, nil
	}
	return beams[0].tokens, nil
}

// greedyOrSample generates with a single sequence, stopping after EOS
func greedyOrSample(ctx context.Context, next logitsFunc, prompt []int, cfg GenerationConfig, s *Sampler) ([]int, error) {
	tokens := append([]int(nil), prompt...)
	for i := 0; i < cfg.MaxNewTokens; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logits, err := next(tokens)
		if err != nil {
			return nil, err
		}

		var tok int
		if cfg.DoSample {
			tok = s.Sample(logits)
		} else {
			tok = SampleGreedy(logits)
		}
		tokens = append(tokens, tok)
		if cfg.EOSID >= 0 && tok == cfg.EOSID {
			break
		}
	}
	return tokens, nil
}

// topCandidates returns the n highest-scoring (beam, token) pairs
func topCandidates(rows [][]float32, n int) []candidate {
	var all []candidate
	for b, row := range rows {
		for v, sc := range row {
			if !math.IsInf(float64(sc), -1) {
				all = append(all, candidate{beam: b, token: v, score: sc})
			}
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// sampleCandidates draws n distinct (beam, token) pairs from the softmax
// over all rows, without replacement (Gumbel top-k). Pairs whose
// probability underflows to zero follow in score order.
func (s *Sampler) sampleCandidates(rows [][]float32, n int) []candidate {
	V := len(rows[0])
	flat := make([]float32, 0, len(rows)*V)
	for _, row := range rows {
		flat = append(flat, row...)
	}
	probs := softmax(flat)

	var all []candidate
	for i, sc := range flat {
		if math.IsInf(float64(sc), -1) {
			continue
		}
		key := math.Inf(-1)
		if p := probs[i]; p > 0 {
			u := s.rng.Float64()
			for u == 0 {
				u = s.rng.Float64()
			}
			key = math.Log(float64(p)) - math.Log(-math.Log(u))
		}
		all = append(all, candidate{beam: i / V, token: i % V, score: sc, key: key})
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].key != all[j].key {
			return all[i].key > all[j].key
		}
		return all[i].score > all[j].score
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func sameTokens(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) > 0 && &a[0] == &b[0] {
		return true
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
