package inference

import (
	"math"
	"math/rand"
	"sort"
)

// Sampler implements various sampling strategies for token generation
type Sampler struct {
	temperature float32    // Temperature for sampling (0 = greedy, >1 = more random)
	topP        float32    // Top-P (nucleus) sampling threshold
	topK        int        // Top-K sampling (keep only top K tokens)
	minKeep     int        // Tokens kept by top-k/top-p regardless of thresholds
	rng         *rand.Rand // Random number generator
}

// NewSampler creates a new sampler with specified parameters
func NewSampler(temperature float32, topP float32, topK int, seed int64) *Sampler {
	return &Sampler{
		temperature: temperature,
		topP:        topP,
		topK:        topK,
		minKeep:     1,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// WithMinKeep sets how many tokens the top-k and top-p filters always keep.
// Beam search keeps two per beam.
func (s *Sampler) WithMinKeep(n int) *Sampler {
	if n < 1 {
		n = 1
	}
	s.minKeep = n
	return s
}

// Sample selects the next token from logits using configured sampling strategy
func (s *Sampler) Sample(logits []float32) int {
	// Greedy sampling (deterministic)
	if s.temperature == 0 {
		return SampleGreedy(logits)
	}

	scores := make([]float32, len(logits))
	copy(scores, logits)
	s.Warp(scores)

	return s.sampleMultinomial(scores)
}

// Warp applies temperature, top-K and top-P to scores in place. Filtered
// entries become -Inf.
func (s *Sampler) Warp(scores []float32) {
	s.applyTemperature(scores)
	if s.topK > 0 {
		s.applyTopK(scores)
	}
	if s.topP < 1.0 {
		s.applyTopP(scores)
	}
}

// SampleGreedy returns the token with highest logit value (deterministic)
func SampleGreedy(logits []float32) int {
	maxIdx := 0
	for i := 1; i < len(logits); i++ {
		if logits[i] > logits[maxIdx] {
			maxIdx = i
		}
	}
	return maxIdx
}

// applyTemperature scales logits by temperature
// Lower temperature -> peakier distribution (more confident)
// Higher temperature -> flatter distribution (more random)
func (s *Sampler) applyTemperature(logits []float32) {
	if s.temperature == 1.0 || s.temperature <= 0 {
		return
	}
	for i, v := range logits {
		logits[i] = float32(float64(v) / float64(s.temperature))
	}
}

// applyTopK keeps only the top K tokens, setting others to -inf
func (s *Sampler) applyTopK(logits []float32) {
	k := s.topK
	if k < s.minKeep {
		k = s.minKeep
	}
	if k >= len(logits) {
		return
	}

	values := make([]float32, len(logits))
	copy(values, logits)
	sort.Slice(values, func(i, j int) bool { return values[i] > values[j] })

	// Ties with the k-th value survive
	threshold := values[k-1]
	negInf := float32(math.Inf(-1))
	for i, v := range logits {
		if v < threshold {
			logits[i] = negInf
		}
	}
}

// applyTopP keeps the smallest set of tokens whose cumulative probability
// reaches P (nucleus sampling)
func (s *Sampler) applyTopP(logits []float32) {
	probs := softmax(logits)

	indices := make([]int, len(logits))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(i, j int) bool {
		return probs[indices[i]] > probs[indices[j]]
	})

	cutoff := len(indices)
	var cumsum float32
	for i, idx := range indices {
		cumsum += probs[idx]
		if cumsum >= s.topP {
			cutoff = i + 1
			break
		}
	}
	if cutoff < s.minKeep {
		cutoff = s.minKeep
	}

	negInf := float32(math.Inf(-1))
	for _, idx := range indices[cutoff:] {
		logits[idx] = negInf
	}
}

// sampleMultinomial samples from a categorical distribution defined by logits
func (s *Sampler) sampleMultinomial(logits []float32) int {
	probs := softmax(logits)

	r := s.rng.Float32()
	var cumsum float32
	for i, p := range probs {
		cumsum += p
		if r <= cumsum {
			return i
		}
	}

	// Rounding left r above the final cumulative sum
	for i := len(probs) - 1; i >= 0; i-- {
		if probs[i] > 0 {
			return i
		}
	}
	return len(probs) - 1
}

// softmax converts logits to probabilities with numerical stability.
// -Inf entries get zero probability.
func softmax(logits []float32) []float32 {
	probs := make([]float32, len(logits))

	maxVal := float32(math.Inf(-1))
	for _, v := range logits {
		if v > maxVal {
			maxVal = v
		}
	}
	if math.IsInf(float64(maxVal), -1) {
		for i := range probs {
			probs[i] = 1.0 / float32(len(probs))
		}
		return probs
	}

	var sum float64
	for i, v := range logits {
		if math.IsInf(float64(v), -1) {
			continue
		}
		e := math.Exp(float64(v - maxVal))
		probs[i] = float32(e)
		sum += e
	}
	for i := range probs {
		probs[i] = float32(float64(probs[i]) / sum)
	}

	return probs
}

// logSoftmax returns log(softmax(logits)) in float64 precision
func logSoftmax(logits []float32) []float64 {
	maxVal := math.Inf(-1)
	for _, v := range logits {
		if float64(v) > maxVal {
			maxVal = float64(v)
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v) - maxVal)
	}
	lse := maxVal + math.Log(sum)

	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = float64(v) - lse
	}
	return out
}
