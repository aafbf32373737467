package transformer

import (
	"fmt"
	"math"
)

// blockCache keeps the activations of one block for the backward pass
type blockCache struct {
	x     []float32 // block input [T, D]
	inv1  []float32 // attn_norm inverse RMS [T]
	a     []float32 // normed input [T, D]
	q     []float32 // [T, D]
	k     []float32 // [T, D]
	v     []float32 // [T, D]
	probs []float32 // attention weights [H, T, T]
	o     []float32 // concatenated head outputs [T, D]
	x1    []float32 // after attention residual [T, D]
	inv2  []float32 // ffn_norm inverse RMS [T]
	b     []float32 // normed x1 [T, D]
	u     []float32 // ffn_up output before ReLU [T, F]
	r     []float32 // ReLU(u) [T, F]
}

// seqCache holds everything needed to backpropagate one sequence
type seqCache struct {
	T      int
	tokens []int
	blocks []blockCache
	xf     []float32 // final block output [T, D]
	invf   []float32 // output_norm inverse RMS [T]
	f      []float32 // normed final hidden [T, D]
}

// Forward returns logits for every position of tokens as [T][V]
func (m *Model) Forward(tokens []int) ([][]float32, error) {
	logits, _, err := m.forward(tokens, nil, false, false)
	if err != nil {
		return nil, err
	}
	V := m.config.VocabSize
	out := make([][]float32, len(tokens))
	for t := range out {
		out[t] = logits[t*V : (t+1)*V]
	}
	return out, nil
}

// NextLogits returns the logits for the token after the sequence. Only
// the last ContextLength tokens are used.
func (m *Model) NextLogits(tokens []int) ([]float32, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty input")
	}
	if c := m.config.ContextLength; len(tokens) > c {
		tokens = tokens[len(tokens)-c:]
	}
	logits, _, err := m.forward(tokens, nil, true, false)
	return logits, err
}

// forward runs the network. mask may be nil (all ones). With lastOnly the
// LM head is applied to the final position only. With keep the
// activations are returned for backpropagation.
func (m *Model) forward(tokens, mask []int, lastOnly, keep bool) ([]float32, *seqCache, error) {
	cfg := m.config
	T, D, F, V := len(tokens), cfg.HiddenDim, cfg.IntermediateDim, cfg.VocabSize
	eps := cfg.RMSNormEps

	if T == 0 {
		return nil, nil, fmt.Errorf("empty input")
	}
	if T > cfg.ContextLength {
		return nil, nil, fmt.Errorf("sequence length %d exceeds context length %d", T, cfg.ContextLength)
	}

	x := make([]float32, T*D)
	for t, id := range tokens {
		if id < 0 || id >= V {
			return nil, nil, fmt.Errorf("token id %d out of range [0, %d)", id, V)
		}
		row := x[t*D : (t+1)*D]
		copy(row, m.TokenEmbd.Data[id*D:(id+1)*D])
		add(row, m.PosEmbd.Data[t*D:(t+1)*D])
	}

	var cache *seqCache
	if keep {
		cache = &seqCache{T: T, tokens: tokens, blocks: make([]blockCache, len(m.Blocks))}
	}

	for l, blk := range m.Blocks {
		a, inv1 := rmsNorm(x, blk.AttnNorm.Data, T, D, eps)
		q := linear(m.dev, a, blk.AttnQ.Data, T, D, D)
		k := linear(m.dev, a, blk.AttnK.Data, T, D, D)
		v := linear(m.dev, a, blk.AttnV.Data, T, D, D)
		o, probs := m.attention(q, k, v, mask, T)
		attnOut := linear(m.dev, o, blk.AttnOutput.Data, T, D, D)

		x1 := make([]float32, T*D)
		copy(x1, x)
		add(x1, attnOut)

		b, inv2 := rmsNorm(x1, blk.FFNNorm.Data, T, D, eps)
		u := linear(m.dev, b, blk.FFNUp.Data, T, D, F)
		r := make([]float32, len(u))
		for i, val := range u {
			if val > 0 {
				r[i] = val
			}
		}
		down := linear(m.dev, r, blk.FFNDown.Data, T, F, D)

		x2 := make([]float32, T*D)
		copy(x2, x1)
		add(x2, down)

		if keep {
			cache.blocks[l] = blockCache{
				x: x, inv1: inv1, a: a, q: q, k: k, v: v, probs: probs, o: o,
				x1: x1, inv2: inv2, b: b, u: u, r: r,
			}
		}
		x = x2
	}

	f, invf := rmsNorm(x, m.OutputNorm.Data, T, D, eps)
	if keep {
		cache.xf = x
		cache.invf = invf
		cache.f = f
	}

	if lastOnly {
		return linear(m.dev, f[(T-1)*D:], m.Output.Data, 1, D, V), cache, nil
	}
	return linear(m.dev, f, m.Output.Data, T, D, V), cache, nil
}

// attention runs causal multi-head attention. Keys whose mask entry is 0
// never receive weight; a query with no visible key outputs zeros.
func (m *Model) attention(q, k, v []float32, mask []int, T int) ([]float32, []float32) {
	H, hd, D := m.config.NumHeads, m.config.HeadDim, m.config.HiddenDim
	scale := float32(1.0 / math.Sqrt(float64(hd)))

	out := make([]float32, T*D)
	probs := make([]float32, H*T*T)

	m.dev.ParallelFor(H*T, func(start, end int) {
		for idx := start; idx < end; idx++ {
			h, i := idx/T, idx%T
			off := h * hd
			qi := q[i*D+off : i*D+off+hd]
			p := probs[(h*T+i)*T : (h*T+i+1)*T]

			visible := false
			maxS := float32(math.Inf(-1))
			for j := 0; j <= i; j++ {
				if mask != nil && mask[j] == 0 {
					continue
				}
				s := dot(qi, k[j*D+off:j*D+off+hd]) * scale
				p[j] = s
				if s > maxS {
					maxS = s
				}
				visible = true
			}
			if !visible {
				continue
			}

			var sum float64
			for j := 0; j <= i; j++ {
				if mask != nil && mask[j] == 0 {
					p[j] = 0
					continue
				}
				e := math.Exp(float64(p[j] - maxS))
				p[j] = float32(e)
				sum += e
			}

			oi := out[i*D+off : i*D+off+hd]
			for j := 0; j <= i; j++ {
				if p[j] == 0 {
					continue
				}
				p[j] = float32(float64(p[j]) / sum)
				axpy(p[j], v[j*D+off:j*D+off+hd], oi)
			}
		}
	})

	return out, probs
}
