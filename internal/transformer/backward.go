package transformer

import (
	"fmt"
	"math"
)

// IgnoreIndex marks label positions excluded from the loss
const IgnoreIndex = -100

// Batch is a collated group of equal-length sequences
type Batch struct {
	InputIDs      [][]int
	AttentionMask [][]int
	Labels        [][]int
}

// Size returns the number of sequences in the batch
func (b *Batch) Size() int {
	return len(b.InputIDs)
}

// ForwardBackward computes the mean cross-entropy of the batch and
// accumulates parameter gradients. Position t is scored against
// Labels[t+1]; IgnoreIndex labels do not count. A batch without any
// scored label returns zero loss and leaves gradients untouched.
func (m *Model) ForwardBackward(batch *Batch) (float64, error) {
	if len(batch.Labels) != len(batch.InputIDs) {
		return 0, fmt.Errorf("batch has %d label rows for %d sequences", len(batch.Labels), len(batch.InputIDs))
	}

	count := 0
	for i, labels := range batch.Labels {
		if len(labels) != len(batch.InputIDs[i]) {
			return 0, fmt.Errorf("sequence %d: %d labels for %d tokens", i, len(labels), len(batch.InputIDs[i]))
		}
		for t := 1; t < len(labels); t++ {
			if labels[t] != IgnoreIndex {
				count++
			}
		}
	}
	if count == 0 {
		return 0, nil
	}

	V := m.config.VocabSize
	scale := float32(1.0 / float64(count))
	var total float64

	for i, ids := range batch.InputIDs {
		var mask []int
		if i < len(batch.AttentionMask) {
			mask = batch.AttentionMask[i]
		}

		logits, cache, err := m.forward(ids, mask, false, true)
		if err != nil {
			return 0, fmt.Errorf("sequence %d: %w", i, err)
		}

		labels := batch.Labels[i]
		dlogits := make([]float32, len(logits))
		for t := 0; t+1 < len(ids); t++ {
			label := labels[t+1]
			if label == IgnoreIndex {
				continue
			}
			if label < 0 || label >= V {
				return 0, fmt.Errorf("sequence %d: label %d out of range [0, %d)", i, label, V)
			}

			row := logits[t*V : (t+1)*V]
			total += logSumExp(row) - float64(row[label])

			g := dlogits[t*V : (t+1)*V]
			copy(g, row)
			softmaxInPlace(g)
			g[label] -= 1
			for j := range g {
				g[j] *= scale
			}
		}

		m.backward(cache, dlogits)
	}

	loss := total / float64(count)
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return loss, fmt.Errorf("non-finite loss %v", loss)
	}
	return loss, nil
}

// Loss returns the mean cross-entropy of the batch without touching gradients
func (m *Model) Loss(batch *Batch) (float64, error) {
	V := m.config.VocabSize
	var total float64
	count := 0
	for i, ids := range batch.InputIDs {
		var mask []int
		if i < len(batch.AttentionMask) {
			mask = batch.AttentionMask[i]
		}
		logits, _, err := m.forward(ids, mask, false, false)
		if err != nil {
			return 0, err
		}
		for t := 0; t+1 < len(ids); t++ {
			label := batch.Labels[i][t+1]
			if label == IgnoreIndex {
				continue
			}
			if label < 0 || label >= V {
				return 0, fmt.Errorf("sequence %d: label %d out of range [0, %d)", i, label, V)
			}
			row := logits[t*V : (t+1)*V]
			total += logSumExp(row) - float64(row[label])
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return total / float64(count), nil
}

func (m *Model) backward(c *seqCache, dlogits []float32) {
	cfg := m.config
	T, D, F, V := c.T, cfg.HiddenDim, cfg.IntermediateDim, cfg.VocabSize

	df := linearBackward(m.dev, dlogits, c.f, m.Output.Data, m.Output.Grad, T, D, V)
	dx := rmsNormBackward(df, c.xf, m.OutputNorm.Data, c.invf, m.OutputNorm.Grad, T, D)

	for l := len(m.Blocks) - 1; l >= 0; l-- {
		blk, bc := m.Blocks[l], &c.blocks[l]

		dr := linearBackward(m.dev, dx, bc.r, blk.FFNDown.Data, blk.FFNDown.Grad, T, F, D)
		for i, u := range bc.u {
			if u <= 0 {
				dr[i] = 0
			}
		}
		db := linearBackward(m.dev, dr, bc.b, blk.FFNUp.Data, blk.FFNUp.Grad, T, D, F)
		dx1 := rmsNormBackward(db, bc.x1, blk.FFNNorm.Data, bc.inv2, blk.FFNNorm.Grad, T, D)
		add(dx1, dx)

		do := linearBackward(m.dev, dx1, bc.o, blk.AttnOutput.Data, blk.AttnOutput.Grad, T, D, D)
		dq, dk, dv := m.attentionBackward(do, bc, T)

		da := linearBackward(m.dev, dq, bc.a, blk.AttnQ.Data, blk.AttnQ.Grad, T, D, D)
		add(da, linearBackward(m.dev, dk, bc.a, blk.AttnK.Data, blk.AttnK.Grad, T, D, D))
		add(da, linearBackward(m.dev, dv, bc.a, blk.AttnV.Data, blk.AttnV.Grad, T, D, D))

		dxin := rmsNormBackward(da, bc.x, blk.AttnNorm.Data, bc.inv1, blk.AttnNorm.Grad, T, D)
		add(dxin, dx1)
		dx = dxin
	}

	for t, id := range c.tokens {
		row := dx[t*D : (t+1)*D]
		add(m.TokenEmbd.Grad[id*D:(id+1)*D], row)
		add(m.PosEmbd.Grad[t*D:(t+1)*D], row)
	}
}

// attentionBackward returns gradients for q, k and v. Heads own disjoint
// column ranges, so they run concurrently.
func (m *Model) attentionBackward(do []float32, c *blockCache, T int) ([]float32, []float32, []float32) {
	H, hd, D := m.config.NumHeads, m.config.HeadDim, m.config.HiddenDim
	scale := float32(1.0 / math.Sqrt(float64(hd)))

	dq := make([]float32, T*D)
	dk := make([]float32, T*D)
	dv := make([]float32, T*D)

	m.dev.ParallelFor(H, func(start, end int) {
		dp := make([]float32, T)
		for h := start; h < end; h++ {
			off := h * hd
			for i := 0; i < T; i++ {
				p := c.probs[(h*T+i)*T : (h*T+i+1)*T]
				doi := do[i*D+off : i*D+off+hd]

				var sumPD float32
				for j := 0; j <= i; j++ {
					if p[j] == 0 {
						continue
					}
					dp[j] = dot(doi, c.v[j*D+off:j*D+off+hd])
					sumPD += p[j] * dp[j]
				}

				qi := c.q[i*D+off : i*D+off+hd]
				dqi := dq[i*D+off : i*D+off+hd]
				for j := 0; j <= i; j++ {
					if p[j] == 0 {
						continue
					}
					ds := p[j] * (dp[j] - sumPD) * scale
					axpy(ds, c.k[j*D+off:j*D+off+hd], dqi)
					axpy(ds, qi, dk[j*D+off:j*D+off+hd])
					axpy(p[j], doi, dv[j*D+off:j*D+off+hd])
				}
			}
		}
	})

	return dq, dk, dv
}
