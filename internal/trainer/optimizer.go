package trainer

import (
	"math"

	"github.com/xupit3r/tunebox/internal/transformer"
)

// AdamW applies Adam with decoupled weight decay
type AdamW struct {
	params      []*transformer.Param
	beta1       float64
	beta2       float64
	eps         float64
	weightDecay float64
	m           [][]float32
	v           [][]float32
	step        int
}

// NewAdamW allocates moment buffers for params
func NewAdamW(params []*transformer.Param, beta1, beta2, eps, weightDecay float64) *AdamW {
	opt := &AdamW{
		params:      params,
		beta1:       beta1,
		beta2:       beta2,
		eps:         eps,
		weightDecay: weightDecay,
		m:           make([][]float32, len(params)),
		v:           make([][]float32, len(params)),
	}
	for i, p := range params {
		opt.m[i] = make([]float32, len(p.Data))
		opt.v[i] = make([]float32, len(p.Data))
	}
	return opt
}

// Step updates every parameter from its gradient at learning rate lr
func (o *AdamW) Step(lr float64) {
	o.step++
	bc1 := 1 - math.Pow(o.beta1, float64(o.step))
	bc2 := 1 - math.Pow(o.beta2, float64(o.step))
	stepSize := lr / bc1
	bc2Sqrt := math.Sqrt(bc2)
	b1, b2 := float32(o.beta1), float32(o.beta2)

	for i, p := range o.params {
		m, v := o.m[i], o.v[i]
		decay := float32(1)
		if !p.NoDecay && o.weightDecay != 0 {
			decay = float32(1 - lr*o.weightDecay)
		}
		for j, g := range p.Grad {
			p.Data[j] *= decay
			m[j] = b1*m[j] + (1-b1)*g
			v[j] = b2*v[j] + (1-b2)*g*g
			denom := math.Sqrt(float64(v[j]))/bc2Sqrt + o.eps
			p.Data[j] -= float32(stepSize * float64(m[j]) / denom)
		}
	}
}

// Steps reports how many updates have been applied
func (o *AdamW) Steps() int {
	return o.step
}

// LinearSchedule returns the learning rate multiplier for step: a linear
// warmup followed by a linear decay to zero at maxSteps.
func LinearSchedule(step, warmup, maxSteps int) float64 {
	if step < warmup {
		return float64(step) / float64(max(1, warmup))
	}
	return math.Max(0, float64(maxSteps-step)/float64(max(1, maxSteps-warmup)))
}

// ClipGradNorm scales gradients so their global L2 norm is at most
// maxNorm and returns the norm before clipping.
func ClipGradNorm(params []*transformer.Param, maxNorm float64) float64 {
	var sum float64
	for _, p := range params {
		for _, g := range p.Grad {
			sum += float64(g) * float64(g)
		}
	}
	norm := math.Sqrt(sum)
	if maxNorm <= 0 {
		return norm
	}
	coef := maxNorm / (norm + 1e-6)
	if coef < 1 {
		c := float32(coef)
		for _, p := range params {
			for j := range p.Grad {
				p.Grad[j] *= c
			}
		}
	}
	return norm
}
