package transformer

import (
	"math"

	"github.com/xupit3r/tunebox/internal/device"
)

// linear computes y[t, o] = sum_i x[t, i] * w[o, i] for T rows.
// Output columns are split across the device workers.
func linear(dev device.Device, x, w []float32, T, in, out int) []float32 {
	y := make([]float32, T*out)
	dev.ParallelFor(out, func(start, end int) {
		for o := start; o < end; o++ {
			wr := w[o*in : (o+1)*in]
			for t := 0; t < T; t++ {
				y[t*out+o] = dot(x[t*in:(t+1)*in], wr)
			}
		}
	})
	return y
}

// linearBackward accumulates dw += dy^T x and returns dx = dy w.
func linearBackward(dev device.Device, dy, x, w, dw []float32, T, in, out int) []float32 {
	dev.ParallelFor(out, func(start, end int) {
		for o := start; o < end; o++ {
			dwr := dw[o*in : (o+1)*in]
			for t := 0; t < T; t++ {
				if g := dy[t*out+o]; g != 0 {
					axpy(g, x[t*in:(t+1)*in], dwr)
				}
			}
		}
	})

	dx := make([]float32, T*in)
	dev.ParallelFor(T, func(start, end int) {
		for t := start; t < end; t++ {
			dxr := dx[t*in : (t+1)*in]
			for o := 0; o < out; o++ {
				if g := dy[t*out+o]; g != 0 {
					axpy(g, w[o*in:(o+1)*in], dxr)
				}
			}
		}
	})
	return dx
}

// rmsNorm normalises each of the T rows of x and scales by gain.
// It returns the output and the per-row inverse RMS.
func rmsNorm(x, gain []float32, T, D int, eps float64) ([]float32, []float32) {
	out := make([]float32, T*D)
	inv := make([]float32, T)
	for t := 0; t < T; t++ {
		row := x[t*D : (t+1)*D]
		var sumSq float64
		for _, v := range row {
			sumSq += float64(v) * float64(v)
		}
		r := float32(1.0 / math.Sqrt(sumSq/float64(D)+eps))
		inv[t] = r
		o := out[t*D : (t+1)*D]
		for d, v := range row {
			o[d] = v * r * gain[d]
		}
	}
	return out, inv
}

// rmsNormBackward accumulates dgain and returns dx
func rmsNormBackward(dy, x, gain, inv, dgain []float32, T, D int) []float32 {
	dx := make([]float32, T*D)
	for t := 0; t < T; t++ {
		row := x[t*D : (t+1)*D]
		g := dy[t*D : (t+1)*D]
		r := inv[t]

		var proj float64
		for d := 0; d < D; d++ {
			dgain[d] += g[d] * row[d] * r
			proj += float64(g[d] * gain[d] * row[d])
		}

		c := float32(proj) * r * r * r / float32(D)
		o := dx[t*D : (t+1)*D]
		for d := 0; d < D; d++ {
			o[d] = r*gain[d]*g[d] - row[d]*c
		}
	}
	return dx
}

// softmaxInPlace replaces v with softmax(v)
func softmaxInPlace(v []float32) {
	maxV := float32(math.Inf(-1))
	for _, x := range v {
		if x > maxV {
			maxV = x
		}
	}
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - maxV))
		v[i] = float32(e)
		sum += e
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
}

// logSumExp returns log(sum(exp(v)))
func logSumExp(v []float32) float64 {
	maxV := math.Inf(-1)
	for _, x := range v {
		if float64(x) > maxV {
			maxV = float64(x)
		}
	}
	var sum float64
	for _, x := range v {
		sum += math.Exp(float64(x) - maxV)
	}
	return maxV + math.Log(sum)
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func axpy(alpha float32, x, y []float32) {
	for i := range x {
		y[i] += alpha * x[i]
	}
}

func add(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}
