package transformer

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/xupit3r/tunebox/internal/device"
)

// Param is a trainable tensor with its gradient buffer.
// Shape is outermost first; Data and Grad are row-major.
type Param struct {
	Name    string
	Shape   []int
	Data    []float32
	Grad    []float32
	NoDecay bool // excluded from weight decay (norm gains)
}

func newParam(name string, noDecay bool, shape ...int) *Param {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Param{
		Name:    name,
		Shape:   shape,
		Data:    make([]float32, n),
		Grad:    make([]float32, n),
		NoDecay: noDecay,
	}
}

// Block holds one pre-norm transformer layer
type Block struct {
	AttnNorm   *Param // [D]
	AttnQ      *Param // [D, D]
	AttnK      *Param // [D, D]
	AttnV      *Param // [D, D]
	AttnOutput *Param // [D, D]
	FFNNorm    *Param // [D]
	FFNUp      *Param // [F, D]
	FFNDown    *Param // [D, F]
}

// Model is a decoder-only causal language model
type Model struct {
	config *Config
	dev    device.Device

	TokenEmbd  *Param // [V, D]
	PosEmbd    *Param // [C, D]
	Blocks     []*Block
	OutputNorm *Param // [D]
	Output     *Param // [V, D]
}

// NewModel creates a randomly initialised model. Weights are drawn from
// N(0, 0.02); residual projections are scaled by 1/sqrt(2*layers).
func NewModel(cfg *Config, seed int64, dev device.Device) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if dev == nil {
		dev = device.NewCPUDevice(0)
	}

	m := newEmptyModel(cfg, dev)
	rng := rand.New(rand.NewSource(seed))
	residualStd := 0.02 / math.Sqrt(2*float64(cfg.NumLayers))

	for _, p := range m.Parameters() {
		if p.NoDecay {
			fill(p.Data, 1)
		} else {
			randn(rng, p.Data, 0.02)
		}
	}
	for _, b := range m.Blocks {
		randn(rng, b.AttnOutput.Data, residualStd)
		randn(rng, b.FFNDown.Data, residualStd)
	}

	return m, nil
}

func newEmptyModel(cfg *Config, dev device.Device) *Model {
	D, F, V := cfg.HiddenDim, cfg.IntermediateDim, cfg.VocabSize

	m := &Model{
		config:     cfg,
		dev:        dev,
		TokenEmbd:  newParam("token_embd.weight", false, V, D),
		PosEmbd:    newParam("position_embd.weight", false, cfg.ContextLength, D),
		OutputNorm: newParam("output_norm.weight", true, D),
		Output:     newParam("output.weight", false, V, D),
	}
	for l := 0; l < cfg.NumLayers; l++ {
		name := func(s string) string { return fmt.Sprintf("blk.%d.%s.weight", l, s) }
		m.Blocks = append(m.Blocks, &Block{
			AttnNorm:   newParam(name("attn_norm"), true, D),
			AttnQ:      newParam(name("attn_q"), false, D, D),
			AttnK:      newParam(name("attn_k"), false, D, D),
			AttnV:      newParam(name("attn_v"), false, D, D),
			AttnOutput: newParam(name("attn_output"), false, D, D),
			FFNNorm:    newParam(name("ffn_norm"), true, D),
			FFNUp:      newParam(name("ffn_up"), false, F, D),
			FFNDown:    newParam(name("ffn_down"), false, D, F),
		})
	}
	return m
}

// Config returns the model configuration
func (m *Model) Config() *Config {
	return m.config
}

// Device returns the compute device
func (m *Model) Device() device.Device {
	return m.dev
}

// Parameters returns every trainable tensor in checkpoint order
func (m *Model) Parameters() []*Param {
	params := []*Param{m.TokenEmbd, m.PosEmbd}
	for _, b := range m.Blocks {
		params = append(params,
			b.AttnNorm, b.AttnQ, b.AttnK, b.AttnV, b.AttnOutput,
			b.FFNNorm, b.FFNUp, b.FFNDown,
		)
	}
	return append(params, m.OutputNorm, m.Output)
}

// Gradients returns the gradient buffers aligned with Parameters
func (m *Model) Gradients() [][]float32 {
	params := m.Parameters()
	grads := make([][]float32, len(params))
	for i, p := range params {
		grads[i] = p.Grad
	}
	return grads
}

// NumParams returns the total number of scalar parameters
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.Parameters() {
		n += len(p.Data)
	}
	return n
}

// ZeroGrad clears all accumulated gradients
func (m *Model) ZeroGrad() {
	for _, p := range m.Parameters() {
		fill(p.Grad, 0)
	}
}

// ResizeTokenEmbeddings changes the vocabulary dimension of the embedding
// table and LM head. New rows are set to the mean of the existing rows.
func (m *Model) ResizeTokenEmbeddings(n int) error {
	if n <= 0 {
		return fmt.Errorf("vocab size must be positive, got %d", n)
	}
	if n == m.config.VocabSize {
		return nil
	}

	m.TokenEmbd = resizeRows(m.TokenEmbd, n)
	m.Output = resizeRows(m.Output, n)
	m.config.VocabSize = n
	return nil
}

func resizeRows(p *Param, n int) *Param {
	rows, cols := p.Shape[0], p.Shape[1]
	out := newParam(p.Name, p.NoDecay, n, cols)

	keep := rows
	if n < keep {
		keep = n
	}
	copy(out.Data, p.Data[:keep*cols])

	if n > rows {
		mean := make([]float64, cols)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				mean[c] += float64(p.Data[r*cols+c])
			}
		}
		for r := rows; r < n; r++ {
			for c := 0; c < cols; c++ {
				out.Data[r*cols+c] = float32(mean[c] / float64(rows))
			}
		}
	}
	return out
}

func fill(s []float32, v float32) {
	for i := range s {
		s[i] = v
	}
}

func randn(rng *rand.Rand, s []float32, std float64) {
	for i := range s {
		s[i] = float32(rng.NormFloat64() * std)
	}
}
