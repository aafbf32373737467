package inference

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/xupit3r/tunebox/internal/chat"
	"github.com/xupit3r/tunebox/internal/device"
	"github.com/xupit3r/tunebox/internal/logging"
	"github.com/xupit3r/tunebox/internal/tokenizer"
	"github.com/xupit3r/tunebox/internal/transformer"
)

// Fixed reply texts printed by the chat command
const (
	ModelNotLoadedMessage = "Error: Model not loaded."
	InvalidLogitsMessage  = "Error: Invalid logits in the generated output."
	GenerationErrorPrefix = "Error during response generation: "
)

// ErrInvalidLogits is returned when the model produced NaN or Inf values
var ErrInvalidLogits = errors.New("invalid logits in the generated output")

// Engine generates chat replies from a local model directory
type Engine struct {
	model     *transformer.Model
	tokenizer *tokenizer.Tokenizer
	device    device.Device
	config    GenerationConfig
}

// Options configures Load
type Options struct {
	Device     string // auto, cpu or accelerator
	Workers    int    // <= 0 uses GOMAXPROCS
	Generation GenerationConfig
}

// DefaultGeneration returns the chat generation settings: beam sampling
// with 5 beams, temperature 0.7, top-k 50, top-p 0.9 and 100 new tokens.
func DefaultGeneration() GenerationConfig {
	return GenerationConfig{
		MaxNewTokens:  100,
		NumBeams:      5,
		DoSample:      true,
		Temperature:   0.7,
		TopK:          50,
		TopP:          0.9,
		LengthPenalty: 1.0,
		EOSID:         -1,
	}
}

// Load reads the tokenizer and model from path and selects a device.
// On any failure it returns a nil engine and the error.
func Load(path string, opts Options) (*Engine, error) {
	dev, err := device.Select(opts.Device, opts.Workers)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.Load(path)
	if err != nil {
		return nil, err
	}

	model, err := transformer.Load(path, dev)
	if err != nil {
		return nil, err
	}
	if model.Config().VocabSize < tok.VocabSize() {
		return nil, fmt.Errorf("model vocabulary (%d) is smaller than tokenizer vocabulary (%d)",
			model.Config().VocabSize, tok.VocabSize())
	}

	logging.Infof("Loaded model from %s on %s", path, device.Describe(dev))
	return NewEngine(model, tok, opts.Generation), nil
}

// NewEngine wraps an already loaded model and tokenizer
func NewEngine(model *transformer.Model, tok *tokenizer.Tokenizer, cfg GenerationConfig) *Engine {
	cfg.EOSID = tok.EOSID()
	return &Engine{
		model:     model,
		tokenizer: tok,
		device:    model.Device(),
		config:    cfg,
	}
}

// Generate returns the reply to message. The decoded text covers the
// prompt and the continuation; the response section is extracted when the
// instruction template is present.
func (e *Engine) Generate(ctx context.Context, message string) (string, error) {
	cfg := e.config

	prompt := e.tokenizer.Encode(message, false, false)
	if c := e.model.Config().ContextLength; len(prompt) > c {
		prompt = prompt[:c]
	}
	if len(prompt) == 0 {
		return "", fmt.Errorf("message encodes to zero tokens")
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sampler := NewSampler(cfg.Temperature, cfg.TopP, cfg.TopK, seed)

	next := func(tokens []int) ([]float32, error) {
		logits, err := e.model.NextLogits(tokens)
		if err != nil {
			return nil, err
		}
		for _, v := range logits {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, ErrInvalidLogits
			}
		}
		return logits, nil
	}

	start := time.Now()
	var output []int
	var err error
	if cfg.NumBeams > 1 {
		sampler.WithMinKeep(2)
		output, err = beamSearch(ctx, next, prompt, cfg, sampler)
	} else {
		output, err = greedyOrSample(ctx, next, prompt, cfg, sampler)
	}
	if err != nil {
		return "", err
	}

	logging.WithFields(map[string]interface{}{
		"prompt_tokens": len(prompt),
		"new_tokens":    len(output) - len(prompt),
		"beams":         cfg.NumBeams,
		"elapsed":       time.Since(start).Round(time.Millisecond).String(),
	}).Debug("Generation finished")

	// pad id is the EOS id during generation
	kept := make([]int, 0, len(output))
	for _, id := range output {
		if id != cfg.EOSID {
			kept = append(kept, id)
		}
	}

	decoded := strings.TrimSpace(e.tokenizer.Decode(kept, true))
	return chat.ExtractResponse(decoded), nil
}

// Respond never fails: errors become the reply text
func (e *Engine) Respond(ctx context.Context, message string) (reply string) {
	if e == nil || e.model == nil || e.tokenizer == nil {
		return ModelNotLoadedMessage
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Errorf("Generation panicked: %v", r)
			reply = fmt.Sprintf("%s%v", GenerationErrorPrefix, r)
		}
	}()

	text, err := e.Generate(ctx, message)
	switch {
	case errors.Is(err, ErrInvalidLogits):
		return InvalidLogitsMessage
	case err != nil:
		logging.Errorf("Generation failed: %v", err)
		return GenerationErrorPrefix + err.Error()
	}
	return text
}

// TokenCount returns the number of tokens in the given text
func (e *Engine) TokenCount(text string) int {
	return len(e.tokenizer.Encode(text, false, false))
}

// Device returns the device the engine runs on
func (e *Engine) Device() device.Device {
	return e.device
}
