// Package tokens estimates model token counts for extracted content.
package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// DefaultModel is the model whose encoding is used when none is configured.
const DefaultModel = "gpt-4"

const fallbackEncoding = "cl100k_base"

type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
}

type loaderFunc func(model string) (encoder, error)

// Estimator counts tokens with a lazily loaded tiktoken encoding. A failed load
// is remembered and every later Count returns nil.
type Estimator struct {
	model  string
	load   loaderFunc
	logger *zap.Logger

	mu     sync.Mutex
	enc    encoder
	loaded bool
}

// New builds an Estimator for model.
func New(model string, logger *zap.Logger) *Estimator {
	return newEstimator(model, loadTiktoken, logger)
}

func newEstimator(model string, load loaderFunc, logger *zap.Logger) *Estimator {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Estimator{model: model, load: load, logger: logger}
}

func loadTiktoken(model string) (encoder, error) {
	tkm, err := tiktoken.EncodingForModel(model)
	if err == nil {
		return tkm, nil
	}
	tkm, fallbackErr := tiktoken.GetEncoding(fallbackEncoding)
	if fallbackErr != nil {
		return nil, fmt.Errorf("load encoding for %s: %w", model, fallbackErr)
	}
	return tkm, nil
}

// Count returns the token count of text, or nil when no encoding is available.
func (e *Estimator) Count(text string) *int {
	enc := e.encoder()
	if enc == nil {
		return nil
	}
	n := len(enc.Encode(text, nil, nil))
	return &n
}

func (e *Estimator) encoder() encoder {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.loaded {
		e.loaded = true
		enc, err := e.load(e.model)
		if err != nil {
			e.logger.Warn("token estimator unavailable", zap.String("model", e.model), zap.Error(err))
		} else {
			e.enc = enc
		}
	}
	return e.enc
}

// Close releases the encoding. A later Count loads it again.
func (e *Estimator) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enc = nil
	e.loaded = false
}
