// Package embed turns article texts into unit-norm vectors. It batches calls
// to the embedding backend, preserves input order, and normalizes every
// output vector. This is the only stage inside the pipeline that talks to the
// network, so it carries its own timeout independent of the caller's.
package embed

import (
	"context"
	"fmt"
	"math"
	"time"

	"daybrief/internal/llm"
)

// DefaultBatchSize is the maximum number of texts per upstream call.
const DefaultBatchSize = 20

// DefaultBatchTimeout bounds a single batch call.
const DefaultBatchTimeout = 30 * time.Second

// Embedder batches embedding requests against an llm.Embedder backend.
type Embedder struct {
	backend   llm.Embedder
	batchSize int
	timeout   time.Duration
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithBatchSize overrides the per-call batch size.
func WithBatchSize(n int) Option {
	return func(e *Embedder) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithTimeout overrides the per-batch timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Embedder) { e.timeout = d }
}

// New creates an Embedder. backend may be nil, in which case every call
// returns llm.ErrUnavailable and callers degrade to keyword-only clustering.
func New(backend llm.Embedder, opts ...Option) *Embedder {
	e := &Embedder{
		backend:   backend,
		batchSize: DefaultBatchSize,
		timeout:   DefaultBatchTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dimension returns the backend's embedding dimension, or 0 with no backend.
func (e *Embedder) Dimension() int {
	if e.backend == nil {
		return 0
	}
	return e.backend.Dimension()
}

// Embed returns one unit-norm vector per input text, in input order. Any
// batch failure fails the whole call; the pipeline then leaves the affected
// articles unembedded.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if e.backend == nil {
		return nil, llm.ErrUnavailable
	}
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vectors, err := e.backend.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("backend returned %d vectors for %d texts", len(vectors), len(texts))
	}

	for i, vec := range vectors {
		vectors[i] = Normalize(vec)
	}
	return vectors, nil
}

// Normalize scales v to unit L2 norm. A zero vector is returned unchanged.
func Normalize(v []float64) []float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// IsUnitNorm reports whether v's L2 norm is within eps of 1.0.
func IsUnitNorm(v []float64, eps float64) bool {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Abs(math.Sqrt(sum)-1.0) < eps
}
