package embed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"

	"daybrief/internal/llm"
)

// stubBackend returns a deterministic vector derived from each text's index
// and records the batch sizes it saw.
type stubBackend struct {
	dim        int
	batchSizes []int
	failAfter  int // fail on the Nth call (1-based); 0 disables
	calls      int
}

func (s *stubBackend) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	s.calls++
	if s.failAfter > 0 && s.calls >= s.failAfter {
		return nil, errors.New("backend exploded")
	}
	s.batchSizes = append(s.batchSizes, len(texts))

	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		idx, _ := strconv.Atoi(strings.TrimPrefix(text, "text-"))
		vec := make([]float64, s.dim)
		vec[idx%s.dim] = 2.0 // deliberately non-unit
		vectors[i] = vec
	}
	return vectors, nil
}

func (s *stubBackend) Dimension() int { return s.dim }

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text-%d", i)
	}
	return out
}

func TestEmbedBatchingPreservesOrder(t *testing.T) {
	backend := &stubBackend{dim: 8}
	e := New(backend, WithBatchSize(10))

	vectors, err := e.Embed(context.Background(), texts(25))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vectors) != 25 {
		t.Fatalf("expected 25 vectors, got %d", len(vectors))
	}

	wantBatches := []int{10, 10, 5}
	if len(backend.batchSizes) != len(wantBatches) {
		t.Fatalf("expected %d batches, got %v", len(wantBatches), backend.batchSizes)
	}
	for i, want := range wantBatches {
		if backend.batchSizes[i] != want {
			t.Errorf("batch %d: expected size %d, got %d", i, want, backend.batchSizes[i])
		}
	}

	// Order must survive batch boundaries: text-i maps to component i%dim.
	for i, vec := range vectors {
		if vec[i%8] == 0 {
			t.Errorf("vector %d out of order: %v", i, vec)
		}
	}
}

func TestEmbedNormalizesOutputs(t *testing.T) {
	backend := &stubBackend{dim: 4}
	e := New(backend)

	vectors, err := e.Embed(context.Background(), texts(3))
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	for i, vec := range vectors {
		if !IsUnitNorm(vec, 1e-6) {
			t.Errorf("vector %d not unit norm: %v", i, vec)
		}
	}
}

func TestEmbedBatchFailureFailsCall(t *testing.T) {
	backend := &stubBackend{dim: 4, failAfter: 2}
	e := New(backend, WithBatchSize(10))

	_, err := e.Embed(context.Background(), texts(15))
	if err == nil {
		t.Fatal("expected error when a batch fails")
	}
}

func TestEmbedNoBackend(t *testing.T) {
	e := New(nil)
	_, err := e.Embed(context.Background(), texts(1))
	if !errors.Is(err, llm.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if e.Dimension() != 0 {
		t.Errorf("expected dimension 0 with no backend, got %d", e.Dimension())
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float64{3, 4})
	if math.Abs(v[0]-0.6) > 1e-9 || math.Abs(v[1]-0.8) > 1e-9 {
		t.Errorf("unexpected normalization result: %v", v)
	}

	zero := Normalize([]float64{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector should pass through unchanged: %v", zero)
	}
}
