package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/magray/magray/pkg/magray"
)

// Embedder turns text into fixed-dimension vectors, per spec.md §4.7:
// "external providers accessed through a narrow interface embed(texts)
// -> Vec<Vec<f32>>". The substrate does not depend on a specific model,
// only a fixed dimension per deployment, narrowed the same way
// internal/model.Client narrows the teacher's runtime/agent/model
// provider seam to MAGRAY's single-call needs.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dim() int
}

// RankedCandidate is one reranked hit, returned in descending score
// order by Reranker.Rerank.
type RankedCandidate struct {
	ID    string
	Score float64
}

// Reranker reorders search candidates by relevance to query, per
// spec.md §4.7: "rerank(query, candidates) -> Vec<(id, score)>".
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []magray.SearchResult) ([]RankedCandidate, error)
}

// circuitState tracks whether the primary (GPU) provider is currently
// considered healthy.
type circuitState int

const (
	circuitClosed circuitState = iota // primary provider serving requests
	circuitOpen                       // primary tripped, routing to fallback
)

// FallbackEmbedder wires a primary embedding provider (typically GPU-
// backed) to a CPU fallback, tripping to the fallback after
// consecutive primary failures and probing the primary again on a
// backoff schedule, per spec.md §4.7: "a fallback manager switches to
// CPU on GPU errors and tracks failure rates with a circuit breaker."
// Grounded on actor.Supervisor's cenkalti/backoff exponential-retry
// usage, applied here to a breaker's re-probe interval instead of a
// restart loop.
type FallbackEmbedder struct {
	primary  Embedder
	fallback Embedder

	// Trip opens the circuit after this many consecutive primary
	// failures.
	Trip int

	mu           sync.Mutex
	state        circuitState
	failures     int
	backoff      *backoff.ExponentialBackOff
	reprobeAfter time.Time
}

// NewFallbackEmbedder constructs a breaker over primary with fallback as
// the CPU path, tripping after trip consecutive failures (defaulting to
// 3 if trip <= 0).
func NewFallbackEmbedder(primary, fallback Embedder, trip int) *FallbackEmbedder {
	if trip <= 0 {
		trip = 3
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0
	return &FallbackEmbedder{primary: primary, fallback: fallback, Trip: trip, backoff: b}
}

// Dim reports the configured embedding dimension, which both providers
// must agree on.
func (f *FallbackEmbedder) Dim() int {
	return f.primary.Dim()
}

// Embed tries the primary provider while the circuit is closed, falling
// back to the CPU provider once Trip consecutive failures have opened
// it; the primary is re-probed once the backoff interval elapses.
func (f *FallbackEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if f.shouldUseFallback() {
		vecs, err := f.fallback.Embed(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("fallback embedder: %w", err)
		}
		return vecs, nil
	}

	vecs, err := f.primary.Embed(ctx, texts)
	if err != nil {
		f.recordFailure()
		fallbackVecs, fallbackErr := f.fallback.Embed(ctx, texts)
		if fallbackErr != nil {
			return nil, fmt.Errorf("primary embedder: %w (fallback also failed: %v)", err, fallbackErr)
		}
		return fallbackVecs, nil
	}
	f.recordSuccess()
	return vecs, nil
}

func (f *FallbackEmbedder) shouldUseFallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != circuitOpen {
		return false
	}
	if time.Now().Before(f.reprobeAfter) {
		return true
	}
	// Reprobe window elapsed: let the next Embed call attempt the
	// primary again.
	f.state = circuitClosed
	return false
}

func (f *FallbackEmbedder) recordFailure() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures++
	if f.failures >= f.Trip && f.state == circuitClosed {
		f.state = circuitOpen
		f.reprobeAfter = time.Now().Add(f.backoff.NextBackOff())
	}
}

func (f *FallbackEmbedder) recordSuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = 0
	f.state = circuitClosed
	f.backoff.Reset()
}
