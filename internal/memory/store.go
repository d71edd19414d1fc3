// Package memory implements the three-layer vector+lexical memory
// substrate that backs the Planner/Critic (spec.md §4.7): Interact
// (24h TTL), Insights (90d TTL), and Assets (no TTL). Store is the
// facade every caller programs against; mongo/ and inmem/ provide
// durable and test-friendly backends respectively, mirroring the
// teacher's features/memory/mongo.Store / agents/runtime/memory
// split between a thin facade and a pluggable client underneath.
package memory

import (
	"context"
	"time"

	"github.com/magray/magray/pkg/magray"
)

// Store is the public contract of the memory substrate: insert,
// hybrid search, background promotion, and stats/health reporting,
// per spec.md §4.7.
type Store interface {
	// Insert validates the record's embedding dimension against the
	// deployment's configured dimension, writes it to its Layer, and
	// updates the ANN (HNSW) and lexical indices. Returns ErrValidationError
	// on a dimension mismatch.
	Insert(ctx context.Context, record magray.MemoryRecord) error

	// Search performs hybrid retrieval: ANN over the combined layer
	// set plus BM25/keyword over the text index, merged by reciprocal
	// rank fusion, optionally reranked.
	Search(ctx context.Context, query string, opts magray.SearchOptions) ([]magray.SearchResult, error)

	// Promote runs one pass of the promotion policy over every layer,
	// moving eligible records Interact→Insights→Assets and deleting
	// records that fail TTL below the promotion threshold. Returns the
	// count of records promoted and deleted.
	Promote(ctx context.Context) (PromotionStats, error)

	// Stats reports per-layer counts, cache hit rate, and index sizes.
	Stats(ctx context.Context) (Stats, error)

	// Health reports the index's operational status: reachability and an
	// ANN recall estimate. The inmem and mongo backends do not measure
	// search latency and leave Health's percentile fields zero.
	Health(ctx context.Context) (Health, error)
}

// PromotionStats summarizes the outcome of one Promote pass.
type PromotionStats struct {
	Promoted map[magray.MemoryLayer]int
	Deleted  int
}

// LayerStats reports counts for a single layer.
type LayerStats struct {
	Layer MemoryLayer
	Count int
}

// MemoryLayer re-exports magray.MemoryLayer so callers of this package
// need not import pkg/magray solely to name a layer in Stats output.
type MemoryLayer = magray.MemoryLayer

// Stats is the payload of a Store.Stats call, per spec.md §4.7:
// "counts per layer, cache hit rate, index sizes".
type Stats struct {
	Layers      []LayerStats
	CacheHits   int64
	CacheMisses int64
	ANNSize     int
	LexicalSize int
}

// CacheHitRate returns CacheHits / (CacheHits + CacheMisses), or 0 if
// there have been no lookups yet.
func (s Stats) CacheHitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(s.CacheHits) / float64(total)
}

// Health is the payload of a Store.Health call: estimated ANN recall,
// reachability, and fields for p50/p90/p99 search latencies. The inmem
// and mongo backends report a fixed recall figure and leave P50/P90/P99
// zero.
type Health struct {
	EstimatedRecall float64
	P50             time.Duration
	P90             time.Duration
	P99             time.Duration
	Reachable       bool
}
