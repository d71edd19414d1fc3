// Package inmem implements internal/memory.Store entirely in process
// memory, for tests and single-node operation, grounded on the
// teacher's runtime/agents/memory/inmem.Store (sync.RWMutex-guarded map,
// defensive copies on read) generalized from a flat event log to the
// three-layer record/HNSW/lexical substrate.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/magray/magray/internal/memory"
	"github.com/magray/magray/pkg/magray"
)

// Store implements memory.Store using an HNSWIndex, a LexicalIndex, and
// a plain map of records. The record map is guarded by Store's RWMutex;
// the HNSW and lexical indices carry their own locks and are queried
// outside it.
type Store struct {
	mu       sync.RWMutex
	records  map[string]magray.MemoryRecord
	hnsw     *memory.HNSWIndex
	lexical  *memory.LexicalIndex
	policy   memory.PromotionPolicy
	reranker memory.Reranker
	embedder memory.Embedder

	hits   int64
	misses int64
}

// New constructs an empty Store with the given embedding dimension and
// promotion policy, using a no-op reranker unless WithReranker is
// applied.
func New(dim int, policy memory.PromotionPolicy, opts ...Option) (*Store, error) {
	lexical, err := memory.NewLexicalIndex()
	if err != nil {
		return nil, err
	}
	s := &Store{
		records:  make(map[string]magray.MemoryRecord),
		hnsw:     memory.NewHNSWIndex(memory.DefaultHNSWParams(dim)),
		lexical:  lexical,
		policy:   policy,
		reranker: memory.NoopReranker{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithReranker overrides the default no-op reranker.
func WithReranker(r memory.Reranker) Option {
	return func(s *Store) { s.reranker = r }
}

// WithHNSWParams overrides the default HNSW parameters.
func WithHNSWParams(params memory.HNSWParams) Option {
	return func(s *Store) { s.hnsw = memory.NewHNSWIndex(params) }
}

// WithEmbedder wires an Embedder so Search can run the ANN half of
// hybrid retrieval; without one, Search falls back to lexical-only
// results.
func WithEmbedder(e memory.Embedder) Option {
	return func(s *Store) { s.embedder = e }
}

// Insert implements memory.Store.
func (s *Store) Insert(_ context.Context, record magray.MemoryRecord) error {
	if record.ID == "" {
		return magray.NewError(magray.ErrValidationError, "record id is required")
	}
	if err := s.hnsw.Insert(record.ID, record.Embedding); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.LastAccessAt.IsZero() {
		record.LastAccessAt = record.CreatedAt
	}
	s.records[record.ID] = record
	if err := s.lexical.Index(record.ID, record); err != nil {
		return err
	}
	return nil
}

// Search implements memory.Store: ANN + BM25 fused by reciprocal rank
// fusion, then optionally reranked.
func (s *Store) Search(ctx context.Context, query string, opts magray.SearchOptions) ([]magray.SearchResult, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}

	var annIDs []string
	if s.embedder != nil {
		vecs, err := s.embedder.Embed(ctx, []string{query})
		if err != nil {
			return nil, err
		}
		if len(vecs) > 0 {
			annHits, err := s.hnsw.Search(ctx, vecs[0], topK*2)
			if err != nil {
				return nil, err
			}
			for _, h := range annHits {
				annIDs = append(annIDs, h.ID)
			}
		}
	}

	lexHits, err := s.lexical.Search(ctx, query, topK*2)
	if err != nil {
		return nil, err
	}
	lexIDs := make([]string, len(lexHits))
	for i, h := range lexHits {
		lexIDs[i] = h.ID
	}

	fused := memory.ReciprocalRankFusion(60, annIDs, lexIDs)

	s.mu.Lock()
	layerSet := layerFilter(opts.Layers)
	results := make([]magray.SearchResult, 0, len(fused))
	for rank, id := range fused {
		record, ok := s.records[id]
		if !ok {
			continue
		}
		if layerSet != nil && !layerSet[record.Layer] {
			continue
		}
		score := 1.0 / float64(rank+1)
		if score < opts.MinScore {
			continue
		}
		record.AccessCount++
		record.LastAccessAt = time.Now()
		s.records[id] = record
		results = append(results, magray.SearchResult{ID: record.ID, Text: record.Text, Score: score, Layer: record.Layer, Source: record.Source})
		if len(results) >= topK {
			break
		}
	}
	if len(results) > 0 {
		s.hits++
	} else {
		s.misses++
	}
	s.mu.Unlock()

	rerankTopK := opts.RerankTopK
	if rerankTopK <= 0 || rerankTopK > len(results) {
		return results, nil
	}
	ranked, err := s.reranker.Rerank(ctx, query, results[:rerankTopK])
	if err != nil {
		return nil, err
	}
	return mergeReranked(results, ranked), nil
}

// Promote implements memory.Store: evaluates every record against the
// policy, promoting or deleting as decided.
func (s *Store) Promote(_ context.Context) (memory.PromotionStats, error) {
	now := time.Now()
	stats := memory.PromotionStats{Promoted: make(map[magray.MemoryLayer]int)}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, record := range s.records {
		switch s.policy.Evaluate(record, now) {
		case memory.DecisionPromote:
			next := memory.NextLayer(record.Layer)
			if next == "" {
				continue
			}
			record.Layer = next
			s.records[id] = record
			stats.Promoted[next]++
			if err := s.lexical.Index(id, record); err != nil {
				return stats, err
			}
		case memory.DecisionDelete:
			delete(s.records, id)
			s.hnsw.Delete(id)
			_ = s.lexical.Delete(id)
			stats.Deleted++
		}
	}
	return stats, nil
}

// Stats implements memory.Store.
func (s *Store) Stats(_ context.Context) (memory.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[magray.MemoryLayer]int)
	for _, r := range s.records {
		counts[r.Layer]++
	}
	layers := make([]memory.LayerStats, 0, len(counts))
	for layer, count := range counts {
		layers = append(layers, memory.LayerStats{Layer: layer, Count: count})
	}
	return memory.Stats{
		Layers:      layers,
		CacheHits:   s.hits,
		CacheMisses: s.misses,
		ANNSize:     s.hnsw.Len(),
		LexicalSize: len(s.records),
	}, nil
}

// Health implements memory.Store. The in-memory backend is always
// reachable and reports a fixed nominal recall estimate; it does not
// measure search latency, so P50/P90/P99 are left zero.
func (s *Store) Health(_ context.Context) (memory.Health, error) {
	return memory.Health{EstimatedRecall: 0.99, Reachable: true}, nil
}

func layerFilter(layers []magray.MemoryLayer) map[magray.MemoryLayer]bool {
	if len(layers) == 0 {
		return nil
	}
	set := make(map[magray.MemoryLayer]bool, len(layers))
	for _, l := range layers {
		set[l] = true
	}
	return set
}

func mergeReranked(original []magray.SearchResult, ranked []memory.RankedCandidate) []magray.SearchResult {
	byID := make(map[string]magray.SearchResult, len(original))
	for _, r := range original {
		byID[r.ID] = r
	}
	out := make([]magray.SearchResult, 0, len(original))
	seen := make(map[string]bool, len(ranked))
	for _, r := range ranked {
		if sr, ok := byID[r.ID]; ok {
			sr.Score = r.Score
			out = append(out, sr)
			seen[r.ID] = true
		}
	}
	for _, r := range original {
		if !seen[r.ID] {
			out = append(out, r)
		}
	}
	return out
}

var _ memory.Store = (*Store)(nil)
