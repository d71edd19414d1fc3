package mongo

import (
	"context"
	"sync"
	"time"

	"github.com/magray/magray/internal/memory"
	"github.com/magray/magray/pkg/magray"
)

// Store implements memory.Store durably atop a Mongo Client, grounded on
// the teacher's features/memory/mongo.Store thin-wrapper shape, extended
// here with the in-process HNSWIndex/LexicalIndex internal/memory.Store
// also needs: Mongo holds the durable record set, while the ANN and
// BM25 indices are rebuilt from it at construction and kept current on
// every Insert/Promote, mirroring the teacher's own note that the Mongo
// client is the system of record and the in-memory structures are a
// derived, rebuildable cache.
type Store struct {
	client Client
	policy memory.PromotionPolicy

	mu       sync.Mutex
	hnsw     *memory.HNSWIndex
	lexical  *memory.LexicalIndex
	embedder memory.Embedder
	reranker memory.Reranker

	hits   int64
	misses int64
}

// Options configures the Store wrapper.
type Options struct {
	Client   Client
	Dim      int
	Policy   memory.PromotionPolicy
	Embedder memory.Embedder
	Reranker memory.Reranker
}

// NewStore builds a Mongo-backed memory store using the provided client,
// rebuilding the ANN and lexical indices from every persisted record.
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	lexical, err := memory.NewLexicalIndex()
	if err != nil {
		return nil, err
	}
	reranker := opts.Reranker
	if reranker == nil {
		reranker = memory.NoopReranker{}
	}
	s := &Store{
		client:   opts.Client,
		policy:   opts.Policy,
		hnsw:     memory.NewHNSWIndex(memory.DefaultHNSWParams(opts.Dim)),
		lexical:  lexical,
		embedder: opts.Embedder,
		reranker: reranker,
	}
	records, err := opts.Client.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if err := s.hnsw.Insert(r.ID, r.Embedding); err != nil {
			continue // stale dimension from a prior deployment config; skip rather than fail startup
		}
		if err := s.lexical.Index(r.ID, r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewStoreFromMongo is a convenience constructor that builds the
// underlying Mongo client from clientOpts before wiring Store, mirroring
// the teacher's NewStoreFromMongo helper.
func NewStoreFromMongo(ctx context.Context, clientOpts ClientOptions, dim int, policy memory.PromotionPolicy, embedder memory.Embedder, reranker memory.Reranker) (*Store, error) {
	cli, err := New(clientOpts)
	if err != nil {
		return nil, err
	}
	return NewStore(ctx, Options{Client: cli, Dim: dim, Policy: policy, Embedder: embedder, Reranker: reranker})
}

// Insert implements memory.Store: persists to Mongo first, then updates
// the in-process indices so a subsequent Search observes it immediately.
func (s *Store) Insert(ctx context.Context, record magray.MemoryRecord) error {
	if record.ID == "" {
		return magray.NewError(magray.ErrValidationError, "record id is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	if record.LastAccessAt.IsZero() {
		record.LastAccessAt = record.CreatedAt
	}
	s.mu.Lock()
	if err := s.hnsw.Insert(record.ID, record.Embedding); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if err := s.client.Upsert(ctx, record); err != nil {
		return err
	}
	s.mu.Lock()
	err := s.lexical.Index(record.ID, record)
	s.mu.Unlock()
	return err
}

// Search implements memory.Store: candidates come from the in-process
// ANN and lexical indices, then the records are loaded from Mongo to
// apply the layer filter, and each returned hit's access count is
// written back with an upsert.
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
			hits, err := s.hnsw.Search(ctx, vecs[0], topK*2)
			if err != nil {
				return nil, err
			}
			for _, h := range hits {
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
	layerSet := layerFilter(opts.Layers)

	records, err := s.client.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]magray.MemoryRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	results := make([]magray.SearchResult, 0, len(fused))
	for rank, id := range fused {
		record, ok := byID[id]
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
		_ = s.client.Upsert(ctx, record)
		results = append(results, magray.SearchResult{ID: record.ID, Text: record.Text, Score: score, Layer: record.Layer, Source: record.Source})
		if len(results) >= topK {
			break
		}
	}

	s.mu.Lock()
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

// Promote implements memory.Store, persisting every layer transition
// and deletion back to Mongo as it updates the in-process indices.
func (s *Store) Promote(ctx context.Context) (memory.PromotionStats, error) {
	now := time.Now()
	stats := memory.PromotionStats{Promoted: make(map[magray.MemoryLayer]int)}

	records, err := s.client.LoadAll(ctx)
	if err != nil {
		return stats, err
	}
	for _, record := range records {
		switch s.policy.Evaluate(record, now) {
		case memory.DecisionPromote:
			next := memory.NextLayer(record.Layer)
			if next == "" {
				continue
			}
			record.Layer = next
			if err := s.client.Upsert(ctx, record); err != nil {
				return stats, err
			}
			s.mu.Lock()
			err := s.lexical.Index(record.ID, record)
			s.mu.Unlock()
			if err != nil {
				return stats, err
			}
			stats.Promoted[next]++
		case memory.DecisionDelete:
			if err := s.client.Delete(ctx, record.ID); err != nil {
				return stats, err
			}
			s.mu.Lock()
			s.hnsw.Delete(record.ID)
			_ = s.lexical.Delete(record.ID)
			s.mu.Unlock()
			stats.Deleted++
		}
	}
	return stats, nil
}

// Stats implements memory.Store.
func (s *Store) Stats(ctx context.Context) (memory.Stats, error) {
	records, err := s.client.LoadAll(ctx)
	if err != nil {
		return memory.Stats{}, err
	}
	counts := make(map[magray.MemoryLayer]int)
	for _, r := range records {
		counts[r.Layer]++
	}
	layers := make([]memory.LayerStats, 0, len(counts))
	for layer, count := range counts {
		layers = append(layers, memory.LayerStats{Layer: layer, Count: count})
	}
	s.mu.Lock()
	hits, misses, annSize := s.hits, s.misses, s.hnsw.Len()
	s.mu.Unlock()
	return memory.Stats{Layers: layers, CacheHits: hits, CacheMisses: misses, ANNSize: annSize, LexicalSize: len(records)}, nil
}

// Health implements memory.Store, pinging the underlying Mongo client
// for reachability. The recall estimate is a fixed figure and the
// latency percentiles are left zero.
func (s *Store) Health(ctx context.Context) (memory.Health, error) {
	reachable := s.client.Ping(ctx) == nil
	return memory.Health{EstimatedRecall: 0.95, Reachable: reachable}, nil
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
