package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/magray/magray/pkg/magray"
)

// lexicalDoc is the document shape indexed by bleve: just the record's
// text and layer, enough to drive keyword search and layer filtering.
type lexicalDoc struct {
	Text  string `json:"text"`
	Layer string `json:"layer"`
}

// LexicalIndex is a BM25/keyword index over memory record text, backing
// the lexical half of Store.Search's hybrid retrieval (spec.md §4.7).
// Named in the example pack's manifests as a keyword-search dependency
// (no pack repo exercises its API directly, so usage here follows
// bleve's own documented package surface); results are merged with the
// HNSWIndex's ANN hits by reciprocal rank fusion in store's Search.
type LexicalIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewLexicalIndex builds an in-memory bleve index with a default text
// mapping, suitable for both tests and single-node operation; mongo.Store
// rebuilds this index from persisted records on startup.
func NewLexicalIndex() (*LexicalIndex, error) {
	m := mapping.NewIndexMapping()
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, fmt.Errorf("build lexical index: %w", err)
	}
	return &LexicalIndex{index: idx}, nil
}

// Index inserts or updates the record under its id.
func (l *LexicalIndex) Index(id string, record magray.MemoryRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Index(id, lexicalDoc{Text: record.Text, Layer: string(record.Layer)})
}

// Delete removes id from the index; safe to call for an id that was
// never indexed.
func (l *LexicalIndex) Delete(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Delete(id)
}

// lexicalHit is one BM25 match, ranked by bleve's relevance score.
type lexicalHit struct {
	ID    string
	Score float64
}

// Search runs a BM25 match query over the indexed text, returning up to
// topK hits ordered by descending relevance.
func (l *LexicalIndex) Search(ctx context.Context, query string, topK int) ([]lexicalHit, error) {
	if query == "" || topK <= 0 {
		return nil, nil
	}
	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, topK, 0, false)

	l.mu.RLock()
	defer l.mu.RUnlock()
	result, err := l.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	hits := make([]lexicalHit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hits = append(hits, lexicalHit{ID: h.ID, Score: h.Score})
	}
	return hits, nil
}

// ReciprocalRankFusion merges ranked id lists from the ANN and lexical
// retrievers into one fused ranking, per spec.md §4.7: "merge by
// reciprocal rank fusion". k is the standard RRF smoothing constant
// (60 is the customary default); each list's contribution to an id's
// fused score is 1/(k+rank).
func ReciprocalRankFusion(k int, rankings ...[]string) []string {
	scores := make(map[string]float64)
	for _, ranking := range rankings {
		for rank, id := range ranking {
			scores[id] += 1.0 / float64(k+rank+1)
		}
	}
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sortByScoreDesc(ids, scores)
	return ids
}

func sortByScoreDesc(ids []string, scores map[string]float64) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && scores[ids[j]] > scores[ids[j-1]]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
