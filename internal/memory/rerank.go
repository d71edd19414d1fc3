package memory

import (
	"context"
	"sort"

	"github.com/magray/magray/pkg/magray"
)

// NoopReranker returns candidates unchanged, ordered by their existing
// fused score, for deployments that configure no reranker model.
type NoopReranker struct{}

// Rerank implements Reranker by sorting candidates descending on their
// incoming Score, performing no model call.
func (NoopReranker) Rerank(_ context.Context, _ string, candidates []magray.SearchResult) ([]RankedCandidate, error) {
	ranked := make([]RankedCandidate, len(candidates))
	for i, c := range candidates {
		ranked[i] = RankedCandidate{ID: c.ID, Score: c.Score}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked, nil
}

var _ Reranker = NoopReranker{}
