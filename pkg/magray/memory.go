package magray

import "time"

type (
	// MemoryLayer is one of the three time-bounded tiers of the memory
	// substrate.
	MemoryLayer string

	// MemoryRecord is one unit of stored memory. Embedding dimension must
	// equal the deployment's configured EMBEDDING_DIM. The inmem store
	// holds its store-wide lock for a whole promotion pass; the mongo store
	// takes no lock across a pass, so concurrent Promote calls there are
	// not serialized.
	MemoryRecord struct {
		ID           string
		Layer        MemoryLayer
		Text         string
		Embedding    []float32
		Kind         string
		Tags         []string
		CreatedAt    time.Time
		LastAccessAt time.Time
		AccessCount  int64
		Score        float64
		// Source optionally references the originating tool call, file, or
		// conversation turn that produced this record.
		Source string
	}

	// SearchResult is one hybrid-retrieval hit returned by Store.Search.
	SearchResult struct {
		ID     string
		Text   string
		Score  float64
		Layer  MemoryLayer
		Source string
	}

	// SearchOptions configures a hybrid Store.Search call.
	SearchOptions struct {
		Layers   []MemoryLayer
		TopK     int
		RerankTopK int
		// MinScore discards fused results whose rank score, 1/(rank+1) in
		// the fused order, is below it, before reranking.
		MinScore float64
	}
)

// MemoryLayer variants and their TTLs (spec.md §4.7).
const (
	LayerInteract MemoryLayer = "interact"
	LayerInsights MemoryLayer = "insights"
	LayerAssets   MemoryLayer = "assets"
)

// LayerTTL returns the soft TTL for a layer; LayerAssets has none (0).
func LayerTTL(l MemoryLayer) time.Duration {
	switch l {
	case LayerInteract:
		return 24 * time.Hour
	case LayerInsights:
		return 90 * 24 * time.Hour
	default:
		return 0
	}
}
