package inmem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/magray/magray/internal/memory"
	"github.com/magray/magray/internal/memory/inmem"
	"github.com/magray/magray/pkg/magray"
)

func TestStoreInsertAndSearchByText(t *testing.T) {
	store, err := inmem.New(2, memory.DefaultPromotionPolicy())
	require.NoError(t, err)

	err = store.Insert(context.Background(), magray.MemoryRecord{
		ID: "r1", Layer: magray.LayerInteract, Text: "the quick brown fox", Embedding: []float32{1, 0},
	})
	require.NoError(t, err)
	err = store.Insert(context.Background(), magray.MemoryRecord{
		ID: "r2", Layer: magray.LayerInteract, Text: "lazy dog sleeps", Embedding: []float32{0, 1},
	})
	require.NoError(t, err)

	results, err := store.Search(context.Background(), "quick fox", magray.SearchOptions{TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "r1", results[0].ID)
}

func TestStoreInsertRejectsDimensionMismatch(t *testing.T) {
	store, err := inmem.New(2, memory.DefaultPromotionPolicy())
	require.NoError(t, err)

	err = store.Insert(context.Background(), magray.MemoryRecord{ID: "r1", Layer: magray.LayerInteract, Embedding: []float32{1, 2, 3}})
	require.Error(t, err)
}

func TestStorePromotePromotesEligibleAndDeletesIneligibleRecords(t *testing.T) {
	store, err := inmem.New(2, memory.DefaultPromotionPolicy())
	require.NoError(t, err)

	now := time.Now()
	eligible := magray.MemoryRecord{
		ID: "eligible", Layer: magray.LayerInteract, Embedding: []float32{1, 0},
		CreatedAt: now.Add(-25 * time.Hour), LastAccessAt: now.Add(-25 * time.Hour),
		AccessCount: 10, Score: 0.9,
	}
	ineligible := magray.MemoryRecord{
		ID: "ineligible", Layer: magray.LayerInteract, Embedding: []float32{0, 1},
		CreatedAt: now.Add(-25 * time.Hour), LastAccessAt: now.Add(-25 * time.Hour),
		AccessCount: 0, Score: 0.1,
	}
	require.NoError(t, store.Insert(context.Background(), eligible))
	require.NoError(t, store.Insert(context.Background(), ineligible))

	stats, err := store.Promote(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Promoted[magray.LayerInsights])
	require.Equal(t, 1, stats.Deleted)

	s, err := store.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, s.LexicalSize)
}

func TestStoreHealthReportsReachable(t *testing.T) {
	store, err := inmem.New(2, memory.DefaultPromotionPolicy())
	require.NoError(t, err)
	health, err := store.Health(context.Background())
	require.NoError(t, err)
	require.True(t, health.Reachable)
}
