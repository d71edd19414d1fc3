package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHNSWIndexInsertAndSearchFindsNearestVector(t *testing.T) {
	idx := NewHNSWIndex(DefaultHNSWParams(3))
	require.NoError(t, idx.Insert("a", []float32{1, 0, 0}))
	require.NoError(t, idx.Insert("b", []float32{0, 1, 0}))
	require.NoError(t, idx.Insert("c", []float32{0.9, 0.1, 0}))

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "a", results[0].ID)
}

func TestHNSWIndexInsertRejectsDimensionMismatch(t *testing.T) {
	idx := NewHNSWIndex(DefaultHNSWParams(3))
	err := idx.Insert("a", []float32{1, 0})
	require.Error(t, err)
}

func TestHNSWIndexDeleteTombstonesThenCompactRemoves(t *testing.T) {
	idx := NewHNSWIndex(DefaultHNSWParams(2))
	require.NoError(t, idx.Insert("a", []float32{1, 0}))
	require.NoError(t, idx.Insert("b", []float32{0, 1}))
	require.Equal(t, 2, idx.Len())

	idx.Delete("a")
	require.Equal(t, 1, idx.Len())

	results, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		require.NotEqual(t, "a", r.ID)
	}

	idx.Compact()
	require.Equal(t, 1, idx.Len())
	_, ok := idx.nodes["a"]
	require.False(t, ok)
}

func TestHNSWIndexSearchOnEmptyIndexReturnsNil(t *testing.T) {
	idx := NewHNSWIndex(DefaultHNSWParams(2))
	results, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Nil(t, results)
}
