package search

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWEmptyAndSingle(t *testing.T) {
	idx := NewHNSWIndex(2, MetricCosine, DefaultHNSWConfig())

	res, err := idx.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)

	require.NoError(t, idx.Add(1, []float32{1, 0}))
	res, err = idx.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, int64(1), res[0].NodeID)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
}

func TestHNSWFindsNearestCluster(t *testing.T) {
	idx := NewHNSWIndex(3, MetricCosine, DefaultHNSWConfig())
	rng := rand.New(rand.NewSource(7))

	// two well separated clusters around the x and y axes
	for i := int64(0); i < 50; i++ {
		jx := float32(rng.Float64() * 0.05)
		jy := float32(rng.Float64() * 0.05)
		require.NoError(t, idx.Add(i, []float32{1, jx, jy}))
		require.NoError(t, idx.Add(100+i, []float32{jx, 1, jy}))
	}

	res, err := idx.Search([]float32{1, 0.01, 0}, 10)
	require.NoError(t, err)
	require.Len(t, res, 10)
	for _, r := range res {
		assert.Less(t, r.NodeID, int64(100), "hit %d should come from the x cluster", r.NodeID)
	}
	// scores descend
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}
}

func TestHNSWAgreesWithFlatOnL2(t *testing.T) {
	hnsw := NewHNSWIndex(4, MetricL2, DefaultHNSWConfig())
	flat := NewFlatIndex(4, MetricL2)
	rng := rand.New(rand.NewSource(11))

	for i := int64(1); i <= 200; i++ {
		v := []float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
		require.NoError(t, hnsw.Add(i, v))
		require.NoError(t, flat.Add(i, v))
	}

	q := []float32{0.5, 0.5, 0.5, 0.5}
	exact, err := flat.Search(q, 1)
	require.NoError(t, err)
	approx, err := hnsw.Search(q, 1)
	require.NoError(t, err)
	require.Len(t, approx, 1)
	// with ef-search well above k, the top hit matches the exact scan
	assert.Equal(t, exact[0].NodeID, approx[0].NodeID)
	assert.InDelta(t, exact[0].Score, approx[0].Score, 1e-6)
}

func TestHNSWUpdateAndRemove(t *testing.T) {
	idx := NewHNSWIndex(2, MetricCosine, DefaultHNSWConfig())
	require.NoError(t, idx.Add(1, []float32{1, 0}))
	require.NoError(t, idx.Add(2, []float32{0, 1}))

	// re-adding an id replaces its vector
	require.NoError(t, idx.Add(1, []float32{0, 1}))
	assert.Equal(t, 2, idx.Len())
	res, err := idx.Search([]float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.InDelta(t, 1.0, res[0].Score, 1e-6)
	assert.InDelta(t, 1.0, res[1].Score, 1e-6)

	assert.True(t, idx.Remove(2))
	assert.False(t, idx.Remove(2))
	res, err = idx.Search([]float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, int64(1), res[0].NodeID)

	// removing the last node empties the graph entirely
	assert.True(t, idx.Remove(1))
	res, err = idx.Search([]float32{0, 1}, 2)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestHNSWDimensionMismatch(t *testing.T) {
	idx := NewHNSWIndex(3, MetricCosine, DefaultHNSWConfig())
	assert.ErrorIs(t, idx.Add(1, []float32{1}), ErrDimensionMismatch)
	_, err := idx.Search([]float32{1, 2}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestHNSWPersistLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hnsw.idx")
	idx := NewHNSWIndex(2, MetricCosine, DefaultHNSWConfig())
	for i := int64(1); i <= 20; i++ {
		angle := float64(i) / 20
		require.NoError(t, idx.Add(i, []float32{float32(1 - angle), float32(angle)}))
	}
	before, err := idx.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.NoError(t, idx.Persist(path))

	other := NewHNSWIndex(2, MetricCosine, DefaultHNSWConfig())
	require.NoError(t, other.Load(path))
	assert.Equal(t, idx.Len(), other.Len())

	after, err := other.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprint(before), fmt.Sprint(after))
}
