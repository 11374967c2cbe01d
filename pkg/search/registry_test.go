package search

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/grafito/pkg/embed"
	"github.com/orneryd/grafito/pkg/storage"
)

func openTestRegistry(t *testing.T) (*Registry, *storage.Store) {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewRegistry(s), s
}

func TestRegistryCreateValidation(t *testing.T) {
	r, _ := openTestRegistry(t)

	assert.Error(t, r.Create("bad", 0, MetricL2, MethodFlat, true))
	assert.Error(t, r.Create("bad", 3, "hamming", MethodFlat, true))
	assert.ErrorIs(t, r.Create("bad", 3, MetricL2, "diskann", true), ErrBackendUnavailable)

	require.NoError(t, r.Create("emb", 3, MetricCosine, MethodHNSW, true))
	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hnsw", list[0].Method)
}

func TestRegistryUpsertSearchDrop(t *testing.T) {
	r, s := openTestRegistry(t)
	require.NoError(t, r.Create("emb", 2, MetricL2, MethodFlat, true))

	a, _ := s.CreateNode([]string{"Doc"}, nil)
	b, _ := s.CreateNode([]string{"Doc"}, nil)
	require.NoError(t, r.Upsert("emb", a.ID, []float32{0, 0}))
	require.NoError(t, r.Upsert("emb", b.ID, []float32{5, 5}))
	assert.ErrorIs(t, r.Upsert("emb", a.ID, []float32{1}), ErrDimensionMismatch)

	res, err := r.Search("emb", []float32{0.1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, a.ID, res[0].NodeID)

	require.NoError(t, r.Remove("emb", b.ID))
	res, err = r.Search("emb", []float32{0.1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	require.NoError(t, r.Drop("emb"))
	_, err = r.Search("emb", nil, 10)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRegistryRebuildsFromStoredVectors(t *testing.T) {
	r, s := openTestRegistry(t)
	require.NoError(t, r.Create("emb", 2, MetricCosine, MethodFlat, true))
	n, _ := s.CreateNode([]string{"Doc"}, nil)
	require.NoError(t, r.Upsert("emb", n.ID, []float32{1, 0}))

	// a second registry over the same store simulates a reopen
	fresh := NewRegistry(s)
	res, err := fresh.Search("emb", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, n.ID, res[0].NodeID)
}

func TestRegistryNeedsReindexWithoutRawVectors(t *testing.T) {
	r, s := openTestRegistry(t)
	require.NoError(t, r.Create("emb", 2, MetricCosine, MethodFlat, false))
	n, _ := s.CreateNode([]string{"Doc"}, nil)
	require.NoError(t, r.Upsert("emb", n.ID, []float32{1, 0}))

	// the creating registry keeps the index resident
	res, err := r.Search("emb", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, res, 1)

	// but a reopen cannot recover vectors that were never persisted
	fresh := NewRegistry(s)
	_, err = fresh.Search("emb", []float32{1, 0}, 5)
	assert.ErrorIs(t, err, ErrNeedsReindex)

	// reindex resets the index so the caller can repopulate it
	require.NoError(t, fresh.Reindex("emb"))
	require.NoError(t, fresh.Upsert("emb", n.ID, []float32{1, 0}))
	res, err = fresh.Search("emb", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestSemanticSearchFiltersByLabel(t *testing.T) {
	r, s := openTestRegistry(t)
	require.NoError(t, r.Create("emb", 2, MetricL2, MethodFlat, true))

	a, _ := s.CreateNode([]string{"Doc"}, map[string]any{"lang": "en"})
	b, _ := s.CreateNode([]string{"Doc"}, map[string]any{"lang": "de"})
	c, _ := s.CreateNode([]string{"Image"}, nil)
	require.NoError(t, r.Upsert("emb", a.ID, []float32{0, 0}))
	require.NoError(t, r.Upsert("emb", b.ID, []float32{0.1, 0}))
	require.NoError(t, r.Upsert("emb", c.ID, []float32{0.01, 0}))

	ctx := context.Background()

	res, err := r.SemanticSearch(ctx, Query{Index: "emb", Vector: []float32{0, 0}, K: 2})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, []int64{a.ID, c.ID}, []int64{res[0].NodeID, res[1].NodeID})

	res, err = r.SemanticSearch(ctx, Query{Index: "emb", Vector: []float32{0, 0}, K: 2, Labels: []string{"Doc"}})
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, []int64{a.ID, b.ID}, []int64{res[0].NodeID, res[1].NodeID})

	res, err = r.SemanticSearch(ctx, Query{Index: "emb", Vector: []float32{0, 0}, K: 5, Labels: []string{"Doc"}, Properties: map[string]any{"lang": "de"}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, b.ID, res[0].NodeID)

	// a filter that matches nothing short-circuits
	res, err = r.SemanticSearch(ctx, Query{Index: "emb", Vector: []float32{0, 0}, K: 5, Labels: []string{"Unknown"}})
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestSemanticSearchTextQuery(t *testing.T) {
	r, s := openTestRegistry(t)
	require.NoError(t, r.Create("emb", 2, MetricCosine, MethodFlat, true))
	n, _ := s.CreateNode([]string{"Doc"}, nil)
	require.NoError(t, r.Upsert("emb", n.ID, []float32{1, 0}))

	ctx := context.Background()
	_, err := r.SemanticSearch(ctx, Query{Index: "emb", Text: "hello"})
	assert.Error(t, err, "no embedder registered yet")

	r.RegisterEmbedder(DefaultEmbedder, embed.NewFunc(2, func(_ context.Context, text string) ([]float32, error) {
		return []float32{1, 0}, nil
	}))
	res, err := r.SemanticSearch(ctx, Query{Index: "emb", Text: "hello", K: 1})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, n.ID, res[0].NodeID)

	_, err = r.SemanticSearch(ctx, Query{Index: "emb"})
	assert.Error(t, err, "neither vector nor text")
}

func TestSemanticSearchRerank(t *testing.T) {
	r, s := openTestRegistry(t)
	require.NoError(t, r.Create("emb", 2, MetricL2, MethodHNSW, true))

	var ids []int64
	for i := 0; i < 20; i++ {
		n, err := s.CreateNode([]string{"Doc"}, nil)
		require.NoError(t, err)
		ids = append(ids, n.ID)
		require.NoError(t, r.Upsert("emb", n.ID, []float32{float32(i), 0}))
	}

	res, err := r.SemanticSearch(context.Background(), Query{Index: "emb", Vector: []float32{0, 0}, K: 3, Rerank: true})
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, ids[0], res[0].NodeID)
	// exact l2 scores after rerank
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.InDelta(t, 0.5, res[1].Score, 1e-9)
}

func TestRegistryRemoveNode(t *testing.T) {
	r, s := openTestRegistry(t)
	require.NoError(t, r.Create("emb", 2, MetricCosine, MethodFlat, true))
	n, _ := s.CreateNode([]string{"Doc"}, nil)
	require.NoError(t, r.Upsert("emb", n.ID, []float32{1, 0}))

	require.NoError(t, s.DeleteNode(n.ID, true))
	r.RemoveNode(n.ID)

	res, err := r.Search("emb", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestRegistryPersistenceFile(t *testing.T) {
	dir := t.TempDir()
	s, err := storage.Open(filepath.Join(dir, "g.db"))
	require.NoError(t, err)
	r := NewRegistry(s)
	require.NoError(t, r.Create("emb", 2, MetricL2, MethodFlat, true))
	n, _ := s.CreateNode([]string{"Doc"}, nil)
	require.NoError(t, r.Upsert("emb", n.ID, []float32{1, 2}))
	require.NoError(t, s.Close())

	s2, err := storage.Open(filepath.Join(dir, "g.db"))
	require.NoError(t, err)
	defer s2.Close()
	r2 := NewRegistry(s2)
	res, err := r2.Search("emb", []float32{1, 2}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, n.ID, res[0].NodeID)
}
