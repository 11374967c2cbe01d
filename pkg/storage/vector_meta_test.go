package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorBlobRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3}
	assert.Equal(t, vec, decodeVector(encodeVector(vec)))
	assert.Nil(t, decodeVector(nil))
}

func TestVectorIndexDescriptorLifecycle(t *testing.T) {
	s := openTestStore(t)

	d := VectorIndexDescriptor{Name: "emb", Dim: 3, Metric: "l2", Method: "flat", Options: map[string]any{"store_raw": true}}
	require.NoError(t, s.PutVectorIndex(d))

	got, err := s.GetVectorIndex("emb")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Dim)
	assert.Equal(t, true, got.Options["store_raw"])

	list, err := s.ListVectorIndexes()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetVectorIndex("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.DeleteVectorIndex("emb"))
	assert.ErrorIs(t, s.DeleteVectorIndex("emb"), ErrNotFound)
}

func TestVectorEntriesUpsertAndCascade(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutVectorIndex(VectorIndexDescriptor{Name: "emb", Dim: 2, Metric: "cosine", Method: "flat"}))
	n, err := s.CreateNode([]string{"Doc"}, nil)
	require.NoError(t, err)

	require.NoError(t, s.UpsertVectorEntry("emb", n.ID, []float32{1, 0}))
	// idempotent upsert keeps only the latest vector
	require.NoError(t, s.UpsertVectorEntry("emb", n.ID, []float32{0, 1}))

	e, err := s.VectorEntry("emb", n.ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, e.Vector)

	entries, err := s.VectorEntries("emb")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// deleting the node removes its embeddings
	require.NoError(t, s.DeleteNode(n.ID, true))
	entries, err = s.VectorEntries("emb")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFulltextSearch(t *testing.T) {
	s := openTestStore(t)
	if !s.HasFTS5() {
		t.Skip("driver built without fts5")
	}
	a, _ := s.CreateNode([]string{"Doc"}, map[string]any{"title": "graph databases"})
	b, _ := s.CreateNode([]string{"Doc"}, map[string]any{"title": "vector search"})
	require.NoError(t, s.UpsertDocument(a.ID, "graph databases store nodes and relationships"))
	require.NoError(t, s.UpsertDocument(b.ID, "vector search finds nearest neighbors"))

	hits, err := s.TextSearch("graph", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, a.ID, hits[0].NodeID)

	// re-upsert replaces the document
	require.NoError(t, s.UpsertDocument(a.ID, "completely different now"))
	hits, err = s.TextSearch("graph", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.RemoveDocument(b.ID))
	hits, err = s.TextSearch("vector", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
