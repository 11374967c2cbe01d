package search

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orneryd/grafito/pkg/embed"
	"github.com/orneryd/grafito/pkg/storage"
)

const (
	MethodFlat = "flat"
	MethodHNSW = "hnsw"

	// DefaultEmbedder is the registry key used when a text query does
	// not name an embedder explicitly.
	DefaultEmbedder = "default"

	defaultMultiplier = 4
)

type regEntry struct {
	desc storage.VectorIndexDescriptor
	idx  Index
	// stale marks an index whose vectors were never persisted and
	// therefore cannot be recovered after a reopen.
	stale bool
}

// Registry binds persisted index descriptors to live in-process index
// instances, rebuilding them lazily from stored raw vectors.
type Registry struct {
	store *storage.Store

	mu        sync.Mutex
	entries   map[string]*regEntry
	embedders map[string]embed.Embedder
}

func NewRegistry(s *storage.Store) *Registry {
	return &Registry{
		store:     s,
		entries:   make(map[string]*regEntry),
		embedders: make(map[string]embed.Embedder),
	}
}

// RegisterEmbedder makes an embedding provider available to text
// queries under the given name.
func (r *Registry) RegisterEmbedder(name string, e embed.Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedders[name] = e
}

func (r *Registry) embedder(name string) (embed.Embedder, error) {
	if name == "" {
		name = DefaultEmbedder
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.embedders[name]
	if !ok {
		return nil, fmt.Errorf("no embedder registered under %q", name)
	}
	return e, nil
}

// Create persists a new index descriptor and instantiates its backend.
// Unknown methods fail here with ErrBackendUnavailable so that search
// on an existing index never has to.
func (r *Registry) Create(name string, dim int, metric Metric, method string, storeRaw bool) error {
	if dim <= 0 {
		return fmt.Errorf("vector index %q: dimension must be positive, got %d", name, dim)
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return err
	}
	if method == "" {
		method = MethodFlat
	}
	idx, err := newIndex(method, dim, metric)
	if err != nil {
		return err
	}

	desc := storage.VectorIndexDescriptor{
		Name:    name,
		Dim:     dim,
		Metric:  string(metric),
		Method:  method,
		Options: map[string]any{"store_raw": storeRaw},
	}
	if err := r.store.PutVectorIndex(desc); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = &regEntry{desc: desc, idx: idx}
	return nil
}

func newIndex(method string, dim int, metric Metric) (Index, error) {
	switch method {
	case MethodFlat:
		return NewFlatIndex(dim, metric), nil
	case MethodHNSW:
		return NewHNSWIndex(dim, metric, DefaultHNSWConfig()), nil
	}
	return nil, fmt.Errorf("%w: method %q", ErrBackendUnavailable, method)
}

// Drop removes the descriptor, its stored vectors, and the live index.
func (r *Registry) Drop(name string) error {
	if err := r.store.DeleteVectorIndex(name); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
	return nil
}

func (r *Registry) List() ([]storage.VectorIndexDescriptor, error) {
	return r.store.ListVectorIndexes()
}

// ensure returns the live entry for name, rebuilding the index from
// persisted vectors when it is not resident.
func (r *Registry) ensure(name string) (*regEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		return e, nil
	}

	desc, err := r.store.GetVectorIndex(name)
	if err != nil {
		return nil, err
	}
	idx, err := newIndex(desc.Method, desc.Dim, Metric(desc.Metric))
	if err != nil {
		return nil, err
	}

	e := &regEntry{desc: *desc, idx: idx}
	if storeRaw(desc.Options) {
		entries, err := r.store.VectorEntries(name)
		if err != nil {
			return nil, err
		}
		for _, ve := range entries {
			if err := idx.Add(ve.NodeID, ve.Vector); err != nil {
				return nil, err
			}
		}
	} else {
		e.stale = true
	}
	r.entries[name] = e
	return e, nil
}

func storeRaw(options map[string]any) bool {
	v, ok := options["store_raw"].(bool)
	return ok && v
}

// Upsert adds or replaces the embedding for a node.
func (r *Registry) Upsert(name string, nodeID int64, vec []float32) error {
	e, err := r.ensure(name)
	if err != nil {
		return err
	}
	if len(vec) != e.desc.Dim {
		return ErrDimensionMismatch
	}
	if storeRaw(e.desc.Options) {
		if err := r.store.UpsertVectorEntry(name, nodeID, vec); err != nil {
			return err
		}
	}
	return e.idx.Add(nodeID, vec)
}

// Remove drops a node's embedding from one index.
func (r *Registry) Remove(name string, nodeID int64) error {
	e, err := r.ensure(name)
	if err != nil {
		return err
	}
	if storeRaw(e.desc.Options) {
		if err := r.store.DeleteVectorEntry(name, nodeID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	e.idx.Remove(nodeID)
	return nil
}

// RemoveNode drops a node's embedding from every resident index. Called
// when the node itself is deleted; the storage cascade already removed
// the persisted rows.
func (r *Registry) RemoveNode(nodeID int64) {
	r.mu.Lock()
	entries := make([]*regEntry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()
	for _, e := range entries {
		e.idx.Remove(nodeID)
	}
}

// Reindex rebuilds the live index. With persisted raw vectors the index
// is repopulated from them; without, it is reset empty and the caller
// must upsert the embeddings again. Either way the index becomes
// searchable.
func (r *Registry) Reindex(name string) error {
	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()

	e, err := r.ensure(name)
	if err != nil {
		return err
	}
	e.stale = false
	return nil
}

// Search runs a raw vector query against one index.
func (r *Registry) Search(name string, query []float32, k int) ([]Result, error) {
	e, err := r.ensure(name)
	if err != nil {
		return nil, err
	}
	if e.stale {
		return nil, fmt.Errorf("vector index %q: %w", name, ErrNeedsReindex)
	}
	return e.idx.Search(query, k)
}

// Query describes one semantic search invocation. Exactly one of
// Vector and Text must be set.
type Query struct {
	Index    string
	Vector   []float32
	Text     string
	Embedder string
	K        int

	// Labels and Properties restrict hits to nodes matching the
	// structural filter.
	Labels     []string
	Properties map[string]any

	// Multiplier widens the candidate pull when a structural filter is
	// present. Zero means the default of 4.
	Multiplier int

	// Rerank recomputes exact scores over stored raw vectors before the
	// final cut.
	Rerank bool
}

// SemanticSearch resolves the query vector, searches the index, applies
// the structural filter, and optionally reranks with exact scores.
func (r *Registry) SemanticSearch(ctx context.Context, q Query) ([]Result, error) {
	vec := q.Vector
	if vec == nil {
		if q.Text == "" {
			return nil, errors.New("semantic search requires a vector or a text query")
		}
		emb, err := r.embedder(q.Embedder)
		if err != nil {
			return nil, err
		}
		vec, err = emb.Embed(ctx, q.Text)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
	}

	e, err := r.ensure(q.Index)
	if err != nil {
		return nil, err
	}
	if e.stale {
		return nil, fmt.Errorf("vector index %q: %w", q.Index, ErrNeedsReindex)
	}

	k := q.K
	if k <= 0 {
		k = 10
	}

	filtered := len(q.Labels) > 0 || len(q.Properties) > 0
	var allowed map[int64]bool
	if filtered {
		nodes, err := r.store.MatchNodes(q.Labels, q.Properties)
		if err != nil {
			return nil, err
		}
		allowed = make(map[int64]bool, len(nodes))
		for _, n := range nodes {
			allowed[n.ID] = true
		}
		if len(allowed) == 0 {
			return nil, nil
		}
	}

	mult := q.Multiplier
	if mult <= 0 {
		mult = defaultMultiplier
	}

	pull := k
	if filtered {
		pull = k * mult
	}

	var hits []Result
	for {
		raw, err := e.idx.Search(vec, pull)
		if err != nil {
			return nil, err
		}
		hits = hits[:0]
		for _, h := range raw {
			if allowed == nil || allowed[h.NodeID] {
				hits = append(hits, h)
			}
		}
		// Widen the pull until enough hits survive the filter or the
		// whole index has been scanned.
		if len(hits) >= k || len(raw) >= e.idx.Len() {
			break
		}
		pull *= 2
	}

	if q.Rerank {
		hits = r.rerank(q.Index, Metric(e.desc.Metric), vec, hits)
	}
	sortResults(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// rerank replaces approximate scores with exact ones computed over the
// persisted raw vectors. Hits without a stored vector keep their
// original score.
func (r *Registry) rerank(name string, metric Metric, query []float32, hits []Result) []Result {
	for i, h := range hits {
		ve, err := r.store.VectorEntry(name, h.NodeID)
		if err != nil {
			continue
		}
		hits[i].Score = score(metric, query, ve.Vector)
	}
	return hits
}
