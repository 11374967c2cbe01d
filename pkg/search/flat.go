package search

import (
	"encoding/gob"
	"os"
	"sync"
)

// FlatIndex is the exact brute-force backend. It scans every stored
// vector on search, which keeps it correct for all metrics and makes it
// the reference the approximate backends are judged against.
type FlatIndex struct {
	dim    int
	metric Metric

	mu   sync.RWMutex
	vecs map[int64][]float32
}

func NewFlatIndex(dim int, metric Metric) *FlatIndex {
	return &FlatIndex{
		dim:    dim,
		metric: metric,
		vecs:   make(map[int64][]float32),
	}
}

func (f *FlatIndex) Dim() int { return f.dim }

func (f *FlatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vecs)
}

// Add inserts or replaces the vector for id.
func (f *FlatIndex) Add(id int64, vec []float32) error {
	if len(vec) != f.dim {
		return ErrDimensionMismatch
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.vecs[id] = cp
	return nil
}

func (f *FlatIndex) Remove(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.vecs[id]
	delete(f.vecs, id)
	return ok
}

func (f *FlatIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != f.dim {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 {
		k = 10
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	results := make([]Result, 0, len(f.vecs))
	for id, vec := range f.vecs {
		results = append(results, Result{NodeID: id, Score: score(f.metric, query, vec)})
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

type flatSnapshot struct {
	Dim    int
	Metric Metric
	Vecs   map[int64][]float32
}

func (f *FlatIndex) Persist(path string) error {
	f.mu.RLock()
	snap := flatSnapshot{Dim: f.dim, Metric: f.metric, Vecs: make(map[int64][]float32, len(f.vecs))}
	for id, v := range f.vecs {
		snap.Vecs[id] = v
	}
	f.mu.RUnlock()

	w, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(w).Encode(snap); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (f *FlatIndex) Load(path string) error {
	r, err := os.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	var snap flatSnapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return err
	}
	if snap.Dim != f.dim {
		return ErrDimensionMismatch
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.metric = snap.Metric
	f.vecs = snap.Vecs
	if f.vecs == nil {
		f.vecs = make(map[int64][]float32)
	}
	return nil
}
