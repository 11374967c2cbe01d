package search

import (
	"container/heap"
	"encoding/gob"
	"math"
	"math/rand"
	"os"
	"sync"

	"github.com/orneryd/grafito/pkg/mathvec"
)

// HNSWConfig holds the construction parameters of the layered graph.
type HNSWConfig struct {
	// M is the maximum number of bidirectional links per node per layer.
	M int
	// EfConstruction is the candidate list size during insertion.
	EfConstruction int
	// EfSearch is the candidate list size during queries.
	EfSearch int
	// LevelMultiplier controls the layer assignment distribution.
	LevelMultiplier float64
}

func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:               16,
		EfConstruction:  200,
		EfSearch:        100,
		LevelMultiplier: 1.0 / math.Log(16),
	}
}

type hnswNode struct {
	id    int64
	vec   []float32
	level int
	// neighbors[l] holds the node ids linked at layer l.
	neighbors [][]int64
}

// HNSWIndex is a hierarchical navigable small world graph. Insertion
// descends greedily through the upper layers, then links the new node
// into every layer at or below its assigned level.
type HNSWIndex struct {
	dim    int
	metric Metric
	cfg    HNSWConfig

	mu    sync.RWMutex
	nodes map[int64]*hnswNode
	entry *hnswNode
	rng   *rand.Rand
}

func NewHNSWIndex(dim int, metric Metric, cfg HNSWConfig) *HNSWIndex {
	if cfg.M <= 0 {
		cfg = DefaultHNSWConfig()
	}
	return &HNSWIndex{
		dim:    dim,
		metric: metric,
		cfg:    cfg,
		nodes:  make(map[int64]*hnswNode),
		rng:    rand.New(rand.NewSource(42)),
	}
}

func (h *HNSWIndex) Dim() int { return h.dim }

func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

// stored converts an input vector to internal storage form. Cosine
// vectors are normalized once here so comparisons reduce to a dot
// product.
func (h *HNSWIndex) stored(vec []float32) []float32 {
	cp := make([]float32, len(vec))
	copy(cp, vec)
	if h.metric == MetricCosine {
		mathvec.NormalizeInPlace(cp)
	}
	return cp
}

// dist is the internal lower-is-better distance between stored vectors.
func (h *HNSWIndex) dist(a, b []float32) float64 {
	switch h.metric {
	case MetricL2:
		return math.Sqrt(mathvec.SquaredL2(a, b))
	case MetricIP:
		return -mathvec.Dot(a, b)
	default:
		return 1 - mathvec.Dot(a, b)
	}
}

// toScore converts an internal distance back to the public
// higher-is-better convention.
func (h *HNSWIndex) toScore(d float64) float64 {
	switch h.metric {
	case MetricL2:
		return 1 / (1 + d)
	case MetricIP:
		return -d
	default:
		return 1 - d
	}
}

func (h *HNSWIndex) randomLevel() int {
	return int(-math.Log(h.rng.Float64()) * h.cfg.LevelMultiplier)
}

func (h *HNSWIndex) Add(id int64, vec []float32) error {
	if len(vec) != h.dim {
		return ErrDimensionMismatch
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.nodes[id]; ok {
		h.removeLocked(id)
	}

	level := h.randomLevel()
	n := &hnswNode{
		id:        id,
		vec:       h.stored(vec),
		level:     level,
		neighbors: make([][]int64, level+1),
	}

	if h.entry == nil {
		h.nodes[id] = n
		h.entry = n
		return nil
	}

	ep := h.entry
	// Greedy descent through layers above the new node's level.
	for l := h.entry.level; l > level; l-- {
		ep = h.searchLayerSingle(n.vec, ep, l)
	}

	// Link into every layer at or below the node's level.
	top := level
	if h.entry.level < top {
		top = h.entry.level
	}
	for l := top; l >= 0; l-- {
		candidates := h.searchLayer(n.vec, ep, h.cfg.EfConstruction, l)
		selected := h.selectNeighbors(n.vec, candidates, h.cfg.M)

		n.neighbors[l] = selected
		for _, nb := range selected {
			h.linkBack(h.nodes[nb], n, l)
		}
		if len(candidates) > 0 {
			ep = h.nodes[candidates[0]]
		}
	}

	h.nodes[id] = n
	if level > h.entry.level {
		h.entry = n
	}
	return nil
}

// linkBack adds n to nb's neighbor list at layer l, re-selecting the
// list when it overflows M.
func (h *HNSWIndex) linkBack(nb, n *hnswNode, l int) {
	if nb == nil || l > nb.level {
		return
	}
	nb.neighbors[l] = append(nb.neighbors[l], n.id)
	if len(nb.neighbors[l]) > h.cfg.M {
		nb.neighbors[l] = h.selectNeighbors(nb.vec, nb.neighbors[l], h.cfg.M)
	}
}

func (h *HNSWIndex) Remove(id int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(id)
}

func (h *HNSWIndex) removeLocked(id int64) bool {
	n, ok := h.nodes[id]
	if !ok {
		return false
	}
	delete(h.nodes, id)

	for _, other := range h.nodes {
		for l := range other.neighbors {
			nbs := other.neighbors[l]
			for i, nb := range nbs {
				if nb == id {
					other.neighbors[l] = append(nbs[:i], nbs[i+1:]...)
					break
				}
			}
		}
	}

	if h.entry == n {
		h.entry = nil
		for _, cand := range h.nodes {
			if h.entry == nil || cand.level > h.entry.level {
				h.entry = cand
			}
		}
	}
	return true
}

func (h *HNSWIndex) Search(query []float32, k int) ([]Result, error) {
	if len(query) != h.dim {
		return nil, ErrDimensionMismatch
	}
	if k <= 0 {
		k = 10
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.entry == nil {
		return nil, nil
	}

	q := h.stored(query)
	ep := h.entry
	for l := h.entry.level; l > 0; l-- {
		ep = h.searchLayerSingle(q, ep, l)
	}

	ef := h.cfg.EfSearch
	if ef < k {
		ef = k
	}
	candidates := h.searchLayer(q, ep, ef, 0)

	results := make([]Result, 0, len(candidates))
	for _, id := range candidates {
		results = append(results, Result{NodeID: id, Score: h.toScore(h.dist(q, h.nodes[id].vec))})
	}
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// searchLayerSingle greedily walks layer l toward the query, returning
// the closest node reached.
func (h *HNSWIndex) searchLayerSingle(q []float32, ep *hnswNode, l int) *hnswNode {
	cur := ep
	curDist := h.dist(q, cur.vec)
	for {
		improved := false
		if l <= cur.level {
			for _, nb := range cur.neighbors[l] {
				n := h.nodes[nb]
				if n == nil {
					continue
				}
				if d := h.dist(q, n.vec); d < curDist {
					cur, curDist = n, d
					improved = true
				}
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer runs the beam search at layer l with a candidate list of
// size ef. Returned ids are ordered closest first.
func (h *HNSWIndex) searchLayer(q []float32, ep *hnswNode, ef, l int) []int64 {
	visited := map[int64]bool{ep.id: true}
	epDist := h.dist(q, ep.vec)

	candidates := &distMinHeap{{id: ep.id, dist: epDist}}
	results := &distMaxHeap{{id: ep.id, dist: epDist}}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(distItem)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}
		node := h.nodes[c.id]
		if node == nil || l > node.level {
			continue
		}
		for _, nb := range node.neighbors[l] {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			n := h.nodes[nb]
			if n == nil {
				continue
			}
			d := h.dist(q, n.vec)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, distItem{id: nb, dist: d})
				heap.Push(results, distItem{id: nb, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]distItem, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(distItem)
	}
	ids := make([]int64, len(out))
	for i, it := range out {
		ids[i] = it.id
	}
	return ids
}

// selectNeighbors keeps the m closest candidates to vec.
func (h *HNSWIndex) selectNeighbors(vec []float32, candidates []int64, m int) []int64 {
	if len(candidates) <= m {
		out := make([]int64, len(candidates))
		copy(out, candidates)
		return out
	}
	items := make([]distItem, 0, len(candidates))
	for _, id := range candidates {
		n := h.nodes[id]
		if n == nil {
			continue
		}
		items = append(items, distItem{id: id, dist: h.dist(vec, n.vec)})
	}
	minHeap := distMinHeap(items)
	heap.Init(&minHeap)
	out := make([]int64, 0, m)
	for len(out) < m && minHeap.Len() > 0 {
		out = append(out, heap.Pop(&minHeap).(distItem).id)
	}
	return out
}

type distItem struct {
	id   int64
	dist float64
}

type distMinHeap []distItem

func (h distMinHeap) Len() int            { return len(h) }
func (h distMinHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h distMinHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *distMinHeap) Push(x interface{}) { *h = append(*h, x.(distItem)) }
func (h *distMinHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

type distMaxHeap []distItem

func (h distMaxHeap) Len() int            { return len(h) }
func (h distMaxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h distMaxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *distMaxHeap) Push(x interface{}) { *h = append(*h, x.(distItem)) }
func (h *distMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

type hnswNodeSnapshot struct {
	ID        int64
	Vec       []float32
	Level     int
	Neighbors [][]int64
}

type hnswSnapshot struct {
	Dim      int
	Metric   Metric
	Cfg      HNSWConfig
	Nodes    []hnswNodeSnapshot
	Entry    int64
	HasEntry bool
}

func (h *HNSWIndex) Persist(path string) error {
	h.mu.RLock()
	snap := hnswSnapshot{Dim: h.dim, Metric: h.metric, Cfg: h.cfg}
	for _, n := range h.nodes {
		snap.Nodes = append(snap.Nodes, hnswNodeSnapshot{ID: n.id, Vec: n.vec, Level: n.level, Neighbors: n.neighbors})
	}
	if h.entry != nil {
		snap.Entry = h.entry.id
		snap.HasEntry = true
	}
	h.mu.RUnlock()

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

func (h *HNSWIndex) Load(path string) error {
	r, err := os.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	var snap hnswSnapshot
	if err := gob.NewDecoder(r).Decode(&snap); err != nil {
		return err
	}
	if snap.Dim != h.dim {
		return ErrDimensionMismatch
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.metric = snap.Metric
	h.cfg = snap.Cfg
	h.nodes = make(map[int64]*hnswNode, len(snap.Nodes))
	for _, s := range snap.Nodes {
		h.nodes[s.ID] = &hnswNode{id: s.ID, vec: s.Vec, level: s.Level, neighbors: s.Neighbors}
	}
	h.entry = nil
	if snap.HasEntry {
		h.entry = h.nodes[snap.Entry]
	}
	return nil
}
