// Package search implements the vector index backends (exact and
// approximate) and the semantic search layer that joins them with the
// graph store.
package search

import (
	"errors"
	"fmt"
	"sort"

	"github.com/orneryd/grafito/pkg/mathvec"
)

// Metric selects how query and stored vectors are compared.
type Metric string

const (
	MetricL2     Metric = "l2"
	MetricIP     Metric = "ip"
	MetricCosine Metric = "cosine"
)

// ParseMetric validates a metric name coming from user input.
func ParseMetric(s string) (Metric, error) {
	switch Metric(s) {
	case MetricL2, MetricIP, MetricCosine:
		return Metric(s), nil
	}
	return "", fmt.Errorf("unknown similarity metric %q", s)
}

var (
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrBackendUnavailable is returned at index creation time when the
	// requested method is not compiled in. Search on an existing index
	// never returns it.
	ErrBackendUnavailable = errors.New("index backend unavailable")

	// ErrNeedsReindex is returned when an index exists but its vectors
	// cannot be recovered, so it must be repopulated by the caller.
	ErrNeedsReindex = errors.New("index must be rebuilt: raw vectors unavailable")
)

// Result is a single vector search hit. Scores are higher-is-better for
// every metric.
type Result struct {
	NodeID int64
	Score  float64
}

// Index is the capability contract shared by all backends.
type Index interface {
	Add(id int64, vec []float32) error
	Remove(id int64) bool
	Search(query []float32, k int) ([]Result, error)
	Dim() int
	Len() int
	Persist(path string) error
	Load(path string) error
}

// score computes the higher-is-better similarity of two raw vectors.
func score(m Metric, q, v []float32) float64 {
	switch m {
	case MetricL2:
		return mathvec.L2Similarity(q, v)
	case MetricIP:
		return mathvec.Dot(q, v)
	default:
		return mathvec.Cosine(q, v)
	}
}

// sortResults orders by score descending, breaking ties on ascending
// node id so results are deterministic.
func sortResults(rs []Result) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Score != rs[j].Score {
			return rs[i].Score > rs[j].Score
		}
		return rs[i].NodeID < rs[j].NodeID
	})
}
