package cypher

import (
	"context"
	"strings"
	"sync"

	"github.com/orneryd/grafito/pkg/storage"
	"github.com/orneryd/grafito/pkg/value"
)

// ProcResult is the row set a procedure yields back into the query stream.
type ProcResult struct {
	Columns []string
	Rows    [][]any
}

// ProcedureFunc implements one callable procedure. Arguments arrive already
// evaluated and normalized to canonical values.
type ProcedureFunc func(ctx context.Context, eng storage.Engine, args []any) (*ProcResult, error)

// ProcedureRegistry maps procedure names to implementations. Lookup is
// case-insensitive. Safe for concurrent use.
type ProcedureRegistry struct {
	mu    sync.RWMutex
	procs map[string]ProcedureFunc
}

// NewProcedureRegistry returns a registry preloaded with the built-in
// introspection and full-text procedures.
func NewProcedureRegistry() *ProcedureRegistry {
	r := &ProcedureRegistry{procs: map[string]ProcedureFunc{}}
	r.Register("db.labels", procLabels)
	r.Register("db.relationshipTypes", procRelationshipTypes)
	r.Register("db.indexes", procIndexes)
	r.Register("db.constraints", procConstraints)
	r.Register("db.index.fulltext.query", procFulltextQuery)
	return r
}

// Register installs or replaces a procedure under the given name.
func (r *ProcedureRegistry) Register(name string, fn ProcedureFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[strings.ToLower(name)] = fn
}

func (r *ProcedureRegistry) get(name string) (ProcedureFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.procs[strings.ToLower(name)]
	return fn, ok
}

func procLabels(_ context.Context, eng storage.Engine, _ []any) (*ProcResult, error) {
	labels, err := eng.AllLabels()
	if err != nil {
		return nil, err
	}
	res := &ProcResult{Columns: []string{"label"}}
	for _, l := range labels {
		res.Rows = append(res.Rows, []any{l})
	}
	return res, nil
}

func procRelationshipTypes(_ context.Context, eng storage.Engine, _ []any) (*ProcResult, error) {
	types, err := eng.AllRelationshipTypes()
	if err != nil {
		return nil, err
	}
	res := &ProcResult{Columns: []string{"relationshipType"}}
	for _, t := range types {
		res.Rows = append(res.Rows, []any{t})
	}
	return res, nil
}

type indexLister interface {
	ListIndexes() ([]storage.IndexDescriptor, error)
	ListVectorIndexes() ([]storage.VectorIndexDescriptor, error)
}

func procIndexes(_ context.Context, eng storage.Engine, _ []any) (*ProcResult, error) {
	lister, ok := eng.(indexLister)
	if !ok {
		return nil, &EvalError{Op: "db.indexes", Detail: "engine does not expose index metadata"}
	}
	res := &ProcResult{Columns: []string{"name", "kind", "label", "property"}}
	idxs, err := lister.ListIndexes()
	if err != nil {
		return nil, err
	}
	for _, d := range idxs {
		res.Rows = append(res.Rows, []any{d.Name, string(d.Kind), d.Label, d.Property})
	}
	vecs, err := lister.ListVectorIndexes()
	if err != nil {
		return nil, err
	}
	for _, d := range vecs {
		res.Rows = append(res.Rows, []any{d.Name, string(storage.IndexVector), "", ""})
	}
	return res, nil
}

type constraintLister interface {
	ListConstraints() ([]storage.ConstraintDescriptor, error)
}

func procConstraints(_ context.Context, eng storage.Engine, _ []any) (*ProcResult, error) {
	lister, ok := eng.(constraintLister)
	if !ok {
		return nil, &EvalError{Op: "db.constraints", Detail: "engine does not expose constraint metadata"}
	}
	cons, err := lister.ListConstraints()
	if err != nil {
		return nil, err
	}
	res := &ProcResult{Columns: []string{"kind", "label", "property", "valueKind"}}
	for _, c := range cons {
		res.Rows = append(res.Rows, []any{string(c.Kind), c.Label, c.Property, c.ValueKind})
	}
	return res, nil
}

type textSearcher interface {
	TextSearch(query string, k int) ([]storage.TextHit, error)
}

// procFulltextQuery runs a BM25 search over the document index and yields
// (node, score) pairs, best first.
func procFulltextQuery(_ context.Context, eng storage.Engine, args []any) (*ProcResult, error) {
	searcher, ok := eng.(textSearcher)
	if !ok {
		return nil, &EvalError{Op: "db.index.fulltext.query", Detail: "engine does not support full-text search"}
	}
	if len(args) < 1 || len(args) > 2 {
		return nil, &EvalError{Op: "db.index.fulltext.query", Detail: "expected (query) or (query, limit)"}
	}
	query, ok := args[0].(string)
	if !ok {
		return nil, &EvalError{Op: "db.index.fulltext.query", Detail: "query must be a string"}
	}
	k := 10
	if len(args) == 2 && args[1] != nil {
		n, ok := value.AsInt(args[1])
		if !ok || n < 1 {
			return nil, &EvalError{Op: "db.index.fulltext.query", Detail: "limit must be a positive integer"}
		}
		k = int(n)
	}
	hits, err := searcher.TextSearch(query, k)
	if err != nil {
		return nil, err
	}
	res := &ProcResult{Columns: []string{"node", "score"}}
	for _, h := range hits {
		node, err := eng.GetNode(h.NodeID)
		if err != nil {
			if ignoreNotFound(err) == nil {
				continue
			}
			return nil, err
		}
		res.Rows = append(res.Rows, []any{node, h.Score})
	}
	return res, nil
}
