// Package grafito provides the embeddable property graph database API.
//
// A Database bundles the SQLite-backed storage engine, the Cypher
// executor, the vector index registry and the full-text index behind a
// single handle:
//
//	db, err := grafito.Open(":memory:", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	db.Execute(ctx, "CREATE (:Person {name: 'Ada'})", nil)
//	res, _ := db.Execute(ctx, "MATCH (p:Person) RETURN p.name", nil)
//
// Individual API calls auto-commit. Begin opens an explicit
// transaction that subsequent calls join until Commit or Rollback;
// WithTransaction wraps the same mechanics in a scoped form with
// guaranteed release.
package grafito

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/orneryd/grafito/pkg/cypher"
	"github.com/orneryd/grafito/pkg/embed"
	"github.com/orneryd/grafito/pkg/search"
	"github.com/orneryd/grafito/pkg/storage"
	"github.com/orneryd/grafito/pkg/value"
)

// TransactionStateError reports a transaction API call that is illegal
// in the current state, such as a nested Begin or a Commit without an
// open transaction.
type TransactionStateError struct {
	Op    string
	State string
}

func (e *TransactionStateError) Error() string {
	return fmt.Sprintf("%s: transaction %s", e.Op, e.State)
}

// SearchHit is one scored node returned by SemanticSearch or
// TextSearch. Higher scores rank better.
type SearchHit struct {
	Node  *storage.Node
	Score float64
}

// Reranker reorders candidate hits given the query vector. Registered
// rerankers are selected by name in SemanticQuery.
type Reranker func(ctx context.Context, query []float32, hits []SearchHit) ([]SearchHit, error)

// SemanticQuery describes one vector search. Exactly one of Vector and
// Text must be set; Text requires a registered embedder.
type SemanticQuery struct {
	Index      string
	Vector     []float32
	Text       string
	Embedder   string
	K          int
	Labels     []string
	Properties map[string]any
	Multiplier int
	Rerank     bool
	// Reranker names a custom reranker registered with
	// RegisterReranker; empty uses exact-score reranking when Rerank
	// is set.
	Reranker string
}

// Database is the top-level handle. All methods are safe for
// concurrent use.
type Database struct {
	cfg   *Config
	log   *logrus.Logger
	store *storage.Store
	vec   *search.Registry
	exec  *cypher.Executor
	procs *cypher.ProcedureRegistry

	mu        sync.Mutex
	tx        *storage.Tx
	txID      string
	rerankers map[string]Reranker
	closed    bool
}

// Open opens or creates a database at path. ":memory:" selects a
// transient in-memory database. A nil cfg uses DefaultConfig.
func Open(path string, cfg *Config) (*Database, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	logger := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}

	store, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	db := &Database{
		cfg:       cfg,
		log:       logger,
		store:     store,
		vec:       search.NewRegistry(store),
		procs:     cypher.NewProcedureRegistry(),
		rerankers: map[string]Reranker{},
	}
	db.procs.Register("db.vector.search", db.vectorSearchProc)
	db.exec = cypher.NewExecutor(db.procs, cfg.MaxHops)

	logger.WithFields(logrus.Fields{
		"component": "grafito",
		"path":      path,
		"fts5":      store.HasFTS5(),
	}).Info("database opened")
	return db, nil
}

// Close rolls back any open transaction and releases the store.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	if db.tx != nil {
		if err := db.tx.Rollback(); err != nil && !errors.Is(err, storage.ErrTxDone) {
			db.log.WithField("tx", db.txID).WithError(err).Warn("rollback on close failed")
		}
		db.tx = nil
	}
	db.log.WithField("component", "grafito").Info("database closed")
	return db.store.Close()
}

// Path returns the path the database was opened with.
func (db *Database) Path() string { return db.store.Path() }

// engine returns the storage surface current operations should run
// against: the open transaction if one exists, else the auto-commit
// store.
func (db *Database) engine() storage.Engine {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.tx != nil {
		return db.tx
	}
	return db.store
}

// Begin opens an explicit transaction. Subsequent calls on the handle
// run inside it until Commit or Rollback. A nested Begin is an error.
func (db *Database) Begin() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return storage.ErrClosed
	}
	if db.tx != nil {
		return &TransactionStateError{Op: "begin", State: "already open"}
	}
	tx, err := db.store.Begin()
	if err != nil {
		return err
	}
	db.tx = tx
	db.txID = uuid.NewString()
	db.log.WithField("tx", db.txID).Debug("transaction begun")
	return nil
}

// Commit commits the open transaction.
func (db *Database) Commit() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.tx == nil {
		return &TransactionStateError{Op: "commit", State: "not open"}
	}
	err := db.tx.Commit()
	db.log.WithField("tx", db.txID).Debug("transaction committed")
	db.tx = nil
	return err
}

// Rollback aborts the open transaction.
func (db *Database) Rollback() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.tx == nil {
		return &TransactionStateError{Op: "rollback", State: "not open"}
	}
	err := db.tx.Rollback()
	db.log.WithField("tx", db.txID).Debug("transaction rolled back")
	db.tx = nil
	return err
}

// WithTransaction runs fn inside a transaction scoped to the call.
// The transaction commits when fn returns nil and rolls back when fn
// returns an error or panics.
func (db *Database) WithTransaction(fn func(tx *storage.Tx) error) error {
	return db.store.WithTx(fn)
}

// Execute parses and runs one Cypher statement, joining the open
// transaction if there is one.
func (db *Database) Execute(ctx context.Context, query string, params map[string]any) (*cypher.Result, error) {
	start := time.Now()
	res, err := db.exec.Execute(ctx, db.engine(), query, params)
	db.log.WithFields(logrus.Fields{
		"component": "cypher",
		"query":     query,
		"duration":  time.Since(start),
	}).Debug("statement executed")
	return res, err
}

// CreateNode creates a node with the given labels and properties.
func (db *Database) CreateNode(labels []string, props map[string]any) (*storage.Node, error) {
	return db.engine().CreateNode(labels, props)
}

// GetNode fetches a node by id.
func (db *Database) GetNode(id int64) (*storage.Node, error) {
	return db.engine().GetNode(id)
}

// MatchNodes returns nodes carrying every given label and matching
// every given property, ordered by id.
func (db *Database) MatchNodes(labels []string, props map[string]any) ([]*storage.Node, error) {
	return db.engine().MatchNodes(labels, props)
}

// UpdateNodeProperties patches or replaces a node's properties.
func (db *Database) UpdateNodeProperties(id int64, patch map[string]any, mode storage.UpdateMode) (*storage.Node, error) {
	return db.engine().UpdateNodeProperties(id, patch, mode)
}

// AddLabels adds labels to a node.
func (db *Database) AddLabels(id int64, labels []string) (*storage.Node, error) {
	return db.engine().AddLabels(id, labels)
}

// RemoveLabels removes labels from a node. The node remains even when
// its label set becomes empty.
func (db *Database) RemoveLabels(id int64, labels []string) (*storage.Node, error) {
	return db.engine().RemoveLabels(id, labels)
}

// DeleteNode deletes a node. Without detach the node must have no
// incident relationships.
func (db *Database) DeleteNode(id int64, detach bool) error {
	if err := db.engine().DeleteNode(id, detach); err != nil {
		return err
	}
	db.vec.RemoveNode(id)
	return nil
}

// CreateRelationship creates a typed relationship between two nodes.
func (db *Database) CreateRelationship(srcID, dstID int64, relType string, props map[string]any) (*storage.Relationship, error) {
	return db.engine().CreateRelationship(srcID, dstID, relType, props)
}

// GetRelationship fetches a relationship by id.
func (db *Database) GetRelationship(id int64) (*storage.Relationship, error) {
	return db.engine().GetRelationship(id)
}

// MatchRelationships returns relationships of the given type (""
// matches any) whose properties include props.
func (db *Database) MatchRelationships(relType string, props map[string]any) ([]*storage.Relationship, error) {
	return db.engine().MatchRelationships(relType, props)
}

// UpdateRelationshipProperties patches or replaces relationship
// properties.
func (db *Database) UpdateRelationshipProperties(id int64, patch map[string]any, mode storage.UpdateMode) (*storage.Relationship, error) {
	return db.engine().UpdateRelationshipProperties(id, patch, mode)
}

// DeleteRelationship deletes a relationship by id.
func (db *Database) DeleteRelationship(id int64) error {
	return db.engine().DeleteRelationship(id)
}

// Neighbors returns the relationships incident to a node in the given
// direction, optionally restricted to one type.
func (db *Database) Neighbors(id int64, dir storage.Direction, relType string) ([]storage.Neighbor, error) {
	return db.engine().Neighbors(id, dir, relType)
}

// FindShortestPath runs a BFS from src to dst, bounded by maxDepth
// hops (<= 0 selects the store default).
func (db *Database) FindShortestPath(src, dst int64, maxDepth int) (*storage.Path, error) {
	return db.store.ShortestPath(src, dst, maxDepth)
}

// FindPaths enumerates simple paths from src to dst up to maxDepth
// hops.
func (db *Database) FindPaths(src, dst int64, maxDepth int) ([]*storage.Path, error) {
	return db.store.FindPaths(src, dst, maxDepth)
}

// CreateNodeIndex creates a property index. An empty name derives one
// from the label and property.
func (db *Database) CreateNodeIndex(name, label, property string) (*storage.IndexDescriptor, error) {
	return db.store.CreatePropertyIndex(name, label, property)
}

// DropIndex removes a property index by name.
func (db *Database) DropIndex(name string) error { return db.store.DropIndex(name) }

// ListIndexes returns all property index descriptors.
func (db *Database) ListIndexes() ([]storage.IndexDescriptor, error) { return db.store.ListIndexes() }

// CreateConstraint installs a constraint, validating existing data
// first.
func (db *Database) CreateConstraint(kind storage.ConstraintKind, label, property, valueKind string) (*storage.ConstraintDescriptor, error) {
	return db.store.CreateConstraint(kind, label, property, valueKind)
}

// DropConstraint removes a constraint.
func (db *Database) DropConstraint(kind storage.ConstraintKind, label, property string) error {
	return db.store.DropConstraint(kind, label, property)
}

// ListConstraints returns all constraint descriptors.
func (db *Database) ListConstraints() ([]storage.ConstraintDescriptor, error) {
	return db.store.ListConstraints()
}

// CreateVectorIndex creates a named vector index. Empty metric or
// method fall back to the configured defaults.
func (db *Database) CreateVectorIndex(name string, dim int, metric, method string) error {
	if metric == "" {
		metric = db.cfg.VectorMetric
	}
	if method == "" {
		method = db.cfg.VectorMethod
	}
	m, err := search.ParseMetric(metric)
	if err != nil {
		return err
	}
	return db.vec.Create(name, dim, m, method, db.cfg.StoreRawVectors)
}

// DropVectorIndex removes a vector index and its entries.
func (db *Database) DropVectorIndex(name string) error { return db.vec.Drop(name) }

// ListVectorIndexes returns all vector index descriptors.
func (db *Database) ListVectorIndexes() ([]storage.VectorIndexDescriptor, error) {
	return db.vec.List()
}

// UpsertEmbedding inserts or replaces the embedding for one node.
func (db *Database) UpsertEmbedding(index string, nodeID int64, vec []float32) error {
	return db.vec.Upsert(index, nodeID, vec)
}

// UpsertEmbeddings inserts or replaces embeddings for several nodes.
func (db *Database) UpsertEmbeddings(index string, vectors map[int64][]float32) error {
	for id, v := range vectors {
		if err := db.vec.Upsert(index, id, v); err != nil {
			return err
		}
	}
	return nil
}

// DeleteEmbedding removes one node's entry from a vector index.
func (db *Database) DeleteEmbedding(index string, nodeID int64) error {
	return db.vec.Remove(index, nodeID)
}

// RegisterEmbedder makes an embedding provider available to text
// queries under the given name. Use search.DefaultEmbedder for the
// fallback slot.
func (db *Database) RegisterEmbedder(name string, e embed.Embedder) {
	db.vec.RegisterEmbedder(name, e)
}

// RegisterReranker installs a named custom reranker for
// SemanticSearch.
func (db *Database) RegisterReranker(name string, r Reranker) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.rerankers[name] = r
}

// SemanticSearch runs an approximate nearest neighbor query with
// optional structural filtering and reranking.
func (db *Database) SemanticSearch(ctx context.Context, q SemanticQuery) ([]SearchHit, error) {
	custom := q.Reranker != ""
	results, err := db.vec.SemanticSearch(ctx, search.Query{
		Index:      q.Index,
		Vector:     q.Vector,
		Text:       q.Text,
		Embedder:   q.Embedder,
		K:          q.K,
		Labels:     q.Labels,
		Properties: q.Properties,
		Multiplier: q.Multiplier,
		Rerank:     q.Rerank && !custom,
	})
	if err != nil {
		return nil, err
	}
	hits, err := db.resolveHits(results)
	if err != nil {
		return nil, err
	}
	if custom {
		db.mu.Lock()
		rr, ok := db.rerankers[q.Reranker]
		db.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("unknown reranker %q", q.Reranker)
		}
		return rr(ctx, q.Vector, hits)
	}
	return hits, nil
}

func (db *Database) resolveHits(results []search.Result) ([]SearchHit, error) {
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		node, err := db.store.GetNode(r.NodeID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		hits = append(hits, SearchHit{Node: node, Score: r.Score})
	}
	return hits, nil
}

// IndexText indexes a node's textual content for full-text search.
func (db *Database) IndexText(nodeID int64, content string) error {
	if !db.cfg.FulltextEnabled {
		return nil
	}
	return db.store.UpsertDocument(nodeID, content)
}

// RemoveText removes a node's full-text document.
func (db *Database) RemoveText(nodeID int64) error {
	return db.store.RemoveDocument(nodeID)
}

// TextSearch runs a BM25 full-text query and returns scored nodes,
// best first.
func (db *Database) TextSearch(query string, k int) ([]SearchHit, error) {
	hits, err := db.store.TextSearch(query, k)
	if err != nil {
		return nil, err
	}
	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		node, err := db.store.GetNode(h.NodeID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, SearchHit{Node: node, Score: h.Score})
	}
	return out, nil
}

// NodeCount returns the number of live nodes.
func (db *Database) NodeCount() (int64, error) { return db.engine().NodeCount() }

// RelationshipCount returns the number of live relationships.
func (db *Database) RelationshipCount() (int64, error) { return db.engine().RelationshipCount() }

// AllLabels returns every label in use, sorted.
func (db *Database) AllLabels() ([]string, error) { return db.engine().AllLabels() }

// AllRelationshipTypes returns every relationship type in use, sorted.
func (db *Database) AllRelationshipTypes() ([]string, error) {
	return db.engine().AllRelationshipTypes()
}

// HasFTS5 reports whether the SQLite build supports full-text search.
func (db *Database) HasFTS5() bool { return db.store.HasFTS5() }

// vectorSearchProc backs CALL db.vector.search(index, query, k,
// options). The query argument is a vector or a text string; options
// is an optional map with labels, properties, rerank, multiplier and
// embedder keys.
func (db *Database) vectorSearchProc(ctx context.Context, eng storage.Engine, args []any) (*cypher.ProcResult, error) {
	if len(args) < 2 || len(args) > 4 {
		return nil, errors.New("db.vector.search expects (index, query [, k [, options]])")
	}
	index, ok := args[0].(string)
	if !ok {
		return nil, errors.New("db.vector.search: index must be a string")
	}
	q := SemanticQuery{Index: index, K: 10}
	switch v := args[1].(type) {
	case string:
		q.Text = v
	case []any:
		vec := make([]float32, len(v))
		for i, x := range v {
			f, ok := value.AsFloat(x)
			if !ok {
				return nil, errors.New("db.vector.search: query vector must be numeric")
			}
			vec[i] = float32(f)
		}
		q.Vector = vec
	default:
		return nil, errors.New("db.vector.search: query must be a vector or a string")
	}
	if len(args) >= 3 && args[2] != nil {
		n, ok := value.AsInt(args[2])
		if !ok || n < 1 {
			return nil, errors.New("db.vector.search: k must be a positive integer")
		}
		q.K = int(n)
	}
	if len(args) == 4 && args[3] != nil {
		opts, ok := args[3].(map[string]any)
		if !ok {
			return nil, errors.New("db.vector.search: options must be a map")
		}
		if err := applySearchOptions(&q, opts); err != nil {
			return nil, err
		}
	}
	hits, err := db.SemanticSearch(ctx, q)
	if err != nil {
		return nil, err
	}
	res := &cypher.ProcResult{Columns: []string{"node", "score"}}
	for _, h := range hits {
		res.Rows = append(res.Rows, []any{h.Node, h.Score})
	}
	return res, nil
}

func applySearchOptions(q *SemanticQuery, opts map[string]any) error {
	for key, v := range opts {
		switch key {
		case "labels":
			list, ok := v.([]any)
			if !ok {
				return errors.New("db.vector.search: labels must be a list of strings")
			}
			for _, l := range list {
				s, ok := l.(string)
				if !ok {
					return errors.New("db.vector.search: labels must be a list of strings")
				}
				q.Labels = append(q.Labels, s)
			}
		case "properties":
			m, ok := v.(map[string]any)
			if !ok {
				return errors.New("db.vector.search: properties must be a map")
			}
			q.Properties = m
		case "rerank":
			b, ok := v.(bool)
			if !ok {
				return errors.New("db.vector.search: rerank must be a boolean")
			}
			q.Rerank = b
		case "multiplier":
			n, ok := value.AsInt(v)
			if !ok || n < 1 {
				return errors.New("db.vector.search: multiplier must be a positive integer")
			}
			q.Multiplier = int(n)
		case "embedder":
			s, ok := v.(string)
			if !ok {
				return errors.New("db.vector.search: embedder must be a string")
			}
			q.Embedder = s
		default:
			return fmt.Errorf("db.vector.search: unknown option %q", key)
		}
	}
	return nil
}
