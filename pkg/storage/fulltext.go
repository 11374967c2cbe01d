package storage

import (
	"errors"
	"fmt"
)

// Full-text search over the node_fts FTS5 virtual table. One document per
// node; bm25() supplies the ranking. FTS5 is optional in the driver build, so
// every entry point checks the probe done at Open.

// ErrNoFTS5 reports that the SQLite driver was built without FTS5.
var ErrNoFTS5 = errors.New("fts5 not available")

func (sess *session) upsertDocument(nodeID int64, content string) error {
	if !sess.s.fts5 {
		return ErrNoFTS5
	}
	if _, err := sess.q.Exec(`DELETE FROM node_fts WHERE node_id = ?`, nodeID); err != nil {
		return fmt.Errorf("fulltext upsert %d: %w", nodeID, err)
	}
	if _, err := sess.q.Exec(`INSERT INTO node_fts (content, node_id) VALUES (?, ?)`, content, nodeID); err != nil {
		return fmt.Errorf("fulltext upsert %d: %w", nodeID, err)
	}
	return nil
}

func (sess *session) removeDocument(nodeID int64) error {
	if !sess.s.fts5 {
		return ErrNoFTS5
	}
	if _, err := sess.q.Exec(`DELETE FROM node_fts WHERE node_id = ?`, nodeID); err != nil {
		return fmt.Errorf("fulltext remove %d: %w", nodeID, err)
	}
	return nil
}

// textSearch runs an FTS5 MATCH query and returns up to k hits best-first.
// bm25() returns lower-is-better; the score is negated so the convention
// matches vector search (higher is better).
func (sess *session) textSearch(query string, k int) ([]TextHit, error) {
	if !sess.s.fts5 {
		return nil, ErrNoFTS5
	}
	if k <= 0 {
		k = 10
	}
	rows, err := sess.q.Query(`SELECT node_id, bm25(node_fts) FROM node_fts WHERE node_fts MATCH ? ORDER BY bm25(node_fts), node_id LIMIT ?`, query, k)
	if err != nil {
		return nil, fmt.Errorf("fulltext search: %w", err)
	}
	defer rows.Close()
	out := []TextHit{}
	for rows.Next() {
		var h TextHit
		var rank float64
		if err := rows.Scan(&h.NodeID, &rank); err != nil {
			return nil, err
		}
		h.Score = -rank
		out = append(out, h)
	}
	return out, rows.Err()
}
