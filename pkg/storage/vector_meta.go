package storage

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/orneryd/grafito/pkg/value"
)

// Durable vector index metadata and raw vector rows. The in-memory ANN
// handles live in pkg/search; this file owns only what must survive reopen:
// descriptors in vector_indexes and, when opted in, raw float32 vectors in
// vector_entries for rebuild and exact reranking.

// encodeVector serializes a float32 vector as little-endian bytes.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector; nil blobs decode to nil.
func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

func (sess *session) putVectorIndex(d VectorIndexDescriptor) error {
	opts, err := value.EncodeProperties(d.Options)
	if err != nil {
		return err
	}
	_, err = sess.q.Exec(`INSERT INTO vector_indexes (name, dim, metric, method, options_json) VALUES (?, ?, ?, ?, ?)`,
		d.Name, d.Dim, d.Metric, d.Method, string(opts))
	if err != nil {
		return fmt.Errorf("create vector index %s: %w", d.Name, err)
	}
	return nil
}

func (sess *session) getVectorIndex(name string) (*VectorIndexDescriptor, error) {
	var d VectorIndexDescriptor
	var opts string
	err := sess.q.QueryRow(`SELECT name, dim, metric, method, options_json FROM vector_indexes WHERE name = ?`, name).
		Scan(&d.Name, &d.Dim, &d.Metric, &d.Method, &opts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vector index %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("vector index %s: %w", name, err)
	}
	d.Options, err = value.DecodeProperties([]byte(opts))
	if err != nil {
		return nil, fmt.Errorf("vector index %s: %w", name, err)
	}
	return &d, nil
}

func (sess *session) listVectorIndexes() ([]VectorIndexDescriptor, error) {
	rows, err := sess.q.Query(`SELECT name, dim, metric, method, options_json FROM vector_indexes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []VectorIndexDescriptor{}
	for rows.Next() {
		var d VectorIndexDescriptor
		var opts string
		if err := rows.Scan(&d.Name, &d.Dim, &d.Metric, &d.Method, &opts); err != nil {
			return nil, err
		}
		d.Options, err = value.DecodeProperties([]byte(opts))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (sess *session) deleteVectorIndex(name string) error {
	res, err := sess.q.Exec(`DELETE FROM vector_indexes WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("drop vector index %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("vector index %s: %w", name, ErrNotFound)
	}
	// vector_entries rows cascade.
	return nil
}

// upsertVectorEntry stores or refreshes one embedding row. vec may be nil
// when the caller keeps raw vectors out of the database.
func (sess *session) upsertVectorEntry(indexName string, nodeID int64, vec []float32) error {
	var blob []byte
	if vec != nil {
		blob = encodeVector(vec)
	}
	_, err := sess.q.Exec(`INSERT INTO vector_entries (index_name, node_id, vector_blob) VALUES (?, ?, ?)
		ON CONFLICT(index_name, node_id) DO UPDATE SET vector_blob = excluded.vector_blob`,
		indexName, nodeID, blob)
	if err != nil {
		return fmt.Errorf("upsert embedding %s/%d: %w", indexName, nodeID, err)
	}
	return nil
}

func (sess *session) deleteVectorEntry(indexName string, nodeID int64) error {
	_, err := sess.q.Exec(`DELETE FROM vector_entries WHERE index_name = ? AND node_id = ?`, indexName, nodeID)
	if err != nil {
		return fmt.Errorf("remove embedding %s/%d: %w", indexName, nodeID, err)
	}
	return nil
}

// vectorEntries returns all stored rows of one index in node id order.
func (sess *session) vectorEntries(indexName string) ([]VectorEntry, error) {
	rows, err := sess.q.Query(`SELECT node_id, vector_blob FROM vector_entries WHERE index_name = ? ORDER BY node_id`, indexName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []VectorEntry{}
	for rows.Next() {
		var e VectorEntry
		var blob []byte
		if err := rows.Scan(&e.NodeID, &blob); err != nil {
			return nil, err
		}
		e.Vector = decodeVector(blob)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (sess *session) vectorEntry(indexName string, nodeID int64) (*VectorEntry, error) {
	var blob []byte
	err := sess.q.QueryRow(`SELECT vector_blob FROM vector_entries WHERE index_name = ? AND node_id = ?`, indexName, nodeID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s/%d: %w", indexName, nodeID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &VectorEntry{NodeID: nodeID, Vector: decodeVector(blob)}, nil
}
