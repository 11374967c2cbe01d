package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/orneryd/grafito/pkg/value"
)

// Label and relationship-type interning. Names map to small integer
// surrogates held in the labels / rel_types tables; a shared in-memory cache
// fronts the committed rows and each session layers its uncommitted entries
// on top, so a rolled-back transaction never pollutes the cache.

func (sess *session) internLabel(name string) (int64, error) {
	return sess.intern(name, "label", "labels", sess.s.dicts.labels, sess.pendingLabels)
}

func (sess *session) internType(name string) (int64, error) {
	return sess.intern(name, "relationship type", "rel_types", sess.s.dicts.types, sess.pendingTypes)
}

func (sess *session) intern(name, what, table string, cache, pending map[string]int64) (int64, error) {
	if !ValidName(name) {
		return 0, &InvalidNameError{Name: name, What: what}
	}
	if id, ok := pending[name]; ok {
		return id, nil
	}
	sess.s.dicts.Lock()
	id, ok := cache[name]
	sess.s.dicts.Unlock()
	if ok {
		return id, nil
	}
	err := sess.q.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table), name).Scan(&id)
	switch {
	case err == nil:
		pending[name] = id
		return id, nil
	case errors.Is(err, sql.ErrNoRows):
		res, err := sess.q.Exec(fmt.Sprintf("INSERT INTO %s (name) VALUES (?)", table), name)
		if err != nil {
			return 0, fmt.Errorf("intern %s %q: %w", what, name, err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("intern %s %q: %w", what, name, err)
		}
		pending[name] = id
		return id, nil
	default:
		return 0, fmt.Errorf("intern %s %q: %w", what, name, err)
	}
}

// lookupLabel resolves a label without creating it. ok is false for labels
// the database has never seen.
func (sess *session) lookupLabel(name string) (int64, bool, error) {
	return sess.lookup(name, "labels", sess.s.dicts.labels, sess.pendingLabels)
}

func (sess *session) lookupType(name string) (int64, bool, error) {
	return sess.lookup(name, "rel_types", sess.s.dicts.types, sess.pendingTypes)
}

func (sess *session) lookup(name, table string, cache, pending map[string]int64) (int64, bool, error) {
	if id, ok := pending[name]; ok {
		return id, true, nil
	}
	sess.s.dicts.Lock()
	id, ok := cache[name]
	sess.s.dicts.Unlock()
	if ok {
		return id, true, nil
	}
	err := sess.q.QueryRow(fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table), name).Scan(&id)
	switch {
	case err == nil:
		return id, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	default:
		return 0, false, err
	}
}

func (sess *session) nodeLabels(nodeID int64) ([]string, error) {
	rows, err := sess.q.Query(`SELECT l.name FROM node_labels nl JOIN labels l ON l.id = nl.label_id WHERE nl.node_id = ? ORDER BY l.name`, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (sess *session) allNames(table string) ([]string, error) {
	rows, err := sess.q.Query(fmt.Sprintf("SELECT name FROM %s ORDER BY name", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// normalizeLabels validates and dedupes a label list, preserving order.
func normalizeLabels(labels []string) ([]string, error) {
	out := make([]string, 0, len(labels))
	seen := map[string]bool{}
	for _, l := range labels {
		if !ValidName(l) {
			return nil, &InvalidNameError{Name: l, What: "label"}
		}
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	return out, nil
}

// encodeProps normalizes and encodes a property map for storage.
func encodeProps(props map[string]any) (map[string]any, []byte, error) {
	norm, err := value.NormalizeProperties(props)
	if err != nil {
		return nil, nil, err
	}
	blob, err := value.EncodeProperties(norm)
	if err != nil {
		return nil, nil, err
	}
	return norm, blob, nil
}
