package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/orneryd/grafito/pkg/value"
)

func (sess *session) createRelationship(sourceID, targetID int64, relType string, props map[string]any) (*Relationship, error) {
	if !ValidName(relType) {
		return nil, &InvalidNameError{Name: relType, What: "relationship type"}
	}
	for _, id := range []int64{sourceID, targetID} {
		var one int
		err := sess.q.QueryRow(`SELECT 1 FROM nodes WHERE id = ?`, id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("node %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("create relationship: %w", err)
		}
	}
	norm, blob, err := encodeProps(props)
	if err != nil {
		return nil, err
	}
	typeID, err := sess.internType(relType)
	if err != nil {
		return nil, err
	}
	res, err := sess.q.Exec(`INSERT INTO relationships (source_id, target_id, type_id, properties_json) VALUES (?, ?, ?, ?)`,
		sourceID, targetID, typeID, blob)
	if err != nil {
		return nil, fmt.Errorf("create relationship: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create relationship: %w", err)
	}
	return &Relationship{ID: id, SourceID: sourceID, TargetID: targetID, Type: relType, Properties: norm}, nil
}

const relSelect = `SELECT r.id, r.source_id, r.target_id, t.name, r.properties_json
	FROM relationships r JOIN rel_types t ON t.id = r.type_id`

func scanRelationship(scan func(...any) error) (*Relationship, error) {
	var r Relationship
	var blob []byte
	if err := scan(&r.ID, &r.SourceID, &r.TargetID, &r.Type, &blob); err != nil {
		return nil, err
	}
	props, err := value.DecodeProperties(blob)
	if err != nil {
		return nil, err
	}
	r.Properties = props
	return &r, nil
}

func (sess *session) getRelationship(id int64) (*Relationship, error) {
	row := sess.q.QueryRow(relSelect+` WHERE r.id = ?`, id)
	r, err := scanRelationship(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("relationship %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get relationship %d: %w", id, err)
	}
	return r, nil
}

func (sess *session) updateRelationshipProperties(id int64, patch map[string]any, mode UpdateMode) (*Relationship, error) {
	r, err := sess.getRelationship(id)
	if err != nil {
		return nil, err
	}
	normPatch, err := value.NormalizeProperties(patch)
	if err != nil {
		return nil, err
	}
	switch mode {
	case UpdateReplace:
		r.Properties = normPatch
	default:
		for k, v := range normPatch {
			if v == nil {
				delete(r.Properties, k)
			} else {
				r.Properties[k] = v
			}
		}
	}
	blob, err := value.EncodeProperties(r.Properties)
	if err != nil {
		return nil, err
	}
	if _, err := sess.q.Exec(`UPDATE relationships SET properties_json = ? WHERE id = ?`, blob, id); err != nil {
		return nil, fmt.Errorf("update relationship %d: %w", id, err)
	}
	return r, nil
}

func (sess *session) deleteRelationship(id int64) error {
	res, err := sess.q.Exec(`DELETE FROM relationships WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete relationship %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete relationship %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("relationship %d: %w", id, ErrNotFound)
	}
	return nil
}

func (sess *session) relationshipCount() (int64, error) {
	var n int64
	err := sess.q.QueryRow(`SELECT COUNT(*) FROM relationships`).Scan(&n)
	return n, err
}

// neighbors enumerates (relationship, far node) pairs incident to nodeID.
// The (source_id, type_id) and (target_id, type_id) indexes keep this
// proportional to the node's degree.
func (sess *session) neighbors(nodeID int64, dir Direction, relType string) ([]Neighbor, error) {
	var typeID int64
	var typed bool
	if relType != "" {
		id, ok, err := sess.lookupType(relType)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []Neighbor{}, nil
		}
		typeID, typed = id, true
	}

	var out []Neighbor
	collect := func(query string, outgoing bool) error {
		args := []any{nodeID}
		if typed {
			query += ` AND r.type_id = ?`
			args = append(args, typeID)
		}
		query += ` ORDER BY r.id`
		rows, err := sess.q.Query(relSelect+query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			r, err := scanRelationship(rows.Scan)
			if err != nil {
				return err
			}
			farID := r.TargetID
			if !outgoing {
				farID = r.SourceID
			}
			far, err := sess.getNode(farID)
			if err != nil {
				return err
			}
			out = append(out, Neighbor{Rel: r, Node: far})
		}
		return rows.Err()
	}

	if dir == DirOut || dir == DirBoth {
		if err := collect(` WHERE r.source_id = ?`, true); err != nil {
			return nil, fmt.Errorf("neighbors of %d: %w", nodeID, err)
		}
	}
	if dir == DirIn || dir == DirBoth {
		if err := collect(` WHERE r.target_id = ?`, false); err != nil {
			return nil, fmt.Errorf("neighbors of %d: %w", nodeID, err)
		}
	}
	return out, nil
}
