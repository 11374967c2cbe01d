package storage

import (
	"fmt"
	"strings"

	"github.com/orneryd/grafito/pkg/value"
)

// matchNodes streams nodes carrying every label in labels whose properties
// equal the given map entry-wise. Labels resolve through the node_labels
// intersection; when a property index covers one of the equality predicates
// the candidate set starts from the index instead. Remaining predicates run
// in memory with deep equality.
func (sess *session) matchNodes(labels []string, props map[string]any) ([]*Node, error) {
	norm, err := value.NormalizeProperties(props)
	if err != nil {
		return nil, err
	}

	ids, narrowed, err := sess.candidateIDs(labels, norm)
	if err != nil {
		return nil, err
	}

	out := []*Node{}
	for _, id := range ids {
		n, err := sess.getNode(id)
		if err != nil {
			return nil, err
		}
		if !narrowed && !nodeHasLabels(n, labels) {
			continue
		}
		if matchProps(n.Properties, norm) {
			out = append(out, n)
		}
	}
	return out, nil
}

// candidateIDs picks the cheapest starting set. narrowed reports whether the
// label predicate is already satisfied by construction.
func (sess *session) candidateIDs(labels []string, props map[string]any) ([]int64, bool, error) {
	// A covering property index beats everything else.
	for _, label := range labels {
		for prop, v := range props {
			if v == nil {
				continue
			}
			d, err := sess.indexFor(label, prop)
			if err != nil {
				return nil, false, err
			}
			if d == nil {
				continue
			}
			enc, err := value.EncodeValue(v)
			if err != nil {
				return nil, false, err
			}
			ids, err := sess.queryIDs(`SELECT node_id FROM property_index_entries WHERE index_name = ? AND value = ? ORDER BY node_id`,
				d.Name, string(enc))
			// The index narrows to one label only; the caller still checks
			// the rest of the label set.
			return ids, len(labels) == 1, err
		}
	}

	if len(labels) > 0 {
		labelIDs := make([]any, 0, len(labels))
		for _, l := range labels {
			id, ok, err := sess.lookupLabel(l)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, true, nil
			}
			labelIDs = append(labelIDs, id)
		}
		q := fmt.Sprintf(`SELECT node_id FROM node_labels WHERE label_id IN (%s)
			GROUP BY node_id HAVING COUNT(DISTINCT label_id) = %d ORDER BY node_id`,
			placeholders(len(labelIDs)), len(labelIDs))
		ids, err := sess.queryIDs(q, labelIDs...)
		return ids, true, err
	}

	ids, err := sess.queryIDs(`SELECT id FROM nodes ORDER BY id`)
	return ids, true, err
}

func (sess *session) queryIDs(query string, args ...any) ([]int64, error) {
	rows, err := sess.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nodeHasLabels(n *Node, labels []string) bool {
	for _, l := range labels {
		if !n.HasLabel(l) {
			return false
		}
	}
	return true
}

func matchProps(have, want map[string]any) bool {
	for k, v := range want {
		got, ok := have[k]
		if !ok || !value.Equal(got, v) {
			return false
		}
	}
	return true
}

// matchRelationships filters by type and property equality.
func (sess *session) matchRelationships(relType string, props map[string]any) ([]*Relationship, error) {
	norm, err := value.NormalizeProperties(props)
	if err != nil {
		return nil, err
	}
	query := relSelect
	var args []any
	if relType != "" {
		typeID, ok, err := sess.lookupType(relType)
		if err != nil {
			return nil, err
		}
		if !ok {
			return []*Relationship{}, nil
		}
		query += ` WHERE r.type_id = ?`
		args = append(args, typeID)
	}
	query += ` ORDER BY r.id`
	rows, err := sess.q.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("match relationships: %w", err)
	}
	defer rows.Close()
	out := []*Relationship{}
	for rows.Next() {
		r, err := scanRelationship(rows.Scan)
		if err != nil {
			return nil, err
		}
		if matchProps(r.Properties, norm) {
			out = append(out, r)
		}
	}
	return out, rows.Err()
}
