package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/orneryd/grafito/pkg/value"
)

func (sess *session) createNode(labels []string, props map[string]any) (*Node, error) {
	labels, err := normalizeLabels(labels)
	if err != nil {
		return nil, err
	}
	norm, blob, err := encodeProps(props)
	if err != nil {
		return nil, err
	}
	createdAt := float64(time.Now().UnixNano()) / 1e9
	res, err := sess.q.Exec(`INSERT INTO nodes (properties_json, created_at) VALUES (?, ?)`, blob, createdAt)
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create node: %w", err)
	}
	for _, l := range labels {
		labelID, err := sess.internLabel(l)
		if err != nil {
			return nil, err
		}
		if _, err := sess.q.Exec(`INSERT INTO node_labels (node_id, label_id) VALUES (?, ?)`, id, labelID); err != nil {
			return nil, fmt.Errorf("create node: %w", err)
		}
	}
	n := &Node{ID: id, Labels: labels, Properties: norm, CreatedAt: createdAt}
	if err := sess.reindexNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (sess *session) getNode(id int64) (*Node, error) {
	var blob []byte
	var createdAt float64
	err := sess.q.QueryRow(`SELECT properties_json, created_at FROM nodes WHERE id = ?`, id).Scan(&blob, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %d: %w", id, err)
	}
	props, err := value.DecodeProperties(blob)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", id, err)
	}
	labels, err := sess.nodeLabels(id)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", id, err)
	}
	return &Node{ID: id, Labels: labels, Properties: props, CreatedAt: createdAt}, nil
}

func (sess *session) updateNodeProperties(id int64, patch map[string]any, mode UpdateMode) (*Node, error) {
	n, err := sess.getNode(id)
	if err != nil {
		return nil, err
	}
	normPatch, err := value.NormalizeProperties(patch)
	if err != nil {
		return nil, err
	}
	switch mode {
	case UpdateReplace:
		n.Properties = normPatch
	default:
		for k, v := range normPatch {
			if v == nil {
				delete(n.Properties, k)
			} else {
				n.Properties[k] = v
			}
		}
	}
	if err := sess.storeNodeProps(n); err != nil {
		return nil, err
	}
	if err := sess.reindexNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (sess *session) storeNodeProps(n *Node) error {
	blob, err := value.EncodeProperties(n.Properties)
	if err != nil {
		return err
	}
	_, err = sess.q.Exec(`UPDATE nodes SET properties_json = ? WHERE id = ?`, blob, n.ID)
	if err != nil {
		return fmt.Errorf("update node %d: %w", n.ID, err)
	}
	return nil
}

func (sess *session) addLabels(id int64, labels []string) (*Node, error) {
	n, err := sess.getNode(id)
	if err != nil {
		return nil, err
	}
	labels, err = normalizeLabels(labels)
	if err != nil {
		return nil, err
	}
	for _, l := range labels {
		if n.HasLabel(l) {
			continue
		}
		labelID, err := sess.internLabel(l)
		if err != nil {
			return nil, err
		}
		if _, err := sess.q.Exec(`INSERT OR IGNORE INTO node_labels (node_id, label_id) VALUES (?, ?)`, id, labelID); err != nil {
			return nil, fmt.Errorf("add label %s: %w", l, err)
		}
		n.Labels = append(n.Labels, l)
	}
	if err := sess.reindexNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

// removeLabels drops labels from the node. The label set may become empty;
// the node itself remains.
func (sess *session) removeLabels(id int64, labels []string) (*Node, error) {
	n, err := sess.getNode(id)
	if err != nil {
		return nil, err
	}
	for _, l := range labels {
		labelID, ok, err := sess.lookupLabel(l)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if _, err := sess.q.Exec(`DELETE FROM node_labels WHERE node_id = ? AND label_id = ?`, id, labelID); err != nil {
			return nil, fmt.Errorf("remove label %s: %w", l, err)
		}
		kept := n.Labels[:0]
		for _, have := range n.Labels {
			if have != l {
				kept = append(kept, have)
			}
		}
		n.Labels = kept
	}
	if err := sess.reindexNode(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (sess *session) deleteNode(id int64, detach bool) error {
	if _, err := sess.getNode(id); err != nil {
		return err
	}
	var relCount int64
	if err := sess.q.QueryRow(`SELECT COUNT(*) FROM relationships WHERE source_id = ? OR target_id = ?`, id, id).Scan(&relCount); err != nil {
		return fmt.Errorf("delete node %d: %w", id, err)
	}
	if relCount > 0 {
		if !detach {
			return &ConstraintViolationError{
				Kind:   ConstraintRelationships,
				Detail: fmt.Sprintf("node %d has %d relationship(s); use detach delete", id, relCount),
			}
		}
		if _, err := sess.q.Exec(`DELETE FROM relationships WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
			return fmt.Errorf("detach node %d: %w", id, err)
		}
	}
	// Cascades: index rows, constraint rows, embeddings and the fulltext
	// document all die with the node.
	for _, stmt := range []string{
		`DELETE FROM property_index_entries WHERE node_id = ?`,
		`DELETE FROM unique_values WHERE node_id = ?`,
		`DELETE FROM vector_entries WHERE node_id = ?`,
		`DELETE FROM node_labels WHERE node_id = ?`,
	} {
		if _, err := sess.q.Exec(stmt, id); err != nil {
			return fmt.Errorf("delete node %d: %w", id, err)
		}
	}
	if sess.s.fts5 {
		if _, err := sess.q.Exec(`DELETE FROM node_fts WHERE node_id = ?`, id); err != nil {
			return fmt.Errorf("delete node %d: %w", id, err)
		}
	}
	if _, err := sess.q.Exec(`DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete node %d: %w", id, err)
	}
	return nil
}

func (sess *session) nodeCount() (int64, error) {
	var n int64
	err := sess.q.QueryRow(`SELECT COUNT(*) FROM nodes`).Scan(&n)
	return n, err
}
