package storage

import (
	"fmt"

	"github.com/orneryd/grafito/pkg/value"
)

// Property indexes map an encoded property value to the nodes carrying it,
// scoped to one label. Rows live in property_index_entries and are refreshed
// alongside constraint bookkeeping on every node mutation.

func (sess *session) loadPropertyIndexes() ([]IndexDescriptor, error) {
	rows, err := sess.q.Query(`SELECT name, label, property, kind FROM property_indexes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IndexDescriptor
	for rows.Next() {
		var d IndexDescriptor
		var kind string
		if err := rows.Scan(&d.Name, &d.Label, &d.Property, &kind); err != nil {
			return nil, err
		}
		d.Kind = IndexKind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (sess *session) refreshPropertyIndexRows(n *Node) error {
	if _, err := sess.q.Exec(`DELETE FROM property_index_entries WHERE node_id = ?`, n.ID); err != nil {
		return fmt.Errorf("index node %d: %w", n.ID, err)
	}
	descs, err := sess.loadPropertyIndexes()
	if err != nil {
		return fmt.Errorf("index node %d: %w", n.ID, err)
	}
	for _, d := range descs {
		if !n.HasLabel(d.Label) {
			continue
		}
		v, ok := n.Properties[d.Property]
		if !ok || v == nil {
			continue
		}
		enc, err := value.EncodeValue(v)
		if err != nil {
			return err
		}
		if _, err := sess.q.Exec(`INSERT INTO property_index_entries (index_name, node_id, value) VALUES (?, ?, ?)`,
			d.Name, n.ID, string(enc)); err != nil {
			return fmt.Errorf("index node %d: %w", n.ID, err)
		}
	}
	return nil
}

// createPropertyIndex registers the index and backfills entries for existing
// nodes.
func (sess *session) createPropertyIndex(name, label, property string) (*IndexDescriptor, error) {
	if !ValidName(label) {
		return nil, &InvalidNameError{Name: label, What: "label"}
	}
	if name == "" {
		name = fmt.Sprintf("idx_%s_%s", label, property)
	}
	if _, err := sess.q.Exec(`INSERT INTO property_indexes (name, label, property, kind) VALUES (?, ?, ?, ?)`,
		name, label, property, string(IndexProperty)); err != nil {
		return nil, fmt.Errorf("create index %s: %w", name, err)
	}
	d := IndexDescriptor{Name: name, Kind: IndexProperty, Label: label, Property: property}
	nodes, err := sess.matchNodes([]string{label}, nil)
	if err != nil {
		return nil, fmt.Errorf("backfill index %s: %w", name, err)
	}
	for _, n := range nodes {
		v, ok := n.Properties[property]
		if !ok || v == nil {
			continue
		}
		enc, err := value.EncodeValue(v)
		if err != nil {
			return nil, err
		}
		if _, err := sess.q.Exec(`INSERT INTO property_index_entries (index_name, node_id, value) VALUES (?, ?, ?)`,
			name, n.ID, string(enc)); err != nil {
			return nil, fmt.Errorf("backfill index %s: %w", name, err)
		}
	}
	return &d, nil
}

func (sess *session) dropIndex(name string) error {
	res, err := sess.q.Exec(`DELETE FROM property_indexes WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("drop index %s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("index %s: %w", name, ErrNotFound)
	}
	// ON DELETE CASCADE covers property_index_entries.
	return nil
}

// indexFor finds a property index covering (label, property), if any.
func (sess *session) indexFor(label, property string) (*IndexDescriptor, error) {
	descs, err := sess.loadPropertyIndexes()
	if err != nil {
		return nil, err
	}
	for i := range descs {
		if descs[i].Label == label && descs[i].Property == property {
			return &descs[i], nil
		}
	}
	return nil, nil
}
