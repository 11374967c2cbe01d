package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/orneryd/grafito/pkg/value"
)

// Constraint enforcement. Every node mutation funnels through reindexNode,
// which re-derives the node's constraint bookkeeping and property index rows
// from its current labels and properties. Unique constraints are backed by
// the unique_values table whose primary key (constraint_id, value) turns a
// duplicate into a conflict inside the enclosing transaction, before commit.

func (sess *session) loadConstraints() ([]ConstraintDescriptor, error) {
	rows, err := sess.q.Query(`SELECT id, kind, label, property, value_kind FROM constraints ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConstraintDescriptor
	for rows.Next() {
		var c ConstraintDescriptor
		var kind string
		if err := rows.Scan(&c.ID, &kind, &c.Label, &c.Property, &c.ValueKind); err != nil {
			return nil, err
		}
		c.Kind = ConstraintKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

// reindexNode refreshes constraint and property-index rows for n and enforces
// every constraint applicable to its current label set.
func (sess *session) reindexNode(n *Node) error {
	if _, err := sess.q.Exec(`DELETE FROM unique_values WHERE node_id = ?`, n.ID); err != nil {
		return fmt.Errorf("reindex node %d: %w", n.ID, err)
	}
	constraints, err := sess.loadConstraints()
	if err != nil {
		return fmt.Errorf("reindex node %d: %w", n.ID, err)
	}
	for _, c := range constraints {
		if !n.HasLabel(c.Label) {
			continue
		}
		if err := sess.enforceConstraint(c, n); err != nil {
			return err
		}
	}
	return sess.refreshPropertyIndexRows(n)
}

func (sess *session) enforceConstraint(c ConstraintDescriptor, n *Node) error {
	v, present := n.Properties[c.Property]
	switch c.Kind {
	case ConstraintExists:
		if !present || v == nil {
			return &ConstraintViolationError{
				Kind: c.Kind, Label: c.Label, Property: c.Property,
				Detail: fmt.Sprintf("node %d is missing required property", n.ID),
			}
		}
	case ConstraintType:
		if !present || v == nil {
			return nil
		}
		if got := value.KindOf(v).String(); got != c.ValueKind {
			return &ConstraintViolationError{
				Kind: c.Kind, Label: c.Label, Property: c.Property,
				Detail: fmt.Sprintf("node %d has %s, want %s", n.ID, got, c.ValueKind),
			}
		}
	case ConstraintUnique:
		if !present || v == nil {
			return nil
		}
		enc, err := value.EncodeValue(v)
		if err != nil {
			return err
		}
		var owner int64
		err = sess.q.QueryRow(`SELECT node_id FROM unique_values WHERE constraint_id = ? AND value = ?`, c.ID, string(enc)).Scan(&owner)
		switch {
		case err == nil && owner != n.ID:
			return &ConstraintViolationError{
				Kind: c.Kind, Label: c.Label, Property: c.Property,
				Detail: fmt.Sprintf("value %s already taken by node %d", enc, owner),
			}
		case err == nil:
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("unique check: %w", err)
		}
		if _, err := sess.q.Exec(`INSERT INTO unique_values (constraint_id, value, node_id) VALUES (?, ?, ?)`, c.ID, string(enc), n.ID); err != nil {
			return fmt.Errorf("unique check: %w", err)
		}
	}
	return nil
}

// createConstraint persists a constraint after validating that all existing
// data already satisfies it.
func (sess *session) createConstraint(kind ConstraintKind, label, property, valueKind string) (*ConstraintDescriptor, error) {
	if !ValidName(label) {
		return nil, &InvalidNameError{Name: label, What: "label"}
	}
	switch kind {
	case ConstraintUnique, ConstraintExists:
	case ConstraintType:
		if valueKind == "" {
			return nil, fmt.Errorf("type constraint requires a value kind")
		}
	default:
		return nil, fmt.Errorf("unknown constraint kind %q", kind)
	}
	res, err := sess.q.Exec(`INSERT INTO constraints (kind, label, property, value_kind) VALUES (?, ?, ?, ?)`,
		string(kind), label, property, valueKind)
	if err != nil {
		return nil, fmt.Errorf("create constraint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create constraint: %w", err)
	}
	c := ConstraintDescriptor{ID: id, Kind: kind, Label: label, Property: property, ValueKind: valueKind}
	if err := sess.validateConstraintOnCreation(c); err != nil {
		return nil, err
	}
	return &c, nil
}

// validateConstraintOnCreation scans existing nodes with the constraint's
// label and checks each one; for unique constraints it also seeds
// unique_values so later mutations can rely on the table.
func (sess *session) validateConstraintOnCreation(c ConstraintDescriptor) error {
	nodes, err := sess.matchNodes([]string{c.Label}, nil)
	if err != nil {
		return fmt.Errorf("validate constraint: %w", err)
	}
	for _, n := range nodes {
		if err := sess.enforceConstraint(c, n); err != nil {
			return err
		}
	}
	return nil
}

func (sess *session) dropConstraint(kind ConstraintKind, label, property string) error {
	res, err := sess.q.Exec(`DELETE FROM constraints WHERE kind = ? AND label = ? AND property = ?`, string(kind), label, property)
	if err != nil {
		return fmt.Errorf("drop constraint: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("constraint %s(%s.%s): %w", kind, label, property, ErrNotFound)
	}
	return nil
}
