package storage

// Engine implementations. *Store wraps each call in its own transaction;
// *Tx routes everything through the one SQLite transaction it owns.

func (s *Store) CreateNode(labels []string, properties map[string]any) (*Node, error) {
	var n *Node
	err := s.write(func(sess *session) (err error) {
		n, err = sess.createNode(labels, properties)
		return
	})
	return n, err
}

func (s *Store) GetNode(id int64) (*Node, error) {
	var n *Node
	err := s.read(func(sess *session) (err error) {
		n, err = sess.getNode(id)
		return
	})
	return n, err
}

func (s *Store) UpdateNodeProperties(id int64, patch map[string]any, mode UpdateMode) (*Node, error) {
	var n *Node
	err := s.write(func(sess *session) (err error) {
		n, err = sess.updateNodeProperties(id, patch, mode)
		return
	})
	return n, err
}

func (s *Store) AddLabels(id int64, labels []string) (*Node, error) {
	var n *Node
	err := s.write(func(sess *session) (err error) {
		n, err = sess.addLabels(id, labels)
		return
	})
	return n, err
}

func (s *Store) RemoveLabels(id int64, labels []string) (*Node, error) {
	var n *Node
	err := s.write(func(sess *session) (err error) {
		n, err = sess.removeLabels(id, labels)
		return
	})
	return n, err
}

func (s *Store) DeleteNode(id int64, detach bool) error {
	return s.write(func(sess *session) error { return sess.deleteNode(id, detach) })
}

func (s *Store) CreateRelationship(sourceID, targetID int64, relType string, properties map[string]any) (*Relationship, error) {
	var r *Relationship
	err := s.write(func(sess *session) (err error) {
		r, err = sess.createRelationship(sourceID, targetID, relType, properties)
		return
	})
	return r, err
}

func (s *Store) GetRelationship(id int64) (*Relationship, error) {
	var r *Relationship
	err := s.read(func(sess *session) (err error) {
		r, err = sess.getRelationship(id)
		return
	})
	return r, err
}

func (s *Store) UpdateRelationshipProperties(id int64, patch map[string]any, mode UpdateMode) (*Relationship, error) {
	var r *Relationship
	err := s.write(func(sess *session) (err error) {
		r, err = sess.updateRelationshipProperties(id, patch, mode)
		return
	})
	return r, err
}

func (s *Store) DeleteRelationship(id int64) error {
	return s.write(func(sess *session) error { return sess.deleteRelationship(id) })
}

func (s *Store) MatchNodes(labels []string, properties map[string]any) ([]*Node, error) {
	var out []*Node
	err := s.read(func(sess *session) (err error) {
		out, err = sess.matchNodes(labels, properties)
		return
	})
	return out, err
}

func (s *Store) MatchRelationships(relType string, properties map[string]any) ([]*Relationship, error) {
	var out []*Relationship
	err := s.read(func(sess *session) (err error) {
		out, err = sess.matchRelationships(relType, properties)
		return
	})
	return out, err
}

func (s *Store) Neighbors(nodeID int64, dir Direction, relType string) ([]Neighbor, error) {
	var out []Neighbor
	err := s.read(func(sess *session) (err error) {
		out, err = sess.neighbors(nodeID, dir, relType)
		return
	})
	return out, err
}

func (s *Store) NodeCount() (int64, error) {
	var n int64
	err := s.read(func(sess *session) (err error) {
		n, err = sess.nodeCount()
		return
	})
	return n, err
}

func (s *Store) RelationshipCount() (int64, error) {
	var n int64
	err := s.read(func(sess *session) (err error) {
		n, err = sess.relationshipCount()
		return
	})
	return n, err
}

func (s *Store) AllLabels() ([]string, error) {
	var out []string
	err := s.read(func(sess *session) (err error) {
		out, err = sess.allNames("labels")
		return
	})
	return out, err
}

func (s *Store) AllRelationshipTypes() ([]string, error) {
	var out []string
	err := s.read(func(sess *session) (err error) {
		out, err = sess.allNames("rel_types")
		return
	})
	return out, err
}

// Schema surface.

func (s *Store) CreatePropertyIndex(name, label, property string) (*IndexDescriptor, error) {
	var d *IndexDescriptor
	err := s.write(func(sess *session) (err error) {
		d, err = sess.createPropertyIndex(name, label, property)
		return
	})
	return d, err
}

func (s *Store) DropIndex(name string) error {
	return s.write(func(sess *session) error { return sess.dropIndex(name) })
}

func (s *Store) ListIndexes() ([]IndexDescriptor, error) {
	var out []IndexDescriptor
	err := s.read(func(sess *session) (err error) {
		out, err = sess.loadPropertyIndexes()
		return
	})
	return out, err
}

func (s *Store) CreateConstraint(kind ConstraintKind, label, property, valueKind string) (*ConstraintDescriptor, error) {
	var c *ConstraintDescriptor
	err := s.write(func(sess *session) (err error) {
		c, err = sess.createConstraint(kind, label, property, valueKind)
		return
	})
	return c, err
}

func (s *Store) DropConstraint(kind ConstraintKind, label, property string) error {
	return s.write(func(sess *session) error { return sess.dropConstraint(kind, label, property) })
}

func (s *Store) ListConstraints() ([]ConstraintDescriptor, error) {
	var out []ConstraintDescriptor
	err := s.read(func(sess *session) (err error) {
		out, err = sess.loadConstraints()
		return
	})
	return out, err
}

// Vector metadata surface.

func (s *Store) PutVectorIndex(d VectorIndexDescriptor) error {
	return s.write(func(sess *session) error { return sess.putVectorIndex(d) })
}

func (s *Store) GetVectorIndex(name string) (*VectorIndexDescriptor, error) {
	var d *VectorIndexDescriptor
	err := s.read(func(sess *session) (err error) {
		d, err = sess.getVectorIndex(name)
		return
	})
	return d, err
}

func (s *Store) ListVectorIndexes() ([]VectorIndexDescriptor, error) {
	var out []VectorIndexDescriptor
	err := s.read(func(sess *session) (err error) {
		out, err = sess.listVectorIndexes()
		return
	})
	return out, err
}

func (s *Store) DeleteVectorIndex(name string) error {
	return s.write(func(sess *session) error { return sess.deleteVectorIndex(name) })
}

func (s *Store) UpsertVectorEntry(indexName string, nodeID int64, vec []float32) error {
	return s.write(func(sess *session) error { return sess.upsertVectorEntry(indexName, nodeID, vec) })
}

func (s *Store) DeleteVectorEntry(indexName string, nodeID int64) error {
	return s.write(func(sess *session) error { return sess.deleteVectorEntry(indexName, nodeID) })
}

func (s *Store) VectorEntries(indexName string) ([]VectorEntry, error) {
	var out []VectorEntry
	err := s.read(func(sess *session) (err error) {
		out, err = sess.vectorEntries(indexName)
		return
	})
	return out, err
}

func (s *Store) VectorEntry(indexName string, nodeID int64) (*VectorEntry, error) {
	var e *VectorEntry
	err := s.read(func(sess *session) (err error) {
		e, err = sess.vectorEntry(indexName, nodeID)
		return
	})
	return e, err
}

// Full-text surface.

func (s *Store) UpsertDocument(nodeID int64, content string) error {
	return s.write(func(sess *session) error { return sess.upsertDocument(nodeID, content) })
}

func (s *Store) RemoveDocument(nodeID int64) error {
	return s.write(func(sess *session) error { return sess.removeDocument(nodeID) })
}

func (s *Store) TextSearch(query string, k int) ([]TextHit, error) {
	var out []TextHit
	err := s.read(func(sess *session) (err error) {
		out, err = sess.textSearch(query, k)
		return
	})
	return out, err
}

// Path surface.

func (s *Store) ShortestPath(src, dst int64, maxDepth int) (*Path, error) {
	var p *Path
	err := s.read(func(sess *session) (err error) {
		p, err = sess.shortestPath(src, dst, maxDepth)
		return
	})
	return p, err
}

func (s *Store) FindPaths(src, dst int64, maxDepth int) ([]*Path, error) {
	var out []*Path
	err := s.read(func(sess *session) (err error) {
		out, err = sess.findPaths(src, dst, maxDepth)
		return
	})
	return out, err
}

// Tx implementation of the same surface.

func (t *Tx) guard() error {
	if t.done {
		return ErrTxDone
	}
	return nil
}

func (t *Tx) CreateNode(labels []string, properties map[string]any) (*Node, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.createNode(labels, properties)
}

func (t *Tx) GetNode(id int64) (*Node, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.getNode(id)
}

func (t *Tx) UpdateNodeProperties(id int64, patch map[string]any, mode UpdateMode) (*Node, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.updateNodeProperties(id, patch, mode)
}

func (t *Tx) AddLabels(id int64, labels []string) (*Node, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.addLabels(id, labels)
}

func (t *Tx) RemoveLabels(id int64, labels []string) (*Node, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.removeLabels(id, labels)
}

func (t *Tx) DeleteNode(id int64, detach bool) error {
	if err := t.guard(); err != nil {
		return err
	}
	return t.sess.deleteNode(id, detach)
}

func (t *Tx) CreateRelationship(sourceID, targetID int64, relType string, properties map[string]any) (*Relationship, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.createRelationship(sourceID, targetID, relType, properties)
}

func (t *Tx) GetRelationship(id int64) (*Relationship, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.getRelationship(id)
}

func (t *Tx) UpdateRelationshipProperties(id int64, patch map[string]any, mode UpdateMode) (*Relationship, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.updateRelationshipProperties(id, patch, mode)
}

func (t *Tx) DeleteRelationship(id int64) error {
	if err := t.guard(); err != nil {
		return err
	}
	return t.sess.deleteRelationship(id)
}

func (t *Tx) MatchNodes(labels []string, properties map[string]any) ([]*Node, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.matchNodes(labels, properties)
}

func (t *Tx) MatchRelationships(relType string, properties map[string]any) ([]*Relationship, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.matchRelationships(relType, properties)
}

func (t *Tx) Neighbors(nodeID int64, dir Direction, relType string) ([]Neighbor, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.neighbors(nodeID, dir, relType)
}

func (t *Tx) NodeCount() (int64, error) {
	if err := t.guard(); err != nil {
		return 0, err
	}
	return t.sess.nodeCount()
}

func (t *Tx) RelationshipCount() (int64, error) {
	if err := t.guard(); err != nil {
		return 0, err
	}
	return t.sess.relationshipCount()
}

func (t *Tx) AllLabels() ([]string, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.allNames("labels")
}

func (t *Tx) AllRelationshipTypes() ([]string, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.allNames("rel_types")
}

func (t *Tx) CreatePropertyIndex(name, label, property string) (*IndexDescriptor, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.createPropertyIndex(name, label, property)
}

func (t *Tx) CreateConstraint(kind ConstraintKind, label, property, valueKind string) (*ConstraintDescriptor, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.createConstraint(kind, label, property, valueKind)
}

func (t *Tx) UpsertVectorEntry(indexName string, nodeID int64, vec []float32) error {
	if err := t.guard(); err != nil {
		return err
	}
	return t.sess.upsertVectorEntry(indexName, nodeID, vec)
}

func (t *Tx) UpsertDocument(nodeID int64, content string) error {
	if err := t.guard(); err != nil {
		return err
	}
	return t.sess.upsertDocument(nodeID, content)
}

func (t *Tx) ShortestPath(src, dst int64, maxDepth int) (*Path, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.shortestPath(src, dst, maxDepth)
}

func (t *Tx) FindPaths(src, dst int64, maxDepth int) ([]*Path, error) {
	if err := t.guard(); err != nil {
		return nil, err
	}
	return t.sess.findPaths(src, dst, maxDepth)
}

var (
	_ Engine = (*Store)(nil)
	_ Engine = (*Tx)(nil)
)
