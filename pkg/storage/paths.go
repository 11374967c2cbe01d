package storage

import (
	"fmt"
)

// Path is an alternating node/relationship sequence. Nodes has one more
// element than Rels; a single node is a zero-length path.
type Path struct {
	Nodes []*Node
	Rels  []*Relationship
}

// PathNodeIDs implements value.PathRef.
func (p *Path) PathNodeIDs() []int64 {
	ids := make([]int64, len(p.Nodes))
	for i, n := range p.Nodes {
		ids[i] = n.ID
	}
	return ids
}

// Len returns the number of relationships in the path.
func (p *Path) Len() int { return len(p.Rels) }

// shortestPath finds one minimum-hop path from src to dst following
// relationships in either direction, exploring breadth-first. Each node's
// outgoing relationships are expanded before its incoming ones, each group in
// relationship id order, and the first path to reach dst in that order wins.
// Returns ErrNotFound when dst is unreachable within maxDepth hops.
func (sess *session) shortestPath(src, dst int64, maxDepth int) (*Path, error) {
	start, err := sess.getNode(src)
	if err != nil {
		return nil, err
	}
	if _, err := sess.getNode(dst); err != nil {
		return nil, err
	}
	if src == dst {
		return &Path{Nodes: []*Node{start}}, nil
	}
	if maxDepth <= 0 {
		maxDepth = 15
	}

	type hop struct {
		prev *hop
		rel  *Relationship
		node *Node
	}
	assemble := func(end *hop) *Path {
		var nodes []*Node
		var rels []*Relationship
		for h := end; h != nil; h = h.prev {
			nodes = append([]*Node{h.node}, nodes...)
			if h.rel != nil {
				rels = append([]*Relationship{h.rel}, rels...)
			}
		}
		return &Path{Nodes: nodes, Rels: rels}
	}
	visited := map[int64]bool{src: true}
	frontier := []*hop{{node: start}}
	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []*hop
		for _, h := range frontier {
			neighbors, err := sess.neighbors(h.node.ID, DirBoth, "")
			if err != nil {
				return nil, err
			}
			for _, nb := range neighbors {
				if visited[nb.Node.ID] {
					continue
				}
				visited[nb.Node.ID] = true
				step := &hop{prev: h, rel: nb.Rel, node: nb.Node}
				if nb.Node.ID == dst {
					return assemble(step), nil
				}
				next = append(next, step)
			}
		}
		frontier = next
	}
	return nil, fmt.Errorf("path %d -> %d: %w", src, dst, ErrNotFound)
}

// findPaths enumerates every simple path (no repeated node) from src to dst
// of at most maxDepth hops using depth-first search. At each branching point
// outgoing relationships are followed before incoming ones, each group in
// relationship id order.
func (sess *session) findPaths(src, dst int64, maxDepth int) ([]*Path, error) {
	start, err := sess.getNode(src)
	if err != nil {
		return nil, err
	}
	if _, err := sess.getNode(dst); err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		maxDepth = 10
	}

	var out []*Path
	onPath := map[int64]bool{src: true}
	var walk func(cur *Node, nodes []*Node, rels []*Relationship) error
	walk = func(cur *Node, nodes []*Node, rels []*Relationship) error {
		if cur.ID == dst && len(rels) > 0 {
			out = append(out, &Path{Nodes: append([]*Node(nil), nodes...), Rels: append([]*Relationship(nil), rels...)})
			return nil
		}
		if len(rels) >= maxDepth {
			return nil
		}
		neighbors, err := sess.neighbors(cur.ID, DirBoth, "")
		if err != nil {
			return err
		}
		for _, nb := range neighbors {
			if onPath[nb.Node.ID] {
				continue
			}
			onPath[nb.Node.ID] = true
			if err := walk(nb.Node, append(nodes, nb.Node), append(rels, nb.Rel)); err != nil {
				return err
			}
			delete(onPath, nb.Node.ID)
		}
		return nil
	}
	if src == dst {
		out = append(out, &Path{Nodes: []*Node{start}})
		return out, nil
	}
	if err := walk(start, []*Node{start}, nil); err != nil {
		return nil, err
	}
	return out, nil
}
