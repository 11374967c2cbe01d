package cypher

import (
	"sort"

	"github.com/orneryd/grafito/pkg/storage"
	"github.com/orneryd/grafito/pkg/value"
)

// matchPattern extends base with every combination of bindings that
// satisfies all pattern parts. Parts share bindings, so a variable bound by
// an earlier part constrains later ones.
func matchPattern(ec *execCtx, base row, parts []*PatternPart) ([]row, error) {
	rows := []row{base}
	for _, part := range parts {
		var next []row
		for _, r := range rows {
			got, err := matchPart(ec, r, part)
			if err != nil {
				return nil, err
			}
			next = append(next, got...)
		}
		rows = next
	}
	return rows, nil
}

type expansion struct {
	far  *storage.Node
	rels []*storage.Relationship
	mids []*storage.Node
}

type partState struct {
	ec     *execCtx
	part   *PatternPart
	anchor int
	b      row
	used   map[int64]bool
	// per-index traversal results in path order
	nodes []*storage.Node
	rels  [][]*storage.Relationship
	mids  [][]*storage.Node
	out   []row
}

// matchPart matches a single chain pattern. The element with the most
// selective candidate set anchors the walk; the chain is then extended
// rightward to the end and leftward to the start, with relationship
// uniqueness enforced across the whole part.
func matchPart(ec *execCtx, base row, part *PatternPart) ([]row, error) {
	anchor := pickAnchor(base, part)
	candidates, err := anchorCandidates(ec, base, part.Nodes[anchor])
	if err != nil {
		return nil, err
	}
	ps := &partState{
		ec:     ec,
		part:   part,
		anchor: anchor,
		used:   map[int64]bool{},
		nodes:  make([]*storage.Node, len(part.Nodes)),
		rels:   make([][]*storage.Relationship, len(part.Rels)),
		mids:   make([][]*storage.Node, len(part.Rels)),
	}
	for _, start := range candidates {
		ps.b = base.clone()
		if v := part.Nodes[anchor].Variable; v != "" {
			ps.b[v] = start
		}
		ps.nodes[anchor] = start
		if err := ps.walkRight(anchor, start); err != nil {
			return nil, err
		}
	}
	return ps.out, nil
}

func pickAnchor(base row, part *PatternPart) int {
	best, bestScore := 0, -1
	for i, np := range part.Nodes {
		score := len(np.Props)*10 + len(np.Labels)
		if np.Variable != "" {
			if _, bound := base[np.Variable]; bound {
				score += 1000
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// anchorCandidates enumerates the nodes the anchor element may bind to,
// ordered by id.
func anchorCandidates(ec *execCtx, b row, np *NodePattern) ([]*storage.Node, error) {
	if np.Variable != "" {
		if v, bound := b[np.Variable]; bound {
			n, ok := v.(*storage.Node)
			if !ok {
				if v == nil {
					return nil, nil
				}
				return nil, &EvalError{Op: "match", Detail: "variable " + np.Variable + " is not a node"}
			}
			ok, err := nodeMatches(ec, b, n, np)
			if err != nil || !ok {
				return nil, err
			}
			return []*storage.Node{n}, nil
		}
	}
	props, err := evalPropMap(ec, b, np.Props)
	if err != nil {
		return nil, err
	}
	nodes, err := ec.eng.MatchNodes(np.Labels, props)
	if err != nil {
		return nil, err
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

func evalPropMap(ec *execCtx, b row, props map[string]Expr) (map[string]any, error) {
	if len(props) == 0 {
		return nil, nil
	}
	ev := &evaluator{ec: ec, row: b}
	out := make(map[string]any, len(props))
	for k, e := range props {
		v, err := ev.eval(e)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func nodeMatches(ec *execCtx, b row, n *storage.Node, np *NodePattern) (bool, error) {
	for _, l := range np.Labels {
		if !n.HasLabel(l) {
			return false, nil
		}
	}
	props, err := evalPropMap(ec, b, np.Props)
	if err != nil {
		return false, err
	}
	for k, want := range props {
		have, present := n.Properties[k]
		if !present || !value.Equal(have, want) {
			return false, nil
		}
	}
	return true, nil
}

func (ps *partState) walkRight(i int, cur *storage.Node) error {
	if i == len(ps.part.Nodes)-1 {
		return ps.walkLeft(ps.anchor, ps.nodes[ps.anchor])
	}
	return ps.step(cur, ps.part.Rels[i], ps.part.Nodes[i+1], i, i+1, false, func() error {
		return ps.walkRight(i+1, ps.nodes[i+1])
	})
}

func (ps *partState) walkLeft(i int, cur *storage.Node) error {
	if i == 0 {
		ps.emit()
		return nil
	}
	return ps.step(cur, ps.part.Rels[i-1], ps.part.Nodes[i-1], i-1, i-1, true, func() error {
		return ps.walkLeft(i-1, ps.nodes[i-1])
	})
}

// step expands one relationship pattern from cur, binds the far node and
// relationship variables, records the traversal for path assembly and
// recurses via cont. Bindings are undone on backtrack.
func (ps *partState) step(cur *storage.Node, rp *RelPattern, far *NodePattern, relIdx, nodeIdx int, leftward bool, cont func() error) error {
	exps, err := ps.expand(cur, rp, leftward)
	if err != nil {
		return err
	}
	for _, ex := range exps {
		ok, err := nodeMatches(ps.ec, ps.b, ex.far, far)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		// path order is left to right; a leftward traversal is reversed
		pathRels := ex.rels
		pathMids := ex.mids
		if leftward {
			pathRels = reverseRels(ex.rels)
			pathMids = reverseNodes(ex.mids)
		}
		undo, ok, err := ps.bindStep(rp, far, ex.far, pathRels)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		for _, r := range ex.rels {
			ps.used[r.ID] = true
		}
		ps.nodes[nodeIdx] = ex.far
		ps.rels[relIdx] = pathRels
		ps.mids[relIdx] = pathMids

		if err := cont(); err != nil {
			return err
		}

		ps.nodes[nodeIdx] = nil
		ps.rels[relIdx] = nil
		ps.mids[relIdx] = nil
		for _, r := range ex.rels {
			delete(ps.used, r.ID)
		}
		undo()
	}
	return nil
}

// bindStep installs the far-node and relationship variable bindings,
// verifying consistency against bindings made earlier in the query.
func (ps *partState) bindStep(rp *RelPattern, far *NodePattern, farNode *storage.Node, pathRels []*storage.Relationship) (func(), bool, error) {
	type saved struct {
		name    string
		val     any
		present bool
	}
	var stack []saved
	undo := func() {
		for i := len(stack) - 1; i >= 0; i-- {
			s := stack[i]
			if s.present {
				ps.b[s.name] = s.val
			} else {
				delete(ps.b, s.name)
			}
		}
	}
	bind := func(name string, v any) bool {
		if prev, bound := ps.b[name]; bound {
			return bindingConsistent(prev, v)
		}
		stack = append(stack, saved{name: name})
		ps.b[name] = v
		return true
	}

	if far.Variable != "" {
		if !bind(far.Variable, farNode) {
			undo()
			return nil, false, nil
		}
	}
	if rp.Variable != "" {
		var v any
		if rp.VarLength {
			list := make([]any, len(pathRels))
			for i, r := range pathRels {
				list[i] = r
			}
			v = list
		} else if len(pathRels) == 1 {
			v = pathRels[0]
		}
		if !bind(rp.Variable, v) {
			undo()
			return nil, false, nil
		}
	}
	return undo, true, nil
}

func bindingConsistent(prev, v any) bool {
	switch p := prev.(type) {
	case *storage.Node:
		n, ok := v.(*storage.Node)
		return ok && n.ID == p.ID
	case *storage.Relationship:
		r, ok := v.(*storage.Relationship)
		return ok && r.ID == p.ID
	case []any:
		l, ok := v.([]any)
		if !ok || len(l) != len(p) {
			return false
		}
		for i := range l {
			if !bindingConsistent(p[i], l[i]) {
				return false
			}
		}
		return true
	default:
		return value.Equal(prev, v)
	}
}

// expand enumerates single-hop or variable-length traversals from cur that
// satisfy rp, in deterministic (hops, relationship id sequence) order.
func (ps *partState) expand(cur *storage.Node, rp *RelPattern, invert bool) ([]expansion, error) {
	if err := ps.ec.checkCancel(); err != nil {
		return nil, err
	}
	dir := rp.Direction
	if invert {
		switch dir {
		case DirectionOut:
			dir = DirectionIn
		case DirectionIn:
			dir = DirectionOut
		}
	}
	relProps, err := evalPropMap(ps.ec, ps.b, rp.Props)
	if err != nil {
		return nil, err
	}

	if !rp.VarLength {
		nbs, err := ps.neighbors(cur.ID, dir, rp.Types, relProps)
		if err != nil {
			return nil, err
		}
		var out []expansion
		for _, nb := range nbs {
			if ps.used[nb.Rel.ID] {
				continue
			}
			out = append(out, expansion{far: nb.Node, rels: []*storage.Relationship{nb.Rel}})
		}
		return out, nil
	}

	min := 1
	if rp.MinHops != nil {
		min = *rp.MinHops
	}
	max := ps.ec.maxHops
	if rp.MaxHops != nil {
		max = *rp.MaxHops
	}

	type state struct {
		node *storage.Node
		rels []*storage.Relationship
		mids []*storage.Node
		seen map[int64]bool
	}
	var out []expansion
	frontier := []state{{node: cur}}
	if min == 0 {
		out = append(out, expansion{far: cur})
	}
	for hops := 1; hops <= max && len(frontier) > 0; hops++ {
		var next []state
		for _, st := range frontier {
			if err := ps.ec.checkCancel(); err != nil {
				return nil, err
			}
			nbs, err := ps.neighbors(st.node.ID, dir, rp.Types, relProps)
			if err != nil {
				return nil, err
			}
			for _, nb := range nbs {
				if ps.used[nb.Rel.ID] || st.seen[nb.Rel.ID] {
					continue
				}
				ns := state{
					node: nb.Node,
					rels: append(append([]*storage.Relationship(nil), st.rels...), nb.Rel),
					seen: map[int64]bool{nb.Rel.ID: true},
				}
				for id := range st.seen {
					ns.seen[id] = true
				}
				ns.mids = append(ns.mids, st.mids...)
				if len(st.rels) > 0 {
					ns.mids = append(ns.mids, st.node)
				}
				if hops >= min {
					out = append(out, expansion{far: ns.node, rels: ns.rels, mids: ns.mids})
				}
				next = append(next, ns)
			}
		}
		frontier = next
	}
	return out, nil
}

// neighbors merges per-type adjacency lists into one id-ordered slice with
// relationship property filtering applied.
func (ps *partState) neighbors(nodeID int64, dir Direction, types []string, relProps map[string]any) ([]storage.Neighbor, error) {
	sdir := storage.DirBoth
	switch dir {
	case DirectionOut:
		sdir = storage.DirOut
	case DirectionIn:
		sdir = storage.DirIn
	}
	if len(types) == 0 {
		types = []string{""}
	}
	var all []storage.Neighbor
	seen := map[int64]bool{}
	for _, t := range types {
		nbs, err := ps.ec.eng.Neighbors(nodeID, sdir, t)
		if err != nil {
			return nil, err
		}
		for _, nb := range nbs {
			if seen[nb.Rel.ID] {
				continue
			}
			seen[nb.Rel.ID] = true
			if !propsSubset(nb.Rel.Properties, relProps) {
				continue
			}
			all = append(all, nb)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Rel.ID < all[j].Rel.ID })
	return all, nil
}

func propsSubset(have, want map[string]any) bool {
	for k, w := range want {
		h, present := have[k]
		if !present || !value.Equal(h, w) {
			return false
		}
	}
	return true
}

// emit records one complete match, assembling the named path if the part
// binds one.
func (ps *partState) emit() {
	r := ps.b.clone()
	if ps.part.Variable != "" {
		p := &storage.Path{Nodes: []*storage.Node{ps.nodes[0]}}
		for i := range ps.part.Rels {
			p.Rels = append(p.Rels, ps.rels[i]...)
			p.Nodes = append(p.Nodes, ps.mids[i]...)
			p.Nodes = append(p.Nodes, ps.nodes[i+1])
		}
		r[ps.part.Variable] = p
	}
	ps.out = append(ps.out, r)
}

func reverseRels(in []*storage.Relationship) []*storage.Relationship {
	out := make([]*storage.Relationship, len(in))
	for i, r := range in {
		out[len(in)-1-i] = r
	}
	return out
}

func reverseNodes(in []*storage.Node) []*storage.Node {
	out := make([]*storage.Node, len(in))
	for i, n := range in {
		out[len(in)-1-i] = n
	}
	return out
}
