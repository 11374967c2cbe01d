package cypher

import (
	"errors"
	"fmt"

	"github.com/orneryd/grafito/pkg/storage"
	"github.com/orneryd/grafito/pkg/value"
)

// opCreate creates the nodes and relationships of a CREATE pattern for each
// input row. A bare variable reuses its bound node; anything else is
// created fresh.
type opCreate struct {
	input operator
	parts []*PatternPart
	ec    *execCtx
}

func (o *opCreate) open(ec *execCtx) error { o.ec = ec; return o.input.open(ec) }

func (o *opCreate) next() (row, bool, error) {
	in, ok, err := o.input.next()
	if err != nil || !ok {
		return nil, false, err
	}
	r := in.clone()
	for _, part := range o.parts {
		if err := createPart(o.ec, r, part, nil); err != nil {
			return nil, false, err
		}
	}
	return r, true, nil
}

func (o *opCreate) close() { o.input.close() }

// createPart materializes one pattern part, binding every fresh variable
// into r. onCreate, when non-nil, is applied to entities created here
// (MERGE's ON CREATE SET).
func createPart(ec *execCtx, r row, part *PatternPart, onCreate []*SetItem) error {
	nodes := make([]*storage.Node, len(part.Nodes))
	var created []string
	for i, np := range part.Nodes {
		if np.Variable != "" {
			if v, bound := r[np.Variable]; bound {
				n, ok := v.(*storage.Node)
				if !ok {
					return &EvalError{Op: "CREATE", Detail: "variable " + np.Variable + " is not a node"}
				}
				if len(np.Labels) > 0 || len(np.Props) > 0 {
					return &EvalError{Op: "CREATE", Detail: "variable " + np.Variable + " is already bound"}
				}
				nodes[i] = n
				continue
			}
		}
		props, err := evalPropMap(ec, r, np.Props)
		if err != nil {
			return err
		}
		n, err := ec.eng.CreateNode(np.Labels, props)
		if err != nil {
			return err
		}
		nodes[i] = n
		if np.Variable != "" {
			r[np.Variable] = n
			created = append(created, np.Variable)
		}
	}

	rels := make([]*storage.Relationship, len(part.Rels))
	for i, rp := range part.Rels {
		if rp.VarLength {
			return &EvalError{Op: "CREATE", Detail: "cannot create a variable-length relationship"}
		}
		if len(rp.Types) != 1 {
			return &EvalError{Op: "CREATE", Detail: "a created relationship needs exactly one type"}
		}
		src, dst := nodes[i], nodes[i+1]
		switch rp.Direction {
		case DirectionOut:
		case DirectionIn:
			src, dst = dst, src
		default:
			return &EvalError{Op: "CREATE", Detail: "a created relationship needs a direction"}
		}
		props, err := evalPropMap(ec, r, rp.Props)
		if err != nil {
			return err
		}
		rel, err := ec.eng.CreateRelationship(src.ID, dst.ID, rp.Types[0], props)
		if err != nil {
			return err
		}
		rels[i] = rel
		if rp.Variable != "" {
			r[rp.Variable] = rel
			created = append(created, rp.Variable)
		}
	}

	if part.Variable != "" {
		p := &storage.Path{Nodes: nodes, Rels: rels}
		r[part.Variable] = p
	}
	if onCreate != nil {
		if err := applySetItems(ec, r, onCreate); err != nil {
			return err
		}
	}
	return nil
}

// opMerge implements match-or-create: when the pattern matches under the
// current bindings every match row is emitted with ON MATCH applied;
// otherwise the unbound elements are created and ON CREATE applied.
type opMerge struct {
	input    operator
	part     *PatternPart
	onCreate []*SetItem
	onMatch  []*SetItem

	ec  *execCtx
	buf []row
}

func (o *opMerge) open(ec *execCtx) error {
	o.ec = ec
	o.buf = nil
	return o.input.open(ec)
}

func (o *opMerge) next() (row, bool, error) {
	for {
		if len(o.buf) > 0 {
			r := o.buf[0]
			o.buf = o.buf[1:]
			return r, true, nil
		}
		in, ok, err := o.input.next()
		if err != nil || !ok {
			return nil, false, err
		}
		matched, err := matchPart(o.ec, in, o.part)
		if err != nil {
			return nil, false, err
		}
		if len(matched) > 0 {
			if o.onMatch != nil {
				for _, r := range matched {
					if err := applySetItems(o.ec, r, o.onMatch); err != nil {
						return nil, false, err
					}
				}
			}
			o.buf = matched
			continue
		}
		r := in.clone()
		if err := createPart(o.ec, r, o.part, o.onCreate); err != nil {
			return nil, false, err
		}
		o.buf = []row{r}
	}
}

func (o *opMerge) close() { o.input.close() }

// opSet applies SET items to each row.
type opSet struct {
	input operator
	items []*SetItem
	ec    *execCtx
}

func (o *opSet) open(ec *execCtx) error { o.ec = ec; return o.input.open(ec) }

func (o *opSet) next() (row, bool, error) {
	in, ok, err := o.input.next()
	if err != nil || !ok {
		return nil, false, err
	}
	r := in.clone()
	if err := applySetItems(o.ec, r, o.items); err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func (o *opSet) close() { o.input.close() }

func applySetItems(ec *execCtx, r row, items []*SetItem) error {
	for _, it := range items {
		if err := applySetItem(ec, r, it); err != nil {
			return err
		}
	}
	return nil
}

func applySetItem(ec *execCtx, r row, it *SetItem) error {
	target, bound := r[it.Variable]
	if !bound {
		return fmt.Errorf("%w: %s", ErrUnknownVariable, it.Variable)
	}
	if target == nil {
		// SET on a null binding (from OPTIONAL MATCH) is a no-op
		return nil
	}
	ev := &evaluator{ec: ec, row: r}

	switch it.Kind {
	case SetProperty:
		v, err := ev.eval(it.Value)
		if err != nil {
			return err
		}
		patch := map[string]any{it.Property: v}
		return updateEntity(ec, r, it.Variable, target, patch, storage.UpdateMerge)

	case SetVariable, SetVariableMerge:
		v, err := ev.eval(it.Value)
		if err != nil {
			return err
		}
		props, err := asPropertyMap(v)
		if err != nil {
			return err
		}
		mode := storage.UpdateReplace
		if it.Kind == SetVariableMerge {
			mode = storage.UpdateMerge
		}
		return updateEntity(ec, r, it.Variable, target, props, mode)

	case SetLabels:
		n, ok := target.(*storage.Node)
		if !ok {
			return &EvalError{Op: "SET", Detail: "labels can only be set on a node"}
		}
		updated, err := ec.eng.AddLabels(n.ID, it.Labels)
		if err != nil {
			return err
		}
		r[it.Variable] = updated
		return nil
	}
	return &EvalError{Op: "SET", Detail: "unknown set item"}
}

func asPropertyMap(v any) (map[string]any, error) {
	switch x := v.(type) {
	case map[string]any:
		return x, nil
	case *storage.Node:
		out := make(map[string]any, len(x.Properties))
		for k, p := range x.Properties {
			out[k] = p
		}
		return out, nil
	case *storage.Relationship:
		out := make(map[string]any, len(x.Properties))
		for k, p := range x.Properties {
			out[k] = p
		}
		return out, nil
	}
	return nil, &EvalError{Op: "SET", Detail: fmt.Sprintf("expected a map, got %s", value.KindOf(v))}
}

func updateEntity(ec *execCtx, r row, name string, target any, patch map[string]any, mode storage.UpdateMode) error {
	switch e := target.(type) {
	case *storage.Node:
		updated, err := ec.eng.UpdateNodeProperties(e.ID, patch, mode)
		if err != nil {
			return err
		}
		r[name] = updated
	case *storage.Relationship:
		updated, err := ec.eng.UpdateRelationshipProperties(e.ID, patch, mode)
		if err != nil {
			return err
		}
		r[name] = updated
	default:
		return &EvalError{Op: "SET", Detail: "target is not a node or relationship"}
	}
	return nil
}

// opRemoveItems applies REMOVE items: property removal and label removal.
type opRemoveItems struct {
	input operator
	items []*RemoveItem
	ec    *execCtx
}

func (o *opRemoveItems) open(ec *execCtx) error { o.ec = ec; return o.input.open(ec) }

func (o *opRemoveItems) next() (row, bool, error) {
	in, ok, err := o.input.next()
	if err != nil || !ok {
		return nil, false, err
	}
	r := in.clone()
	for _, it := range o.items {
		target, bound := r[it.Variable]
		if !bound {
			return nil, false, fmt.Errorf("%w: %s", ErrUnknownVariable, it.Variable)
		}
		if target == nil {
			continue
		}
		if it.Property != "" {
			if err := updateEntity(o.ec, r, it.Variable, target, map[string]any{it.Property: nil}, storage.UpdateMerge); err != nil {
				return nil, false, err
			}
			continue
		}
		n, ok := target.(*storage.Node)
		if !ok {
			return nil, false, &EvalError{Op: "REMOVE", Detail: "labels can only be removed from a node"}
		}
		updated, err := o.ec.eng.RemoveLabels(n.ID, it.Labels)
		if err != nil {
			return nil, false, err
		}
		r[it.Variable] = updated
	}
	return r, true, nil
}

func (o *opRemoveItems) close() { o.input.close() }

// opDelete deletes nodes, relationships and paths. Entities already gone
// are skipped, so deleting the same node via two rows is not an error.
type opDelete struct {
	input  operator
	exprs  []Expr
	detach bool
	ec     *execCtx
}

func (o *opDelete) open(ec *execCtx) error { o.ec = ec; return o.input.open(ec) }

func (o *opDelete) next() (row, bool, error) {
	in, ok, err := o.input.next()
	if err != nil || !ok {
		return nil, false, err
	}
	ev := &evaluator{ec: o.ec, row: in}
	for _, e := range o.exprs {
		v, err := ev.eval(e)
		if err != nil {
			return nil, false, err
		}
		if err := o.deleteValue(v); err != nil {
			return nil, false, err
		}
	}
	return in, true, nil
}

func (o *opDelete) deleteValue(v any) error {
	switch x := v.(type) {
	case nil:
		return nil
	case *storage.Node:
		return ignoreNotFound(o.ec.eng.DeleteNode(x.ID, o.detach))
	case *storage.Relationship:
		return ignoreNotFound(o.ec.eng.DeleteRelationship(x.ID))
	case *storage.Path:
		for _, rel := range x.Rels {
			if err := ignoreNotFound(o.ec.eng.DeleteRelationship(rel.ID)); err != nil {
				return err
			}
		}
		for _, n := range x.Nodes {
			if err := ignoreNotFound(o.ec.eng.DeleteNode(n.ID, o.detach)); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for _, e := range x {
			if err := o.deleteValue(e); err != nil {
				return err
			}
		}
		return nil
	}
	return &EvalError{Op: "DELETE", Detail: fmt.Sprintf("cannot delete %s", value.KindOf(v))}
}

func ignoreNotFound(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

func (o *opDelete) close() { o.input.close() }

// opForeach runs its update clauses once per list element. The body shares
// the outer bindings plus the loop variable; the outer row passes through
// unchanged.
type opForeach struct {
	input   operator
	varName string
	list    Expr
	body    []Clause
	maxHops int
	ec      *execCtx
}

func (o *opForeach) open(ec *execCtx) error { o.ec = ec; return o.input.open(ec) }

func (o *opForeach) close() { o.input.close() }

func (o *opForeach) next() (row, bool, error) {
	in, ok, err := o.input.next()
	if err != nil || !ok {
		return nil, false, err
	}
	ev := &evaluator{ec: o.ec, row: in}
	v, err := ev.eval(o.list)
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		return in, true, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false, &EvalError{Op: "FOREACH", Detail: fmt.Sprintf("expected a list, got %s", value.KindOf(v))}
	}
	for _, item := range list {
		seed := in.clone()
		seed[o.varName] = item
		if err := o.runBody(seed); err != nil {
			return nil, false, err
		}
	}
	return in, true, nil
}

func (o *opForeach) runBody(seed row) error {
	pl := &planner{maxHops: o.maxHops, scope: map[string]bool{}}
	for name := range seed {
		pl.scope[name] = true
	}
	root, _, err := pl.plan(&Statement{Clauses: o.body})
	if err != nil {
		return err
	}
	sub := &subPlan{seed: seed, inner: root}
	if err := sub.open(o.ec); err != nil {
		sub.close()
		return err
	}
	defer sub.close()
	for {
		_, ok, err := sub.next()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// subPlan replaces the single-row source at the bottom of a nested plan
// with a specific seed row.
type subPlan struct {
	seed  row
	inner operator
}

func (s *subPlan) open(ec *execCtx) error {
	replaceSource(s.inner, s.seed)
	return s.inner.open(ec)
}

func (s *subPlan) next() (row, bool, error) { return s.inner.next() }
func (s *subPlan) close()                   { s.inner.close() }

// replaceSource walks down the operator chain and swaps the opSingleRow
// leaf for one seeded with r.
func replaceSource(op operator, r row) {
	for {
		switch x := op.(type) {
		case *opMatch:
			if src, ok := x.input.(*opSingleRow); ok {
				x.input = &opSeededRow{r: r}
				_ = src
				return
			}
			op = x.input
		case *opCreate:
			if _, ok := x.input.(*opSingleRow); ok {
				x.input = &opSeededRow{r: r}
				return
			}
			op = x.input
		case *opMerge:
			if _, ok := x.input.(*opSingleRow); ok {
				x.input = &opSeededRow{r: r}
				return
			}
			op = x.input
		case *opSet:
			if _, ok := x.input.(*opSingleRow); ok {
				x.input = &opSeededRow{r: r}
				return
			}
			op = x.input
		case *opRemoveItems:
			if _, ok := x.input.(*opSingleRow); ok {
				x.input = &opSeededRow{r: r}
				return
			}
			op = x.input
		case *opDelete:
			if _, ok := x.input.(*opSingleRow); ok {
				x.input = &opSeededRow{r: r}
				return
			}
			op = x.input
		case *opForeach:
			if _, ok := x.input.(*opSingleRow); ok {
				x.input = &opSeededRow{r: r}
				return
			}
			op = x.input
		default:
			return
		}
	}
}

// opSeededRow emits one predefined row.
type opSeededRow struct {
	r    row
	done bool
}

func (o *opSeededRow) open(ec *execCtx) error { o.done = false; return nil }
func (o *opSeededRow) next() (row, bool, error) {
	if o.done {
		return nil, false, nil
	}
	o.done = true
	return o.r.clone(), true, nil
}
func (o *opSeededRow) close() {}
