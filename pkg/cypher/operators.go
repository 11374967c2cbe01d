package cypher

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/orneryd/grafito/pkg/storage"
	"github.com/orneryd/grafito/pkg/value"
)

// opSingleRow seeds a plan with one empty row.
type opSingleRow struct {
	done bool
}

func (o *opSingleRow) open(ec *execCtx) error { o.done = false; return nil }
func (o *opSingleRow) next() (row, bool, error) {
	if o.done {
		return nil, false, nil
	}
	o.done = true
	return row{}, true, nil
}
func (o *opSingleRow) close() {}

// opMatch runs MATCH / OPTIONAL MATCH: for each input row it matches the
// pattern, applies the WHERE predicate, and for the optional form emits a
// single null-filled row when nothing matched.
type opMatch struct {
	input    operator
	parts    []*PatternPart
	where    Expr
	optional bool
	// fresh lists the variables this clause introduces, for null-fill
	fresh []string

	ec  *execCtx
	buf []row
}

func (o *opMatch) open(ec *execCtx) error {
	o.ec = ec
	o.buf = nil
	return o.input.open(ec)
}

func (o *opMatch) next() (row, bool, error) {
	for {
		if len(o.buf) > 0 {
			r := o.buf[0]
			o.buf = o.buf[1:]
			return r, true, nil
		}
		if err := o.ec.checkCancel(); err != nil {
			return nil, false, err
		}
		in, ok, err := o.input.next()
		if err != nil || !ok {
			return nil, false, err
		}
		matched, err := matchPattern(o.ec, in, o.parts)
		if err != nil {
			return nil, false, err
		}
		if o.where != nil {
			kept := matched[:0]
			for _, r := range matched {
				ev := &evaluator{ec: o.ec, row: r}
				v, err := ev.eval(o.where)
				if err != nil {
					return nil, false, err
				}
				pass, err := truthy(v)
				if err != nil {
					return nil, false, err
				}
				if pass {
					kept = append(kept, r)
				}
			}
			matched = kept
		}
		if len(matched) == 0 && o.optional {
			r := in.clone()
			for _, name := range o.fresh {
				if _, bound := r[name]; !bound {
					r[name] = nil
				}
			}
			matched = []row{r}
		}
		o.buf = matched
	}
}

func (o *opMatch) close() { o.input.close() }

// opUnwind emits one row per list element.
type opUnwind struct {
	input operator
	expr  Expr
	alias string

	ec   *execCtx
	buf  []any
	base row
}

func (o *opUnwind) open(ec *execCtx) error {
	o.ec = ec
	o.buf = nil
	return o.input.open(ec)
}

func (o *opUnwind) next() (row, bool, error) {
	for {
		if len(o.buf) > 0 {
			v := o.buf[0]
			o.buf = o.buf[1:]
			r := o.base.clone()
			r[o.alias] = v
			return r, true, nil
		}
		in, ok, err := o.input.next()
		if err != nil || !ok {
			return nil, false, err
		}
		ev := &evaluator{ec: o.ec, row: in}
		v, err := ev.eval(o.expr)
		if err != nil {
			return nil, false, err
		}
		switch list := v.(type) {
		case nil:
			// UNWIND of null produces no rows
		case []any:
			o.base = in
			o.buf = append([]any(nil), list...)
		default:
			return nil, false, &EvalError{Op: "UNWIND", Detail: fmt.Sprintf("expected a list, got %s", value.KindOf(v))}
		}
	}
}

func (o *opUnwind) close() { o.input.close() }

// opFilter passes rows whose predicate is true.
type opFilter struct {
	input operator
	pred  Expr
	ec    *execCtx
}

func (o *opFilter) open(ec *execCtx) error { o.ec = ec; return o.input.open(ec) }

func (o *opFilter) next() (row, bool, error) {
	for {
		in, ok, err := o.input.next()
		if err != nil || !ok {
			return nil, false, err
		}
		ev := &evaluator{ec: o.ec, row: in}
		v, err := ev.eval(o.pred)
		if err != nil {
			return nil, false, err
		}
		pass, err := truthy(v)
		if err != nil {
			return nil, false, err
		}
		if pass {
			return in, true, nil
		}
	}
}

func (o *opFilter) close() { o.input.close() }

// opProject evaluates the projection items and binds them under their
// column names, keeping the incoming bindings available for ORDER BY.
type opProject struct {
	input operator
	items []*ProjectionItem
	cols  []string
	ec    *execCtx
}

func (o *opProject) open(ec *execCtx) error { o.ec = ec; return o.input.open(ec) }

func (o *opProject) next() (row, bool, error) {
	in, ok, err := o.input.next()
	if err != nil || !ok {
		return nil, false, err
	}
	ev := &evaluator{ec: o.ec, row: in}
	out := in.clone()
	for i, it := range o.items {
		v, err := ev.eval(it.Expr)
		if err != nil {
			return nil, false, err
		}
		out[o.cols[i]] = v
	}
	return out, true, nil
}

func (o *opProject) close() { o.input.close() }

// opScope trims rows down to the projected columns, implementing the scope
// reset WITH and RETURN perform.
type opScope struct {
	input operator
	cols  []string
}

func (o *opScope) open(ec *execCtx) error { return o.input.open(ec) }

func (o *opScope) next() (row, bool, error) {
	in, ok, err := o.input.next()
	if err != nil || !ok {
		return nil, false, err
	}
	out := make(row, len(o.cols))
	for _, c := range o.cols {
		out[c] = in[c]
	}
	return out, true, nil
}

func (o *opScope) close() { o.input.close() }

// opDistinct deduplicates rows on the projected columns.
type opDistinct struct {
	input operator
	cols  []string
	seen  map[string]bool
}

func (o *opDistinct) open(ec *execCtx) error {
	o.seen = map[string]bool{}
	return o.input.open(ec)
}

func (o *opDistinct) next() (row, bool, error) {
	for {
		in, ok, err := o.input.next()
		if err != nil || !ok {
			return nil, false, err
		}
		vals := make([]any, len(o.cols))
		for i, c := range o.cols {
			vals[i] = in[c]
		}
		key := keyEncode(vals)
		if o.seen[key] {
			continue
		}
		o.seen[key] = true
		return in, true, nil
	}
}

func (o *opDistinct) close() { o.input.close() }

// opSort materializes its input and emits it in ORDER BY order. The sort is
// stable so SKIP/LIMIT downstream stay deterministic.
type opSort struct {
	input operator
	keys  []*SortItem

	rows []row
	pos  int
}

func (o *opSort) open(ec *execCtx) error {
	if err := o.input.open(ec); err != nil {
		return err
	}
	o.rows = nil
	o.pos = 0
	type keyed struct {
		r    row
		vals []any
	}
	var all []keyed
	for {
		if err := ec.checkCancel(); err != nil {
			return err
		}
		in, ok, err := o.input.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		ev := &evaluator{ec: ec, row: in}
		vals := make([]any, len(o.keys))
		for i, k := range o.keys {
			v, err := ev.eval(k.Expr)
			if err != nil {
				return err
			}
			vals[i] = v
		}
		all = append(all, keyed{r: in, vals: vals})
	}
	sort.SliceStable(all, func(i, j int) bool {
		for k := range o.keys {
			c := value.Compare(all[i].vals[k], all[j].vals[k])
			if o.keys[k].Descending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	for _, kr := range all {
		o.rows = append(o.rows, kr.r)
	}
	return nil
}

func (o *opSort) next() (row, bool, error) {
	if o.pos >= len(o.rows) {
		return nil, false, nil
	}
	r := o.rows[o.pos]
	o.pos++
	return r, true, nil
}

func (o *opSort) close() { o.input.close() }

type opSkip struct {
	input operator
	expr  Expr
	left  int64
}

func (o *opSkip) open(ec *execCtx) error {
	n, err := evalCount(ec, o.expr, "SKIP")
	if err != nil {
		return err
	}
	o.left = n
	return o.input.open(ec)
}

func (o *opSkip) next() (row, bool, error) {
	for {
		in, ok, err := o.input.next()
		if err != nil || !ok {
			return nil, false, err
		}
		if o.left > 0 {
			o.left--
			continue
		}
		return in, true, nil
	}
}

func (o *opSkip) close() { o.input.close() }

type opLimit struct {
	input operator
	expr  Expr
	left  int64
}

func (o *opLimit) open(ec *execCtx) error {
	n, err := evalCount(ec, o.expr, "LIMIT")
	if err != nil {
		return err
	}
	o.left = n
	return o.input.open(ec)
}

func (o *opLimit) next() (row, bool, error) {
	if o.left <= 0 {
		return nil, false, nil
	}
	in, ok, err := o.input.next()
	if err != nil || !ok {
		return nil, false, err
	}
	o.left--
	return in, true, nil
}

func (o *opLimit) close() { o.input.close() }

func evalCount(ec *execCtx, e Expr, op string) (int64, error) {
	ev := &evaluator{ec: ec, row: row{}}
	v, err := ev.eval(e)
	if err != nil {
		return 0, err
	}
	n, ok := value.AsInt(v)
	if !ok || n < 0 {
		return 0, &EvalError{Op: op, Detail: "expected a non-negative integer"}
	}
	return n, nil
}

// opAggregate groups its input by the non-aggregate projection items and
// folds the aggregate call sites. Groups emit in first-seen order.
type opAggregate struct {
	input operator
	items []*ProjectionItem
	cols  []string

	ec     *execCtx
	groups []*aggGroup
	index  map[string]*aggGroup
	calls  []*FunctionCall
	keyIdx []int
	pos    int
}

type aggGroup struct {
	keyVals []any
	rep     row
	accs    []*accumulator
}

func (o *opAggregate) open(ec *execCtx) error {
	if err := o.input.open(ec); err != nil {
		return err
	}
	o.ec = ec
	o.groups = nil
	o.index = map[string]*aggGroup{}
	o.pos = 0
	o.calls = nil
	o.keyIdx = nil
	seenCall := map[*FunctionCall]bool{}
	for i, it := range o.items {
		calls := collectAggregates(it.Expr)
		if len(calls) == 0 {
			o.keyIdx = append(o.keyIdx, i)
		}
		for _, c := range calls {
			if !seenCall[c] {
				seenCall[c] = true
				o.calls = append(o.calls, c)
			}
		}
	}

	for {
		if err := ec.checkCancel(); err != nil {
			return err
		}
		in, ok, err := o.input.next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		ev := &evaluator{ec: ec, row: in}
		keyVals := make([]any, len(o.keyIdx))
		for i, idx := range o.keyIdx {
			v, err := ev.eval(o.items[idx].Expr)
			if err != nil {
				return err
			}
			keyVals[i] = v
		}
		key := keyEncode(keyVals)
		g := o.index[key]
		if g == nil {
			g = &aggGroup{keyVals: keyVals, rep: in, accs: make([]*accumulator, len(o.calls))}
			for i, c := range o.calls {
				g.accs[i] = newAccumulator(strings.ToLower(c.Name), c.Distinct)
			}
			o.index[key] = g
			o.groups = append(o.groups, g)
		}
		for i, c := range o.calls {
			var arg any
			if !c.Star {
				if len(c.Args) != 1 {
					return &EvalError{Op: strings.ToLower(c.Name), Detail: "expected 1 argument"}
				}
				arg, err = ev.eval(c.Args[0])
				if err != nil {
					return err
				}
			}
			if err := g.accs[i].add(arg, c.Star); err != nil {
				return err
			}
		}
	}

	// global aggregation over zero rows still yields one row
	if len(o.groups) == 0 && len(o.keyIdx) == 0 {
		g := &aggGroup{rep: row{}, accs: make([]*accumulator, len(o.calls))}
		for i, c := range o.calls {
			g.accs[i] = newAccumulator(strings.ToLower(c.Name), c.Distinct)
		}
		o.groups = append(o.groups, g)
	}
	return nil
}

func (o *opAggregate) next() (row, bool, error) {
	if o.pos >= len(o.groups) {
		return nil, false, nil
	}
	g := o.groups[o.pos]
	o.pos++
	agg := make(map[*FunctionCall]any, len(o.calls))
	for i, c := range o.calls {
		agg[c] = g.accs[i].result()
	}
	ev := &evaluator{ec: o.ec, row: g.rep, agg: agg}
	out := make(row, len(o.cols))
	keyPos := 0
	for i, it := range o.items {
		if keyPos < len(o.keyIdx) && o.keyIdx[keyPos] == i {
			out[o.cols[i]] = g.keyVals[keyPos]
			keyPos++
			continue
		}
		v, err := ev.eval(it.Expr)
		if err != nil {
			return nil, false, err
		}
		out[o.cols[i]] = v
	}
	return out, true, nil
}

func (o *opAggregate) close() { o.input.close() }

// accumulator folds one aggregate call over a group.
type accumulator struct {
	name     string
	distinct bool
	seen     map[string]bool

	count  int64
	sumI   int64
	sumF   float64
	asF    bool
	minV   any
	maxV   any
	hasMin bool
	list   []any
	vals   []float64
}

func newAccumulator(name string, distinct bool) *accumulator {
	a := &accumulator{name: name, distinct: distinct}
	if distinct {
		a.seen = map[string]bool{}
	}
	return a
}

func (a *accumulator) add(v any, star bool) error {
	if !star && v == nil {
		return nil
	}
	if a.distinct {
		key := keyEncode([]any{v})
		if a.seen[key] {
			return nil
		}
		a.seen[key] = true
	}
	a.count++
	switch a.name {
	case "count":
	case "sum", "avg", "stdev":
		switch n := v.(type) {
		case int64:
			a.sumI += n
			a.sumF += float64(n)
			a.vals = append(a.vals, float64(n))
		case float64:
			a.asF = true
			a.sumF += n
			a.vals = append(a.vals, n)
		default:
			return &EvalError{Op: a.name, Detail: fmt.Sprintf("argument is %s, not a number", value.KindOf(v))}
		}
	case "min", "max":
		if !a.hasMin || value.Compare(v, a.minV) < 0 {
			a.minV = v
		}
		if !a.hasMin || value.Compare(v, a.maxV) > 0 {
			a.maxV = v
		}
		a.hasMin = true
	case "collect":
		a.list = append(a.list, v)
	}
	return nil
}

func (a *accumulator) result() any {
	switch a.name {
	case "count":
		return a.count
	case "sum":
		if a.asF {
			return a.sumF
		}
		return a.sumI
	case "avg":
		if a.count == 0 {
			return nil
		}
		return a.sumF / float64(a.count)
	case "min":
		if !a.hasMin {
			return nil
		}
		return a.minV
	case "max":
		if !a.hasMin {
			return nil
		}
		return a.maxV
	case "collect":
		if a.list == nil {
			return []any{}
		}
		return a.list
	case "stdev":
		if len(a.vals) < 2 {
			return 0.0
		}
		mean := a.sumF / float64(len(a.vals))
		var ss float64
		for _, v := range a.vals {
			d := v - mean
			ss += d * d
		}
		return math.Sqrt(ss / float64(len(a.vals)-1))
	}
	return nil
}

// keyEncode builds a canonical string key for grouping and DISTINCT.
// Integral floats encode like integers so 2 and 2.0 land in one group,
// matching equality semantics.
func keyEncode(vals []any) string {
	var b strings.Builder
	for _, v := range vals {
		writeKey(&b, v)
		b.WriteByte('|')
	}
	return b.String()
}

func writeKey(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("z")
	case bool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(x))
	case int64:
		b.WriteString("n:")
		b.WriteString(strconv.FormatInt(x, 10))
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			b.WriteString("n:")
			b.WriteString(strconv.FormatInt(int64(x), 10))
		} else {
			b.WriteString("f:")
			b.WriteString(strconv.FormatFloat(x, 'b', -1, 64))
		}
	case string:
		b.WriteString("s:")
		b.WriteString(strconv.Itoa(len(x)))
		b.WriteByte(':')
		b.WriteString(x)
	case []any:
		b.WriteString("l[")
		for _, e := range x {
			writeKey(b, e)
			b.WriteByte(',')
		}
		b.WriteByte(']')
	case map[string]any:
		b.WriteString("m{")
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(k)
			b.WriteByte('=')
			writeKey(b, x[k])
			b.WriteByte(',')
		}
		b.WriteByte('}')
	case *storage.Node:
		b.WriteString("N:")
		b.WriteString(strconv.FormatInt(x.ID, 10))
	case *storage.Relationship:
		b.WriteString("R:")
		b.WriteString(strconv.FormatInt(x.ID, 10))
	case *storage.Path:
		b.WriteString("P:")
		for _, id := range x.PathNodeIDs() {
			b.WriteString(strconv.FormatInt(id, 10))
			b.WriteByte('-')
		}
	case value.Date, value.DateTime, value.LocalTime, value.Duration:
		b.WriteString("t:")
		fmt.Fprintf(b, "%v", x)
	default:
		fmt.Fprintf(b, "?:%v", x)
	}
}

// opCall invokes a registered procedure per input row and joins the yielded
// columns onto the row.
type opCall struct {
	input    operator
	clause   *CallClause
	trailing bool

	ec      *execCtx
	buf     []row
	outCols []string
	outRows [][]any
}

func (o *opCall) open(ec *execCtx) error {
	o.ec = ec
	o.buf = nil
	o.outCols = nil
	o.outRows = nil
	return o.input.open(ec)
}

func (o *opCall) next() (row, bool, error) {
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
		if err := o.invoke(in); err != nil {
			return nil, false, err
		}
	}
}

func (o *opCall) invoke(in row) error {
	name := strings.ToLower(o.clause.Procedure)
	proc, ok := o.ec.procs.get(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProcedure, o.clause.Procedure)
	}
	ev := &evaluator{ec: o.ec, row: in}
	args := make([]any, len(o.clause.Args))
	for i, a := range o.clause.Args {
		v, err := ev.eval(a)
		if err != nil {
			return err
		}
		args[i] = v
	}
	res, err := proc(o.ec.ctx, o.ec.eng, args)
	if err != nil {
		return fmt.Errorf("procedure %s: %w", o.clause.Procedure, err)
	}
	colIdx := map[string]int{}
	for i, c := range res.Columns {
		colIdx[c] = i
	}
	yields := o.clause.Yields
	if len(yields) == 0 {
		for _, c := range res.Columns {
			yields = append(yields, &YieldItem{Name: c})
		}
	}
	for _, y := range yields {
		if _, ok := colIdx[y.Name]; !ok {
			return &EvalError{Op: "CALL", Detail: fmt.Sprintf("procedure %s does not yield %q", o.clause.Procedure, y.Name)}
		}
	}
	if o.trailing {
		o.outCols = res.Columns
	}
	for _, prow := range res.Rows {
		r := in.clone()
		for _, y := range yields {
			name := y.Name
			if y.Alias != "" {
				name = y.Alias
			}
			r[name] = prow[colIdx[y.Name]]
		}
		if o.clause.Where != nil {
			rev := &evaluator{ec: o.ec, row: r}
			v, err := rev.eval(o.clause.Where)
			if err != nil {
				return err
			}
			pass, err := truthy(v)
			if err != nil {
				return err
			}
			if !pass {
				continue
			}
		}
		if o.trailing {
			o.outRows = append(o.outRows, prow)
		}
		o.buf = append(o.buf, r)
	}
	return nil
}

func (o *opCall) close() { o.input.close() }

// schemaEngine is the DDL surface; both *storage.Store and *storage.Tx
// provide it.
type schemaEngine interface {
	CreatePropertyIndex(name, label, property string) (*storage.IndexDescriptor, error)
	CreateConstraint(kind storage.ConstraintKind, label, property, valueKind string) (*storage.ConstraintDescriptor, error)
}

// opSchema executes CREATE INDEX / CREATE CONSTRAINT after draining its
// input.
type opSchema struct {
	input      operator
	index      *CreateIndexClause
	constraint *CreateConstraintClause
	ec         *execCtx
	done       bool
}

func (o *opSchema) open(ec *execCtx) error {
	o.ec = ec
	o.done = false
	return o.input.open(ec)
}

func (o *opSchema) next() (row, bool, error) {
	if o.done {
		return nil, false, nil
	}
	o.done = true
	for {
		_, ok, err := o.input.next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			break
		}
	}
	se, ok := o.ec.eng.(schemaEngine)
	if !ok {
		return nil, false, &EvalError{Op: "schema", Detail: "engine does not support schema changes"}
	}
	if o.index != nil {
		name := o.index.Name
		if name == "" {
			name = fmt.Sprintf("idx_%s_%s", strings.ToLower(o.index.Label), strings.ToLower(o.index.Property))
		}
		if _, err := se.CreatePropertyIndex(name, o.index.Label, o.index.Property); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	var kind storage.ConstraintKind
	switch o.constraint.Kind {
	case "unique":
		kind = storage.ConstraintUnique
	case "exists":
		kind = storage.ConstraintExists
	default:
		kind = storage.ConstraintType
	}
	if _, err := se.CreateConstraint(kind, o.constraint.Label, o.constraint.Property, o.constraint.ValueKind); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

func (o *opSchema) close() { o.input.close() }
