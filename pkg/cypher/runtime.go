package cypher

import (
	"context"
	"fmt"
	"sort"

	"github.com/orneryd/grafito/pkg/storage"
)

// DefaultMaxHops bounds variable-length expansion when a pattern leaves the
// upper hop count open.
const DefaultMaxHops = 8

// row maps bound variable names to runtime values.
type row map[string]any

func (r row) clone() row {
	out := make(row, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// execCtx carries the per-query execution state shared by all operators.
type execCtx struct {
	ctx     context.Context
	eng     storage.Engine
	params  map[string]any
	procs   *ProcedureRegistry
	maxHops int
}

func (ec *execCtx) checkCancel() error {
	select {
	case <-ec.ctx.Done():
		return ec.ctx.Err()
	default:
		return nil
	}
}

// operator is one node of the pull-based execution plan.
type operator interface {
	open(ec *execCtx) error
	next() (row, bool, error)
	close()
}

// Result is a fully materialized query result.
type Result struct {
	Columns []string
	Rows    [][]any
}

// Executor compiles and runs Cypher statements against a storage engine.
// The zero value is not usable; construct with NewExecutor.
type Executor struct {
	procs   *ProcedureRegistry
	maxHops int
}

// NewExecutor returns an executor using the given procedure registry. A nil
// registry gets the built-in procedures only. maxHops <= 0 selects
// DefaultMaxHops.
func NewExecutor(procs *ProcedureRegistry, maxHops int) *Executor {
	if procs == nil {
		procs = NewProcedureRegistry()
	}
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}
	return &Executor{procs: procs, maxHops: maxHops}
}

// Execute parses, plans and runs one statement, materializing every result
// row. Statements without a RETURN (or trailing CALL) drain their plan and
// report no columns.
func (e *Executor) Execute(ctx context.Context, eng storage.Engine, query string, params map[string]any) (*Result, error) {
	stmt, err := Parse(query)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = map[string]any{}
	}
	pl := &planner{maxHops: e.maxHops, scope: map[string]bool{}}
	root, cols, err := pl.plan(stmt)
	if err != nil {
		return nil, err
	}
	ec := &execCtx{ctx: ctx, eng: eng, params: params, procs: e.procs, maxHops: e.maxHops}
	if err := root.open(ec); err != nil {
		root.close()
		return nil, err
	}
	defer root.close()

	res := &Result{Columns: cols}
	for {
		r, ok, err := root.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if len(cols) == 0 {
			continue
		}
		out := make([]any, len(cols))
		for i, c := range cols {
			out[i] = r[c]
		}
		res.Rows = append(res.Rows, out)
	}
	if len(cols) == 0 {
		// a trailing CALL without RETURN surfaces the procedure's own columns
		if tail, ok := root.(*opCall); ok && tail.trailing {
			res.Columns = tail.outCols
			res.Rows = tail.outRows
		}
	}
	return res, nil
}

// planner walks the clause list, tracking which variables are in scope so
// RETURN * and OPTIONAL MATCH null-fill can be resolved statically.
type planner struct {
	maxHops int
	scope   map[string]bool
}

func (pl *planner) plan(stmt *Statement) (operator, []string, error) {
	var cur operator = &opSingleRow{}
	var cols []string
	sawReturn := false
	for i, cl := range stmt.Clauses {
		last := i == len(stmt.Clauses)-1
		switch c := cl.(type) {
		case *MatchClause:
			fresh := pl.addPatternVars(c.Pattern)
			cur = &opMatch{input: cur, parts: c.Pattern, where: c.Where, optional: c.Optional, fresh: fresh}
		case *UnwindClause:
			pl.scope[c.Alias] = true
			cur = &opUnwind{input: cur, expr: c.Expr, alias: c.Alias}
		case *WithClause:
			op, names, err := pl.planProjection(cur, c.Star, c.Items, c.Distinct, c.OrderBy, c.Skip, c.Limit)
			if err != nil {
				return nil, nil, err
			}
			cur = op
			if c.Where != nil {
				cur = &opFilter{input: cur, pred: c.Where}
			}
			cols = names
		case *ReturnClause:
			op, names, err := pl.planProjection(cur, c.Star, c.Items, c.Distinct, c.OrderBy, c.Skip, c.Limit)
			if err != nil {
				return nil, nil, err
			}
			cur = op
			cols = names
			sawReturn = true
		case *CreateClause:
			pl.addPatternVars(c.Pattern)
			cur = &opCreate{input: cur, parts: c.Pattern}
		case *MergeClause:
			pl.addPatternVars([]*PatternPart{c.Pattern})
			cur = &opMerge{input: cur, part: c.Pattern, onCreate: c.OnCreate, onMatch: c.OnMatch}
		case *SetClause:
			cur = &opSet{input: cur, items: c.Items}
		case *RemoveClause:
			cur = &opRemoveItems{input: cur, items: c.Items}
		case *DeleteClause:
			cur = &opDelete{input: cur, exprs: c.Exprs, detach: c.Detach}
		case *ForeachClause:
			cur = &opForeach{input: cur, varName: c.Var, list: c.List, body: c.Body, maxHops: pl.maxHops}
		case *CallClause:
			names := pl.addCallVars(c)
			cur = &opCall{input: cur, clause: c, trailing: last && len(c.Yields) == 0 && !sawReturn}
			_ = names
		case *CreateIndexClause:
			cur = &opSchema{input: cur, index: c}
		case *CreateConstraintClause:
			cur = &opSchema{input: cur, constraint: c}
		default:
			return nil, nil, fmt.Errorf("unsupported clause %T", cl)
		}
	}
	if !sawReturn {
		cols = nil
	}
	return cur, cols, nil
}

// addPatternVars registers every variable a pattern binds and returns the
// names that were not already in scope.
func (pl *planner) addPatternVars(parts []*PatternPart) []string {
	var fresh []string
	add := func(name string) {
		if name == "" || pl.scope[name] {
			return
		}
		pl.scope[name] = true
		fresh = append(fresh, name)
	}
	for _, part := range parts {
		add(part.Variable)
		for _, n := range part.Nodes {
			add(n.Variable)
		}
		for _, r := range part.Rels {
			add(r.Variable)
		}
	}
	sort.Strings(fresh)
	return fresh
}

func (pl *planner) addCallVars(c *CallClause) []string {
	var names []string
	for _, y := range c.Yields {
		name := y.Name
		if y.Alias != "" {
			name = y.Alias
		}
		pl.scope[name] = true
		names = append(names, name)
	}
	return names
}

// planProjection builds the project/aggregate -> distinct -> sort -> skip ->
// limit -> scope pipeline shared by WITH and RETURN.
func (pl *planner) planProjection(input operator, star bool, items []*ProjectionItem, distinct bool, orderBy []*SortItem, skip, limit Expr) (operator, []string, error) {
	items = append([]*ProjectionItem(nil), items...)
	if star {
		names := make([]string, 0, len(pl.scope))
		for name := range pl.scope {
			names = append(names, name)
		}
		sort.Strings(names)
		starItems := make([]*ProjectionItem, 0, len(names))
		for _, name := range names {
			starItems = append(starItems, &ProjectionItem{Expr: &Variable{Name: name}, Alias: name})
		}
		items = append(starItems, items...)
	}
	if len(items) == 0 {
		return nil, nil, &EvalError{Op: "projection", Detail: "nothing to project"}
	}

	cols := make([]string, len(items))
	for i, it := range items {
		if it.Alias != "" {
			cols[i] = it.Alias
		} else {
			cols[i] = exprString(it.Expr)
		}
	}

	var cur operator
	if anyAggregates(items) {
		cur = &opAggregate{input: input, items: items, cols: cols}
	} else {
		cur = &opProject{input: input, items: items, cols: cols}
	}
	if distinct {
		cur = &opScope{input: cur, cols: cols}
		cur = &opDistinct{input: cur, cols: cols}
		// only the projected columns survive the scope trim, so sort keys
		// that repeat a projection expression read its column instead
		keys := make([]*SortItem, len(orderBy))
		for i, k := range orderBy {
			keys[i] = k
			for j, it := range items {
				if exprString(k.Expr) == exprString(it.Expr) {
					keys[i] = &SortItem{Expr: &Variable{Name: cols[j]}, Descending: k.Descending}
					break
				}
			}
		}
		orderBy = keys
	}
	if len(orderBy) > 0 {
		cur = &opSort{input: cur, keys: orderBy}
	}
	if skip != nil {
		cur = &opSkip{input: cur, expr: skip}
	}
	if limit != nil {
		cur = &opLimit{input: cur, expr: limit}
	}
	cur = &opScope{input: cur, cols: cols}

	// WITH / RETURN reset the variable scope to the projected names
	pl.scope = map[string]bool{}
	for _, c := range cols {
		pl.scope[c] = true
	}
	return cur, cols, nil
}

func anyAggregates(items []*ProjectionItem) bool {
	for _, it := range items {
		if len(collectAggregates(it.Expr)) > 0 {
			return true
		}
	}
	return false
}
