package cypher

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/orneryd/grafito/pkg/storage"
	"github.com/orneryd/grafito/pkg/value"
)

// evaluator evaluates expressions against one row. agg is populated only
// while an aggregation operator emits its groups; it maps aggregate call
// sites to their accumulated results.
type evaluator struct {
	ec  *execCtx
	row row
	agg map[*FunctionCall]any
}

func (ev *evaluator) eval(e Expr) (any, error) {
	switch x := e.(type) {
	case *Literal:
		return x.Value, nil
	case *Parameter:
		v, ok := ev.ec.params[x.Name]
		if !ok {
			return nil, fmt.Errorf("%w: $%s", ErrMissingParameter, x.Name)
		}
		return value.Normalize(v)
	case *Variable:
		v, ok := ev.row[x.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVariable, x.Name)
		}
		return v, nil
	case *PropertyAccess:
		return ev.evalPropertyAccess(x)
	case *IndexAccess:
		return ev.evalIndexAccess(x)
	case *SliceAccess:
		return ev.evalSliceAccess(x)
	case *ListLiteral:
		out := make([]any, len(x.Items))
		for i, item := range x.Items {
			v, err := ev.eval(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *MapLiteral:
		out := make(map[string]any, len(x.Keys))
		for i, k := range x.Keys {
			v, err := ev.eval(x.Values[i])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case *Unary:
		return ev.evalUnary(x)
	case *Binary:
		return ev.evalBinary(x)
	case *IsNull:
		v, err := ev.eval(x.Subject)
		if err != nil {
			return nil, err
		}
		return (v == nil) != x.Negated, nil
	case *CaseExpr:
		return ev.evalCase(x)
	case *FunctionCall:
		if ev.agg != nil {
			if v, ok := ev.agg[x]; ok {
				return v, nil
			}
		}
		return ev.callFunction(x)
	case *PatternExpr:
		rows, err := matchPart(ev.ec, ev.row, x.Part)
		if err != nil {
			return nil, err
		}
		return len(rows) > 0, nil
	case *ListComprehension:
		return ev.evalListComprehension(x)
	case *PatternComprehension:
		return ev.evalPatternComprehension(x)
	case *Quantifier:
		return ev.evalQuantifier(x)
	case *Reduce:
		return ev.evalReduce(x)
	default:
		return nil, &EvalError{Op: "eval", Detail: fmt.Sprintf("unsupported expression %T", e)}
	}
}

func (ev *evaluator) evalPropertyAccess(x *PropertyAccess) (any, error) {
	subj, err := ev.eval(x.Subject)
	if err != nil {
		return nil, err
	}
	switch s := subj.(type) {
	case nil:
		return nil, nil
	case *storage.Node:
		return s.Properties[x.Key], nil
	case *storage.Relationship:
		return s.Properties[x.Key], nil
	case map[string]any:
		return s[x.Key], nil
	case value.Date:
		return temporalComponent(x.Key, s, value.DateTime{}, value.LocalTime{}, 0)
	case value.DateTime:
		return temporalComponent(x.Key, value.Date{}, s, value.LocalTime{}, 1)
	case value.LocalTime:
		return temporalComponent(x.Key, value.Date{}, value.DateTime{}, s, 2)
	default:
		return nil, &EvalError{Op: "property access", Detail: fmt.Sprintf("cannot read .%s of %s", x.Key, value.KindOf(subj))}
	}
}

func temporalComponent(key string, d value.Date, dt value.DateTime, lt value.LocalTime, which int) (any, error) {
	if which == 1 {
		d = value.DateOf(dt.Time)
		lt = value.LocalTime{Hour: dt.Time.Hour(), Minute: dt.Time.Minute(), Second: dt.Time.Second(), Nanos: dt.Time.Nanosecond()}
	}
	switch key {
	case "year":
		if which != 2 {
			return int64(d.Year), nil
		}
	case "month":
		if which != 2 {
			return int64(d.Month), nil
		}
	case "day":
		if which != 2 {
			return int64(d.Day), nil
		}
	case "hour":
		if which != 0 {
			return int64(lt.Hour), nil
		}
	case "minute":
		if which != 0 {
			return int64(lt.Minute), nil
		}
	case "second":
		if which != 0 {
			return int64(lt.Second), nil
		}
	}
	return nil, &EvalError{Op: "property access", Detail: "unknown temporal component " + key}
}

func (ev *evaluator) evalIndexAccess(x *IndexAccess) (any, error) {
	subj, err := ev.eval(x.Subject)
	if err != nil {
		return nil, err
	}
	idx, err := ev.eval(x.Index)
	if err != nil {
		return nil, err
	}
	if subj == nil || idx == nil {
		return nil, nil
	}
	switch s := subj.(type) {
	case []any:
		i, ok := value.AsInt(idx)
		if !ok {
			return nil, &EvalError{Op: "index", Detail: "list index must be an integer"}
		}
		if i < 0 {
			i += int64(len(s))
		}
		if i < 0 || i >= int64(len(s)) {
			return nil, nil
		}
		return s[i], nil
	case map[string]any:
		k, ok := idx.(string)
		if !ok {
			return nil, &EvalError{Op: "index", Detail: "map key must be a string"}
		}
		return s[k], nil
	case *storage.Node:
		k, ok := idx.(string)
		if !ok {
			return nil, &EvalError{Op: "index", Detail: "property key must be a string"}
		}
		return s.Properties[k], nil
	case *storage.Relationship:
		k, ok := idx.(string)
		if !ok {
			return nil, &EvalError{Op: "index", Detail: "property key must be a string"}
		}
		return s.Properties[k], nil
	default:
		return nil, &EvalError{Op: "index", Detail: fmt.Sprintf("cannot index %s", value.KindOf(subj))}
	}
}

func (ev *evaluator) evalSliceAccess(x *SliceAccess) (any, error) {
	subj, err := ev.eval(x.Subject)
	if err != nil {
		return nil, err
	}
	if subj == nil {
		return nil, nil
	}
	list, ok := subj.([]any)
	if !ok {
		return nil, &EvalError{Op: "slice", Detail: fmt.Sprintf("cannot slice %s", value.KindOf(subj))}
	}
	n := int64(len(list))
	from, to := int64(0), n
	if x.From != nil {
		v, err := ev.eval(x.From)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		if from, ok = value.AsInt(v); !ok {
			return nil, &EvalError{Op: "slice", Detail: "slice bound must be an integer"}
		}
	}
	if x.To != nil {
		v, err := ev.eval(x.To)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, nil
		}
		if to, ok = value.AsInt(v); !ok {
			return nil, &EvalError{Op: "slice", Detail: "slice bound must be an integer"}
		}
	}
	if from < 0 {
		from += n
	}
	if to < 0 {
		to += n
	}
	from = clampInt64(from, 0, n)
	to = clampInt64(to, 0, n)
	if from >= to {
		return []any{}, nil
	}
	return append([]any(nil), list[from:to]...), nil
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (ev *evaluator) evalUnary(x *Unary) (any, error) {
	v, err := ev.eval(x.Operand)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "NOT":
		if v == nil {
			return nil, nil
		}
		b, ok := v.(bool)
		if !ok {
			return nil, &EvalError{Op: "NOT", Detail: "operand is not a boolean"}
		}
		return !b, nil
	case "-":
		switch n := v.(type) {
		case nil:
			return nil, nil
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		}
		return nil, &EvalError{Op: "-", Detail: "operand is not a number"}
	case "+":
		return v, nil
	}
	return nil, &EvalError{Op: x.Op, Detail: "unknown unary operator"}
}

func (ev *evaluator) evalBinary(x *Binary) (any, error) {
	switch x.Op {
	case "AND", "OR", "XOR":
		return ev.evalLogical(x)
	}
	lhs, err := ev.eval(x.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ev.eval(x.RHS)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "=":
		if lhs == nil || rhs == nil {
			return nil, nil
		}
		return value.Equal(lhs, rhs), nil
	case "<>":
		if lhs == nil || rhs == nil {
			return nil, nil
		}
		return !value.Equal(lhs, rhs), nil
	case "<", "<=", ">", ">=":
		return orderingCompare(x.Op, lhs, rhs)
	case "+", "-", "*", "/", "%", "^":
		return arithmetic(x.Op, lhs, rhs)
	case "IN":
		return inList(lhs, rhs)
	case "STARTS WITH":
		return stringPredicate(lhs, rhs, strings.HasPrefix)
	case "ENDS WITH":
		return stringPredicate(lhs, rhs, strings.HasSuffix)
	case "CONTAINS":
		return stringPredicate(lhs, rhs, strings.Contains)
	case "=~":
		return regexMatch(lhs, rhs)
	}
	return nil, &EvalError{Op: x.Op, Detail: "unknown operator"}
}

// evalLogical implements three-valued AND/OR/XOR. Short-circuiting still
// evaluates both sides when the first is null.
func (ev *evaluator) evalLogical(x *Binary) (any, error) {
	lhs, err := ev.evalBool(x.LHS, x.Op)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "AND":
		if lhs != nil && !*lhs {
			return false, nil
		}
	case "OR":
		if lhs != nil && *lhs {
			return true, nil
		}
	}
	rhs, err := ev.evalBool(x.RHS, x.Op)
	if err != nil {
		return nil, err
	}
	switch x.Op {
	case "AND":
		if rhs != nil && !*rhs {
			return false, nil
		}
		if lhs == nil || rhs == nil {
			return nil, nil
		}
		return true, nil
	case "OR":
		if rhs != nil && *rhs {
			return true, nil
		}
		if lhs == nil || rhs == nil {
			return nil, nil
		}
		return false, nil
	default: // XOR
		if lhs == nil || rhs == nil {
			return nil, nil
		}
		return *lhs != *rhs, nil
	}
}

func (ev *evaluator) evalBool(e Expr, op string) (*bool, error) {
	v, err := ev.eval(e)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, &EvalError{Op: op, Detail: "operand is not a boolean"}
	}
	return &b, nil
}

// orderingCompare applies < <= > >=. Null operands and cross-kind
// comparisons yield null.
func orderingCompare(op string, a, b any) (any, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	ka, kb := value.KindOf(a), value.KindOf(b)
	numA := ka == value.KindInt || ka == value.KindFloat
	numB := kb == value.KindInt || kb == value.KindFloat
	if !((numA && numB) || ka == kb) {
		return nil, nil
	}
	switch ka {
	case value.KindMap, value.KindNode, value.KindRelationship, value.KindPath:
		return nil, nil
	}
	c := value.Compare(a, b)
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func arithmetic(op string, a, b any) (any, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	if op == "+" {
		if s1, ok := a.(string); ok {
			if s2, ok := b.(string); ok {
				return s1 + s2, nil
			}
		}
		if l1, ok := a.([]any); ok {
			if l2, ok := b.([]any); ok {
				return append(append([]any(nil), l1...), l2...), nil
			}
			return append(append([]any(nil), l1...), b), nil
		}
		if l2, ok := b.([]any); ok {
			return append([]any{a}, l2...), nil
		}
	}
	if v, ok, err := temporalArithmetic(op, a, b); ok {
		return v, err
	}
	return numericArithmetic(op, a, b)
}

func temporalArithmetic(op string, a, b any) (any, bool, error) {
	switch x := a.(type) {
	case value.Date:
		dur, ok := b.(value.Duration)
		if !ok {
			return nil, false, nil
		}
		switch op {
		case "+":
			return x.Add(dur), true, nil
		case "-":
			return x.Add(negateDuration(dur)), true, nil
		}
	case value.DateTime:
		dur, ok := b.(value.Duration)
		if !ok {
			return nil, false, nil
		}
		switch op {
		case "+":
			return x.Add(dur), true, nil
		case "-":
			return x.Add(negateDuration(dur)), true, nil
		}
	case value.Duration:
		switch y := b.(type) {
		case value.Duration:
			switch op {
			case "+":
				return value.Duration{Months: x.Months + y.Months, Days: x.Days + y.Days, Seconds: x.Seconds + y.Seconds, Nanos: x.Nanos + y.Nanos}, true, nil
			case "-":
				return value.Duration{Months: x.Months - y.Months, Days: x.Days - y.Days, Seconds: x.Seconds - y.Seconds, Nanos: x.Nanos - y.Nanos}, true, nil
			}
		case value.Date:
			if op == "+" {
				return y.Add(x), true, nil
			}
		case value.DateTime:
			if op == "+" {
				return y.Add(x), true, nil
			}
		default:
			if f, isNum := value.AsFloat(b); isNum {
				switch op {
				case "*":
					return scaleDuration(x, f), true, nil
				case "/":
					if f == 0 {
						return nil, true, &EvalError{Op: "/", Detail: "division by zero"}
					}
					return scaleDuration(x, 1/f), true, nil
				}
			}
		}
	default:
		if dur, ok := b.(value.Duration); ok && op == "*" {
			if f, isNum := value.AsFloat(a); isNum {
				return scaleDuration(dur, f), true, nil
			}
		}
	}
	return nil, false, nil
}

func negateDuration(d value.Duration) value.Duration {
	return value.Duration{Months: -d.Months, Days: -d.Days, Seconds: -d.Seconds, Nanos: -d.Nanos}
}

func scaleDuration(d value.Duration, f float64) value.Duration {
	return value.Duration{
		Months:  int64(float64(d.Months) * f),
		Days:    int64(float64(d.Days) * f),
		Seconds: int64(float64(d.Seconds) * f),
		Nanos:   int64(float64(d.Nanos) * f),
	}
}

func numericArithmetic(op string, a, b any) (any, error) {
	ai, aInt := a.(int64)
	bi, bInt := b.(int64)
	if aInt && bInt && op != "^" {
		switch op {
		case "+":
			return ai + bi, nil
		case "-":
			return ai - bi, nil
		case "*":
			return ai * bi, nil
		case "/":
			if bi == 0 {
				return nil, &EvalError{Op: "/", Detail: "division by zero"}
			}
			return ai / bi, nil
		case "%":
			if bi == 0 {
				return nil, &EvalError{Op: "%", Detail: "division by zero"}
			}
			return ai % bi, nil
		}
	}
	af, aok := value.AsFloat(a)
	bf, bok := value.AsFloat(b)
	if !aok || !bok {
		return nil, &EvalError{Op: op, Detail: fmt.Sprintf("cannot apply to %s and %s", value.KindOf(a), value.KindOf(b))}
	}
	switch op {
	case "+":
		return af + bf, nil
	case "-":
		return af - bf, nil
	case "*":
		return af * bf, nil
	case "/":
		if bf == 0 {
			return nil, &EvalError{Op: "/", Detail: "division by zero"}
		}
		return af / bf, nil
	case "%":
		return math.Mod(af, bf), nil
	default: // ^
		return math.Pow(af, bf), nil
	}
}

// inList implements x IN list with null semantics: an unmatched search over
// a list containing null is null, not false.
func inList(x, listVal any) (any, error) {
	if listVal == nil {
		return nil, nil
	}
	list, ok := listVal.([]any)
	if !ok {
		return nil, &EvalError{Op: "IN", Detail: "right operand is not a list"}
	}
	if x == nil {
		return nil, nil
	}
	sawNull := false
	for _, item := range list {
		if item == nil {
			sawNull = true
			continue
		}
		if value.Equal(x, item) {
			return true, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return false, nil
}

func stringPredicate(a, b any, pred func(string, string) bool) (any, error) {
	s1, ok1 := a.(string)
	s2, ok2 := b.(string)
	if !ok1 || !ok2 {
		return nil, nil
	}
	return pred(s1, s2), nil
}

func regexMatch(a, b any) (any, error) {
	s, ok1 := a.(string)
	pat, ok2 := b.(string)
	if !ok1 || !ok2 {
		return nil, nil
	}
	// the regex must match the whole string
	re, err := regexp.Compile("^(?:" + pat + ")$")
	if err != nil {
		return nil, &EvalError{Op: "=~", Detail: "invalid pattern: " + err.Error()}
	}
	return re.MatchString(s), nil
}

func (ev *evaluator) evalCase(x *CaseExpr) (any, error) {
	var input any
	var err error
	if x.Input != nil {
		input, err = ev.eval(x.Input)
		if err != nil {
			return nil, err
		}
	}
	for _, w := range x.Whens {
		cond, err := ev.eval(w.Cond)
		if err != nil {
			return nil, err
		}
		hit := false
		if x.Input != nil {
			hit = input != nil && cond != nil && value.Equal(input, cond)
		} else {
			b, ok := cond.(bool)
			hit = ok && b
		}
		if hit {
			return ev.eval(w.Then)
		}
	}
	if x.Else != nil {
		return ev.eval(x.Else)
	}
	return nil, nil
}

func (ev *evaluator) evalListComprehension(x *ListComprehension) (any, error) {
	listVal, err := ev.eval(x.List)
	if err != nil {
		return nil, err
	}
	if listVal == nil {
		return nil, nil
	}
	list, ok := listVal.([]any)
	if !ok {
		return nil, &EvalError{Op: "list comprehension", Detail: "input is not a list"}
	}
	var out []any
	for _, item := range list {
		inner := &evaluator{ec: ev.ec, row: ev.row.clone(), agg: ev.agg}
		inner.row[x.Var] = item
		if x.Where != nil {
			cond, err := inner.eval(x.Where)
			if err != nil {
				return nil, err
			}
			if b, ok := cond.(bool); !ok || !b {
				continue
			}
		}
		if x.Projection != nil {
			v, err := inner.eval(x.Projection)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		} else {
			out = append(out, item)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func (ev *evaluator) evalPatternComprehension(x *PatternComprehension) (any, error) {
	rows, err := matchPart(ev.ec, ev.row, x.Part)
	if err != nil {
		return nil, err
	}
	out := []any{}
	for _, r := range rows {
		inner := &evaluator{ec: ev.ec, row: r, agg: ev.agg}
		if x.Where != nil {
			cond, err := inner.eval(x.Where)
			if err != nil {
				return nil, err
			}
			if b, ok := cond.(bool); !ok || !b {
				continue
			}
		}
		v, err := inner.eval(x.Projection)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (ev *evaluator) evalQuantifier(x *Quantifier) (any, error) {
	listVal, err := ev.eval(x.List)
	if err != nil {
		return nil, err
	}
	if listVal == nil {
		return nil, nil
	}
	list, ok := listVal.([]any)
	if !ok {
		return nil, &EvalError{Op: strings.ToLower(x.Kind), Detail: "input is not a list"}
	}
	trues, nulls := 0, 0
	for _, item := range list {
		inner := &evaluator{ec: ev.ec, row: ev.row.clone(), agg: ev.agg}
		inner.row[x.Var] = item
		cond, err := inner.eval(x.Where)
		if err != nil {
			return nil, err
		}
		switch b := cond.(type) {
		case nil:
			nulls++
		case bool:
			if b {
				trues++
			}
		default:
			return nil, &EvalError{Op: strings.ToLower(x.Kind), Detail: "predicate is not a boolean"}
		}
	}
	falses := len(list) - trues - nulls
	switch x.Kind {
	case "ALL":
		if falses > 0 {
			return false, nil
		}
		if nulls > 0 {
			return nil, nil
		}
		return true, nil
	case "ANY":
		if trues > 0 {
			return true, nil
		}
		if nulls > 0 {
			return nil, nil
		}
		return false, nil
	case "NONE":
		if trues > 0 {
			return false, nil
		}
		if nulls > 0 {
			return nil, nil
		}
		return true, nil
	default: // SINGLE
		if trues > 1 {
			return false, nil
		}
		if nulls > 0 {
			return nil, nil
		}
		return trues == 1, nil
	}
}

func (ev *evaluator) evalReduce(x *Reduce) (any, error) {
	acc, err := ev.eval(x.Init)
	if err != nil {
		return nil, err
	}
	listVal, err := ev.eval(x.List)
	if err != nil {
		return nil, err
	}
	if listVal == nil {
		return nil, nil
	}
	list, ok := listVal.([]any)
	if !ok {
		return nil, &EvalError{Op: "reduce", Detail: "input is not a list"}
	}
	for _, item := range list {
		inner := &evaluator{ec: ev.ec, row: ev.row.clone(), agg: ev.agg}
		inner.row[x.Acc] = acc
		inner.row[x.Var] = item
		acc, err = inner.eval(x.Expr)
		if err != nil {
			return nil, err
		}
	}
	return acc, nil
}

// truthy reports whether a predicate value passes a filter. Only true
// passes; false and null are both rejected.
func truthy(v any) (bool, error) {
	switch b := v.(type) {
	case nil:
		return false, nil
	case bool:
		return b, nil
	default:
		return false, &EvalError{Op: "filter", Detail: fmt.Sprintf("predicate is %s, not boolean", value.KindOf(v))}
	}
}
