package cypher

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/orneryd/grafito/pkg/storage"
	"github.com/orneryd/grafito/pkg/value"
)

// aggregateNames is the set of function names resolved by the aggregation
// operator rather than the scalar library.
var aggregateNames = map[string]bool{
	"count":   true,
	"sum":     true,
	"avg":     true,
	"min":     true,
	"max":     true,
	"collect": true,
	"stdev":   true,
}

// collectAggregates returns every aggregate call site in e, identified by
// pointer so the aggregation operator can substitute results during
// projection.
func collectAggregates(e Expr) []*FunctionCall {
	var out []*FunctionCall
	walkExpr(e, func(x Expr) bool {
		if fc, ok := x.(*FunctionCall); ok && aggregateNames[strings.ToLower(fc.Name)] {
			out = append(out, fc)
			return false
		}
		return true
	})
	return out
}

// walkExpr visits e and its subexpressions top-down. fn returning false
// prunes the subtree.
func walkExpr(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch x := e.(type) {
	case *PropertyAccess:
		walkExpr(x.Subject, fn)
	case *IndexAccess:
		walkExpr(x.Subject, fn)
		walkExpr(x.Index, fn)
	case *SliceAccess:
		walkExpr(x.Subject, fn)
		walkExpr(x.From, fn)
		walkExpr(x.To, fn)
	case *ListLiteral:
		for _, item := range x.Items {
			walkExpr(item, fn)
		}
	case *MapLiteral:
		for _, v := range x.Values {
			walkExpr(v, fn)
		}
	case *Unary:
		walkExpr(x.Operand, fn)
	case *Binary:
		walkExpr(x.LHS, fn)
		walkExpr(x.RHS, fn)
	case *IsNull:
		walkExpr(x.Subject, fn)
	case *CaseExpr:
		walkExpr(x.Input, fn)
		for _, w := range x.Whens {
			walkExpr(w.Cond, fn)
			walkExpr(w.Then, fn)
		}
		walkExpr(x.Else, fn)
	case *FunctionCall:
		for _, a := range x.Args {
			walkExpr(a, fn)
		}
	case *ListComprehension:
		walkExpr(x.List, fn)
		walkExpr(x.Where, fn)
		walkExpr(x.Projection, fn)
	case *PatternComprehension:
		walkExpr(x.Where, fn)
		walkExpr(x.Projection, fn)
	case *Quantifier:
		walkExpr(x.List, fn)
		walkExpr(x.Where, fn)
	case *Reduce:
		walkExpr(x.Init, fn)
		walkExpr(x.List, fn)
		walkExpr(x.Expr, fn)
	}
}

func (ev *evaluator) callFunction(fc *FunctionCall) (any, error) {
	name := strings.ToLower(fc.Name)
	if aggregateNames[name] {
		return nil, &EvalError{Op: name, Detail: "aggregate function not allowed here"}
	}
	args := make([]any, len(fc.Args))
	for i, a := range fc.Args {
		v, err := ev.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	fn, ok := scalarFunctions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFunction, fc.Name)
	}
	return fn(ev, args)
}

type scalarFunc func(ev *evaluator, args []any) (any, error)

var scalarFunctions map[string]scalarFunc

func init() {
	scalarFunctions = map[string]scalarFunc{
		"id":            fnID,
		"labels":        fnLabels,
		"type":          fnType,
		"properties":    fnProperties,
		"coalesce":      fnCoalesce,
		"size":          fnSize,
		"length":        fnLength,
		"head":          fnHead,
		"last":          fnLast,
		"range":         fnRange,
		"keys":          fnKeys,
		"nodes":         fnNodes,
		"relationships": fnRelationships,
		"startnode":     fnStartNode,
		"endnode":       fnEndNode,
		"exists":        fnExists,
		"tostring":      fnToString,
		"tointeger":     fnToInteger,
		"tofloat":       fnToFloat,
		"toboolean":     fnToBoolean,
		"abs":           fnAbs,
		"ceil":          numFn(math.Ceil),
		"floor":         numFn(math.Floor),
		"round":         numFn(math.Round),
		"sqrt":          numFn(math.Sqrt),
		"sign":          fnSign,
		"toupper":       strFn(strings.ToUpper),
		"tolower":       strFn(strings.ToLower),
		"trim":          strFn(strings.TrimSpace),
		"ltrim":         strFn(func(s string) string { return strings.TrimLeft(s, " \t\n\r") }),
		"rtrim":         strFn(func(s string) string { return strings.TrimRight(s, " \t\n\r") }),
		"reverse":       fnReverse,
		"split":         fnSplit,
		"replace":       fnReplace,
		"substring":     fnSubstring,
		"left":          fnLeft,
		"right":         fnRight,
		"date":          fnDate,
		"datetime":      fnDateTime,
		"time":          fnTime,
		"duration":      fnDuration,
		"timestamp":     fnTimestamp,
	}
}

func argCount(name string, args []any, min, max int) error {
	if len(args) < min || len(args) > max {
		return &EvalError{Op: name, Detail: fmt.Sprintf("expected %d to %d arguments, got %d", min, max, len(args))}
	}
	return nil
}

func fnID(ev *evaluator, args []any) (any, error) {
	if err := argCount("id", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case *storage.Node:
		return x.ID, nil
	case *storage.Relationship:
		return x.ID, nil
	}
	return nil, &EvalError{Op: "id", Detail: "argument is not a node or relationship"}
}

func fnLabels(ev *evaluator, args []any) (any, error) {
	if err := argCount("labels", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case *storage.Node:
		out := make([]any, len(x.Labels))
		for i, l := range x.Labels {
			out[i] = l
		}
		return out, nil
	}
	return nil, &EvalError{Op: "labels", Detail: "argument is not a node"}
}

func fnType(ev *evaluator, args []any) (any, error) {
	if err := argCount("type", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case *storage.Relationship:
		return x.Type, nil
	}
	return nil, &EvalError{Op: "type", Detail: "argument is not a relationship"}
}

func fnProperties(ev *evaluator, args []any) (any, error) {
	if err := argCount("properties", args, 1, 1); err != nil {
		return nil, err
	}
	var src map[string]any
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case *storage.Node:
		src = x.Properties
	case *storage.Relationship:
		src = x.Properties
	case map[string]any:
		src = x
	default:
		return nil, &EvalError{Op: "properties", Detail: "argument is not a node, relationship or map"}
	}
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

func fnCoalesce(ev *evaluator, args []any) (any, error) {
	for _, a := range args {
		if a != nil {
			return a, nil
		}
	}
	return nil, nil
}

func fnSize(ev *evaluator, args []any) (any, error) {
	if err := argCount("size", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return int64(len([]rune(x))), nil
	case []any:
		return int64(len(x)), nil
	case map[string]any:
		return int64(len(x)), nil
	}
	return nil, &EvalError{Op: "size", Detail: "argument is not a string, list or map"}
}

func fnLength(ev *evaluator, args []any) (any, error) {
	if err := argCount("length", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case *storage.Path:
		return int64(x.Len()), nil
	case []any:
		return int64(len(x)), nil
	case string:
		return int64(len([]rune(x))), nil
	}
	return nil, &EvalError{Op: "length", Detail: "argument is not a path"}
}

func fnHead(ev *evaluator, args []any) (any, error) {
	if err := argCount("head", args, 1, 1); err != nil {
		return nil, err
	}
	list, ok := args[0].([]any)
	if !ok {
		if args[0] == nil {
			return nil, nil
		}
		return nil, &EvalError{Op: "head", Detail: "argument is not a list"}
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func fnLast(ev *evaluator, args []any) (any, error) {
	if err := argCount("last", args, 1, 1); err != nil {
		return nil, err
	}
	list, ok := args[0].([]any)
	if !ok {
		if args[0] == nil {
			return nil, nil
		}
		return nil, &EvalError{Op: "last", Detail: "argument is not a list"}
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[len(list)-1], nil
}

func fnRange(ev *evaluator, args []any) (any, error) {
	if err := argCount("range", args, 2, 3); err != nil {
		return nil, err
	}
	start, ok1 := value.AsInt(args[0])
	end, ok2 := value.AsInt(args[1])
	if !ok1 || !ok2 {
		return nil, &EvalError{Op: "range", Detail: "bounds must be integers"}
	}
	step := int64(1)
	if len(args) == 3 {
		var ok bool
		if step, ok = value.AsInt(args[2]); !ok || step == 0 {
			return nil, &EvalError{Op: "range", Detail: "step must be a non-zero integer"}
		}
	}
	out := []any{}
	if step > 0 {
		for i := start; i <= end; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i >= end; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

func fnKeys(ev *evaluator, args []any) (any, error) {
	if err := argCount("keys", args, 1, 1); err != nil {
		return nil, err
	}
	var src map[string]any
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case *storage.Node:
		src = x.Properties
	case *storage.Relationship:
		src = x.Properties
	case map[string]any:
		src = x
	default:
		return nil, &EvalError{Op: "keys", Detail: "argument is not a node, relationship or map"}
	}
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out, nil
}

func fnNodes(ev *evaluator, args []any) (any, error) {
	if err := argCount("nodes", args, 1, 1); err != nil {
		return nil, err
	}
	p, ok := args[0].(*storage.Path)
	if !ok {
		if args[0] == nil {
			return nil, nil
		}
		return nil, &EvalError{Op: "nodes", Detail: "argument is not a path"}
	}
	out := make([]any, len(p.Nodes))
	for i, n := range p.Nodes {
		out[i] = n
	}
	return out, nil
}

func fnRelationships(ev *evaluator, args []any) (any, error) {
	if err := argCount("relationships", args, 1, 1); err != nil {
		return nil, err
	}
	p, ok := args[0].(*storage.Path)
	if !ok {
		if args[0] == nil {
			return nil, nil
		}
		return nil, &EvalError{Op: "relationships", Detail: "argument is not a path"}
	}
	out := make([]any, len(p.Rels))
	for i, r := range p.Rels {
		out[i] = r
	}
	return out, nil
}

func fnStartNode(ev *evaluator, args []any) (any, error) {
	if err := argCount("startNode", args, 1, 1); err != nil {
		return nil, err
	}
	r, ok := args[0].(*storage.Relationship)
	if !ok {
		if args[0] == nil {
			return nil, nil
		}
		return nil, &EvalError{Op: "startNode", Detail: "argument is not a relationship"}
	}
	return ev.ec.eng.GetNode(r.SourceID)
}

func fnEndNode(ev *evaluator, args []any) (any, error) {
	if err := argCount("endNode", args, 1, 1); err != nil {
		return nil, err
	}
	r, ok := args[0].(*storage.Relationship)
	if !ok {
		if args[0] == nil {
			return nil, nil
		}
		return nil, &EvalError{Op: "endNode", Detail: "argument is not a relationship"}
	}
	return ev.ec.eng.GetNode(r.TargetID)
}

func fnExists(ev *evaluator, args []any) (any, error) {
	if err := argCount("exists", args, 1, 1); err != nil {
		return nil, err
	}
	return args[0] != nil, nil
}

func fnToString(ev *evaluator, args []any) (any, error) {
	if err := argCount("toString", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	case value.Date:
		return x.String(), nil
	case value.DateTime:
		return x.String(), nil
	case value.LocalTime:
		return x.String(), nil
	case value.Duration:
		return x.String(), nil
	}
	return nil, &EvalError{Op: "toString", Detail: "argument cannot be converted"}
}

func fnToInteger(ev *evaluator, args []any) (any, error) {
	if err := argCount("toInteger", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return int64(f), nil
		}
		return nil, nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	}
	return nil, nil
}

func fnToFloat(ev *evaluator, args []any) (any, error) {
	if err := argCount("toFloat", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case int64:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f, nil
		}
		return nil, nil
	}
	return nil, nil
}

func fnToBoolean(ev *evaluator, args []any) (any, error) {
	if err := argCount("toBoolean", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case bool:
		return x, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, nil
	}
	return nil, nil
}

func fnAbs(ev *evaluator, args []any) (any, error) {
	if err := argCount("abs", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case int64:
		if x < 0 {
			return -x, nil
		}
		return x, nil
	case float64:
		return math.Abs(x), nil
	}
	return nil, &EvalError{Op: "abs", Detail: "argument is not a number"}
}

func numFn(f func(float64) float64) scalarFunc {
	return func(ev *evaluator, args []any) (any, error) {
		if len(args) != 1 {
			return nil, &EvalError{Op: "numeric function", Detail: "expected 1 argument"}
		}
		if args[0] == nil {
			return nil, nil
		}
		x, ok := value.AsFloat(args[0])
		if !ok {
			return nil, &EvalError{Op: "numeric function", Detail: "argument is not a number"}
		}
		return f(x), nil
	}
}

func fnSign(ev *evaluator, args []any) (any, error) {
	if err := argCount("sign", args, 1, 1); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return nil, nil
	}
	x, ok := value.AsFloat(args[0])
	if !ok {
		return nil, &EvalError{Op: "sign", Detail: "argument is not a number"}
	}
	switch {
	case x < 0:
		return int64(-1), nil
	case x > 0:
		return int64(1), nil
	default:
		return int64(0), nil
	}
}

func strFn(f func(string) string) scalarFunc {
	return func(ev *evaluator, args []any) (any, error) {
		if len(args) != 1 {
			return nil, &EvalError{Op: "string function", Detail: "expected 1 argument"}
		}
		if args[0] == nil {
			return nil, nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, &EvalError{Op: "string function", Detail: "argument is not a string"}
		}
		return f(s), nil
	}
}

func fnReverse(ev *evaluator, args []any) (any, error) {
	if err := argCount("reverse", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		runes := []rune(x)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes), nil
	case []any:
		out := make([]any, len(x))
		for i, v := range x {
			out[len(x)-1-i] = v
		}
		return out, nil
	}
	return nil, &EvalError{Op: "reverse", Detail: "argument is not a string or list"}
}

func fnSplit(ev *evaluator, args []any) (any, error) {
	if err := argCount("split", args, 2, 2); err != nil {
		return nil, err
	}
	if args[0] == nil || args[1] == nil {
		return nil, nil
	}
	s, ok1 := args[0].(string)
	sep, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return nil, &EvalError{Op: "split", Detail: "arguments must be strings"}
	}
	parts := strings.Split(s, sep)
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

func fnReplace(ev *evaluator, args []any) (any, error) {
	if err := argCount("replace", args, 3, 3); err != nil {
		return nil, err
	}
	if args[0] == nil || args[1] == nil || args[2] == nil {
		return nil, nil
	}
	s, ok1 := args[0].(string)
	from, ok2 := args[1].(string)
	to, ok3 := args[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return nil, &EvalError{Op: "replace", Detail: "arguments must be strings"}
	}
	return strings.ReplaceAll(s, from, to), nil
}

func fnSubstring(ev *evaluator, args []any) (any, error) {
	if err := argCount("substring", args, 2, 3); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return nil, nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, &EvalError{Op: "substring", Detail: "argument is not a string"}
	}
	start, ok := value.AsInt(args[1])
	if !ok || start < 0 {
		return nil, &EvalError{Op: "substring", Detail: "start must be a non-negative integer"}
	}
	runes := []rune(s)
	if start >= int64(len(runes)) {
		return "", nil
	}
	end := int64(len(runes))
	if len(args) == 3 {
		n, ok := value.AsInt(args[2])
		if !ok || n < 0 {
			return nil, &EvalError{Op: "substring", Detail: "length must be a non-negative integer"}
		}
		if start+n < end {
			end = start + n
		}
	}
	return string(runes[start:end]), nil
}

func fnLeft(ev *evaluator, args []any) (any, error) {
	if err := argCount("left", args, 2, 2); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return nil, nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, &EvalError{Op: "left", Detail: "argument is not a string"}
	}
	n, ok := value.AsInt(args[1])
	if !ok || n < 0 {
		return nil, &EvalError{Op: "left", Detail: "length must be a non-negative integer"}
	}
	runes := []rune(s)
	if n > int64(len(runes)) {
		n = int64(len(runes))
	}
	return string(runes[:n]), nil
}

func fnRight(ev *evaluator, args []any) (any, error) {
	if err := argCount("right", args, 2, 2); err != nil {
		return nil, err
	}
	if args[0] == nil {
		return nil, nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, &EvalError{Op: "right", Detail: "argument is not a string"}
	}
	n, ok := value.AsInt(args[1])
	if !ok || n < 0 {
		return nil, &EvalError{Op: "right", Detail: "length must be a non-negative integer"}
	}
	runes := []rune(s)
	if n > int64(len(runes)) {
		n = int64(len(runes))
	}
	return string(runes[int64(len(runes))-n:]), nil
}

func fnDate(ev *evaluator, args []any) (any, error) {
	if err := argCount("date", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return value.DateOf(time.Now().UTC()), nil
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		d, err := value.ParseDate(x)
		if err != nil {
			return nil, &EvalError{Op: "date", Detail: err.Error()}
		}
		return d, nil
	case value.Date:
		return x, nil
	case value.DateTime:
		return value.DateOf(x.Time), nil
	}
	return nil, &EvalError{Op: "date", Detail: "argument is not a string"}
}

func fnDateTime(ev *evaluator, args []any) (any, error) {
	if err := argCount("datetime", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return value.DateTime{Time: time.Now().UTC()}, nil
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		d, err := value.ParseDateTime(x)
		if err != nil {
			return nil, &EvalError{Op: "datetime", Detail: err.Error()}
		}
		return d, nil
	case value.DateTime:
		return x, nil
	case value.Date:
		return value.DateTime{Time: x.Time()}, nil
	}
	return nil, &EvalError{Op: "datetime", Detail: "argument is not a string"}
}

func fnTime(ev *evaluator, args []any) (any, error) {
	if err := argCount("time", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		now := time.Now().UTC()
		return value.LocalTime{Hour: now.Hour(), Minute: now.Minute(), Second: now.Second(), Nanos: now.Nanosecond()}, nil
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		t, err := value.ParseLocalTime(x)
		if err != nil {
			return nil, &EvalError{Op: "time", Detail: err.Error()}
		}
		return t, nil
	case value.LocalTime:
		return x, nil
	}
	return nil, &EvalError{Op: "time", Detail: "argument is not a string"}
}

func fnDuration(ev *evaluator, args []any) (any, error) {
	if err := argCount("duration", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		d, err := value.ParseDuration(x)
		if err != nil {
			return nil, &EvalError{Op: "duration", Detail: err.Error()}
		}
		return d, nil
	case value.Duration:
		return x, nil
	case map[string]any:
		var d value.Duration
		for k, v := range x {
			n, ok := value.AsInt(v)
			if !ok {
				return nil, &EvalError{Op: "duration", Detail: "component " + k + " must be an integer"}
			}
			switch k {
			case "years":
				d.Months += n * 12
			case "months":
				d.Months += n
			case "weeks":
				d.Days += n * 7
			case "days":
				d.Days += n
			case "hours":
				d.Seconds += n * 3600
			case "minutes":
				d.Seconds += n * 60
			case "seconds":
				d.Seconds += n
			case "nanoseconds":
				d.Nanos += n
			default:
				return nil, &EvalError{Op: "duration", Detail: "unknown component " + k}
			}
		}
		return d, nil
	}
	return nil, &EvalError{Op: "duration", Detail: "argument is not a string or map"}
}

func fnTimestamp(ev *evaluator, args []any) (any, error) {
	if err := argCount("timestamp", args, 0, 0); err != nil {
		return nil, err
	}
	return time.Now().UnixMilli(), nil
}
