package cypher

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// exprString renders an expression back to compact Cypher text. Used for
// default column names when a projection item has no alias.
func exprString(e Expr) string {
	switch x := e.(type) {
	case *Literal:
		return literalString(x.Value)
	case *Parameter:
		return "$" + x.Name
	case *Variable:
		return x.Name
	case *PropertyAccess:
		return exprString(x.Subject) + "." + x.Key
	case *IndexAccess:
		return exprString(x.Subject) + "[" + exprString(x.Index) + "]"
	case *SliceAccess:
		from, to := "", ""
		if x.From != nil {
			from = exprString(x.From)
		}
		if x.To != nil {
			to = exprString(x.To)
		}
		return exprString(x.Subject) + "[" + from + ".." + to + "]"
	case *ListLiteral:
		parts := make([]string, len(x.Items))
		for i, it := range x.Items {
			parts[i] = exprString(it)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *MapLiteral:
		parts := make([]string, len(x.Keys))
		for i, k := range x.Keys {
			parts[i] = k + ": " + exprString(x.Values[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *Unary:
		if x.Op == "NOT" {
			return "NOT " + exprString(x.Operand)
		}
		return x.Op + exprString(x.Operand)
	case *Binary:
		op := x.Op
		if isWordOp(op) {
			op = " " + op + " "
		}
		return exprString(x.LHS) + op + exprString(x.RHS)
	case *IsNull:
		if x.Negated {
			return exprString(x.Subject) + " IS NOT NULL"
		}
		return exprString(x.Subject) + " IS NULL"
	case *CaseExpr:
		var b strings.Builder
		b.WriteString("CASE")
		if x.Input != nil {
			b.WriteString(" " + exprString(x.Input))
		}
		for _, w := range x.Whens {
			b.WriteString(" WHEN " + exprString(w.Cond) + " THEN " + exprString(w.Then))
		}
		if x.Else != nil {
			b.WriteString(" ELSE " + exprString(x.Else))
		}
		b.WriteString(" END")
		return b.String()
	case *FunctionCall:
		if x.Star {
			return x.Name + "(*)"
		}
		parts := make([]string, len(x.Args))
		for i, a := range x.Args {
			parts[i] = exprString(a)
		}
		inner := strings.Join(parts, ", ")
		if x.Distinct {
			inner = "DISTINCT " + inner
		}
		return x.Name + "(" + inner + ")"
	case *PatternExpr:
		return patternString(x.Part)
	case *ListComprehension:
		var b strings.Builder
		b.WriteString("[" + x.Var + " IN " + exprString(x.List))
		if x.Where != nil {
			b.WriteString(" WHERE " + exprString(x.Where))
		}
		if x.Projection != nil {
			b.WriteString(" | " + exprString(x.Projection))
		}
		b.WriteString("]")
		return b.String()
	case *PatternComprehension:
		var b strings.Builder
		b.WriteString("[" + patternString(x.Part))
		if x.Where != nil {
			b.WriteString(" WHERE " + exprString(x.Where))
		}
		b.WriteString(" | " + exprString(x.Projection) + "]")
		return b.String()
	case *Quantifier:
		s := strings.ToUpper(x.Kind) + "(" + x.Var + " IN " + exprString(x.List)
		if x.Where != nil {
			s += " WHERE " + exprString(x.Where)
		}
		return s + ")"
	case *Reduce:
		return "reduce(" + x.Acc + " = " + exprString(x.Init) + ", " + x.Var + " IN " + exprString(x.List) + " | " + exprString(x.Expr) + ")"
	default:
		return fmt.Sprintf("%T", e)
	}
}

func isWordOp(op string) bool {
	for _, r := range op {
		if (r >= 'A' && r <= 'Z') || r == ' ' {
			continue
		}
		return false
	}
	return op != ""
}

func literalString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case string:
		return "'" + strings.ReplaceAll(x, "'", "\\'") + "'"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func patternString(p *PatternPart) string {
	var b strings.Builder
	if p.Variable != "" {
		b.WriteString(p.Variable + " = ")
	}
	b.WriteString(nodePatternString(p.Nodes[0]))
	for i, r := range p.Rels {
		b.WriteString(relPatternString(r))
		b.WriteString(nodePatternString(p.Nodes[i+1]))
	}
	return b.String()
}

func nodePatternString(n *NodePattern) string {
	var b strings.Builder
	b.WriteString("(" + n.Variable)
	for _, l := range n.Labels {
		b.WriteString(":" + l)
	}
	if len(n.Props) > 0 {
		b.WriteString(" " + propMapString(n.Props))
	}
	b.WriteString(")")
	return b.String()
}

func relPatternString(r *RelPattern) string {
	var b strings.Builder
	if r.Direction == DirectionIn {
		b.WriteString("<-")
	} else {
		b.WriteString("-")
	}
	b.WriteString("[" + r.Variable)
	for i, t := range r.Types {
		if i == 0 {
			b.WriteString(":" + t)
		} else {
			b.WriteString("|" + t)
		}
	}
	if r.VarLength {
		b.WriteString("*")
		if r.MinHops != nil {
			b.WriteString(strconv.Itoa(*r.MinHops))
		}
		if r.MinHops != nil || r.MaxHops != nil {
			b.WriteString("..")
		}
		if r.MaxHops != nil {
			b.WriteString(strconv.Itoa(*r.MaxHops))
		}
	}
	if len(r.Props) > 0 {
		b.WriteString(" " + propMapString(r.Props))
	}
	b.WriteString("]")
	if r.Direction == DirectionOut {
		b.WriteString("->")
	} else {
		b.WriteString("-")
	}
	return b.String()
}

func propMapString(props map[string]Expr) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + exprString(props[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
