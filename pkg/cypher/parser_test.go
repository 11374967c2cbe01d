package cypher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *Statement {
	t.Helper()
	st, err := Parse(src)
	require.NoError(t, err, "query: %s", src)
	return st
}

func TestParseMatchReturn(t *testing.T) {
	st := parse(t, "MATCH (n:Person {name: 'Alice'}) RETURN n.name AS name")
	require.Len(t, st.Clauses, 2)

	m := st.Clauses[0].(*MatchClause)
	assert.False(t, m.Optional)
	require.Len(t, m.Pattern, 1)
	node := m.Pattern[0].Nodes[0]
	assert.Equal(t, "n", node.Variable)
	assert.Equal(t, []string{"Person"}, node.Labels)
	assert.Equal(t, &Literal{Value: "Alice"}, node.Props["name"])

	r := st.Clauses[1].(*ReturnClause)
	require.Len(t, r.Items, 1)
	assert.Equal(t, "name", r.Items[0].Alias)
	pa := r.Items[0].Expr.(*PropertyAccess)
	assert.Equal(t, "name", pa.Key)
}

func TestParseRelationshipPatterns(t *testing.T) {
	st := parse(t, "MATCH (a)-[r:KNOWS|LIKES*2..3 {since: 2020}]->(b) RETURN r")
	m := st.Clauses[0].(*MatchClause)
	part := m.Pattern[0]
	require.Len(t, part.Rels, 1)
	rel := part.Rels[0]
	assert.Equal(t, "r", rel.Variable)
	assert.Equal(t, []string{"KNOWS", "LIKES"}, rel.Types)
	assert.Equal(t, DirectionOut, rel.Direction)
	assert.True(t, rel.VarLength)
	require.NotNil(t, rel.MinHops)
	require.NotNil(t, rel.MaxHops)
	assert.Equal(t, 2, *rel.MinHops)
	assert.Equal(t, 3, *rel.MaxHops)
	assert.Equal(t, &Literal{Value: int64(2020)}, rel.Props["since"])
}

func TestParseRelationshipDirections(t *testing.T) {
	dirs := map[string]Direction{
		"MATCH (a)-->(b) RETURN a":     DirectionOut,
		"MATCH (a)<--(b) RETURN a":     DirectionIn,
		"MATCH (a)--(b) RETURN a":      DirectionBoth,
		"MATCH (a)<-[r:X]-(b) RETURN a": DirectionIn,
	}
	for q, want := range dirs {
		st := parse(t, q)
		m := st.Clauses[0].(*MatchClause)
		assert.Equal(t, want, m.Pattern[0].Rels[0].Direction, q)
	}
}

func TestParseVarLengthForms(t *testing.T) {
	cases := map[string][2]*int{
		"MATCH (a)-[*]->(b) RETURN a":     {nil, nil},
		"MATCH (a)-[*3]->(b) RETURN a":    {intp(3), intp(3)},
		"MATCH (a)-[*2..]->(b) RETURN a":  {intp(2), nil},
		"MATCH (a)-[*..4]->(b) RETURN a":  {nil, intp(4)},
		"MATCH (a)-[*1..5]->(b) RETURN a": {intp(1), intp(5)},
	}
	for q, want := range cases {
		st := parse(t, q)
		rel := st.Clauses[0].(*MatchClause).Pattern[0].Rels[0]
		assert.True(t, rel.VarLength, q)
		assert.Equal(t, want[0], rel.MinHops, q)
		assert.Equal(t, want[1], rel.MaxHops, q)
	}
}

func intp(n int) *int { return &n }

func TestParseNamedPath(t *testing.T) {
	st := parse(t, "MATCH p = (a)-[:KNOWS]->(b) RETURN p")
	m := st.Clauses[0].(*MatchClause)
	assert.Equal(t, "p", m.Pattern[0].Variable)
	require.Len(t, m.Pattern[0].Nodes, 2)
}

func TestParseOptionalMatchAndWhere(t *testing.T) {
	st := parse(t, "MATCH (n) OPTIONAL MATCH (n)-[:X]->(m) WHERE m.age > 30 RETURN m")
	om := st.Clauses[1].(*MatchClause)
	assert.True(t, om.Optional)
	require.NotNil(t, om.Where)
	cmp := om.Where.(*Binary)
	assert.Equal(t, ">", cmp.Op)
}

func TestParsePrecedence(t *testing.T) {
	st := parse(t, "RETURN 1 + 2 * 3")
	expr := st.Clauses[0].(*ReturnClause).Items[0].Expr.(*Binary)
	assert.Equal(t, "+", expr.Op)
	assert.Equal(t, "*", expr.RHS.(*Binary).Op)

	st = parse(t, "RETURN NOT true AND false")
	expr = st.Clauses[0].(*ReturnClause).Items[0].Expr.(*Binary)
	assert.Equal(t, "AND", expr.Op)
	assert.Equal(t, "NOT", expr.LHS.(*Unary).Op)

	// unary minus binds looser than power
	st = parse(t, "RETURN -2 ^ 2")
	un := st.Clauses[0].(*ReturnClause).Items[0].Expr.(*Unary)
	assert.Equal(t, "-", un.Op)
	assert.Equal(t, "^", un.Operand.(*Binary).Op)
}

func TestParseChainedComparisonDesugars(t *testing.T) {
	st := parse(t, "RETURN 1 <= 2 <= 3")
	expr := st.Clauses[0].(*ReturnClause).Items[0].Expr.(*Binary)
	assert.Equal(t, "AND", expr.Op)
	assert.Equal(t, "<=", expr.LHS.(*Binary).Op)
	assert.Equal(t, "<=", expr.RHS.(*Binary).Op)
	// the middle operand is shared
	assert.Equal(t, expr.LHS.(*Binary).RHS, expr.RHS.(*Binary).LHS)
}

func TestParseStringPredicatesAndIsNull(t *testing.T) {
	st := parse(t, "MATCH (n) WHERE n.name STARTS WITH 'A' AND n.x IN [1,2] AND n.y IS NOT NULL RETURN n")
	where := st.Clauses[0].(*MatchClause).Where.(*Binary)
	assert.Equal(t, "AND", where.Op)
	isnull := where.RHS.(*IsNull)
	assert.True(t, isnull.Negated)
}

func TestParseCaseForms(t *testing.T) {
	st := parse(t, "RETURN CASE n.x WHEN 1 THEN 'one' ELSE 'many' END")
	c := st.Clauses[0].(*ReturnClause).Items[0].Expr.(*CaseExpr)
	require.NotNil(t, c.Input)
	require.Len(t, c.Whens, 1)
	require.NotNil(t, c.Else)

	st = parse(t, "RETURN CASE WHEN 1 > 2 THEN 'a' WHEN 2 > 1 THEN 'b' END")
	c = st.Clauses[0].(*ReturnClause).Items[0].Expr.(*CaseExpr)
	assert.Nil(t, c.Input)
	assert.Len(t, c.Whens, 2)
	assert.Nil(t, c.Else)
}

func TestParseComprehensionsAndQuantifiers(t *testing.T) {
	st := parse(t, "RETURN [x IN range(1,5) WHERE x % 2 = 0 | x * 10]")
	lc := st.Clauses[0].(*ReturnClause).Items[0].Expr.(*ListComprehension)
	assert.Equal(t, "x", lc.Var)
	require.NotNil(t, lc.Where)
	require.NotNil(t, lc.Projection)

	st = parse(t, "RETURN all(x IN [1,2] WHERE x > 0)")
	q := st.Clauses[0].(*ReturnClause).Items[0].Expr.(*Quantifier)
	assert.Equal(t, "ALL", q.Kind)

	st = parse(t, "RETURN reduce(acc = 0, x IN [1,2,3] | acc + x)")
	r := st.Clauses[0].(*ReturnClause).Items[0].Expr.(*Reduce)
	assert.Equal(t, "acc", r.Acc)
	assert.Equal(t, "x", r.Var)
}

func TestParsePatternExpression(t *testing.T) {
	st := parse(t, "MATCH (a) WHERE EXISTS((a)-[:KNOWS]->()) RETURN a")
	pe := st.Clauses[0].(*MatchClause).Where.(*PatternExpr)
	require.Len(t, pe.Part.Rels, 1)

	st = parse(t, "MATCH (a) WHERE (a)-[:KNOWS]->(:Person) RETURN a")
	pe = st.Clauses[0].(*MatchClause).Where.(*PatternExpr)
	assert.Equal(t, []string{"Person"}, pe.Part.Nodes[1].Labels)

	st = parse(t, "RETURN [(a)-[:R]->(b) | b.name]")
	pc := st.Clauses[0].(*ReturnClause).Items[0].Expr.(*PatternComprehension)
	require.NotNil(t, pc.Projection)
}

func TestParseMergeWithActions(t *testing.T) {
	st := parse(t, "MERGE (p:Person {name: 'Bob'}) ON CREATE SET p.created = true ON MATCH SET p.n = p.n + 1")
	m := st.Clauses[0].(*MergeClause)
	require.Len(t, m.OnCreate, 1)
	require.Len(t, m.OnMatch, 1)
	assert.Equal(t, SetProperty, m.OnCreate[0].Kind)
	assert.Equal(t, "created", m.OnCreate[0].Property)
}

func TestParseSetForms(t *testing.T) {
	st := parse(t, "MATCH (n) SET n.a = 1, n += {b: 2}, n = {c: 3}, n:Extra:More")
	items := st.Clauses[1].(*SetClause).Items
	require.Len(t, items, 4)
	assert.Equal(t, SetProperty, items[0].Kind)
	assert.Equal(t, SetVariableMerge, items[1].Kind)
	assert.Equal(t, SetVariable, items[2].Kind)
	assert.Equal(t, SetLabels, items[3].Kind)
	assert.Equal(t, []string{"Extra", "More"}, items[3].Labels)
}

func TestParseRemoveAndDelete(t *testing.T) {
	st := parse(t, "MATCH (n) REMOVE n.age, n:Old DETACH DELETE n")
	rm := st.Clauses[1].(*RemoveClause)
	require.Len(t, rm.Items, 2)
	assert.Equal(t, "age", rm.Items[0].Property)
	assert.Equal(t, []string{"Old"}, rm.Items[1].Labels)
	del := st.Clauses[2].(*DeleteClause)
	assert.True(t, del.Detach)
}

func TestParseWithUnwind(t *testing.T) {
	st := parse(t, "UNWIND [1,2,3] AS x WITH DISTINCT x ORDER BY x DESC SKIP 1 LIMIT 2 WHERE x > 0 RETURN x")
	uw := st.Clauses[0].(*UnwindClause)
	assert.Equal(t, "x", uw.Alias)
	w := st.Clauses[1].(*WithClause)
	assert.True(t, w.Distinct)
	require.Len(t, w.OrderBy, 1)
	assert.True(t, w.OrderBy[0].Descending)
	require.NotNil(t, w.Skip)
	require.NotNil(t, w.Limit)
	require.NotNil(t, w.Where)
}

func TestParseForeach(t *testing.T) {
	st := parse(t, "MATCH (n) FOREACH (x IN [1,2] | SET n.last = x CREATE (:Log {v: x}))")
	fe := st.Clauses[1].(*ForeachClause)
	assert.Equal(t, "x", fe.Var)
	require.Len(t, fe.Body, 2)

	_, err := Parse("FOREACH (x IN [1] | RETURN x)")
	assert.Error(t, err)
}

func TestParseCallYield(t *testing.T) {
	st := parse(t, "CALL db.vector.search('emb', $vec, 5) YIELD node, score WHERE score > 0.5 RETURN node")
	c := st.Clauses[0].(*CallClause)
	assert.Equal(t, "db.vector.search", c.Procedure)
	require.Len(t, c.Args, 3)
	require.Len(t, c.Yields, 2)
	require.NotNil(t, c.Where)

	st = parse(t, "CALL db.labels() YIELD label AS l RETURN l")
	c = st.Clauses[0].(*CallClause)
	assert.Equal(t, "l", c.Yields[0].Alias)
}

func TestParseSchemaClauses(t *testing.T) {
	st := parse(t, "CREATE INDEX idx_person_name FOR (n:Person) ON (n.name)")
	ix := st.Clauses[0].(*CreateIndexClause)
	assert.Equal(t, "idx_person_name", ix.Name)
	assert.Equal(t, "Person", ix.Label)
	assert.Equal(t, "name", ix.Property)

	st = parse(t, "CREATE CONSTRAINT FOR (p:Person) REQUIRE p.email IS UNIQUE")
	ct := st.Clauses[0].(*CreateConstraintClause)
	assert.Equal(t, "unique", ct.Kind)

	st = parse(t, "CREATE CONSTRAINT FOR (p:Person) REQUIRE p.name IS NOT NULL")
	ct = st.Clauses[0].(*CreateConstraintClause)
	assert.Equal(t, "exists", ct.Kind)

	st = parse(t, "CREATE CONSTRAINT FOR (p:Person) REQUIRE p.age IS :: int")
	ct = st.Clauses[0].(*CreateConstraintClause)
	assert.Equal(t, "type", ct.Kind)
	assert.Equal(t, "int", ct.ValueKind)
}

func TestParseSliceAndIndexAccess(t *testing.T) {
	st := parse(t, "RETURN xs[0], xs[1..3], xs[..2], xs[2..]")
	items := st.Clauses[0].(*ReturnClause).Items
	require.Len(t, items, 4)
	_, ok := items[0].Expr.(*IndexAccess)
	assert.True(t, ok)
	sl := items[1].Expr.(*SliceAccess)
	require.NotNil(t, sl.From)
	require.NotNil(t, sl.To)
	sl = items[2].Expr.(*SliceAccess)
	assert.Nil(t, sl.From)
	sl = items[3].Expr.(*SliceAccess)
	assert.Nil(t, sl.To)
}

func TestParseSyntaxErrorPositions(t *testing.T) {
	_, err := Parse("MATCH (n RETURN n")
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Line)
	assert.Greater(t, se.Col, 1)
	assert.Contains(t, se.Error(), "expected")

	_, err = Parse("")
	require.ErrorAs(t, err, &se)

	_, err = Parse("MATCH (n) RETURN")
	require.ErrorAs(t, err, &se)
}

func TestParseParametersAndMaps(t *testing.T) {
	st := parse(t, "CREATE (n:P {name: $name}) RETURN $limit")
	n := st.Clauses[0].(*CreateClause).Pattern[0].Nodes[0]
	assert.Equal(t, &Parameter{Name: "name"}, n.Props["name"])

	st = parse(t, "RETURN {a: 1, b: [1,2], c: {d: 'x'}}")
	m := st.Clauses[0].(*ReturnClause).Items[0].Expr.(*MapLiteral)
	assert.Equal(t, []string{"a", "b", "c"}, m.Keys)
}

func TestParseReturnStarAndDistinct(t *testing.T) {
	st := parse(t, "MATCH (n) RETURN DISTINCT *")
	r := st.Clauses[1].(*ReturnClause)
	assert.True(t, r.Distinct)
	assert.True(t, r.Star)
}

func TestParseCountStar(t *testing.T) {
	st := parse(t, "MATCH (n) RETURN count(*), count(DISTINCT n.city)")
	items := st.Clauses[1].(*ReturnClause).Items
	fc := items[0].Expr.(*FunctionCall)
	assert.True(t, fc.Star)
	fc = items[1].Expr.(*FunctionCall)
	assert.True(t, fc.Distinct)
}
