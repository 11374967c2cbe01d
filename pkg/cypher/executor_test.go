package cypher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/grafito/pkg/storage"
)

func openGraph(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func run(t *testing.T, eng storage.Engine, q string, params map[string]any) *Result {
	t.Helper()
	res, err := NewExecutor(nil, 0).Execute(context.Background(), eng, q, params)
	require.NoError(t, err, q)
	return res
}

func runErr(t *testing.T, eng storage.Engine, q string, params map[string]any) error {
	t.Helper()
	_, err := NewExecutor(nil, 0).Execute(context.Background(), eng, q, params)
	require.Error(t, err, q)
	return err
}

func column(res *Result, name string) []any {
	for i, c := range res.Columns {
		if c == name {
			out := make([]any, len(res.Rows))
			for j, r := range res.Rows {
				out[j] = r[i]
			}
			return out
		}
	}
	return nil
}

func TestCreateAndReturnNode(t *testing.T) {
	s := openGraph(t)

	res := run(t, s, `CREATE (p:Person {name: 'Alice', age: 30}) RETURN p`, nil)
	require.Equal(t, []string{"p"}, res.Columns)
	require.Len(t, res.Rows, 1)
	node, ok := res.Rows[0][0].(*storage.Node)
	require.True(t, ok)
	assert.Equal(t, []string{"Person"}, node.Labels)
	assert.Equal(t, "Alice", node.Properties["name"])
	assert.Equal(t, int64(30), node.Properties["age"])
}

func TestCreateRelationshipAndMatch(t *testing.T) {
	s := openGraph(t)

	run(t, s, `CREATE (a:Person {name: 'Ann'})-[:KNOWS {since: 2020}]->(b:Person {name: 'Bob'})`, nil)

	res := run(t, s, `MATCH (a:Person)-[r:KNOWS]->(b:Person) RETURN a.name, r.since, b.name`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []any{"Ann", int64(2020), "Bob"}, res.Rows[0])
}

func TestMatchWhereFilter(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:Person {name: 'Ann', age: 25}), (:Person {name: 'Bob', age: 40}), (:Person {name: 'Cy', age: 33})`, nil)

	res := run(t, s, `MATCH (p:Person) WHERE p.age > 30 RETURN p.name ORDER BY p.name`, nil)
	assert.Equal(t, []any{"Bob", "Cy"}, column(res, "p.name"))
}

func TestFriendOfFriend(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (a:Person {name: 'A'}), (b:Person {name: 'B'}), (c:Person {name: 'C'})`, nil)
	run(t, s, `MATCH (a {name: 'A'}), (b {name: 'B'}) CREATE (a)-[:KNOWS]->(b)`, nil)
	run(t, s, `MATCH (b {name: 'B'}), (c {name: 'C'}) CREATE (b)-[:KNOWS]->(c)`, nil)

	res := run(t, s, `MATCH (a {name: 'A'})-[:KNOWS]->()-[:KNOWS]->(f) RETURN f.name`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "C", res.Rows[0][0])
}

func TestOptionalMatchNullFill(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (a:Person {name: 'Ann'})-[:KNOWS]->(b:Person {name: 'Bob'}), (:Person {name: 'Loner'})`, nil)

	res := run(t, s, `MATCH (p:Person) OPTIONAL MATCH (p)-[:KNOWS]->(f) RETURN p.name, f.name ORDER BY p.name`, nil)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, []any{"Ann", "Bob"}, res.Rows[0])
	assert.Equal(t, []any{"Bob", nil}, res.Rows[1])
	assert.Equal(t, []any{"Loner", nil}, res.Rows[2])
}

func TestMergeIdempotent(t *testing.T) {
	s := openGraph(t)

	run(t, s, `MERGE (p:Person {name: 'Ann'}) ON CREATE SET p.n = 1 ON MATCH SET p.n = 2`, nil)
	res := run(t, s, `MATCH (p:Person {name: 'Ann'}) RETURN p.n`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(1), res.Rows[0][0])

	run(t, s, `MERGE (p:Person {name: 'Ann'}) ON CREATE SET p.n = 1 ON MATCH SET p.n = 2`, nil)
	res = run(t, s, `MATCH (p:Person {name: 'Ann'}) RETURN p.n`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(2), res.Rows[0][0])

	count := run(t, s, `MATCH (p:Person) RETURN count(p)`, nil)
	assert.Equal(t, int64(1), count.Rows[0][0])
}

func TestMergeRelationship(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:City {name: 'Oslo'}), (:City {name: 'Bergen'})`, nil)

	for i := 0; i < 2; i++ {
		run(t, s, `MATCH (a:City {name: 'Oslo'}), (b:City {name: 'Bergen'}) MERGE (a)-[:ROAD]->(b)`, nil)
	}
	res := run(t, s, `MATCH (:City)-[r:ROAD]->(:City) RETURN count(r)`, nil)
	assert.Equal(t, int64(1), res.Rows[0][0])
}

func TestVarLengthExpansion(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:N {name: 'A'})-[:E]->(:N {name: 'B'})-[:E]->(:N {name: 'C'})-[:E]->(:N {name: 'D'})`, nil)

	res := run(t, s, `MATCH (a:N {name: 'A'})-[*2..3]->(x) RETURN x.name`, nil)
	assert.Equal(t, []any{"C", "D"}, column(res, "x.name"))

	res = run(t, s, `MATCH (a:N {name: 'A'})-[*1..]->(x) RETURN count(x)`, nil)
	assert.Equal(t, int64(3), res.Rows[0][0])

	res = run(t, s, `MATCH p = (a:N {name: 'A'})-[*2..2]->(x) RETURN length(p)`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(2), res.Rows[0][0])
}

func TestOrderSkipLimit(t *testing.T) {
	s := openGraph(t)
	run(t, s, `UNWIND [3, 1, 4, 1, 5, 9, 2, 6] AS x CREATE (:Num {v: x})`, nil)

	res := run(t, s, `MATCH (n:Num) RETURN n.v ORDER BY n.v DESC SKIP 2 LIMIT 3`, nil)
	assert.Equal(t, []any{int64(5), int64(4), int64(3)}, column(res, "n.v"))
}

func TestDistinct(t *testing.T) {
	s := openGraph(t)
	run(t, s, `UNWIND ['a', 'b', 'a', 'c', 'b'] AS x CREATE (:L {v: x})`, nil)

	res := run(t, s, `MATCH (n:L) RETURN DISTINCT n.v ORDER BY n.v`, nil)
	assert.Equal(t, []any{"a", "b", "c"}, column(res, "n.v"))
}

func TestAggregationGrouping(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:P {city: 'Oslo', age: 30}), (:P {city: 'Oslo', age: 40}), (:P {city: 'Bergen', age: 20})`, nil)

	res := run(t, s, `MATCH (p:P) RETURN p.city AS city, count(*) AS c, avg(p.age) AS a ORDER BY city`, nil)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []any{"Bergen", int64(1), 20.0}, res.Rows[0])
	assert.Equal(t, []any{"Oslo", int64(2), 35.0}, res.Rows[1])
}

func TestAggregateOverEmptyInput(t *testing.T) {
	s := openGraph(t)

	res := run(t, s, `MATCH (n:Missing) RETURN count(n), sum(n.x), collect(n.x)`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(0), res.Rows[0][0])
	assert.Equal(t, int64(0), res.Rows[0][1])
	assert.Equal(t, []any{}, res.Rows[0][2])
}

func TestCollectAndUnwind(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:T {v: 1}), (:T {v: 2}), (:T {v: 3})`, nil)

	res := run(t, s, `MATCH (n:T) WITH collect(n.v) AS vs UNWIND vs AS v RETURN v ORDER BY v DESC`, nil)
	assert.Equal(t, []any{int64(3), int64(2), int64(1)}, column(res, "v"))
}

func TestWithChainingAndWhere(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:P {name: 'Ann', age: 25}), (:P {name: 'Bob', age: 40})`, nil)

	res := run(t, s, `MATCH (p:P) WITH p, p.age * 2 AS double WHERE double > 60 RETURN p.name, double`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []any{"Bob", int64(80)}, res.Rows[0])
}

func TestSetAndRemove(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:P {name: 'Ann'})`, nil)

	run(t, s, `MATCH (p:P {name: 'Ann'}) SET p.age = 30, p:Admin`, nil)
	res := run(t, s, `MATCH (p:Admin) RETURN p.name, p.age`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []any{"Ann", int64(30)}, res.Rows[0])

	run(t, s, `MATCH (p:P {name: 'Ann'}) REMOVE p.age, p:Admin`, nil)
	res = run(t, s, `MATCH (p:P {name: 'Ann'}) RETURN p.age`, nil)
	assert.Equal(t, []any{nil}, column(res, "p.age"))
	res = run(t, s, `MATCH (p:Admin) RETURN p`, nil)
	assert.Empty(t, res.Rows)
}

func TestSetReplaceAndMergeProperties(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:P {name: 'Ann', age: 30})`, nil)

	run(t, s, `MATCH (p:P) SET p += {city: 'Oslo', age: 31}`, nil)
	res := run(t, s, `MATCH (p:P) RETURN p.name, p.age, p.city`, nil)
	assert.Equal(t, []any{"Ann", int64(31), "Oslo"}, res.Rows[0])

	run(t, s, `MATCH (p:P) SET p = {name: 'Ann'}`, nil)
	res = run(t, s, `MATCH (p:P) RETURN p.name, p.age, p.city`, nil)
	assert.Equal(t, []any{"Ann", nil, nil}, res.Rows[0])
}

func TestDeleteRequiresDetach(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:P {name: 'Ann'})-[:KNOWS]->(:P {name: 'Bob'})`, nil)

	runErr(t, s, `MATCH (p:P {name: 'Ann'}) DELETE p`, nil)

	run(t, s, `MATCH (p:P {name: 'Ann'}) DETACH DELETE p`, nil)
	res := run(t, s, `MATCH (p:P) RETURN p.name`, nil)
	assert.Equal(t, []any{"Bob"}, column(res, "p.name"))
	rels := run(t, s, `MATCH ()-[r]->() RETURN count(r)`, nil)
	assert.Equal(t, int64(0), rels.Rows[0][0])
}

func TestForeachUpdates(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:T {v: 1}), (:T {v: 2})`, nil)

	run(t, s, `MATCH (n:T) WITH collect(n) AS ns FOREACH (n IN ns | SET n.seen = true)`, nil)
	res := run(t, s, `MATCH (n:T {seen: true}) RETURN count(n)`, nil)
	assert.Equal(t, int64(2), res.Rows[0][0])
}

func TestUnwindRangeAndCase(t *testing.T) {
	s := openGraph(t)

	res := run(t, s, `UNWIND range(1, 5) AS x RETURN CASE WHEN x % 2 = 0 THEN 'even' ELSE 'odd' END AS p`, nil)
	assert.Equal(t, []any{"odd", "even", "odd", "even", "odd"}, column(res, "p"))
}

func TestListComprehensionAndReduce(t *testing.T) {
	s := openGraph(t)

	res := run(t, s, `RETURN [x IN range(1, 5) WHERE x > 2 | x * 10] AS l, reduce(acc = 0, x IN [1, 2, 3] | acc + x) AS r`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []any{int64(30), int64(40), int64(50)}, res.Rows[0][0])
	assert.Equal(t, int64(6), res.Rows[0][1])
}

func TestParameters(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:P {name: 'Ann'})`, nil)

	res := run(t, s, `MATCH (p:P {name: $name}) RETURN p.name`, map[string]any{"name": "Ann"})
	assert.Equal(t, []any{"Ann"}, column(res, "p.name"))

	err := runErr(t, s, `RETURN $missing`, nil)
	assert.ErrorIs(t, err, ErrMissingParameter)
}

func TestNullSemantics(t *testing.T) {
	s := openGraph(t)

	res := run(t, s, `RETURN null = null AS a, null <> 1 AS b, coalesce(null, 'x') AS c, 1 + null AS d`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []any{nil, nil, "x", nil}, res.Rows[0])
}

func TestStringPredicates(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:P {name: 'Alice'}), (:P {name: 'Albert'}), (:P {name: 'Bob'})`, nil)

	res := run(t, s, `MATCH (p:P) WHERE p.name STARTS WITH 'Al' RETURN p.name ORDER BY p.name`, nil)
	assert.Equal(t, []any{"Albert", "Alice"}, column(res, "p.name"))

	res = run(t, s, `MATCH (p:P) WHERE p.name =~ '.*b.*' RETURN p.name ORDER BY p.name`, nil)
	assert.Equal(t, []any{"Albert", "Bob"}, column(res, "p.name"))
}

func TestPatternPredicate(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:P {name: 'Ann'})-[:KNOWS]->(:P {name: 'Bob'}), (:P {name: 'Loner'})`, nil)

	res := run(t, s, `MATCH (p:P) WHERE (p)-[:KNOWS]->() RETURN p.name`, nil)
	assert.Equal(t, []any{"Ann"}, column(res, "p.name"))

	res = run(t, s, `MATCH (p:P) WHERE NOT (p)-[:KNOWS]->() RETURN p.name ORDER BY p.name`, nil)
	assert.Equal(t, []any{"Bob", "Loner"}, column(res, "p.name"))
}

func TestReturnStar(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:P {name: 'Ann'})`, nil)

	res := run(t, s, `MATCH (p:P) RETURN *`, nil)
	require.Equal(t, []string{"p"}, res.Columns)
	require.Len(t, res.Rows, 1)
}

func TestBuiltinFunctions(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:P {name: 'Ann'})`, nil)

	res := run(t, s, `MATCH (p:P) RETURN id(p) >= 0 AS hasID, labels(p) AS ls, size(p.name) AS n, toUpper(p.name) AS up`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, true, res.Rows[0][0])
	assert.Equal(t, []any{"P"}, res.Rows[0][1])
	assert.Equal(t, int64(3), res.Rows[0][2])
	assert.Equal(t, "ANN", res.Rows[0][3])
}

func TestTypeAndEndpoints(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:P {name: 'Ann'})-[:KNOWS]->(:P {name: 'Bob'})`, nil)

	res := run(t, s, `MATCH ()-[r]->() RETURN type(r), startNode(r).name, endNode(r).name`, nil)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []any{"KNOWS", "Ann", "Bob"}, res.Rows[0])
}

func TestCallProcedureTrailing(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:Person), (:City)`, nil)

	res := run(t, s, `CALL db.labels()`, nil)
	require.Equal(t, []string{"label"}, res.Columns)
	assert.Equal(t, []any{"City", "Person"}, column(res, "label"))
}

func TestCallProcedureYield(t *testing.T) {
	s := openGraph(t)
	run(t, s, `CREATE (:A)-[:REL]->(:B)`, nil)

	res := run(t, s, `CALL db.relationshipTypes() YIELD relationshipType AS t RETURN t`, nil)
	assert.Equal(t, []any{"REL"}, column(res, "t"))

	err := runErr(t, s, `CALL db.nope()`, nil)
	assert.ErrorIs(t, err, ErrUnknownProcedure)
}

func TestCreateIndexAndConstraintStatements(t *testing.T) {
	s := openGraph(t)

	run(t, s, `CREATE INDEX person_name FOR (p:Person) ON (p.name)`, nil)
	idxs, err := s.ListIndexes()
	require.NoError(t, err)
	require.Len(t, idxs, 1)
	assert.Equal(t, "person_name", idxs[0].Name)
	assert.Equal(t, "Person", idxs[0].Label)
	assert.Equal(t, "name", idxs[0].Property)

	run(t, s, `CREATE CONSTRAINT FOR (p:Person) REQUIRE p.email IS UNIQUE`, nil)
	cons, err := s.ListConstraints()
	require.NoError(t, err)
	require.Len(t, cons, 1)
	assert.Equal(t, storage.ConstraintUnique, cons[0].Kind)

	run(t, s, `CREATE (:Person {email: 'a@x'})`, nil)
	runErr(t, s, `CREATE (:Person {email: 'a@x'})`, nil)
}

func TestShortestPathStyleTraversalOrdering(t *testing.T) {
	s := openGraph(t)
	// diamond: A -> B -> D and A -> C -> D
	run(t, s, `CREATE (a:N {name: 'A'}), (b:N {name: 'B'}), (c:N {name: 'C'}), (d:N {name: 'D'})`, nil)
	run(t, s, `MATCH (a {name: 'A'}), (b {name: 'B'}) CREATE (a)-[:E]->(b)`, nil)
	run(t, s, `MATCH (a {name: 'A'}), (c {name: 'C'}) CREATE (a)-[:E]->(c)`, nil)
	run(t, s, `MATCH (b {name: 'B'}), (d {name: 'D'}) CREATE (b)-[:E]->(d)`, nil)
	run(t, s, `MATCH (c {name: 'C'}), (d {name: 'D'}) CREATE (c)-[:E]->(d)`, nil)

	res := run(t, s, `MATCH p = (a:N {name: 'A'})-[*..3]->(d:N {name: 'D'}) RETURN length(p)`, nil)
	assert.Equal(t, []any{int64(2), int64(2)}, column(res, "length(p)"))
}

func TestExecuteOnTransaction(t *testing.T) {
	s := openGraph(t)

	tx, err := s.Begin()
	require.NoError(t, err)
	_, err = NewExecutor(nil, 0).Execute(context.Background(), tx, `CREATE (:P {name: 'Ann'})`, nil)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	res := run(t, s, `MATCH (p:P) RETURN count(p)`, nil)
	assert.Equal(t, int64(0), res.Rows[0][0])
}

func TestSyntaxErrorSurfacing(t *testing.T) {
	s := openGraph(t)

	err := runErr(t, s, `MATCH (p:P RETURN p`, nil)
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)
}
