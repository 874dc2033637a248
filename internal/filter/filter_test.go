package filter

import (
	"testing"

	"github.com/nnaka2992/pg-filter-columns/internal/alias"
	"github.com/nnaka2992/pg-filter-columns/internal/ast"
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, sql string) (*alias.Map, []ast.Node) {
	t.Helper()
	tree, err := pg_query.Parse(sql)
	require.NoError(t, err)
	return alias.BuildFromParseResult(tree), ast.FromParseResult(tree)
}

func filterColumns(t *testing.T, sql string) []FilteredColumn {
	t.Helper()
	aliases, stmts := parse(t, sql)
	cols, err := New(aliases).ExtractFilteredColumns(stmts)
	require.NoError(t, err)
	return cols
}

func simplePredicates(t *testing.T, sql string) []Predicate {
	t.Helper()
	aliases, stmts := parse(t, sql)
	preds, err := New(aliases).ExtractSimplePredicates(stmts)
	require.NoError(t, err)
	return preds
}

func col(table, column string) FilteredColumn {
	return FilteredColumn{Table: table, Column: column}
}

func pred(column, operator string, value any) Predicate {
	return Predicate{Column: column, Operator: operator, Value: value}
}

func TestExtractFilteredColumns(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		want    []FilteredColumn
		ordered bool
	}{
		{
			name:    "unqualified names",
			sql:     "SELECT * FROM x WHERE y = $1 AND z = 1",
			want:    []FilteredColumn{col("", "y"), col("", "z")},
			ordered: true,
		},
		{
			name:    "qualified names",
			sql:     "SELECT * FROM x WHERE x.y = $1 AND x.z = 1",
			want:    []FilteredColumn{col("x", "y"), col("x", "z")},
			ordered: true,
		},
		{
			name: "traverses into CTEs",
			sql:  "WITH a AS (SELECT * FROM x WHERE x.y = $1 AND x.z = 1) SELECT * FROM a WHERE b = 5",
			want: []FilteredColumn{col("x", "y"), col("x", "z"), col("", "b")},
		},
		{
			name: "resolves aliases",
			sql:  "SELECT * FROM users u WHERE u.email = 'a@example.com'",
			want: []FilteredColumn{col("users", "email")},
		},
		{
			name: "resolves aliases inside a row constructor",
			sql:  "SELECT * FROM t WHERE (t.a, (SELECT 1 FROM u uu WHERE uu.k = 1)) = (1, 2)",
			want: []FilteredColumn{col("t", "a"), col("u", "k")},
		},
		{
			name: "resolves schema qualified aliases",
			sql:  "SELECT * FROM app.users u WHERE u.id = 1",
			want: []FilteredColumn{col("app.users", "id")},
		},
		{
			name: "join conditions",
			sql: `SELECT * FROM orders o
				JOIN users u ON u.id = o.user_id
				JOIN items i ON i.order_id = o.id
				WHERE o.state = 'open'`,
			want: []FilteredColumn{
				col("users", "id"), col("orders", "user_id"),
				col("items", "order_id"), col("orders", "id"),
				col("orders", "state"),
			},
		},
		{
			name: "set operations",
			sql:  "SELECT * FROM a WHERE a.x = 1 UNION ALL SELECT * FROM b WHERE b.y = 2 INTERSECT SELECT * FROM c WHERE c.z = 3",
			want: []FilteredColumn{col("a", "x"), col("b", "y"), col("c", "z")},
		},
		{
			name: "FROM sub-selects",
			sql:  "SELECT * FROM (SELECT * FROM t WHERE t.q = 1) s WHERE s.r = 2",
			want: []FilteredColumn{col("t", "q"), col("s", "r")},
		},
		{
			name: "IN sub-link",
			sql:  "SELECT * FROM a WHERE a.id IN (SELECT a_id FROM b WHERE b.active = true)",
			want: []FilteredColumn{col("a", "id"), col("b", "active")},
		},
		{
			name: "EXISTS sub-link",
			sql:  "SELECT * FROM a WHERE EXISTS (SELECT 1 FROM b WHERE b.a_id = a.id)",
			want: []FilteredColumn{col("b", "a_id"), col("a", "id")},
		},
		{
			name: "function arguments",
			sql:  "SELECT * FROM t WHERE lower(t.email) = 'x'",
			want: []FilteredColumn{col("t", "email")},
		},
		{
			name: "row comparison",
			sql:  "SELECT * FROM t WHERE (a, b) = (1, 2)",
			want: []FilteredColumn{col("", "a"), col("", "b")},
		},
		{
			name: "null and boolean tests",
			sql:  "SELECT * FROM t WHERE a IS NULL OR b IS NOT TRUE",
			want: []FilteredColumn{col("", "a"), col("", "b")},
		},
		{
			name: "column references inside IN lists",
			sql:  "SELECT * FROM t WHERE a IN (1, b)",
			want: []FilteredColumn{col("", "a"), col("", "b")},
		},
		{
			name: "UPDATE",
			sql:  "UPDATE users SET active = false WHERE id = 1",
			want: []FilteredColumn{col("", "id")},
		},
		{
			name: "UPDATE with FROM",
			sql:  "UPDATE users u SET active = false FROM sessions s WHERE u.id = s.user_id AND s.expired = true",
			want: []FilteredColumn{col("users", "id"), col("sessions", "user_id"), col("sessions", "expired")},
		},
		{
			name: "DELETE with USING",
			sql:  "DELETE FROM sessions s USING users u WHERE s.user_id = u.id AND u.inactive = true",
			want: []FilteredColumn{col("sessions", "user_id"), col("users", "id"), col("users", "inactive")},
		},
		{
			name: "INSERT SELECT",
			sql:  "INSERT INTO archive SELECT * FROM events e WHERE e.created_at < '2020-01-01'",
			want: []FilteredColumn{col("events", "created_at")},
		},
		{
			name: "multiple statements",
			sql:  "SELECT * FROM a WHERE a.x = 1; DELETE FROM b WHERE b.y = 2",
			want: []FilteredColumn{col("a", "x"), col("b", "y")},
		},
		{
			name: "duplicates collapse",
			sql:  "SELECT * FROM t WHERE a = 1 OR a = 2 OR t.a = 3",
			want: []FilteredColumn{col("", "a"), col("t", "a")},
		},
		{
			name: "no filters",
			sql:  "SELECT * FROM t",
			want: []FilteredColumn{},
		},
		{
			name: "statements without filter semantics",
			sql:  "CREATE TABLE t (id int)",
			want: []FilteredColumn{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterColumns(t, tt.sql)
			if tt.ordered {
				assert.Equal(t, tt.want, got)
			} else {
				assert.ElementsMatch(t, tt.want, got)
			}
		})
	}
}

func TestExtractSimplePredicates(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		want    []Predicate
		ordered bool
	}{
		{
			name:    "simple integer conditions",
			sql:     "SELECT * FROM x WHERE y = 1 AND z = 2",
			want:    []Predicate{pred("y", "=", int64(1)), pred("z", "=", int64(2))},
			ordered: true,
		},
		{
			name:    "simple string conditions",
			sql:     "SELECT * FROM x WHERE y > '1' AND z ~* 'small'",
			want:    []Predicate{pred("y", ">", "1"), pred("z", "~*", "small")},
			ordered: true,
		},
		{
			name:    "array literal comparison",
			sql:     "SELECT * FROM x WHERE a = ANY('{1,2}') AND b <> ALL('{3}')",
			want:    []Predicate{pred("a", "=", "{1,2}"), pred("b", "<>", "{3}")},
			ordered: true,
		},
		{
			name:    "conditions with table",
			sql:     "SELECT * FROM x WHERE x.y = 'test' AND z >= 53",
			want:    []Predicate{pred("x.y", "=", "test"), pred("z", ">=", int64(53))},
			ordered: true,
		},
		{
			name: "conditions out of CTEs",
			sql:  "WITH a AS (SELECT * FROM x WHERE x.y = 10 AND x.z = 1) SELECT * FROM a WHERE b = 5",
			want: []Predicate{
				pred("b", "=", int64(5)),
				pred("x.y", "=", int64(10)),
				pred("x.z", "=", int64(1)),
			},
			ordered: true,
		},
		{
			name: "floats and BETWEEN",
			sql:  "SELECT * FROM x WHERE x.y = 5.3 AND z BETWEEN 5 AND 10",
			want: []Predicate{
				pred("x.y", "=", 5.3),
				pred("z", ">=", int64(5)),
				pred("z", "<=", int64(10)),
			},
			ordered: true,
		},
		{
			name:    "ignores typecasts",
			sql:     "SELECT * FROM x WHERE created_at > '2016-04-01'::date AND z = 10",
			want:    []Predicate{pred("z", "=", int64(10))},
			ordered: true,
		},
		{
			name:    "IS TRUE and IS NOT FALSE",
			sql:     "SELECT * FROM x WHERE a IS TRUE and b IS NOT FALSE",
			want:    []Predicate{pred("a", "IS", true), pred("b", "IS NOT", false)},
			ordered: true,
		},
		{
			name:    "IS NOT TRUE and IS FALSE",
			sql:     "SELECT * FROM x WHERE a IS NOT TRUE and b IS FALSE",
			want:    []Predicate{pred("a", "IS NOT", true), pred("b", "IS", false)},
			ordered: true,
		},
		{
			name:    "IS UNKNOWN yields nothing",
			sql:     "SELECT * FROM x WHERE a IS UNKNOWN",
			want:    []Predicate{},
			ordered: true,
		},
		{
			name:    "null tests",
			sql:     "SELECT * FROM x WHERE a IS NULL and b IS NOT NULL",
			want:    []Predicate{pred("a", "IS", "NULL"), pred("b", "IS NOT", "NULL")},
			ordered: true,
		},
		{
			name:    "integer IN conditions",
			sql:     "SELECT * FROM x WHERE a IN (1,2,3)",
			want:    []Predicate{pred("a", "IN", "(1,2,3)")},
			ordered: true,
		},
		{
			name:    "string IN conditions",
			sql:     "SELECT * FROM x WHERE a IN ('a','b','c')",
			want:    []Predicate{pred("a", "IN", "(a,b,c)")},
			ordered: true,
		},
		{
			name:    "NOT IN conditions",
			sql:     "SELECT * FROM x WHERE a NOT IN (1, 2)",
			want:    []Predicate{pred("a", "NOT IN", "(1,2)")},
			ordered: true,
		},
		{
			name:    "IN with a non-constant item",
			sql:     "SELECT * FROM x WHERE a IN (1, b)",
			want:    []Predicate{},
			ordered: true,
		},
		{
			name:    "constant on the left",
			sql:     "SELECT * FROM x WHERE 1 = y",
			want:    []Predicate{pred("y", "=", int64(1))},
			ordered: true,
		},
		{
			name:    "LIKE passes the operator name through",
			sql:     "SELECT * FROM x WHERE name LIKE 'abc%'",
			want:    []Predicate{pred("name", "~~", "abc%")},
			ordered: true,
		},
		{
			name:    "IS DISTINCT FROM",
			sql:     "SELECT * FROM x WHERE a IS DISTINCT FROM 1",
			want:    []Predicate{pred("a", "IS DISTINCT FROM", int64(1))},
			ordered: true,
		},
		{
			name:    "column compared with column",
			sql:     "SELECT * FROM x WHERE a = b",
			want:    []Predicate{},
			ordered: true,
		},
		{
			name:    "boolean and null literals are not decoded",
			sql:     "SELECT * FROM x WHERE a = true AND b = NULL",
			want:    []Predicate{},
			ordered: true,
		},
		{
			name:    "parameters are not literals",
			sql:     "SELECT * FROM x WHERE a = $1",
			want:    []Predicate{},
			ordered: true,
		},
		{
			name:    "NOT BETWEEN yields nothing",
			sql:     "SELECT * FROM x WHERE a NOT BETWEEN 1 AND 2",
			want:    []Predicate{},
			ordered: true,
		},
		{
			name: "join and sub-link predicates",
			sql: `SELECT * FROM orders o JOIN users u ON u.id = o.user_id AND u.region = 'eu'
				WHERE o.total > 100 AND o.id IN (SELECT order_id FROM refunds WHERE reason = 'fraud')`,
			want: []Predicate{
				pred("u.region", "=", "eu"),
				pred("o.total", ">", int64(100)),
				pred("reason", "=", "fraud"),
			},
		},
		{
			name: "exact duplicates collapse",
			sql:  "SELECT * FROM x WHERE a = 1 OR a = 1 OR a = 2",
			want: []Predicate{pred("a", "=", int64(1)), pred("a", "=", int64(2))},
		},
		{
			name: "DELETE",
			sql:  "DELETE FROM sessions WHERE expired_at < '2024-01-01' AND user_id = 42",
			want: []Predicate{pred("expired_at", "<", "2024-01-01"), pred("user_id", "=", int64(42))},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := simplePredicates(t, tt.sql)
			if tt.ordered {
				assert.Equal(t, tt.want, got)
			} else {
				assert.ElementsMatch(t, tt.want, got)
			}
		})
	}
}

func TestBetweenExpansion(t *testing.T) {
	for _, sql := range []string{
		"SELECT * FROM t WHERE c BETWEEN 1 AND 9",
		"DELETE FROM t WHERE c BETWEEN 1 AND 9",
		"SELECT * FROM u WHERE EXISTS (SELECT 1 FROM t WHERE c BETWEEN 1 AND 9)",
	} {
		t.Run(sql, func(t *testing.T) {
			assert.Equal(t, []Predicate{
				pred("c", ">=", int64(1)),
				pred("c", "<=", int64(9)),
			}, simplePredicates(t, sql))
		})
	}
}

func TestAliasTransparency(t *testing.T) {
	aliased := filterColumns(t, "SELECT * FROM t AS x WHERE x.c = 1")
	plain := filterColumns(t, "SELECT * FROM t WHERE t.c = 1")
	assert.Equal(t, plain, aliased)
	assert.Equal(t, []FilteredColumn{col("t", "c")}, aliased)
}

func TestColumnsDistributeOverAnd(t *testing.T) {
	a := "a.x = 1 AND (b.y > 2 OR c IS NULL)"
	b := "lower(d) = 'q' AND e IN (SELECT f FROM g WHERE g.h = 1)"

	left := filterColumns(t, "SELECT * FROM a, b WHERE "+a)
	right := filterColumns(t, "SELECT * FROM a, b WHERE "+b)
	both := filterColumns(t, "SELECT * FROM a, b WHERE "+a+" AND "+b)

	union := append(append([]FilteredColumn{}, left...), right...)
	assert.ElementsMatch(t, dedup(union), both)
}

func dedup(cols []FilteredColumn) []FilteredColumn {
	seen := make(map[FilteredColumn]bool)
	var out []FilteredColumn
	for _, c := range cols {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}

func TestExtractIsIdempotent(t *testing.T) {
	aliases, stmts := parse(t, `WITH r AS (SELECT * FROM refunds WHERE amount > 10)
		SELECT * FROM orders o JOIN r ON r.order_id = o.id
		WHERE o.state IN ('open', 'paid') AND o.created_at BETWEEN '2024-01-01' AND '2024-02-01'`)
	e := New(aliases)

	first, err := e.Extract(stmts)
	require.NoError(t, err)
	second, err := e.Extract(stmts)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	cols, err := e.ExtractFilteredColumns(stmts)
	require.NoError(t, err)
	assert.Equal(t, first.Columns, cols)

	preds, err := e.ExtractSimplePredicates(stmts)
	require.NoError(t, err)
	assert.Equal(t, first.Predicates, preds)
}

func TestMalformedColumnRef(t *testing.T) {
	stmts := []ast.Node{&ast.SelectStatement{
		Where: &ast.BinaryExpr{
			Kind:  ast.BinaryOp,
			Name:  "=",
			Left:  &ast.ColumnRef{},
			Right: &ast.Constant{Kind: ast.LiteralInteger, Int: 1},
		},
	}}

	_, err := New(nil).ExtractFilteredColumns(stmts)
	require.ErrorIs(t, err, ErrMalformedColumnRef)

	_, err = New(nil).ExtractSimplePredicates(stmts)
	require.ErrorIs(t, err, ErrMalformedColumnRef)

	nullTest := []ast.Node{&ast.DeleteStatement{Where: &ast.NullTest{Arg: &ast.ColumnRef{}}}}
	_, err = New(nil).ExtractSimplePredicates(nullTest)
	require.ErrorIs(t, err, ErrMalformedColumnRef)
}

func TestUnknownShapesAreDropped(t *testing.T) {
	stmts := []ast.Node{
		&ast.Unknown{Tag: "VacuumStmt"},
		&ast.SelectStatement{
			Where: &ast.BooleanExpr{Op: ast.BoolAnd, Args: []ast.Node{
				&ast.Unknown{Tag: "CaseExpr"},
				&ast.TypeCast{Arg: &ast.ColumnRef{Fields: []string{"hidden"}}},
				&ast.NullTest{Arg: &ast.ColumnRef{Fields: []string{"a"}}, Type: ast.IsNull},
			}},
		},
	}

	res, err := New(nil).Extract(stmts)
	require.NoError(t, err)
	assert.Equal(t, []FilteredColumn{col("", "a")}, res.Columns)
	assert.Equal(t, []Predicate{pred("a", "IS", "NULL")}, res.Predicates)
}

func TestDeeplyNestedConditions(t *testing.T) {
	const depth = 100000

	var where ast.Node = &ast.BinaryExpr{
		Kind:  ast.BinaryOp,
		Name:  "=",
		Left:  &ast.ColumnRef{Fields: []string{"leaf"}},
		Right: &ast.Constant{Kind: ast.LiteralInteger, Int: 1},
	}
	for i := 0; i < depth; i++ {
		where = &ast.BooleanExpr{Op: ast.BoolNot, Args: []ast.Node{where}}
	}

	var stmt ast.Node = &ast.SelectStatement{Where: where}
	for i := 0; i < 1000; i++ {
		stmt = &ast.SelectStatement{From: []ast.Node{&ast.RangeSubselect{Subquery: stmt}}}
	}

	res, err := New(nil).Extract([]ast.Node{stmt})
	require.NoError(t, err)
	assert.Equal(t, []FilteredColumn{col("", "leaf")}, res.Columns)
	assert.Equal(t, []Predicate{pred("leaf", "=", int64(1))}, res.Predicates)
}

func TestStaticResolver(t *testing.T) {
	_, stmts := parse(t, "SELECT * FROM x WHERE q.a = 1 AND r.b = 2")
	cols, err := New(alias.Static{"q": "public.things"}).ExtractFilteredColumns(stmts)
	require.NoError(t, err)
	assert.Equal(t, []FilteredColumn{col("public.things", "a"), col("r", "b")}, cols)
}

func TestAnalyzeSQL(t *testing.T) {
	res, err := AnalyzeSQL("SELECT * FROM users u WHERE u.id = 7")
	require.NoError(t, err)
	assert.Equal(t, []FilteredColumn{col("users", "id")}, res.Columns)
	assert.Equal(t, []Predicate{pred("u.id", "=", int64(7))}, res.Predicates)

	_, err = AnalyzeSQL("SELEC nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse error")
}

func TestFilteredColumnString(t *testing.T) {
	assert.Equal(t, "users.id", col("users", "id").String())
	assert.Equal(t, "id", col("", "id").String())
	assert.True(t, col("users", "id").Qualified())
	assert.False(t, col("", "id").Qualified())
	assert.Equal(t, "a IN (1,2)", pred("a", "IN", "(1,2)").String())
}
