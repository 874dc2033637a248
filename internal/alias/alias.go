// Package alias maps range-table aliases in parsed statements to the tables
// they name.
package alias

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/samber/lo"
)

// Resolver maps a range-table alias to the canonical table name
type Resolver interface {
	// Resolve returns the table behind alias, and false when alias is unknown
	Resolve(alias string) (string, bool)
}

// Relation is a table reference split into its schema and relation name.
// Either part may itself contain a dot when it was quoted in the source.
type Relation struct {
	Schema string
	Name   string
}

// String returns the canonical table name, schema.name or name
func (r Relation) String() string {
	if r.Schema != "" {
		return r.Schema + "." + r.Name
	}
	return r.Name
}

// RelationResolver is implemented by resolvers that know how a canonical table
// name splits into schema and relation
type RelationResolver interface {
	// Relation returns the relation behind a canonical table name
	Relation(table string) (Relation, bool)
}

// Map is an alias map built from a set of statements. It is read-only once
// built and may be shared between goroutines.
type Map struct {
	aliases   map[string]string
	relations map[string]Relation
	tables    []string
	cteNames  []string
}

// Build walks stmts once and records every aliased table reference
func Build(stmts ...*pg_query.Node) *Map {
	b := &builder{
		m: &Map{
			aliases:   make(map[string]string),
			relations: make(map[string]Relation),
		},
		seenTables: make(map[string]bool),
		seenCTEs:   make(map[string]bool),
	}

	for _, stmt := range stmts {
		b.extractFromNode(stmt)
	}

	return b.m
}

// BuildFromParseResult builds a Map over all statements of a parse result
func BuildFromParseResult(result *pg_query.ParseResult) *Map {
	if result == nil {
		return Build()
	}

	stmts := make([]*pg_query.Node, 0, len(result.Stmts))
	for _, raw := range result.Stmts {
		if raw != nil && raw.Stmt != nil {
			stmts = append(stmts, raw.Stmt)
		}
	}
	return Build(stmts...)
}

// Resolve implements Resolver
func (m *Map) Resolve(alias string) (string, bool) {
	if m == nil {
		return "", false
	}
	table, ok := m.aliases[alias]
	return table, ok
}

// Tables returns the distinct base tables in first-seen order. References
// to CTE names are not base tables and are left out.
func (m *Map) Tables() []string {
	if m == nil {
		return nil
	}
	return lo.Without(m.tables, m.cteNames...)
}

// CTENames returns the names introduced by WITH clauses
func (m *Map) CTENames() []string {
	if m == nil {
		return nil
	}
	return m.cteNames
}

// Relation implements RelationResolver. The first relation seen under a
// canonical name wins.
func (m *Map) Relation(table string) (Relation, bool) {
	if m == nil {
		return Relation{}, false
	}
	rel, ok := m.relations[table]
	return rel, ok
}

// Static is a Resolver over a fixed mapping
type Static map[string]string

// Resolve implements Resolver
func (s Static) Resolve(alias string) (string, bool) {
	table, ok := s[alias]
	return table, ok
}

// builder collects aliases from AST nodes
type builder struct {
	m          *Map
	seenTables map[string]bool
	seenCTEs   map[string]bool
}

// extractFromNode recursively collects aliases from a node
func (b *builder) extractFromNode(node *pg_query.Node) {
	if node == nil {
		return
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_RangeVar:
		b.extractFromRangeVar(n.RangeVar)
	case *pg_query.Node_SelectStmt:
		b.extractFromSelectStmt(n.SelectStmt)
	case *pg_query.Node_UpdateStmt:
		b.extractFromUpdateStmt(n.UpdateStmt)
	case *pg_query.Node_DeleteStmt:
		b.extractFromDeleteStmt(n.DeleteStmt)
	case *pg_query.Node_InsertStmt:
		b.extractFromInsertStmt(n.InsertStmt)
	case *pg_query.Node_MergeStmt:
		b.extractFromMergeStmt(n.MergeStmt)
	case *pg_query.Node_JoinExpr:
		b.extractFromJoinExpr(n.JoinExpr)
	case *pg_query.Node_RangeSubselect:
		if n.RangeSubselect != nil {
			b.extractFromNode(n.RangeSubselect.Subquery)
		}
	case *pg_query.Node_SubLink:
		if n.SubLink != nil {
			b.extractFromNode(n.SubLink.Testexpr)
			b.extractFromNode(n.SubLink.Subselect)
		}
	case *pg_query.Node_CommonTableExpr:
		b.extractFromCommonTableExpr(n.CommonTableExpr)
	case *pg_query.Node_BoolExpr:
		if n.BoolExpr != nil {
			b.extractFromNodes(n.BoolExpr.Args)
		}
	case *pg_query.Node_AExpr:
		if n.AExpr != nil {
			b.extractFromNode(n.AExpr.Lexpr)
			b.extractFromNode(n.AExpr.Rexpr)
		}
	case *pg_query.Node_NullTest:
		if n.NullTest != nil {
			b.extractFromNode(n.NullTest.Arg)
		}
	case *pg_query.Node_BooleanTest:
		if n.BooleanTest != nil {
			b.extractFromNode(n.BooleanTest.Arg)
		}
	case *pg_query.Node_FuncCall:
		if n.FuncCall != nil {
			b.extractFromNodes(n.FuncCall.Args)
		}
	case *pg_query.Node_RowExpr:
		if n.RowExpr != nil {
			b.extractFromNodes(n.RowExpr.Args)
		}
	case *pg_query.Node_TypeCast:
		if n.TypeCast != nil {
			b.extractFromNode(n.TypeCast.Arg)
		}
	case *pg_query.Node_CaseExpr:
		if n.CaseExpr != nil {
			b.extractFromNode(n.CaseExpr.Arg)
			b.extractFromNodes(n.CaseExpr.Args)
			b.extractFromNode(n.CaseExpr.Defresult)
		}
	case *pg_query.Node_CaseWhen:
		if n.CaseWhen != nil {
			b.extractFromNode(n.CaseWhen.Expr)
			b.extractFromNode(n.CaseWhen.Result)
		}
	case *pg_query.Node_CoalesceExpr:
		if n.CoalesceExpr != nil {
			b.extractFromNodes(n.CoalesceExpr.Args)
		}
	case *pg_query.Node_ResTarget:
		if n.ResTarget != nil {
			b.extractFromNode(n.ResTarget.Val)
		}
	case *pg_query.Node_CreateTableAsStmt:
		if n.CreateTableAsStmt != nil {
			b.extractFromNode(n.CreateTableAsStmt.Query)
		}
	case *pg_query.Node_ViewStmt:
		if n.ViewStmt != nil {
			b.extractFromNode(n.ViewStmt.Query)
		}
	case *pg_query.Node_CopyStmt:
		if n.CopyStmt != nil {
			b.extractFromNode(n.CopyStmt.Query)
		}
	case *pg_query.Node_ExplainStmt:
		if n.ExplainStmt != nil {
			b.extractFromNode(n.ExplainStmt.Query)
		}
	case *pg_query.Node_RawStmt:
		if n.RawStmt != nil {
			b.extractFromNode(n.RawStmt.Stmt)
		}
	case *pg_query.Node_List:
		if n.List != nil {
			b.extractFromNodes(n.List.Items)
		}
	}
}

func (b *builder) extractFromNodes(nodes []*pg_query.Node) {
	for _, n := range nodes {
		b.extractFromNode(n)
	}
}

// extractFromRangeVar records the table and, when present, its alias
func (b *builder) extractFromRangeVar(rv *pg_query.RangeVar) {
	if rv == nil || rv.Relname == "" {
		return
	}

	rel := Relation{Schema: rv.Schemaname, Name: rv.Relname}
	table := rel.String()
	if !b.seenTables[table] {
		b.seenTables[table] = true
		b.m.tables = append(b.m.tables, table)
		b.m.relations[table] = rel
	}

	if rv.Alias != nil && rv.Alias.Aliasname != "" {
		b.m.aliases[rv.Alias.Aliasname] = table
	}
}

// extractFromSelectStmt collects aliases from SELECT statements
func (b *builder) extractFromSelectStmt(stmt *pg_query.SelectStmt) {
	if stmt == nil {
		return
	}

	b.extractFromWithClause(stmt.WithClause)

	// FROM clause
	b.extractFromNodes(stmt.FromClause)

	// WHERE clause sub-links
	b.extractFromNode(stmt.WhereClause)

	// Sub-selects in the target list
	b.extractFromNodes(stmt.TargetList)

	// UNION, INTERSECT, EXCEPT
	if stmt.Larg != nil {
		b.extractFromSelectStmt(stmt.Larg)
	}
	if stmt.Rarg != nil {
		b.extractFromSelectStmt(stmt.Rarg)
	}
}

// extractFromUpdateStmt collects aliases from UPDATE statements
func (b *builder) extractFromUpdateStmt(stmt *pg_query.UpdateStmt) {
	if stmt == nil {
		return
	}

	b.extractFromWithClause(stmt.WithClause)
	b.extractFromRangeVar(stmt.Relation)
	b.extractFromNodes(stmt.FromClause)
	b.extractFromNode(stmt.WhereClause)
}

// extractFromDeleteStmt collects aliases from DELETE statements
func (b *builder) extractFromDeleteStmt(stmt *pg_query.DeleteStmt) {
	if stmt == nil {
		return
	}

	b.extractFromWithClause(stmt.WithClause)
	b.extractFromRangeVar(stmt.Relation)
	b.extractFromNodes(stmt.UsingClause)
	b.extractFromNode(stmt.WhereClause)
}

// extractFromInsertStmt collects aliases from INSERT statements
func (b *builder) extractFromInsertStmt(stmt *pg_query.InsertStmt) {
	if stmt == nil {
		return
	}

	b.extractFromWithClause(stmt.WithClause)
	b.extractFromRangeVar(stmt.Relation)
	b.extractFromNode(stmt.SelectStmt)
}

// extractFromMergeStmt collects aliases from MERGE statements
func (b *builder) extractFromMergeStmt(stmt *pg_query.MergeStmt) {
	if stmt == nil {
		return
	}

	b.extractFromWithClause(stmt.WithClause)
	b.extractFromRangeVar(stmt.Relation)
	b.extractFromNode(stmt.SourceRelation)
	b.extractFromNode(stmt.JoinCondition)
}

// extractFromJoinExpr collects aliases from both sides of a JOIN
func (b *builder) extractFromJoinExpr(join *pg_query.JoinExpr) {
	if join == nil {
		return
	}

	b.extractFromNode(join.Larg)
	b.extractFromNode(join.Rarg)
	b.extractFromNode(join.Quals)
}

func (b *builder) extractFromWithClause(with *pg_query.WithClause) {
	if with == nil {
		return
	}
	b.extractFromNodes(with.Ctes)
}

// extractFromCommonTableExpr records the CTE name and walks its query
func (b *builder) extractFromCommonTableExpr(cte *pg_query.CommonTableExpr) {
	if cte == nil {
		return
	}

	if cte.Ctename != "" && !b.seenCTEs[cte.Ctename] {
		b.seenCTEs[cte.Ctename] = true
		b.m.cteNames = append(b.m.cteNames, cte.Ctename)
	}
	b.extractFromNode(cte.Ctequery)
}
