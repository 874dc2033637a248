package ast

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// FromParseResult converts every raw statement of a pg_query parse result
func FromParseResult(result *pg_query.ParseResult) []Node {
	if result == nil {
		return nil
	}

	stmts := make([]Node, 0, len(result.Stmts))
	for _, raw := range result.Stmts {
		if raw == nil || raw.Stmt == nil {
			continue
		}
		stmts = append(stmts, FromPgQuery(raw.Stmt))
	}
	return stmts
}

// FromPgQuery converts a pg_query node into the matching shape.
// A nil input yields a nil Node; unmodelled nodes become *Unknown.
func FromPgQuery(node *pg_query.Node) Node {
	if node == nil || node.Node == nil {
		return nil
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_RawStmt:
		if n.RawStmt == nil {
			return nil
		}
		return FromPgQuery(n.RawStmt.Stmt)
	case *pg_query.Node_SelectStmt:
		if n.SelectStmt == nil {
			return nil
		}
		return convertSelect(n.SelectStmt)
	case *pg_query.Node_UpdateStmt:
		if n.UpdateStmt == nil {
			return nil
		}
		return convertUpdate(n.UpdateStmt)
	case *pg_query.Node_DeleteStmt:
		if n.DeleteStmt == nil {
			return nil
		}
		return convertDelete(n.DeleteStmt)
	case *pg_query.Node_InsertStmt:
		if n.InsertStmt == nil {
			return nil
		}
		return convertInsert(n.InsertStmt)
	case *pg_query.Node_CommonTableExpr:
		if n.CommonTableExpr == nil {
			return nil
		}
		return convertCTE(n.CommonTableExpr)
	case *pg_query.Node_RangeSubselect:
		if n.RangeSubselect == nil {
			return nil
		}
		return convertRangeSubselect(n.RangeSubselect)
	case *pg_query.Node_RangeVar:
		if n.RangeVar == nil {
			return nil
		}
		return convertRangeVar(n.RangeVar)
	case *pg_query.Node_JoinExpr:
		if n.JoinExpr == nil {
			return nil
		}
		return convertJoin(n.JoinExpr)
	case *pg_query.Node_AExpr:
		if n.AExpr == nil {
			return nil
		}
		return convertAExpr(n.AExpr)
	case *pg_query.Node_BoolExpr:
		if n.BoolExpr == nil {
			return nil
		}
		return convertBoolExpr(n.BoolExpr)
	case *pg_query.Node_RowExpr:
		if n.RowExpr == nil {
			return nil
		}
		return &RowExpr{Args: convertList(n.RowExpr.Args)}
	case *pg_query.Node_ColumnRef:
		if n.ColumnRef == nil {
			return nil
		}
		return convertColumnRef(n.ColumnRef)
	case *pg_query.Node_NullTest:
		if n.NullTest == nil {
			return nil
		}
		return convertNullTest(n.NullTest)
	case *pg_query.Node_BooleanTest:
		if n.BooleanTest == nil {
			return nil
		}
		return convertBooleanTest(n.BooleanTest)
	case *pg_query.Node_FuncCall:
		if n.FuncCall == nil {
			return nil
		}
		return &FuncCall{
			Name: stringFields(n.FuncCall.Funcname),
			Args: convertList(n.FuncCall.Args),
		}
	case *pg_query.Node_SubLink:
		if n.SubLink == nil {
			return nil
		}
		return convertSubLink(n.SubLink)
	case *pg_query.Node_AConst:
		return convertConst(n.AConst)
	case *pg_query.Node_List:
		if n.List == nil {
			return &List{}
		}
		return &List{Items: convertList(n.List.Items)}
	case *pg_query.Node_TypeCast:
		if n.TypeCast == nil {
			return nil
		}
		tc := &TypeCast{Arg: FromPgQuery(n.TypeCast.Arg)}
		if n.TypeCast.TypeName != nil {
			tc.TypeName = stringFields(n.TypeCast.TypeName.Names)
		}
		return tc
	case *pg_query.Node_ParamRef:
		if n.ParamRef == nil {
			return nil
		}
		return &ParamRef{Number: int(n.ParamRef.Number)}
	default:
		return &Unknown{Tag: strings.TrimPrefix(fmt.Sprintf("%T", n), "*pg_query.Node_")}
	}
}

func convertList(nodes []*pg_query.Node) []Node {
	if len(nodes) == 0 {
		return nil
	}

	result := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if converted := FromPgQuery(n); converted != nil {
			result = append(result, converted)
		}
	}
	return result
}

// stringFields keeps the String and A_Star members of a name list
func stringFields(nodes []*pg_query.Node) []string {
	fields := make([]string, 0, len(nodes))
	for _, n := range nodes {
		switch f := n.GetNode().(type) {
		case *pg_query.Node_String_:
			if f.String_ != nil {
				fields = append(fields, f.String_.Sval)
			}
		case *pg_query.Node_AStar:
			fields = append(fields, Star)
		}
	}
	return fields
}

func convertSelect(stmt *pg_query.SelectStmt) *SelectStatement {
	if stmt == nil {
		return nil
	}

	sel := &SelectStatement{
		All:   stmt.All,
		From:  convertList(stmt.FromClause),
		Where: FromPgQuery(stmt.WhereClause),
		With:  convertWith(stmt.WithClause),
	}

	switch stmt.Op {
	case pg_query.SetOperation_SETOP_UNION:
		sel.Op = SetOpUnion
	case pg_query.SetOperation_SETOP_INTERSECT:
		sel.Op = SetOpIntersect
	case pg_query.SetOperation_SETOP_EXCEPT:
		sel.Op = SetOpExcept
	default:
		sel.Op = SetOpNone
	}

	if sel.Op != SetOpNone {
		sel.Larg = convertSelect(stmt.Larg)
		sel.Rarg = convertSelect(stmt.Rarg)
	}
	return sel
}

func convertUpdate(stmt *pg_query.UpdateStmt) *UpdateStatement {
	if stmt == nil {
		return nil
	}
	return &UpdateStatement{
		Relation: convertRangeVar(stmt.Relation),
		From:     convertList(stmt.FromClause),
		Where:    FromPgQuery(stmt.WhereClause),
		With:     convertWith(stmt.WithClause),
	}
}

func convertDelete(stmt *pg_query.DeleteStmt) *DeleteStatement {
	if stmt == nil {
		return nil
	}
	return &DeleteStatement{
		Relation: convertRangeVar(stmt.Relation),
		Using:    convertList(stmt.UsingClause),
		Where:    FromPgQuery(stmt.WhereClause),
		With:     convertWith(stmt.WithClause),
	}
}

func convertInsert(stmt *pg_query.InsertStmt) *InsertStatement {
	if stmt == nil {
		return nil
	}
	return &InsertStatement{
		Relation: convertRangeVar(stmt.Relation),
		Select:   FromPgQuery(stmt.SelectStmt),
		With:     convertWith(stmt.WithClause),
	}
}

func convertWith(with *pg_query.WithClause) []*CommonTableExpr {
	if with == nil {
		return nil
	}

	ctes := make([]*CommonTableExpr, 0, len(with.Ctes))
	for _, item := range with.Ctes {
		if cte := convertCTE(item.GetCommonTableExpr()); cte != nil {
			ctes = append(ctes, cte)
		}
	}
	return ctes
}

func convertCTE(cte *pg_query.CommonTableExpr) *CommonTableExpr {
	if cte == nil {
		return nil
	}
	return &CommonTableExpr{
		Name:  cte.Ctename,
		Query: FromPgQuery(cte.Ctequery),
	}
}

func convertRangeSubselect(rs *pg_query.RangeSubselect) *RangeSubselect {
	if rs == nil {
		return nil
	}

	sub := &RangeSubselect{
		Lateral:  rs.Lateral,
		Subquery: FromPgQuery(rs.Subquery),
	}
	if rs.Alias != nil {
		sub.Alias = rs.Alias.Aliasname
	}
	return sub
}

func convertRangeVar(rv *pg_query.RangeVar) *RangeVar {
	if rv == nil {
		return nil
	}

	r := &RangeVar{Schema: rv.Schemaname, Name: rv.Relname}
	if rv.Alias != nil {
		r.Alias = rv.Alias.Aliasname
	}
	return r
}

func convertJoin(join *pg_query.JoinExpr) *JoinExpr {
	if join == nil {
		return nil
	}
	return &JoinExpr{
		Larg:  FromPgQuery(join.Larg),
		Rarg:  FromPgQuery(join.Rarg),
		Quals: FromPgQuery(join.Quals),
	}
}

var binaryKinds = map[pg_query.A_Expr_Kind]BinaryKind{
	pg_query.A_Expr_Kind_AEXPR_OP:              BinaryOp,
	pg_query.A_Expr_Kind_AEXPR_OP_ANY:          BinaryOpAny,
	pg_query.A_Expr_Kind_AEXPR_OP_ALL:          BinaryOpAll,
	pg_query.A_Expr_Kind_AEXPR_DISTINCT:        BinaryDistinct,
	pg_query.A_Expr_Kind_AEXPR_NOT_DISTINCT:    BinaryNotDistinct,
	pg_query.A_Expr_Kind_AEXPR_NULLIF:          BinaryNullIf,
	pg_query.A_Expr_Kind_AEXPR_IN:              BinaryIn,
	pg_query.A_Expr_Kind_AEXPR_LIKE:            BinaryLike,
	pg_query.A_Expr_Kind_AEXPR_ILIKE:           BinaryILike,
	pg_query.A_Expr_Kind_AEXPR_SIMILAR:         BinarySimilar,
	pg_query.A_Expr_Kind_AEXPR_BETWEEN:         BinaryBetween,
	pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN:     BinaryNotBetween,
	pg_query.A_Expr_Kind_AEXPR_BETWEEN_SYM:     BinaryBetweenSym,
	pg_query.A_Expr_Kind_AEXPR_NOT_BETWEEN_SYM: BinaryNotBetweenSym,
}

func convertAExpr(expr *pg_query.A_Expr) *BinaryExpr {
	if expr == nil {
		return nil
	}

	// Qualified operator names (OPERATOR(pg_catalog.=)) keep only the symbol
	name := ""
	if names := stringFields(expr.Name); len(names) > 0 {
		name = names[len(names)-1]
	}

	return &BinaryExpr{
		Kind:  binaryKinds[expr.Kind],
		Name:  name,
		Left:  FromPgQuery(expr.Lexpr),
		Right: FromPgQuery(expr.Rexpr),
	}
}

func convertBoolExpr(expr *pg_query.BoolExpr) *BooleanExpr {
	if expr == nil {
		return nil
	}

	b := &BooleanExpr{Args: convertList(expr.Args)}
	switch expr.Boolop {
	case pg_query.BoolExprType_OR_EXPR:
		b.Op = BoolOr
	case pg_query.BoolExprType_NOT_EXPR:
		b.Op = BoolNot
	default:
		b.Op = BoolAnd
	}
	return b
}

func convertColumnRef(ref *pg_query.ColumnRef) *ColumnRef {
	if ref == nil {
		return nil
	}
	return &ColumnRef{Fields: stringFields(ref.Fields)}
}

func convertNullTest(test *pg_query.NullTest) *NullTest {
	if test == nil {
		return nil
	}

	nt := &NullTest{Arg: FromPgQuery(test.Arg), Type: IsNull}
	if test.Nulltesttype == pg_query.NullTestType_IS_NOT_NULL {
		nt.Type = IsNotNull
	}
	return nt
}

var boolTestTypes = map[pg_query.BoolTestType]BoolTestType{
	pg_query.BoolTestType_IS_TRUE:        IsTrue,
	pg_query.BoolTestType_IS_NOT_TRUE:    IsNotTrue,
	pg_query.BoolTestType_IS_FALSE:       IsFalse,
	pg_query.BoolTestType_IS_NOT_FALSE:   IsNotFalse,
	pg_query.BoolTestType_IS_UNKNOWN:     IsUnknown,
	pg_query.BoolTestType_IS_NOT_UNKNOWN: IsNotUnknown,
}

func convertBooleanTest(test *pg_query.BooleanTest) *BooleanTest {
	if test == nil {
		return nil
	}

	bt := &BooleanTest{Arg: FromPgQuery(test.Arg), Type: IsUnknown}
	if t, ok := boolTestTypes[test.Booltesttype]; ok {
		bt.Type = t
	}
	return bt
}

var subLinkTypes = map[pg_query.SubLinkType]SubLinkType{
	pg_query.SubLinkType_EXISTS_SUBLINK:     ExistsSubLink,
	pg_query.SubLinkType_ALL_SUBLINK:        AllSubLink,
	pg_query.SubLinkType_ANY_SUBLINK:        AnySubLink,
	pg_query.SubLinkType_ROWCOMPARE_SUBLINK: RowCompareSubLink,
	pg_query.SubLinkType_EXPR_SUBLINK:       ExprSubLink,
	pg_query.SubLinkType_MULTIEXPR_SUBLINK:  MultiExprSubLink,
	pg_query.SubLinkType_ARRAY_SUBLINK:      ArraySubLink,
	pg_query.SubLinkType_CTE_SUBLINK:        CTESubLink,
}

func convertSubLink(link *pg_query.SubLink) *SubLink {
	if link == nil {
		return nil
	}
	return &SubLink{
		Type:      subLinkTypes[link.SubLinkType],
		TestExpr:  FromPgQuery(link.Testexpr),
		Subselect: FromPgQuery(link.Subselect),
	}
}

func convertConst(c *pg_query.A_Const) *Constant {
	if c == nil || c.Isnull {
		return &Constant{Kind: LiteralNull}
	}

	switch v := c.Val.(type) {
	case *pg_query.A_Const_Sval:
		return &Constant{Kind: LiteralString, Text: v.Sval.GetSval()}
	case *pg_query.A_Const_Ival:
		return &Constant{Kind: LiteralInteger, Int: int64(v.Ival.GetIval())}
	case *pg_query.A_Const_Fval:
		return &Constant{Kind: LiteralFloat, Text: v.Fval.GetFval()}
	case *pg_query.A_Const_Boolval:
		return &Constant{Kind: LiteralBoolean, Bool: v.Boolval.GetBoolval()}
	case *pg_query.A_Const_Bsval:
		return &Constant{Kind: LiteralBitString, Text: v.Bsval.GetBsval()}
	default:
		return &Constant{Kind: LiteralNull}
	}
}
