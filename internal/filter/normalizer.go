package filter

import (
	"strconv"
	"strings"

	"github.com/nnaka2992/pg-filter-columns/internal/ast"
	"github.com/samber/lo"
)

// Operators emitted for shapes whose parse-tree name is not the one callers
// expect. IS [NOT] DISTINCT FROM and NOT IN are spelled out instead of passing
// through the "=" and "<>" the parser records for them, which would read as
// plain equality and inequality.
const (
	operatorIn              = "IN"
	operatorNotIn           = "NOT IN"
	operatorGreaterOrEqual  = ">="
	operatorLessOrEqual     = "<="
	operatorDistinct        = "IS DISTINCT FROM"
	operatorNotDistinct     = "IS NOT DISTINCT FROM"
	notEqualOperatorName    = "<>"
	betweenOperatorName     = "between"
	inListOpen, inListClose = "(", ")"
)

// normalize turns a binary expression into zero, one or two predicates.
// Anything that is not a plain column compared with plain constants, such as
// a typecast literal, yields nothing.
func normalize(expr *ast.BinaryExpr) ([]Predicate, error) {
	switch {
	case expr.Kind == ast.BinaryIn:
		return normalizeInList(expr)
	case strings.EqualFold(expr.Name, betweenOperatorName):
		return normalizeBetween(expr)
	}

	var operator string
	switch expr.Kind {
	case ast.BinaryOp, ast.BinaryOpAny, ast.BinaryOpAll, ast.BinaryLike, ast.BinaryILike:
		operator = expr.Name
	case ast.BinaryDistinct:
		operator = operatorDistinct
	case ast.BinaryNotDistinct:
		operator = operatorNotDistinct
	default:
		return nil, nil
	}

	ref, value, ok := columnAndConstant(expr.Left, expr.Right)
	if !ok {
		return nil, nil
	}

	path, err := columnPath(ref)
	if err != nil {
		return nil, err
	}
	return []Predicate{{Column: path, Operator: operator, Value: value}}, nil
}

// columnAndConstant accepts the two operands in either order as long as one
// is a column reference and the other a decodable constant
func columnAndConstant(left, right ast.Node) (*ast.ColumnRef, any, bool) {
	if ref, ok := left.(*ast.ColumnRef); ok {
		if c, ok := right.(*ast.Constant); ok {
			value, ok := decodeLiteral(c)
			return ref, value, ok
		}
		return nil, nil, false
	}

	if ref, ok := right.(*ast.ColumnRef); ok {
		if c, ok := left.(*ast.Constant); ok {
			value, ok := decodeLiteral(c)
			return ref, value, ok
		}
	}
	return nil, nil, false
}

// normalizeInList handles `col IN (v1, v2, ...)`
func normalizeInList(expr *ast.BinaryExpr) ([]Predicate, error) {
	ref, ok := expr.Left.(*ast.ColumnRef)
	if !ok {
		return nil, nil
	}
	values, ok := constantList(expr.Right)
	if !ok || len(values) == 0 {
		return nil, nil
	}

	path, err := columnPath(ref)
	if err != nil {
		return nil, err
	}

	operator := operatorIn
	if expr.Name == notEqualOperatorName {
		operator = operatorNotIn
	}

	rendered := lo.Map(values, func(v any, _ int) string {
		return formatLiteral(v)
	})
	return []Predicate{{
		Column:   path,
		Operator: operator,
		Value:    inListOpen + strings.Join(rendered, ",") + inListClose,
	}}, nil
}

// normalizeBetween expands `col BETWEEN lo AND hi` into two range predicates
func normalizeBetween(expr *ast.BinaryExpr) ([]Predicate, error) {
	ref, ok := expr.Left.(*ast.ColumnRef)
	if !ok {
		return nil, nil
	}
	bounds, ok := constantList(expr.Right)
	if !ok || len(bounds) != 2 {
		return nil, nil
	}

	path, err := columnPath(ref)
	if err != nil {
		return nil, err
	}
	return []Predicate{
		{Column: path, Operator: operatorGreaterOrEqual, Value: bounds[0]},
		{Column: path, Operator: operatorLessOrEqual, Value: bounds[1]},
	}, nil
}

// constantList decodes a List operand whose every item is a decodable constant
func constantList(n ast.Node) ([]any, bool) {
	list, ok := n.(*ast.List)
	if !ok {
		return nil, false
	}

	values := make([]any, 0, len(list.Items))
	for _, item := range list.Items {
		c, ok := item.(*ast.Constant)
		if !ok {
			return nil, false
		}
		value, ok := decodeLiteral(c)
		if !ok {
			return nil, false
		}
		values = append(values, value)
	}
	return values, true
}

// decodeLiteral decodes a constant by its declared kind. Only string, integer
// and float literals decode; every other kind is absent.
func decodeLiteral(c *ast.Constant) (any, bool) {
	switch c.Kind {
	case ast.LiteralString:
		return c.Text, true
	case ast.LiteralInteger:
		return c.Int, true
	case ast.LiteralFloat:
		f, err := strconv.ParseFloat(c.Text, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

// formatLiteral renders a decoded literal for an IN-list tuple, without quoting
func formatLiteral(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
