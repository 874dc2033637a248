package filter

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/nnaka2992/pg-filter-columns/internal/ast"
)

// nullTestOperators maps a null test's polarity to its predicate operator
var nullTestOperators = map[ast.NullTestType]string{
	ast.IsNull:    "IS",
	ast.IsNotNull: "IS NOT",
}

// boolTestPredicates maps a boolean test's polarity to operator and value.
// IS [NOT] UNKNOWN has no boolean literal and yields no predicate.
var boolTestPredicates = map[ast.BoolTestType]struct {
	operator string
	value    bool
}{
	ast.IsTrue:     {"IS", true},
	ast.IsNotTrue:  {"IS NOT", true},
	ast.IsFalse:    {"IS", false},
	ast.IsNotFalse: {"IS NOT", false},
}

// classify handles one condition item: it records a result, queues the
// item's children, or drops it
func (w *walker) classify(item ast.Node) error {
	switch n := item.(type) {
	case *ast.BinaryExpr:
		if w.wantPredicates {
			preds, err := normalize(n)
			if err != nil {
				return err
			}
			w.predicates = append(w.predicates, preds...)
		}
		w.pushOperand(n.Left)
		w.pushOperand(n.Right)

	case *ast.BooleanExpr:
		w.pushConditions(n.Args)

	case *ast.RowExpr:
		w.pushConditions(n.Args)

	case *ast.ColumnRef:
		col, err := w.resolveColumn(n)
		if err != nil {
			return err
		}
		w.columns = append(w.columns, col)

	case *ast.NullTest:
		w.pushCondition(n.Arg)
		if ref, ok := n.Arg.(*ast.ColumnRef); ok && w.wantPredicates {
			path, err := columnPath(ref)
			if err != nil {
				return err
			}
			w.predicates = append(w.predicates, Predicate{
				Column:   path,
				Operator: nullTestOperators[n.Type],
				Value:    "NULL",
			})
		}

	case *ast.BooleanTest:
		w.pushCondition(n.Arg)
		if ref, ok := n.Arg.(*ast.ColumnRef); ok && w.wantPredicates {
			path, err := columnPath(ref)
			if err != nil {
				return err
			}
			if p, ok := boolTestPredicates[n.Type]; ok {
				w.predicates = append(w.predicates, Predicate{
					Column:   path,
					Operator: p.operator,
					Value:    p.value,
				})
			}
		}

	case *ast.FuncCall:
		// FIXME: the call itself should be recorded so it can be matched
		// against expression indexes; only its arguments are walked today
		w.pushConditions(n.Args)

	case *ast.SubLink:
		w.pushCondition(n.TestExpr)
		w.pushStatement(n.Subselect)

	default:
		if item != nil {
			w.logger.Debug("dropping condition item", slog.String("shape", item.Shape().String()))
		}
	}

	return nil
}

// pushOperand queues an operand of a binary expression unless it is a bare
// constant. List operands contribute their non-constant items.
func (w *walker) pushOperand(operand ast.Node) {
	switch o := operand.(type) {
	case nil:
	case *ast.Constant:
	case *ast.List:
		for _, item := range o.Items {
			if _, isConst := item.(*ast.Constant); !isConst {
				w.pushCondition(item)
			}
		}
	default:
		w.conditions.push(operand)
	}
}

// resolveColumn decodes a column reference into its owning table and column.
// The qualifier is resolved through the alias map and kept as-is when unknown.
func (w *walker) resolveColumn(ref *ast.ColumnRef) (FilteredColumn, error) {
	if len(ref.Fields) == 0 {
		return FilteredColumn{}, ErrMalformedColumnRef
	}

	col := FilteredColumn{Column: ref.Fields[len(ref.Fields)-1]}
	if len(ref.Fields) >= 2 {
		table := ref.Fields[len(ref.Fields)-2]
		if canonical, ok := w.resolver.Resolve(table); ok {
			table = canonical
		}
		col.Table = table
	}
	return col, nil
}

// columnPath joins the fields of a column reference with dots
func columnPath(ref *ast.ColumnRef) (string, error) {
	if len(ref.Fields) == 0 {
		return "", fmt.Errorf("building predicate: %w", ErrMalformedColumnRef)
	}
	return strings.Join(ref.Fields, "."), nil
}
