package filter

import (
	"log/slog"

	"github.com/nnaka2992/pg-filter-columns/internal/ast"
)

// collect unpacks one statement into condition roots and nested statements
func (w *walker) collect(stmt ast.Node) {
	switch s := stmt.(type) {
	case *ast.SelectStatement:
		if s.Op != ast.SetOpNone {
			// UNION / INTERSECT / EXCEPT carry no FROM or WHERE of their own
			if s.Larg != nil {
				w.pushStatement(s.Larg)
			}
			if s.Rarg != nil {
				w.pushStatement(s.Rarg)
			}
			return
		}
		w.collectFromList(s.From)
		w.pushCondition(s.Where)
		w.collectCTEs(s.With)
	case *ast.UpdateStatement:
		w.collectFromList(s.From)
		w.pushCondition(s.Where)
		w.collectCTEs(s.With)
	case *ast.DeleteStatement:
		w.collectFromList(s.Using)
		w.pushCondition(s.Where)
		w.collectCTEs(s.With)
	case *ast.InsertStatement:
		w.pushStatement(s.Select)
		w.collectCTEs(s.With)
	default:
		w.logger.Debug("statement has no filter semantics", slog.String("shape", stmt.Shape().String()))
	}
}

// collectFromList queues FROM-list sub-selects and the ON conditions of its joins
func (w *walker) collectFromList(from []ast.Node) {
	for _, item := range from {
		if sub, ok := item.(*ast.RangeSubselect); ok {
			w.pushStatement(sub.Subquery)
		}
	}

	for _, item := range from {
		if join, ok := item.(*ast.JoinExpr); ok {
			for _, quals := range joinConditions(join) {
				w.pushCondition(quals)
			}
		}
	}
}

func (w *walker) collectCTEs(ctes []*ast.CommonTableExpr) {
	for _, cte := range ctes {
		if cte != nil {
			w.pushStatement(cte.Query)
		}
	}
}

// joinConditions flattens a join tree into its ON conditions. Sub-selects on
// either side of a join are not visited here.
func joinConditions(root *ast.JoinExpr) []ast.Node {
	var conditions []ast.Node

	var joins queue[*ast.JoinExpr]
	joins.push(root)
	for {
		join, ok := joins.pop()
		if !ok {
			break
		}

		if join.Quals != nil {
			conditions = append(conditions, join.Quals)
		}
		for _, side := range []ast.Node{join.Larg, join.Rarg} {
			if nested, ok := side.(*ast.JoinExpr); ok && nested != nil {
				joins.push(nested)
			}
		}
	}

	return conditions
}
