package filter

import (
	"log/slog"

	"github.com/nnaka2992/pg-filter-columns/internal/alias"
	"github.com/nnaka2992/pg-filter-columns/internal/ast"
)

// walker holds the state of one extraction call. Every iteration unpacks at
// most one statement and classifies at most one condition item; the walk ends
// when both queues are empty.
type walker struct {
	resolver       alias.Resolver
	logger         *slog.Logger
	wantPredicates bool

	statements queue[ast.Node]
	conditions queue[ast.Node]

	columns    []FilteredColumn
	predicates []Predicate
}

func (w *walker) run(stmts []ast.Node) error {
	for _, stmt := range stmts {
		if stmt != nil {
			w.statements.push(stmt)
		}
	}

	for !w.statements.empty() || !w.conditions.empty() {
		if stmt, ok := w.statements.pop(); ok {
			w.collect(stmt)
		}

		if item, ok := w.conditions.pop(); ok {
			if err := w.classify(item); err != nil {
				return err
			}
		}
	}

	w.logger.Debug("filter walk finished",
		slog.Int("columns", len(w.columns)),
		slog.Int("predicates", len(w.predicates)))
	return nil
}

func (w *walker) pushCondition(n ast.Node) {
	if n != nil {
		w.conditions.push(n)
	}
}

func (w *walker) pushStatement(n ast.Node) {
	if n != nil {
		w.statements.push(n)
	}
}

func (w *walker) pushConditions(nodes []ast.Node) {
	for _, n := range nodes {
		w.pushCondition(n)
	}
}
