// Package filter extracts the columns a statement filters on and the simple
// comparison predicates found in its WHERE and JOIN ON clauses.
package filter

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/nnaka2992/pg-filter-columns/internal/alias"
	"github.com/nnaka2992/pg-filter-columns/internal/ast"
	"github.com/samber/lo"
)

// ErrMalformedColumnRef is returned when a column reference carries no fields.
// It indicates a parser contract violation, not an analysis edge case.
var ErrMalformedColumnRef = errors.New("column reference has no fields")

// FilteredColumn is a column referenced in a filtering position.
// Table is empty when the reference is unqualified.
type FilteredColumn struct {
	Table  string `json:"table,omitempty" yaml:"table,omitempty"`
	Column string `json:"column" yaml:"column"`
}

// Qualified reports whether the column has an owning table
func (c FilteredColumn) Qualified() bool {
	return c.Table != ""
}

func (c FilteredColumn) String() string {
	if c.Table == "" {
		return c.Column
	}
	return c.Table + "." + c.Column
}

// Predicate is a normalized `column operator literal` comparison.
// Value holds an int64, float64, string or bool.
type Predicate struct {
	Column   string `json:"column" yaml:"column"`
	Operator string `json:"operator" yaml:"operator"`
	Value    any    `json:"value" yaml:"value"`
}

func (p Predicate) String() string {
	return fmt.Sprintf("%s %s %v", p.Column, p.Operator, p.Value)
}

// Result holds both views produced by a single traversal
type Result struct {
	Columns    []FilteredColumn
	Predicates []Predicate
}

// Extractor extracts filter information from converted statements
type Extractor interface {
	// ExtractFilteredColumns returns the deduplicated filtered columns
	ExtractFilteredColumns(stmts []ast.Node) ([]FilteredColumn, error)

	// ExtractSimplePredicates returns the normalized simple predicates
	ExtractSimplePredicates(stmts []ast.Node) ([]Predicate, error)

	// Extract returns columns and predicates from one traversal
	Extract(stmts []ast.Node) (*Result, error)
}

// Option configures an Extractor
type Option func(*extractor)

// WithLogger sets the logger used to trace dropped nodes
func WithLogger(logger *slog.Logger) Option {
	return func(e *extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// extractor is the default Extractor
type extractor struct {
	resolver alias.Resolver
	logger   *slog.Logger
}

// New creates an Extractor resolving table aliases through resolver.
// A nil resolver leaves every qualifier unresolved.
func New(resolver alias.Resolver, opts ...Option) Extractor {
	if resolver == nil {
		resolver = alias.Static(nil)
	}

	e := &extractor{
		resolver: resolver,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExtractFilteredColumns walks stmts and returns the filtered columns
func (e *extractor) ExtractFilteredColumns(stmts []ast.Node) ([]FilteredColumn, error) {
	w := e.newWalker(false)
	if err := w.run(stmts); err != nil {
		return nil, err
	}
	return lo.Uniq(w.columns), nil
}

// ExtractSimplePredicates walks stmts and returns the normalized predicates
func (e *extractor) ExtractSimplePredicates(stmts []ast.Node) ([]Predicate, error) {
	w := e.newWalker(true)
	if err := w.run(stmts); err != nil {
		return nil, err
	}
	return lo.Uniq(w.predicates), nil
}

// Extract walks stmts once and returns both views
func (e *extractor) Extract(stmts []ast.Node) (*Result, error) {
	w := e.newWalker(true)
	if err := w.run(stmts); err != nil {
		return nil, err
	}
	return &Result{
		Columns:    lo.Uniq(w.columns),
		Predicates: lo.Uniq(w.predicates),
	}, nil
}

func (e *extractor) newWalker(predicates bool) *walker {
	return &walker{
		resolver:       e.resolver,
		logger:         e.logger,
		wantPredicates: predicates,
	}
}
