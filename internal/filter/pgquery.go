package filter

import (
	"fmt"

	"github.com/nnaka2992/pg-filter-columns/internal/alias"
	"github.com/nnaka2992/pg-filter-columns/internal/ast"
	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// AnalyzeParseResult builds the alias map for result, then extracts both
// views from its statements
func AnalyzeParseResult(result *pg_query.ParseResult, opts ...Option) (*Result, error) {
	aliases := alias.BuildFromParseResult(result)
	return New(aliases, opts...).Extract(ast.FromParseResult(result))
}

// AnalyzeSQL parses sql and runs AnalyzeParseResult on it
func AnalyzeSQL(sql string, opts ...Option) (*Result, error) {
	tree, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return AnalyzeParseResult(tree, opts...)
}
