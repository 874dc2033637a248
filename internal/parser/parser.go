// Package parser splits SQL input into statements and parses each one.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

const (
	// bomSize is the size of UTF-8 BOM in bytes
	bomSize = 3

	// initialLineNumber is the starting line number for SQL statements
	initialLineNumber = 1
)

// utf8BOM represents the UTF-8 byte order mark
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrEmptyPath is returned when ParseFile is given an empty path
var ErrEmptyPath = errors.New("filepath cannot be empty")

// ParsedStatement is a single statement with the metadata the filter
// report needs
type ParsedStatement struct {
	// AST is the raw parse tree from pg_query_go
	AST *pg_query.ParseResult

	// SQL is the statement text without its trailing semicolon
	SQL string

	// LineNumber is where the statement starts (1-based)
	LineNumber int

	// Fingerprint identifies the statement shape independent of literals
	Fingerprint string

	// Source is the file the statement came from, empty for inline SQL
	Source string
}

// Nodes returns the raw statement nodes of the parse tree
func (s ParsedStatement) Nodes() []*pg_query.Node {
	if s.AST == nil {
		return nil
	}

	nodes := make([]*pg_query.Node, 0, len(s.AST.Stmts))
	for _, raw := range s.AST.Stmts {
		if raw != nil && raw.Stmt != nil {
			nodes = append(nodes, raw.Stmt)
		}
	}
	return nodes
}

// ParseResult holds the statements of one or more inputs in order
type ParseResult struct {
	Statements []ParsedStatement
}

// Parser splits and parses SQL input
type Parser interface {
	// ParseSQL parses a SQL string
	ParseSQL(sql string) (*ParseResult, error)

	// ParseReader parses everything read from r
	ParseReader(r io.Reader) (*ParseResult, error)

	// ParseFile reads and parses SQL from a file
	ParseFile(filepath string) (*ParseResult, error)

	// ParseFiles reads and parses multiple SQL files
	ParseFiles(filepaths []string) (*ParseResult, error)
}

type parser struct{}

// NewParser creates a new parser instance
func NewParser() Parser {
	return &parser{}
}

// ParseSQL parses SQL string and returns parsed statements
func (p *parser) ParseSQL(sql string) (*ParseResult, error) {
	return p.parse(sql, "")
}

// ParseReader parses SQL read from r, typically stdin
func (p *parser) ParseReader(r io.Reader) (*ParseResult, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return p.parse(string(content), "")
}

// ParseFile reads and parses SQL from a file
func (p *parser) ParseFile(filepath string) (*ParseResult, error) {
	if filepath == "" {
		return nil, ErrEmptyPath
	}

	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", filepath, err)
	}

	return p.parse(string(content), filepath)
}

// ParseFiles reads and parses multiple SQL files, stopping at the first
// failure
func (p *parser) ParseFiles(filepaths []string) (*ParseResult, error) {
	if len(filepaths) == 0 {
		return emptyParseResult(), nil
	}

	var all []ParsedStatement
	for _, filepath := range filepaths {
		result, err := p.ParseFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse file %q: %w", filepath, err)
		}
		all = append(all, result.Statements...)
	}

	if all == nil {
		return emptyParseResult(), nil
	}
	return &ParseResult{Statements: all}, nil
}

func (p *parser) parse(sql, source string) (*ParseResult, error) {
	sql = cleanSQL(sql)
	if strings.TrimSpace(sql) == "" {
		return emptyParseResult(), nil
	}

	statements, err := pg_query.SplitWithScanner(sql, true)
	if err != nil {
		return nil, fmt.Errorf("failed to split SQL statements: %w", err)
	}

	if len(statements) == 0 {
		return emptyParseResult(), nil
	}

	return p.parseStatements(sql, source, statements)
}

// parseStatements parses each split statement and records where it starts
func (p *parser) parseStatements(originalSQL, source string, statements []string) (*ParseResult, error) {
	result := &ParseResult{
		Statements: make([]ParsedStatement, 0, len(statements)),
	}

	offset := 0
	for i, stmtSQL := range statements {
		idx := strings.Index(originalSQL[offset:], stmtSQL)
		if idx == -1 {
			continue
		}

		stmtStart := offset + idx
		lineNum := calculateLineNumber(originalSQL, stmtStart)

		tree, err := pg_query.Parse(stmtSQL)
		if err != nil {
			return nil, fmt.Errorf("parse error at line %d, statement %d: %w", lineNum, i+1, err)
		}

		fingerprint, err := pg_query.Fingerprint(stmtSQL)
		if err != nil {
			return nil, fmt.Errorf("fingerprint at line %d, statement %d: %w", lineNum, i+1, err)
		}

		result.Statements = append(result.Statements, ParsedStatement{
			AST:         tree,
			SQL:         stmtSQL,
			LineNumber:  lineNum,
			Fingerprint: fingerprint,
			Source:      source,
		})

		offset = stmtStart + len(stmtSQL)
	}

	return result, nil
}

func cleanSQL(sql string) string {
	return string(stripBOM([]byte(sql)))
}

func emptyParseResult() *ParseResult {
	return &ParseResult{Statements: []ParsedStatement{}}
}

// calculateLineNumber counts newlines before position
func calculateLineNumber(sql string, position int) int {
	if position <= 0 {
		return initialLineNumber
	}
	if position > len(sql) {
		position = len(sql)
	}
	return initialLineNumber + strings.Count(sql[:position], "\n")
}

// stripBOM removes the UTF-8 BOM if present
func stripBOM(content []byte) []byte {
	if len(content) >= bomSize && bytes.HasPrefix(content, utf8BOM) {
		return content[bomSize:]
	}
	return content
}
