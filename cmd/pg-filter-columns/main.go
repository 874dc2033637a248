// Command pg-filter-columns reports the columns and predicates SQL statements
// filter on.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nnaka2992/pg-filter-columns/internal/advisor"
	"github.com/nnaka2992/pg-filter-columns/internal/alias"
	"github.com/nnaka2992/pg-filter-columns/internal/ast"
	"github.com/nnaka2992/pg-filter-columns/internal/cachekey"
	"github.com/nnaka2992/pg-filter-columns/internal/config"
	"github.com/nnaka2992/pg-filter-columns/internal/filter"
	"github.com/nnaka2992/pg-filter-columns/internal/parser"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var version = "0.1.0"

const fileFlag = "file"

var errNoInput = errors.New("no SQL provided")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := buildCommand()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	var exitCode int
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		err := runAnalysis(cmd, args)
		if err != nil {
			exitCode = determineExitCode(err)
		}
		return err
	}

	if err := cmd.Execute(); err != nil {
		if exitCode == 0 {
			return 1 // flag parsing errors
		}
		return exitCode
	}

	return 0
}

func buildCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pg-filter-columns [SQL]",
		Short: "Report the columns and predicates PostgreSQL statements filter on",
		Long: `pg-filter-columns reads SQL from an argument, files or stdin and reports,
per statement, the columns used in WHERE and JOIN ON clauses and the simple
column-versus-literal predicates found there.

Settings may also come from PGFILTER_* environment variables or a YAML
config file (--config, or pg-filter-columns.yaml in the working directory).`,
		Version:      version,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
	}

	cmd.Flags().StringSliceP(fileFlag, "f", nil, "read SQL from file (repeatable)")
	config.RegisterFlags(cmd.Flags())

	return cmd
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
	if cfg.File != "" {
		logger.Debug("loaded config file", "path", cfg.File)
	}

	parsed, err := readInput(cmd, args, parser.NewParser())
	if err != nil {
		return err
	}
	logger.Debug("parsed input", "statements", len(parsed.Statements))

	var adv advisor.Advisor
	if cfg.Advise {
		adv = advisor.New()
	}

	output := Output{Results: make([]OutputResult, 0, len(parsed.Statements))}
	for i, stmt := range parsed.Statements {
		result, err := analyzeStatement(i, stmt, cfg, adv, logger)
		if err != nil {
			return err
		}
		output.add(result)
	}

	return writeOutput(cmd.OutOrStdout(), cfg.Output, output)
}

// readInput parses SQL from files, the argument or stdin, in that order
func readInput(cmd *cobra.Command, args []string, p parser.Parser) (*parser.ParseResult, error) {
	files, err := cmd.Flags().GetStringSlice(fileFlag)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		return p.ParseFiles(files)
	}

	if len(args) > 0 {
		return p.ParseSQL(args[0])
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		// Nothing is piped in
		if stat, err := f.Stat(); err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			_ = cmd.Usage()
			return nil, errNoInput
		}
	}

	parsed, err := p.ParseReader(in)
	if err != nil {
		return nil, err
	}
	if len(parsed.Statements) == 0 {
		_ = cmd.Usage()
		return nil, errNoInput
	}
	return parsed, nil
}

func analyzeStatement(index int, stmt parser.ParsedStatement, cfg *config.Config, adv advisor.Advisor, logger *slog.Logger) (OutputResult, error) {
	aliases := alias.BuildFromParseResult(stmt.AST)
	tables := aliases.Tables()

	extractor := filter.New(aliases, filter.WithLogger(logger.With("line", stmt.LineNumber)))
	res, err := extractor.Extract(ast.FromParseResult(stmt.AST))
	if err != nil {
		return OutputResult{}, fmt.Errorf("statement at line %d: %w", stmt.LineNumber, err)
	}

	out := OutputResult{
		Index:       index,
		SQL:         stmt.SQL,
		Source:      stmt.Source,
		LineNumber:  stmt.LineNumber,
		Fingerprint: stmt.Fingerprint,
		Tables:      tables,
	}

	if cfg.Columns() {
		out.Columns = res.Columns
		if len(res.Columns) > 0 {
			out.ColumnKey = cachekey.Format(cachekey.Columns(cfg.CacheKey, res.Columns))
		}
	}

	if cfg.Predicates() {
		out.Predicates = res.Predicates
		if len(res.Predicates) > 0 {
			out.PredicateKey = cachekey.Format(cachekey.Predicates(cfg.CacheKey, res.Predicates))
		}
	}

	if adv != nil {
		defaultTable := ""
		if len(tables) == 1 {
			defaultTable = tables[0]
		}

		advice, err := adv.Advise(res.Predicates, aliases, defaultTable)
		if err != nil {
			return OutputResult{}, fmt.Errorf("statement at line %d: %w", stmt.LineNumber, err)
		}

		// Qualifiers naming a CTE or subquery alias are not base tables
		out.Advice = lo.Filter(advice, func(a advisor.Advice, _ int) bool {
			return lo.Contains(tables, a.Table)
		})
	}

	logger.Debug("analyzed statement",
		"line", stmt.LineNumber,
		"columns", len(res.Columns),
		"predicates", len(res.Predicates),
		"advice", len(out.Advice))

	return out, nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func writeOutput(w io.Writer, format string, output Output) error {
	switch format {
	case config.OutputJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(output); err != nil {
			return fmt.Errorf("encoding JSON: %w", err)
		}
		return nil
	case config.OutputYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(output); err != nil {
			return fmt.Errorf("encoding YAML: %w", err)
		}
		return encoder.Close()
	default:
		return writeText(w, output)
	}
}

// writeText formats results as human-readable text
func writeText(w io.Writer, output Output) error {
	var sb strings.Builder

	for _, result := range output.Results {
		location := fmt.Sprintf("line %d", result.LineNumber)
		if result.Source != "" {
			location = fmt.Sprintf("%s:%d", result.Source, result.LineNumber)
		}
		fmt.Fprintf(&sb, "[%s] %s\n", location, result.SQL)

		if len(result.Tables) > 0 {
			fmt.Fprintf(&sb, "  Tables: %s\n", strings.Join(result.Tables, ", "))
		}
		if len(result.Columns) > 0 {
			columns := lo.Map(result.Columns, func(c filter.FilteredColumn, _ int) string { return c.String() })
			fmt.Fprintf(&sb, "  Columns: %s\n", strings.Join(columns, ", "))
		}
		if len(result.Predicates) > 0 {
			sb.WriteString("  Predicates:\n")
			for _, p := range result.Predicates {
				fmt.Fprintf(&sb, "    %s\n", p)
			}
		}
		if result.ColumnKey != "" {
			fmt.Fprintf(&sb, "  Column key: %s\n", result.ColumnKey)
		}
		if result.PredicateKey != "" {
			fmt.Fprintf(&sb, "  Cache key: %s\n", result.PredicateKey)
		}
		for _, a := range result.Advice {
			fmt.Fprintf(&sb, "  Suggested index (%s): %s\n", a.Kind, a.SQL)
			if a.Requires != "" {
				fmt.Fprintf(&sb, "    Requires: %s\n", a.Requires)
			}
		}
	}

	s := output.Summary
	fmt.Fprintf(&sb, "\nSummary: %d statements analyzed, %d filtered columns, %d predicates",
		s.TotalStatements, s.FilteredColumns, s.Predicates)
	if s.Advice > 0 {
		fmt.Fprintf(&sb, ", %d suggested indexes", s.Advice)
	}
	sb.WriteString("\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func determineExitCode(err error) int {
	if isParseError(err) {
		return 2
	}
	return 1
}

func isParseError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "parse error") ||
		strings.Contains(err.Error(), "syntax error"))
}

// Output structures for JSON/YAML

type Output struct {
	Summary OutputSummary  `json:"summary" yaml:"summary"`
	Results []OutputResult `json:"results" yaml:"results"`
}

func (o *Output) add(r OutputResult) {
	o.Results = append(o.Results, r)
	o.Summary.TotalStatements++
	o.Summary.FilteredColumns += len(r.Columns)
	o.Summary.Predicates += len(r.Predicates)
	o.Summary.Advice += len(r.Advice)
}

type OutputSummary struct {
	TotalStatements int `json:"total_statements" yaml:"total_statements"`
	FilteredColumns int `json:"filtered_columns" yaml:"filtered_columns"`
	Predicates      int `json:"predicates" yaml:"predicates"`
	Advice          int `json:"suggested_indexes" yaml:"suggested_indexes"`
}

type OutputResult struct {
	Index        int                     `json:"index" yaml:"index"`
	SQL          string                  `json:"sql" yaml:"sql"`
	Source       string                  `json:"source,omitempty" yaml:"source,omitempty"`
	LineNumber   int                     `json:"line_number" yaml:"line_number"`
	Fingerprint  string                  `json:"fingerprint" yaml:"fingerprint"`
	Tables       []string                `json:"tables" yaml:"tables"`
	Columns      []filter.FilteredColumn `json:"columns,omitempty" yaml:"columns,omitempty"`
	Predicates   []filter.Predicate      `json:"predicates,omitempty" yaml:"predicates,omitempty"`
	ColumnKey    string                  `json:"column_key,omitempty" yaml:"column_key,omitempty"`
	PredicateKey string                  `json:"predicate_key,omitempty" yaml:"predicate_key,omitempty"`
	Advice       []advisor.Advice        `json:"suggested_indexes,omitempty" yaml:"suggested_indexes,omitempty"`
}
