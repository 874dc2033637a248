// Package advisor suggests indexes that would serve the predicates a
// statement filters on.
package advisor

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/nnaka2992/pg-filter-columns/internal/alias"
	"github.com/nnaka2992/pg-filter-columns/internal/filter"
	"github.com/nnaka2992/pg-filter-columns/internal/ident"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var rulesYAML []byte

// maxIdentifierLength is NAMEDATALEN - 1
const maxIdentifierLength = 63

// nullValue is the value filter uses for IS [NOT] NULL predicates
const nullValue = "NULL"

// Category groups predicate operators by the index they can use
type Category string

const (
	CategoryNone     Category = ""
	CategoryEquality Category = "equality"
	CategoryRange    Category = "range"
	CategoryPattern  Category = "pattern"
	CategoryNull     Category = "null"
)

// Kind is the kind of index suggested
type Kind string

const (
	KindBTree   Kind = "btree"
	KindTrigram Kind = "trigram"
	KindPartial Kind = "partial"
)

// Advice is a single index suggestion
type Advice struct {
	Table       string   `json:"table" yaml:"table"`
	Kind        Kind     `json:"kind" yaml:"kind"`
	Columns     []string `json:"columns" yaml:"columns"`
	Description string   `json:"description" yaml:"description"`
	Requires    string   `json:"requires,omitempty" yaml:"requires,omitempty"`
	SQL         string   `json:"sql" yaml:"sql"`
}

// ErrNoTemplate is returned when the rules define no template for an index kind
var ErrNoTemplate = errors.New("no index template for kind")

// Advisor turns predicates into index suggestions
type Advisor interface {
	// Category returns the operator category of p, CategoryNone if no index
	// kind serves it
	Category(p filter.Predicate) Category

	// Advise groups preds by owning table and suggests indexes for each.
	// Qualifiers are resolved through resolver; unqualified columns belong
	// to defaultTable and are skipped when it is empty.
	Advise(preds []filter.Predicate, resolver alias.Resolver, defaultTable string) ([]Advice, error)
}

type rulesRoot struct {
	Categories []categoryDef `yaml:"categories"`
	Indexes    []indexDef    `yaml:"indexes"`
}

type categoryDef struct {
	Name             Category `yaml:"name"`
	Operators        []string `yaml:"operators"`
	BooleanOperators []string `yaml:"boolean_operators,omitempty"`
	NullOperators    []string `yaml:"null_operators,omitempty"`
}

type indexDef struct {
	Kind         Kind   `yaml:"kind"`
	Description  string `yaml:"description"`
	Requires     string `yaml:"requires,omitempty"`
	NameTemplate string `yaml:"name_template"`
	SQLTemplate  string `yaml:"sql_template"`
}

// indexTemplate is a parsed index definition
type indexTemplate struct {
	def  indexDef
	name *template.Template
	sql  *template.Template
}

// indexData is what name and SQL templates are executed against
type indexData struct {
	BaseName    string
	ColumnNames []string
	IndexName   string
	Table       string
	Columns     []string
	Condition   string
}

var funcMap = template.FuncMap{
	"join": strings.Join,
}

type advisor struct {
	categories []categoryDef
	templates  map[Kind]indexTemplate
}

var defaultAdvisor *advisor

func init() {
	a, err := load(rulesYAML)
	if err != nil {
		panic(fmt.Sprintf("failed to parse rules.yaml: %v", err))
	}
	defaultAdvisor = a
}

// New returns an advisor using the built-in rules
func New() Advisor {
	return defaultAdvisor
}

// Load builds an advisor from a rules document in the rules.yaml format
func Load(data []byte) (Advisor, error) {
	return load(data)
}

func load(data []byte) (*advisor, error) {
	var root rulesRoot
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}

	a := &advisor{
		categories: root.Categories,
		templates:  make(map[Kind]indexTemplate, len(root.Indexes)),
	}
	for _, def := range root.Indexes {
		name, err := template.New(string(def.Kind) + "-name").Funcs(funcMap).Parse(def.NameTemplate)
		if err != nil {
			return nil, fmt.Errorf("parsing %s name template: %w", def.Kind, err)
		}
		sql, err := template.New(string(def.Kind) + "-sql").Funcs(funcMap).Parse(def.SQLTemplate)
		if err != nil {
			return nil, fmt.Errorf("parsing %s sql template: %w", def.Kind, err)
		}
		a.templates[def.Kind] = indexTemplate{def: def, name: name, sql: sql}
	}
	return a, nil
}

// Category returns the first category listing the predicate's operator
func (a *advisor) Category(p filter.Predicate) Category {
	_, isBool := p.Value.(bool)
	isNull := p.Value == nullValue

	for _, c := range a.categories {
		switch {
		case lo.Contains(c.Operators, p.Operator):
			return c.Name
		case isBool && lo.Contains(c.BooleanOperators, p.Operator):
			return c.Name
		case isNull && lo.Contains(c.NullOperators, p.Operator):
			return c.Name
		}
	}
	return CategoryNone
}

// tableColumns collects the columns of one table by category
type tableColumns struct {
	table    string
	relation alias.Relation
	equality []string
	ranges   []string
	patterns []string
	nulls    []nullTest
}

type nullTest struct {
	column    string
	condition string
}

// Advise implements Advisor
func (a *advisor) Advise(preds []filter.Predicate, resolver alias.Resolver, defaultTable string) ([]Advice, error) {
	if resolver == nil {
		resolver = alias.Static(nil)
	}

	var groups []*tableColumns
	byTable := make(map[string]*tableColumns)

	for _, p := range preds {
		category := a.Category(p)
		if category == CategoryNone {
			continue
		}

		table, column := owner(p.Column, resolver, defaultTable)
		if table == "" || column == "" || column == "*" {
			continue
		}

		g, ok := byTable[table]
		if !ok {
			g = &tableColumns{table: table, relation: relationOf(table, resolver)}
			byTable[table] = g
			groups = append(groups, g)
		}

		switch category {
		case CategoryEquality:
			g.equality = append(g.equality, column)
		case CategoryRange:
			g.ranges = append(g.ranges, column)
		case CategoryPattern:
			g.patterns = append(g.patterns, column)
		case CategoryNull:
			g.nulls = append(g.nulls, nullTest{column: column, condition: p.Operator + " " + nullValue})
		}
	}

	var advice []Advice
	for _, g := range groups {
		suggestions, err := a.adviseTable(g)
		if err != nil {
			return nil, err
		}
		advice = append(advice, suggestions...)
	}
	return advice, nil
}

func (a *advisor) adviseTable(g *tableColumns) ([]Advice, error) {
	var advice []Advice

	// Equality columns lead; a range scan can only use one trailing column
	columns := lo.Uniq(g.equality)
	if ranges := lo.Without(lo.Uniq(g.ranges), columns...); len(ranges) > 0 {
		columns = append(columns, ranges[0])
	}
	if len(columns) > 0 {
		adv, err := a.render(KindBTree, g, columns, "")
		if err != nil {
			return nil, err
		}
		advice = append(advice, adv)
	}

	for _, column := range lo.Uniq(g.patterns) {
		adv, err := a.render(KindTrigram, g, []string{column}, "")
		if err != nil {
			return nil, err
		}
		advice = append(advice, adv)
	}

	for _, nt := range lo.Uniq(g.nulls) {
		adv, err := a.render(KindPartial, g, []string{nt.column}, nt.condition)
		if err != nil {
			return nil, err
		}
		advice = append(advice, adv)
	}

	return advice, nil
}

func (a *advisor) render(kind Kind, g *tableColumns, columns []string, condition string) (Advice, error) {
	tmpl, ok := a.templates[kind]
	if !ok {
		return Advice{}, fmt.Errorf("%w: %s", ErrNoTemplate, kind)
	}

	data := indexData{
		BaseName:    strings.ReplaceAll(g.table, ".", "_"),
		ColumnNames: columns,
		Table:       ident.QuoteQualified(g.relation.Schema, g.relation.Name),
		Columns:     lo.Map(columns, func(c string, _ int) string { return ident.Quote(c) }),
		Condition:   condition,
	}

	var name bytes.Buffer
	if err := tmpl.name.Execute(&name, data); err != nil {
		return Advice{}, fmt.Errorf("rendering %s index name: %w", kind, err)
	}
	data.IndexName = ident.Quote(truncateIdentifier(name.String()))

	var sql bytes.Buffer
	if err := tmpl.sql.Execute(&sql, data); err != nil {
		return Advice{}, fmt.Errorf("rendering %s index: %w", kind, err)
	}

	return Advice{
		Table:       g.table,
		Kind:        kind,
		Columns:     columns,
		Description: tmpl.def.Description,
		Requires:    tmpl.def.Requires,
		SQL:         sql.String(),
	}, nil
}

// owner splits a dotted column path into its table and column. The
// qualifier is resolved as an alias first and used verbatim otherwise.
func owner(path string, resolver alias.Resolver, defaultTable string) (string, string) {
	idx := strings.LastIndex(path, ".")
	if idx < 0 {
		return defaultTable, path
	}

	qualifier, column := path[:idx], path[idx+1:]
	if table, ok := resolver.Resolve(qualifier); ok {
		return table, column
	}
	return qualifier, column
}

// relationOf splits a canonical table name into schema and relation. Names
// the resolver knows keep the split recorded at parse time; any other name is
// split at its last dot.
func relationOf(table string, resolver alias.Resolver) alias.Relation {
	if rr, ok := resolver.(alias.RelationResolver); ok {
		if rel, ok := rr.Relation(table); ok {
			return rel
		}
	}

	if idx := strings.LastIndex(table, "."); idx >= 0 {
		return alias.Relation{Schema: table[:idx], Name: table[idx+1:]}
	}
	return alias.Relation{Name: table}
}

// truncateIdentifier cuts name to the length PostgreSQL keeps without
// splitting a UTF-8 sequence
func truncateIdentifier(name string) string {
	if len(name) <= maxIdentifierLength {
		return name
	}

	cut := maxIdentifierLength
	for cut > 0 && !utf8.RuneStart(name[cut]) {
		cut--
	}
	return name[:cut]
}
