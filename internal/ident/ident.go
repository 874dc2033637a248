// Package ident renders PostgreSQL identifiers for generated SQL
package ident

import "strings"

// reservedWords lists PostgreSQL keywords that must be quoted when used as
// identifiers. See https://www.postgresql.org/docs/current/sql-keywords-appendix.html
var reservedWords = map[string]bool{
	"all": true, "analyse": true, "analyze": true, "and": true, "any": true,
	"array": true, "as": true, "asc": true, "asymmetric": true, "both": true,
	"case": true, "cast": true, "check": true, "collate": true, "column": true,
	"constraint": true, "create": true, "current_catalog": true, "current_date": true,
	"current_role": true, "current_schema": true, "current_time": true,
	"current_timestamp": true, "current_user": true, "default": true,
	"deferrable": true, "desc": true, "distinct": true, "do": true,
	"else": true, "end": true, "except": true, "false": true, "fetch": true,
	"for": true, "foreign": true, "from": true, "grant": true, "group": true,
	"having": true, "in": true, "initially": true, "intersect": true,
	"into": true, "lateral": true, "leading": true, "limit": true,
	"localtime": true, "localtimestamp": true, "not": true, "null": true,
	"offset": true, "on": true, "only": true, "or": true, "order": true,
	"placing": true, "primary": true, "references": true, "returning": true,
	"select": true, "session_user": true, "some": true, "symmetric": true,
	"table": true, "then": true, "to": true, "trailing": true, "true": true,
	"union": true, "unique": true, "user": true, "using": true, "variadic": true,
	"when": true, "where": true, "window": true, "with": true,
	"authorization": true, "between": true, "binary": true, "cross": true,
	"freeze": true, "full": true, "ilike": true, "inner": true, "is": true,
	"isnull": true, "join": true, "left": true, "like": true, "natural": true,
	"notnull": true, "outer": true, "overlaps": true, "right": true,
	"similar": true, "verbose": true,
}

// NeedsQuoting reports whether an identifier must be double-quoted
func NeedsQuoting(identifier string) bool {
	if len(identifier) == 0 {
		return false
	}

	if reservedWords[strings.ToLower(identifier)] {
		return true
	}

	// Unquoted identifiers are folded to lower case, so anything else must be
	// quoted to survive a round trip
	first := identifier[0]
	if (first < 'a' || first > 'z') && first != '_' {
		return true
	}
	for i := 1; i < len(identifier); i++ {
		ch := identifier[i]
		if (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') && ch != '_' {
			return true
		}
	}

	return false
}

// Quote quotes an identifier if it needs quoting
func Quote(identifier string) string {
	if !NeedsQuoting(identifier) {
		return identifier
	}
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// QuoteQualified quotes a schema-qualified identifier
func QuoteQualified(schema, identifier string) string {
	if schema != "" {
		return Quote(schema) + "." + Quote(identifier)
	}
	return Quote(identifier)
}
