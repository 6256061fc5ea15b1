// Package sqlgen renders data-quality checks as SQL for a target dialect.
package sqlgen

import (
	"fmt"
	"strings"
)

// Dialect names a SQL flavor.
type Dialect string

const (
	Postgres Dialect = "postgres"
	BigQuery Dialect = "bigquery"
	Spark    Dialect = "spark"
)

// Dialects lists the supported dialects in display order.
var Dialects = []Dialect{BigQuery, Postgres, Spark}

// ParseDialect accepts a dialect name in any case.
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case Postgres, BigQuery, Spark:
		return d, nil
	}
	return "", fmt.Errorf("unsupported dialect %q (want postgres, bigquery or spark)", s)
}

func (d Dialect) String() string { return string(d) }

// RegexPredicate returns a boolean SQL expression that is true when column
// matches pattern. Names outside the known dialects get the generic form.
func RegexPredicate(d Dialect, column, pattern string) string {
	switch d {
	case Postgres:
		return fmt.Sprintf("%s ~ '%s'", column, pattern)
	case BigQuery:
		return fmt.Sprintf("REGEXP_CONTAINS(CAST(%s AS STRING), r'%s')", column, pattern)
	case Spark:
		return fmt.Sprintf("%s RLIKE '%s'", column, pattern)
	default:
		return fmt.Sprintf("REGEXP_CONTAINS(%s, '%s')", column, pattern)
	}
}

// QuoteIdent quotes identifiers that contain a space or a slash.
func QuoteIdent(d Dialect, name string) string {
	if !strings.ContainsAny(name, " /") {
		return name
	}
	if d == Postgres {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

// Literal renders s as a single-quoted SQL string.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
