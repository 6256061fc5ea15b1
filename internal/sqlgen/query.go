package sqlgen

import (
	"fmt"
	"strings"
)

// emailPattern is the loose address shape used by pattern checks on email columns.
const emailPattern = `^[^@]+@[^@]+\.[^@]+$`

var (
	nullTypes    = set("null", "null_check", "not_null", "not_null_check")
	uniqueTypes  = set("uniqueness", "unique", "duplicate", "uniqueness_check", "unique_check", "duplicate_check")
	lengthTypes  = set("length", "string_length", "text_length", "length_check")
	rangeTypes   = set("range", "numeric_range", "value_range", "range_check")
	patternTypes = set("format", "pattern", "regex", "pattern_check", "format_check", "regex_check")
)

func set(vals ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		m[v] = struct{}{}
	}
	return m
}

// Generator builds stand-alone counting queries for well-known check types.
type Generator struct {
	Dialect Dialect
	Table   string
}

// Query returns a heuristic statement for (column, checkType). The boolean is
// false when no heuristic covers the pair.
func (g Generator) Query(column, checkType string) (string, bool) {
	table := g.Table
	if strings.TrimSpace(table) == "" {
		table = DefaultTable
	}
	col := QuoteIdent(g.Dialect, column)
	kind := strings.ToLower(strings.TrimSpace(checkType))
	name := strings.ToLower(column)
	failed := func(where string) string {
		return fmt.Sprintf("SELECT COUNT(*) as failed_records FROM %s WHERE %s", table, where)
	}

	if _, ok := nullTypes[kind]; ok {
		return failed(col + " IS NULL"), true
	}
	if _, ok := uniqueTypes[kind]; ok {
		return fmt.Sprintf("SELECT %s, COUNT(*) as duplicate_count FROM %s GROUP BY %s HAVING COUNT(*) > 1", col, table, col), true
	}
	if _, ok := lengthTypes[kind]; ok {
		return failed(fmt.Sprintf("LENGTH(%s) = 0 OR %s = ''", col, col)), true
	}
	if _, ok := rangeTypes[kind]; ok {
		switch {
		case strings.Contains(name, "length"):
			return failed(fmt.Sprintf("%s < 0 OR %s > 100", col, col)), true
		case strings.Contains(name, "weight"):
			return failed(fmt.Sprintf("%s < 0 OR %s > 10000", col, col)), true
		case strings.Contains(name, "age"):
			return failed(fmt.Sprintf("%s < 0 OR %s > 200", col, col)), true
		default:
			return failed(fmt.Sprintf("%s IS NULL OR %s < 0", col, col)), true
		}
	}
	if _, ok := patternTypes[kind]; ok && strings.Contains(name, "email") {
		return failed(fmt.Sprintf("NOT (%s)", RegexPredicate(g.Dialect, col, emailPattern))), true
	}
	return "", false
}
