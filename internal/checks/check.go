package checks

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Default field values for a Check built from incomplete input.
const (
	DefaultColumn       = "unknown"
	DefaultCheckType    = "unknown"
	DefaultDescription  = "No description"
	DefaultSQLCondition = "TRUE"

	invalidDescription = "Invalid check format"
	maxTextDescription = 100
)

// Check is a single proposed data-quality rule in canonical form.
type Check struct {
	Column       string `json:"column" yaml:"column"`
	CheckType    string `json:"check_type" yaml:"check_type"`
	Description  string `json:"description" yaml:"description"`
	SQLCondition string `json:"sql_condition" yaml:"sql_condition"`
}

// DefaultCheck returns a Check with every field set to its sentinel.
func DefaultCheck() Check {
	return Check{
		Column:       DefaultColumn,
		CheckType:    DefaultCheckType,
		Description:  DefaultDescription,
		SQLCondition: DefaultSQLCondition,
	}
}

// fieldAliases lists, per canonical field, the source keys accepted from model
// output. Order matters: the first key present wins.
var fieldAliases = []struct {
	field   string
	aliases []string
}{
	{"column", []string{"column", "column_name", "field", "field_name"}},
	{"check_type", []string{"check_type", "type", "rule_type", "validation_type"}},
	{"description", []string{"description", "title", "message", "rule_description"}},
	{"sql_condition", []string{"sql_condition", "condition", "rule", "sql_rule", "validation_rule"}},
}

// Normalizer maps arbitrary decoded JSON values onto Check records.
type Normalizer struct {
	Logger *zap.Logger
}

func (n Normalizer) logger() *zap.Logger {
	if n.Logger == nil {
		return zap.NewNop()
	}
	return n.Logger
}

// Normalize converts one decoded element. It never fails: unexpected shapes
// degrade to placeholder checks.
func (n Normalizer) Normalize(v any) Check {
	switch t := v.(type) {
	case map[string]any:
		return fromObject(t)
	case string:
		n.logger().Warn("model returned a string instead of an object", zap.String("value", truncate(t, maxTextDescription)))
		c := DefaultCheck()
		c.Description = truncate(t, maxTextDescription)
		return c
	default:
		n.logger().Warn("model returned an element with an invalid shape", zap.String("type", fmt.Sprintf("%T", v)))
		c := DefaultCheck()
		c.Description = invalidDescription
		return c
	}
}

// NormalizeAll returns exactly one Check per input element, in order.
func (n Normalizer) NormalizeAll(items []any) []Check {
	out := make([]Check, 0, len(items))
	for _, it := range items {
		out = append(out, n.Normalize(it))
	}
	return out
}

// Normalize is a convenience wrapper around a silent Normalizer.
func Normalize(v any) Check { return Normalizer{}.Normalize(v) }

// NormalizeAll is a convenience wrapper around a silent Normalizer.
func NormalizeAll(items []any) []Check { return Normalizer{}.NormalizeAll(items) }

func fromObject(obj map[string]any) Check {
	c := DefaultCheck()
	for _, fa := range fieldAliases {
		val, ok := lookup(obj, fa.aliases)
		if !ok {
			continue
		}
		switch fa.field {
		case "column":
			c.Column = val
		case "check_type":
			c.CheckType = val
		case "description":
			c.Description = val
		case "sql_condition":
			c.SQLCondition = val
		}
	}
	return c
}

// lookup scans aliases in order and returns the first present, non-null value
// coerced to a string.
func lookup(obj map[string]any, aliases []string) (string, bool) {
	for _, key := range aliases {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		return stringify(v), true
	}
	return "", false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

// truncate shortens s to at most n characters (runes).
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// IsTrivialCondition reports whether the model gave no real SQL condition.
func IsTrivialCondition(cond string) bool {
	return strings.TrimSpace(cond) == "" || strings.TrimSpace(cond) == DefaultSQLCondition
}
