package checks

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPriority(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "json fence wins over earlier bare array",
			text: "see [1] first\n```json\n[{\"a\":1}]\n```",
			want: `[{"a":1}]`,
		},
		{
			name: "untagged fence",
			text: "```\n[{\"b\":2}]\n```",
			want: `[{"b":2}]`,
		},
		{
			name: "bare array with commentary",
			text: "Sure! [\n {\"c\":3}\n] Hope that helps.",
			want: "[\n {\"c\":3}\n]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Extract(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractNoArray(t *testing.T) {
	_, err := Extract("I cannot help with that.")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoJSONArray))
	var ee *ExtractError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "I cannot help with that.", ee.Excerpt)

	_, err = Extract(strings.Repeat("x", 600))
	require.True(t, errors.As(err, &ee))
	assert.Len(t, ee.Excerpt, 503)
}

func TestRepairIdempotentOnValidInput(t *testing.T) {
	inputs := []string{
		`[{"column":"a","sql_condition":"x IN (1,2)"}]`,
		`[{"description":"commas ,] and ,} inside strings","rule":"a \"quoted\" value"}]`,
		`[]`,
		`["plain", 1, null, {"nested": [1, {"k": "v"}]}]`,
	}
	for _, in := range inputs {
		direct, err := decodeArray(in)
		require.NoError(t, err, in)
		repaired, err := decodeArray(Repair(in))
		require.NoError(t, err, in)
		assert.Equal(t, direct, repaired)
		assert.Equal(t, in, Repair(in))
	}
}

func TestRepairFixes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing comma before bracket", `[{"a":1},]`, `[{"a":1}]`},
		{"trailing comma before brace", `[{"a":1,}]`, `[{"a":1}]`},
		{"trailing comma with whitespace", "[{\"a\":1} ,\n ]", "[{\"a\":1} \n ]"},
		{"truncated object", `[{"a":1},{"b":2`, `[{"a":1},{"b":2}]`},
		{"truncated after comma", `[{"a":1},`, `[{"a":1}]`},
		{"truncated inside string", `[{"a":"hel`, `[{"a":"hel"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Repair(tt.in)
			assert.Equal(t, tt.want, got)
			_, err := decodeArray(got)
			assert.NoError(t, err)
		})
	}
}

func TestParseArrayTrailingComma(t *testing.T) {
	items, err := ParseArray(`[{"column":"id","type":"unique"},]`)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestParseArrayUnrecoverable(t *testing.T) {
	_, err := ParseArray(`[{"column" "id"}]`)
	require.Error(t, err)
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Excerpt, `"column" "id"`)
	assert.Contains(t, err.Error(), "invalid JSON in LLM response")
}

func TestParseFencedResponse(t *testing.T) {
	raw := "Here are checks:\n```json\n[{\"column\":\"age\",\"type\":\"range\",\"message\":\"must be positive\"}]\n```"
	got, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Check{Column: "age", CheckType: "range", Description: "must be positive", SQLCondition: "TRUE"}, got[0])
}

func TestParseTrailingCommaResponse(t *testing.T) {
	raw := "Checks below\n[{\"column\":\"id\",\"check_type\":\"uniqueness\"},\n{\"column\":\"name\",\"check_type\":\"null_check\"},\n]\nDone."
	got, err := Parse(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "name", got[1].Column)
	assert.Equal(t, "null_check", got[1].CheckType)
}

func TestParseBareArrayWithInnerBrackets(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		columns []string
	}{
		{
			name:    "regex character class in condition",
			raw:     `Checks: [{"column":"code","sql_condition":"code ~ '^[A-Z]{3}$'"},{"column":"id","check_type":"unique"}]`,
			columns: []string{"code", "id"},
		},
		{
			name:    "nested list value",
			raw:     `[{"column":"a","tags":["x"]},{"column":"b"}]`,
			columns: []string{"a", "b"},
		},
		{
			name:    "prose bracket before the array",
			raw:     "Checks [draft]:\n[{\"column\":\"status\",\"values\":[\"a\",\"b\"]}] done",
			columns: []string{"status"},
		},
		{
			name:    "truncated reply",
			raw:     `result: [{"column":"a","check_type":"not_null"},{"column":"b","tags":["x"`,
			columns: []string{"a", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			require.Len(t, got, len(tt.columns))
			for i, col := range tt.columns {
				assert.Equal(t, col, got[i].Column)
			}
		})
	}

	got, err := Parse(tests[0].raw)
	require.NoError(t, err)
	assert.Equal(t, "code ~ '^[A-Z]{3}$'", got[0].SQLCondition)
}
