package checks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ErrNoJSONArray is returned when the model text contains no JSON array.
var ErrNoJSONArray = errors.New("LLM did not return a JSON array of checks")

const excerptLen = 500

// ExtractError reports that no array could be located in the model text.
type ExtractError struct {
	Excerpt string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("%v; response text: %q", ErrNoJSONArray, e.Excerpt)
}

func (e *ExtractError) Unwrap() error { return ErrNoJSONArray }

// ParseError reports that the extracted text stayed invalid after repair.
type ParseError struct {
	Err     error
	Excerpt string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid JSON in LLM response: %v; extracted text: %q", e.Err, e.Excerpt)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Fenced extraction patterns in priority order. The capture group holds the
// array. Text outside a fence falls through to scanArray.
var fencedPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```json\\s*(\\[.*?\\])\\s*```"),
	regexp.MustCompile("(?s)```[A-Za-z0-9_-]*\\s*(\\[.*?\\])\\s*```"),
}

// Extract locates the JSON array inside free-form model output.
func Extract(text string) (string, error) {
	for _, re := range fencedPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1], nil
		}
	}
	if arr, ok := scanArray(text); ok {
		return arr, nil
	}
	return "", &ExtractError{Excerpt: excerpt(text)}
}

// scanArray returns the first top-level bracketed span, preferring one that
// opens an array of objects. Brackets inside string literals do not count.
// An unterminated array yields the rest of the text for Repair to close.
func scanArray(text string) (string, bool) {
	start := -1
	for i := 0; i < len(text); i++ {
		if text[i] != '[' {
			continue
		}
		if start < 0 {
			start = i
		}
		if nextSignificant(text, i+1) == '{' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return text[start:], true
}

// ParseArray decodes text as a JSON array, retrying once after Repair.
func ParseArray(text string) ([]any, error) {
	items, err := decodeArray(text)
	if err == nil {
		return items, nil
	}
	repaired, rerr := decodeArray(Repair(text))
	if rerr == nil {
		return repaired, nil
	}
	return nil, &ParseError{Err: err, Excerpt: excerpt(text)}
}

func decodeArray(text string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return nil, err
	}
	// reject trailing garbage after the array
	if dec.More() {
		return nil, errors.New("unexpected data after JSON array")
	}
	if items == nil {
		items = []any{}
	}
	return items, nil
}

// Repair applies best-effort fixes for common LLM JSON mistakes: trailing
// commas before a closing brace or bracket are dropped and unclosed strings,
// objects and arrays are closed in nesting order. Text inside string literals
// is left untouched, so valid JSON comes back unchanged.
func Repair(text string) string {
	var b bytes.Buffer
	b.Grow(len(text) + 8)
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if n := len(stack); n > 0 && stack[n-1] == ch {
				stack = stack[:n-1]
			}
		case ',':
			if next := nextSignificant(text, i+1); next == '}' || next == ']' {
				continue
			}
		}
		b.WriteByte(ch)
	}
	if inString {
		if escaped {
			b.Truncate(b.Len() - 1)
		}
		b.WriteByte('"')
	}
	out := strings.TrimRightFunc(b.String(), func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\r' || r == '\t'
	})
	var tail strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		tail.WriteByte(stack[i])
	}
	if tail.Len() == 0 {
		return b.String()
	}
	return out + tail.String()
}

// nextSignificant returns the next non-whitespace byte at or after i, or 0.
func nextSignificant(s string, i int) byte {
	for ; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return s[i]
		}
	}
	return 0
}

// Parser turns raw model output into canonical checks.
type Parser struct {
	Logger *zap.Logger
}

// Parse runs extraction, decoding with repair, and normalization.
func (p Parser) Parse(raw string) ([]Check, error) {
	log := p.Logger
	if log == nil {
		log = zap.NewNop()
	}
	text, err := Extract(raw)
	if err != nil {
		return nil, err
	}
	items, err := ParseArray(text)
	if err != nil {
		return nil, err
	}
	log.Debug("decoded checks array", zap.Int("elements", len(items)))
	return Normalizer{Logger: log}.NormalizeAll(items), nil
}

// Parse is a convenience wrapper around a silent Parser.
func Parse(raw string) ([]Check, error) { return Parser{}.Parse(raw) }

func excerpt(s string) string {
	if len(s) <= excerptLen {
		return s
	}
	return truncate(s, excerptLen) + "..."
}
