package summary

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// ChecksVersion is the document version written to checks.yaml.
const ChecksVersion = "1"

const (
	OnFailError = "error"
	OnFailWarn  = "warn"
)

// ChecksFile is a portable checks document: one validation per dataset, one
// entry per summary row.
type ChecksFile struct {
	Version     string       `yaml:"version"`
	Validations []Validation `yaml:"validations"`
}

type Validation struct {
	Dataset string       `yaml:"dataset"`
	Checks  []CheckEntry `yaml:"checks"`
}

type CheckEntry struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description,omitempty"`
	OnFail      string `yaml:"on_fail,omitempty"`
	Query       string `yaml:"query,omitempty"`
}

// NewChecksFile converts rows into a checks document for dataset. Rows without
// a SQL rule are kept with on_fail "warn" so a reviewer can fill them in.
func NewChecksFile(dataset string, rows []Row) ChecksFile {
	seen := make(map[string]int, len(rows))
	entries := make([]CheckEntry, 0, len(rows))
	for _, r := range rows {
		id := checkID(r.ColumnName, r.CheckType)
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = fmt.Sprintf("%s_%d", id, n+1)
		} else {
			seen[id] = 1
		}
		e := CheckEntry{ID: id, Description: r.Description, OnFail: OnFailError, Query: r.SQLRule}
		if strings.TrimSpace(r.SQLRule) == "" {
			e.OnFail = OnFailWarn
		}
		entries = append(entries, e)
	}
	return ChecksFile{
		Version:     ChecksVersion,
		Validations: []Validation{{Dataset: dataset, Checks: entries}},
	}
}

// WriteYAML encodes rows as a checks document.
func WriteYAML(w io.Writer, dataset string, rows []Row) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NewChecksFile(dataset, rows)); err != nil {
		return fmt.Errorf("encode checks yaml: %w", err)
	}
	return enc.Close()
}

// checkID builds a lowercase snake_case identifier from column and check type.
func checkID(column, checkType string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(column + "_" + checkType) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	id := strings.TrimSuffix(b.String(), "_")
	if id == "" {
		return "check"
	}
	return id
}
