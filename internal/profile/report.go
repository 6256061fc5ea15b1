package profile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Markdown renders a compact human-readable summary of the profile.
func (d *Dataset) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET PROFILE]\n")
	if d.FilePath != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", d.FilePath))
	}
	b.WriteString(fmt.Sprintf("Rows (sampled): %d\n", d.TotalRows))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", d.TotalColumns))

	b.WriteString("[SCHEMA]\n")
	for _, c := range d.Columns {
		b.WriteString(fmt.Sprintf("- %s: %s (nulls %d, %.1f%%, unique %d)", safeName(c.Name), c.Dtype, c.NullCount, c.NullPercentage, c.UniqueCount))
		if c.NumericStats != nil {
			b.WriteString(fmt.Sprintf("; min %s, max %s, mean %s, std %s", fmtStat(c.Min), fmtStat(c.Max), fmtStat(c.Mean), fmtStat(c.Std)))
		}
		if len(c.SampleValues) > 0 {
			parts := make([]string, 0, len(c.SampleValues))
			for _, v := range c.SampleValues {
				parts = append(parts, safeVal(fmt.Sprint(v)))
			}
			b.WriteString("; e.g., ")
			b.WriteString(strings.Join(parts, " | "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Load reads a profile document previously written as JSON.
func Load(path string) (*Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var d Dataset
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &d, nil
}

func fmtStat(p *float64) string {
	if p == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4g", *p)
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
