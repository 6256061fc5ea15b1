// Package summary joins checks with profile types into a flat review table.
package summary

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/autodq-cli/internal/checks"
	"github.com/KaramelBytes/autodq-cli/internal/profile"
	"github.com/KaramelBytes/autodq-cli/internal/sqlgen"
)

// UnknownType is reported for columns absent from the profile.
const UnknownType = "unknown"

// Header is the CSV header written by WriteCSV.
var Header = []string{"column_name", "column_type", "check_type", "sql_rule", "description"}

// Row is one line of the summary table.
type Row struct {
	ColumnName  string `json:"column_name"`
	ColumnType  string `json:"column_type"`
	CheckType   string `json:"check_type"`
	SQLRule     string `json:"sql_rule"`
	Description string `json:"description"`
}

// Builder produces summary rows; Logger receives a warning for every check
// that ends up without a SQL rule.
type Builder struct {
	Generator sqlgen.Generator
	Logger    *zap.Logger
}

// Build returns one row per check sorted by column name. Checks with equal
// column names keep their input order.
func (b Builder) Build(cs []checks.Check, ds *profile.Dataset) []Row {
	log := b.Logger
	if log == nil {
		log = zap.NewNop()
	}
	types := ds.ColumnTypes()
	rows := make([]Row, 0, len(cs))
	for _, c := range cs {
		colType, ok := types[c.Column]
		if !ok {
			colType = UnknownType
		}
		rule, ok := b.rule(c)
		if !ok {
			log.Warn("no sql rule for check",
				zap.String("column", c.Column),
				zap.String("check_type", c.CheckType))
		}
		rows = append(rows, Row{
			ColumnName:  c.Column,
			ColumnType:  colType,
			CheckType:   c.CheckType,
			SQLRule:     rule,
			Description: c.Description,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ColumnName < rows[j].ColumnName })
	return rows
}

// rule prefers a full statement supplied by the model over the heuristic one.
func (b Builder) rule(c checks.Check) (string, bool) {
	cond := strings.TrimSpace(c.SQLCondition)
	if !checks.IsTrivialCondition(cond) && strings.Contains(strings.ToUpper(cond), "SELECT") {
		return c.SQLCondition, true
	}
	return b.Generator.Query(c.Column, c.CheckType)
}

// Build uses a Builder with the given generator and no logging.
func Build(cs []checks.Check, ds *profile.Dataset, gen sqlgen.Generator) []Row {
	return Builder{Generator: gen}.Build(cs, ds)
}

// WriteCSV writes the header and rows as RFC 4180 CSV.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, r := range rows {
		if err := cw.Write([]string{r.ColumnName, r.ColumnType, r.CheckType, r.SQLRule, r.Description}); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
