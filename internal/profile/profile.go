package profile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Declared type tags reported per column.
const (
	TypeInt64   = "int64"
	TypeFloat64 = "float64"
	TypeBool    = "bool"
	TypeObject  = "object"
)

// maxSampleValues bounds Column.SampleValues.
const maxSampleValues = 5

// DefaultSampleRows is the row ceiling used when Options.SampleRows is unset.
const DefaultSampleRows = 5000

// Options controls profiling.
type Options struct {
	// SampleRows caps the number of data rows read. Statistics describe only
	// this prefix of the file.
	SampleRows int
	// Delimiter for CSV. If 0, comma is used (tab for .tsv files).
	Delimiter rune
}

// DefaultOptions returns the defaults used by the CLI.
func DefaultOptions() Options {
	return Options{SampleRows: DefaultSampleRows}
}

// Dataset is the profile of one tabular file.
type Dataset struct {
	FilePath     string   `json:"file_path"`
	TotalRows    int      `json:"total_rows"`
	TotalColumns int      `json:"total_columns"`
	Columns      []Column `json:"columns"`
}

// Column holds per-column statistics computed over the sampled rows.
type Column struct {
	Name           string  `json:"name"`
	Dtype          string  `json:"dtype"`
	NullCount      int     `json:"null_count"`
	NullPercentage float64 `json:"null_percentage"`
	UniqueCount    int     `json:"unique_count"`
	SampleValues   []any   `json:"sample_values"`
	// Embedded so that non-numeric columns omit the stats entirely while
	// numeric ones always carry all four keys (possibly null).
	*NumericStats
}

// NumericStats is present only on numeric columns. A nil field encodes as null.
type NumericStats struct {
	Min  *float64 `json:"min"`
	Max  *float64 `json:"max"`
	Mean *float64 `json:"mean"`
	Std  *float64 `json:"std"`
}

// IsNumeric reports whether the column carries numeric stats. Bool columns
// count, with true and false summarized as 1 and 0.
func (c Column) IsNumeric() bool {
	return c.Dtype == TypeInt64 || c.Dtype == TypeFloat64 || c.Dtype == TypeBool
}

// ColumnTypes maps column names to declared types.
func (d *Dataset) ColumnTypes() map[string]string {
	if d == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(d.Columns))
	for _, c := range d.Columns {
		out[c.Name] = c.Dtype
	}
	return out
}

// nullTokens are the cell values treated as missing.
var nullTokens = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsNull reports whether a raw cell counts as missing.
func IsNull(v string) bool {
	_, ok := nullTokens[strings.TrimSpace(v)]
	return ok
}

// ProfileCSV reads up to opt.SampleRows rows of a delimited file with a header
// row and returns its profile.
func ProfileCSV(path string, opt Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(path)
	}
	ds, err := profileReader(f, delim, opt.SampleRows)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	ds.FilePath = path
	return ds, nil
}

// profileReader does the work for ProfileCSV on an arbitrary reader.
func profileReader(src io.Reader, delim rune, sampleRows int) (*Dataset, error) {
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no columns to parse from file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	names := columnNames(header)
	ncol := len(names)

	accs := make([]*colAcc, ncol)
	for i := range accs {
		accs[i] = &colAcc{}
	}
	rows := 0
	for rows < sampleRows {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", rows+1, err)
		}
		if len(rec) > ncol {
			return nil, fmt.Errorf("malformed row %d: expected %d fields, saw %d", rows+1, ncol, len(rec))
		}
		rows++
		for j := 0; j < ncol; j++ {
			v := ""
			if j < len(rec) {
				v = strings.TrimSpace(rec[j])
			}
			if IsNull(v) {
				accs[j].nulls++
				continue
			}
			accs[j].values = append(accs[j].values, v)
		}
	}

	ds := &Dataset{TotalRows: rows, TotalColumns: ncol, Columns: make([]Column, 0, ncol)}
	for j, a := range accs {
		ds.Columns = append(ds.Columns, a.summarize(names[j], rows))
	}
	return ds, nil
}

// columnNames cleans header cells: blanks become "Unnamed: i" and duplicates
// get a ".N" suffix.
func columnNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, ok := seen[name]; ok {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		}
		seen[name] = 0
		out[i] = name
	}
	return out
}

type colAcc struct {
	nulls  int
	values []string
}

func (a *colAcc) summarize(name string, rows int) Column {
	c := Column{Name: name, NullCount: a.nulls, SampleValues: []any{}}
	if rows > 0 {
		c.NullPercentage = float64(a.nulls) / float64(rows) * 100
	}
	c.Dtype = a.inferType()
	distinct := make(map[string]struct{}, len(a.values))
	var nums []float64
	for _, v := range a.values {
		typed, key := convert(v, c.Dtype)
		distinct[key] = struct{}{}
		if len(c.SampleValues) < maxSampleValues {
			c.SampleValues = append(c.SampleValues, typed)
		}
		if c.IsNumeric() {
			nums = append(nums, asFloat(v, c.Dtype))
		}
	}
	c.UniqueCount = len(distinct)
	if c.IsNumeric() {
		c.NumericStats = describe(nums)
	}
	return c
}

// inferType picks the narrowest type every non-null value satisfies.
func (a *colAcc) inferType() string {
	if len(a.values) == 0 {
		return TypeFloat64
	}
	allInt, allFloat, allBool := true, true, true
	for _, v := range a.values {
		if allInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, ok := parseFloat(v); !ok {
				allFloat = false
			}
		}
		if allBool {
			if _, ok := parseBool(v); !ok {
				allBool = false
			}
		}
	}
	switch {
	case allInt && a.nulls == 0:
		return TypeInt64
	case allInt || allFloat:
		// integers with gaps are widened like a dataframe would
		return TypeFloat64
	case allBool && a.nulls == 0:
		return TypeBool
	default:
		return TypeObject
	}
}

// convert returns a JSON-safe typed value and a distinctness key.
func convert(v, dtype string) (any, string) {
	switch dtype {
	case TypeInt64:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n, strconv.FormatInt(n, 10)
	case TypeFloat64:
		x, _ := parseFloat(v)
		return x, strconv.FormatFloat(x, 'g', -1, 64)
	case TypeBool:
		b, _ := parseBool(v)
		return b, strconv.FormatBool(b)
	default:
		return v, v
	}
}

func asFloat(v, dtype string) float64 {
	if dtype == TypeBool {
		if b, _ := parseBool(v); b {
			return 1
		}
		return 0
	}
	x, _ := parseFloat(v)
	return x
}

// describe computes min, max, mean and the sample standard deviation using
// Welford's online update.
func describe(xs []float64) *NumericStats {
	st := &NumericStats{}
	if len(xs) == 0 {
		return st
	}
	var n int
	var mean, m2 float64
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, x := range xs {
		n++
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
		delta := x - mean
		mean += delta / float64(n)
		m2 += delta * (x - mean)
	}
	st.Min = finite(lo)
	st.Max = finite(hi)
	st.Mean = finite(mean)
	if n > 1 {
		st.Std = finite(math.Sqrt(m2 / float64(n-1)))
	}
	return st
}

func finite(x float64) *float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil
	}
	return &x
}

func parseFloat(s string) (float64, bool) {
	x, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(x, 0) || math.IsNaN(x) {
		return 0, false
	}
	return x, true
}

func parseBool(s string) (bool, bool) {
	switch s {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	}
	return false, false
}

func sniffDelimiter(path string) rune {
	if strings.HasSuffix(strings.ToLower(path), ".tsv") {
		return '\t'
	}
	return ','
}
