// Package table implements the cleaning operations over CSV files.
//
// Values are kept as loaded, so untouched columns are written back unchanged,
// and column types are detected from the current values when requested.
package table

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/dataagents/pkg/mdtable"
	"github.com/effective-security/xlog"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/dataagents", "table")

// NullValues are the cell values loaded as null
var NullValues = []string{"", "NA", "N/A", "NaN", "nan", "null", "NULL", "None", "<nil>"}

// IDColumn is the column identifying rows in samples
const IDColumn = "id"

// SampleSize is the number of rows in samples
const SampleSize = 3

// Table is a CSV file loaded in memory
type Table struct {
	path string
	df   dataframe.DataFrame
}

// Load reads the CSV file with header
func Load(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read table")
	}

	df := dataframe.ReadCSV(bytes.NewReader(b),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(NullValues),
	)
	if df.Err != nil {
		if header := headerOnly(b); header != nil {
			df = emptyFrame(header)
		}
	}
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "failed to parse table %s", filepath.Base(path))
	}
	return &Table{path: path, df: df}, nil
}

// headerOnly returns the header of a CSV without rows
func headerOnly(b []byte) []string {
	records, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	if err != nil || len(records) != 1 {
		return nil
	}
	return records[0]
}

func emptyFrame(header []string) dataframe.DataFrame {
	cols := make([]series.Series, len(header))
	for i, name := range header {
		cols[i] = series.New([]string{}, series.String, name)
	}
	return dataframe.New(cols...)
}

// Path returns the path of the file
func (t *Table) Path() string {
	return t.path
}

// Columns returns the column names
func (t *Table) Columns() []string {
	return t.df.Names()
}

// Len returns the number of rows
func (t *Table) Len() int {
	return t.df.Nrow()
}

// HasColumn returns true if the table has the column
func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.df.Names(), name)
}

func (t *Table) column(name string) (series.Series, error) {
	if !t.HasColumn(name) {
		return series.Series{}, errors.Errorf("column not found: %s", name)
	}
	return t.df.Col(name), nil
}

// Save writes the table to its file, null values are written as empty cells
func (t *Table) Save() error {
	return t.SaveAs(t.path)
}

// SaveAs writes the table to the file
func (t *Table) SaveAs(path string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	names := t.df.Names()
	cols := make([]series.Series, len(names))
	for i, name := range names {
		cols[i] = t.df.Col(name)
	}

	if err := w.Write(names); err != nil {
		return errors.WithStack(err)
	}
	rec := make([]string, len(cols))
	for i := 0; i < t.df.Nrow(); i++ {
		for j, s := range cols {
			e := s.Elem(i)
			if e.IsNA() {
				rec[j] = ""
			} else {
				rec[j] = e.String()
			}
		}
		if err := w.Write(rec); err != nil {
			return errors.WithStack(err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.WithStack(err)
	}

	// replace the file atomically
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to save table")
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to save table")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to save table")
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(err, "failed to save table")
	}

	logger.KV(xlog.DEBUG, "status", "saved", "path", path, "rows", t.df.Nrow(), "columns", len(names))
	return nil
}

// ColumnNulls is the number of nulls in a column
type ColumnNulls struct {
	Column string `json:"column"`
	Nulls  int    `json:"nulls"`
}

// NullCounts returns the number of nulls per column, in column order
func (t *Table) NullCounts() []ColumnNulls {
	names := t.df.Names()
	list := make([]ColumnNulls, len(names))
	for i, name := range names {
		n := 0
		for _, isNull := range t.df.Col(name).IsNaN() {
			if isNull {
				n++
			}
		}
		list[i] = ColumnNulls{Column: name, Nulls: n}
	}
	return list
}

// ColumnType is the detected type of a column
type ColumnType struct {
	Column string `json:"column"`
	// Type is one of int|float|bool|string
	Type string `json:"type"`
}

// Schema returns the types of the columns detected from their values.
// Columns without values are reported as string.
func (t *Table) Schema() []ColumnType {
	typed := dataframe.LoadRecords(t.df.Records(),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.NaNValues(NullValues),
	)

	names := t.df.Names()
	list := make([]ColumnType, len(names))
	if typed.Err != nil {
		for i, name := range names {
			list[i] = ColumnType{Column: name, Type: string(series.String)}
		}
		return list
	}

	types := typed.Types()
	for i, name := range names {
		list[i] = ColumnType{Column: name, Type: string(types[i])}
	}
	return list
}

// DropNullColumns removes the columns containing a null,
// and returns the removed column names
func (t *Table) DropNullColumns() []string {
	var drop []string
	for _, c := range t.NullCounts() {
		if c.Nulls > 0 {
			drop = append(drop, c.Column)
		}
	}
	if len(drop) > 0 {
		t.df = t.df.Drop(drop)
	}
	return drop
}

// NullRows returns indexes of the rows where the column is null
func (t *Table) NullRows(column string) ([]int, error) {
	s, err := t.column(column)
	if err != nil {
		return nil, err
	}
	var rows []int
	for i, isNull := range s.IsNaN() {
		if isNull {
			rows = append(rows, i)
		}
	}
	return rows, nil
}

// FillNull replaces nulls in the column with the value,
// and returns the number of replaced cells.
// Values loaded as null, such as "NA", are rejected.
func (t *Table) FillNull(column, value string) (int, error) {
	if slices.Contains(NullValues, value) {
		return 0, errors.Errorf("fill value %q is read as null", value)
	}
	return t.update(column, func(v string, isNull bool) (string, bool) {
		if isNull {
			return value, true
		}
		return v, false
	})
}

var symbols = regexp.MustCompile(`[^0-9.,]+`)

// RemoveSymbols removes every character other than digits, '.' and ','
// from the values of the column, and returns the number of changed cells.
// Nulls are kept, values left empty become null.
func (t *Table) RemoveSymbols(column string) (int, error) {
	return t.update(column, func(v string, isNull bool) (string, bool) {
		if isNull {
			return v, false
		}
		out := symbols.ReplaceAllString(v, "")
		if out == "" {
			return "NaN", true
		}
		return out, out != v
	})
}

func (t *Table) update(column string, fn func(v string, isNull bool) (string, bool)) (int, error) {
	s, err := t.column(column)
	if err != nil {
		return 0, err
	}

	n := s.Len()
	values := make([]string, n)
	changed := 0
	for i := 0; i < n; i++ {
		e := s.Elem(i)
		v, isNull := "", e.IsNA()
		if !isNull {
			v = e.String()
		}
		nv, ok := fn(v, isNull)
		if ok {
			changed++
		} else if isNull {
			// keeps the null
			nv = "NaN"
		}
		values[i] = nv
	}

	ns := series.New(values, series.String, column)
	t.df = t.df.Mutate(ns)
	if t.df.Err != nil {
		return 0, errors.Wrapf(t.df.Err, "failed to update column %s", column)
	}
	return changed, nil
}

// Sample is a set of rows of one column,
// keyed by the id column or by row number when the table has no id
type Sample struct {
	Key     string     `json:"key"`
	Column  string     `json:"column"`
	Rows    [][]string `json:"rows"`
	indexes []int
}

// Sample returns the rows of the column
func (t *Table) Sample(column string, rows []int) (*Sample, error) {
	s, err := t.column(column)
	if err != nil {
		return nil, err
	}

	key := IDColumn
	var ids series.Series
	hasID := t.HasColumn(IDColumn) && column != IDColumn
	if hasID {
		ids = t.df.Col(IDColumn)
	} else {
		key = "row"
	}

	sample := &Sample{Key: key, Column: column, indexes: slices.Clone(rows)}
	for _, i := range rows {
		if i < 0 || i >= s.Len() {
			return nil, errors.Errorf("row out of range: %d", i)
		}
		var id string
		if hasID {
			id = cellText(ids.Elem(i))
		} else {
			id = strconv.Itoa(i)
		}
		sample.Rows = append(sample.Rows, []string{id, cellText(s.Elem(i))})
	}
	return sample, nil
}

// Refresh returns the same rows with the current values of the table
func (s *Sample) Refresh(t *Table) (*Sample, error) {
	return t.Sample(s.Column, s.indexes)
}

// String returns the sample as Markdown table
func (s *Sample) String() string {
	return mdtable.Render([]string{s.Key, s.Column}, s.Rows)
}

// Head returns indexes of the first n rows
func (t *Table) Head(n int) []int {
	n = min(n, t.df.Nrow())
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

func cellText(e series.Element) string {
	if e.IsNA() {
		return "NULL"
	}
	return e.String()
}
