package warehouse

import (
	"fmt"
	"strings"

	"github.com/effective-security/dataagents/pkg/mdtable"
	"google.golang.org/api/bigquery/v2"
)

// Null is the rendering of NULL values
const Null = "NULL"

// Column of a result
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result of a query
type Result struct {
	Columns []Column `json:"columns"`
	// Rows holds the values as returned by the API, NULL values are nil
	Rows      [][]any `json:"rows"`
	TotalRows uint64  `json:"total_rows"`
	// Truncated is true when the query returned more rows than the limit
	Truncated bool `json:"truncated,omitempty"`
}

func (r *Result) setSchema(s *bigquery.TableSchema) {
	if s == nil {
		return
	}
	r.Columns = r.Columns[:0]
	for _, f := range s.Fields {
		r.Columns = append(r.Columns, Column{Name: f.Name, Type: f.Type})
	}
}

func (r *Result) appendRows(rows []*bigquery.TableRow, max int) {
	for _, row := range rows {
		if len(r.Rows) >= max {
			return
		}
		vals := make([]any, len(row.F))
		for i, cell := range row.F {
			vals[i] = cell.V
		}
		r.Rows = append(r.Rows, vals)
	}
}

// Headers returns the column names
func (r *Result) Headers() []string {
	h := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		h[i] = c.Name
	}
	return h
}

// Records returns the rows as text
func (r *Result) Records() [][]string {
	recs := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = FormatValue(v)
		}
		recs[i] = rec
	}
	return recs
}

// String returns the result as Markdown table
func (r *Result) String() string {
	if r == nil || len(r.Columns) == 0 {
		return "(no columns)"
	}

	var sb strings.Builder
	sb.WriteString(mdtable.Render(r.Headers(), r.Records()))
	if len(r.Rows) == 0 {
		sb.WriteString("\n(0 rows)")
	} else if r.Truncated {
		fmt.Fprintf(&sb, "\n(%d of %d rows)", len(r.Rows), r.TotalRows)
	}
	return sb.String()
}

// FormatValue returns the text of a cell value
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return Null
	case string:
		return val
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			// repeated fields are wrapped as {"v": value}
			if m, ok := p.(map[string]any); ok {
				if inner, ok := m["v"]; ok {
					p = inner
				}
			}
			parts[i] = FormatValue(p)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		if f, ok := val["f"].([]any); ok {
			return "(" + strings.TrimSuffix(strings.TrimPrefix(FormatValue(f), "["), "]") + ")"
		}
		if inner, ok := val["v"]; ok {
			return FormatValue(inner)
		}
	}
	return fmt.Sprint(v)
}
