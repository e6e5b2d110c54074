// Package mdtable renders rows as Markdown tables.
package mdtable

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
)

// MaxCellWidth limits the width of a rendered cell
const MaxCellWidth = 80

// Render returns Markdown table of the rows.
// Cells are flattened to one line and truncated to MaxCellWidth.
func Render(headers []string, rows [][]string) string {
	names := make([]string, len(headers))
	for i, h := range headers {
		names[i] = Cell(h)
	}
	cells := make([][]string, len(rows))
	for i, row := range rows {
		cells[i] = make([]string, len(row))
		for j, v := range row {
			cells[i][j] = Cell(v)
		}
	}

	t := table.New().
		Border(lipgloss.MarkdownBorder()).
		BorderTop(false).
		BorderBottom(false).
		Headers(names...).
		Rows(cells...)
	return t.String()
}

var cellReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Cell returns the value as a single line of at most MaxCellWidth,
// with '|' escaped
func Cell(v string) string {
	v = runewidth.Truncate(cellReplacer.Replace(v), MaxCellWidth, "...")
	return strings.ReplaceAll(v, "|", `\|`)
}
