// Package report renders result tables as aligned plain text.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// MaxCell caps the display width of a single cell.
const MaxCell = 40

// Cells converts table values to strings. Nil becomes "-".
func Cells(rows [][]any) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, v := range row {
			if v == nil {
				out[i][j] = "-"
				continue
			}
			out[i][j] = fmt.Sprint(v)
		}
	}
	return out
}

// Lines lays rows out as a pipe table. The first row is the header.
// Widths are measured in terminal cells so Hangul and other wide runes
// stay aligned.
func Lines(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	widths := make([]int, cols)
	cell := func(row []string, j int) string {
		if j >= len(row) {
			return ""
		}
		return runewidth.Truncate(row[j], MaxCell, "…")
	}
	for _, row := range rows {
		for j := 0; j < cols; j++ {
			widths[j] = max(widths[j], runewidth.StringWidth(cell(row, j)), 3)
		}
	}

	lines := make([]string, 0, len(rows)+1)
	for i, row := range rows {
		var sb strings.Builder
		sb.WriteString("|")
		for j := 0; j < cols; j++ {
			sb.WriteString(" ")
			sb.WriteString(runewidth.FillRight(cell(row, j), widths[j]))
			sb.WriteString(" |")
		}
		lines = append(lines, sb.String())
		if i == 0 {
			sb.Reset()
			sb.WriteString("|")
			for j := 0; j < cols; j++ {
				sb.WriteString(" ")
				sb.WriteString(strings.Repeat("-", widths[j]))
				sb.WriteString(" |")
			}
			lines = append(lines, sb.String())
		}
	}
	return lines
}

// Write renders rows to w.
func Write(w io.Writer, rows [][]any) error {
	for _, line := range Lines(Cells(rows)) {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}
