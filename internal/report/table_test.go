package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCells(t *testing.T) {
	got := Cells([][]any{{"a", int64(10), nil}})
	assert.Equal(t, [][]string{{"a", "10", "-"}}, got)
}

func TestLinesAlignWideRunes(t *testing.T) {
	lines := Lines([][]string{
		{"product_name", "lowest_price"},
		{"갤럭시 S24", "1947000"},
		{"Widget", "-"},
	})
	require.Len(t, lines, 4)
	want := runewidth.StringWidth(lines[0])
	for _, l := range lines {
		assert.Equal(t, want, runewidth.StringWidth(l), l)
	}
	assert.True(t, strings.HasPrefix(lines[1], "| ---"))
}

func TestLinesTruncatesLongCells(t *testing.T) {
	long := strings.Repeat("x", 100)
	lines := Lines([][]string{{"url"}, {long}})
	assert.LessOrEqual(t, runewidth.StringWidth(lines[2]), MaxCell+4)
	assert.Contains(t, lines[2], "…")
}

func TestLinesRaggedRows(t *testing.T) {
	lines := Lines([][]string{{"a", "b"}, {"only"}})
	assert.Equal(t, runewidth.StringWidth(lines[0]), runewidth.StringWidth(lines[2]))
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, [][]any{{"h"}, {nil}}))
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))
	assert.Empty(t, Lines(nil))
}
