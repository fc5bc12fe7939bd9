// Package sheet reads product lists from and writes results to xlsx workbooks.
package sheet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/fairyhunter13/price-batch-service/internal/model"
)

// ContentType is the MIME type of encoded workbooks.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Ext is the extension forced onto output filenames.
const Ext = ".xlsx"

// ErrNoSheets is returned for a workbook without worksheets.
var ErrNoSheets = errors.New("workbook has no sheets")

// ReadNames returns the first column of the first sheet, skipping the
// header row and blank cells.
func ReadNames(r io.Reader) ([]model.WorkItem, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	items := make([]model.WorkItem, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) == 0 {
			continue
		}
		name := strings.TrimSpace(row[0])
		if name == "" {
			continue
		}
		items = append(items, model.WorkItem(name))
	}
	return items, nil
}

// Encode writes rows into the first sheet of a new workbook. Nil values
// become empty cells.
func Encode(rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	name := f.GetSheetName(0)
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(name, cell, &rows[i]); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("encode workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// ReadTable returns every row of the first sheet as strings.
func ReadTable(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	return f.GetRows(sheets[0])
}

// EnsureExt returns name with an .xlsx extension, or def when name is blank.
func EnsureExt(name, def string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = def
	}
	if !strings.EqualFold(filepath.Ext(name), Ext) {
		name += Ext
	}
	return name
}

// FileSource is an uploaded workbook staged on disk.
type FileSource struct {
	Path string
}

// Items reads the product names from the staged file.
func (s FileSource) Items() ([]model.WorkItem, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadNames(f)
}

// Release deletes the staged file.
func (s FileSource) Release() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ListSource serves items that are already in memory.
type ListSource []model.WorkItem

// Items returns the list.
func (s ListSource) Items() ([]model.WorkItem, error) { return s, nil }

// Release is a no-op.
func (ListSource) Release() error { return nil }
