package sheet

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/price-batch-service/internal/model"
)

func workbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	data, err := Encode(rows)
	require.NoError(t, err)
	return data
}

func TestReadNamesSkipsHeaderAndBlanks(t *testing.T) {
	data := workbook(t,
		[]any{"상품명", "memo"},
		[]any{"Widget A", "x"},
		[]any{"  "},
		[]any{"플루크 87V"},
	)
	items, err := ReadNames(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []model.WorkItem{"Widget A", "플루크 87V"}, items)
}

func TestReadNamesRejectsGarbage(t *testing.T) {
	_, err := ReadNames(bytes.NewReader([]byte("not a workbook")))
	assert.Error(t, err)
}

func TestEncodeRoundTripWithAbsentCells(t *testing.T) {
	data := workbook(t,
		[]any{"product_name", "highest_price", "lowest_price"},
		[]any{"Widget A", int64(10000), int64(8000)},
		[]any{"Widget B", nil, nil},
	)
	rows, err := ReadTable(data)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Widget A", "10000", "8000"}, rows[1])
	assert.Equal(t, "Widget B", rows[2][0])
	for _, cell := range rows[2][1:] {
		assert.Empty(t, cell)
	}
}

func TestEnsureExt(t *testing.T) {
	assert.Equal(t, "price_results.xlsx", EnsureExt("", "price_results.xlsx"))
	assert.Equal(t, "report.xlsx", EnsureExt("report", "x.xlsx"))
	assert.Equal(t, "report.XLSX", EnsureExt("report.XLSX", "x.xlsx"))
	assert.Equal(t, "report.csv.xlsx", EnsureExt("report.csv", "x.xlsx"))
	assert.Equal(t, "passwd.xlsx", EnsureExt("../../etc/passwd", "x.xlsx"))
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "upload.xlsx")
	require.NoError(t, os.WriteFile(path, workbook(t, []any{"name"}, []any{"A"}), 0o600))
	src := FileSource{Path: path}
	items, err := src.Items()
	require.NoError(t, err)
	assert.Equal(t, []model.WorkItem{"A"}, items)

	require.NoError(t, src.Release())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, src.Release())

	_, err = src.Items()
	assert.Error(t, err)
}

func TestListSource(t *testing.T) {
	src := ListSource{"a", "b"}
	got, err := src.Items()
	require.NoError(t, err)
	assert.Equal(t, []model.WorkItem{"a", "b"}, got)
	assert.NoError(t, src.Release())
}
