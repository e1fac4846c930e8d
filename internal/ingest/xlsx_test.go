package ingest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

// createTestXLSX writes a workbook with one sheet per entry of sheets.
func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, r := range rows {
			row := sheet.AddRow()
			for _, v := range r {
				row.AddCell().SetString(v)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadXLSX_BySheetName(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Registros": {{"line_id", "value"}, {"1", " 7.5 "}},
	})
	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "Registros"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"line_id", "value"}, {"1", "7.5"}}, rows)
}

func TestReadXLSX_SheetErrors(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{"Hoja1": {{"a"}}})

	_, err := ReadXLSX(path, XLSXOptions{SheetName: "Otra"})
	assert.ErrorContains(t, err, "not found")

	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.ErrorContains(t, err, "out of range")

	_, err = ReadXLSX(filepath.Join(t.TempDir(), "missing.xlsx"), XLSXOptions{})
	assert.Error(t, err)
}

func TestReadXLSX_DateCell(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Hoja1")
	require.NoError(t, err)
	sheet.AddRow().AddCell().SetString("taken_at")
	sheet.AddRow().AddCell().SetDateTime(time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC))
	path := filepath.Join(t.TempDir(), "dates.xlsx")
	require.NoError(t, f.Save(path))

	rows, err := ReadXLSX(path, XLSXOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	got, err := parseTime(rows[1][0], time.UTC)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC), got, time.Second)
}
