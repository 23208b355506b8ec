package tabular

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Table {
	t := New("nickname", "url", "browser_to_use", "html_id_1")
	t.Append("home", "http://x.test", "chrome", "")
	t.Append("prices", "http://x.test/prices", "firefox", "price-table")
	return t
}

func TestXLSXRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sample()))

	got, err := ReadXLSX(&buf)
	require.NoError(t, err)
	assert.Equal(t, sample().Columns, got.Columns)
	assert.Equal(t, sample().Rows, got.Rows)
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, sample().Columns, got.Columns)
	assert.Equal(t, sample().Rows, got.Rows)
}

func TestRead_ByExtension(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "pages.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("code\n200\n\n301\n"), 0o644))
	tbl, err := Read(csvPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"code"}, tbl.Columns)
	assert.Equal(t, [][]string{{"200"}, {"301"}}, tbl.Rows, "blank rows are skipped")

	_, err = Read(filepath.Join(dir, "pages.json"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Read(filepath.Join(dir, "missing.xlsx"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRaggedRowsArePadded(t *testing.T) {
	tbl, err := ReadCSV(bytes.NewBufferString("a,b,c\n1\n1,2,3,4\n"))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "", ""}, {"1", "2", "3"}}, tbl.Rows)
}

func TestIndexAndRecords(t *testing.T) {
	tbl := sample()
	assert.Equal(t, 2, tbl.Index("Browser_To_Use"))
	assert.Equal(t, -1, tbl.Index("missing"))

	recs := tbl.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "price-table", recs[1]["html_id_1"])
}

func TestFormatOf(t *testing.T) {
	f, err := FormatOf("Pages.XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)
}
