// Package tabular reads and writes the row/column tables used for settings, page lists and extraction results.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var ErrUnsupportedFormat = errors.New("unsupported table format")

// Table is a header row plus data rows. Every row has exactly len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

func New(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Append adds a row, padding or truncating it to the column count.
func (t *Table) Append(cells ...string) {
	t.Rows = append(t.Rows, fit(cells, len(t.Columns)))
}

// Index returns the position of the column with the given name, compared case-insensitively.
func (t *Table) Index(column string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(c), column) {
			return i
		}
	}
	return -1
}

// Records returns each row as a column name to value map.
func (t *Table) Records() []map[string]string {
	records := make([]map[string]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]string, len(t.Columns))
		for i, c := range t.Columns {
			rec[c] = row[i]
		}
		records = append(records, rec)
	}
	return records
}

// FormatOf maps a file name to its table format by extension.
func FormatOf(name string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
	}
}

// Read loads the first sheet of an xlsx file or a csv file. The first row is the header.
func Read(path string) (*Table, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if format == FormatXLSX {
		return ReadXLSX(f)
	}
	return ReadCSV(f)
}

func ReadXLSX(r io.Reader) (*Table, error) {
	wb, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, errors.New("table has no header row")
	}
	t := &Table{Columns: make([]string, 0, len(rows[0]))}
	for _, c := range rows[0] {
		t.Columns = append(t.Columns, strings.TrimSpace(c))
	}
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		t.Append(row...)
	}
	return t, nil
}

func WriteXLSX(w io.Writer, t *Table) error {
	wb := excelize.NewFile()
	defer wb.Close()
	sheet := wb.GetSheetName(0)

	if err := setRow(wb, sheet, 1, t.Columns); err != nil {
		return err
	}
	for i, row := range t.Rows {
		if err := setRow(wb, sheet, i+2, row); err != nil {
			return err
		}
	}
	return wb.Write(w)
}

func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

func setRow(wb *excelize.File, sheet string, rowNum int, cells []string) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	values := make([]interface{}, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	return wb.SetSheetRow(sheet, cell, &values)
}

func fit(cells []string, n int) []string {
	row := make([]string, n)
	copy(row, cells)
	return row
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
