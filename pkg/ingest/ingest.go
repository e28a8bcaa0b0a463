// Package ingest turns uploaded CSV, XLSX and XLS ledgers into a plain table
// of header names and string cells.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Format identifies the container of an uploaded ledger.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

var (
	// ErrEmpty is returned when a file has no header row.
	ErrEmpty = errors.New("file has no header row")
	// ErrUnreadable wraps parser failures on malformed files.
	ErrUnreadable = errors.New("unreadable spreadsheet")
)

// Table is the first sheet of an upload. Rows are padded to the header width.
type Table struct {
	Header []string
	Rows   [][]string
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// DetectFormat picks the format from the file extension, falling back to
// the magic bytes of the content.
func DetectFormat(filename string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatCSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".xls":
		return FormatXLS
	}
	switch {
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return FormatXLSX
	case bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0}):
		return FormatXLS
	}
	return FormatCSV
}

// Read parses the upload according to its detected format.
func Read(filename string, data []byte) (*Table, error) {
	var (
		rows [][]string
		err  error
	)
	switch DetectFormat(filename, data) {
	case FormatXLSX:
		rows, err = parseExcelFile(data)
	case FormatXLS:
		rows, err = parseXLSFile(data)
	default:
		rows, err = parseCSVFile(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrUnreadable, filename, err)
	}
	return newTable(rows)
}

func newTable(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	t := &Table{Header: header}
	for _, raw := range rows[1:] {
		if isEmptyRow(raw) {
			continue
		}
		row := make([]string, len(header))
		for j := range row {
			if j < len(raw) {
				row[j] = strings.TrimSpace(raw[j])
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// parseExcelFile reads the first sheet. Raw values keep dates as serial
// numbers instead of whatever display format the workbook uses.
func parseExcelFile(data []byte) ([][]string, error) {
	xl, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer xl.Close()

	sheetName := xl.GetSheetName(0)
	return xl.GetRows(sheetName, excelize.Options{RawCellValue: true})
}

// parseXLSFile reads the first sheet of a legacy workbook.
func parseXLSFile(data []byte) ([][]string, error) {
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if book.NumSheets() == 0 {
		return nil, fmt.Errorf("no sheets found")
	}
	sheet := book.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("could not get first sheet")
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := range cells {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func parseCSVFile(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
