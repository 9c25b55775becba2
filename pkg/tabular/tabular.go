// Package tabular decodes uploaded rule files (CSV or XLSX workbooks)
// into an ordered sequence of header-keyed rows. It is the leaf of the
// bulk-upload pipeline: it knows nothing about rules, only about
// turning bytes into rows.
package tabular

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// MaxFileSize is the upload size bound, enforced before any decoding.
const MaxFileSize = 10 << 20 // 10MB

// Sentinel errors. All three surface before any row reaches the caller;
// there is no partial output at the parse layer.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrFileTooLarge      = errors.New("file exceeds maximum size")
	ErrMalformedFile     = errors.New("malformed file")
)

// Row is one data row of the uploaded file. Number is 1-based and
// counts data rows only (the header row is excluded), so it matches
// what a user sees when they open the file minus the header.
type Row struct {
	Number int
	values map[string]string
}

// Get returns the trimmed cell value for a column, matched
// case-insensitively. Missing columns read as empty.
func (r Row) Get(column string) string {
	return r.values[strings.ToLower(strings.TrimSpace(column))]
}

// Table is the fully decoded file: the set of recognized columns from
// the header row plus every data row in file order.
type Table struct {
	columns map[string]bool
	Rows    []Row
}

// HasColumn reports whether the header row named the given column,
// case-insensitively.
func (t *Table) HasColumn(name string) bool {
	return t.columns[strings.ToLower(strings.TrimSpace(name))]
}

// Parse decodes an uploaded file. The declared size is checked against
// MaxFileSize before any bytes are read; the reader is additionally
// capped so a lying Content-Length cannot bypass the bound. The
// filename extension selects the decoder: .csv is parsed as CSV,
// .xlsx/.xls as an OOXML workbook. Empty files yield zero rows.
func Parse(r io.Reader, filename string, size int64) (*Table, error) {
	if size > MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrFileTooLarge, size, MaxFileSize)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(io.LimitReader(r, MaxFileSize+1))
	case ".xlsx", ".xls":
		return parseXLSX(io.LimitReader(r, MaxFileSize+1))
	default:
		return nil, fmt.Errorf("%w: %q (expected .csv, .xlsx or .xls)", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

// newTable builds a Table from a header record and raw data records.
// Blank records keep their position in the numbering but are not
// emitted, so error rows still line up with the source file.
func newTable(header []string, records [][]string) *Table {
	t := &Table{columns: make(map[string]bool, len(header))}

	cols := make([]string, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		cols[i] = name
		if name != "" {
			t.columns[name] = true
		}
	}

	for n, record := range records {
		blank := true
		values := make(map[string]string, len(cols))
		for i, cell := range record {
			if i >= len(cols) || cols[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell != "" {
				blank = false
			}
			values[cols[i]] = cell
		}
		if blank {
			continue
		}
		t.Rows = append(t.Rows, Row{Number: n + 1, values: values})
	}
	return t
}
