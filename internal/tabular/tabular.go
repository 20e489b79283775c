// Package tabular decodes uploaded spreadsheet files into string records.
// It is a parsing utility only; column semantics belong to the validator.
package tabular

import (
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Sentinel kinds for decode failures.
var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrNoHeader          = errors.New("file has no header row")
)

// Table is a decoded spreadsheet: normalized column names plus one string
// record per non-blank data row.
type Table struct {
	Columns []string
	Records []map[string]string
}

// Has reports whether the table carries the named column.
func (t *Table) Has(column string) bool {
	for _, c := range t.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// Option applies a decode option.
type Option func(*decoder)

// WithSkipRows drops n leading rows before reading the header.
func WithSkipRows(n int) Option {
	return func(d *decoder) {
		if n > 0 {
			d.skipRows = n
		}
	}
}

type decoder struct {
	skipRows int
}

// Decode parses the named upload into a Table. The format is chosen by the
// file extension: .csv or .xlsx.
func Decode(filename string, r io.Reader, opts ...Option) (*Table, error) {
	d := &decoder{}
	for _, opt := range opts {
		opt(d)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return d.decodeCSV(r)
	case ".xlsx":
		return d.decodeXLSX(r)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", filename)
	}
}

func (d *decoder) decodeCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading csv")
	}
	return d.build(rows)
}

func (d *decoder) decodeXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening workbook")
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "reading sheet %s", sheets[0])
	}
	return d.build(rows)
}

// build normalizes the raw cell grid: skip leading rows, lowercase and trim
// the header, drop blank rows, pad ragged rows to the header width.
func (d *decoder) build(rows [][]string) (*Table, error) {
	if d.skipRows > 0 {
		if d.skipRows >= len(rows) {
			return nil, ErrNoHeader
		}
		rows = rows[d.skipRows:]
	}
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}

	columns := make([]string, len(rows[0]))
	for i, c := range rows[0] {
		columns[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(c, "\uFEFF")))
	}

	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := make(map[string]string, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			if i < len(row) {
				rec[col] = strings.TrimSpace(row[i])
			} else {
				rec[col] = ""
			}
		}
		records = append(records, rec)
	}

	return &Table{Columns: columns, Records: records}, nil
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
