package core

// dataset.go parses uploaded CSV files into an in-memory Dataset.
//
// Uploads pass through a golang.org/x/text decoder before reaching the CSV
// reader:
//
//   - a leading UTF-8 BOM (common in files saved by Excel) is dropped
//   - invalid UTF-8 sequences are replaced with U+FFFD
//
// Header names are NFC-normalised so that visually identical names compare
// equal. Cell values are kept verbatim for the result artifact.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyFile is returned when an upload has no header row.
var ErrEmptyFile = errors.New("empty file")

// numericRegex matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Dataset is a parsed upload: a header row plus data rows of equal width.
// Column 0 is the label; the remaining columns are criteria.
type Dataset struct {
	Header []string
	Rows   [][]string
}

// ColumnCount returns the number of columns including the label column.
func (d *Dataset) ColumnCount() int {
	return len(d.Header)
}

// CriteriaCount returns the number of columns after the label column.
func (d *Dataset) CriteriaCount() int {
	if len(d.Header) == 0 {
		return 0
	}
	return len(d.Header) - 1
}

// RowCount returns the number of data rows.
func (d *Dataset) RowCount() int {
	return len(d.Rows)
}

// ParseDataset reads a CSV upload. Every record must have as many fields as
// the header. Blank lines are skipped.
func ParseDataset(r io.Reader) (*Dataset, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv header: %w", err)
	}
	for i, h := range header {
		header[i] = norm.NFC.String(h)
	}

	ds := &Dataset{Header: header}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		ds.Rows = append(ds.Rows, record)
	}
	return ds, nil
}

// IsNumeric reports whether a cell holds a plain decimal or scientific number
// that fits in a float64. Surrounding whitespace is ignored; an empty cell is
// not numeric.
func IsNumeric(cell string) bool {
	_, ok := ParseNumber(cell)
	return ok
}

// ParseNumber converts a cell to a finite float64. Values outside the float64
// range, such as 1e999, are rejected.
func ParseNumber(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if !numericRegex.MatchString(cell) {
		return 0, false
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
