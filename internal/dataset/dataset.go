// Package dataset holds the tabular model the pipeline moves between stages:
// CSV loading, LEI column reshaping, and SDMX-CSV 2.0 serialization.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrColumnMissing = errors.New("column missing")

// Table is an in-memory tabular dataset. All values are strings; the pipeline
// never interprets cell contents beyond equality checks.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ColumnIndex returns the position of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// NumRows returns the number of data rows.
func (t *Table) NumRows() int { return len(t.Rows) }

// LoadCSV reads a header row plus up to rowLimit data rows from r. A
// non-positive rowLimit reads everything. Short rows are padded with empty
// strings so downstream indexing stays safe.
func LoadCSV(r io.Reader, rowLimit int) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("reading csv header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}

	t := &Table{Columns: header}
	for rowLimit <= 0 || len(t.Rows) < rowLimit {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv row %d: %w", len(t.Rows)+2, err)
		}
		for len(row) < len(header) {
			row = append(row, "")
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// LoadCSVFile reads a CSV file from disk. See LoadCSV.
func LoadCSVFile(path string, rowLimit int) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return LoadCSV(f, rowLimit)
}
