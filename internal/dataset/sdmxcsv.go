package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
)

// StructureRef identifies the data structure definition a serialized dataset
// reports against.
type StructureRef struct {
	Agency  string
	ID      string
	Version string
}

// String renders the SDMX-CSV structure identifier, e.g. "MD:LEI_DATA(1.0)".
func (r StructureRef) String() string {
	return fmt.Sprintf("%s:%s(%s)", r.Agency, r.ID, r.Version)
}

// delimiterRunes maps FMR delimiter names onto CSV field separators.
var delimiterRunes = map[string]rune{
	"comma":     ',',
	"semicolon": ';',
	"tab":       '\t',
	"space":     ' ',
}

// WriteSDMXCSV serializes a table as SDMX-CSV 2.0: leading STRUCTURE,
// STRUCTURE_ID and ACTION columns referencing the datastructure artifact,
// then one column per component. Every row carries the insert action.
func WriteSDMXCSV(t *Table, ref StructureRef, delimiter string) (string, error) {
	sep, ok := delimiterRunes[delimiter]
	if !ok {
		return "", fmt.Errorf("unknown delimiter %q", delimiter)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = sep

	header := append([]string{"STRUCTURE", "STRUCTURE_ID", "ACTION"}, t.Columns...)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("writing sdmx-csv header: %w", err)
	}

	for i, row := range t.Rows {
		record := append([]string{"datastructure", ref.String(), "I"}, row...)
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("writing sdmx-csv row %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing sdmx-csv: %w", err)
	}
	return buf.String(), nil
}

// WriteSDMXCSVFile serializes the table and writes it to path.
func WriteSDMXCSVFile(t *Table, ref StructureRef, delimiter, path string) error {
	text, err := WriteSDMXCSV(t, ref, delimiter)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// WriteCSV serializes a table as plain comma-separated CSV with a header row.
func WriteCSV(t *Table) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return "", fmt.Errorf("writing csv header: %w", err)
	}
	for i, row := range t.Rows {
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("writing csv row %d: %w", i+1, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing csv: %w", err)
	}
	return buf.String(), nil
}
