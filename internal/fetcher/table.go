package fetcher

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ctxCheckRows is how often table readers poll for cancellation.
const ctxCheckRows = 1024

// Table is a header row and its data rows, as uploaded in lead and
// reference files. Cells are trimmed and blank rows are dropped.
type Table struct {
	Header []string
	Rows   [][]string
}

// Column returns the index of the first header matching any of names, or -1.
// Headers compare case-insensitively with spaces and dashes read as
// underscores.
func (t *Table) Column(names ...string) int {
	for _, want := range names {
		want = headerKey(want)
		for i, h := range t.Header {
			if headerKey(h) == want {
				return i
			}
		}
	}
	return -1
}

// Cell returns row[i], or "" when the row is short or i is negative.
func (t *Table) Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

var headerReplacer = strings.NewReplacer(" ", "_", "-", "_")

func headerKey(h string) string {
	return headerReplacer.Replace(strings.ToLower(strings.TrimSpace(h)))
}

func (t *Table) add(rec []string) {
	for i := range rec {
		rec[i] = strings.TrimSpace(rec[i])
	}
	if t.Header == nil {
		if len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
		}
		t.Header = rec
		return
	}
	if !blank(rec) {
		t.Rows = append(t.Rows, rec)
	}
}

// ReadCSVTable reads a comma-separated file whose first record is the header.
// Records may have any width.
func ReadCSVTable(ctx context.Context, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	t := &Table{}
	for line := 1; ; line++ {
		if line%ctxCheckRows == 1 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "table: read csv")
		}
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return t, nil
		}
		if err != nil {
			return nil, eris.Wrapf(err, "table: csv record %d", line)
		}
		t.add(rec)
	}
}

// ReadXLSXTable reads the first sheet of a workbook laid out like the CSV form.
func ReadXLSXTable(path string) (*Table, error) {
	wb, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "table: open workbook %s", path)
	}
	if len(wb.Sheets) == 0 {
		return nil, eris.Errorf("table: workbook %s has no sheets", path)
	}

	t := &Table{}
	for _, row := range wb.Sheets[0].Rows {
		if row == nil {
			continue
		}
		rec := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			rec[i] = c.String()
		}
		t.add(rec)
	}
	return t, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
