package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dnc-scrub/internal/model"
)

// phoneHeaders are the accepted names for the phone column, in preference
// order.
var phoneHeaders = []string{"phone_number", "phone", "phonenumber", "telephone", "mobile", "cell"}

// ReadLeads reads a lead file, choosing the parser by extension
// (.csv, .xlsx, .json).
func ReadLeads(ctx context.Context, path string) ([]model.Lead, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "leads: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadLeadsCSV(ctx, f)
	case ".xlsx":
		return ReadLeadsXLSX(path)
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "leads: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return ReadLeadsJSON(ctx, f)
	default:
		return nil, eris.Errorf("leads: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadLeadsCSV reads a CSV whose first row is a header naming the phone
// column. Every other column is carried as a pass-through field.
func ReadLeadsCSV(ctx context.Context, r io.Reader) ([]model.Lead, error) {
	t, err := ReadCSVTable(ctx, r)
	if err != nil {
		return nil, eris.Wrap(err, "leads: read csv")
	}
	return leadsFromTable(t)
}

// ReadLeadsXLSX reads the first sheet of a workbook laid out like the CSV form.
func ReadLeadsXLSX(path string) ([]model.Lead, error) {
	t, err := ReadXLSXTable(path)
	if err != nil {
		return nil, eris.Wrap(err, "leads: read xlsx")
	}
	return leadsFromTable(t)
}

// ReadLeadsJSON reads a JSON array of objects, each with a phone_number key.
// Elements are decoded one at a time so large uploads are never held twice.
func ReadLeadsJSON(ctx context.Context, r io.Reader) ([]model.Lead, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "leads: read json")
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, eris.Errorf("leads: expected '[' at start of json, got %v", tok)
	}

	var leads []model.Lead
	for dec.More() {
		if len(leads)%ctxCheckRows == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "leads: read json")
		}
		var l model.Lead
		if err := dec.Decode(&l); err != nil {
			return nil, eris.Wrapf(err, "leads: json element %d", len(leads))
		}
		leads = append(leads, l)
	}
	if _, err := dec.Token(); err != nil {
		return nil, eris.Wrap(err, "leads: json closing bracket")
	}
	return leads, nil
}

func leadsFromTable(t *Table) ([]model.Lead, error) {
	if t.Header == nil {
		return nil, nil
	}
	col := t.Column(phoneHeaders...)
	if col < 0 {
		return nil, eris.Errorf("leads: no phone column in header %v", t.Header)
	}

	leads := make([]model.Lead, 0, len(t.Rows))
	for _, row := range t.Rows {
		lead := model.Lead{
			PhoneNumber: t.Cell(row, col),
			Fields:      make(map[string]any, len(t.Header)-1),
		}
		for i, name := range t.Header {
			if i != col && name != "" {
				lead.Fields[name] = t.Cell(row, i)
			}
		}
		leads = append(leads, lead)
	}
	return leads, nil
}
