package fetcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Record is one data row keyed by its normalized header.
type Record map[string]string

// Get returns the first non-empty value among the given header names.
func (r Record) Get(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(r[n]); v != "" {
			return v
		}
	}
	return ""
}

// NormalizeHeader lowercases a header cell and turns spaces and dashes into
// underscores, so "Protein (g)" and "protein-g" both become "protein_g".
func NormalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("(", "", ")", "", "-", "_", " ", "_").Replace(h)
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return strings.Trim(h, "_")
}

// Records turns rows with a header row into Records. Rows that are entirely
// blank are dropped.
func Records(rows [][]string) []Record {
	if len(rows) == 0 {
		return nil
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = NormalizeHeader(h)
	}

	var out []Record
	for _, row := range rows[1:] {
		rec := make(Record, len(header))
		blank := true
		for i, h := range header {
			if h == "" || i >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[i])
			if v != "" {
				blank = false
			}
			rec[h] = v
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out
}

// ReadFile reads a .csv or .xlsx file into Records.
func ReadFile(ctx context.Context, path string) ([]Record, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrap(openErr, "fetcher: open csv")
		}
		defer f.Close() //nolint:errcheck
		rows, err = ReadCSV(ctx, f, CSVOptions{TrimSpace: true})
	case ".xlsx":
		rows, err = ReadXLSX(path, XLSXOptions{})
	default:
		return nil, eris.Errorf("fetcher: unsupported file type %q (want .csv or .xlsx)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	return Records(rows), nil
}
