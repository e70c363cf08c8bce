// Package tabular materializes decoded JSON values as files: indented JSON
// documents, header-plus-rows CSV tables, and verbatim text.
package tabular

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// Row is one record of a table. Values are whatever encoding/json produced.
type Row = map[string]any

// WriteStructured writes v as indented JSON, creating parent directories.
func WriteStructured(v any, path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, buf.Bytes())
}

// WriteText writes text verbatim, creating parent directories.
func WriteText(text, path string) error {
	return writeFile(path, []byte(text))
}

// WriteTable writes rows as CSV. An empty rows slice produces a zero-byte
// file. With columns nil the header is the sorted union of all row keys.
func WriteTable(rows []Row, path string, columns []string) error {
	if len(rows) == 0 {
		return writeFile(path, nil)
	}
	if columns == nil {
		columns = Columns(rows)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(columns))
	for i, row := range rows {
		for j, col := range columns {
			record[j] = Cell(row[col])
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("csv flush: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// Columns returns the sorted union of keys across rows.
func Columns(rows []Row) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// Rows converts a decoded JSON array of objects into rows. ok is false when
// v is not an array; array elements that are not objects are skipped.
func Rows(v any) (rows []Row, ok bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	rows = make([]Row, 0, len(items))
	for _, item := range items {
		if m, isMap := item.(map[string]any); isMap {
			rows = append(rows, m)
		}
	}
	return rows, true
}

// Cell renders a single value for a CSV cell. Missing and null values are
// empty; nested objects and arrays are written as compact JSON.
func Cell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
