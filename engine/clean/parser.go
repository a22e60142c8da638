// Package clean is the pipeline's first stage: it parses raw source files,
// applies a format-specific cleaner that yields fragments of nodes, persists
// each fragment as an independent payload, and fans the fragments out to the
// chunk stage.
package clean

import (
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Parser turns a raw byte stream into native records for a cleaner.
type Parser interface {
	Parse(r io.Reader) (any, error)
}

// ParserFor routes a file path to its parser by extension.
func ParserFor(filePath string) (Parser, error) {
	switch strings.ToLower(path.Ext(filePath)) {
	case ".json":
		return JSONParser{}, nil
	case ".xlsx", ".xls":
		return ExcelParser{}, nil
	default:
		return nil, fmt.Errorf("clean: unsupported file format %q", path.Ext(filePath))
	}
}

// JSONParser decodes a JSON document into its native value.
type JSONParser struct{}

// Parse implements Parser.
func (JSONParser) Parse(r io.Reader) (any, error) {
	var v any
	dec := json.NewDecoder(r)
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("clean: parse json: %w", err)
	}
	return v, nil
}

// ExcelParser reads the first sheet of a workbook, one record per row keyed
// by the header row. Datetime cells are normalised to "2006-01-02 15:04:05"
// and empty cells come through as empty strings.
type ExcelParser struct{}

// Parse implements Parser. The result is []map[string]string.
func (ExcelParser) Parse(r io.Reader) (any, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("clean: open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return []map[string]string{}, nil
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("clean: read sheet %s: %w", sheets[0], err)
	}
	if len(rows) < 2 {
		return []map[string]string{}, nil
	}

	header := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if col == "" {
				continue
			}
			val := ""
			if i < len(row) {
				val = row[i]
			}
			rec[col] = normalizeDateTime(val)
		}
		records = append(records, rec)
	}
	return records, nil
}

// excelDateLayouts are cell formats excelize commonly renders datetime
// values with.
var excelDateLayouts = []string{
	"1/2/06 15:04",
	"01-02-06 15:04",
	"1/2/2006 15:04:05",
	"2006/01/02 15:04:05",
	time.RFC3339,
	"01-02-06",
	"1/2/06",
}

// normalizeDateTime rewrites recognised datetime cell values to the
// canonical "2006-01-02 15:04:05" form; anything else passes through.
func normalizeDateTime(val string) string {
	if val == "" {
		return val
	}
	for _, layout := range excelDateLayouts {
		if t, err := time.Parse(layout, val); err == nil {
			return t.Format("2006-01-02 15:04:05")
		}
	}
	return val
}
