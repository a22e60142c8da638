package clean

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParserForDispatch(t *testing.T) {
	if _, err := ParserFor("a/b.json"); err != nil {
		t.Errorf("json parser missing: %v", err)
	}
	if _, err := ParserFor("a/b.XLSX"); err != nil {
		t.Errorf("xlsx parser missing: %v", err)
	}
	if _, err := ParserFor("a/b.docx"); err == nil {
		t.Error("unsupported extension accepted")
	}
}

func TestJSONParser(t *testing.T) {
	raw, err := JSONParser{}.Parse(strings.NewReader(`[{"k":"v"},{"k":"w"}]`))
	if err != nil {
		t.Fatal(err)
	}
	items, ok := raw.([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("parsed = %T %v", raw, raw)
	}
}

func TestJSONParserRejectsGarbage(t *testing.T) {
	if _, err := (JSONParser{}).Parse(strings.NewReader("nope{")); err == nil {
		t.Error("garbage accepted")
	}
}

// buildWorkbook writes a header row plus data rows into an in-memory xlsx.
func buildWorkbook(t *testing.T, header []any, rows [][]any) *bytes.Reader {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		t.Fatal(err)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestExcelParser(t *testing.T) {
	r := buildWorkbook(t,
		[]any{"title", "content", "author"},
		[][]any{
			{"t1", "c1", "alice"},
			{"t2", "c2"}, // short row: author cell missing
		})

	raw, err := ExcelParser{}.Parse(r)
	if err != nil {
		t.Fatal(err)
	}
	records, ok := raw.([]map[string]string)
	if !ok {
		t.Fatalf("parsed = %T", raw)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d", len(records))
	}
	if records[0]["title"] != "t1" || records[0]["author"] != "alice" {
		t.Errorf("record 0 = %v", records[0])
	}
	if records[1]["author"] != "" {
		t.Errorf("missing cell should be empty, got %q", records[1]["author"])
	}
}

func TestExcelParserEmptySheet(t *testing.T) {
	r := buildWorkbook(t, []any{"only", "header"}, nil)
	raw, err := ExcelParser{}.Parse(r)
	if err != nil {
		t.Fatal(err)
	}
	if records := raw.([]map[string]string); len(records) != 0 {
		t.Errorf("header-only sheet produced records: %v", records)
	}
}

func TestNormalizeDateTime(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1/2/06 15:04", "2006-01-02 15:04:00"},
		{"01-02-06", "2006-01-02 00:00:00"},
		{"plain text", "plain text"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeDateTime(tt.in); got != tt.want {
			t.Errorf("normalizeDateTime(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "  just text  ", "just text"},
		{"markup", "<p>hello <b>world</b></p>", "hello world"},
		{"script skipped", "<p>keep</p><script>drop()</script>", "keep"},
	}
	for _, tt := range tests {
		if got := extractText(tt.in); got != tt.want {
			t.Errorf("%s: extractText = %q, want %q", tt.name, got, tt.want)
		}
	}
}
