package clean

import (
	"fmt"
	"testing"

	"github.com/ragproc/ragproc/engine/payload"
)

func excelRows(n int) []map[string]string {
	rows := make([]map[string]string, n)
	for i := range rows {
		rows[i] = map[string]string{
			"title":      fmt.Sprintf("title %d", i),
			"summary":    fmt.Sprintf("summary %d", i),
			"content":    fmt.Sprintf("content %d", i),
			"author":     "alice",
			"keyWord":    "fuse,relay",
			"insertDate": "2026-01-02 03:04:05",
			"ignored":    "not a configured column",
		}
	}
	return rows
}

func collect(t *testing.T, it FragmentIter) [][]payload.Node {
	t.Helper()
	var out [][]payload.Node
	for {
		nodes, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, nodes)
	}
}

func TestExcelCleanerFragmentSizes(t *testing.T) {
	c := &ExcelCleaner{RowsPerFile: 100}
	it, err := c.Clean(excelRows(250))
	if err != nil {
		t.Fatal(err)
	}
	fragments := collect(t, it)

	if len(fragments) != 3 {
		t.Fatalf("fragments = %d, want 3", len(fragments))
	}
	for i, want := range []int{100, 100, 50} {
		if len(fragments[i]) != want {
			t.Errorf("fragment %d has %d nodes, want %d", i, len(fragments[i]), want)
		}
	}
	// Fragment-relative row numbering restarts per fragment.
	if got := fragments[2][49].Metadata["internal_id"]; got != "part2_49" {
		t.Errorf("last internal_id = %v, want part2_49", got)
	}
}

func TestExcelCleanerNodeShape(t *testing.T) {
	c := &ExcelCleaner{RowsPerFile: 10}
	it, err := c.Clean(excelRows(1))
	if err != nil {
		t.Fatal(err)
	}
	fragments := collect(t, it)
	node := fragments[0][0]

	want := "title: title 0 | summary: summary 0 | content: content 0"
	if node.PageContent != want {
		t.Errorf("page_content = %q, want %q", node.PageContent, want)
	}
	if node.Metadata["author"] != "alice" || node.Metadata["keyWord"] != "fuse,relay" {
		t.Errorf("metadata columns missing: %v", node.Metadata)
	}
	if _, ok := node.Metadata["ignored"]; ok {
		t.Error("unconfigured column copied into metadata")
	}
	if node.Metadata["internal_id"] != "part0_0" {
		t.Errorf("internal_id = %v", node.Metadata["internal_id"])
	}
}

func TestExcelCleanerStripsMarkup(t *testing.T) {
	rows := []map[string]string{{"content": "<div>inner <em>text</em></div>"}}
	it, err := (&ExcelCleaner{RowsPerFile: 10}).Clean(rows)
	if err != nil {
		t.Fatal(err)
	}
	node := collect(t, it)[0][0]
	if node.PageContent != "content: inner text" {
		t.Errorf("page_content = %q", node.PageContent)
	}
}

func TestExcelCleanerWrongInput(t *testing.T) {
	if _, err := (&ExcelCleaner{}).Clean("not rows"); err == nil {
		t.Error("wrong input type accepted")
	}
}

func TestJSONCleanerGroupsRecords(t *testing.T) {
	items := make([]any, 25)
	for i := range items {
		items[i] = map[string]any{"name": fmt.Sprintf("item %d", i)}
	}
	it, err := (&JSONCleaner{NodesPerFile: 10}).Clean(items)
	if err != nil {
		t.Fatal(err)
	}
	fragments := collect(t, it)

	if len(fragments) != 3 {
		t.Fatalf("fragments = %d, want 3", len(fragments))
	}
	if got := fragments[2][4].Metadata["original_index"]; got != 24 {
		t.Errorf("original_index = %v, want 24", got)
	}
	if fragments[1][0].PageContent != "item 10" {
		t.Errorf("page_content = %q", fragments[1][0].PageContent)
	}
}

func TestJSONCleanerWrapsNonList(t *testing.T) {
	it, err := (&JSONCleaner{}).Clean(map[string]any{"solo": "record"})
	if err != nil {
		t.Fatal(err)
	}
	fragments := collect(t, it)
	if len(fragments) != 1 || len(fragments[0]) != 1 {
		t.Fatalf("non-list input not wrapped: %v", fragments)
	}
	if fragments[0][0].PageContent != "record" {
		t.Errorf("page_content = %q", fragments[0][0].PageContent)
	}
}

func TestDefaultCleanerStringifies(t *testing.T) {
	it, err := DefaultCleaner{}.Clean(42)
	if err != nil {
		t.Fatal(err)
	}
	fragments := collect(t, it)
	if len(fragments) != 1 || fragments[0][0].PageContent != "42" {
		t.Errorf("fragments = %v", fragments)
	}
}

func TestCleanerForDispatch(t *testing.T) {
	if _, ok := CleanerFor(".xlsx", 10).(*ExcelCleaner); !ok {
		t.Error("xlsx did not get the excel cleaner")
	}
	if _, ok := CleanerFor(".json", 10).(*JSONCleaner); !ok {
		t.Error("json did not get the json cleaner")
	}
	if _, ok := CleanerFor(".txt", 10).(DefaultCleaner); !ok {
		t.Error("unknown extension did not fall back")
	}
}
