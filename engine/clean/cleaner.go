package clean

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ragproc/ragproc/engine/payload"
)

// A Cleaner turns parsed records into fragments: batches of nodes, each
// batch destined for its own payload file. Cleaners build their output one
// fragment at a time; the parsed records they take are already held in
// memory in full.
type Cleaner interface {
	Clean(raw any) (FragmentIter, error)
}

// FragmentIter yields fragments until exhausted.
type FragmentIter interface {
	Next() ([]payload.Node, bool)
}

// DefaultRowsPerFile bounds how many spreadsheet rows land in one fragment.
const DefaultRowsPerFile = 100

// DefaultNodesPerFile bounds how many JSON records land in one fragment.
const DefaultNodesPerFile = 10

// CleanerFor routes a file extension to its cleaner. Unknown formats fall
// back to DefaultCleaner.
func CleanerFor(ext string, rowsPerFile int) Cleaner {
	switch strings.ToLower(ext) {
	case ".xlsx", ".xls":
		return &ExcelCleaner{RowsPerFile: rowsPerFile}
	case ".json":
		return &JSONCleaner{NodesPerFile: DefaultNodesPerFile}
	default:
		return DefaultCleaner{}
	}
}

// ExcelCleaner builds one node per spreadsheet row. The page content joins
// the configured content columns as "k: v | k: v" and is run through the
// HTML extractor; the configured metadata columns are copied alongside an
// internal_id of the form "part{fragment}_{row}".
type ExcelCleaner struct {
	RowsPerFile int
}

var (
	excelContentColumns  = []string{"title", "summary", "content"}
	excelMetadataColumns = []string{"author", "keyWord", "contentMentionRegionList", "insertDate"}
)

// Clean implements Cleaner. raw must be []map[string]string from ExcelParser.
func (c *ExcelCleaner) Clean(raw any) (FragmentIter, error) {
	rows, ok := raw.([]map[string]string)
	if !ok {
		return nil, fmt.Errorf("clean: excel cleaner wants []map[string]string, got %T", raw)
	}
	perFile := c.RowsPerFile
	if perFile <= 0 {
		perFile = DefaultRowsPerFile
	}
	return &excelIter{rows: rows, perFile: perFile}, nil
}

type excelIter struct {
	rows     []map[string]string
	perFile  int
	fragment int
}

func (it *excelIter) Next() ([]payload.Node, bool) {
	if len(it.rows) == 0 {
		return nil, false
	}
	n := it.perFile
	if n > len(it.rows) {
		n = len(it.rows)
	}
	batch := it.rows[:n]
	it.rows = it.rows[n:]

	nodes := make([]payload.Node, 0, len(batch))
	for j, row := range batch {
		parts := make([]string, 0, len(excelContentColumns))
		for _, col := range excelContentColumns {
			if v, ok := row[col]; ok {
				parts = append(parts, col+": "+v)
			}
		}
		meta := make(map[string]any, len(excelMetadataColumns)+1)
		for _, col := range excelMetadataColumns {
			if v, ok := row[col]; ok {
				meta[col] = v
			}
		}
		meta["internal_id"] = fmt.Sprintf("part%d_%d", it.fragment, j)

		nodes = append(nodes, payload.Node{
			PageContent: extractText(strings.Join(parts, " | ")),
			Metadata:    meta,
		})
	}
	it.fragment++
	return nodes, true
}

// JSONCleaner builds one node per JSON record. Non-list inputs are wrapped
// in a single-element list before grouping.
type JSONCleaner struct {
	NodesPerFile int
}

// Clean implements Cleaner.
func (c *JSONCleaner) Clean(raw any) (FragmentIter, error) {
	items, ok := raw.([]any)
	if !ok {
		items = []any{raw}
	}
	perFile := c.NodesPerFile
	if perFile <= 0 {
		perFile = DefaultNodesPerFile
	}
	return &jsonIter{items: items, perFile: perFile}, nil
}

type jsonIter struct {
	items    []any
	perFile  int
	fragment int
	offset   int
}

func (it *jsonIter) Next() ([]payload.Node, bool) {
	if len(it.items) == 0 {
		return nil, false
	}
	n := it.perFile
	if n > len(it.items) {
		n = len(it.items)
	}
	batch := it.items[:n]
	it.items = it.items[n:]

	nodes := make([]payload.Node, 0, len(batch))
	for j, item := range batch {
		var content string
		meta := make(map[string]any)

		if rec, ok := item.(map[string]any); ok {
			keys := make([]string, 0, len(rec))
			for k := range rec {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, fmt.Sprint(rec[k]))
				meta[k] = rec[k]
			}
			content = strings.Join(parts, " ")
		} else {
			content = fmt.Sprint(item)
		}
		meta["original_index"] = it.offset + j
		meta["internal_id"] = fmt.Sprintf("part%d_%d", it.fragment, j)

		nodes = append(nodes, payload.Node{PageContent: content, Metadata: meta})
	}
	it.offset += n
	it.fragment++
	return nodes, true
}

// DefaultCleaner stringifies whatever it is handed into a single node.
type DefaultCleaner struct{}

// Clean implements Cleaner.
func (DefaultCleaner) Clean(raw any) (FragmentIter, error) {
	content := strings.TrimSpace(fmt.Sprint(raw))
	return &singleIter{node: payload.Node{
		PageContent: content,
		Metadata:    map[string]any{"internal_id": "part0_0"},
	}}, nil
}

type singleIter struct {
	node payload.Node
	done bool
}

func (it *singleIter) Next() ([]payload.Node, bool) {
	if it.done {
		return nil, false
	}
	it.done = true
	return []payload.Node{it.node}, true
}
