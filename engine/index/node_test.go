package index

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/ragproc/ragproc/engine/payload"
)

func TestNodesFromPayloadStableIDs(t *testing.T) {
	p := payload.New([]payload.Node{
		{PageContent: "a", Metadata: map[string]any{"internal_id": "part0_0"}},
		{PageContent: "b", Metadata: map[string]any{"internal_id": "part0_1"}},
	}, nil)

	nodes := NodesFromPayload("data/doc_part0.json", p)
	if len(nodes) != 2 {
		t.Fatalf("nodes = %d", len(nodes))
	}
	if nodes[0].ID != "data/doc_part0.json:part0_0" {
		t.Errorf("id = %q", nodes[0].ID)
	}
	if nodes[0].ID == nodes[1].ID {
		t.Error("ids not unique within file")
	}
}

func TestNodesFromPayloadMD5Fallback(t *testing.T) {
	p := payload.New([]payload.Node{{PageContent: "no internal id here"}}, nil)
	nodes := NodesFromPayload("f.json", p)

	sum := md5.Sum([]byte("no internal id here"))
	want := "f.json:" + hex.EncodeToString(sum[:])
	if nodes[0].ID != want {
		t.Errorf("id = %q, want %q", nodes[0].ID, want)
	}
}

func TestNodesFromPayloadSkipsEmpty(t *testing.T) {
	p := payload.New([]payload.Node{
		{PageContent: ""},
		{PageContent: "   \n\t"},
		{PageContent: "kept"},
	}, nil)
	nodes := NodesFromPayload("f.json", p)
	if len(nodes) != 1 || nodes[0].Text != "kept" {
		t.Errorf("nodes = %+v, want only the non-blank one", nodes)
	}
}

func TestNodesFromPayloadFlatMetadata(t *testing.T) {
	p := payload.New([]payload.Node{{
		PageContent: "text",
		Metadata: map[string]any{
			"internal_id": "part0_0",
			"author":      "alice",
			"keywords":    []any{"k1", "k2", "k3"},
			"summary":     "S",
			"insertDate":  "2026-01-02 03:04:05",
		},
	}}, nil)

	meta := NodesFromPayload("f.json", p)[0].Metadata
	if meta["file_name"] != "f.json" || meta["internal_id"] != "part0_0" {
		t.Errorf("identity fields = %v", meta)
	}
	if meta["keywords"] != "k1|k2|k3" {
		t.Errorf("keywords = %q, want pipe-joined", meta["keywords"])
	}
	if meta["insert_date"] != "2026-01-02 03:04:05" {
		t.Errorf("insert_date = %q", meta["insert_date"])
	}
	// Missing keys default to empty, never absent.
	if v, ok := meta["title"]; !ok || v != "" {
		t.Errorf("title = %q, %v", v, ok)
	}
}

func TestFlatten(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"s", "s"},
		{[]string{"a", "b"}, "a|b"},
		{[]any{"a", 2}, "a|2"},
		{nil, ""},
		{7, "7"},
	}
	for _, tt := range tests {
		if got := flatten(tt.in); got != tt.want {
			t.Errorf("flatten(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodeSparse(t *testing.T) {
	indices, values := EncodeSparse("Fuse fuse relay")
	if len(indices) != 2 || len(values) != 2 {
		t.Fatalf("sparse = %v / %v, want 2 distinct terms", indices, values)
	}
	for i := 1; i < len(indices); i++ {
		if indices[i] <= indices[i-1] {
			t.Error("indices not sorted unique")
		}
	}

	// Deterministic across calls.
	again, _ := EncodeSparse("Fuse fuse relay")
	for i := range indices {
		if indices[i] != again[i] {
			t.Error("encoding not deterministic")
		}
	}
}

func TestEncodeSparseEmpty(t *testing.T) {
	if indices, values := EncodeSparse("   "); indices != nil || values != nil {
		t.Errorf("blank text = %v / %v", indices, values)
	}
}

func TestEncodeSparseWeightsRepeats(t *testing.T) {
	indices, values := EncodeSparse("alpha alpha alpha beta")
	if len(indices) != 2 {
		t.Fatalf("terms = %d", len(indices))
	}
	var hi, lo float32
	for _, v := range values {
		if v > hi {
			hi = v
		}
	}
	lo = values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
	}
	if hi <= lo {
		t.Error("repeated term not weighted above singleton")
	}
}
