// Package index is the pipeline's final stage: it materialises payload
// nodes into the hybrid vector store with idempotent, resumable, and
// compensating-rollback batch semantics.
package index

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ragproc/ragproc/engine/payload"
)

// Node is one embedding-ready record: a stable global id, the text to embed,
// and flat string metadata.
type Node struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// flatKeys maps the flat metadata fields to the payload metadata keys they
// are sourced from, first match wins. Missing keys default to empty.
var flatKeys = []struct {
	field   string
	sources []string
}{
	{"author", []string{"author"}},
	{"title", []string{"title"}},
	{"keywords", []string{"keywords", "keyWord"}},
	{"summary", []string{"summary"}},
	{"insert_date", []string{"insert_date", "insertDate"}},
}

// NodesFromPayload builds index nodes from an enriched payload. Nodes with
// empty page content are skipped. The stable id is
// "{filePath}:{internal_id}" when the clean stage assigned an internal id,
// else "{filePath}:{md5(page_content)}"; ids are unique within a file.
func NodesFromPayload(filePath string, p *payload.Payload) []Node {
	out := make([]Node, 0, len(p.Content.Nodes))
	for _, n := range p.Content.Nodes {
		if strings.TrimSpace(n.PageContent) == "" {
			continue
		}

		suffix, _ := n.Metadata["internal_id"].(string)
		if suffix == "" {
			sum := md5.Sum([]byte(n.PageContent))
			suffix = hex.EncodeToString(sum[:])
		}

		meta := map[string]string{
			"file_name":   filePath,
			"internal_id": suffix,
		}
		for _, fk := range flatKeys {
			meta[fk.field] = ""
			for _, src := range fk.sources {
				if v, ok := n.Metadata[src]; ok {
					meta[fk.field] = flatten(v)
					break
				}
			}
		}

		out = append(out, Node{
			ID:       fmt.Sprintf("%s:%s", filePath, suffix),
			Text:     n.PageContent,
			Metadata: meta,
		})
	}
	return out
}

// flatten renders a metadata value as one string; arrays join with "|".
func flatten(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case []string:
		return strings.Join(tv, "|")
	case []any:
		parts := make([]string, len(tv))
		for i, e := range tv {
			parts[i] = fmt.Sprint(e)
		}
		return strings.Join(parts, "|")
	case nil:
		return ""
	default:
		return fmt.Sprint(tv)
	}
}
