// Package payload defines the canonical document model carried between
// pipeline stages and its persistence over the object store. A payload file
// is written once by the producing stage; consumers derive a new path for
// their output and never rewrite a predecessor.
package payload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/ragproc/ragproc/pkg/objstore"
)

// SchemaVersion is the payload content schema this code writes.
const SchemaVersion = "1.0"

// ErrMalformed marks a payload that cannot be read or decoded. Messages
// pointing at malformed payloads are poison: retrying cannot succeed, so
// workers ACK and drop them.
var ErrMalformed = errors.New("malformed payload")

// Node is the smallest unit of retrievable content. Metadata accumulates
// across stages: clean injects internal_id and source columns, enrich injects
// summary/keywords/suggested_questions.
type Node struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

// ContentBody carries the versioned node sequence plus its instructions.
type ContentBody struct {
	Version      string       `json:"version"`
	Instructions Instructions `json:"pipeline_instructions"`
	Nodes        []Node       `json:"nodes"`
}

// Payload is the document exchanged between stages, persisted as JSON.
type Payload struct {
	Content  ContentBody    `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// New returns a payload with defaulted instructions and the given nodes.
func New(nodes []Node, metadata map[string]any) *Payload {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Payload{
		Content: ContentBody{
			Version:      SchemaVersion,
			Instructions: DefaultInstructions(),
			Nodes:        nodes,
		},
		Metadata: metadata,
	}
}

// Encode serialises the payload as UTF-8 JSON without escaping non-ASCII.
func (p *Payload) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("payload: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses payload JSON. Decode failures wrap ErrMalformed.
func Decode(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("payload: decode: %w: %v", ErrMalformed, err)
	}
	if p.Content.Version == "" {
		p.Content.Version = SchemaVersion
	}
	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	return &p, nil
}

// Load reads and decodes a payload from the object store. A missing or
// unreadable object wraps ErrMalformed: the path came from a task message
// and a retry would read the same missing object again.
func Load(ctx context.Context, store objstore.Store, filePath string) (*Payload, error) {
	rc, err := store.Load(ctx, filePath)
	if err != nil {
		return nil, fmt.Errorf("payload: load %s: %w: %v", filePath, ErrMalformed, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("payload: read %s: %w: %v", filePath, ErrMalformed, err)
	}
	return Decode(data)
}

// Save encodes and persists the payload at the given path.
func Save(ctx context.Context, store objstore.Store, p *Payload, filePath string) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	if err := store.Save(ctx, data, filePath); err != nil {
		return fmt.Errorf("payload: save %s: %w", filePath, err)
	}
	return nil
}

// FragmentPath derives the clean stage's per-fragment output path:
// data/report.xlsx -> data/report_part3.json.
func FragmentPath(sourcePath string, idx int) string {
	root := strings.TrimSuffix(sourcePath, path.Ext(sourcePath))
	return fmt.Sprintf("%s_part%d.json", root, idx)
}

// ChunkedPath derives the chunk stage's output path.
func ChunkedPath(inputPath string) string {
	return suffixed(inputPath, "_chunked")
}

// EnrichedPath derives the enrich stage's output path.
func EnrichedPath(inputPath string) string {
	return suffixed(inputPath, "_enriched")
}

func suffixed(p, suffix string) string {
	ext := path.Ext(p)
	return strings.TrimSuffix(p, ext) + suffix + ext
}
