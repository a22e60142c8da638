// Package chunk is the pipeline's second stage: it splits each payload node
// into finer nodes according to the payload's chunk_method instruction.
package chunk

import "github.com/ragproc/ragproc/engine/payload"

// Piece is one splitter output: the chunk text plus strategy metadata that
// overlays the source node's metadata.
type Piece struct {
	Content  string
	Metadata map[string]any
}

// Chunker splits one node's text under the payload instructions.
type Chunker interface {
	Split(text string, in payload.Instructions) []Piece
}

// For dispatches a chunk method to its strategy. Unrecognised methods —
// including "llm", which has no splitter yet — fall back to NoSplit.
func For(method payload.ChunkMethod) Chunker {
	switch method {
	case payload.ChunkSentence:
		return Sentence{}
	case payload.ChunkFixedSize:
		return FixedSize{}
	case payload.ChunkSemantic:
		return Semantic{}
	default:
		return NoSplit{}
	}
}

// NoSplit returns the whole text as a single chunk.
type NoSplit struct{}

// Split implements Chunker.
func (NoSplit) Split(text string, _ payload.Instructions) []Piece {
	return []Piece{{Content: text, Metadata: map[string]any{"strategy": "none"}}}
}

// Semantic is reserved: until the similarity splitter lands it passes the
// text through tagged as pending.
type Semantic struct{}

// Split implements Chunker.
func (Semantic) Split(text string, _ payload.Instructions) []Piece {
	return []Piece{{Content: text, Metadata: map[string]any{"strategy": "semantic_pending"}}}
}

// FixedSize slides a rune window of chunk_size with chunk_overlap runes of
// lookback.
type FixedSize struct{}

// Split implements Chunker.
func (FixedSize) Split(text string, in payload.Instructions) []Piece {
	size := in.ChunkSize
	if size <= 0 {
		size = payload.DefaultChunkSize
	}
	overlap := in.ChunkOverlap
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(text)
	if len(runes) == 0 {
		return []Piece{{Content: text, Metadata: map[string]any{"strategy": "fixed_size"}}}
	}

	var pieces []Piece
	for start := 0; start < len(runes); start += size - overlap {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pieces = append(pieces, Piece{
			Content:  string(runes[start:end]),
			Metadata: map[string]any{"strategy": "fixed_size"},
		})
		if end == len(runes) {
			break
		}
	}
	return pieces
}
