package chunk

import (
	"strings"
	"unicode"

	"github.com/ragproc/ragproc/engine/payload"
)

// Sentence groups sentences into chunks of roughly chunk_size tokens with
// chunk_overlap tokens carried between neighbours. Token count is
// approximated as word count.
type Sentence struct{}

// Split implements Chunker.
func (Sentence) Split(text string, in payload.Instructions) []Piece {
	size := in.ChunkSize
	if size <= 0 {
		size = payload.DefaultChunkSize
	}
	overlap := in.ChunkOverlap
	if overlap < 0 {
		overlap = 0
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return []Piece{{Content: text, Metadata: map[string]any{"strategy": "sentence"}}}
	}

	var pieces []Piece
	start := 0
	for start < len(sentences) {
		var buf strings.Builder
		tokens := 0
		end := start

		for end < len(sentences) {
			words := wordCount(sentences[end])
			if tokens+words > size && tokens > 0 {
				break
			}
			if buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(sentences[end])
			tokens += words
			end++
		}

		pieces = append(pieces, Piece{
			Content:  buf.String(),
			Metadata: map[string]any{"strategy": "sentence"},
		})

		// Back the window up by the overlap token count, never past start.
		overlapTokens := 0
		newStart := end
		for newStart > start && overlapTokens < overlap {
			newStart--
			overlapTokens += wordCount(sentences[newStart])
		}
		if newStart == start {
			start = end
		} else {
			start = newStart
		}
	}
	return pieces
}

// splitSentences breaks text on terminal punctuation and newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			atEnd := i == len(text)-1
			if r == '\n' || atEnd || (i+1 < len(text) && unicode.IsSpace(rune(text[i+1]))) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
