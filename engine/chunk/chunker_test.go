package chunk

import (
	"strings"
	"testing"

	"github.com/ragproc/ragproc/engine/payload"
)

func TestForDispatch(t *testing.T) {
	tests := []struct {
		method payload.ChunkMethod
		want   string
	}{
		{payload.ChunkNone, "chunk.NoSplit"},
		{payload.ChunkSentence, "chunk.Sentence"},
		{payload.ChunkFixedSize, "chunk.FixedSize"},
		{payload.ChunkSemantic, "chunk.Semantic"},
		{payload.ChunkLLM, "chunk.NoSplit"},
		{payload.ChunkMethod("mystery"), "chunk.NoSplit"},
	}
	for _, tt := range tests {
		got := typeName(For(tt.method))
		if got != tt.want {
			t.Errorf("For(%q) = %s, want %s", tt.method, got, tt.want)
		}
	}
}

func typeName(c Chunker) string {
	switch c.(type) {
	case NoSplit:
		return "chunk.NoSplit"
	case Sentence:
		return "chunk.Sentence"
	case FixedSize:
		return "chunk.FixedSize"
	case Semantic:
		return "chunk.Semantic"
	default:
		return "unknown"
	}
}

func TestNoSplit(t *testing.T) {
	pieces := NoSplit{}.Split("whole text", payload.DefaultInstructions())
	if len(pieces) != 1 || pieces[0].Content != "whole text" {
		t.Fatalf("pieces = %+v", pieces)
	}
	if pieces[0].Metadata["strategy"] != "none" {
		t.Errorf("strategy = %v", pieces[0].Metadata["strategy"])
	}
}

func TestSemanticPending(t *testing.T) {
	pieces := Semantic{}.Split("text", payload.DefaultInstructions())
	if len(pieces) != 1 || pieces[0].Metadata["strategy"] != "semantic_pending" {
		t.Errorf("pieces = %+v", pieces)
	}
}

func TestFixedSizeWindows(t *testing.T) {
	in := payload.DefaultInstructions()
	in.ChunkSize = 10
	in.ChunkOverlap = 2

	text := strings.Repeat("abcdefghij", 3) // 30 runes
	pieces := FixedSize{}.Split(text, in)

	if len(pieces) < 3 {
		t.Fatalf("pieces = %d, want sliding windows", len(pieces))
	}
	if pieces[0].Content != "abcdefghij" {
		t.Errorf("first window = %q", pieces[0].Content)
	}
	// Each next window starts size-overlap runes later.
	if pieces[1].Content[:2] != "ij" {
		t.Errorf("second window = %q, want 2-rune overlap", pieces[1].Content)
	}
	var total strings.Builder
	for _, p := range pieces {
		total.WriteString(p.Content)
	}
	if !strings.Contains(total.String(), text[len(text)-10:]) {
		t.Error("tail of the text lost")
	}
}

func TestFixedSizeEmptyText(t *testing.T) {
	pieces := FixedSize{}.Split("", payload.DefaultInstructions())
	if len(pieces) != 1 {
		t.Errorf("empty text pieces = %+v", pieces)
	}
}

func TestSentenceRespectsBudget(t *testing.T) {
	in := payload.DefaultInstructions()
	in.ChunkSize = 6
	in.ChunkOverlap = 0

	text := "One two three. Four five six. Seven eight nine."
	pieces := Sentence{}.Split(text, in)
	if len(pieces) != 2 {
		t.Fatalf("pieces = %d (%+v), want 2", len(pieces), pieces)
	}
	if pieces[0].Content != "One two three. Four five six." {
		t.Errorf("first chunk = %q", pieces[0].Content)
	}
	if pieces[1].Content != "Seven eight nine." {
		t.Errorf("second chunk = %q", pieces[1].Content)
	}
}

func TestSentenceOverlapCarriesContext(t *testing.T) {
	in := payload.DefaultInstructions()
	in.ChunkSize = 6
	in.ChunkOverlap = 3

	text := "One two three. Four five six. Seven eight nine."
	pieces := Sentence{}.Split(text, in)
	if len(pieces) < 2 {
		t.Fatalf("pieces = %d", len(pieces))
	}
	if !strings.HasPrefix(pieces[1].Content, "Four five six.") {
		t.Errorf("second chunk = %q, want overlap from previous", pieces[1].Content)
	}
}

func TestSentenceWhitespaceOnly(t *testing.T) {
	pieces := Sentence{}.Split("   ", payload.DefaultInstructions())
	if len(pieces) != 1 {
		t.Errorf("pieces = %+v", pieces)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First. Second! Third?\nFourth")
	want := []string{"First.", "Second!", "Third?", "Fourth"}
	if len(got) != len(want) {
		t.Fatalf("sentences = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitSentencesNoFalseBreakOnDecimal(t *testing.T) {
	got := splitSentences("Version 1.5 shipped. Done.")
	if len(got) != 2 {
		t.Errorf("sentences = %v, decimal point must not split", got)
	}
}
