package chunk

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/ragproc/ragproc/engine/payload"
	"github.com/ragproc/ragproc/pkg/objstore"
	"github.com/ragproc/ragproc/pkg/streamq"
)

func testPayload(method payload.ChunkMethod, nodes ...payload.Node) *payload.Payload {
	p := payload.New(nodes, map[string]any{"fragment_index": 0})
	p.Content.Instructions.ChunkMethod = method
	return p
}

func TestApplyResetsChunkMethod(t *testing.T) {
	p := testPayload(payload.ChunkNone, payload.Node{PageContent: "text"})
	Apply(p)
	if p.Content.Instructions.ChunkMethod != payload.ChunkNone {
		t.Errorf("chunk_method = %q, want none", p.Content.Instructions.ChunkMethod)
	}
}

func TestApplyPromotesDefaultEnrichment(t *testing.T) {
	p := testPayload(payload.ChunkNone, payload.Node{PageContent: "text"})
	Apply(p)
	got := p.Content.Instructions.EnrichmentMethods
	if len(got) != 2 || got[0] != payload.EnrichSummary || got[1] != payload.EnrichKeywords {
		t.Errorf("enrichment_methods = %v, want [summary keywords]", got)
	}
}

func TestApplyKeepsExplicitEnrichment(t *testing.T) {
	p := testPayload(payload.ChunkNone, payload.Node{PageContent: "text"})
	p.Content.Instructions.EnrichmentMethods = []payload.EnrichmentMethod{payload.EnrichQuestions}
	Apply(p)
	got := p.Content.Instructions.EnrichmentMethods
	if len(got) != 1 || got[0] != payload.EnrichQuestions {
		t.Errorf("enrichment_methods = %v, explicit request overwritten", got)
	}
}

func TestApplyMergesMetadataRightBiased(t *testing.T) {
	node := payload.Node{
		PageContent: "text",
		Metadata:    map[string]any{"internal_id": "part0_0", "strategy": "stale", "author": "alice"},
	}
	p := testPayload(payload.ChunkNone, node)
	Apply(p)

	out := p.Content.Nodes[0].Metadata
	if out["strategy"] != "none" {
		t.Errorf("strategy = %v, chunker metadata must win", out["strategy"])
	}
	// Original keys survive even when overridden keys change value.
	if out["internal_id"] != "part0_0" || out["author"] != "alice" {
		t.Errorf("original metadata lost: %v", out)
	}
	// The source node is untouched.
	if node.Metadata["strategy"] != "stale" {
		t.Error("Apply mutated the input node metadata")
	}
}

func TestApplyEmptyNodes(t *testing.T) {
	p := testPayload(payload.ChunkSentence)
	Apply(p)
	if len(p.Content.Nodes) != 0 {
		t.Errorf("nodes = %v", p.Content.Nodes)
	}
	if p.Content.Instructions.ChunkMethod != payload.ChunkNone {
		t.Error("instruction not reset for empty payload")
	}
}

func TestApplyFixedSizeMultiplies(t *testing.T) {
	p := testPayload(payload.ChunkFixedSize, payload.Node{
		PageContent: "0123456789012345678901234", // 25 runes
		Metadata:    map[string]any{"internal_id": "part0_0"},
	})
	p.Content.Instructions.ChunkSize = 10
	p.Content.Instructions.ChunkOverlap = 0
	Apply(p)

	if len(p.Content.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3 windows", len(p.Content.Nodes))
	}
	for i, n := range p.Content.Nodes {
		if n.Metadata["internal_id"] != "part0_0" {
			t.Errorf("node %d lost internal_id: %v", i, n.Metadata)
		}
		if n.Metadata["strategy"] != "fixed_size" {
			t.Errorf("node %d strategy = %v", i, n.Metadata["strategy"])
		}
	}
}

func newTestWorker(t *testing.T) (*Worker, *streamq.Memory, *streamq.Memory) {
	t.Helper()
	consumer := streamq.NewMemory(t.Name() + "_in")
	publisher := streamq.NewMemory(t.Name() + "_out")
	t.Cleanup(func() { consumer.Drain(); publisher.Drain() })
	return NewWorker(consumer, publisher, objstore.NewRouter(), nil), consumer, publisher
}

func TestProcessOneHappyPath(t *testing.T) {
	ctx := context.Background()
	w, consumer, publisher := newTestWorker(t)
	store := objstore.NewRouter()

	inPath := filepath.Join(t.TempDir(), "doc_part0.json")
	p := testPayload(payload.ChunkNone, payload.Node{PageContent: "some text", Metadata: map[string]any{"internal_id": "part0_0"}})
	if err := payload.Save(ctx, store, p, inPath); err != nil {
		t.Fatal(err)
	}

	task := payload.NewTaskMessage(inPath, "clean_complete", "trace-1")
	consumer.Produce(ctx, task.ToJSON())

	processed, err := w.ProcessOne(ctx)
	if !processed || err != nil {
		t.Fatalf("ProcessOne = (%v, %v)", processed, err)
	}

	msg := publisher.Consume(ctx)
	if msg == nil {
		t.Fatal("no downstream message")
	}
	out, err := payload.ParseTaskMessage(msg.Data)
	if err != nil {
		t.Fatal(err)
	}
	if out.Stage != StageComplete || out.TraceID != "trace-1" {
		t.Errorf("out = %+v, want propagated trace id and %q", out, StageComplete)
	}
	if out.FilePath != payload.ChunkedPath(inPath) {
		t.Errorf("output path = %q", out.FilePath)
	}

	chunked, err := payload.Load(ctx, store, out.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if chunked.Content.Instructions.ChunkMethod != payload.ChunkNone {
		t.Error("persisted payload did not reset chunk_method")
	}
}

func TestProcessOneMissingPayloadIsPoison(t *testing.T) {
	ctx := context.Background()
	w, consumer, publisher := newTestWorker(t)

	task := payload.NewTaskMessage(filepath.Join(t.TempDir(), "gone_part0.json"), "clean_complete", "")
	consumer.Produce(ctx, task.ToJSON())

	processed, err := w.ProcessOne(ctx)
	if !processed || err != nil {
		t.Fatalf("poison = (%v, %v), want handled without error", processed, err)
	}
	if msg := publisher.Consume(ctx); msg != nil {
		t.Errorf("poison produced downstream message: %+v", msg)
	}
}

func TestProcessOneReprocessingIsNoOp(t *testing.T) {
	ctx := context.Background()
	w, consumer, publisher := newTestWorker(t)
	store := objstore.NewRouter()

	inPath := filepath.Join(t.TempDir(), "doc_part0.json")
	p := testPayload(payload.ChunkNone, payload.Node{PageContent: "text"})
	if err := payload.Save(ctx, store, p, inPath); err != nil {
		t.Fatal(err)
	}

	// First delivery.
	consumer.Produce(ctx, payload.NewTaskMessage(inPath, "clean_complete", "t").ToJSON())
	if _, err := w.ProcessOne(ctx); err != nil {
		t.Fatal(err)
	}
	first := publisher.Consume(ctx)
	firstOut, err := payload.ParseTaskMessage(first.Data)
	if err != nil {
		t.Fatal(err)
	}

	// Redelivery of the chunked output: chunk_method is already none, so
	// the node set must be unchanged.
	consumer.Produce(ctx, payload.NewTaskMessage(firstOut.FilePath, "clean_complete", "t").ToJSON())
	if _, err := w.ProcessOne(ctx); err != nil {
		t.Fatal(err)
	}
	second := publisher.Consume(ctx)
	secondOut, _ := payload.ParseTaskMessage(second.Data)

	reprocessed, err := payload.Load(ctx, store, secondOut.FilePath)
	if err != nil {
		t.Fatal(err)
	}
	if len(reprocessed.Content.Nodes) != 1 {
		t.Errorf("reprocessing changed node count: %d", len(reprocessed.Content.Nodes))
	}
}
