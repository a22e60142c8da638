package chunk

import (
	"context"
	"log/slog"
	"time"

	"github.com/ragproc/ragproc/engine/payload"
	"github.com/ragproc/ragproc/pkg/metrics"
	"github.com/ragproc/ragproc/pkg/objstore"
	"github.com/ragproc/ragproc/pkg/streamq"
)

// StageName labels chunk-stage logs and metrics.
const StageName = "chunk"

// StageComplete is the Stage value stamped on messages this stage emits.
const StageComplete = "chunking_complete"

// Worker consumes one fragment payload at a time, splits its nodes, and
// hands the result to the enrich stage.
type Worker struct {
	consumer  streamq.Queue
	publisher streamq.Queue
	store     objstore.Store
	logger    *slog.Logger
}

// NewWorker wires a chunk worker.
func NewWorker(consumer, publisher streamq.Queue, store objstore.Store, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{consumer: consumer, publisher: publisher, store: store, logger: logger}
}

// ProcessOne handles at most one task. Malformed tasks and payloads are
// ACK'd as poison; transient store or queue failures leave the message in
// the PEL for redelivery.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	msg := w.consumer.Consume(ctx)
	if msg == nil {
		return false, nil
	}
	start := time.Now()

	task, err := payload.ParseTaskMessage(msg.Data)
	if err != nil {
		w.drop(ctx, msg.ID, err)
		return true, nil
	}
	log := w.logger.With("trace_id", task.TraceID, "file", task.FilePath)
	log.Info("chunk task received")

	p, err := payload.Load(ctx, w.store, task.FilePath)
	if err != nil {
		w.drop(ctx, msg.ID, err)
		return true, nil
	}

	Apply(p)

	outPath := payload.ChunkedPath(task.FilePath)
	if err := payload.Save(ctx, w.store, p, outPath); err != nil {
		metrics.TasksProcessed.WithLabelValues(StageName, metrics.OutcomeRetry).Inc()
		return true, err
	}
	out := payload.NewTaskMessage(outPath, StageComplete, task.TraceID)
	if _, err := w.publisher.Produce(ctx, out.ToJSON()); err != nil {
		metrics.TasksProcessed.WithLabelValues(StageName, metrics.OutcomeRetry).Inc()
		return true, err
	}

	w.consumer.Ack(ctx, msg.ID)
	metrics.TasksProcessed.WithLabelValues(StageName, metrics.OutcomeOK).Inc()
	metrics.NodesOut.WithLabelValues(StageName).Add(float64(len(p.Content.Nodes)))
	metrics.TaskDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	log.Info("chunk task done", "nodes", len(p.Content.Nodes))
	return true, nil
}

// Apply splits every node in place per the payload's instructions, then
// advances the instruction state: chunk_method resets to none, and an
// absent enrichment request is promoted to the default summary+keywords
// pass so a payload that never asked for anything still gets sensible
// metadata.
func Apply(p *payload.Payload) {
	in := p.Content.Instructions
	chunker := For(in.ChunkMethod)

	var nodes []payload.Node
	for _, node := range p.Content.Nodes {
		for _, piece := range chunker.Split(node.PageContent, in) {
			meta := make(map[string]any, len(node.Metadata)+len(piece.Metadata))
			for k, v := range node.Metadata {
				meta[k] = v
			}
			for k, v := range piece.Metadata {
				meta[k] = v
			}
			nodes = append(nodes, payload.Node{PageContent: piece.Content, Metadata: meta})
		}
	}
	p.Content.Nodes = nodes

	p.Content.Instructions.ChunkMethod = payload.ChunkNone
	if !p.Content.Instructions.NeedsEnrichment() {
		p.Content.Instructions.EnrichmentMethods = []payload.EnrichmentMethod{
			payload.EnrichSummary,
			payload.EnrichKeywords,
		}
	}
}

// drop ACKs a poison message so it cannot block the stream head.
func (w *Worker) drop(ctx context.Context, id string, err error) {
	w.logger.Error("dropping poison message", "id", id, "error", err)
	w.consumer.Ack(ctx, id)
	metrics.TasksProcessed.WithLabelValues(StageName, metrics.OutcomePoison).Inc()
}
