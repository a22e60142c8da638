package enrich

import (
	"context"
	"log/slog"
	"time"

	"github.com/ragproc/ragproc/engine/payload"
	"github.com/ragproc/ragproc/pkg/metrics"
	"github.com/ragproc/ragproc/pkg/objstore"
	"github.com/ragproc/ragproc/pkg/streamq"
)

// StageName labels enrich-stage logs and metrics.
const StageName = "enrich"

// StageComplete is the Stage value stamped on messages this stage emits.
const StageComplete = "enrichment_complete"

// Worker consumes one chunked payload at a time and runs the per-node LLM
// fan-out before handing the payload to the index stage.
type Worker struct {
	consumer  streamq.Queue
	publisher streamq.Queue
	store     objstore.Store
	master    *Master
	logger    *slog.Logger
}

// NewWorker wires an enrich worker.
func NewWorker(consumer, publisher streamq.Queue, store objstore.Store, master *Master, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		consumer:  consumer,
		publisher: publisher,
		store:     store,
		master:    master,
		logger:    logger,
	}
}

// ProcessOne handles at most one task. A payload whose instruction list is
// [none] skips the LLM entirely and moves straight downstream. Per-node LLM
// failures do not fail the task; enrichment_methods resets to [none] either
// way, so a redelivered payload will not re-run completed work.
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
	log.Info("enrich task received")

	p, err := payload.Load(ctx, w.store, task.FilePath)
	if err != nil {
		w.drop(ctx, msg.ID, err)
		return true, nil
	}

	if p.Content.Instructions.NeedsEnrichment() {
		w.master.ProcessPayload(ctx, p)
		p.Content.Instructions.EnrichmentMethods = []payload.EnrichmentMethod{payload.EnrichNone}
	} else {
		log.Info("no enrichment requested, passing through")
	}

	outPath := payload.EnrichedPath(task.FilePath)
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
	log.Info("enrich task done", "nodes", len(p.Content.Nodes))
	return true, nil
}

// drop ACKs a poison message so it cannot block the stream head.
func (w *Worker) drop(ctx context.Context, id string, err error) {
	w.logger.Error("dropping poison message", "id", id, "error", err)
	w.consumer.Ack(ctx, id)
	metrics.TasksProcessed.WithLabelValues(StageName, metrics.OutcomePoison).Inc()
}
