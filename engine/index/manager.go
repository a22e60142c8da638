package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ragproc/ragproc/engine/payload"
	"github.com/ragproc/ragproc/engine/registry"
	"github.com/ragproc/ragproc/pkg/events"
	"github.com/ragproc/ragproc/pkg/fn"
	"github.com/ragproc/ragproc/pkg/metrics"
	"github.com/ragproc/ragproc/pkg/objstore"
	"github.com/ragproc/ragproc/pkg/streamq"
)

// StageName labels index-stage logs and metrics.
const StageName = "index"

// DefaultBatchSize is how many nodes go to the vector store per insert.
const DefaultBatchSize = 50

// Options tune the index worker.
type Options struct {
	// BatchSize <= 0 uses DefaultBatchSize.
	BatchSize int
	// StrictConsistency rolls back the inserted half of a failing batch
	// instead of leaving orphans.
	StrictConsistency bool
}

// Worker materialises enriched payloads into the vector store.
type Worker struct {
	consumer streamq.Queue
	store    objstore.Store
	vectors  VectorStore
	registry registry.Status
	events   *events.Publisher
	opts     Options
	logger   *slog.Logger
}

// NewWorker wires an index worker. events may be nil.
func NewWorker(consumer streamq.Queue, store objstore.Store, vectors VectorStore, reg registry.Status, pub *events.Publisher, opts Options, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	return &Worker{
		consumer: consumer,
		store:    store,
		vectors:  vectors,
		registry: reg,
		events:   pub,
		opts:     opts,
		logger:   logger,
	}
}

// ProcessOne handles at most one task. Malformed payloads are ACK'd as
// poison; a failed batch leaves the message un-ACK'd so the file resumes
// from its recorded chunk progress on redelivery.
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
	log.Info("index task received")

	p, err := payload.Load(ctx, w.store, task.FilePath)
	if err != nil {
		w.drop(ctx, msg.ID, err)
		return true, nil
	}

	nodes := NodesFromPayload(task.FilePath, p)
	fileHash, err := w.IndexFile(ctx, task.FilePath, nodes)
	if err != nil {
		metrics.TasksProcessed.WithLabelValues(StageName, metrics.OutcomeRetry).Inc()
		return true, err
	}

	w.consumer.Ack(ctx, msg.ID)
	metrics.TasksProcessed.WithLabelValues(StageName, metrics.OutcomeOK).Inc()
	metrics.NodesOut.WithLabelValues(StageName).Add(float64(len(nodes)))
	metrics.TaskDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	metrics.FilesCompleted.Inc()

	if err := w.events.Publish(ctx, events.FileCompletedSubject, events.FileCompleted{
		FileName:    task.FilePath,
		FileHash:    fileHash,
		NodeCount:   len(nodes),
		TraceID:     task.TraceID,
		CompletedAt: time.Now().UTC(),
	}); err != nil {
		log.Warn("file-completed event publish failed", "error", err)
	}

	log.Info("index task done", "nodes", len(nodes))
	return true, nil
}

// IndexFile runs the batched, resumable insert for one file and returns the
// deterministic file hash. Already-completed files short-circuit; batches
// skip chunks recorded in the registry; under strict consistency a batch
// that fails after its vector insert succeeded is compensated with a
// delete of exactly the ids it inserted, and the error propagates so the
// file stays in partial-progress state.
func (w *Worker) IndexFile(ctx context.Context, fileName string, nodes []Node) (string, error) {
	fileHash := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(fileName)).String()

	done, err := w.registry.IsFileProcessed(ctx, fileName)
	if err != nil {
		return "", fmt.Errorf("index: registry lookup %s: %w", fileName, err)
	}
	if done {
		w.logger.Info("file already fully processed", "file", fileName)
		return fileHash, nil
	}

	processed, err := w.registry.GetProcessedChunks(ctx, fileName)
	if err != nil {
		return "", fmt.Errorf("index: chunk progress %s: %w", fileName, err)
	}

	for _, batch := range fn.Chunk(nodes, w.opts.BatchSize) {
		toProcess := fn.Filter(batch, func(n Node) bool {
			_, ok := processed[n.ID]
			return !ok
		})
		if len(toProcess) == 0 {
			continue
		}
		ids := fn.Map(toProcess, func(n Node) string { return n.ID })

		if err := w.vectors.Insert(ctx, toProcess); err != nil {
			metrics.VectorBatches.WithLabelValues("error").Inc()
			return "", fmt.Errorf("index: insert batch for %s: %w", fileName, err)
		}

		if err := w.registry.MarkChunksProcessed(ctx, fileName, ids); err != nil {
			metrics.VectorBatches.WithLabelValues("error").Inc()
			if w.opts.StrictConsistency {
				if delErr := w.vectors.DeleteBatch(ctx, ids); delErr != nil {
					w.logger.Error("compensating delete failed", "file", fileName, "error", delErr)
				}
			}
			return "", fmt.Errorf("index: record batch for %s: %w", fileName, err)
		}
		metrics.VectorBatches.WithLabelValues("ok").Inc()
	}

	if err := w.registry.MarkFileComplete(ctx, fileName, fileHash); err != nil {
		return "", fmt.Errorf("index: complete %s: %w", fileName, err)
	}
	return fileHash, nil
}

// drop ACKs a poison message so it cannot block the stream head.
func (w *Worker) drop(ctx context.Context, id string, err error) {
	w.logger.Error("dropping poison message", "id", id, "error", err)
	w.consumer.Ack(ctx, id)
	metrics.TasksProcessed.WithLabelValues(StageName, metrics.OutcomePoison).Inc()
}
