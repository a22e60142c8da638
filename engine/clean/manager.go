package clean

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/ragproc/ragproc/engine/payload"
	"github.com/ragproc/ragproc/pkg/metrics"
	"github.com/ragproc/ragproc/pkg/objstore"
	"github.com/ragproc/ragproc/pkg/streamq"
)

// StageName labels clean-stage logs and metrics.
const StageName = "clean"

// StageComplete is the Stage value stamped on messages this stage emits.
const StageComplete = "clean_complete"

// Worker consumes clean tasks, fragments the source, and fans the fragments
// out to the chunk stage.
type Worker struct {
	consumer    streamq.Queue
	publisher   streamq.Queue
	store       objstore.Store
	rowsPerFile int
	logger      *slog.Logger
}

// NewWorker wires a clean worker. rowsPerFile <= 0 uses DefaultRowsPerFile.
func NewWorker(consumer, publisher streamq.Queue, store objstore.Store, rowsPerFile int, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if rowsPerFile <= 0 {
		rowsPerFile = DefaultRowsPerFile
	}
	return &Worker{
		consumer:    consumer,
		publisher:   publisher,
		store:       store,
		rowsPerFile: rowsPerFile,
		logger:      logger,
	}
}

// ProcessOne handles at most one task. The input message is ACK'd only after
// every fragment is persisted and its downstream message published; a
// malformed task or source is ACK'd as poison instead of retried.
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
	log.Info("clean task received")

	fragments, err := w.fragment(ctx, task)
	if err != nil {
		if errors.Is(err, payload.ErrMalformed) {
			w.drop(ctx, msg.ID, err)
			return true, nil
		}
		metrics.TasksProcessed.WithLabelValues(StageName, metrics.OutcomeRetry).Inc()
		return true, err // no ACK: the message returns via the PEL
	}

	w.consumer.Ack(ctx, msg.ID)
	metrics.TasksProcessed.WithLabelValues(StageName, metrics.OutcomeOK).Inc()
	metrics.TaskDuration.WithLabelValues(StageName).Observe(time.Since(start).Seconds())
	log.Info("clean task done", "fragments", fragments)
	return true, nil
}

// fragment parses and cleans the source, persisting and publishing one
// payload per yielded fragment. It returns the fragment count.
func (w *Worker) fragment(ctx context.Context, task payload.TaskMessage) (int, error) {
	rc, err := w.store.Load(ctx, task.FilePath)
	if err != nil {
		return 0, fmt.Errorf("clean: load %s: %w: %v", task.FilePath, payload.ErrMalformed, err)
	}
	defer rc.Close()

	parser, err := ParserFor(task.FilePath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", payload.ErrMalformed, err)
	}
	raw, err := parser.Parse(rc)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", payload.ErrMalformed, err)
	}

	ext := strings.ToLower(path.Ext(task.FilePath))
	iter, err := CleanerFor(ext, w.rowsPerFile).Clean(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", payload.ErrMalformed, err)
	}

	idx := 0
	for {
		nodes, ok := iter.Next()
		if !ok {
			break
		}
		p := payload.New(nodes, map[string]any{
			"fragment_index": idx,
			"source":         task.FilePath,
		})
		fragPath := payload.FragmentPath(task.FilePath, idx)
		if err := payload.Save(ctx, w.store, p, fragPath); err != nil {
			return idx, err
		}

		out := payload.NewTaskMessage(fragPath, StageComplete, "")
		if _, err := w.publisher.Produce(ctx, out.ToJSON()); err != nil {
			return idx, fmt.Errorf("clean: publish fragment %s: %w", fragPath, err)
		}
		metrics.NodesOut.WithLabelValues(StageName).Add(float64(len(nodes)))
		idx++
	}
	return idx, nil
}

// drop ACKs a poison message so it cannot block the stream head.
func (w *Worker) drop(ctx context.Context, id string, err error) {
	w.logger.Error("dropping poison message", "id", id, "error", err)
	w.consumer.Ack(ctx, id)
	metrics.TasksProcessed.WithLabelValues(StageName, metrics.OutcomePoison).Inc()
}
