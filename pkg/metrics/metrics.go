// Package metrics exposes the pipeline's Prometheus instrumentation.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksProcessed counts queue messages per stage by outcome: handled,
	// ACK'd and dropped as poison, or left un-ACK'd for redelivery.
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragproc_tasks_processed_total",
		Help: "Queue messages handled, by stage and outcome.",
	}, []string{"stage", "outcome"})

	// TaskDuration observes end-to-end handling time of one message.
	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ragproc_task_duration_seconds",
		Help:    "Per-message processing time, by stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// NodesOut counts nodes emitted downstream per stage.
	NodesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragproc_nodes_out_total",
		Help: "Nodes written to the stage's output payload.",
	}, []string{"stage"})

	// LLMCalls counts enrichment completions by result.
	LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragproc_llm_calls_total",
		Help: "LLM completion calls, by result.",
	}, []string{"result"})

	// VectorBatches counts index-stage batch inserts by result.
	VectorBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ragproc_vector_batches_total",
		Help: "Vector store batch inserts, by result.",
	}, []string{"result"})

	// FilesCompleted counts files marked complete in the registry.
	FilesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ragproc_files_completed_total",
		Help: "Source files fully indexed.",
	})
)

// Outcome labels for TasksProcessed.
const (
	OutcomeOK     = "ok"
	OutcomePoison = "poison"
	OutcomeRetry  = "retry"
)

// ServeAsync exposes /metrics on the given port in a background goroutine.
func ServeAsync(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
}
