// Command pipeline launches one stage worker of the RAG ingestion pipeline:
// clean, chunk, enrich, or index. Horizontal scaling is more processes in
// the same consumer group.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ragproc/ragproc/engine/chunk"
	"github.com/ragproc/ragproc/engine/clean"
	"github.com/ragproc/ragproc/engine/enrich"
	"github.com/ragproc/ragproc/engine/index"
	"github.com/ragproc/ragproc/engine/registry"
	"github.com/ragproc/ragproc/pkg/embed"
	"github.com/ragproc/ragproc/pkg/events"
	"github.com/ragproc/ragproc/pkg/llm"
	"github.com/ragproc/ragproc/pkg/metrics"
	"github.com/ragproc/ragproc/pkg/objstore"
	"github.com/ragproc/ragproc/pkg/streamq"
	"github.com/ragproc/ragproc/pkg/worker"
)

// Topic and group naming convention, one stream per stage.
var stageTopics = map[string]string{
	"clean":  "clean_flow",
	"chunk":  "chunk_flow",
	"enrich": "enrich_flow",
	"index":  "index_flow",
}

// downstreamTopic names where each stage publishes; index is terminal.
var downstreamTopic = map[string]string{
	"clean":  "chunk_flow",
	"chunk":  "enrich_flow",
	"enrich": "index_flow",
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	var (
		stageType   = flag.String("type", "", "worker stage: clean|chunk|enrich|index")
		instanceID  = flag.Int("id", 0, "worker instance id within the consumer group")
		poll        = flag.Duration("poll", time.Second, "sleep between polls of an empty queue")
		rowsPerFile = flag.Int("rows-per-file", clean.DefaultRowsPerFile, "spreadsheet rows per fragment (clean stage)")
		batchSize   = flag.Int("batch-size", index.DefaultBatchSize, "nodes per vector-store insert (index stage)")
		strict      = flag.Bool("strict-consistency", true, "roll back partially inserted batches (index stage)")
		metricsPort = flag.Int("metrics-port", 9091, "prometheus /metrics port")
	)
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	topic, ok := stageTopics[*stageType]
	if !ok {
		fmt.Fprintf(os.Stderr, "usage: pipeline --type {clean|chunk|enrich|index} --id <int>\n")
		os.Exit(2)
	}
	consumerName := fmt.Sprintf("worker_%s_%d", *stageType, *instanceID)
	log := logger.With("stage", *stageType, "consumer", consumerName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.ServeAsync(*metricsPort)

	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	consumer, err := streamq.ConnectRedis(ctx, streamq.Config{
		Addr:     redisAddr,
		Topic:    topic,
		Group:    *stageType + "_group",
		Consumer: consumerName,
	}, log)
	if err != nil {
		log.Error("queue connect failed", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	var publisher streamq.Queue
	if out, ok := downstreamTopic[*stageType]; ok {
		pub, err := streamq.ConnectRedis(ctx, streamq.Config{
			Addr:     redisAddr,
			Topic:    out,
			Group:    *stageType + "_group",
			Consumer: consumerName,
		}, log)
		if err != nil {
			log.Error("publisher connect failed", "error", err)
			os.Exit(1)
		}
		defer pub.Close()
		publisher = pub
	}

	store := objstore.NewRouter()

	var processOne worker.ProcessFunc
	switch *stageType {
	case "clean":
		processOne = clean.NewWorker(consumer, publisher, store, *rowsPerFile, log).ProcessOne

	case "chunk":
		processOne = chunk.NewWorker(consumer, publisher, store, log).ProcessOne

	case "enrich":
		client, err := llm.New(llm.OptionsFromEnv())
		if err != nil {
			log.Error("llm init failed", "error", err)
			os.Exit(1)
		}
		master := enrich.NewMaster(client, enrich.DefaultMaxConcurrency, log)
		processOne = enrich.NewWorker(consumer, publisher, store, master, log).ProcessOne

	case "index":
		embedder := embed.NewClient(envOr("Embed_API_URL", "http://localhost:8080"))
		vectors, err := index.NewHybridStore(index.Config{
			URI:            envOr("QDRANT_URL", "localhost:6334"),
			Token:          os.Getenv("QDRANT_API_KEY"),
			CollectionName: envOr("COLLECTION_NAME", "product_knowledge_base"),
			EnableSparse:   true,
			EnableDense:    true,
		}, embedder)
		if err != nil {
			log.Error("vector store init failed", "error", err)
			os.Exit(1)
		}
		defer vectors.Close()
		if err := vectors.EnsureCollection(ctx); err != nil {
			log.Error("ensure collection failed", "error", err)
			os.Exit(1)
		}

		var reg registry.Status
		if envOr("REGISTRY_BACKEND", "memory") == "redis" {
			r, err := registry.ConnectRedis(ctx, redisAddr)
			if err != nil {
				log.Error("registry connect failed", "error", err)
				os.Exit(1)
			}
			defer r.Close()
			reg = r
		} else {
			reg = registry.NewMemory()
		}

		pub, err := events.Connect(os.Getenv("NATS_URL"))
		if err != nil {
			log.Warn("events disabled, nats connect failed", "error", err)
		}
		defer pub.Close()

		processOne = index.NewWorker(consumer, store, vectors, reg, pub, index.Options{
			BatchSize:         *batchSize,
			StrictConsistency: *strict,
		}, log).ProcessOne
	}

	if err := worker.Run(ctx, worker.Options{
		Name:         consumerName,
		PollInterval: *poll,
		Logger:       log,
	}, processOne); err != nil {
		os.Exit(1)
	}
}
