package streamq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Integration test against a live Redis. Skipped unless REDIS_ADDR is set:
//
//	REDIS_ADDR=localhost:6379 go test ./pkg/streamq/ -run Integration
func TestRedisQueueIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	topic := "streamq_it_" + uuid.NewString()
	cfg := Config{Addr: addr, Topic: topic, Group: "it_group", Consumer: "it_worker_0"}

	q, err := ConnectRedis(ctx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer q.Close()

	if _, err := q.Produce(ctx, "hello"); err != nil {
		t.Fatal(err)
	}

	msg := q.Consume(ctx)
	if msg == nil || msg.Data != "hello" {
		t.Fatalf("consume = %+v", msg)
	}

	// Simulate a crash: reconnect under the same consumer name without ACK.
	q2, err := ConnectRedis(ctx, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer q2.Close()

	redelivered := q2.Consume(ctx)
	if redelivered == nil || redelivered.ID != msg.ID {
		t.Fatalf("redelivered = %+v, want PEL entry %s", redelivered, msg.ID)
	}
	if !q2.Ack(ctx, redelivered.ID) {
		t.Error("ack failed")
	}
	if again := q2.Consume(ctx); again != nil {
		t.Errorf("acked message came back: %+v", again)
	}
}
