package streamq

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// newMessageBlock is how long an empty Consume blocks on the stream before
// reporting no message.
const newMessageBlock = 1000 * time.Millisecond

// streamClient is the slice of go-redis the queue uses; narrowed so tests
// can substitute a scripted fake.
type streamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	Close() error
}

// Redis is a Queue over one Redis Stream and consumer group.
//
// The consume path keeps a checkPending flag: a consumer restarting under
// the same name must drain its pending-entry list before taking new work,
// and a new message that later fails without ACK must be found in the PEL
// on the next Consume. The flag flips to false only when a pending read
// comes back empty or an ACK succeeds.
type Redis struct {
	raw          streamClient
	cfg          Config
	logger       *slog.Logger
	checkPending bool
}

// ConnectRedis dials Redis, idempotently creates the consumer group at
// offset 0 with stream auto-creation, and returns a bound queue.
func ConnectRedis(ctx context.Context, cfg Config, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("streamq: ping %s: %w", cfg.Addr, err)
	}
	q, err := newRedis(ctx, client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func newRedis(ctx context.Context, client streamClient, cfg Config, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := client.XGroupCreateMkStream(ctx, cfg.Topic, cfg.Group, "0").Err(); err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("streamq: create group %s/%s: %w", cfg.Topic, cfg.Group, err)
	}
	return &Redis{
		raw:          client,
		cfg:          cfg,
		logger:       logger.With("topic", cfg.Topic, "consumer", cfg.Consumer),
		checkPending: true,
	}, nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// Produce implements Queue. The message lands as a single-field entry
// {payload: message}.
func (q *Redis) Produce(ctx context.Context, message string) (string, error) {
	id, err := q.raw.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Topic,
		Values: map[string]any{"payload": message},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("streamq: xadd %s: %w", q.cfg.Topic, err)
	}
	return id, nil
}

// Consume implements Queue.
//
// While checkPending is set, one pending entry is read from offset 0 without
// blocking; when the PEL turns out empty the flag drops and the read falls
// through to new messages at ">", blocking up to one second. Receiving a new
// message re-arms checkPending so a crash before ACK lands the message back
// in front of the next Consume.
func (q *Redis) Consume(ctx context.Context) *QueueMessage {
	if q.checkPending {
		if msg := q.read(ctx, "0", -1); msg != nil {
			return msg
		}
		q.checkPending = false
		q.logger.Debug("pending entries drained")
	}

	msg := q.read(ctx, ">", newMessageBlock)
	if msg != nil {
		q.checkPending = true
	}
	return msg
}

// read wraps one XREADGROUP call. block < 0 means no blocking.
func (q *Redis) read(ctx context.Context, lastID string, block time.Duration) *QueueMessage {
	streams, err := q.raw.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		Streams:  []string{q.cfg.Topic, lastID},
		Count:    1,
		Block:    block,
	}).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			q.logger.Error("stream read failed", "error", err)
		}
		return nil
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil
	}

	entry := streams[0].Messages[0]
	data, _ := entry.Values["payload"].(string)
	return &QueueMessage{ID: entry.ID, Data: data}
}

// Ack implements Queue. A successful ACK allows the consumer to move on to
// new messages; a failed one forces the next Consume back to the PEL.
func (q *Redis) Ack(ctx context.Context, id string) bool {
	n, err := q.raw.XAck(ctx, q.cfg.Topic, q.cfg.Group, id).Result()
	if err != nil {
		q.checkPending = true
		q.logger.Error("ack failed", "id", id, "error", err)
		return false
	}
	if n > 0 {
		q.checkPending = false
		return true
	}
	return false
}

// Close implements Queue.
func (q *Redis) Close() error {
	return q.raw.Close()
}
