// Package streamq provides the durable hop between pipeline stages: an
// at-least-once, grouped-consumer message transport backed by Redis Streams,
// plus an in-process variant for tests and single-node runs.
package streamq

import "context"

// QueueMessage wraps one delivered entry. ID is the stream-assigned id and
// the ACK handle; Data is the raw task message JSON.
type QueueMessage struct {
	ID   string
	Data string
}

// Queue is the transport contract stage workers depend on. Delivery is
// at-least-once within a consumer group: a consumed message belongs to its
// consumer until acknowledged, and an un-ACK'd message is redelivered from
// the pending-entry list after a restart under the same consumer name.
type Queue interface {
	// Produce appends a message and returns the assigned id.
	Produce(ctx context.Context, message string) (string, error)
	// Consume returns the next message, or nil when the queue is empty or
	// the read failed (failures are logged, never fatal to the caller).
	Consume(ctx context.Context) *QueueMessage
	// Ack acknowledges one id. A false return means the message is still
	// pending; the caller must not treat the work as committed.
	Ack(ctx context.Context, id string) bool
	// Close releases transport resources.
	Close() error
}

// Config binds a queue endpoint to one topic and consumer identity.
type Config struct {
	Addr     string // host:port
	Topic    string // stream name
	Group    string // consumer group
	Consumer string // consumer name, stable across restarts of one worker
}
