package streamq

import (
	"context"
	"fmt"
	"sync"
)

// memBroker holds the process-wide topic FIFOs behind Memory queues, so a
// producer and a consumer bound to the same topic in one process see the
// same stream.
type memBroker struct {
	mu     sync.Mutex
	topics map[string][]QueueMessage
	nextID int64
}

var defaultBroker = &memBroker{topics: make(map[string][]QueueMessage)}

// Memory is the in-process Queue used by tests and single-node runs. It is
// a plain topic-keyed FIFO: no consumer groups, no pending-entry list, and
// Ack is a no-op.
type Memory struct {
	broker *memBroker
	topic  string
}

// NewMemory binds a memory queue to a topic on the process-wide broker.
func NewMemory(topic string) *Memory {
	return &Memory{broker: defaultBroker, topic: topic}
}

// Produce implements Queue.
func (m *Memory) Produce(_ context.Context, message string) (string, error) {
	m.broker.mu.Lock()
	defer m.broker.mu.Unlock()
	m.broker.nextID++
	id := fmt.Sprintf("%d-0", m.broker.nextID)
	m.broker.topics[m.topic] = append(m.broker.topics[m.topic], QueueMessage{ID: id, Data: message})
	return id, nil
}

// Consume implements Queue. It never blocks.
func (m *Memory) Consume(_ context.Context) *QueueMessage {
	m.broker.mu.Lock()
	defer m.broker.mu.Unlock()
	q := m.broker.topics[m.topic]
	if len(q) == 0 {
		return nil
	}
	msg := q[0]
	m.broker.topics[m.topic] = q[1:]
	return &msg
}

// Ack implements Queue. Memory delivery is at-most-once, so there is
// nothing to acknowledge.
func (m *Memory) Ack(context.Context, string) bool { return true }

// Close implements Queue.
func (m *Memory) Close() error { return nil }

// Drain empties the topic; test helper.
func (m *Memory) Drain() {
	m.broker.mu.Lock()
	defer m.broker.mu.Unlock()
	m.broker.topics[m.topic] = nil
}
