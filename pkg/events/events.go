// Package events publishes pipeline lifecycle events over NATS for
// downstream consumers (cache invalidation, completion dashboards). The
// pipeline runs fine without a NATS endpoint; a nil Publisher is a no-op.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// FileCompletedSubject carries FileCompleted events.
const FileCompletedSubject = "ragproc.index.file_completed"

// FileCompleted announces that a source file is fully indexed.
type FileCompleted struct {
	FileName    string    `json:"file_name"`
	FileHash    string    `json:"file_hash"`
	NodeCount   int       `json:"node_count"`
	TraceID     string    `json:"trace_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// Publisher emits typed JSON events with trace propagation.
type Publisher struct {
	nc *nats.Conn
}

// Connect dials NATS. url empty returns a nil publisher (no-op).
func Connect(url string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

// Publish serialises v as JSON and publishes it, injecting the trace
// context from ctx into the message headers.
func (p *Publisher) Publish(ctx context.Context, subject string, v any) error {
	if p == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return p.nc.PublishMsg(msg)
}

// Close closes the connection; a nil Publisher is a no-op.
func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}
