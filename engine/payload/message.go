package payload

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskMessage is the lightweight envelope that flows between stages. It is
// created by a producing stage and never mutated; the trace id propagates
// unchanged across every downstream hop for log correlation.
type TaskMessage struct {
	FilePath  string  `json:"file_path"`
	Stage     string  `json:"stage"`
	Timestamp float64 `json:"timestamp"`
	TraceID   string  `json:"trace_id"`
}

// NewTaskMessage stamps a message with the current time and, when traceID is
// empty, a fresh trace id.
func NewTaskMessage(filePath, stage, traceID string) TaskMessage {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	return TaskMessage{
		FilePath:  filePath,
		Stage:     stage,
		Timestamp: float64(time.Now().UnixNano()) / float64(time.Second),
		TraceID:   traceID,
	}
}

// ToJSON serialises the message for the queue.
func (m TaskMessage) ToJSON() string {
	data, _ := json.Marshal(m)
	return string(data)
}

// ParseTaskMessage decodes a queue payload. Failures wrap ErrMalformed.
func ParseTaskMessage(data string) (TaskMessage, error) {
	var m TaskMessage
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return TaskMessage{}, fmt.Errorf("payload: task message: %w: %v", ErrMalformed, err)
	}
	if m.FilePath == "" {
		return TaskMessage{}, fmt.Errorf("payload: task message: %w: missing file_path", ErrMalformed)
	}
	return m, nil
}
