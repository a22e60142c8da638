// Package registry tracks ingestion progress: chunk-level for resumability
// within a file, file-level for idempotence across redeliveries. File
// completion is terminal and garbage-collects the file's chunk set.
package registry

import (
	"context"
	"sync"
)

// Status is the progress contract the index stage depends on.
type Status interface {
	// IsFileProcessed reports whether the file has a completion record.
	IsFileProcessed(ctx context.Context, fileName string) (bool, error)
	// GetProcessedChunks returns the chunk ids already inserted for a file.
	GetProcessedChunks(ctx context.Context, fileName string) (map[string]struct{}, error)
	// MarkChunksProcessed unions ids into the file's progress set.
	MarkChunksProcessed(ctx context.Context, fileName string, chunkIDs []string) error
	// MarkFileComplete records the file hash and purges the chunk set.
	MarkFileComplete(ctx context.Context, fileName, fileHash string) error
}

// Memory is the authoritative Status for single-node runs.
type Memory struct {
	mu             sync.Mutex
	completedFiles map[string]string
	tempChunks     map[string]map[string]struct{}
}

// NewMemory returns an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{
		completedFiles: make(map[string]string),
		tempChunks:     make(map[string]map[string]struct{}),
	}
}

// IsFileProcessed implements Status.
func (m *Memory) IsFileProcessed(_ context.Context, fileName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.completedFiles[fileName]
	return ok, nil
}

// GetProcessedChunks implements Status.
func (m *Memory) GetProcessedChunks(_ context.Context, fileName string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.tempChunks[fileName]))
	for id := range m.tempChunks[fileName] {
		out[id] = struct{}{}
	}
	return out, nil
}

// MarkChunksProcessed implements Status.
func (m *Memory) MarkChunksProcessed(_ context.Context, fileName string, chunkIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.tempChunks[fileName]
	if set == nil {
		set = make(map[string]struct{})
		m.tempChunks[fileName] = set
	}
	for _, id := range chunkIDs {
		set[id] = struct{}{}
	}
	return nil
}

// MarkFileComplete implements Status.
func (m *Memory) MarkFileComplete(_ context.Context, fileName, fileHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedFiles[fileName] = fileHash
	delete(m.tempChunks, fileName)
	return nil
}

// FileHash returns the recorded hash for a completed file; test helper.
func (m *Memory) FileHash(fileName string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.completedFiles[fileName]
	return h, ok
}
