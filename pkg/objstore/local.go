package objstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local stores objects on the local filesystem.
type Local struct{}

// Load implements Store.
func (Local) Load(_ context.Context, path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("objstore: open %s: %w", path, err)
	}
	return f, nil
}

// Save implements Store. Parent directories are created as needed.
func (Local) Save(_ context.Context, content []byte, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("objstore: mkdir %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("objstore: write %s: %w", path, err)
	}
	return nil
}
