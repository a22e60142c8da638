// Package objstore moves payload bytes between stages via content paths.
// The backend is selected by path prefix: s3://bucket/key, azure://container/blob,
// anything else is a local filesystem path. Cloud clients are dialled on
// first use so purely-local pipelines never touch cloud credentials.
package objstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Store reads and writes whole objects.
type Store interface {
	// Load returns the object's byte stream; the caller closes it.
	Load(ctx context.Context, path string) (io.ReadCloser, error)
	// Save writes content at path, creating parents where the backend has them.
	Save(ctx context.Context, content []byte, path string) error
}

// Scheme identifies the storage backend a path routes to.
type Scheme string

const (
	SchemeLocal Scheme = "local"
	SchemeS3    Scheme = "s3"
	SchemeAzure Scheme = "azure"
)

// SchemeOf guesses the backend from the path prefix.
func SchemeOf(path string) Scheme {
	switch {
	case strings.HasPrefix(path, "s3://"):
		return SchemeS3
	case strings.HasPrefix(path, "azure://"):
		return SchemeAzure
	default:
		return SchemeLocal
	}
}

// Router dispatches Load/Save by path prefix.
type Router struct {
	local Store

	mu    sync.Mutex
	s3    Store
	azure Store
}

// NewRouter returns a router with the local backend ready and cloud backends
// dialled lazily.
func NewRouter() *Router {
	return &Router{local: Local{}}
}

func (r *Router) backend(ctx context.Context, path string) (Store, error) {
	switch SchemeOf(path) {
	case SchemeS3:
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.s3 == nil {
			s, err := newS3(ctx)
			if err != nil {
				return nil, fmt.Errorf("objstore: s3 init: %w", err)
			}
			r.s3 = s
		}
		return r.s3, nil
	case SchemeAzure:
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.azure == nil {
			a, err := newAzure()
			if err != nil {
				return nil, fmt.Errorf("objstore: azure init: %w", err)
			}
			r.azure = a
		}
		return r.azure, nil
	default:
		return r.local, nil
	}
}

// Load implements Store.
func (r *Router) Load(ctx context.Context, path string) (io.ReadCloser, error) {
	b, err := r.backend(ctx, path)
	if err != nil {
		return nil, err
	}
	return b.Load(ctx, path)
}

// Save implements Store.
func (r *Router) Save(ctx context.Context, content []byte, path string) error {
	b, err := r.backend(ctx, path)
	if err != nil {
		return err
	}
	return b.Save(ctx, content, path)
}

// splitBucketPath splits "s3://bucket/key" or "azure://container/blob" into
// its container and object parts.
func splitBucketPath(path string, scheme Scheme) (string, string, error) {
	trimmed := strings.TrimPrefix(path, string(scheme)+"://")
	bucket, key, ok := strings.Cut(trimmed, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("objstore: invalid %s path %q", scheme, path)
	}
	return bucket, key, nil
}
