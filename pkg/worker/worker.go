// Package worker provides the shared stage-worker skeleton: a cooperative
// poll/process/sleep loop with classified error handling.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultPollInterval is the sleep applied when the queue is empty.
const DefaultPollInterval = time.Second

// CriticalError marks a failure the loop cannot recover from, such as a
// broken dependency at init time. The loop exits on it; every other error is
// logged and the loop continues.
type CriticalError struct {
	Err error
}

func (e *CriticalError) Error() string { return fmt.Sprintf("critical: %v", e.Err) }
func (e *CriticalError) Unwrap() error { return e.Err }

// Critical wraps err as unrecoverable.
func Critical(err error) error { return &CriticalError{Err: err} }

// IsCritical reports whether err carries a CriticalError.
func IsCritical(err error) bool {
	var ce *CriticalError
	return errors.As(err, &ce)
}

// ProcessFunc handles at most one message. It returns true when a message
// was consumed (successfully or as poison), false when the queue was empty.
type ProcessFunc func(ctx context.Context) (bool, error)

// Options tune a worker loop.
type Options struct {
	Name         string
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Run loops processOne until ctx is cancelled or a critical error escapes.
// An empty poll sleeps PollInterval before the next attempt.
func Run(ctx context.Context, opts Options, processOne ProcessFunc) error {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	log.Info("worker started", "worker", opts.Name)
	for {
		if err := ctx.Err(); err != nil {
			log.Info("worker stopped", "worker", opts.Name)
			return nil
		}

		processed, err := func() (processed bool, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker: panic: %v", r)
				}
			}()
			return processOne(ctx)
		}()
		if err != nil {
			if IsCritical(err) {
				log.Error("worker hit unrecoverable error", "worker", opts.Name, "error", err)
				return err
			}
			log.Error("task failed", "worker", opts.Name, "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			log.Info("worker stopped", "worker", opts.Name)
			return nil
		case <-time.After(interval):
		}
	}
}
