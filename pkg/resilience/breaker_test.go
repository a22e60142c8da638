package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ragproc/ragproc/pkg/fn"
)

func failing(_ context.Context) fn.Result[int] { return fn.Errf[int]("down") }
func succeeding(_ context.Context) fn.Result[int] { return fn.Ok(1) }

func newTestBreaker(threshold int) (*Breaker, *time.Time) {
	b := NewBreaker(BreakerOpts{FailThreshold: threshold, Timeout: time.Minute})
	now := time.Now()
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if r := Do(ctx, b, failing); r.IsOk() {
			t.Fatal("failing call reported ok")
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want open", b.State())
	}

	r := Do(ctx, b, succeeding)
	if _, err := r.Unwrap(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("open breaker let a call through: %v", err)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b, now := newTestBreaker(1)
	ctx := context.Background()

	Do(ctx, b, failing)
	if b.State() != StateOpen {
		t.Fatal("breaker did not trip")
	}

	*now = now.Add(2 * time.Minute)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half-open after timeout", b.State())
	}

	if r := Do(ctx, b, succeeding); r.IsErr() {
		t.Fatal("probe call rejected")
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want closed after successful probe", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, now := newTestBreaker(1)
	ctx := context.Background()

	Do(ctx, b, failing)
	*now = now.Add(2 * time.Minute)
	Do(ctx, b, failing) // failed probe
	if b.State() != StateOpen {
		t.Errorf("state = %v, want re-opened", b.State())
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(2)
	ctx := context.Background()

	Do(ctx, b, failing)
	Do(ctx, b, succeeding)
	Do(ctx, b, failing)
	if b.State() != StateClosed {
		t.Errorf("state = %v, non-consecutive failures must not trip", b.State())
	}
}
