package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func failing(context.Context) error { return errBoom }
func succeeding(context.Context) error { return nil }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "t", Threshold: 3, Cooldown: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Do(ctx, failing); !errors.Is(err, errBoom) {
			t.Fatalf("Do(%d) error = %v, want errBoom", i, err)
		}
	}
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("State() = %v, want open", got)
	}
	if err := b.Do(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Do() while open error = %v, want ErrCircuitOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "t", Threshold: 2, Cooldown: time.Minute})
	ctx := context.Background()

	b.Do(ctx, failing)
	b.Do(ctx, succeeding)
	b.Do(ctx, failing)
	if got := b.State(); got != BreakerClosed {
		t.Errorf("State() = %v, want closed (success must reset the counter)", got)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "t", Threshold: 1, Cooldown: 10 * time.Millisecond, ProbeQuota: 2})
	ctx := context.Background()

	b.Do(ctx, failing)
	if got := b.State(); got != BreakerOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	time.Sleep(15 * time.Millisecond)
	if got := b.State(); got != BreakerHalfOpen {
		t.Fatalf("State() after cooldown = %v, want half-open", got)
	}

	// Two consecutive probe successes close the breaker.
	for i := 0; i < 2; i++ {
		if err := b.Do(ctx, succeeding); err != nil {
			t.Fatalf("probe %d error = %v", i, err)
		}
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("State() after probes = %v, want closed", got)
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "t", Threshold: 1, Cooldown: 10 * time.Millisecond})
	ctx := context.Background()

	b.Do(ctx, failing)
	time.Sleep(15 * time.Millisecond)

	if err := b.Do(ctx, failing); !errors.Is(err, errBoom) {
		t.Fatalf("probe error = %v, want errBoom", err)
	}
	if got := b.State(); got != BreakerOpen {
		t.Errorf("State() after failed probe = %v, want open", got)
	}
}

func TestBreakerExpiredContextDoesNotCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "t", Threshold: 1, Cooldown: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.Do(ctx, failing); !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if got := b.State(); got != BreakerClosed {
		t.Errorf("State() = %v, want closed (cancelled context must not trip the breaker)", got)
	}
}

func TestBreakerReset(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "t", Threshold: 1, Cooldown: time.Hour})
	ctx := context.Background()

	b.Do(ctx, failing)
	b.Reset()
	if got := b.State(); got != BreakerClosed {
		t.Fatalf("State() after Reset = %v, want closed", got)
	}
	if err := b.Do(ctx, succeeding); err != nil {
		t.Errorf("Do() after Reset error = %v", err)
	}
}
