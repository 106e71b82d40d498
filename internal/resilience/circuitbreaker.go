// Package resilience provides the failure-isolation primitives shared by the
// store fallback decorator and the model provider failover chain.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open).
// [FallbackGroup] composes a primary and ordered fallbacks of any provider
// type, each guarded by its own breaker. All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not yet elapsed. Callers use errors.Is on it to distinguish
// "rejected without calling" from a real downstream failure.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects calls with [ErrCircuitOpen] until the cooldown passes.
	BreakerOpen

	// BreakerHalfOpen lets a limited number of probes through; consecutive
	// probe successes close the breaker, any probe failure re-opens it.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels the breaker in log records.
	Name string

	// Threshold is the consecutive-failure count that opens the breaker.
	// Default 5.
	Threshold int

	// Cooldown is how long the breaker stays open before probing. Default 30s.
	Cooldown time.Duration

	// ProbeQuota is how many consecutive probe successes close a half-open
	// breaker, and also the cap on concurrent-ish probe calls. Default 2.
	ProbeQuota int

	// Logger receives state-transition records. Default slog.Default().
	Logger *slog.Logger
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name       string
	threshold  int
	cooldown   time.Duration
	probeQuota int
	log        *slog.Logger

	mu        sync.Mutex
	state     BreakerState
	failures  int
	probes    int // probe calls admitted this half-open episode
	probeOKs  int // consecutive probe successes
	openedAt  time.Time
}

// NewBreaker creates a closed [Breaker] from cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeQuota <= 0 {
		cfg.ProbeQuota = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Breaker{
		name:       cfg.Name,
		threshold:  cfg.Threshold,
		cooldown:   cfg.Cooldown,
		probeQuota: cfg.ProbeQuota,
		log:        cfg.Logger,
	}
}

// Do runs fn when the breaker admits the call. A context already past its
// deadline is rejected before fn runs and does not count against the breaker.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.state = BreakerHalfOpen
		b.probes = 0
		b.probeOKs = 0
		b.log.Info("circuit breaker half-open", "breaker", b.name)
	case BreakerHalfOpen:
		if b.probes >= b.probeQuota {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
	}
	probing := b.state == BreakerHalfOpen
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
	} else {
		b.onSuccess(probing)
	}
	return err
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	if probing {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.failures = b.threshold
		b.log.Warn("circuit breaker re-opened", "breaker", b.name)
		return
	}
	b.failures++
	if b.state == BreakerClosed && b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
		b.log.Warn("circuit breaker opened", "breaker", b.name, "failures", b.failures)
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		b.probeOKs++
		if b.probeOKs >= b.probeQuota {
			b.state = BreakerClosed
			b.failures = 0
			b.probes = 0
			b.probeOKs = 0
			b.log.Info("circuit breaker closed", "breaker", b.name)
		}
		return
	}
	b.failures = 0
}

// State reports the effective state. An open breaker whose cooldown has
// elapsed reports half-open; the transition itself happens on the next Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	b.probeOKs = 0
}
