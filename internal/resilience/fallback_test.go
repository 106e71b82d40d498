package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeProvider struct {
	name string
	err  error
}

func TestFallbackGroupPrimaryWins(t *testing.T) {
	g := NewFallbackGroup("primary", &fakeProvider{name: "primary"}, BreakerConfig{})
	g.Add("backup", &fakeProvider{name: "backup"})

	got, err := DoWithResult(context.Background(), g, func(_ context.Context, p *fakeProvider) (string, error) {
		return p.name, p.err
	})
	if err != nil {
		t.Fatalf("DoWithResult() error = %v", err)
	}
	if got != "primary" {
		t.Errorf("DoWithResult() = %q, want %q", got, "primary")
	}
}

func TestFallbackGroupFallsThrough(t *testing.T) {
	g := NewFallbackGroup("primary", &fakeProvider{name: "primary", err: errBoom}, BreakerConfig{})
	g.Add("backup", &fakeProvider{name: "backup"})

	got, err := DoWithResult(context.Background(), g, func(_ context.Context, p *fakeProvider) (string, error) {
		return p.name, p.err
	})
	if err != nil {
		t.Fatalf("DoWithResult() error = %v", err)
	}
	if got != "backup" {
		t.Errorf("DoWithResult() = %q, want %q", got, "backup")
	}
}

func TestFallbackGroupAllFailed(t *testing.T) {
	g := NewFallbackGroup("primary", &fakeProvider{err: errBoom}, BreakerConfig{})
	g.Add("backup", &fakeProvider{err: errBoom})

	_, err := DoWithResult(context.Background(), g, func(_ context.Context, p *fakeProvider) (string, error) {
		return "", p.err
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("DoWithResult() error = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("DoWithResult() error = %v, want wrapped errBoom", err)
	}
}

func TestFallbackGroupSkipsOpenBreaker(t *testing.T) {
	g := NewFallbackGroup("primary", &fakeProvider{name: "primary", err: errBoom},
		BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	g.Add("backup", &fakeProvider{name: "backup"})

	run := func() (string, int) {
		primaryCalls := 0
		got, err := DoWithResult(context.Background(), g, func(_ context.Context, p *fakeProvider) (string, error) {
			if p.name == "primary" {
				primaryCalls++
			}
			return p.name, p.err
		})
		if err != nil {
			t.Fatalf("DoWithResult() error = %v", err)
		}
		return got, primaryCalls
	}

	// First call trips the primary breaker.
	if got, calls := run(); got != "backup" || calls != 1 {
		t.Fatalf("first run = (%q, %d primary calls), want (backup, 1)", got, calls)
	}
	// Second call must not touch the primary at all.
	if got, calls := run(); got != "backup" || calls != 0 {
		t.Errorf("second run = (%q, %d primary calls), want (backup, 0)", got, calls)
	}
}

func TestFallbackGroupHonoursCancellation(t *testing.T) {
	g := NewFallbackGroup("primary", &fakeProvider{err: errBoom}, BreakerConfig{})
	g.Add("backup", &fakeProvider{name: "backup"})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := DoWithResult(ctx, g, func(_ context.Context, p *fakeProvider) (string, error) {
		cancel()
		return "", p.err
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("DoWithResult() error = %v, want wrapped context.Canceled", err)
	}
}

func TestFallbackGroupNames(t *testing.T) {
	g := NewFallbackGroup("a", &fakeProvider{}, BreakerConfig{})
	g.Add("b", &fakeProvider{})

	names := g.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want [a b]", names)
	}
}
