package builtin

import (
	"context"
	"strings"
	"testing"

	"github.com/colloquyhq/colloquy/internal/tools"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr    string
		want    string
		wantErr bool
	}{
		{expr: "15*7+22/11", want: "107"},
		{expr: "2+3*4", want: "14"},
		{expr: "(2+3)*4", want: "20"},
		{expr: "10/4", want: "2.5"},
		{expr: "-3+5", want: "2"},
		{expr: "2*(-3)", want: "-6"},
		{expr: " 1 + 2 ", want: "3"},
		{expr: "1/0", wantErr: true},
		{expr: "2+", wantErr: true},
		{expr: "(1+2", wantErr: true},
		{expr: "abc", wantErr: true},
		{expr: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			v, err := Evaluate(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Evaluate(%q) = %v, want error", tt.expr, v)
				}
				return
			}
			if err != nil {
				t.Fatalf("Evaluate(%q) error: %v", tt.expr, err)
			}
			if got := formatNumber(v); got != tt.want {
				t.Errorf("Evaluate(%q) = %s, want %s", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCalculatorFromFreeText(t *testing.T) {
	r := tools.NewRegistry(nil)
	if err := RegisterAll(r); err != nil {
		t.Fatalf("RegisterAll() error: %v", err)
	}
	calc, err := r.Resolve("calculator", "")
	if err != nil {
		t.Fatalf("Resolve(calculator) error: %v", err)
	}

	got, err := calc.Handler(context.Background(), map[string]any{"input": "what is 15*7+22/11?"})
	if err != nil {
		t.Fatalf("Handler() error: %v", err)
	}
	if got != "107" {
		t.Errorf("calculator = %q, want %q", got, "107")
	}

	if _, err := calc.Handler(context.Background(), map[string]any{"input": "no math here"}); err == nil {
		t.Error("Handler() with no expression did not fail")
	}
}

func TestClock(t *testing.T) {
	r := tools.NewRegistry(nil)
	if err := RegisterAll(r); err != nil {
		t.Fatalf("RegisterAll() error: %v", err)
	}
	clock, err := r.Resolve("clock", "")
	if err != nil {
		t.Fatalf("Resolve(clock) error: %v", err)
	}
	if clock.Cacheable {
		t.Error("clock is cacheable, want it excluded from the result cache")
	}

	got, err := clock.Handler(context.Background(), map[string]any{"timezone": "UTC"})
	if err != nil {
		t.Fatalf("Handler() error: %v", err)
	}
	if !strings.Contains(got, "UTC") {
		t.Errorf("clock = %q, want the timezone rendered", got)
	}

	if _, err := clock.Handler(context.Background(), map[string]any{"timezone": "Atlantis/Lost"}); err == nil {
		t.Error("Handler() with an unknown timezone did not fail")
	}
}

func TestEcho(t *testing.T) {
	r := tools.NewRegistry(nil)
	if err := RegisterAll(r); err != nil {
		t.Fatalf("RegisterAll() error: %v", err)
	}
	echo, err := r.Resolve("echo", "")
	if err != nil {
		t.Fatalf("Resolve(echo) error: %v", err)
	}
	got, err := echo.Handler(context.Background(), map[string]any{"input": "ping"})
	if err != nil {
		t.Fatalf("Handler() error: %v", err)
	}
	if got != "ping" {
		t.Errorf("echo = %q, want %q", got, "ping")
	}
}

func TestExtractExpression(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"what is 15*7+22/11?", "15*7+22/11"},
		{"compute (2+3)*4 for me", "(2+3)*4"},
		{"no numbers at all", ""},
		{"just 42", ""},
	}
	for _, tt := range tests {
		if got := extractExpression(tt.in); got != tt.want {
			t.Errorf("extractExpression(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
