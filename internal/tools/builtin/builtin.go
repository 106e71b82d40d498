// Package builtin registers the tools Colloquy ships with: a calculator, a
// clock, and an echo tool. They are small on purpose; real deployments add
// tools through directory discovery or MCP servers.
package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/colloquyhq/colloquy/internal/tools"
)

// RegisterAll adds every builtin tool to the registry.
func RegisterAll(r *tools.Registry) error {
	for _, t := range []*tools.Tool{calculator(), clock(), echo()} {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func calculator() *tools.Tool {
	return &tools.Tool{
		Definition: tools.Definition{
			Name:        "calculator",
			Version:     "1.0.0",
			Description: "Evaluates arithmetic expressions with +, -, *, / and parentheses.",
			Usage:       `{"expression": "15*7+22/11"}`,
			Status:      tools.StatusStable,
			Modalities:  []string{"text"},
			Triggers: []tools.Trigger{
				{Pattern: `\d+\s*[-+*/]\s*\d+`},
				{Substring: "calculate"},
				{Phrase: "what is"},
			},
		},
		Cacheable: true,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			expr := argString(args, "expression")
			if expr == "" {
				expr = extractExpression(argString(args, "input"))
			}
			if expr == "" {
				return "", fmt.Errorf("builtin: calculator: no expression given")
			}
			v, err := Evaluate(expr)
			if err != nil {
				return "", err
			}
			return formatNumber(v), nil
		},
	}
}

func clock() *tools.Tool {
	return &tools.Tool{
		Definition: tools.Definition{
			Name:        "clock",
			Version:     "1.0.0",
			Description: "Reports the current date and time, optionally in a named IANA timezone.",
			Usage:       `{"timezone": "Asia/Shanghai"}`,
			Status:      tools.StatusStable,
			Modalities:  []string{"text"},
			Triggers: []tools.Trigger{
				{Substring: "what time"},
				{Substring: "current time"},
				{Phrase: "what day is it"},
			},
		},
		// Never cacheable: the answer changes every call.
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			now := time.Now()
			if tz := argString(args, "timezone"); tz != "" {
				loc, err := time.LoadLocation(tz)
				if err != nil {
					return "", fmt.Errorf("builtin: clock: unknown timezone %q", tz)
				}
				now = now.In(loc)
			}
			return now.Format("Monday, 2 January 2006, 15:04 MST"), nil
		},
	}
}

func echo() *tools.Tool {
	return &tools.Tool{
		Definition: tools.Definition{
			Name:        "echo",
			Version:     "1.0.0",
			Description: "Returns its input unchanged. Useful for chain plumbing and diagnostics.",
			Usage:       `{"input": "text"}`,
			Status:      tools.StatusStable,
			Modalities:  []string{"text"},
		},
		Cacheable: true,
		Handler: func(_ context.Context, args map[string]any) (string, error) {
			return argString(args, "input"), nil
		},
	}
}

func argString(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// extractExpression pulls the longest run of arithmetic characters out of
// free text, so "what is 15*7+22/11?" still evaluates.
func extractExpression(text string) string {
	best, current := "", strings.Builder{}
	flush := func() {
		if current.Len() > len(best) && strings.ContainsAny(current.String(), "+-*/") {
			best = current.String()
		}
		current.Reset()
	}
	for _, r := range text {
		if unicode.IsDigit(r) || strings.ContainsRune("+-*/(). ", r) {
			current.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return strings.TrimSpace(best)
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 10, 64)
}

// ── Expression evaluator ─────────────────────────────────────────────────────

// Evaluate computes an infix arithmetic expression with the usual precedence:
// parentheses, then * and /, then + and -. Division by zero is an error.
func Evaluate(expr string) (float64, error) {
	p := &parser{input: []rune(strings.TrimSpace(expr))}
	v, err := p.parseSum()
	if err != nil {
		return 0, fmt.Errorf("builtin: calculator: %w", err)
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("builtin: calculator: unexpected %q at offset %d", p.input[p.pos], p.pos)
	}
	return v, nil
}

type parser struct {
	input []rune
	pos   int
}

func (p *parser) parseSum() (float64, error) {
	v, err := p.parseProduct()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '+':
			p.pos++
			rhs, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			v += rhs
		case '-':
			p.pos++
			rhs, err := p.parseProduct()
			if err != nil {
				return 0, err
			}
			v -= rhs
		default:
			return v, nil
		}
	}
}

func (p *parser) parseProduct() (float64, error) {
	v, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '*':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			v *= rhs
		case '/':
			p.pos++
			rhs, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			v /= rhs
		default:
			return v, nil
		}
	}
}

func (p *parser) parseUnary() (float64, error) {
	p.skipSpace()
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseUnary()
		return -v, err
	}
	return p.parseAtom()
}

func (p *parser) parseAtom() (float64, error) {
	p.skipSpace()
	if p.peek() == '(' {
		p.pos++
		v, err := p.parseSum()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return 0, fmt.Errorf("missing closing parenthesis at offset %d", p.pos)
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected a number at offset %d", start)
	}
	v, err := strconv.ParseFloat(string(p.input[start:p.pos]), 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", string(p.input[start:p.pos]))
	}
	return v, nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *parser) peek() rune {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}
