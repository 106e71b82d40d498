package tools

import (
	"context"
	"fmt"
)

// Step is one link of a chain: a tool name plus fixed arguments. The previous
// step's result is always injected as args["input"] before fixed args apply.
type Step struct {
	Tool string
	Args map[string]any
}

// Condition inspects the accumulated result and decides whether the next
// step runs. A nil condition always runs.
type Condition func(previousResult string) bool

// ConditionalStep is a [Step] gated by a condition. A skipped step passes the
// previous result through unchanged.
type ConditionalStep struct {
	Step
	When Condition
}

// RegisterChain registers a sequential composition of existing tools under
// its own name. Each step receives the previous step's result as
// args["input"]; the chain's own invocation args seed the first step. Chains
// resolve through the registry at run time, so replacing a member tool
// version retargets every chain using it.
func (r *Registry) RegisterChain(def Definition, steps []Step) error {
	if len(steps) == 0 {
		return fmt.Errorf("tools: chain %q: at least one step is required", def.Name)
	}
	conditional := make([]ConditionalStep, len(steps))
	for i, s := range steps {
		conditional[i] = ConditionalStep{Step: s}
	}
	return r.RegisterConditionalChain(def, conditional)
}

// RegisterConditionalChain is [Registry.RegisterChain] with per-step
// conditions evaluated against the running result.
func (r *Registry) RegisterConditionalChain(def Definition, steps []ConditionalStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("tools: chain %q: at least one step is required", def.Name)
	}
	def.Chain = true
	return r.Register(&Tool{
		Definition: def,
		Handler:    r.chainHandler(def.Name, steps),
	})
}

func (r *Registry) chainHandler(chainName string, steps []ConditionalStep) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		result := ""
		current := args
		for i, step := range steps {
			if step.When != nil && !step.When(result) {
				continue
			}
			tool, err := r.Resolve(step.Tool, "")
			if err != nil {
				return "", fmt.Errorf("tools: chain %q step %d: %w", chainName, i+1, err)
			}
			stepArgs := make(map[string]any, len(current)+len(step.Args)+1)
			for k, v := range current {
				stepArgs[k] = v
			}
			if result != "" {
				stepArgs["input"] = result
			}
			for k, v := range step.Args {
				stepArgs[k] = v
			}
			result, err = tool.Handler(ctx, stepArgs)
			if err != nil {
				return "", fmt.Errorf("tools: chain %q step %d (%s): %w", chainName, i+1, step.Tool, err)
			}
			current = map[string]any{}
		}
		return result, nil
	}
}
