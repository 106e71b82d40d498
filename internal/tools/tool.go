// Package tools provides the versioned tool registry, YAML directory
// discovery, the MCP import bridge, the result cache, and the hybrid
// invocation decision used by the dialogue orchestrator.
package tools

import (
	"context"
	"regexp"

	"github.com/colloquyhq/colloquy/pkg/types"
)

// Status is the lifecycle state of a registered tool version.
type Status string

const (
	// StatusStable versions are eligible for default resolution.
	StatusStable Status = "stable"

	// StatusExperimental versions resolve only when requested explicitly.
	StatusExperimental Status = "experimental"

	// StatusDeprecated versions still work but every use produces a warning
	// record.
	StatusDeprecated Status = "deprecated"

	// StatusLegacy versions are kept for arg-migration chains only and are
	// rejected at invocation time.
	StatusLegacy Status = "legacy"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusStable, StatusExperimental, StatusDeprecated, StatusLegacy:
		return true
	}
	return false
}

// Handler executes a tool. The returned string is the serialized result
// committed to the session as a tool turn.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Migrator rewrites arguments produced for the previous version of a tool
// into the shape this version expects. Migrators compose: invoking v3 with
// v1-shaped args runs v2's migrator then v3's.
type Migrator func(args map[string]any) (map[string]any, error)

// Trigger describes one rule-pass signal that suggests a tool. A trigger may
// set any combination of fields; the strongest matching field wins.
type Trigger struct {
	// Substring matches case-insensitively anywhere in the input. Score 0.9.
	Substring string `yaml:"substring"`

	// Pattern is a regular expression over the input. Score 0.95.
	Pattern string `yaml:"pattern"`

	// Phrase is fuzzy-matched against same-length word windows of the input
	// with Jaro-Winkler, scaled so a near-miss consults the model rather
	// than firing the tool outright.
	Phrase string `yaml:"phrase"`

	re *regexp.Regexp
}

// Definition is the versioned metadata of a tool.
type Definition struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Usage       string   `yaml:"usage"`
	Status      Status   `yaml:"status"`
	Modalities  []string `yaml:"modalities"`
	Triggers    []Trigger `yaml:"triggers"`

	// Default marks this version as the explicit default. At most one
	// version of a tool may set it; without one the highest stable wins.
	Default bool `yaml:"default"`

	// MinCompatible is the oldest version whose argument shape this version
	// still accepts (directly or through the migration chain). Requests
	// pinned below it are rejected.
	MinCompatible string `yaml:"min_compatible"`

	// Chain marks composed entries built from other tools. Chains win
	// confidence ties against single tools.
	Chain bool `yaml:"-"`
}

// Tool pairs a Definition with its executable handler.
type Tool struct {
	Definition

	// Handler executes the tool. Required for every non-legacy version.
	Handler Handler

	// Migrate upgrades args from the previous registered version, nil when
	// the shape is unchanged.
	Migrate Migrator

	// Cacheable marks results as safe to serve from the TTL cache. Tools
	// whose output depends on wall clock or external state leave it false.
	Cacheable bool
}

// Descriptor converts the definition to its wire-facing form.
func (d Definition) Descriptor() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name:        d.Name,
		Description: d.Description,
		Usage:       d.Usage,
		Version:     d.Version,
		Status:      string(d.Status),
		Modalities:  d.Modalities,
		Chain:       d.Chain,
	}
}
