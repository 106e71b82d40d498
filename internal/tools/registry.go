package tools

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/colloquyhq/colloquy/pkg/types"
)

// ErrToolNotFound is returned when no tool (or no matching version) is
// registered under the requested name.
var ErrToolNotFound = errors.New("tools: tool not found")

// ErrIncompatibleVersion is returned when a pinned version falls below the
// resolved version's minimum-compatible bound, or targets a legacy version.
var ErrIncompatibleVersion = errors.New("tools: incompatible version")

// Warning records one use of a deprecated tool version.
type Warning struct {
	Tool    string    `json:"tool"`
	Version string    `json:"version"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// versionEntry pairs a registered tool with its parsed version.
type versionEntry struct {
	tool   *Tool
	parsed semver
}

// Registry holds every registered tool, keyed by name, with all of its
// versions ordered ascending. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string][]versionEntry
	warnings []Warning
	log      *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		tools: make(map[string][]versionEntry),
		log:   log,
	}
}

// Register adds a tool version. Registering the same name and version again
// replaces the earlier entry. Triggers with patterns are compiled here so an
// invalid pattern fails registration, not invocation.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tools: register: name is required")
	}
	if t.Status == "" {
		t.Status = StatusStable
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("tools: register %q: unknown status %q", t.Name, t.Status)
	}
	if t.Handler == nil && t.Status != StatusLegacy {
		return fmt.Errorf("tools: register %q: handler is required for %s versions", t.Name, t.Status)
	}
	if t.Version == "" {
		t.Version = "1.0.0"
	}
	parsed, err := parseVersion(t.Version)
	if err != nil {
		return fmt.Errorf("tools: register %q: %w", t.Name, err)
	}
	if t.MinCompatible != "" {
		if _, err := parseVersion(t.MinCompatible); err != nil {
			return fmt.Errorf("tools: register %q: min_compatible: %w", t.Name, err)
		}
	}
	for i := range t.Triggers {
		trg := &t.Triggers[i]
		if trg.Pattern != "" {
			re, err := regexp.Compile("(?i)" + trg.Pattern)
			if err != nil {
				return fmt.Errorf("tools: register %q: trigger pattern: %w", t.Name, err)
			}
			trg.re = re
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.tools[t.Name]
	entries = slices.DeleteFunc(entries, func(e versionEntry) bool {
		return e.parsed.compare(parsed) == 0
	})
	entries = append(entries, versionEntry{tool: t, parsed: parsed})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].parsed.compare(entries[j].parsed) < 0
	})
	r.tools[t.Name] = entries
	r.log.Debug("tool registered", "tool", t.Name, "version", parsed.String(), "status", t.Status)
	return nil
}

// Unregister removes every version of name. Used when an MCP server or a
// definition file goes away.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Resolve returns the tool for name at the requested version. An empty
// version selects the default: the version marked Default, else the highest
// stable, else the highest non-legacy. Resolving a deprecated version
// records a [Warning]. Legacy versions never resolve.
func (r *Registry) Resolve(name, version string) (*Tool, error) {
	r.mu.RLock()
	entries := r.tools[name]
	r.mu.RUnlock()
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	var picked *versionEntry
	if version == "" {
		picked = defaultVersion(entries)
		if picked == nil {
			return nil, fmt.Errorf("%w: %q has no resolvable version", ErrToolNotFound, name)
		}
	} else {
		want, err := parseVersion(version)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			if entries[i].parsed.compare(want) == 0 {
				picked = &entries[i]
				break
			}
		}
		if picked == nil {
			return nil, fmt.Errorf("%w: %q has no version %s", ErrToolNotFound, name, want)
		}
		if picked.tool.Status == StatusLegacy {
			return nil, fmt.Errorf("%w: %q %s is legacy", ErrIncompatibleVersion, name, want)
		}
		if def := defaultVersion(entries); def != nil && def.tool.MinCompatible != "" {
			min, _ := parseVersion(def.tool.MinCompatible)
			if picked.parsed.compare(min) < 0 {
				return nil, fmt.Errorf("%w: %q %s is below minimum compatible %s",
					ErrIncompatibleVersion, name, want, min)
			}
		}
	}

	if picked.tool.Status == StatusDeprecated {
		w := Warning{
			Tool:    name,
			Version: picked.tool.Version,
			Message: fmt.Sprintf("tool %q version %s is deprecated", name, picked.tool.Version),
			At:      time.Now().UTC(),
		}
		r.mu.Lock()
		r.warnings = append(r.warnings, w)
		r.mu.Unlock()
		r.log.Warn("deprecated tool version used", "tool", name, "version", picked.tool.Version)
	}
	return picked.tool, nil
}

// defaultVersion picks the explicit default, else the highest stable, else
// the highest non-legacy version. Entries are sorted ascending.
func defaultVersion(entries []versionEntry) *versionEntry {
	for i := range entries {
		if entries[i].tool.Default && entries[i].tool.Status != StatusLegacy {
			return &entries[i]
		}
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].tool.Status == StatusStable {
			return &entries[i]
		}
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].tool.Status != StatusLegacy {
			return &entries[i]
		}
	}
	return nil
}

// MigrateArgs rewrites args shaped for fromVersion into the shape of
// toVersion by composing the Migrate hooks of every intermediate version.
// Versions without a hook pass args through unchanged.
func (r *Registry) MigrateArgs(name, fromVersion, toVersion string, args map[string]any) (map[string]any, error) {
	from, err := parseVersion(fromVersion)
	if err != nil {
		return nil, err
	}
	to, err := parseVersion(toVersion)
	if err != nil {
		return nil, err
	}
	if to.compare(from) <= 0 {
		return args, nil
	}

	r.mu.RLock()
	entries := r.tools[name]
	r.mu.RUnlock()
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrToolNotFound, name)
	}

	for _, e := range entries {
		if e.parsed.compare(from) <= 0 || e.parsed.compare(to) > 0 {
			continue
		}
		if e.tool.Migrate == nil {
			continue
		}
		migrated, err := e.tool.Migrate(args)
		if err != nil {
			return nil, fmt.Errorf("tools: migrate %q args to %s: %w", name, e.parsed, err)
		}
		args = migrated
	}
	return args, nil
}

// List returns the default-version descriptor of every registered tool,
// sorted by name. A non-empty modality keeps only tools declaring it.
func (r *Registry) List(modality string) []types.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.ToolDescriptor, 0, len(r.tools))
	for _, entries := range r.tools {
		def := defaultVersion(entries)
		if def == nil {
			continue
		}
		if modality != "" && !slices.Contains(def.tool.Modalities, modality) {
			continue
		}
		out = append(out, def.tool.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Warnings returns a copy of the recorded deprecated-use warnings.
func (r *Registry) Warnings() []Warning {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Warning, len(r.warnings))
	copy(out, r.warnings)
	return out
}

// defaults returns the default version of every tool, for the invoker's rule
// pass. Sorted by name so scoring ties resolve deterministically.
func (r *Registry) defaults() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Tool, 0, len(r.tools))
	for _, entries := range r.tools {
		if def := defaultVersion(entries); def != nil {
			out = append(out, def.tool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
