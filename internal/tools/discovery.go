package tools

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

// fileDefinition is the on-disk shape of a discovered tool. One YAML document
// per file, one version per file; newer versions of the same tool live in
// their own files.
type fileDefinition struct {
	Definition `yaml:",inline"`

	// Kind selects the handler: "template" renders Template with ${arg}
	// placeholders, "exec" runs Command with args appended KEY=VALUE.
	Kind     string `yaml:"kind"`
	Template string `yaml:"template"`
	Command  string `yaml:"command"`

	// Cacheable opts the tool into the result cache.
	Cacheable bool `yaml:"cacheable"`
}

// Discoverer scans a directory of YAML tool definitions and registers them.
// Rescans are cheap: files whose content hash is unchanged are skipped, and
// concurrent rescans collapse into one via singleflight.
type Discoverer struct {
	dir      string
	registry *Registry
	log      *slog.Logger

	group  singleflight.Group
	hashes map[string][32]byte
}

// NewDiscoverer returns a discoverer over dir. The directory may not exist
// yet; Scan treats a missing directory as empty.
func NewDiscoverer(dir string, registry *Registry, log *slog.Logger) *Discoverer {
	if log == nil {
		log = slog.Default()
	}
	return &Discoverer{
		dir:      dir,
		registry: registry,
		log:      log,
		hashes:   make(map[string][32]byte),
	}
}

// Scan walks the directory once and registers every new or changed
// definition. A malformed file is logged and skipped; it never aborts the
// scan. Returns the number of tools (re)registered.
func (d *Discoverer) Scan(ctx context.Context) (int, error) {
	n, err, _ := d.group.Do("scan", func() (any, error) {
		return d.scan(ctx)
	})
	if err != nil {
		return 0, err
	}
	return n.(int), nil
}

// Watch rescans every interval until ctx is done. Errors are logged, not
// returned; a broken scan should not stop the loop.
func (d *Discoverer) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Scan(ctx); err != nil {
				d.log.Error("tool rescan failed", "dir", d.dir, "error", err)
			}
		}
	}
}

func (d *Discoverer) scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("tools: scan %s: %w", d.dir, err)
	}

	registered := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return registered, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(d.dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			d.log.Warn("tool definition unreadable", "file", path, "error", err)
			continue
		}
		hash := sha256.Sum256(raw)
		if prev, ok := d.hashes[path]; ok && prev == hash {
			continue
		}
		tool, err := parseFileDefinition(raw)
		if err != nil {
			d.log.Warn("tool definition rejected", "file", path, "error", err)
			continue
		}
		if err := d.registry.Register(tool); err != nil {
			d.log.Warn("tool definition rejected", "file", path, "error", err)
			continue
		}
		d.hashes[path] = hash
		registered++
		d.log.Info("tool discovered", "file", path, "tool", tool.Name, "version", tool.Version)
	}
	return registered, nil
}

func parseFileDefinition(raw []byte) (*Tool, error) {
	var fd fileDefinition
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&fd); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	tool := &Tool{Definition: fd.Definition, Cacheable: fd.Cacheable}
	switch fd.Kind {
	case "template":
		if fd.Template == "" {
			return nil, fmt.Errorf("kind template requires a template")
		}
		tool.Handler = templateHandler(fd.Template)
	case "exec":
		if fd.Command == "" {
			return nil, fmt.Errorf("kind exec requires a command")
		}
		tool.Handler = execHandler(fd.Command)
	case "":
		if fd.Status != StatusLegacy {
			return nil, fmt.Errorf("kind is required")
		}
	default:
		return nil, fmt.Errorf("unknown kind %q", fd.Kind)
	}
	return tool, nil
}

// templateHandler substitutes ${name} placeholders with stringified args.
// Unset placeholders render empty.
func templateHandler(template string) Handler {
	return func(_ context.Context, args map[string]any) (string, error) {
		return os.Expand(template, func(key string) string {
			if v, ok := args[key]; ok {
				return fmt.Sprint(v)
			}
			return ""
		}), nil
	}
}

// execHandler runs command with the arguments appended as KEY=VALUE pairs and
// returns the trimmed combined output.
func execHandler(command string) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		fields := strings.Fields(command)
		if len(fields) == 0 {
			return "", fmt.Errorf("tools: exec: empty command")
		}
		argv := fields[1:]
		keys := make([]string, 0, len(args))
		for k := range args {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			argv = append(argv, fmt.Sprintf("%s=%v", k, args[k]))
		}
		cmd := exec.CommandContext(ctx, fields[0], argv...)
		out, err := cmd.CombinedOutput()
		if err != nil {
			return "", fmt.Errorf("tools: exec %s: %w", fields[0], err)
		}
		return strings.TrimSpace(string(out)), nil
	}
}
