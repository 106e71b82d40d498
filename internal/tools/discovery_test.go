package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const translateYAML = `name: translate
version: 1.0.0
description: Renders a canned translation banner.
kind: template
template: "translated(${target}): ${input}"
cacheable: true
triggers:
  - substring: translate
modalities:
  - text
`

func writeDefinition(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error: %v", name, err)
	}
	return path
}

func TestScanRegistersTemplates(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "translate.yaml", translateYAML)

	r := NewRegistry(nil)
	d := NewDiscoverer(dir, r, nil)

	n, err := d.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("Scan() registered %d tools, want 1", n)
	}

	tool, err := r.Resolve("translate", "")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	got, err := tool.Handler(context.Background(), map[string]any{"target": "fr", "input": "hello"})
	if err != nil {
		t.Fatalf("Handler() error: %v", err)
	}
	if got != "translated(fr): hello" {
		t.Errorf("Handler() = %q, want the rendered template", got)
	}
}

func TestScanSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeDefinition(t, dir, "translate.yaml", translateYAML)

	r := NewRegistry(nil)
	d := NewDiscoverer(dir, r, nil)

	if n, _ := d.Scan(context.Background()); n != 1 {
		t.Fatalf("first Scan() registered %d, want 1", n)
	}
	if n, _ := d.Scan(context.Background()); n != 0 {
		t.Errorf("second Scan() registered %d, want 0 for unchanged content", n)
	}

	updated := translateYAML + "usage: '{\"target\": \"fr\"}'\n"
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	if n, _ := d.Scan(context.Background()); n != 1 {
		t.Errorf("Scan() after edit registered %d, want 1", n)
	}
}

func TestScanSkipsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	writeDefinition(t, dir, "good.yaml", translateYAML)
	writeDefinition(t, dir, "bad.yaml", "name: broken\nkind: teleport\n")
	writeDefinition(t, dir, "unknown-field.yaml", "name: x\nkind: template\ntemplate: y\nbogus: true\n")
	writeDefinition(t, dir, "notes.txt", "not a tool")

	r := NewRegistry(nil)
	d := NewDiscoverer(dir, r, nil)

	n, err := d.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if n != 1 {
		t.Errorf("Scan() registered %d tools, want only the well-formed one", n)
	}
	if _, err := r.Resolve("broken", ""); err == nil {
		t.Error("Resolve(broken) succeeded, want the malformed file skipped")
	}
}

func TestScanMissingDirIsEmpty(t *testing.T) {
	r := NewRegistry(nil)
	d := NewDiscoverer(filepath.Join(t.TempDir(), "absent"), r, nil)
	n, err := d.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan(missing dir) error: %v", err)
	}
	if n != 0 {
		t.Errorf("Scan(missing dir) = %d, want 0", n)
	}
}
