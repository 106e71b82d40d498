package config

import (
	"strings"
	"testing"
	"time"
)

const validYAML = `
server:
  listen_addr: ":8080"
  log_level: info
  max_inflight: 32
store:
  postgres_dsn: "postgres://colloquy:pw@localhost:5432/colloquy?sslmode=disable"
  embedding_dimensions: 1536
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  fallback_llm:
    name: ollama
    model: llama3.2
  embeddings:
    name: openai
    api_key: sk-test
dialogue:
  temperature: 0.7
  model_timeout: 30s
  ai_ai_turn_budget: 6
tools:
  dir: ./tools.d
  rescan_interval: 2m
  confidence_high: 0.75
  confidence_low: 0.35
  mcp_servers:
    - name: files
      transport: stdio
      command: mcp-files --root /srv
frequency:
  tick_interval: 30s
  min_quiet: 20m
  daily_caps: [1, 3, 5, 8]
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Providers.LLM.Model != "gpt-4o" {
		t.Errorf("LLM.Model = %q, want %q", cfg.Providers.LLM.Model, "gpt-4o")
	}
	if cfg.Dialogue.ModelTimeout != 30*time.Second {
		t.Errorf("ModelTimeout = %v, want 30s", cfg.Dialogue.ModelTimeout)
	}
	if cfg.Tools.ConfidenceHigh != 0.75 {
		t.Errorf("ConfidenceHigh = %v, want 0.75", cfg.Tools.ConfidenceHigh)
	}
	if got := cfg.Frequency.DailyCaps; len(got) != 4 || got[3] != 8 {
		t.Errorf("DailyCaps = %v, want [1 3 5 8]", got)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server:\n  listen_adr: \":8080\"\n"))
	if err == nil {
		t.Fatal("LoadFromReader() error = nil, want unknown-field error")
	}
}

func TestValidateFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			"bad log level",
			"server:\n  log_level: verbose\n",
			"server.log_level",
		},
		{
			"inverted confidence bands",
			"tools:\n  confidence_high: 0.3\n  confidence_low: 0.6\n",
			"confidence_low",
		},
		{
			"stdio server without command",
			"tools:\n  mcp_servers:\n    - name: files\n      transport: stdio\n",
			"command is required",
		},
		{
			"http server without url",
			"tools:\n  mcp_servers:\n    - name: web\n      transport: streamable-http\n",
			"url is required",
		},
		{
			"duplicate mcp server names",
			"tools:\n  mcp_servers:\n    - name: a\n      transport: stdio\n      command: x\n    - name: a\n      transport: stdio\n      command: y\n",
			"duplicate",
		},
		{
			"wrong daily caps length",
			"frequency:\n  daily_caps: [1, 2]\n",
			"exactly 4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatal("LoadFromReader() error = nil, want validation failure")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateJoinsMultipleErrors(t *testing.T) {
	yaml := "server:\n  log_level: loud\n  max_inflight: -1\n"
	_, err := LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("LoadFromReader() error = nil, want two joined failures")
	}
	for _, want := range []string{"log_level", "max_inflight"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q does not mention %q", err, want)
		}
	}
}
