package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised names without rejecting third-party
// registrations.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. A convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing every validation failure found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxInflight < 0 {
		errs = append(errs, fmt.Errorf("server.max_inflight %d must not be negative", cfg.Server.MaxInflight))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("llm", cfg.Providers.FallbackLLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; every reply will use the echo fallback")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Store.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but store.embedding_dimensions is not set; semantic turn recall stays disabled")
	}
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; sessions and turns are held in memory only")
	}

	if high, low := cfg.Tools.ConfidenceHigh, cfg.Tools.ConfidenceLow; high != 0 || low != 0 {
		if high < 0 || high > 1 {
			errs = append(errs, fmt.Errorf("tools.confidence_high %.2f is out of range [0, 1]", high))
		}
		if low < 0 || low > 1 {
			errs = append(errs, fmt.Errorf("tools.confidence_low %.2f is out of range [0, 1]", low))
		}
		if high != 0 && low != 0 && low > high {
			errs = append(errs, fmt.Errorf("tools.confidence_low %.2f must not exceed tools.confidence_high %.2f", low, high))
		}
	}

	seen := make(map[string]int, len(cfg.Tools.MCPServers))
	for i, srv := range cfg.Tools.MCPServers {
		prefix := fmt.Sprintf("tools.mcp_servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := seen[srv.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tools.mcp_servers[%d]", prefix, srv.Name, prev))
			}
			seen[srv.Name] = i
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	if caps := cfg.Frequency.DailyCaps; len(caps) != 0 {
		if len(caps) != 4 {
			errs = append(errs, fmt.Errorf("frequency.daily_caps must list exactly 4 values (new, developing, familiar, close), got %d", len(caps)))
		}
		for i, c := range caps {
			if c < 0 {
				errs = append(errs, fmt.Errorf("frequency.daily_caps[%d] %d must not be negative", i, c))
			}
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning when name is non-empty and not in the
// [ValidProviderNames] list for kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
