// Command colloquy is the dialogue orchestration server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/colloquyhq/colloquy/internal/assembler"
	"github.com/colloquyhq/colloquy/internal/config"
	"github.com/colloquyhq/colloquy/internal/dialogue"
	"github.com/colloquyhq/colloquy/internal/observe"
	"github.com/colloquyhq/colloquy/internal/proactive"
	"github.com/colloquyhq/colloquy/internal/server"
	"github.com/colloquyhq/colloquy/internal/tools"
	"github.com/colloquyhq/colloquy/internal/tools/builtin"
	"github.com/colloquyhq/colloquy/pkg/provider/embeddings"
	oaembed "github.com/colloquyhq/colloquy/pkg/provider/embeddings/openai"
	"github.com/colloquyhq/colloquy/pkg/provider/llm"
	"github.com/colloquyhq/colloquy/pkg/provider/llm/anyllm"
	"github.com/colloquyhq/colloquy/pkg/store"
	"github.com/colloquyhq/colloquy/pkg/store/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "colloquy: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "colloquy: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("colloquy starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "colloquy",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	model, err := buildModel(cfg, reg, logger)
	if err != nil {
		slog.Error("failed to build model provider", "err", err)
		return 1
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	st, closeStore, err := buildStore(ctx, cfg, reg, logger)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer closeStore()

	// ── Tools ─────────────────────────────────────────────────────────────────
	registry := tools.NewRegistry(logger)
	if err := builtin.RegisterAll(registry); err != nil {
		slog.Error("failed to register builtin tools", "err", err)
		return 1
	}
	if cfg.Tools.Dir != "" {
		discoverer := tools.NewDiscoverer(cfg.Tools.Dir, registry, logger)
		if n, err := discoverer.Scan(ctx); err != nil {
			slog.Warn("initial tool scan failed", "err", err)
		} else {
			slog.Info("tool directory scanned", "dir", cfg.Tools.Dir, "tools", n)
		}
		go discoverer.Watch(ctx, cfg.Tools.RescanInterval)
	}
	bridge := tools.NewMCPBridge(registry, logger)
	if len(cfg.Tools.MCPServers) > 0 {
		if n, err := bridge.Connect(ctx, cfg.Tools.MCPServers); err != nil {
			slog.Warn("MCP connect failed", "err", err)
		} else {
			slog.Info("MCP tools imported", "count", n)
		}
	}
	defer func() {
		if err := bridge.Close(); err != nil {
			slog.Warn("MCP close error", "err", err)
		}
	}()

	invoker := tools.NewInvoker(registry, model,
		tools.WithConfidenceBands(cfg.Tools.ConfidenceHigh, cfg.Tools.ConfidenceLow),
		tools.WithCache(cfg.Tools.CacheTTL, cfg.Tools.CacheSize),
		tools.WithInvokerLogger(logger),
	)

	// ── Assembler and orchestrator ────────────────────────────────────────────
	asmOpts := []assembler.Option{}
	if cfg.Dialogue.SystemDirective != "" {
		asmOpts = append(asmOpts, assembler.WithDirective(cfg.Dialogue.SystemDirective))
	}
	if cfg.Dialogue.ContextTokenBudget > 0 {
		asmOpts = append(asmOpts, assembler.WithTokenBudget(cfg.Dialogue.ContextTokenBudget))
	}
	if searcher := semanticSearcher(st); searcher != nil {
		asmOpts = append(asmOpts, assembler.WithSemanticSearcher(searcher))
	}
	asm := assembler.New(asmOpts...)

	hub := server.NewHub(cfg.Server.PushBuffer, logger)

	orchestrator := dialogue.New(st, model, asm,
		dialogue.WithInvoker(invoker),
		dialogue.WithNotifier(hub),
		dialogue.WithModelTimeout(cfg.Dialogue.ModelTimeout),
		dialogue.WithAIAITurnBudget(cfg.Dialogue.AIAITurnBudget),
		dialogue.WithSampling(cfg.Dialogue.Temperature, cfg.Dialogue.MaxTokens),
		dialogue.WithLogger(logger),
	)

	// ── Proactive scheduler ───────────────────────────────────────────────────
	tracker := proactive.NewTracker()
	settings := proactive.NewSettingsStore()
	scheduler := proactive.NewScheduler(st, tracker, settings,
		proactive.NewPlanner(model, logger), hub,
		proactive.SchedulerConfig{
			TickInterval: cfg.Frequency.TickInterval,
			MinQuiet:     cfg.Frequency.MinQuiet,
			DailyCaps:    cfg.Frequency.DailyCaps,
			QueueSize:    cfg.Frequency.QueueSize,
			Logger:       logger,
		})
	go scheduler.Run(ctx)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := server.New(orchestrator, st, registry,
		server.WithMaxInflight(cfg.Server.MaxInflight),
		server.WithScheduler(scheduler, settings, tracker),
		server.WithHub(hub),
		server.WithLogger(logger),
	)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", listenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// version is set at build time via -ldflags.
var version = "dev"

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
}

// buildModel constructs the primary model provider and, when configured, the
// fallback chained behind it. No configured provider yields nil, which the
// orchestrator turns into echo replies.
func buildModel(cfg *config.Config, reg *config.Registry, log *slog.Logger) (llm.Provider, error) {
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no llm provider configured; replies will echo input")
		return nil, nil
	}
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, err
	}
	if cfg.Providers.FallbackLLM.Name == "" {
		return primary, nil
	}
	fallback, err := reg.CreateLLM(cfg.Providers.FallbackLLM)
	if err != nil {
		return nil, err
	}
	chain := llm.NewFailover(cfg.Providers.LLM.Name, primary, log)
	chain.Add(cfg.Providers.FallbackLLM.Name, fallback)
	return chain, nil
}

// buildStore opens the configured store and wraps it with the fabricate-on-
// failure decorator.
func buildStore(ctx context.Context, cfg *config.Config, reg *config.Registry, log *slog.Logger) (store.Store, func(), error) {
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("no postgres dsn configured; using the in-memory store")
		return store.WithFallback(store.NewMemStore(), store.WithLogger(log)), func() {}, nil
	}

	pgOpts := []postgres.Option{postgres.WithLogger(log)}
	if cfg.Providers.Embeddings.Name != "" && cfg.Store.EmbeddingDimensions > 0 {
		embedder, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, nil, err
		}
		pgOpts = append(pgOpts, postgres.WithEmbedder(embedder))
	}

	pg, err := postgres.NewStore(ctx, cfg.Store.PostgresDSN, pgOpts...)
	if err != nil {
		return nil, nil, err
	}
	return store.WithFallback(pg, store.WithLogger(log)), pg.Close, nil
}

// semanticSearcher unwraps the store decorators looking for a semantic index.
func semanticSearcher(st store.Store) store.SemanticSearcher {
	for {
		if s, ok := st.(store.SemanticSearcher); ok {
			return s
		}
		u, ok := st.(interface{ Unwrap() store.Store })
		if !ok {
			return nil
		}
		st = u.Unwrap()
	}
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
