package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/colloquyhq/colloquy/internal/config"
)

// MCPBridge connects to configured MCP servers, imports their tools into the
// registry, and routes invocations back over the session. Imported tools are
// namespaced "server.tool" so they never collide with local definitions.
type MCPBridge struct {
	registry *Registry
	log      *slog.Logger
	sessions []*mcpsdk.ClientSession
	imported []string
}

// NewMCPBridge returns a bridge that registers into registry.
func NewMCPBridge(registry *Registry, log *slog.Logger) *MCPBridge {
	if log == nil {
		log = slog.Default()
	}
	return &MCPBridge{registry: registry, log: log}
}

// Connect dials every configured server and imports its tools. A server that
// fails to connect is logged and skipped so one bad config entry does not
// take the rest down. Returns the number of imported tools.
func (b *MCPBridge) Connect(ctx context.Context, servers []config.MCPServerConfig) (int, error) {
	total := 0
	for _, srv := range servers {
		n, err := b.connectOne(ctx, srv)
		if err != nil {
			b.log.Error("MCP server unavailable", "server", srv.Name, "error", err)
			continue
		}
		total += n
	}
	return total, nil
}

func (b *MCPBridge) connectOne(ctx context.Context, srv config.MCPServerConfig) (int, error) {
	transport, err := buildTransport(srv)
	if err != nil {
		return 0, err
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "colloquy",
		Version: "1.0.0",
	}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return 0, fmt.Errorf("tools: mcp connect %q: %w", srv.Name, err)
	}
	b.sessions = append(b.sessions, session)

	imported := 0
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return imported, fmt.Errorf("tools: mcp list %q: %w", srv.Name, err)
		}
		name := srv.Name + "." + tool.Name
		t := &Tool{
			Definition: Definition{
				Name:        name,
				Version:     "1.0.0",
				Description: tool.Description,
				Status:      StatusStable,
				Modalities:  []string{"text"},
			},
			Handler: b.callHandler(session, tool.Name),
		}
		if err := b.registry.Register(t); err != nil {
			b.log.Warn("MCP tool rejected", "server", srv.Name, "tool", tool.Name, "error", err)
			continue
		}
		b.imported = append(b.imported, name)
		imported++
	}
	b.log.Info("MCP server connected", "server", srv.Name, "tools", imported)
	return imported, nil
}

func buildTransport(srv config.MCPServerConfig) (mcpsdk.Transport, error) {
	switch srv.Transport {
	case config.TransportStdio:
		fields := strings.Fields(srv.Command)
		if len(fields) == 0 {
			return nil, fmt.Errorf("tools: mcp %q: empty command", srv.Name)
		}
		return &mcpsdk.CommandTransport{Command: exec.Command(fields[0], fields[1:]...)}, nil
	case config.TransportStreamableHTTP:
		return &mcpsdk.StreamableClientTransport{Endpoint: srv.URL}, nil
	default:
		return nil, fmt.Errorf("tools: mcp %q: unknown transport %q", srv.Name, srv.Transport)
	}
}

// callHandler adapts an MCP tool invocation to a [Handler]. Text content
// blocks are concatenated; a result flagged IsError is returned as an error.
func (b *MCPBridge) callHandler(session *mcpsdk.ClientSession, toolName string) Handler {
	return func(ctx context.Context, args map[string]any) (string, error) {
		res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
			Name:      toolName,
			Arguments: args,
		})
		if err != nil {
			return "", fmt.Errorf("tools: mcp call %q: %w", toolName, err)
		}
		var sb strings.Builder
		for _, content := range res.Content {
			if text, ok := content.(*mcpsdk.TextContent); ok {
				sb.WriteString(text.Text)
			}
		}
		if res.IsError {
			return "", fmt.Errorf("tools: mcp call %q: %s", toolName, sb.String())
		}
		return sb.String(), nil
	}
}

// Close unregisters the imported tools and closes every session.
func (b *MCPBridge) Close() error {
	for _, name := range b.imported {
		b.registry.Unregister(name)
	}
	b.imported = nil

	var errs []error
	for _, session := range b.sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.sessions = nil
	return errors.Join(errs...)
}
