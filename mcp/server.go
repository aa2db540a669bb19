package mcp

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

const protocolVersion = "2025-06-18"

// Connection is a live link to one MCP server. It implements ServerClient.
type Connection struct {
	cfg    ServerConfig
	client *client.Client
	logger *zap.Logger
}

// Connect establishes a connection, performs the MCP initialize handshake,
// and attaches the supplied handlers for server-initiated traffic.
func Connect(ctx context.Context, cfg ServerConfig, handlers Handlers, logger *zap.Logger) (*Connection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("server", cfg.ID))

	var opts []client.ClientOption
	if handlers.Sampling != nil {
		opts = append(opts, client.WithSamplingHandler(&samplingAdapter{
			serverID: cfg.ID,
			handle:   handlers.Sampling,
		}))
	}
	if handlers.Elicitation != nil {
		opts = append(opts, client.WithElicitationHandler(&elicitationAdapter{
			serverID: cfg.ID,
			handle:   handlers.Elicitation,
		}))
	}

	t, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}

	mcpClient := client.NewClient(t, opts...)
	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start transport for %s: %w", cfg.ID, err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "tether",
				Version: "1.0.0",
			},
		},
	}

	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize server %s: %w", cfg.ID, err)
	}

	conn := &Connection{cfg: cfg, client: mcpClient, logger: logger}

	if handlers.Notification != nil {
		mcpClient.OnNotification(func(n mcptypes.JSONRPCNotification) {
			handlers.Notification(cfg.ID, n.Method, notificationParams(n))
		})
	}

	logger.Info("server connected",
		zap.Bool("remote", cfg.Remote()),
		zap.String("transport", cfg.Transport))

	return conn, nil
}

func newTransport(cfg ServerConfig) (transport.Interface, error) {
	if !cfg.Remote() {
		if cfg.Command == "" {
			return nil, fmt.Errorf("server %s: neither command nor url configured", cfg.ID)
		}
		return transport.NewStdio(cfg.Command, buildEnv(cfg.Env), cfg.Args...), nil
	}

	switch cfg.Transport {
	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		return transport.NewStreamableHTTP(cfg.URL, opts...)
	case "sse", "":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(cfg.Headers))
		}
		return transport.NewSSE(cfg.URL, opts...)
	default:
		return nil, fmt.Errorf("server %s: unknown transport %q", cfg.ID, cfg.Transport)
	}
}

// buildEnv starts from the current process environment so PATH and other
// system vars survive, then layers on the server's own vars.
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	return env
}

// ID implements ServerClient.
func (c *Connection) ID() string {
	return c.cfg.ID
}

// ListTools implements ServerClient.
func (c *Connection) ListTools(ctx context.Context) ([]mcptypes.Tool, error) {
	result, err := c.client.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools for %s: %w", c.cfg.ID, err)
	}
	return result.Tools, nil
}

// CallTool implements ServerClient.
func (c *Connection) CallTool(ctx context.Context, name string, args map[string]any) (*mcptypes.CallToolResult, error) {
	return c.client.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
}

// Close shuts the connection down, giving the transport a bounded window to
// exit cleanly.
func (c *Connection) Close(ctx context.Context) error {
	closeCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.client.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Warn("close error", zap.Error(err))
			return err
		}
	case <-closeCtx.Done():
		c.logger.Warn("close timed out")
		return fmt.Errorf("close timed out for %s", c.cfg.ID)
	}
	return nil
}
