package mcp

import (
	"context"

	"tether/protocol"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// ServerConfig describes how to reach one MCP server. Command-based configs
// spawn a stdio subprocess; URL-based configs connect over SSE or streamable
// HTTP.
type ServerConfig struct {
	ID        string
	Command   string
	Args      []string
	Env       map[string]string
	URL       string
	Transport string // "sse" (default for URL configs) or "streamable-http"
	Headers   map[string]string
}

// Remote reports whether this config addresses a remote server.
func (c ServerConfig) Remote() bool {
	return c.URL != ""
}

// ServerClient is the capability surface of one connected MCP server. The
// orchestrator never inspects connection or auth state directly; transient
// call failures are the only signal of trouble, and reconnection is the
// connection layer's concern.
type ServerClient interface {
	ID() string
	ListTools(ctx context.Context) ([]mcptypes.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcptypes.CallToolResult, error)
}

// SamplingFunc services a server-initiated completion request.
type SamplingFunc func(ctx context.Context, req protocol.SamplingRequest) (*protocol.SamplingResult, error)

// ElicitationFunc services a server-initiated input request and returns the
// user's resolution.
type ElicitationFunc func(ctx context.Context, req protocol.ElicitationRequest) (protocol.ElicitationAction, map[string]any, error)

// NotificationFunc receives server push notifications (progress, logging,
// list-changed).
type NotificationFunc func(serverID, method string, params map[string]any)

// Handlers bundles the callbacks a connection attaches for server-initiated
// traffic. Nil members disable the corresponding capability.
type Handlers struct {
	Sampling     SamplingFunc
	Elicitation  ElicitationFunc
	Notification NotificationFunc
}
