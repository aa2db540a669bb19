package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tether/model"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// ArgumentParseErrorPrefix marks a tool result produced from unparseable
// call arguments, so downstream consumers can classify it without
// re-parsing.
const ArgumentParseErrorPrefix = "Failed to parse tool arguments: "

// ToolOutcome is the terminal result of one routed tool call. Failures are
// carried as error-flagged text, never as Go errors, so a failed call can be
// reported to the LLM as a normal tool-result message.
type ToolOutcome struct {
	CallID   string
	ToolName string
	Content  string
	IsError  bool
}

// ServerResolver supplies the router with the current catalog and live
// server handles. Manager implements it.
type ServerResolver interface {
	Catalog() *Catalog
	Server(id string) (ServerClient, bool)
}

// Router resolves tool names to their owning server and dispatches calls.
type Router struct {
	resolver ServerResolver
	logger   *zap.Logger
}

// NewRouter creates a router over resolver.
func NewRouter(resolver ServerResolver, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{resolver: resolver, logger: logger}
}

// Execute dispatches one tool call and always returns an outcome. An unknown
// tool, malformed arguments, a transport failure, or a server-reported error
// all degrade to error-flagged text; none of them abort sibling calls.
func (r *Router) Execute(ctx context.Context, call model.ToolCall) ToolOutcome {
	outcome := ToolOutcome{CallID: call.ID, ToolName: call.Name}

	args := call.Arguments
	if args == nil && call.RawArguments != "" {
		if err := json.Unmarshal([]byte(call.RawArguments), &args); err != nil {
			outcome.Content = fmt.Sprintf("%s%v", ArgumentParseErrorPrefix, err)
			outcome.IsError = true
			return outcome
		}
	}

	serverID, ok := r.resolver.Catalog().Owner(call.Name)
	if !ok {
		outcome.Content = fmt.Sprintf("Tool not found: %s", call.Name)
		outcome.IsError = true
		return outcome
	}

	server, ok := r.resolver.Server(serverID)
	if !ok {
		outcome.Content = fmt.Sprintf("Tool server not available: %s", serverID)
		outcome.IsError = true
		return outcome
	}

	result, err := server.CallTool(ctx, call.Name, args)
	if err != nil {
		r.logger.Warn("tool call failed",
			zap.String("tool", call.Name),
			zap.String("server", serverID),
			zap.Error(err))
		outcome.Content = fmt.Sprintf("Tool execution failed: %v", err)
		outcome.IsError = true
		return outcome
	}

	outcome.Content = FlattenContent(result.Content)
	outcome.IsError = result.IsError
	return outcome
}

// FlattenContent renders a tool result's content blocks as text. Non-text
// blocks fall back to their JSON encoding so nothing is silently dropped.
func FlattenContent(blocks []mcptypes.Content) string {
	var parts []string
	for _, block := range blocks {
		switch b := block.(type) {
		case mcptypes.TextContent:
			parts = append(parts, b.Text)
		default:
			if encoded, err := json.Marshal(block); err == nil {
				parts = append(parts, string(encoded))
			}
		}
	}
	return strings.Join(parts, "\n")
}
