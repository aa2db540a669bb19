package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tether/model"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

func newTestRouter(t *testing.T, servers ...ServerClient) *Router {
	t.Helper()
	m := NewManager(Handlers{}, nil)
	for _, s := range servers {
		if err := m.Register(context.Background(), s); err != nil {
			t.Fatalf("register failed: %v", err)
		}
	}
	return NewRouter(m, nil)
}

func TestRouterExecute(t *testing.T) {
	weather := &fakeServer{
		id:    "weather",
		tools: []mcptypes.Tool{simpleTool("get_weather")},
		callFn: func(name string, args map[string]any) (*mcptypes.CallToolResult, error) {
			city, _ := args["city"].(string)
			return &mcptypes.CallToolResult{
				Content: []mcptypes.Content{mcptypes.TextContent{Type: "text", Text: "sunny in " + city}},
			}, nil
		},
	}

	tests := []struct {
		name     string
		call     model.ToolCall
		wantText string
		wantErr  bool
	}{
		{
			name:     "parsed arguments dispatch",
			call:     model.ToolCall{ID: "c1", Name: "get_weather", Arguments: map[string]any{"city": "Paris"}},
			wantText: "sunny in Paris",
		},
		{
			name:     "raw arguments parsed on demand",
			call:     model.ToolCall{ID: "c2", Name: "get_weather", RawArguments: `{"city":"London"}`},
			wantText: "sunny in London",
		},
		{
			name:     "malformed raw arguments",
			call:     model.ToolCall{ID: "c3", Name: "get_weather", RawArguments: `{"city":`},
			wantText: ArgumentParseErrorPrefix,
			wantErr:  true,
		},
		{
			name:     "unknown tool",
			call:     model.ToolCall{ID: "c4", Name: "no_such_tool", Arguments: map[string]any{}},
			wantText: "Tool not found: no_such_tool",
			wantErr:  true,
		},
	}

	router := newTestRouter(t, weather)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome := router.Execute(context.Background(), tt.call)

			if outcome.CallID != tt.call.ID {
				t.Errorf("call id not preserved: %q", outcome.CallID)
			}
			if outcome.IsError != tt.wantErr {
				t.Errorf("IsError = %v, want %v", outcome.IsError, tt.wantErr)
			}
			if !strings.Contains(outcome.Content, tt.wantText) {
				t.Errorf("content %q does not contain %q", outcome.Content, tt.wantText)
			}
		})
	}
}

func TestRouterTransportErrorBecomesResult(t *testing.T) {
	flaky := &fakeServer{
		id:    "flaky",
		tools: []mcptypes.Tool{simpleTool("do_thing")},
		callFn: func(name string, args map[string]any) (*mcptypes.CallToolResult, error) {
			return nil, errors.New("connection reset")
		},
	}

	router := newTestRouter(t, flaky)
	outcome := router.Execute(context.Background(), model.ToolCall{ID: "c1", Name: "do_thing"})

	if !outcome.IsError {
		t.Error("expected error outcome")
	}
	if !strings.Contains(outcome.Content, "connection reset") {
		t.Errorf("raw failure not preserved: %q", outcome.Content)
	}
}

func TestRouterServerErrorFlagPassthrough(t *testing.T) {
	server := &fakeServer{
		id:    "s",
		tools: []mcptypes.Tool{simpleTool("fail_tool")},
		callFn: func(name string, args map[string]any) (*mcptypes.CallToolResult, error) {
			return &mcptypes.CallToolResult{
				Content: []mcptypes.Content{mcptypes.TextContent{Type: "text", Text: "bad input"}},
				IsError: true,
			}, nil
		},
	}

	router := newTestRouter(t, server)
	outcome := router.Execute(context.Background(), model.ToolCall{ID: "c1", Name: "fail_tool"})

	if !outcome.IsError {
		t.Error("expected IsError passthrough")
	}
	if outcome.Content != "bad input" {
		t.Errorf("unexpected content %q", outcome.Content)
	}
}

func TestRouterDuplicateNameRoutesToFirstOwner(t *testing.T) {
	var calledServer string
	mkServer := func(id string) *fakeServer {
		return &fakeServer{
			id:    id,
			tools: []mcptypes.Tool{simpleTool("search-web")},
			callFn: func(name string, args map[string]any) (*mcptypes.CallToolResult, error) {
				calledServer = id
				return &mcptypes.CallToolResult{
					Content: []mcptypes.Content{mcptypes.TextContent{Type: "text", Text: "ok"}},
				}, nil
			},
		}
	}

	router := newTestRouter(t, mkServer("first"), mkServer("second"))

	for i := 0; i < 5; i++ {
		router.Execute(context.Background(), model.ToolCall{ID: "c", Name: "search-web"})
		if calledServer != "first" {
			t.Fatalf("dispatch %d went to %q, want 'first'", i, calledServer)
		}
	}
}
