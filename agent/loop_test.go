package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"tether/mcp"
	"tether/model"
	"tether/provider/testutil"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

type fakeServer struct {
	id    string
	tools []mcptypes.Tool
	call  func(name string, args map[string]any) (*mcptypes.CallToolResult, error)
}

func (s *fakeServer) ID() string { return s.id }

func (s *fakeServer) ListTools(ctx context.Context) ([]mcptypes.Tool, error) {
	return s.tools, nil
}

func (s *fakeServer) CallTool(ctx context.Context, name string, args map[string]any) (*mcptypes.CallToolResult, error) {
	return s.call(name, args)
}

func textResult(text string, isError bool) *mcptypes.CallToolResult {
	return &mcptypes.CallToolResult{
		Content: []mcptypes.Content{mcptypes.TextContent{Type: "text", Text: text}},
		IsError: isError,
	}
}

func weatherTool() mcptypes.Tool {
	return mcptypes.Tool{
		Name:        "get_weather",
		Description: "Get the current weather for a city",
		InputSchema: mcptypes.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"city": map[string]any{"type": "string"},
			},
			Required: []string{"city"},
		},
	}
}

func newTestManager(t *testing.T, servers ...mcp.ServerClient) *mcp.Manager {
	t.Helper()
	m := mcp.NewManager(mcp.Handlers{}, nil)
	for _, s := range servers {
		if err := m.Register(context.Background(), s); err != nil {
			t.Fatalf("register server: %v", err)
		}
	}
	return m
}

func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func countEvents(events []Event, kind EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == kind {
			n++
		}
	}
	return n
}

func TestRunWeatherScenario(t *testing.T) {
	server := &fakeServer{
		id:    "weather",
		tools: []mcptypes.Tool{weatherTool()},
		call: func(name string, args map[string]any) (*mcptypes.CallToolResult, error) {
			city, _ := args["city"].(string)
			return textResult(fmt.Sprintf("Weather in %s: fine", city), false), nil
		},
	}
	manager := newTestManager(t, server)
	router := mcp.NewRouter(manager, nil)

	mock := testutil.NewMockProvider("test-model")
	calls := 0
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
		calls++
		if calls == 1 {
			if len(tools) != 1 || tools[0].Name != "get_weather" {
				t.Errorf("expected get_weather in catalog, got %v", tools)
			}
			return callback("", "", []model.ToolCall{
				{ID: "call_paris", Name: "get_weather", Arguments: map[string]any{"city": "Paris"}},
				{ID: "call_london", Name: "get_weather", Arguments: map[string]any{"city": "London"}},
			})
		}
		if len(messages) != 4 {
			t.Errorf("second invocation expected 4 messages of history, got %d", len(messages))
		}
		return callback("Paris and London are both fine.", "", nil)
	}

	bus := NewBus()
	events, _ := bus.Subscribe()
	loop := NewLoop(mock, manager, router, bus, nil)

	user := model.NewMessage("conv-1", model.RoleUser, "What's the weather in Paris and London?")
	result, err := loop.Run(context.Background(), RunInput{
		ConversationID: "conv-1",
		Model:          "test-model",
		Messages:       []model.Message{user},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if result.State != StateDone {
		t.Errorf("state: got %s, want %s", result.State, StateDone)
	}
	if result.Iterations != 2 {
		t.Errorf("iterations: got %d, want 2", result.Iterations)
	}

	history := result.Messages
	if len(history) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(history))
	}
	wantRoles := []model.Role{model.RoleUser, model.RoleAssistant, model.RoleTool, model.RoleTool, model.RoleAssistant}
	for i, want := range wantRoles {
		if history[i].Role != want {
			t.Errorf("message %d role: got %s, want %s", i, history[i].Role, want)
		}
	}

	// Tool results preserve the original call order.
	if history[2].ToolCallID != "call_paris" || history[3].ToolCallID != "call_london" {
		t.Errorf("tool result order: got %s, %s", history[2].ToolCallID, history[3].ToolCallID)
	}
	if history[2].Content != "Weather in Paris: fine" {
		t.Errorf("paris result: got %q", history[2].Content)
	}
	if !history[1].IsToolCallOnly() {
		t.Error("expected tool-call-only assistant message")
	}
	if history[4].Content != "Paris and London are both fine." {
		t.Errorf("final content: got %q", history[4].Content)
	}

	got := drainEvents(events)
	if n := countEvents(got, EventConversationComplete); n != 1 {
		t.Errorf("ConversationComplete count: got %d, want 1", n)
	}
	if n := countEvents(got, EventToolExecutionStarted); n != 2 {
		t.Errorf("ToolExecutionStarted count: got %d, want 2", n)
	}
	if n := countEvents(got, EventToolExecutionFinished); n != 2 {
		t.Errorf("ToolExecutionFinished count: got %d, want 2", n)
	}
	if n := countEvents(got, EventMessageCreated); n != 4 {
		t.Errorf("MessageCreated count: got %d, want 4", n)
	}
}

func TestRunFanOutIsolation(t *testing.T) {
	failing := &fakeServer{
		id:    "flaky",
		tools: []mcptypes.Tool{{Name: "tool_a", InputSchema: mcptypes.ToolInputSchema{Type: "object"}}},
		call: func(name string, args map[string]any) (*mcptypes.CallToolResult, error) {
			return nil, errors.New("connection reset")
		},
	}
	healthy := &fakeServer{
		id:    "steady",
		tools: []mcptypes.Tool{{Name: "tool_b", InputSchema: mcptypes.ToolInputSchema{Type: "object"}}},
		call: func(name string, args map[string]any) (*mcptypes.CallToolResult, error) {
			return textResult("b ok", false), nil
		},
	}
	manager := newTestManager(t, failing, healthy)
	router := mcp.NewRouter(manager, nil)

	mock := testutil.NewMockProvider("test-model")
	calls := 0
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
		calls++
		if calls == 1 {
			return callback("", "", []model.ToolCall{
				{ID: "a", Name: "tool_a", Arguments: map[string]any{}},
				{ID: "b", Name: "tool_b", Arguments: map[string]any{}},
			})
		}
		return callback("done", "", nil)
	}

	loop := NewLoop(mock, manager, router, NewBus(), nil)
	result, err := loop.Run(context.Background(), RunInput{
		ConversationID: "conv-1",
		Model:          "test-model",
		Messages:       []model.Message{model.NewMessage("conv-1", model.RoleUser, "go")},
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// Both results present: A's failure as error text, B untouched.
	var aContent, bContent string
	for _, msg := range result.Messages {
		if msg.Role != model.RoleTool {
			continue
		}
		switch msg.ToolCallID {
		case "a":
			aContent = msg.Content
		case "b":
			bContent = msg.Content
		}
	}
	if aContent != "Tool execution failed: connection reset" {
		t.Errorf("tool a content: got %q", aContent)
	}
	if bContent != "b ok" {
		t.Errorf("tool b content: got %q", bContent)
	}
}

func TestRunTerminationBound(t *testing.T) {
	server := &fakeServer{
		id:    "weather",
		tools: []mcptypes.Tool{weatherTool()},
		call: func(name string, args map[string]any) (*mcptypes.CallToolResult, error) {
			return textResult("fine", false), nil
		},
	}
	manager := newTestManager(t, server)
	router := mcp.NewRouter(manager, nil)

	mock := testutil.NewMockProvider("test-model")
	invocations := 0
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
		invocations++
		return callback("", "", []model.ToolCall{
			{ID: fmt.Sprintf("call_%d", invocations), Name: "get_weather", Arguments: map[string]any{"city": "Paris"}},
		})
	}

	bus := NewBus()
	events, _ := bus.Subscribe()
	loop := NewLoop(mock, manager, router, bus, nil)

	result, err := loop.Run(context.Background(), RunInput{
		ConversationID: "conv-1",
		Model:          "test-model",
		Messages:       []model.Message{model.NewMessage("conv-1", model.RoleUser, "loop forever")},
		MaxIterations:  3,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if invocations != 3 {
		t.Errorf("provider invocations: got %d, want 3", invocations)
	}
	if !result.Truncated {
		t.Error("expected truncation indicator")
	}
	if result.State != StateDone {
		t.Errorf("state: got %s, want %s", result.State, StateDone)
	}

	// The final tool turn is still surfaced, never silently dropped.
	got := drainEvents(events)
	if n := countEvents(got, EventConversationComplete); n != 1 {
		t.Errorf("ConversationComplete count: got %d, want 1", n)
	}
	for _, e := range got {
		if e.Type == EventConversationComplete && !e.Truncated {
			t.Error("expected truncated ConversationComplete")
		}
	}
	if n := countEvents(got, EventToolExecutionFinished); n != 3 {
		t.Errorf("ToolExecutionFinished count: got %d, want 3", n)
	}
}

func TestRunCancellation(t *testing.T) {
	manager := newTestManager(t)
	router := mcp.NewRouter(manager, nil)

	ctx, cancel := context.WithCancel(context.Background())

	mock := testutil.NewMockProvider("test-model")
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
		if err := callback("partial ", "", nil); err != nil {
			return err
		}
		cancel()
		if err := callback("text", "", nil); err != nil {
			return fmt.Errorf("stream error: %w", err)
		}
		return nil
	}

	bus := NewBus()
	events, _ := bus.Subscribe()
	loop := NewLoop(mock, manager, router, bus, nil)

	result, err := loop.Run(ctx, RunInput{
		ConversationID: "conv-1",
		Model:          "test-model",
		Messages:       []model.Message{model.NewMessage("conv-1", model.RoleUser, "hi")},
	})
	if !errors.Is(err, ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
	if result.State != StateAborted {
		t.Errorf("state: got %s, want %s", result.State, StateAborted)
	}

	// No dangling partial assistant message, no events after the abort.
	if len(result.Appended) != 0 {
		t.Errorf("expected no appended messages, got %d", len(result.Appended))
	}
	if got := drainEvents(events); len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
}

func TestRunCompletionProviderError(t *testing.T) {
	manager := newTestManager(t)
	router := mcp.NewRouter(manager, nil)

	mock := testutil.NewMockProvider("test-model")
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
		return errors.New("connection refused")
	}

	bus := NewBus()
	events, _ := bus.Subscribe()
	loop := NewLoop(mock, manager, router, bus, nil)

	_, err := loop.Run(context.Background(), RunInput{
		ConversationID: "conv-1",
		Model:          "test-model",
		Messages:       []model.Message{model.NewMessage("conv-1", model.RoleUser, "hi")},
	})

	var completionErr *CompletionError
	if !errors.As(err, &completionErr) {
		t.Fatalf("expected *CompletionError, got %v", err)
	}

	got := drainEvents(events)
	if n := countEvents(got, EventErrorOccurred); n != 1 {
		t.Errorf("ErrorOccurred count: got %d, want 1", n)
	}
}

type recordingStore struct {
	appended    []model.Message
	deletedFrom []string
}

func (s *recordingStore) AppendMessage(ctx context.Context, msg model.Message) error {
	s.appended = append(s.appended, msg)
	return nil
}

func (s *recordingStore) DeleteMessagesFrom(ctx context.Context, conversationID, messageID string) error {
	s.deletedFrom = append(s.deletedFrom, messageID)
	return nil
}

func TestRegenerate(t *testing.T) {
	manager := newTestManager(t)
	router := mcp.NewRouter(manager, nil)

	mock := testutil.NewMockProvider("test-model")
	mock.ChatWithToolsFunc = func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
		if len(messages) != 1 || messages[0].Role != model.RoleUser {
			t.Errorf("expected truncated history of 1 user message, got %d messages", len(messages))
		}
		return callback("regenerated answer", "", nil)
	}

	store := &recordingStore{}
	loop := NewLoop(mock, manager, router, NewBus(), nil, WithStore(store))

	user := model.NewMessage("conv-1", model.RoleUser, "question")
	oldAssistant := model.NewMessage("conv-1", model.RoleAssistant, "old answer")

	result, err := loop.Regenerate(context.Background(), RunInput{
		ConversationID: "conv-1",
		Model:          "test-model",
		Messages:       []model.Message{user, oldAssistant},
	})
	if err != nil {
		t.Fatalf("regenerate failed: %v", err)
	}

	if len(result.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(result.Messages))
	}
	fresh := result.Messages[1]
	if fresh.ID == oldAssistant.ID {
		t.Error("regenerated message must have a new id")
	}
	if fresh.ConversationID != "conv-1" {
		t.Errorf("conversation id: got %q", fresh.ConversationID)
	}
	if fresh.Content != "regenerated answer" {
		t.Errorf("content: got %q", fresh.Content)
	}

	if len(store.deletedFrom) != 1 || store.deletedFrom[0] != oldAssistant.ID {
		t.Errorf("expected delete-from %s, got %v", oldAssistant.ID, store.deletedFrom)
	}
	if len(store.appended) != 1 {
		t.Errorf("expected 1 persisted message, got %d", len(store.appended))
	}
}

func TestTruncateLastTurn(t *testing.T) {
	user1 := model.Message{ID: "u1", Role: model.RoleUser}
	asst1 := model.Message{ID: "a1", Role: model.RoleAssistant}
	user2 := model.Message{ID: "u2", Role: model.RoleUser}
	asst2 := model.Message{ID: "a2", Role: model.RoleAssistant, ToolCalls: []model.ToolCall{{ID: "c1"}}}
	tool1 := model.Message{ID: "t1", Role: model.RoleTool, ToolCallID: "c1"}
	asst3 := model.Message{ID: "a3", Role: model.RoleAssistant}

	tests := []struct {
		name          string
		input         []model.Message
		wantKept      int
		wantDiscarded int
	}{
		{
			name:          "simple assistant turn",
			input:         []model.Message{user1, asst1},
			wantKept:      1,
			wantDiscarded: 1,
		},
		{
			name:          "turn with tool sub-messages",
			input:         []model.Message{user1, asst1, user2, asst2, tool1, asst3},
			wantKept:      3,
			wantDiscarded: 3,
		},
		{
			name:          "nothing after last user message",
			input:         []model.Message{user1, asst1, user2},
			wantKept:      3,
			wantDiscarded: 0,
		},
		{
			name:          "no user message",
			input:         []model.Message{asst1},
			wantKept:      1,
			wantDiscarded: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, discarded := TruncateLastTurn(tt.input)
			if len(kept) != tt.wantKept {
				t.Errorf("kept: got %d, want %d", len(kept), tt.wantKept)
			}
			if len(discarded) != tt.wantDiscarded {
				t.Errorf("discarded: got %d, want %d", len(discarded), tt.wantDiscarded)
			}
		})
	}
}
