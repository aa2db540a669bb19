package testutil

import (
	"context"

	"tether/model"
	"tether/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// MockProvider implements model.Provider for testing.
type MockProvider struct {
	// Configurable responses
	ChatFunc          func(ctx context.Context, messages []model.Message, callback model.StreamCallback) error
	ChatWithToolsFunc func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error
	CompleteFunc      func(ctx context.Context, req model.CompletionRequest) (*model.CompletionResult, error)
	ListModelsFunc    func(ctx context.Context) ([]ollama.ModelInfo, error)
	PingFunc          func(ctx context.Context) error

	// Recorded calls, for assertions on what the loop sent.
	ChatCalls     [][]model.Message
	CompleteCalls []model.CompletionRequest

	// State
	currentModel string
}

// NewMockProvider creates a mock provider with default implementations.
func NewMockProvider(modelName string) *MockProvider {
	mock := &MockProvider{
		currentModel: modelName,
	}
	mock.ChatFunc = mock.defaultChat
	mock.ChatWithToolsFunc = mock.defaultChatWithTools
	mock.CompleteFunc = mock.defaultComplete
	mock.ListModelsFunc = mock.defaultListModels
	mock.PingFunc = mock.defaultPing
	return mock
}

func (m *MockProvider) defaultChat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	if len(messages) > 0 {
		return callback("Mock response", "", nil)
	}
	return nil
}

func (m *MockProvider) defaultChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	return callback("Mock response with tools", "", nil)
}

func (m *MockProvider) defaultComplete(ctx context.Context, req model.CompletionRequest) (*model.CompletionResult, error) {
	return &model.CompletionResult{
		Content:      "Mock completion",
		FinishReason: model.FinishStop,
		Model:        m.currentModel,
		Usage:        &model.Usage{PromptTokens: 10, CompletionTokens: 5},
	}, nil
}

func (m *MockProvider) defaultListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return []ollama.ModelInfo{
		{Name: "mock-model-1", Size: 1000},
		{Name: "mock-model-2", Size: 2000},
	}, nil
}

func (m *MockProvider) defaultPing(ctx context.Context) error {
	return nil
}

func (m *MockProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	m.ChatCalls = append(m.ChatCalls, messages)
	return m.ChatFunc(ctx, messages, callback)
}

func (m *MockProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	m.ChatCalls = append(m.ChatCalls, messages)
	return m.ChatWithToolsFunc(ctx, messages, tools, callback)
}

func (m *MockProvider) Complete(ctx context.Context, req model.CompletionRequest) (*model.CompletionResult, error) {
	m.CompleteCalls = append(m.CompleteCalls, req)
	return m.CompleteFunc(ctx, req)
}

func (m *MockProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return m.ListModelsFunc(ctx)
}

func (m *MockProvider) GetModel() string {
	return m.currentModel
}

func (m *MockProvider) SetModel(model string) {
	m.currentModel = model
}

func (m *MockProvider) Ping(ctx context.Context) error {
	return m.PingFunc(ctx)
}
