package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

type Client struct {
	client  *api.Client
	model   string
	baseURL string
}

// StreamCallback receives incremental chat output. Thinking carries the
// model's reasoning trace when the model emits one separately from content.
type StreamCallback func(chunk string, thinking string, toolCalls []api.ToolCall) error

func NewClient(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.1:latest"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	client := api.NewClient(parsedURL, http.DefaultClient)

	return &Client{
		client:  client,
		model:   model,
		baseURL: baseURL,
	}, nil
}

func (c *Client) Chat(ctx context.Context, messages []api.Message, callback StreamCallback) error {
	return c.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools sends a streaming chat request with optional tool definitions
func (c *Client) ChatWithTools(ctx context.Context, messages []api.Message, tools []api.Tool, callback StreamCallback) error {
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
		Stream:   func(b bool) *bool { return &b }(true),
	}

	respFunc := func(resp api.ChatResponse) error {
		if callback != nil {
			return callback(resp.Message.Content, resp.Message.Thinking, resp.Message.ToolCalls)
		}
		return nil
	}

	return c.client.Chat(ctx, req, respFunc)
}

// CompleteResult is the outcome of a non-streaming chat exchange.
type CompleteResult struct {
	Content          string
	Thinking         string
	ToolCalls        []api.ToolCall
	DoneReason       string
	PromptTokens     int
	CompletionTokens int
}

// Complete sends a non-streaming chat request and returns the full response.
// An empty model uses the client's configured model; a non-empty one applies
// to this request only, so concurrent callers never see another caller's
// model.
func (c *Client) Complete(ctx context.Context, model string, messages []api.Message, tools []api.Tool) (*CompleteResult, error) {
	if model == "" {
		model = c.model
	}
	req := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Tools:    tools,
		Stream:   func(b bool) *bool { return &b }(false),
	}

	var result CompleteResult
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		result.Content += resp.Message.Content
		result.Thinking += resp.Message.Thinking
		result.ToolCalls = append(result.ToolCalls, resp.Message.ToolCalls...)
		if resp.DoneReason != "" {
			result.DoneReason = resp.DoneReason
		}
		if resp.Done {
			result.PromptTokens = resp.Metrics.PromptEvalCount
			result.CompletionTokens = resp.Metrics.EvalCount
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat failed: %w", err)
	}

	return &result, nil
}

type ModelInfo struct {
	Name         string // Display name
	Size         int64
	Provider     string // Provider ID: "ollama", "openai", "openrouter", "anthropic"
	InternalName string // Full API name
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, len(resp.Models))
	for i, model := range resp.Models {
		models[i] = ModelInfo{
			Name:         model.Name,
			Size:         model.Size,
			Provider:     "ollama",
			InternalName: model.Name,
		}
	}

	return models, nil
}

func (c *Client) SetModel(model string) {
	c.model = model
}

func (c *Client) GetModel() string {
	return c.model
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.List(ctx)
	return err
}
