package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tether/mcp"
	"tether/model"

	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// State names the loop controller's position in the turn state machine.
type State string

const (
	StateIdle                State = "idle"
	StateAwaitingCompletion  State = "awaiting_completion"
	StateStreamingText       State = "streaming_text"
	StateAwaitingToolResults State = "awaiting_tool_results"
	StateDone                State = "done"
	StateAborted             State = "aborted"
)

// Defaults for loop construction.
const (
	DefaultMaxIterations    = 25
	DefaultMaxParallelTools = 4
)

// ToolExecutor dispatches one tool call and always returns an outcome.
// *mcp.Router satisfies it.
type ToolExecutor interface {
	Execute(ctx context.Context, call model.ToolCall) mcp.ToolOutcome
}

// CatalogSource supplies the current aggregated tool catalog. *mcp.Manager
// satisfies it.
type CatalogSource interface {
	Catalog() *mcp.Catalog
}

// Store persists conversation history. The loop assumes appends are durable
// and synchronous enough not to reorder emitted events.
type Store interface {
	AppendMessage(ctx context.Context, msg model.Message) error
	DeleteMessagesFrom(ctx context.Context, conversationID, messageID string) error
}

// Loop is the agentic loop controller: it repeatedly sends the conversation
// plus the tool catalog to the completion provider, interprets the streamed
// output, executes requested tools through the router, folds results back
// into history, and stops on a final answer or the iteration cap.
type Loop struct {
	provider model.Provider
	catalog  CatalogSource
	executor ToolExecutor
	bus      *Bus
	store    Store
	logger   *zap.Logger

	maxIterations    int
	maxParallelTools int64
}

// LoopOption customizes loop construction.
type LoopOption func(*Loop)

// WithMaxIterations caps provider invocations per Run.
func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithMaxParallelTools bounds tool fan-out concurrency within one batch.
func WithMaxParallelTools(n int64) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxParallelTools = n
		}
	}
}

// WithStore attaches a persistence layer. Without one, history lives only in
// the returned RunResult.
func WithStore(store Store) LoopOption {
	return func(l *Loop) {
		l.store = store
	}
}

// NewLoop creates a loop controller. catalog and executor are usually the
// same *mcp.Manager and its router; bus receives every chat event.
func NewLoop(p model.Provider, catalog CatalogSource, executor ToolExecutor, bus *Bus, logger *zap.Logger, opts ...LoopOption) *Loop {
	if bus == nil {
		bus = NewBus()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		provider:         p,
		catalog:          catalog,
		executor:         executor,
		bus:              bus,
		logger:           logger,
		maxIterations:    DefaultMaxIterations,
		maxParallelTools: DefaultMaxParallelTools,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Bus returns the event bus this loop publishes to.
func (l *Loop) Bus() *Bus {
	return l.bus
}

// RunInput is one loop invocation. The model id may change between
// invocations but never mid-loop.
type RunInput struct {
	ConversationID string
	Model          string
	Messages       []model.Message
	MaxIterations  int // 0 uses the loop default
}

// RunResult is the outcome of one loop invocation.
type RunResult struct {
	// Messages is the full history including everything appended this run.
	Messages []model.Message
	// Appended holds only the messages this run created, in append order.
	Appended []model.Message
	// Truncated is set when the iteration cap forced termination while the
	// model was still requesting tools.
	Truncated bool
	// Iterations counts provider invocations made.
	Iterations int
	// State is the terminal state, StateDone or StateAborted.
	State State
}

// Run drives the agentic loop to completion. Cancellation via ctx stops
// stream consumption at the next suspension point, commits no partial
// assistant message, and emits no further events for this invocation.
//
// Completion-provider failures abort the invocation and surface both as an
// ErrorOccurred event and as a *CompletionError return. Tool-level failures
// never do: the router degrades them to error-flagged tool results.
func (l *Loop) Run(ctx context.Context, input RunInput) (*RunResult, error) {
	maxIterations := input.MaxIterations
	if maxIterations <= 0 {
		maxIterations = l.maxIterations
	}

	result := &RunResult{Messages: input.Messages}
	tools := l.catalog.Catalog().Tools()

	for {
		result.Iterations++
		l.setState(StateAwaitingCompletion)

		assistant, err := l.streamAssistant(ctx, input, result.Messages, tools)
		if err != nil {
			if aborted(ctx, err) {
				l.setState(StateAborted)
				result.State = StateAborted
				return result, ErrAborted
			}
			completionErr := NewCompletionError(err)
			l.emit(ctx, Event{Type: EventErrorOccurred, Err: completionErr, ConversationID: input.ConversationID})
			l.setState(StateAborted)
			result.State = StateAborted
			return result, completionErr
		}

		if err := l.append(ctx, result, assistant); err != nil {
			return result, err
		}

		if len(assistant.ToolCalls) == 0 {
			l.setState(StateDone)
			result.State = StateDone
			l.emit(ctx, Event{Type: EventConversationComplete, ConversationID: input.ConversationID})
			return result, nil
		}

		l.setState(StateAwaitingToolResults)
		outcomes := l.executeBatch(ctx, assistant.ToolCalls)
		if ctx.Err() != nil {
			l.setState(StateAborted)
			result.State = StateAborted
			return result, ErrAborted
		}

		// Results are appended in the original call order regardless of
		// which execution finished first.
		for i, outcome := range outcomes {
			toolMsg := model.NewMessage(input.ConversationID, model.RoleTool, outcome.Content)
			toolMsg.ToolCallID = assistant.ToolCalls[i].ID
			toolMsg.ToolName = outcome.ToolName
			if err := l.append(ctx, result, toolMsg); err != nil {
				return result, err
			}
		}

		if result.Iterations >= maxIterations {
			l.logger.Warn("iteration cap reached, forcing termination",
				zap.String("conversation", input.ConversationID),
				zap.Int("iterations", result.Iterations))
			l.setState(StateDone)
			result.State = StateDone
			result.Truncated = true
			l.emit(ctx, Event{Type: EventConversationComplete, ConversationID: input.ConversationID, Truncated: true})
			return result, nil
		}
	}
}

// Regenerate discards the last assistant turn (and its tool sub-messages)
// from input.Messages and re-runs the loop from the truncated history. It is
// the same contract as a fresh send with a shorter history.
func (l *Loop) Regenerate(ctx context.Context, input RunInput) (*RunResult, error) {
	truncated, discarded := TruncateLastTurn(input.Messages)

	if l.store != nil && len(discarded) > 0 {
		if err := l.store.DeleteMessagesFrom(ctx, input.ConversationID, discarded[0].ID); err != nil {
			return nil, fmt.Errorf("failed to truncate history: %w", err)
		}
	}

	input.Messages = truncated
	return l.Run(ctx, input)
}

// TruncateLastTurn removes everything after the last user message: the
// assistant turn and any tool-result messages belonging to it. Returns the
// kept prefix and the discarded suffix.
func TruncateLastTurn(messages []model.Message) (kept, discarded []model.Message) {
	last := -1
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			last = i
			break
		}
	}
	if last == -1 {
		return messages, nil
	}
	return messages[:last+1], messages[last+1:]
}

// streamAssistant runs one streaming provider exchange and materializes the
// in-progress assistant message once the stream ends. Content may be empty
// for a tool-call-only turn.
func (l *Loop) streamAssistant(ctx context.Context, input RunInput, history []model.Message, tools []mcptypes.Tool) (model.Message, error) {
	var content, thinking string
	var calls []model.ToolCall
	streaming := false

	callback := func(chunk string, thought string, toolCalls []model.ToolCall) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if chunk != "" && !streaming {
			streaming = true
			l.setState(StateStreamingText)
		}
		content += chunk
		thinking += thought
		calls = append(calls, toolCalls...)
		return nil
	}

	if err := l.provider.ChatWithTools(ctx, history, tools, callback); err != nil {
		return model.Message{}, err
	}
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}

	// Providers without call ids (Ollama) get them assigned here so tool
	// results can link back to their calls.
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = uuid.New().String()
		}
	}

	assistant := model.NewMessage(input.ConversationID, model.RoleAssistant, content)
	assistant.Thinking = thinking
	assistant.ToolCalls = calls
	usage := model.EstimateUsage(input.Model, history, content)
	assistant.Usage = &usage
	return assistant, nil
}

// executeBatch fans the calls out to the executor, bounded by the parallel
// tool limit, and fans results back in indexed by call order. A failing call
// never aborts its siblings.
func (l *Loop) executeBatch(ctx context.Context, calls []model.ToolCall) []mcp.ToolOutcome {
	outcomes := make([]mcp.ToolOutcome, len(calls))
	sem := semaphore.NewWeighted(l.maxParallelTools)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				outcomes[i] = mcp.ToolOutcome{
					CallID:   call.ID,
					ToolName: call.Name,
					Content:  fmt.Sprintf("Tool execution failed: %v", err),
					IsError:  true,
				}
				return
			}
			defer sem.Release(1)

			l.emit(ctx, Event{Type: EventToolExecutionStarted, CallID: call.ID, ToolName: call.Name})
			outcome := l.executor.Execute(ctx, call)
			outcomes[i] = outcome
			l.emit(ctx, Event{
				Type:     EventToolExecutionFinished,
				CallID:   outcome.CallID,
				ToolName: outcome.ToolName,
				Content:  outcome.Content,
				IsError:  outcome.IsError,
			})
		}()
	}

	wg.Wait()
	return outcomes
}

// append commits one message to history, persistence, and the event stream.
func (l *Loop) append(ctx context.Context, result *RunResult, msg model.Message) error {
	if l.store != nil {
		if err := l.store.AppendMessage(ctx, msg); err != nil {
			return fmt.Errorf("failed to persist message: %w", err)
		}
	}
	result.Messages = append(result.Messages, msg)
	result.Appended = append(result.Appended, msg)
	l.emit(ctx, Event{Type: EventMessageCreated, Message: &msg, ConversationID: msg.ConversationID})
	return nil
}

// emit publishes unless the invocation has been cancelled: after the abort
// point no further events may reach subscribers.
func (l *Loop) emit(ctx context.Context, event Event) {
	if ctx.Err() != nil {
		return
	}
	l.bus.Publish(event)
}

func (l *Loop) setState(s State) {
	l.logger.Debug("loop state", zap.String("state", string(s)))
}

// aborted reports whether err is a cancellation rather than a provider
// failure.
func aborted(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
