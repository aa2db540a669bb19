// Package agent implements the agentic orchestration engine: the loop that
// drives multi-turn LLM and tool exchanges, the sampling bridge servicing
// server-initiated completions, the elicitation mediator servicing
// server-initiated input requests, and the ordered event stream tying them
// together.
package agent

import (
	"sync"

	"tether/model"
	"tether/protocol"
)

// EventType discriminates the Event union.
type EventType string

const (
	EventMessageCreated             EventType = "message_created"
	EventToolExecutionStarted       EventType = "tool_execution_started"
	EventToolExecutionFinished      EventType = "tool_execution_finished"
	EventSamplingRequestReceived    EventType = "sampling_request_received"
	EventElicitationRequestReceived EventType = "elicitation_request_received"
	EventProgressNotification       EventType = "progress_notification"
	EventErrorOccurred              EventType = "error_occurred"
	EventConversationComplete       EventType = "conversation_complete"
)

// Event is one occurrence on the chat event stream. Exactly the fields for
// its Type are populated; consumers switch on Type.
//
// The stream is append-only with no replay: each subscriber sees events in
// emission order, starting from its subscription point.
type Event struct {
	Type EventType

	// MessageCreated
	Message *model.Message

	// ToolExecutionStarted / ToolExecutionFinished
	CallID   string
	ToolName string
	Content  string
	IsError  bool

	// SamplingRequestReceived
	Sampling *protocol.SamplingRequest

	// ElicitationRequestReceived
	Elicitation *protocol.ElicitationRequest

	// ProgressNotification
	ServerID string
	Method   string
	Params   map[string]any

	// ErrorOccurred
	Err error

	// ConversationComplete
	ConversationID string
	Truncated      bool
}

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls this far behind loses its subscription rather than blocking the
// producer.
const subscriberBuffer = 256

// Bus broadcasts events from the orchestrator to any number of subscribers.
// Single producer, multiple consumers; subscribers can never mutate
// orchestrator state through it.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a consumer. The returned cancel function removes the
// subscription and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every live subscriber. Each subscriber sees
// events in emission order; delivery order across subscribers is
// unspecified. A subscriber whose buffer is full is dropped so a stalled
// consumer cannot stall the orchestrator.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- event:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
