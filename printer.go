package main

import (
	"fmt"
	"os"

	"tether/agent"
	"tether/model"
	"tether/protocol"
)

// eventPrinter renders the agent event stream for the terminal. It runs on
// its own goroutine over a bus subscription; stop by cancelling the
// subscription.
type eventPrinter struct {
	events  <-chan agent.Event
	cancel  func()
	done    chan struct{}
	verbose bool
}

func newEventPrinter(bus *agent.Bus, verbose bool) *eventPrinter {
	events, cancel := bus.Subscribe()
	p := &eventPrinter{
		events:  events,
		cancel:  cancel,
		done:    make(chan struct{}),
		verbose: verbose,
	}
	go p.run()
	return p
}

func (p *eventPrinter) run() {
	defer close(p.done)
	for event := range p.events {
		p.render(event)
	}
}

// Stop ends the subscription and waits for buffered events to drain.
func (p *eventPrinter) Stop() {
	p.cancel()
	<-p.done
}

func (p *eventPrinter) render(event agent.Event) {
	switch event.Type {
	case agent.EventMessageCreated:
		p.renderMessage(event.Message)
	case agent.EventToolExecutionStarted:
		fmt.Fprintf(os.Stderr, "⋯ running %s\n", event.ToolName)
	case agent.EventToolExecutionFinished:
		if event.IsError {
			fmt.Fprintf(os.Stderr, "✗ %s: %s\n", event.ToolName, event.Content)
		} else {
			fmt.Fprintf(os.Stderr, "✓ %s\n", event.ToolName)
		}
	case agent.EventSamplingRequestReceived:
		fmt.Fprintf(os.Stderr, "⟳ server %s requested a completion\n", event.ServerID)
	case agent.EventElicitationRequestReceived:
		p.renderElicitation(event.Elicitation)
	case agent.EventProgressNotification:
		if p.verbose {
			fmt.Fprintf(os.Stderr, "· %s: %s\n", event.ServerID, event.Method)
		}
	case agent.EventErrorOccurred:
		fmt.Fprintf(os.Stderr, "error: %v\n", event.Err)
	}
}

func (p *eventPrinter) renderMessage(msg *model.Message) {
	if msg == nil {
		return
	}
	switch msg.Role {
	case model.RoleAssistant:
		if p.verbose && msg.Thinking != "" {
			fmt.Fprintf(os.Stderr, "(thinking) %s\n", msg.Thinking)
		}
		if msg.Content != "" {
			fmt.Printf("%s\n", msg.Content)
		}
	case model.RoleTool:
		if p.verbose {
			fmt.Fprintf(os.Stderr, "  %s → %s\n", msg.ToolName, msg.Content)
		}
	}
}

func (p *eventPrinter) renderElicitation(req *protocol.ElicitationRequest) {
	if req == nil {
		return
	}
	switch req.Mode {
	case protocol.ElicitationURL:
		fmt.Fprintf(os.Stderr, "? server %s asks you to visit: %s\n", req.ServerID, req.URL)
		fmt.Fprintf(os.Stderr, "  confirm with /confirm %v or refuse with /decline %v\n", req.ID, req.ID)
	default:
		fmt.Fprintf(os.Stderr, "? server %s requests input: %s\n", req.ServerID, req.Message)
		fmt.Fprintf(os.Stderr, "  answer with /accept %v field=value ... or /decline %v\n", req.ID, req.ID)
	}
}
