package main

import (
	"context"
	"testing"

	"tether/agent"
	"tether/protocol"
)

// A server may issue sampling/createMessage as soon as its initialize
// handshake completes. The handler has to answer with an error, never a
// panic, if that arrives before the bridge is wired.
func TestSamplingHandlerBeforeBridgeReady(t *testing.T) {
	a := &app{bus: agent.NewBus()}
	a.mediator = agent.NewMediator(a.bus, nil)

	handlers := a.mcpHandlers()
	result, err := handlers.Sampling(context.Background(), protocol.SamplingRequest{ServerID: "srv"})
	if err == nil {
		t.Fatal("expected an error while the bridge is unset")
	}
	if result != nil {
		t.Errorf("expected nil result, got %+v", result)
	}
}

func TestNotificationHandlerPublishes(t *testing.T) {
	a := &app{bus: agent.NewBus()}
	a.mediator = agent.NewMediator(a.bus, nil)

	events, cancel := a.bus.Subscribe()
	defer cancel()

	handlers := a.mcpHandlers()
	handlers.Notification("srv", "notifications/progress", map[string]any{"progress": 1})

	event := <-events
	if event.Type != agent.EventProgressNotification {
		t.Errorf("type: got %s", event.Type)
	}
	if event.ServerID != "srv" || event.Method != "notifications/progress" {
		t.Errorf("unexpected event: %+v", event)
	}
}
