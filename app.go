package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tether/agent"
	"tether/config"
	"tether/mcp"
	"tether/model"
	"tether/protocol"
	"tether/provider"
	"tether/storage"
)

// app wires the config, storage, provider, MCP servers, and the agent
// components together for one CLI invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *storage.ConversationStore
	bus      *agent.Bus
	mediator *agent.Mediator
	provider model.Provider
	manager  *mcp.Manager
	router   *mcp.Router
	bridge   *agent.Bridge
	loop     *agent.Loop
}

// newApp builds the full stack. MCP servers connect concurrently; one that
// fails to come up is logged and skipped.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}

	store, err := storage.NewConversationStore(cfg.DataDir())
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation store: %w", err)
	}

	providerID := flagProvider
	if providerID == "" {
		providerID = cfg.DefaultProvider
	}
	providerCfg, err := cfg.ProviderConfigFor(providerID)
	if err != nil {
		return nil, err
	}
	if flagModel != "" {
		providerCfg.Model = flagModel
	}
	prov, err := provider.NewProvider(providerCfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		bus:      agent.NewBus(),
		provider: prov,
	}
	a.mediator = agent.NewMediator(a.bus, logger, agent.WithElicitationStore(store))

	// The bridge must exist before any server connects: a server may send
	// sampling/createMessage right after the initialize handshake.
	a.manager = mcp.NewManager(a.mcpHandlers(), logger)
	a.router = mcp.NewRouter(a.manager, logger)
	a.bridge = agent.NewBridge(prov, a.bus, logger,
		agent.WithToolExecutor(a.router),
		agent.WithSamplingMaxRounds(cfg.Agent.SamplingMaxRounds))

	if err := a.manager.StartAll(ctx, cfg.EnabledServers()); err != nil {
		return nil, fmt.Errorf("failed to start MCP servers: %w", err)
	}

	a.loop = agent.NewLoop(prov, a.manager, a.router, a.bus, logger,
		agent.WithStore(store),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithMaxParallelTools(int64(cfg.Agent.MaxParallelTools)))

	return a, nil
}

// mcpHandlers routes server-initiated traffic into the agent components.
func (a *app) mcpHandlers() mcp.Handlers {
	return mcp.Handlers{
		Sampling: func(ctx context.Context, req protocol.SamplingRequest) (*protocol.SamplingResult, error) {
			if a.bridge == nil {
				return nil, fmt.Errorf("sampling is not available yet")
			}
			return a.bridge.ProcessSamplingRequest(ctx, req, a.provider.GetModel())
		},
		Elicitation: a.mediator.HandleRequest,
		Notification: func(serverID, method string, params map[string]any) {
			a.bus.Publish(agent.Event{
				Type:     agent.EventProgressNotification,
				ServerID: serverID,
				Method:   method,
				Params:   params,
			})
		},
	}
}

// Close shuts down the MCP connections and flushes state.
func (a *app) Close(ctx context.Context) {
	if err := a.manager.Shutdown(ctx); err != nil {
		a.logger.Warn("server shutdown reported errors", zap.Error(err))
	}
	a.store.Close()
	a.logger.Sync()
}
