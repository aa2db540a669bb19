package mcp

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Manager owns the set of connected servers and the aggregated catalog. The
// catalog and server handles are shared read-mostly state: the catalog is
// rebuilt wholesale whenever the server list changes.
type Manager struct {
	handlers Handlers
	logger   *zap.Logger

	mu      sync.RWMutex
	order   []string
	servers map[string]ServerClient
	closers map[string]*Connection

	holder catalogHolder
}

// NewManager creates an empty manager. Handlers apply to every connection it
// opens.
func NewManager(handlers Handlers, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		handlers: handlers,
		logger:   logger,
		servers:  make(map[string]ServerClient),
		closers:  make(map[string]*Connection),
	}
}

// StartAll connects every configured server concurrently. A server that
// fails to connect is reported but does not prevent the others from coming
// up; registration order follows the config order regardless of which
// connection finishes first.
func (m *Manager) StartAll(ctx context.Context, configs []ServerConfig) error {
	conns := make([]*Connection, len(configs))

	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range configs {
		g.Go(func() error {
			conn, err := Connect(gctx, cfg, m.handlers, m.logger)
			if err != nil {
				m.logger.Warn("server failed to connect",
					zap.String("server", cfg.ID),
					zap.Error(err))
				return nil
			}
			conns[i] = conn
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m.mu.Lock()
	for i, conn := range conns {
		if conn == nil {
			continue
		}
		id := configs[i].ID
		if _, exists := m.servers[id]; exists {
			m.mu.Unlock()
			conn.Close(ctx)
			return fmt.Errorf("server %s already registered", id)
		}
		m.order = append(m.order, id)
		m.servers[id] = conn
		m.closers[id] = conn
	}
	m.mu.Unlock()

	m.Rebuild(ctx)
	return nil
}

// Register adds an already-connected server (used by tests with fakes). The
// catalog is rebuilt.
func (m *Manager) Register(ctx context.Context, server ServerClient) error {
	m.mu.Lock()
	if _, exists := m.servers[server.ID()]; exists {
		m.mu.Unlock()
		return fmt.Errorf("server %s already registered", server.ID())
	}
	m.order = append(m.order, server.ID())
	m.servers[server.ID()] = server
	m.mu.Unlock()

	m.Rebuild(ctx)
	return nil
}

// Remove disconnects one server and rebuilds the catalog.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	_, exists := m.servers[id]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("server %s not registered", id)
	}
	delete(m.servers, id)
	conn := m.closers[id]
	delete(m.closers, id)
	for i, sid := range m.order {
		if sid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(ctx)
	}

	m.Rebuild(ctx)
	return err
}

// Rebuild reconstructs the catalog from the current server list.
func (m *Manager) Rebuild(ctx context.Context) {
	m.holder.set(BuildCatalog(ctx, m.serversInOrder(), m.logger))
}

// Catalog implements ServerResolver.
func (m *Manager) Catalog() *Catalog {
	return m.holder.get()
}

// Server implements ServerResolver.
func (m *Manager) Server(id string) (ServerClient, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	server, ok := m.servers[id]
	return server, ok
}

// ServerIDs returns the registered server ids in registration order.
func (m *Manager) ServerIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, len(m.order))
	copy(ids, m.order)
	return ids
}

// Shutdown closes every connection in parallel and aggregates the errors.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.closers))
	for _, conn := range m.closers {
		conns = append(conns, conn)
	}
	m.order = nil
	m.servers = make(map[string]ServerClient)
	m.closers = make(map[string]*Connection)
	m.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(conns))
	for i, conn := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = conn.Close(ctx)
		}()
	}
	wg.Wait()

	m.holder.set(&Catalog{owners: map[string]string{}})
	return multierr.Combine(errs...)
}

func (m *Manager) serversInOrder() []ServerClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	servers := make([]ServerClient, 0, len(m.order))
	for _, id := range m.order {
		servers = append(servers, m.servers[id])
	}
	return servers
}
