package mcp

import (
	"context"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"
)

// Catalog is the aggregated tool listing across all connected servers.
//
// Flattening order follows server registration order. When two servers expose
// the same tool name the first-registered server's descriptor wins ownership;
// later duplicates stay visible in the flat list but always route to the
// first owner. The first-wins tie-break is a documented policy, not a
// protocol requirement.
type Catalog struct {
	tools  []mcptypes.Tool
	owners map[string]string // tool name -> server id
}

// BuildCatalog queries every server for its tools and merges the results.
// A server that errors during listing contributes zero tools and does not
// abort aggregation for the others.
func BuildCatalog(ctx context.Context, servers []ServerClient, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog := &Catalog{owners: make(map[string]string)}

	for _, server := range servers {
		tools, err := server.ListTools(ctx)
		if err != nil {
			logger.Warn("server skipped during aggregation",
				zap.String("server", server.ID()),
				zap.Error(err))
			continue
		}

		for _, tool := range tools {
			catalog.tools = append(catalog.tools, tool)
			if _, taken := catalog.owners[tool.Name]; !taken {
				catalog.owners[tool.Name] = server.ID()
			}
		}
	}

	return catalog
}

// Tools returns the flat tool list in registration order. Schema values pass
// through unmodified; this is the list serialized into the completion
// provider's tool-declaration format.
func (c *Catalog) Tools() []mcptypes.Tool {
	return c.tools
}

// Owner resolves which server owns a tool name.
func (c *Catalog) Owner(name string) (string, bool) {
	serverID, ok := c.owners[name]
	return serverID, ok
}

// Len returns the number of tools in the flat list, duplicates included.
func (c *Catalog) Len() int {
	return len(c.tools)
}

// catalogHolder guards the shared read-mostly catalog. The catalog is rebuilt
// wholesale on server-list change, never mutated in place.
type catalogHolder struct {
	mu      sync.RWMutex
	catalog *Catalog
}

func (h *catalogHolder) get() *Catalog {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.catalog == nil {
		return &Catalog{owners: map[string]string{}}
	}
	return h.catalog
}

func (h *catalogHolder) set(c *Catalog) {
	h.mu.Lock()
	h.catalog = c
	h.mu.Unlock()
}
