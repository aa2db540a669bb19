package config

import (
	"fmt"

	"tether/mcp"
)

// ServerEntry declares one MCP server in the user config. Command-based
// entries spawn a stdio subprocess; URL-based entries connect over SSE or
// streamable HTTP.
type ServerEntry struct {
	ID        string            `toml:"id"`
	Enabled   bool              `toml:"enabled"`
	Command   string            `toml:"command,omitempty"`
	Args      []string          `toml:"args,omitempty"`
	Env       map[string]string `toml:"env,omitempty"`
	URL       string            `toml:"url,omitempty"`
	Transport string            `toml:"transport,omitempty"`
	Headers   map[string]string `toml:"headers,omitempty"`
}

// Validate catches declarations that can never connect.
func (e *ServerEntry) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("server entry is missing an id")
	}
	if e.Command == "" && e.URL == "" {
		return fmt.Errorf("server %s: either command or url is required", e.ID)
	}
	if e.Command != "" && e.URL != "" {
		return fmt.Errorf("server %s: command and url are mutually exclusive", e.ID)
	}
	return nil
}

// ToServerConfig converts the declaration into an MCP launch config.
func (e *ServerEntry) ToServerConfig() mcp.ServerConfig {
	return mcp.ServerConfig{
		ID:        e.ID,
		Command:   e.Command,
		Args:      e.Args,
		Env:       e.Env,
		URL:       e.URL,
		Transport: e.Transport,
		Headers:   e.Headers,
	}
}

// SetServerEnabled flips a server's enabled flag in the user config and
// persists it.
func SetServerEnabled(dataDir, serverID string, enabled bool) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	for i := range cfg.Servers {
		if cfg.Servers[i].ID == serverID {
			cfg.Servers[i].Enabled = enabled
			return SaveUserConfig(cfg, dataDir)
		}
	}

	return fmt.Errorf("server %s is not configured", serverID)
}
