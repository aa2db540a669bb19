// Package config loads and persists tether's TOML configuration: a small
// system config pointing at the data directory, and a user config holding
// provider, MCP server, and agent settings.
package config

import (
	"fmt"
	"os"

	"tether/mcp"
	"tether/provider"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type OllamaConfig struct {
	Host         string `toml:"host"`
	DefaultModel string `toml:"default_model"`
}

// AgentConfig tunes the agentic loop and the sampling bridge. Zero values
// mean "use the built-in default".
type AgentConfig struct {
	MaxIterations     int `toml:"max_iterations,omitempty"`
	MaxParallelTools  int `toml:"max_parallel_tools,omitempty"`
	SamplingMaxRounds int `toml:"sampling_max_rounds,omitempty"`
}

type UserConfig struct {
	DefaultProvider     string           `toml:"default_provider"`
	DefaultModel        string           `toml:"default_model,omitempty"`
	DefaultSystemPrompt string           `toml:"default_system_prompt,omitempty"`
	Ollama              OllamaConfig     `toml:"ollama"`
	Agent               AgentConfig      `toml:"agent"`
	Providers           []ProviderConfig `toml:"providers"`
	Servers             []ServerEntry    `toml:"servers"`
}

// Config is the merged runtime configuration.
type Config struct {
	DataDirectory       string
	DefaultProvider     string
	DefaultModel        string
	DefaultSystemPrompt string
	Ollama              OllamaConfig
	Agent               AgentConfig
	Providers           []ProviderConfig
	Servers             []ServerEntry
}

// DataDir returns the expanded data directory path.
func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// Provider returns the declaration for id, or nil when it is not configured.
func (c *Config) Provider(id string) *ProviderConfig {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i]
		}
	}
	return nil
}

// ProviderConfigFor builds the provider package's config for id, resolving
// the API key from the environment when the TOML omits it.
func (c *Config) ProviderConfigFor(id string) (provider.Config, error) {
	if id == "" || id == "ollama" {
		return provider.Config{
			Type:    provider.ProviderTypeOllama,
			BaseURL: c.Ollama.Host,
			Model:   c.Ollama.DefaultModel,
		}, nil
	}

	decl := c.Provider(id)
	if decl == nil {
		return provider.Config{}, fmt.Errorf("provider %s is not configured", id)
	}
	if !decl.Enabled {
		return provider.Config{}, fmt.Errorf("provider %s is disabled", id)
	}

	return provider.Config{
		Type:    provider.MapProviderIDToType(id),
		BaseURL: decl.BaseURL,
		Model:   firstNonEmpty(decl.Model, c.DefaultModel),
		APIKey:  decl.ResolveAPIKey(),
	}, nil
}

// EnabledServers converts the enabled MCP server declarations into launch
// configs.
func (c *Config) EnabledServers() []mcp.ServerConfig {
	var configs []mcp.ServerConfig
	for _, entry := range c.Servers {
		if !entry.Enabled {
			continue
		}
		configs = append(configs, entry.ToServerConfig())
	}
	return configs
}

func (c *Config) applyEnvOverrides() {
	if host := os.Getenv("TETHER_OLLAMA_HOST"); host != "" {
		c.Ollama.Host = host
	}
	if modelName := os.Getenv("TETHER_MODEL"); modelName != "" {
		c.DefaultModel = modelName
		c.Ollama.DefaultModel = modelName
	}
	if providerID := os.Getenv("TETHER_PROVIDER"); providerID != "" {
		c.DefaultProvider = providerID
	}
	if dataDir := os.Getenv("TETHER_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
}

// Load reads the system config, then the user config inside the data
// directory, creating defaults for whichever is missing. Environment
// variables override the file values.
func Load() (*Config, error) {
	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}

	cfg := &Config{DataDirectory: systemCfg.DataDirectory}
	if dataDir := os.Getenv("TETHER_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	cfg.apply(userCfg)
	cfg.applyEnvOverrides()

	return cfg, nil
}

func (c *Config) apply(user *UserConfig) {
	c.DefaultProvider = user.DefaultProvider
	c.DefaultModel = user.DefaultModel
	c.DefaultSystemPrompt = user.DefaultSystemPrompt
	c.Ollama = user.Ollama
	c.Agent = user.Agent
	c.Providers = user.Providers
	c.Servers = user.Servers
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
