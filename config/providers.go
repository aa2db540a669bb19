package config

import (
	"fmt"
	"os"
	"strings"
)

// ProviderConfig declares one cloud completion provider in the user config.
// API keys can live in the TOML, in the named environment variable, or in
// the conventional TETHER_<ID>_API_KEY variable.
type ProviderConfig struct {
	ID        string `toml:"id"`
	Name      string `toml:"name,omitempty"`
	Enabled   bool   `toml:"enabled"`
	BaseURL   string `toml:"base_url,omitempty"`
	Model     string `toml:"model,omitempty"`
	APIKey    string `toml:"api_key,omitempty"`
	APIKeyEnv string `toml:"api_key_env,omitempty"`
}

// ResolveAPIKey returns the configured key, falling back to the environment.
func (p *ProviderConfig) ResolveAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if p.APIKeyEnv != "" {
		if key := os.Getenv(p.APIKeyEnv); key != "" {
			return key
		}
	}
	return os.Getenv(fmt.Sprintf("TETHER_%s_API_KEY", strings.ToUpper(p.ID)))
}

// DisplayName returns the configured name or a default for known providers.
func (p *ProviderConfig) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return providerDisplayName(p.ID)
}

func providerDisplayName(providerID string) string {
	switch providerID {
	case "ollama":
		return "Ollama"
	case "openrouter":
		return "OpenRouter"
	case "anthropic":
		return "Anthropic"
	case "openai":
		return "OpenAI"
	default:
		return providerID
	}
}

// UpdateProviderField updates a single provider field in the user config and
// persists it. Fields: "enabled", "apikey", "model", "baseurl".
func UpdateProviderField(dataDir, providerID, fieldName, value string) error {
	cfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if providerID == "ollama" {
		switch fieldName {
		case "host":
			cfg.Ollama.Host = value
		case "model":
			cfg.Ollama.DefaultModel = value
		default:
			return fmt.Errorf("unknown field for ollama: %s", fieldName)
		}
		return SaveUserConfig(cfg, dataDir)
	}

	idx := -1
	for i := range cfg.Providers {
		if cfg.Providers[i].ID == providerID {
			idx = i
			break
		}
	}
	if idx == -1 {
		cfg.Providers = append(cfg.Providers, ProviderConfig{
			ID:   providerID,
			Name: providerDisplayName(providerID),
		})
		idx = len(cfg.Providers) - 1
	}

	switch fieldName {
	case "enabled":
		cfg.Providers[idx].Enabled = value == "true"
	case "apikey":
		cfg.Providers[idx].APIKey = value
	case "model":
		cfg.Providers[idx].Model = value
	case "baseurl":
		cfg.Providers[idx].BaseURL = value
	default:
		return fmt.Errorf("unknown field for %s: %s", providerID, fieldName)
	}

	return SaveUserConfig(cfg, dataDir)
}
