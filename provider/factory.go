package provider

import (
	"fmt"

	"tether/model"
)

// NewProvider creates a provider based on configuration.
//
// This is the centralized factory function for creating any provider type.
// It dispatches to the appropriate constructor based on the Config.Type
// field.
//
// Returns an error if:
//   - The provider type is unknown
//   - The provider-specific constructor fails (e.g., missing API key)
//
// Example:
//
//	cfg := provider.Config{
//	    Type:    provider.ProviderTypeOllama,
//	    BaseURL: "http://localhost:11434",
//	    Model:   "llama3.1",
//	}
//	p, err := provider.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
func NewProvider(cfg Config) (model.Provider, error) {
	switch cfg.Type {
	case ProviderTypeOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model)
	case ProviderTypeOpenRouter:
		return NewOpenRouterProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}

// MapProviderIDToType converts a config provider ID to a factory ProviderType.
//
// For unknown IDs, returns the ID cast as ProviderType (factory will error).
func MapProviderIDToType(id string) ProviderType {
	switch id {
	case "ollama":
		return ProviderTypeOllama
	case "openrouter":
		return ProviderTypeOpenRouter
	case "openai":
		return ProviderTypeOpenAI
	case "anthropic":
		return ProviderTypeAnthropic
	default:
		return ProviderType(id)
	}
}
