package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/tether",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		DefaultProvider: "ollama",
		Ollama: OllamaConfig{
			Host:         "http://localhost:11434",
			DefaultModel: "llama3.2:latest",
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# Tether System Configuration
# Location: ~/.config/tether/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations and user config are stored
data_directory = "~/.local/share/tether"
`
}

func GenerateUserConfigTemplate() string {
	return `# Tether User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Provider used when none is given on the command line
# One of: ollama, openrouter, openai, anthropic
default_provider = "ollama"

# Default system prompt for new conversations (optional)
# Example: "You are a helpful coding assistant."
default_system_prompt = ""

[ollama]
# Ollama server URL
host = "http://localhost:11434"

# Default model to use when starting a new conversation
default_model = "llama3.2:latest"

[agent]
# Cap on assistant turns per request (0 = default)
max_iterations = 0

# Cap on concurrently executing tool calls (0 = default)
max_parallel_tools = 0

# Cap on inner completion rounds when servicing sampling requests (0 = default)
sampling_max_rounds = 0

# Cloud providers. API keys can be set here, via api_key_env, or via
# TETHER_<ID>_API_KEY.
#
# [[providers]]
# id = "openrouter"
# enabled = true
# model = "meta-llama/llama-3.2-90b-instruct"
# api_key_env = "OPENROUTER_API_KEY"

# MCP servers. Command entries spawn a stdio subprocess; url entries connect
# over SSE or streamable HTTP.
#
# [[servers]]
# id = "filesystem"
# enabled = true
# command = "npx"
# args = ["-y", "@modelcontextprotocol/server-filesystem", "/tmp"]
#
# [[servers]]
# id = "remote-tools"
# enabled = false
# url = "https://example.com/mcp"
# transport = "streamable-http"
#
# [servers.headers]
# Authorization = "Bearer <token>"
`
}
