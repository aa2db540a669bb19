package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	Version = "v0.1.0"
	License = "Apache-2.0"
)

var (
	flagProvider string
	flagModel    string
)

var rootCmd = &cobra.Command{
	Use:     "tether",
	Short:   "Chat with LLM providers wired to MCP tool servers",
	Version: Version,
	Long: `Tether connects chat-completion providers (Ollama, OpenRouter, OpenAI,
Anthropic) to MCP tool servers. The model can call tools exposed by the
configured servers, and servers can ask back for completions or user input.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "provider to use (ollama, openrouter, openai, anthropic)")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "model to use")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
