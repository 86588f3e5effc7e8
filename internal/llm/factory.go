package llm

import (
	"fmt"
	"strings"
)

// NewEmbeddingProvider creates the embedding provider named in config
func NewEmbeddingProvider(config Config) (EmbeddingProvider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "service":
		return NewServiceProvider(config)

	case "anthropic", "claude":
		return nil, fmt.Errorf("anthropic does not offer embeddings (supported: openai, ollama, service)")

	case "":
		return nil, fmt.Errorf("no embedding provider configured")

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, ollama, service)", config.Provider)
	}
}

// NewNLIProvider creates the NLI provider named in config
func NewNLIProvider(config Config) (NLIProvider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "service":
		return NewServiceProvider(config)

	case "":
		return nil, fmt.Errorf("no NLI provider configured")

	default:
		return nil, fmt.Errorf("unknown NLI provider: %s (supported: openai, anthropic, ollama, service)", config.Provider)
	}
}
