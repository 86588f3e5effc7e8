// Package llm provides the model providers used to verify claims: text
// embeddings for semantic retrieval and natural-language inference (NLI)
// for judging evidence.
package llm

import (
	"context"
	"time"

	"github.com/ppiankov/factlens/internal/model"
)

// EmbeddingProvider turns text into dense vectors
type EmbeddingProvider interface {
	// Name returns the provider name
	Name() string

	// Embed returns the vector for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// NLIProvider classifies (premise, hypothesis) pairs
type NLIProvider interface {
	// Name returns the provider name
	Name() string

	// Infer judges a single pair
	Infer(ctx context.Context, premise, hypothesis string) (NLIOutput, error)

	// InferBatch judges pairs and returns one item per pair, in input order.
	// A failed pair sets Err on its item; the call itself only fails when
	// no pair could be attempted.
	InferBatch(ctx context.Context, pairs []NLIPair) ([]NLIBatchItem, error)
}

// Pinger is implemented by providers that can check their backend
type Pinger interface {
	IsAvailable(ctx context.Context) bool
}

// NLIPair is one inference input. Premise is the evidence passage,
// Hypothesis is the claim.
type NLIPair struct {
	Premise    string `json:"premise"`
	Hypothesis string `json:"hypothesis"`
}

// NLIOutput is the provider's judgment of one pair
type NLIOutput struct {
	Label      model.NLILabel    `json:"label"`
	Confidence float64           `json:"confidence"`
	Scores     model.ScoreTriple `json:"scores"`
}

// NLIBatchItem is one slot of a batch response
type NLIBatchItem struct {
	Output NLIOutput
	Err    error
}

// Waiter throttles provider calls by key
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Config holds provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", "service"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, the model service)
	BaseURL string

	// Timeout bounds each provider call
	Timeout time.Duration

	// MaxTokens for NLI responses
	MaxTokens int

	// Limiter throttles calls; nil disables throttling
	Limiter Waiter

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultCallTimeout applies when Config.Timeout is unset
const DefaultCallTimeout = 15 * time.Second

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Timeout:   DefaultCallTimeout,
		MaxTokens: 200,
	}
}

// ConfigFromModel converts a model.ProviderConfig to llm.Config
func ConfigFromModel(pc model.ProviderConfig, callTimeout time.Duration) Config {
	return Config{
		Provider:   pc.Provider,
		Model:      pc.Model,
		APIKey:     pc.APIKey,
		BaseURL:    pc.BaseURL,
		Timeout:    callTimeout,
		MaxTokens:  200,
		HTTPProxy:  pc.HTTPProxy,
		HTTPSProxy: pc.HTTPSProxy,
	}
}

// callContext bounds a single provider call by the configured timeout
func (c Config) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// wait blocks on the limiter for this provider, if any
func (c Config) wait(ctx context.Context, name string) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx, name)
}

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 200
}
