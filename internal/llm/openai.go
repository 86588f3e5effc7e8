package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/util"
)

// OpenAIProvider implements EmbeddingProvider and NLIProvider over the
// OpenAI API or any compatible endpoint.
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.HTTPProxy != "" || config.HTTPSProxy != "" {
		clientConfig.HTTPClient = util.NewHTTPClient(0, config.HTTPProxy, config.HTTPSProxy, config.NoProxy)
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := p.config.callContext(ctx)
	defer cancel()

	if _, err := p.client.ListModels(ctx); err != nil {
		slog.Warn("OpenAI API check failed", "error", err)
		return false
	}
	return true
}

// Embed returns the embedding of one text
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts with a single Embeddings API call
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := p.config.wait(ctx, p.Name()); err != nil {
		return nil, &model.EmbeddingError{Provider: p.Name(), Err: err}
	}

	modelName := p.config.Model
	if modelName == "" {
		modelName = string(openai.SmallEmbedding3)
	}

	ctx, cancel := p.config.callContext(ctx)
	defer cancel()

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(modelName),
	})
	if err != nil {
		return nil, &model.EmbeddingError{Provider: p.Name(), Err: fmt.Errorf("OpenAI API error: %w", err)}
	}

	if len(resp.Data) != len(texts) {
		return nil, &model.EmbeddingError{
			Provider: p.Name(),
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &model.EmbeddingError{Provider: p.Name(), Err: fmt.Errorf("embedding index %d out of range", d.Index)}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// Infer judges one pair with a JSON-mode chat completion
func (p *OpenAIProvider) Infer(ctx context.Context, premise, hypothesis string) (NLIOutput, error) {
	out, err := p.infer(ctx, NLIPair{Premise: premise, Hypothesis: hypothesis})
	if err != nil {
		return NLIOutput{}, err
	}
	return out, nil
}

// InferBatch judges pairs one completion at a time
func (p *OpenAIProvider) InferBatch(ctx context.Context, pairs []NLIPair) ([]NLIBatchItem, error) {
	return inferEach(ctx, p.Name(), pairs, p.infer)
}

func (p *OpenAIProvider) infer(ctx context.Context, pair NLIPair) (NLIOutput, error) {
	if err := p.config.wait(ctx, p.Name()); err != nil {
		return NLIOutput{}, &model.InferenceError{Provider: p.Name(), Err: err}
	}

	modelName := p.config.Model
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	ctx, cancel := p.config.callContext(ctx)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: nliSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildNLIPrompt(pair)},
		},
		MaxTokens:   p.config.maxTokens(),
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return NLIOutput{}, &model.InferenceError{Provider: p.Name(), Err: fmt.Errorf("OpenAI API error: %w", err)}
	}

	if len(resp.Choices) == 0 {
		return NLIOutput{}, &model.InferenceError{Provider: p.Name(), Err: fmt.Errorf("no response from OpenAI")}
	}

	out, err := ParseNLIOutput(strings.TrimSpace(resp.Choices[0].Message.Content))
	if err != nil {
		return NLIOutput{}, &model.InferenceError{Provider: p.Name(), Err: err}
	}
	return out, nil
}
