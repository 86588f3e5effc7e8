package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/util"
)

// OllamaProvider implements EmbeddingProvider and NLIProvider for local
// Ollama models.
type OllamaProvider struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Ollama API structures
type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	System  string        `json:"system,omitempty"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"` // Max tokens
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaError struct {
	Error string `json:"error"`
}

// NewOllamaProvider creates a new Ollama provider
func NewOllamaProvider(config Config) (*OllamaProvider, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("ollama model must be specified (e.g., nomic-embed-text, llama3.1:8b)")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	return &OllamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: util.NewHTTPClient(0, config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		config:     config,
	}, nil
}

// Name returns the provider name
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// IsAvailable checks if Ollama is running by listing local models
func (p *OllamaProvider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := p.config.callContext(ctx)
	defer cancel()

	url := fmt.Sprintf("%s/api/tags", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		slog.Warn("Ollama availability check failed", "error", err)
		return false
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Warn("Ollama availability check failed", "url", p.baseURL, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Ollama availability check failed", "url", p.baseURL, "status", resp.StatusCode)
		return false
	}

	return true
}

// Embed returns the embedding of one text
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts with one /api/embed call
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := p.config.wait(ctx, p.Name()); err != nil {
		return nil, &model.EmbeddingError{Provider: p.Name(), Err: err}
	}

	var resp ollamaEmbedResponse
	if err := p.post(ctx, "/api/embed", ollamaEmbedRequest{Model: p.config.Model, Input: texts}, &resp); err != nil {
		return nil, &model.EmbeddingError{Provider: p.Name(), Err: fmt.Errorf("ollama API error: %w", err)}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &model.EmbeddingError{
			Provider: p.Name(),
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)),
		}
	}
	return resp.Embeddings, nil
}

// Infer judges one pair with a JSON-format generation
func (p *OllamaProvider) Infer(ctx context.Context, premise, hypothesis string) (NLIOutput, error) {
	return p.infer(ctx, NLIPair{Premise: premise, Hypothesis: hypothesis})
}

// InferBatch judges pairs one generation at a time
func (p *OllamaProvider) InferBatch(ctx context.Context, pairs []NLIPair) ([]NLIBatchItem, error) {
	return inferEach(ctx, p.Name(), pairs, p.infer)
}

func (p *OllamaProvider) infer(ctx context.Context, pair NLIPair) (NLIOutput, error) {
	if err := p.config.wait(ctx, p.Name()); err != nil {
		return NLIOutput{}, &model.InferenceError{Provider: p.Name(), Err: err}
	}

	req := ollamaGenerateRequest{
		Model:  p.config.Model,
		Prompt: BuildNLIPrompt(pair),
		Stream: false,
		System: nliSystemPrompt,
		Format: "json",
		Options: ollamaOptions{
			NumPredict: p.config.maxTokens(),
		},
	}

	var resp ollamaGenerateResponse
	if err := p.post(ctx, "/api/generate", req, &resp); err != nil {
		return NLIOutput{}, &model.InferenceError{Provider: p.Name(), Err: fmt.Errorf("ollama API error: %w", err)}
	}

	out, err := ParseNLIOutput(resp.Response)
	if err != nil {
		return NLIOutput{}, &model.InferenceError{Provider: p.Name(), Err: err}
	}
	return out, nil
}

// post sends a JSON request to the Ollama API and decodes the reply into out
func (p *OllamaProvider) post(ctx context.Context, path string, in, out any) error {
	ctx, cancel := p.config.callContext(ctx)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr ollamaError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("API error (%d): %s", httpResp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
