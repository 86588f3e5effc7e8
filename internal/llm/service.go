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

// ServiceProvider talks to a self-hosted model service exposing
// POST /embed and POST /nli. It is the only provider with native batched
// inference: one /nli call judges a whole batch and reports per-pair errors.
type ServiceProvider struct {
	baseURL    string
	httpClient *http.Client
	config     Config
}

type serviceEmbedRequest struct {
	Model string   `json:"model,omitempty"`
	Texts []string `json:"texts"`
}

type serviceEmbedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

type serviceNLIRequest struct {
	Model string    `json:"model,omitempty"`
	Pairs []NLIPair `json:"pairs"`
}

type serviceNLIResult struct {
	Label         string  `json:"label"`
	Entailment    float64 `json:"entailment"`
	Contradiction float64 `json:"contradiction"`
	Neutral       float64 `json:"neutral"`
	Error         string  `json:"error,omitempty"`
}

type serviceNLIResponse struct {
	Results []serviceNLIResult `json:"results"`
}

// NewServiceProvider creates a model-service client
func NewServiceProvider(config Config) (*ServiceProvider, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("model service base_url is required")
	}

	return &ServiceProvider{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: util.NewHTTPClient(0, config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		config:     config,
	}, nil
}

// Name returns the provider name
func (p *ServiceProvider) Name() string {
	return "service"
}

// IsAvailable probes GET /health
func (p *ServiceProvider) IsAvailable(ctx context.Context) bool {
	ctx, cancel := p.config.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Warn("model service check failed", "url", p.baseURL, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

// Embed returns the embedding of one text
func (p *ServiceProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts with one /embed call
func (p *ServiceProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := p.config.wait(ctx, p.Name()); err != nil {
		return nil, &model.EmbeddingError{Provider: p.Name(), Err: err}
	}

	var resp serviceEmbedResponse
	if err := p.post(ctx, "/embed", serviceEmbedRequest{Model: p.config.Model, Texts: texts}, &resp); err != nil {
		return nil, &model.EmbeddingError{Provider: p.Name(), Err: err}
	}
	if len(resp.Vectors) != len(texts) {
		return nil, &model.EmbeddingError{
			Provider: p.Name(),
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Vectors)),
		}
	}
	return resp.Vectors, nil
}

// Infer judges a single pair
func (p *ServiceProvider) Infer(ctx context.Context, premise, hypothesis string) (NLIOutput, error) {
	items, err := p.InferBatch(ctx, []NLIPair{{Premise: premise, Hypothesis: hypothesis}})
	if err != nil {
		return NLIOutput{}, err
	}
	return items[0].Output, items[0].Err
}

// InferBatch judges all pairs with one /nli call
func (p *ServiceProvider) InferBatch(ctx context.Context, pairs []NLIPair) ([]NLIBatchItem, error) {
	if len(pairs) == 0 {
		return []NLIBatchItem{}, nil
	}
	if err := p.config.wait(ctx, p.Name()); err != nil {
		return nil, &model.InferenceError{Provider: p.Name(), Err: err}
	}

	var resp serviceNLIResponse
	if err := p.post(ctx, "/nli", serviceNLIRequest{Model: p.config.Model, Pairs: pairs}, &resp); err != nil {
		return nil, &model.InferenceError{Provider: p.Name(), Err: err}
	}
	if len(resp.Results) != len(pairs) {
		return nil, &model.InferenceError{
			Provider: p.Name(),
			Err:      fmt.Errorf("expected %d results, got %d", len(pairs), len(resp.Results)),
		}
	}

	items := make([]NLIBatchItem, len(pairs))
	for i, r := range resp.Results {
		if r.Error != "" {
			items[i].Err = &model.InferenceError{Provider: p.Name(), Err: fmt.Errorf("%s", r.Error)}
			continue
		}
		raw, _ := json.Marshal(r)
		out, err := ParseNLIOutput(string(raw))
		if err != nil {
			items[i].Err = &model.InferenceError{Provider: p.Name(), Err: err}
			continue
		}
		items[i].Output = out
	}
	return items, nil
}

func (p *ServiceProvider) post(ctx context.Context, path string, in, out any) error {
	ctx, cancel := p.config.callContext(ctx)
	defer cancel()

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call model service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model service returned %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse model service response: %w", err)
	}
	return nil
}
