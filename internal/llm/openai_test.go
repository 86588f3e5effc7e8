package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/factlens/internal/model"
)

func chatResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		ID:      "chatcmpl-123",
		Object:  "chat.completion",
		Created: 1677652288,
		Model:   "gpt-4o-mini",
		Choices: []openai.ChatCompletionChoice{
			{
				Index: 0,
				Message: openai.ChatCompletionMessage{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: "stop",
			},
		},
	}
}

func TestOpenAIProvider_Infer_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
			t.Error("Expected JSON response format")
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "The tower is 330 m tall.") {
			t.Errorf("Expected premise in user message, got %+v", req.Messages)
		}

		_ = json.NewEncoder(w).Encode(chatResponse(`{"label":"entailment","entailment":0.8,"contradiction":0.05,"neutral":0.15}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "gpt-4o-mini",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	out, err := provider.Infer(context.Background(), "The tower is 330 m tall.", "The tower is over 300 m tall.")
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if out.Label != model.LabelEntailment {
		t.Errorf("Expected entailment, got %s", out.Label)
	}
	if out.Confidence < 0.79 || out.Confidence > 0.81 {
		t.Errorf("Expected confidence ~0.8, got %f", out.Confidence)
	}
}

func TestOpenAIProvider_Infer_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "Internal Server Error", "type": "server_error"}}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Infer(context.Background(), "p", "h")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	var ie *model.InferenceError
	if !errors.As(err, &ie) {
		t.Errorf("Expected InferenceError, got %T", err)
	}
}

func TestOpenAIProvider_Infer_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{malformed json`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if _, err := provider.Infer(context.Background(), "p", "h"); err == nil {
		t.Fatal("Expected error for malformed JSON, got nil")
	}
}

func TestOpenAIProvider_InferBatch_PartialFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 2 {
			_ = json.NewEncoder(w).Encode(chatResponse(`not json at all`))
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse(`{"label":"contradiction","entailment":0.1,"contradiction":0.7,"neutral":0.2}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	pairs := []NLIPair{{"a", "x"}, {"b", "x"}, {"c", "x"}}
	items, err := provider.InferBatch(context.Background(), pairs)
	if err != nil {
		t.Fatalf("InferBatch failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	if items[0].Err != nil || items[2].Err != nil {
		t.Errorf("Expected items 0 and 2 to succeed: %v, %v", items[0].Err, items[2].Err)
	}
	if items[1].Err == nil {
		t.Error("Expected item 1 to fail")
	}
	if items[0].Output.Label != model.LabelContradiction {
		t.Errorf("Expected contradiction, got %s", items[0].Output.Label)
	}
}

func TestOpenAIProvider_EmbedBatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("Expected path /embeddings, got %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "text-embedding-3-small") {
			t.Errorf("Expected model in request, got %s", body)
		}
		// Returned out of order; the provider must reorder by index.
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[
			{"object":"embedding","index":1,"embedding":[0.0,1.0]},
			{"object":"embedding","index":0,"embedding":[1.0,0.0]}
		]}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "text-embedding-3-small",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	vecs, err := provider.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("Expected 2 vectors, got %d", len(vecs))
	}
	if vecs[0][0] != 1.0 || vecs[1][1] != 1.0 {
		t.Errorf("Vectors not in input order: %v", vecs)
	}
}

func TestOpenAIProvider_Embed_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "Rate limit exceeded", "type": "rate_limit_error"}}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Embed(context.Background(), "text")
	var ee *model.EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("Expected EmbeddingError, got %v", err)
	}
	if !model.IsTransient(err) {
		t.Error("Expected rate limit error to be transient")
	}
}

func TestOpenAIProvider_CallTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	start := time.Now()
	_, err = provider.Embed(context.Background(), "text")
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
	if d := time.Since(start); d > 150*time.Millisecond {
		t.Errorf("Call timeout not applied, took %v", d)
	}
}

func TestOpenAIProvider_MissingKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Error("Expected error for missing API key")
	}
}

func TestOpenAIProvider_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/models" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"data": [{"id": "gpt-4o-mini"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if !provider.IsAvailable(context.Background()) {
		t.Error("Expected available to be true")
	}

	server.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if provider.IsAvailable(context.Background()) {
		t.Error("Expected available to be false on error")
	}
}

type countingWaiter struct {
	keys []string
}

func (w *countingWaiter) Wait(ctx context.Context, key string) error {
	w.keys = append(w.keys, key)
	return nil
}

func TestOpenAIProvider_UsesLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse(`{"label":"neutral"}`))
	}))
	defer server.Close()

	waiter := &countingWaiter{}
	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Limiter: waiter})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if _, err := provider.InferBatch(context.Background(), []NLIPair{{"a", "b"}, {"c", "d"}}); err != nil {
		t.Fatalf("InferBatch failed: %v", err)
	}
	if len(waiter.keys) != 2 || waiter.keys[0] != "openai" {
		t.Errorf("Expected one limiter wait per call keyed by provider, got %v", waiter.keys)
	}
}
