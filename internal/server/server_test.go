package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/factlens/internal/model"
	"github.com/ppiankov/factlens/internal/pipeline"
	"github.com/ppiankov/factlens/internal/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier struct {
	last pipeline.Request
	res  *model.VerificationResult
	err  error
}

func (s *stubVerifier) NewRequest(tenantID, claim string) pipeline.Request {
	return pipeline.Request{
		ClaimText:     claim,
		TenantID:      tenantID,
		TopK:          10,
		VectorWeight:  1,
		KeywordWeight: 1,
		UseCache:      true,
		StoreResult:   true,
	}
}

func (s *stubVerifier) VerifyClaim(ctx context.Context, req pipeline.Request) (*model.VerificationResult, error) {
	s.last = req
	return s.res, s.err
}

type stubCache struct {
	cleared int
	err     error
}

func (c *stubCache) Clear(ctx context.Context) error {
	c.cleared++
	return c.err
}

type stubPinger bool

func (p stubPinger) IsAvailable(ctx context.Context) bool { return bool(p) }

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestVerify_OK(t *testing.T) {
	v := &stubVerifier{res: &model.VerificationResult{
		ClaimText:  "Water boils at 100 C",
		TenantID:   "acme",
		Verdict:    model.VerdictSupported,
		Confidence: 0.8,
	}}
	s := New(v)

	w := do(t, s, http.MethodPost, "/v1/verify",
		`{"claim_text":"Water boils at 100 C","tenant_id":"acme","top_k":5,"keyword_weight":0.5,"use_cache":false,"source_url":"https://example.com"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got model.VerificationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, model.VerdictSupported, got.Verdict)

	assert.Equal(t, "acme", v.last.TenantID)
	assert.Equal(t, 5, v.last.TopK)
	assert.Equal(t, 1.0, v.last.VectorWeight)
	assert.Equal(t, 0.5, v.last.KeywordWeight)
	assert.False(t, v.last.UseCache)
	assert.True(t, v.last.StoreResult)
	require.NotNil(t, v.last.SourceURL)
	assert.Equal(t, "https://example.com", *v.last.SourceURL)
}

func TestVerify_BindingErrors(t *testing.T) {
	s := New(&stubVerifier{})

	tests := []struct {
		name string
		body string
	}{
		{"missing claim", `{"tenant_id":"acme"}`},
		{"missing tenant", `{"claim_text":"x"}`},
		{"top k too large", `{"claim_text":"x","tenant_id":"acme","top_k":1000}`},
		{"similarity above one", `{"claim_text":"x","tenant_id":"acme","min_similarity":1.5}`},
		{"negative weight", `{"claim_text":"x","tenant_id":"acme","vector_weight":-1}`},
		{"malformed json", `{"claim_text":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, s, http.MethodPost, "/v1/verify", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestVerify_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		stage  string
	}{
		{"validation", model.NewValidationError("weights", "cannot both be zero"), http.StatusBadRequest, ""},
		{"timeout", &model.PipelineError{Stage: model.StageInfer, Err: fmt.Errorf("%w: slow", model.ErrTimeout)}, http.StatusGatewayTimeout, "infer"},
		{"stage failure", &model.PipelineError{Stage: model.StageEmbed, Attempts: 3, Err: errors.New("down")}, http.StatusBadGateway, "embed"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&stubVerifier{err: tt.err})
			w := do(t, s, http.MethodPost, "/v1/verify", `{"claim_text":"x","tenant_id":"acme"}`)
			assert.Equal(t, tt.status, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.stage, resp.Stage)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestClearCache(t *testing.T) {
	c := &stubCache{}
	s := New(&stubVerifier{}, WithCache(c))

	w := do(t, s, http.MethodDelete, "/v1/cache", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, c.cleared)

	c.err = errors.New("redis down")
	w = do(t, s, http.MethodDelete, "/v1/cache", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestClearCache_Disabled(t *testing.T) {
	s := New(&stubVerifier{})
	w := do(t, s, http.MethodDelete, "/v1/cache", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	s := New(&stubVerifier{},
		WithReadinessCheck("embedding", stubPinger(true)),
		WithReadinessCheck("nli", stubPinger(false)))

	w := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"nli":"unavailable"`)
	assert.Contains(t, w.Body.String(), `"embedding":"ok"`)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	m.Verification("ok")

	s := New(&stubVerifier{}, WithGatherer(reg))
	w := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "factlens_pipeline_verifications_total")
}
