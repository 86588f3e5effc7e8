package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/factlens/internal/model"
)

// VerifyRequest is the body of POST /v1/verify. Omitted options take the
// server's configured defaults.
type VerifyRequest struct {
	ClaimText     string     `json:"claim_text" binding:"required"`
	TenantID      string     `json:"tenant_id" binding:"required"`
	TopK          int        `json:"top_k" binding:"omitempty,min=1,max=100"`
	MinSimilarity *float64   `json:"min_similarity" binding:"omitempty,min=0,max=1"`
	VectorWeight  *float64   `json:"vector_weight" binding:"omitempty,min=0"`
	KeywordWeight *float64   `json:"keyword_weight" binding:"omitempty,min=0"`
	UseCache      *bool      `json:"use_cache"`
	StoreResult   *bool      `json:"store_result"`
	SourceURL     *string    `json:"source_url"`
	DateFrom      *time.Time `json:"date_from"`
	DateTo        *time.Time `json:"date_to"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Error    string `json:"error"`
	Stage    string `json:"stage,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
}

func (s *Server) handleVerify(c *gin.Context) {
	var body VerifyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	req := s.verifier.NewRequest(body.TenantID, body.ClaimText)
	if body.TopK > 0 {
		req.TopK = body.TopK
	}
	if body.MinSimilarity != nil {
		req.MinSimilarity = *body.MinSimilarity
	}
	if body.VectorWeight != nil {
		req.VectorWeight = *body.VectorWeight
	}
	if body.KeywordWeight != nil {
		req.KeywordWeight = *body.KeywordWeight
	}
	if body.UseCache != nil {
		req.UseCache = *body.UseCache
	}
	if body.StoreResult != nil {
		req.StoreResult = *body.StoreResult
	}
	req.SourceURL = body.SourceURL
	req.DateFrom = body.DateFrom
	req.DateTo = body.DateTo

	result, err := s.verifier.VerifyClaim(c.Request.Context(), req)
	if err != nil {
		status, resp := errorResponse(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("verify failed", "tenant_id", body.TenantID, "error", err)
		}
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, result)
}

// errorResponse maps pipeline errors to HTTP statuses
func errorResponse(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var pe *model.PipelineError
	if errors.As(err, &pe) {
		resp.Stage = string(pe.Stage)
		resp.Attempts = pe.Attempts
	}

	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, resp
	case errors.Is(err, model.ErrTimeout):
		return http.StatusGatewayTimeout, resp
	case errors.Is(err, context.Canceled):
		return 499, resp
	case pe != nil:
		return http.StatusBadGateway, resp
	}
	return http.StatusInternalServerError, resp
}

func (s *Server) handleClearCache(c *gin.Context) {
	if s.cache == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "result cache is disabled"})
		return
	}
	if err := s.cache.Clear(c.Request.Context()); err != nil {
		s.logger.Error("cache clear failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	s.logger.Info("result cache cleared")
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(s.checks))
	ready := true
	for name, p := range s.checks {
		if p.IsAvailable(ctx) {
			checks[name] = "ok"
		} else {
			checks[name] = "unavailable"
			ready = false
		}
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
