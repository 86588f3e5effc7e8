package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeClaimText(t *testing.T) {
	cases := map[string]string{
		"The Earth orbits the Sun":          "the earth orbits the sun",
		"  the earth   orbits\tthe sun\n ": "the earth orbits the sun",
		"ÉCOLE  Normale":                    "école normale",
		"":                                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeClaimText(in), "input %q", in)
	}
}

func TestClaimID_StableAcrossFormatting(t *testing.T) {
	a := NewClaim("tenant-a", "The Earth orbits the Sun")
	b := NewClaim("tenant-a", "the earth  orbits the sun ")
	c := NewClaim("tenant-b", "The Earth orbits the Sun")

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID, "tenants must not share claim identity")
	assert.Equal(t, "The Earth orbits the Sun", a.Text)
}

func TestFilters_Match(t *testing.T) {
	jan := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	src := "https://example.com/a"

	ev := EvidenceRef{ID: "e1", TenantID: "t1", SourceURL: src, CreatedAt: &jan}

	assert.True(t, Filters{TenantID: "t1"}.Match(ev))
	assert.False(t, Filters{TenantID: "t2"}.Match(ev))
	assert.True(t, Filters{TenantID: "t1", SourceURL: &src}.Match(ev))

	other := "https://example.com/b"
	assert.False(t, Filters{TenantID: "t1", SourceURL: &other}.Match(ev))

	assert.True(t, Filters{TenantID: "t1", DateFrom: &jan, DateTo: &mar}.Match(ev), "bounds are inclusive")
	assert.False(t, Filters{TenantID: "t1", DateFrom: &mar}.Match(ev))

	undated := EvidenceRef{ID: "e2", TenantID: "t1"}
	assert.False(t, Filters{TenantID: "t1", DateTo: &mar}.Match(undated))
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(NewValidationError("claim_text", "empty")))
	assert.False(t, IsTransient(fmt.Errorf("wrapped: %w", context.Canceled)))
	assert.False(t, IsTransient(ErrTimeout))
	assert.True(t, IsTransient(&EmbeddingError{Provider: "openai", Err: errors.New("503")}))
	assert.True(t, IsTransient(context.DeadlineExceeded), "per-call timeouts are retried")
}

func TestPipelineError_Unwrap(t *testing.T) {
	cause := &EmbeddingError{Provider: "ollama", Err: errors.New("connection refused")}
	err := error(&PipelineError{Stage: StageEmbed, Attempts: 3, Err: cause})

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StageEmbed, pe.Stage)

	var ee *EmbeddingError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "ollama", ee.Provider)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestRetrievalError_UnwrapBoth(t *testing.T) {
	vecErr := errors.New("weaviate down")
	err := &RetrievalError{VectorErr: vecErr, KeywordErr: context.DeadlineExceeded}
	assert.ErrorIs(t, err, vecErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestVerificationResult_CloneIsIndependent(t *testing.T) {
	orig := &VerificationResult{
		ID:            "r1",
		Judgments:     []JudgedEvidence{{InferenceJudgment: InferenceJudgment{EvidenceID: "e1"}}},
		StageAttempts: map[Stage]int{StageEmbed: 1},
	}
	cp := orig.Clone()
	cp.FromCache = true
	cp.Judgments[0].EvidenceID = "changed"
	cp.StageAttempts[StageEmbed] = 3

	assert.False(t, orig.FromCache)
	assert.Equal(t, "e1", orig.Judgments[0].EvidenceID)
	assert.Equal(t, 1, orig.StageAttempts[StageEmbed])
}

func TestVerificationResult_CloneCopiesEvidencePointers(t *testing.T) {
	sim, score := 0.8, 3.5
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	orig := &VerificationResult{Judgments: []JudgedEvidence{{
		Evidence: RankedEvidence{
			EvidenceRef:      EvidenceRef{ID: "e1", CreatedAt: &created},
			VectorSimilarity: &sim,
			KeywordScore:     &score,
		},
	}}}

	cp := orig.Clone()
	*cp.Judgments[0].Evidence.VectorSimilarity = 0.1
	*cp.Judgments[0].Evidence.KeywordScore = 0
	*cp.Judgments[0].Evidence.CreatedAt = created.AddDate(1, 0, 0)

	assert.Equal(t, 0.8, *orig.Judgments[0].Evidence.VectorSimilarity)
	assert.Equal(t, 3.5, *orig.Judgments[0].Evidence.KeywordScore)
	assert.Equal(t, created, *orig.Judgments[0].Evidence.CreatedAt)
	assert.Nil(t, (&VerificationResult{Judgments: []JudgedEvidence{{}}}).Clone().Judgments[0].Evidence.VectorSimilarity)
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, 3, cfg.Pipeline.RetryAttempts)
	assert.Equal(t, 0.6, cfg.Verdict.SupportThreshold)
	assert.Equal(t, float64(60), cfg.Search.RRFK)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"call timeout not shorter", func(c *Config) { c.Providers.CallTimeout = c.Pipeline.Timeout }},
		{"zero weights", func(c *Config) { c.Search.VectorWeight, c.Search.KeywordWeight = 0, 0 }},
		{"negative weight", func(c *Config) { c.Search.KeywordWeight = -1 }},
		{"no attempts", func(c *Config) { c.Pipeline.RetryAttempts = 0 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"sqlite vectors on postgres", func(c *Config) { c.Storage.Driver = "postgres" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
