package model

import "time"

// Verdict is the final classification of a claim
type Verdict string

const (
	VerdictSupported    Verdict = "SUPPORTED"
	VerdictRefuted      Verdict = "REFUTED"
	VerdictInsufficient Verdict = "INSUFFICIENT"
)

// NLILabel is the label a natural-language-inference model assigns to a
// (premise, hypothesis) pair
type NLILabel string

const (
	LabelEntailment    NLILabel = "entailment"
	LabelContradiction NLILabel = "contradiction"
	LabelNeutral       NLILabel = "neutral"
)

// Valid reports whether the label is one of the three known labels.
func (l NLILabel) Valid() bool {
	switch l {
	case LabelEntailment, LabelContradiction, LabelNeutral:
		return true
	}
	return false
}

// ScoreTriple holds per-label probabilities, each in [0,1]
type ScoreTriple struct {
	Entailment    float64 `json:"entailment"`
	Contradiction float64 `json:"contradiction"`
	Neutral       float64 `json:"neutral"`
}

// InferenceJudgment is the NLI outcome for one evidence passage
type InferenceJudgment struct {
	EvidenceID string      `json:"evidence_id"`
	Label      NLILabel    `json:"label"`
	Confidence float64     `json:"confidence"` // Probability of the chosen label
	Scores     ScoreTriple `json:"scores"`
}

// JudgedEvidence pairs a judgment with the evidence it was made on
type JudgedEvidence struct {
	InferenceJudgment
	Evidence RankedEvidence `json:"evidence"`
}

// RetrievalMethod records which retrieval paths produced the evidence
type RetrievalMethod string

const (
	RetrievalHybrid      RetrievalMethod = "hybrid"
	RetrievalVectorOnly  RetrievalMethod = "vector_only"
	RetrievalKeywordOnly RetrievalMethod = "keyword_only"
	RetrievalNone        RetrievalMethod = "none"
)

// Stage names a step of the verification pipeline
type Stage string

const (
	StageCacheCheck Stage = "cache_check"
	StageEmbed      Stage = "embed"
	StageRetrieve   Stage = "retrieve"
	StageInfer      Stage = "infer"
	StageAggregate  Stage = "aggregate"
	StagePersist    Stage = "persist"
	StageCacheWrite Stage = "cache_write"
)

// VerificationResult is the complete outcome of verifying one claim
type VerificationResult struct {
	ID        string `json:"id"`
	ClaimID   string `json:"claim_id"`
	TenantID  string `json:"tenant_id"`
	ClaimText string `json:"claim_text"`

	Verdict      Verdict `json:"verdict"`
	Confidence   float64 `json:"confidence"`
	SupportScore float64 `json:"support_score"`
	RefuteScore  float64 `json:"refute_score"`
	NeutralScore float64 `json:"neutral_score"`
	Rationale    string  `json:"rationale"`

	Judgments []JudgedEvidence `json:"judgments"`

	RetrievalMethod  RetrievalMethod `json:"retrieval_method"`
	StageAttempts    map[Stage]int   `json:"stage_attempts,omitempty"` // Attempts spent per retried stage
	PartialInference bool            `json:"partial_inference,omitempty"`
	FromCache        bool            `json:"from_cache"` // Set on the returned copy only, never stored

	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Clone returns a deep copy so callers can annotate a result without
// touching a cached or shared instance.
func (r *VerificationResult) Clone() *VerificationResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Judgments != nil {
		out.Judgments = make([]JudgedEvidence, len(r.Judgments))
		for i, j := range r.Judgments {
			j.Evidence.VectorSimilarity = clonePtr(j.Evidence.VectorSimilarity)
			j.Evidence.KeywordScore = clonePtr(j.Evidence.KeywordScore)
			j.Evidence.CreatedAt = clonePtr(j.Evidence.CreatedAt)
			out.Judgments[i] = j
		}
	}
	if r.StageAttempts != nil {
		out.StageAttempts = make(map[Stage]int, len(r.StageAttempts))
		for k, v := range r.StageAttempts {
			out.StageAttempts[k] = v
		}
	}
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CacheEntry is what the result cache stores for one fingerprint
type CacheEntry struct {
	Fingerprint string              `json:"fingerprint"`
	Result      *VerificationResult `json:"result"`
	CreatedAt   time.Time           `json:"created_at"`
}
