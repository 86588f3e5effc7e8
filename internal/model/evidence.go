package model

import "time"

// EvidenceRef is a passage of stored evidence. The verification core only
// reads these; ingestion owns writing them.
type EvidenceRef struct {
	ID        string     `json:"id"`                   // Stable evidence identifier
	Content   string     `json:"content"`              // Passage text used as NLI premise
	SourceURL string     `json:"source_url,omitempty"` // Where the passage came from
	CreatedAt *time.Time `json:"created_at,omitempty"` // When the passage was published or ingested
	TenantID  string     `json:"tenant_id"`            // Partition key
}

// MatchedVia records which retrieval path surfaced a piece of evidence
type MatchedVia string

const (
	MatchedVector  MatchedVia = "vector"
	MatchedKeyword MatchedVia = "keyword"
	MatchedBoth    MatchedVia = "both"
)

// RankedEvidence is an EvidenceRef annotated with its retrieval provenance
type RankedEvidence struct {
	EvidenceRef

	VectorSimilarity *float64   `json:"vector_similarity,omitempty"` // Cosine similarity, nil when not matched by vector
	VectorRank       int        `json:"vector_rank,omitempty"`       // 1-indexed position in the vector list, 0 if absent
	KeywordScore     *float64   `json:"keyword_score,omitempty"`     // Lexical score (higher is better), nil when not matched by keyword
	KeywordRank      int        `json:"keyword_rank,omitempty"`      // 1-indexed position in the keyword list, 0 if absent
	FusedScore       float64    `json:"fused_score"`                 // Weighted reciprocal rank fusion score
	MatchedVia       MatchedVia `json:"matched_via"`
}

// Filters restrict retrieval to a subset of the evidence corpus
type Filters struct {
	TenantID  string     `json:"tenant_id"`
	SourceURL *string    `json:"source_url,omitempty"`
	DateFrom  *time.Time `json:"date_from,omitempty"` // Inclusive lower bound on CreatedAt
	DateTo    *time.Time `json:"date_to,omitempty"`   // Inclusive upper bound on CreatedAt
}

// Match reports whether an evidence passage satisfies the filters. Evidence
// without a timestamp never matches a date bound.
func (f Filters) Match(ev EvidenceRef) bool {
	if f.TenantID != "" && ev.TenantID != f.TenantID {
		return false
	}
	if f.SourceURL != nil && ev.SourceURL != *f.SourceURL {
		return false
	}
	if f.DateFrom != nil || f.DateTo != nil {
		if ev.CreatedAt == nil {
			return false
		}
		if f.DateFrom != nil && ev.CreatedAt.Before(*f.DateFrom) {
			return false
		}
		if f.DateTo != nil && ev.CreatedAt.After(*f.DateTo) {
			return false
		}
	}
	return true
}

// Passage is a chunk of source text prepared for ingestion
type Passage struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	Content   string     `json:"content"`
	SourceURL string     `json:"source_url,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	Embedding []float32  `json:"-"`
}

// Ref converts a passage into the read-only evidence view.
func (p Passage) Ref() EvidenceRef {
	return EvidenceRef{
		ID:        p.ID,
		Content:   p.Content,
		SourceURL: p.SourceURL,
		CreatedAt: p.CreatedAt,
		TenantID:  p.TenantID,
	}
}
