// Package search ranks evidence for a claim by fusing semantic and lexical
// retrieval with weighted Reciprocal Rank Fusion.
package search

import (
	"context"

	"github.com/ppiankov/factlens/internal/model"
)

// VectorHit is one nearest-neighbour match
type VectorHit struct {
	ID         string
	Similarity float64 // Cosine similarity, higher is closer
}

// KeywordHit is one lexical match
type KeywordHit struct {
	ID    string
	Score float64 // Lexical relevance, higher is better
}

// VectorIndex finds evidence by embedding similarity. Results are ordered
// best first.
type VectorIndex interface {
	SearchVector(ctx context.Context, vector []float32, topK int, filters model.Filters) ([]VectorHit, error)
}

// KeywordIndex finds evidence by lexical match. Results are ordered best first.
type KeywordIndex interface {
	SearchKeyword(ctx context.Context, query string, topK int, filters model.Filters) ([]KeywordHit, error)
}

// EvidenceLookup resolves evidence IDs to their stored passages. IDs that
// do not exist for the tenant are absent from the returned map.
type EvidenceLookup interface {
	LookupEvidence(ctx context.Context, tenantID string, ids []string) (map[string]model.EvidenceRef, error)
}
