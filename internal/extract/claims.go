package extract

import (
	"strings"

	"github.com/ppiankov/factlens/internal/model"
)

// Sentences shorter or longer than these are not treated as claims
const (
	minClaimChars = 30
	maxClaimChars = 500
)

// ClaimExtractor finds sentences that read like checkable factual claims
type ClaimExtractor struct {
	keywords []string
}

// NewClaimExtractor creates a new claim extractor
func NewClaimExtractor() *ClaimExtractor {
	return &ClaimExtractor{
		keywords: []string{
			"originated", "origin", "first", "introduced", "invented",
			"according to", "is defined as", "is legally", "under the law",
			"under this act", "shall", "must", "is required", "established",
			"founded", "created", "discovered", "developed", "was born",
			"is located", "is the largest", "is the capital",
		},
	}
}

// Extract returns the candidate claims of a page for a tenant. Each sentence
// yields at most one claim, and claims that normalize identically are
// returned once.
func (e *ClaimExtractor) Extract(htmlContent, tenantID string) ([]model.Claim, error) {
	doc, err := Parse(htmlContent)
	if err != nil {
		return nil, err
	}
	return e.FromText(VisibleText(doc), tenantID), nil
}

// FromText applies the keyword heuristic to plain text
func (e *ClaimExtractor) FromText(text, tenantID string) []model.Claim {
	var claims []model.Claim
	seen := make(map[string]bool)

	index := 0
	for _, para := range strings.Split(text, "\n") {
		for _, sentence := range sentences(strings.Join(strings.Fields(para), " ")) {
			i := index
			index++
			if len(sentence) < minClaimChars || len(sentence) > maxClaimChars {
				continue
			}

			lower := strings.ToLower(sentence)
			for _, keyword := range e.keywords {
				if !strings.Contains(lower, keyword) {
					continue
				}
				key := model.NormalizeClaimText(sentence)
				if !seen[key] {
					seen[key] = true
					claim := model.NewClaim(tenantID, sentence)
					claim.Heuristic = "keyword:" + keyword
					claim.Sentence = i
					claims = append(claims, claim)
				}
				break
			}
		}
	}
	return claims
}
