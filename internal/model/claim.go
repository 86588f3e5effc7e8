package model

import (
	"strings"

	"github.com/google/uuid"
)

// claimNamespace scopes deterministic claim IDs.
var claimNamespace = uuid.MustParse("6f1c2d8e-4b7a-5c39-9e0d-3a5f7b1c2e94")

// Claim represents a natural-language assertion submitted for verification
type Claim struct {
	ID        string `json:"id"`                  // Deterministic ID derived from tenant + normalized text
	Text      string `json:"text"`                // The claim text as submitted
	TenantID  string `json:"tenant_id"`           // Partition key, passed through untouched
	Heuristic string `json:"heuristic,omitempty"` // Extraction rule that produced the claim (e.g., "keyword:founded")
	Sentence  int    `json:"sentence,omitempty"`  // Sentence index in the source page (0-based)
}

// NewClaim builds a claim with a stable ID. The same text submitted by the
// same tenant always yields the same ID, regardless of case or spacing.
func NewClaim(tenantID, text string) Claim {
	return Claim{
		ID:       ClaimID(tenantID, text),
		Text:     text,
		TenantID: tenantID,
	}
}

// ClaimID returns the UUIDv5 identity of a claim.
func ClaimID(tenantID, text string) string {
	return uuid.NewSHA1(claimNamespace, []byte(tenantID+"\x00"+NormalizeClaimText(text))).String()
}

// NormalizeClaimText trims the text, collapses whitespace runs into a single
// space and lowercases it. Two claims that normalize identically are the
// same claim for caching and identity purposes.
func NormalizeClaimText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
