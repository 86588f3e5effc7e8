// Package cache stores verification results keyed by claim fingerprint.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ppiankov/factlens/internal/model"
)

// KeyPrefix namespaces every key factlens writes to a shared backend.
const KeyPrefix = "factlens:v1:"

// Cache is a byte store with per-entry expiry. Implementations must be
// safe for concurrent use; concurrent Sets of one key are last-write-wins.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// Fingerprint returns the hex SHA-256 of the normalized claim text.
func Fingerprint(claimText string) string {
	hash := sha256.Sum256([]byte(model.NormalizeClaimText(claimText)))
	return hex.EncodeToString(hash[:])
}

// CacheKey builds the backend key for a tenant's claim fingerprint
func CacheKey(tenantID, fingerprint string) string {
	return KeyPrefix + tenantID + ":" + fingerprint
}
