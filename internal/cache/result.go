package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/factlens/internal/model"
)

// DefaultTTL is how long a verification result stays fresh
const DefaultTTL = time.Hour

// Clock supplies the current time. Tests inject a fake to drive expiry.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock
func SystemClock() Clock { return systemClock{} }

// ResultCache maps (tenant, claim text) to a previous verification result.
// Freshness is judged against the injected clock when an entry is read;
// the backend's own expiry only reclaims storage.
type ResultCache struct {
	store Cache
	ttl   time.Duration
	clock Clock
}

// NewResultCache creates a result cache over store. A zero ttl means DefaultTTL.
func NewResultCache(store Cache, ttl time.Duration, clock Clock) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &ResultCache{store: store, ttl: ttl, clock: clock}
}

// TTL returns the configured freshness window
func (c *ResultCache) TTL() time.Duration { return c.ttl }

// Get returns the cached result for the claim, or false when absent or
// expired. Expired entries are removed.
func (c *ResultCache) Get(ctx context.Context, tenantID, claimText string) (*model.VerificationResult, bool) {
	key := CacheKey(tenantID, Fingerprint(claimText))

	raw, ok := c.store.Get(ctx, key)
	if !ok {
		return nil, false
	}

	var entry model.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Result == nil {
		_ = c.store.Delete(ctx, key)
		return nil, false
	}

	if !c.clock.Now().Before(entry.CreatedAt.Add(c.ttl)) {
		_ = c.store.Delete(ctx, key)
		return nil, false
	}

	return entry.Result, true
}

// Put stores result for the claim, replacing any existing entry
func (c *ResultCache) Put(ctx context.Context, tenantID, claimText string, result *model.VerificationResult) error {
	if result == nil {
		return fmt.Errorf("put nil result")
	}
	fp := Fingerprint(claimText)

	stored := result.Clone()
	stored.FromCache = false

	raw, err := json.Marshal(model.CacheEntry{
		Fingerprint: fp,
		Result:      stored,
		CreatedAt:   c.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.store.Set(ctx, CacheKey(tenantID, fp), raw, c.ttl); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Evict removes the entry for the claim, if any
func (c *ResultCache) Evict(ctx context.Context, tenantID, claimText string) error {
	return c.store.Delete(ctx, CacheKey(tenantID, Fingerprint(claimText)))
}

// Clear removes every cached result
func (c *ResultCache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}
