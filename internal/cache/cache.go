// Package cache implements the dual-tier selector cache: an in-process or
// Redis-backed hot tier fronting a durable warm tier, with drift detection
// and the stable-only write invariant, over a tiered-storage split
// (internal/store's embedded sqlite warm store plus an in-memory hot
// layer) repurposed from knowledge-atom caching
// to selector caching.
package cache

import (
	"context"
	"strings"
	"time"

	"testrunner/internal/model"
	"testrunner/internal/telemetry"
)

// driftThresholdDefault mirrors config.Config.DriftThreshold's default
// (35%) for callers that construct a Cache without reading config.
const driftThresholdDefault = 0.35

// maxFailStreak is the "two consecutive misses" staleness rule:
// the second consecutive validation failure invalidates the entry outright.
const maxFailStreak = 2

// HotTier is the fast, possibly-networked cache tier (TTL-bounded).
type HotTier interface {
	Get(ctx context.Context, key string) (model.CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry model.CacheEntry, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// WarmTier is the durable, source-of-truth cache tier.
type WarmTier interface {
	Get(ctx context.Context, key string) (model.CacheEntry, bool, error)
	Set(ctx context.Context, key string, entry model.CacheEntry) error
	Delete(ctx context.Context, key string) error
}

// Cache composes the two tiers behind the lookup/save/invalidate API the
// discovery ladder and heal engine call.
type Cache struct {
	Hot            HotTier
	Warm           WarmTier
	HotTTL         time.Duration
	DriftThreshold float64
	Telemetry      *telemetry.Shim
}

// New builds a Cache, defaulting the drift threshold (35%) when it is not
// positive; hotTTL is used as given.
func New(hot HotTier, warm WarmTier, hotTTL time.Duration, driftThreshold float64, tel *telemetry.Shim) *Cache {
	if driftThreshold <= 0 {
		driftThreshold = driftThresholdDefault
	}
	return &Cache{Hot: hot, Warm: warm, HotTTL: hotTTL, DriftThreshold: driftThreshold, Telemetry: tel}
}

// Key formats the cache key: normalized URL, case-folded
// whitespace-collapsed element name, action class, and session scope.
func Key(k model.CacheKey) string {
	return strings.Join([]string{
		NormalizeURL(k.URLPattern),
		NormalizeElementName(k.ElementName),
		k.ActionClass,
		k.SessionScope,
	}, "|")
}

// NormalizeURL strips query and fragment, keeping origin + path.
func NormalizeURL(raw string) string {
	u := raw
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.TrimSuffix(u, "/")
}

// NormalizeElementName case-folds and collapses whitespace.
func NormalizeElementName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// Lookup probes hot then warm, applying staleness rules, and refills hot
// on a warm hit. Cache reads never fail the caller's request: a store
// error is logged and treated as a miss.
func (c *Cache) Lookup(ctx context.Context, key model.CacheKey, currentSkeleton string) (model.CacheEntry, bool) {
	k := Key(key)

	if entry, ok, err := c.safeHotGet(ctx, k); err != nil {
		c.Telemetry.Warn("cache hot tier read", err)
	} else if ok {
		if fresh, driftPct := c.checkFreshness(k, entry, currentSkeleton, true); fresh {
			c.Telemetry.CacheEvent("HIT", "hot", key.ElementName, entry.Selector)
			return entry, true
		} else {
			c.invalidate(ctx, k)
			c.Telemetry.CacheDrift(k, driftPct*100, c.DriftThreshold*100, "invalidate")
		}
	}

	entry, ok, err := c.safeWarmGet(ctx, k)
	if err != nil {
		c.Telemetry.Warn("cache warm tier read", err)
		return model.CacheEntry{}, false
	}
	if !ok {
		c.Telemetry.CacheEvent("MISS", "warm", key.ElementName, "")
		return model.CacheEntry{}, false
	}

	fresh, driftPct := c.checkFreshness(k, entry, currentSkeleton, false)
	if !fresh {
		c.invalidate(ctx, k)
		c.Telemetry.CacheDrift(k, driftPct*100, c.DriftThreshold*100, "invalidate")
		return model.CacheEntry{}, false
	}

	c.Telemetry.CacheDrift(k, driftPct*100, c.DriftThreshold*100, "reuse")
	c.Telemetry.CacheEvent("HIT", "warm", key.ElementName, entry.Selector)
	if err := c.Hot.Set(ctx, k, entry, c.HotTTL); err != nil {
		c.Telemetry.Warn("cache hot tier refill", err)
	}
	return entry, true
}

// checkFreshness applies TTL (hot tier only; warm has no TTL, just
// retention), drift, and two-consecutive-failure rules.
func (c *Cache) checkFreshness(_ string, entry model.CacheEntry, currentSkeleton string, isHot bool) (bool, float64) {
	if isHot && c.HotTTL > 0 && time.Since(entry.LastSeenAt) > c.HotTTL {
		return false, 0
	}
	if entry.FailStreak >= maxFailStreak {
		return false, 1.0
	}
	driftPct := SkeletonDrift(entry.DOMSkeleton, currentSkeleton)
	if driftPct > c.DriftThreshold {
		return false, driftPct
	}
	return true, driftPct
}

// SkeletonDrift computes the fraction of tokens that differ between two
// DOM skeletons (symmetric set difference over union), the graded
// "drift percentage" used for the threshold comparison.
func SkeletonDrift(previous, current string) float64 {
	if previous == "" || current == "" {
		return 0
	}
	prevSet := tokenSet(previous)
	curSet := tokenSet(current)
	if len(prevSet) == 0 && len(curSet) == 0 {
		return 0
	}
	union := map[string]bool{}
	for t := range prevSet {
		union[t] = true
	}
	for t := range curSet {
		union[t] = true
	}
	diff := 0
	for t := range union {
		if prevSet[t] != curSet[t] {
			diff++
		}
	}
	return float64(diff) / float64(len(union))
}

func tokenSet(skeleton string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range strings.Split(skeleton, "|") {
		if tok != "" {
			set[tok] = true
		}
	}
	return set
}

// Save writes entry if and only if it is marked stable (the cache's
// stable-only write invariant); volatile strategies are never persisted.
func (c *Cache) Save(ctx context.Context, key model.CacheKey, entry model.CacheEntry) {
	if !entry.Stable {
		c.Telemetry.CacheEvent("SKIPPED", "warm", key.ElementName, entry.Selector)
		return
	}
	k := Key(key)
	entry.LastSeenAt = time.Now()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = entry.LastSeenAt
	}
	if err := c.Warm.Set(ctx, k, entry); err != nil {
		c.Telemetry.Warn("cache warm tier write", err)
		return
	}
	if err := c.Hot.Set(ctx, k, entry, c.HotTTL); err != nil {
		c.Telemetry.Warn("cache hot tier write", err)
	}
	c.Telemetry.CacheEvent("SAVED", "warm", key.ElementName, entry.Selector)
}

// RecordValidationFailure increments the stored entry's fail streak,
// feeding the two-consecutive-failures staleness rule.
func (c *Cache) RecordValidationFailure(ctx context.Context, key model.CacheKey) {
	k := Key(key)
	entry, ok, err := c.safeWarmGet(ctx, k)
	if err != nil || !ok {
		return
	}
	entry.FailStreak++
	_ = c.Warm.Set(ctx, k, entry)
}

// invalidate evicts both tiers atomically (write-through invalidation).
func (c *Cache) invalidate(ctx context.Context, k string) {
	_ = c.Hot.Delete(ctx, k)
	_ = c.Warm.Delete(ctx, k)
}

func (c *Cache) safeHotGet(ctx context.Context, k string) (model.CacheEntry, bool, error) {
	if c.Hot == nil {
		return model.CacheEntry{}, false, nil
	}
	return c.Hot.Get(ctx, k)
}

func (c *Cache) safeWarmGet(ctx context.Context, k string) (model.CacheEntry, bool, error) {
	if c.Warm == nil {
		return model.CacheEntry{}, false, nil
	}
	return c.Warm.Get(ctx, k)
}
