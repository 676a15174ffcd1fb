package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"testrunner/internal/model"
)

// SelectorCacheWarm adapts Store to the cache package's WarmTier
// interface: durable, source-of-truth storage for stable selectors.
type SelectorCacheWarm struct {
	store *Store
}

// WarmCache returns the warm-tier view of this store.
func (s *Store) WarmCache() *SelectorCacheWarm {
	return &SelectorCacheWarm{store: s}
}

func (w *SelectorCacheWarm) Get(ctx context.Context, key string) (model.CacheEntry, bool, error) {
	row := w.store.db.QueryRowContext(ctx, `
		SELECT selector, strategy, confidence, stable, dom_fingerprint, dom_skeleton,
		       fail_streak, hit_count, created_at, last_seen_at
		FROM selector_cache WHERE cache_key = ?`, key)

	var e model.CacheEntry
	var stableInt int
	var created, lastSeen time.Time
	err := row.Scan(&e.Selector, &e.Strategy, &e.Confidence, &stableInt, &e.DOMFingerprint,
		&e.DOMSkeleton, &e.FailStreak, &e.HitCount, &created, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CacheEntry{}, false, nil
	}
	if err != nil {
		return model.CacheEntry{}, false, fmt.Errorf("selector cache get: %w", err)
	}
	e.Stable = stableInt != 0
	e.CreatedAt = created
	e.LastSeenAt = lastSeen
	return e, true, nil
}

func (w *SelectorCacheWarm) Set(ctx context.Context, key string, entry model.CacheEntry) error {
	_, err := w.store.db.ExecContext(ctx, `
		INSERT INTO selector_cache (cache_key, selector, strategy, confidence, stable,
			dom_fingerprint, dom_skeleton, fail_streak, hit_count, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			selector=excluded.selector, strategy=excluded.strategy, confidence=excluded.confidence,
			stable=excluded.stable, dom_fingerprint=excluded.dom_fingerprint, dom_skeleton=excluded.dom_skeleton,
			fail_streak=excluded.fail_streak, hit_count=excluded.hit_count, last_seen_at=excluded.last_seen_at`,
		key, entry.Selector, entry.Strategy, entry.Confidence, boolToInt(entry.Stable),
		entry.DOMFingerprint, entry.DOMSkeleton, entry.FailStreak, entry.HitCount,
		entry.CreatedAt, entry.LastSeenAt)
	if err != nil {
		return fmt.Errorf("selector cache set: %w", err)
	}
	return nil
}

func (w *SelectorCacheWarm) Delete(ctx context.Context, key string) error {
	if _, err := w.store.db.ExecContext(ctx, `DELETE FROM selector_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("selector cache delete: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
