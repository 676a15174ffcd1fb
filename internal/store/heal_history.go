package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"testrunner/internal/model"
)

// HealHistory is the append-only heal-attempt log, aggregated into a
// success-rate prior the heal engine reads during reprobe to weight a
// found selector's confidence.
type HealHistory struct {
	store *Store
}

// HealHistory returns the heal-history view of this store.
func (s *Store) HealHistory() *HealHistory {
	return &HealHistory{store: s}
}

// Record appends one heal-attempt outcome; writes happen regardless of outcome.
func (h *HealHistory) Record(ctx context.Context, rec model.HealRecord) error {
	_, err := h.store.db.ExecContext(ctx, `
		INSERT INTO heal_history (url_pattern, element, strategy, outcome, latency_ms, heal_round, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.URLPattern, rec.Element, rec.Strategy, rec.Outcome, rec.LatencyMs, rec.HealRound, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("heal history record: %w", err)
	}
	return nil
}

// StrategyRank is one row of the best_strategies(url, element, limit) view.
type StrategyRank struct {
	Strategy     string
	SuccessRate  float64
	Attempts     int
	MostRecentAt time.Time
}

// BestStrategies returns strategies for (urlPattern, element) ordered by
// success rate, ties broken by recency.
func (h *HealHistory) BestStrategies(ctx context.Context, urlPattern, element string, limit int) ([]StrategyRank, error) {
	rows, err := h.store.db.QueryContext(ctx, `
		SELECT strategy,
		       AVG(CASE WHEN outcome = 'success' THEN 1.0 ELSE 0.0 END) AS success_rate,
		       COUNT(*) AS attempts,
		       MAX(created_at) AS most_recent
		FROM heal_history
		WHERE url_pattern = ? AND element = ?
		GROUP BY strategy
		ORDER BY success_rate DESC, most_recent DESC
		LIMIT ?`, urlPattern, element, limit)
	if err != nil {
		return nil, fmt.Errorf("best strategies query: %w", err)
	}
	defer rows.Close()

	var ranks []StrategyRank
	for rows.Next() {
		var r StrategyRank
		var mostRecent sql.NullTime
		if err := rows.Scan(&r.Strategy, &r.SuccessRate, &r.Attempts, &mostRecent); err != nil {
			return nil, fmt.Errorf("best strategies scan: %w", err)
		}
		if mostRecent.Valid {
			r.MostRecentAt = mostRecent.Time
		}
		ranks = append(ranks, r)
	}
	return ranks, rows.Err()
}

// SuccessRate returns the aggregate success rate for exactly one
// (url_pattern, element, strategy) key, or 0 when that key has no history.
func (h *HealHistory) SuccessRate(ctx context.Context, urlPattern, element, strategy string) (float64, error) {
	var rate sql.NullFloat64
	err := h.store.db.QueryRowContext(ctx, `
		SELECT AVG(CASE WHEN outcome = 'success' THEN 1.0 ELSE 0.0 END)
		FROM heal_history WHERE url_pattern = ? AND element = ? AND strategy = ?`,
		urlPattern, element, strategy).Scan(&rate)
	if err != nil {
		return 0, fmt.Errorf("success rate query: %w", err)
	}
	if !rate.Valid {
		return 0, nil
	}
	return rate.Float64, nil
}
