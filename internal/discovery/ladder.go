package discovery

import (
	"context"

	"testrunner/internal/adapter"
	"testrunner/internal/model"
	"testrunner/internal/telemetry"
)

// AppAdapter is the polymorphic extension point for framework-specific
// widgets ("App-adapter strategies" / app-specific
// adapters): a flat, ordered table of strategies rather than a class
// hierarchy, consulted after the ordinal strategy and before the
// attribute-tier ladder.
type AppAdapter interface {
	Name() string
	Supports(intent model.Intent) bool
	Resolve(ctx context.Context, page *adapter.Page, intent model.Intent) (model.Candidate, bool, error)
}

// Ladder runs the ordinal strategy, then registered app adapters, then the
// eight attribute tiers, returning the first candidate that survives the
// false-positive protections.
type Ladder struct {
	Adapters  []AppAdapter
	Telemetry *telemetry.Shim
}

// New builds a Ladder with the given app adapters registered in priority order.
func New(tel *telemetry.Shim, adapters ...AppAdapter) *Ladder {
	return &Ladder{Adapters: adapters, Telemetry: tel}
}

// Discover resolves intent against page's live DOM, or reports none found.
func (l *Ladder) Discover(ctx context.Context, page *adapter.Page, intent model.Intent) (model.Candidate, bool, error) {
	elements, err := Collect(ctx, page, intent.Within)
	if err != nil {
		return model.Candidate{}, false, err
	}

	if intent.HasOrdinal() {
		if c, ok := matchOrdinal(elements, intent); ok {
			l.log(0, c)
			return c, true, nil
		}
	}

	for _, a := range l.Adapters {
		if !a.Supports(intent) {
			continue
		}
		c, ok, err := a.Resolve(ctx, page, intent)
		if err != nil {
			return model.Candidate{}, false, err
		}
		if ok {
			l.log(-1, c)
			return c, true, nil
		}
	}

	for _, t := range tierTable {
		if t.num == 6 {
			continue // role+accessible-name handled separately below, in tier order
		}
		if c, ok := matchTier(t, elements, intent); ok {
			l.log(t.num, c)
			return c, true, nil
		}
		if t.num == 5 {
			// Tier 6 (role + accessible name) sits between label-for and
			// data-test attributes in the stability-ordered table.
			if c, ok := matchTier6(elements, intent); ok {
				l.log(6, c)
				return c, true, nil
			}
		}
	}

	return model.Candidate{}, false, nil
}

// Reprobe re-runs discovery with the round-dependent relaxation schedule
// the heal engine's reprobe phase applies: round 1 loosens
// tier-6 fuzzy matching, round 2 also loosens tiers 4-5, round 3 allows
// tiers 7-8 seeded by the last-known-good cache selector before falling
// through to the relaxed ladder.
func (l *Ladder) Reprobe(ctx context.Context, page *adapter.Page, intent model.Intent, healRound int, cacheSeed string) (model.Candidate, bool, error) {
	if healRound >= 3 && cacheSeed != "" {
		if res, err := Resolve(ctx, page, cacheSeed, intent.Within); err == nil && res.Count() == 1 {
			c := model.Candidate{Selector: cacheSeed, Score: 0.70, Strategy: "cache_seed", Stable: false}
			l.log(-2, c)
			return c, true, nil
		}
	}

	elements, err := Collect(ctx, page, intent.Within)
	if err != nil {
		return model.Candidate{}, false, err
	}

	if intent.HasOrdinal() {
		if c, ok := matchOrdinal(elements, intent); ok {
			l.log(0, c)
			return c, true, nil
		}
	}

	for _, a := range l.Adapters {
		if !a.Supports(intent) {
			continue
		}
		c, ok, err := a.Resolve(ctx, page, intent)
		if err != nil {
			return model.Candidate{}, false, err
		}
		if ok {
			l.log(-1, c)
			return c, true, nil
		}
	}

	for _, t := range tierTable {
		if t.num == 6 {
			continue
		}
		loosenThisTier := healRound >= 2 && (t.num == 4 || t.num == 5)
		var c model.Candidate
		var ok bool
		if loosenThisTier {
			c, ok = matchTierLoose(t, elements, intent)
		} else {
			c, ok = matchTier(t, elements, intent)
		}
		if ok {
			l.log(t.num, c)
			return c, true, nil
		}
		if t.num == 5 {
			if healRound >= 1 {
				if c, ok := matchTier6Loose(elements, intent); ok {
					l.log(6, c)
					return c, true, nil
				}
			} else if c, ok := matchTier6(elements, intent); ok {
				l.log(6, c)
				return c, true, nil
			}
		}
	}

	return model.Candidate{}, false, nil
}

func (l *Ladder) log(tier int, c model.Candidate) {
	if l.Telemetry == nil {
		return
	}
	l.Telemetry.Discovery(tier, c.Strategy, c.Selector, c.Stable)
}

// CombineConfidence implements the confidence arithmetic: a
// single monotone combiner over tier score, a fixed cache-hit boost, and
// the heal-history success-rate prior, clamped to [0, 1]. Cache/heal
// inputs are deliberately small nudges that can never flip a tier-1
// selector below a tier-8 one.
func CombineConfidence(tierScore float64, fromCache bool, healPriorSuccessRate float64) float64 {
	confidence := tierScore
	if fromCache {
		confidence += 0.05
	}
	confidence += 0.10 * healPriorSuccessRate
	if confidence > 1 {
		return 1
	}
	if confidence < 0 {
		return 0
	}
	return confidence
}
