// Package heal implements the Heal Engine: reveal, reprobe,
// stabilize against a failed step, with the Heal History prior weighting
// a reprobed selector's confidence (it does not reorder the tiers tried),
// and bounded by two loop guards that force heal exhaustion rather
// than risk an orchestrator cycle. Grounded in the discovery ladder's
// relaxed reprobe schedule and the gate's retry-adaptive thresholds,
// composing existing primitives into higher-level behaviors rather
// than re-deriving them.
package heal

import (
	"context"
	"time"

	"testrunner/internal/adapter"
	"testrunner/internal/cache"
	"testrunner/internal/config"
	"testrunner/internal/discovery"
	"testrunner/internal/gate"
	"testrunner/internal/model"
	"testrunner/internal/store"
	"testrunner/internal/telemetry"
)

// networkIdleWait is the reveal phase's bounded, soft-fail wait for
// network quiet (wait for network idle, bounded, soft-fail).
const networkIdleWait = 2 * time.Second

// Engine composes the ladder, cache, and heal-history store into the
// reveal/reprobe/stabilize loop the orchestrator's healer node drives.
type Engine struct {
	Ladder    *discovery.Ladder
	Cache     *cache.Cache
	History   *store.HealHistory
	Telemetry *telemetry.Shim
}

// New builds a heal Engine from its collaborators.
func New(ladder *discovery.Ladder, c *cache.Cache, history *store.HealHistory, tel *telemetry.Shim) *Engine {
	return &Engine{Ladder: ladder, Cache: c, History: history, Telemetry: tel}
}

// Round runs one heal round (reveal, reprobe, stabilize) against state's
// current step and returns the updated state: heal events appended by
// reassignment, the plan step's selector possibly upgraded, heal_round
// advanced or forced to max_heal_rounds by a loop guard.
func (e *Engine) Round(ctx context.Context, page *adapter.Page, state model.RunState, cfg *config.Config) model.RunState {
	step, ok := state.CurrentStep()
	if !ok {
		return state
	}
	round := state.HealRound

	state = e.reveal(ctx, page, state, step, round)
	state, step = e.reprobe(ctx, page, state, step, round)
	state = e.stabilize(ctx, page, state, step, round)

	switch {
	case state.LastTwoHealEventsDiscoveryNone():
		state.HealRound = cfg.MaxHealRounds
	case state.LastTwoReprobesIdenticalSelector():
		state.HealRound = cfg.MaxHealRounds
	default:
		state.HealRound = round + 1
	}
	return state
}

// reveal brings the target into an actionable state without changing page
// semantics: bring tab to front, scroll into view, dismiss overlays in
// order (ESC, backdrop click, close-button heuristic), wait network idle.
func (e *Engine) reveal(ctx context.Context, page *adapter.Page, state model.RunState, step model.PlanStep, round int) model.RunState {
	start := time.Now()
	outcome := "ok"

	if err := page.BringToFront(ctx); err != nil {
		e.Telemetry.Warn("heal reveal bring to front", err)
	}
	if step.Selector != "" {
		if err := page.ScrollIntoView(ctx, step.Selector, step.Intent.Within); err != nil {
			e.Telemetry.Warn("heal reveal scroll into view", err)
		}
	}
	if dismissed := e.dismissOverlays(ctx, page); dismissed {
		outcome = "dismissed_overlay"
	}

	idleCtx, cancel := context.WithTimeout(ctx, networkIdleWait)
	_ = page.WaitNetworkIdle(idleCtx, 300*time.Millisecond) // soft-fail: reveal proceeds regardless
	cancel()

	ev := model.HealEvent{
		StepIdx:   state.StepIdx,
		Round:     round,
		Phase:     model.HealPhaseReveal,
		Outcome:   outcome,
		LatencyMs: time.Since(start).Milliseconds(),
		CreatedAt: time.Now(),
	}
	e.Telemetry.Heal(round, string(model.HealPhaseReveal), outcome)
	return state.WithHealEvent(ev)
}

// dismissOverlays tries the three overlay-dismissal strategies in order,
// stopping at the first that reports success.
func (e *Engine) dismissOverlays(ctx context.Context, page *adapter.Page) bool {
	if err := page.PressEscape(ctx); err == nil {
		// ESC is fire-and-forget: no reliable success signal, so we still
		// try the remaining strategies, but record that we attempted it.
		_ = err
	}
	if ok, err := page.ClickOverlayBackdrop(ctx); err == nil && ok {
		return true
	}
	if ok, err := page.ClickCloseButtonHeuristic(ctx); err == nil && ok {
		return true
	}
	return false
}

// reprobe re-runs discovery with the round's relaxation schedule when the
// failure is timeout or not_unique and upgrades the plan step's selector on
// success. The heal-history prior feeds the new selector's confidence; it
// does not change which tiers are tried or their order.
func (e *Engine) reprobe(ctx context.Context, page *adapter.Page, state model.RunState, step model.PlanStep, round int) (model.RunState, model.PlanStep) {
	if state.Failure != model.FailureTimeout && state.Failure != model.FailureNotUnique {
		return state, step
	}

	start := time.Now()
	urlPattern := cache.NormalizeURL(page.CurrentURL())
	elementName := cache.NormalizeElementName(step.Intent.Element)

	cacheSeed := ""
	if skeleton, err := page.DOMSkeleton(ctx); err == nil {
		key := model.CacheKey{
			SessionScope: page.SessionScope(ctx),
			URLPattern:   urlPattern,
			ElementName:  elementName,
			ActionClass:  string(step.Intent.Action),
		}
		if entry, ok := e.Cache.Lookup(ctx, key, skeleton); ok {
			cacheSeed = entry.Selector
		}
	}

	// The historical ranking does not reorder the ladder: the round's
	// relaxation schedule alone decides which tiers are tried, in ladder
	// order. The prior feeds the confidence combiner below.
	ranked, _ := e.History.BestStrategies(ctx, urlPattern, elementName, 5)

	cand, found, err := e.Ladder.Reprobe(ctx, page, step.Intent, round, cacheSeed)
	outcome := "fail"
	var newStep model.PlanStep
	if err == nil && found {
		outcome = "success"
		newStep = step
		newStep.Selector = cand.Selector
		newStep.Strategy = cand.Strategy
		newStep.Stable = cand.Stable
		newStep.Meta = cand.Meta
		newStep.DiscoveredAt = time.Now()

		healPrior := priorFor(ranked, cand.Strategy)
		newStep.Confidence = discovery.CombineConfidence(cand.Score, cand.Selector == cacheSeed, healPrior)

		state = state.WithPlanStep(state.StepIdx, newStep)
		step = newStep
	}

	ev := model.HealEvent{
		StepIdx:       state.StepIdx,
		Round:         round,
		Phase:         model.HealPhaseReprobe,
		Strategy:      cand.Strategy,
		Selector:      cand.Selector,
		Outcome:       outcome,
		DiscoveryNone: !found,
		LatencyMs:     time.Since(start).Milliseconds(),
		CreatedAt:     time.Now(),
	}
	state = state.WithHealEvent(ev)
	e.Telemetry.Heal(round, string(model.HealPhaseReprobe), outcome)

	strategy := cand.Strategy
	if strategy == "" {
		strategy = "none"
	}
	_ = e.History.Record(ctx, model.HealRecord{
		URLPattern: urlPattern,
		Element:    elementName,
		Strategy:   strategy,
		Outcome:    outcome,
		LatencyMs:  time.Since(start).Milliseconds(),
		HealRound:  round,
		CreatedAt:  time.Now(),
	})

	return state, step
}

func priorFor(ranked []store.StrategyRank, strategy string) float64 {
	for _, r := range ranked {
		if r.Strategy == strategy {
			return r.SuccessRate
		}
	}
	return 0
}

// stabilize waits for bounding-box stability at the round's retry-adaptive
// sample count, then reruns the five-point gate.
func (e *Engine) stabilize(ctx context.Context, page *adapter.Page, state model.RunState, step model.PlanStep, round int) model.RunState {
	start := time.Now()
	outcome := "fail"

	if step.Selector != "" {
		result, err := gate.Evaluate(ctx, page, discovery.Resolve, step.Selector, step.Intent.Within, round, e.Telemetry)
		if err == nil {
			if result.Pass() {
				outcome = "pass"
				state.Failure = model.FailureNone
			} else {
				state.Failure = result.Failure()
			}
		} else {
			e.Telemetry.Warn("heal stabilize gate evaluate", err)
		}
	}

	ev := model.HealEvent{
		StepIdx:   state.StepIdx,
		Round:     round,
		Phase:     model.HealPhaseStabilize,
		Outcome:   outcome,
		LatencyMs: time.Since(start).Milliseconds(),
		CreatedAt: time.Now(),
	}
	e.Telemetry.Heal(round, string(model.HealPhaseStabilize), outcome)
	return state.WithHealEvent(ev)
}
