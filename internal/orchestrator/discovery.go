package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"testrunner/internal/adapter"
	"testrunner/internal/cache"
	"testrunner/internal/discovery"
	"testrunner/internal/model"
)

// runDiscovery resolves every still-unresolved plan step against the live
// page, consulting the cache first, falling back to the discovery ladder,
// and writing stable results through to the cache. A
// step the ladder cannot resolve is left with an empty selector; the
// executor's gate evaluation naturally reports that as not_unique, which
// routes it through the healer like any other selector-drift failure.
func (o *Orchestrator) runDiscovery(ctx context.Context, page *adapter.Page, state model.RunState) model.RunState {
	skeleton, skErr := page.DOMSkeleton(ctx)

	for i, step := range state.Plan {
		if step.Selector != "" {
			continue
		}

		key := model.CacheKey{
			SessionScope: state.Context.SessionScope,
			URLPattern:   cache.NormalizeURL(state.Context.URL),
			ElementName:  step.Intent.Element,
			ActionClass:  string(step.Intent.Action),
		}

		if o.Config.EnableMemory && o.Cache != nil && skErr == nil {
			if entry, ok := o.Cache.Lookup(ctx, key, skeleton); ok {
				step.Selector = entry.Selector
				step.Strategy = entry.Strategy
				step.Stable = entry.Stable
				step.Confidence = discovery.CombineConfidence(entry.Confidence, true, 0)
				state = state.WithPlanStep(i, step)
				continue
			}
		}

		cand, found, err := o.Ladder.Discover(ctx, page, step.Intent)
		if err != nil {
			o.Telemetry.Warn(fmt.Sprintf("discovery step %d", i), err)
			continue
		}
		if !found {
			continue
		}

		step.Selector = cand.Selector
		step.Strategy = cand.Strategy
		step.Stable = cand.Stable
		step.Meta = cand.Meta
		step.Confidence = discovery.CombineConfidence(cand.Score, false, 0)
		state = state.WithPlanStep(i, step)

		if o.Config.EnableMemory && o.Cache != nil && step.Stable {
			o.Cache.Save(ctx, key, model.CacheEntry{
				Selector:    step.Selector,
				Strategy:    step.Strategy,
				Confidence:  step.Confidence,
				Stable:      step.Stable,
				DOMSkeleton: skeleton,
			})
		}
	}
	return state
}

// runGenerator assembles the optional generated-test-code artifact: a
// human-readable script mirroring
// the compiled plan, written once discovery has resolved every selector it
// could. Selector assembly itself is discovery's job; the plan is not
// otherwise mutated here.
func (o *Orchestrator) runGenerator(state model.RunState, artifacts []string) (model.RunState, []string) {
	dir := o.Config.Store.ArtifactDir
	if dir == "" {
		return state, artifacts
	}
	code := generateScript(state)
	path := filepath.Join(dir, fmt.Sprintf("%s.generated.txt", state.ReqID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		o.Telemetry.Warn("generator mkdir", err)
		return state, artifacts
	}
	if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
		o.Telemetry.Warn("generator write", err)
		return state, artifacts
	}
	return state, append(artifacts, path)
}

// generateScript renders a readable step-by-step script from the compiled
// plan, the same shape a human would hand-write to reproduce the run.
func generateScript(state model.RunState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# generated from run %s\n", state.ReqID)
	for i, step := range state.Plan {
		selector := step.Selector
		if selector == "" {
			selector = "<unresolved>"
		}
		fmt.Fprintf(&b, "%d. %s %q via %q (%s)\n", i+1, step.Intent.Action, selector, step.Strategy, step.Intent.Element)
	}
	return b.String()
}
