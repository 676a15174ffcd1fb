package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"testrunner/internal/adapter"
	"testrunner/internal/appadapter"
	"testrunner/internal/cache"
	"testrunner/internal/discovery"
	"testrunner/internal/gate"
	"testrunner/internal/model"
	"testrunner/internal/profile"
	"testrunner/internal/readiness"
)

// runExecutor performs the seven-step per-step executor pass:
// blocked short-circuit, readiness gate, selector refresh, five-point gate,
// action execution, step-history recording, and step advance. It returns
// the updated state, the node to transition to next, and any forensic
// artifact paths captured this pass.
func (o *Orchestrator) runExecutor(ctx context.Context, page *adapter.Page, state model.RunState, prof profile.Profile) (model.RunState, nodeName, []string) {
	if state.Done() {
		return state, nodeVerdict, nil
	}
	start := time.Now()
	step, _ := state.CurrentStep()

	// 1. Blocked short-circuit, ahead of readiness and discovery.
	if blocked, reasons := adapter.DetectBlocked(ctx, page); blocked {
		state.Failure = model.FailureBlocked
		artifacts := o.captureForensics(ctx, page, state.ReqID, state.StepIdx, "blocked")
		o.Telemetry.Warn("blocked page detected", fmt.Errorf("%s", strings.Join(reasons, ",")))
		return state, nodeVerdict, artifacts
	}

	// 2. Readiness gate; an unresolved selector skips stage 2.
	if err := readiness.Gate(ctx, page, prof, step.Selector, o.ReadyHook, o.Telemetry); err != nil {
		state.Failure = model.FailureTimeout
		state = state.WithStepRecord(stepRecord(state.StepIdx, step, start, string(state.Failure)))
		return state, o.nextAfterFailure(state), nil
	}

	// 3. Refresh the active selector against the cache if it has changed
	// since discovery ran (step 3).
	step = o.refreshSelector(ctx, page, state, step)
	state = state.WithPlanStep(state.StepIdx, step)

	// 4. Five-point actionability gate.
	result, err := o.evaluateGate(ctx, page, step, state.HealRound)
	if err != nil {
		state.Failure = model.FailureTimeout
		state = state.WithStepRecord(stepRecord(state.StepIdx, step, start, string(state.Failure)))
		return state, o.nextAfterFailure(state), nil
	}
	if !result.Pass() {
		state.Failure = result.Failure()
		state = state.WithStepRecord(stepRecord(state.StepIdx, step, start, string(state.Failure)))
		return state, o.nextAfterFailure(state), nil
	}

	// 5. Perform the action.
	execResult, err := o.performAction(ctx, page, step)
	if err != nil || !execResult.Success {
		failure := execResult.Failure
		if failure == model.FailureNone {
			failure = model.FailureTimeout
		}
		state.Failure = failure
		state = state.WithStepRecord(stepRecord(state.StepIdx, step, start, string(failure)))
		return state, o.nextAfterFailure(state), nil
	}

	// 6. Record the successful step.
	state = state.WithStepRecord(stepRecord(state.StepIdx, step, start, "pass"))

	if o.Config.EnableMemory && o.Cache != nil && step.Stable {
		if skeleton, err := page.DOMSkeleton(ctx); err == nil {
			key := model.CacheKey{
				SessionScope: state.Context.SessionScope,
				URLPattern:   cache.NormalizeURL(state.Context.URL),
				ElementName:  step.Intent.Element,
				ActionClass:  string(step.Intent.Action),
			}
			o.Cache.Save(ctx, key, model.CacheEntry{
				Selector:    step.Selector,
				Strategy:    step.Strategy,
				Confidence:  step.Confidence,
				Stable:      step.Stable,
				DOMSkeleton: skeleton,
			})
		}
	}

	// 7. Advance.
	state.StepIdx++
	state.HealRound = 0
	state.Failure = model.FailureNone
	return state, nodeExecutor, nil
}

func stepRecord(idx int, step model.PlanStep, start time.Time, status string) model.StepRecord {
	return model.StepRecord{
		Idx:       idx,
		Selector:  step.Selector,
		Strategy:  step.Strategy,
		Action:    step.Intent.Action,
		Value:     step.Intent.Value,
		LatencyMs: time.Since(start).Milliseconds(),
		Status:    status,
	}
}

// nextAfterFailure routes a failed step to the healer while heal rounds
// remain, else to verdict (executor edges).
func (o *Orchestrator) nextAfterFailure(state model.RunState) nodeName {
	if state.HealRound < o.Config.MaxHealRounds {
		return nodeHealer
	}
	return nodeVerdict
}

// refreshSelector re-checks the cache for a fresher selector than the one
// currently on the plan step, upgrading it when the cache disagrees.
func (o *Orchestrator) refreshSelector(ctx context.Context, page *adapter.Page, state model.RunState, step model.PlanStep) model.PlanStep {
	if !o.Config.EnableMemory || o.Cache == nil {
		return step
	}
	skeleton, err := page.DOMSkeleton(ctx)
	if err != nil {
		return step
	}
	key := model.CacheKey{
		SessionScope: state.Context.SessionScope,
		URLPattern:   cache.NormalizeURL(state.Context.URL),
		ElementName:  step.Intent.Element,
		ActionClass:  string(step.Intent.Action),
	}
	entry, ok := o.Cache.Lookup(ctx, key, skeleton)
	if !ok || entry.Selector == step.Selector {
		return step
	}
	step.Selector = entry.Selector
	step.Strategy = entry.Strategy
	step.Stable = entry.Stable
	step.Confidence = entry.Confidence
	return step
}

// evaluateGate resolves the gate against an unresolved (empty) selector as
// an immediate not_unique failure instead of issuing a query that would
// error on empty CSS, so the healer's reprobe (which reacts to not_unique
// and timeout) can still attempt full discovery for a never-found element.
func (o *Orchestrator) evaluateGate(ctx context.Context, page *adapter.Page, step model.PlanStep, healRound int) (gate.Result, error) {
	if step.Selector == "" {
		return gate.Result{Scoped: true}, nil
	}
	return gate.Evaluate(ctx, page, discovery.Resolve, step.Selector, step.Intent.Within, healRound, o.Telemetry)
}

// performAction dispatches to a registered app adapter's Actor when the
// step's discovery candidate was stamped with an app_adapter meta tag,
// otherwise handles the two assertion verbs directly, otherwise falls
// through to the generic adapter.Act (the adapter contract).
func (o *Orchestrator) performAction(ctx context.Context, page *adapter.Page, step model.PlanStep) (model.ExecResult, error) {
	if name, ok := step.Meta[appadapter.MetaKey]; ok && o.Adapters != nil {
		cand := model.Candidate{Selector: step.Selector, Strategy: step.Strategy, Stable: step.Stable, Meta: step.Meta}
		if actor, ok := o.Adapters.ActorFor(cand); ok {
			return actor.Act(ctx, page, cand, step.Intent)
		}
		_ = name
	}

	switch step.Intent.Action {
	case model.ActionAssertVisible:
		// The gate already confirmed visibility this pass; nothing further to do.
		return model.ExecResult{Success: true}, nil
	case model.ActionAssertText:
		return o.assertText(ctx, page, step)
	default:
		el, err := gate.Element(ctx, page, discovery.Resolve, step.Selector, step.Intent.Within)
		if err != nil {
			return model.ExecResult{}, err
		}
		if err := adapter.Act(ctx, el, string(step.Intent.Action), step.Intent.Value); err != nil {
			return model.ExecResult{Success: false, Failure: model.FailureTimeout, Detail: err.Error()}, nil
		}
		return model.ExecResult{Success: true}, nil
	}
}

func (o *Orchestrator) assertText(ctx context.Context, page *adapter.Page, step model.PlanStep) (model.ExecResult, error) {
	el, err := gate.Element(ctx, page, discovery.Resolve, step.Selector, step.Intent.Within)
	if err != nil {
		return model.ExecResult{}, err
	}
	text, err := el.Context(ctx).Text()
	if err != nil {
		return model.ExecResult{}, err
	}
	if !strings.Contains(strings.ToLower(text), strings.ToLower(step.Intent.Expected)) {
		return model.ExecResult{Success: false, Failure: model.FailureTimeout, Detail: "assert_text mismatch"}, nil
	}
	return model.ExecResult{Success: true}, nil
}
