package orchestrator

import "testrunner/internal/model"

// computeVerdict applies the priority order (blocked > fail >
// pass > partial) to the terminal RunState. The orchestrator's node graph
// only ever reaches the verdict node by one of four edges: a blocked
// detection, full plan completion, the recursion cap, or the executor's
// heal-exhausted branch (nextAfterFailure) — so any non-blocked,
// non-complete, non-recursion-capped arrival is by construction a
// heal-exhausted failure. Partial is kept for a future early-cancellation
// edge (the recursion-cap worked example and the explicit fail rule
// conflict; this repo follows the explicit rule — see DESIGN.md).
func computeVerdict(state model.RunState, blocked, recursionCapHit bool) model.Verdict {
	switch {
	case blocked || state.Failure == model.FailureBlocked:
		return model.VerdictBlocked
	case state.Done() && state.Failure == model.FailureNone:
		return model.VerdictPass
	case recursionCapHit:
		return model.VerdictFail
	case !state.Done():
		return model.VerdictFail
	default:
		return model.VerdictPartial
	}
}

// classifyRCA deterministically maps terminal RunState signals to a root
// cause classification.
func classifyRCA(state model.RunState, blocked, recursionCapHit bool) model.RootCause {
	switch {
	case blocked || state.Failure == model.FailureBlocked:
		return model.RootCause{Class: model.RCABlocked, Evidence: "challenge/interstitial detected"}
	case recursionCapHit:
		return model.RootCause{Class: model.RCAEnvFault, Evidence: "node transition cap exceeded"}
	case state.Done() && state.Failure == model.FailureNone:
		return model.RootCause{Class: model.RCAUnknown, Evidence: "run passed"}
	}

	step, ok := state.CurrentStep()
	if !ok {
		return model.RootCause{Class: model.RCAUnknown, Evidence: "no failing step in context"}
	}

	if step.Intent.Action == model.ActionAssertText || step.Intent.Action == model.ActionAssertVisible {
		return model.RootCause{Class: model.RCAAssertionMismatch, Evidence: "expected value did not match rendered content"}
	}
	if step.Intent.Action == model.ActionSelect && state.Failure == model.FailureTimeout {
		return model.RootCause{Class: model.RCADataIssue, Evidence: "select action failed against the resolved element, likely a missing option value"}
	}

	switch state.Failure {
	case model.FailureNotVisible:
		return model.RootCause{Class: model.RCAVisibilityIssue, Evidence: "element never became visible within budget"}
	case model.FailureDisabled:
		return model.RootCause{Class: model.RCAEnablementIssue, Evidence: "element remained disabled"}
	case model.FailureUnstable, model.FailureTimeout:
		return model.RootCause{Class: model.RCATimingInstability, Evidence: string(state.Failure)}
	case model.FailureNotUnique, model.FailureDiscoveryFailed:
		return model.RootCause{Class: model.RCASelectorDrift, Evidence: "selector no longer resolves uniquely"}
	default:
		return model.RootCause{Class: model.RCAUnknown, Evidence: "unclassified failure"}
	}
}
