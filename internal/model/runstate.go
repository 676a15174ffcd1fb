package model

import "time"

// HealPhase names the phase of a single heal attempt.
type HealPhase string

const (
	HealPhaseReveal    HealPhase = "reveal"
	HealPhaseReprobe   HealPhase = "reprobe"
	HealPhaseStabilize HealPhase = "stabilize"
)

// HealEvent records one heal attempt. HealEvent slices must always be
// replaced wholesale on RunState (see HealEvents comment) so a
// shallow-equality checkpoint layer observes the mutation.
type HealEvent struct {
	StepIdx       int
	Round         int
	Phase         HealPhase
	Strategy      string
	Selector      string
	Outcome       string
	LatencyMs     int64
	DiscoveryNone bool
	CreatedAt     time.Time
}

// StepRecord is the executed-step audit trail entry.
type StepRecord struct {
	Idx       int
	Selector  string
	Strategy  string
	Action    Action
	Value     string
	LatencyMs int64
	HealRound int
	Status    string
}

// RunContext is the run-scoped bag of ambient state.
type RunContext struct {
	URL          string
	Dataset      Dataset
	SessionScope string
	StepHistory  []StepRecord
}

// RunState is the shared, serializable state threaded through the
// orchestrator. It must only ever be mutated via whole-field reassignment
// for composite fields (Plan, HealEvents, Context.StepHistory)
// — the checkpoint layer compares by shallow equality and will silently
// drop in-place mutation.
type RunState struct {
	ReqID      string
	StepIdx    int
	HealRound  int
	Failure    Failure
	Plan       []PlanStep
	Context    RunContext
	HealEvents []HealEvent
	Verdict    Verdict
}

// NewRunState builds the initial state for a compiled plan.
func NewRunState(reqID string, plan []PlanStep, ctx RunContext) RunState {
	return RunState{
		ReqID:      reqID,
		StepIdx:    0,
		HealRound:  0,
		Failure:    FailureNone,
		Plan:       plan,
		Context:    ctx,
		HealEvents: nil,
		Verdict:    "",
	}
}

// Done reports whether every plan step has executed.
func (s RunState) Done() bool {
	return s.StepIdx >= len(s.Plan)
}

// CurrentStep returns the step about to execute, if any.
func (s RunState) CurrentStep() (PlanStep, bool) {
	if s.StepIdx < 0 || s.StepIdx >= len(s.Plan) {
		return PlanStep{}, false
	}
	return s.Plan[s.StepIdx], true
}

// WithHealEvent returns a copy of s with event appended via reassignment,
// never in-place append, so callers that checkpoint by shallow comparison
// observe the change.
func (s RunState) WithHealEvent(ev HealEvent) RunState {
	next := s
	events := make([]HealEvent, len(s.HealEvents), len(s.HealEvents)+1)
	copy(events, s.HealEvents)
	next.HealEvents = append(events, ev)
	return next
}

// WithStepRecord returns a copy of s with the step record appended to the
// context's step history via reassignment.
func (s RunState) WithStepRecord(rec StepRecord) RunState {
	next := s
	history := make([]StepRecord, len(s.Context.StepHistory), len(s.Context.StepHistory)+1)
	copy(history, s.Context.StepHistory)
	next.Context.StepHistory = append(history, rec)
	return next
}

// LastTwoHealEventsDiscoveryNone reports whether the two most recent
// reprobe-phase heal events both recorded discovery_none, which forces
// heal exhaustion. Only reprobe events carry a meaningful DiscoveryNone
// signal (reveal/stabilize leave it at its zero value), so non-reprobe
// events are skipped rather than counted as a false pair.
func (s RunState) LastTwoHealEventsDiscoveryNone() bool {
	var last []bool
	for i := len(s.HealEvents) - 1; i >= 0 && len(last) < 2; i-- {
		ev := s.HealEvents[i]
		if ev.Phase != HealPhaseReprobe {
			continue
		}
		last = append(last, ev.DiscoveryNone)
	}
	return len(last) == 2 && last[0] && last[1]
}

// WithPlanStep returns a copy of s with Plan[idx] replaced by step, the
// plan slice itself reassigned wholesale (never mutated in place) so a
// shallow-equality checkpoint layer observes the selector upgrade a heal
// round makes.
func (s RunState) WithPlanStep(idx int, step PlanStep) RunState {
	next := s
	plan := make([]PlanStep, len(s.Plan))
	copy(plan, s.Plan)
	if idx >= 0 && idx < len(plan) {
		plan[idx] = step
	}
	next.Plan = plan
	return next
}

// LastTwoReprobesIdenticalSelector reports whether the two most recent
// reprobe-phase heal events resolved to the same selector, which also
// forces heal exhaustion (prevents orchestrator cycles).
func (s RunState) LastTwoReprobesIdenticalSelector() bool {
	var last []string
	for i := len(s.HealEvents) - 1; i >= 0 && len(last) < 2; i-- {
		ev := s.HealEvents[i]
		if ev.Phase != HealPhaseReprobe || ev.Selector == "" {
			continue
		}
		last = append(last, ev.Selector)
	}
	return len(last) == 2 && last[0] == last[1]
}
