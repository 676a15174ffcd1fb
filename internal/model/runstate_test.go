package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithHealEventReassignsSliceWithoutAliasing(t *testing.T) {
	s := NewRunState("r1", nil, RunContext{})
	s1 := s.WithHealEvent(HealEvent{Phase: HealPhaseReveal, Outcome: "ok"})
	assert.Len(t, s1.HealEvents, 1)
	assert.Empty(t, s.HealEvents, "original state must be unmutated")

	s2 := s1.WithHealEvent(HealEvent{Phase: HealPhaseReprobe, Outcome: "fail"})
	assert.Len(t, s2.HealEvents, 2)
	assert.Len(t, s1.HealEvents, 1, "earlier snapshot must be unaffected by later reassignment")
}

func TestWithStepRecordReassignsHistory(t *testing.T) {
	s := NewRunState("r1", nil, RunContext{})
	s1 := s.WithStepRecord(StepRecord{Idx: 0, Status: "pass"})
	assert.Len(t, s1.Context.StepHistory, 1)
	assert.Empty(t, s.Context.StepHistory)
}

func TestWithPlanStepReassignsPlanWithoutAliasing(t *testing.T) {
	plan := []PlanStep{{Selector: "a"}, {Selector: "b"}}
	s := NewRunState("r1", plan, RunContext{})
	s1 := s.WithPlanStep(1, PlanStep{Selector: "b2"})
	assert.Equal(t, "b2", s1.Plan[1].Selector)
	assert.Equal(t, "b", s.Plan[1].Selector, "original plan slice must be unmutated")
}

func TestLastTwoHealEventsDiscoveryNone(t *testing.T) {
	s := NewRunState("r1", nil, RunContext{})
	assert.False(t, s.LastTwoHealEventsDiscoveryNone())

	s = s.WithHealEvent(HealEvent{Phase: HealPhaseReveal, DiscoveryNone: false})
	assert.False(t, s.LastTwoHealEventsDiscoveryNone(), "non-reprobe events carry no discovery_none signal")

	s = s.WithHealEvent(HealEvent{Phase: HealPhaseReprobe, DiscoveryNone: true})
	assert.False(t, s.LastTwoHealEventsDiscoveryNone())

	s = s.WithHealEvent(HealEvent{Phase: HealPhaseStabilize, DiscoveryNone: false})
	assert.False(t, s.LastTwoHealEventsDiscoveryNone())

	s = s.WithHealEvent(HealEvent{Phase: HealPhaseReprobe, DiscoveryNone: true})
	assert.True(t, s.LastTwoHealEventsDiscoveryNone(), "an intervening stabilize event must not break the reprobe pairing")

	s = s.WithHealEvent(HealEvent{Phase: HealPhaseReprobe, DiscoveryNone: false})
	assert.False(t, s.LastTwoHealEventsDiscoveryNone())
}

func TestLastTwoReprobesIdenticalSelector(t *testing.T) {
	s := NewRunState("r1", nil, RunContext{})
	s = s.WithHealEvent(HealEvent{Phase: HealPhaseReveal, Selector: "ignored"})
	assert.False(t, s.LastTwoReprobesIdenticalSelector())

	s = s.WithHealEvent(HealEvent{Phase: HealPhaseReprobe, Selector: "#x"})
	assert.False(t, s.LastTwoReprobesIdenticalSelector())

	s = s.WithHealEvent(HealEvent{Phase: HealPhaseReprobe, Selector: "#x"})
	assert.True(t, s.LastTwoReprobesIdenticalSelector())

	s = s.WithHealEvent(HealEvent{Phase: HealPhaseReprobe, Selector: "#y"})
	assert.False(t, s.LastTwoReprobesIdenticalSelector())
}

func TestDoneAndCurrentStep(t *testing.T) {
	plan := []PlanStep{{Selector: "a"}}
	s := NewRunState("r1", plan, RunContext{})
	assert.False(t, s.Done())
	step, ok := s.CurrentStep()
	assert.True(t, ok)
	assert.Equal(t, "a", step.Selector)

	s.StepIdx = 1
	assert.True(t, s.Done())
	_, ok = s.CurrentStep()
	assert.False(t, ok)
}

func TestHigherPriorityOrdersBlockedAboveFailAbovePassAbovePartial(t *testing.T) {
	assert.True(t, HigherPriority(VerdictBlocked, VerdictFail))
	assert.True(t, HigherPriority(VerdictFail, VerdictPass))
	assert.True(t, HigherPriority(VerdictPass, VerdictPartial))
	assert.False(t, HigherPriority(VerdictPartial, VerdictPass))
}
