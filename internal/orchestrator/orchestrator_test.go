package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"testrunner/internal/config"
	"testrunner/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestComputeVerdictPriority(t *testing.T) {
	done := model.NewRunState("r1", []model.PlanStep{{}}, model.RunContext{})
	done.StepIdx = 1
	done.Failure = model.FailureNone
	assert.Equal(t, model.VerdictPass, computeVerdict(done, false, false))

	blocked := done
	blocked.Failure = model.FailureBlocked
	assert.Equal(t, model.VerdictBlocked, computeVerdict(blocked, false, false))
	assert.Equal(t, model.VerdictBlocked, computeVerdict(done, true, false))

	capped := model.NewRunState("r1", []model.PlanStep{{}}, model.RunContext{})
	assert.Equal(t, model.VerdictFail, computeVerdict(capped, false, true))

	exhausted := model.NewRunState("r1", []model.PlanStep{{}, {}}, model.RunContext{})
	exhausted.Failure = model.FailureNotUnique
	assert.Equal(t, model.VerdictFail, computeVerdict(exhausted, false, false))
}

func TestClassifyRCAMapsFailureVariants(t *testing.T) {
	base := model.NewRunState("r1", []model.PlanStep{{Intent: model.Intent{Action: model.ActionFill}}}, model.RunContext{})

	notVisible := base
	notVisible.Failure = model.FailureNotVisible
	assert.Equal(t, model.RCAVisibilityIssue, classifyRCA(notVisible, false, false).Class)

	disabled := base
	disabled.Failure = model.FailureDisabled
	assert.Equal(t, model.RCAEnablementIssue, classifyRCA(disabled, false, false).Class)

	unstable := base
	unstable.Failure = model.FailureUnstable
	assert.Equal(t, model.RCATimingInstability, classifyRCA(unstable, false, false).Class)

	drift := base
	drift.Failure = model.FailureNotUnique
	assert.Equal(t, model.RCASelectorDrift, classifyRCA(drift, false, false).Class)

	assert.Equal(t, model.RCABlocked, classifyRCA(base, true, false).Class)
	assert.Equal(t, model.RCAEnvFault, classifyRCA(base, false, true).Class)

	assertStep := model.NewRunState("r1", []model.PlanStep{{Intent: model.Intent{Action: model.ActionAssertText}}}, model.RunContext{})
	assertStep.Failure = model.FailureTimeout
	assert.Equal(t, model.RCAAssertionMismatch, classifyRCA(assertStep, false, false).Class)

	selectStep := model.NewRunState("r1", []model.PlanStep{{Intent: model.Intent{Action: model.ActionSelect}}}, model.RunContext{})
	selectStep.Failure = model.FailureTimeout
	assert.Equal(t, model.RCADataIssue, classifyRCA(selectStep, false, false).Class)
}

func TestNextAfterFailureRoutesToHealerUntilExhausted(t *testing.T) {
	o := &Orchestrator{Config: &config.Config{MaxHealRounds: 2}}

	s := model.NewRunState("r1", []model.PlanStep{{}}, model.RunContext{})
	s.HealRound = 0
	assert.Equal(t, nodeHealer, o.nextAfterFailure(s))

	s.HealRound = 2
	assert.Equal(t, nodeVerdict, o.nextAfterFailure(s))
}

func TestCountHealRoundsCountsDistinctStepRoundPairs(t *testing.T) {
	s := model.NewRunState("r1", nil, model.RunContext{})
	s = s.WithHealEvent(model.HealEvent{StepIdx: 0, Round: 0, Phase: model.HealPhaseReveal})
	s = s.WithHealEvent(model.HealEvent{StepIdx: 0, Round: 0, Phase: model.HealPhaseReprobe})
	s = s.WithHealEvent(model.HealEvent{StepIdx: 0, Round: 1, Phase: model.HealPhaseReveal})
	assert.Equal(t, 2, countHealRounds(s))
}
