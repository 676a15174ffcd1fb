package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"testrunner/internal/model"
)

func TestThresholdsForRoundRelaxLinearly(t *testing.T) {
	t0 := ThresholdsForRound(0)
	assert.Equal(t, 2000, t0.TimeoutMs)
	assert.Equal(t, 2.0, t0.ToleragePx)
	assert.Equal(t, 3, t0.Samples)

	t2 := ThresholdsForRound(2)
	assert.Equal(t, 4000, t2.TimeoutMs)
	assert.Equal(t, 3.0, t2.ToleragePx)
	assert.Equal(t, 5, t2.Samples)
}

func TestResultPassRequiresAllFive(t *testing.T) {
	r := Result{Unique: true, Visible: true, Enabled: true, StableBBox: true, Scoped: true}
	assert.True(t, r.Pass())

	r.Enabled = false
	assert.False(t, r.Pass())
}

func TestResultFailureMapsFirstFailingCheck(t *testing.T) {
	base := Result{Unique: true, Visible: true, Enabled: true, StableBBox: true, Scoped: true}

	notUnique := base
	notUnique.Unique = false
	assert.Equal(t, model.FailureNotUnique, notUnique.Failure())

	notVisible := base
	notVisible.Visible = false
	assert.Equal(t, model.FailureNotVisible, notVisible.Failure())

	disabled := base
	disabled.Enabled = false
	assert.Equal(t, model.FailureDisabled, disabled.Failure())

	unstable := base
	unstable.StableBBox = false
	assert.Equal(t, model.FailureUnstable, unstable.Failure())

	assert.Equal(t, model.FailureNone, base.Failure())
}
