package heal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"testrunner/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPriorForReturnsMatchingStrategyRate(t *testing.T) {
	ranked := []store.StrategyRank{
		{Strategy: "name", SuccessRate: 0.8},
		{Strategy: "aria-label", SuccessRate: 0.5},
	}
	assert.Equal(t, 0.8, priorFor(ranked, "name"))
	assert.Equal(t, 0.0, priorFor(ranked, "missing"))
}
