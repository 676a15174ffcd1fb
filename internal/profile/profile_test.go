package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testrunner/internal/config"
)

type fakeSampler struct {
	rate float64
	err  error
	url  string
}

func (f fakeSampler) MutationsPerSecond(context.Context, time.Duration) (float64, error) {
	return f.rate, f.err
}
func (f fakeSampler) CurrentURL() string { return f.url }

func TestFromRateThreshold(t *testing.T) {
	assert.Equal(t, Static, FromRate(9.99))
	assert.Equal(t, Dynamic, FromRate(10))
	assert.Equal(t, Dynamic, FromRate(50))
}

func TestDetectHonorsConfigOverride(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProfileDefault = config.ProfileStatic
	got, err := Detect(context.Background(), fakeSampler{rate: 999, url: "https://x"}, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, Static, got)

	cfg.ProfileDefault = config.ProfileDynamic
	got, err = Detect(context.Background(), fakeSampler{rate: 0, url: "https://x"}, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, Dynamic, got)
}

func TestDetectAutoSamplesMutationRate(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ProfileDefault = config.ProfileAuto
	got, err := Detect(context.Background(), fakeSampler{rate: 15, url: "https://x"}, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, Dynamic, got)

	got, err = Detect(context.Background(), fakeSampler{rate: 1, url: "https://x"}, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, Static, got)
}

func TestDetectIsDeterministicForSameRate(t *testing.T) {
	cfg := config.DefaultConfig()
	s := fakeSampler{rate: 12, url: "https://x"}
	a, err := Detect(context.Background(), s, cfg, nil)
	require.NoError(t, err)
	b, err := Detect(context.Background(), s, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
