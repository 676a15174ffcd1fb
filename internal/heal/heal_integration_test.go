//go:build integration

package heal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"testrunner/internal/adapter"
	"testrunner/internal/appadapter"
	"testrunner/internal/cache"
	"testrunner/internal/config"
	"testrunner/internal/discovery"
	"testrunner/internal/model"
	"testrunner/internal/store"
	"testrunner/internal/telemetry"
)

func TestEngineRoundHealsStaleSelectorViaReprobe(t *testing.T) {
	cfg := config.DefaultConfig()
	tel, err := telemetry.New(false)
	require.NoError(t, err)

	b := adapter.New(cfg.Browser)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Shutdown(ctx)

	page, err := b.NewPage(ctx, `data:text/html,<html><body><input name="Amount" aria-label="Amount"></body></html>`)
	require.NoError(t, err)
	defer page.Close()

	s, err := store.Open(t.TempDir() + "/heal.db")
	require.NoError(t, err)
	defer s.Close()

	c := cache.New(cache.NewMemoryHot(), s.WarmCache(), time.Hour, 0.35, tel)
	ladder := discovery.New(tel, appadapter.Default().Adapters()...)
	engine := New(ladder, c, s.HealHistory(), tel)

	plan := []model.PlanStep{{
		Intent:   model.Intent{Element: "Amount", Action: model.ActionFill},
		Selector: "#stale-id-that-does-not-exist",
	}}
	state := model.NewRunState("r1", plan, model.RunContext{URL: page.CurrentURL()})
	state.Failure = model.FailureTimeout

	state = engine.Round(ctx, page, state, cfg)

	require.NotEmpty(t, state.HealEvents)
	require.Equal(t, `[aria-label="Amount"]`, state.Plan[0].Selector)
	require.Equal(t, model.FailureNone, state.Failure)
	require.Equal(t, 1, state.HealRound)
}

func TestEngineRoundForcesExhaustionOnRepeatedDiscoveryNone(t *testing.T) {
	cfg := config.DefaultConfig()
	tel, err := telemetry.New(false)
	require.NoError(t, err)

	b := adapter.New(cfg.Browser)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Shutdown(ctx)

	page, err := b.NewPage(ctx, `data:text/html,<html><body></body></html>`)
	require.NoError(t, err)
	defer page.Close()

	s, err := store.Open(t.TempDir() + "/heal2.db")
	require.NoError(t, err)
	defer s.Close()

	c := cache.New(cache.NewMemoryHot(), s.WarmCache(), time.Hour, 0.35, tel)
	ladder := discovery.New(tel, appadapter.Default().Adapters()...)
	engine := New(ladder, c, s.HealHistory(), tel)

	plan := []model.PlanStep{{Intent: model.Intent{Element: "Nonexistent Field", Action: model.ActionFill}}}
	state := model.NewRunState("r1", plan, model.RunContext{URL: page.CurrentURL()})
	state.Failure = model.FailureTimeout

	state = engine.Round(ctx, page, state, cfg)
	require.Equal(t, 1, state.HealRound)
	state = engine.Round(ctx, page, state, cfg)
	require.Equal(t, cfg.MaxHealRounds, state.HealRound, "two discovery_none rounds must force exhaustion")
}
