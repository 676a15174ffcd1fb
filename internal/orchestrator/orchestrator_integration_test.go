//go:build integration

package orchestrator

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
	"testrunner/internal/heal"
	"testrunner/internal/model"
	"testrunner/internal/store"
	"testrunner/internal/telemetry"
)

func newTestOrchestrator(t *testing.T, dbPath string) (*Orchestrator, *config.Config) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Store.ArtifactDir = t.TempDir()
	tel, err := telemetry.New(false)
	require.NoError(t, err)

	s, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	c := cache.New(cache.NewMemoryHot(), s.WarmCache(), time.Hour, 0.35, tel)
	reg := appadapter.Default()
	ladder := discovery.New(tel, reg.Adapters()...)
	healer := heal.New(ladder, c, s.HealHistory(), tel)

	o := New(ladder, c, healer, reg, cfg, tel, s.Checkpoints(), nil)
	return o, cfg
}

func TestRunPassesAFullyResolvablePlan(t *testing.T) {
	o, cfg := newTestOrchestrator(t, t.TempDir()+"/orch1.db")

	b := adapter.New(cfg.Browser)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Shutdown(ctx)

	page, err := b.NewPage(ctx, `data:text/html,<html><body>
		<input name="Amount" aria-label="Amount">
		<button aria-label="Submit">Submit</button>
	</body></html>`)
	require.NoError(t, err)
	defer page.Close()

	intents := []model.Intent{
		{Element: "Amount", Action: model.ActionFill, Value: "42"},
		{Element: "Submit", Action: model.ActionClick},
	}

	rec, err := o.Run(ctx, page, "run-pass-1", intents, nil)
	require.NoError(t, err)
	require.Equal(t, model.VerdictPass, rec.Verdict)
	require.Equal(t, 2, rec.StepsExecuted)
}

func TestRunReportsBlockedVerdictForChallengePage(t *testing.T) {
	o, cfg := newTestOrchestrator(t, t.TempDir()+"/orch2.db")

	b := adapter.New(cfg.Browser)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	require.NoError(t, b.Start(ctx))
	defer b.Shutdown(ctx)

	page, err := b.NewPage(ctx, `data:text/html,<html><body><h1>Access Denied</h1><p>unusual traffic detected</p></body></html>`)
	require.NoError(t, err)
	defer page.Close()

	intents := []model.Intent{{Element: "Amount", Action: model.ActionFill, Value: "42"}}

	rec, err := o.Run(ctx, page, "run-blocked-1", intents, nil)
	require.NoError(t, err)
	require.Equal(t, model.VerdictBlocked, rec.Verdict)
	require.Equal(t, model.RCABlocked, rec.RCAClass)
	require.NotEmpty(t, rec.Artifacts, "blocked run must capture forensics")
}
