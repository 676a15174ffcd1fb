package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testrunner/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "testrunner.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesSchemaAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "testrunner.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
}

func TestSelectorCacheWarmRoundTrip(t *testing.T) {
	s := openTestStore(t)
	warm := s.WarmCache()
	ctx := context.Background()

	_, ok, err := warm.Get(ctx, "missing-key")
	require.NoError(t, err)
	assert.False(t, ok)

	entry := model.CacheEntry{
		Selector:       `[aria-label="Submit"]`,
		Strategy:       "tier1_aria_label",
		Confidence:     0.95,
		Stable:         true,
		DOMFingerprint: "abc123",
		DOMSkeleton:    "button.btn|div.form",
		FailStreak:     0,
		HitCount:       1,
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
		LastSeenAt:     time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, warm.Set(ctx, "key1", entry))

	got, ok, err := warm.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, entry.Selector, got.Selector)
	assert.Equal(t, entry.Strategy, got.Strategy)
	assert.Equal(t, entry.Confidence, got.Confidence)
	assert.True(t, got.Stable)
	assert.Equal(t, entry.DOMSkeleton, got.DOMSkeleton)

	entry.HitCount = 2
	entry.FailStreak = 1
	require.NoError(t, warm.Set(ctx, "key1", entry))
	got, ok, err = warm.Get(ctx, "key1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.HitCount)
	assert.Equal(t, 1, got.FailStreak)

	require.NoError(t, warm.Delete(ctx, "key1"))
	_, ok, err = warm.Get(ctx, "key1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHealHistoryBestStrategiesOrdersBySuccessRateThenRecency(t *testing.T) {
	s := openTestStore(t)
	hh := s.HealHistory()
	ctx := context.Background()

	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	records := []model.HealRecord{
		{URLPattern: "/login", Element: "submit", Strategy: "ordinal", Outcome: "fail", LatencyMs: 10, HealRound: 1, CreatedAt: base},
		{URLPattern: "/login", Element: "submit", Strategy: "ordinal", Outcome: "success", LatencyMs: 10, HealRound: 1, CreatedAt: base.Add(time.Minute)},
		{URLPattern: "/login", Element: "submit", Strategy: "tier3_name", Outcome: "success", LatencyMs: 10, HealRound: 1, CreatedAt: base.Add(2 * time.Minute)},
		{URLPattern: "/login", Element: "submit", Strategy: "tier3_name", Outcome: "success", LatencyMs: 10, HealRound: 1, CreatedAt: base.Add(3 * time.Minute)},
	}
	for _, r := range records {
		require.NoError(t, hh.Record(ctx, r))
	}

	ranks, err := hh.BestStrategies(ctx, "/login", "submit", 5)
	require.NoError(t, err)
	require.Len(t, ranks, 2)
	assert.Equal(t, "tier3_name", ranks[0].Strategy)
	assert.Equal(t, 1.0, ranks[0].SuccessRate)
	assert.Equal(t, "ordinal", ranks[1].Strategy)
	assert.Equal(t, 0.5, ranks[1].SuccessRate)

	rate, err := hh.SuccessRate(ctx, "/login", "submit", "ordinal")
	require.NoError(t, err)
	assert.Equal(t, 0.5, rate)

	rate, err = hh.SuccessRate(ctx, "/login", "submit", "never_tried")
	require.NoError(t, err)
	assert.Equal(t, 0.0, rate)
}

func TestRunStoreSaveThenGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	rs := s.RunStore()
	ctx := context.Background()

	started := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	rec := model.RunRecord{
		ReqID:         "req-1",
		URL:           "https://example.com/login",
		Verdict:       model.VerdictPass,
		StepsTotal:    2,
		StepsExecuted: 2,
		HealRounds:    1,
		StartedAt:     started,
		EndedAt:       started.Add(5 * time.Second),
		RCAClass:      "",
		RCADetail:     "",
		Steps: []model.StepRecord{
			{Idx: 0, Selector: `[aria-label="Email"]`, Strategy: "tier1_aria_label", Action: "fill", Value: "a@b.com", LatencyMs: 100, HealRound: 0, Status: "ok"},
			{Idx: 1, Selector: `[aria-label="Submit"]`, Strategy: "tier1_aria_label", Action: "click", Value: "", LatencyMs: 50, HealRound: 1, Status: "ok"},
		},
		HealEvents: []model.HealEvent{
			{StepIdx: 1, Round: 1, Phase: model.HealPhaseReprobe, Strategy: "tier3_name", Outcome: "success", LatencyMs: 40, DiscoveryNone: false},
		},
		Artifacts: []string{"screenshots/req-1-step1.png", "dom/req-1-step1.html"},
	}

	require.NoError(t, rs.Save(ctx, rec))

	got, ok, err := rs.Get(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.URL, got.URL)
	assert.Equal(t, rec.Verdict, got.Verdict)
	assert.Equal(t, rec.StepsTotal, got.StepsTotal)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, rec.Steps[0].Selector, got.Steps[0].Selector)
	assert.Equal(t, rec.Steps[1].Action, got.Steps[1].Action)
	require.Len(t, got.HealEvents, 1)
	assert.Equal(t, model.HealPhaseReprobe, got.HealEvents[0].Phase)
	require.Len(t, got.Artifacts, 2)
	assert.ElementsMatch(t, rec.Artifacts, got.Artifacts)

	_, ok, err = rs.Get(ctx, "missing-req")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRunStoreSaveReplacesPriorRowsForSameReqID(t *testing.T) {
	s := openTestStore(t)
	rs := s.RunStore()
	ctx := context.Background()

	started := time.Now().UTC().Truncate(time.Second)
	first := model.RunRecord{
		ReqID: "req-2", URL: "https://example.com", Verdict: model.VerdictFail,
		StepsTotal: 1, StepsExecuted: 1, StartedAt: started, EndedAt: started,
		Steps: []model.StepRecord{{Idx: 0, Selector: "sel", Action: "click", Status: "fail"}},
	}
	require.NoError(t, rs.Save(ctx, first))

	second := first
	second.Verdict = model.VerdictPass
	second.Steps = []model.StepRecord{
		{Idx: 0, Selector: "sel", Action: "click", Status: "ok"},
		{Idx: 1, Selector: "sel2", Action: "fill", Status: "ok"},
	}
	require.NoError(t, rs.Save(ctx, second))

	got, ok, err := rs.Get(ctx, "req-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.VerdictPass, got.Verdict)
	assert.Len(t, got.Steps, 2)
}

func TestMigrationsSkipWhenColumnAlreadyPresent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.runMigrations())
	assert.True(t, columnExists(s.db, "selector_cache", "fail_streak"))
}
