// Package engine is the top-level facade the CLI drives: it loads a
// plan file, compiles it against a dataset/CLI-override/default variable
// scope, wires every subsystem together, and runs (or resumes) it to a
// verdict: a "load input, wire subsystems, run, report" shape,
// held in one reusable package rather than spread across multiple
// command-handler files, since this module has a single command
// surface rather than a multi-verb CLI.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"testrunner/internal/adapter"
	"testrunner/internal/appadapter"
	"testrunner/internal/cache"
	"testrunner/internal/config"
	"testrunner/internal/discovery"
	"testrunner/internal/heal"
	"testrunner/internal/model"
	"testrunner/internal/orchestrator"
	"testrunner/internal/store"
	"testrunner/internal/telemetry"
	"testrunner/internal/template"
)

// StepSpec is one plan step as authored in a plan file.
type StepSpec struct {
	Element     string `json:"element"`
	Region      string `json:"region,omitempty"`
	Action      string `json:"action"`
	Value       string `json:"value,omitempty"`
	Within      string `json:"within,omitempty"`
	Ordinal     *int   `json:"ordinal,omitempty"`
	ElementType string `json:"element_type,omitempty"`
	Expected    string `json:"expected,omitempty"`
}

// PlanFile is the on-disk JSON shape a plan file is authored in.
type PlanFile struct {
	URL      string            `json:"url"`
	Steps    []StepSpec        `json:"steps"`
	Dataset  []model.Dataset   `json:"dataset,omitempty"`
	Defaults map[string]string `json:"defaults,omitempty"`
}

// LoadPlan reads and decodes a plan file.
func LoadPlan(path string) (PlanFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PlanFile{}, fmt.Errorf("read plan %s: %w", path, err)
	}
	var pf PlanFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return PlanFile{}, fmt.Errorf("parse plan %s: %w", path, err)
	}
	return pf, nil
}

func (pf PlanFile) intents() []model.Intent {
	intents := make([]model.Intent, len(pf.Steps))
	for i, s := range pf.Steps {
		intents[i] = model.Intent{
			Element:     s.Element,
			Region:      s.Region,
			Action:      model.Action(s.Action),
			Value:       s.Value,
			Within:      s.Within,
			Ordinal:     s.Ordinal,
			ElementType: s.ElementType,
			Expected:    s.Expected,
		}
	}
	return intents
}

// Runtime bundles the long-lived collaborators a CLI invocation wires once
// and reuses across dataset rows.
type Runtime struct {
	Config    *config.Config
	Telemetry *telemetry.Shim
	Store     *store.Store
	Browser   *adapter.Browser
	Orch      *orchestrator.Orchestrator
}

// Open wires the full subsystem graph from cfg: telemetry, sqlite store,
// dual-tier cache, discovery ladder with the default app-adapter registry,
// heal engine, browser, and orchestrator.
func Open(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	tel, err := telemetry.New(cfg.Verbose)
	if err != nil {
		return nil, fmt.Errorf("build telemetry: %w", err)
	}

	s, err := store.Open(cfg.Store.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var hot cache.HotTier = cache.NewMemoryHot()
	if cfg.Store.RedisAddr != "" {
		if redisHot, err := cache.NewRedisHot(ctx, cfg.Store.RedisAddr, "testrunner"); err == nil {
			hot = redisHot
		} else {
			tel.Warn("redis hot tier unavailable, falling back to memory", err)
		}
	}
	c := cache.New(hot, s.WarmCache(), time.Duration(cfg.CacheTTLHotSeconds)*time.Second, cfg.DriftThreshold, tel)

	registry := appadapter.Default()
	ladder := discovery.New(tel, registry.Adapters()...)
	healer := heal.New(ladder, c, s.HealHistory(), tel)

	b := adapter.New(cfg.Browser)
	if err := b.Start(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	orch := orchestrator.New(ladder, c, healer, registry, cfg, tel, s.Checkpoints(), nil)

	return &Runtime{Config: cfg, Telemetry: tel, Store: s, Browser: b, Orch: orch}, nil
}

// Close releases the browser and store, flushing telemetry.
func (r *Runtime) Close(ctx context.Context) {
	if r.Browser != nil {
		_ = r.Browser.Shutdown(ctx)
	}
	if r.Store != nil {
		_ = r.Store.Close()
	}
	if r.Telemetry != nil {
		r.Telemetry.Sync()
	}
}

// Run compiles pf against cliOverrides and runs every dataset row (or a
// single row with no dataset) to a RunRecord each, opening one fresh page
// per row so dataset iterations never share session state (spec's
// session-scope-forking supplement). Rows run concurrently up to
// cfg.MaxParallel browser contexts at once (MAX_PARALLEL), via an
// errgroup-bounded worker-pool dispatch.
func (r *Runtime) Run(ctx context.Context, pf PlanFile, cliOverrides map[string]string, reqIDPrefix string) ([]model.RunRecord, error) {
	rows := template.Rows(pf.Dataset, cliOverrides, pf.Defaults)
	results := make([]model.RunRecord, len(rows))

	limit := r.Config.MaxParallel
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, rowCtx := range rows {
		i, rowCtx := i, rowCtx
		g.Go(func() error {
			compiled, err := template.CompilePlan(pf.intents(), rowCtx)
			if err != nil {
				return fmt.Errorf("compile plan row %d: %w", i, err)
			}

			page, err := r.Browser.NewPage(gctx, pf.URL)
			if err != nil {
				return fmt.Errorf("open page row %d: %w", i, err)
			}
			defer page.Close()

			reqID := fmt.Sprintf("%s-%d", reqIDPrefix, i)
			rec, err := r.Orch.Run(gctx, page, reqID, compiled, rowCtx.Dataset)
			if err != nil {
				return fmt.Errorf("run row %d: %w", i, err)
			}

			if err := r.Store.RunStore().Save(gctx, rec); err != nil {
				r.Telemetry.Warn("save run record", err)
			}
			results[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Resume continues a previously checkpointed run by req ID, opening a
// fresh page navigated back to the checkpoint's URL.
func (r *Runtime) Resume(ctx context.Context, reqID string) (model.RunRecord, error) {
	locked, err := r.Store.Checkpoints().AcquireLock(ctx, reqID)
	if err != nil {
		return model.RunRecord{}, fmt.Errorf("resume %s: acquire lock: %w", reqID, err)
	}
	if !locked {
		return model.RunRecord{}, fmt.Errorf("resume %s: already in progress or no checkpoint exists", reqID)
	}
	defer r.Store.Checkpoints().ReleaseLock(ctx, reqID)

	checkpoint, ok, err := r.Store.Checkpoints().Load(ctx, reqID)
	if err != nil {
		return model.RunRecord{}, fmt.Errorf("resume %s: load checkpoint: %w", reqID, err)
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("resume %s: no checkpoint found", reqID)
	}

	page, err := r.Browser.NewPage(ctx, checkpoint.Context.URL)
	if err != nil {
		return model.RunRecord{}, fmt.Errorf("resume %s: open page: %w", reqID, err)
	}
	defer page.Close()

	rec, err := r.Orch.Resume(ctx, page, reqID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if err := r.Store.RunStore().Save(ctx, rec); err != nil {
		r.Telemetry.Warn("save resumed run record", err)
	}
	return rec, nil
}

// ExitCode maps a verdict to the process exit code: pass=0,
// blocked=2, fail/partial=1.
func ExitCode(v model.Verdict) int {
	switch v {
	case model.VerdictPass:
		return 0
	case model.VerdictBlocked:
		return 2
	default:
		return 1
	}
}
