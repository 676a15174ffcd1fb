// Package orchestrator implements the run state machine: a
// bounded graph of planner, discovery, generator, executor, healer, and
// verdict nodes, checkpointed after every transition so a run survives a
// process restart. Grounded in the heal engine's composition style — the
// orchestrator wires together discovery, gate, cache, heal, and readiness
// rather than re-deriving any of their logic.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"testrunner/internal/adapter"
	"testrunner/internal/appadapter"
	"testrunner/internal/cache"
	"testrunner/internal/config"
	"testrunner/internal/discovery"
	"testrunner/internal/heal"
	"testrunner/internal/model"
	"testrunner/internal/profile"
	"testrunner/internal/readiness"
	"testrunner/internal/telemetry"
)

// nodeName identifies one vertex in the run graph.
type nodeName string

const (
	nodePlanner   nodeName = "planner"
	nodeDiscovery nodeName = "discovery"
	nodeGenerator nodeName = "generator"
	nodeExecutor  nodeName = "executor"
	nodeHealer    nodeName = "healer"
	nodeVerdict   nodeName = "verdict"
)

// maxNodeTransitions bounds total graph work per run: a recursion cap,
// e.g. 100 node transitions per run, aborts with a fail verdict if
// exceeded — treat as an escaped cycle. This repo resolves a wording
// conflict between two worked examples (one lists the cap under
// "partial") in favor of the explicit operational rule; see DESIGN.md.
const maxNodeTransitions = 100

// CheckpointStore is the persistence the orchestrator writes RunState to
// after every node transition (Resume below reloads it).
// *store.CheckpointStore satisfies this by duck typing.
type CheckpointStore interface {
	Save(ctx context.Context, state model.RunState) error
	Load(ctx context.Context, reqID string) (model.RunState, bool, error)
}

// Orchestrator wires the discovery ladder, gate, cache, heal engine, and
// readiness gate into the bounded run graph.
type Orchestrator struct {
	Ladder      *discovery.Ladder
	Cache       *cache.Cache
	Healer      *heal.Engine
	Adapters    *appadapter.Registry
	Config      *config.Config
	Telemetry   *telemetry.Shim
	Checkpoints CheckpointStore
	ReadyHook   readiness.AppReadyHook
}

// New builds an Orchestrator from its collaborators.
func New(ladder *discovery.Ladder, c *cache.Cache, healer *heal.Engine, adapters *appadapter.Registry,
	cfg *config.Config, tel *telemetry.Shim, checkpoints CheckpointStore, hook readiness.AppReadyHook) *Orchestrator {
	return &Orchestrator{
		Ladder: ladder, Cache: c, Healer: healer, Adapters: adapters,
		Config: cfg, Telemetry: tel, Checkpoints: checkpoints, ReadyHook: hook,
	}
}

// runCtx carries the per-Run fields the node functions need but that do not
// belong on the serializable model.RunState (profile classification,
// accumulated forensic artifact paths, the recursion-cap flag feeding the
// verdict computation).
type runCtx struct {
	profile         profile.Profile
	artifacts       []string
	blockedAt       bool
	recursionCapHit bool
}

// Run compiles intents into a fresh plan and drives it through the run
// graph to a verdict.
func (o *Orchestrator) Run(ctx context.Context, page *adapter.Page, reqID string, intents []model.Intent, dataset model.Dataset) (model.RunRecord, error) {
	plan := make([]model.PlanStep, len(intents))
	for i, in := range intents {
		plan[i] = model.PlanStep{Intent: in}
	}
	state := model.NewRunState(reqID, plan, model.RunContext{
		URL:          page.CurrentURL(),
		Dataset:      dataset,
		SessionScope: page.SessionScope(ctx),
	})
	return o.drive(ctx, page, state, nodePlanner, time.Now())
}

// Resume loads the last checkpoint for reqID and continues the run graph
// from the executor node (discovery/generator already ran before the
// checkpoint that captured this state). When PersistentProfiles is off, the
// checkpointed plan is replayed from step 0 with an empty step history and
// no heal events. The checkpoint's advisory lock is taken by the caller
// (engine.Runtime.Resume), not here.
func (o *Orchestrator) Resume(ctx context.Context, page *adapter.Page, reqID string) (model.RunRecord, error) {
	if o.Checkpoints == nil {
		return model.RunRecord{}, fmt.Errorf("resume %s: no checkpoint store configured", reqID)
	}
	state, ok, err := o.Checkpoints.Load(ctx, reqID)
	if err != nil {
		return model.RunRecord{}, fmt.Errorf("resume %s: %w", reqID, err)
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("resume %s: no checkpoint found", reqID)
	}
	if !o.Config.PersistentProfiles {
		runContext := state.Context
		runContext.StepHistory = nil
		state = model.NewRunState(state.ReqID, state.Plan, runContext)
	}
	return o.drive(ctx, page, state, nodeExecutor, time.Now())
}

// drive runs the bounded node loop starting at start, checkpointing after
// every transition, and returns the assembled RunRecord once a verdict is
// reached or the recursion cap trips.
func (o *Orchestrator) drive(ctx context.Context, page *adapter.Page, state model.RunState, start nodeName, startedAt time.Time) (model.RunRecord, error) {
	rc := &runCtx{}
	if prof, err := profile.Detect(ctx, page, o.Config, o.Telemetry); err == nil {
		rc.profile = prof
	} else {
		rc.profile = profile.Static
		o.Telemetry.Warn("profile detect", err)
	}

	node := start
	transitions := 0
	for node != nodeVerdict {
		transitions++
		if transitions > maxNodeTransitions {
			rc.recursionCapHit = true
			node = nodeVerdict
			break
		}

		var next nodeName
		switch node {
		case nodePlanner:
			next = nodeDiscovery
		case nodeDiscovery:
			state = o.runDiscovery(ctx, page, state)
			next = nodeGenerator
		case nodeGenerator:
			state, rc.artifacts = o.runGenerator(state, rc.artifacts)
			next = nodeExecutor
		case nodeExecutor:
			var artifacts []string
			state, next, artifacts = o.runExecutor(ctx, page, state, rc.profile)
			rc.artifacts = append(rc.artifacts, artifacts...)
			if next == nodeVerdict && state.Failure == model.FailureBlocked {
				rc.blockedAt = true
			}
		case nodeHealer:
			state = o.Healer.Round(ctx, page, state, o.Config)
			next = nodeExecutor
		default:
			next = nodeVerdict
		}

		if o.Checkpoints != nil {
			if err := o.Checkpoints.Save(ctx, state); err != nil {
				o.Telemetry.Warn("checkpoint save", err)
			}
		}
		node = next
	}

	rootCause := classifyRCA(state, rc.blockedAt, rc.recursionCapHit)
	state.Verdict = computeVerdict(state, rc.blockedAt, rc.recursionCapHit)
	o.Telemetry.Result(string(state.Verdict), state.StepIdx, countHealRounds(state))

	rec := model.RunRecord{
		ReqID:         state.ReqID,
		URL:           state.Context.URL,
		Verdict:       state.Verdict,
		StepsTotal:    len(state.Plan),
		StepsExecuted: state.StepIdx,
		HealRounds:    countHealRounds(state),
		StartedAt:     startedAt,
		EndedAt:       time.Now(),
		RCAClass:      rootCause.Class,
		RCADetail:     rootCause.Evidence,
		Steps:         state.Context.StepHistory,
		HealEvents:    state.HealEvents,
		Artifacts:     rc.artifacts,
	}
	return rec, nil
}

// countHealRounds counts distinct (step_idx, round) heal attempts recorded,
// used for the run summary's heal_rounds tally.
func countHealRounds(state model.RunState) int {
	seen := map[[2]int]bool{}
	for _, ev := range state.HealEvents {
		seen[[2]int{ev.StepIdx, ev.Round}] = true
	}
	return len(seen)
}
