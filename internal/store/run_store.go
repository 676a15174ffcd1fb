package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"testrunner/internal/model"
)

// RunStore persists completed run summaries, their steps, heal events, and
// artifact paths. Artifacts are owned by the Run Store.
type RunStore struct {
	store *Store
}

// RunStore returns the run-persistence view of this store.
func (s *Store) RunStore() *RunStore {
	return &RunStore{store: s}
}

// Save persists a full RunRecord, replacing any prior rows for the same ReqID.
func (r *RunStore) Save(ctx context.Context, rec model.RunRecord) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("run store begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"runs", "run_steps", "run_heal_events", "run_artifacts"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE req_id = ?`, rec.ReqID); err != nil {
			return fmt.Errorf("run store clear %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (req_id, url, verdict, steps_total, steps_executed, heal_rounds,
			started_at, ended_at, rca_class, rca_detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ReqID, rec.URL, rec.Verdict, rec.StepsTotal, rec.StepsExecuted, rec.HealRounds,
		rec.StartedAt, rec.EndedAt, rec.RCAClass, rec.RCADetail); err != nil {
		return fmt.Errorf("run store insert run: %w", err)
	}

	for _, step := range rec.Steps {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_steps (req_id, idx, selector, strategy, action, value, latency_ms, heal_round, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ReqID, step.Idx, step.Selector, step.Strategy, step.Action, step.Value,
			step.LatencyMs, step.HealRound, step.Status); err != nil {
			return fmt.Errorf("run store insert step: %w", err)
		}
	}

	for _, ev := range rec.HealEvents {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_heal_events (req_id, step_idx, round, phase, strategy, outcome, latency_ms, discovery_none)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ReqID, ev.StepIdx, ev.Round, ev.Phase, ev.Strategy, ev.Outcome, ev.LatencyMs,
			boolToInt(ev.DiscoveryNone)); err != nil {
			return fmt.Errorf("run store insert heal event: %w", err)
		}
	}

	for _, path := range rec.Artifacts {
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_artifacts (req_id, path) VALUES (?, ?)`, rec.ReqID, path); err != nil {
			return fmt.Errorf("run store insert artifact: %w", err)
		}
	}

	return tx.Commit()
}

// Get loads a previously saved run by request ID, with its steps, heal
// events, and artifact paths.
func (r *RunStore) Get(ctx context.Context, reqID string) (model.RunRecord, bool, error) {
	var rec model.RunRecord
	row := r.store.db.QueryRowContext(ctx, `
		SELECT req_id, url, verdict, steps_total, steps_executed, heal_rounds,
		       started_at, ended_at, rca_class, rca_detail
		FROM runs WHERE req_id = ?`, reqID)
	err := row.Scan(&rec.ReqID, &rec.URL, &rec.Verdict, &rec.StepsTotal, &rec.StepsExecuted,
		&rec.HealRounds, &rec.StartedAt, &rec.EndedAt, &rec.RCAClass, &rec.RCADetail)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunRecord{}, false, nil
	}
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("run store get: %w", err)
	}

	steps, err := r.loadSteps(ctx, reqID)
	if err != nil {
		return model.RunRecord{}, false, err
	}
	rec.Steps = steps

	events, err := r.loadHealEvents(ctx, reqID)
	if err != nil {
		return model.RunRecord{}, false, err
	}
	rec.HealEvents = events

	artifacts, err := r.loadArtifacts(ctx, reqID)
	if err != nil {
		return model.RunRecord{}, false, err
	}
	rec.Artifacts = artifacts

	return rec, true, nil
}

func (r *RunStore) loadSteps(ctx context.Context, reqID string) ([]model.StepRecord, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT idx, selector, strategy, action, value, latency_ms, heal_round, status
		FROM run_steps WHERE req_id = ? ORDER BY idx`, reqID)
	if err != nil {
		return nil, fmt.Errorf("run store load steps: %w", err)
	}
	defer rows.Close()
	var steps []model.StepRecord
	for rows.Next() {
		var s model.StepRecord
		if err := rows.Scan(&s.Idx, &s.Selector, &s.Strategy, &s.Action, &s.Value, &s.LatencyMs, &s.HealRound, &s.Status); err != nil {
			return nil, fmt.Errorf("run store scan step: %w", err)
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (r *RunStore) loadHealEvents(ctx context.Context, reqID string) ([]model.HealEvent, error) {
	rows, err := r.store.db.QueryContext(ctx, `
		SELECT step_idx, round, phase, strategy, outcome, latency_ms, discovery_none
		FROM run_heal_events WHERE req_id = ? ORDER BY id`, reqID)
	if err != nil {
		return nil, fmt.Errorf("run store load heal events: %w", err)
	}
	defer rows.Close()
	var events []model.HealEvent
	for rows.Next() {
		var e model.HealEvent
		var discoveryNone int
		if err := rows.Scan(&e.StepIdx, &e.Round, &e.Phase, &e.Strategy, &e.Outcome, &e.LatencyMs, &discoveryNone); err != nil {
			return nil, fmt.Errorf("run store scan heal event: %w", err)
		}
		e.DiscoveryNone = discoveryNone != 0
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *RunStore) loadArtifacts(ctx context.Context, reqID string) ([]string, error) {
	rows, err := r.store.db.QueryContext(ctx, `SELECT path FROM run_artifacts WHERE req_id = ? ORDER BY id`, reqID)
	if err != nil {
		return nil, fmt.Errorf("run store load artifacts: %w", err)
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("run store scan artifact: %w", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
