package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"testrunner/internal/model"
)

// CheckpointStore persists RunState after every orchestrator node
// transition, keyed by req_id, so a run can resume from its last
// checkpoint if the process restarts.
type CheckpointStore struct {
	store *Store
}

// Checkpoints returns the checkpoint view of this store.
func (s *Store) Checkpoints() *CheckpointStore {
	return &CheckpointStore{store: s}
}

// Save serializes state to JSON and upserts it for req_id.
func (c *CheckpointStore) Save(ctx context.Context, state model.RunState) error {
	blob, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("checkpoint marshal: %w", err)
	}
	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO checkpoints (req_id, state_json, locked, updated_at)
		VALUES (?, ?, 0, CURRENT_TIMESTAMP)
		ON CONFLICT(req_id) DO UPDATE SET state_json = excluded.state_json, updated_at = CURRENT_TIMESTAMP`,
		state.ReqID, string(blob))
	if err != nil {
		return fmt.Errorf("checkpoint save: %w", err)
	}
	return nil
}

// Load deserializes the most recent checkpoint for reqID, if any.
func (c *CheckpointStore) Load(ctx context.Context, reqID string) (model.RunState, bool, error) {
	var blob string
	err := c.store.db.QueryRowContext(ctx, `SELECT state_json FROM checkpoints WHERE req_id = ?`, reqID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunState{}, false, nil
	}
	if err != nil {
		return model.RunState{}, false, fmt.Errorf("checkpoint load: %w", err)
	}
	var state model.RunState
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return model.RunState{}, false, fmt.Errorf("checkpoint unmarshal: %w", err)
	}
	return state, true, nil
}

// AcquireLock implements the advisory lock concurrent resume attempts must
// take on req_id: it atomically flips locked from 0 to 1 and
// reports whether this caller won the race. A req_id with no checkpoint
// row yet has nothing to resume, so acquisition is a no-op false.
func (c *CheckpointStore) AcquireLock(ctx context.Context, reqID string) (bool, error) {
	res, err := c.store.db.ExecContext(ctx, `UPDATE checkpoints SET locked = 1 WHERE req_id = ? AND locked = 0`, reqID)
	if err != nil {
		return false, fmt.Errorf("checkpoint acquire lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checkpoint acquire lock rows affected: %w", err)
	}
	return n > 0, nil
}

// ReleaseLock clears the advisory lock, allowing a future resume attempt.
func (c *CheckpointStore) ReleaseLock(ctx context.Context, reqID string) error {
	if _, err := c.store.db.ExecContext(ctx, `UPDATE checkpoints SET locked = 0 WHERE req_id = ?`, reqID); err != nil {
		return fmt.Errorf("checkpoint release lock: %w", err)
	}
	return nil
}
