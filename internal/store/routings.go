package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
	"taskrouter/internal/ids"
)

// GetRoutingByTaskID loads the (at most one) routing record for task_id.
func (s *Store) GetRoutingByTaskID(ctx context.Context, taskID string) (domain.TaskRouting, error) {
	return s.scanRouting(s.db.QueryRowContext(ctx, routingSelect+` WHERE task_id = ?`, taskID))
}

// GetRouting loads a routing record by its own id.
func (s *Store) GetRouting(ctx context.Context, id string) (domain.TaskRouting, error) {
	return s.scanRouting(s.db.QueryRowContext(ctx, routingSelect+` WHERE id = ?`, id))
}

const routingSelect = `SELECT id, task_id, status, current_agent_index, iteration, any_agent_worked, locked_at, error_message, retry_count, created_at, updated_at FROM task_routings`

func (s *Store) scanRouting(row *sql.Row) (domain.TaskRouting, error) {
	var r domain.TaskRouting
	var anyWorked int
	if err := row.Scan(&r.ID, &r.TaskID, &r.Status, &r.CurrentAgentIndex, &r.Iteration, &anyWorked, &r.LockedAt, &r.ErrorMessage, &r.RetryCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.TaskRouting{}, apperr.NotFoundError("routing")
		}
		return domain.TaskRouting{}, fmt.Errorf("scan routing: %w", err)
	}
	r.AnyAgentWorked = anyWorked != 0
	return r, nil
}

// FindOrCreateRouting returns the task's existing routing record, or creates
// a fresh pending one if none exists (idempotent per task — spec §3/§4.4
// step 2).
func (s *Store) FindOrCreateRouting(ctx context.Context, taskID string) (domain.TaskRouting, error) {
	var result domain.TaskRouting
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, routingSelect+` WHERE task_id = ?`, taskID)
		r, err := s.scanRouting(row)
		if err == nil {
			result = r
			return nil
		}
		if !isNotFound(err) {
			return err
		}

		now := nowMillis()
		r = domain.TaskRouting{
			ID:                ids.New(),
			TaskID:            taskID,
			Status:            domain.RoutingPending,
			CurrentAgentIndex: 0,
			Iteration:         0,
			AnyAgentWorked:    false,
			RetryCount:        0,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO task_routings(id, task_id, status, current_agent_index, iteration, any_agent_worked, locked_at, error_message, retry_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, NULL, NULL, ?, ?, ?)`,
			r.ID, r.TaskID, r.Status, r.CurrentAgentIndex, r.Iteration, r.RetryCount, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert routing: %w", err)
		}
		result = r
		return nil
	})
	return result, err
}

// ResetRoutingForTrigger resets a terminal routing record in place to a
// fresh pending round (spec §4.4 step 2: "a new trigger resets the record in
// place rather than creating another").
func (s *Store) ResetRoutingForTrigger(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE task_routings SET status = ?, current_agent_index = 0, iteration = 0,
			 any_agent_worked = 0, retry_count = 0, error_message = NULL, updated_at = ? WHERE id = ?`,
			domain.RoutingPending, nowMillis(), id)
		return err
	})
}

// TryAcquireRoutingLock sets locked_at = now iff the lock is free or stale
// (older than domain.StaleLockAfterMillis). Returns true if the lock was
// acquired by this call.
func (s *Store) TryAcquireRoutingLock(ctx context.Context, id string) (bool, error) {
	var acquired bool
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		now := nowMillis()
		staleThreshold := now - domain.StaleLockAfterMillis
		res, err := tx.ExecContext(ctx,
			`UPDATE task_routings SET locked_at = ? WHERE id = ? AND (locked_at IS NULL OR locked_at < ?)`,
			now, id, staleThreshold)
		if err != nil {
			return fmt.Errorf("acquire routing lock: %w", err)
		}
		n, _ := res.RowsAffected()
		acquired = n > 0
		return nil
	})
	return acquired, err
}

// ReleaseRoutingLock clears locked_at unconditionally. Always called in the
// driver loop's terminating path.
func (s *Store) ReleaseRoutingLock(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE task_routings SET locked_at = NULL WHERE id = ?`, id)
		return err
	})
}

// SetRoutingRunning transitions a routing to running.
func (s *Store) SetRoutingRunning(ctx context.Context, id string) error {
	return s.updateRoutingStatus(ctx, id, domain.RoutingRunning, nil)
}

// SetRoutingCompleted transitions a routing to completed.
func (s *Store) SetRoutingCompleted(ctx context.Context, id string) error {
	return s.updateRoutingStatus(ctx, id, domain.RoutingCompleted, nil)
}

// SetRoutingFailed transitions a routing to failed with an error message.
func (s *Store) SetRoutingFailed(ctx context.Context, id, errMsg string) error {
	return s.updateRoutingStatus(ctx, id, domain.RoutingFailed, &errMsg)
}

func (s *Store) updateRoutingStatus(ctx context.Context, id string, status domain.RoutingStatus, errMsg *string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE task_routings SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
			status, errMsg, nowMillis(), id)
		return err
	})
}

// AdvanceToNextAgent increments current_agent_index and resets retry_count.
func (s *Store) AdvanceToNextAgent(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE task_routings SET current_agent_index = current_agent_index + 1, retry_count = 0, updated_at = ? WHERE id = ?`,
			nowMillis(), id)
		return err
	})
}

// StartNewIteration resets index to 0, increments iteration, clears
// any_agent_worked and retry_count (spec §4.4 driver loop).
func (s *Store) StartNewIteration(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE task_routings SET current_agent_index = 0, iteration = iteration + 1,
			 any_agent_worked = 0, retry_count = 0, updated_at = ? WHERE id = ?`,
			nowMillis(), id)
		return err
	})
}

// MarkAgentWorked sets any_agent_worked = true.
func (s *Store) MarkAgentWorked(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE task_routings SET any_agent_worked = 1, updated_at = ? WHERE id = ?`, nowMillis(), id)
		return err
	})
}

// IncrementRetryCount bumps retry_count by one.
func (s *Store) IncrementRetryCount(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE task_routings SET retry_count = retry_count + 1, updated_at = ? WHERE id = ?`, nowMillis(), id)
		return err
	})
}

// ResetRetryCount sets retry_count back to zero.
func (s *Store) ResetRetryCount(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE task_routings SET retry_count = 0, updated_at = ? WHERE id = ?`, nowMillis(), id)
		return err
	})
}

// ListPendingOrRunningRoutings returns routings in pending/running status, in
// creation order, for the recovery startup scan.
func (s *Store) ListPendingOrRunningRoutings(ctx context.Context) ([]domain.TaskRouting, error) {
	rows, err := s.db.QueryContext(ctx, routingSelect+` WHERE status IN (?, ?) ORDER BY created_at ASC`,
		domain.RoutingPending, domain.RoutingRunning)
	if err != nil {
		return nil, fmt.Errorf("list pending routings: %w", err)
	}
	defer rows.Close()

	var out []domain.TaskRouting
	for rows.Next() {
		var r domain.TaskRouting
		var anyWorked int
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Status, &r.CurrentAgentIndex, &r.Iteration, &anyWorked, &r.LockedAt, &r.ErrorMessage, &r.RetryCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan pending routing: %w", err)
		}
		r.AnyAgentWorked = anyWorked != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func isNotFound(err error) bool {
	return err != nil && errors.Is(err, apperr.ErrNotFound)
}
