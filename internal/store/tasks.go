package store

import (
	"context"
	"database/sql"
	"fmt"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
)

// CreateTask inserts a new task in "todo" status.
func (s *Store) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	now := nowMillis()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Status == "" {
		t.Status = domain.TaskTodo
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tasks(id, workspace_id, title, description, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.WorkspaceID, t.Title, t.Description, t.Status, t.CreatedAt, t.UpdatedAt)
		return err
	})
	if err != nil {
		return domain.Task{}, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// ListTasksByWorkspace returns a workspace's tasks, most recently created
// first.
func (s *Store) ListTasksByWorkspace(ctx context.Context, workspaceID string) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, title, description, status, created_at, updated_at
		 FROM tasks WHERE workspace_id = ? ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTask updates a task's title/description. Status changes go through
// SetTaskStatus so the transition table is always consulted.
func (s *Store) UpdateTask(ctx context.Context, id, title, description string) (domain.Task, error) {
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tasks SET title = ?, description = ?, updated_at = ? WHERE id = ?`,
			title, description, nowMillis(), id)
		if err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.NotFoundError("task " + id)
		}
		return nil
	})
	if err != nil {
		return domain.Task{}, err
	}
	return s.GetTask(ctx, id)
}

// DeleteTask removes a task and everything that cascades from it (routing,
// executions, comments, attachments). Refused while the task has an active
// routing; callers should cancel first.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var status domain.RoutingStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM task_routings WHERE task_id = ?`, id).Scan(&status)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("lookup routing for delete: %w", err)
		}
		if err == nil && status == domain.RoutingRunning {
			return apperr.ConflictError("task " + id + " has an active routing")
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete task: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.NotFoundError("task " + id)
		}
		return nil
	})
}

// GetTask loads a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (domain.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, title, description, status, created_at, updated_at FROM tasks WHERE id = ?`, id)
	var t domain.Task
	if err := row.Scan(&t.ID, &t.WorkspaceID, &t.Title, &t.Description, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Task{}, apperr.NotFoundError("task " + id)
		}
		return domain.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// SetTaskStatus transitions a task to newStatus, validating against the
// allowed transition table (spec §3). Transitioning to the same status is a
// no-op that still bumps updated_at.
func (s *Store) SetTaskStatus(ctx context.Context, id string, newStatus domain.TaskStatus) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var current domain.TaskStatus
		if err := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&current); err != nil {
			if err == sql.ErrNoRows {
				return apperr.NotFoundError("task " + id)
			}
			return fmt.Errorf("lookup task status: %w", err)
		}
		if !domain.CanTransitionTask(current, newStatus) {
			return apperr.ValidationError(fmt.Sprintf("task %s cannot transition %s -> %s", id, current, newStatus))
		}
		_, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`, newStatus, nowMillis(), id)
		return err
	})
}
