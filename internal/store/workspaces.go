package store

import (
	"context"
	"database/sql"
	"fmt"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
)

// CreateWorkspace inserts a new workspace.
func (s *Store) CreateWorkspace(ctx context.Context, w domain.Workspace) (domain.Workspace, error) {
	now := nowMillis()
	w.CreatedAt, w.UpdatedAt = now, now
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO workspaces(id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			w.ID, w.Name, w.CreatedAt, w.UpdatedAt)
		return err
	})
	if err != nil {
		return domain.Workspace{}, fmt.Errorf("create workspace: %w", err)
	}
	return w, nil
}

// ListWorkspaces returns every workspace, most recently created first.
func (s *Store) ListWorkspaces(ctx context.Context) ([]domain.Workspace, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM workspaces ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []domain.Workspace
	for rows.Next() {
		var w domain.Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// GetWorkspace loads a workspace by id.
func (s *Store) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM workspaces WHERE id = ?`, id)
	var w domain.Workspace
	if err := row.Scan(&w.ID, &w.Name, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Workspace{}, apperr.NotFoundError("workspace " + id)
		}
		return domain.Workspace{}, fmt.Errorf("get workspace: %w", err)
	}
	return w, nil
}

// DeleteWorkspace removes a workspace; foreign keys cascade to its agents,
// tasks, and settings. A workspace with tasks still in_progress is refused
// unless force is set (spec §7's Conflict kind); the caller is responsible
// for cancelling those tasks' routings before a forced delete, since the
// store layer has no view of the routing engine.
func (s *Store) DeleteWorkspace(ctx context.Context, id string, force bool) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if !force {
			var inProgress int
			if err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM tasks WHERE workspace_id = ? AND status = ?`,
				id, domain.TaskInProgress).Scan(&inProgress); err != nil {
				return fmt.Errorf("count in-progress tasks: %w", err)
			}
			if inProgress > 0 {
				return apperr.ConflictError(fmt.Sprintf("workspace %s has %d task(s) in progress", id, inProgress))
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete workspace: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.NotFoundError("workspace " + id)
		}
		return nil
	})
}
