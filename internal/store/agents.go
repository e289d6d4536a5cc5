package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
)

// CreateAgent inserts an agent at the end of its workspace's order.
func (s *Store) CreateAgent(ctx context.Context, a domain.Agent) (domain.Agent, error) {
	now := nowMillis()
	a.CreatedAt, a.UpdatedAt = now, now
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE workspace_id = ?`, a.WorkspaceID).Scan(&count); err != nil {
			return fmt.Errorf("count agents: %w", err)
		}
		a.Order = count
		_, err := tx.ExecContext(ctx,
			`INSERT INTO agents(id, workspace_id, name, role_instruction, working_instruction, "order", timeout_minutes, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.WorkspaceID, a.Name, a.RoleInstruction, a.WorkingInstruction, a.Order, a.TimeoutMinutes, a.CreatedAt, a.UpdatedAt)
		return err
	})
	if err != nil {
		return domain.Agent{}, fmt.Errorf("create agent: %w", err)
	}
	return a, nil
}

// GetAgent loads an agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (domain.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, name, role_instruction, working_instruction, "order", timeout_minutes, created_at, updated_at
		 FROM agents WHERE id = ?`, id)
	var a domain.Agent
	if err := row.Scan(&a.ID, &a.WorkspaceID, &a.Name, &a.RoleInstruction, &a.WorkingInstruction, &a.Order, &a.TimeoutMinutes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Agent{}, apperr.NotFoundError("agent " + id)
		}
		return domain.Agent{}, fmt.Errorf("get agent: %w", err)
	}
	return a, nil
}

// UpdateAgent updates an agent's name/instructions/timeout. Order is never
// touched here — it only changes via CreateAgent/DeleteAgent's dense
// renumbering.
func (s *Store) UpdateAgent(ctx context.Context, a domain.Agent) (domain.Agent, error) {
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE agents SET name = ?, role_instruction = ?, working_instruction = ?, timeout_minutes = ?, updated_at = ? WHERE id = ?`,
			a.Name, a.RoleInstruction, a.WorkingInstruction, a.TimeoutMinutes, nowMillis(), a.ID)
		if err != nil {
			return fmt.Errorf("update agent: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.NotFoundError("agent " + a.ID)
		}
		return nil
	})
	if err != nil {
		return domain.Agent{}, err
	}
	return s.GetAgent(ctx, a.ID)
}

// ListAgentsByWorkspace returns the workspace's agents ordered by their dense
// "order" position. This is the routing engine's hot read path.
func (s *Store) ListAgentsByWorkspace(ctx context.Context, workspaceID string) ([]domain.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_id, name, role_instruction, working_instruction, "order", timeout_minutes, created_at, updated_at
		 FROM agents WHERE workspace_id = ? ORDER BY "order" ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []domain.Agent
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.ID, &a.WorkspaceID, &a.Name, &a.RoleInstruction, &a.WorkingInstruction, &a.Order, &a.TimeoutMinutes, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

// DeleteAgent removes an agent and renumbers the remaining agents in its
// workspace to a dense 0..N-1 ordering (spec §3).
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var workspaceID string
		if err := tx.QueryRowContext(ctx, `SELECT workspace_id FROM agents WHERE id = ?`, id).Scan(&workspaceID); err != nil {
			if err == sql.ErrNoRows {
				return apperr.NotFoundError("agent " + id)
			}
			return fmt.Errorf("lookup agent: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete agent: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `SELECT id, "order" FROM agents WHERE workspace_id = ? ORDER BY "order" ASC`, workspaceID)
		if err != nil {
			return fmt.Errorf("reselect agents: %w", err)
		}
		type idOrder struct {
			id    string
			order int
		}
		var remaining []idOrder
		for rows.Next() {
			var io idOrder
			if err := rows.Scan(&io.id, &io.order); err != nil {
				rows.Close()
				return fmt.Errorf("scan remaining agent: %w", err)
			}
			remaining = append(remaining, io)
		}
		rows.Close()
		sort.Slice(remaining, func(i, j int) bool { return remaining[i].order < remaining[j].order })

		for i, io := range remaining {
			if io.order == i {
				continue
			}
			if _, err := tx.ExecContext(ctx, `UPDATE agents SET "order" = ? WHERE id = ?`, i, io.id); err != nil {
				return fmt.Errorf("renumber agent %s: %w", io.id, err)
			}
		}
		return nil
	})
}
