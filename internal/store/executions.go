package store

import (
	"context"
	"database/sql"
	"fmt"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
)

const executionSelect = `SELECT id, task_id, agent_id, agent_name, cli_type, status, result, output, started_at, completed_at, created_at, updated_at FROM executions`

// CreateExecution inserts a new execution in "pending" status.
func (s *Store) CreateExecution(ctx context.Context, e domain.Execution) (domain.Execution, error) {
	now := nowMillis()
	e.CreatedAt, e.UpdatedAt = now, now
	if e.Status == "" {
		e.Status = domain.ExecutionPending
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO executions(id, task_id, agent_id, agent_name, cli_type, status, result, output, started_at, completed_at, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.TaskID, e.AgentID, e.AgentName, e.CLIType, e.Status, e.Result, e.Output, e.StartedAt, e.CompletedAt, e.CreatedAt, e.UpdatedAt)
		return err
	})
	if err != nil {
		return domain.Execution{}, fmt.Errorf("create execution: %w", err)
	}
	return e, nil
}

// GetExecution loads an execution by id.
func (s *Store) GetExecution(ctx context.Context, id string) (domain.Execution, error) {
	return s.scanExecution(s.db.QueryRowContext(ctx, executionSelect+` WHERE id = ?`, id))
}

func (s *Store) scanExecution(row *sql.Row) (domain.Execution, error) {
	var e domain.Execution
	var result sql.NullString
	if err := row.Scan(&e.ID, &e.TaskID, &e.AgentID, &e.AgentName, &e.CLIType, &e.Status, &result, &e.Output, &e.StartedAt, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return domain.Execution{}, apperr.NotFoundError("execution")
		}
		return domain.Execution{}, fmt.Errorf("scan execution: %w", err)
	}
	if result.Valid {
		r := domain.ExecutionResult(result.String)
		e.Result = &r
	}
	return e, nil
}

// SetExecutionRunning transitions pending -> running and stamps started_at.
func (s *Store) SetExecutionRunning(ctx context.Context, id string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE executions SET status = ?, started_at = ?, updated_at = ? WHERE id = ?`,
			domain.ExecutionRunning, nowMillis(), nowMillis(), id)
		return err
	})
}

// CompleteExecution transitions an execution to a terminal state, stamping
// completed_at and recording the result/output.
func (s *Store) CompleteExecution(ctx context.Context, id string, status domain.ExecutionStatus, result *domain.ExecutionResult, output string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		now := nowMillis()
		_, err := tx.ExecContext(ctx,
			`UPDATE executions SET status = ?, result = ?, output = ?, completed_at = ?, updated_at = ? WHERE id = ?`,
			status, result, output, now, now, id)
		return err
	})
}

// ListRunningExecutionsByTask returns executions for taskID in pending or
// running status.
func (s *Store) ListRunningExecutionsByTask(ctx context.Context, taskID string) ([]domain.Execution, error) {
	rows, err := s.db.QueryContext(ctx, executionSelect+` WHERE task_id = ? AND status IN (?, ?)`,
		taskID, domain.ExecutionPending, domain.ExecutionRunning)
	if err != nil {
		return nil, fmt.Errorf("list running executions: %w", err)
	}
	defer rows.Close()
	return scanExecutions(rows)
}

// ListOrphanedExecutions returns executions for taskID in pending/running
// status whose agent id is in agentIDsPastIndex (the caller passes the
// agents at or before the routing's current index) — used by the
// orphan-reconciliation sweep on
// recovery (SPEC_FULL.md §3 / DESIGN.md open question 3).
func (s *Store) ListOrphanedExecutions(ctx context.Context, taskID string, agentIDsPastIndex map[string]bool) ([]domain.Execution, error) {
	all, err := s.ListRunningExecutionsByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var out []domain.Execution
	for _, e := range all {
		if agentIDsPastIndex[e.AgentID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func scanExecutions(rows *sql.Rows) ([]domain.Execution, error) {
	var out []domain.Execution
	for rows.Next() {
		var e domain.Execution
		var result sql.NullString
		if err := rows.Scan(&e.ID, &e.TaskID, &e.AgentID, &e.AgentName, &e.CLIType, &e.Status, &result, &e.Output, &e.StartedAt, &e.CompletedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan execution row: %w", err)
		}
		if result.Valid {
			r := domain.ExecutionResult(result.String)
			e.Result = &r
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
