package store

import (
	"context"
	"database/sql"
	"fmt"

	"taskrouter/internal/domain"
)

// AppendExecutionLog inserts one append-only log line.
func (s *Store) AppendExecutionLog(ctx context.Context, l domain.ExecutionLog) (domain.ExecutionLog, error) {
	if l.Timestamp == 0 {
		l.Timestamp = nowMillis()
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO execution_logs(id, execution_id, content, timestamp) VALUES (?, ?, ?, ?)`,
			l.ID, l.ExecutionID, l.Content, l.Timestamp)
		return err
	})
	if err != nil {
		return domain.ExecutionLog{}, fmt.Errorf("append execution log: %w", err)
	}
	return l, nil
}

// ListExecutionLogs returns an execution's logs ordered by timestamp.
func (s *Store) ListExecutionLogs(ctx context.Context, executionID string) ([]domain.ExecutionLog, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, content, timestamp FROM execution_logs WHERE execution_id = ? ORDER BY timestamp ASC`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list execution logs: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionLog
	for rows.Next() {
		var l domain.ExecutionLog
		if err := rows.Scan(&l.ID, &l.ExecutionID, &l.Content, &l.Timestamp); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
