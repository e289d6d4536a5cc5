package store

import (
	"context"
	"database/sql"
	"fmt"
)

// SetWorkspaceSetting upserts a keyed, JSON-encoded setting value.
func (s *Store) SetWorkspaceSetting(ctx context.Context, workspaceID, key, value string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO workspace_settings(workspace_id, key, value) VALUES (?, ?, ?)
			 ON CONFLICT(workspace_id, key) DO UPDATE SET value = excluded.value`,
			workspaceID, key, value)
		return err
	})
}

// GetWorkspaceSetting reads one setting value, or ("", false) if absent.
func (s *Store) GetWorkspaceSetting(ctx context.Context, workspaceID, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM workspace_settings WHERE workspace_id = ? AND key = ?`, workspaceID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get workspace setting: %w", err)
	}
	return value, true, nil
}
