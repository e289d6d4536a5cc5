package store

import (
	"context"
	"database/sql"
	"fmt"

	"taskrouter/internal/apperr"
	"taskrouter/internal/domain"
)

// CreateAttachment records an attachment row; the binary payload itself is
// written by internal/attachments before this call.
func (s *Store) CreateAttachment(ctx context.Context, a domain.Attachment) (domain.Attachment, error) {
	if a.CreatedAt == 0 {
		a.CreatedAt = nowMillis()
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attachments(id, task_id, filename, stored_name, mime_type, size, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.TaskID, a.Filename, a.StoredName, a.MimeType, a.Size, a.CreatedAt)
		return err
	})
	if err != nil {
		return domain.Attachment{}, fmt.Errorf("create attachment: %w", err)
	}
	return a, nil
}

// ListAttachmentsByTask returns a task's attachments.
func (s *Store) ListAttachmentsByTask(ctx context.Context, taskID string) ([]domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, filename, stored_name, mime_type, size, created_at FROM attachments WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var out []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.Filename, &a.StoredName, &a.MimeType, &a.Size, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAttachment removes the attachment row. The caller is responsible for
// removing the backing file from the attachments directory.
func (s *Store) DeleteAttachment(ctx context.Context, id string) (domain.Attachment, error) {
	var a domain.Attachment
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT id, task_id, filename, stored_name, mime_type, size, created_at FROM attachments WHERE id = ?`, id)
		if err := row.Scan(&a.ID, &a.TaskID, &a.Filename, &a.StoredName, &a.MimeType, &a.Size, &a.CreatedAt); err != nil {
			if err == sql.ErrNoRows {
				return apperr.NotFoundError("attachment " + id)
			}
			return fmt.Errorf("lookup attachment: %w", err)
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE id = ?`, id)
		return err
	})
	return a, err
}
