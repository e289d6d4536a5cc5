package store

import (
	"context"
	"database/sql"
	"fmt"

	"taskrouter/internal/domain"
)

// CreateComment inserts a comment, authored by a human, agent, or the
// routing engine itself (system comments for lifecycle notices).
func (s *Store) CreateComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	if c.CreatedAt == 0 {
		c.CreatedAt = nowMillis()
	}
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO comments(id, task_id, author, author_type, content, log, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.TaskID, c.Author, c.AuthorType, c.Content, c.Log, c.CreatedAt)
		return err
	})
	if err != nil {
		return domain.Comment{}, fmt.Errorf("create comment: %w", err)
	}
	return c, nil
}

// ListCommentsByTask returns a task's comments in chronological order — the
// same ordering the executor embeds into task_input.json (spec §4.3/§6.1).
func (s *Store) ListCommentsByTask(ctx context.Context, taskID string) ([]domain.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task_id, author, author_type, content, log, created_at FROM comments WHERE task_id = ? ORDER BY created_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var out []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Author, &c.AuthorType, &c.Content, &c.Log, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
