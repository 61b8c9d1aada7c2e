package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

type TextCacheRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewTextCacheRepository(db *sql.DB) *TextCacheRepository {
	return &TextCacheRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *TextCacheRepository) SetExtractedText(ctx context.Context, taskID, text string, ttl time.Duration) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO text_cache (task_id, text, expires_at)
VALUES ($1,$2,$3)
ON CONFLICT (task_id) DO UPDATE
SET text = EXCLUDED.text, expires_at = EXCLUDED.expires_at
`, taskID, text, expiry(r.now(), ttl))
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "set extracted text", err)
	}
	return nil
}

func (r *TextCacheRepository) GetExtractedText(ctx context.Context, taskID string) (string, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT text
FROM text_cache
WHERE task_id = $1 AND (expires_at IS NULL OR expires_at > $2)
`, taskID, r.now())

	var text string
	if err := row.Scan(&text); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.WrapError(domain.ErrTaskNotFound, "get extracted text", fmt.Errorf("task_id=%s", taskID))
		}
		return "", fmt.Errorf("scan extracted text: %w", err)
	}
	return text, nil
}
