package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

// StatusRepository stores the latest progress record per task, with an optional TTL.
type StatusRepository struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewStatusRepository(db *sql.DB, ttl time.Duration) *StatusRepository {
	return &StatusRepository{db: db, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func (r *StatusRepository) SetProgress(ctx context.Context, progress domain.Progress) error {
	now := r.now()
	if progress.UpdatedAt.IsZero() {
		progress.UpdatedAt = now
	}
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO task_status (task_id, batch_id, state, payload, updated_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (task_id) DO UPDATE
SET batch_id = EXCLUDED.batch_id, state = EXCLUDED.state, payload = EXCLUDED.payload,
	updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at
`, progress.TaskID, progress.BatchID, string(progress.State), payload, progress.UpdatedAt, expiry(now, r.ttl))
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "set progress", err)
	}
	return nil
}

func (r *StatusRepository) GetProgress(ctx context.Context, taskID string) (domain.Progress, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT payload
FROM task_status
WHERE task_id = $1 AND (expires_at IS NULL OR expires_at > $2)
`, taskID, r.now())

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Progress{}, domain.WrapError(domain.ErrTaskNotFound, "get progress", fmt.Errorf("task_id=%s", taskID))
		}
		return domain.Progress{}, fmt.Errorf("scan progress: %w", err)
	}

	var progress domain.Progress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return domain.Progress{}, fmt.Errorf("unmarshal progress: %w", err)
	}
	return progress, nil
}

// PurgeExpired deletes expired status and text cache rows and reports how many were removed.
func (r *StatusRepository) PurgeExpired(ctx context.Context) (int64, error) {
	now := r.now()
	var total int64
	for _, table := range []string{"task_status", "text_cache"} {
		result, err := r.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", table, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("purge %s rows affected: %w", table, err)
		}
		total += rows
	}
	return total, nil
}
