package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

type BatchRepository struct {
	db *sql.DB
}

func NewBatchRepository(db *sql.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

func (r *BatchRepository) AppendTask(ctx context.Context, batchID, taskID string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO batch_tasks (batch_id, task_id, created_at)
VALUES ($1,$2,$3)
ON CONFLICT (batch_id, task_id) DO NOTHING
`, batchID, taskID, time.Now().UTC())
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "append batch task", err)
	}
	return nil
}

func (r *BatchRepository) ListTasks(ctx context.Context, batchID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT task_id
FROM batch_tasks
WHERE batch_id = $1
ORDER BY position
`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch tasks: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return nil, fmt.Errorf("scan batch task: %w", err)
		}
		out = append(out, taskID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate batch tasks: %w", err)
	}
	return out, nil
}
