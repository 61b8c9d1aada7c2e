package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/kirillkom/sumflow/internal/core/domain"
	"github.com/kirillkom/sumflow/internal/core/ports"
)

type StatusUseCase struct {
	status  ports.StatusStore
	cache   ports.TextCache
	index   ports.BatchIndex
	results ports.ResultStore
}

func NewStatusUseCase(status ports.StatusStore, cache ports.TextCache, index ports.BatchIndex, results ports.ResultStore) *StatusUseCase {
	return &StatusUseCase{status: status, cache: cache, index: index, results: results}
}

// TaskStatus reads the latest progress record. When the record has expired
// but a result file exists for the batch, the task is reported from that file.
func (uc *StatusUseCase) TaskStatus(ctx context.Context, batchID, taskID string) (domain.Progress, error) {
	if taskID == "" {
		return domain.Progress{}, domain.WrapError(domain.ErrInvalidInput, "task status", errors.New("task id is required"))
	}
	progress, err := uc.status.GetProgress(ctx, taskID)
	if err == nil {
		return progress, nil
	}
	if !domain.IsKind(err, domain.ErrTaskNotFound) || batchID == "" {
		return domain.Progress{}, err
	}

	result, loadErr := uc.results.LoadResult(ctx, batchID, taskID)
	if loadErr != nil {
		if domain.IsKind(loadErr, domain.ErrTaskNotFound) || domain.IsKind(loadErr, domain.ErrInvalidInput) {
			return domain.Progress{}, err
		}
		return domain.Progress{}, fmt.Errorf("load result: %w", loadErr)
	}
	return progressFromResult(*result), nil
}

func progressFromResult(r domain.TaskResult) domain.Progress {
	p := domain.Progress{
		TaskID:    r.TaskID,
		BatchID:   r.BatchID,
		Filename:  r.OriginalFilename,
		UpdatedAt: r.CompletedAt,
	}
	if r.Success {
		p.State, p.Stage, p.Percent = domain.StateDone, domain.StageDone, domain.StageDone.Percent()
	} else {
		p.State, p.Stage, p.Message = domain.StateFailed, domain.StageFailed, r.Error
	}
	if !r.CompletedAt.IsZero() {
		finish := r.CompletedAt
		p.FinishAt = &finish
	}
	return p
}

// BatchStatus aggregates every task of a batch. Tasks without any record yet count as queued.
func (uc *StatusUseCase) BatchStatus(ctx context.Context, batchID string) (*domain.BatchStatus, error) {
	if batchID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "batch status", errors.New("batch id is required"))
	}
	ids, err := uc.index.ListTasks(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch tasks: %w", err)
	}
	if len(ids) == 0 {
		meta, err := uc.results.LoadBatchMeta(ctx, batchID)
		if err != nil {
			if domain.IsKind(err, domain.ErrTaskNotFound) || domain.IsKind(err, domain.ErrInvalidInput) {
				return nil, domain.WrapError(domain.ErrTaskNotFound, "batch status", fmt.Errorf("batch %q", batchID))
			}
			return nil, fmt.Errorf("load batch meta: %w", err)
		}
		ids = meta.TaskIDs
	}

	out := &domain.BatchStatus{
		BatchID: batchID,
		Total:   len(ids),
		Counts:  make(map[domain.TaskState]int),
		Tasks:   make([]domain.Progress, 0, len(ids)),
	}
	for _, id := range ids {
		progress, err := uc.TaskStatus(ctx, batchID, id)
		if err != nil {
			if !domain.IsKind(err, domain.ErrTaskNotFound) {
				return nil, err
			}
			progress = domain.Progress{TaskID: id, BatchID: batchID, State: domain.StateQueued, Stage: domain.StageQueued}
		}
		out.Counts[progress.State]++
		if progress.State.Terminal() {
			out.Done++
		}
		out.Tasks = append(out.Tasks, progress)
	}
	if out.Total > 0 {
		out.Progress = math.Round(float64(out.Done)/float64(out.Total)*10000) / 10000
	}
	return out, nil
}

func (uc *StatusUseCase) RawText(ctx context.Context, taskID string) (string, error) {
	if taskID == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "raw text", errors.New("task id is required"))
	}
	return uc.cache.GetExtractedText(ctx, taskID)
}
