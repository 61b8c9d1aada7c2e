package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/sumflow/internal/core/domain"
	"github.com/kirillkom/sumflow/internal/core/ports"
)

type SubmitConfig struct {
	MaxFiles int
	// AllowedExtensions are lower-case and include the dot.
	AllowedExtensions []string
}

type SubmitTaskUseCase struct {
	files   ports.FileStorage
	queue   ports.TaskQueue
	status  ports.StatusStore
	index   ports.BatchIndex
	results ports.ResultStore
	cfg     SubmitConfig
	now     func() time.Time
	newID   func() string
}

func NewSubmitTaskUseCase(
	files ports.FileStorage,
	queue ports.TaskQueue,
	status ports.StatusStore,
	index ports.BatchIndex,
	results ports.ResultStore,
	cfg SubmitConfig,
) *SubmitTaskUseCase {
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 50
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".pdf", ".docx", ".hwp"}
	}
	return &SubmitTaskUseCase{
		files:   files,
		queue:   queue,
		status:  status,
		index:   index,
		results: results,
		cfg:     cfg,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SubmitTask registers an already staged file and enqueues it. It returns as
// soon as the task is published.
func (uc *SubmitTaskUseCase) SubmitTask(ctx context.Context, src domain.SourceFile) (string, error) {
	if src.Path == "" || src.BatchID == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "submit task", errors.New("source path and batch id are required"))
	}
	taskID := uc.newID()
	now := uc.now().UTC()

	if err := uc.index.AppendTask(ctx, src.BatchID, taskID); err != nil {
		return "", fmt.Errorf("append batch index: %w", err)
	}
	queued := domain.Progress{
		TaskID:    taskID,
		BatchID:   src.BatchID,
		State:     domain.StateQueued,
		Stage:     domain.StageQueued,
		Filename:  src.Filename,
		UpdatedAt: now,
	}
	if err := uc.status.SetProgress(ctx, queued); err != nil {
		return "", fmt.Errorf("set queued status: %w", err)
	}
	if err := uc.queue.PublishTask(ctx, domain.TaskMessage{TaskID: taskID, Source: src, SubmittedAt: now}); err != nil {
		failed := queued
		failed.State = domain.StateFailed
		failed.Stage = domain.StageFailed
		failed.Message = "not queued: " + err.Error()
		failed.UpdatedAt = uc.now().UTC()
		finish := failed.UpdatedAt
		failed.FinishAt = &finish
		if setErr := uc.status.SetProgress(context.WithoutCancel(ctx), failed); setErr != nil {
			slog.Warn("progress_write_failed", "task_id", taskID, "batch_id", src.BatchID, "error", setErr)
		}
		return "", fmt.Errorf("publish task: %w", err)
	}

	slog.Info("task_submitted", "task_id", taskID, "batch_id", src.BatchID, "filename", src.Filename, "size", src.Size)
	return taskID, nil
}

// UploadBatch stages every file under a fresh batch id and submits one task per
// file. When publishing stops part way, the batch meta lists the tasks already
// published and is returned together with the error.
func (uc *SubmitTaskUseCase) UploadBatch(ctx context.Context, files []ports.UploadFile) (*domain.BatchMeta, error) {
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload batch", errors.New("no files"))
	}
	if len(files) > uc.cfg.MaxFiles {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload batch",
			fmt.Errorf("%d files exceeds the limit of %d", len(files), uc.cfg.MaxFiles))
	}
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Filename))
		if !slices.Contains(uc.cfg.AllowedExtensions, ext) {
			return nil, domain.WrapError(domain.ErrUnsupportedFormat, "upload batch",
				fmt.Errorf("%q: extension %q is not accepted", f.Filename, ext))
		}
	}

	meta := &domain.BatchMeta{
		BatchID:   newBatchID(uc.newID()),
		TaskIDs:   make([]string, 0, len(files)),
		Files:     make([]string, 0, len(files)),
		CreatedAt: uc.now().UTC(),
	}
	// Stage everything before publishing so a bad upload publishes nothing.
	staged := make([]domain.SourceFile, 0, len(files))
	for _, f := range files {
		src, err := uc.files.SaveStaged(ctx, meta.BatchID, f.Filename, f.Body)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", f.Filename, err)
		}
		staged = append(staged, src)
	}

	for _, src := range staged {
		taskID, err := uc.SubmitTask(ctx, src)
		if err != nil {
			// Tasks already published will run; keep them discoverable.
			submitErr := fmt.Errorf("submit %q in batch %s: %w", src.Filename, meta.BatchID, err)
			if len(meta.TaskIDs) == 0 {
				return nil, submitErr
			}
			if saveErr := uc.results.SaveBatchMeta(ctx, *meta); saveErr != nil {
				return nil, errors.Join(submitErr, fmt.Errorf("save batch meta: %w", saveErr))
			}
			slog.Warn("batch_partially_submitted", "batch_id", meta.BatchID, "submitted", len(meta.TaskIDs), "files", len(staged), "error", err)
			return meta, submitErr
		}
		meta.TaskIDs = append(meta.TaskIDs, taskID)
		meta.Files = append(meta.Files, src.Filename)
	}

	if err := uc.results.SaveBatchMeta(ctx, *meta); err != nil {
		return nil, fmt.Errorf("save batch meta: %w", err)
	}
	slog.Info("batch_uploaded", "batch_id", meta.BatchID, "files", len(meta.TaskIDs))
	return meta, nil
}

// newBatchID keeps the first 16 hex digits of a uuid.
func newBatchID(id string) string {
	hex := strings.ReplaceAll(id, "-", "")
	if len(hex) > 16 {
		hex = hex[:16]
	}
	return hex
}
