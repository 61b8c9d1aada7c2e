package usecase

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/kirillkom/sumflow/internal/core/domain"
	"github.com/kirillkom/sumflow/internal/core/ports"
)

// progressTracker turns stage transitions into status records. Percent comes
// from the stage table and never moves backwards; the ETA is derived from an
// exponential moving average of percent-per-second between transitions.
type progressTracker struct {
	store ports.StatusStore
	now   func() time.Time

	taskID   string
	batchID  string
	filename string

	lastAt     time.Time
	lastPct    float64
	ema        float64
	maxPercent int
}

func newProgressTracker(store ports.StatusStore, now func() time.Time, msg domain.TaskMessage) *progressTracker {
	return &progressTracker{
		store:    store,
		now:      now,
		taskID:   msg.TaskID,
		batchID:  msg.Source.BatchID,
		filename: msg.Source.Filename,
		lastAt:   now(),
	}
}

func (t *progressTracker) emit(ctx context.Context, stage domain.Stage, attempt int, message string) domain.Progress {
	now := t.now()
	percent := max(stage.Percent(), t.maxPercent)
	t.maxPercent = percent

	dt := math.Max(now.Sub(t.lastAt).Seconds(), 1e-6)
	inst := math.Max(float64(percent)-t.lastPct, 0) / dt
	if t.ema == 0 {
		t.ema = inst
	} else {
		t.ema = 0.5*inst + 0.5*t.ema
	}
	t.lastAt = now
	t.lastPct = float64(percent)

	progress := domain.Progress{
		TaskID:    t.taskID,
		BatchID:   t.batchID,
		State:     stage.State(),
		Stage:     stage,
		Percent:   percent,
		Filename:  t.filename,
		Message:   message,
		Attempt:   attempt,
		UpdatedAt: now,
	}
	switch {
	case percent >= 100 || progress.State.Terminal():
		finish := now
		progress.FinishAt = &finish
	case t.ema > 0:
		eta := math.Floor((100 - float64(percent)) / t.ema)
		finish := now.Add(time.Duration(eta) * time.Second)
		progress.ETASeconds = eta
		progress.FinishAt = &finish
	}

	if err := t.store.SetProgress(ctx, progress); err != nil {
		slog.Warn("progress_write_failed",
			"task_id", t.taskID,
			"batch_id", t.batchID,
			"stage", stage,
			"error", err,
		)
	}
	return progress
}
