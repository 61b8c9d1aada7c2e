package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/sumflow/internal/core/domain"
	"github.com/kirillkom/sumflow/internal/core/ports"
)

// SheetWriter renders task results into spreadsheet bytes.
type SheetWriter interface {
	Write(batchID string, results []domain.TaskResult) ([]byte, error)
}

type ExportUseCase struct {
	results ports.ResultStore
	writer  SheetWriter
}

func NewExportUseCase(results ports.ResultStore, writer SheetWriter) *ExportUseCase {
	return &ExportUseCase{results: results, writer: writer}
}

func (uc *ExportUseCase) ExportBatch(ctx context.Context, batchID string) ([]byte, error) {
	start := time.Now()
	results, err := uc.results.ListResults(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if len(results) == 0 {
		if _, err := uc.results.LoadBatchMeta(ctx, batchID); err != nil {
			return nil, fmt.Errorf("load batch meta: %w", err)
		}
	}
	data, err := uc.writer.Write(batchID, results)
	if err != nil {
		return nil, fmt.Errorf("render export: %w", err)
	}
	slog.Info("batch_exported", "batch_id", batchID, "rows", len(results), "elapsed_ms", time.Since(start).Milliseconds())
	return data, nil
}
