package ports

import (
	"context"
	"io"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

// UploadFile is one file of a multipart batch upload.
type UploadFile struct {
	Filename string
	Body     io.Reader
}

// TaskSubmitter is the inbound contract for starting asynchronous work.
type TaskSubmitter interface {
	SubmitTask(ctx context.Context, src domain.SourceFile) (string, error)
	UploadBatch(ctx context.Context, files []UploadFile) (*domain.BatchMeta, error)
}

// TaskProcessor runs one unit of work to a terminal state.
type TaskProcessor interface {
	Process(ctx context.Context, msg domain.TaskMessage) error
	// Abandon marks a delivered task Failed without running it.
	Abandon(ctx context.Context, msg domain.TaskMessage, reason string) error
}

// StatusReader is the read path for task and batch progress.
type StatusReader interface {
	TaskStatus(ctx context.Context, batchID, taskID string) (domain.Progress, error)
	BatchStatus(ctx context.Context, batchID string) (*domain.BatchStatus, error)
	RawText(ctx context.Context, taskID string) (string, error)
}

// BatchExporter renders batch results as a spreadsheet.
type BatchExporter interface {
	ExportBatch(ctx context.Context, batchID string) ([]byte, error)
}
