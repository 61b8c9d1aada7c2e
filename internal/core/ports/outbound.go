package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

// FormatRouter decides how a source file is normalized before extraction.
type FormatRouter interface {
	Route(ctx context.Context, path string) (domain.IngestDecision, error)
}

// TextExtractor runs the extraction funnel over a page-bearing document.
type TextExtractor interface {
	Extract(ctx context.Context, path string) (domain.ExtractionResult, error)
	// ReadText loads a plain-text artifact produced by the DirectText route.
	ReadText(ctx context.Context, path string) (domain.ExtractionResult, error)
}

// TextGenerator is the external text-generation service.
// Chat is the primary endpoint, Generate the plain completion fallback.
type TextGenerator interface {
	Chat(ctx context.Context, system, prompt string) (string, error)
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer turns extracted text into a summary and a category pair.
type Summarizer interface {
	SummarizeAndCategorize(ctx context.Context, text string) (domain.FinalSummary, error)
	SummarizeStrict(ctx context.Context, text string) domain.StrictSummary
	Classify(rawCategory, text string) (domain.Category, domain.CategorySource)
}

// StatusStore keeps the latest progress record per task.
type StatusStore interface {
	SetProgress(ctx context.Context, progress domain.Progress) error
	GetProgress(ctx context.Context, taskID string) (domain.Progress, error)
}

// TextCache holds extracted text for on-demand retrieval.
type TextCache interface {
	SetExtractedText(ctx context.Context, taskID, text string, ttl time.Duration) error
	GetExtractedText(ctx context.Context, taskID string) (string, error)
}

// BatchIndex tracks which tasks belong to a batch.
type BatchIndex interface {
	AppendTask(ctx context.Context, batchID, taskID string) error
	ListTasks(ctx context.Context, batchID string) ([]string, error)
}

// TaskQueue publishes/consumes submitted tasks.
type TaskQueue interface {
	PublishTask(ctx context.Context, msg domain.TaskMessage) error
	SubscribeTasks(ctx context.Context, processor TaskProcessor) error
}

// ResultStore persists task results and batch manifests.
type ResultStore interface {
	SaveResult(ctx context.Context, result domain.TaskResult) error
	LoadResult(ctx context.Context, batchID, taskID string) (*domain.TaskResult, error)
	ListResults(ctx context.Context, batchID string) ([]domain.TaskResult, error)
	SaveBatchMeta(ctx context.Context, meta domain.BatchMeta) error
	LoadBatchMeta(ctx context.Context, batchID string) (*domain.BatchMeta, error)
}

// FileStorage stages uploads and relocates them into permanent storage.
type FileStorage interface {
	SaveStaged(ctx context.Context, batchID, filename string, body io.Reader) (domain.SourceFile, error)
	// Locate returns where the source currently lives: the staged path, or the
	// stored path when an earlier attempt already relocated it.
	Locate(ctx context.Context, src domain.SourceFile) (string, error)
	Relocate(ctx context.Context, src domain.SourceFile) (storedName, storedPath string, err error)
}

// TaskMetrics records orchestrator observations.
type TaskMetrics interface {
	StartTask()
	FinishTask(duration time.Duration, state domain.TaskState)
	ObserveQueueLag(lag time.Duration)
	ObserveStage(stage domain.Stage, duration time.Duration)
	ObserveGeneration(attempts int, ok bool)
}
