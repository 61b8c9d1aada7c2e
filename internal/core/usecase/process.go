package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/sumflow/internal/core/domain"
	"github.com/kirillkom/sumflow/internal/core/ports"
	"github.com/kirillkom/sumflow/internal/observability/logging"
)

const (
	ModeStrict    = "strict"
	ModeMapReduce = "mapreduce"

	maxDiagnosticRunes = 300
)

// Retrier re-runs a whole unit of work until it succeeds or fails for good.
type Retrier interface {
	Retry(ctx context.Context, operation string, fn func(context.Context) error) error
}

type ProcessConfig struct {
	// Mode selects the strict two-line generator or the bullet map-reduce one.
	Mode         string
	TextCacheTTL time.Duration
	// AttemptTimeout bounds one pass through every stage. Zero disables it.
	AttemptTimeout time.Duration
}

type ProcessTaskUseCase struct {
	router     ports.FormatRouter
	extractor  ports.TextExtractor
	summarizer ports.Summarizer
	status     ports.StatusStore
	cache      ports.TextCache
	files      ports.FileStorage
	results    ports.ResultStore
	metrics    ports.TaskMetrics
	retrier    Retrier
	cfg        ProcessConfig
	now        func() time.Time
}

func NewProcessTaskUseCase(
	router ports.FormatRouter,
	extractor ports.TextExtractor,
	summarizer ports.Summarizer,
	status ports.StatusStore,
	cache ports.TextCache,
	files ports.FileStorage,
	results ports.ResultStore,
	metrics ports.TaskMetrics,
	retrier Retrier,
	cfg ProcessConfig,
) *ProcessTaskUseCase {
	if cfg.Mode != ModeMapReduce {
		cfg.Mode = ModeStrict
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if retrier == nil {
		retrier = onceRetrier{}
	}
	return &ProcessTaskUseCase{
		router:     router,
		extractor:  extractor,
		summarizer: summarizer,
		status:     status,
		cache:      cache,
		files:      files,
		results:    results,
		metrics:    metrics,
		retrier:    retrier,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Process drives one task to Done or Failed. Failures are recorded in the
// status store before the error is returned.
func (uc *ProcessTaskUseCase) Process(ctx context.Context, msg domain.TaskMessage) error {
	started := uc.now()
	logger := logging.ForTask(nil, msg.TaskID, msg.Source.BatchID)
	if !msg.SubmittedAt.IsZero() {
		uc.metrics.ObserveQueueLag(started.Sub(msg.SubmittedAt))
	}
	uc.metrics.StartTask()

	tracker := newProgressTracker(uc.status, uc.now, msg)
	tracker.emit(ctx, domain.StageQueued, 0, "")

	attempt := 0
	var saved bool
	err := uc.retrier.Retry(ctx, "task.process", func(ctx context.Context) error {
		attempt++
		result, err := uc.runAttempt(ctx, msg, tracker, attempt)
		saved = result != nil
		if err != nil {
			logger.Warn("task_attempt_failed", "attempt", attempt, "error", err)
		}
		return err
	})

	elapsed := uc.now().Sub(started)
	if err == nil {
		uc.metrics.FinishTask(elapsed, domain.StateDone)
		logger.Info("task_done", "attempts", attempt, "elapsed_ms", elapsed.Milliseconds())
		return nil
	}

	diagnostic := diagnosticMessage(err)
	bg := context.WithoutCancel(ctx)
	if !saved {
		uc.saveFailure(bg, msg, diagnostic)
	}
	tracker.emit(bg, domain.StageFailed, attempt, diagnostic)
	uc.metrics.FinishTask(elapsed, domain.StateFailed)
	logger.Error("task_failed", "attempts", attempt, "error", err)
	return err
}

// Abandon records msg as Failed with reason without running any stage.
func (uc *ProcessTaskUseCase) Abandon(ctx context.Context, msg domain.TaskMessage, reason string) error {
	if msg.TaskID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "abandon task", errors.New("task id is required"))
	}
	uc.saveFailure(ctx, msg, reason)
	progress := newProgressTracker(uc.status, uc.now, msg).emit(ctx, domain.StageFailed, 0, reason)
	uc.metrics.FinishTask(0, domain.StateFailed)
	logging.ForTask(nil, msg.TaskID, msg.Source.BatchID).Warn("task_abandoned", "reason", reason, "state", progress.State)
	return nil
}

func (uc *ProcessTaskUseCase) runAttempt(ctx context.Context, msg domain.TaskMessage, tracker *progressTracker, attempt int) (*domain.TaskResult, error) {
	if uc.cfg.AttemptTimeout > 0 {
		attemptCtx, cancel := context.WithTimeout(ctx, uc.cfg.AttemptTimeout)
		defer cancel()
		result, err := uc.runStages(attemptCtx, msg, tracker, attempt)
		if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return result, domain.WrapError(domain.ErrTemporary, "task attempt",
				fmt.Errorf("timed out after %s", uc.cfg.AttemptTimeout))
		}
		return result, err
	}
	return uc.runStages(ctx, msg, tracker, attempt)
}

// runStages executes every stage once. The returned result is non-nil once it has been persisted.
func (uc *ProcessTaskUseCase) runStages(ctx context.Context, msg domain.TaskMessage, tracker *progressTracker, attempt int) (*domain.TaskResult, error) {
	timings := make(map[string]float64, 6)
	stageClock := uc.now()
	mark := func(name string, stage domain.Stage) {
		now := uc.now()
		d := now.Sub(stageClock)
		timings[name] = d.Seconds()
		uc.metrics.ObserveStage(stage, d)
		stageClock = now
	}
	attemptStart := stageClock

	tracker.emit(ctx, domain.StageIngestStart, attempt, "")
	path, err := uc.files.Locate(ctx, msg.Source)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	decision, err := uc.router.Route(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	mark("ingest", domain.StageIngestDone)
	tracker.emit(ctx, domain.StageIngestDone, attempt, string(decision.Route))

	tracker.emit(ctx, domain.StageExtractStart, attempt, "")
	var extraction domain.ExtractionResult
	if decision.Route == domain.RouteDirectText {
		extraction, err = uc.extractor.ReadText(ctx, decision.ArtifactPath)
	} else {
		extraction, err = uc.extractor.Extract(ctx, decision.ArtifactPath)
	}
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	mark("extract", domain.StageExtractDone)
	tracker.emit(ctx, domain.StageExtractDone, attempt, "")

	if err := uc.cache.SetExtractedText(ctx, msg.TaskID, extraction.Text, uc.cfg.TextCacheTTL); err != nil {
		slog.Warn("text_cache_write_failed", "task_id", msg.TaskID, "batch_id", msg.Source.BatchID, "error", err)
	}

	result := domain.TaskResult{
		TaskID:           msg.TaskID,
		BatchID:          msg.Source.BatchID,
		OriginalFilename: msg.Source.Filename,
		ContentHash:      msg.Source.ContentHash,
		Route:            decision.Route,
		Pages:            extraction.PageCount,
		ExtractionStats:  extraction.Stats,
		Timings:          timings,
	}

	tracker.emit(ctx, domain.StageSummarizeStart, attempt, "")
	if err := uc.summarize(ctx, extraction.Text, &result, func() {
		mark("summarize", domain.StageSummarizeDone)
		tracker.emit(ctx, domain.StageSummarizeDone, attempt, "")
		tracker.emit(ctx, domain.StageClassifyStart, attempt, "")
	}); err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	mark("classify", domain.StageClassifyStart)
	uc.metrics.ObserveGeneration(result.LLMMeta.Attempts, result.LLMOk)

	storedName, storedPath, err := uc.files.Relocate(ctx, msg.Source)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	result.StoredFilename = storedName
	result.StoredPath = storedPath
	mark("commit", domain.StageDone)

	result.Success = result.LLMOk
	if !result.LLMOk {
		result.Error = domain.ErrGenerationFailed.Error()
	}
	result.CompletedAt = uc.now().UTC()
	timings["total"] = result.CompletedAt.Sub(attemptStart).Seconds()

	if err := uc.results.SaveResult(ctx, result); err != nil {
		return nil, fmt.Errorf("persist: %w", err)
	}

	if !result.LLMOk {
		return &result, domain.WrapError(domain.ErrGenerationFailed, "summarize", errors.New(result.LLMMeta.LastReason))
	}
	tracker.emit(ctx, domain.StageDone, attempt, "")
	return &result, nil
}

// summarize fills the summary and category fields of result. summarized runs
// between the summarize and classify steps so progress can be reported.
func (uc *ProcessTaskUseCase) summarize(ctx context.Context, text string, result *domain.TaskResult, summarized func()) error {
	if uc.cfg.Mode == ModeMapReduce {
		started := uc.now()
		final, err := uc.summarizer.SummarizeAndCategorize(ctx, text)
		if err != nil {
			return err
		}
		summarized()
		result.Summary = final.Text()
		result.Title = final.Title
		result.Bullets = final.Bullets
		result.Category = final.Category
		result.CategorySource = final.Source
		result.LLMOk = true
		result.LLMMeta = domain.LLMMeta{Attempts: 1, Mode: ModeMapReduce, ElapsedSeconds: uc.now().Sub(started).Seconds()}
		result.SummaryTwoLine = domain.TwoLine(oneLine(final), result.Category)
		return nil
	}

	strict := uc.summarizer.SummarizeStrict(ctx, text)
	if err := ctx.Err(); err != nil {
		return err
	}
	summarized()
	cat, source := uc.summarizer.Classify(strict.RawCategory, text)
	result.Summary = strict.Summary
	result.Category = cat
	result.CategorySource = source
	result.LLMOk = strict.OK
	result.LLMMeta = domain.LLMMeta{
		Attempts:       strict.Attempts,
		LastReason:     strict.LastReason,
		ElapsedSeconds: strict.Elapsed.Seconds(),
		Mode:           ModeStrict,
	}
	result.SummaryTwoLine = domain.TwoLine(strict.Summary, cat)
	return nil
}

func (uc *ProcessTaskUseCase) saveFailure(ctx context.Context, msg domain.TaskMessage, diagnostic string) {
	result := domain.TaskResult{
		TaskID:           msg.TaskID,
		BatchID:          msg.Source.BatchID,
		OriginalFilename: msg.Source.Filename,
		ContentHash:      msg.Source.ContentHash,
		Category:         domain.SentinelPair(),
		CategorySource:   domain.CategoryFromDefault,
		Timings:          map[string]float64{},
		Error:            diagnostic,
		CompletedAt:      uc.now().UTC(),
	}
	if err := uc.results.SaveResult(ctx, result); err != nil {
		slog.Warn("failure_result_write_failed", "task_id", msg.TaskID, "batch_id", msg.Source.BatchID, "error", err)
	}
}

func diagnosticMessage(err error) string {
	if domain.IsKind(err, domain.ErrGenerationFailed) {
		return domain.ErrGenerationFailed.Error()
	}
	msg := strings.TrimSpace(err.Error())
	if utf8.RuneCountInString(msg) > maxDiagnosticRunes {
		msg = string([]rune(msg)[:maxDiagnosticRunes]) + "…"
	}
	return msg
}

func oneLine(s domain.FinalSummary) string {
	if len(s.Bullets) == 0 {
		return s.Title
	}
	return strings.Join(s.Bullets, " ")
}

type onceRetrier struct{}

func (onceRetrier) Retry(ctx context.Context, _ string, fn func(context.Context) error) error {
	return fn(ctx)
}

type nopMetrics struct{}

func (nopMetrics) StartTask()                                {}
func (nopMetrics) FinishTask(time.Duration, domain.TaskState) {}
func (nopMetrics) ObserveQueueLag(time.Duration)             {}
func (nopMetrics) ObserveStage(domain.Stage, time.Duration)  {}
func (nopMetrics) ObserveGeneration(int, bool)               {}
