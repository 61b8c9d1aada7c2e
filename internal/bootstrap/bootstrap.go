package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/sumflow/internal/config"
	"github.com/kirillkom/sumflow/internal/core/ports"
	"github.com/kirillkom/sumflow/internal/core/usecase"
	"github.com/kirillkom/sumflow/internal/infrastructure/category"
	"github.com/kirillkom/sumflow/internal/infrastructure/execx"
	"github.com/kirillkom/sumflow/internal/infrastructure/export"
	"github.com/kirillkom/sumflow/internal/infrastructure/extraction"
	"github.com/kirillkom/sumflow/internal/infrastructure/ingest"
	"github.com/kirillkom/sumflow/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/sumflow/internal/infrastructure/queue/nats"
	"github.com/kirillkom/sumflow/internal/infrastructure/repository/memory"
	"github.com/kirillkom/sumflow/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/sumflow/internal/infrastructure/resilience"
	"github.com/kirillkom/sumflow/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/sumflow/internal/infrastructure/summarize"
	"github.com/kirillkom/sumflow/internal/observability/metrics"
)

// expiryPurger drops status and text cache entries past their TTL.
type expiryPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type stores struct {
	status ports.StatusStore
	cache  ports.TextCache
	index  ports.BatchIndex
	purger expiryPurger
	close  func()
}

type App struct {
	Config config.Config

	Queue     *nats.Queue
	Submitter ports.TaskSubmitter
	Status    ports.StatusReader
	Exporter  ports.BatchExporter
	Processor ports.TaskProcessor

	HTTPMetrics   *metrics.HTTPServerMetrics
	WorkerMetrics *metrics.WorkerMetrics

	purger  expiryPurger
	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	files, err := localfs.New(cfg.UploadDir)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("init upload storage: %w", err)
	}
	results, err := localfs.NewResultStore(cfg.ResultDir)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("init result storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		Concurrency:        cfg.WorkerConcurrency,
		ResilienceExecutor: resilience.NewExecutor(resilience.DefaultConfig()),
	})
	if err != nil {
		st.close()
		return nil, fmt.Errorf("init task queue: %w", err)
	}

	router, err := newFormatRouter(cfg)
	if err != nil {
		queue.Close()
		st.close()
		return nil, err
	}
	engine, err := newSummarizer(cfg)
	if err != nil {
		queue.Close()
		st.close()
		return nil, err
	}

	workerMetrics := metrics.NewWorkerMetrics("worker")
	taskRetrier := resilience.NewRetrier(
		resilience.NewExecutor(resilience.TaskRetryConfig(cfg.TaskMaxRetries, cfg.TaskRetryBackoff)),
		resilience.ClassifyTaskError,
	)

	processUC := usecase.NewProcessTaskUseCase(
		router,
		newFunnel(cfg),
		engine,
		st.status,
		st.cache,
		files,
		results,
		workerMetrics,
		taskRetrier,
		usecase.ProcessConfig{
			Mode:           cfg.SummaryMode,
			TextCacheTTL:   cfg.TextCacheTTL,
			AttemptTimeout: cfg.WorkerTaskTimeout,
		},
	)
	submitUC := usecase.NewSubmitTaskUseCase(files, queue, st.status, st.index, results, usecase.SubmitConfig{
		MaxFiles: cfg.MaxFiles,
	})
	statusUC := usecase.NewStatusUseCase(st.status, st.cache, st.index, results)
	exportUC := usecase.NewExportUseCase(results, export.NewXLSXWriter())

	return &App{
		Config:        cfg,
		Queue:         queue,
		Submitter:     submitUC,
		Status:        statusUC,
		Exporter:      exportUC,
		Processor:     processUC,
		HTTPMetrics:   metrics.NewHTTPServerMetrics("api"),
		WorkerMetrics: workerMetrics,
		purger:        st.purger,
		closeFn: func() {
			queue.Close()
			st.close()
		},
	}, nil
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	if cfg.StatusBackend == "memory" {
		store := memory.NewStore(cfg.StatusTTL)
		slog.Warn("status_backend_memory", "note", "status is process-local")
		return stores{status: store, cache: store, index: store, purger: store, close: func() {}}, nil
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return stores{}, fmt.Errorf("open postgres: %w", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return stores{}, fmt.Errorf("ensure schema: %w", err)
	}
	statusRepo := postgres.NewStatusRepository(db, cfg.StatusTTL)
	return stores{
		status: statusRepo,
		cache:  postgres.NewTextCacheRepository(db),
		index:  postgres.NewBatchRepository(db),
		purger: statusRepo,
		close:  closeDB(db),
	}, nil
}

func closeDB(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			slog.Warn("postgres_close_failed", "error", err)
		}
	}
}

func newFormatRouter(cfg config.Config) (*ingest.Router, error) {
	runner := execx.NewExecRunner(cfg.SubprocessTimeout)

	var hwp ingest.TextConverter
	if cfg.EnableHWPText {
		hwp = ingest.NewHWPTextConverter(cfg.HWP5TxtBin, runner)
	}
	var renderer ingest.PDFRenderer
	if cfg.EnableLibreOffice {
		renderer = ingest.NewOfficeRenderer(cfg.LibreOfficeBin, runner)
	}
	router, err := ingest.NewRouter(cfg.WorkDir, hwp, renderer)
	if err != nil {
		return nil, fmt.Errorf("init format router: %w", err)
	}
	return router, nil
}

func newFunnel(cfg config.Config) *extraction.Funnel {
	var env []string
	if cfg.TessdataPrefix != "" {
		env = append(env, "TESSDATA_PREFIX="+cfg.TessdataPrefix)
	}
	runner := execx.NewExecRunner(cfg.SubprocessTimeout, env...)

	threshold := min(max(cfg.OCRBinarizeThreshold, 0), 255)
	return extraction.NewFunnel(
		extraction.Config{
			WorkDir:        cfg.WorkDir,
			TextLayerFirst: cfg.OCRTextLayerFirst,
			MinPageChars:   cfg.OCRMinPageChars,
			DPI:            cfg.OCRDPI,
			Lang:           cfg.OCRLang,
			PSM:            cfg.OCRPSM,
			SecondaryLang:  cfg.OCRLangSecondary,
			Script:         cfg.OCRScript,
		},
		extraction.PDFTextLayer{},
		extraction.NewPDFToPPM(cfg.PdftoppmBin, runner),
		extraction.Preprocessor{
			Threshold: uint8(threshold),
			Upscale:   cfg.OCRUpscale,
			Deskew:    cfg.OCRDeskew,
		},
		extraction.NewTesseract(cfg.TesseractBin, cfg.TessdataPrefix, runner),
	)
}

func newSummarizer(cfg config.Config) (*summarize.Engine, error) {
	rules := category.DefaultRules()
	if cfg.CategoryRulesPath != "" {
		loaded, err := category.LoadRules(cfg.CategoryRulesPath)
		if err != nil {
			return nil, fmt.Errorf("load category rules: %w", err)
		}
		rules = loaded
		slog.Info("category_rules_loaded", "path", cfg.CategoryRulesPath, "rules", rules.Len())
	}

	llmExecutor := resilience.NewExecutor(resilience.DefaultConfig())
	client := ollama.New(cfg.OllamaURL, ollama.Options{
		Model:              cfg.OllamaModel,
		ConnectTimeout:     cfg.OllamaConnectTimeout,
		ReadTimeout:        cfg.OllamaTimeout,
		Temperature:        cfg.OllamaTemperature,
		NumCtx:             cfg.OllamaNumCtx,
		ResilienceExecutor: llmExecutor,
	})
	return summarize.NewEngine(client, summarize.Config{
		QuickThreshold: cfg.SummaryQuickThreshold,
		ChunkMax:       cfg.SummaryChunkMax,
		RetryBackoff:   cfg.LLMRetryBackoff,
	}, rules), nil
}

// RunWorker consumes tasks until ctx is cancelled, purging expired status
// entries in the background.
func (a *App) RunWorker(ctx context.Context) error {
	go a.runPurger(ctx)
	slog.Info("worker_subscribed", "subject", a.Config.NATSSubject, "concurrency", a.Config.WorkerConcurrency)
	return a.Queue.SubscribeTasks(ctx, a.Processor)
}

func (a *App) runPurger(ctx context.Context) {
	interval := a.Config.PurgeInterval
	if interval <= 0 || a.purger == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.purger.PurgeExpired(ctx)
			if err != nil {
				slog.Warn("status_purge_failed", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("status_purged", "rows", n)
			}
		}
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
