package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/sumflow/internal/core/domain"
	"github.com/kirillkom/sumflow/internal/core/ports"
)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(step time.Duration) *stepClock {
	return &stepClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC), step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type statusFake struct {
	mu      sync.Mutex
	latest  map[string]domain.Progress
	history []domain.Progress
	err     error
}

func newStatusFake() *statusFake {
	return &statusFake{latest: map[string]domain.Progress{}}
}

func (f *statusFake) SetProgress(_ context.Context, p domain.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.latest[p.TaskID] = p
	f.history = append(f.history, p)
	return nil
}

func (f *statusFake) GetProgress(_ context.Context, taskID string) (domain.Progress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.latest[taskID]
	if !ok {
		return domain.Progress{}, domain.WrapError(domain.ErrTaskNotFound, "get progress", errors.New(taskID))
	}
	return p, nil
}

func (f *statusFake) percents() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, 0, len(f.history))
	for _, p := range f.history {
		out = append(out, p.Percent)
	}
	return out
}

type cacheFake struct {
	texts map[string]string
	ttl   time.Duration
	err   error
}

func (f *cacheFake) SetExtractedText(_ context.Context, taskID, text string, ttl time.Duration) error {
	if f.err != nil {
		return f.err
	}
	if f.texts == nil {
		f.texts = map[string]string{}
	}
	f.texts[taskID] = text
	f.ttl = ttl
	return nil
}

func (f *cacheFake) GetExtractedText(_ context.Context, taskID string) (string, error) {
	text, ok := f.texts[taskID]
	if !ok {
		return "", domain.WrapError(domain.ErrTaskNotFound, "get text", errors.New(taskID))
	}
	return text, nil
}

type indexFake struct {
	tasks map[string][]string
	err   error
}

func (f *indexFake) AppendTask(_ context.Context, batchID, taskID string) error {
	if f.err != nil {
		return f.err
	}
	if f.tasks == nil {
		f.tasks = map[string][]string{}
	}
	f.tasks[batchID] = append(f.tasks[batchID], taskID)
	return nil
}

func (f *indexFake) ListTasks(_ context.Context, batchID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tasks[batchID], nil
}

type resultsFake struct {
	mu      sync.Mutex
	results map[string]domain.TaskResult
	metas   map[string]domain.BatchMeta
	saves   int
	saveErr error
}

func newResultsFake() *resultsFake {
	return &resultsFake{results: map[string]domain.TaskResult{}, metas: map[string]domain.BatchMeta{}}
}

func (f *resultsFake) SaveResult(_ context.Context, r domain.TaskResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.results[r.BatchID+"/"+r.TaskID] = r
	return nil
}

func (f *resultsFake) LoadResult(_ context.Context, batchID, taskID string) (*domain.TaskResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.results[batchID+"/"+taskID]
	if !ok {
		return nil, domain.WrapError(domain.ErrTaskNotFound, "load result", errors.New(taskID))
	}
	return &r, nil
}

func (f *resultsFake) ListResults(_ context.Context, batchID string) ([]domain.TaskResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TaskResult
	for _, r := range f.results {
		if r.BatchID == batchID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *resultsFake) SaveBatchMeta(_ context.Context, meta domain.BatchMeta) error {
	f.metas[meta.BatchID] = meta
	return nil
}

func (f *resultsFake) LoadBatchMeta(_ context.Context, batchID string) (*domain.BatchMeta, error) {
	meta, ok := f.metas[batchID]
	if !ok {
		return nil, domain.WrapError(domain.ErrTaskNotFound, "load batch meta", errors.New(batchID))
	}
	return &meta, nil
}

type filesFake struct {
	staged      []domain.SourceFile
	stageErr    map[string]error
	relocations int
	locateErr   error
	relocateErr error
}

func (f *filesFake) SaveStaged(_ context.Context, batchID, filename string, body io.Reader) (domain.SourceFile, error) {
	if err := f.stageErr[filename]; err != nil {
		return domain.SourceFile{}, err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return domain.SourceFile{}, err
	}
	src := domain.SourceFile{
		Path:        "/uploads/" + batchID + "/" + filename,
		Filename:    filename,
		ContentHash: "0123456789ab",
		Size:        int64(len(data)),
		BatchID:     batchID,
	}
	f.staged = append(f.staged, src)
	return src, nil
}

func (f *filesFake) Locate(_ context.Context, src domain.SourceFile) (string, error) {
	if f.locateErr != nil {
		return "", f.locateErr
	}
	return src.Path, nil
}

func (f *filesFake) Relocate(_ context.Context, src domain.SourceFile) (string, string, error) {
	if f.relocateErr != nil {
		return "", "", f.relocateErr
	}
	f.relocations++
	return "file_deadbeef.pdf", "/uploads/" + src.BatchID + "/file_deadbeef.pdf", nil
}

type queueFake struct {
	published []domain.TaskMessage
	err       error
	// failAfter > 0 fails every publish once that many have succeeded.
	failAfter int
}

func (f *queueFake) PublishTask(_ context.Context, msg domain.TaskMessage) error {
	if f.err != nil && (f.failAfter == 0 || len(f.published) >= f.failAfter) {
		return f.err
	}
	f.published = append(f.published, msg)
	return nil
}

func (f *queueFake) SubscribeTasks(context.Context, ports.TaskProcessor) error {
	return nil
}

type routerFake struct {
	decision domain.IngestDecision
	err      error
	calls    int
}

func (f *routerFake) Route(_ context.Context, path string) (domain.IngestDecision, error) {
	f.calls++
	if f.err != nil {
		return domain.IngestDecision{}, f.err
	}
	d := f.decision
	if d.ArtifactPath == "" {
		d.ArtifactPath = path
	}
	return d, nil
}

type extractorFake struct {
	result        domain.ExtractionResult
	errs          []error
	extractCalls  int
	readTextCalls int
}

func (f *extractorFake) next() error {
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *extractorFake) Extract(context.Context, string) (domain.ExtractionResult, error) {
	f.extractCalls++
	if err := f.next(); err != nil {
		return domain.ExtractionResult{}, err
	}
	return f.result, nil
}

func (f *extractorFake) ReadText(context.Context, string) (domain.ExtractionResult, error) {
	f.readTextCalls++
	if err := f.next(); err != nil {
		return domain.ExtractionResult{}, err
	}
	return f.result, nil
}

type summarizerFake struct {
	strict      domain.StrictSummary
	final       domain.FinalSummary
	category    domain.Category
	source      domain.CategorySource
	strictCalls int
	finalCalls  int
	rawCategory string
}

func (f *summarizerFake) SummarizeAndCategorize(context.Context, string) (domain.FinalSummary, error) {
	f.finalCalls++
	return f.final, nil
}

func (f *summarizerFake) SummarizeStrict(context.Context, string) domain.StrictSummary {
	f.strictCalls++
	return f.strict
}

func (f *summarizerFake) Classify(rawCategory, _ string) (domain.Category, domain.CategorySource) {
	f.rawCategory = rawCategory
	return f.category, f.source
}

// retrierFake mirrors the production policy: fatal kinds stop immediately.
type retrierFake struct {
	maxAttempts int
	attempts    int
}

func (f *retrierFake) Retry(ctx context.Context, _ string, fn func(context.Context) error) error {
	var err error
	for f.attempts < f.maxAttempts {
		f.attempts++
		if err = fn(ctx); err == nil || domain.IsFatal(err) {
			return err
		}
	}
	return err
}

type metricsFake struct {
	started  int
	finished []domain.TaskState
	gens     []bool
}

func (f *metricsFake) StartTask() { f.started++ }
func (f *metricsFake) FinishTask(_ time.Duration, state domain.TaskState) {
	f.finished = append(f.finished, state)
}
func (f *metricsFake) ObserveQueueLag(time.Duration)            {}
func (f *metricsFake) ObserveStage(domain.Stage, time.Duration) {}
func (f *metricsFake) ObserveGeneration(_ int, ok bool)         { f.gens = append(f.gens, ok) }

var (
	_ ports.StatusStore   = (*statusFake)(nil)
	_ ports.TextCache     = (*cacheFake)(nil)
	_ ports.BatchIndex    = (*indexFake)(nil)
	_ ports.ResultStore   = (*resultsFake)(nil)
	_ ports.FileStorage   = (*filesFake)(nil)
	_ ports.TaskQueue     = (*queueFake)(nil)
	_ ports.FormatRouter  = (*routerFake)(nil)
	_ ports.TextExtractor = (*extractorFake)(nil)
	_ ports.Summarizer    = (*summarizerFake)(nil)
	_ ports.TaskMetrics   = (*metricsFake)(nil)
)
