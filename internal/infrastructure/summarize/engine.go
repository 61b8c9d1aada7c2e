package summarize

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/sumflow/internal/core/domain"
	"github.com/kirillkom/sumflow/internal/core/ports"
	"github.com/kirillkom/sumflow/internal/infrastructure/category"
	"github.com/kirillkom/sumflow/internal/infrastructure/chunking"
)

const (
	maxBullets      = 8
	maxBulletRunes  = 140
	maxTitleRunes   = 120
	minContentRunes = 5
	untitled        = "Untitled"
)

type Config struct {
	// QuickThreshold is the cleaned length (runes) at or below which one call summarizes the whole text.
	QuickThreshold int
	ChunkMax       int
	// StrictRounds is the number of strict two-line rounds, the first included.
	StrictRounds int
	RetryBackoff time.Duration
}

func (c Config) normalize() Config {
	if c.QuickThreshold <= 0 {
		c.QuickThreshold = 2500
	}
	if c.ChunkMax <= 0 {
		c.ChunkMax = 1800
	}
	if c.StrictRounds <= 0 {
		c.StrictRounds = 3
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	return c
}

// Engine produces summaries and categories through an external text generator.
type Engine struct {
	gen      ports.TextGenerator
	cfg      Config
	splitter *chunking.Splitter
	rules    *category.Rules
	sleep    func(context.Context, time.Duration) error
	now      func() time.Time
}

func NewEngine(gen ports.TextGenerator, cfg Config, rules *category.Rules) *Engine {
	cfg = cfg.normalize()
	if rules == nil {
		rules = category.DefaultRules()
	}
	return &Engine{
		gen:      gen,
		cfg:      cfg,
		splitter: chunking.NewSplitter(cfg.ChunkMax),
		rules:    rules,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// SummarizeAndCategorize runs the bullet-contract pipeline: fast path for short
// text, map-reduce otherwise. Generation failures degrade to a heuristic summary;
// only context cancellation is returned as an error.
func (e *Engine) SummarizeAndCategorize(ctx context.Context, text string) (domain.FinalSummary, error) {
	cleaned := Preclean(text)
	if cleaned == "" {
		cleaned = strings.TrimSpace(text)
	}

	length := utf8.RuneCountInString(cleaned)
	if length <= e.cfg.QuickThreshold {
		slog.Info("summarize_path", "path", "quick", "chars", length)
		summary := e.quickSummary(ctx, cleaned)
		return summary, ctx.Err()
	}

	chunks := e.splitter.Split(cleaned)
	slog.Info("summarize_path", "path", "map_reduce", "chars", length, "chunks", len(chunks))

	sets := make([][]string, 0, len(chunks))
	for idx, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return domain.FinalSummary{}, err
		}
		bullets := e.summarizeChunk(ctx, chunk)
		slog.Debug("chunk_summarized", "chunk", idx+1, "of", len(chunks), "bullets", len(bullets))
		if len(bullets) > 0 {
			sets = append(sets, bullets)
		}
	}

	if len(sets) == 0 {
		slog.Warn("summarize_fallback", "reason", "all_chunks_empty")
		return e.withRules(fallbackSummary(cleaned), cleaned), ctx.Err()
	}

	if len(sets) <= 2 {
		flat := make([]string, 0, maxBullets)
		for _, set := range sets {
			flat = append(flat, set...)
		}
		summary := domain.FinalSummary{
			Title:   firstLineTitle(cleaned),
			Bullets: clipBullets(flat, maxBullets, maxBulletRunes),
		}
		return e.withRules(summary, cleaned), ctx.Err()
	}

	summary := e.reduce(ctx, sets, cleaned)
	return summary, ctx.Err()
}

// Classify resolves a category from a model-declared value and the document text.
func (e *Engine) Classify(rawCategory, text string) (domain.Category, domain.CategorySource) {
	return category.Resolve(rawCategory, Preclean(text), e.rules)
}

func (e *Engine) quickSummary(ctx context.Context, cleaned string) domain.FinalSummary {
	content := e.complete(ctx, systemPrompt, quickPrompt(cleaned))
	contract, err := parseBulletContract(content)
	if err != nil {
		slog.Warn("summary_contract_invalid", "path", "quick", "error", err)
		return e.withRules(fallbackSummary(cleaned), cleaned)
	}

	bullets := clipBullets(contract.Bullets, maxBullets, maxBulletRunes)
	if len(bullets) == 0 {
		return e.withRules(fallbackSummary(cleaned), cleaned)
	}
	summary := domain.FinalSummary{
		Title:   titleOrDefault(contract.Title),
		Bullets: bullets,
	}
	summary.Category, summary.Source = e.resolve(contract, cleaned)
	return summary
}

func (e *Engine) summarizeChunk(ctx context.Context, chunk string) []string {
	content := e.complete(ctx, systemPrompt, chunkPrompt(chunk))
	contract, err := parseBulletContract(content)
	if err != nil {
		slog.Warn("summary_contract_invalid", "path", "chunk", "error", err)
		return nil
	}
	bullets := clipBullets(contract.Bullets, maxBullets, maxBulletRunes)
	return dropVerbatim(bullets, chunk)
}

func (e *Engine) reduce(ctx context.Context, sets [][]string, cleaned string) domain.FinalSummary {
	payload := make([]domain.ChunkSummary, 0, len(sets))
	for _, set := range sets {
		payload = append(payload, domain.ChunkSummary{Bullets: set})
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return e.withRules(fallbackSummary(cleaned), cleaned)
	}

	content := e.complete(ctx, systemPrompt, reducePrompt(string(encoded)))
	contract, err := parseBulletContract(content)
	if err != nil {
		slog.Warn("summary_contract_invalid", "path", "reduce", "error", err)
		return e.withRules(fallbackSummary(cleaned), cleaned)
	}

	summary := domain.FinalSummary{
		Title:   titleOrDefault(contract.Title),
		Bullets: clipBullets(contract.Bullets, maxBullets, maxBulletRunes),
	}
	summary.Category, summary.Source = e.resolve(contract, cleaned)
	return summary
}

func (e *Engine) resolve(contract bulletContract, cleaned string) (domain.Category, domain.CategorySource) {
	declared := category.NormalizePair(contract.Category, contract.Subcategory)
	return category.Resolve(declared.String(), cleaned, e.rules)
}

func (e *Engine) withRules(summary domain.FinalSummary, cleaned string) domain.FinalSummary {
	summary.Category, summary.Source = category.Resolve("", cleaned, e.rules)
	return summary
}

// complete calls chat and falls back to generate when chat yields nothing usable.
func (e *Engine) complete(ctx context.Context, system, prompt string) string {
	content, err := e.gen.Chat(ctx, system, prompt)
	if err != nil {
		slog.Warn("llm_chat_failed", "error", err)
	}
	if utf8.RuneCountInString(strings.TrimSpace(content)) >= minContentRunes {
		return content
	}
	if ctx.Err() != nil {
		return ""
	}

	slog.Warn("llm_chat_short", "chars", utf8.RuneCountInString(content), "fallback", "generate")
	content, err = e.gen.Generate(ctx, system+"\n\n"+prompt)
	if err != nil {
		slog.Warn("llm_generate_failed", "error", err)
		return ""
	}
	return content
}

// fallbackSummary derives a summary from the text itself: first line as title,
// following text cut into up to five 100-rune bullets.
func fallbackSummary(cleaned string) domain.FinalSummary {
	lines := strings.Split(strings.TrimSpace(cleaned), "\n")
	title := firstLineTitle(cleaned)

	body := []rune(clipRunes(strings.Join(lines[1:], " "), 600))
	bullets := make([]string, 0, 5)
	for start := 0; start < len(body) && len(bullets) < 5; start += 100 {
		end := min(start+100, len(body))
		if piece := strings.TrimSpace(string(body[start:end])); piece != "" {
			bullets = append(bullets, piece)
		}
	}
	if len(bullets) == 0 {
		bullets = []string{title}
	}
	return domain.FinalSummary{Title: title, Bullets: bullets}
}

func firstLineTitle(cleaned string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(cleaned), "\n")
	return titleOrDefault(line)
}

func titleOrDefault(title string) string {
	title = strings.TrimSpace(clipRunes(strings.TrimSpace(title), maxTitleRunes))
	if title == "" {
		return untitled
	}
	return title
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
