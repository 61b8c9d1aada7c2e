package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/sumflow/internal/core/domain"
	"github.com/kirillkom/sumflow/internal/infrastructure/category"
)

type generatorFake struct {
	chatFn     func(system, prompt string) (string, error)
	generateFn func(prompt string) (string, error)

	chatPrompts     []string
	generatePrompts []string
}

func (f *generatorFake) Chat(_ context.Context, system, prompt string) (string, error) {
	f.chatPrompts = append(f.chatPrompts, prompt)
	if f.chatFn == nil {
		return "", nil
	}
	return f.chatFn(system, prompt)
}

func (f *generatorFake) Generate(_ context.Context, prompt string) (string, error) {
	f.generatePrompts = append(f.generatePrompts, prompt)
	if f.generateFn == nil {
		return "", nil
	}
	return f.generateFn(prompt)
}

// queueGenerator answers chat and generate calls from one shared script.
func queueGenerator(responses ...string) *generatorFake {
	next := func() (string, error) {
		if len(responses) == 0 {
			return "", errors.New("script exhausted")
		}
		out := responses[0]
		responses = responses[1:]
		return out, nil
	}
	return &generatorFake{
		chatFn:     func(string, string) (string, error) { return next() },
		generateFn: func(string) (string, error) { return next() },
	}
}

func testRules() *category.Rules {
	return category.NewRules([]category.Rule{{Category: "P", Subcategory: "Q", Markers: []string{"amount due"}}})
}

func TestQuickPathSingleCall(t *testing.T) {
	text := strings.Repeat("abcd efgh ", 49) + "abcd efghi"
	gen := &generatorFake{chatFn: func(_, _ string) (string, error) {
		return "```json\n{\"title\":\"Short doc\",\"bullets\":[\"first point\",\"second point\"],\"category\":\"finance\",\"subcategory\":\"tax\"}\n```", nil
	}}
	engine := NewEngine(gen, Config{}, testRules())

	got, err := engine.SummarizeAndCategorize(context.Background(), text)
	if err != nil {
		t.Fatalf("SummarizeAndCategorize() error = %v", err)
	}
	if len(gen.chatPrompts) != 1 || len(gen.generatePrompts) != 0 {
		t.Fatalf("expected exactly one chat call, got chat=%d generate=%d", len(gen.chatPrompts), len(gen.generatePrompts))
	}
	if !strings.Contains(gen.chatPrompts[0], text) {
		t.Fatalf("expected whole text in prompt")
	}
	if got.Title != "Short doc" || len(got.Bullets) != 2 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if got.Category.String() != "finance/tax" || got.Source != domain.CategoryFromLLM {
		t.Fatalf("unexpected category %v %s", got.Category, got.Source)
	}
}

func TestQuickPathFallsBackToGenerateOnShortChat(t *testing.T) {
	gen := &generatorFake{
		chatFn: func(_, _ string) (string, error) { return "{}", nil },
		generateFn: func(string) (string, error) {
			return `{"title":"T","bullets":["b"],"category":"uncategorized","subcategory":"general"}`, nil
		},
	}
	engine := NewEngine(gen, Config{}, testRules())

	got, err := engine.SummarizeAndCategorize(context.Background(), "Please pay the amount due.")
	if err != nil {
		t.Fatalf("SummarizeAndCategorize() error = %v", err)
	}
	if len(gen.generatePrompts) != 1 || !strings.HasPrefix(gen.generatePrompts[0], systemPrompt) {
		t.Fatalf("expected generate fallback carrying the system prompt")
	}
	if got.Category != (domain.Category{Main: "P", Sub: "Q"}) || got.Source != domain.CategoryFromRules {
		t.Fatalf("expected rule category, got %v %s", got.Category, got.Source)
	}
}

func TestQuickPathInvalidContractUsesFallbackSummary(t *testing.T) {
	gen := &generatorFake{
		chatFn: func(_, _ string) (string, error) { return `{"bullets":"not a list"}`, nil },
	}
	engine := NewEngine(gen, Config{}, testRules())

	got, err := engine.SummarizeAndCategorize(context.Background(), "Heading line\nbody of the document")
	if err != nil {
		t.Fatalf("SummarizeAndCategorize() error = %v", err)
	}
	if got.Title != "Heading line" || len(got.Bullets) != 1 || got.Bullets[0] != "body of the document" {
		t.Fatalf("unexpected fallback summary %+v", got)
	}
	if got.Category != domain.SentinelPair() || got.Source != domain.CategoryFromDefault {
		t.Fatalf("expected sentinel category, got %v %s", got.Category, got.Source)
	}
}

func paragraphs(n int) string {
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		parts = append(parts, "Paragraph "+strings.Repeat("content words here ", 5)+"closing.")
	}
	return strings.Join(parts, "\n\n")
}

func TestMapReduceCallsReduce(t *testing.T) {
	gen := &generatorFake{chatFn: func(_, prompt string) (string, error) {
		if strings.Contains(prompt, "Partial summaries") {
			return `{"title":"Merged","bullets":["m1","m2","m3","m4"],"category":"","subcategory":""}`, nil
		}
		return `{"bullets":["chunk point"]}`, nil
	}}
	engine := NewEngine(gen, Config{QuickThreshold: 100, ChunkMax: 120}, testRules())

	text := paragraphs(4) + "\n\nthe amount due is listed"
	got, err := engine.SummarizeAndCategorize(context.Background(), text)
	if err != nil {
		t.Fatalf("SummarizeAndCategorize() error = %v", err)
	}
	if len(gen.chatPrompts) != 6 {
		t.Fatalf("expected 5 chunk calls and 1 reduce call, got %d", len(gen.chatPrompts))
	}
	last := gen.chatPrompts[len(gen.chatPrompts)-1]
	if !strings.Contains(last, `{"bullets":["chunk point"]}`) {
		t.Fatalf("reduce prompt must carry chunk bullets: %s", last)
	}
	if got.Title != "Merged" || len(got.Bullets) != 4 {
		t.Fatalf("unexpected summary %+v", got)
	}
	if got.Category != (domain.Category{Main: "P", Sub: "Q"}) || got.Source != domain.CategoryFromRules {
		t.Fatalf("expected rule category, got %v %s", got.Category, got.Source)
	}
}

func TestMapReduceSkipsReduceForTwoChunks(t *testing.T) {
	gen := &generatorFake{chatFn: func(_, _ string) (string, error) {
		return `{"bullets":["point a","point b"]}`, nil
	}}
	engine := NewEngine(gen, Config{QuickThreshold: 100, ChunkMax: 120}, testRules())

	got, err := engine.SummarizeAndCategorize(context.Background(), paragraphs(2))
	if err != nil {
		t.Fatalf("SummarizeAndCategorize() error = %v", err)
	}
	if len(gen.chatPrompts) != 2 {
		t.Fatalf("expected no reduce call, got %d calls", len(gen.chatPrompts))
	}
	if len(got.Bullets) != 4 {
		t.Fatalf("expected flattened bullets, got %q", got.Bullets)
	}
	if !strings.HasPrefix(got.Title, "Paragraph content words here") {
		t.Fatalf("expected first line title, got %q", got.Title)
	}
	if got.Source != domain.CategoryFromDefault {
		t.Fatalf("expected default category source, got %s", got.Source)
	}
}

func TestChunkBulletsAreClippedAndFiltered(t *testing.T) {
	copied := "paragraph content words here content words here content words"
	long := strings.Repeat("가", 200)
	gen := &generatorFake{chatFn: func(_, _ string) (string, error) {
		return `{"bullets":["` + copied + `","` + long + `","a","b","c","d","e","f","g","h"]}`, nil
	}}
	engine := NewEngine(gen, Config{ChunkMax: 120}, testRules())

	bullets := engine.summarizeChunk(context.Background(), paragraphs(1))
	for _, b := range bullets {
		if b == copied {
			t.Fatalf("verbatim bullet must be dropped")
		}
	}
	if len(bullets) != 7 {
		t.Fatalf("expected 8 clipped bullets minus the copy, got %d: %q", len(bullets), bullets)
	}
	if bullets[0] != strings.Repeat("가", 140)+"…" {
		t.Fatalf("expected truncated bullet, got %q", bullets[0])
	}
}

func TestStrictRetriesUntilValid(t *testing.T) {
	short := "Summary: " + strings.Repeat("x", 50) + "\nCategory: a/b"
	valid := "Summary: " + strings.Repeat("policy ", 36) + "\nCategory: finance / tax"
	gen := queueGenerator(short, short, short, short, valid)

	var sleeps []time.Duration
	engine := NewEngine(gen, Config{RetryBackoff: 2 * time.Second}, testRules())
	engine.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	got := engine.SummarizeStrict(context.Background(), "document text")
	if !got.OK || got.Attempts != 3 {
		t.Fatalf("expected ok after 3 attempts, got %+v", got)
	}
	if got.Summary != strings.TrimSpace(strings.Repeat("policy ", 36)) {
		t.Fatalf("unexpected summary %q", got.Summary)
	}
	if got.RawCategory != "finance / tax" {
		t.Fatalf("unexpected raw category %q", got.RawCategory)
	}
	if len(sleeps) != 2 || sleeps[0] != 2*time.Second || sleeps[1] != 4*time.Second {
		t.Fatalf("unexpected backoff %v", sleeps)
	}
	if strings.Contains(gen.chatPrompts[0], strongReminder) || !strings.Contains(gen.chatPrompts[1], strongReminder) {
		t.Fatalf("strengthened instruction must only be used on retries")
	}
}

func TestStrictFirstChatValid(t *testing.T) {
	valid := "요약: " + strings.Repeat("가나다 ", 70) + "\n카테고리: 행정/국회"
	gen := queueGenerator(valid)
	engine := NewEngine(gen, Config{}, testRules())

	got := engine.SummarizeStrict(context.Background(), "문서")
	if !got.OK || got.Attempts != 1 || len(gen.generatePrompts) != 0 {
		t.Fatalf("unexpected outcome %+v generate=%d", got, len(gen.generatePrompts))
	}
}

func TestStrictExhaustedReturnsMarker(t *testing.T) {
	short := "Summary: too short\nCategory: a/b"
	gen := queueGenerator(short, short, short, short, short, short)
	engine := NewEngine(gen, Config{}, testRules())
	engine.sleep = func(context.Context, time.Duration) error { return nil }

	got := engine.SummarizeStrict(context.Background(), "document")
	if got.OK || got.Summary != domain.SummaryFailureMarker {
		t.Fatalf("expected failure marker, got %+v", got)
	}
	if got.Attempts != 3 || got.LastReason != "retry_too_short" {
		t.Fatalf("unexpected attempts/reason %d %q", got.Attempts, got.LastReason)
	}
	if len(gen.chatPrompts) != 3 || len(gen.generatePrompts) != 3 {
		t.Fatalf("expected chat and generate per round, got %d/%d", len(gen.chatPrompts), len(gen.generatePrompts))
	}
}

func TestStrictTransportErrorsDegrade(t *testing.T) {
	gen := &generatorFake{
		chatFn:     func(_, _ string) (string, error) { return "", errors.New("connection refused") },
		generateFn: func(string) (string, error) { return "", errors.New("connection refused") },
	}
	engine := NewEngine(gen, Config{}, testRules())
	engine.sleep = func(context.Context, time.Duration) error { return nil }

	got := engine.SummarizeStrict(context.Background(), "document")
	if got.OK || got.LastReason != "retry_empty" {
		t.Fatalf("unexpected outcome %+v", got)
	}
}

func TestClassifyUsesRulesForSentinel(t *testing.T) {
	engine := NewEngine(&generatorFake{}, Config{}, testRules())
	got, src := engine.Classify("uncategorized", "Invoice: AMOUNT DUE 100")
	if got != (domain.Category{Main: "P", Sub: "Q"}) || src != domain.CategoryFromRules {
		t.Fatalf("unexpected classification %v %s", got, src)
	}
	got, src = engine.Classify("행정 / 국회 / 본회의", "amount due")
	if got.String() != "행정/국회" || src != domain.CategoryFromLLM {
		t.Fatalf("unexpected classification %v %s", got, src)
	}
}

func TestShortenWordsAndHeavyClip(t *testing.T) {
	if got := shortenWords("one  two\nthree", 100); got != "one two three" {
		t.Fatalf("unexpected %q", got)
	}
	if got := shortenWords("alpha beta gamma delta", 15); got != "alpha beta ..." {
		t.Fatalf("unexpected %q", got)
	}

	heavy := strings.Repeat("h", 130_000) + strings.Repeat("m", 20_000) + strings.Repeat("t", 60_000)
	clipped := clipHeavyInput(heavy)
	if !strings.Contains(clipped, heavyMarker) || strings.Contains(clipped, "mm") {
		t.Fatalf("expected head and tail only")
	}
	if len(clipped) != 120_000+len(heavyMarker)+60_000 {
		t.Fatalf("unexpected clipped length %d", len(clipped))
	}
}

func TestParseBulletContract(t *testing.T) {
	got, err := parseBulletContract("Sure! {\"bullets\":[\"x\"],\"title\":\" T \"} trailing")
	if err != nil {
		t.Fatalf("parseBulletContract() error = %v", err)
	}
	if got.Title != "T" || len(got.Bullets) != 1 {
		t.Fatalf("unexpected contract %+v", got)
	}
	if _, err := parseBulletContract(`{"title":"no bullets"}`); err == nil {
		t.Fatalf("expected schema error for missing bullets")
	}
	if _, err := parseBulletContract("no json here"); err == nil {
		t.Fatalf("expected error without json")
	}
}
