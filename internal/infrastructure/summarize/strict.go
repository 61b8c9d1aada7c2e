package summarize

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

// SummarizeStrict asks for the two-line "Summary:/Category:" form. Each round
// tries chat and then generate; rounds after the first use a strengthened
// instruction and wait RetryBackoff*round beforehand. When every round fails
// validation the failure marker is returned with OK=false.
func (e *Engine) SummarizeStrict(ctx context.Context, text string) domain.StrictSummary {
	started := e.now()
	src := clipHeavyInput(text)

	var (
		attempts   int
		lastReason string
	)
	for round := 1; round <= e.cfg.StrictRounds; round++ {
		if round > 1 {
			if err := e.sleep(ctx, e.cfg.RetryBackoff*time.Duration(round-1)); err != nil {
				lastReason = "cancelled"
				break
			}
		}

		strong := round > 1
		raw, parsed, reason := e.strictRound(ctx, src, strong)
		attempts = round
		if reason == "" {
			slog.Info("llm_attempt", "round", round, "ok", true)
			return domain.StrictSummary{
				Summary:     parsed.Summary,
				RawCategory: parsed.Category,
				Raw:         raw,
				OK:          true,
				Attempts:    attempts,
				Elapsed:     e.now().Sub(started),
			}
		}

		lastReason = reason
		if strong {
			lastReason = "retry_" + reason
		}
		slog.Warn("llm_attempt", "round", round, "ok", false, "reason", lastReason)
	}

	return domain.StrictSummary{
		Summary:    domain.SummaryFailureMarker,
		OK:         false,
		Attempts:   attempts,
		LastReason: lastReason,
		Elapsed:    e.now().Sub(started),
	}
}

func (e *Engine) strictRound(ctx context.Context, src string, strong bool) (string, twoLine, string) {
	prompt := twoLinePrompt(src, strong)

	raw, err := e.gen.Chat(ctx, strictSystemPrompt, prompt)
	if err != nil {
		slog.Warn("llm_chat_failed", "error", err)
	}
	parsed, reason := validateTwoLine(raw)
	if reason == "" {
		return raw, parsed, ""
	}
	if ctx.Err() != nil {
		return raw, parsed, reason
	}

	raw, err = e.gen.Generate(ctx, strictSystemPrompt+"\n\n"+prompt)
	if err != nil {
		slog.Warn("llm_generate_failed", "error", err)
	}
	parsed, reason = validateTwoLine(raw)
	return raw, parsed, reason
}
