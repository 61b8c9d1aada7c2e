package domain

import (
	"strings"
	"time"
)

const (
	SentinelCategory   = "uncategorized"
	DefaultSubcategory = "general"

	// SummaryFailureMarker replaces the summary when every generation attempt failed validation.
	SummaryFailureMarker = "[LLM error: summary generation failed]"
)

type Category struct {
	Main string `json:"main"`
	Sub  string `json:"sub"`
}

func SentinelPair() Category {
	return Category{Main: SentinelCategory, Sub: DefaultSubcategory}
}

func (c Category) String() string {
	return c.Main + "/" + c.Sub
}

func (c Category) IsSentinel() bool {
	return c.Main == SentinelCategory
}

type CategorySource string

const (
	CategoryFromLLM     CategorySource = "llm"
	CategoryFromRules   CategorySource = "rules"
	CategoryFromDefault CategorySource = "default"
)

// ChunkSummary holds the bullets produced for one input chunk.
type ChunkSummary struct {
	Bullets []string `json:"bullets"`
}

type FinalSummary struct {
	Title    string         `json:"title"`
	Bullets  []string       `json:"bullets"`
	Category Category       `json:"category"`
	Source   CategorySource `json:"categorySource"`
}

// Text renders the summary as a title line followed by dash bullets.
func (s FinalSummary) Text() string {
	var b strings.Builder
	b.WriteString(s.Title)
	for _, bullet := range s.Bullets {
		b.WriteString("\n- ")
		b.WriteString(bullet)
	}
	return b.String()
}

// StrictSummary is the outcome of the retrying two-line generation mode.
// OK is false when every attempt failed validation; Summary then holds SummaryFailureMarker.
type StrictSummary struct {
	Summary     string        `json:"summary"`
	RawCategory string        `json:"rawCategory,omitempty"`
	Raw         string        `json:"-"`
	OK          bool          `json:"ok"`
	Attempts    int           `json:"attempts"`
	LastReason  string        `json:"lastReason,omitempty"`
	Elapsed     time.Duration `json:"-"`
}

// TwoLine renders the canonical "Summary: ...\nCategory: main/sub" form.
func TwoLine(summary string, c Category) string {
	return "Summary: " + summary + "\nCategory: " + c.String()
}
