package summarize

import (
	"strings"
	"testing"
)

func summaryOf(n int) string {
	return strings.Repeat("a", n)
}

func TestParseTwoLineVariants(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		summary  string
		category string
	}{
		{"plain", "Summary: body text\nCategory: finance/tax", "body text", "finance/tax"},
		{"fenced", "```text\nSummary: body\r\nCategory: a / b\n```", "body", "a / b"},
		{"korean", "요약 ： 본문 요약\n\n카테고리 : 행정/국회", "본문 요약", "행정/국회"},
		{"multiline summary", "summary: line one\nline two\nCATEGORY: x/y  ", "line one\nline two", "x/y"},
		{"separator artifact", "Summary: body<|file_separator|>\nCategory: a/b", "body", "a/b"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseTwoLine(tc.raw)
			if !ok {
				t.Fatalf("parseTwoLine(%q) failed", tc.raw)
			}
			if got.Summary != tc.summary || got.Category != tc.category {
				t.Fatalf("parseTwoLine() = %+v", got)
			}
		})
	}
}

func TestParseTwoLineRejectsOtherShapes(t *testing.T) {
	for _, raw := range []string{
		"",
		"just a paragraph of text",
		"Summary: only the summary",
		"Category: a/b\nSummary: reversed",
	} {
		if _, ok := parseTwoLine(raw); ok {
			t.Fatalf("parseTwoLine(%q) should fail", raw)
		}
	}
}

func TestValidateTwoLineLength(t *testing.T) {
	if _, reason := validateTwoLine("Summary: " + summaryOf(179) + "\nCategory: a/b"); reason != "too_short" {
		t.Fatalf("179 chars must be rejected, reason=%q", reason)
	}
	if _, reason := validateTwoLine("Summary: " + summaryOf(180) + "\nCategory: a/b"); reason != "" {
		t.Fatalf("180 chars must pass, reason=%q", reason)
	}
	korean := strings.Repeat("가", 180)
	if _, reason := validateTwoLine("요약: " + korean + "\n카테고리: 행정/국회"); reason != "" {
		t.Fatalf("length counts characters, reason=%q", reason)
	}
}

func TestValidateTwoLineBannedTokens(t *testing.T) {
	for _, token := range []string{"Error", "FAILED", "exception", "Traceback"} {
		raw := "Summary: " + summaryOf(200) + " " + token + "\nCategory: a/b"
		if _, reason := validateTwoLine(raw); reason != "banned_token" {
			t.Fatalf("token %q must be rejected, reason=%q", token, reason)
		}
	}
}

func TestValidateTwoLineRequiresFormat(t *testing.T) {
	if _, reason := validateTwoLine(summaryOf(400)); reason != "bad_format" {
		t.Fatalf("raw text without labels must be rejected, reason=%q", reason)
	}
	if _, reason := validateTwoLine("   "); reason != "empty" {
		t.Fatalf("unexpected reason %q", reason)
	}
}
