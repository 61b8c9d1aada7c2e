package summarize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const minStrictSummaryRunes = 180

var (
	twoLinePattern = regexp.MustCompile(`(?is)^\s*(?:summary|요약)\s*[:：]\s*(.+?)\r?\n+\s*(?:category|카테고리)\s*[:：]\s*([^\r\n]+?)\s*$`)
	fileSeparator  = regexp.MustCompile(`<\|file_separator\|>`)
	bannedTokens   = []string{"error", "failed", "exception", "traceback"}
)

// twoLine is the parsed strict response: one summary paragraph and a raw category.
type twoLine struct {
	Summary  string
	Category string
}

// parseTwoLine accepts "Summary: ...\nCategory: main/sub", optionally fenced.
func parseTwoLine(raw string) (twoLine, bool) {
	s := fileSeparator.ReplaceAllString(stripCodeFence(raw), "")
	m := twoLinePattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return twoLine{}, false
	}
	return twoLine{
		Summary:  strings.TrimSpace(m[1]),
		Category: strings.TrimSpace(m[2]),
	}, true
}

// validateTwoLine parses raw and checks summary length and banned tokens.
// The returned reason is empty when the response is valid.
func validateTwoLine(raw string) (twoLine, string) {
	if strings.TrimSpace(raw) == "" {
		return twoLine{}, "empty"
	}
	parsed, ok := parseTwoLine(raw)
	if !ok {
		return twoLine{}, "bad_format"
	}
	if utf8.RuneCountInString(parsed.Summary) < minStrictSummaryRunes {
		return parsed, "too_short"
	}
	lower := strings.ToLower(parsed.Summary)
	for _, token := range bannedTokens {
		if strings.Contains(lower, token) {
			return parsed, "banned_token"
		}
	}
	return parsed, ""
}
