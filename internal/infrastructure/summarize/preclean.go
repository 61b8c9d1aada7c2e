package summarize

import (
	"regexp"
	"strings"
)

var (
	headerLines = []*regexp.Regexp{
		regexp.MustCompile(`^-\s*\d+\s*-$`),
		regexp.MustCompile(`(?i)^page\s+\d+\s*(of\s+\d+)?$`),
		regexp.MustCompile(`^\d+\s*/\s*\d+$`),
		regexp.MustCompile(`^목\s*차$`),
		regexp.MustCompile(`(?i)^(table\s+of\s+)?contents$`),
	}

	zeroWidth      = strings.NewReplacer("\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "")
	hyphenBreak    = regexp.MustCompile(`([^\d])-([ \t]*\n)`)
	lineNumber     = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+`)
	inlineSpaces   = regexp.MustCompile(`[ \t]{2,}`)
	trailingSpaces = regexp.MustCompile(`[ \t]+\n`)
	separatorRuns  = regexp.MustCompile(`[─━═\-_=]{5,}`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// Preclean drops page furniture and layout noise before summarization.
func Preclean(text string) string {
	text = strings.ReplaceAll(text, "\r", "")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, ln := range lines {
		trimmed := strings.TrimSpace(ln)
		if trimmed == "" {
			kept = append(kept, "")
			continue
		}
		if isHeaderLine(trimmed) {
			continue
		}
		kept = append(kept, ln)
	}

	out := strings.Join(kept, "\n")
	out = zeroWidth.Replace(out)
	out = hyphenBreak.ReplaceAllString(out, "${1}\n")
	out = lineNumber.ReplaceAllString(out, "")
	out = inlineSpaces.ReplaceAllString(out, " ")
	out = trailingSpaces.ReplaceAllString(out, "\n")
	out = separatorRuns.ReplaceAllString(out, "")
	out = strings.TrimSpace(out)
	return blankRuns.ReplaceAllString(out, "\n\n")
}

func isHeaderLine(line string) bool {
	for _, re := range headerLines {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
