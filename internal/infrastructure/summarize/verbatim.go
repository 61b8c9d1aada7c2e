package summarize

import (
	"strings"
	"unicode"
)

const verbatimWindow = 8

// verbatimIndex holds every run of verbatimWindow consecutive words of a source chunk.
type verbatimIndex map[string]struct{}

func newVerbatimIndex(source string) verbatimIndex {
	words := wordTokens(source)
	idx := make(verbatimIndex)
	for i := 0; i+verbatimWindow <= len(words); i++ {
		idx[strings.Join(words[i:i+verbatimWindow], " ")] = struct{}{}
	}
	return idx
}

// copies reports whether text shares a run of verbatimWindow or more words with the source.
func (idx verbatimIndex) copies(text string) bool {
	words := wordTokens(text)
	for i := 0; i+verbatimWindow <= len(words); i++ {
		if _, ok := idx[strings.Join(words[i:i+verbatimWindow], " ")]; ok {
			return true
		}
	}
	return false
}

// dropVerbatim removes bullets that copy the source. If every bullet copies,
// the unfiltered list is returned.
func dropVerbatim(bullets []string, source string) []string {
	idx := newVerbatimIndex(source)
	kept := make([]string, 0, len(bullets))
	for _, b := range bullets {
		if !idx.copies(b) {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		return bullets
	}
	return kept
}

func wordTokens(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
}
