package chunking

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var paragraphBreak = regexp.MustCompile(`\n{2,}`)

// Splitter packs paragraphs into chunks of at most MaxChars runes.
// Paragraphs longer than the budget are split on sentence boundaries, and
// sentences longer than the budget are cut hard.
type Splitter struct {
	MaxChars int
}

func NewSplitter(maxChars int) *Splitter {
	if maxChars <= 0 {
		maxChars = 1800
	}
	return &Splitter{MaxChars: maxChars}
}

func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.MaxChars {
		return []string{text}
	}

	var (
		out []string
		buf []string
		acc int
	)
	flush := func() {
		if len(buf) > 0 {
			out = append(out, strings.Join(buf, "\n"))
			buf, acc = buf[:0], 0
		}
	}
	add := func(piece string, sep int) {
		n := utf8.RuneCountInString(piece)
		if acc+n+sep > s.MaxChars && len(buf) > 0 {
			flush()
		}
		buf = append(buf, piece)
		acc += n + sep
	}

	for _, para := range paragraphBreak.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if utf8.RuneCountInString(para) <= s.MaxChars {
			add(para, 2)
			continue
		}
		for _, sentence := range splitSentences(para) {
			for _, piece := range hardCut(sentence, s.MaxChars-1) {
				add(piece, 1)
			}
		}
	}
	flush()

	if len(out) == 0 {
		return []string{string([]rune(text)[:s.MaxChars])}
	}
	return out
}

// splitSentences breaks after '.', '!', '?' or '。' when followed by whitespace.
func splitSentences(para string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(para)
	for i := 0; i < len(runes)-1; i++ {
		switch runes[i] {
		case '.', '!', '?', '。':
		default:
			continue
		}
		if !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		out = append(out, s)
	}
	return out
}

func hardCut(s string, limit int) []string {
	if limit <= 0 {
		limit = 1
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return []string{s}
	}
	out := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		out = append(out, string(runes[start:end]))
	}
	return out
}
