package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	got := NewSplitter(100).Split("  one paragraph only  ")
	if len(got) != 1 || got[0] != "one paragraph only" {
		t.Fatalf("unexpected chunks %q", got)
	}
}

func TestSplitEmpty(t *testing.T) {
	if got := NewSplitter(0).Split(" \n\n "); got != nil {
		t.Fatalf("expected nil, got %q", got)
	}
}

func TestSplitPacksParagraphs(t *testing.T) {
	para := strings.Repeat("a", 40)
	text := strings.Join([]string{para, para, para, para}, "\n\n\n")

	got := NewSplitter(100).Split(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %q", len(got), got)
	}
	if got[0] != para+"\n"+para {
		t.Fatalf("unexpected first chunk %q", got[0])
	}
}

func TestSplitLongParagraphOnSentences(t *testing.T) {
	sentence := strings.Repeat("word ", 9) + "end."
	para := strings.Repeat(sentence+" ", 6)

	got := NewSplitter(120).Split(para)
	if len(got) < 2 {
		t.Fatalf("expected several chunks, got %q", got)
	}
	for _, chunk := range got {
		if utf8.RuneCountInString(chunk) > 120 {
			t.Fatalf("chunk exceeds budget: %d", utf8.RuneCountInString(chunk))
		}
		for _, line := range strings.Split(chunk, "\n") {
			if !strings.HasSuffix(line, "end.") {
				t.Fatalf("chunk split mid-sentence: %q", line)
			}
		}
	}
}

func TestSplitHardCutsOversizeSentence(t *testing.T) {
	text := strings.Repeat("가", 250)
	got := NewSplitter(100).Split(text)
	total := 0
	for _, chunk := range got {
		n := utf8.RuneCountInString(chunk)
		if n > 100 {
			t.Fatalf("chunk exceeds budget: %d", n)
		}
		total += n
	}
	if total != 250 {
		t.Fatalf("expected all 250 runes kept, got %d", total)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("첫 문장입니다. Second one! Third? 마지막。 tail")
	want := []string{"첫 문장입니다.", "Second one!", "Third?", "마지막。", "tail"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("splitSentences() = %q, want %q", got, want)
	}
}
