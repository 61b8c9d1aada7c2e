package summarize

import (
	"strings"
	"unicode/utf8"
)

const (
	promptDocumentRunes = 8000

	heavyInputRunes = 200_000
	heavyHeadRunes  = 120_000
	heavyTailRunes  = 60_000
	heavyMarker     = "\n...[omitted]...\n"
)

const systemPrompt = `You are an expert summarizer for government, legislative and business documents.
Answer in the language of the source document. Produce short, abstract summaries that do not copy long spans of the source.
Do NOT copy any sentence verbatim; limit any direct quote to at most 8 consecutive words.
Be precise about policy changes, legal clauses, thresholds and dates.`

const categoryGuide = `Category guide (examples):
- policy/legislative report
- policy/legislative review
- industry/cooperatives
- organization/personnel
- finance/subsidies
Pick a concise [main]/[sub] pair that fits the document, in the document's language.
`

const chunkPromptTemplate = `Summarize the text below into 3 to 6 concise, abstract bullets.
- do not copy 8 or more consecutive words from the text
- focus on policies, clauses, figures, targets and effects
- each bullet at most 120 characters
- return JSON only

{
  "bullets": ["...", "...", "..."]
}

Text:
`

const reducePromptTemplate = `Merge the partial summaries into one summary of the whole document.
- one title line (at most 80 characters)
- 4 to 8 bullets, each at most 120 characters, no duplicates or filler
- choose category and subcategory using the guide below
` + categoryGuide + `- do not copy 8 or more consecutive words from the source
- return JSON only

{
  "title": "...",
  "bullets": ["...", "..."],
  "category": "policy",
  "subcategory": "legislative report"
}

Partial summaries (JSON array):
`

const strictSystemPrompt = "You summarize and classify public, policy and legal documents. Always follow the required two-line format exactly."

const twoLineGuide = `Based on the document below, output exactly two lines. No markdown, code blocks, explanations or blank lines.

Format:
Summary: <close to 200 characters (at least 180), 3 to 6 sentences in one paragraph. State concretely what changes, why and how. No bullets, headers or closing remarks.>
Category: <main category/subcategory>

Category rules:
- choose exactly two levels joined by a single '/'.
- if the document spans several areas, pick the dominant one plus one supporting level.
- examples: administration/parliament, judiciary/law, education/policy. Never use three levels.

Summary rules:
- for bills, policies and administrative documents cover the reason for change, the key changes and the expected effect.
- include concrete names of institutions, procedures and figures.
- stay factual; leave out emotion and rhetoric.
`

const strongReminder = "- Your previous response violated the format or was too short. This time you must follow the format and the length (at least 180 characters)."

func chunkPrompt(chunk string) string {
	return chunkPromptTemplate + chunk + "\n"
}

func reducePrompt(chunksJSON string) string {
	return reducePromptTemplate + chunksJSON + "\n"
}

func quickPrompt(cleaned string) string {
	return reducePrompt(`[{"bullets":[]}]`) + "\nFull document text:\n" + clipRunes(cleaned, promptDocumentRunes)
}

func twoLinePrompt(text string, strong bool) string {
	var b strings.Builder
	b.WriteString(twoLineGuide)
	if strong {
		b.WriteString(strongReminder)
		b.WriteByte('\n')
	}
	b.WriteString("\nThe document follows.\n\n")
	b.WriteString(shortenWords(text, promptDocumentRunes))
	return b.String()
}

// shortenWords collapses whitespace and cuts text on a word boundary so the
// result, including the " ..." placeholder, fits in width runes.
func shortenWords(text string, width int) string {
	const placeholder = " ..."
	words := strings.Fields(text)
	joined := strings.Join(words, " ")
	if utf8.RuneCountInString(joined) <= width {
		return joined
	}

	var b strings.Builder
	used := 0
	budget := width - utf8.RuneCountInString(placeholder)
	for _, w := range words {
		n := utf8.RuneCountInString(w)
		if used > 0 {
			n++
		}
		if used+n > budget {
			break
		}
		if used > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
		used += n
	}
	if used == 0 {
		return strings.TrimSpace(placeholder)
	}
	return b.String() + placeholder
}

// clipHeavyInput keeps the head and tail of very long documents.
func clipHeavyInput(text string) string {
	runes := []rune(text)
	if len(runes) <= heavyInputRunes {
		return text
	}
	return string(runes[:heavyHeadRunes]) + heavyMarker + string(runes[len(runes)-heavyTailRunes:])
}
