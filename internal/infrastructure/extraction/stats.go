package extraction

import (
	"math"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

func computeStats(text string, pages []domain.PageExtraction, script *unicode.RangeTable, tier domain.ExtractionTier) domain.ExtractionStats {
	stats := domain.ExtractionStats{
		Chars: utf8.RuneCountInString(text),
		Tier:  tier,
	}
	if stats.Chars > 0 && script != nil {
		matched := 0
		for _, r := range text {
			if unicode.Is(script, r) {
				matched++
			}
		}
		stats.ScriptRatio = round(float64(matched)/float64(stats.Chars), 3)
	}

	var sum float64
	var n int
	for _, p := range pages {
		if p.Confidence != nil {
			sum += *p.Confidence
			n++
		}
	}
	if n > 0 {
		avg := round(sum/float64(n), 2)
		stats.AvgConfidence = &avg
	}
	return stats
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
