package category

import (
	"regexp"
	"strings"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

var (
	categoryNoise     = regexp.MustCompile(`[()\[\]{}#*「」『』]`)
	categorySeparator = regexp.MustCompile(`\s*[/>|]+\s*`)
	categorySpaces    = regexp.MustCompile(`\s+`)
)

// Normalize forces a raw category string into exactly two non-empty segments.
// Extra segments are dropped, a missing second segment becomes "general" and an
// empty input yields the sentinel pair. Normalize(Normalize(x).String()) == Normalize(x).
func Normalize(raw string) domain.Category {
	s := categoryNoise.ReplaceAllString(raw, "")
	parts := make([]string, 0, 2)
	for _, p := range categorySeparator.Split(s, -1) {
		p = strings.TrimSpace(categorySpaces.ReplaceAllString(p, " "))
		if p != "" {
			parts = append(parts, p)
		}
		if len(parts) == 2 {
			break
		}
	}

	switch len(parts) {
	case 0:
		return domain.SentinelPair()
	case 1:
		return domain.Category{Main: parts[0], Sub: domain.DefaultSubcategory}
	default:
		return domain.Category{Main: parts[0], Sub: parts[1]}
	}
}

// NormalizePair normalizes a (main, sub) pair reported separately.
func NormalizePair(main, sub string) domain.Category {
	main = strings.TrimSpace(main)
	sub = strings.TrimSpace(sub)
	if main == "" {
		return domain.SentinelPair()
	}
	if sub == "" {
		return Normalize(main)
	}
	return Normalize(main + "/" + sub)
}
