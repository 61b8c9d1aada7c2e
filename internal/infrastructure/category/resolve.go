package category

import "github.com/kirillkom/sumflow/internal/core/domain"

// Resolve prefers the model-declared category, then the keyword rules, then the sentinel pair.
func Resolve(declared, text string, rules *Rules) (domain.Category, domain.CategorySource) {
	if c := Normalize(declared); !c.IsSentinel() {
		return c, domain.CategoryFromLLM
	}
	if matched, ok := rules.Match(text); ok {
		return matched, domain.CategoryFromRules
	}
	return domain.SentinelPair(), domain.CategoryFromDefault
}
