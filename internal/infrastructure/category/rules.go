package category

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/sumflow/internal/core/domain"
)

// Rule maps marker phrases to a category pair.
type Rule struct {
	Category    string   `yaml:"category"`
	Subcategory string   `yaml:"subcategory"`
	Markers     []string `yaml:"markers"`
}

// Rules is an ordered keyword table; the first rule with a matching marker wins.
type Rules struct {
	rules []Rule
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules is the built-in table used when no rules file is configured.
func DefaultRules() *Rules {
	return NewRules([]Rule{
		{Category: "정책·법안", Subcategory: "체계자구검토", Markers: []string{"체계자구검토"}},
		{Category: "정책·법안", Subcategory: "국회보고", Markers: []string{"위원회의결안", "의결안"}},
		{Category: "정책·법안", Subcategory: "검토보고", Markers: []string{"검토보고서", "검토보고"}},
		{Category: "정책·법안", Subcategory: "조합·협동조합", Markers: []string{"수산업협동조합법", "협동조합"}},
		{Category: "조직·인사", Subcategory: "여성참여·할당", Markers: []string{"여성임원", "여성참여", "여성할당"}},
		{Category: "policy", Subcategory: "legislative review", Markers: []string{"bill review", "committee report"}},
		{Category: "finance", Subcategory: "invoice", Markers: []string{"invoice number", "amount due"}},
		{Category: "legal", Subcategory: "contract", Markers: []string{"hereinafter referred to as", "terms and conditions"}},
	})
}

func NewRules(rules []Rule) *Rules {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		markers := make([]string, 0, len(r.Markers))
		for _, m := range r.Markers {
			if key := compact(m); key != "" {
				markers = append(markers, key)
			}
		}
		if len(markers) == 0 || strings.TrimSpace(r.Category) == "" {
			continue
		}
		out = append(out, Rule{Category: r.Category, Subcategory: r.Subcategory, Markers: markers})
	}
	return &Rules{rules: out}
}

// LoadRules reads a YAML rules file of the form
//
//	rules:
//	  - category: finance
//	    subcategory: invoice
//	    markers: ["invoice number"]
func LoadRules(path string) (*Rules, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category rules: %w", err)
	}
	var file rulesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse category rules: %w", err)
	}
	rules := NewRules(file.Rules)
	if len(rules.rules) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "load category rules", fmt.Errorf("%s has no usable rules", path))
	}
	return rules, nil
}

// Match returns the pair of the first rule whose marker occurs in text.
// Matching ignores case and whitespace.
func (r *Rules) Match(text string) (domain.Category, bool) {
	if r == nil {
		return domain.Category{}, false
	}
	haystack := compact(text)
	for _, rule := range r.rules {
		for _, marker := range rule.Markers {
			if strings.Contains(haystack, marker) {
				return NormalizePair(rule.Category, rule.Subcategory), true
			}
		}
	}
	return domain.Category{}, false
}

func (r *Rules) Len() int {
	if r == nil {
		return 0
	}
	return len(r.rules)
}

func compact(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}
