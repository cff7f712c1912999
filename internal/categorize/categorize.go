// Package categorize assigns an initial category to a newly seen merchant.
package categorize

import (
	"regexp"
	"strings"

	"github.com/jask/smsledger/internal/rules"
)

// Source tells where a suggestion came from.
type Source string

const (
	SourceRule    Source = "rule"
	SourceDefault Source = "default"
)

// Suggestion is the category picked for a merchant.
type Suggestion struct {
	Category string
	Reason   string
	Source   Source
}

type rule struct {
	category string
	keyword  string
	re       *regexp.Regexp
}

// Engine evaluates ordered keyword rules; the first hit wins.
type Engine struct {
	rules    []rule
	fallback string
}

// New flattens the rule table, preserving rule and keyword order.
func New(set rules.Set) *Engine {
	e := &Engine{fallback: set.DefaultCategory}
	for _, r := range set.CategoryRules {
		for _, kw := range r.Keywords {
			kw = strings.ToUpper(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			e.rules = append(e.rules, rule{
				category: r.Category,
				keyword:  kw,
				re:       regexp.MustCompile(`(?:^|[^A-Z0-9])` + regexp.QuoteMeta(kw)),
			})
		}
	}
	return e
}

// Suggest maps a normalized merchant to a category. Keywords must start at a
// word boundary, so OLA matches "OLA CABS" but not "MOTOROLA".
func (e *Engine) Suggest(normalizedMerchant string) Suggestion {
	name := strings.ToUpper(normalizedMerchant)
	for _, r := range e.rules {
		if r.re.MatchString(name) {
			return Suggestion{Category: r.category, Reason: "merchant contains " + r.keyword, Source: SourceRule}
		}
	}
	return Suggestion{Category: e.fallback, Reason: "no rule matched", Source: SourceDefault}
}

// Default is the category used when no rule matches.
func (e *Engine) Default() string { return e.fallback }
