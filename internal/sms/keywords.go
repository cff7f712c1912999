package sms

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// keywordSet matches any of a list of keywords case-insensitively. A keyword
// must start on a word boundary but may run into the following word, so
// "ref" hits "Ref1234" while "pos" does not hit "deposited".
type keywordSet struct {
	re *regexp.Regexp
}

func compileKeywords(words []string) keywordSet {
	var parts []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		q := regexp.QuoteMeta(w)
		if r, _ := utf8.DecodeRuneInString(w); isWordRune(r) {
			q = `\b` + q
		}
		parts = append(parts, q)
	}
	if len(parts) == 0 {
		return keywordSet{}
	}
	return keywordSet{re: regexp.MustCompile(`(?i)(?:` + strings.Join(parts, "|") + `)`)}
}

func (k keywordSet) match(s string) bool {
	return k.re != nil && k.re.MatchString(s)
}

// index returns the start of the leftmost hit, or -1.
func (k keywordSet) index(s string) int {
	if k.re == nil {
		return -1
	}
	loc := k.re.FindStringIndex(s)
	if loc == nil {
		return -1
	}
	return loc[0]
}

// isWordRune mirrors the ASCII-only \b of the regexp package.
func isWordRune(r rune) bool {
	return r < utf8.RuneSelf && (r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r))
}
