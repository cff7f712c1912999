package sms

import (
	"regexp"
	"strings"
)

// UnknownNormalized is the identity key for merchants that normalize to nothing.
const UnknownNormalized = "UNKNOWN MERCHANT"

var separatorRun = regexp.MustCompile(`[*#@_\-]{2,}`)

// NormalizeMerchant maps a raw merchant to its identity key: uppercase, cut
// at the first run of two or more of * # @ - _, collapse whitespace, trim.
// It is idempotent, and every call site that keys on merchants must use it.
func NormalizeMerchant(raw string) string {
	s := strings.ToUpper(raw)
	if loc := separatorRun.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	if s == "" {
		return UnknownNormalized
	}
	return s
}
