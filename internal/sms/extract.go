package sms

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	whitespace   = regexp.MustCompile(`\s+`)
	trailingJunk = regexp.MustCompile(`[\s*#@\-_./:,;]+$`)
	capitalWord  = regexp.MustCompile(`\b[A-Z][A-Za-z&]{2,}\b`)
)

// maxAmount is the largest amount whose paise fit in an int64.
var maxAmount = decimal.New(math.MaxInt64, -2)

// extractAmount returns the first amount within [minimum, maxAmount], trying
// patterns in order and each pattern's matches left to right.
func (c *Classifier) extractAmount(body string) (decimal.Decimal, bool, bool) {
	for _, p := range c.amounts {
		for _, m := range p.re.FindAllStringSubmatch(body, -1) {
			raw := strings.Trim(strings.ReplaceAll(m[1], ",", ""), ".")
			d, err := decimal.NewFromString(raw)
			if err != nil {
				continue
			}
			if d.GreaterThanOrEqual(c.minAmount) && d.LessThanOrEqual(maxAmount) {
				return d, p.high, true
			}
		}
	}
	return decimal.Zero, false, false
}

// extractMerchant never fails; it degrades to UnknownMerchant.
func (c *Classifier) extractMerchant(body string) string {
	for _, p := range c.merchants {
		for _, m := range p.re.FindAllStringSubmatch(body, -1) {
			if name := cleanMerchant(m[1]); c.usableMerchant(name) {
				return name
			}
		}
	}

	best, bestAt := "", -1
	for i, kw := range c.brandSets {
		if at := kw.index(body); at >= 0 && (bestAt < 0 || at < bestAt) {
			best, bestAt = c.brands[i], at
		}
	}
	if best != "" {
		return best
	}

	if run := c.capitalizedRun(body); run != "" {
		return run
	}
	return UnknownMerchant
}

// capitalizedRun returns the first run of adjacent capitalized words that are
// not stopwords.
func (c *Classifier) capitalizedRun(body string) string {
	var words []string
	end := -1
	for _, loc := range capitalWord.FindAllStringIndex(body, -1) {
		w := body[loc[0]:loc[1]]
		if c.isStopword(w) {
			if len(words) > 0 {
				break
			}
			continue
		}
		if len(words) > 0 && body[end:loc[0]] != " " {
			break
		}
		words = append(words, w)
		end = loc[1]
	}
	return strings.Join(words, " ")
}

func cleanMerchant(s string) string {
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	return strings.TrimSpace(trailingJunk.ReplaceAllString(s, ""))
}

func (c *Classifier) usableMerchant(name string) bool {
	if len(name) < 2 || !strings.ContainsFunc(name, isLetter) {
		return false
	}
	first, _, _ := strings.Cut(name, " ")
	return !c.isStopword(first)
}

func (c *Classifier) isStopword(w string) bool {
	_, ok := c.stopwords[strings.ToUpper(strings.Trim(w, ".&"))]
	return ok
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// BankName resolves the display name: most specific sender code, then a
// generic bank keyword in sender or body, then the raw sender.
func (c *Classifier) BankName(addr, body string) string {
	if bank, ok := c.senderBank(addr); ok {
		return bank
	}
	for _, bk := range c.bankKeywords {
		if bk.kw.match(addr) {
			return bk.bank
		}
	}
	for _, bk := range c.bankKeywords {
		if bk.kw.match(body) {
			return bk.bank
		}
	}
	return strings.TrimSpace(addr)
}

// isDebit picks the direction. Channel words (upi, neft...) only decide when
// neither explicit class matched.
func (c *Classifier) isDebit(body string) bool {
	debit, credit := c.debit.match(body), c.credit.match(body)
	switch {
	case debit && credit:
		return c.params.DebitWinsTies
	case credit:
		return false
	default:
		return true
	}
}

func (c *Classifier) extractReference(body string) string {
	if c.refPattern == nil {
		return ""
	}
	m := c.refPattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}

// score combines the extraction signals into a value in [0,1].
func (c *Classifier) score(body string, highPrecision bool) float64 {
	s := baseScore
	if highPrecision {
		s += precisionBonus
	}
	if c.explicit.match(body) {
		s += directionBonus
	}
	if c.balance.match(body) {
		s += balanceBonus
	}
	s = math.Max(0, math.Min(1, s))
	return math.Round(s*100) / 100
}
