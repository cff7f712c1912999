// Package sms turns raw bank SMS text into structured transaction
// extractions. Everything here is a pure function of the message and the
// compiled rule tables; storage and dedup live in the service layer.
package sms

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jask/smsledger/internal/rules"
)

const (
	baseScore       = 0.5
	precisionBonus  = 0.2
	directionBonus  = 0.2
	balanceBonus    = 0.1
	UnknownMerchant = "Unknown Merchant"
)

// Params are the tunable heuristics of the classifier.
type Params struct {
	MinAmount           float64
	AcceptanceThreshold float64
	// DebitWinsTies resolves messages carrying both debit and credit keywords.
	DebitWinsTies bool
}

// DefaultParams returns the observed production constants.
func DefaultParams() Params {
	return Params{MinAmount: 1.0, AcceptanceThreshold: 0.65, DebitWinsTies: true}
}

// Extraction is an accepted message's structured fields.
type Extraction struct {
	Amount          decimal.Decimal `json:"amount"`
	MerchantRaw     string          `json:"merchant_raw"`
	BankName        string          `json:"bank_name"`
	IsDebit         bool            `json:"is_debit"`
	ReferenceNumber string          `json:"reference_number,omitempty"`
	Confidence      float64         `json:"confidence"`
}

// Result is either an Extraction or a rejection Reason, never both.
type Result struct {
	Extraction *Extraction `json:"extraction,omitempty"`
	Reason     Reason      `json:"reason"`
}

// Accepted reports whether the message became an extraction.
func (r Result) Accepted() bool { return r.Extraction != nil }

func rejected(r Reason) Result { return Result{Reason: r} }

type pattern struct {
	name string
	re   *regexp.Regexp
	high bool
}

type sender struct {
	code string
	bank string
}

type bankKeyword struct {
	kw   keywordSet
	bank string
}

// Classifier holds compiled rule tables. It is immutable and safe for
// concurrent use.
type Classifier struct {
	params    Params
	minAmount decimal.Decimal

	senders      []sender
	bankKeywords []bankKeyword

	reference  keywordSet
	debit      keywordSet
	channel    keywordSet
	credit     keywordSet
	explicit   keywordSet
	balance    keywordSet
	promo      keywordSet
	otp        keywordSet
	emi        keywordSet
	refPattern *regexp.Regexp

	amounts   []pattern
	merchants []pattern
	brands    []string
	brandSets []keywordSet
	stopwords map[string]struct{}
}

// New compiles a rule set into a Classifier.
func New(set rules.Set, p Params) (*Classifier, error) {
	if err := set.Validate(); err != nil {
		return nil, err
	}
	c := &Classifier{
		params:    p,
		minAmount: decimal.NewFromFloat(p.MinAmount),
		reference: compileKeywords(set.ReferenceKeywords),
		debit:     compileKeywords(set.DebitKeywords),
		channel:   compileKeywords(set.ChannelKeywords),
		credit:    compileKeywords(set.CreditKeywords),
		explicit:  compileKeywords(set.ExplicitDirectionKeywords),
		balance:   compileKeywords(set.BalanceKeywords),
		promo:     compileKeywords(set.PromotionalKeywords),
		otp:       compileKeywords(set.OTPKeywords),
		emi:       compileKeywords(set.EMIKeywords),
		stopwords: map[string]struct{}{},
	}

	for _, s := range set.Senders {
		c.senders = append(c.senders, sender{code: strings.ToUpper(strings.TrimSpace(s.Code)), bank: s.Bank})
		c.stopwords[strings.ToUpper(s.Code)] = struct{}{}
	}
	// longest code first so the most specific one wins
	sort.SliceStable(c.senders, func(i, j int) bool { return len(c.senders[i].code) > len(c.senders[j].code) })

	for _, b := range set.BankKeywords {
		c.bankKeywords = append(c.bankKeywords, bankKeyword{kw: compileKeywords([]string{b.Keyword}), bank: b.Bank})
		c.stopwords[strings.ToUpper(b.Keyword)] = struct{}{}
	}
	for _, w := range set.MerchantStopwords {
		c.stopwords[strings.ToUpper(strings.TrimSpace(w))] = struct{}{}
	}
	for _, b := range set.MerchantBrands {
		c.brands = append(c.brands, strings.ToUpper(b))
		c.brandSets = append(c.brandSets, compileKeywords([]string{b}))
	}

	var err error
	if c.amounts, err = compilePatterns(set.AmountPatterns); err != nil {
		return nil, err
	}
	if c.merchants, err = compilePatterns(set.MerchantPatterns); err != nil {
		return nil, err
	}
	if set.ReferencePattern != "" {
		if c.refPattern, err = regexp.Compile(set.ReferencePattern); err != nil {
			return nil, fmt.Errorf("reference pattern: %w", err)
		}
	}
	return c, nil
}

func compilePatterns(ps []rules.Pattern) ([]pattern, error) {
	out := make([]pattern, 0, len(ps))
	for _, p := range ps {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("pattern %s: %w", p.Name, err)
		}
		out = append(out, pattern{name: p.Name, re: re, high: p.HighPrecision})
	}
	return out, nil
}

// Params returns the heuristics the classifier was built with.
func (c *Classifier) Params() Params { return c.params }

// Classify runs the full gate sequence on one message. It never panics on
// odd input; the worst outcome is a rejection.
func (c *Classifier) Classify(m RawMessage) Result {
	if !c.IsBankSender(m.Sender) {
		return rejected(UnknownSender)
	}
	if reason, ok := c.filterContent(m.Body); !ok {
		return rejected(reason)
	}

	amount, highPrecision, ok := c.extractAmount(m.Body)
	if !ok {
		return rejected(NoValidAmount)
	}

	score := c.score(m.Body, highPrecision)
	if score < c.params.AcceptanceThreshold {
		return rejected(LowConfidence)
	}

	return Result{Extraction: &Extraction{
		Amount:          amount,
		MerchantRaw:     c.extractMerchant(m.Body),
		BankName:        c.BankName(m.Sender, m.Body),
		IsDebit:         c.isDebit(m.Body),
		ReferenceNumber: c.extractReference(m.Body),
		Confidence:      score,
	}}
}

// IsBankSender reports whether sender contains any known sender code.
func (c *Classifier) IsBankSender(addr string) bool {
	_, ok := c.senderBank(addr)
	return ok
}

func (c *Classifier) senderBank(addr string) (string, bool) {
	up := strings.ToUpper(addr)
	if strings.TrimSpace(up) == "" {
		return "", false
	}
	for _, s := range c.senders {
		if strings.Contains(up, s.code) {
			return s.bank, true
		}
	}
	return "", false
}

// filterContent applies the five content gates in order.
func (c *Classifier) filterContent(body string) (Reason, bool) {
	switch {
	case !c.reference.match(body):
		return NoReferenceNumber, false
	case !c.debit.match(body) && !c.credit.match(body) && !c.channel.match(body):
		return NoTransactionKeyword, false
	case c.promo.match(body):
		return Promotional, false
	case c.otp.match(body):
		return OtpMessage, false
	case c.emi.match(body):
		return EmiNotification, false
	}
	return ReasonNone, true
}
