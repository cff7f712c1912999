// Package rules holds the sender, keyword, pattern and category tables that
// drive SMS classification. Tables are data: they ship embedded as TOML and
// can be replaced by a file without touching the matching code.
package rules

import (
	"embed"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed tables/*.toml
var builtin embed.FS

// ErrUnknownSet is returned by Builtin for a tag with no embedded table.
var ErrUnknownSet = errors.New("rules: unknown rule set")

// Sender maps a sender-address code to a bank display name.
type Sender struct {
	Code string `toml:"code"`
	Bank string `toml:"bank"`
}

// BankKeyword maps a generic bank-name keyword to a display name.
type BankKeyword struct {
	Keyword string `toml:"keyword"`
	Bank    string `toml:"bank"`
}

// Pattern is a named regular expression. The first capture group is the value.
type Pattern struct {
	Name          string `toml:"name"`
	Regex         string `toml:"regex"`
	HighPrecision bool   `toml:"high_precision"`
}

// CategoryDef describes a system category seeded on first start.
type CategoryDef struct {
	Name  string `toml:"name"`
	Color string `toml:"color"`
	Emoji string `toml:"emoji"`
}

// CategoryRule maps merchant keywords to a category name.
type CategoryRule struct {
	Category string   `toml:"category"`
	Keywords []string `toml:"keywords"`
}

// Set is one locale/bank-set worth of tables.
type Set struct {
	Locale          string `toml:"locale"`
	DefaultCategory string `toml:"default_category"`

	Senders      []Sender      `toml:"senders"`
	BankKeywords []BankKeyword `toml:"bank_keywords"`

	ReferenceKeywords         []string `toml:"reference_keywords"`
	DebitKeywords             []string `toml:"debit_keywords"`
	ChannelKeywords           []string `toml:"channel_keywords"`
	CreditKeywords            []string `toml:"credit_keywords"`
	ExplicitDirectionKeywords []string `toml:"explicit_direction_keywords"`
	BalanceKeywords           []string `toml:"balance_keywords"`
	PromotionalKeywords       []string `toml:"promotional_keywords"`
	OTPKeywords               []string `toml:"otp_keywords"`
	EMIKeywords               []string `toml:"emi_keywords"`

	ReferencePattern string    `toml:"reference_pattern"`
	AmountPatterns   []Pattern `toml:"amount_patterns"`
	MerchantPatterns []Pattern `toml:"merchant_patterns"`

	MerchantBrands    []string `toml:"merchant_brands"`
	MerchantStopwords []string `toml:"merchant_stopwords"`

	Categories    []CategoryDef  `toml:"categories"`
	CategoryRules []CategoryRule `toml:"category_rules"`
}

// Builtin returns the embedded rule set for tag, e.g. "in".
func Builtin(tag string) (Set, error) {
	tag = strings.ToLower(strings.TrimSpace(tag))
	data, err := builtin.ReadFile(path.Join("tables", tag+".toml"))
	if err != nil {
		return Set{}, fmt.Errorf("%w: %q", ErrUnknownSet, tag)
	}
	var s Set
	if _, err := toml.Decode(string(data), &s); err != nil {
		return Set{}, fmt.Errorf("parse builtin %s: %w", tag, err)
	}
	if err := s.Validate(); err != nil {
		return Set{}, fmt.Errorf("validate builtin %s: %w", tag, err)
	}
	return s, nil
}

// Available lists the embedded rule-set tags.
func Available() []string {
	entries, err := builtin.ReadDir("tables")
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".toml"))
	}
	sort.Strings(out)
	return out
}

// Load parses a rule set from a TOML file.
func Load(filename string) (Set, error) {
	var s Set
	if _, err := toml.DecodeFile(filename, &s); err != nil {
		return Set{}, fmt.Errorf("parse %s: %w", filename, err)
	}
	if err := s.Validate(); err != nil {
		return Set{}, fmt.Errorf("validate %s: %w", filename, err)
	}
	return s, nil
}

// Resolve loads filename when set, otherwise the builtin tag.
func Resolve(tag, filename string) (Set, error) {
	if strings.TrimSpace(filename) != "" {
		return Load(filename)
	}
	return Builtin(tag)
}

// Validate checks the tables are usable. Patterns must compile and carry a capture group.
func (s Set) Validate() error {
	if len(s.Senders) == 0 {
		return errors.New("no senders defined")
	}
	for _, snd := range s.Senders {
		if strings.TrimSpace(snd.Code) == "" || strings.TrimSpace(snd.Bank) == "" {
			return fmt.Errorf("sender entry %+v needs code and bank", snd)
		}
	}
	if len(s.AmountPatterns) == 0 {
		return errors.New("no amount patterns defined")
	}
	if strings.TrimSpace(s.DefaultCategory) == "" {
		return errors.New("default_category is required")
	}
	check := func(kind string, p Pattern) error {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return fmt.Errorf("%s pattern %q: %w", kind, p.Name, err)
		}
		if re.NumSubexp() < 1 {
			return fmt.Errorf("%s pattern %q: needs a capture group", kind, p.Name)
		}
		return nil
	}
	for _, p := range s.AmountPatterns {
		if err := check("amount", p); err != nil {
			return err
		}
	}
	for _, p := range s.MerchantPatterns {
		if err := check("merchant", p); err != nil {
			return err
		}
	}
	if s.ReferencePattern != "" {
		if err := check("reference", Pattern{Name: "reference", Regex: s.ReferencePattern}); err != nil {
			return err
		}
	}
	for _, r := range s.CategoryRules {
		if strings.TrimSpace(r.Category) == "" {
			return errors.New("category rule without category")
		}
	}
	return nil
}

// CategoryNames returns the seeded category names, always including the default.
func (s Set) CategoryNames() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range s.Categories {
		if _, ok := seen[c.Name]; ok {
			continue
		}
		seen[c.Name] = struct{}{}
		out = append(out, c.Name)
	}
	if _, ok := seen[s.DefaultCategory]; !ok {
		out = append(out, s.DefaultCategory)
	}
	return out
}
