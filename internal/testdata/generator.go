// Package testdata generates synthetic bank SMS traffic for demos and tests.
package testdata

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jask/smsledger/internal/sms"
)

// Kind is what a generated message is meant to exercise.
type Kind int

const (
	Genuine Kind = iota
	Promotional
	OTP
	Personal
	ExactDuplicate
	FuzzyDuplicate
)

func (k Kind) String() string {
	return [...]string{"genuine", "promotional", "otp", "personal", "exact-duplicate", "fuzzy-duplicate"}[k]
}

// Message is a generated SMS and the kind it was generated as.
type Message struct {
	sms.RawMessage
	Kind Kind
}

type bank struct {
	sender string
	card   string
}

var (
	banks = []bank{
		{"VM-HDFCBK", "HDFC"},
		{"AD-ICICIB", "ICICI"},
		{"JD-SBIINB", "SBI"},
		{"BZ-AXISBK", "Axis"},
		{"VK-KOTAKB", "Kotak"},
	}
	merchants = []string{
		"SWIGGY", "ZOMATO", "AMAZON", "FLIPKART", "UBER", "NETFLIX",
		"DMART", "BIGBASKET", "ZEPTO", "STARBUCKS", "MYNTRA", "BLINKIT",
	}
	templates = []func(amount, merchant string, ref int, at time.Time) string{
		func(amount, merchant string, ref int, at time.Time) string {
			return fmt.Sprintf("Rs.%s debited from A/c XX%04d at %s on %s. Ref %d", amount, ref%10000, merchant, at.Format("02-01-06"), ref)
		},
		func(amount, merchant string, ref int, at time.Time) string {
			return fmt.Sprintf("Rs.%s debited from A/c for UPI/%s/Ref%d on %s", amount, merchant, ref, at.Format("02-01-06"))
		},
		func(amount, merchant string, ref int, at time.Time) string {
			return fmt.Sprintf("Rs %s spent on Card XX%04d at %s on %s. Avl balance Rs 10000 Ref %d", amount, ref%10000, merchant, at.Format(time.DateOnly), ref)
		},
	}
)

// Generator produces a deterministic stream for a given seed.
type Generator struct {
	rng   *rand.Rand
	clock time.Time
	seq   int
	sent  []Message
}

func NewGenerator(seed uint64, start time.Time) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x5eed)), clock: start}
}

// Generate returns n messages. Roughly two thirds are genuine transactions;
// the rest are marketing, OTPs, personal messages and duplicates of earlier
// genuine ones. Genuine messages are spaced further apart than the dedup
// window so only the deliberate duplicates collide.
func (g *Generator) Generate(n int) []Message {
	out := make([]Message, 0, n)
	for len(out) < n {
		out = append(out, g.next())
	}
	return out
}

func (g *Generator) next() Message {
	roll := g.rng.IntN(100)
	switch {
	case roll < 8 && len(g.sent) > 0:
		orig := g.sent[g.rng.IntN(len(g.sent))]
		return Message{RawMessage: orig.RawMessage, Kind: ExactDuplicate}
	case roll < 16 && len(g.sent) > 0:
		orig := g.sent[g.rng.IntN(len(g.sent))]
		m := orig.RawMessage
		m.ID = g.id()
		m.Timestamp = m.Timestamp.Add(time.Duration(1+g.rng.IntN(5)) * time.Minute)
		return Message{RawMessage: m, Kind: FuzzyDuplicate}
	case roll < 24:
		return g.promotional()
	case roll < 30:
		return g.otp()
	case roll < 34:
		return g.personal()
	}
	return g.genuine()
}

func (g *Generator) genuine() Message {
	b := banks[g.rng.IntN(len(banks))]
	merchant := merchants[g.rng.IntN(len(merchants))]
	at := g.tick()
	ref := 100000 + g.rng.IntN(900000)
	body := templates[g.rng.IntN(len(templates))](g.amount(), merchant, ref, at)
	m := Message{RawMessage: sms.RawMessage{ID: g.id(), Sender: b.sender, Body: body, Timestamp: at}, Kind: Genuine}
	g.sent = append(g.sent, m)
	return m
}

func (g *Generator) promotional() Message {
	b := banks[g.rng.IntN(len(banks))]
	body := fmt.Sprintf("Get %d%% cashback on UPI payments with your %s card! Click http://offers.example T&C apply. Ref %d",
		5+g.rng.IntN(45), b.card, 1000+g.rng.IntN(9000))
	return Message{RawMessage: sms.RawMessage{ID: g.id(), Sender: b.sender, Body: body, Timestamp: g.tick()}, Kind: Promotional}
}

func (g *Generator) otp() Message {
	b := banks[g.rng.IntN(len(banks))]
	body := fmt.Sprintf("OTP %06d for txn of Rs.%s at %s to be debited from your card. Do not share.",
		g.rng.IntN(1000000), g.amount(), merchants[g.rng.IntN(len(merchants))])
	return Message{RawMessage: sms.RawMessage{ID: g.id(), Sender: b.sender, Body: body, Timestamp: g.tick()}, Kind: OTP}
}

func (g *Generator) personal() Message {
	body := fmt.Sprintf("Rs.%s debited for dinner, pay me back. Ref %d", g.amount(), g.rng.IntN(1000))
	return Message{RawMessage: sms.RawMessage{ID: g.id(), Sender: "+9198" + fmt.Sprintf("%08d", g.rng.IntN(100000000)), Body: body, Timestamp: g.tick()}, Kind: Personal}
}

func (g *Generator) amount() string {
	return fmt.Sprintf("%d.%02d", 20+g.rng.IntN(4980), g.rng.IntN(100))
}

// tick advances the clock by 15 minutes to 3 hours.
func (g *Generator) tick() time.Time {
	g.clock = g.clock.Add(time.Duration(15+g.rng.IntN(166)) * time.Minute)
	return g.clock
}

func (g *Generator) id() string {
	g.seq++
	return fmt.Sprintf("demo-%05d", g.seq)
}

// Raw strips the kinds.
func Raw(msgs []Message) []sms.RawMessage {
	out := make([]sms.RawMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m.RawMessage
	}
	return out
}
