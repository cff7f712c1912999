package service

import (
	"fmt"

	"github.com/jask/smsledger/internal/sms"
)

// OutcomeKind is the terminal state of a processed message.
type OutcomeKind int

const (
	OutcomeInserted OutcomeKind = iota + 1
	OutcomeDuplicate
	OutcomeRejected
)

var outcomeNames = map[OutcomeKind]string{
	OutcomeInserted:  "inserted",
	OutcomeDuplicate: "duplicate",
	OutcomeRejected:  "rejected",
}

func (k OutcomeKind) String() string {
	if s, ok := outcomeNames[k]; ok {
		return s
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

func (k OutcomeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// DuplicateKind names the check that caught a duplicate.
type DuplicateKind string

const (
	DuplicateExact DuplicateKind = "exact"
	DuplicateFuzzy DuplicateKind = "fuzzy"
)

// Outcome reports where one message landed. TransactionID is the new row for
// inserts and the matched row for duplicates, when known.
type Outcome struct {
	Kind          OutcomeKind   `json:"kind"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Duplicate     DuplicateKind `json:"duplicate,omitempty"`
	Reason        sms.Reason    `json:"reason,omitempty"`
}

func Inserted(id string) Outcome { return Outcome{Kind: OutcomeInserted, TransactionID: id} }

func Rejected(r sms.Reason) Outcome { return Outcome{Kind: OutcomeRejected, Reason: r} }

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeInserted:
		return "inserted " + o.TransactionID
	case OutcomeDuplicate:
		return "duplicate (" + string(o.Duplicate) + ")"
	case OutcomeRejected:
		return "rejected: " + o.Reason.String()
	}
	return o.Kind.String()
}
