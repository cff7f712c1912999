package sms

import "fmt"

// Reason is why a message did not become a transaction.
type Reason int

const (
	ReasonNone Reason = iota
	UnknownSender
	NoReferenceNumber
	NoTransactionKeyword
	Promotional
	OtpMessage
	EmiNotification
	NoValidAmount
	LowConfidence
)

var reasonNames = [...]string{
	ReasonNone:           "None",
	UnknownSender:        "UnknownSender",
	NoReferenceNumber:    "NoReferenceNumber",
	NoTransactionKeyword: "NoTransactionKeyword",
	Promotional:          "Promotional",
	OtpMessage:           "OtpMessage",
	EmiNotification:      "EmiNotification",
	NoValidAmount:        "NoValidAmount",
	LowConfidence:        "LowConfidence",
}

func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return fmt.Sprintf("Reason(%d)", int(r))
	}
	return reasonNames[r]
}

// MarshalText encodes the reason by name.
func (r Reason) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText parses a reason name.
func (r *Reason) UnmarshalText(b []byte) error {
	for i, n := range reasonNames {
		if n == string(b) {
			*r = Reason(i)
			return nil
		}
	}
	return fmt.Errorf("unknown reason %q", string(b))
}

// Reasons lists every rejection reason in gate order.
func Reasons() []Reason {
	return []Reason{UnknownSender, NoReferenceNumber, NoTransactionKeyword, Promotional,
		OtpMessage, EmiNotification, NoValidAmount, LowConfidence}
}
