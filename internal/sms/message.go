package sms

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrMalformedMessage marks a message record that cannot be processed at all.
// It is a fault, not a classification outcome.
var ErrMalformedMessage = errors.New("malformed message")

// RawMessage is one SMS as delivered by the message source.
type RawMessage struct {
	// ID is an optional identifier supplied by the source. When empty the
	// identity is derived from sender, body and timestamp.
	ID        string    `json:"id,omitempty"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate reports records that are unreadable rather than merely uninteresting.
func (m RawMessage) Validate() error {
	switch {
	case m.Timestamp.IsZero():
		return fmt.Errorf("%w: missing timestamp", ErrMalformedMessage)
	case !utf8.ValidString(m.Sender) || !utf8.ValidString(m.Body):
		return fmt.Errorf("%w: invalid utf-8", ErrMalformedMessage)
	case strings.TrimSpace(m.Sender) == "" && strings.TrimSpace(m.Body) == "":
		return fmt.Errorf("%w: empty record", ErrMalformedMessage)
	}
	return nil
}

// SourceID returns the exact-dedup identity of the message. An external ID
// wins; otherwise a SHA1 UUID over sender, body and millisecond timestamp.
func (m RawMessage) SourceID() string {
	if id := strings.TrimSpace(m.ID); id != "" {
		return id
	}
	key := strings.Join([]string{m.Sender, m.Body, strconv.FormatInt(m.Timestamp.UnixMilli(), 10)}, "|")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("sms:"+key)).String()
}
