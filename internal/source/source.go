// Package source supplies raw SMS messages to the sync layer.
package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jask/smsledger/internal/sms"
)

// Order is the delivery order of FetchMessages.
type Order int

const (
	OldestFirst Order = iota
	NewestFirst
)

// MessageSource returns messages with Timestamp at or after since, at most
// max of them (max <= 0 means unbounded), in the requested order.
type MessageSource interface {
	FetchMessages(ctx context.Context, since time.Time, max int, order Order) ([]sms.RawMessage, error)
}

// Slice is an in-memory source.
type Slice []sms.RawMessage

func (s Slice) FetchMessages(ctx context.Context, since time.Time, max int, order Order) ([]sms.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return selectMessages(s, since, max, order), nil
}

// JSONLFile reads an SMS export with one JSON object per line:
//
//	{"id":"...","sender":"HDFCBK","body":"...","timestamp":"2024-01-12T10:30:00Z"}
//
// Blank lines are skipped. A line that does not decode is an error.
type JSONLFile struct {
	Path string
}

func (f JSONLFile) FetchMessages(ctx context.Context, since time.Time, max int, order Order) ([]sms.RawMessage, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer fh.Close()
	msgs, err := ReadJSONL(ctx, fh)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return selectMessages(msgs, since, max, order), nil
}

// ReadJSONL decodes every message from r.
func ReadJSONL(ctx context.Context, r io.Reader) ([]sms.RawMessage, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var out []sms.RawMessage
	line := 0
	for sc.Scan() {
		line++
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var m sms.RawMessage
		if err := json.Unmarshal([]byte(text), &m); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, m)
	}
	return out, sc.Err()
}

// WriteJSONL encodes msgs one per line.
func WriteJSONL(w io.Writer, msgs []sms.RawMessage) error {
	enc := json.NewEncoder(w)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return err
		}
	}
	return nil
}

func selectMessages(all []sms.RawMessage, since time.Time, max int, order Order) []sms.RawMessage {
	out := make([]sms.RawMessage, 0, len(all))
	for _, m := range all {
		if !since.IsZero() && m.Timestamp.Before(since) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if order == NewestFirst {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}
