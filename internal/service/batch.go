package service

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jask/smsledger/internal/logger"
	"github.com/jask/smsledger/internal/sms"
)

// ProgressFunc is told about each message as it reaches a terminal state.
// It is advisory; a nil ProgressFunc is fine.
type ProgressFunc func(current, total int, status string)

// Summary tallies a batch. Processed counts the leading messages that were
// handled; on an early stop, messages[Processed:] were never touched.
type Summary struct {
	Total      int                `json:"total"`
	Processed  int                `json:"processed"`
	Accepted   int                `json:"accepted"`
	Rejected   int                `json:"rejected"`
	Duplicates int                `json:"duplicates"`
	Reasons    map[sms.Reason]int `json:"reasons,omitempty"`
	// Malformed records are reported here and skipped; they do not stop the batch.
	Malformed []BatchError `json:"malformed,omitempty"`
}

func (s *Summary) add(o Outcome) {
	switch o.Kind {
	case OutcomeInserted:
		s.Accepted++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeRejected:
		s.Rejected++
		if s.Reasons == nil {
			s.Reasons = make(map[sms.Reason]int)
		}
		s.Reasons[o.Reason]++
	}
}

// BatchError pins a fault to the message that caused it.
type BatchError struct {
	Index     int
	MessageID string
	Err       error
}

func (e BatchError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Index     int    `json:"index"`
		MessageID string `json:"message_id,omitempty"`
		Error     string `json:"error"`
	}{e.Index, e.MessageID, e.Err.Error()})
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("message %d (%s): %v", e.Index, e.MessageID, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// ReprocessBatch runs messages to terminal states. Classification fans out
// over Options.Workers goroutines a chunk at a time; persistence is
// sequential in input order, so results match a sequential run.
//
// Cancelling ctx stops before the next message and returns the partial
// Summary with ctx.Err(). A storage fault stops the batch and returns the
// partial Summary with a *BatchError; everything before it stays stored.
func (e *Engine) ReprocessBatch(ctx context.Context, msgs []sms.RawMessage, progress ProgressFunc) (Summary, error) {
	log := logger.FromContext(ctx)
	if progress == nil {
		progress = func(int, int, string) {}
	}
	start := time.Now()
	sum := Summary{Total: len(msgs)}
	defer func() { e.metrics.Batch(sum.Processed, time.Since(start)) }()

	chunk := e.opts.YieldEvery
	results := make([]sms.Result, chunk)
	invalid := make([]error, chunk)

	for lo := 0; lo < len(msgs); lo += chunk {
		if err := ctx.Err(); err != nil {
			log.Info().Int("processed", sum.Processed).Int("total", sum.Total).Msg("batch cancelled")
			return sum, err
		}
		hi := min(lo+chunk, len(msgs))

		g := new(errgroup.Group)
		g.SetLimit(e.opts.Workers)
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				if err := msgs[i].Validate(); err != nil {
					invalid[i-lo] = err
					return nil
				}
				invalid[i-lo] = nil
				results[i-lo] = e.classifier.Classify(msgs[i])
				return nil
			})
		}
		_ = g.Wait()

		for i := lo; i < hi; i++ {
			if err := ctx.Err(); err != nil {
				log.Info().Int("processed", sum.Processed).Int("total", sum.Total).Msg("batch cancelled")
				return sum, err
			}
			m := msgs[i]
			if err := invalid[i-lo]; err != nil {
				e.metrics.Fault()
				sum.Malformed = append(sum.Malformed, BatchError{Index: i, MessageID: m.SourceID(), Err: err})
				sum.Processed++
				log.Warn().Err(err).Int("index", i).Msg("skipping malformed message")
				progress(sum.Processed, sum.Total, "malformed")
				continue
			}
			out, err := e.persist(ctx, m, results[i-lo])
			if err != nil {
				log.Error().Err(err).Int("index", i).Msg("batch stopped on storage fault")
				return sum, &BatchError{Index: i, MessageID: m.SourceID(), Err: err}
			}
			sum.add(out)
			sum.Processed++
			progress(sum.Processed, sum.Total, out.String())
		}

		// let interactive work in
		runtime.Gosched()
	}

	log.Info().Int("total", sum.Total).Int("accepted", sum.Accepted).Int("rejected", sum.Rejected).
		Int("duplicates", sum.Duplicates).Dur("took", time.Since(start)).Msg("batch complete")
	return sum, nil
}
