package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jask/smsledger/internal/database"
	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/logger"
	"github.com/jask/smsledger/internal/sms"
	"github.com/jask/smsledger/internal/source"
)

// Sync statuses stored in sync_state.
const (
	SyncIdle      = "idle"
	SyncRunning   = "running"
	SyncCompleted = "completed"
	SyncCancelled = "cancelled"
	SyncFailed    = "failed"
)

// SyncService feeds a message source through the engine and keeps the
// ingestion bookmark.
type SyncService struct {
	DB     *sql.DB
	Engine *Engine
	Source source.MessageSource
	// MaxMessages caps a full scan.
	MaxMessages int
}

// SyncIncremental processes messages at or after the bookmark, oldest first.
// Messages seen before are caught by exact dedup.
func (s *SyncService) SyncIncremental(ctx context.Context, progress ProgressFunc) (Summary, error) {
	state, err := repository.NewSyncStateRepo(s.DB).Get(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load sync state: %w", err)
	}
	msgs, err := s.Source.FetchMessages(ctx, state.LastMessageAt, 0, source.OldestFirst)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch messages: %w", err)
	}
	return s.run(ctx, state, msgs, false, progress)
}

// FullScan reprocesses history newest first, up to MaxMessages.
func (s *SyncService) FullScan(ctx context.Context, progress ProgressFunc) (Summary, error) {
	state, err := repository.NewSyncStateRepo(s.DB).Get(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load sync state: %w", err)
	}
	msgs, err := s.Source.FetchMessages(ctx, time.Time{}, s.MaxMessages, source.NewestFirst)
	if err != nil {
		return Summary{}, fmt.Errorf("fetch messages: %w", err)
	}
	return s.run(ctx, state, msgs, true, progress)
}

func (s *SyncService) run(ctx context.Context, state repository.SyncState, msgs []sms.RawMessage, full bool, progress ProgressFunc) (Summary, error) {
	log := logger.FromContext(ctx)
	states := repository.NewSyncStateRepo(s.DB)
	// bookkeeping outlives the caller's ctx
	saveCtx := context.WithoutCancel(ctx)
	if err := states.SetStatus(saveCtx, SyncRunning); err != nil {
		return Summary{}, fmt.Errorf("mark sync running: %w", err)
	}
	log.Info().Int("messages", len(msgs)).Bool("full", full).Msg("sync started")

	sum, runErr := s.Engine.ReprocessBatch(ctx, msgs, progress)

	// The bookmark only moves over messages that reached a terminal state.
	// A newest-first scan that stopped early leaves older history behind, so
	// it keeps the old bookmark.
	advance := msgs[:sum.Processed]
	if full && runErr != nil {
		advance = nil
	}
	for _, m := range advance {
		if m.Timestamp.After(state.LastMessageAt) {
			state.LastMessageAt = m.Timestamp.UTC()
			state.LastMessageID = m.SourceID()
		}
	}
	switch {
	case runErr == nil:
		state.Status = SyncCompleted
		if full {
			state.LastFullSync = database.Now()
		}
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		state.Status = SyncCancelled
	default:
		state.Status = SyncFailed
	}

	count, err := repository.NewTransactionRepo(s.DB).Count(saveCtx)
	if err != nil {
		return sum, errors.Join(runErr, fmt.Errorf("count transactions: %w", err))
	}
	state.TotalTransactions = count
	if err := states.Save(saveCtx, state); err != nil {
		return sum, errors.Join(runErr, fmt.Errorf("save sync state: %w", err))
	}
	log.Info().Str("status", state.Status).Int("processed", sum.Processed).Int64("stored", count).Msg("sync finished")
	return sum, runErr
}

// State returns the current bookmark.
func (s *SyncService) State(ctx context.Context) (repository.SyncState, error) {
	return repository.NewSyncStateRepo(s.DB).Get(ctx)
}
