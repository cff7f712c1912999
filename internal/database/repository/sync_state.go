package repository

import (
	"context"
	"database/sql"
	"errors"
)

// SyncStateRepo reads and writes the single sync bookmark row.
type SyncStateRepo struct{ db Querier }

func NewSyncStateRepo(db Querier) *SyncStateRepo { return &SyncStateRepo{db: db} }

func (r *SyncStateRepo) Get(ctx context.Context) (SyncState, error) {
	var s SyncState
	var last, full int64
	err := r.db.QueryRowContext(ctx, `
	SELECT last_message_at, last_message_id, total_transactions, last_full_sync, status
	FROM sync_state WHERE id = 1`).Scan(&last, &s.LastMessageID, &s.TotalTransactions, &full, &s.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return SyncState{Status: "idle"}, nil
	}
	if err != nil {
		return SyncState{}, err
	}
	s.LastMessageAt = fromMillis(last)
	s.LastFullSync = fromMillis(full)
	return s, nil
}

func (r *SyncStateRepo) Save(ctx context.Context, s SyncState) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO sync_state(id, last_message_at, last_message_id, total_transactions, last_full_sync, status)
	VALUES (1, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
	 last_message_at=excluded.last_message_at,
	 last_message_id=excluded.last_message_id,
	 total_transactions=excluded.total_transactions,
	 last_full_sync=excluded.last_full_sync,
	 status=excluded.status
	`, toMillis(s.LastMessageAt), s.LastMessageID, s.TotalTransactions, toMillis(s.LastFullSync), s.Status)
	return err
}

// SetStatus updates only the status column.
func (r *SyncStateRepo) SetStatus(ctx context.Context, status string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sync_state SET status = ? WHERE id = 1`, status)
	return err
}
