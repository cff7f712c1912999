package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/smsledger/internal/database"
	"github.com/jask/smsledger/internal/database/repository"
)

// MaintenanceService houses destructive/ops actions surfaced through the CLI and API.
type MaintenanceService struct {
	DB *sql.DB
}

// Reset wipes ingested data: transactions, merchants, aliases and the sync
// bookmark. Categories stay, so the app can keep running.
func (s *MaintenanceService) Reset(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("maintenance: db not configured")
	}
	if err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		tables := []string{
			"transactions",
			"merchant_aliases",
			"merchants",
		}
		for _, t := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return repository.NewSyncStateRepo(tx).Save(ctx, repository.SyncState{Status: SyncIdle})
	}); err != nil {
		return err
	}
	_, _ = s.DB.ExecContext(ctx, "VACUUM")
	return nil
}

// DeleteTransaction removes one transaction.
func (s *MaintenanceService) DeleteTransaction(ctx context.Context, id string) error {
	return repository.NewTransactionRepo(s.DB).Delete(ctx, id)
}
