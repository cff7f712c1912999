package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/smsledger/internal/database/repository"
)

func TestResetKeepsCategories(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	out, err := f.engine.ProcessAndPersist(ctx, debitSMS("", "BIGBAZAAR", "649.00", t0))
	require.NoError(t, err)
	_, err = f.engine.ProcessAndPersist(ctx, debitSMS("", "DMART", "10.00", t0.Add(time.Hour)))
	require.NoError(t, err)

	m := &MaintenanceService{DB: f.db}
	require.NoError(t, m.DeleteTransaction(ctx, out.TransactionID))
	require.ErrorIs(t, m.DeleteTransaction(ctx, out.TransactionID), repository.ErrNotFound)
	require.Equal(t, int64(1), f.count(t))

	require.NoError(t, m.Reset(ctx))
	require.Zero(t, f.count(t))

	merchants, err := repository.NewMerchantRepo(f.db).List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, merchants)

	cats, err := repository.NewCategoryRepo(f.db).List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, cats)

	state, err := repository.NewSyncStateRepo(f.db).Get(ctx)
	require.NoError(t, err)
	require.Equal(t, SyncIdle, state.Status)

	require.Error(t, (&MaintenanceService{}).Reset(ctx))
}
