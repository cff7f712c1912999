package service

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/smsledger/internal/categorize"
	"github.com/jask/smsledger/internal/database"
	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/rules"
	"github.com/jask/smsledger/internal/sms"
)

type fixture struct {
	db        *sql.DB
	engine    *Engine
	merchants *MerchantService
	txs       *repository.TransactionRepo
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenAndMigrate(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	t.Log("migrations applied")

	set, err := rules.Builtin("in")
	require.NoError(t, err)
	require.NoError(t, database.SeedDefaults(ctx, db, set))

	classifier, err := sms.New(set, sms.DefaultParams())
	require.NoError(t, err)
	return fixture{
		db:        db,
		engine:    NewEngine(db, classifier, categorize.New(set), DefaultOptions()),
		merchants: &MerchantService{DB: db, DefaultCategory: set.DefaultCategory},
		txs:       repository.NewTransactionRepo(db),
	}
}

var t0 = time.Date(2024, 1, 12, 10, 30, 0, 0, time.UTC)

// debitSMS builds a message that classifies as an accepted debit at merchant.
func debitSMS(id, merchant, amount string, at time.Time) sms.RawMessage {
	return sms.RawMessage{
		ID:        id,
		Sender:    "VM-HDFCBK",
		Body:      fmt.Sprintf("Rs.%s debited from A/c XX1234 at %s on 12-01-24. Ref 778812", amount, merchant),
		Timestamp: at,
	}
}

func (f fixture) count(t *testing.T) int64 {
	t.Helper()
	n, err := f.txs.Count(context.Background())
	require.NoError(t, err)
	return n
}

func (f fixture) categoryName(t *testing.T, id string) string {
	t.Helper()
	c, err := repository.NewCategoryRepo(f.db).Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c.Name
}

func TestProcessAndPersistInsertsAcceptedMessage(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	out, err := f.engine.ProcessAndPersist(ctx, sms.RawMessage{
		Sender:    "HDFCBK",
		Body:      "Rs.450.00 debited from A/c for UPI/SWIGGY/Ref1234 on 12-01-24",
		Timestamp: t0,
	})
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, out.Kind)
	require.NotEmpty(t, out.TransactionID)

	tx, err := f.txs.Get(ctx, out.TransactionID)
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Equal(t, int64(45000), tx.AmountMinor)
	require.Contains(t, tx.NormalizedMerchant, "SWIGGY")
	require.Equal(t, "HDFC Bank", tx.BankName)
	require.True(t, tx.IsDebit)
	require.Equal(t, "1234", *tx.ReferenceNumber)
	require.Equal(t, "Food & Dining", f.categoryName(t, *tx.CategoryID))

	m, err := repository.NewMerchantRepo(f.db).Get(ctx, tx.NormalizedMerchant)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.False(t, m.IsUserDefined)
}

func TestProcessAndPersistRejectionIsNotAnError(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	out, err := f.engine.ProcessAndPersist(ctx, sms.RawMessage{
		Sender:    "HDFCBK",
		Body:      "Get 50% cashback on UPI payments! Click http://x T&C apply. Ref 9981",
		Timestamp: t0,
	})
	require.NoError(t, err)
	require.Equal(t, Rejected(sms.Promotional), out)
	require.Zero(t, f.count(t))
}

func TestProcessAndPersistRejectsUnrepresentableAmount(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	out, err := f.engine.ProcessAndPersist(ctx, sms.RawMessage{
		Sender:    "HDFCBK",
		Body:      "Rs.99999999999999999999 debited from A/c for UPI/SWIGGY/Ref1234 on 12-01-24",
		Timestamp: t0,
	})
	require.NoError(t, err)
	require.Equal(t, Rejected(sms.NoValidAmount), out)
	require.Zero(t, f.count(t))
}

func TestProcessAndPersistMalformedIsAnError(t *testing.T) {
	f := setup(t)
	_, err := f.engine.ProcessAndPersist(context.Background(), sms.RawMessage{Sender: "HDFCBK", Body: "x"})
	require.ErrorIs(t, err, sms.ErrMalformedMessage)
}

func TestSameMessageTwiceStoresOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	m := debitSMS("", "BIGBAZAAR", "649.00", t0)

	first, err := f.engine.ProcessAndPersist(ctx, m)
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, first.Kind)

	second, err := f.engine.ProcessAndPersist(ctx, m)
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, second.Kind)
	require.Equal(t, DuplicateExact, second.Duplicate)
	require.Equal(t, first.TransactionID, second.TransactionID)
	require.Equal(t, int64(1), f.count(t))
}

func TestLiveAndRescanDuplicateIsFuzzy(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	live, err := f.engine.ProcessAndPersist(ctx, debitSMS("A", "BIGBAZAAR", "649.00", t0))
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, live.Kind)

	rescan, err := f.engine.ProcessAndPersist(ctx, debitSMS("B", "BIGBAZAAR", "649.00", t0.Add(3*time.Minute)))
	require.NoError(t, err)
	require.Equal(t, OutcomeDuplicate, rescan.Kind)
	require.Equal(t, DuplicateFuzzy, rescan.Duplicate)
	require.Equal(t, live.TransactionID, rescan.TransactionID)
	require.Equal(t, int64(1), f.count(t))
}

func TestFuzzyDedupBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		amount string
		offset time.Duration
		dup    bool
	}{
		{"amount at tolerance above", "650.00", 0, true},
		{"amount at tolerance below", "648.00", 0, true},
		{"amount past tolerance", "650.01", 0, false},
		{"time at window", "649.00", 10 * time.Minute, true},
		{"time at window before", "649.00", -10 * time.Minute, true},
		{"time past window", "649.00", 10*time.Minute + time.Millisecond, false},
		{"both at edge", "650.00", -10 * time.Minute, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			f := setup(t)
			_, err := f.engine.ProcessAndPersist(ctx, debitSMS("A", "BIGBAZAAR", "649.00", t0))
			require.NoError(t, err)

			out, err := f.engine.ProcessAndPersist(ctx, debitSMS("B", "BIGBAZAAR", tc.amount, t0.Add(tc.offset)))
			require.NoError(t, err)
			if tc.dup {
				require.Equal(t, OutcomeDuplicate, out.Kind)
				require.Equal(t, int64(1), f.count(t))
			} else {
				require.Equal(t, OutcomeInserted, out.Kind)
				require.Equal(t, int64(2), f.count(t))
			}
		})
	}
}

func TestFuzzyDedupNeedsSameBank(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	_, err := f.engine.ProcessAndPersist(ctx, debitSMS("A", "BIGBAZAAR", "649.00", t0))
	require.NoError(t, err)

	other := debitSMS("B", "BIGBAZAAR", "649.00", t0.Add(time.Minute))
	other.Sender = "AX-ICICIB"
	out, err := f.engine.ProcessAndPersist(ctx, other)
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, out.Kind)
}

func TestCategoryStabilityAndRecategorize(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	merchants := repository.NewMerchantRepo(f.db)

	first, err := f.engine.ProcessAndPersist(ctx, debitSMS("", "BIGBAZAAR", "649.00", t0))
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, first.Kind)

	m, err := merchants.Get(ctx, "BIGBAZAAR")
	require.NoError(t, err)
	require.Equal(t, "Groceries", f.categoryName(t, m.CategoryID))
	groceries := m.CategoryID

	for i := 1; i <= 100; i++ {
		out, err := f.engine.ProcessAndPersist(ctx, debitSMS("", "BIGBAZAAR", fmt.Sprintf("%d.00", 100+i), t0.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
		require.Equal(t, OutcomeInserted, out.Kind)
		m, err := merchants.Get(ctx, "BIGBAZAAR")
		require.NoError(t, err)
		require.Equal(t, groceries, m.CategoryID)
	}
	t.Log("100 follow-up inserts kept the category")

	moved, err := f.merchants.Recategorize(ctx, "bigbazaar", "Shopping")
	require.NoError(t, err)
	require.Equal(t, int64(101), moved)

	later, err := f.engine.ProcessAndPersist(ctx, debitSMS("", "BIGBAZAAR", "77.00", t0.Add(500*time.Hour)))
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, later.Kind)

	txs, err := f.merchants.Transactions(ctx, "BIGBAZAAR", 0)
	require.NoError(t, err)
	require.Len(t, txs, 102)
	for _, tx := range txs {
		require.Equal(t, "Shopping", f.categoryName(t, *tx.CategoryID))
	}

	m, err = merchants.Get(ctx, "BIGBAZAAR")
	require.NoError(t, err)
	require.True(t, m.IsUserDefined)
}

func TestConcurrentIdenticalMessagesStoreOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	const n = 16
	var wg sync.WaitGroup
	outs := make([]Outcome, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// distinct ids force the fuzzy path to do the work
			outs[i], errs[i] = f.engine.ProcessAndPersist(ctx, debitSMS(fmt.Sprintf("m%d", i), "DMART", "250.00", t0.Add(time.Duration(i)*time.Second)))
		}()
	}
	wg.Wait()

	inserted := 0
	for i := range outs {
		require.NoError(t, errs[i])
		if outs[i].Kind == OutcomeInserted {
			inserted++
		}
	}
	require.Equal(t, 1, inserted)
	require.Equal(t, int64(1), f.count(t))
	require.Zero(t, f.engine.locks.size())
}

func TestAliasResolvesOnIngestion(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	_, err := f.engine.ProcessAndPersist(ctx, debitSMS("", "BIGBAZAAR", "649.00", t0))
	require.NoError(t, err)
	require.NoError(t, f.merchants.AddAlias(ctx, "BIG BAZAAR RETAIL", "BIGBAZAAR"))

	out, err := f.engine.ProcessAndPersist(ctx, debitSMS("", "BIG BAZAAR RETAIL", "12.00", t0.Add(time.Hour)))
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, out.Kind)
	tx, err := f.txs.Get(ctx, out.TransactionID)
	require.NoError(t, err)
	require.Equal(t, "BIGBAZAAR", tx.NormalizedMerchant)
}

func TestDisplayName(t *testing.T) {
	require.Equal(t, "Big Bazaar", DisplayName("BIG BAZAAR"))
	require.Equal(t, "Unknown Merchant", DisplayName(sms.UnknownNormalized))
}
