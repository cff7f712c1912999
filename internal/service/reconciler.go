package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jask/smsledger/internal/database"
	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/logger"
	"github.com/jask/smsledger/internal/metrics"
)

// Reconciler removes duplicates that slipped past real-time dedup, e.g. from
// clock skew between ingestion paths.
type Reconciler struct {
	DB *sql.DB
	// Location decides which calendar day a transaction belongs to.
	Location *time.Location
	Metrics  *metrics.Collector
}

// CleanupReport describes one cleanup pass.
type CleanupReport struct {
	Scanned int      `json:"scanned"`
	Groups  int      `json:"groups"`
	Removed int      `json:"removed"`
	Deleted []string `json:"deleted,omitempty"`
}

// CleanupDuplicates groups transactions by merchant, amount, local day and
// bank. Each group of two or more keeps one row and the rest are deleted in
// a single database transaction.
func (r *Reconciler) CleanupDuplicates(ctx context.Context) (CleanupReport, error) {
	if r.DB == nil {
		return CleanupReport{}, fmt.Errorf("reconciler: db not configured")
	}
	log := logger.FromContext(ctx)
	txs, err := repository.NewTransactionRepo(r.DB).ListAll(ctx)
	if err != nil {
		return CleanupReport{}, fmt.Errorf("list transactions: %w", err)
	}

	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	groups := make(map[string][]repository.Transaction)
	var keys []string
	for _, t := range txs {
		k := contentKey(t, loc)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], t)
	}

	report := CleanupReport{Scanned: len(txs)}
	for _, k := range keys {
		g := groups[k]
		if len(g) < 2 {
			continue
		}
		report.Groups++
		sort.SliceStable(g, func(i, j int) bool { return keepBefore(g[i], g[j]) })
		for _, drop := range g[1:] {
			report.Deleted = append(report.Deleted, drop.ID)
		}
		log.Debug().Str("key", k).Str("kept", g[0].ID).Int("dropped", len(g)-1).Msg("duplicate group")
	}
	if len(report.Deleted) == 0 {
		return report, nil
	}

	err = database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		n, err := repository.NewTransactionRepo(tx).DeleteIDs(ctx, report.Deleted)
		report.Removed = int(n)
		return err
	})
	if err != nil {
		return CleanupReport{Scanned: report.Scanned}, fmt.Errorf("delete duplicates: %w", err)
	}
	r.Metrics.CleanupRemoved(report.Removed)
	log.Info().Int("groups", report.Groups).Int("removed", report.Removed).Msg("duplicate cleanup done")
	return report, nil
}

func contentKey(t repository.Transaction, loc *time.Location) string {
	return strings.Join([]string{
		t.NormalizedMerchant,
		strconv.FormatInt(t.AmountMinor, 10),
		t.TransactionDate.In(loc).Format(time.DateOnly),
		t.BankName,
	}, "|")
}

// keepBefore orders a duplicate group so the survivor comes first: highest
// confidence, then earliest created, then lowest id.
func keepBefore(a, b repository.Transaction) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}
