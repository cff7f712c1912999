package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// TransactionFilters defines list filters.
type TransactionFilters struct {
	NormalizedMerchant string
	CategoryID         string
	From               time.Time // inclusive, zero = unbounded
	To                 time.Time // exclusive, zero = unbounded
	Search             string
	Limit              int
}

// FuzzyQuery describes the near-duplicate window around a candidate.
// Both ranges are inclusive.
type FuzzyQuery struct {
	NormalizedMerchant string
	BankName           string
	MinAmount          int64
	MaxAmount          int64
	From               time.Time
	To                 time.Time
	// Around orders multiple hits by closeness in time.
	Around time.Time
}

// CategoryTotal is debit spend per category.
type CategoryTotal struct {
	CategoryID   string
	CategoryName string
	TotalMinor   int64
	Count        int
}

// MerchantTotal is debit spend per merchant.
type MerchantTotal struct {
	NormalizedMerchant string
	DisplayName        string
	TotalMinor         int64
	Count              int
}

// TransactionRepo handles transactions.
type TransactionRepo struct {
	db Querier
}

func NewTransactionRepo(db Querier) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionCols = `id, source_message_id, amount_minor, merchant_raw, normalized_merchant, category_id,
 bank_name, transaction_date, raw_body, reference_number, confidence, is_debit, created_at`

// Insert writes t. A repeated source_message_id yields ErrDuplicate.
func (r *TransactionRepo) Insert(ctx context.Context, t Transaction) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO transactions(`+transactionCols+`)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.SourceMessageID, t.AmountMinor, t.MerchantRaw, t.NormalizedMerchant, t.CategoryID,
		t.BankName, toMillis(t.TransactionDate), t.RawBody, t.ReferenceNumber, t.Confidence, boolInt(t.IsDebit),
		toMillis(t.CreatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *TransactionRepo) Get(ctx context.Context, id string) (*Transaction, error) {
	return r.one(ctx, `SELECT `+transactionCols+` FROM transactions WHERE id = ?`, id)
}

// FindByMessageID is the exact-dedup lookup.
func (r *TransactionRepo) FindByMessageID(ctx context.Context, sourceMessageID string) (*Transaction, error) {
	return r.one(ctx, `SELECT `+transactionCols+` FROM transactions WHERE source_message_id = ?`, sourceMessageID)
}

// FindFuzzyDuplicate returns the stored transaction closest in time that
// falls inside q, or nil.
func (r *TransactionRepo) FindFuzzyDuplicate(ctx context.Context, q FuzzyQuery) (*Transaction, error) {
	return r.one(ctx, `
	SELECT `+transactionCols+` FROM transactions
	WHERE normalized_merchant = ? AND bank_name = ?
	 AND amount_minor BETWEEN ? AND ?
	 AND transaction_date BETWEEN ? AND ?
	ORDER BY ABS(transaction_date - ?), created_at
	LIMIT 1
	`, q.NormalizedMerchant, q.BankName, q.MinAmount, q.MaxAmount,
		toMillis(q.From), toMillis(q.To), toMillis(q.Around))
}

// BulkReassignCategory points every transaction of a merchant at categoryID.
func (r *TransactionRepo) BulkReassignCategory(ctx context.Context, normalizedMerchant, categoryID string) (int64, error) {
	return affected(r.db.ExecContext(ctx, `UPDATE transactions SET category_id = ? WHERE normalized_merchant = ?`, categoryID, normalizedMerchant))
}

// ReassignMerchant moves every transaction of one merchant onto another,
// taking that merchant's category.
func (r *TransactionRepo) ReassignMerchant(ctx context.Context, fromName, toName, categoryID string) (int64, error) {
	return affected(r.db.ExecContext(ctx, `
	UPDATE transactions SET normalized_merchant = ?, category_id = ? WHERE normalized_merchant = ?
	`, toName, categoryID, fromName))
}

// ReassignCategory moves transactions between categories.
func (r *TransactionRepo) ReassignCategory(ctx context.Context, fromID, toID string) (int64, error) {
	return affected(r.db.ExecContext(ctx, `UPDATE transactions SET category_id = ? WHERE category_id = ?`, toID, fromID))
}

func (r *TransactionRepo) List(ctx context.Context, f TransactionFilters) ([]Transaction, error) {
	var where []string
	var args []any

	if f.NormalizedMerchant != "" {
		where = append(where, "normalized_merchant = ?")
		args = append(args, f.NormalizedMerchant)
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, f.CategoryID)
	}
	if !f.From.IsZero() {
		where = append(where, "transaction_date >= ?")
		args = append(args, toMillis(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "transaction_date < ?")
		args = append(args, toMillis(f.To))
	}
	if f.Search != "" {
		where = append(where, "(merchant_raw LIKE ? OR normalized_merchant LIKE ?)")
		args = append(args, "%"+f.Search+"%", "%"+f.Search+"%")
	}

	query := "SELECT " + transactionCols + " FROM transactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY transaction_date DESC, created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.many(ctx, query, args...)
}

// ListAll returns every transaction oldest-first; used by duplicate cleanup.
func (r *TransactionRepo) ListAll(ctx context.Context) ([]Transaction, error) {
	return r.many(ctx, "SELECT "+transactionCols+" FROM transactions ORDER BY transaction_date, created_at, id")
}

func (r *TransactionRepo) Delete(ctx context.Context, id string) error {
	return mustAffect(r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id))
}

// DeleteIDs removes the given transactions and returns how many went.
func (r *TransactionRepo) DeleteIDs(ctx context.Context, ids []string) (int64, error) {
	var total int64
	for _, id := range ids {
		n, err := affected(r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id))
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (r *TransactionRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

// SpendingByCategory sums debits in [from, to), skipping excluded merchants.
func (r *TransactionRepo) SpendingByCategory(ctx context.Context, from, to time.Time) ([]CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT c.id, c.name, SUM(t.amount_minor) AS total, COUNT(*)
	FROM transactions t
	JOIN merchants m ON m.normalized_name = t.normalized_merchant
	JOIN categories c ON c.id = t.category_id
	WHERE t.is_debit = 1 AND m.is_excluded = 0
	 AND t.transaction_date >= ? AND t.transaction_date < ?
	GROUP BY c.id, c.name
	ORDER BY total DESC
	`, toMillis(from), toMillis(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryTotal
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.CategoryID, &ct.CategoryName, &ct.TotalMinor, &ct.Count); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// TopMerchants ranks merchants by debit spend in [from, to), skipping excluded ones.
func (r *TransactionRepo) TopMerchants(ctx context.Context, from, to time.Time, limit int) ([]MerchantTotal, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT m.normalized_name, m.display_name, SUM(t.amount_minor) AS total, COUNT(*)
	FROM transactions t
	JOIN merchants m ON m.normalized_name = t.normalized_merchant
	WHERE t.is_debit = 1 AND m.is_excluded = 0
	 AND t.transaction_date >= ? AND t.transaction_date < ?
	GROUP BY m.normalized_name, m.display_name
	ORDER BY total DESC
	LIMIT ?
	`, toMillis(from), toMillis(to), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MerchantTotal
	for rows.Next() {
		var mt MerchantTotal
		if err := rows.Scan(&mt.NormalizedMerchant, &mt.DisplayName, &mt.TotalMinor, &mt.Count); err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}

func (r *TransactionRepo) one(ctx context.Context, query string, args ...any) (*Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *TransactionRepo) many(ctx context.Context, query string, args ...any) ([]Transaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(row scanner) (Transaction, error) {
	var t Transaction
	var category, ref sql.NullString
	var date, created int64
	var debit int
	if err := row.Scan(&t.ID, &t.SourceMessageID, &t.AmountMinor, &t.MerchantRaw, &t.NormalizedMerchant, &category,
		&t.BankName, &date, &t.RawBody, &ref, &t.Confidence, &debit, &created); err != nil {
		return Transaction{}, err
	}
	if category.Valid {
		t.CategoryID = &category.String
	}
	if ref.Valid {
		t.ReferenceNumber = &ref.String
	}
	t.TransactionDate = fromMillis(date)
	t.CreatedAt = fromMillis(created)
	t.IsDebit = debit == 1
	return t, nil
}
