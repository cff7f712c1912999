package repository

import (
	"context"
	"database/sql"
	"errors"
)

// MerchantRepo stores merchant identities and their category.
type MerchantRepo struct{ db Querier }

func NewMerchantRepo(db Querier) *MerchantRepo { return &MerchantRepo{db: db} }

const merchantCols = `normalized_name, display_name, category_id, is_user_defined, is_excluded, created_at, updated_at`

// Get returns nil when the merchant has not been seen.
func (r *MerchantRepo) Get(ctx context.Context, normalizedName string) (*Merchant, error) {
	m, err := scanMerchant(r.db.QueryRowContext(ctx, `SELECT `+merchantCols+` FROM merchants WHERE normalized_name = ?`, normalizedName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// Upsert writes every field of m.
func (r *MerchantRepo) Upsert(ctx context.Context, m Merchant) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO merchants(`+merchantCols+`)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(normalized_name) DO UPDATE SET
	 display_name=excluded.display_name,
	 category_id=excluded.category_id,
	 is_user_defined=excluded.is_user_defined,
	 is_excluded=excluded.is_excluded,
	 updated_at=excluded.updated_at
	`, m.NormalizedName, m.DisplayName, m.CategoryID, boolInt(m.IsUserDefined), boolInt(m.IsExcluded),
		toMillis(m.CreatedAt), toMillis(m.UpdatedAt))
	return err
}

// InsertIfAbsent creates m only when no merchant with that key exists, and
// reports whether it did.
func (r *MerchantRepo) InsertIfAbsent(ctx context.Context, m Merchant) (bool, error) {
	n, err := affected(r.db.ExecContext(ctx, `
	INSERT INTO merchants(`+merchantCols+`)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(normalized_name) DO NOTHING
	`, m.NormalizedName, m.DisplayName, m.CategoryID, boolInt(m.IsUserDefined), boolInt(m.IsExcluded),
		toMillis(m.CreatedAt), toMillis(m.UpdatedAt)))
	return n == 1, err
}

// SetCategory assigns a category as an explicit user choice.
func (r *MerchantRepo) SetCategory(ctx context.Context, normalizedName, categoryID string, updatedMillis int64) error {
	return mustAffect(r.db.ExecContext(ctx, `
	UPDATE merchants SET category_id = ?, is_user_defined = 1, updated_at = ? WHERE normalized_name = ?
	`, categoryID, updatedMillis, normalizedName))
}

func (r *MerchantRepo) SetExcluded(ctx context.Context, normalizedName string, excluded bool, updatedMillis int64) error {
	return mustAffect(r.db.ExecContext(ctx, `
	UPDATE merchants SET is_excluded = ?, updated_at = ? WHERE normalized_name = ?
	`, boolInt(excluded), updatedMillis, normalizedName))
}

func (r *MerchantRepo) Rename(ctx context.Context, normalizedName, displayName string, updatedMillis int64) error {
	return mustAffect(r.db.ExecContext(ctx, `
	UPDATE merchants SET display_name = ?, is_user_defined = 1, updated_at = ? WHERE normalized_name = ?
	`, displayName, updatedMillis, normalizedName))
}

// ReassignCategory moves every merchant in one category to another.
func (r *MerchantRepo) ReassignCategory(ctx context.Context, fromID, toID string) (int64, error) {
	return affected(r.db.ExecContext(ctx, `UPDATE merchants SET category_id = ? WHERE category_id = ?`, toID, fromID))
}

// Delete removes a merchant. Callers move its transactions first.
func (r *MerchantRepo) Delete(ctx context.Context, normalizedName string) error {
	return mustAffect(r.db.ExecContext(ctx, `DELETE FROM merchants WHERE normalized_name = ?`, normalizedName))
}

// List returns merchants ordered by name. An empty categoryID lists all.
func (r *MerchantRepo) List(ctx context.Context, categoryID string) ([]Merchant, error) {
	query := `SELECT ` + merchantCols + ` FROM merchants`
	var args []any
	if categoryID != "" {
		query += ` WHERE category_id = ?`
		args = append(args, categoryID)
	}
	query += ` ORDER BY normalized_name`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMerchant(row scanner) (Merchant, error) {
	var m Merchant
	var userDefined, excluded int
	var created, updated int64
	if err := row.Scan(&m.NormalizedName, &m.DisplayName, &m.CategoryID, &userDefined, &excluded, &created, &updated); err != nil {
		return Merchant{}, err
	}
	m.IsUserDefined = userDefined == 1
	m.IsExcluded = excluded == 1
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	return m, nil
}

func mustAffect(res sql.Result, err error) error {
	n, err := affected(res, err)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
