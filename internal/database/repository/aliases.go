package repository

import (
	"context"
	"database/sql"
	"errors"
)

// AliasRepo maps alternative normalized spellings to a merchant.
type AliasRepo struct{ db Querier }

func NewAliasRepo(db Querier) *AliasRepo { return &AliasRepo{db: db} }

func (r *AliasRepo) Add(ctx context.Context, a MerchantAlias) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO merchant_aliases(alias, normalized_name, created_at) VALUES (?, ?, ?)
	ON CONFLICT(alias) DO UPDATE SET normalized_name=excluded.normalized_name
	`, a.Alias, a.NormalizedName, toMillis(a.CreatedAt))
	return err
}

// Resolve returns the merchant an alias points at, or "" when none.
func (r *AliasRepo) Resolve(ctx context.Context, alias string) (string, error) {
	var name string
	err := r.db.QueryRowContext(ctx, `SELECT normalized_name FROM merchant_aliases WHERE alias = ?`, alias).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return name, err
}

func (r *AliasRepo) ListFor(ctx context.Context, normalizedName string) ([]MerchantAlias, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT alias, normalized_name, created_at FROM merchant_aliases WHERE normalized_name = ? ORDER BY alias`, normalizedName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MerchantAlias
	for rows.Next() {
		var a MerchantAlias
		var created int64
		if err := rows.Scan(&a.Alias, &a.NormalizedName, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = fromMillis(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AliasRepo) Remove(ctx context.Context, alias string) error {
	return mustAffect(r.db.ExecContext(ctx, `DELETE FROM merchant_aliases WHERE alias = ?`, alias))
}
