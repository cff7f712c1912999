package repository

import (
	"context"
	"database/sql"
	"errors"
)

// CategoryRepo handles categories.
type CategoryRepo struct {
	db Querier
}

func NewCategoryRepo(db Querier) *CategoryRepo {
	return &CategoryRepo{db: db}
}

// Insert adds a category. A name clash yields ErrDuplicate.
func (r *CategoryRepo) Insert(ctx context.Context, c Category) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO categories(id, name, color, emoji, is_system, display_order, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Color, c.Emoji, boolInt(c.IsSystem), c.DisplayOrder, toMillis(c.CreatedAt))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// EnsureSystem inserts a system category unless one with that name exists.
func (r *CategoryRepo) EnsureSystem(ctx context.Context, c Category) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO categories(id, name, color, emoji, is_system, display_order, created_at)
	VALUES (?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(name) DO NOTHING
	`, c.ID, c.Name, c.Color, c.Emoji, c.DisplayOrder, toMillis(c.CreatedAt))
	return err
}

// Update changes presentation fields. System category names are left untouched.
func (r *CategoryRepo) Update(ctx context.Context, c Category) error {
	n, err := affected(r.db.ExecContext(ctx, `
	UPDATE categories SET
	 name = CASE WHEN is_system = 1 THEN name ELSE ? END,
	 color = ?, emoji = ?, display_order = ?
	WHERE id = ?
	`, c.Name, c.Color, c.Emoji, c.DisplayOrder, c.ID))
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CategoryRepo) Delete(ctx context.Context, id string) error {
	n, err := affected(r.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ? AND is_system = 0`, id))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const categoryCols = `id, name, color, emoji, is_system, display_order, created_at`

func (r *CategoryRepo) Get(ctx context.Context, id string) (*Category, error) {
	return r.one(ctx, `SELECT `+categoryCols+` FROM categories WHERE id = ?`, id)
}

// GetByName matches case-insensitively.
func (r *CategoryRepo) GetByName(ctx context.Context, name string) (*Category, error) {
	return r.one(ctx, `SELECT `+categoryCols+` FROM categories WHERE name = ? COLLATE NOCASE`, name)
}

func (r *CategoryRepo) List(ctx context.Context) ([]Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+categoryCols+` FROM categories ORDER BY display_order, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CategoryRepo) one(ctx context.Context, query string, arg any) (*Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func scanCategory(row scanner) (Category, error) {
	var c Category
	var system int
	var created int64
	if err := row.Scan(&c.ID, &c.Name, &c.Color, &c.Emoji, &system, &c.DisplayOrder, &created); err != nil {
		return Category{}, err
	}
	c.IsSystem = system == 1
	c.CreatedAt = fromMillis(created)
	return c, nil
}
