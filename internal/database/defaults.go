package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/rules"
)

// CategoryID derives the stable id of a seeded category.
func CategoryID(name string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("cat:"+strings.ToLower(strings.TrimSpace(name)))).String()
}

// SeedDefaults ensures the system categories of the rule set exist.
// It is idempotent and safe to run on every startup.
func SeedDefaults(ctx context.Context, db *sql.DB, set rules.Set) error {
	catRepo := repository.NewCategoryRepo(db)
	defs := append([]rules.CategoryDef(nil), set.Categories...)
	if !hasCategory(defs, set.DefaultCategory) {
		defs = append(defs, rules.CategoryDef{Name: set.DefaultCategory, Color: "#9E9E9E"})
	}
	now := Now()
	for idx, d := range defs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		c := repository.Category{
			ID:           CategoryID(name),
			Name:         name,
			Color:        d.Color,
			Emoji:        d.Emoji,
			IsSystem:     true,
			DisplayOrder: idx,
			CreatedAt:    now,
		}
		if err := catRepo.EnsureSystem(ctx, c); err != nil {
			return fmt.Errorf("seed category %s: %w", name, err)
		}
	}
	return nil
}

func hasCategory(defs []rules.CategoryDef, name string) bool {
	for _, d := range defs {
		if strings.EqualFold(d.Name, name) {
			return true
		}
	}
	return false
}
