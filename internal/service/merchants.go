package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/jask/smsledger/internal/database"
	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/logger"
	"github.com/jask/smsledger/internal/sms"
)

// MerchantService applies explicit user decisions about merchants and
// categories. These are the only paths that set isUserDefined.
type MerchantService struct {
	DB *sql.DB
	// DefaultCategory receives merchants and transactions of a deleted category.
	DefaultCategory string
}

// SimilarMerchant is an alias candidate.
type SimilarMerchant struct {
	NormalizedName string  `json:"normalized_name"`
	DisplayName    string  `json:"display_name"`
	Similarity     float64 `json:"similarity"`
}

// Recategorize assigns the named category to a merchant and moves every
// stored transaction of that merchant along with it. It returns how many
// transactions changed.
func (s *MerchantService) Recategorize(ctx context.Context, merchant, categoryName string) (int64, error) {
	name := sms.NormalizeMerchant(merchant)
	var moved int64
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		cat, err := repository.NewCategoryRepo(tx).GetByName(ctx, categoryName)
		if err != nil {
			return err
		}
		if cat == nil {
			return fmt.Errorf("category %q: %w", categoryName, repository.ErrNotFound)
		}
		if err := repository.NewMerchantRepo(tx).SetCategory(ctx, name, cat.ID, database.Now().UnixMilli()); err != nil {
			return fmt.Errorf("merchant %q: %w", name, err)
		}
		moved, err = repository.NewTransactionRepo(tx).BulkReassignCategory(ctx, name, cat.ID)
		return err
	})
	if err != nil {
		return 0, err
	}
	log := logger.FromContext(ctx)
	log.Info().Str("merchant", name).Str("category", categoryName).Int64("transactions", moved).Msg("merchant recategorized")
	return moved, nil
}

func (s *MerchantService) Rename(ctx context.Context, merchant, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return errors.New("display name is empty")
	}
	return repository.NewMerchantRepo(s.DB).Rename(ctx, sms.NormalizeMerchant(merchant), displayName, database.Now().UnixMilli())
}

// SetExcluded toggles whether a merchant counts toward spending summaries.
func (s *MerchantService) SetExcluded(ctx context.Context, merchant string, excluded bool) error {
	return repository.NewMerchantRepo(s.DB).SetExcluded(ctx, sms.NormalizeMerchant(merchant), excluded, database.Now().UnixMilli())
}

// AddAlias makes alias resolve to merchant on future ingestion. If alias is
// itself a known merchant, its transactions are folded into merchant and the
// alias merchant row is removed.
func (s *MerchantService) AddAlias(ctx context.Context, alias, merchant string) error {
	from := sms.NormalizeMerchant(alias)
	to := sms.NormalizeMerchant(merchant)
	if from == to {
		return fmt.Errorf("alias %q is the merchant itself", from)
	}
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		merchants := repository.NewMerchantRepo(tx)
		target, err := merchants.Get(ctx, to)
		if err != nil {
			return err
		}
		if target == nil {
			return fmt.Errorf("merchant %q: %w", to, repository.ErrNotFound)
		}
		if err := repository.NewAliasRepo(tx).Add(ctx, repository.MerchantAlias{
			Alias: from, NormalizedName: to, CreatedAt: database.Now(),
		}); err != nil {
			return err
		}
		old, err := merchants.Get(ctx, from)
		if err != nil || old == nil {
			return err
		}
		n, err := repository.NewTransactionRepo(tx).ReassignMerchant(ctx, from, to, target.CategoryID)
		if err != nil {
			return err
		}
		log := logger.FromContext(ctx)
		log.Info().Str("alias", from).Str("merchant", to).Int64("transactions", n).Msg("merged alias merchant")
		return merchants.Delete(ctx, from)
	})
}

// SimilarMerchants ranks other merchants by normalized edit similarity to
// merchant, keeping those at or above minSimilarity.
func (s *MerchantService) SimilarMerchants(ctx context.Context, merchant string, minSimilarity float64) ([]SimilarMerchant, error) {
	name := sms.NormalizeMerchant(merchant)
	all, err := repository.NewMerchantRepo(s.DB).List(ctx, "")
	if err != nil {
		return nil, err
	}
	var out []SimilarMerchant
	for _, m := range all {
		if m.NormalizedName == name {
			continue
		}
		sim := similarity(name, m.NormalizedName)
		if sim >= minSimilarity {
			out = append(out, SimilarMerchant{NormalizedName: m.NormalizedName, DisplayName: m.DisplayName, Similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].NormalizedName < out[j].NormalizedName
	})
	return out, nil
}

// Transactions lists a merchant's transactions, newest first.
func (s *MerchantService) Transactions(ctx context.Context, merchant string, limit int) ([]repository.Transaction, error) {
	return repository.NewTransactionRepo(s.DB).List(ctx, repository.TransactionFilters{
		NormalizedMerchant: sms.NormalizeMerchant(merchant),
		Limit:              limit,
	})
}

func (s *MerchantService) Categories(ctx context.Context) ([]repository.Category, error) {
	return repository.NewCategoryRepo(s.DB).List(ctx)
}

// CreateCategory adds a user category.
func (s *MerchantService) CreateCategory(ctx context.Context, name, color, emoji string) (repository.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return repository.Category{}, errors.New("category name is empty")
	}
	cats := repository.NewCategoryRepo(s.DB)
	existing, err := cats.List(ctx)
	if err != nil {
		return repository.Category{}, err
	}
	c := repository.Category{
		ID:           uuid.NewString(),
		Name:         name,
		Color:        color,
		Emoji:        emoji,
		DisplayOrder: len(existing),
		CreatedAt:    database.Now(),
	}
	if err := cats.Insert(ctx, c); err != nil {
		return repository.Category{}, fmt.Errorf("category %q: %w", name, err)
	}
	return c, nil
}

// DeleteCategory removes a user category, first moving its merchants and
// transactions to the default category. System categories cannot be deleted.
func (s *MerchantService) DeleteCategory(ctx context.Context, id string) error {
	return database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		cats := repository.NewCategoryRepo(tx)
		c, err := cats.Get(ctx, id)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("category %s: %w", id, repository.ErrNotFound)
		}
		if c.IsSystem {
			return fmt.Errorf("category %q: %w", c.Name, repository.ErrSystemCategory)
		}
		fallback, err := cats.GetByName(ctx, s.DefaultCategory)
		if err != nil {
			return err
		}
		if fallback == nil {
			return fmt.Errorf("default category %q: %w", s.DefaultCategory, repository.ErrNotFound)
		}
		if _, err := repository.NewMerchantRepo(tx).ReassignCategory(ctx, c.ID, fallback.ID); err != nil {
			return err
		}
		if _, err := repository.NewTransactionRepo(tx).ReassignCategory(ctx, c.ID, fallback.ID); err != nil {
			return err
		}
		return cats.Delete(ctx, c.ID)
	})
}

// similarity is 1 - editDistance/longerLength over runes.
func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
