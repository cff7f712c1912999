package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jask/smsledger/internal/categorize"
	"github.com/jask/smsledger/internal/config"
	"github.com/jask/smsledger/internal/database"
	"github.com/jask/smsledger/internal/database/repository"
	"github.com/jask/smsledger/internal/logger"
	"github.com/jask/smsledger/internal/metrics"
	"github.com/jask/smsledger/internal/sms"
)

// Options tune deduplication and batch scheduling.
type Options struct {
	// AmountTolerance and TimeWindow bound the fuzzy duplicate search.
	// Both bounds are inclusive.
	AmountTolerance decimal.Decimal
	TimeWindow      time.Duration
	Workers         int
	YieldEvery      int
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{AmountTolerance: decimal.NewFromInt(1), TimeWindow: 10 * time.Minute, Workers: 4, YieldEvery: 50}
}

// OptionsFromConfig maps the engine and batch sections.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		AmountTolerance: decimal.NewFromFloat(cfg.Engine.AmountTolerance),
		TimeWindow:      cfg.Engine.TimeWindow,
		Workers:         cfg.Batch.Workers,
		YieldEvery:      cfg.Batch.YieldEvery,
	}
}

// Engine runs messages through classification, merchant resolution,
// deduplication and storage.
type Engine struct {
	db          *sql.DB
	classifier  *sms.Classifier
	categorizer *categorize.Engine
	opts        Options
	metrics     *metrics.Collector
	locks       keyedMutex

	transactions *repository.TransactionRepo
	aliases      *repository.AliasRepo
}

func NewEngine(db *sql.DB, classifier *sms.Classifier, categorizer *categorize.Engine, opts Options) *Engine {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.YieldEvery <= 0 {
		opts.YieldEvery = 50
	}
	return &Engine{
		db:           db,
		classifier:   classifier,
		categorizer:  categorizer,
		opts:         opts,
		transactions: repository.NewTransactionRepo(db),
		aliases:      repository.NewAliasRepo(db),
	}
}

// SetMetrics attaches a collector; nil disables recording.
func (e *Engine) SetMetrics(m *metrics.Collector) { e.metrics = m }

// Classify is the pure classification step, with no storage access.
func (e *Engine) Classify(m sms.RawMessage) sms.Result {
	return e.classifier.Classify(m)
}

// ProcessAndPersist takes one message to a terminal state. Rejections are
// outcomes, not errors; the error is reserved for malformed records and
// storage faults.
func (e *Engine) ProcessAndPersist(ctx context.Context, m sms.RawMessage) (Outcome, error) {
	if err := m.Validate(); err != nil {
		e.metrics.Fault()
		return Outcome{}, err
	}
	return e.persist(ctx, m, e.classifier.Classify(m))
}

func (e *Engine) persist(ctx context.Context, m sms.RawMessage, res sms.Result) (Outcome, error) {
	log := logger.FromContext(ctx)
	msgID := m.SourceID()

	if !res.Accepted() {
		log.Debug().Str("message_id", msgID).Str("sender", m.Sender).Stringer("reason", res.Reason).Msg("message rejected")
		e.metrics.Rejected(res.Reason.String())
		return Rejected(res.Reason), nil
	}
	ex := res.Extraction

	normalized, err := e.resolveMerchant(ctx, sms.NormalizeMerchant(ex.MerchantRaw))
	if err != nil {
		return e.fault(fmt.Errorf("resolve merchant: %w", err))
	}

	unlock := e.locks.Lock(normalized)
	defer unlock()

	existing, err := e.transactions.FindByMessageID(ctx, msgID)
	if err != nil {
		return e.fault(fmt.Errorf("exact dedup lookup: %w", err))
	}
	if existing != nil {
		return e.duplicate(ctx, msgID, existing.ID, DuplicateExact), nil
	}

	amount := toMinor(ex.Amount)
	tolerance := toMinor(e.opts.AmountTolerance)
	at := m.Timestamp.UTC().Truncate(time.Millisecond)
	existing, err = e.transactions.FindFuzzyDuplicate(ctx, repository.FuzzyQuery{
		NormalizedMerchant: normalized,
		BankName:           ex.BankName,
		MinAmount:          amount - tolerance,
		MaxAmount:          amount + tolerance,
		From:               at.Add(-e.opts.TimeWindow),
		To:                 at.Add(e.opts.TimeWindow),
		Around:             at,
	})
	if err != nil {
		return e.fault(fmt.Errorf("fuzzy dedup lookup: %w", err))
	}
	if existing != nil {
		return e.duplicate(ctx, msgID, existing.ID, DuplicateFuzzy), nil
	}

	row := repository.Transaction{
		ID:                 uuid.NewString(),
		SourceMessageID:    msgID,
		AmountMinor:        amount,
		MerchantRaw:        ex.MerchantRaw,
		NormalizedMerchant: normalized,
		BankName:           ex.BankName,
		TransactionDate:    at,
		RawBody:            m.Body,
		Confidence:         ex.Confidence,
		IsDebit:            ex.IsDebit,
		CreatedAt:          database.Now(),
	}
	if ex.ReferenceNumber != "" {
		ref := ex.ReferenceNumber
		row.ReferenceNumber = &ref
	}

	err = database.WithTx(ctx, e.db, func(tx *sql.Tx) error {
		categoryID, err := e.ensureMerchant(ctx, tx, normalized, row.CreatedAt)
		if err != nil {
			return fmt.Errorf("ensure merchant: %w", err)
		}
		row.CategoryID = &categoryID
		return repository.NewTransactionRepo(tx).Insert(ctx, row)
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// another writer stored the same message id between lookup and insert
		return e.duplicate(ctx, msgID, "", DuplicateExact), nil
	}
	if err != nil {
		return e.fault(fmt.Errorf("insert transaction: %w", err))
	}

	log.Debug().Str("message_id", msgID).Str("transaction_id", row.ID).Str("merchant", normalized).
		Int64("amount_minor", amount).Msg("transaction stored")
	e.metrics.Inserted()
	return Inserted(row.ID), nil
}

// resolveMerchant follows a registered alias to the merchant it belongs to.
func (e *Engine) resolveMerchant(ctx context.Context, normalized string) (string, error) {
	target, err := e.aliases.Resolve(ctx, normalized)
	if err != nil {
		return "", err
	}
	if target != "" {
		return target, nil
	}
	return normalized, nil
}

// ensureMerchant returns the merchant's category, creating the merchant with
// a rule-derived category on first sighting. A known merchant's category is
// never recomputed here.
func (e *Engine) ensureMerchant(ctx context.Context, q repository.Querier, normalized string, now time.Time) (string, error) {
	merchants := repository.NewMerchantRepo(q)
	m, err := merchants.Get(ctx, normalized)
	if err != nil {
		return "", err
	}
	if m != nil {
		return m.CategoryID, nil
	}

	suggestion := e.categorizer.Suggest(normalized)
	categoryID, err := e.categoryID(ctx, q, suggestion.Category)
	if err != nil {
		return "", err
	}
	created, err := merchants.InsertIfAbsent(ctx, repository.Merchant{
		NormalizedName: normalized,
		DisplayName:    DisplayName(normalized),
		CategoryID:     categoryID,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return "", err
	}
	if !created {
		m, err = merchants.Get(ctx, normalized)
		if err != nil {
			return "", err
		}
		return m.CategoryID, nil
	}
	log := logger.FromContext(ctx)
	log.Info().Str("merchant", normalized).Str("category", suggestion.Category).
		Str("source", string(suggestion.Source)).Msg("new merchant")
	return categoryID, nil
}

func (e *Engine) categoryID(ctx context.Context, q repository.Querier, name string) (string, error) {
	cats := repository.NewCategoryRepo(q)
	c, err := cats.GetByName(ctx, name)
	if err != nil {
		return "", err
	}
	if c == nil && !strings.EqualFold(name, e.categorizer.Default()) {
		c, err = cats.GetByName(ctx, e.categorizer.Default())
		if err != nil {
			return "", err
		}
	}
	if c == nil {
		return "", fmt.Errorf("category %q is not seeded", e.categorizer.Default())
	}
	return c.ID, nil
}

func (e *Engine) duplicate(ctx context.Context, msgID, existingID string, kind DuplicateKind) Outcome {
	log := logger.FromContext(ctx)
	log.Debug().Str("message_id", msgID).Str("existing_id", existingID).
		Str("kind", string(kind)).Msg("duplicate skipped")
	e.metrics.Duplicate(string(kind))
	return Outcome{Kind: OutcomeDuplicate, TransactionID: existingID, Duplicate: kind}
}

func (e *Engine) fault(err error) (Outcome, error) {
	e.metrics.Fault()
	return Outcome{}, err
}

// DisplayName turns a normalized merchant key into a presentable name.
func DisplayName(normalized string) string {
	// a Caser is stateful, so one per call
	return cases.Title(language.Und).String(strings.ToLower(normalized))
}

// toMinor converts a currency amount to integer paise.
func toMinor(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}
