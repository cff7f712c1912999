// Package cli implements the smsledger command line.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jask/smsledger/internal/categorize"
	"github.com/jask/smsledger/internal/config"
	"github.com/jask/smsledger/internal/database"
	"github.com/jask/smsledger/internal/logger"
	"github.com/jask/smsledger/internal/metrics"
	"github.com/jask/smsledger/internal/rules"
	"github.com/jask/smsledger/internal/service"
	"github.com/jask/smsledger/internal/sms"
)

var rootCmd = &cobra.Command{
	Use:   "smsledger",
	Short: "Turn bank SMS into a deduplicated, categorized ledger",
	Long: `smsledger classifies bank SMS, extracts amount, merchant and bank,
and stores each real transaction once in a local sqlite ledger.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadEnv,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/smsledger/config.toml)")
	rootCmd.PersistentFlags().String("db", "", "Override database.path")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type envKey struct{}

// loadEnv resolves config and the logger before any subcommand runs.
func loadEnv(cmd *cobra.Command, _ []string) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		os.Setenv("SMSLEDGER_CONFIG", path)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if path, _ := cmd.Flags().GetString("db"); path != "" {
		cfg.Database.Path = path
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.WithContext(ctx, log)
	cmd.SetContext(context.WithValue(ctx, envKey{}, cfg))
	return nil
}

func configFrom(cmd *cobra.Command) config.Config {
	if cfg, ok := cmd.Context().Value(envKey{}).(config.Config); ok {
		return cfg
	}
	return config.Default()
}

// app is the wired object graph shared by the commands.
type app struct {
	cfg        config.Config
	db         *sql.DB
	set        rules.Set
	classifier *sms.Classifier
	engine     *service.Engine
	metrics    *metrics.Collector
	registry   *prometheus.Registry
}

func newClassifier(cfg config.Config) (*sms.Classifier, rules.Set, error) {
	set, err := rules.Resolve(cfg.Rules.Set, cfg.Rules.Path)
	if err != nil {
		return nil, rules.Set{}, fmt.Errorf("load rules: %w", err)
	}
	c, err := sms.New(set, sms.Params{
		MinAmount:           cfg.Engine.MinAmount,
		AcceptanceThreshold: cfg.Engine.AcceptanceThreshold,
		DebitWinsTies:       cfg.Engine.DebitWinsTies,
	})
	if err != nil {
		return nil, rules.Set{}, fmt.Errorf("compile rules: %w", err)
	}
	return c, set, nil
}

// openApp migrates and seeds the database and builds the engine.
func openApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	cfg := configFrom(cmd)

	classifier, set, err := newClassifier(cfg)
	if err != nil {
		return nil, err
	}
	db, err := database.OpenAndMigrate(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := database.SeedDefaults(ctx, db, set); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New()
	m.Register(reg)

	engine := service.NewEngine(db, classifier, categorize.New(set), service.OptionsFromConfig(cfg))
	engine.SetMetrics(m)

	log := logger.FromContext(ctx)
	log.Debug().Str("db", cfg.Database.Path).Str("rules", cfg.Rules.Set).Msg("ledger opened")
	return &app{cfg: cfg, db: db, set: set, classifier: classifier, engine: engine, metrics: m, registry: reg}, nil
}

func (a *app) Close() error { return a.db.Close() }

func (a *app) merchants() *service.MerchantService {
	return &service.MerchantService{DB: a.db, DefaultCategory: a.set.DefaultCategory}
}

func (a *app) maintenance() *service.MaintenanceService {
	return &service.MaintenanceService{DB: a.db}
}

func (a *app) reconciler() *service.Reconciler {
	return &service.Reconciler{DB: a.db, Location: a.cfg.Engine.Location(), Metrics: a.metrics}
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, fn func(a *app) error) (err error) {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, a.Close()) }()
	return fn(a)
}
