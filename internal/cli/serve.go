package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/jask/smsledger/internal/api"
	"github.com/jask/smsledger/internal/logger"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default server.addr)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the scheduled duplicate cleanup",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	log := logger.FromContext(ctx)

	return withApp(cmd, func(a *app) error {
		addr := a.cfg.Server.Addr
		if v, _ := cmd.Flags().GetString("addr"); v != "" {
			addr = v
		}

		scheduler, err := scheduleCleanup(ctx, a)
		if err != nil {
			return err
		}
		if scheduler != nil {
			defer func() { <-scheduler.Stop().Done() }()
		}

		srv := &api.Server{
			DB:         a.db,
			Engine:     a.engine,
			Reconciler: a.reconciler(),
			Merchants:  a.merchants(),
			Gatherer:   a.registry,
			Location:   a.cfg.Engine.Location(),
			Log:        log,
		}
		httpSrv := &http.Server{
			Addr:              addr,
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", addr).Msg("listening")
			errCh <- httpSrv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
}

// scheduleCleanup starts the cron job for duplicate cleanup. An empty
// schedule returns a nil scheduler.
func scheduleCleanup(ctx context.Context, a *app) (*cron.Cron, error) {
	schedule := a.cfg.Maintenance.CleanupSchedule
	if schedule == "" {
		return nil, nil
	}
	log := logger.FromContext(ctx)
	loc := a.cfg.Engine.Location()

	c := cron.New(cron.WithLocation(loc))
	rec := a.reconciler()
	_, err := c.AddFunc(schedule, func() {
		jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Minute)
		defer cancel()
		report, err := rec.CleanupDuplicates(jobCtx)
		if err != nil {
			log.Error().Err(err).Msg("scheduled cleanup failed")
			return
		}
		log.Info().Int("scanned", report.Scanned).Int("removed", report.Removed).Msg("scheduled cleanup complete")
	})
	if err != nil {
		return nil, fmt.Errorf("schedule cleanup %q: %w", schedule, err)
	}
	c.Start()
	log.Info().Str("schedule", schedule).Str("timezone", loc.String()).Msg("cleanup scheduler started")
	return c, nil
}
