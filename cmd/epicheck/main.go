package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/bootstrap"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/config"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/repository"
	"github.com/dmehra2102/prod-golang-projects/epicheck/internal/service"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/auth"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/database"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/logger"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/metrics"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/tlsconfig"
	"github.com/dmehra2102/prod-golang-projects/epicheck/pkg/tracer"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "epicheck",
		Short:         "Skin case triage API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd(), migrateCmd(), sweepCmd(), tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration and the logger every subcommand needs.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.New(cfg.Log, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the background sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			return serve(cmd.Context(), cfg, log, migrate)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "run database migrations before serving")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger, migrate bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracer.Init(ctx, cfg.Tracing, cfg.App)
	if err != nil {
		return fmt.Errorf("initialising tracer: %w", err)
	}

	app, err := bootstrap.New(ctx, cfg, prometheus.DefaultRegisterer, log)
	if err != nil {
		return err
	}

	if migrate {
		if err := database.Migrate(app.DB, log); err != nil {
			app.Close()
			return err
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      app.Router(metrics.MetricsHandler(prometheus.DefaultGatherer)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	if cfg.TLS.Enabled() {
		tlsCfg, err := tlsconfig.Server(cfg.TLS)
		if err != nil {
			app.Close()
			return fmt.Errorf("server tls: %w", err)
		}
		srv.TLSConfig = tlsCfg
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		app.Sweeper.Run(sweepCtx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Bool("tls", cfg.TLS.Enabled()),
			zap.Bool("mtls", cfg.TLS.ClientCAFile != ""),
		)
		var err error
		if cfg.TLS.Enabled() {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case runErr = <-serverErr:
		log.Error("server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}

	stopSweeper()
	<-sweeperDone

	if err := app.Close(); err != nil {
		log.Error("closing dependencies", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error("tracer shutdown", zap.Error(err))
	}

	log.Info("server stopped")
	return runErr
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			db, err := database.Connect(cfg.Database, log)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			return database.Migrate(db, log)
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run a single recovery sweep over stuck and retryable cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			app, err := bootstrap.New(cmd.Context(), cfg, prometheus.NewRegistry(), log)
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "compensated=%d exhausted=%d reanalyzed=%d retried=%d failed=%d\n",
				report.Compensated, report.Exhausted, report.Reanalyzed, report.Retried, report.Failed)
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <profile-id>",
		Short: "Issue an access token for an existing profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profileID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid profile id: %w", err)
			}

			cfg, log, err := setup()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			db, err := database.Connect(cfg.Database, log)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			tokens := service.NewTokenService(repository.NewProfileRepository(db), auth.NewJWTManager(cfg.JWT), log)
			pair, err := tokens.IssueToken(cmd.Context(), profileID)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), pair.AccessToken)
			return nil
		},
	}
}
