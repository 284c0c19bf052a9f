/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the recurring expense schedule service. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load configuration
  2. Initialize logging and the SQLite store
  3. Build the schedule engine (calculator, expander, reconciler, effects)
  4. Start the cron batch scheduler
  5. Start the HTTP server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a YAML config file (optional; defaults + CAREXPENSES_*
           environment variables apply either way)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the cron scheduler (waits for a running batch tick)
  2. Stop accepting new connections, drain active requests
  3. Close the database connection
  4. Exit

EXAMPLES:
  ./server
  ./server -config=./config.yaml
  CAREXPENSES_SERVER_ADDR=:3000 ./server

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dcerge/carexpenses-api-sub003/api"
	"github.com/dcerge/carexpenses-api-sub003/config"
	"github.com/dcerge/carexpenses-api-sub003/recurrence"
	"github.com/dcerge/carexpenses-api-sub003/schedule"
	"github.com/dcerge/carexpenses-api-sub003/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(cfg.Log)

	// Store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.Database.Path).Msg("failed to open database")
	}
	defer store.Close()
	store.ClaimTTL = cfg.Batch.ClaimTTL

	// Engine
	calc := recurrence.NewCalculator(logger)
	calc.WeeklyHorizonDays = cfg.Engine.WeeklyHorizonDays
	calc.MonthlyHorizonDays = cfg.Engine.MonthlyHorizonDays
	calc.YearlyHorizonYears = cfg.Engine.YearlyHorizonYears

	expander := recurrence.NewExpander(calc, logger)
	expander.MaxIterations = cfg.Engine.MaxExpansion

	reconciler := schedule.NewReconciler(logger)
	effects := schedule.NewSideEffectCoordinator(schedule.NoopStatsRecalculator{}, schedule.StaticCurrencyResolver(""), logger)

	lifecycle := schedule.NewLifecycle(store, calc, expander, reconciler, effects, logger)
	batch := schedule.NewBatchProcessor(store, calc, expander, reconciler, effects, schedule.BatchConfig{
		DefaultBatchSize:    cfg.Batch.DefaultBatchSize,
		MaxBatchSize:        cfg.Batch.MaxBatchSize,
		DefaultMaxSchedules: cfg.Batch.DefaultMaxSchedules,
		ErrorReportCap:      cfg.Batch.ErrorReportCap,
	}, logger)

	// Cron
	cronSched := api.NewBatchScheduler(batch, cfg.Batch.CronSpec, logger)
	if err := cronSched.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start batch scheduler")
	}
	defer cronSched.Stop()

	// HTTP
	handler := api.NewHandler(store, store, calc, lifecycle, batch, logger)
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
	}

	logger.Info().Msg("server stopped")
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	if cfg.Pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
