// Command server runs the portfolio management HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/elvistkf/FIRE-portfolio-management/internal/config"
	"github.com/elvistkf/FIRE-portfolio-management/internal/database"
	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/analytics"
	analyticshandlers "github.com/elvistkf/FIRE-portfolio-management/internal/modules/analytics/handlers"
	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/ledger"
	ledgerhandlers "github.com/elvistkf/FIRE-portfolio-management/internal/modules/ledger/handlers"
	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/marketdata"
	"github.com/elvistkf/FIRE-portfolio-management/internal/scheduler"
	"github.com/elvistkf/FIRE-portfolio-management/internal/server"
	"github.com/elvistkf/FIRE-portfolio-management/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet.
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Int("port", cfg.Port).
		Str("data_dir", cfg.DataDir).
		Str("periodicity", cfg.Periodicity).
		Msg("Starting portfolio management server")

	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "ledger.db"),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	defer ledgerDB.Close()

	marketDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "market.db"),
		Profile: database.ProfileStandard,
		Name:    "market",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open market database")
	}
	defer marketDB.Close()

	if err := ledger.EnsureSchema(ledgerDB.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger schema")
	}
	if err := marketdata.EnsureSchema(marketDB.Conn()); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize market data schema")
	}

	historyRepo := marketdata.NewHistoryRepository(marketDB.Conn(), log)
	ledgerRepo := ledger.NewRepository(ledgerDB.Conn(), log)
	ledgerService := ledger.NewService(ledgerRepo, historyRepo, log)

	analyticsService := analytics.NewService(historyRepo, ledgerService, analytics.Config{
		Periodicity:        analytics.Periodicity(cfg.Periodicity),
		AllowShort:         cfg.AllowShort,
		NumPoints:          cfg.NumPoints,
		MinObservations:    cfg.MinObservations,
		ConditionThreshold: cfg.ConditionThreshold,
		LookbackDays:       cfg.LookbackDays,
		RelaxedScoring:     cfg.RelaxedScoring,
	}, log)

	srv := server.New(server.Config{
		Log:               log,
		Config:            cfg,
		LedgerDB:          ledgerDB,
		MarketDB:          marketDB,
		LedgerHandlers:    ledgerhandlers.NewHandler(ledgerRepo, ledgerService, log),
		AnalyticsHandlers: analyticshandlers.NewHandler(analyticsService, log),
	})

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.RefreshSchedule, scheduler.NewRefreshAnalyticsJob(analyticsService, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register analytics refresh job")
	}
	sched.Start()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
