// Package main is the entry point for the wheelhouse server: an
// options wheel strategy tracker with trade ingestion, cycle
// bookkeeping, reinvestment signals and wealth wheel rebalancing.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"wheelhouse/internal/backup"
	"wheelhouse/internal/clients/marketdata"
	"wheelhouse/internal/config"
	"wheelhouse/internal/database"
	"wheelhouse/internal/events"
	"wheelhouse/internal/modules/accounts"
	"wheelhouse/internal/modules/cycles"
	"wheelhouse/internal/modules/ledger"
	"wheelhouse/internal/modules/lots"
	"wheelhouse/internal/modules/prices"
	"wheelhouse/internal/modules/reinvest"
	"wheelhouse/internal/modules/snapshots"
	"wheelhouse/internal/modules/trades"
	"wheelhouse/internal/modules/underlyings"
	"wheelhouse/internal/modules/wheel"
	"wheelhouse/internal/scheduler"
	"wheelhouse/internal/server"
	"wheelhouse/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting wheelhouse")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create data directory")
	}

	db, err := database.New(cfg.DatabasePath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := database.InitSchema(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize schema")
	}

	// Repositories
	accountsRepo := accounts.NewRepository(db, log)
	underlyingsRepo := underlyings.NewRepository(db, log)
	ledgerRepo := ledger.NewRepository(db, log)
	lotsRepo := lots.NewRepository(db, log)
	cyclesRepo := cycles.NewRepository(db, log)
	signalsRepo := reinvest.NewRepository(db, log)
	wheelRepo := wheel.NewRepository(db, log)

	// Services
	bus := events.NewBus()
	ledgerSvc := ledger.NewService(db, ledgerRepo, accountsRepo, log)
	lotTracker := lots.NewTracker(lotsRepo, underlyingsRepo, log)
	engine := cycles.NewEngine(cyclesRepo, ledgerSvc, ledgerRepo, lotTracker, lotsRepo, signalsRepo, underlyingsRepo, log)
	reinvestSvc := reinvest.NewService(db, signalsRepo, accountsRepo, ledgerSvc, bus, log)
	calculator := wheel.NewCalculator(db, wheelRepo, accountsRepo, underlyingsRepo, lotTracker, log)
	snapshotsSvc := snapshots.NewService(db, accountsRepo, calculator, log)
	tradesSvc := trades.NewService(db, accountsRepo, underlyingsRepo, ledgerSvc, lotTracker, cyclesRepo, engine, wheelRepo, bus, log)

	quoteClient := marketdata.NewClient(cfg.QuoteBaseURL, log)
	pricesSvc := prices.NewService(accountsRepo, underlyingsRepo, quoteClient, bus, log)

	backupSvc, err := backup.NewService(context.Background(), db, cfg.DataDir, cfg.BackupBucket, cfg.BackupPrefix, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize backup service")
	}

	// Background jobs
	sched := scheduler.New(log)
	registerJobs(sched, cfg, pricesSvc, snapshotsSvc, backupSvc, log)
	sched.Start()
	defer sched.Stop()

	srv := server.New(server.Config{
		Log:     log,
		DB:      db,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		DataDir: cfg.DataDir,

		Accounts:    accountsRepo,
		Underlyings: underlyingsRepo,
		Ledger:      ledgerSvc,
		Entries:     ledgerRepo,
		Lots:        lotsRepo,
		Cycles:      cyclesRepo,
		Trades:      tradesSvc,
		Reinvest:    reinvestSvc,
		Wheel:       wheelRepo,
		Calculator:  calculator,
		Snapshots:   snapshotsSvc,
		Prices:      pricesSvc,
		Bus:         bus,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, pricesSvc *prices.Service, snapshotsSvc *snapshots.Service, backupSvc *backup.Service, log zerolog.Logger) {
	if err := sched.AddJob(cfg.PriceRefreshSchedule, scheduler.NewPriceRefreshJob(pricesSvc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register price refresh job")
	}

	if err := sched.AddJob(cfg.SnapshotSchedule, scheduler.NewSnapshotJob(snapshotsSvc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register snapshot job")
	}

	if backupSvc.Enabled() {
		if err := sched.AddJob(cfg.BackupSchedule, scheduler.NewBackupJob(backupSvc)); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	} else {
		log.Warn().Msg("Backup bucket not configured, backups disabled")
	}
}
