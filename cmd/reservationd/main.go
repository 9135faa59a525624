package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/classroom-reservation/internal/application"
	"github.com/example/classroom-reservation/internal/catalog"
	"github.com/example/classroom-reservation/internal/config"
	"github.com/example/classroom-reservation/internal/identity"
	"github.com/example/classroom-reservation/internal/logging"
	"github.com/example/classroom-reservation/internal/notify"
	"github.com/example/classroom-reservation/internal/persistence"
	"github.com/example/classroom-reservation/internal/persistence/flatfile"
	"github.com/example/classroom-reservation/internal/persistence/sqlite"
	"github.com/example/classroom-reservation/internal/server"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.New(os.Stderr, "info").Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	cat, err := catalog.Open(cfg.DataDir, cfg.SeedFile)
	if err != nil {
		logger.Error("failed to open classroom catalog", "error", err)
		os.Exit(1)
	}

	var (
		store      persistence.ReservationStore
		queueStore persistence.NotificationStore
	)
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.SQLiteDSN)
		if err != nil {
			logger.Error("failed to open sqlite store", "dsn", cfg.SQLiteDSN, "error", err)
			os.Exit(1)
		}
		defer func() {
			if cerr := db.Close(); cerr != nil {
				logger.Error("failed to close sqlite store", "error", cerr)
			}
		}()
		store, queueStore = db, db
	default:
		files, err := flatfile.Open(cfg.DataDir)
		if err != nil {
			logger.Error("failed to open flat-file store", "dir", cfg.DataDir, "error", err)
			os.Exit(1)
		}
		store, queueStore = files, files
	}
	logger.Info("store ready", "backend", string(cfg.StoreBackend), "dir", cfg.DataDir)

	users, err := identity.Open(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open identity store", "error", err)
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher(notify.NewStoreQueue(queueStore), cfg.NotifyPacing, logger)
	reservations := application.NewReservationService(store, cat, users, dispatcher, time.Now, logger)
	rooms := application.NewCatalogService(cat, reservations, logger)

	srv := server.New(cfg.ListenAddr, cfg.MaxClients, users, reservations, rooms, dispatcher, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server shut down")
}
