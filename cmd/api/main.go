package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/till/internal/checkout"
	"github.com/MrJamesThe3rd/till/internal/config"
	"github.com/MrJamesThe3rd/till/internal/customer"
	"github.com/MrJamesThe3rd/till/internal/database"
	"github.com/MrJamesThe3rd/till/internal/export"
	tillHttp "github.com/MrJamesThe3rd/till/internal/http"
	customerHandler "github.com/MrJamesThe3rd/till/internal/http/customer"
	exportHandler "github.com/MrJamesThe3rd/till/internal/http/export"
	migrateHandler "github.com/MrJamesThe3rd/till/internal/http/migrate"
	txHandler "github.com/MrJamesThe3rd/till/internal/http/transaction"
	"github.com/MrJamesThe3rd/till/internal/logging"
	"github.com/MrJamesThe3rd/till/internal/migrate"
	"github.com/MrJamesThe3rd/till/internal/notify"
	"github.com/MrJamesThe3rd/till/internal/tenant"
	"github.com/MrJamesThe3rd/till/internal/transaction"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := database.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}

	defer func() {
		if err := store.Close(context.Background()); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	var (
		resolver = tenant.NewResolver(cfg.Store.TenantRoot)
		notifier = notify.Log{Logger: logger}
	)

	var (
		transactionService = transaction.NewService(store,
			transaction.WithResolver(resolver),
			transaction.WithBatchSize(cfg.Store.BatchSize),
			transaction.WithLegacyReads(cfg.Store.LegacyReads),
			transaction.WithLogger(logger),
			transaction.WithNotifier(notifier),
		)
		customerCaches = customer.NewCaches(store,
			customer.WithResolver(resolver),
			customer.WithBatchSize(cfg.Store.BatchSize),
			customer.WithLegacyReads(cfg.Store.LegacyReads),
			customer.WithLogger(logger),
			customer.WithNotifier(notifier),
		)
		checkoutService = checkout.NewService(transactionService, customerCaches)
		migrator        = migrate.New(store,
			migrate.WithResolver(resolver),
			migrate.WithBatchSize(cfg.Store.BatchSize),
			migrate.WithLogger(logger),
			migrate.WithCached(customerCaches),
		)
		exportService = export.NewService(transactionService)
	)

	router := tillHttp.New(
		tillHttp.Options{JWTSecret: []byte(cfg.Auth.JWTSecret), CORSOrigins: cfg.CORS.Origins},
		txHandler.NewHandler(transactionService, checkoutService),
		customerHandler.NewHandler(customerCaches),
		migrateHandler.NewHandler(migrator),
		exportHandler.NewHandler(exportService),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.Timeout,
		// No WriteTimeout: the transaction stream stays open.
		IdleTimeout: 2 * cfg.Server.Timeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
		}
	}()

	slog.Info("starting server", "addr", srv.Addr, "backend", cfg.Store.Backend)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}

	customerCaches.Flush()
}
