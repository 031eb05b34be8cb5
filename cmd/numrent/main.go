// Package main запускает HTTP-сервер сервиса аренды номеров.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mkoshel/numrent-system/internal/config"
	"github.com/mkoshel/numrent-system/internal/handler"
	"github.com/mkoshel/numrent-system/internal/ledger"
	"github.com/mkoshel/numrent-system/internal/middleware"
	"github.com/mkoshel/numrent-system/internal/notify"
	"github.com/mkoshel/numrent-system/internal/provider"
	"github.com/mkoshel/numrent-system/internal/redeem"
	"github.com/mkoshel/numrent-system/internal/repository"
	"github.com/mkoshel/numrent-system/internal/service"
	"github.com/mkoshel/numrent-system/internal/tracker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	var store repository.AccountStore
	if cfg.DatabaseURI != "" {
		store, err = repository.NewPostgresStore(cfg.DatabaseURI)
	} else {
		store, err = repository.NewBoltStore(cfg.StoreFile)
	}
	if err != nil {
		sugar.Fatalw("account store initialization error", "error", err.Error())
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	accounts, err := ledger.NewLedger(ctx, store, logger, cfg.SnapshotInterval)
	if err != nil {
		sugar.Fatalw("ledger initialization error", "error", err.Error())
	}

	providerClient := provider.NewClient(cfg.ProviderAddress, cfg.ProviderToken, logger)
	redeemer := redeem.NewService(accounts)
	notifier := notify.NewLogNotifier(logger)
	orders := tracker.NewTracker()

	svc := service.NewService(accounts, orders, providerClient, redeemer, notifier, logger, service.Options{
		OrderCost:     cfg.OrderCost,
		PollInterval:  cfg.PollInterval,
		OrderDeadline: cfg.OrderDeadline,
		Country:       cfg.Country,
		Operator:      cfg.Operator,
		Service:       cfg.Service,
	})
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.AdminToken)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	g, ctx := errgroup.WithContext(ctx)

	// Периодический снимок балансов в долговременное хранилище
	g.Go(func() error {
		return accounts.RunSnapshots(ctx)
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting numrent server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
