// Package main запускает HTTP-сервер сервиса educart.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sramos/educart-system/internal/cart"
	"github.com/sramos/educart-system/internal/checkout"
	"github.com/sramos/educart-system/internal/config"
	"github.com/sramos/educart-system/internal/filestore"
	"github.com/sramos/educart-system/internal/handler"
	"github.com/sramos/educart-system/internal/middleware"
	"github.com/sramos/educart-system/internal/payment"
	"github.com/sramos/educart-system/internal/repository"
	"github.com/sramos/educart-system/internal/service"
	"github.com/sramos/educart-system/internal/storage"
)

const pendingSweepInterval = time.Minute

func main() {
	// .env необязателен, переменные окружения имеют приоритет
	_ = godotenv.Load()

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	var snapshots storage.Store
	if cfg.SnapshotStoreAddress != "" {
		snapshots, err = storage.NewRedisStore(cfg.SnapshotStoreAddress)
		if err != nil {
			sugar.Fatalw("snapshot store initialization error", "error", err.Error())
		}
	} else {
		sugar.Infow("snapshot store address is empty, carts will not survive a restart")
		snapshots = storage.NewMemoryStore()
	}
	defer snapshots.Close()

	carts := cart.NewStore(snapshots)
	markers := checkout.NewMarkerStore(snapshots)

	// при пустом адресе провайдера сверка платежей выключена, а оформление
	// заказа работает только в режиме dev fallback
	var paymentClient *payment.Client
	var payments service.Payments
	if cfg.PaymentSystemAddress != "" {
		paymentClient = payment.NewClient(cfg.PaymentSystemAddress)
		payments = paymentClient
	}

	svc := service.NewService(repo, payments, markers, logger)
	defer svc.Close()

	initiator := checkout.NewInitiator(carts, markers, repo, paymentClient, cfg.BaseURL, cfg.DevFallback, logger)
	recorder := checkout.NewRecorder(carts, markers, repo, logger)

	signer := filestore.NewSigner("educart-secret", cfg.BaseURL, cfg.FilesDir)
	authMiddleware := middleware.NewAuthMiddleware("educart-secret")

	h := handler.NewHandler(svc, carts, markers, initiator, recorder, signer, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Фоновая сверка незавершённых покупок с платёжной системой
	svc.StartPendingSweep(ctx, pendingSweepInterval)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting educart server", "addr", cfg.RunAddress)
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
