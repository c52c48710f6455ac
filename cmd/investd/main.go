// Package main запускает HTTP-сервер инвестиционной платформы.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/invest-ledger/internal/accrual"
	"github.com/mmeshcher/invest-ledger/internal/config"
	"github.com/mmeshcher/invest-ledger/internal/handler"
	"github.com/mmeshcher/invest-ledger/internal/lease"
	"github.com/mmeshcher/invest-ledger/internal/ledger"
	"github.com/mmeshcher/invest-ledger/internal/middleware"
	"github.com/mmeshcher/invest-ledger/internal/notify"
	"github.com/mmeshcher/invest-ledger/internal/repository"
	"github.com/mmeshcher/invest-ledger/internal/review"
	"github.com/mmeshcher/invest-ledger/internal/service"
	"github.com/mmeshcher/invest-ledger/internal/storage"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := repository.NewPostgresRepository(ctx, cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	l, err := ledger.New(repo, ledger.Config{
		FeeRate:            cfg.WithdrawalFeeRate,
		MinWithdrawal:      cfg.MinWithdrawal,
		MaxActivePositions: cfg.MaxActivePositions,
	})
	if err != nil {
		sugar.Fatalw("ledger initialization error", "error", err.Error())
	}

	var sender notify.Sender = notify.NewLogSender(logger)
	if cfg.AMQPURL != "" {
		amqpSender, err := notify.NewAMQPSender(cfg.AMQPURL, cfg.NotifyQueue)
		if err != nil {
			sugar.Fatalw("notification broker error", "error", err.Error())
		}
		defer amqpSender.Close()
		sender = amqpSender
	}
	notifier := notify.New(sender)

	var locker lease.Locker = lease.NewLocal()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rdb.Ping(ctx).Err(); err != nil {
			sugar.Fatalw("redis connection error", "error", err.Error())
		}
		defer rdb.Close()
		locker = lease.NewRedis(rdb, "invest-ledger:")
	}

	var proofs service.ProofUploader
	if cfg.S3Bucket != "" {
		store, err := storage.NewProofStore(ctx, storage.Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
			PresignTTL:    cfg.S3PresignTTL,
		})
		if err != nil {
			sugar.Fatalw("object storage initialization error", "error", err.Error())
		}
		proofs = store
	} else {
		sugar.Warn("S3_BUCKET is not set, payment proof uploads are disabled")
	}

	scheduler := accrual.NewScheduler(repo, l, notifier, logger, accrual.Config{
		Budget:   cfg.ROIBatchBudget,
		PageSize: cfg.ROIBatchPage,
	}).WithLocker(locker)

	svc := service.NewService(service.Deps{
		Repo:     repo,
		Ledger:   l,
		Reviewer: review.NewWorkflow(l, repo, notifier, logger),
		Batch:    scheduler,
		Proofs:   proofs,
		Notifier: notifier,
		Logger:   logger,
	})
	defer svc.Close()

	if cfg.ROISecret == "" {
		sugar.Warn("ROI_SECRET is not set, ROI trigger endpoint is disabled")
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, handler.Config{
		ROISecret:      cfg.ROISecret,
		ROIRetryAfter:  cfg.ROIBatchBudget,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting investd server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине).
	// Таймаут покрывает незавершённый пакет начислений.
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ROIBatchBudget+5*time.Second)
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
