// Package main запускает внешний планировщик начислений доходности.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/invest-ledger/internal/accrual"
	"github.com/mmeshcher/invest-ledger/internal/config"
)

// maxAttempts ограничивает число вызовов investd за один тик расписания.
const maxAttempts = 3

func main() {
	cfg, err := config.ParseCron()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	lvl, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	logger, err := zcfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	job := accrual.NewJob(accrual.NewClient(cfg.TriggerURL, cfg.ROISecret, cfg.RequestTimeout), logger, maxAttempts)

	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(cfg.Spec, func() {
		_ = job.Run(ctx)
	}); err != nil {
		sugar.Fatalw("invalid cron spec", "spec", cfg.Spec, "error", err.Error())
	}

	sugar.Infow("starting roicron", "spec", cfg.Spec, "target", cfg.TriggerURL)
	c.Start()

	<-ctx.Done()
	sugar.Info("stopping roicron...")
	<-c.Stop().Done()
	sugar.Info("roicron stopped")
}
