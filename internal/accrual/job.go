package accrual

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/invest-ledger/internal/model"
)

const defaultRetryAfter = 30 * time.Second

// Trigger запускает пакет начислений на удалённом сервере.
type Trigger interface {
	Trigger(ctx context.Context) (*Summary, int, time.Duration, error)
}

// Job выполняет задание cron-процесса. Повторяет запуск, пока сервер занят или пакет прерван по бюджету.
type Job struct {
	trigger  Trigger
	logger   *zap.Logger
	attempts int
	wait     func(ctx context.Context, d time.Duration) error
}

// NewJob создаёт задание, делающее не более attempts вызовов за один тик расписания.
func NewJob(t Trigger, logger *zap.Logger, attempts int) *Job {
	if attempts <= 0 {
		attempts = 1
	}
	return &Job{trigger: t, logger: logger, attempts: attempts, wait: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run выполняет один тик расписания.
func (j *Job) Run(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		summary, code, retryAfter, err := j.trigger.Trigger(ctx)
		if err != nil {
			j.logger.Error("roi trigger failed", zap.Error(err), zap.Int("status", code))
			return err
		}

		if summary == nil {
			if attempt >= j.attempts {
				j.logger.Warn("roi batch still running, giving up until next tick")
				return model.ErrBusy
			}
			if retryAfter <= 0 {
				retryAfter = defaultRetryAfter
			}
			j.logger.Info("roi batch busy, retrying", zap.Duration("retry_after", retryAfter))
			if err := j.wait(ctx, retryAfter); err != nil {
				return err
			}
			continue
		}

		j.logger.Info("roi batch completed", zap.Stringer("summary", summary), zap.Int("attempt", attempt))
		if !summary.Partial || attempt >= j.attempts {
			return nil
		}
	}
}
