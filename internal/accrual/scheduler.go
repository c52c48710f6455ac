// Package accrual реализует пакетное начисление доходности по позициям и клиент для его запуска.
package accrual

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/invest-ledger/internal/lease"
	"github.com/mmeshcher/invest-ledger/internal/ledger"
	"github.com/mmeshcher/invest-ledger/internal/model"
	"github.com/mmeshcher/invest-ledger/internal/planmath"
)

const leaseKey = "roi-batch"

// DueSource читает позиции, подошедшие к начислению, страницами в порядке (next_roi, id).
type DueSource interface {
	DuePositions(ctx context.Context, now time.Time, after *model.DueCursor, limit int) ([]model.DuePosition, error)
}

// Applier применяет одно начисление.
type Applier interface {
	ApplyROI(ctx context.Context, a ledger.Accrual) (*ledger.AccrualResult, error)
}

// Notifier сообщает владельцу о начислении.
type Notifier interface {
	ROICredited(ctx context.Context, to, planName string, amount, percentage decimal.Decimal) error
}

// Config задаёт ограничения одного запуска.
type Config struct {
	// Budget задаёт время, после которого новые позиции не начинаются. Ноль снимает ограничение.
	Budget   time.Duration
	PageSize int
}

// Result описывает начисление по одной позиции.
type Result struct {
	PositionID    uuid.UUID       `json:"positionId"`
	ROIAmount     decimal.Decimal `json:"roiAmount"`
	ROIPercentage decimal.Decimal `json:"roiPercentage"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
}

// Summary содержит итог одного запуска.
type Summary struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Partial   bool     `json:"partial"`
	Results   []Result `json:"results"`
}

type randSource struct{}

func (randSource) Float64() float64 { return rand.Float64() }

// Scheduler обходит позиции с наступившим сроком и начисляет по ним доходность.
// Каждая позиция фиксируется отдельной транзакцией ledger.
type Scheduler struct {
	due      DueSource
	ledger   Applier
	notifier Notifier
	locker   lease.Locker
	logger   *zap.Logger
	rnd      planmath.Source
	cfg      Config
	now      func() time.Time
}

// NewScheduler создаёт планировщик начислений.
func NewScheduler(due DueSource, l Applier, n Notifier, logger *zap.Logger, cfg Config) *Scheduler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	return &Scheduler{
		due:      due,
		ledger:   l,
		notifier: n,
		logger:   logger,
		rnd:      randSource{},
		cfg:      cfg,
		now:      time.Now,
	}
}

// WithLocker включает взаимное исключение запусков.
func (s *Scheduler) WithLocker(locker lease.Locker) *Scheduler {
	s.locker = locker
	return s
}

// WithSource подменяет источник случайных чисел.
func (s *Scheduler) WithSource(src planmath.Source) *Scheduler {
	s.rnd = src
	return s
}

// WithClock подменяет источник времени.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// Run выполняет один проход по позициям с наступившим сроком начисления.
// Ошибка возвращается только если запуск не удалось начать; сбои отдельных позиций попадают в Summary.
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	if s.locker != nil {
		ttl := s.cfg.Budget + time.Minute
		release, err := s.locker.Acquire(ctx, leaseKey, ttl)
		if errors.Is(err, lease.ErrHeld) {
			return nil, model.ErrBusy
		}
		if err != nil {
			return nil, model.Dependency("acquire roi lease", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release roi lease failed", zap.Error(err))
			}
		}()
	}

	started := s.now()
	now := started.UTC().Truncate(time.Microsecond)
	summary := &Summary{Results: []Result{}}

	var cursor *model.DueCursor
	for {
		page, err := s.due.DuePositions(ctx, now, cursor, s.cfg.PageSize)
		if err != nil {
			if cursor == nil {
				return nil, model.Dependency("load due positions", err)
			}
			s.logger.Error("load due positions failed", zap.Error(err))
			summary.Partial = true
			break
		}

		for _, item := range page {
			if s.exhausted(ctx, started) {
				summary.Partial = true
				s.logSummary(summary)
				return summary, nil
			}
			if item.Position.NextROIAt != nil {
				cursor = &model.DueCursor{NextROIAt: *item.Position.NextROIAt, ID: item.Position.ID}
			}
			s.accrue(ctx, now, item, summary)
		}

		if len(page) < s.cfg.PageSize || cursor == nil {
			break
		}
	}

	s.logSummary(summary)
	return summary, nil
}

func (s *Scheduler) exhausted(ctx context.Context, started time.Time) bool {
	if ctx.Err() != nil {
		return true
	}
	return s.cfg.Budget > 0 && s.now().Sub(started) >= s.cfg.Budget
}

func (s *Scheduler) accrue(ctx context.Context, now time.Time, item model.DuePosition, summary *Summary) {
	p := item.Position
	log := s.logger.With(zap.String("position", p.ID.String()))

	if item.Plan == nil {
		log.Warn("skip position: plan reference missing")
		summary.Skipped++
		return
	}

	due, err := planmath.DueForAccrual(item.Plan.Frequency, p.LastROIAt, now)
	if err != nil {
		log.Warn("skip position: invalid plan frequency", zap.Error(err))
		summary.Skipped++
		return
	}
	if !due {
		log.Info("skip position: not due yet")
		summary.Skipped++
		return
	}

	pct, err := planmath.SampleROI(s.rnd, item.Plan.ROIMin, item.Plan.ROIMax)
	if err != nil {
		log.Warn("skip position: invalid roi bounds", zap.Error(err))
		summary.Skipped++
		return
	}

	res, err := s.ledger.ApplyROI(ctx, ledger.Accrual{
		PositionID: p.ID,
		Percentage: pct,
		Frequency:  item.Plan.Frequency,
		ExpectNext: p.NextROIAt,
	})
	if errors.Is(err, model.ErrStaleAccrual) {
		log.Info("skip position: already accrued")
		summary.Skipped++
		return
	}
	if err != nil {
		log.Error("apply roi failed", zap.Error(err))
		summary.Failed++
		return
	}

	summary.Processed++
	summary.Results = append(summary.Results, Result{
		PositionID:    p.ID,
		ROIAmount:     res.Record.Amount,
		ROIPercentage: res.Record.Percentage,
		BalanceAfter:  res.Record.BalanceAfter,
	})

	if item.OwnerEmail == "" {
		return
	}
	if err := s.notifier.ROICredited(ctx, item.OwnerEmail, p.PlanName, res.Record.Amount, pct); err != nil {
		log.Warn("roi notification failed", zap.Error(err))
	}
}

func (s *Scheduler) logSummary(summary *Summary) {
	s.logger.Info("roi batch finished",
		zap.Int("processed", summary.Processed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Bool("partial", summary.Partial),
	)
}

// String используется в логах cron-процесса.
func (s Summary) String() string {
	return fmt.Sprintf("processed=%d skipped=%d failed=%d partial=%t", s.Processed, s.Skipped, s.Failed, s.Partial)
}
