package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invest-ledger/internal/model"
	"github.com/mmeshcher/invest-ledger/internal/planmath"
)

// Config задаёт правила, которые ledger применяет к операциям.
type Config struct {
	FeeRate            decimal.Decimal
	MinWithdrawal      decimal.Decimal
	MaxActivePositions int
}

// Ledger выполняет все операции, изменяющие балансы.
type Ledger struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// New создаёт Ledger поверх хранилища.
func New(store Store, cfg Config) (*Ledger, error) {
	if _, err := planmath.Fee(decimal.Zero, cfg.FeeRate); err != nil {
		return nil, fmt.Errorf("fee rate: %w", err)
	}
	if cfg.MinWithdrawal.IsNegative() {
		return nil, model.Invalid("negative minimum withdrawal %s", cfg.MinWithdrawal)
	}
	return &Ledger{
		store: store,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}, nil
}

// WithClock подменяет источник текущего времени.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// FeeRate возвращает действующую ставку комиссии за вывод.
func (l *Ledger) FeeRate() decimal.Decimal {
	return l.cfg.FeeRate
}

func (l *Ledger) clock() time.Time {
	// Postgres хранит timestamptz с микросекундной точностью.
	return l.now().UTC().Truncate(time.Microsecond)
}

func (l *Ledger) withinTx(ctx context.Context, op string, fn func(tx Tx) error) error {
	return model.Dependency(op, l.store.WithinTx(ctx, fn))
}

// maxAmount ограничивает суммы сверху, чтобы они помещались в NUMERIC(20,8).
var maxAmount = decimal.New(1, 20-planmath.AmountScale)

func requirePositive(name string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return model.Invalid("%s must be positive, got %s", name, v)
	}
	if !v.Equal(v.Truncate(planmath.AmountScale)) {
		return model.Invalid("%s has more than %d decimal places", name, planmath.AmountScale)
	}
	if v.GreaterThanOrEqual(maxAmount) {
		return model.Invalid("%s must be less than %s", name, maxAmount)
	}
	return nil
}

func lockActiveProfile(ctx context.Context, tx Tx, userID uuid.UUID) (*model.Profile, error) {
	profile, err := tx.GetProfileForUpdate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.Frozen {
		return nil, model.ErrAccountFrozen
	}
	return profile, nil
}

// CreditDeposit зачисляет средства на счёт и создаёт завершённую запись журнала типа deposit.
// Идемпотентность по заявке обеспечивает вызывающий код.
func (l *Ledger) CreditDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*model.Transaction, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}

	var entry *model.Transaction
	err := l.withinTx(ctx, "credit deposit", func(tx Tx) error {
		if _, err := tx.GetProfileForUpdate(ctx, userID); err != nil {
			return err
		}
		if _, err := tx.AdjustProfileFunds(ctx, userID, amount, decimal.Zero); err != nil {
			return err
		}

		now := l.clock()
		entry = &model.Transaction{
			ID:          uuid.New(),
			UserID:      userID,
			Type:        model.TxDeposit,
			Amount:      amount,
			FeeAmount:   decimal.Zero,
			Status:      model.TxCompleted,
			Description: description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.InsertTransaction(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DebitForInvestment списывает сумму со счёта и открывает позицию по плану.
func (l *Ledger) DebitForInvestment(ctx context.Context, userID, planID uuid.UUID, amount decimal.Decimal) (*model.Position, *model.Transaction, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, nil, err
	}

	var (
		position *model.Position
		entry    *model.Transaction
	)
	err := l.withinTx(ctx, "debit for investment", func(tx Tx) error {
		profile, err := lockActiveProfile(ctx, tx, userID)
		if err != nil {
			return err
		}

		plan, err := tx.GetPlan(ctx, planID)
		if err != nil {
			return err
		}
		if !plan.Active {
			return model.Invalid("plan %s is not active", plan.Key)
		}
		if amount.LessThan(plan.MinAmount) {
			return model.Invalid("minimum investment is %s", plan.MinAmount)
		}
		if plan.MaxAmount.Valid && amount.GreaterThan(plan.MaxAmount.Decimal) {
			return model.Invalid("maximum investment is %s", plan.MaxAmount.Decimal)
		}

		if l.cfg.MaxActivePositions > 0 {
			active, err := tx.CountActivePositions(ctx, userID)
			if err != nil {
				return err
			}
			if active >= l.cfg.MaxActivePositions {
				return model.Invalid("maximum of %d active plans reached", l.cfg.MaxActivePositions)
			}
		}

		if profile.Available().LessThan(amount) {
			return &model.InsufficientFundsError{Available: profile.Available(), Requested: amount}
		}
		if _, err := tx.AdjustProfileFunds(ctx, userID, amount.Neg(), decimal.Zero); err != nil {
			return err
		}

		now := l.clock()
		next, err := planmath.NextRunAt(plan.Frequency, now)
		if err != nil {
			return err
		}
		// Снимок срока блокировки нужен только планам с выводом после окончания блокировки.
		var lockUntil *time.Time
		if plan.WithdrawalType == model.WithdrawalFull {
			if lockUntil, err = planmath.LockUntil(now, plan.LockPeriodHours); err != nil {
				return err
			}
		}

		pid := plan.ID
		position = &model.Position{
			ID:             uuid.New(),
			UserID:         userID,
			PlanID:         &pid,
			PlanKey:        plan.Key,
			PlanName:       plan.Name,
			InvestedAmount: amount,
			CurrentBalance: amount,
			TotalEarned:    decimal.Zero,
			Reserved:       decimal.Zero,
			Status:         model.PositionActive,
			LockUntil:      lockUntil,
			NextROIAt:      &next,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.InsertPosition(ctx, position); err != nil {
			return err
		}

		ref := position.ID
		entry = &model.Transaction{
			ID:          uuid.New(),
			UserID:      userID,
			Type:        model.TxInvestment,
			Amount:      amount,
			FeeAmount:   decimal.Zero,
			Status:      model.TxCompleted,
			ReferenceID: &ref,
			Description: "Investment in " + plan.Name,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return tx.InsertTransaction(ctx, entry)
	})
	if err != nil {
		return nil, nil, err
	}
	return position, entry, nil
}

// Accrual описывает одно начисление доходности.
// ExpectNext содержит срок начисления, прочитанный планировщиком; если он изменился, начисление отклоняется.
type Accrual struct {
	PositionID uuid.UUID
	Percentage decimal.Decimal
	Frequency  model.Frequency
	ExpectNext *time.Time
}

// AccrualResult содержит итог начисления.
type AccrualResult struct {
	Position    model.Position
	Record      model.ROIRecord
	Transaction model.Transaction
}

// ApplyROI начисляет доходность на текущий баланс позиции.
// Возвращает model.ErrStaleAccrual, если позицию уже обработал другой запуск.
func (l *Ledger) ApplyROI(ctx context.Context, a Accrual) (*AccrualResult, error) {
	if a.Percentage.IsNegative() {
		return nil, model.Invalid("negative roi percentage %s", a.Percentage)
	}

	var res *AccrualResult
	err := l.withinTx(ctx, "apply roi", func(tx Tx) error {
		p, err := tx.GetPositionForUpdate(ctx, a.PositionID)
		if err != nil {
			return err
		}
		if p.Status != model.PositionActive || !sameTime(p.NextROIAt, a.ExpectNext) {
			return model.ErrStaleAccrual
		}

		now := l.clock()
		before := p.CurrentBalance
		credited, err := planmath.ROIAmount(before, a.Percentage)
		if err != nil {
			return err
		}
		after := before.Add(credited)
		earned := p.TotalEarned.Add(credited)
		next, err := planmath.NextRunAt(a.Frequency, now)
		if err != nil {
			return err
		}

		ok, err := tx.AccruePosition(ctx, p.ID, AccrualUpdate{
			ExpectBalance: before,
			ExpectNext:    p.NextROIAt,
			Balance:       after,
			TotalEarned:   earned,
			LastROIAt:     now,
			NextROIAt:     next,
		})
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrStaleAccrual
		}

		record := model.ROIRecord{
			ID:            uuid.New(),
			PositionID:    p.ID,
			UserID:        p.UserID,
			Amount:        credited,
			Percentage:    a.Percentage,
			BalanceBefore: before,
			BalanceAfter:  after,
			CalculatedAt:  now,
		}
		if err := tx.InsertROIRecord(ctx, &record); err != nil {
			return err
		}

		ref := p.ID
		entry := model.Transaction{
			ID:          uuid.New(),
			UserID:      p.UserID,
			Type:        model.TxROI,
			Amount:      credited,
			FeeAmount:   decimal.Zero,
			Status:      model.TxCompleted,
			ReferenceID: &ref,
			Description: "ROI from " + p.PlanName,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertTransaction(ctx, &entry); err != nil {
			return err
		}

		updated := *p
		updated.CurrentBalance = after
		updated.TotalEarned = earned
		updated.LastROIAt = &now
		updated.NextROIAt = &next
		updated.UpdatedAt = now

		res = &AccrualResult{Position: updated, Record: record, Transaction: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// WithdrawalRequest описывает заявку на вывод со счёта или, если указан PositionID, из позиции.
type WithdrawalRequest struct {
	UserID        uuid.UUID
	PositionID    *uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	WalletAddress string
	Network       string
}

// RequestWithdrawal создаёт заявку на вывод и резервирует сумму до решения администратора.
func (l *Ledger) RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*model.Withdrawal, error) {
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}
	if req.Amount.LessThan(l.cfg.MinWithdrawal) {
		return nil, model.Invalid("minimum withdrawal is %s", l.cfg.MinWithdrawal)
	}
	fee, err := planmath.Fee(req.Amount, l.cfg.FeeRate)
	if err != nil {
		return nil, err
	}
	net := req.Amount.Sub(fee)

	var withdrawal *model.Withdrawal
	err = l.withinTx(ctx, "request withdrawal", func(tx Tx) error {
		profile, err := lockActiveProfile(ctx, tx, req.UserID)
		if err != nil {
			return err
		}

		now := l.clock()
		if req.PositionID != nil {
			if err := l.reserveFromPosition(ctx, tx, req, now); err != nil {
				return err
			}
		} else {
			if profile.Available().LessThan(req.Amount) {
				return &model.InsufficientFundsError{Available: profile.Available(), Requested: req.Amount}
			}
			if _, err := tx.AdjustProfileFunds(ctx, req.UserID, decimal.Zero, req.Amount); err != nil {
				return err
			}
		}

		withdrawalID := uuid.New()
		entry := &model.Transaction{
			ID:          uuid.New(),
			UserID:      req.UserID,
			Type:        model.TxWithdrawal,
			Amount:      req.Amount,
			FeeAmount:   fee,
			Status:      model.TxPending,
			ReferenceID: &withdrawalID,
			Description: fmt.Sprintf("Withdrawal request - %s (%s)", req.Currency, req.Network),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return err
		}

		withdrawal = &model.Withdrawal{
			ID:            withdrawalID,
			UserID:        req.UserID,
			PositionID:    req.PositionID,
			TransactionID: entry.ID,
			Amount:        req.Amount,
			FeeAmount:     fee,
			NetAmount:     net,
			Currency:      req.Currency,
			WalletAddress: req.WalletAddress,
			Network:       req.Network,
			Status:        model.WithdrawalPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.InsertWithdrawal(ctx, withdrawal)
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

func (l *Ledger) reserveFromPosition(ctx context.Context, tx Tx, req WithdrawalRequest, now time.Time) error {
	p, err := tx.GetPositionForUpdate(ctx, *req.PositionID)
	if err != nil {
		return err
	}
	if p.UserID != req.UserID {
		return fmt.Errorf("position %s: %w", p.ID, model.ErrNotFound)
	}
	if p.Status != model.PositionActive {
		return model.Invalid("position %s is %s", p.ID, p.Status)
	}

	if err := checkLock(ctx, tx, p, now); err != nil {
		return err
	}

	if p.Available().LessThan(req.Amount) {
		return &model.InsufficientFundsError{Available: p.Available(), Requested: req.Amount}
	}
	_, err = tx.AdjustPosition(ctx, p.ID, decimal.Zero, req.Amount, p.Status)
	return err
}

// checkLock отклоняет вывод из позиции с ограничением full до окончания блокировки.
// Если план удалён, используется снимок срока блокировки, сохранённый в позиции.
func checkLock(ctx context.Context, tx Tx, p *model.Position, now time.Time) error {
	var plan *model.Plan
	if p.PlanID != nil {
		found, err := tx.GetPlan(ctx, *p.PlanID)
		switch {
		case err == nil:
			plan = found
		case !errors.Is(err, model.ErrNotFound):
			return err
		}
	}

	if plan == nil {
		if p.LockUntil != nil && now.Before(*p.LockUntil) {
			return &model.LockedError{Until: *p.LockUntil, Remaining: p.LockUntil.Sub(now)}
		}
		return nil
	}

	if plan.WithdrawalType != model.WithdrawalFull {
		return nil
	}
	remaining, err := planmath.LockRemaining(p.CreatedAt, plan.LockPeriodHours, now)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return &model.LockedError{Until: now.Add(remaining), Remaining: remaining}
	}
	return nil
}

// Resolution описывает решение администратора по заявке.
type Resolution struct {
	Outcome model.Outcome
	ActorID uuid.UUID
	Note    string
	TxHash  string
}

func (r Resolution) validate() error {
	if r.Outcome != model.OutcomeApprove && r.Outcome != model.OutcomeReject {
		return model.Invalid("unknown outcome %q", r.Outcome)
	}
	if r.ActorID == uuid.Nil {
		return model.Invalid("reviewer is required")
	}
	return nil
}

// ResolveWithdrawal одобряет или отклоняет заявку на вывод.
// Одобрение списывает зарезервированную сумму, отклонение только снимает резерв.
func (l *Ledger) ResolveWithdrawal(ctx context.Context, withdrawalID uuid.UUID, res Resolution) (*model.Withdrawal, error) {
	if err := res.validate(); err != nil {
		return nil, err
	}

	var resolved *model.Withdrawal
	err := l.withinTx(ctx, "resolve withdrawal", func(tx Tx) error {
		peek, err := tx.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return err
		}
		// Порядок блокировок: счёт, позиция, заявка.
		if _, err := tx.GetProfileForUpdate(ctx, peek.UserID); err != nil {
			return err
		}
		var position *model.Position
		if peek.PositionID != nil {
			if position, err = tx.GetPositionForUpdate(ctx, *peek.PositionID); err != nil {
				return err
			}
		}

		w, err := tx.GetWithdrawalForUpdate(ctx, withdrawalID)
		if err != nil {
			return err
		}
		if w.Status != model.WithdrawalPending && w.Status != model.WithdrawalProcessing {
			return fmt.Errorf("withdrawal %s is %s: %w", w.ID, w.Status, model.ErrAlreadyResolved)
		}

		debit := decimal.Zero
		txStatus := model.TxFailed
		if res.Outcome == model.OutcomeApprove {
			debit = w.Amount
			txStatus = model.TxCompleted
			w.Status = model.WithdrawalCompleted
			w.TxHash = res.TxHash
		} else {
			w.Status = model.WithdrawalRejected
		}
		if res.Note != "" {
			w.AdminNotes = res.Note
		}

		if position != nil {
			status := position.Status
			if position.CurrentBalance.Sub(debit).IsZero() {
				status = model.PositionCompleted
			}
			if _, err := tx.AdjustPosition(ctx, position.ID, debit.Neg(), w.Amount.Neg(), status); err != nil {
				return err
			}
		} else {
			if _, err := tx.AdjustProfileFunds(ctx, w.UserID, debit.Neg(), w.Amount.Neg()); err != nil {
				return err
			}
		}

		now := l.clock()
		if err := tx.ResolveTransaction(ctx, w.TransactionID, txStatus, now); err != nil {
			return err
		}

		actor := res.ActorID
		w.ReviewedBy = &actor
		w.ReviewedAt = &now
		w.UpdatedAt = now
		if err := tx.UpdateWithdrawalReview(ctx, w); err != nil {
			return err
		}
		resolved = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// DepositRequest описывает заявку на пополнение, поданную пользователем.
type DepositRequest struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	WalletAddress string
	TxHash        string
	ProofURL      string
}

// SubmitDeposit создаёт заявку на пополнение и парную запись журнала в статусе pending.
func (l *Ledger) SubmitDeposit(ctx context.Context, req DepositRequest) (*model.Deposit, error) {
	if err := requirePositive("amount", req.Amount); err != nil {
		return nil, err
	}

	var deposit *model.Deposit
	err := l.withinTx(ctx, "submit deposit", func(tx Tx) error {
		if _, err := lockActiveProfile(ctx, tx, req.UserID); err != nil {
			return err
		}

		now := l.clock()
		depositID := uuid.New()
		entry := &model.Transaction{
			ID:          uuid.New(),
			UserID:      req.UserID,
			Type:        model.TxDeposit,
			Amount:      req.Amount,
			FeeAmount:   decimal.Zero,
			Status:      model.TxPending,
			ReferenceID: &depositID,
			Description: "Crypto deposit - " + req.Currency,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertTransaction(ctx, entry); err != nil {
			return err
		}

		deposit = &model.Deposit{
			ID:            depositID,
			UserID:        req.UserID,
			TransactionID: entry.ID,
			Amount:        req.Amount,
			Currency:      req.Currency,
			WalletAddress: req.WalletAddress,
			TxHash:        req.TxHash,
			ProofURL:      req.ProofURL,
			Status:        model.DepositPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		return tx.InsertDeposit(ctx, deposit)
	})
	if err != nil {
		return nil, err
	}
	return deposit, nil
}

// ResolveDeposit подтверждает или отклоняет заявку на пополнение.
// Подтверждение зачисляет сумму и завершает парную запись журнала, отклонение помечает её как failed.
func (l *Ledger) ResolveDeposit(ctx context.Context, depositID uuid.UUID, res Resolution) (*model.Deposit, error) {
	if err := res.validate(); err != nil {
		return nil, err
	}

	var resolved *model.Deposit
	err := l.withinTx(ctx, "resolve deposit", func(tx Tx) error {
		peek, err := tx.GetDeposit(ctx, depositID)
		if err != nil {
			return err
		}
		if _, err := tx.GetProfileForUpdate(ctx, peek.UserID); err != nil {
			return err
		}
		d, err := tx.GetDepositForUpdate(ctx, depositID)
		if err != nil {
			return err
		}
		if d.Status != model.DepositPending {
			return fmt.Errorf("deposit %s is %s: %w", d.ID, d.Status, model.ErrAlreadyResolved)
		}

		now := l.clock()
		txStatus := model.TxFailed
		if res.Outcome == model.OutcomeApprove {
			if _, err := tx.AdjustProfileFunds(ctx, d.UserID, d.Amount, decimal.Zero); err != nil {
				return err
			}
			txStatus = model.TxCompleted
			d.Status = model.DepositConfirmed
		} else {
			d.Status = model.DepositRejected
		}
		if res.Note != "" {
			d.AdminNotes = res.Note
		}

		if err := tx.ResolveTransaction(ctx, d.TransactionID, txStatus, now); err != nil {
			return err
		}

		actor := res.ActorID
		d.ReviewedBy = &actor
		d.ReviewedAt = &now
		d.UpdatedAt = now
		if err := tx.UpdateDepositReview(ctx, d); err != nil {
			return err
		}
		resolved = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}
