package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invest-ledger/internal/ledger"
	"github.com/mmeshcher/invest-ledger/internal/model"
)

// pgTx реализует ledger.Tx поверх транзакции pgx.
// Денежные поля изменяются выражениями на стороне БД с условием, а не записью вычисленного в памяти значения.
type pgTx struct {
	tx pgx.Tx
}

var _ ledger.Tx = (*pgTx)(nil)

func (t *pgTx) GetProfileForUpdate(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	p, err := scanProfile(t.tx.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, mapError("lock profile", err)
	}
	return p, nil
}

func (t *pgTx) AdjustProfileFunds(ctx context.Context, userID uuid.UUID, balanceDelta, reservedDelta decimal.Decimal) (*model.Profile, error) {
	p, err := scanProfile(t.tx.QueryRow(ctx,
		`UPDATE profiles
		 SET balance = balance + $2,
		     reserved_balance = reserved_balance + $3,
		     updated_at = now()
		 WHERE id = $1
		   AND reserved_balance + $3 >= 0
		   AND balance + $2 >= reserved_balance + $3
		 RETURNING `+profileColumns,
		userID, balanceDelta, reservedDelta,
	))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapError("adjust profile funds", err)
	}

	// Строка не обновилась: либо счёта нет, либо нарушено условие по средствам.
	var balance, reserved decimal.Decimal
	err = t.tx.QueryRow(ctx, `SELECT balance, reserved_balance FROM profiles WHERE id = $1`, userID).Scan(&balance, &reserved)
	if err != nil {
		return nil, mapError("adjust profile funds", err)
	}
	return nil, &model.InsufficientFundsError{Available: balance.Sub(reserved), Requested: balanceDelta.Neg()}
}

func (t *pgTx) GetPlan(ctx context.Context, planID uuid.UUID) (*model.Plan, error) {
	p, err := scanPlan(t.tx.QueryRow(ctx, `SELECT `+planColumns+` FROM investment_plans WHERE id = $1`, planID))
	if err != nil {
		return nil, mapError("get plan", err)
	}
	return p, nil
}

func (t *pgTx) CountActivePositions(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx,
		`SELECT count(*) FROM user_plans WHERE user_id = $1 AND status = $2`,
		userID, string(model.PositionActive),
	).Scan(&n)
	if err != nil {
		return 0, mapError("count active positions", err)
	}
	return n, nil
}

func (t *pgTx) InsertPosition(ctx context.Context, p *model.Position) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO user_plans (`+positionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.UserID, p.PlanID, p.PlanKey, p.PlanName, p.InvestedAmount, p.CurrentBalance,
		p.TotalEarned, p.Reserved, string(p.Status), p.LockUntil, p.LastROIAt, p.NextROIAt,
		p.CreatedAt, p.UpdatedAt,
	)
	return mapError("insert position", err)
}

func (t *pgTx) GetPositionForUpdate(ctx context.Context, positionID uuid.UUID) (*model.Position, error) {
	p, err := scanPosition(t.tx.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM user_plans WHERE id = $1 FOR UPDATE`, positionID))
	if err != nil {
		return nil, mapError("lock position", err)
	}
	return p, nil
}

func (t *pgTx) AccruePosition(ctx context.Context, positionID uuid.UUID, upd ledger.AccrualUpdate) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		`UPDATE user_plans
		 SET current_balance = $2,
		     total_earned = $3,
		     last_roi_calculation = $4,
		     next_roi_calculation = $5,
		     updated_at = $4
		 WHERE id = $1
		   AND status = 'active'
		   AND current_balance = $6
		   AND next_roi_calculation IS NOT DISTINCT FROM $7`,
		positionID, upd.Balance, upd.TotalEarned, upd.LastROIAt, upd.NextROIAt,
		upd.ExpectBalance, upd.ExpectNext,
	)
	if err != nil {
		return false, mapError("accrue position", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) AdjustPosition(ctx context.Context, positionID uuid.UUID, balanceDelta, reservedDelta decimal.Decimal, status model.PositionStatus) (*model.Position, error) {
	p, err := scanPosition(t.tx.QueryRow(ctx,
		`UPDATE user_plans
		 SET current_balance = current_balance + $2,
		     reserved_amount = reserved_amount + $3,
		     status = $4,
		     updated_at = now()
		 WHERE id = $1
		   AND reserved_amount + $3 >= 0
		   AND current_balance + $2 >= reserved_amount + $3
		 RETURNING `+positionColumns,
		positionID, balanceDelta, reservedDelta, string(status),
	))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, mapError("adjust position", err)
	}

	var balance, reserved decimal.Decimal
	err = t.tx.QueryRow(ctx, `SELECT current_balance, reserved_amount FROM user_plans WHERE id = $1`, positionID).Scan(&balance, &reserved)
	if err != nil {
		return nil, mapError("adjust position", err)
	}
	return nil, &model.InsufficientFundsError{Available: balance.Sub(reserved), Requested: balanceDelta.Neg()}
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO user_transactions (`+transactionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		tr.ID, tr.UserID, string(tr.Type), tr.Amount, tr.FeeAmount, string(tr.Status), tr.ReferenceID,
		tr.Description, tr.CreatedAt, tr.UpdatedAt,
	)
	return mapError("insert transaction", err)
}

func (t *pgTx) ResolveTransaction(ctx context.Context, txID uuid.UUID, status model.TransactionStatus, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE user_transactions SET status = $2, updated_at = $3 WHERE id = $1 AND status = 'pending'`,
		txID, string(status), at,
	)
	if err != nil {
		return mapError("resolve transaction", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var current string
	if err := t.tx.QueryRow(ctx, `SELECT status FROM user_transactions WHERE id = $1`, txID).Scan(&current); err != nil {
		return mapError("resolve transaction", err)
	}
	return fmt.Errorf("transaction %s is %s: %w", txID, current, model.ErrAlreadyResolved)
}

func (t *pgTx) InsertROIRecord(ctx context.Context, r *model.ROIRecord) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO roi_history (`+roiColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.ID, r.PositionID, r.UserID, r.Amount, r.Percentage, r.BalanceBefore, r.BalanceAfter, r.CalculatedAt,
	)
	return mapError("insert roi history", err)
}

func (t *pgTx) InsertDeposit(ctx context.Context, d *model.Deposit) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO deposits (`+depositColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		d.ID, d.UserID, d.TransactionID, d.Amount, d.Currency, d.WalletAddress, d.TxHash, d.ProofURL,
		string(d.Status), d.ReviewedBy, d.ReviewedAt, d.AdminNotes, d.CreatedAt, d.UpdatedAt,
	)
	return mapError("insert deposit", err)
}

func (t *pgTx) GetDeposit(ctx context.Context, depositID uuid.UUID) (*model.Deposit, error) {
	d, err := scanDeposit(t.tx.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, depositID))
	if err != nil {
		return nil, mapError("get deposit", err)
	}
	return d, nil
}

func (t *pgTx) GetDepositForUpdate(ctx context.Context, depositID uuid.UUID) (*model.Deposit, error) {
	d, err := scanDeposit(t.tx.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, depositID))
	if err != nil {
		return nil, mapError("lock deposit", err)
	}
	return d, nil
}

func (t *pgTx) UpdateDepositReview(ctx context.Context, d *model.Deposit) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE deposits
		 SET status = $2, reviewed_by = $3, reviewed_at = $4, admin_notes = $5, updated_at = $6
		 WHERE id = $1`,
		d.ID, string(d.Status), d.ReviewedBy, d.ReviewedAt, d.AdminNotes, d.UpdatedAt,
	)
	return mapError("update deposit", err)
}

func (t *pgTx) InsertWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO withdrawals (`+withdrawalColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		w.ID, w.UserID, w.PositionID, w.TransactionID, w.Amount, w.FeeAmount, w.NetAmount, w.Currency,
		w.WalletAddress, w.Network, string(w.Status), w.TxHash, w.ReviewedBy, w.ReviewedAt, w.AdminNotes,
		w.CreatedAt, w.UpdatedAt,
	)
	return mapError("insert withdrawal", err)
}

func (t *pgTx) GetWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error) {
	w, err := scanWithdrawal(t.tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, withdrawalID))
	if err != nil {
		return nil, mapError("get withdrawal", err)
	}
	return w, nil
}

func (t *pgTx) GetWithdrawalForUpdate(ctx context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error) {
	w, err := scanWithdrawal(t.tx.QueryRow(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1 FOR UPDATE`, withdrawalID))
	if err != nil {
		return nil, mapError("lock withdrawal", err)
	}
	return w, nil
}

func (t *pgTx) UpdateWithdrawalReview(ctx context.Context, w *model.Withdrawal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE withdrawals
		 SET status = $2, tx_hash = $3, reviewed_by = $4, reviewed_at = $5, admin_notes = $6, updated_at = $7
		 WHERE id = $1`,
		w.ID, string(w.Status), w.TxHash, w.ReviewedBy, w.ReviewedAt, w.AdminNotes, w.UpdatedAt,
	)
	return mapError("update withdrawal", err)
}
