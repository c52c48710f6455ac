package repository

import (
	"github.com/mmeshcher/invest-ledger/internal/model"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const profileColumns = `id, email, balance, reserved_balance, role, is_frozen, created_at, updated_at`

func scanProfile(row rowScanner) (*model.Profile, error) {
	var p model.Profile
	err := row.Scan(&p.ID, &p.Email, &p.Balance, &p.Reserved, &p.Role, &p.Frozen, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const planColumns = `id, plan_key, name, description, min_amount, max_amount, roi_min, roi_max,
	roi_frequency, lock_period_hours, withdrawal_type, is_active, created_at, updated_at`

func scanPlan(row rowScanner) (*model.Plan, error) {
	var p model.Plan
	err := row.Scan(&p.ID, &p.Key, &p.Name, &p.Description, &p.MinAmount, &p.MaxAmount, &p.ROIMin, &p.ROIMax,
		&p.Frequency, &p.LockPeriodHours, &p.WithdrawalType, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const positionColumns = `id, user_id, plan_id, plan_key, plan_name, invested_amount, current_balance,
	total_earned, reserved_amount, status, lock_until, last_roi_calculation, next_roi_calculation,
	created_at, updated_at`

func scanPosition(row rowScanner) (*model.Position, error) {
	var p model.Position
	err := row.Scan(&p.ID, &p.UserID, &p.PlanID, &p.PlanKey, &p.PlanName, &p.InvestedAmount, &p.CurrentBalance,
		&p.TotalEarned, &p.Reserved, &p.Status, &p.LockUntil, &p.LastROIAt, &p.NextROIAt,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const transactionColumns = `id, user_id, type, amount, fee_amount, status, reference_id, description, created_at, updated_at`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var t model.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.FeeAmount, &t.Status, &t.ReferenceID,
		&t.Description, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

const roiColumns = `id, user_plan_id, user_id, roi_amount, roi_percentage, balance_before, balance_after, calculation_date`

func scanROIRecord(row rowScanner) (*model.ROIRecord, error) {
	var r model.ROIRecord
	err := row.Scan(&r.ID, &r.PositionID, &r.UserID, &r.Amount, &r.Percentage, &r.BalanceBefore, &r.BalanceAfter, &r.CalculatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const depositColumns = `id, user_id, transaction_id, amount, currency, wallet_address, tx_hash, proof_url, status,
	reviewed_by, reviewed_at, admin_notes, created_at, updated_at`

func scanDeposit(row rowScanner) (*model.Deposit, error) {
	var d model.Deposit
	err := row.Scan(&d.ID, &d.UserID, &d.TransactionID, &d.Amount, &d.Currency, &d.WalletAddress, &d.TxHash,
		&d.ProofURL, &d.Status, &d.ReviewedBy, &d.ReviewedAt, &d.AdminNotes, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

const withdrawalColumns = `id, user_id, user_plan_id, transaction_id, amount, fee_amount, net_amount, currency,
	wallet_address, network, status, tx_hash, reviewed_by, reviewed_at, admin_notes, created_at, updated_at`

func scanWithdrawal(row rowScanner) (*model.Withdrawal, error) {
	var w model.Withdrawal
	err := row.Scan(&w.ID, &w.UserID, &w.PositionID, &w.TransactionID, &w.Amount, &w.FeeAmount, &w.NetAmount,
		&w.Currency, &w.WalletAddress, &w.Network, &w.Status, &w.TxHash, &w.ReviewedBy, &w.ReviewedAt,
		&w.AdminNotes, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

const walletColumns = `currency, network, address, is_active, updated_at`

func scanWallet(row rowScanner) (*model.DepositWallet, error) {
	var w model.DepositWallet
	if err := row.Scan(&w.Currency, &w.Network, &w.Address, &w.Active, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}
