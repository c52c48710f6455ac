package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invest-ledger/internal/model"
)

func mapSlice[T, R any](in []T, f func(*T) R) []R {
	out := make([]R, 0, len(in))
	for i := range in {
		out = append(out, f(&in[i]))
	}
	return out
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

type profileResponse struct {
	ID        uuid.UUID       `json:"id"`
	Email     string          `json:"email"`
	Balance   decimal.Decimal `json:"balance"`
	Reserved  decimal.Decimal `json:"reserved"`
	Role      model.Role      `json:"role"`
	Frozen    bool            `json:"is_frozen"`
	CreatedAt string          `json:"created_at"`
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:        p.ID,
		Email:     p.Email,
		Balance:   p.Balance,
		Reserved:  p.Reserved,
		Role:      p.Role,
		Frozen:    p.Frozen,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

type planResponse struct {
	ID              uuid.UUID            `json:"id"`
	Key             string               `json:"key"`
	Name            string               `json:"name"`
	Description     string               `json:"description,omitempty"`
	MinAmount       decimal.Decimal      `json:"min_amount"`
	MaxAmount       *decimal.Decimal     `json:"max_amount,omitempty"`
	ROIMin          decimal.Decimal      `json:"roi_min"`
	ROIMax          decimal.Decimal      `json:"roi_max"`
	Frequency       model.Frequency      `json:"roi_frequency"`
	LockPeriodHours int                  `json:"lock_period_hours"`
	WithdrawalType  model.WithdrawalType `json:"withdrawal_type"`
	Active          bool                 `json:"active"`
}

func toPlanResponse(p *model.Plan) planResponse {
	resp := planResponse{
		ID:              p.ID,
		Key:             p.Key,
		Name:            p.Name,
		Description:     p.Description,
		MinAmount:       p.MinAmount,
		ROIMin:          p.ROIMin,
		ROIMax:          p.ROIMax,
		Frequency:       p.Frequency,
		LockPeriodHours: p.LockPeriodHours,
		WithdrawalType:  p.WithdrawalType,
		Active:          p.Active,
	}
	if p.MaxAmount.Valid {
		resp.MaxAmount = &p.MaxAmount.Decimal
	}
	return resp
}

type positionResponse struct {
	ID             uuid.UUID            `json:"id"`
	PlanID         *uuid.UUID           `json:"plan_id,omitempty"`
	PlanKey        string               `json:"plan_key"`
	PlanName       string               `json:"plan_name"`
	InvestedAmount decimal.Decimal      `json:"invested_amount"`
	CurrentBalance decimal.Decimal      `json:"current_balance"`
	TotalEarned    decimal.Decimal      `json:"total_earned"`
	Reserved       decimal.Decimal      `json:"reserved_amount"`
	Status         model.PositionStatus `json:"status"`
	LockUntil      *string              `json:"lock_until,omitempty"`
	LastROIAt      *string              `json:"last_roi_calculation,omitempty"`
	NextROIAt      *string              `json:"next_roi_calculation,omitempty"`
	CreatedAt      string               `json:"created_at"`
}

func toPositionResponse(p *model.Position) positionResponse {
	return positionResponse{
		ID:             p.ID,
		PlanID:         p.PlanID,
		PlanKey:        p.PlanKey,
		PlanName:       p.PlanName,
		InvestedAmount: p.InvestedAmount,
		CurrentBalance: p.CurrentBalance,
		TotalEarned:    p.TotalEarned,
		Reserved:       p.Reserved,
		Status:         p.Status,
		LockUntil:      formatTime(p.LockUntil),
		LastROIAt:      formatTime(p.LastROIAt),
		NextROIAt:      formatTime(p.NextROIAt),
		CreatedAt:      p.CreatedAt.Format(time.RFC3339),
	}
}

type roiRecordResponse struct {
	ID            uuid.UUID       `json:"id"`
	PositionID    uuid.UUID       `json:"position_id"`
	Amount        decimal.Decimal `json:"roi_amount"`
	Percentage    decimal.Decimal `json:"roi_percentage"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CalculatedAt  string          `json:"calculation_date"`
}

func toROIRecordResponse(r *model.ROIRecord) roiRecordResponse {
	return roiRecordResponse{
		ID:            r.ID,
		PositionID:    r.PositionID,
		Amount:        r.Amount,
		Percentage:    r.Percentage,
		BalanceBefore: r.BalanceBefore,
		BalanceAfter:  r.BalanceAfter,
		CalculatedAt:  r.CalculatedAt.Format(time.RFC3339),
	}
}

type transactionResponse struct {
	ID          uuid.UUID               `json:"id"`
	Type        model.TransactionType   `json:"type"`
	Amount      decimal.Decimal         `json:"amount"`
	FeeAmount   decimal.Decimal         `json:"fee_amount"`
	Status      model.TransactionStatus `json:"status"`
	ReferenceID *uuid.UUID              `json:"reference_id,omitempty"`
	Description string                  `json:"description"`
	CreatedAt   string                  `json:"created_at"`
}

func toTransactionResponse(t *model.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Type:        t.Type,
		Amount:      t.Amount,
		FeeAmount:   t.FeeAmount,
		Status:      t.Status,
		ReferenceID: t.ReferenceID,
		Description: t.Description,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
	}
}

type depositResponse struct {
	ID            uuid.UUID           `json:"id"`
	UserID        uuid.UUID           `json:"user_id"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	WalletAddress string              `json:"wallet_address,omitempty"`
	TxHash        string              `json:"tx_hash,omitempty"`
	ProofURL      string              `json:"proof_url,omitempty"`
	Status        model.DepositStatus `json:"status"`
	ReviewedBy    *uuid.UUID          `json:"reviewed_by,omitempty"`
	ReviewedAt    *string             `json:"reviewed_at,omitempty"`
	AdminNotes    string              `json:"admin_notes,omitempty"`
	CreatedAt     string              `json:"created_at"`
}

func toDepositResponse(d *model.Deposit) depositResponse {
	return depositResponse{
		ID:            d.ID,
		UserID:        d.UserID,
		Amount:        d.Amount,
		Currency:      d.Currency,
		WalletAddress: d.WalletAddress,
		TxHash:        d.TxHash,
		ProofURL:      d.ProofURL,
		Status:        d.Status,
		ReviewedBy:    d.ReviewedBy,
		ReviewedAt:    formatTime(d.ReviewedAt),
		AdminNotes:    d.AdminNotes,
		CreatedAt:     d.CreatedAt.Format(time.RFC3339),
	}
}

type withdrawalResponse struct {
	ID            uuid.UUID              `json:"id"`
	UserID        uuid.UUID              `json:"user_id"`
	PositionID    *uuid.UUID             `json:"position_id,omitempty"`
	Amount        decimal.Decimal        `json:"amount"`
	FeeAmount     decimal.Decimal        `json:"fee_amount"`
	NetAmount     decimal.Decimal        `json:"net_amount"`
	Currency      string                 `json:"currency"`
	WalletAddress string                 `json:"wallet_address"`
	Network       string                 `json:"network"`
	Status        model.WithdrawalStatus `json:"status"`
	TxHash        string                 `json:"transaction_hash,omitempty"`
	ReviewedBy    *uuid.UUID             `json:"reviewed_by,omitempty"`
	ReviewedAt    *string                `json:"reviewed_at,omitempty"`
	AdminNotes    string                 `json:"admin_notes,omitempty"`
	CreatedAt     string                 `json:"created_at"`
}

func toWithdrawalResponse(w *model.Withdrawal) withdrawalResponse {
	return withdrawalResponse{
		ID:            w.ID,
		UserID:        w.UserID,
		PositionID:    w.PositionID,
		Amount:        w.Amount,
		FeeAmount:     w.FeeAmount,
		NetAmount:     w.NetAmount,
		Currency:      w.Currency,
		WalletAddress: w.WalletAddress,
		Network:       w.Network,
		Status:        w.Status,
		TxHash:        w.TxHash,
		ReviewedBy:    w.ReviewedBy,
		ReviewedAt:    formatTime(w.ReviewedAt),
		AdminNotes:    w.AdminNotes,
		CreatedAt:     w.CreatedAt.Format(time.RFC3339),
	}
}

type walletResponse struct {
	Currency string `json:"currency"`
	Network  string `json:"network"`
	Address  string `json:"wallet_address"`
	Active   bool   `json:"is_active"`
}

func toWalletResponse(w *model.DepositWallet) walletResponse {
	return walletResponse{
		Currency: w.Currency,
		Network:  w.Network,
		Address:  w.Address,
		Active:   w.Active,
	}
}
