// Package model содержит доменные сущности инвестиционной платформы.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Profile представляет денежный счёт пользователя.
type Profile struct {
	ID        uuid.UUID
	Email     string
	Balance   decimal.Decimal
	Reserved  decimal.Decimal
	Role      Role
	Frozen    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available возвращает сумму, не зарезервированную под заявки на вывод.
func (p Profile) Available() decimal.Decimal {
	return p.Balance.Sub(p.Reserved)
}

// Frequency описывает периодичность начисления доходности.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
)

// WithdrawalType определяет ограничения на вывод средств из позиции.
type WithdrawalType string

const (
	// WithdrawalFull запрещает вывод до истечения периода блокировки.
	WithdrawalFull     WithdrawalType = "full"
	WithdrawalFlexible WithdrawalType = "flexible"
)

// Plan описывает инвестиционный план из каталога.
type Plan struct {
	ID              uuid.UUID
	Key             string
	Name            string
	Description     string
	MinAmount       decimal.Decimal
	MaxAmount       decimal.NullDecimal
	ROIMin          decimal.Decimal
	ROIMax          decimal.Decimal
	Frequency       Frequency
	LockPeriodHours int
	WithdrawalType  WithdrawalType
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PositionStatus описывает состояние инвестиционной позиции.
type PositionStatus string

const (
	PositionActive    PositionStatus = "active"
	PositionCompleted PositionStatus = "completed"
	PositionCancelled PositionStatus = "cancelled"
)

// Position описывает подписку пользователя на инвестиционный план.
type Position struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	PlanID         *uuid.UUID
	PlanKey        string
	PlanName       string
	InvestedAmount decimal.Decimal
	CurrentBalance decimal.Decimal
	TotalEarned    decimal.Decimal
	Reserved       decimal.Decimal
	Status         PositionStatus
	LockUntil      *time.Time
	LastROIAt      *time.Time
	NextROIAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Available возвращает сумму позиции, доступную для новой заявки на вывод.
func (p Position) Available() decimal.Decimal {
	return p.CurrentBalance.Sub(p.Reserved)
}

// DuePosition описывает позицию, подошедшую к начислению, вместе с текущими условиями плана.
type DuePosition struct {
	Position   Position
	Plan       *PlanTerms
	OwnerEmail string
}

// DueCursor задаёт ключ постраничного обхода позиций, подошедших к начислению.
type DueCursor struct {
	NextROIAt time.Time
	ID        uuid.UUID
}

// PlanTerms содержит параметры плана, читаемые в момент начисления.
type PlanTerms struct {
	ROIMin    decimal.Decimal
	ROIMax    decimal.Decimal
	Frequency Frequency
}

// TransactionType описывает тип записи в журнале операций.
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxInvestment TransactionType = "investment"
	TxROI        TransactionType = "roi"
	TxFee        TransactionType = "fee"
	TxRefund     TransactionType = "refund"
)

// TransactionStatus описывает статус записи журнала.
type TransactionStatus string

const (
	TxPending   TransactionStatus = "pending"
	TxCompleted TransactionStatus = "completed"
	TxFailed    TransactionStatus = "failed"
	TxCancelled TransactionStatus = "cancelled"
)

// Transaction описывает неизменяемую запись журнала о движении средств.
type Transaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Type        TransactionType
	Amount      decimal.Decimal
	FeeAmount   decimal.Decimal
	Status      TransactionStatus
	ReferenceID *uuid.UUID
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DepositStatus описывает статус заявки на пополнение.
type DepositStatus string

const (
	DepositPending   DepositStatus = "pending"
	DepositConfirmed DepositStatus = "confirmed"
	DepositRejected  DepositStatus = "rejected"
)

// Deposit описывает заявку пользователя на пополнение счёта.
type Deposit struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	WalletAddress string
	TxHash        string
	ProofURL      string
	Status        DepositStatus
	ReviewedBy    *uuid.UUID
	ReviewedAt    *time.Time
	AdminNotes    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// WithdrawalStatus описывает статус заявки на вывод.
type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalRejected   WithdrawalStatus = "rejected"
	WithdrawalCancelled  WithdrawalStatus = "cancelled"
)

// Withdrawal описывает заявку на вывод средств со счёта или из позиции.
type Withdrawal struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	PositionID    *uuid.UUID
	TransactionID uuid.UUID
	Amount        decimal.Decimal
	FeeAmount     decimal.Decimal
	NetAmount     decimal.Decimal
	Currency      string
	WalletAddress string
	Network       string
	Status        WithdrawalStatus
	TxHash        string
	ReviewedBy    *uuid.UUID
	ReviewedAt    *time.Time
	AdminNotes    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ROIRecord хранит запись истории начислений по позиции.
type ROIRecord struct {
	ID            uuid.UUID
	PositionID    uuid.UUID
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Percentage    decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	CalculatedAt  time.Time
}

// DepositWallet описывает адрес, на который пользователи переводят средства.
type DepositWallet struct {
	Currency  string
	Network   string
	Address   string
	Active    bool
	UpdatedAt time.Time
}

// Balance содержит сводку по счёту пользователя.
type Balance struct {
	Balance   decimal.Decimal `json:"balance"`
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"`
	Invested  decimal.Decimal `json:"invested"`
}

// Outcome задаёт решение администратора по заявке.
type Outcome string

const (
	OutcomeApprove Outcome = "approve"
	OutcomeReject  Outcome = "reject"
)
