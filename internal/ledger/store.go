// Package ledger — единственное место, где меняются балансы счетов и позиций.
// Каждое изменение баланса выполняется в одной транзакции хранилища вместе с записью журнала.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invest-ledger/internal/model"
)

// Store открывает атомарную единицу работы. Если fn возвращает ошибку, все изменения откатываются.
// Реализация может повторно вызвать fn при конфликте сериализации.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// AccrualUpdate описывает результат начисления, записываемый условным обновлением позиции.
type AccrualUpdate struct {
	ExpectBalance decimal.Decimal
	ExpectNext    *time.Time
	Balance       decimal.Decimal
	TotalEarned   decimal.Decimal
	LastROIAt     time.Time
	NextROIAt     time.Time
}

// Tx объединяет типизированные операции хранилища внутри одной транзакции.
// Методы Get*ForUpdate блокируют строку до конца транзакции и возвращают model.ErrNotFound при её отсутствии.
type Tx interface {
	GetProfileForUpdate(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	// AdjustProfileFunds изменяет баланс и резерв на стороне хранилища и возвращает новое состояние.
	// Возвращает model.ErrInsufficientFunds, если результат нарушает balance >= reserved >= 0.
	AdjustProfileFunds(ctx context.Context, userID uuid.UUID, balanceDelta, reservedDelta decimal.Decimal) (*model.Profile, error)

	GetPlan(ctx context.Context, planID uuid.UUID) (*model.Plan, error)
	CountActivePositions(ctx context.Context, userID uuid.UUID) (int, error)

	InsertPosition(ctx context.Context, p *model.Position) error
	GetPositionForUpdate(ctx context.Context, positionID uuid.UUID) (*model.Position, error)
	// AccruePosition применяет начисление, только если баланс и срок следующего начисления не изменились.
	AccruePosition(ctx context.Context, positionID uuid.UUID, upd AccrualUpdate) (bool, error)
	// AdjustPosition изменяет баланс и резерв позиции на стороне хранилища.
	AdjustPosition(ctx context.Context, positionID uuid.UUID, balanceDelta, reservedDelta decimal.Decimal, status model.PositionStatus) (*model.Position, error)

	InsertTransaction(ctx context.Context, t *model.Transaction) error
	// ResolveTransaction переводит запись журнала из pending в итоговый статус.
	ResolveTransaction(ctx context.Context, txID uuid.UUID, status model.TransactionStatus, at time.Time) error

	InsertROIRecord(ctx context.Context, r *model.ROIRecord) error

	InsertDeposit(ctx context.Context, d *model.Deposit) error
	GetDeposit(ctx context.Context, depositID uuid.UUID) (*model.Deposit, error)
	GetDepositForUpdate(ctx context.Context, depositID uuid.UUID) (*model.Deposit, error)
	UpdateDepositReview(ctx context.Context, d *model.Deposit) error

	InsertWithdrawal(ctx context.Context, w *model.Withdrawal) error
	GetWithdrawal(ctx context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error)
	GetWithdrawalForUpdate(ctx context.Context, withdrawalID uuid.UUID) (*model.Withdrawal, error)
	UpdateWithdrawalReview(ctx context.Context, w *model.Withdrawal) error
}
