package model

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrUnauthorized возвращается при отсутствии или неверной идентификации вызывающего.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument возвращается при некорректных входных данных.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInsufficientFunds возвращается, если доступный баланс меньше запрошенной суммы.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrLocked возвращается при попытке вывода до окончания периода блокировки.
	ErrLocked = errors.New("capital is locked")
	// ErrAlreadyResolved возвращается при повторном рассмотрении заявки.
	ErrAlreadyResolved = errors.New("already resolved")
	// ErrDependencyFailure возвращается при сбое хранилища или внешнего сервиса.
	ErrDependencyFailure = errors.New("dependency failure")
	// ErrAccountFrozen возвращается для операций по замороженному счёту.
	ErrAccountFrozen = errors.New("account is frozen")
	// ErrStaleAccrual возвращается, если позиция уже обработана параллельным запуском начислений.
	ErrStaleAccrual = errors.New("position accrual is stale")
	// ErrBusy возвращается, если пакет начислений уже выполняется.
	ErrBusy = errors.New("roi batch already running")
)

// InsufficientFundsError сообщает, сколько средств не хватает для операции.
type InsufficientFundsError struct {
	Available decimal.Decimal
	Requested decimal.Decimal
}

// Shortfall возвращает недостающую сумму.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %s, requested %s", e.Available.String(), e.Requested.String())
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// LockedError сообщает, сколько осталось до окончания блокировки капитала.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

// RemainingHours возвращает оставшееся время блокировки в часах с округлением вверх.
func (e *LockedError) RemainingHours() int {
	return int(math.Ceil(e.Remaining.Hours()))
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("capital is locked, remaining time: %d hours", e.RemainingHours())
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// Invalid оборачивает описание ошибки валидации в ErrInvalidArgument.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// IsBusiness сообщает, является ли ошибка ожидаемым бизнес-исходом, а не сбоем зависимости.
func IsBusiness(err error) bool {
	for _, target := range []error{
		ErrUnauthorized, ErrNotFound, ErrInvalidArgument, ErrInsufficientFunds,
		ErrLocked, ErrAlreadyResolved, ErrAccountFrozen, ErrStaleAccrual, ErrBusy,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Dependency классифицирует ошибку хранилища как ErrDependencyFailure, сохраняя бизнес-ошибки как есть.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsBusiness(err) || errors.Is(err, ErrDependencyFailure) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDependencyFailure, err)
}
