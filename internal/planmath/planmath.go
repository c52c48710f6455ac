// Package planmath содержит чистые функции расчёта комиссий, блокировок и доходности планов.
package planmath

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invest-ledger/internal/model"
)

// AmountScale задаёт число знаков после запятой, с которым хранятся денежные суммы.
const AmountScale = 8

// PercentScale задаёт точность выбранного процента доходности.
const PercentScale = 6

var hundred = decimal.NewFromInt(100)

// Source выдаёт случайные числа в диапазоне [0, 1).
// *rand.Rand из math/rand/v2 удовлетворяет этому интерфейсу.
type Source interface {
	Float64() float64
}

// FromFloat преобразует число с плавающей точкой в decimal, отклоняя NaN и бесконечности.
func FromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, model.Invalid("non-finite number %v", f)
	}
	return decimal.NewFromFloat(f), nil
}

// Fee возвращает комиссию amount * rate.
func Fee(amount, rate decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, model.Invalid("negative amount %s", amount)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, model.Invalid("fee rate %s out of [0, 1]", rate)
	}
	return amount.Mul(rate).Round(AmountScale), nil
}

// NetAfterFee возвращает сумму за вычетом комиссии.
func NetAfterFee(amount, rate decimal.Decimal) (decimal.Decimal, error) {
	fee, err := Fee(amount, rate)
	if err != nil {
		return decimal.Zero, err
	}
	return amount.Sub(fee), nil
}

// LockUntil возвращает момент окончания блокировки или nil, если блокировки нет.
func LockUntil(createdAt time.Time, lockHours int) (*time.Time, error) {
	if lockHours < 0 {
		return nil, model.Invalid("negative lock period %d", lockHours)
	}
	if lockHours == 0 {
		return nil, nil
	}
	until := createdAt.Add(time.Duration(lockHours) * time.Hour)
	return &until, nil
}

// LockExpired сообщает, можно ли выводить капитал: now >= createdAt + lockHours.
func LockExpired(createdAt time.Time, lockHours int, now time.Time) (bool, error) {
	remaining, err := LockRemaining(createdAt, lockHours, now)
	if err != nil {
		return false, err
	}
	return remaining == 0, nil
}

// LockRemaining возвращает оставшееся время блокировки; ноль, если блокировка истекла.
func LockRemaining(createdAt time.Time, lockHours int, now time.Time) (time.Duration, error) {
	if lockHours < 0 {
		return 0, model.Invalid("negative lock period %d", lockHours)
	}
	unlock := createdAt.Add(time.Duration(lockHours) * time.Hour)
	if !now.Before(unlock) {
		return 0, nil
	}
	return unlock.Sub(now), nil
}

// ValidateROIBounds проверяет границы процента доходности.
func ValidateROIBounds(minPct, maxPct decimal.Decimal) error {
	if minPct.IsNegative() || maxPct.IsNegative() {
		return model.Invalid("negative roi bound [%s, %s]", minPct, maxPct)
	}
	if maxPct.LessThan(minPct) {
		return model.Invalid("roi max %s is less than roi min %s", maxPct, minPct)
	}
	return nil
}

// SampleROI выбирает равномерно распределённый процент доходности в [min, max].
func SampleROI(src Source, minPct, maxPct decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateROIBounds(minPct, maxPct); err != nil {
		return decimal.Zero, err
	}
	if minPct.Equal(maxPct) {
		return minPct, nil
	}

	f, err := FromFloat(src.Float64())
	if err != nil {
		return decimal.Zero, err
	}

	pct := minPct.Add(maxPct.Sub(minPct).Mul(f)).Round(PercentScale)
	if pct.LessThan(minPct) {
		return minPct, nil
	}
	if pct.GreaterThan(maxPct) {
		return maxPct, nil
	}
	return pct, nil
}

// ROIAmount возвращает principal * percentage / 100.
func ROIAmount(principal, percentage decimal.Decimal) (decimal.Decimal, error) {
	if principal.IsNegative() {
		return decimal.Zero, model.Invalid("negative principal %s", principal)
	}
	if percentage.IsNegative() {
		return decimal.Zero, model.Invalid("negative percentage %s", percentage)
	}
	return principal.Mul(percentage).Div(hundred).Round(AmountScale), nil
}

// Period возвращает длительность периода начисления.
func Period(freq model.Frequency) (time.Duration, error) {
	switch freq {
	case model.FrequencyDaily:
		return 24 * time.Hour, nil
	case model.FrequencyWeekly:
		return 7 * 24 * time.Hour, nil
	default:
		return 0, model.Invalid("unknown roi frequency %q", freq)
	}
}

// DueForAccrual сообщает, пора ли начислять доходность.
// Позиция без предыдущего начисления всегда готова.
func DueForAccrual(freq model.Frequency, lastRunAt *time.Time, now time.Time) (bool, error) {
	period, err := Period(freq)
	if err != nil {
		return false, err
	}
	if lastRunAt == nil {
		return true, nil
	}
	return now.Sub(*lastRunAt) >= period, nil
}

// NextRunAt возвращает момент следующего начисления.
func NextRunAt(freq model.Frequency, from time.Time) (time.Time, error) {
	period, err := Period(freq)
	if err != nil {
		return time.Time{}, err
	}
	return from.Add(period), nil
}
