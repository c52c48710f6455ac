package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invest-ledger/internal/model"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// ListFilter ограничивает выборку заявок.
type ListFilter struct {
	UserID *uuid.UUID
	Status string
	Limit  int
}

func (f ListFilter) clause() (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.UserID != nil {
		args = append(args, *f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, clampLimit(f.Limit))
	return where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)), args
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

func collect[T any](rows pgx.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()

	res := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		res = append(res, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpsertProfile создаёт счёт при первом обращении пользователя и обновляет email, если он передан.
func (r *PostgresRepository) UpsertProfile(ctx context.Context, userID uuid.UUID, email string) (*model.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx,
		`INSERT INTO profiles (id, email) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE
		 SET email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE profiles.email END,
		     updated_at = CASE WHEN EXCLUDED.email <> '' AND EXCLUDED.email <> profiles.email THEN now() ELSE profiles.updated_at END
		 RETURNING `+profileColumns,
		userID, email,
	))
	if err != nil {
		return nil, mapError("upsert profile", err)
	}
	return p, nil
}

// GetProfile возвращает счёт пользователя.
func (r *PostgresRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	p, err := scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, userID))
	if err != nil {
		return nil, mapError("get profile", err)
	}
	return p, nil
}

// UpdateProfileFlags меняет роль и признак заморозки счёта. nil оставляет поле без изменений.
func (r *PostgresRepository) UpdateProfileFlags(ctx context.Context, userID uuid.UUID, role *model.Role, frozen *bool) (*model.Profile, error) {
	var roleArg *string
	if role != nil {
		s := string(*role)
		roleArg = &s
	}
	p, err := scanProfile(r.pool.QueryRow(ctx,
		`UPDATE profiles
		 SET role = COALESCE($2, role), is_frozen = COALESCE($3, is_frozen), updated_at = now()
		 WHERE id = $1
		 RETURNING `+profileColumns,
		userID, roleArg, frozen,
	))
	if err != nil {
		return nil, mapError("update profile", err)
	}
	return p, nil
}

// InvestedTotal возвращает сумму текущих балансов активных позиций пользователя.
func (r *PostgresRepository) InvestedTotal(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(current_balance), 0) FROM user_plans WHERE user_id = $1 AND status = $2`,
		userID, string(model.PositionActive),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, mapError("sum invested", err)
	}
	return total, nil
}

// ListPlans возвращает каталог планов.
func (r *PostgresRepository) ListPlans(ctx context.Context, activeOnly bool) ([]model.Plan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+planColumns+` FROM investment_plans
		 WHERE ($1 = FALSE OR is_active)
		 ORDER BY min_amount, name`,
		activeOnly,
	)
	if err != nil {
		return nil, mapError("select plans", err)
	}
	return collect(rows, scanPlan)
}

// GetPlan возвращает план по идентификатору.
func (r *PostgresRepository) GetPlan(ctx context.Context, planID uuid.UUID) (*model.Plan, error) {
	p, err := scanPlan(r.pool.QueryRow(ctx, `SELECT `+planColumns+` FROM investment_plans WHERE id = $1`, planID))
	if err != nil {
		return nil, mapError("get plan", err)
	}
	return p, nil
}

// CreatePlan добавляет план в каталог.
func (r *PostgresRepository) CreatePlan(ctx context.Context, p *model.Plan) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO investment_plans (`+planColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		p.ID, p.Key, p.Name, p.Description, p.MinAmount, p.MaxAmount, p.ROIMin, p.ROIMax,
		string(p.Frequency), p.LockPeriodHours, string(p.WithdrawalType), p.Active, p.CreatedAt, p.UpdatedAt,
	)
	return mapError("insert plan", err)
}

// UpdatePlan изменяет параметры плана. Новые условия доходности применяются к следующим начислениям.
func (r *PostgresRepository) UpdatePlan(ctx context.Context, p *model.Plan) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE investment_plans
		 SET plan_key = $2, name = $3, description = $4, min_amount = $5, max_amount = $6,
		     roi_min = $7, roi_max = $8, roi_frequency = $9, lock_period_hours = $10,
		     withdrawal_type = $11, is_active = $12, updated_at = $13
		 WHERE id = $1`,
		p.ID, p.Key, p.Name, p.Description, p.MinAmount, p.MaxAmount, p.ROIMin, p.ROIMax,
		string(p.Frequency), p.LockPeriodHours, string(p.WithdrawalType), p.Active, p.UpdatedAt,
	)
	if err != nil {
		return mapError("update plan", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update plan %s: %w", p.ID, model.ErrNotFound)
	}
	return nil
}

// ListPositions возвращает позиции пользователя, новые первыми.
func (r *PostgresRepository) ListPositions(ctx context.Context, userID uuid.UUID) ([]model.Position, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM user_plans WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, mapError("select positions", err)
	}
	return collect(rows, scanPosition)
}

// GetPosition возвращает позицию по идентификатору.
func (r *PostgresRepository) GetPosition(ctx context.Context, positionID uuid.UUID) (*model.Position, error) {
	p, err := scanPosition(r.pool.QueryRow(ctx, `SELECT `+positionColumns+` FROM user_plans WHERE id = $1`, positionID))
	if err != nil {
		return nil, mapError("get position", err)
	}
	return p, nil
}

// ListROIHistory возвращает историю начислений пользователя, при positionID != nil только по одной позиции.
func (r *PostgresRepository) ListROIHistory(ctx context.Context, userID uuid.UUID, positionID *uuid.UUID, limit int) ([]model.ROIRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+roiColumns+` FROM roi_history
		 WHERE user_id = $1 AND ($2::uuid IS NULL OR user_plan_id = $2)
		 ORDER BY calculation_date DESC
		 LIMIT $3`,
		userID, positionID, clampLimit(limit),
	)
	if err != nil {
		return nil, mapError("select roi history", err)
	}
	return collect(rows, scanROIRecord)
}

// ListTransactions возвращает журнал операций пользователя, новые первыми.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM user_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, clampLimit(limit),
	)
	if err != nil {
		return nil, mapError("select transactions", err)
	}
	return collect(rows, scanTransaction)
}

// ListDeposits возвращает заявки на пополнение по фильтру.
func (r *PostgresRepository) ListDeposits(ctx context.Context, f ListFilter) ([]model.Deposit, error) {
	clause, args := f.clause()
	rows, err := r.pool.Query(ctx, `SELECT `+depositColumns+` FROM deposits`+clause, args...)
	if err != nil {
		return nil, mapError("select deposits", err)
	}
	return collect(rows, scanDeposit)
}

// GetDeposit возвращает заявку на пополнение.
func (r *PostgresRepository) GetDeposit(ctx context.Context, depositID uuid.UUID) (*model.Deposit, error) {
	d, err := scanDeposit(r.pool.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, depositID))
	if err != nil {
		return nil, mapError("get deposit", err)
	}
	return d, nil
}

// ListWithdrawals возвращает заявки на вывод по фильтру.
func (r *PostgresRepository) ListWithdrawals(ctx context.Context, f ListFilter) ([]model.Withdrawal, error) {
	clause, args := f.clause()
	rows, err := r.pool.Query(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals`+clause, args...)
	if err != nil {
		return nil, mapError("select withdrawals", err)
	}
	return collect(rows, scanWithdrawal)
}

// ListDepositWallets возвращает адреса для пополнения.
func (r *PostgresRepository) ListDepositWallets(ctx context.Context, activeOnly bool) ([]model.DepositWallet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+walletColumns+` FROM deposit_wallets WHERE ($1 = FALSE OR is_active) ORDER BY currency, network`,
		activeOnly,
	)
	if err != nil {
		return nil, mapError("select deposit wallets", err)
	}
	return collect(rows, scanWallet)
}

// UpsertDepositWallet создаёт или заменяет адрес для пары валюта/сеть.
func (r *PostgresRepository) UpsertDepositWallet(ctx context.Context, w *model.DepositWallet) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO deposit_wallets (`+walletColumns+`) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (currency, network) DO UPDATE
		 SET address = EXCLUDED.address, is_active = EXCLUDED.is_active, updated_at = EXCLUDED.updated_at`,
		w.Currency, w.Network, w.Address, w.Active, w.UpdatedAt,
	)
	return mapError("upsert deposit wallet", err)
}

// DuePositions возвращает активные позиции с наступившим сроком начисления вместе с текущими условиями плана.
// Порядок (next_roi_calculation, id) совпадает с частичным индексом user_plans_due_idx.
func (r *PostgresRepository) DuePositions(ctx context.Context, now time.Time, after *model.DueCursor, limit int) ([]model.DuePosition, error) {
	var (
		afterNext *time.Time
		afterID   uuid.UUID
	)
	if after != nil {
		afterNext = &after.NextROIAt
		afterID = after.ID
	}

	var res []model.DuePosition
	err := r.withRetry(ctx, func() error {
		rows, err := r.pool.Query(ctx,
			`SELECT `+qualify("up", positionColumns)+`, p.roi_min, p.roi_max, p.roi_frequency, pr.email
			 FROM user_plans up
			 JOIN profiles pr ON pr.id = up.user_id
			 LEFT JOIN investment_plans p ON p.id = up.plan_id
			 WHERE up.status = 'active'
			   AND up.next_roi_calculation <= $1
			   AND ($2::timestamptz IS NULL OR (up.next_roi_calculation, up.id) > ($2::timestamptz, $3::uuid))
			 ORDER BY up.next_roi_calculation, up.id
			 LIMIT $4`,
			now, afterNext, afterID, limit,
		)
		if err != nil {
			return fmt.Errorf("select due positions: %w", err)
		}
		defer rows.Close()

		res = res[:0]
		for rows.Next() {
			var (
				item      model.DuePosition
				p         = &item.Position
				roiMin    decimal.NullDecimal
				roiMax    decimal.NullDecimal
				frequency *string
			)
			err := rows.Scan(&p.ID, &p.UserID, &p.PlanID, &p.PlanKey, &p.PlanName, &p.InvestedAmount, &p.CurrentBalance,
				&p.TotalEarned, &p.Reserved, &p.Status, &p.LockUntil, &p.LastROIAt, &p.NextROIAt,
				&p.CreatedAt, &p.UpdatedAt, &roiMin, &roiMax, &frequency, &item.OwnerEmail)
			if err != nil {
				return fmt.Errorf("scan due position: %w", err)
			}
			if roiMin.Valid && roiMax.Valid && frequency != nil {
				item.Plan = &model.PlanTerms{
					ROIMin:    roiMin.Decimal,
					ROIMax:    roiMax.Decimal,
					Frequency: model.Frequency(*frequency),
				}
			}
			res = append(res, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, c := range parts {
		parts[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(parts, ", ")
}
