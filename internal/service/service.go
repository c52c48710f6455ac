// Package service связывает ledger, каталог планов и внешние сервисы для HTTP-обработчиков.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/invest-ledger/internal/accrual"
	"github.com/mmeshcher/invest-ledger/internal/ledger"
	"github.com/mmeshcher/invest-ledger/internal/model"
	"github.com/mmeshcher/invest-ledger/internal/planmath"
	"github.com/mmeshcher/invest-ledger/internal/repository"
	"github.com/mmeshcher/invest-ledger/internal/review"
	"github.com/mmeshcher/invest-ledger/internal/validation"
)

var errProofsDisabled = errors.New("proof storage is not configured")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Ping(ctx context.Context) error
	Close() error
	UpsertProfile(ctx context.Context, userID uuid.UUID, email string) (*model.Profile, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	UpdateProfileFlags(ctx context.Context, userID uuid.UUID, role *model.Role, frozen *bool) (*model.Profile, error)
	InvestedTotal(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]model.Plan, error)
	GetPlan(ctx context.Context, planID uuid.UUID) (*model.Plan, error)
	CreatePlan(ctx context.Context, p *model.Plan) error
	UpdatePlan(ctx context.Context, p *model.Plan) error
	ListPositions(ctx context.Context, userID uuid.UUID) ([]model.Position, error)
	GetPosition(ctx context.Context, positionID uuid.UUID) (*model.Position, error)
	ListROIHistory(ctx context.Context, userID uuid.UUID, positionID *uuid.UUID, limit int) ([]model.ROIRecord, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit int) ([]model.Transaction, error)
	ListDeposits(ctx context.Context, f repository.ListFilter) ([]model.Deposit, error)
	GetDeposit(ctx context.Context, depositID uuid.UUID) (*model.Deposit, error)
	ListWithdrawals(ctx context.Context, f repository.ListFilter) ([]model.Withdrawal, error)
	ListDepositWallets(ctx context.Context, activeOnly bool) ([]model.DepositWallet, error)
	UpsertDepositWallet(ctx context.Context, w *model.DepositWallet) error
}

// Ledger описывает операции, изменяющие балансы.
type Ledger interface {
	DebitForInvestment(ctx context.Context, userID, planID uuid.UUID, amount decimal.Decimal) (*model.Position, *model.Transaction, error)
	RequestWithdrawal(ctx context.Context, req ledger.WithdrawalRequest) (*model.Withdrawal, error)
	SubmitDeposit(ctx context.Context, req ledger.DepositRequest) (*model.Deposit, error)
	CreditDeposit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, description string) (*model.Transaction, error)
	FeeRate() decimal.Decimal
}

// Reviewer рассматривает заявки.
type Reviewer interface {
	ReviewDeposit(ctx context.Context, actorID uuid.UUID, d review.Decision) (*model.Deposit, error)
	ReviewWithdrawal(ctx context.Context, actorID uuid.UUID, d review.Decision) (*model.Withdrawal, error)
}

// Batch запускает пакет начислений.
type Batch interface {
	Run(ctx context.Context) (*accrual.Summary, error)
}

// ProofUploader сохраняет файл подтверждения оплаты и возвращает ссылку на него.
type ProofUploader interface {
	Upload(ctx context.Context, userID uuid.UUID, filename string, body io.Reader, size int64) (string, error)
}

// Notifier сообщает об открытии позиции.
type Notifier interface {
	SubscriptionConfirmed(ctx context.Context, to, planName string, amount decimal.Decimal) error
}

// Deps содержит зависимости сервиса. Proofs может быть nil, если объектное хранилище не настроено.
type Deps struct {
	Repo     Repository
	Ledger   Ledger
	Reviewer Reviewer
	Batch    Batch
	Proofs   ProofUploader
	Notifier Notifier
	Logger   *zap.Logger
}

// Service содержит бизнес-логику инвестиционной платформы, не относящуюся к балансам.
type Service struct {
	repo     Repository
	ledger   Ledger
	reviewer Reviewer
	batch    Batch
	proofs   ProofUploader
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService создаёт сервис.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     d.Repo,
		ledger:   d.Ledger,
		reviewer: d.Reviewer,
		batch:    d.Batch,
		proofs:   d.Proofs,
		notifier: d.Notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// EnsureProfile создаёт счёт при первом обращении пользователя.
func (s *Service) EnsureProfile(ctx context.Context, userID uuid.UUID, email string) (*model.Profile, error) {
	p, err := s.repo.UpsertProfile(ctx, userID, strings.TrimSpace(email))
	return p, model.Dependency("ensure profile", err)
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return model.Dependency("ping", s.repo.Ping(ctx))
}

// GetProfile возвращает счёт пользователя. Если счёт не создан, возвращает model.ErrNotFound.
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, model.Dependency("get profile", err)
	}
	return p, nil
}

// IsAdmin сообщает, имеет ли пользователь роль администратора.
func (s *Service) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return false, model.Dependency("get profile", err)
	}
	return p.Role == model.RoleAdmin, nil
}

// GetBalance возвращает сводку по счёту пользователя.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*model.Balance, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, model.Dependency("get profile", err)
	}
	invested, err := s.repo.InvestedTotal(ctx, userID)
	if err != nil {
		return nil, model.Dependency("sum invested", err)
	}
	return &model.Balance{
		Balance:   p.Balance,
		Reserved:  p.Reserved,
		Available: p.Available(),
		Invested:  invested,
	}, nil
}

// ListPlans возвращает каталог планов.
func (s *Service) ListPlans(ctx context.Context, activeOnly bool) ([]model.Plan, error) {
	plans, err := s.repo.ListPlans(ctx, activeOnly)
	return plans, model.Dependency("list plans", err)
}

// Subscribe открывает позицию по плану и отправляет подтверждение.
func (s *Service) Subscribe(ctx context.Context, userID, planID uuid.UUID, amount decimal.Decimal) (*model.Position, error) {
	pos, _, err := s.ledger.DebitForInvestment(ctx, userID, planID, amount)
	if err != nil {
		return nil, err
	}

	s.logger.Info("position opened",
		zap.String("user", userID.String()),
		zap.String("position", pos.ID.String()),
		zap.String("amount", amount.String()),
	)

	if p, err := s.repo.GetProfile(ctx, userID); err == nil && p.Email != "" {
		if err := s.notifier.SubscriptionConfirmed(ctx, p.Email, pos.PlanName, amount); err != nil {
			s.logger.Warn("subscription notification failed", zap.Error(err))
		}
	}
	return pos, nil
}

// ListPositions возвращает позиции пользователя.
func (s *Service) ListPositions(ctx context.Context, userID uuid.UUID) ([]model.Position, error) {
	res, err := s.repo.ListPositions(ctx, userID)
	return res, model.Dependency("list positions", err)
}

// Position возвращает позицию пользователя. Чужая позиция считается отсутствующей.
func (s *Service) Position(ctx context.Context, userID, positionID uuid.UUID) (*model.Position, error) {
	p, err := s.repo.GetPosition(ctx, positionID)
	if err != nil {
		return nil, model.Dependency("get position", err)
	}
	if p.UserID != userID {
		return nil, fmt.Errorf("position %s: %w", positionID, model.ErrNotFound)
	}
	return p, nil
}

// ROIHistory возвращает историю начислений пользователя.
func (s *Service) ROIHistory(ctx context.Context, userID uuid.UUID, positionID *uuid.UUID, limit int) ([]model.ROIRecord, error) {
	res, err := s.repo.ListROIHistory(ctx, userID, positionID, limit)
	return res, model.Dependency("list roi history", err)
}

// Transactions возвращает журнал операций пользователя.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID, limit int) ([]model.Transaction, error) {
	res, err := s.repo.ListTransactions(ctx, userID, limit)
	return res, model.Dependency("list transactions", err)
}

// WithdrawalInput описывает заявку пользователя на вывод.
type WithdrawalInput struct {
	UserID        uuid.UUID
	PositionID    *uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	WalletAddress string
	Network       string
}

// RequestWithdrawal проверяет реквизиты и создаёт заявку на вывод.
func (s *Service) RequestWithdrawal(ctx context.Context, in WithdrawalInput) (*model.Withdrawal, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.WalletAddress = strings.TrimSpace(in.WalletAddress)
	in.Network = strings.TrimSpace(in.Network)

	if !validation.IsValidCurrency(in.Currency) {
		return nil, model.Invalid("unsupported currency %q", in.Currency)
	}
	if !validation.IsValidNetwork(in.Network) {
		return nil, model.Invalid("unsupported network %q", in.Network)
	}
	if !validation.IsValidAddressForNetwork(in.Network, in.WalletAddress) {
		return nil, model.Invalid("malformed wallet address")
	}

	w, err := s.ledger.RequestWithdrawal(ctx, ledger.WithdrawalRequest{
		UserID:        in.UserID,
		PositionID:    in.PositionID,
		Amount:        in.Amount,
		Currency:      in.Currency,
		WalletAddress: in.WalletAddress,
		Network:       in.Network,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("withdrawal requested",
		zap.String("user", in.UserID.String()),
		zap.String("withdrawal", w.ID.String()),
		zap.String("amount", w.Amount.String()),
	)
	return w, nil
}

// Quote возвращает комиссию и сумму к получению для вывода amount.
func (s *Service) Quote(amount decimal.Decimal) (fee, net decimal.Decimal, err error) {
	fee, err = planmath.Fee(amount, s.ledger.FeeRate())
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return fee, amount.Sub(fee), nil
}

// ProofFile описывает загружаемый файл подтверждения оплаты.
type ProofFile struct {
	Name string
	Body io.Reader
	Size int64
}

// DepositInput описывает заявку пользователя на пополнение.
type DepositInput struct {
	UserID        uuid.UUID
	Amount        decimal.Decimal
	Currency      string
	WalletAddress string
	TxHash        string
	Proof         *ProofFile
}

// SubmitDeposit загружает подтверждение оплаты и регистрирует заявку на пополнение.
func (s *Service) SubmitDeposit(ctx context.Context, in DepositInput) (*model.Deposit, error) {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	in.TxHash = strings.TrimSpace(in.TxHash)

	if !validation.IsValidCurrency(in.Currency) {
		return nil, model.Invalid("unsupported currency %q", in.Currency)
	}
	if in.TxHash != "" && !validation.IsValidTxHash(in.TxHash) {
		return nil, model.Invalid("malformed tx hash")
	}
	if !in.Amount.IsPositive() {
		return nil, model.Invalid("amount must be positive")
	}

	var proofURL string
	if in.Proof != nil {
		if s.proofs == nil {
			return nil, model.Dependency("upload proof", errProofsDisabled)
		}
		url, err := s.proofs.Upload(ctx, in.UserID, in.Proof.Name, in.Proof.Body, in.Proof.Size)
		if err != nil {
			return nil, model.Dependency("upload proof", err)
		}
		proofURL = url
	}

	d, err := s.ledger.SubmitDeposit(ctx, ledger.DepositRequest{
		UserID:        in.UserID,
		Amount:        in.Amount,
		Currency:      in.Currency,
		WalletAddress: strings.TrimSpace(in.WalletAddress),
		TxHash:        in.TxHash,
		ProofURL:      proofURL,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("deposit submitted",
		zap.String("user", in.UserID.String()),
		zap.String("deposit", d.ID.String()),
		zap.String("amount", d.Amount.String()),
	)
	return d, nil
}

// ListDeposits возвращает заявки на пополнение.
func (s *Service) ListDeposits(ctx context.Context, f repository.ListFilter) ([]model.Deposit, error) {
	res, err := s.repo.ListDeposits(ctx, f)
	return res, model.Dependency("list deposits", err)
}

// Deposit возвращает заявку пользователя на пополнение. Чужая заявка считается отсутствующей.
func (s *Service) Deposit(ctx context.Context, userID, depositID uuid.UUID) (*model.Deposit, error) {
	d, err := s.repo.GetDeposit(ctx, depositID)
	if err != nil {
		return nil, model.Dependency("get deposit", err)
	}
	if d.UserID != userID {
		return nil, fmt.Errorf("deposit %s: %w", depositID, model.ErrNotFound)
	}
	return d, nil
}

// ListWithdrawals возвращает заявки на вывод.
func (s *Service) ListWithdrawals(ctx context.Context, f repository.ListFilter) ([]model.Withdrawal, error) {
	res, err := s.repo.ListWithdrawals(ctx, f)
	return res, model.Dependency("list withdrawals", err)
}

// DepositWallets возвращает активные адреса для пополнения.
func (s *Service) DepositWallets(ctx context.Context) ([]model.DepositWallet, error) {
	res, err := s.repo.ListDepositWallets(ctx, true)
	return res, model.Dependency("list deposit wallets", err)
}

// ReviewDeposit передаёт решение администратора по пополнению.
func (s *Service) ReviewDeposit(ctx context.Context, actorID uuid.UUID, d review.Decision) (*model.Deposit, error) {
	return s.reviewer.ReviewDeposit(ctx, actorID, d)
}

// ReviewWithdrawal передаёт решение администратора по выводу.
func (s *Service) ReviewWithdrawal(ctx context.Context, actorID uuid.UUID, d review.Decision) (*model.Withdrawal, error) {
	return s.reviewer.ReviewWithdrawal(ctx, actorID, d)
}

// RunROIBatch выполняет один запуск начислений.
func (s *Service) RunROIBatch(ctx context.Context) (*accrual.Summary, error) {
	return s.batch.Run(ctx)
}

// PlanInput содержит параметры плана из админского запроса. ROIFixed, если задан, заменяет границы.
type PlanInput struct {
	Key             string
	Name            string
	Description     string
	MinAmount       decimal.Decimal
	MaxAmount       decimal.NullDecimal
	ROIMin          decimal.Decimal
	ROIMax          decimal.Decimal
	ROIFixed        decimal.NullDecimal
	Frequency       model.Frequency
	LockPeriodHours int
	WithdrawalType  model.WithdrawalType
	Active          bool
}

func (in PlanInput) toPlan(p *model.Plan) error {
	key := strings.TrimSpace(in.Key)
	name := strings.TrimSpace(in.Name)
	if key == "" || name == "" {
		return model.Invalid("plan key and name are required")
	}

	roiMin, roiMax := in.ROIMin, in.ROIMax
	if in.ROIFixed.Valid {
		roiMin, roiMax = in.ROIFixed.Decimal, in.ROIFixed.Decimal
	}
	if err := planmath.ValidateROIBounds(roiMin, roiMax); err != nil {
		return err
	}
	if in.MinAmount.IsNegative() {
		return model.Invalid("min_amount must not be negative")
	}
	if in.MaxAmount.Valid && in.MaxAmount.Decimal.LessThan(in.MinAmount) {
		return model.Invalid("min_amount %s exceeds max_amount %s", in.MinAmount, in.MaxAmount.Decimal)
	}
	switch in.Frequency {
	case model.FrequencyDaily, model.FrequencyWeekly:
	default:
		return model.Invalid("unknown roi_frequency %q", in.Frequency)
	}
	switch in.WithdrawalType {
	case model.WithdrawalFull, model.WithdrawalFlexible:
	default:
		return model.Invalid("unknown withdrawal_type %q", in.WithdrawalType)
	}
	if in.LockPeriodHours < 0 {
		return model.Invalid("lock_period_hours must not be negative")
	}

	p.Key = key
	p.Name = name
	p.Description = strings.TrimSpace(in.Description)
	p.MinAmount = in.MinAmount
	p.MaxAmount = in.MaxAmount
	p.ROIMin = roiMin
	p.ROIMax = roiMax
	p.Frequency = in.Frequency
	p.LockPeriodHours = in.LockPeriodHours
	p.WithdrawalType = in.WithdrawalType
	p.Active = in.Active
	return nil
}

// CreatePlan добавляет план в каталог.
func (s *Service) CreatePlan(ctx context.Context, in PlanInput) (*model.Plan, error) {
	p := &model.Plan{ID: uuid.New()}
	if err := in.toPlan(p); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now

	if err := s.repo.CreatePlan(ctx, p); err != nil {
		return nil, model.Dependency("create plan", err)
	}
	s.logger.Info("plan created", zap.String("plan", p.Key))
	return p, nil
}

// UpdatePlan изменяет условия плана. Новые границы доходности применяются с ближайшего начисления.
func (s *Service) UpdatePlan(ctx context.Context, planID uuid.UUID, in PlanInput) (*model.Plan, error) {
	p, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, model.Dependency("get plan", err)
	}
	if err := in.toPlan(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.repo.UpdatePlan(ctx, p); err != nil {
		return nil, model.Dependency("update plan", err)
	}
	s.logger.Info("plan updated", zap.String("plan", p.Key))
	return p, nil
}

// TopUp зачисляет средства на счёт пользователя от имени администратора.
func (s *Service) TopUp(ctx context.Context, actorID, userID uuid.UUID, amount decimal.Decimal, note string) (*model.Transaction, error) {
	description := "Admin top-up"
	if note = strings.TrimSpace(note); note != "" {
		description += ": " + note
	}
	tr, err := s.ledger.CreditDeposit(ctx, userID, amount, description)
	if err != nil {
		return nil, err
	}
	s.logger.Info("manual top-up",
		zap.String("user", userID.String()),
		zap.String("admin", actorID.String()),
		zap.String("amount", amount.String()),
	)
	return tr, nil
}

// UserFlags содержит изменяемые администратором атрибуты счёта.
type UserFlags struct {
	Role   *model.Role
	Frozen *bool
}

// UpdateUser меняет роль или блокировку счёта.
func (s *Service) UpdateUser(ctx context.Context, userID uuid.UUID, f UserFlags) (*model.Profile, error) {
	if f.Role == nil && f.Frozen == nil {
		return nil, model.Invalid("nothing to update")
	}
	if f.Role != nil && *f.Role != model.RoleUser && *f.Role != model.RoleAdmin {
		return nil, model.Invalid("unknown role %q", *f.Role)
	}
	p, err := s.repo.UpdateProfileFlags(ctx, userID, f.Role, f.Frozen)
	return p, model.Dependency("update profile", err)
}

// UpsertDepositWallet задаёт адрес для пополнения в валюте w.Currency.
func (s *Service) UpsertDepositWallet(ctx context.Context, w model.DepositWallet) (*model.DepositWallet, error) {
	w.Currency = strings.ToUpper(strings.TrimSpace(w.Currency))
	w.Network = strings.TrimSpace(w.Network)
	w.Address = strings.TrimSpace(w.Address)

	if !validation.IsValidCurrency(w.Currency) {
		return nil, model.Invalid("unsupported currency %q", w.Currency)
	}
	if !validation.IsValidNetwork(w.Network) {
		return nil, model.Invalid("unsupported network %q", w.Network)
	}
	if !validation.IsValidAddressForNetwork(w.Network, w.Address) {
		return nil, model.Invalid("malformed wallet address")
	}
	w.UpdatedAt = s.now().UTC()

	if err := s.repo.UpsertDepositWallet(ctx, &w); err != nil {
		return nil, model.Dependency("upsert deposit wallet", err)
	}
	return &w, nil
}
