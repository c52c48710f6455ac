// Package handler содержит HTTP-обработчики API инвестиционной платформы.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/invest-ledger/internal/accrual"
	"github.com/mmeshcher/invest-ledger/internal/middleware"
	"github.com/mmeshcher/invest-ledger/internal/model"
	"github.com/mmeshcher/invest-ledger/internal/repository"
	"github.com/mmeshcher/invest-ledger/internal/review"
	"github.com/mmeshcher/invest-ledger/internal/service"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error
	EnsureProfile(ctx context.Context, userID uuid.UUID, email string) (*model.Profile, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (*model.Balance, error)

	ListPlans(ctx context.Context, activeOnly bool) ([]model.Plan, error)
	CreatePlan(ctx context.Context, in service.PlanInput) (*model.Plan, error)
	UpdatePlan(ctx context.Context, planID uuid.UUID, in service.PlanInput) (*model.Plan, error)
	Subscribe(ctx context.Context, userID, planID uuid.UUID, amount decimal.Decimal) (*model.Position, error)

	ListPositions(ctx context.Context, userID uuid.UUID) ([]model.Position, error)
	Position(ctx context.Context, userID, positionID uuid.UUID) (*model.Position, error)
	ROIHistory(ctx context.Context, userID uuid.UUID, positionID *uuid.UUID, limit int) ([]model.ROIRecord, error)
	Transactions(ctx context.Context, userID uuid.UUID, limit int) ([]model.Transaction, error)

	RequestWithdrawal(ctx context.Context, in service.WithdrawalInput) (*model.Withdrawal, error)
	Quote(amount decimal.Decimal) (fee, net decimal.Decimal, err error)
	SubmitDeposit(ctx context.Context, in service.DepositInput) (*model.Deposit, error)
	ListDeposits(ctx context.Context, f repository.ListFilter) ([]model.Deposit, error)
	Deposit(ctx context.Context, userID, depositID uuid.UUID) (*model.Deposit, error)
	ListWithdrawals(ctx context.Context, f repository.ListFilter) ([]model.Withdrawal, error)
	DepositWallets(ctx context.Context) ([]model.DepositWallet, error)
	UpsertDepositWallet(ctx context.Context, w model.DepositWallet) (*model.DepositWallet, error)

	ReviewDeposit(ctx context.Context, actorID uuid.UUID, d review.Decision) (*model.Deposit, error)
	ReviewWithdrawal(ctx context.Context, actorID uuid.UUID, d review.Decision) (*model.Withdrawal, error)
	TopUp(ctx context.Context, actorID, userID uuid.UUID, amount decimal.Decimal, note string) (*model.Transaction, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, f service.UserFlags) (*model.Profile, error)

	RunROIBatch(ctx context.Context) (*accrual.Summary, error)
}

// Config содержит параметры HTTP-слоя.
type Config struct {
	// ROISecret задаёт общий секрет для запуска начислений. Пустое значение отключает запуск.
	ROISecret string
	// ROIRetryAfter отдаётся в Retry-After, если пакет начислений уже выполняется.
	ROIRetryAfter time.Duration
	// MaxUploadBytes ограничивает размер multipart-запроса с подтверждением оплаты.
	MaxUploadBytes int64
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	cfg            Config
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, cfg Config) *Handler {
	if cfg.ROIRetryAfter <= 0 {
		cfg.ROIRetryAfter = 30 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		cfg:            cfg,
	}
}

type errorResponse struct {
	Error          string           `json:"error"`
	Shortfall      *decimal.Decimal `json:"shortfall,omitempty"`
	RemainingHours *int             `json:"remaining_hours,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrAccountFrozen):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, model.ErrLocked):
		return http.StatusLocked
	case errors.Is(err, model.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrDependencyFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает кодом, соответствующим ошибке. Сбои логируются, бизнес-ошибки отдаются клиенту в JSON.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err), zap.String("path", r.URL.Path))
		http.Error(w, http.StatusText(status), status)
		return
	}

	resp := errorResponse{Error: err.Error()}

	var funds *model.InsufficientFundsError
	if errors.As(err, &funds) {
		shortfall := funds.Shortfall()
		resp.Shortfall = &shortfall
	}
	var locked *model.LockedError
	if errors.As(err, &locked) {
		hours := locked.RemainingHours()
		resp.RemainingHours = &hours
	}
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(int(h.cfg.ROIRetryAfter.Seconds())))
	}

	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

func userFromRequest(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}

// Ping проверяет доступность базы данных.
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("ping error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type profileRequest struct {
	Email string `json:"email"`
}

// EnsureProfile создаёт счёт текущего пользователя, если его ещё нет.
func (h *Handler) EnsureProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req profileRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	if req.Email == "" {
		req.Email = middleware.GetEmailFromContext(r.Context())
	}

	p, err := h.service.EnsureProfile(r.Context(), userID, req.Email)
	if err != nil {
		h.writeError(w, r, "ensure profile error", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// GetProfile возвращает счёт текущего пользователя. Счёт создаётся только через POST.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "get profile error", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "get balance error", err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// GetPositions возвращает позиции текущего пользователя.
func (h *Handler) GetPositions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	positions, err := h.service.ListPositions(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, "list positions error", err)
		return
	}
	if len(positions) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(positions, toPositionResponse))
}

// GetPosition возвращает одну позицию текущего пользователя.
func (h *Handler) GetPosition(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	positionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.Position(r.Context(), userID, positionID)
	if err != nil {
		h.writeError(w, r, "get position error", err)
		return
	}
	writeJSON(w, http.StatusOK, toPositionResponse(p))
}

// GetROIHistory возвращает историю начислений, при указании position_id только по одной позиции.
func (h *Handler) GetROIHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var positionID *uuid.UUID
	if raw := r.URL.Query().Get("position_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		positionID = &id
	}

	records, err := h.service.ROIHistory(r.Context(), userID, positionID, parseLimit(r))
	if err != nil {
		h.writeError(w, r, "roi history error", err)
		return
	}
	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(records, toROIRecordResponse))
}

// GetTransactions возвращает журнал операций текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	txs, err := h.service.Transactions(r.Context(), userID, parseLimit(r))
	if err != nil {
		h.writeError(w, r, "list transactions error", err)
		return
	}
	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(txs, toTransactionResponse))
}
