package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/invest-ledger/internal/model"
	"github.com/mmeshcher/invest-ledger/internal/repository"
	"github.com/mmeshcher/invest-ledger/internal/review"
	"github.com/mmeshcher/invest-ledger/internal/service"
)

// requireAdmin пропускает только пользователей с ролью admin.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userFromRequest(w, r)
		if !ok {
			return
		}

		isAdmin, err := h.service.IsAdmin(r.Context(), userID)
		if err != nil {
			h.writeError(w, r, "check admin role error", err)
			return
		}
		if !isAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ReviewDeposit применяет решение администратора к заявке на пополнение.
func (h *Handler) ReviewDeposit(w http.ResponseWriter, r *http.Request) {
	adminID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req review.Decision
	if !decodeJSON(w, r, &req) {
		return
	}

	d, err := h.service.ReviewDeposit(r.Context(), adminID, req)
	if err != nil {
		h.writeError(w, r, "review deposit error", err)
		return
	}
	writeJSON(w, http.StatusOK, toDepositResponse(d))
}

// ReviewWithdrawal применяет решение администратора к заявке на вывод.
func (h *Handler) ReviewWithdrawal(w http.ResponseWriter, r *http.Request) {
	adminID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req review.Decision
	if !decodeJSON(w, r, &req) {
		return
	}

	wd, err := h.service.ReviewWithdrawal(r.Context(), adminID, req)
	if err != nil {
		h.writeError(w, r, "review withdrawal error", err)
		return
	}
	writeJSON(w, http.StatusOK, toWithdrawalResponse(wd))
}

func adminFilter(r *http.Request) repository.ListFilter {
	f := repository.ListFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  parseLimit(r),
	}
	if id, err := uuid.Parse(r.URL.Query().Get("user_id")); err == nil {
		f.UserID = &id
	}
	return f
}

// ListDeposits возвращает заявки на пополнение всех пользователей с фильтром по статусу.
func (h *Handler) ListDeposits(w http.ResponseWriter, r *http.Request) {
	deposits, err := h.service.ListDeposits(r.Context(), adminFilter(r))
	if err != nil {
		h.writeError(w, r, "list deposits error", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(deposits, toDepositResponse))
}

// ListWithdrawals возвращает заявки на вывод всех пользователей с фильтром по статусу.
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := h.service.ListWithdrawals(r.Context(), adminFilter(r))
	if err != nil {
		h.writeError(w, r, "list withdrawals error", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(withdrawals, toWithdrawalResponse))
}

type topUpRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

// TopUp зачисляет средства пользователю вручную.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	adminID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req topUpRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tr, err := h.service.TopUp(r.Context(), adminID, userID, req.Amount, req.Note)
	if err != nil {
		h.writeError(w, r, "top-up error", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(tr))
}

type updateUserRequest struct {
	Role   *model.Role `json:"role"`
	Frozen *bool       `json:"is_frozen"`
}

// UpdateUser меняет роль или заморозку счёта пользователя.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	adminID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.UpdateUser(r.Context(), userID, service.UserFlags{Role: req.Role, Frozen: req.Frozen})
	if err != nil {
		h.writeError(w, r, "update user error", err)
		return
	}
	h.logger.Info("user updated", zap.String("user", userID.String()), zap.String("admin", adminID.String()))
	writeJSON(w, http.StatusOK, toProfileResponse(p))
}

type walletRequest struct {
	Currency string `json:"currency"`
	Network  string `json:"network"`
	Address  string `json:"wallet_address"`
	Active   *bool  `json:"is_active"`
}

// UpsertDepositWallet задаёт адрес для пополнения в валюте.
func (h *Handler) UpsertDepositWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	wallet, err := h.service.UpsertDepositWallet(r.Context(), model.DepositWallet{
		Currency: req.Currency,
		Network:  req.Network,
		Address:  req.Address,
		Active:   active,
	})
	if err != nil {
		h.writeError(w, r, "upsert deposit wallet error", err)
		return
	}
	writeJSON(w, http.StatusOK, toWalletResponse(wallet))
}
