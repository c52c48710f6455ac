package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invest-ledger/internal/repository"
	"github.com/mmeshcher/invest-ledger/internal/service"
)

type withdrawRequest struct {
	PositionID    *uuid.UUID      `json:"position_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	WalletAddress string          `json:"wallet_address"`
	Network       string          `json:"network"`
}

// Withdraw создаёт заявку на вывод со счёта или из позиции.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req withdrawRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	wd, err := h.service.RequestWithdrawal(r.Context(), service.WithdrawalInput{
		UserID:        userID,
		PositionID:    req.PositionID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		WalletAddress: req.WalletAddress,
		Network:       req.Network,
	})
	if err != nil {
		h.writeError(w, r, "withdraw error", err)
		return
	}
	writeJSON(w, http.StatusAccepted, toWithdrawalResponse(wd))
}

type quoteResponse struct {
	Amount    decimal.Decimal `json:"amount"`
	FeeAmount decimal.Decimal `json:"fee_amount"`
	NetAmount decimal.Decimal `json:"net_amount"`
}

// QuoteWithdrawal рассчитывает комиссию для суммы из параметра amount.
func (h *Handler) QuoteWithdrawal(w http.ResponseWriter, r *http.Request) {
	amount, err := decimal.NewFromString(r.URL.Query().Get("amount"))
	if err != nil || !amount.IsPositive() {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	fee, net, err := h.service.Quote(amount)
	if err != nil {
		h.writeError(w, r, "quote error", err)
		return
	}
	writeJSON(w, http.StatusOK, quoteResponse{Amount: amount, FeeAmount: fee, NetAmount: net})
}

// GetWithdrawals возвращает заявки на вывод текущего пользователя.
func (h *Handler) GetWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	withdrawals, err := h.service.ListWithdrawals(r.Context(), repository.ListFilter{
		UserID: &userID,
		Status: r.URL.Query().Get("status"),
		Limit:  parseLimit(r),
	})
	if err != nil {
		h.writeError(w, r, "get withdrawals error", err)
		return
	}
	if len(withdrawals) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(withdrawals, toWithdrawalResponse))
}

// SubmitDeposit принимает multipart-форму заявки на пополнение с необязательным файлом proof.
func (h *Handler) SubmitDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	amount, err := decimal.NewFromString(r.FormValue("amount"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in := service.DepositInput{
		UserID:        userID,
		Amount:        amount,
		Currency:      r.FormValue("currency"),
		WalletAddress: r.FormValue("wallet_address"),
		TxHash:        r.FormValue("tx_hash"),
	}

	file, header, err := r.FormFile("proof")
	switch {
	case err == nil:
		defer file.Close()
		in.Proof = &service.ProofFile{Name: header.Filename, Body: file, Size: header.Size}
	case errors.Is(err, http.ErrMissingFile):
	default:
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	d, err := h.service.SubmitDeposit(r.Context(), in)
	if err != nil {
		h.writeError(w, r, "submit deposit error", err)
		return
	}
	writeJSON(w, http.StatusAccepted, toDepositResponse(d))
}

// GetDeposits возвращает заявки на пополнение текущего пользователя.
func (h *Handler) GetDeposits(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	deposits, err := h.service.ListDeposits(r.Context(), repository.ListFilter{
		UserID: &userID,
		Status: r.URL.Query().Get("status"),
		Limit:  parseLimit(r),
	})
	if err != nil {
		h.writeError(w, r, "get deposits error", err)
		return
	}
	if len(deposits) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(deposits, toDepositResponse))
}

// GetDeposit возвращает одну заявку на пополнение текущего пользователя.
func (h *Handler) GetDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	depositID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	d, err := h.service.Deposit(r.Context(), userID, depositID)
	if err != nil {
		h.writeError(w, r, "get deposit error", err)
		return
	}
	writeJSON(w, http.StatusOK, toDepositResponse(d))
}

// GetDepositWallets возвращает адреса для пополнения.
func (h *Handler) GetDepositWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := h.service.DepositWallets(r.Context())
	if err != nil {
		h.writeError(w, r, "list deposit wallets error", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(wallets, toWalletResponse))
}
