package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invest-ledger/internal/model"
	"github.com/mmeshcher/invest-ledger/internal/service"
)

// ListPlans возвращает активные планы каталога.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListPlans(r.Context(), true)
	if err != nil {
		h.writeError(w, r, "list plans error", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(plans, toPlanResponse))
}

type subscribeRequest struct {
	PlanID uuid.UUID       `json:"plan_id"`
	Amount decimal.Decimal `json:"amount"`
}

// Subscribe открывает позицию текущего пользователя по плану.
func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}

	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PlanID == uuid.Nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	pos, err := h.service.Subscribe(r.Context(), userID, req.PlanID, req.Amount)
	if err != nil {
		h.writeError(w, r, "subscribe error", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPositionResponse(pos))
}

type planRequest struct {
	Key             string               `json:"key"`
	Name            string               `json:"name"`
	Description     string               `json:"description"`
	MinAmount       decimal.Decimal      `json:"min_amount"`
	MaxAmount       decimal.NullDecimal  `json:"max_amount"`
	ROIMin          decimal.Decimal      `json:"roi_min"`
	ROIMax          decimal.Decimal      `json:"roi_max"`
	ROIFixed        decimal.NullDecimal  `json:"roi_fixed"`
	Frequency       model.Frequency      `json:"roi_frequency"`
	LockPeriodHours int                  `json:"lock_period_hours"`
	WithdrawalType  model.WithdrawalType `json:"withdrawal_type"`
	Active          *bool                `json:"active"`
}

func (p planRequest) toInput() service.PlanInput {
	active := true
	if p.Active != nil {
		active = *p.Active
	}
	return service.PlanInput{
		Key:             p.Key,
		Name:            p.Name,
		Description:     p.Description,
		MinAmount:       p.MinAmount,
		MaxAmount:       p.MaxAmount,
		ROIMin:          p.ROIMin,
		ROIMax:          p.ROIMax,
		ROIFixed:        p.ROIFixed,
		Frequency:       p.Frequency,
		LockPeriodHours: p.LockPeriodHours,
		WithdrawalType:  p.WithdrawalType,
		Active:          active,
	}
}

// ListAllPlans возвращает весь каталог, включая отключённые планы.
func (h *Handler) ListAllPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListPlans(r.Context(), false)
	if err != nil {
		h.writeError(w, r, "list plans error", err)
		return
	}
	writeJSON(w, http.StatusOK, mapSlice(plans, toPlanResponse))
}

// CreatePlan добавляет план в каталог.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.CreatePlan(r.Context(), req.toInput())
	if err != nil {
		h.writeError(w, r, "create plan error", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlanResponse(p))
}

// UpdatePlan изменяет план каталога.
func (h *Handler) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	planID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req planRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.service.UpdatePlan(r.Context(), planID, req.toInput())
	if err != nil {
		h.writeError(w, r, "update plan error", err)
		return
	}
	writeJSON(w, http.StatusOK, toPlanResponse(p))
}
