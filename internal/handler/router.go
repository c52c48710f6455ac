package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/invest-ledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/ping", h.Ping)
	r.With(h.roiAuth).Post("/api/roi/calculate", h.CalculateROI)

	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/api/plans", h.ListPlans)
		r.Get("/api/deposit/wallets", h.GetDepositWallets)
		r.Get("/api/withdrawals/quote", h.QuoteWithdrawal)

		r.Route("/api/user", func(r chi.Router) {
			r.Post("/profile", h.EnsureProfile)
			r.Get("/profile", h.GetProfile)
			r.Get("/balance", h.GetBalance)

			r.Post("/positions", h.Subscribe)
			r.Get("/positions", h.GetPositions)
			r.Get("/positions/{id}", h.GetPosition)
			r.Get("/roi-history", h.GetROIHistory)
			r.Get("/transactions", h.GetTransactions)

			r.Post("/deposits", h.SubmitDeposit)
			r.Get("/deposits", h.GetDeposits)
			r.Get("/deposits/{id}", h.GetDeposit)

			r.Post("/withdrawals", h.Withdraw)
			r.Get("/withdrawals", h.GetWithdrawals)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(h.requireAdmin)

			r.Get("/plans", h.ListAllPlans)
			r.Post("/plans", h.CreatePlan)
			r.Put("/plans/{id}", h.UpdatePlan)

			r.Get("/deposits", h.ListDeposits)
			r.Post("/deposits/review", h.ReviewDeposit)
			r.Get("/withdrawals", h.ListWithdrawals)
			r.Post("/withdrawals/review", h.ReviewWithdrawal)

			r.Put("/deposit-wallets", h.UpsertDepositWallet)

			r.Post("/users/{id}/topup", h.TopUp)
			r.Patch("/users/{id}", h.UpdateUser)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
