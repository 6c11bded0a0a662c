package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes. Portfolio paths are registered
// flat because the analytics module owns other /portfolio paths on the same
// router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.HandleGetAccounts)
		r.Post("/", h.HandleCreateAccount)
	})

	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.HandleGetTransactions)
		r.Post("/", h.HandleAddTransaction)
		r.Delete("/{id}", h.HandleDeleteTransaction)
	})

	r.Get("/portfolio", h.HandleGetHoldings)        // Open positions
	r.Get("/portfolio/summary", h.HandleGetSummary) // Per-account summary
}
