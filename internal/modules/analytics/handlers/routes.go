package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all analytics routes. Registered flat because the
// ledger module owns other /portfolio paths on the same router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolio/efficient_frontier", h.HandleGetEfficientFrontier) // Frontier curve + per-ticker points
	r.Get("/portfolio/overall_metrics", h.HandleGetOverallMetrics)       // Current holdings risk/return
	r.Get("/portfolio/tickers_metrics", h.HandleGetTickersMetrics)       // Per-ticker risk/return
}
