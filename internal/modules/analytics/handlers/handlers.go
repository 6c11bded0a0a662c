// Package handlers provides HTTP handlers for portfolio analytics.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/analytics"
)

// Handler handles analytics HTTP requests
type Handler struct {
	service *analytics.Service
	log     zerolog.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service *analytics.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "analytics").Logger(),
	}
}

// chartPoint is the wire form consumed by frontier charts: x is volatility,
// y is expected return.
type chartPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type tickerChartPoint struct {
	Ticker string  `json:"ticker"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

// HandleGetEfficientFrontier handles GET /api/portfolio/efficient_frontier
func (h *Handler) HandleGetEfficientFrontier(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.EfficientFrontier(r.Context())
	if err != nil {
		h.writeAnalyticsError(w, r, err, "Failed to compute efficient frontier")
		return
	}

	curve := make([]chartPoint, 0, len(result.Curve))
	for _, p := range result.Curve {
		curve = append(curve, chartPoint{X: p.Volatility, Y: p.ExpectedReturn})
	}

	tickers := make([]tickerChartPoint, 0, len(result.Tickers))
	for _, p := range result.Tickers {
		tickers = append(tickers, tickerChartPoint{Ticker: p.Ticker, X: p.Volatility, Y: p.ExpectedReturn})
	}

	response := map[string]interface{}{
		"curve":   curve,
		"tickers": tickers,
	}
	if len(result.Warnings) > 0 {
		response["warnings"] = result.Warnings
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetOverallMetrics handles GET /api/portfolio/overall_metrics
func (h *Handler) HandleGetOverallMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.OverallMetrics(r.Context())
	if err != nil {
		h.writeAnalyticsError(w, r, err, "Failed to compute portfolio metrics")
		return
	}

	response := map[string]interface{}{
		"volatility":        metrics.Volatility,
		"expected_return":   metrics.ExpectedReturn,
		"return_risk_ratio": metrics.ReturnRiskRatio,
	}
	if len(metrics.Warnings) > 0 {
		response["warnings"] = metrics.Warnings
	}

	h.writeJSON(w, http.StatusOK, response)
}

// HandleGetTickersMetrics handles GET /api/portfolio/tickers_metrics
func (h *Handler) HandleGetTickersMetrics(w http.ResponseWriter, r *http.Request) {
	points, err := h.service.TickerMetrics(r.Context())
	if err != nil {
		h.writeAnalyticsError(w, r, err, "Failed to compute ticker metrics")
		return
	}

	metrics := make(map[string]map[string]float64, len(points))
	for _, p := range points {
		metrics[p.Ticker] = map[string]float64{
			"volatility":      p.Volatility,
			"expected_return": p.ExpectedReturn,
		}
	}

	h.writeJSON(w, http.StatusOK, metrics)
}

// writeAnalyticsError maps engine errors to HTTP statuses. Insufficient data
// and unknown tickers are client-state problems; an unsolvable frontier is an
// internal failure.
func (h *Handler) writeAnalyticsError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, analytics.ErrInsufficientData):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, analytics.ErrUnknownTicker):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away; nothing useful to write.
		h.log.Debug().Err(err).Str("path", r.URL.Path).Msg("Request canceled")
		return
	}

	h.log.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
