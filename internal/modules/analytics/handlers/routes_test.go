package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/analytics"
	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/marketdata"
)

type stubPrices struct {
	series map[string][]marketdata.PricePoint
}

func (s *stubPrices) SnapshotVersion(ctx context.Context) (int64, error) {
	return 1, nil
}

func (s *stubPrices) Snapshot(ctx context.Context, universe []string, lookbackDays int) (*marketdata.Snapshot, error) {
	return &marketdata.Snapshot{Version: 1, Series: s.series}, nil
}

type stubHoldings struct {
	tickers []string
	weights map[string]float64
}

func (s *stubHoldings) Tickers(ctx context.Context) ([]string, error) {
	return s.tickers, nil
}

func (s *stubHoldings) Weights(ctx context.Context) (map[string]float64, error) {
	return s.weights, nil
}

func priceSeries(start float64, returns []float64) []marketdata.PricePoint {
	day, _ := time.Parse("2006-01-02", "2024-01-01")
	points := []marketdata.PricePoint{{Date: day.Format("2006-01-02"), Close: start}}
	price := start
	for _, r := range returns {
		day = day.AddDate(0, 0, 1)
		price *= 1 + r
		points = append(points, marketdata.PricePoint{Date: day.Format("2006-01-02"), Close: price})
	}
	return points
}

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	pattern := func(a, b, c float64, n int) []float64 {
		out := make([]float64, n)
		seq := []float64{a, b, c}
		for i := range out {
			out[i] = seq[i%3]
		}
		return out
	}

	prices := &stubPrices{series: map[string][]marketdata.PricePoint{
		"AAA": priceSeries(100, pattern(0.01, -0.02, 0.015, 60)),
		"BBB": priceSeries(50, pattern(-0.005, 0.02, 0.01, 60)),
	}}
	holdings := &stubHoldings{
		tickers: []string{"AAA", "BBB"},
		weights: map[string]float64{"AAA": 0.6, "BBB": 0.4},
	}

	service := analytics.NewService(prices, holdings, analytics.Config{
		Periodicity:     analytics.PeriodicityDaily,
		NumPoints:       8,
		MinObservations: 10,
	}, zerolog.Nop())

	router := chi.NewRouter()
	NewHandler(service, zerolog.Nop()).RegisterRoutes(router)
	return router
}

func TestHandleGetEfficientFrontier(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/portfolio/efficient_frontier", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Curve []struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"curve"`
		Tickers []struct {
			Ticker string  `json:"ticker"`
			X      float64 `json:"x"`
			Y      float64 `json:"y"`
		} `json:"tickers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	require.NotEmpty(t, response.Curve)
	require.Len(t, response.Tickers, 2)
	assert.Equal(t, "AAA", response.Tickers[0].Ticker)

	for i := 1; i < len(response.Curve); i++ {
		assert.GreaterOrEqual(t, response.Curve[i].X, response.Curve[i-1].X,
			"x axis (volatility) is non-decreasing")
	}
}

func TestHandleGetOverallMetrics(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/portfolio/overall_metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Contains(t, response, "volatility")
	assert.Contains(t, response, "expected_return")
	assert.Contains(t, response, "return_risk_ratio")
}

func TestHandleGetTickersMetrics(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/portfolio/tickers_metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]map[string]float64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response, 2)
	assert.Contains(t, response, "AAA")
	assert.Contains(t, response["AAA"], "volatility")
	assert.Contains(t, response["AAA"], "expected_return")
}

func TestErrorMapping_InsufficientData(t *testing.T) {
	prices := &stubPrices{series: map[string][]marketdata.PricePoint{}}
	holdings := &stubHoldings{tickers: []string{"AAA"}}

	service := analytics.NewService(prices, holdings, analytics.Config{
		Periodicity:     analytics.PeriodicityDaily,
		NumPoints:       8,
		MinObservations: 10,
	}, zerolog.Nop())

	router := chi.NewRouter()
	NewHandler(service, zerolog.Nop()).RegisterRoutes(router)

	req := httptest.NewRequest("GET", "/portfolio/efficient_frontier", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
