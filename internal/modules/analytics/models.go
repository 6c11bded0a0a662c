// Package analytics implements the portfolio analytics engine: per-asset
// return statistics, the mean-variance efficient frontier and scoring of the
// actual holdings against it.
package analytics

import (
	"fmt"
	"math"
	"sort"
)

// Periodicity identifies the sampling interval of the price history.
type Periodicity string

const (
	PeriodicityDaily   Periodicity = "daily"
	PeriodicityWeekly  Periodicity = "weekly"
	PeriodicityMonthly Periodicity = "monthly"
)

// PeriodsPerYear returns the annualization constant for the periodicity:
// 252 trading days, 52 weeks or 12 months.
func (p Periodicity) PeriodsPerYear() float64 {
	switch p {
	case PeriodicityWeekly:
		return 52
	case PeriodicityMonthly:
		return 12
	default:
		return 252
	}
}

// WeightSumTolerance is the floating tolerance within which a weight vector
// must sum to one.
const WeightSumTolerance = 1e-6

// Config holds the analytics engine configuration.
type Config struct {
	Periodicity        Periodicity
	AllowShort         bool
	NumPoints          int
	MinObservations    int
	ConditionThreshold float64
	LookbackDays       int
	RelaxedScoring     bool
}

// Normalize applies defaults for unset fields.
func (c Config) Normalize() Config {
	if c.Periodicity == "" {
		c.Periodicity = PeriodicityDaily
	}
	if c.NumPoints <= 0 {
		c.NumPoints = 50
	}
	if c.MinObservations <= 0 {
		c.MinObservations = 30
	}
	if c.ConditionThreshold <= 0 {
		c.ConditionThreshold = 1e6
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 1260
	}
	return c
}

// WarningKind classifies recovered, non-fatal conditions attached to results.
type WarningKind string

const (
	WarnInsufficientHistory      WarningKind = "insufficient_history"
	WarnIllConditionedCovariance WarningKind = "ill_conditioned_covariance"
	WarnSolverNonConvergence     WarningKind = "solver_non_convergence"
	WarnRenormalizedWeights      WarningKind = "renormalized_weights"
)

// Warning records a recovered condition. Local failures are absorbed and
// annotated instead of silently dropped.
type Warning struct {
	Kind   WarningKind `json:"kind"`
	Ticker string      `json:"ticker,omitempty"`
	Detail string      `json:"detail"`
}

// AssetStatistics holds annualized per-asset return statistics for one
// analyzed universe and one price snapshot. It is the single upstream input
// shared by the frontier solver and the portfolio scorer; both must be derived
// from the same instance within one run.
type AssetStatistics struct {
	// Tickers is the analyzed universe in sorted order; Covariance rows and
	// columns follow this order.
	Tickers    []string
	MeanReturn map[string]float64
	Covariance [][]float64

	Observations    int  // Aligned periodic returns per ticker
	Regularized     bool // True when shrinkage was applied to the covariance
	SnapshotVersion int64
	Warnings        []Warning

	index map[string]int
}

// buildIndex precomputes the ticker index map. Called once at construction so
// cached statistics can be read concurrently.
func (s *AssetStatistics) buildIndex() {
	s.index = make(map[string]int, len(s.Tickers))
	for i, t := range s.Tickers {
		s.index[t] = i
	}
}

// Index returns the covariance row/column index of a ticker.
func (s *AssetStatistics) Index(ticker string) (int, bool) {
	if s.index == nil {
		s.buildIndex()
	}
	i, ok := s.index[ticker]
	return i, ok
}

// MeanVector returns the expected returns in ticker order.
func (s *AssetStatistics) MeanVector() []float64 {
	mu := make([]float64, len(s.Tickers))
	for i, t := range s.Tickers {
		mu[i] = s.MeanReturn[t]
	}
	return mu
}

// TickerPoints returns each asset's own (volatility, expected return) point,
// plotted against the frontier for visual reference.
func (s *AssetStatistics) TickerPoints() []TickerPoint {
	points := make([]TickerPoint, 0, len(s.Tickers))
	for i, t := range s.Tickers {
		points = append(points, TickerPoint{
			Ticker:         t,
			Volatility:     math.Sqrt(math.Max(s.Covariance[i][i], 0)),
			ExpectedReturn: s.MeanReturn[t],
		})
	}
	return points
}

// Weights maps ticker to portfolio fraction. Valid weights are non-negative
// (unless short sales are allowed) and sum to one within WeightSumTolerance.
type Weights map[string]float64

// Validate checks the budget and sign constraints.
func (w Weights) Validate(allowShort bool) error {
	if len(w) == 0 {
		return fmt.Errorf("empty weight vector")
	}
	sum := 0.0
	for ticker, weight := range w {
		if !allowShort && weight < -WeightSumTolerance {
			return fmt.Errorf("negative weight %.6f for %s with short sales disallowed", weight, ticker)
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("weights sum to %.8f, expected 1", sum)
	}
	return nil
}

// SortedTickers returns the weight keys in sorted order.
func (w Weights) SortedTickers() []string {
	tickers := make([]string, 0, len(w))
	for t := range w {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

// FrontierPoint is one point of the efficient frontier curve.
type FrontierPoint struct {
	Volatility     float64 `json:"volatility"`
	ExpectedReturn float64 `json:"expected_return"`
}

// TickerPoint is a single asset's risk/return position.
type TickerPoint struct {
	Ticker         string  `json:"ticker"`
	Volatility     float64 `json:"volatility"`
	ExpectedReturn float64 `json:"expected_return"`
}

// PortfolioPoint is the actual holdings' risk/return position plus the derived
// return-to-risk ratio consumed by summary views.
type PortfolioPoint struct {
	Volatility      float64 `json:"volatility"`
	ExpectedReturn  float64 `json:"expected_return"`
	ReturnRiskRatio float64 `json:"return_risk_ratio"`
}

// EfficientFrontierResult is the composed output for one frontier run. Curve
// and Tickers are always derived from the same AssetStatistics snapshot.
type EfficientFrontierResult struct {
	RunID    string          `json:"run_id"`
	Curve    []FrontierPoint `json:"curve"`
	Tickers  []TickerPoint   `json:"tickers"`
	Warnings []Warning       `json:"warnings,omitempty"`
}

// OverallMetrics is the portfolio scorer's output for the actual holdings.
type OverallMetrics struct {
	RunID string `json:"run_id"`
	PortfolioPoint
	Warnings []Warning `json:"warnings,omitempty"`
}
