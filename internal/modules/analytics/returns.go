package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/marketdata"
)

// ReturnsCalculator converts raw price history into an expected-return vector
// and a return-covariance matrix, both in annual units.
type ReturnsCalculator struct {
	periodicity        Periodicity
	minObservations    int
	conditionThreshold float64
	log                zerolog.Logger
}

// NewReturnsCalculator creates a new returns calculator.
func NewReturnsCalculator(cfg Config, log zerolog.Logger) *ReturnsCalculator {
	cfg = cfg.Normalize()
	return &ReturnsCalculator{
		periodicity:        cfg.Periodicity,
		minObservations:    cfg.MinObservations,
		conditionThreshold: cfg.ConditionThreshold,
		log:                log.With().Str("component", "returns").Logger(),
	}
}

// ComputeStatistics builds AssetStatistics for the given universe from the
// price series. Tickers without enough aligned history are excluded with a
// warning; an empty resulting universe is fatal (ErrInsufficientData).
//
// Alignment policy: the return matrix is built on the intersection of
// available dates across the included tickers, so a period missing for any
// ticker is dropped for all of them. A non-positive close counts as missing,
// not as a zero return. Simple (not log) periodic returns.
func (rc *ReturnsCalculator) ComputeStatistics(series map[string][]marketdata.PricePoint, universe []string) (*AssetStatistics, error) {
	var warnings []Warning

	series = rc.dropNonPositiveCloses(series, universe)

	// First pass: drop tickers that cannot possibly reach minObservations.
	included := make([]string, 0, len(universe))
	for _, ticker := range sortedCopy(universe) {
		if len(series[ticker]) < rc.minObservations+1 {
			warnings = append(warnings, Warning{
				Kind:   WarnInsufficientHistory,
				Ticker: ticker,
				Detail: fmt.Sprintf("%d observations, need at least %d", len(series[ticker]), rc.minObservations+1),
			})
			rc.log.Warn().
				Str("ticker", ticker).
				Int("observations", len(series[ticker])).
				Int("min_observations", rc.minObservations).
				Msg("Excluding ticker with insufficient history")
			continue
		}
		included = append(included, ticker)
	}

	// Second pass: the date intersection can still be too short when ticker
	// calendars barely overlap. Drop the ticker with the fewest dates until
	// the shared time base is long enough.
	var dates []string
	for {
		if len(included) == 0 {
			return nil, fmt.Errorf("%w: no ticker has %d aligned observations", ErrInsufficientData, rc.minObservations)
		}
		dates = intersectDates(series, included)
		if len(dates) >= rc.minObservations+1 {
			break
		}
		shortest := shortestSeries(series, included)
		warnings = append(warnings, Warning{
			Kind:   WarnInsufficientHistory,
			Ticker: shortest,
			Detail: fmt.Sprintf("only %d dates shared across universe, need %d", len(dates), rc.minObservations+1),
		})
		rc.log.Warn().
			Str("ticker", shortest).
			Int("shared_dates", len(dates)).
			Msg("Excluding ticker that shrinks the shared time base")
		included = removeTicker(included, shortest)
	}

	returns := alignedReturns(series, included, dates)
	observations := len(dates) - 1

	periodsPerYear := rc.periodicity.PeriodsPerYear()
	n := len(included)

	meanReturn := make(map[string]float64, n)
	for _, ticker := range included {
		meanReturn[ticker] = stat.Mean(returns[ticker], nil) * periodsPerYear
	}

	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := stat.Covariance(returns[included[i]], returns[included[j]], nil) * periodsPerYear
			cov[i][j] = c
			cov[j][i] = c
		}
	}

	regularized := false
	cond := conditionNumber(cov)
	if cond > rc.conditionThreshold || observations < n {
		cov = shrinkCovariance(cov)
		regularized = true
		warnings = append(warnings, Warning{
			Kind:   WarnIllConditionedCovariance,
			Detail: fmt.Sprintf("condition number %.3g with %d observations for %d assets, applied shrinkage", cond, observations, n),
		})
		rc.log.Warn().
			Float64("condition_number", cond).
			Int("observations", observations).
			Int("num_assets", n).
			Msg("Covariance ill-conditioned, applied shrinkage toward constant-correlation target")
	}

	rc.log.Info().
		Int("num_assets", n).
		Int("observations", observations).
		Bool("regularized", regularized).
		Msg("Computed asset statistics")

	stats := &AssetStatistics{
		Tickers:      included,
		MeanReturn:   meanReturn,
		Covariance:   cov,
		Observations: observations,
		Regularized:  regularized,
		Warnings:     warnings,
	}
	stats.buildIndex()
	return stats, nil
}

// dropNonPositiveCloses removes observations with a non-positive close. A bad
// print becomes a missing date for that ticker, which the date intersection
// then excludes for the whole universe.
func (rc *ReturnsCalculator) dropNonPositiveCloses(series map[string][]marketdata.PricePoint, universe []string) map[string][]marketdata.PricePoint {
	out := make(map[string][]marketdata.PricePoint, len(universe))
	for _, ticker := range universe {
		points := series[ticker]
		kept := make([]marketdata.PricePoint, 0, len(points))
		for _, p := range points {
			if p.Close > 0 {
				kept = append(kept, p)
			}
		}
		if len(kept) < len(points) {
			rc.log.Warn().
				Str("ticker", ticker).
				Int("dropped", len(points)-len(kept)).
				Msg("Dropped observations with non-positive close")
		}
		out[ticker] = kept
	}
	return out
}

// intersectDates returns the sorted dates present in every included series.
func intersectDates(series map[string][]marketdata.PricePoint, included []string) []string {
	counts := make(map[string]int)
	for _, ticker := range included {
		for _, p := range series[ticker] {
			counts[p.Date]++
		}
	}
	var dates []string
	for date, count := range counts {
		if count == len(included) {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates
}

// alignedReturns computes simple periodic returns on the shared date grid.
func alignedReturns(series map[string][]marketdata.PricePoint, included []string, dates []string) map[string][]float64 {
	dateSet := make(map[string]bool, len(dates))
	for _, d := range dates {
		dateSet[d] = true
	}

	returns := make(map[string][]float64, len(included))
	for _, ticker := range included {
		prices := make([]float64, 0, len(dates))
		for _, p := range series[ticker] {
			if dateSet[p.Date] {
				prices = append(prices, p.Close)
			}
		}
		r := make([]float64, len(prices)-1)
		for i := 1; i < len(prices); i++ {
			r[i-1] = prices[i]/prices[i-1] - 1
		}
		returns[ticker] = r
	}
	return returns
}

func shortestSeries(series map[string][]marketdata.PricePoint, included []string) string {
	shortest := included[0]
	for _, ticker := range included[1:] {
		if len(series[ticker]) < len(series[shortest]) {
			shortest = ticker
		}
	}
	return shortest
}

func removeTicker(tickers []string, drop string) []string {
	out := tickers[:0]
	for _, t := range tickers {
		if t != drop {
			out = append(out, t)
		}
	}
	return out
}

func sortedCopy(tickers []string) []string {
	out := make([]string, len(tickers))
	copy(out, tickers)
	sort.Strings(out)
	return out
}

// conditionNumber returns the 2-norm condition number of the matrix.
func conditionNumber(cov [][]float64) float64 {
	n := len(cov)
	if n == 0 {
		return 0
	}
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, cov[i][j])
		}
	}
	return mat.Cond(m, 2)
}

// shrinkCovariance shrinks the sample covariance matrix toward a
// constant-correlation target to improve conditioning. Deterministic for
// identical inputs.
//
// Reference: Ledoit, O., & Wolf, M. (2004). "A well-conditioned estimator for
// large-dimensional covariance matrices"
func shrinkCovariance(sampleCov [][]float64) [][]float64 {
	n := len(sampleCov)
	if n == 0 {
		return sampleCov
	}
	if n == 1 {
		return sampleCov
	}

	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sampleCov[i][i]
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sampleCov[i][j]
			}
		}
	}
	avgVar /= float64(n)
	avgCov /= float64(n * (n - 1))

	target := func(i, j int) float64 {
		if i == j {
			return avgVar
		}
		if avgVar > 0 {
			return avgCov
		}
		return 0
	}

	// Shrinkage intensity: ratio of dispersion of sample elements to their
	// distance from the target, clamped to [0.05, 0.5].
	var sumSqDiff, sumSample, sumSqSample float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			diff := sampleCov[i][j] - target(i, j)
			sumSqDiff += diff * diff
			sumSample += sampleCov[i][j]
			sumSqSample += sampleCov[i][j] * sampleCov[i][j]
		}
	}
	count := float64(n * n)
	meanSqDiff := sumSqDiff / count
	meanSample := sumSample / count
	varSample := sumSqSample/count - meanSample*meanSample

	shrinkage := 0.2
	if varSample > 0 && meanSqDiff > 0 {
		shrinkage = math.Min(0.5, math.Max(0.05, varSample/(varSample+meanSqDiff)))
	}

	shrunk := make([][]float64, n)
	for i := 0; i < n; i++ {
		shrunk[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			shrunk[i][j] = (1-shrinkage)*sampleCov[i][j] + shrinkage*target(i, j)
		}
	}
	return shrunk
}
