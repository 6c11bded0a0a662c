package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/marketdata"
)

// seriesFromReturns builds a daily price series starting at start with the
// given periodic returns applied in order.
func seriesFromReturns(start float64, startDate string, returns []float64) []marketdata.PricePoint {
	day, _ := time.Parse("2006-01-02", startDate)
	points := []marketdata.PricePoint{{Date: day.Format("2006-01-02"), Close: start}}
	price := start
	for _, r := range returns {
		day = day.AddDate(0, 0, 1)
		price *= 1 + r
		points = append(points, marketdata.PricePoint{Date: day.Format("2006-01-02"), Close: price})
	}
	return points
}

func repeatReturns(pattern []float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = pattern[i%len(pattern)]
	}
	return out
}

func testCalculator(minObs int) *ReturnsCalculator {
	return NewReturnsCalculator(Config{
		Periodicity:        PeriodicityDaily,
		MinObservations:    minObs,
		ConditionThreshold: 1e6,
	}, zerolog.Nop())
}

func TestReturnsCalculator_ConstantReturnAnnualization(t *testing.T) {
	series := map[string][]marketdata.PricePoint{
		"AAA": seriesFromReturns(100, "2024-01-01", repeatReturns([]float64{0.01}, 40)),
	}

	rc := testCalculator(10)
	stats, err := rc.ComputeStatistics(series, []string{"AAA"})
	require.NoError(t, err)
	require.Equal(t, []string{"AAA"}, stats.Tickers)

	// A constant 1% daily return annualizes to exactly 252%.
	assert.InDelta(t, 2.52, stats.MeanReturn["AAA"], 1e-9)
	assert.InDelta(t, 0.0, stats.Covariance[0][0], 1e-12, "constant returns have zero variance")
	assert.Equal(t, 40, stats.Observations)
}

func TestReturnsCalculator_AlignsOnSharedDates(t *testing.T) {
	full := seriesFromReturns(100, "2024-01-01", repeatReturns([]float64{0.01, -0.02, 0.015}, 40))
	// Drop one mid-series date for the second ticker; the shared grid must
	// exclude it for both.
	other := seriesFromReturns(50, "2024-01-01", repeatReturns([]float64{-0.005, 0.02, 0.01}, 40))
	gapped := append(append([]marketdata.PricePoint{}, other[:20]...), other[21:]...)

	series := map[string][]marketdata.PricePoint{
		"AAA": full,
		"BBB": gapped,
	}

	rc := testCalculator(10)
	stats, err := rc.ComputeStatistics(series, []string{"BBB", "AAA"})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA", "BBB"}, stats.Tickers, "universe is sorted")
	// 41 dates each, 40 shared, so 39 aligned returns.
	assert.Equal(t, 39, stats.Observations)
	assert.Len(t, stats.Covariance, 2)
	assert.InDelta(t, stats.Covariance[0][1], stats.Covariance[1][0], 1e-15, "covariance is symmetric")
}

func TestReturnsCalculator_ExcludesShortHistory(t *testing.T) {
	series := map[string][]marketdata.PricePoint{
		"AAA": seriesFromReturns(100, "2024-01-01", repeatReturns([]float64{0.01, -0.02, 0.015}, 40)),
		"BBB": seriesFromReturns(50, "2024-01-01", repeatReturns([]float64{0.01}, 3)),
	}

	rc := testCalculator(10)
	stats, err := rc.ComputeStatistics(series, []string{"AAA", "BBB"})
	require.NoError(t, err)

	assert.Equal(t, []string{"AAA"}, stats.Tickers)
	require.Len(t, stats.Warnings, 1)
	assert.Equal(t, WarnInsufficientHistory, stats.Warnings[0].Kind)
	assert.Equal(t, "BBB", stats.Warnings[0].Ticker)
}

func TestReturnsCalculator_FailsWhenNothingSurvives(t *testing.T) {
	series := map[string][]marketdata.PricePoint{
		"AAA": seriesFromReturns(100, "2024-01-01", repeatReturns([]float64{0.01}, 3)),
	}

	rc := testCalculator(10)
	_, err := rc.ComputeStatistics(series, []string{"AAA"})
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestReturnsCalculator_FailsOnEmptyUniverse(t *testing.T) {
	rc := testCalculator(10)
	_, err := rc.ComputeStatistics(map[string][]marketdata.PricePoint{}, nil)
	require.ErrorIs(t, err, ErrInsufficientData)
}

func TestReturnsCalculator_DisjointCalendars(t *testing.T) {
	// Two long series with no overlapping dates at all. The intersection loop
	// must drop one of them rather than failing outright.
	series := map[string][]marketdata.PricePoint{
		"AAA": seriesFromReturns(100, "2024-01-01", repeatReturns([]float64{0.01, -0.01}, 40)),
		"BBB": seriesFromReturns(50, "2025-06-01", repeatReturns([]float64{0.02, -0.005}, 50)),
	}

	rc := testCalculator(10)
	stats, err := rc.ComputeStatistics(series, []string{"AAA", "BBB"})
	require.NoError(t, err)
	require.Len(t, stats.Tickers, 1)
	assert.NotEmpty(t, stats.Warnings)
}

func TestReturnsCalculator_NonPositiveCloseDroppedNotZeroReturn(t *testing.T) {
	full := seriesFromReturns(100, "2024-01-01", repeatReturns([]float64{0.01}, 40))
	corrupt := seriesFromReturns(50, "2024-01-01", repeatReturns([]float64{0.01}, 40))
	corrupt[20].Close = 0

	series := map[string][]marketdata.PricePoint{
		"AAA": full,
		"BBB": corrupt,
	}

	rc := testCalculator(10)
	stats, err := rc.ComputeStatistics(series, []string{"AAA", "BBB"})
	require.NoError(t, err)

	// The bad print is a missing date for the whole universe: 40 shared dates
	// remain, so 39 returns, one of which spans the two-day gap.
	assert.Equal(t, 39, stats.Observations)

	// Both tickers follow the same 1% path, so their annualized means agree
	// exactly. A fabricated zero (or -100%) return for BBB would break this.
	assert.InDelta(t, stats.MeanReturn["AAA"], stats.MeanReturn["BBB"], 1e-12)
	gapReturn := 1.01*1.01 - 1
	expectedMean := (38*0.01 + gapReturn) / 39 * 252
	assert.InDelta(t, expectedMean, stats.MeanReturn["BBB"], 1e-9)
}

func TestReturnsCalculator_ShrinksSingularCovariance(t *testing.T) {
	base := repeatReturns([]float64{0.01, -0.02, 0.03, -0.01}, 40)
	scaled := make([]float64, len(base))
	for i, r := range base {
		scaled[i] = 2 * r
	}

	// Perfectly correlated assets make the sample covariance singular.
	series := map[string][]marketdata.PricePoint{
		"AAA": seriesFromReturns(100, "2024-01-01", base),
		"BBB": seriesFromReturns(80, "2024-01-01", scaled),
	}

	rc := testCalculator(10)
	stats, err := rc.ComputeStatistics(series, []string{"AAA", "BBB"})
	require.NoError(t, err)

	assert.True(t, stats.Regularized)
	found := false
	for _, w := range stats.Warnings {
		if w.Kind == WarnIllConditionedCovariance {
			found = true
		}
	}
	assert.True(t, found, "expected an ill-conditioned covariance warning")

	// Shrinkage must preserve symmetry and keep the matrix usable.
	for i := range stats.Covariance {
		for j := range stats.Covariance {
			assert.InDelta(t, stats.Covariance[i][j], stats.Covariance[j][i], 1e-15)
		}
	}
}

func TestReturnsCalculator_DeterministicAcrossRuns(t *testing.T) {
	series := map[string][]marketdata.PricePoint{
		"AAA": seriesFromReturns(100, "2024-01-01", repeatReturns([]float64{0.01, -0.02, 0.015}, 60)),
		"BBB": seriesFromReturns(50, "2024-01-01", repeatReturns([]float64{-0.005, 0.02, 0.01}, 60)),
	}

	rc := testCalculator(10)
	first, err := rc.ComputeStatistics(series, []string{"AAA", "BBB"})
	require.NoError(t, err)
	second, err := rc.ComputeStatistics(series, []string{"BBB", "AAA"})
	require.NoError(t, err)

	require.Equal(t, first.Tickers, second.Tickers)
	for i := range first.Covariance {
		for j := range first.Covariance {
			assert.Equal(t, first.Covariance[i][j], second.Covariance[i][j],
				fmt.Sprintf("covariance[%d][%d] differs between runs", i, j))
		}
	}
}
