package analytics

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/marketdata"
)

type stubPrices struct {
	version  int64
	computes int32
	delay    time.Duration
	blocked  int32
	series   map[string][]marketdata.PricePoint
}

func (s *stubPrices) SnapshotVersion(ctx context.Context) (int64, error) {
	return atomic.LoadInt64(&s.version), nil
}

func (s *stubPrices) Snapshot(ctx context.Context, universe []string, lookbackDays int) (*marketdata.Snapshot, error) {
	atomic.AddInt32(&s.computes, 1)
	if atomic.LoadInt32(&s.blocked) == 1 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return &marketdata.Snapshot{
		Version: atomic.LoadInt64(&s.version),
		Series:  s.series,
	}, nil
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

func newTestService(prices *stubPrices, holdings *stubHoldings) *Service {
	return NewService(prices, holdings, Config{
		Periodicity:     PeriodicityDaily,
		NumPoints:       8,
		MinObservations: 10,
	}, zerolog.Nop())
}

func testPriceSeries() map[string][]marketdata.PricePoint {
	return map[string][]marketdata.PricePoint{
		"AAA": seriesFromReturns(100, "2024-01-01", repeatReturns([]float64{0.01, -0.02, 0.015}, 60)),
		"BBB": seriesFromReturns(50, "2024-01-01", repeatReturns([]float64{-0.005, 0.02, 0.01}, 60)),
	}
}

func TestService_StatisticsComputedOncePerKey(t *testing.T) {
	prices := &stubPrices{version: 1, series: testPriceSeries()}
	svc := newTestService(prices, &stubHoldings{tickers: []string{"AAA", "BBB"}})

	first, err := svc.Statistics(context.Background(), []string{"AAA", "BBB"})
	require.NoError(t, err)
	second, err := svc.Statistics(context.Background(), []string{"AAA", "BBB"})
	require.NoError(t, err)

	assert.Same(t, first, second, "repeated requests reuse the cached statistics")
	assert.Equal(t, int32(1), atomic.LoadInt32(&prices.computes))
	assert.Equal(t, int64(1), first.SnapshotVersion)
}

func TestService_VersionBumpTriggersRecompute(t *testing.T) {
	prices := &stubPrices{version: 1, series: testPriceSeries()}
	svc := newTestService(prices, &stubHoldings{tickers: []string{"AAA", "BBB"}})

	_, err := svc.Statistics(context.Background(), []string{"AAA", "BBB"})
	require.NoError(t, err)

	atomic.StoreInt64(&prices.version, 2)
	stats, err := svc.Statistics(context.Background(), []string{"AAA", "BBB"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.SnapshotVersion)
	assert.Equal(t, int32(2), atomic.LoadInt32(&prices.computes))

	// The refresh job drops the stale entry and keeps the current one.
	require.NoError(t, svc.RefreshCache(context.Background()))
	assert.Equal(t, 1, svc.cache.size())
}

func TestService_ConcurrentRequestsCoalesce(t *testing.T) {
	prices := &stubPrices{version: 1, delay: 50 * time.Millisecond, series: testPriceSeries()}
	svc := newTestService(prices, &stubHoldings{tickers: []string{"AAA", "BBB"}})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Statistics(context.Background(), []string{"AAA", "BBB"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&prices.computes),
		"concurrent misses for one key trigger exactly one computation")
}

func TestService_CancellationLeavesCacheClean(t *testing.T) {
	prices := &stubPrices{version: 1, blocked: 1, series: testPriceSeries()}
	svc := newTestService(prices, &stubHoldings{tickers: []string{"AAA", "BBB"}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.Statistics(ctx, []string{"AAA", "BBB"})
	require.Error(t, err)
	assert.Equal(t, 0, svc.cache.size(), "aborted run must not cache partial results")

	// The next request recomputes successfully.
	atomic.StoreInt32(&prices.blocked, 0)
	stats, err := svc.Statistics(context.Background(), []string{"AAA", "BBB"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.SnapshotVersion)
	assert.Equal(t, 1, svc.cache.size())
}

func TestService_EfficientFrontier(t *testing.T) {
	prices := &stubPrices{version: 1, series: testPriceSeries()}
	holdings := &stubHoldings{
		tickers: []string{"AAA", "BBB"},
		weights: map[string]float64{"AAA": 0.6, "BBB": 0.4},
	}
	svc := newTestService(prices, holdings)

	result, err := svc.EfficientFrontier(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.NotEmpty(t, result.Curve)
	require.Len(t, result.Tickers, 2)
	assert.Equal(t, "AAA", result.Tickers[0].Ticker)
	assert.Equal(t, "BBB", result.Tickers[1].Ticker)

	for i := 1; i < len(result.Curve); i++ {
		assert.GreaterOrEqual(t, result.Curve[i].Volatility, result.Curve[i-1].Volatility)
	}
}

func TestService_OverallMetricsConsistentWithStatistics(t *testing.T) {
	prices := &stubPrices{version: 1, series: testPriceSeries()}
	holdings := &stubHoldings{
		tickers: []string{"AAA", "BBB"},
		weights: map[string]float64{"AAA": 0.6, "BBB": 0.4},
	}
	svc := newTestService(prices, holdings)

	metrics, err := svc.OverallMetrics(context.Background())
	require.NoError(t, err)

	stats, err := svc.Statistics(context.Background(), []string{"AAA", "BBB"})
	require.NoError(t, err)

	expectedReturn := 0.6*stats.MeanReturn["AAA"] + 0.4*stats.MeanReturn["BBB"]
	assert.InDelta(t, expectedReturn, metrics.ExpectedReturn, 1e-12,
		"metrics derive from the same statistics snapshot")
	assert.Greater(t, metrics.Volatility, 0.0)
	assert.Equal(t, int32(1), atomic.LoadInt32(&prices.computes),
		"metrics and statistics share one computation")
}

func TestService_EmptyHoldings(t *testing.T) {
	prices := &stubPrices{version: 1, series: testPriceSeries()}
	svc := newTestService(prices, &stubHoldings{})

	_, err := svc.OverallMetrics(context.Background())
	require.ErrorIs(t, err, ErrInsufficientData)
}
