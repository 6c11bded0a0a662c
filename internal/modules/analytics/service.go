package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/marketdata"
)

// PriceProvider is the contract the engine requires from the price-history
// collaborator: versioned, internally consistent snapshots.
type PriceProvider interface {
	SnapshotVersion(ctx context.Context) (int64, error)
	Snapshot(ctx context.Context, universe []string, lookbackDays int) (*marketdata.Snapshot, error)
}

// HoldingsProvider is the contract the engine requires from the account
// ledger: the analyzed universe and the current-holdings weight vector.
type HoldingsProvider interface {
	Tickers(ctx context.Context) ([]string, error)
	Weights(ctx context.Context) (map[string]float64, error)
}

// Service is the analytics orchestrator. It sequences returns calculation,
// frontier solving and portfolio scoring per run, owns the statistics cache
// and guarantees that everything returned within one response derives from a
// single statistics snapshot.
type Service struct {
	prices   PriceProvider
	holdings HoldingsProvider
	returns  *ReturnsCalculator
	frontier *FrontierSolver
	scorer   *PortfolioScorer
	cache    *statsCache
	cfg      Config
	log      zerolog.Logger
}

// NewService creates a new analytics service.
func NewService(prices PriceProvider, holdings HoldingsProvider, cfg Config, log zerolog.Logger) *Service {
	cfg = cfg.Normalize()
	return &Service{
		prices:   prices,
		holdings: holdings,
		returns:  NewReturnsCalculator(cfg, log),
		frontier: NewFrontierSolver(cfg, log),
		scorer:   NewPortfolioScorer(cfg, log),
		cache:    newStatsCache(),
		cfg:      cfg,
		log:      log.With().Str("component", "analytics").Logger(),
	}
}

// EfficientFrontier traces the frontier for the current holdings universe and
// returns it together with the per-ticker reference points, all derived from
// one statistics snapshot.
func (s *Service) EfficientFrontier(ctx context.Context) (*EfficientFrontierResult, error) {
	runID := uuid.NewString()
	started := time.Now()

	stats, err := s.currentStatistics(ctx)
	if err != nil {
		return nil, err
	}

	curve, solverWarnings, err := s.frontier.SolveFrontier(ctx, stats)
	if err != nil {
		return nil, err
	}

	warnings := make([]Warning, 0, len(stats.Warnings)+len(solverWarnings))
	warnings = append(warnings, stats.Warnings...)
	warnings = append(warnings, solverWarnings...)

	s.log.Info().
		Str("run_id", runID).
		Int("curve_points", len(curve)).
		Int("num_tickers", len(stats.Tickers)).
		Int64("snapshot_version", stats.SnapshotVersion).
		Dur("duration", time.Since(started)).
		Msg("Computed efficient frontier")

	return &EfficientFrontierResult{
		RunID:    runID,
		Curve:    curve,
		Tickers:  stats.TickerPoints(),
		Warnings: warnings,
	}, nil
}

// OverallMetrics scores the actual current holdings against the same
// statistics snapshot the frontier is computed from.
func (s *Service) OverallMetrics(ctx context.Context) (*OverallMetrics, error) {
	runID := uuid.NewString()

	stats, err := s.currentStatistics(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := s.holdings.Weights(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve holdings weights: %w", err)
	}

	point, scoreWarnings, err := s.scorer.Score(stats, Weights(raw))
	if err != nil {
		return nil, err
	}

	warnings := make([]Warning, 0, len(stats.Warnings)+len(scoreWarnings))
	warnings = append(warnings, stats.Warnings...)
	warnings = append(warnings, scoreWarnings...)

	s.log.Info().
		Str("run_id", runID).
		Float64("volatility", point.Volatility).
		Float64("expected_return", point.ExpectedReturn).
		Int64("snapshot_version", stats.SnapshotVersion).
		Msg("Scored current portfolio")

	return &OverallMetrics{
		RunID:          runID,
		PortfolioPoint: point,
		Warnings:       warnings,
	}, nil
}

// TickerMetrics returns each held asset's own risk/return point.
func (s *Service) TickerMetrics(ctx context.Context) ([]TickerPoint, error) {
	stats, err := s.currentStatistics(ctx)
	if err != nil {
		return nil, err
	}
	return stats.TickerPoints(), nil
}

// RefreshCache drops cache entries computed from snapshots older than the
// current ingest revision. Called periodically by the scheduler after the
// ingestion collaborator refreshes prices.
func (s *Service) RefreshCache(ctx context.Context) error {
	version, err := s.prices.SnapshotVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to read snapshot version: %w", err)
	}
	removed := s.cache.invalidateBefore(version)
	if removed > 0 {
		s.log.Info().
			Int("removed", removed).
			Int("remaining", s.cache.size()).
			Int64("current_version", version).
			Msg("Invalidated stale statistics cache entries")
	}
	return nil
}

// currentStatistics resolves the holdings universe and returns its statistics
// for the current price snapshot.
func (s *Service) currentStatistics(ctx context.Context) (*AssetStatistics, error) {
	universe, err := s.holdings.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve holdings universe: %w", err)
	}
	if len(universe) == 0 {
		return nil, fmt.Errorf("%w: no holdings to analyze", ErrInsufficientData)
	}
	return s.Statistics(ctx, universe)
}

// Statistics returns AssetStatistics for the universe at the current price
// snapshot. Computation is cached per (universe, snapshot version) and
// coalesced so concurrent requests for the same uncached key trigger exactly
// one computation. A canceled computation never writes to the cache.
func (s *Service) Statistics(ctx context.Context, universe []string) (*AssetStatistics, error) {
	version, err := s.prices.SnapshotVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot version: %w", err)
	}

	key := statsKey{universe: hashUniverse(universe), version: version}
	if stats, ok := s.cache.get(key); ok {
		return stats, nil
	}

	v, err, _ := s.cache.group.Do(key.String(), func() (interface{}, error) {
		// Re-check under the flight: a concurrent caller may have filled the
		// entry between our miss and the Do call.
		if stats, ok := s.cache.get(key); ok {
			return stats, nil
		}
		return s.computeStatistics(ctx, universe, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*AssetStatistics), nil
}

func (s *Service) computeStatistics(ctx context.Context, universe []string, key statsKey) (*AssetStatistics, error) {
	snap, err := s.prices.Snapshot(ctx, universe, s.cfg.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("failed to read price snapshot: %w", err)
	}

	stats, err := s.returns.ComputeStatistics(snap.Series, universe)
	if err != nil {
		return nil, err
	}
	stats.SnapshotVersion = snap.Version

	// The revision may advance between the version probe and the snapshot
	// read; the snapshot's own revision wins for the cached key.
	if snap.Version != key.version {
		key = statsKey{universe: key.universe, version: snap.Version}
	}
	s.cache.put(key, stats)
	return stats, nil
}
