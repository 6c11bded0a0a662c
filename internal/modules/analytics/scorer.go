package analytics

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// PortfolioScorer evaluates the actual holdings against asset statistics.
// This is a pure O(n²) evaluation, not an optimization.
type PortfolioScorer struct {
	relaxed    bool
	allowShort bool
	log        zerolog.Logger
}

// NewPortfolioScorer creates a new portfolio scorer. In strict mode (the
// default) weights referencing a ticker outside the statistics universe fail
// with ErrUnknownTicker; in relaxed mode they are dropped and the remaining
// weights renormalized with a warning.
func NewPortfolioScorer(cfg Config, log zerolog.Logger) *PortfolioScorer {
	return &PortfolioScorer{
		relaxed:    cfg.RelaxedScoring,
		allowShort: cfg.AllowShort,
		log:        log.With().Str("component", "scorer").Logger(),
	}
}

// Score computes the portfolio's expected return, volatility and
// return-to-risk ratio for the given weights under the given statistics.
func (ps *PortfolioScorer) Score(stats *AssetStatistics, weights Weights) (PortfolioPoint, []Warning, error) {
	var warnings []Warning

	scored := weights
	unknown := unknownTickers(stats, weights)
	if len(unknown) > 0 {
		if !ps.relaxed {
			return PortfolioPoint{}, nil, fmt.Errorf("%w: %v", ErrUnknownTicker, unknown)
		}
		var err error
		scored, err = renormalizeKnown(stats, weights)
		if err != nil {
			return PortfolioPoint{}, nil, err
		}
		for _, ticker := range unknown {
			warnings = append(warnings, Warning{
				Kind:   WarnRenormalizedWeights,
				Ticker: ticker,
				Detail: "ticker absent from statistics universe, weight redistributed",
			})
		}
		ps.log.Warn().
			Strs("tickers", unknown).
			Msg("Renormalized weights over statistics universe")
	}

	if err := scored.Validate(ps.allowShort); err != nil {
		return PortfolioPoint{}, nil, fmt.Errorf("invalid weights: %w", err)
	}

	var expectedReturn float64
	for ticker, w := range scored {
		expectedReturn += w * stats.MeanReturn[ticker]
	}

	var variance float64
	for ti, wi := range scored {
		i, _ := stats.Index(ti)
		for tj, wj := range scored {
			j, _ := stats.Index(tj)
			variance += wi * wj * stats.Covariance[i][j]
		}
	}
	volatility := math.Sqrt(math.Max(variance, 0))

	ratio := 0.0
	if volatility > 0 {
		ratio = expectedReturn / volatility
	}

	return PortfolioPoint{
		Volatility:      volatility,
		ExpectedReturn:  expectedReturn,
		ReturnRiskRatio: ratio,
	}, warnings, nil
}

func unknownTickers(stats *AssetStatistics, weights Weights) []string {
	var unknown []string
	for _, ticker := range weights.SortedTickers() {
		if _, ok := stats.Index(ticker); !ok {
			unknown = append(unknown, ticker)
		}
	}
	return unknown
}

func renormalizeKnown(stats *AssetStatistics, weights Weights) (Weights, error) {
	known := make(Weights, len(weights))
	sum := 0.0
	for ticker, w := range weights {
		if _, ok := stats.Index(ticker); ok {
			known[ticker] = w
			sum += w
		}
	}
	if sum <= 0 {
		return nil, fmt.Errorf("%w: no weighted ticker remains in the statistics universe", ErrUnknownTicker)
	}
	for ticker := range known {
		known[ticker] /= sum
	}
	return known, nil
}
