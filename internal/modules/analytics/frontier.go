package analytics

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"
)

// degenerateReturnSpread is the spread below which the feasible return range
// collapses to a single frontier point.
const degenerateReturnSpread = 1e-9

// FrontierSolver traces the minimum-variance frontier across the feasible
// return range of a universe.
//
// Each grid point solves the convex QP
//
//	minimize  wᵀΣw
//	subject to  Σw = 1, w·μ = μ_target, w ≥ 0 (unless shorts are allowed)
//
// via a penalty formulation on gonum's optimizers: BFGS from an equal-weight
// start with a Nelder-Mead fallback, bound projection inside the objective and
// a final normalization of the weight vector. Deterministic for identical
// inputs.
type FrontierSolver struct {
	numPoints  int
	allowShort bool
	log        zerolog.Logger

	// solve performs one QP; swapped out in tests to exercise failure paths.
	solve func(mu []float64, sigma [][]float64, targetReturn *float64) ([]float64, error)
}

// NewFrontierSolver creates a new frontier solver.
func NewFrontierSolver(cfg Config, log zerolog.Logger) *FrontierSolver {
	cfg = cfg.Normalize()
	fs := &FrontierSolver{
		numPoints:  cfg.NumPoints,
		allowShort: cfg.AllowShort,
		log:        log.With().Str("component", "frontier").Logger(),
	}
	fs.solve = fs.solveQP
	return fs
}

// SolveFrontier computes the efficient frontier for the statistics. The curve
// is ordered by increasing expected return with volatility non-decreasing
// above the minimum-variance point. Grid points whose solve does not converge
// are skipped with a warning; if every point fails the run fails with
// ErrFrontierUnsolvable. The context is checked between grid points so a
// long solve can be aborted per-request.
func (fs *FrontierSolver) SolveFrontier(ctx context.Context, stats *AssetStatistics) ([]FrontierPoint, []Warning, error) {
	n := len(stats.Tickers)
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: empty universe", ErrInsufficientData)
	}

	mu := stats.MeanVector()
	sigma := stats.Covariance

	// Global minimum-variance portfolio anchors the bottom of the grid.
	wMin, err := fs.solve(mu, sigma, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: minimum-variance solve failed: %v", ErrFrontierUnsolvable, err)
	}
	muMin := dot(wMin, mu)
	volMin := portfolioVolatility(wMin, sigma)

	// Maximum feasible return: everything in the single highest-mean asset.
	muMax := mu[0]
	for _, m := range mu[1:] {
		if m > muMax {
			muMax = m
		}
	}

	if muMax-muMin <= degenerateReturnSpread {
		// Degenerate universe (single asset or identical means).
		return []FrontierPoint{{Volatility: volMin, ExpectedReturn: muMin}}, nil, nil
	}

	var warnings []Warning
	points := make([]FrontierPoint, 0, fs.numPoints)
	for i := 0; i < fs.numPoints; i++ {
		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		default:
		}

		target := muMin
		if fs.numPoints > 1 {
			target = muMin + (muMax-muMin)*float64(i)/float64(fs.numPoints-1)
		}

		w, err := fs.solve(mu, sigma, &target)
		if err != nil {
			warnings = append(warnings, Warning{
				Kind:   WarnSolverNonConvergence,
				Detail: fmt.Sprintf("target return %.6f: %v", target, err),
			})
			fs.log.Warn().
				Float64("target_return", target).
				Err(err).
				Msg("Frontier point did not converge, skipping")
			continue
		}
		points = append(points, FrontierPoint{
			Volatility:     portfolioVolatility(w, sigma),
			ExpectedReturn: dot(w, mu),
		})
	}

	if len(points) == 0 {
		return nil, warnings, fmt.Errorf("%w: all %d grid points failed", ErrFrontierUnsolvable, fs.numPoints)
	}

	sortByReturn(points)
	enforceMonotoneVolatility(points)

	fs.log.Debug().
		Int("num_points", len(points)).
		Float64("mu_min", muMin).
		Float64("mu_max", muMax).
		Msg("Solved efficient frontier")

	return points, warnings, nil
}

// MinimumVariancePortfolio solves the frontier QP with the return constraint
// dropped and returns the resulting weights in ticker order.
func (fs *FrontierSolver) MinimumVariancePortfolio(stats *AssetStatistics) (Weights, error) {
	w, err := fs.solve(stats.MeanVector(), stats.Covariance, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrontierUnsolvable, err)
	}
	weights := make(Weights, len(stats.Tickers))
	for i, ticker := range stats.Tickers {
		weights[ticker] = w[i]
	}
	return weights, nil
}

// solveQP minimizes wᵀΣw subject to Σw=1 and, when targetReturn is non-nil,
// w·μ=target. Bounds are enforced by projection, the equality constraints by
// quadratic penalties.
func (fs *FrontierSolver) solveQP(mu []float64, sigma [][]float64, targetReturn *float64) ([]float64, error) {
	n := len(mu)
	lower, upper := 0.0, 1.0
	if fs.allowShort {
		lower = -1.0
	}

	const penaltyWeight = 1000.0

	project := func(x []float64) []float64 {
		proj := make([]float64, n)
		for i := range x {
			proj[i] = math.Max(lower, math.Min(upper, x[i]))
		}
		return proj
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xp := project(x)

			var variance float64
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					variance += xp[i] * xp[j] * sigma[i][j]
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xp[i]
			}

			obj := variance
			obj += penaltyWeight * (sum - 1.0) * (sum - 1.0)

			if targetReturn != nil {
				ret := dot(xp, mu)
				obj += penaltyWeight * (ret - *targetReturn) * (ret - *targetReturn)
			}
			return obj
		},
		Grad: func(grad, x []float64) {
			xp := project(x)

			for i := 0; i < n; i++ {
				grad[i] = 0
				for j := 0; j < n; j++ {
					grad[i] += 2 * sigma[i][j] * xp[j]
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xp[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * penaltyWeight * (sum - 1.0)
			}

			if targetReturn != nil {
				ret := dot(xp, mu)
				for i := 0; i < n; i++ {
					grad[i] += 2 * penaltyWeight * (ret - *targetReturn) * mu[i]
				}
			}
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("optimization failed: %w", err)
		}
		if !converged(result.Status) {
			return nil, fmt.Errorf("optimization did not converge: status=%v", result.Status)
		}
	}

	// Project the solution to bounds, clip negatives when shorts are
	// disallowed and renormalize the budget exactly.
	final := project(result.X)
	if !fs.allowShort {
		for i := range final {
			final[i] = math.Max(0, final[i])
		}
	}
	sum := 0.0
	for _, w := range final {
		sum += w
	}
	if math.Abs(sum) < 1e-10 {
		return nil, fmt.Errorf("degenerate solution: weights sum to %v", sum)
	}
	for i := range final {
		final[i] /= sum
	}

	return final, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence, optimize.StepConvergence:
		return true
	}
	return false
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func portfolioVolatility(w []float64, sigma [][]float64) float64 {
	var variance float64
	for i := range w {
		for j := range w {
			variance += w[i] * w[j] * sigma[i][j]
		}
	}
	return math.Sqrt(math.Max(variance, 0))
}

func sortByReturn(points []FrontierPoint) {
	// Insertion sort keeps the common nearly-sorted case cheap and avoids an
	// unstable ordering for ties.
	for i := 1; i < len(points); i++ {
		p := points[i]
		j := i - 1
		for j >= 0 && points[j].ExpectedReturn > p.ExpectedReturn {
			points[j+1] = points[j]
			j--
		}
		points[j+1] = p
	}
}

// enforceMonotoneVolatility clamps numerical noise so volatility never
// decreases along the return-ordered curve. The grid starts at the global
// minimum-variance return, so the whole curve sits on the efficient branch.
func enforceMonotoneVolatility(points []FrontierPoint) {
	for i := 1; i < len(points); i++ {
		if points[i].Volatility < points[i-1].Volatility {
			points[i].Volatility = points[i-1].Volatility
		}
	}
}
