package analytics

import "errors"

// Sentinel errors for run-level failures. Callers classify with errors.Is to
// distinguish "no data" from "numerically unsolvable" from "bad input".
var (
	// ErrInsufficientData means the analyzed universe is empty after
	// excluding tickers with too little aligned history.
	ErrInsufficientData = errors.New("insufficient price history for analysis")

	// ErrUnknownTicker means a weight vector references a ticker absent from
	// the statistics universe while strict matching is in effect.
	ErrUnknownTicker = errors.New("weight references ticker outside statistics universe")

	// ErrFrontierUnsolvable means no frontier grid point converged.
	ErrFrontierUnsolvable = errors.New("efficient frontier could not be solved at any target return")
)
