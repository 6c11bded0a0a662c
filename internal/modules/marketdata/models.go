package marketdata

// PricePoint is a single closing-price observation for one ticker.
// Dates use the YYYY-MM-DD format and are strictly increasing within a series.
type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// Snapshot is a consistent read of price history for a set of tickers.
// All series are read inside a single transaction together with the ingest
// revision, so an analytics run never observes a half-applied price refresh.
type Snapshot struct {
	Version int64
	Series  map[string][]PricePoint
}
