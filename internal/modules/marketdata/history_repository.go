// Package marketdata provides read access to the price-history store owned by
// the ingestion collaborator. The analytics engine only ever sees aligned,
// versioned snapshots produced here.
package marketdata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// HistoryRepository reads price history and ingest revisions.
type HistoryRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewHistoryRepository creates a new price-history repository.
func NewHistoryRepository(db *sql.DB, log zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:  db,
		log: log.With().Str("component", "marketdata").Logger(),
	}
}

// SnapshotVersion returns the current ingest revision. Zero means no price
// refresh has ever been recorded.
func (r *HistoryRepository) SnapshotVersion(ctx context.Context) (int64, error) {
	var revision int64
	err := r.db.QueryRowContext(ctx, `SELECT revision FROM ingest_revision WHERE id = 1`).Scan(&revision)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query ingest revision: %w", err)
	}
	return revision, nil
}

// Snapshot reads the price series for every ticker in universe inside a single
// read transaction, together with the revision active at that moment. This is
// what gives analytics runs read-snapshot isolation even if the ingestion
// collaborator writes new prices mid-computation.
func (r *HistoryRepository) Snapshot(ctx context.Context, universe []string, lookbackDays int) (*Snapshot, error) {
	if len(universe) == 0 {
		return nil, fmt.Errorf("no tickers provided")
	}

	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx, `SELECT revision FROM ingest_revision WHERE id = 1`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query ingest revision: %w", err)
	}

	startDate := time.Now().UTC().AddDate(0, 0, -lookbackDays).Format("2006-01-02")

	series := make(map[string][]PricePoint, len(universe))
	for _, ticker := range universe {
		points, err := readSeries(ctx, tx, ticker, startDate)
		if err != nil {
			return nil, fmt.Errorf("failed to read price series for %s: %w", ticker, err)
		}
		series[ticker] = points
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit snapshot transaction: %w", err)
	}

	r.log.Debug().
		Int("num_tickers", len(universe)).
		Int64("revision", version).
		Str("start_date", startDate).
		Msg("Read price snapshot")

	return &Snapshot{Version: version, Series: series}, nil
}

func readSeries(ctx context.Context, tx *sql.Tx, ticker, startDate string) ([]PricePoint, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT date, close FROM daily_prices WHERE ticker = ? AND date >= ? ORDER BY date ASC`,
		ticker, startDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// PriceSeries reads a single ticker's series outside any snapshot. Used by
// callers that do not need cross-ticker consistency.
func (r *HistoryRepository) PriceSeries(ctx context.Context, ticker string, lookbackDays int) ([]PricePoint, error) {
	startDate := time.Now().UTC().AddDate(0, 0, -lookbackDays).Format("2006-01-02")

	rows, err := r.db.QueryContext(ctx,
		`SELECT date, close FROM daily_prices WHERE ticker = ? AND date >= ? ORDER BY date ASC`,
		ticker, startDate)
	if err != nil {
		return nil, fmt.Errorf("failed to query price series for %s: %w", ticker, err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.Date, &p.Close); err != nil {
			return nil, fmt.Errorf("failed to scan price row: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// LatestCloses returns the most recent closing price for each requested
// ticker. Tickers without any price history are simply absent from the result.
func (r *HistoryRepository) LatestCloses(ctx context.Context, tickers []string) (map[string]float64, error) {
	closes := make(map[string]float64, len(tickers))
	for _, ticker := range tickers {
		var close float64
		err := r.db.QueryRowContext(ctx,
			`SELECT close FROM daily_prices WHERE ticker = ? ORDER BY date DESC LIMIT 1`,
			ticker).Scan(&close)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query latest close for %s: %w", ticker, err)
		}
		closes[ticker] = close
	}
	return closes, nil
}
