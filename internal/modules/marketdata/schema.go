package marketdata

import (
	"database/sql"
	"fmt"
)

// Schema for the market database. daily_prices is written by the price
// ingestion collaborator; ingest_revision is bumped once per completed refresh
// and drives analytics cache invalidation.
const schema = `
CREATE TABLE IF NOT EXISTS daily_prices (
	ticker TEXT NOT NULL,
	date   TEXT NOT NULL,
	close  REAL NOT NULL,
	PRIMARY KEY (ticker, date)
);

CREATE INDEX IF NOT EXISTS idx_daily_prices_date ON daily_prices(date);

CREATE TABLE IF NOT EXISTS ingest_revision (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	revision   INTEGER NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// EnsureSchema creates the market data tables if they do not exist.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create market data schema: %w", err)
	}
	return nil
}
