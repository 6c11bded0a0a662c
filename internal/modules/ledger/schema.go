package ledger

import (
	"database/sql"
	"fmt"
)

// Schema for the ledger database. The transaction journal is append-oriented;
// holdings and summaries are derived views computed in the service layer.
const schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS transactions (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	date    TEXT NOT NULL,
	account INTEGER NOT NULL REFERENCES accounts(id),
	ticker  TEXT NOT NULL DEFAULT '',
	action  TEXT NOT NULL CHECK (action IN ('Buy', 'Sell', 'Deposit', 'Withdrawal')),
	amount  REAL NOT NULL,
	shares  REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account);
CREATE INDEX IF NOT EXISTS idx_transactions_ticker ON transactions(ticker);
`

// EnsureSchema creates the ledger tables if they do not exist.
func EnsureSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}
