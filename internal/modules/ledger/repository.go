package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
)

// Repository provides access to accounts and the transaction journal.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("component", "ledger").Logger(),
	}
}

// Accounts returns all accounts ordered by id.
func (r *Repository) Accounts(ctx context.Context) ([]Account, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, description FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]Account, 0)
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Description); err != nil {
			return nil, fmt.Errorf("failed to scan account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// AccountByID returns one account, or sql.ErrNoRows when it does not exist.
func (r *Repository) AccountByID(ctx context.Context, id int64) (*Account, error) {
	var a Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Description)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a new account and returns it with its assigned id.
func (r *Repository) CreateAccount(ctx context.Context, name, description string) (*Account, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (name, description) VALUES (?, ?)`, name, description)
	if err != nil {
		return nil, fmt.Errorf("failed to insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted account id: %w", err)
	}
	r.log.Info().Int64("account_id", id).Str("name", name).Msg("Created account")
	return &Account{ID: id, Name: name, Description: description}, nil
}

// Transactions returns journal entries ordered by date then id, optionally
// filtered by account (0 means all accounts).
func (r *Repository) Transactions(ctx context.Context, account int64) ([]Transaction, error) {
	query := `SELECT id, date, account, ticker, action, amount, shares FROM transactions`
	args := []interface{}{}
	if account != 0 {
		query += ` WHERE account = ?`
		args = append(args, account)
	}
	query += ` ORDER BY date ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]Transaction, 0)
	for rows.Next() {
		var t Transaction
		if err := rows.Scan(&t.ID, &t.Date, &t.Account, &t.Ticker, &t.Action, &t.Amount, &t.Shares); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}

// AddTransaction appends one journal entry and returns its assigned id.
func (r *Repository) AddTransaction(ctx context.Context, t Transaction) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (date, account, ticker, action, amount, shares)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Date, t.Account, t.Ticker, t.Action, t.Amount, t.Shares)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted transaction id: %w", err)
	}
	r.log.Info().
		Int64("transaction_id", id).
		Int64("account", t.Account).
		Str("action", t.Action).
		Str("ticker", t.Ticker).
		Msg("Recorded transaction")
	return id, nil
}

// DeleteTransaction removes one journal entry.
func (r *Repository) DeleteTransaction(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
