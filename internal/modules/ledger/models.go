// Package ledger implements the account ledger: accounts, the transaction
// journal and the holdings/summary views derived from it.
package ledger

// Transaction actions. Buy and Sell move shares, Deposit and Withdrawal move
// cash only.
const (
	ActionBuy        = "Buy"
	ActionSell       = "Sell"
	ActionDeposit    = "Deposit"
	ActionWithdrawal = "Withdrawal"
)

// Account is a brokerage or registered account transactions belong to.
type Account struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Transaction is one journal entry. Amount is the cash amount of the entry;
// Shares is zero for pure cash actions.
type Transaction struct {
	ID      int64   `json:"id"`
	Date    string  `json:"date"` // 2006-01-02
	Account int64   `json:"account"`
	Ticker  string  `json:"ticker,omitempty"`
	Action  string  `json:"action"`
	Amount  float64 `json:"amount"`
	Shares  float64 `json:"shares"`
}

// Holding is the derived position for one (account, ticker) pair with open
// shares. Cost figures use the average-cost method over all buys.
type Holding struct {
	Account      int64   `json:"account"`
	Ticker       string  `json:"ticker"`
	Shares       float64 `json:"shares"`
	AverageCost  float64 `json:"average_cost"`
	BookValue    float64 `json:"book_value"`
	MarketValue  float64 `json:"market_value,omitempty"`
	RealizedGain float64 `json:"realized_gain"`
}

// AccountSummary aggregates one account's cash and position values.
type AccountSummary struct {
	Account           int64   `json:"account"`
	Name              string  `json:"name"`
	Description       string  `json:"description,omitempty"`
	Cash              float64 `json:"cash"`
	BookValue         float64 `json:"book_value"`
	StockMarketValue  float64 `json:"stock_market_value"`
	TotalMarketValue  float64 `json:"total_market_value"`
	TotalCost         float64 `json:"total_cost"`
	RealizedGain      float64 `json:"realized_gain"`
	UnrealizedGain    float64 `json:"unrealized_gain"`
	UnrealizedGainPct float64 `json:"unrealized_gain_pct"`
}
