package ledger

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// shareEpsilon absorbs floating error when deciding whether a position is
// fully closed.
const shareEpsilon = 1e-9

// PriceReader supplies current prices for valuing holdings.
type PriceReader interface {
	LatestCloses(ctx context.Context, tickers []string) (map[string]float64, error)
}

// Service derives holdings, weights and account summaries from the journal.
// All derived figures use the average-cost method: the average cost of a
// position is total buy cost over total bought shares, and realized gains are
// measured against that average.
type Service struct {
	repo   *Repository
	prices PriceReader
	log    zerolog.Logger
}

// NewService creates a new ledger service.
func NewService(repo *Repository, prices PriceReader, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		prices: prices,
		log:    log.With().Str("component", "ledger").Logger(),
	}
}

// position accumulates journal entries for one (account, ticker) pair.
type position struct {
	account      int64
	ticker       string
	buyShares    float64
	soldShares   float64
	totalCost    float64
	sellProceeds float64
}

func (p position) netShares() float64 {
	return p.buyShares - p.soldShares
}

func (p position) averageCost() float64 {
	if p.buyShares <= 0 {
		return 0
	}
	return p.totalCost / p.buyShares
}

// Holdings returns the open positions for an account (0 for all accounts).
// Positions whose shares net out to zero are omitted but still contribute
// their realized gain to summaries.
func (s *Service) Holdings(ctx context.Context, account int64) ([]Holding, error) {
	positions, err := s.positions(ctx, account)
	if err != nil {
		return nil, err
	}

	tickers := openTickers(positions)
	closes, err := s.prices.LatestCloses(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest closes: %w", err)
	}

	holdings := make([]Holding, 0, len(positions))
	for _, p := range positions {
		shares := p.netShares()
		if shares <= shareEpsilon {
			continue
		}
		avgCost := p.averageCost()
		holdings = append(holdings, Holding{
			Account:      p.account,
			Ticker:       p.ticker,
			Shares:       shares,
			AverageCost:  roundMoney(avgCost),
			BookValue:    roundMoney(avgCost * shares),
			MarketValue:  roundMoney(closes[p.ticker] * shares),
			RealizedGain: roundMoney(p.sellProceeds - p.soldShares*avgCost),
		})
	}

	sort.Slice(holdings, func(i, j int) bool {
		if holdings[i].Account != holdings[j].Account {
			return holdings[i].Account < holdings[j].Account
		}
		return holdings[i].Ticker < holdings[j].Ticker
	})
	return holdings, nil
}

// Tickers returns the distinct tickers with open positions across all
// accounts, sorted. This is the universe the analytics engine analyzes.
func (s *Service) Tickers(ctx context.Context) ([]string, error) {
	positions, err := s.positions(ctx, 0)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for _, p := range positions {
		if p.netShares() > shareEpsilon {
			seen[p.ticker] = true
		}
	}
	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers, nil
}

// Weights returns the current market-value weight of each held ticker across
// all accounts. Tickers without a price are excluded and the remaining
// weights normalized, so the result always sums to one when non-empty.
func (s *Service) Weights(ctx context.Context) (map[string]float64, error) {
	positions, err := s.positions(ctx, 0)
	if err != nil {
		return nil, err
	}

	shares := make(map[string]float64)
	for _, p := range positions {
		if n := p.netShares(); n > shareEpsilon {
			shares[p.ticker] += n
		}
	}
	if len(shares) == 0 {
		return map[string]float64{}, nil
	}

	closes, err := s.prices.LatestCloses(ctx, openTickers(positions))
	if err != nil {
		return nil, fmt.Errorf("failed to read latest closes: %w", err)
	}

	total := 0.0
	values := make(map[string]float64, len(shares))
	for ticker, n := range shares {
		close, ok := closes[ticker]
		if !ok {
			s.log.Warn().Str("ticker", ticker).Msg("No price for held ticker, excluded from weights")
			continue
		}
		v := n * close
		values[ticker] = v
		total += v
	}
	if total <= 0 {
		return map[string]float64{}, nil
	}

	weights := make(map[string]float64, len(values))
	for ticker, v := range values {
		weights[ticker] = v / total
	}
	return weights, nil
}

// AccountSummaries returns cash and position aggregates per account. Cash is
// the running balance of deposits, withdrawals, buys and sells.
func (s *Service) AccountSummaries(ctx context.Context) ([]AccountSummary, error) {
	accounts, err := s.repo.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	transactions, err := s.repo.Transactions(ctx, 0)
	if err != nil {
		return nil, err
	}

	cash := make(map[int64]float64)
	for _, t := range transactions {
		switch t.Action {
		case ActionDeposit:
			cash[t.Account] += t.Amount
		case ActionWithdrawal:
			cash[t.Account] -= t.Amount
		case ActionBuy:
			cash[t.Account] -= t.Amount
		case ActionSell:
			cash[t.Account] += t.Amount
		}
	}

	positions := accumulatePositions(transactions)
	closes, err := s.prices.LatestCloses(ctx, openTickers(positions))
	if err != nil {
		return nil, fmt.Errorf("failed to read latest closes: %w", err)
	}

	type aggregate struct {
		bookValue float64
		marketVal float64
		totalCost float64
		realized  float64
	}
	agg := make(map[int64]*aggregate)
	for _, p := range positions {
		a := agg[p.account]
		if a == nil {
			a = &aggregate{}
			agg[p.account] = a
		}
		avgCost := p.averageCost()
		a.realized += p.sellProceeds - p.soldShares*avgCost
		if shares := p.netShares(); shares > shareEpsilon {
			a.bookValue += avgCost * shares
			a.marketVal += closes[p.ticker] * shares
			a.totalCost += p.totalCost
		}
	}

	summaries := make([]AccountSummary, 0, len(accounts))
	for _, account := range accounts {
		a := agg[account.ID]
		if a == nil {
			a = &aggregate{}
		}
		unrealized := a.marketVal - a.bookValue
		unrealizedPct := 0.0
		if a.bookValue > 0 {
			unrealizedPct = unrealized / a.bookValue * 100
		}
		summaries = append(summaries, AccountSummary{
			Account:           account.ID,
			Name:              account.Name,
			Description:       account.Description,
			Cash:              roundMoney(cash[account.ID]),
			BookValue:         roundMoney(a.bookValue),
			StockMarketValue:  roundMoney(a.marketVal),
			TotalMarketValue:  roundMoney(cash[account.ID] + a.marketVal),
			TotalCost:         roundMoney(a.totalCost),
			RealizedGain:      roundMoney(a.realized),
			UnrealizedGain:    roundMoney(unrealized),
			UnrealizedGainPct: roundMoney(unrealizedPct),
		})
	}
	return summaries, nil
}

func (s *Service) positions(ctx context.Context, account int64) ([]position, error) {
	transactions, err := s.repo.Transactions(ctx, account)
	if err != nil {
		return nil, err
	}
	return accumulatePositions(transactions), nil
}

func accumulatePositions(transactions []Transaction) []position {
	type key struct {
		account int64
		ticker  string
	}
	byKey := make(map[key]*position)
	order := make([]key, 0)
	for _, t := range transactions {
		if t.Action != ActionBuy && t.Action != ActionSell {
			continue
		}
		k := key{account: t.Account, ticker: t.Ticker}
		p := byKey[k]
		if p == nil {
			p = &position{account: t.Account, ticker: t.Ticker}
			byKey[k] = p
			order = append(order, k)
		}
		switch t.Action {
		case ActionBuy:
			p.buyShares += t.Shares
			p.totalCost += t.Amount
		case ActionSell:
			p.soldShares += t.Shares
			p.sellProceeds += t.Amount
		}
	}

	positions := make([]position, 0, len(order))
	for _, k := range order {
		positions = append(positions, *byKey[k])
	}
	return positions
}

func openTickers(positions []position) []string {
	seen := make(map[string]bool)
	for _, p := range positions {
		if p.netShares() > shareEpsilon {
			seen[p.ticker] = true
		}
	}
	tickers := make([]string, 0, len(seen))
	for t := range seen {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	return tickers
}

func roundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}
