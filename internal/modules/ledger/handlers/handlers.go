// Package handlers provides HTTP handlers for ledger operations.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/elvistkf/FIRE-portfolio-management/internal/modules/ledger"
)

// Handler handles ledger HTTP requests
type Handler struct {
	repo    *ledger.Repository
	service *ledger.Service
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(repo *ledger.Repository, service *ledger.Service, log zerolog.Logger) *Handler {
	return &Handler{
		repo:    repo,
		service: service,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetAccounts handles GET /api/accounts
func (h *Handler) HandleGetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.repo.Accounts(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query accounts")
		http.Error(w, "Failed to query accounts", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// HandleCreateAccount handles POST /api/accounts
func (h *Handler) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Account name is required", http.StatusBadRequest)
		return
	}

	account, err := h.repo.CreateAccount(r.Context(), req.Name, req.Description)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to create account")
		http.Error(w, "Failed to create account", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// HandleGetTransactions handles GET /api/transactions
func (h *Handler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	var account int64
	if accountStr := r.URL.Query().Get("account"); accountStr != "" {
		parsed, err := strconv.ParseInt(accountStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid account ID", http.StatusBadRequest)
			return
		}
		account = parsed
	}

	transactions, err := h.repo.Transactions(r.Context(), account)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		http.Error(w, "Failed to query transactions", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// HandleAddTransaction handles POST /api/transactions
func (h *Handler) HandleAddTransaction(w http.ResponseWriter, r *http.Request) {
	var t ledger.Transaction
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := validateTransaction(t); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.repo.AddTransaction(r.Context(), t)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to record transaction")
		http.Error(w, "Failed to record transaction", http.StatusInternalServerError)
		return
	}
	t.ID = id
	h.writeJSON(w, http.StatusCreated, t)
}

// HandleDeleteTransaction handles DELETE /api/transactions/{id}
func (h *Handler) HandleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid transaction ID", http.StatusBadRequest)
		return
	}

	err = h.repo.DeleteTransaction(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "Transaction not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to delete transaction")
		http.Error(w, "Failed to delete transaction", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetHoldings handles GET /api/portfolio
func (h *Handler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	var account int64
	if accountStr := r.URL.Query().Get("account"); accountStr != "" {
		parsed, err := strconv.ParseInt(accountStr, 10, 64)
		if err != nil {
			http.Error(w, "Invalid account ID", http.StatusBadRequest)
			return
		}
		account = parsed
	}

	holdings, err := h.service.Holdings(r.Context(), account)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute holdings")
		http.Error(w, "Failed to compute holdings", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"holdings": holdings,
		"count":    len(holdings),
	})
}

// HandleGetSummary handles GET /api/portfolio/summary
func (h *Handler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.AccountSummaries(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute account summaries")
		http.Error(w, "Failed to compute account summaries", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": summaries,
		"count":    len(summaries),
	})
}

func validateTransaction(t ledger.Transaction) error {
	if _, err := time.Parse("2006-01-02", t.Date); err != nil {
		return errors.New("date must be formatted as YYYY-MM-DD")
	}
	if t.Account == 0 {
		return errors.New("account is required")
	}
	switch t.Action {
	case ledger.ActionBuy, ledger.ActionSell:
		if t.Ticker == "" {
			return errors.New("ticker is required for Buy and Sell")
		}
		if t.Shares <= 0 {
			return errors.New("shares must be positive for Buy and Sell")
		}
	case ledger.ActionDeposit, ledger.ActionWithdrawal:
		if t.Shares != 0 {
			return errors.New("shares must be zero for cash actions")
		}
	default:
		return errors.New("action must be one of Buy, Sell, Deposit, Withdrawal")
	}
	if t.Amount < 0 {
		return errors.New("amount must be non-negative")
	}
	return nil
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
