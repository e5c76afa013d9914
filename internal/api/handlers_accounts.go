package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type openCurrentAccountRequest struct {
	ClientID       int64           `json:"client_id" validate:"required,gt=0"`
	Balance        decimal.Decimal `json:"balance"`
	OverdraftLimit decimal.Decimal `json:"overdraft_limit"`
}

type openSavingsAccountRequest struct {
	ClientID     int64           `json:"client_id" validate:"required,gt=0"`
	Balance      decimal.Decimal `json:"balance"`
	InterestRate decimal.Decimal `json:"interest_rate"`
}

type overdraftLimitRequest struct {
	OverdraftLimit decimal.Decimal `json:"overdraft_limit"`
}

type interestRateRequest struct {
	InterestRate decimal.Decimal `json:"interest_rate"`
}

type canWithdrawResponse struct {
	AccountID   int64           `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	CanWithdraw bool            `json:"can_withdraw"`
}

type totalResponse struct {
	AccountID int64           `json:"account_id"`
	Total     decimal.Decimal `json:"total"`
}

// OpenCurrentAccountHandler handles POST /v1/accounts/current.
func (h *Handlers) OpenCurrentAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req openCurrentAccountRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	account, err := h.service.OpenCurrentAccount(r.Context(), req.ClientID, req.Balance, req.OverdraftLimit)
	if err != nil {
		h.writeServiceError(w, "open_current_account", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// OpenSavingsAccountHandler handles POST /v1/accounts/savings.
func (h *Handlers) OpenSavingsAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req openSavingsAccountRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	account, err := h.service.OpenSavingsAccount(r.Context(), req.ClientID, req.Balance, req.InterestRate)
	if err != nil {
		h.writeServiceError(w, "open_savings_account", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// ListAccountsHandler handles GET /v1/accounts.
func (h *Handlers) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.writeServiceError(w, "list_accounts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// GetAccountHandler handles GET /v1/accounts/{id}.
func (h *Handlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "get_account", err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// GetAccountByNumberHandler handles GET /v1/accounts/by-number/{number}.
func (h *Handlers) GetAccountByNumberHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.GetAccountByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		h.writeServiceError(w, "get_account_by_number", err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// SetOverdraftLimitHandler handles PUT /v1/accounts/{id}/overdraft-limit.
func (h *Handlers) SetOverdraftLimitHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req overdraftLimitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	account, err := h.service.SetOverdraftLimit(r.Context(), id, req.OverdraftLimit)
	if err != nil {
		h.writeServiceError(w, "set_overdraft_limit", err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// SetInterestRateHandler handles PUT /v1/accounts/{id}/interest-rate.
func (h *Handlers) SetInterestRateHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req interestRateRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	account, err := h.service.SetInterestRate(r.Context(), id, req.InterestRate)
	if err != nil {
		h.writeServiceError(w, "set_interest_rate", err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// DeleteAccountHandler handles DELETE /v1/accounts/{id}.
func (h *Handlers) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteAccount(r.Context(), id); err != nil {
		h.writeServiceError(w, "delete_account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AccountTransactionsHandler handles GET /v1/accounts/{id}/transactions.
func (h *Handlers) AccountTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	txs, err := h.service.AccountTransactions(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "account_transactions", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// AccountTransactionTotalHandler handles GET /v1/accounts/{id}/transactions/total.
func (h *Handlers) AccountTransactionTotalHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	total, err := h.service.AccountTransactionTotal(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "account_transaction_total", err)
		return
	}
	h.writeJSON(w, http.StatusOK, totalResponse{AccountID: id, Total: total})
}

// CanWithdrawHandler handles GET /v1/accounts/{id}/can-withdraw?amount=.
func (h *Handlers) CanWithdrawHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	amount, ok := h.queryDecimal(w, r, "amount")
	if !ok {
		return
	}
	if amount == nil {
		h.writeError(w, http.StatusBadRequest, "amount is required")
		return
	}
	allowed, err := h.service.CanWithdraw(r.Context(), id, *amount)
	if err != nil {
		h.writeServiceError(w, "can_withdraw", err)
		return
	}
	h.writeJSON(w, http.StatusOK, canWithdrawResponse{AccountID: id, Amount: *amount, CanWithdraw: allowed})
}

// BurstHandler handles GET /v1/accounts/{id}/anomalies/burst.
func (h *Handlers) BurstHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	txs, err := h.service.BurstForAccount(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, "account_burst", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}
