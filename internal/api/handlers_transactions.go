package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/app"
	"github.com/solubank/ledger-service/internal/domain"
)

type recordTransactionRequest struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      string          `json:"kind" validate:"required"`
	Location  string          `json:"location" validate:"max=255"`
}

// RecordTransactionHandler handles POST /v1/transactions.
func (h *Handlers) RecordTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req recordTransactionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}
	kind, err := domain.ParseTransactionKind(req.Kind)
	if err != nil {
		h.writeServiceError(w, "record_transaction", err)
		return
	}

	tx, err := h.service.RecordTransaction(r.Context(), app.RecordTransactionRequest{
		AccountID: req.AccountID,
		Amount:    req.Amount,
		Kind:      kind,
		Location:  strings.TrimSpace(req.Location),
	})
	if err != nil {
		h.writeServiceError(w, "record_transaction", err)
		return
	}
	h.logger.Info("transaction accepted",
		zap.Int64("transaction_id", tx.ID),
		zap.Int64("account_id", tx.AccountID),
		zap.String("operator", operatorFromContext(r.Context())),
	)
	h.writeJSON(w, http.StatusCreated, tx)
}

// ListTransactionsHandler handles GET /v1/transactions with one of the filters
// ?kind=, ?min=&max=, ?from=&to= or ?location=.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter app.TransactionFilter

	if raw := strings.TrimSpace(q.Get("kind")); raw != "" {
		kind, err := domain.ParseTransactionKind(raw)
		if err != nil {
			h.writeServiceError(w, "list_transactions", err)
			return
		}
		filter.Kind = &kind
	}
	var ok bool
	if filter.MinAmount, ok = h.queryDecimal(w, r, "min"); !ok {
		return
	}
	if filter.MaxAmount, ok = h.queryDecimal(w, r, "max"); !ok {
		return
	}
	if filter.From, ok = h.queryTime(w, r, "from", false); !ok {
		return
	}
	if filter.To, ok = h.queryTime(w, r, "to", true); !ok {
		return
	}
	filter.Location = q.Get("location")

	txs, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, "list_transactions", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// DeleteTransactionHandler handles DELETE /v1/transactions/{id}.
func (h *Handlers) DeleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteTransaction(r.Context(), id); err != nil {
		h.writeServiceError(w, "delete_transaction", err)
		return
	}
	h.logger.Warn("transaction deleted by operator",
		zap.Int64("transaction_id", id),
		zap.String("operator", operatorFromContext(r.Context())),
	)
	w.WriteHeader(http.StatusNoContent)
}

// queryTime accepts RFC 3339 or a plain date. A plain date used as an upper bound
// covers the whole day.
func (h *Handlers) queryTime(w http.ResponseWriter, r *http.Request, name string, endOfDay bool) (*time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, true
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, true
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid %s: %q (want RFC3339 or YYYY-MM-DD)", name, raw))
		return nil, false
	}
	if endOfDay {
		day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &day, true
}
