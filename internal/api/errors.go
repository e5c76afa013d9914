package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/domain"
)

type reconciliationPendingResponse struct {
	Status           string `json:"status"`
	TransactionID    int64  `json:"transaction_id"`
	AccountID        int64  `json:"account_id"`
	ReconciliationID int64  `json:"reconciliation_id,omitempty"`
	Message          string `json:"message"`
}

// statusFor maps the domain error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrWrongAccountType), errors.Is(err, domain.ErrReferentialConflict),
		errors.Is(err, domain.ErrBalanceReconciling):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes the response for an error returned by the service.
func (h *Handlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var rerr *domain.ReconciliationError
	if errors.As(err, &rerr) {
		h.logger.Warn("request accepted with pending reconciliation",
			zap.String("endpoint", endpoint),
			zap.Int64("transaction_id", rerr.TransactionID),
			zap.Error(err),
		)
		h.writeJSON(w, http.StatusAccepted, reconciliationPendingResponse{
			Status:           "reconciliation_pending",
			TransactionID:    rerr.TransactionID,
			AccountID:        rerr.AccountID,
			ReconciliationID: rerr.ReconciliationID,
			Message:          "Transaction saved; balance update is queued. Do not resubmit.",
		})
		return
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("endpoint", endpoint), zap.Error(err))
		h.writeError(w, status, "Internal server error")
		return
	}
	h.logger.Debug("request rejected", zap.String("endpoint", endpoint), zap.Int("status", status), zap.Error(err))
	h.writeError(w, status, err.Error())
}
