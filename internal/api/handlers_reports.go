package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/app"
)

// LargeAmountHandler handles GET /v1/anomalies/large-amount.
func (h *Handlers) LargeAmountHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.LargeAmountTransactions(r.Context())
	if err != nil {
		h.writeServiceError(w, "large_amount", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// UnusualLocationHandler handles GET /v1/anomalies/unusual-location.
func (h *Handlers) UnusualLocationHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.UnusualLocationTransactions(r.Context())
	if err != nil {
		h.writeServiceError(w, "unusual_location", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// SuspiciousHandler handles GET /v1/anomalies/suspicious.
func (h *Handlers) SuspiciousHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.service.SuspiciousTransactions(r.Context())
	if err != nil {
		h.writeServiceError(w, "suspicious", err)
		return
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// SuspiciousReportHandler handles GET /v1/anomalies/report.
func (h *Handlers) SuspiciousReportHandler(w http.ResponseWriter, r *http.Request) {
	rep, err := h.service.SuspiciousReport(r.Context())
	if err != nil {
		h.writeServiceError(w, "suspicious_report", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// TopClientsHandler handles GET /v1/reports/top-clients?limit=.
func (h *Handlers) TopClientsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.queryInt(w, r, "limit")
	if !ok {
		return
	}
	rows, err := h.service.TopClients(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, "top_clients", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

// MonthlyReportHandler handles GET /v1/reports/monthly?month=YYYY-MM. The current
// month is used when the parameter is absent.
func (h *Handlers) MonthlyReportHandler(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("month"))
	month := time.Now().UTC()
	if raw != "" {
		parsed, err := time.Parse("2006-01", raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid month: %q (want YYYY-MM)", raw))
			return
		}
		month = parsed
	}
	rep, err := h.service.MonthlyReport(r.Context(), month.Year(), month.Month())
	if err != nil {
		h.writeServiceError(w, "monthly_report", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}

// InactiveAccountsHandler handles GET /v1/reports/inactive-accounts?days=.
func (h *Handlers) InactiveAccountsHandler(w http.ResponseWriter, r *http.Request) {
	days, ok := h.queryInt(w, r, "days")
	if !ok {
		return
	}
	rows, err := h.service.InactiveAccounts(r.Context(), days)
	if err != nil {
		h.writeServiceError(w, "inactive_accounts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

// LowBalanceHandler handles GET /v1/reports/low-balance?threshold=.
func (h *Handlers) LowBalanceHandler(w http.ResponseWriter, r *http.Request) {
	threshold, ok := h.queryDecimal(w, r, "threshold")
	if !ok {
		return
	}
	rows, err := h.service.LowBalanceAlerts(r.Context(), threshold)
	if err != nil {
		h.writeServiceError(w, "low_balance", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rows)
}

// StatisticsHandler handles GET /v1/reports/statistics.
func (h *Handlers) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		h.writeServiceError(w, "statistics", err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// TransactionsByKindHandler handles GET /v1/reports/transactions-by-kind.
func (h *Handlers) TransactionsByKindHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.TransactionsByKind(r.Context())
	if err != nil {
		h.writeServiceError(w, "transactions_by_kind", err)
		return
	}
	h.writeJSON(w, http.StatusOK, groups)
}

// TransactionsByMonthHandler handles GET /v1/reports/transactions-by-month.
func (h *Handlers) TransactionsByMonthHandler(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.TransactionsByMonth(r.Context())
	if err != nil {
		h.writeServiceError(w, "transactions_by_month", err)
		return
	}
	h.writeJSON(w, http.StatusOK, groups)
}

// TopAccountsHandler handles GET /v1/reports/top-accounts?limit=.
func (h *Handlers) TopAccountsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := h.queryInt(w, r, "limit")
	if !ok {
		return
	}
	accounts, err := h.service.TopAccounts(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, "top_accounts", err)
		return
	}
	h.writeJSON(w, http.StatusOK, accounts)
}

// RunJobHandler handles POST /internal/jobs/{job}.
func (h *Handlers) RunJobHandler(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "jobs are not configured")
		return
	}
	name := chi.URLParam(r, "job")
	rep, err := h.jobs.Run(r.Context(), name)
	if errors.Is(err, app.ErrUnknownJob) {
		h.writeError(w, http.StatusNotFound, fmt.Sprintf("unknown job %q", name))
		return
	}
	if err != nil {
		h.logger.Error("job run failed", zap.String("job", name), zap.Error(err))
		h.writeServiceError(w, "run_job", err)
		return
	}
	h.writeJSON(w, http.StatusOK, rep)
}
