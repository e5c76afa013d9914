/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their handlers and applies the middleware stack.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5, github.com/go-chi/cors: Routing and CORS.
 * - github.com/prometheus/client_golang/prometheus/promhttp: The /metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterOptions carries the security settings of the router.
type RouterOptions struct {
	JWTSecret          string
	InternalAPIKey     string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// NewRouter creates a new Chi router and registers the ledger routes.
func NewRouter(h *Handlers, opts RouterOptions, logger *zap.Logger) *chi.Mux {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger.With(zap.String("component", "http"))))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/internal/jobs", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(opts.InternalAPIKey))
		r.Post("/{job}", h.RunJobHandler)
	})

	limiter := NewIPRateLimiter(opts.RateLimitPerSecond, opts.RateLimitBurst)
	r.Route("/v1", func(r chi.Router) {
		r.Use(OperatorAuthMiddleware(opts.JWTSecret))
		r.Use(WriteRateLimitMiddleware(limiter))

		r.Route("/clients", func(r chi.Router) {
			r.Post("/", h.CreateClientHandler)
			r.Get("/", h.ListClientsHandler)
			r.Get("/{id}", h.GetClientHandler)
			r.Put("/{id}", h.UpdateClientHandler)
			r.Delete("/{id}", h.DeleteClientHandler)
			r.Get("/{id}/balance", h.ClientBalanceHandler)
			r.Get("/{id}/accounts", h.ClientAccountsHandler)
			r.Get("/{id}/transactions", h.ClientTransactionsHandler)
			r.Get("/{id}/transactions/average", h.ClientAverageTransactionHandler)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/current", h.OpenCurrentAccountHandler)
			r.Post("/savings", h.OpenSavingsAccountHandler)
			r.Get("/", h.ListAccountsHandler)
			r.Get("/by-number/{number}", h.GetAccountByNumberHandler)
			r.Get("/{id}", h.GetAccountHandler)
			r.Put("/{id}/overdraft-limit", h.SetOverdraftLimitHandler)
			r.Put("/{id}/interest-rate", h.SetInterestRateHandler)
			r.Delete("/{id}", h.DeleteAccountHandler)
			r.Get("/{id}/transactions", h.AccountTransactionsHandler)
			r.Get("/{id}/transactions/total", h.AccountTransactionTotalHandler)
			r.Get("/{id}/can-withdraw", h.CanWithdrawHandler)
			r.Get("/{id}/anomalies/burst", h.BurstHandler)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", h.RecordTransactionHandler)
			r.Get("/", h.ListTransactionsHandler)
			r.Delete("/{id}", h.DeleteTransactionHandler)
		})

		r.Route("/anomalies", func(r chi.Router) {
			r.Get("/large-amount", h.LargeAmountHandler)
			r.Get("/unusual-location", h.UnusualLocationHandler)
			r.Get("/suspicious", h.SuspiciousHandler)
			r.Get("/report", h.SuspiciousReportHandler)
		})

		r.Route("/reports", func(r chi.Router) {
			r.Get("/top-clients", h.TopClientsHandler)
			r.Get("/monthly", h.MonthlyReportHandler)
			r.Get("/inactive-accounts", h.InactiveAccountsHandler)
			r.Get("/low-balance", h.LowBalanceHandler)
			r.Get("/statistics", h.StatisticsHandler)
			r.Get("/transactions-by-kind", h.TransactionsByKindHandler)
			r.Get("/transactions-by-month", h.TransactionsByMonthHandler)
			r.Get("/top-accounts", h.TopAccountsHandler)
		})
	})

	return r
}
