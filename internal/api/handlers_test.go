package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/app"
	"github.com/solubank/ledger-service/internal/domain"
	"github.com/solubank/ledger-service/internal/store"
)

type testServer struct {
	handler http.Handler
	service *app.Service
	repo    store.Repository
}

func newTestServer(t *testing.T, repo store.Repository, opts RouterOptions) *testServer {
	t.Helper()
	if repo == nil {
		repo = store.NewMemoryRepository()
	}
	svc := app.NewService(repo, nil, zap.NewNop(), app.DefaultOptions())
	svc.SetClock(app.FixedClock(time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)))
	jobs := app.NewJobs(svc, zap.NewNop())
	h := NewHandlers(svc, jobs, zap.NewNop())
	return &testServer{handler: NewRouter(h, opts, zap.NewNop()), service: svc, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func (s *testServer) seedCurrent(t *testing.T, balance, overdraft string) (clientID, accountID int64) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/clients", map[string]string{"name": "Amal", "email": "amal@bank.ma"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var client domain.Client
	decodeBody(t, rec, &client)

	rec = s.do(t, http.MethodPost, "/v1/accounts/current", map[string]interface{}{
		"client_id": client.ID, "balance": balance, "overdraft_limit": overdraft,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var account struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, rec, &account)
	return client.ID, account.ID
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil, RouterOptions{})
	rec := srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", rec.Body.String())
}

func TestCreateClient_ValidatesBody(t *testing.T) {
	srv := newTestServer(t, nil, RouterOptions{})

	rec := srv.do(t, http.MethodPost, "/v1/clients", map[string]string{"name": "Amal", "email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/clients", bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	srv.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestRecordTransaction_StatusMapping(t *testing.T) {
	srv := newTestServer(t, nil, RouterOptions{})
	_, accountID := srv.seedCurrent(t, "500", "200")

	cases := []struct {
		name   string
		body   map[string]interface{}
		status int
	}{
		{name: "overdraft withdrawal accepted", body: map[string]interface{}{"account_id": accountID, "amount": "600", "kind": "WITHDRAWAL", "location": "Casablanca, Maroc"}, status: http.StatusCreated},
		{name: "past overdraft rejected", body: map[string]interface{}{"account_id": accountID, "amount": "150", "kind": "withdrawal", "location": "Casablanca, Maroc"}, status: http.StatusUnprocessableEntity},
		{name: "zero amount", body: map[string]interface{}{"account_id": accountID, "amount": "0", "kind": "DEPOSIT"}, status: http.StatusBadRequest},
		{name: "unknown kind", body: map[string]interface{}{"account_id": accountID, "amount": "5", "kind": "REFUND"}, status: http.StatusBadRequest},
		{name: "unknown account", body: map[string]interface{}{"account_id": 999, "amount": "5", "kind": "DEPOSIT"}, status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, "/v1/transactions", tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
		})
	}

	rec := srv.do(t, http.MethodGet, fmt.Sprintf("/v1/accounts/%d", accountID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var account struct {
		Balance decimal.Decimal `json:"balance"`
		Type    string          `json:"type"`
	}
	decodeBody(t, rec, &account)
	assert.True(t, account.Balance.Equal(decimal.NewFromInt(-100)), "balance %s", account.Balance)
}

func TestConflictMappings(t *testing.T) {
	srv := newTestServer(t, nil, RouterOptions{})
	clientID, accountID := srv.seedCurrent(t, "0", "0")

	rec := srv.do(t, http.MethodPut, fmt.Sprintf("/v1/accounts/%d/interest-rate", accountID), map[string]string{"interest_rate": "0.05"})
	assert.Equal(t, http.StatusConflict, rec.Code, "interest rate on a current account")

	rec = srv.do(t, http.MethodDelete, fmt.Sprintf("/v1/clients/%d", clientID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "client with accounts")

	rec = srv.do(t, http.MethodPost, "/v1/transactions", map[string]interface{}{"account_id": accountID, "amount": "5", "kind": "DEPOSIT", "location": "Rabat, Maroc"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = srv.do(t, http.MethodDelete, fmt.Sprintf("/v1/accounts/%d", accountID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "account with transactions")

	rec = srv.do(t, http.MethodGet, "/v1/clients/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type failingBalanceRepo struct {
	*store.MemoryRepository
	fail bool
}

func (r *failingBalanceRepo) UpdateAccountBalance(ctx context.Context, accountID int64, balance decimal.Decimal) error {
	if r.fail {
		return errors.New("write timeout")
	}
	return r.MemoryRepository.UpdateAccountBalance(ctx, accountID, balance)
}

func TestRecordTransaction_ReconciliationPending(t *testing.T) {
	repo := &failingBalanceRepo{MemoryRepository: store.NewMemoryRepository()}
	srv := newTestServer(t, repo, RouterOptions{})
	_, accountID := srv.seedCurrent(t, "100", "0")

	repo.fail = true
	rec := srv.do(t, http.MethodPost, "/v1/transactions", map[string]interface{}{"account_id": accountID, "amount": "10", "kind": "DEPOSIT", "location": "Rabat, Maroc"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var body reconciliationPendingResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "reconciliation_pending", body.Status)
	assert.NotZero(t, body.TransactionID)
	assert.NotZero(t, body.ReconciliationID)

	repo.fail = false
	rec = srv.do(t, http.MethodPost, "/v1/transactions", map[string]interface{}{"account_id": accountID, "amount": "5", "kind": "WITHDRAWAL", "location": "Rabat, Maroc"})
	assert.Equal(t, http.StatusConflict, rec.Code, "debits wait for the queued balance delta")

	rec = srv.do(t, http.MethodPost, "/internal/jobs/reconcile", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rep app.JobReport
	decodeBody(t, rec, &rep)
	assert.Equal(t, 1, rep.Processed)
}

func TestListTransactions_QueryFilters(t *testing.T) {
	srv := newTestServer(t, nil, RouterOptions{})
	_, accountID := srv.seedCurrent(t, "1000", "0")
	for _, body := range []map[string]interface{}{
		{"account_id": accountID, "amount": "50", "kind": "DEPOSIT", "location": "Casablanca, Maroc"},
		{"account_id": accountID, "amount": "200", "kind": "WITHDRAWAL", "location": "Paris"},
	} {
		require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/v1/transactions", body).Code)
	}

	cases := []struct {
		query  string
		status int
		count  int
	}{
		{query: "", status: http.StatusOK, count: 2},
		{query: "?kind=deposit", status: http.StatusOK, count: 1},
		{query: "?min=100&max=300", status: http.StatusOK, count: 1},
		{query: "?from=2024-03-15&to=2024-03-15", status: http.StatusOK, count: 2},
		{query: "?from=2024-03-16&to=2024-03-20", status: http.StatusOK, count: 0},
		{query: "?location=paris", status: http.StatusOK, count: 1},
		{query: "?min=abc&max=1", status: http.StatusBadRequest},
		{query: "?from=yesterday&to=2024-03-20", status: http.StatusBadRequest},
		{query: "?min=10", status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, "/v1/transactions"+tc.query, nil)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			if tc.status != http.StatusOK {
				return
			}
			var txs []domain.Transaction
			decodeBody(t, rec, &txs)
			assert.Len(t, txs, tc.count)
		})
	}
}

func TestReports(t *testing.T) {
	srv := newTestServer(t, nil, RouterOptions{})
	_, accountID := srv.seedCurrent(t, "50", "0")
	require.Equal(t, http.StatusCreated, srv.do(t, http.MethodPost, "/v1/transactions",
		map[string]interface{}{"account_id": accountID, "amount": "10001", "kind": "DEPOSIT", "location": "Paris"}).Code)

	rec := srv.do(t, http.MethodGet, "/v1/reports/monthly?month=2024-03", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var monthly domain.MonthlyReport
	decodeBody(t, rec, &monthly)
	assert.Len(t, monthly.ByKind, 3)
	assert.Equal(t, int64(1), monthly.TotalCount)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/v1/reports/monthly?month=March", nil).Code)

	rec = srv.do(t, http.MethodGet, "/v1/anomalies/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var suspicious domain.SuspiciousReport
	decodeBody(t, rec, &suspicious)
	assert.Len(t, suspicious.All, 1)

	for _, path := range []string{
		"/v1/reports/top-clients?limit=3",
		"/v1/reports/inactive-accounts?days=30",
		"/v1/reports/low-balance?threshold=100",
		"/v1/reports/statistics",
		"/v1/reports/transactions-by-kind",
		"/v1/reports/transactions-by-month",
		"/v1/reports/top-accounts",
		"/v1/anomalies/large-amount",
		"/v1/anomalies/unusual-location",
		"/v1/anomalies/suspicious",
		fmt.Sprintf("/v1/accounts/%d/anomalies/burst", accountID),
		fmt.Sprintf("/v1/accounts/%d/can-withdraw?amount=20", accountID),
	} {
		rec := srv.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, rec.Code, "%s: %s", path, rec.Body.String())
	}

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/v1/reports/top-clients?limit=-1", nil).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, fmt.Sprintf("/v1/accounts/%d/can-withdraw", accountID), nil).Code)
}

func TestInternalJobs_RequireKey(t *testing.T) {
	srv := newTestServer(t, nil, RouterOptions{InternalAPIKey: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodPost, "/internal/jobs/anomaly-scan", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodPost, "/internal/jobs/anomaly-scan", nil, "X-Internal-API-Key", "s3cret").Code)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodPost, "/internal/jobs/compound-interest", nil, "X-Internal-API-Key", "s3cret").Code)
}

func TestOperatorAuth(t *testing.T) {
	const secret = "operator-secret"
	srv := newTestServer(t, nil, RouterOptions{JWTSecret: secret})

	sign := func(t *testing.T, key string, claims jwt.MapClaims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
		require.NoError(t, err)
		return "Bearer " + token
	}
	valid := jwt.MapClaims{"sub": "ops-1", "exp": time.Now().Add(time.Hour).Unix()}

	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/v1/clients", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/v1/clients", nil, "Authorization", sign(t, "other", valid)).Code)
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/v1/clients", nil,
		"Authorization", sign(t, secret, jwt.MapClaims{"sub": "ops-1", "exp": time.Now().Add(-time.Hour).Unix()})).Code)
	assert.Equal(t, http.StatusUnauthorized, srv.do(t, http.MethodGet, "/v1/clients", nil,
		"Authorization", sign(t, secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/v1/clients", nil, "Authorization", sign(t, secret, valid)).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/health", nil).Code, "health stays public")
}

func TestWriteRateLimit(t *testing.T) {
	srv := newTestServer(t, nil, RouterOptions{RateLimitPerSecond: 0.001, RateLimitBurst: 1})

	first := srv.do(t, http.MethodPost, "/v1/clients", map[string]string{"name": "Amal", "email": "amal@bank.ma"})
	assert.Equal(t, http.StatusCreated, first.Code)
	second := srv.do(t, http.MethodPost, "/v1/clients", map[string]string{"name": "Nora", "email": "nora@bank.ma"})
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/v1/clients", nil).Code, "reads are not limited")
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: domain.NewValidationError("amount", "must be > 0"), want: http.StatusBadRequest},
		{err: domain.ErrAccountNotFound, want: http.StatusNotFound},
		{err: domain.ErrInsufficientFunds, want: http.StatusUnprocessableEntity},
		{err: domain.ErrWrongAccountType, want: http.StatusConflict},
		{err: domain.ErrClientHasAccounts, want: http.StatusConflict},
		{err: fmt.Errorf("account 7: %w", domain.ErrBalanceReconciling), want: http.StatusConflict},
		{err: domain.PersistenceError("find account", errors.New("boom")), want: http.StatusInternalServerError},
		{err: errors.New("unclassified"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
