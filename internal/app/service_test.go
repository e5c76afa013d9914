package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/domain"
	"github.com/solubank/ledger-service/internal/store"
)

var testNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type publishedEvent struct {
	exchange   string
	routingKey string
	body       interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, publishedEvent{exchange: exchange, routingKey: routingKey, body: body})
	return nil
}

func (p *recordingPublisher) Close() {}

func (p *recordingPublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.routingKey == routingKey {
			n++
		}
	}
	return n
}

type sequenceNumbers struct {
	mu      sync.Mutex
	numbers []string
	next    int
}

func (s *sequenceNumbers) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.numbers) {
		return s.numbers[len(s.numbers)-1]
	}
	n := s.numbers[s.next]
	s.next++
	return n
}

type counterNumbers struct {
	mu sync.Mutex
	n  int
}

func (c *counterNumbers) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return fmt.Sprintf("ACC%010d", c.n)
}

func dec(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", raw, err)
	}
	return d
}

func newTestServiceWithRepo(t *testing.T, repo store.Repository, opts Options) (*Service, *recordingPublisher) {
	t.Helper()
	publisher := &recordingPublisher{}
	svc := NewService(repo, publisher, zap.NewNop(), opts)
	svc.SetClock(FixedClock(testNow))
	svc.SetNumberGenerator(&counterNumbers{})
	return svc, publisher
}

func newTestService(t *testing.T) (*Service, *store.MemoryRepository, *recordingPublisher) {
	t.Helper()
	repo := store.NewMemoryRepository()
	svc, publisher := newTestServiceWithRepo(t, repo, DefaultOptions())
	return svc, repo, publisher
}

func mustClient(t *testing.T, svc *Service, name string) *domain.Client {
	t.Helper()
	client, err := svc.CreateClient(context.Background(), name, name+"@example.com")
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	return client
}

func mustCurrent(t *testing.T, svc *Service, clientID int64, balance, overdraft string) *domain.Account {
	t.Helper()
	acc, err := svc.OpenCurrentAccount(context.Background(), clientID, dec(t, balance), dec(t, overdraft))
	if err != nil {
		t.Fatalf("open current account: %v", err)
	}
	return acc
}

func mustSavings(t *testing.T, svc *Service, clientID int64, balance, rate string) *domain.Account {
	t.Helper()
	acc, err := svc.OpenSavingsAccount(context.Background(), clientID, dec(t, balance), dec(t, rate))
	if err != nil {
		t.Fatalf("open savings account: %v", err)
	}
	return acc
}

func mustRecord(t *testing.T, svc *Service, accountID int64, kind domain.TransactionKind, amount, location string) *domain.Transaction {
	t.Helper()
	tx, err := svc.RecordTransaction(context.Background(), RecordTransactionRequest{
		AccountID: accountID,
		Amount:    dec(t, amount),
		Kind:      kind,
		Location:  location,
	})
	if err != nil {
		t.Fatalf("record %s %s: %v", kind, amount, err)
	}
	return tx
}

func balanceOf(t *testing.T, svc *Service, accountID int64) decimal.Decimal {
	t.Helper()
	acc, err := svc.GetAccount(context.Background(), accountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	return acc.Balance
}

func TestCreateClient_ValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	cases := []struct {
		name  string
		cname string
		email string
	}{
		{name: "blank name", cname: "  ", email: "a@b.c"},
		{name: "email without at", cname: "Amal", email: "amal.example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateClient(context.Background(), tc.cname, tc.email)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestUpdateClient_ReplacesFields(t *testing.T) {
	svc, _, _ := newTestService(t)
	client := mustClient(t, svc, "Amal")

	updated, err := svc.UpdateClient(context.Background(), client.ID, "Amal Idrissi", "amal@bank.ma")
	if err != nil {
		t.Fatalf("update client: %v", err)
	}
	got, err := svc.GetClient(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if got.Name != updated.Name || got.Email != "amal@bank.ma" {
		t.Fatalf("unexpected client after update: %+v", got)
	}

	if _, err := svc.UpdateClient(context.Background(), 999, "Ghost", "ghost@bank.ma"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListClients_FiltersByName(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustClient(t, svc, "Amal")
	mustClient(t, svc, "Youssef")
	mustClient(t, svc, "Amina")

	all, err := svc.ListClients(context.Background(), "")
	if err != nil {
		t.Fatalf("list clients: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 clients, got %d", len(all))
	}

	filtered, err := svc.ListClients(context.Background(), "am")
	if err != nil {
		t.Fatalf("list clients: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 clients matching \"am\", got %d", len(filtered))
	}
}

func TestDeleteClient_RefusesWhenAccountsExist(t *testing.T) {
	svc, _, _ := newTestService(t)
	client := mustClient(t, svc, "Amal")
	mustSavings(t, svc, client.ID, "10", "0.02")

	err := svc.DeleteClient(context.Background(), client.ID)
	if !errors.Is(err, domain.ErrReferentialConflict) {
		t.Fatalf("expected referential conflict, got %v", err)
	}

	lonely := mustClient(t, svc, "Nora")
	if err := svc.DeleteClient(context.Background(), lonely.ID); err != nil {
		t.Fatalf("delete client without accounts: %v", err)
	}
	if _, err := svc.GetClient(context.Background(), lonely.ID); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected client not found after delete, got %v", err)
	}
}

func TestOpenAccount_RequiresExistingClient(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.OpenCurrentAccount(context.Background(), 42, decimal.Zero, decimal.Zero)
	if !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected client not found, got %v", err)
	}
}

func TestOpenAccount_RejectsBalanceBelowFloor(t *testing.T) {
	svc, _, _ := newTestService(t)
	client := mustClient(t, svc, "Amal")

	if _, err := svc.OpenSavingsAccount(context.Background(), client.ID, dec(t, "-1"), dec(t, "0.03")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for negative savings balance, got %v", err)
	}
	if _, err := svc.OpenCurrentAccount(context.Background(), client.ID, dec(t, "-300"), dec(t, "200")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for balance past overdraft, got %v", err)
	}
	accounts, _ := svc.ListAccounts(context.Background())
	if len(accounts) != 0 {
		t.Fatalf("expected no account to be stored, got %d", len(accounts))
	}
}

func TestOpenAccount_RetriesOnNumberCollision(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.SetNumberGenerator(&sequenceNumbers{numbers: []string{"ACC0000000001", "ACC0000000001", "ACC0000000002"}})
	client := mustClient(t, svc, "Amal")

	first := mustCurrent(t, svc, client.ID, "0", "0")
	second := mustCurrent(t, svc, client.ID, "0", "0")

	if first.Number != "ACC0000000001" || second.Number != "ACC0000000002" {
		t.Fatalf("unexpected numbers %q and %q", first.Number, second.Number)
	}
}

func TestOpenAccount_GivesUpAfterRepeatedCollisions(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.SetNumberGenerator(&sequenceNumbers{numbers: []string{"ACC0000000001"}})
	client := mustClient(t, svc, "Amal")
	mustCurrent(t, svc, client.ID, "0", "0")

	_, err := svc.OpenCurrentAccount(context.Background(), client.ID, decimal.Zero, decimal.Zero)
	if !errors.Is(err, domain.ErrPersistenceFailure) {
		t.Fatalf("expected persistence failure, got %v", err)
	}
	if !errors.Is(err, domain.ErrAccountNumberUnavailable) {
		t.Fatalf("expected number exhaustion cause, got %v", err)
	}
}

func TestGetAccountByNumber(t *testing.T) {
	svc, _, _ := newTestService(t)
	client := mustClient(t, svc, "Amal")
	acc := mustSavings(t, svc, client.ID, "50", "0.01")

	got, err := svc.GetAccountByNumber(context.Background(), acc.Number)
	if err != nil {
		t.Fatalf("get by number: %v", err)
	}
	if got.ID != acc.ID {
		t.Fatalf("expected account %d, got %d", acc.ID, got.ID)
	}
	if _, err := svc.GetAccountByNumber(context.Background(), "ACCMISSING"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestSetTerms_RestrictedToVariant(t *testing.T) {
	svc, _, _ := newTestService(t)
	client := mustClient(t, svc, "Amal")
	current := mustCurrent(t, svc, client.ID, "100", "200")
	savings := mustSavings(t, svc, client.ID, "100", "0.02")

	if _, err := svc.SetInterestRate(context.Background(), current.ID, dec(t, "0.05")); !errors.Is(err, domain.ErrWrongAccountType) {
		t.Fatalf("expected wrong account type, got %v", err)
	}
	if _, err := svc.SetOverdraftLimit(context.Background(), savings.ID, dec(t, "50")); !errors.Is(err, domain.ErrWrongAccountType) {
		t.Fatalf("expected wrong account type, got %v", err)
	}
	if _, err := svc.SetOverdraftLimit(context.Background(), current.ID, dec(t, "-1")); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	updated, err := svc.SetOverdraftLimit(context.Background(), current.ID, dec(t, "500"))
	if err != nil {
		t.Fatalf("set overdraft: %v", err)
	}
	limit, ok := updated.OverdraftLimit()
	if !ok || !limit.Equal(dec(t, "500")) {
		t.Fatalf("expected overdraft 500, got %s", limit)
	}

	stored, _ := svc.GetAccount(context.Background(), current.ID)
	if limit, _ := stored.OverdraftLimit(); !limit.Equal(dec(t, "500")) {
		t.Fatalf("overdraft not persisted, got %s", limit)
	}

	rated, err := svc.SetInterestRate(context.Background(), savings.ID, dec(t, "0.035"))
	if err != nil {
		t.Fatalf("set interest rate: %v", err)
	}
	if rate, _ := rated.InterestRate(); !rate.Equal(dec(t, "0.035")) {
		t.Fatalf("expected rate 0.035, got %s", rate)
	}
}

func TestDeleteAccount_RefusesWhenTransactionsExist(t *testing.T) {
	svc, _, _ := newTestService(t)
	client := mustClient(t, svc, "Amal")
	busy := mustCurrent(t, svc, client.ID, "0", "0")
	idle := mustCurrent(t, svc, client.ID, "0", "0")
	mustRecord(t, svc, busy.ID, domain.Deposit, "10", "Rabat, Maroc")

	if err := svc.DeleteAccount(context.Background(), busy.ID); !errors.Is(err, domain.ErrReferentialConflict) {
		t.Fatalf("expected referential conflict, got %v", err)
	}
	if err := svc.DeleteAccount(context.Background(), idle.ID); err != nil {
		t.Fatalf("delete idle account: %v", err)
	}
	if err := svc.DeleteAccount(context.Background(), idle.ID); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected account not found, got %v", err)
	}
}

func TestCanWithdraw_DoesNotWrite(t *testing.T) {
	svc, repo, _ := newTestService(t)
	client := mustClient(t, svc, "Amal")
	acc := mustCurrent(t, svc, client.ID, "500", "200")

	cases := []struct {
		amount string
		want   bool
	}{
		{amount: "700", want: true},
		{amount: "700.01", want: false},
		{amount: "1", want: true},
	}
	for _, tc := range cases {
		ok, err := svc.CanWithdraw(context.Background(), acc.ID, dec(t, tc.amount))
		if err != nil {
			t.Fatalf("can withdraw %s: %v", tc.amount, err)
		}
		if ok != tc.want {
			t.Fatalf("can withdraw %s: expected %v, got %v", tc.amount, tc.want, ok)
		}
	}

	if _, err := svc.CanWithdraw(context.Background(), acc.ID, decimal.Zero); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
	if !balanceOf(t, svc, acc.ID).Equal(dec(t, "500")) {
		t.Fatal("eligibility check changed the balance")
	}
	count, _ := repo.CountTransactionsByAccountID(context.Background(), acc.ID)
	if count != 0 {
		t.Fatalf("eligibility check wrote %d transactions", count)
	}
}

func TestClientBalanceAndAverage(t *testing.T) {
	svc, _, _ := newTestService(t)
	client := mustClient(t, svc, "Amal")
	mustCurrent(t, svc, client.ID, "300.00", "0")
	savings := mustSavings(t, svc, client.ID, "450.50", "0.02")

	summary, err := svc.ClientBalance(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("client balance: %v", err)
	}
	if summary.TotalBalance != "750.50" || summary.AccountCount != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	mustRecord(t, svc, savings.ID, domain.Deposit, "10", "Rabat, Maroc")
	mustRecord(t, svc, savings.ID, domain.Deposit, "20", "Rabat, Maroc")
	mustRecord(t, svc, savings.ID, domain.Withdrawal, "5", "Rabat, Maroc")

	avg, err := svc.ClientAverageTransaction(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("average: %v", err)
	}
	if avg != "11.67" {
		t.Fatalf("expected average 11.67, got %s", avg)
	}

	txs, err := svc.ClientTransactions(context.Background(), client.ID)
	if err != nil {
		t.Fatalf("client transactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}

	if _, err := svc.ClientBalance(context.Background(), 404); !errors.Is(err, domain.ErrClientNotFound) {
		t.Fatalf("expected client not found, got %v", err)
	}
}

func TestAccountTransactionTotal(t *testing.T) {
	svc, _, _ := newTestService(t)
	client := mustClient(t, svc, "Amal")
	acc := mustCurrent(t, svc, client.ID, "0", "1000")
	mustRecord(t, svc, acc.ID, domain.Deposit, "300.00", "Rabat, Maroc")
	mustRecord(t, svc, acc.ID, domain.Withdrawal, "450.50", "Rabat, Maroc")

	total, err := svc.AccountTransactionTotal(context.Background(), acc.ID)
	if err != nil {
		t.Fatalf("total: %v", err)
	}
	if !total.Equal(dec(t, "750.50")) {
		t.Fatalf("expected 750.50, got %s", total)
	}
}

func TestListTransactions_Filters(t *testing.T) {
	svc, _, _ := newTestService(t)
	client := mustClient(t, svc, "Amal")
	acc := mustCurrent(t, svc, client.ID, "1000", "0")
	mustRecord(t, svc, acc.ID, domain.Deposit, "50", "Casablanca, Maroc")
	mustRecord(t, svc, acc.ID, domain.Withdrawal, "200", "Paris")
	mustRecord(t, svc, acc.ID, domain.Transfer, "400", "Tanger, Maroc")

	withdrawal := domain.Withdrawal
	min, max := dec(t, "100"), dec(t, "400")
	from, to := testNow.Add(-time.Hour), testNow.Add(time.Hour)
	bad := domain.TransactionKind("REFUND")

	cases := []struct {
		name    string
		filter  TransactionFilter
		want    int
		wantErr error
	}{
		{name: "all", filter: TransactionFilter{}, want: 3},
		{name: "kind", filter: TransactionFilter{Kind: &withdrawal}, want: 1},
		{name: "amount range inclusive", filter: TransactionFilter{MinAmount: &min, MaxAmount: &max}, want: 2},
		{name: "date range", filter: TransactionFilter{From: &from, To: &to}, want: 3},
		{name: "location", filter: TransactionFilter{Location: "maroc"}, want: 2},
		{name: "half amount range", filter: TransactionFilter{MinAmount: &min}, wantErr: domain.ErrValidation},
		{name: "inverted amount range", filter: TransactionFilter{MinAmount: &max, MaxAmount: &min}, wantErr: domain.ErrValidation},
		{name: "inverted dates", filter: TransactionFilter{From: &to, To: &from}, wantErr: domain.ErrValidation},
		{name: "unknown kind", filter: TransactionFilter{Kind: &bad}, wantErr: domain.ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			txs, err := svc.ListTransactions(context.Background(), tc.filter)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(txs) != tc.want {
				t.Fatalf("expected %d transactions, got %d", tc.want, len(txs))
			}
		})
	}
}

func TestDeleteTransaction_LeavesBalance(t *testing.T) {
	svc, _, _ := newTestService(t)
	client := mustClient(t, svc, "Amal")
	acc := mustSavings(t, svc, client.ID, "0", "0.01")
	tx := mustRecord(t, svc, acc.ID, domain.Deposit, "80", "Rabat, Maroc")

	if err := svc.DeleteTransaction(context.Background(), tx.ID); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}
	if _, err := svc.GetTransaction(context.Background(), tx.ID); !errors.Is(err, domain.ErrTransactionNotFound) {
		t.Fatalf("expected transaction not found, got %v", err)
	}
	if !balanceOf(t, svc, acc.ID).Equal(dec(t, "80")) {
		t.Fatalf("expected balance untouched at 80, got %s", balanceOf(t, svc, acc.ID))
	}
	if err := svc.DeleteTransaction(context.Background(), tx.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestNewService_FillsDefaults(t *testing.T) {
	svc := NewService(store.NewMemoryRepository(), nil, nil, Options{})
	rules := svc.Rules()
	if rules.HomeRegion != "Maroc" || rules.BurstWindow != time.Minute || !rules.LargeAmountThreshold.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("unexpected default rules %+v", rules)
	}
	if svc.opts.EventsExchange != DefaultEventsExchange || svc.opts.InactivityDays != DefaultInactivityDays {
		t.Fatalf("unexpected default options %+v", svc.opts)
	}
	// nil producer falls back to a no-op publisher
	svc.publish(context.Background(), domain.EventTransactionRecorded, struct{}{})
}
