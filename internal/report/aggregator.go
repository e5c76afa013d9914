/**
 * @description
 * Read-only aggregations over ledger snapshots: rankings, monthly totals, inactivity,
 * low-balance alerts and global statistics.
 *
 * @notes
 * - Functions never touch the store; the application service loads the snapshot.
 * - Divisions round to 2 decimal places, half away from zero.
 * - Rankings are stable: equal keys keep the order of the input slice.
 */

package report

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solubank/ledger-service/internal/domain"
)

const moneyPlaces = 2

// TopClientsByBalance ranks clients by the sum of their account balances. A client
// without accounts ranks with zero. n <= 0 returns every client.
func TopClientsByBalance(clients []domain.Client, accounts []domain.Account, n int) []domain.ClientBalance {
	totals := make(map[int64]decimal.Decimal, len(clients))
	counts := make(map[int64]int, len(clients))
	for _, acc := range accounts {
		totals[acc.ClientID] = totals[acc.ClientID].Add(acc.Balance)
		counts[acc.ClientID]++
	}

	rows := make([]domain.ClientBalance, 0, len(clients))
	for _, c := range clients {
		rows = append(rows, domain.ClientBalance{
			ClientID:     c.ID,
			Name:         c.Name,
			Email:        c.Email,
			TotalBalance: totals[c.ID],
			AccountCount: counts[c.ID],
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].TotalBalance.GreaterThan(rows[j].TotalBalance)
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

// MonthWindow returns the first and last instants of a calendar month in loc.
func MonthWindow(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return from, to
}

// Monthly aggregates count and volume per kind for transactions inside [from, to].
// Every kind is present in the result, with zeroes when it has no transactions.
func Monthly(txs []domain.Transaction, from, to time.Time) domain.MonthlyReport {
	byKind := make(map[domain.TransactionKind]*domain.KindTotals, len(domain.TransactionKinds))
	rep := domain.MonthlyReport{
		Month:       from.Format("2006-01"),
		From:        from,
		To:          to,
		ByKind:      make([]domain.KindTotals, len(domain.TransactionKinds)),
		TotalVolume: decimal.Zero,
	}
	for i, k := range domain.TransactionKinds {
		rep.ByKind[i] = domain.KindTotals{Kind: k, Volume: decimal.Zero}
		byKind[k] = &rep.ByKind[i]
	}

	for _, tx := range txs {
		if tx.Timestamp.Before(from) || tx.Timestamp.After(to) {
			continue
		}
		row, ok := byKind[tx.Kind]
		if !ok {
			continue
		}
		row.Count++
		row.Volume = row.Volume.Add(tx.Amount)
		rep.TotalCount++
		rep.TotalVolume = rep.TotalVolume.Add(tx.Amount)
	}
	return rep
}

// InactiveAccounts lists accounts with no transaction at or after now minus days.
// txsByAccount maps an account id to its transactions in any order; clients is used to
// resolve owner names and may be partial.
func InactiveAccounts(accounts []domain.Account, txsByAccount map[int64][]domain.Transaction, clients map[int64]domain.Client, now time.Time, days int) []domain.InactiveAccount {
	cutoff := now.AddDate(0, 0, -days)
	out := make([]domain.InactiveAccount, 0)
	for _, acc := range accounts {
		last, ok := latest(txsByAccount[acc.ID])
		if ok && !last.Before(cutoff) {
			continue
		}
		row := domain.InactiveAccount{
			AccountID:     acc.ID,
			AccountNumber: acc.Number,
			AccountType:   acc.Type(),
			Balance:       acc.Balance,
		}
		if c, found := clients[acc.ClientID]; found {
			row.ClientName = c.Name
		}
		if ok {
			ts := last
			row.LastTransactionAt = &ts
		}
		out = append(out, row)
	}
	return out
}

func latest(txs []domain.Transaction) (time.Time, bool) {
	if len(txs) == 0 {
		return time.Time{}, false
	}
	last := txs[0].Timestamp
	for _, tx := range txs[1:] {
		if tx.Timestamp.After(last) {
			last = tx.Timestamp
		}
	}
	return last, true
}

// LowBalanceAlerts lists accounts whose balance is strictly below threshold, lowest first.
func LowBalanceAlerts(accounts []domain.Account, clients map[int64]domain.Client, threshold decimal.Decimal) []domain.LowBalanceAlert {
	out := make([]domain.LowBalanceAlert, 0)
	for _, acc := range accounts {
		if !acc.Balance.LessThan(threshold) {
			continue
		}
		row := domain.LowBalanceAlert{
			AccountID:     acc.ID,
			AccountNumber: acc.Number,
			AccountType:   acc.Type(),
			Balance:       acc.Balance,
		}
		if c, found := clients[acc.ClientID]; found {
			row.ClientName = c.Name
			row.ClientEmail = c.Email
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Balance.LessThan(out[j].Balance)
	})
	return out
}

// GlobalStatistics summarises the whole ledger. Min and max keep the first account
// encountered on ties; the mean balance is zero when there are no accounts.
func GlobalStatistics(clientCount int, accounts []domain.Account, txs []domain.Transaction) domain.Statistics {
	stats := domain.Statistics{
		TotalClients:       clientCount,
		TotalAccounts:      len(accounts),
		TotalTransactions:  len(txs),
		MeanBalance:        decimal.Zero,
		TransactionsByKind: make(map[domain.TransactionKind]int64, len(domain.TransactionKinds)),
	}
	for _, k := range domain.TransactionKinds {
		stats.TransactionsByKind[k] = 0
	}
	for _, tx := range txs {
		stats.TransactionsByKind[tx.Kind]++
	}
	if len(accounts) == 0 {
		return stats
	}

	sum := decimal.Zero
	maxIdx, minIdx := 0, 0
	for i, acc := range accounts {
		sum = sum.Add(acc.Balance)
		if acc.Balance.GreaterThan(accounts[maxIdx].Balance) {
			maxIdx = i
		}
		if acc.Balance.LessThan(accounts[minIdx].Balance) {
			minIdx = i
		}
	}
	stats.MeanBalance = sum.DivRound(decimal.NewFromInt(int64(len(accounts))), moneyPlaces)
	stats.MaxBalanceAccount = summary(accounts[maxIdx])
	stats.MinBalanceAccount = summary(accounts[minIdx])
	return stats
}

func summary(acc domain.Account) *domain.AccountSummary {
	return &domain.AccountSummary{AccountID: acc.ID, AccountNumber: acc.Number, Balance: acc.Balance}
}

// TotalAmount sums transaction amounts.
func TotalAmount(txs []domain.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}

// MeanAmount is the average transaction amount, zero for an empty slice.
func MeanAmount(txs []domain.Transaction) decimal.Decimal {
	if len(txs) == 0 {
		return decimal.Zero
	}
	return TotalAmount(txs).DivRound(decimal.NewFromInt(int64(len(txs))), moneyPlaces)
}

// GroupByKind buckets transactions per kind. Every kind has an entry.
func GroupByKind(txs []domain.Transaction) map[domain.TransactionKind][]domain.Transaction {
	out := make(map[domain.TransactionKind][]domain.Transaction, len(domain.TransactionKinds))
	for _, k := range domain.TransactionKinds {
		out[k] = []domain.Transaction{}
	}
	for _, tx := range txs {
		out[tx.Kind] = append(out[tx.Kind], tx)
	}
	return out
}

// GroupByMonth buckets transactions by "YYYY-MM" of their timestamp in loc.
func GroupByMonth(txs []domain.Transaction, loc *time.Location) map[string][]domain.Transaction {
	if loc == nil {
		loc = time.UTC
	}
	out := make(map[string][]domain.Transaction)
	for _, tx := range txs {
		ts := tx.Timestamp.In(loc)
		key := fmt.Sprintf("%04d-%02d", ts.Year(), int(ts.Month()))
		out[key] = append(out[key], tx)
	}
	return out
}

// TopAccountsByBalance ranks accounts by balance, highest first. n <= 0 returns all.
func TopAccountsByBalance(accounts []domain.Account, n int) []domain.Account {
	out := make([]domain.Account, len(accounts))
	copy(out, accounts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Balance.GreaterThan(out[j].Balance)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ClientTotalBalance sums the balances of one client's accounts.
func ClientTotalBalance(accounts []domain.Account) decimal.Decimal {
	total := decimal.Zero
	for _, acc := range accounts {
		total = total.Add(acc.Balance)
	}
	return total
}
