/**
 * @description
 * Rule-based anomaly classification over transaction snapshots. Every function is
 * pure: callers pass the snapshot they loaded and an explicit "now".
 *
 * @notes
 * - The large-amount threshold is exclusive (amount must be strictly greater).
 * - The burst rule is anchored to the evaluation instant, not to the newest
 *   transaction of the account.
 */

package anomaly

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solubank/ledger-service/internal/domain"
)

// Rule names reported by Reasons and used as metric labels.
const (
	RuleLargeAmount     = "large_amount"
	RuleUnusualLocation = "unusual_location"
	RuleBurst           = "burst"
)

// Rules holds the tunable parameters of the heuristics.
type Rules struct {
	LargeAmountThreshold decimal.Decimal
	HomeRegion           string
	BurstWindow          time.Duration
}

// DefaultRules returns threshold 10000, home region "Maroc" and a one minute burst window.
func DefaultRules() Rules {
	return Rules{
		LargeAmountThreshold: decimal.NewFromInt(10000),
		HomeRegion:           "Maroc",
		BurstWindow:          time.Minute,
	}
}

// Result groups the output of every snapshot-level rule.
type Result struct {
	LargeAmount     []domain.Transaction `json:"large_amount"`
	UnusualLocation []domain.Transaction `json:"unusual_location"`
	Suspicious      []domain.Transaction `json:"suspicious"`
}

// IsLargeAmount reports whether tx exceeds the threshold.
func (r Rules) IsLargeAmount(tx domain.Transaction) bool {
	return tx.Amount.GreaterThan(r.LargeAmountThreshold)
}

// IsUnusualLocation reports whether tx happened outside the home region. An empty
// location is unusual.
func (r Rules) IsUnusualLocation(tx domain.Transaction) bool {
	return !strings.Contains(strings.ToLower(tx.Location), strings.ToLower(r.HomeRegion))
}

// LargeAmount keeps transactions above the threshold, in input order.
func (r Rules) LargeAmount(txs []domain.Transaction) []domain.Transaction {
	return filter(txs, r.IsLargeAmount)
}

// LargeAmountByAmount is LargeAmount sorted by amount, largest first. Ties keep input order.
func (r Rules) LargeAmountByAmount(txs []domain.Transaction) []domain.Transaction {
	out := r.LargeAmount(txs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.GreaterThan(out[j].Amount)
	})
	return out
}

// UnusualLocation keeps transactions outside the home region, in input order.
func (r Rules) UnusualLocation(txs []domain.Transaction) []domain.Transaction {
	return filter(txs, r.IsUnusualLocation)
}

// Burst returns the transactions of accountID whose timestamp is at or after now minus
// the burst window. Future-dated transactions are included.
func (r Rules) Burst(txs []domain.Transaction, accountID int64, now time.Time) []domain.Transaction {
	since := now.Add(-r.BurstWindow)
	return filter(txs, func(tx domain.Transaction) bool {
		return tx.AccountID == accountID && !tx.Timestamp.Before(since)
	})
}

// Suspicious is the union, keyed by transaction id, of the large-amount and
// unusual-location rules. Each transaction appears once, in input order. Unsaved
// transactions (id 0) have no identity to share and are never merged.
func (r Rules) Suspicious(txs []domain.Transaction) []domain.Transaction {
	seen := make(map[int64]struct{}, len(txs))
	out := make([]domain.Transaction, 0)
	for _, tx := range txs {
		if !r.IsLargeAmount(tx) && !r.IsUnusualLocation(tx) {
			continue
		}
		if tx.ID != 0 {
			if _, dup := seen[tx.ID]; dup {
				continue
			}
			seen[tx.ID] = struct{}{}
		}
		out = append(out, tx)
	}
	return out
}

// Classify evaluates every snapshot-level rule once.
func (r Rules) Classify(txs []domain.Transaction) Result {
	return Result{
		LargeAmount:     r.LargeAmountByAmount(txs),
		UnusualLocation: r.UnusualLocation(txs),
		Suspicious:      r.Suspicious(txs),
	}
}

// Reasons lists the snapshot-level rules that flag tx.
func (r Rules) Reasons(tx domain.Transaction) []string {
	var reasons []string
	if r.IsLargeAmount(tx) {
		reasons = append(reasons, RuleLargeAmount)
	}
	if r.IsUnusualLocation(tx) {
		reasons = append(reasons, RuleUnusualLocation)
	}
	return reasons
}

func filter(txs []domain.Transaction, keep func(domain.Transaction) bool) []domain.Transaction {
	out := make([]domain.Transaction, 0)
	for _, tx := range txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	return out
}
