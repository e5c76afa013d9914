/**
 * @description
 * Batch jobs run by the scheduler and by the internal jobs endpoint. Every job is
 * read-only over the ledger except the reconciliation, which re-applies queued balance
 * deltas.
 */

package app

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/anomaly"
	"github.com/solubank/ledger-service/internal/domain"
)

// Job names, used for scheduling, metric labels and the internal endpoint.
const (
	JobAnomalyScan    = "anomaly-scan"
	JobInactivityScan = "inactivity-scan"
	JobLowBalanceScan = "low-balance-scan"
	JobReconcile      = "reconcile"
)

// ErrUnknownJob is returned by Run for a name that is not registered.
var ErrUnknownJob = errors.New("unknown job")

// JobReport summarises one run.
type JobReport struct {
	Job       string `json:"job"`
	Processed int    `json:"processed"`
	Published int    `json:"published"`
	Failed    int    `json:"failed"`
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	service *Service
	logger  *zap.Logger

	mu      sync.Mutex
	flagged map[int64]struct{}
}

// NewJobs creates a new Jobs runner.
func NewJobs(service *Service, logger *zap.Logger) *Jobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Jobs{
		service: service,
		logger:  logger.With(zap.String("component", "jobs")),
		flagged: make(map[int64]struct{}),
	}
}

// Run executes the named job once.
func (j *Jobs) Run(ctx context.Context, name string) (JobReport, error) {
	var run func(context.Context) (JobReport, error)
	switch name {
	case JobAnomalyScan:
		run = j.scanAnomalies
	case JobInactivityScan:
		run = j.scanInactivity
	case JobLowBalanceScan:
		run = j.scanLowBalances
	case JobReconcile:
		run = j.reconcile
	default:
		return JobReport{}, ErrUnknownJob
	}

	started := time.Now()
	j.logger.Info("starting job", zap.String("job", name))
	rep, err := run(ctx)
	rep.Job = name
	jobDuration.WithLabelValues(name).Observe(time.Since(started).Seconds())
	if err != nil {
		j.logger.Error("job failed", zap.String("job", name), zap.Error(err))
		return rep, err
	}
	j.logger.Info("job finished",
		zap.String("job", name),
		zap.Int("processed", rep.Processed),
		zap.Int("published", rep.Published),
		zap.Int("failed", rep.Failed),
	)
	return rep, nil
}

// ScanAnomalies is the scheduled form of the anomaly scan.
func (j *Jobs) ScanAnomalies() { j.runScheduled(JobAnomalyScan) }

// ScanInactivity is the scheduled form of the inactivity scan.
func (j *Jobs) ScanInactivity() { j.runScheduled(JobInactivityScan) }

// ScanLowBalances is the scheduled form of the low-balance scan.
func (j *Jobs) ScanLowBalances() { j.runScheduled(JobLowBalanceScan) }

// ReconcileBalances is the scheduled form of the reconciliation job.
func (j *Jobs) ReconcileBalances() { j.runScheduled(JobReconcile) }

func (j *Jobs) runScheduled(name string) {
	_, _ = j.Run(context.Background(), name)
}

// scanAnomalies publishes an anomaly event for every suspicious transaction not already
// flagged by an earlier run of this process.
func (j *Jobs) scanAnomalies(ctx context.Context) (JobReport, error) {
	var rep JobReport
	txs, err := j.service.allTransactions(ctx)
	if err != nil {
		return rep, err
	}
	rules := j.service.Rules()
	suspicious := rules.Suspicious(txs)
	rep.Processed = len(txs)

	for _, tx := range suspicious {
		if !j.markFlagged(tx.ID) {
			continue
		}
		reasons := rules.Reasons(tx)
		for _, reason := range reasons {
			anomaliesFlagged.WithLabelValues(reason).Inc()
		}
		j.service.publish(ctx, domain.EventAnomalyDetected, domain.AnomalyDetectedEvent{
			EventID:       newEventID(),
			TransactionID: tx.ID,
			AccountID:     tx.AccountID,
			Amount:        tx.Amount,
			Location:      tx.Location,
			Reasons:       reasons,
			DetectedAt:    j.service.now(),
		})
		rep.Published++
	}

	for _, accountID := range burstAccounts(rules, txs, j.service.now()) {
		anomaliesFlagged.WithLabelValues(anomaly.RuleBurst).Inc()
		j.logger.Warn("transaction burst detected", zap.Int64("account_id", accountID))
	}
	return rep, nil
}

// burstAccounts lists the accounts with more than one transaction inside the burst
// window, in order of first appearance.
func burstAccounts(rules anomaly.Rules, txs []domain.Transaction, now time.Time) []int64 {
	var order []int64
	byAccount := make(map[int64][]domain.Transaction)
	for _, tx := range txs {
		if _, ok := byAccount[tx.AccountID]; !ok {
			order = append(order, tx.AccountID)
		}
		byAccount[tx.AccountID] = append(byAccount[tx.AccountID], tx)
	}

	var out []int64
	for _, accountID := range order {
		if len(rules.Burst(byAccount[accountID], accountID, now)) > 1 {
			out = append(out, accountID)
		}
	}
	return out
}

func (j *Jobs) markFlagged(transactionID int64) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.flagged[transactionID]; ok {
		return false
	}
	j.flagged[transactionID] = struct{}{}
	return true
}

func (j *Jobs) scanInactivity(ctx context.Context) (JobReport, error) {
	var rep JobReport
	days := j.service.opts.InactivityDays
	inactive, err := j.service.InactiveAccounts(ctx, days)
	if err != nil {
		return rep, err
	}
	rep.Processed = len(inactive)
	for _, row := range inactive {
		j.service.publish(ctx, domain.EventAccountInactive, domain.AccountAlertEvent{
			EventID:       newEventID(),
			AccountID:     row.AccountID,
			AccountNumber: row.AccountNumber,
			ClientName:    row.ClientName,
			Balance:       row.Balance,
			Threshold:     formatDays(days),
			OccurredAt:    j.service.now(),
		})
		rep.Published++
	}
	return rep, nil
}

func (j *Jobs) scanLowBalances(ctx context.Context) (JobReport, error) {
	var rep JobReport
	threshold := j.service.opts.LowBalanceThreshold
	alerts, err := j.service.LowBalanceAlerts(ctx, &threshold)
	if err != nil {
		return rep, err
	}
	rep.Processed = len(alerts)
	for _, row := range alerts {
		j.service.publish(ctx, domain.EventAccountLowBalance, domain.AccountAlertEvent{
			EventID:       newEventID(),
			AccountID:     row.AccountID,
			AccountNumber: row.AccountNumber,
			ClientName:    row.ClientName,
			Balance:       row.Balance,
			Threshold:     threshold.String(),
			OccurredAt:    j.service.now(),
		})
		rep.Published++
	}
	return rep, nil
}

func (j *Jobs) reconcile(ctx context.Context) (JobReport, error) {
	result, err := j.service.ReconcileBalances(ctx)
	return JobReport{
		Processed: result.Resolved + result.Failed,
		Failed:    result.Failed,
	}, err
}

func formatDays(days int) string {
	return strconv.Itoa(days) + "d"
}
