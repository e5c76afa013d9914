/**
 * @description
 * Cron scheduler setup for the ledger batch jobs.
 */

package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/solubank/ledger-service/internal/config"
)

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *zap.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *zap.Logger, cfg config.Config) *Scheduler {
	logger = logger.With(zap.String("component", "scheduler"))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{sugar: logger.Sugar()}),
		cron.SkipIfStillRunning(cronLogger{sugar: logger.Sugar()}),
	))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	s.schedule("anomaly scan", s.config.AnomalyScanSchedule, s.jobs.ScanAnomalies)
	s.schedule("inactivity scan", s.config.InactivitySchedule, s.jobs.ScanInactivity)
	s.schedule("low balance scan", s.config.LowBalanceSchedule, s.jobs.ScanLowBalances)
	s.schedule("balance reconciliation", s.config.ReconcileSchedule, s.jobs.ReconcileBalances)

	s.cron.Start()
}

func (s *Scheduler) schedule(name, spec string, job func()) {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		s.logger.Error("failed to schedule "+name+" job", zap.String("schedule", spec), zap.Error(err))
		return
	}
	s.logger.Info("scheduled "+name+" job", zap.String("schedule", spec))
}

// Entries reports how many jobs are registered.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
