package jobs

import (
	"context"
	"time"

	"github.com/proanbud/proanbud-api/internal/logger"
	"github.com/proanbud/proanbud-api/internal/metrics"
	"go.uber.org/zap"
)

// AnalyticsRefreshJobName is the name of the analytics refresh job
const AnalyticsRefreshJobName = "analytics_refresh"

// AnalyticsRefresher recomputes an account's analytics summary when it is stale
type AnalyticsRefresher interface {
	RefreshIfStale(ctx context.Context, accountID string) (bool, error)
}

// AnalyticsRefreshJob keeps cached analytics summaries fresh for accounts that
// have no open live subscription.
type AnalyticsRefreshJob struct {
	accounts  AccountLister
	analytics AnalyticsRefresher
	metrics   *metrics.JobMetrics
	logger    *zap.Logger
	timeout   time.Duration
}

// NewAnalyticsRefreshJob creates the job. timeout bounds one full pass.
func NewAnalyticsRefreshJob(accounts AccountLister, analytics AnalyticsRefresher, m *metrics.JobMetrics, log *zap.Logger, timeout time.Duration) *AnalyticsRefreshJob {
	return &AnalyticsRefreshJob{
		accounts:  accounts,
		analytics: analytics,
		metrics:   m,
		logger:    logger.WithJob(log, AnalyticsRefreshJobName),
		timeout:   timeout,
	}
}

// Run executes one pass. It is called by the scheduler.
func (j *AnalyticsRefreshJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	_, _ = j.RunContext(ctx)
}

// RunContext refreshes every stale summary and returns how many were recomputed
// and how many accounts failed.
func (j *AnalyticsRefreshJob) RunContext(ctx context.Context) (refreshed, failed int) {
	start := time.Now()
	run, err := forEachAccount(ctx, j.accounts, j.logger, j.analytics.RefreshIfStale)
	duration := time.Since(start)
	j.metrics.ObserveDuration(AnalyticsRefreshJobName, duration)

	if err != nil {
		j.metrics.IncFailure(AnalyticsRefreshJobName)
		j.logger.Error("analytics refresh job failed",
			zap.Error(err),
			zap.Int("accounts", run.visited),
			zap.Duration("duration", duration))
		return run.changed, run.failed
	}
	if run.failed > 0 {
		j.metrics.IncFailure(AnalyticsRefreshJobName)
	} else {
		j.metrics.IncSuccess(AnalyticsRefreshJobName)
	}

	j.logger.Info("analytics refresh job completed",
		zap.Int("accounts", run.visited),
		zap.Int("refreshed", run.changed),
		zap.Int("failed", run.failed),
		zap.Duration("duration", duration))
	return run.changed, run.failed
}

// RegisterAnalyticsRefreshJob adds the job to scheduler. With runOnStartup a first
// pass runs in the background so startup is not delayed.
func RegisterAnalyticsRefreshJob(scheduler *Scheduler, job *AnalyticsRefreshJob, cronExpr string, runOnStartup bool) error {
	if runOnStartup {
		go job.Run()
	}
	return scheduler.AddJob(AnalyticsRefreshJobName, cronExpr, job.Run)
}
