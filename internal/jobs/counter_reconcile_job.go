package jobs

import (
	"context"
	"time"

	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/logger"
	"github.com/proanbud/proanbud-api/internal/metrics"
	"go.uber.org/zap"
)

// CounterReconcileJobName is the name of the customer counter reconciliation job
const CounterReconcileJobName = "counter_reconcile"

// CounterReconciler recounts customer quote counters from the quotes
type CounterReconciler interface {
	Reconcile(ctx context.Context, accountID string) (*domain.ReconcileResult, error)
}

// CounterReconcileJob repairs customer counters left behind by counter updates
// that failed after their quote was written.
type CounterReconcileJob struct {
	accounts   AccountLister
	reconciler CounterReconciler
	metrics    *metrics.JobMetrics
	logger     *zap.Logger
	timeout    time.Duration
}

func NewCounterReconcileJob(accounts AccountLister, reconciler CounterReconciler, m *metrics.JobMetrics, log *zap.Logger, timeout time.Duration) *CounterReconcileJob {
	return &CounterReconcileJob{
		accounts:   accounts,
		reconciler: reconciler,
		metrics:    m,
		logger:     logger.WithJob(log, CounterReconcileJobName),
		timeout:    timeout,
	}
}

func (j *CounterReconcileJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	_ = j.RunContext(ctx)
}

// RunContext reconciles every account and returns the number of corrected customers
func (j *CounterReconcileJob) RunContext(ctx context.Context) int {
	start := time.Now()
	corrected := 0
	run, err := forEachAccount(ctx, j.accounts, j.logger, func(ctx context.Context, accountID string) (bool, error) {
		result, err := j.reconciler.Reconcile(ctx, accountID)
		if err != nil {
			return false, err
		}
		corrected += result.Corrected
		return result.Corrected > 0, nil
	})
	duration := time.Since(start)
	j.metrics.ObserveDuration(CounterReconcileJobName, duration)

	if err != nil || run.failed > 0 {
		j.metrics.IncFailure(CounterReconcileJobName)
	} else {
		j.metrics.IncSuccess(CounterReconcileJobName)
	}
	if err != nil {
		j.logger.Error("counter reconcile job failed", zap.Error(err), zap.Duration("duration", duration))
		return corrected
	}

	level := zap.DebugLevel
	if corrected > 0 {
		level = zap.InfoLevel
	}
	j.logger.Log(level, "counter reconcile job completed",
		zap.Int("accounts", run.visited),
		zap.Int("customers_corrected", corrected),
		zap.Int("failed", run.failed),
		zap.Duration("duration", duration))
	return corrected
}

// RegisterCounterReconcileJob adds the job to scheduler
func RegisterCounterReconcileJob(scheduler *Scheduler, job *CounterReconcileJob, cronExpr string) error {
	return scheduler.AddJob(CounterReconcileJobName, cronExpr, job.Run)
}
