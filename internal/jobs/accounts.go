package jobs

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// AccountLister enumerates the accounts a job visits
type AccountLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// accountRun counts the outcome of a job across accounts
type accountRun struct {
	visited int
	changed int
	failed  int
}

// forEachAccount calls fn for every account. A failing account is logged and
// skipped; the loop stops early when ctx is done.
func forEachAccount(ctx context.Context, lister AccountLister, logger *zap.Logger, fn func(ctx context.Context, accountID string) (bool, error)) (accountRun, error) {
	var run accountRun
	ids, err := lister.ListIDs(ctx)
	if err != nil {
		return run, fmt.Errorf("failed to list accounts: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return run, err
		}
		run.visited++
		changed, err := fn(ctx, id)
		if err != nil {
			run.failed++
			logger.Warn("account skipped", zap.String("account_id", id), zap.Error(err))
			continue
		}
		if changed {
			run.changed++
		}
	}
	return run, nil
}
