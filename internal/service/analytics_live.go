package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/proanbud/proanbud-api/internal/domain"
	"github.com/proanbud/proanbud-api/internal/logger"
	"github.com/proanbud/proanbud-api/internal/metrics"
	"go.uber.org/zap"
)

// Subscribe keeps the account's analytics up to date. onUpdate receives a fresh
// summary whenever quotes or customers change and nil when a recompute fails.
// Calls to onUpdate never overlap and arrive in recompute order; results that
// were overtaken by a newer recompute are dropped.
//
// The returned function detaches the subscription. No onUpdate call happens after
// it returns and calling it again is a no-op. It must not be called from inside
// onUpdate.
func (s *AnalyticsService) Subscribe(ctx context.Context, accountID string, onUpdate func(*domain.Analytics)) (func(), error) {
	if err := precheck(ctx, s.store, accountID); err != nil {
		return nil, err
	}

	live := &liveAnalytics{
		svc:       s,
		ctx:       ctx,
		accountID: accountID,
		onUpdate:  onUpdate,
		logger:    logger.WithAccount(s.logger, accountID, ""),
	}

	quoteSub, err := s.quoteRepo.Watch(ctx, accountID, live.setQuotes)
	if err != nil {
		return nil, err
	}
	customerSub, err := s.customerRepo.Watch(ctx, accountID, live.setCustomers)
	if err != nil {
		quoteSub.Unsubscribe()
		return nil, err
	}
	s.metrics.SubscriptionOpened()
	live.logger.Debug("live analytics subscribed")

	var once sync.Once
	return func() {
		once.Do(func() {
			live.close()
			quoteSub.Unsubscribe()
			customerSub.Unsubscribe()
			s.metrics.SubscriptionClosed()
			live.logger.Debug("live analytics unsubscribed")
		})
	}, nil
}

type liveAnalytics struct {
	svc       *AnalyticsService
	ctx       context.Context
	accountID string
	onUpdate  func(*domain.Analytics)
	logger    *zap.Logger

	// mu guards the latest snapshots and the sequence counter
	mu            sync.Mutex
	quotes        []domain.Quote
	customers     int
	haveQuotes    bool
	haveCustomers bool
	seq           uint64

	// deliver serializes persistence and onUpdate calls
	deliver   sync.Mutex
	delivered uint64
	closed    bool
}

func (l *liveAnalytics) setQuotes(quotes []domain.Quote, err error) {
	if err != nil {
		l.fail(err)
		return
	}
	l.mu.Lock()
	l.quotes, l.haveQuotes = quotes, true
	l.mu.Unlock()
	l.recompute()
}

func (l *liveAnalytics) setCustomers(customers []domain.Customer, err error) {
	if err != nil {
		l.fail(err)
		return
	}
	l.mu.Lock()
	l.customers, l.haveCustomers = len(customers), true
	l.mu.Unlock()
	l.recompute()
}

// recompute aggregates the latest snapshots of both collections. Nothing is
// delivered until each collection has reported once.
func (l *liveAnalytics) recompute() {
	l.mu.Lock()
	if !l.haveQuotes || !l.haveCustomers {
		l.mu.Unlock()
		return
	}
	l.seq++
	seq := l.seq
	quotes, customers := l.quotes, l.customers
	l.mu.Unlock()

	start := time.Now()
	summary, err := l.aggregate(quotes, customers)
	l.svc.metrics.ObserveRecompute(metrics.TriggerLive, time.Since(start), err)
	if err == nil {
		summary.Version = seq
	}

	l.deliver.Lock()
	defer l.deliver.Unlock()
	if !l.admit(seq) {
		return
	}
	if err != nil {
		l.logger.Error("live analytics recompute failed", zap.Uint64("seq", seq), zap.Error(err))
		l.onUpdate(nil)
		return
	}
	if err := l.svc.analyticsRepo.Save(l.ctx, l.accountID, summary); err != nil {
		l.logger.Warn("failed to persist live analytics", zap.Uint64("seq", seq), zap.Error(err))
	}
	l.onUpdate(summary)
}

// fail reports a snapshot that could not be decoded
func (l *liveAnalytics) fail(err error) {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	l.deliver.Lock()
	defer l.deliver.Unlock()
	if !l.admit(seq) {
		return
	}
	l.logger.Error("live analytics snapshot failed", zap.Uint64("seq", seq), zap.Error(err))
	l.onUpdate(nil)
}

// admit reports whether seq may be delivered. Callers hold l.deliver.
func (l *liveAnalytics) admit(seq uint64) bool {
	if l.closed {
		return false
	}
	if seq <= l.delivered {
		l.svc.metrics.IncStaleDiscard()
		l.logger.Debug("discarding stale analytics",
			zap.Uint64("seq", seq),
			zap.Uint64("delivered", l.delivered))
		return false
	}
	l.delivered = seq
	return true
}

func (l *liveAnalytics) aggregate(quotes []domain.Quote, customers int) (summary *domain.Analytics, err error) {
	defer func() {
		if r := recover(); r != nil {
			summary, err = nil, fmt.Errorf("analytics recompute panicked: %v", r)
		}
	}()
	result := l.svc.engine.Aggregate(quotes, customers)
	return &result, nil
}

func (l *liveAnalytics) close() {
	l.deliver.Lock()
	l.closed = true
	l.deliver.Unlock()
}
