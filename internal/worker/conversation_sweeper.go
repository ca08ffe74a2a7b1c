package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/maintenance-voice/internal/observability"
	"github.com/spec-kit/maintenance-voice/internal/voice/conversation"
)

// ConversationSweeper evicts idle conversations on a fixed period.
type ConversationSweeper struct {
	store    conversation.Store
	ttl      time.Duration
	interval time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewConversationSweeper builds a sweeper. Non-positive ttl and interval fall
// back to conversation.DefaultTTL and a tenth of it.
func NewConversationSweeper(store conversation.Store, ttl, interval time.Duration, metrics *observability.Metrics, logger *zap.Logger) *ConversationSweeper {
	if ttl <= 0 {
		ttl = conversation.DefaultTTL
	}
	if interval <= 0 {
		interval = ttl / 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationSweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *ConversationSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("conversation sweeper started", zap.Duration("ttl", s.ttl), zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("conversation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("conversation sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce runs a single eviction pass and refreshes the live gauge.
func (s *ConversationSweeper) SweepOnce(ctx context.Context) (int, error) {
	removed, err := s.store.Sweep(ctx, s.now(), s.ttl)
	if err != nil {
		return removed, err
	}
	s.metrics.RecordSwept(removed)
	if live, err := s.store.Len(ctx); err == nil {
		s.metrics.SetLiveConversations(live)
	}
	if removed > 0 {
		s.logger.Debug("conversations swept", zap.Int("removed", removed))
	}
	return removed, nil
}
