package services

import (
	"context"
	"time"

	"speaktoheaven/logger"
)

const (
	DefaultEventRetention = 30 * 24 * time.Hour
	DefaultSweepInterval  = time.Hour
)

// EventSweeper drops processed webhook event ids once the processor can no
// longer redeliver them.
type EventSweeper struct {
	log       *logger.Logger
	accounts  AccountStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
}

func NewEventSweeper(log *logger.Logger, accounts AccountStore, retention, interval time.Duration) *EventSweeper {
	if retention <= 0 {
		retention = DefaultEventRetention
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &EventSweeper{
		log:       log.With("service", "EventSweeper"),
		accounts:  accounts,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// SweepOnce never panics; a failed pass is logged and retried on the next tick.
func (s *EventSweeper) SweepOnce(ctx context.Context) (n int64) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Event sweep panic", "panic", r)
		}
	}()

	cutoff := s.now().Add(-s.retention)
	n, err := s.accounts.PruneBillingEvents(ctx, cutoff)
	if err != nil {
		s.log.Error("Event sweep failed", "error", err)
		return 0
	}
	if n > 0 {
		s.log.Info("Pruned billing events", "count", n, "before", cutoff.Format(time.RFC3339))
	}
	return n
}

// Run sweeps on every tick until ctx is done.
func (s *EventSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}
