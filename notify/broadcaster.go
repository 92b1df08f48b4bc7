package notify

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultBroadcastInterval is how often connected admins receive a snapshot
// regardless of order activity.
const DefaultBroadcastInterval = 30 * time.Second

// Broadcaster re-publishes the dashboard snapshot on a fixed cadence so a
// session that missed an order event catches up by the next tick.
type Broadcaster struct {
	publisher *Publisher
	interval  time.Duration
	logger    *log.Logger

	// ticks overrides the ticker; used by tests.
	ticks <-chan time.Time
}

func NewBroadcaster(publisher *Publisher, interval time.Duration, logger *log.Logger) *Broadcaster {
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Broadcaster{publisher: publisher, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, publishing one dashboardStats per tick.
func (b *Broadcaster) Run(ctx context.Context) {
	ticks := b.ticks
	if ticks == nil {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}
	b.logger.WithField("interval", b.interval.String()).Info("dashboard broadcaster started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("dashboard broadcaster stopped")
			return
		case <-ticks:
			b.tick(ctx)
		}
	}
}

func (b *Broadcaster) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.WithField("panic", r).Error("dashboard broadcast panicked, retrying next tick")
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, b.interval)
	defer cancel()
	if err := b.publisher.PublishSnapshot(ctx); err != nil {
		b.logger.WithError(err).Warn("periodic dashboard broadcast incomplete")
	}
}
