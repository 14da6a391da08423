package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/publisher"
)

// BatchPublisher is satisfied by *publisher.Publisher.
type BatchPublisher interface {
	PublishBatch(ctx context.Context, batchSize, maxAttempts int, now time.Time) (publisher.Result, error)
}

// OutboxPoller drives the publisher on a fixed interval. A full batch is
// followed immediately by another one so a backlog drains without waiting.
type OutboxPoller struct {
	Publisher   BatchPublisher
	Clock       clock.Clock
	Logger      *zap.Logger
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

func NewOutboxPoller(p BatchPublisher, clk clock.Clock, interval time.Duration, batchSize, maxAttempts int) *OutboxPoller {
	return &OutboxPoller{
		Publisher:   p,
		Clock:       clk,
		Logger:      logger.L(),
		Interval:    interval,
		BatchSize:   batchSize,
		MaxAttempts: maxAttempts,
	}
}

// Run blocks until ctx is cancelled.
func (w *OutboxPoller) Run(ctx context.Context) error {
	if w.Interval <= 0 {
		w.Interval = 5 * time.Second
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 100
	}
	if w.MaxAttempts <= 0 {
		w.MaxAttempts = 5
	}
	if w.Clock == nil {
		w.Clock = clock.NewRealClock()
	}
	if w.Logger == nil {
		w.Logger = logger.L()
	}

	tick := time.NewTicker(w.Interval)
	defer tick.Stop()

	for {
		w.drain(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
}

func (w *OutboxPoller) drain(ctx context.Context) {
	for ctx.Err() == nil {
		res, err := w.Publisher.PublishBatch(ctx, w.BatchSize, w.MaxAttempts, w.Clock.Now())
		if err != nil {
			if ctx.Err() == nil {
				w.Logger.Error("outbox_poll_failed", zap.Error(err))
			}
			return
		}
		if res.Processed < w.BatchSize {
			return
		}
	}
}
