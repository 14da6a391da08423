package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/kafka"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/metrics"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

// MessageSource is satisfied by *kafka.Consumer.
type MessageSource interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// EventHandler is satisfied by *matcher.Matcher.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev model.BusEvent) ([]model.AutomationRun, error)
}

// MatcherWorker:
// - fetches bus events from Kafka,
// - fans them out to processors that run the rule matcher,
// - commits each message once handled (poison messages are committed and skipped).
type MatcherWorker struct {
	Source  MessageSource
	Handler EventHandler
	Logger  *zap.Logger

	Workers      int           // goroutines processing messages
	Retries      int           // extra HandleEvent attempts on store errors
	RetryBackoff time.Duration // first retry delay, doubled per attempt
}

func NewMatcherWorker(src MessageSource, h EventHandler) *MatcherWorker {
	return &MatcherWorker{
		Source:       src,
		Handler:      h,
		Logger:       logger.L(),
		Workers:      16,
		Retries:      3,
		RetryBackoff: 200 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled and all processors have returned.
func (w *MatcherWorker) Run(ctx context.Context) error {
	if w.Workers <= 0 {
		w.Workers = 16
	}
	if w.Logger == nil {
		w.Logger = logger.L()
	}

	msgCh := make(chan kafka.Message, w.Workers*2)

	go func() {
		defer close(msgCh)
		for {
			m, err := w.Source.Fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.Logger.Warn("kafka_fetch_failed", zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(200 * time.Millisecond):
				}
				continue
			}
			select {
			case msgCh <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < w.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range msgCh {
				w.processOne(ctx, m)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (w *MatcherWorker) processOne(ctx context.Context, m kafka.Message) {
	ev, err := kafka.Decode(m)
	if err != nil {
		metrics.EventsConsumedTotal.WithLabelValues("poison").Inc()
		w.Logger.Warn("bus_event_poison",
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		)
		w.commit(ctx, m)
		return
	}

	result := "handled"
	delay := w.RetryBackoff
	for attempt := 0; ; attempt++ {
		runs, err := w.Handler.HandleEvent(ctx, ev)
		if err == nil {
			w.Logger.Debug("bus_event_handled",
				zap.Int64("tenant_id", ev.TenantID),
				zap.String("event_name", ev.EventName),
				zap.String("event_id", ev.SourceEventID()),
				zap.Int("runs", len(runs)),
			)
			break
		}
		if attempt >= w.Retries || ctx.Err() != nil {
			result = "error"
			w.Logger.Error("bus_event_failed",
				zap.Int64("tenant_id", ev.TenantID),
				zap.String("event_name", ev.EventName),
				zap.String("event_id", ev.SourceEventID()),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(delay):
		}
		delay *= 2
	}
	metrics.EventsConsumedTotal.WithLabelValues(result).Inc()

	if ctx.Err() != nil {
		// leave uncommitted; the group redelivers after restart
		return
	}
	w.commit(ctx, m)
}

func (w *MatcherWorker) commit(ctx context.Context, m kafka.Message) {
	if err := w.Source.Commit(ctx, m); err != nil {
		w.Logger.Warn("kafka_commit_failed", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}
