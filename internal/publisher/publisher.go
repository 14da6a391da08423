// Package publisher moves pending outbox events onto the event bus with
// bounded exponential retry.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/metrics"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/util"
)

const maxErrorLen = 1024

// Bus is the outbound side of the event bus.
type Bus interface {
	Deliver(ctx context.Context, ev model.BusEvent) error
}

// Result summarises one PublishBatch call.
type Result struct {
	Processed   int `json:"processed"`
	Published   int `json:"published"`
	Failed      int `json:"failed"`
	Rescheduled int `json:"rescheduled"`
	// Stale counts rows finalized by someone else while we were delivering.
	Stale int `json:"stale"`
}

type Publisher struct {
	outbox repository.OutboxRepository
	bus    Bus
	logger *zap.Logger

	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Lease hides claimed rows from overlapping publishers while delivery is in flight.
	Lease time.Duration
}

func New(outbox repository.OutboxRepository, bus Bus, log *zap.Logger) *Publisher {
	if log == nil {
		log = logger.L()
	}
	return &Publisher{
		outbox:    outbox,
		bus:       bus,
		logger:    log,
		BaseDelay: 60 * time.Second,
		MaxDelay:  time.Hour,
		Lease:     5 * time.Minute,
	}
}

// PublishBatch delivers up to batchSize ready events, oldest first. Delivery
// failures are retried later with backoff until maxAttempts, then the event
// is marked failed. Only a failure to read the outbox is returned as an error.
func (p *Publisher) PublishBatch(ctx context.Context, batchSize, maxAttempts int, now time.Time) (Result, error) {
	var res Result
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	events, err := p.outbox.ClaimReady(ctx, batchSize, now, p.Lease)
	if err != nil {
		return res, fmt.Errorf("claim ready events: %w", err)
	}
	metrics.OutboxBatchSize.Observe(float64(len(events)))

	for _, ev := range events {
		res.Processed++

		derr := p.deliver(ctx, ev)
		outcome, ferr := p.finalize(ctx, ev, derr, maxAttempts, now)
		switch {
		case errors.Is(ferr, repository.ErrStaleOutboxEvent):
			res.Stale++
			outcome = "stale"
			p.logger.Warn("outbox_event_stale", zap.String("event_id", ev.ID))
		case ferr != nil:
			// row stays pending and becomes visible again once the lease expires
			p.logger.Error("outbox_finalize_failed",
				zap.String("event_id", ev.ID),
				zap.String("outcome", outcome),
				zap.Error(ferr),
			)
			continue
		}

		switch outcome {
		case "published":
			res.Published++
		case "failed":
			res.Failed++
		case "rescheduled":
			res.Rescheduled++
		}
		metrics.OutboxEventsTotal.WithLabelValues(outcome).Inc()
	}

	if res.Processed > 0 {
		p.logger.Info("outbox_batch_published",
			zap.Int("processed", res.Processed),
			zap.Int("published", res.Published),
			zap.Int("rescheduled", res.Rescheduled),
			zap.Int("failed", res.Failed),
			zap.Int("stale", res.Stale),
		)
	}
	return res, nil
}

func (p *Publisher) finalize(ctx context.Context, ev model.OutboxEvent, derr error, maxAttempts int, now time.Time) (string, error) {
	if derr == nil {
		return "published", p.outbox.MarkPublished(ctx, ev.ID, now)
	}

	attempts := ev.Attempts + 1
	msg := util.Truncate(derr.Error(), maxErrorLen)
	if attempts >= maxAttempts {
		p.logger.Error("outbox_event_failed",
			zap.String("event_id", ev.ID),
			zap.String("event_name", ev.EventName),
			zap.Int("attempts", attempts),
			zap.Error(derr),
		)
		return "failed", p.outbox.MarkFailed(ctx, ev.ID, msg, now)
	}

	next := now.Add(Backoff(attempts, p.BaseDelay, p.MaxDelay))
	p.logger.Warn("outbox_event_rescheduled",
		zap.String("event_id", ev.ID),
		zap.Int("attempts", attempts),
		zap.Time("next_attempt_at", next),
		zap.Error(derr),
	)
	return "rescheduled", p.outbox.Reschedule(ctx, ev.ID, next, msg, now)
}

// deliver sends the event with its id stamped into the payload as sourceEventId.
func (p *Publisher) deliver(ctx context.Context, ev model.OutboxEvent) error {
	payload := map[string]any{}
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}
	payload[model.SourceEventIDField] = ev.ID

	return p.bus.Deliver(ctx, model.BusEvent{
		TenantID:   ev.TenantID,
		EventName:  ev.EventName,
		EntityType: ev.EntityType,
		EntityID:   ev.EntityID,
		Payload:    payload,
	})
}
