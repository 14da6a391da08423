package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/repository"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/util"
)

var ErrInvalidEvent = errors.New("invalid event")

// Service records domain events in the outbox. It never talks to the bus;
// the publisher picks the rows up later.
type Service struct {
	outbox repository.OutboxRepository
	clock  clock.Clock
}

// New constructs the emitter service.
func New(outboxRepo repository.OutboxRepository, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Service{outbox: outboxRepo, clock: clk}
}

// Emit durably records one pending event in its own transaction and returns
// the stored row. Store failures are returned to the caller.
func (s *Service) Emit(ctx context.Context, tenantID int64, eventName, entityType, entityID string, payload any) (model.OutboxEvent, error) {
	return s.EmitTx(ctx, nil, tenantID, eventName, entityType, entityID, payload)
}

// EmitTx is Emit inside the caller's business transaction, so the event
// commits or rolls back together with the mutation that caused it.
func (s *Service) EmitTx(ctx context.Context, tx *sqlx.Tx, tenantID int64, eventName, entityType, entityID string, payload any) (model.OutboxEvent, error) {
	if tenantID <= 0 {
		return model.OutboxEvent{}, fmt.Errorf("%w: tenant id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(eventName) == "" {
		return model.OutboxEvent{}, fmt.Errorf("%w: event name is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(entityType) == "" {
		return model.OutboxEvent{}, fmt.Errorf("%w: entity type is required", ErrInvalidEvent)
	}

	doc, err := encodePayload(payload)
	if err != nil {
		return model.OutboxEvent{}, err
	}

	now := s.clock.Now()
	ev := model.OutboxEvent{
		ID:         util.NewID(now),
		TenantID:   tenantID,
		EventName:  eventName,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    doc,
		Status:     model.OutboxPending,
		Attempts:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.outbox.Insert(ctx, tx, ev); err != nil {
		return model.OutboxEvent{}, fmt.Errorf("insert outbox: %w", err)
	}
	return ev, nil
}

// encodePayload accepts raw JSON or any value json.Marshal can handle. The
// stored payload must be a JSON object so the publisher can stamp the
// correlation id into it.
func encodePayload(payload any) (json.RawMessage, error) {
	var doc []byte
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		doc = p
	case []byte:
		doc = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal payload: %v", ErrInvalidEvent, err)
		}
		doc = b
	}

	var obj map[string]any
	if err := json.Unmarshal(doc, &obj); err != nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object", ErrInvalidEvent)
	}
	if obj == nil {
		return json.RawMessage("{}"), nil
	}
	return json.RawMessage(doc), nil
}
