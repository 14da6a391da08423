package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

const (
	HeaderEventName     = "event-name"
	HeaderSourceEventID = "source-event-id"
)

// messageWriter is the subset of *kafka.Writer the producer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes bus events to one topic. Messages are keyed by tenant so
// a tenant's events land on one partition.
type Producer struct {
	w messageWriter
}

func NewProducerFromConfig(c Config) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: orDuration(c.WriteTimeout, 10*time.Second),
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Producer{w: w}
}

// Deliver blocks until the broker acknowledged the message.
func (p *Producer) Deliver(ctx context.Context, ev model.BusEvent) error {
	msg, err := Encode(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error { return p.w.Close() }

// Encode renders a bus event as a kafka message.
func Encode(ev model.BusEvent) (kafka.Message, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode bus event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.TenantID, 10)),
		Value: b,
		Headers: []kafka.Header{
			{Key: HeaderEventName, Value: []byte(ev.EventName)},
			{Key: HeaderSourceEventID, Value: []byte(ev.SourceEventID())},
		},
	}, nil
}

// Decode parses a consumed message. Messages without a tenant or event
// name are rejected.
func Decode(m Message) (model.BusEvent, error) {
	var ev model.BusEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		return model.BusEvent{}, fmt.Errorf("decode bus event: %w", err)
	}
	if ev.TenantID <= 0 || ev.EventName == "" {
		return model.BusEvent{}, fmt.Errorf("decode bus event: missing tenantId or eventName")
	}
	if ev.Payload == nil {
		ev.Payload = map[string]any{}
	}
	return ev, nil
}
