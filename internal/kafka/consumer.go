package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/config"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/logger"
)

type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	MinBytes       int           // default 1KB
	MaxBytes       int           // default 10MB
	CommitInterval time.Duration // default 1s
	MaxWait        time.Duration // default 50ms
	WriteTimeout   time.Duration // producer only, default 10s
}

// ConfigFrom maps the kafka config section onto reader/writer settings.
func ConfigFrom(c config.KafkaConfig) Config {
	return Config{
		Brokers:        c.Brokers,
		Topic:          c.Topic,
		GroupID:        c.GroupID,
		MinBytes:       c.MinBytes,
		MaxBytes:       c.MaxBytes,
		CommitInterval: time.Duration(c.CommitInterval) * time.Millisecond,
		WriteTimeout:   c.WriteTimeout,
	}
}

// Consumer reads bus events for the matcher worker. Offsets are committed
// explicitly after an event is handled.
type Consumer struct {
	r *kafka.Reader
}

func NewConsumerFromConfig(c Config) *Consumer {
	rc := kafka.ReaderConfig{
		Brokers:        c.Brokers,
		GroupID:        c.GroupID,
		Topic:          c.Topic,
		MinBytes:       orInt(c.MinBytes, 1<<10),
		MaxBytes:       orInt(c.MaxBytes, 10<<20),
		CommitInterval: orDuration(c.CommitInterval, time.Second),
		MaxWait:        orDuration(c.MaxWait, 50*time.Millisecond),
		// a group with no committed offset must not skip events already on the topic
		StartOffset: kafka.FirstOffset,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.L().Warn("kafka_reader_error", zap.String("detail", fmt.Sprintf(msg, args...)))
		}),
	}
	return &Consumer{r: kafka.NewReader(rc)}
}

func orInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

type Message = kafka.Message

func (c *Consumer) Fetch(ctx context.Context) (Message, error) {
	return c.r.FetchMessage(ctx)
}

func (c *Consumer) Commit(ctx context.Context, m Message) error {
	return c.r.CommitMessages(ctx, m)
}

func (c *Consumer) Close() error { return c.r.Close() }
