package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/clock"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/kafka"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/publisher"
)

type chanSource struct {
	ch        chan kafka.Message
	mu        sync.Mutex
	committed []int64
}

func (s *chanSource) Fetch(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m := <-s.ch:
		return m, nil
	}
}

func (s *chanSource) Commit(_ context.Context, m kafka.Message) error {
	s.mu.Lock()
	s.committed = append(s.committed, m.Offset)
	s.mu.Unlock()
	return nil
}

func (s *chanSource) commits() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.committed...)
}

type scriptedHandler struct {
	mu     sync.Mutex
	seen   []model.BusEvent
	errors []error // returned in order, then nil
}

func (h *scriptedHandler) HandleEvent(_ context.Context, ev model.BusEvent) ([]model.AutomationRun, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, ev)
	if len(h.errors) > 0 {
		err := h.errors[0]
		h.errors = h.errors[1:]
		return nil, err
	}
	return nil, nil
}

func (h *scriptedHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func busMessage(t *testing.T, offset int64, ev model.BusEvent) kafka.Message {
	t.Helper()
	m, err := kafka.Encode(ev)
	require.NoError(t, err)
	m.Offset = offset
	return m
}

func TestMatcherWorker_HandlesAndCommits(t *testing.T) {
	src := &chanSource{ch: make(chan kafka.Message, 4)}
	h := &scriptedHandler{errors: []error{errors.New("deadlock")}}
	w := NewMatcherWorker(src, h)
	w.Workers = 1
	w.RetryBackoff = time.Millisecond

	src.ch <- kafka.Message{Offset: 1, Value: []byte("not json")}
	src.ch <- busMessage(t, 2, model.BusEvent{TenantID: 1, EventName: "crm/appointment.created", Payload: map[string]any{"status": "scheduled"}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(src.commits()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []int64{1, 2}, src.commits())
	// first attempt failed, retry succeeded
	assert.Equal(t, 2, h.calls())
	assert.Equal(t, "scheduled", h.seen[1].Payload["status"])
}

func TestMatcherWorker_GivesUpAfterRetries(t *testing.T) {
	src := &chanSource{ch: make(chan kafka.Message, 1)}
	boom := errors.New("db down")
	h := &scriptedHandler{errors: []error{boom, boom, boom}}
	w := NewMatcherWorker(src, h)
	w.Workers = 1
	w.Retries = 2
	w.RetryBackoff = time.Millisecond

	w.processOne(context.Background(), busMessage(t, 9, model.BusEvent{TenantID: 1, EventName: "x"}))

	assert.Equal(t, 3, h.calls())
	assert.Equal(t, []int64{9}, src.commits())
}

type countingPublisher struct {
	mu    sync.Mutex
	calls int
	full  int // number of calls that report a full batch
	now   []time.Time
}

func (p *countingPublisher) PublishBatch(_ context.Context, batchSize, _ int, now time.Time) (publisher.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.now = append(p.now, now)
	if p.calls <= p.full {
		return publisher.Result{Processed: batchSize, Published: batchSize}, nil
	}
	return publisher.Result{}, nil
}

func (p *countingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestOutboxPoller_DrainsFullBatches(t *testing.T) {
	pub := &countingPublisher{full: 3}
	clk := clock.NewMockClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	w := NewOutboxPoller(pub, clk, time.Hour, 10, 5)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	// three full batches plus the one that comes back short
	require.Eventually(t, func() bool { return pub.count() == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 4, pub.count())
	assert.Equal(t, clk.Now(), pub.now[0])
}
