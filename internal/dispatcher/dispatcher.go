package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/config"
	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/model"
)

var (
	ErrNoHealthy   = errors.New("no healthy providers")
	ErrNoAcquire   = errors.New("provider not acquired")
	ErrNoProviders = errors.New("no providers enabled in config")
)

// Dispatcher spreads outbound messages over the providers that serve the
// message's channel, round-robin, skipping providers whose breaker is open.
type Dispatcher struct {
	providers         []Provider
	roundRobinCounter atomic.Uint64
	maxAttempts       int
}

func NewDispatcher(provs []Provider, maxAttempts int) *Dispatcher {
	if maxAttempts < 1 {
		maxAttempts = 2
	}
	return &Dispatcher{providers: provs, maxAttempts: maxAttempts}
}

// FromConfig builds HTTP providers for every enabled entry.
func FromConfig(pcs []config.ProviderConfig) (*Dispatcher, error) {
	var provs []Provider
	maxAttempts := 0
	for _, pc := range pcs {
		if !pc.Enabled || strings.TrimSpace(pc.BaseURL) == "" {
			continue
		}
		provs = append(provs, NewHTTPProvider(pc))
		maxAttempts = max(maxAttempts, pc.MaxRetries)
	}
	if len(provs) == 0 {
		return nil, ErrNoProviders
	}
	return NewDispatcher(provs, maxAttempts), nil
}

func (d *Dispatcher) selectProvider(ch model.Channel) (Provider, error) {
	healthy := make([]Provider, 0, len(d.providers))
	for _, p := range d.providers {
		if p.Supports(ch) && p.Ready() {
			healthy = append(healthy, p)
		}
	}
	if len(healthy) == 0 {
		return nil, ErrNoHealthy
	}

	x := d.roundRobinCounter.Add(1)
	idx := int((x - 1) % uint64(len(healthy)))
	return healthy[idx], nil
}

func (d *Dispatcher) tryOnce(ctx context.Context, msg model.OutboundMessage) error {
	p, err := d.selectProvider(msg.Channel)
	if err != nil {
		return err
	}
	if !p.Acquire() {
		return ErrNoAcquire
	}
	return p.Send(ctx, msg)
}

// Send delivers msg, trying up to maxAttempts provider picks.
func (d *Dispatcher) Send(ctx context.Context, msg model.OutboundMessage) error {
	var last error
	for i := 0; i < d.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := d.tryOnce(ctx, msg)
		if err == nil {
			return nil
		}
		last = err
		if errors.Is(err, ErrNoHealthy) {
			break
		}
	}
	if last == nil {
		last = fmt.Errorf("send %s failed", msg.Channel)
	}
	return last
}
