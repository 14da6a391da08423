package dispatcher

import (
	"sync"
	"time"

	"github.com/qubex-tech/VantageAI-CRM-sub003/internal/metrics"
)

type state int

// values double as the exported gauge reading
const (
	closed state = iota
	halfOpen
	open
)

func (s state) String() string {
	switch s {
	case open:
		return "open"
	case halfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// MicroBreaker guards one channel provider. It opens after failThreshold
// consecutive failed sends and lets a single trial send through once openFor has
// elapsed; the trial's outcome closes or re-opens it.
type MicroBreaker struct {
	mu            sync.Mutex
	provider      string
	st            state
	fails         int
	failThreshold int
	openFor       time.Duration
	retryAt       time.Time
	probing       bool
	now           func() time.Time
}

func NewMicroBreaker(provider string, threshold int, openFor time.Duration) *MicroBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	b := &MicroBreaker{provider: provider, failThreshold: threshold, openFor: openFor, now: time.Now}
	b.publish()
	return b
}

// Ready reports whether a send could be attempted right now without
// reserving the trial slot.
func (b *MicroBreaker) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.st {
	case open:
		return b.coolDownOver() && !b.probing
	case halfOpen:
		return !b.probing
	}
	return true
}

// TryAcquire reserves the right to send. After the cool-down the first
// caller becomes the half-open trial; everyone else is refused until it reports.
func (b *MicroBreaker) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st == closed {
		return true
	}
	if b.probing || (b.st == open && !b.coolDownOver()) {
		return false
	}
	b.probing = true
	b.set(halfOpen)
	return true
}

func (b *MicroBreaker) OnSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fails = 0
	b.probing = false
	b.set(closed)
}

func (b *MicroBreaker) OnFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fails++
	if b.st == halfOpen || b.fails >= b.failThreshold {
		b.probing = false
		b.retryAt = b.now().Add(b.openFor)
		b.set(open)
	}
}

func (b *MicroBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st.String()
}

func (b *MicroBreaker) coolDownOver() bool { return !b.now().Before(b.retryAt) }

// set must be called with mu held.
func (b *MicroBreaker) set(s state) {
	if b.st == s {
		return
	}
	b.st = s
	b.publish()
}

func (b *MicroBreaker) publish() {
	if b.provider == "" {
		return
	}
	metrics.ChannelBreakerState.WithLabelValues(b.provider).Set(float64(b.st))
}
