package clock

import (
	"sync"
	"time"
)

// Clock is the time source for components whose behavior depends on "now"
// (outbox scheduling, run timestamps, action durations).
type Clock interface {
	Now() time.Time
}

// RealClock reads the system time in UTC.
type RealClock struct{}

func NewRealClock() Clock { return RealClock{} }

func (RealClock) Now() time.Time { return time.Now().UTC() }

// MockClock is a settable clock for tests. Safe for concurrent use.
type MockClock struct {
	mu      sync.Mutex
	current time.Time
}

func NewMockClock(start time.Time) *MockClock {
	return &MockClock{current: start}
}

func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	m.current = t
	m.mu.Unlock()
}

func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.current = m.current.Add(d)
	m.mu.Unlock()
}
