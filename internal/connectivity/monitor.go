// Package connectivity tracks whether the backend is currently reachable.
package connectivity

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Prober checks backend reachability.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor holds the current offline flag and fans transitions out to
// subscribers. The zero value is not usable; use NewMonitor.
type Monitor struct {
	subscribers map[int]chan bool
	prober      Prober
	interval    time.Duration
	nextID      int
	mu          sync.RWMutex
	offline     bool
}

// NewMonitor creates a monitor starting in the given state. prober may be
// nil, in which case Run only waits for cancellation.
func NewMonitor(prober Prober, interval time.Duration, startOffline bool) *Monitor {
	return &Monitor{
		subscribers: make(map[int]chan bool),
		prober:      prober,
		interval:    interval,
		offline:     startOffline,
	}
}

// IsOffline reports the current state.
func (m *Monitor) IsOffline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.offline
}

// Set records a new state and notifies subscribers if it changed.
// It reports whether a transition happened.
func (m *Monitor) Set(offline bool) bool {
	m.mu.Lock()
	if m.offline == offline {
		m.mu.Unlock()
		return false
	}
	m.offline = offline
	for _, ch := range m.subscribers {
		// Subscribers only need the latest state; drop a stale one.
		select {
		case ch <- offline:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- offline:
			default:
			}
		}
	}
	m.mu.Unlock()

	slog.Info("connectivity changed", "offline", offline)
	return true
}

// Subscribe returns a channel receiving each transition and a function that
// stops delivery and closes the channel.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 1)

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Run probes the backend every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	if m.prober == nil || m.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Probe(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Probe checks the backend once and records the result.
func (m *Monitor) Probe(ctx context.Context) {
	if m.prober == nil {
		return
	}
	err := m.prober.Ping(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		slog.Debug("backend probe failed", "error", err)
	}
	m.Set(err != nil)
}
