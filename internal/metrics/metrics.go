// Package metrics keeps the relay's event counters.
package metrics

import "sync"

// Event names counted by the relay.
const (
	SessionOpened     = "session_opened"
	SessionClosed     = "session_closed"
	SessionSuperseded = "session_superseded"
	MessageDirect     = "message_direct"
	MessageBroadcast  = "message_broadcast"
	RoutingMiss       = "routing_miss"
	SendFailed        = "send_failed"
	DecodeFailed      = "decode_failed"
	RateLimited       = "rate_limited"
)

// Metrics is a concurrency-safe counter registry. A nil *Metrics discards
// every update, so components can run without one.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
