package server

import "time"

// messageThrottle bounds how many signaling messages a single session may
// relay. A client may send Burst messages back to back; after that it earns
// one message every RefillInterval/Burst. Messages over the limit are dropped
// by the caller and the connection stays open.
//
// The throttle keeps a single timestamp: the moment by which all previously
// admitted messages would have been paid off at the steady rate. It is owned
// by the session's read pump and is not safe for concurrent use.
type messageThrottle struct {
	cost   time.Duration // steady-rate spacing of one message
	window time.Duration // how far ahead of now the debt may run
	paidAt time.Time
}

func newMessageThrottle(cfg RateLimitConfig) *messageThrottle {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	window := cfg.RefillInterval
	if window <= 0 {
		window = time.Second
	}

	return &messageThrottle{
		cost:   max(window/time.Duration(burst), time.Nanosecond),
		window: window,
	}
}

// admit reports whether a message arriving at now may be relayed, and
// charges for it if so.
func (t *messageThrottle) admit(now time.Time) bool {
	debt := t.paidAt
	if debt.Before(now) {
		debt = now
	}

	if debt.Sub(now)+t.cost > t.window {
		return false
	}

	t.paidAt = debt.Add(t.cost)
	return true
}
