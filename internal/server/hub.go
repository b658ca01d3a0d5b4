// Package server coordinates session registration, room membership, message
// routing, and connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/signalrelay/internal/codec"
	"github.com/Tyrowin/signalrelay/internal/metrics"
	"github.com/Tyrowin/signalrelay/internal/registry"
)

// Stats summarizes the hub's current load.
type Stats struct {
	Rooms    int `json:"rooms"`
	Members  int `json:"members"`
	Sessions int `json:"sessions"`
}

// Hub owns the room registry and every live session. Routing resolves
// targets under the registry lock and sends after it is released, so a slow
// peer never stalls other rooms.
type Hub struct {
	cfg      Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	registry *registry.Registry[*Session]
	origins  *originPolicy

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closing  bool
	wg       sync.WaitGroup
}

// NewHub creates a hub for cfg. A nil logger discards logs; a nil metrics
// registry disables counting.
func NewHub(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg = cfg.Sanitized()

	return &Hub{
		cfg:      cfg,
		log:      logger,
		metrics:  m,
		registry: registry.New[*Session](),
		origins:  newOriginPolicy(cfg.AllowedOrigins, logger),
		sessions: make(map[*Session]struct{}),
	}
}

// Config returns the sanitized configuration the hub runs with.
func (h *Hub) Config() Config {
	return h.cfg
}

// Metrics returns the hub's counter registry, which may be nil.
func (h *Hub) Metrics() *metrics.Metrics {
	return h.metrics
}

// Register starts s: its writer goroutine and its lifecycle goroutine, which
// joins the room and then reads until the connection ends.
func (h *Hub) Register(s *Session) error {
	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return ErrHubClosed
	}
	h.sessions[s] = struct{}{}
	total := len(h.sessions)
	h.wg.Add(2)
	h.mu.Unlock()

	h.metrics.Inc(metrics.SessionOpened)
	s.log.Info("session registered", "sessions", total)

	go func() {
		defer h.wg.Done()
		s.writePump()
	}()
	go func() {
		defer h.wg.Done()
		s.run()
	}()
	return nil
}

// join adds s to its room, queues the roster for s and returns the members
// that were already there. The roster is queued while s's send queue is held,
// so no peer can queue anything for s ahead of it.
func (h *Hub) join(s *Session) ([]registry.Member[*Session], error) {
	s.sendMu.Lock()
	others, prev, replaced := h.registry.JoinSnapshot(s.room, s.client, s)
	peers := make([]string, len(others))
	for i, m := range others {
		peers[i] = m.Client
	}
	err := s.enqueueLocked(codec.Participants(peers))
	s.sendMu.Unlock()

	if replaced && prev != s {
		h.supersede(prev)
	}
	return others, err
}

func (h *Hub) supersede(prev *Session) {
	prev.superseded.Store(true)
	h.metrics.Inc(metrics.SessionSuperseded)
	prev.log.Info("session superseded by a newer connection", "close", h.cfg.CloseSuperseded)

	if h.cfg.CloseSuperseded {
		prev.closeWith(CloseSuperseded, "superseded")
	}
}

// leave removes s from its room and announces the departure. Nothing is
// announced when a newer session holds the identity.
func (h *Hub) leave(s *Session) bool {
	if !h.registry.Release(s.room, s.client, s) {
		return false
	}
	h.Broadcast(s.room, s.client, codec.Leave(s.client))
	return true
}

func (h *Hub) forget(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	total := len(h.sessions)
	h.mu.Unlock()

	h.metrics.Inc(metrics.SessionClosed)
	s.log.Debug("session unregistered", "sessions", total)
}

// Deliver sends msg from one member to the member named to. A missing
// recipient is not an error; the message is dropped. It reports whether the
// message was queued for the recipient.
func (h *Hub) Deliver(room, from, to string, msg codec.Message) bool {
	target, ok := h.registry.Lookup(room, to)
	if !ok {
		h.metrics.Inc(metrics.RoutingMiss)
		h.log.Debug("dropping message for absent recipient", "room", room, "from", from, "to", to, "type", msg.Type())
		return false
	}

	h.metrics.Inc(metrics.MessageDirect)
	if err := target.Send(msg); err != nil {
		h.metrics.Inc(metrics.SendFailed)
		h.log.Warn("send to peer failed", "room", room, "from", from, "to", to, "error", err)
		return false
	}
	h.log.Debug("delivered message", "room", room, "from", from, "to", to, "type", msg.Type())
	return true
}

// Broadcast sends msg to every member of room except exclude. A failed send
// to one member does not affect the others. It returns the number of members
// the message was queued for.
func (h *Hub) Broadcast(room, exclude string, msg codec.Message) int {
	h.metrics.Inc(metrics.MessageBroadcast)
	return h.sendAll(room, exclude, h.registry.BroadcastTargets(room, exclude), msg)
}

// announce tells targets, the members captured when s joined, that s arrived.
func (h *Hub) announce(s *Session, targets []registry.Member[*Session]) int {
	return h.sendAll(s.room, s.client, targets, codec.NewParticipant(s.client))
}

func (h *Hub) sendAll(room, from string, targets []registry.Member[*Session], msg codec.Message) int {
	delivered := 0
	for _, target := range targets {
		if err := target.Handle.Send(msg); err != nil {
			h.metrics.Inc(metrics.SendFailed)
			h.log.Warn("send to peer failed", "room", room, "from", from, "to", target.Client, "type", msg.Type(), "error", err)
			continue
		}
		delivered++
	}

	h.log.Debug("fanned out message", "room", room, "from", from, "type", msg.Type(), "targets", len(targets), "delivered", delivered)
	return delivered
}

// Members returns the client identities present in room.
func (h *Hub) Members(room string) []string {
	return h.registry.Members(room)
}

// Stats returns room, membership and session counts.
func (h *Hub) Stats() Stats {
	rooms, members := h.registry.Stats()

	h.mu.Lock()
	sessions := len(h.sessions)
	h.mu.Unlock()

	return Stats{Rooms: rooms, Members: members, Sessions: sessions}
}

// Shutdown stops accepting sessions, closes every live connection and waits
// for all session goroutines to finish their cleanup, or until timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.mu.Lock()
	h.closing = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
	h.log.Info("closed client connections", "count", len(sessions))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
