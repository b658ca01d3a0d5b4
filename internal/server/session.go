// Package server manages individual relay sessions, handling the connection
// lifecycle, read/write pumps, rate limiting, and message routing for each
// WebSocket connection.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Tyrowin/signalrelay/internal/codec"
	"github.com/Tyrowin/signalrelay/internal/metrics"
)

type frame struct {
	messageType int
	data        []byte
}

// Session is one client's connection to one room. It moves through
// StateConnecting, StateActive and StateClosed exactly once. The session is
// the only owner of its transport; the hub's registry keeps it only as a
// send target.
type Session struct {
	id     string
	room   string
	client string
	conn   *websocket.Conn
	codec  codec.Codec
	hub    *Hub
	log    *slog.Logger

	send       chan frame
	sendMu     sync.Mutex
	sendClosed bool

	throttle   *messageThrottle
	state      atomic.Int32
	superseded atomic.Bool
	finishOnce sync.Once
}

// NewSession creates a session for client in room over conn. The codec is
// chosen from the subprotocol negotiated on conn.
func NewSession(conn *websocket.Conn, hub *Hub, room, client string) *Session {
	c := codec.JSON
	if conn != nil {
		conn.SetReadLimit(hub.cfg.MaxMessageSize)
		c = codec.ForSubprotocol(conn.Subprotocol())
	}

	id := uuid.NewString()
	return &Session{
		id:       id,
		room:     room,
		client:   client,
		conn:     conn,
		codec:    c,
		hub:      hub,
		log:      hub.log.With("session", id, "room", room, "client", client),
		send:     make(chan frame, hub.cfg.SendBufferSize),
		throttle: newMessageThrottle(hub.cfg.RateLimit),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Room() string { return s.room }

func (s *Session) Client() string { return s.client }

func (s *Session) Codec() codec.Codec { return s.codec }

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Superseded reports whether a newer session took over this session's
// identity in its room.
func (s *Session) Superseded() bool {
	return s.superseded.Load()
}

// Send encodes msg for this session's codec and queues it for the writer. It
// never blocks: a full queue yields ErrSendBufferFull and a finished session
// yields ErrSessionClosed.
func (s *Session) Send(msg codec.Message) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.enqueueLocked(msg)
}

// enqueueLocked queues msg. The caller holds sendMu.
func (s *Session) enqueueLocked(msg codec.Message) error {
	data, err := msg.Encode(s.codec)
	if err != nil {
		return fmt.Errorf("encoding %q message: %w", msg.Type(), err)
	}

	messageType := websocket.TextMessage
	if s.codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	if s.sendClosed {
		return ErrSessionClosed
	}

	select {
	case s.send <- frame{messageType: messageType, data: data}:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (s *Session) closeSend() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if !s.sendClosed {
		s.sendClosed = true
		close(s.send)
	}
}

// run drives the session from CONNECTING to CLOSED. The deferred finish runs
// whatever ends the read loop: a client close, a network error, a decode
// failure or a hub shutdown.
func (s *Session) run() {
	defer s.finish()

	s.activate()
	s.readPump()
}

// activate joins the room, sends the joiner its roster and then tells the
// members present at the join about the joiner.
func (s *Session) activate() {
	others, err := s.hub.join(s)
	s.state.Store(int32(StateActive))
	s.log.Info("session joined room", "peers", len(others), "codec", s.codec.Name())

	if err != nil {
		s.hub.metrics.Inc(metrics.SendFailed)
		s.log.Warn("failed to send participants snapshot", "error", err)
	}

	s.hub.announce(s, others)
}

func (s *Session) finish() {
	s.finishOnce.Do(func() {
		s.state.Store(int32(StateClosed))

		announced := s.hub.leave(s)
		s.closeSend()
		s.hub.forget(s)

		s.log.Info("session closed", "announced_leave", announced, "superseded", s.Superseded())
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (s *Session) setupReadConnection() {
	pongWait := s.hub.cfg.PongWait
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.log.Warn("error setting initial read deadline", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.log.Warn("error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs why the read loop ended.
func (s *Session) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("message exceeded maximum size", "max_bytes", s.hub.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		s.log.Debug("client disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		s.log.Debug("connection closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		s.log.Warn("unexpected websocket close", "error", err)
	default:
		s.log.Debug("websocket read ended", "error", err)
	}
}

// checkRateLimit reports whether the next inbound message may be relayed.
func (s *Session) checkRateLimit() bool {
	if s.throttle != nil && !s.throttle.admit(time.Now()) {
		s.hub.metrics.Inc(metrics.RateLimited)
		s.log.Warn("rate limit exceeded; discarding message",
			"burst", s.hub.cfg.RateLimit.Burst,
			"interval", s.hub.cfg.RateLimit.RefillInterval)
		return false
	}
	return true
}

// processMessage decodes a raw inbound message and routes it. It returns
// false when the message could not be decoded; the connection is then
// treated as lost.
func (s *Session) processMessage(raw []byte) bool {
	env, err := codec.Decode(s.codec, raw)
	if err != nil {
		s.hub.metrics.Inc(metrics.DecodeFailed)
		s.log.Warn("closing session after undecodable message", "error", err)
		s.writeClose(websocket.CloseUnsupportedData, "malformed message")
		return false
	}

	if env.Direct {
		s.hub.Deliver(s.room, s.client, env.To, env.Message())
		return true
	}

	s.hub.Broadcast(s.room, s.client, env.Message())
	return true
}

func (s *Session) readPump() {
	defer s.closeConnection()

	s.setupReadConnection()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.handleReadError(err)
			return
		}

		if !s.checkRateLimit() {
			continue
		}

		if !s.processMessage(raw) {
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.hub.cfg.PingPeriod())
	defer func() {
		ticker.Stop()
		s.closeConnection()
	}()

	for s.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (s *Session) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case f, ok := <-s.send:
		return s.handleFrame(f, ok)
	case <-ticker.C:
		return s.handlePing()
	}
}

// handleFrame writes one queued frame and returns false if the connection should be closed
func (s *Session) handleFrame(f frame, ok bool) bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteWait)); err != nil {
		s.log.Debug("error setting write deadline", "error", err)
		return false
	}

	if !ok {
		s.writeCloseMessage()
		return false
	}

	if err := s.conn.WriteMessage(f.messageType, f.data); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn("error writing message", "error", err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a normal closure frame to the client
func (s *Session) writeCloseMessage() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.conn.WriteMessage(websocket.CloseMessage, msg); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Debug("error writing close message", "error", err)
		}
	}
}

// handlePing sends a ping message to keep the connection alive
func (s *Session) handlePing() bool {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.hub.cfg.WriteWait)); err != nil {
		s.log.Debug("error setting write deadline for ping", "error", err)
		return false
	}
	if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn("error writing ping message", "error", err)
		}
		return false
	}
	return true
}

// writeClose sends a close control frame with code and reason. It is safe to
// call concurrently with the write pump.
func (s *Session) writeClose(code int, reason string) {
	if s.conn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(s.hub.cfg.WriteWait)
	if err := s.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !isExpectedCloseError(err) {
		s.log.Debug("error writing close control frame", "code", code, "error", err)
	}
}

// closeWith sends a close frame and closes the transport, which ends both
// pumps and runs the session's cleanup.
func (s *Session) closeWith(code int, reason string) {
	s.writeClose(code, reason)
	s.closeConnection()
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (s *Session) closeConnection() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Debug("error closing connection", "error", err)
		}
	}
}
