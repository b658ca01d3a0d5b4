// Package server defines shared session states, errors, and close codes that
// are reused across session and hub logic.
package server

import (
	"errors"
	"strings"
)

// State is a session's position in its connection lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseSuperseded is the WebSocket close code sent to a connection replaced by
// a newer connection for the same client identity in the same room.
const CloseSuperseded = 4001

var (
	// ErrHubClosed is returned when a session is registered after shutdown began.
	ErrHubClosed = errors.New("server: hub is shutting down")
	// ErrSessionClosed is returned when sending to a session that has closed.
	ErrSessionClosed = errors.New("server: session closed")
	// ErrSendBufferFull is returned when a session's outbound queue is full.
	ErrSendBufferFull = errors.New("server: send buffer full")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
