package integration

import (
	"testing"
	"time"

	"github.com/Tyrowin/signalrelay/internal/server"
)

// waitForSessions polls stats until the hub reports want live sessions.
func waitForSessions(t *testing.T, stats func() server.Stats, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if stats().Sessions == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Expected %d sessions, got %+v", want, stats())
}

// readUntilType reads JSON messages until one of type typ arrives and returns
// it, skipping presence notices that may interleave.
func readUntilType(t *testing.T, read func() map[string]any, typ string) map[string]any {
	t.Helper()
	for i := 0; i < 64; i++ {
		msg := read()
		if msg["type"] == typ {
			return msg
		}
	}
	t.Fatalf("No %q message within 64 reads", typ)
	return nil
}
