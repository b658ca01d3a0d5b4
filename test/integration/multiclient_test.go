package integration

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/signalrelay/test/testhelpers"
)

func joinAll(t *testing.T, serverURL, room string, clients []string) map[string]*websocket.Conn {
	t.Helper()
	conns := make(map[string]*websocket.Conn, len(clients))
	for _, client := range clients {
		conn := testhelpers.JoinRoom(t, serverURL, room, client)
		msg := testhelpers.MustReadJSON(t, conn)
		if msg["type"] != "participants" {
			t.Fatalf("%s: expected participants snapshot first, got %v", client, msg)
		}
		conns[client] = conn
	}
	return conns
}

// TestFullMeshDirectMessages has every member of a room send one addressed
// message to every other member, as peers do when exchanging offers.
func TestFullMeshDirectMessages(t *testing.T) {
	_, testServer := startRelay(t, nil)

	clients := []string{"c0", "c1", "c2", "c3", "c4", "c5"}
	conns := joinAll(t, testServer.URL, "mesh", clients)

	for _, from := range clients {
		for _, to := range clients {
			if from == to {
				continue
			}
			msg := map[string]any{"type": "offer", "from": from, "to": to, "sdp": from + "->" + to}
			if err := conns[from].WriteJSON(msg); err != nil {
				t.Fatalf("%s: write failed: %v", from, err)
			}
		}
	}

	for _, me := range clients {
		conn := conns[me]
		seen := make(map[string]bool)
		for len(seen) < len(clients)-1 {
			msg := readUntilType(t, func() map[string]any { return testhelpers.MustReadJSON(t, conn) }, "offer")
			if msg["to"] != me {
				t.Errorf("%s received message addressed to %v", me, msg["to"])
			}
			from, _ := msg["from"].(string)
			if seen[from] {
				t.Errorf("%s received a duplicate offer from %s", me, from)
			}
			seen[from] = true
			if want := from + "->" + me; msg["sdp"] != want {
				t.Errorf("%s: expected sdp %q, got %v", me, want, msg["sdp"])
			}
		}
	}
}

// TestRoomsAreIsolated verifies that identical client names in different
// rooms never see each other's traffic.
func TestRoomsAreIsolated(t *testing.T) {
	_, testServer := startRelay(t, nil)

	red := joinAll(t, testServer.URL, "red", []string{"alice", "bob"})
	blue := joinAll(t, testServer.URL, "blue", []string{"alice", "bob"})

	// alice in red learns about bob in red only.
	notice := testhelpers.MustReadJSON(t, red["alice"])
	if notice["type"] != "new-participant" || notice["from"] != "bob" {
		t.Fatalf("Unexpected notice %v", notice)
	}

	if err := red["bob"].WriteJSON(map[string]any{"type": "chat", "body": "red only"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := red["bob"].WriteJSON(map[string]any{"type": "chat", "to": "alice", "body": "direct"}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	first := testhelpers.MustReadJSON(t, red["alice"])
	second := testhelpers.MustReadJSON(t, red["alice"])
	if first["body"] != "red only" || second["body"] != "direct" {
		t.Errorf("Messages out of order or wrong: %v, %v", first, second)
	}

	blueNotice := testhelpers.MustReadJSON(t, blue["alice"])
	if blueNotice["type"] != "new-participant" {
		t.Fatalf("Unexpected blue notice %v", blueNotice)
	}
	testhelpers.ExpectNoMessage(t, blue["alice"], 200*time.Millisecond)
	testhelpers.ExpectNoMessage(t, blue["bob"], 50*time.Millisecond)
}

// TestJoinLeaveSequence walks one observer through peers arriving and
// departing.
func TestJoinLeaveSequence(t *testing.T) {
	hub, testServer := startRelay(t, nil)

	observer := joinAll(t, testServer.URL, "room", []string{"observer"})["observer"]

	bob := testhelpers.JoinRoom(t, testServer.URL, "room", "bob")
	testhelpers.MustReadJSON(t, bob)
	if err := testhelpers.CloseWebSocket(bob); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	// Wait for bob's leave before carol joins so her snapshot is deterministic.
	want := []map[string]any{
		{"type": "new-participant", "from": "bob"},
		{"type": "leave", "from": "bob"},
	}
	for _, w := range want {
		got := testhelpers.MustReadJSON(t, observer)
		if got["type"] != w["type"] || got["from"] != w["from"] {
			t.Fatalf("Expected %v, got %v", w, got)
		}
	}

	carol := testhelpers.JoinRoom(t, testServer.URL, "room", "carol")
	snapshot := testhelpers.MustReadJSON(t, carol)
	peers, _ := snapshot["participants"].([]any)
	if len(peers) != 1 || peers[0] != "observer" {
		t.Errorf("Expected carol to see only observer, got %v", snapshot)
	}

	got := testhelpers.MustReadJSON(t, observer)
	if got["type"] != "new-participant" || got["from"] != "carol" {
		t.Errorf("Expected carol's arrival, got %v", got)
	}

	if members := hub.Members("room"); len(members) != 2 {
		t.Errorf("Expected two members, got %v", members)
	}
}

// TestConcurrentJoins connects many clients at once. Every client must learn
// about every other one, through either its snapshot or an announcement.
func TestConcurrentJoins(t *testing.T) {
	hub, testServer := startRelay(t, nil)

	const numClients = 20
	conns := make([]*websocket.Conn, numClients)
	errs := make(chan error, numClients)

	var wg sync.WaitGroup
	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn, _, err := testhelpers.ConnectWebSocket(testhelpers.WebSocketURL(testServer.URL, "crowd", fmt.Sprintf("p%02d", i)))
			if err != nil {
				errs <- err
				return
			}
			conns[i] = conn
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	})

	waitForSessions(t, hub.Stats, numClients)
	if members := hub.Members("crowd"); len(members) != numClients {
		t.Fatalf("Expected %d members, got %d", numClients, len(members))
	}

	for i, conn := range conns {
		me := fmt.Sprintf("p%02d", i)
		known := make(map[string]bool)
		for len(known) < numClients-1 {
			msg := testhelpers.MustReadJSON(t, conn)
			switch msg["type"] {
			case "participants":
				peers, _ := msg["participants"].([]any)
				for _, p := range peers {
					known[p.(string)] = true
				}
			case "new-participant":
				known[msg["from"].(string)] = true
			default:
				t.Fatalf("%s: unexpected message %v", me, msg)
			}
			if known[me] {
				t.Fatalf("%s was told about itself", me)
			}
		}
	}
}
