// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, ICE configuration, statistics, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/Tyrowin/signalrelay/internal/codec"
)

// WebSocketHandler upgrades requests for /ws/{room}/{client} and hands the
// connection to a new session. Room and client identities are taken verbatim
// from the path; they are trusted as supplied by the upstream identity
// provider.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     hub.origins.checkOrigin,
		Subprotocols:    codec.Subprotocols(),
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		room, client := r.PathValue("room"), r.PathValue("client")
		if room == "" || client == "" {
			http.Error(w, "room and client are required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
			return
		}

		session := NewSession(conn, hub, room, client)
		if err := hub.Register(session); err != nil {
			session.log.Info("rejecting session", "error", err)
			session.closeWith(websocket.CloseTryAgainLater, "server shutting down")
		}
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "signalrelay is running")
}

// HealthzHandler reports liveness as JSON for load balancers.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ICEHandler returns the ICE servers clients should use for call setup.
func ICEHandler(hub *Hub) http.HandlerFunc {
	return hub.origins.withCORS(func(w http.ResponseWriter, _ *http.Request) {
		servers := hub.cfg.ICEServers
		if servers == nil {
			servers = []webrtc.ICEServer{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{"iceServers": servers})
	})
}

// StatsHandler reports room and membership counts.
func StatsHandler(hub *Hub) http.HandlerFunc {
	return hub.origins.withCORS(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, hub.Stats())
	})
}

// RoomHandler lists the members of /rooms/{room}.
func RoomHandler(hub *Hub) http.HandlerFunc {
	return hub.origins.withCORS(func(w http.ResponseWriter, r *http.Request) {
		room := r.PathValue("room")
		WriteJSON(w, http.StatusOK, map[string]any{
			"room":    room,
			"members": hub.Members(room),
		})
	})
}

// WriteJSON writes v as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// TestPageHandler serves an HTML page that joins a room and exchanges
// messages with the other members, for manual testing.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>signalrelay test</title>
    <style>
        body { font-family: sans-serif; margin: 20px; }
        #log { border: 1px solid #ccc; height: 320px; padding: 8px; overflow-y: scroll; margin: 10px 0; font-family: monospace; }
        input { padding: 4px; margin-right: 6px; }
        .status { margin: 10px 0; padding: 4px; }
        .connected { background-color: #d4edda; }
        .disconnected { background-color: #f8d7da; }
    </style>
</head>
<body>
    <h1>signalrelay test</h1>
    <div>
        <input id="room" placeholder="room" value="r1">
        <input id="client" placeholder="client id">
        <button id="connect" onclick="toggle()">Join</button>
    </div>
    <div id="status" class="status disconnected">Disconnected</div>
    <div id="peers">Peers: none</div>
    <div>
        <input id="to" placeholder="to (empty = broadcast)">
        <input id="body" placeholder="message" size="40">
        <button onclick="send()">Send</button>
    </div>
    <div id="log"></div>
    <script>
        let ws = null;
        const peers = new Set();
        const $ = (id) => document.getElementById(id);

        function log(line) {
            const el = document.createElement('div');
            el.textContent = line;
            $('log').appendChild(el);
            $('log').scrollTop = $('log').scrollHeight;
        }

        function renderPeers() {
            $('peers').textContent = 'Peers: ' + (peers.size ? Array.from(peers).join(', ') : 'none');
        }

        function setConnected(on) {
            $('status').textContent = on ? 'Connected' : 'Disconnected';
            $('status').className = 'status ' + (on ? 'connected' : 'disconnected');
            $('connect').textContent = on ? 'Leave' : 'Join';
        }

        function toggle() {
            if (ws) { ws.close(); return; }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            const url = scheme + location.host + '/ws/' + encodeURIComponent($('room').value) + '/' + encodeURIComponent($('client').value);
            ws = new WebSocket(url, ['signal.json']);
            ws.onopen = () => setConnected(true);
            ws.onclose = (e) => { log('closed ' + e.code + ' ' + e.reason); ws = null; peers.clear(); renderPeers(); setConnected(false); };
            ws.onmessage = (e) => {
                const msg = JSON.parse(e.data);
                if (msg.type === 'participants') { msg.participants.forEach((p) => peers.add(p)); renderPeers(); }
                if (msg.type === 'new-participant') { peers.add(msg.from); renderPeers(); }
                if (msg.type === 'leave') { peers.delete(msg.from); renderPeers(); }
                log('<- ' + e.data);
            };
        }

        function send() {
            if (!ws) { return; }
            const msg = { type: 'chat', from: $('client').value, body: $('body').value };
            if ($('to').value) { msg.to = $('to').value; }
            ws.send(JSON.stringify(msg));
            log('-> ' + JSON.stringify(msg));
            $('body').value = '';
        }
    </script>
</body>
</html>`
