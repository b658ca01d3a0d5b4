// Package testhelpers provides common utilities and helper functions for testing the relay.
//
// It provides functions for creating test servers, dialing rooms over
// WebSocket, reading protocol messages with deadlines, and asserting HTTP
// response properties so unit and integration tests share one vocabulary.
package testhelpers

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// CreateTestServer creates a test HTTP server with the given handler.
// It returns a running httptest.Server that should be closed after use.
func CreateTestServer(handler http.Handler) *httptest.Server {
	return httptest.NewServer(handler)
}

// WebSocketURL converts an http(s) test server URL into the ws(s) URL of the
// room endpoint for room and client.
func WebSocketURL(serverURL, room, client string) string {
	wsURL := strings.Replace(serverURL, "http", "ws", 1)
	return wsURL + "/ws/" + url.PathEscape(room) + "/" + url.PathEscape(client)
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, target string, header http.Header) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, target, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	for k, values := range header {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// ConnectWebSocket dials target with the test Origin header and the given
// subprotocols. The handshake response is returned so callers can inspect
// rejected upgrades.
func ConnectWebSocket(target string, subprotocols ...string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
		Subprotocols:     subprotocols,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial(target, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// JoinRoom dials the room endpoint and fails the test on error. The
// connection is closed when the test ends.
func JoinRoom(t *testing.T, serverURL, room, client string, subprotocols ...string) *websocket.Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(WebSocketURL(serverURL, room, client), subprotocols...)
	if err != nil {
		t.Fatalf("Failed to join %s as %s: %v", room, client, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReadJSON reads the next JSON message, failing after timeout.
func ReadJSON(conn *websocket.Conn, timeout time.Duration) (map[string]any, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	var message map[string]any
	err := conn.ReadJSON(&message)
	return message, err
}

// MustReadJSON reads the next JSON message or fails the test.
func MustReadJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	message, err := ReadJSON(conn, 2*time.Second)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	return message
}

// ExpectNoMessage fails the test if a message arrives on conn within wait.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Errorf("Expected no message, got %s", data)
		return
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("Expected read timeout, got %v", err)
	}
}

// ReadCloseCode reads until the connection closes and returns the close code.
func ReadCloseCode(conn *websocket.Conn, timeout time.Duration) (int, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, err
	}
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) {
			return closeErr.Code, nil
		}
		return 0, err
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
