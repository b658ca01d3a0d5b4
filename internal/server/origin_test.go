package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOrigin(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"http://localhost:8080", "http://localhost:8080", true},
		{"HTTPS://Example.COM", "https://example.com", true},
		{"https://example.com/path?q=1", "https://example.com", true},
		{"example.com", "", false},
		{"://missing", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := normalizeOrigin(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOriginPolicyAllows(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("allow list", func(t *testing.T) {
		p := newOriginPolicy([]string{" http://localhost:8080 ", "not-an-origin", ""}, logger)

		assert.True(t, p.allows("http://localhost:8080"))
		assert.True(t, p.allows("HTTP://LOCALHOST:8080"))
		assert.False(t, p.allows("http://localhost:9090"))
		assert.False(t, p.allows(""))
		assert.False(t, p.allows("not-an-origin"))
	})

	t.Run("wildcard", func(t *testing.T) {
		p := newOriginPolicy([]string{"*"}, logger)

		assert.True(t, p.allows("https://anything.example"))
		assert.True(t, p.allows(""))
	})

	t.Run("empty policy", func(t *testing.T) {
		p := newOriginPolicy(nil, logger)
		assert.False(t, p.allows("http://localhost:8080"))
	})
}

func TestOriginPolicyCheckOrigin(t *testing.T) {
	p := newOriginPolicy([]string{"https://app.example"}, slog.New(slog.DiscardHandler))

	r := httptest.NewRequest(http.MethodGet, "/ws/r1/A", nil)
	r.Header.Set("Origin", "https://app.example")
	assert.True(t, p.checkOrigin(r))

	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, p.checkOrigin(r))
}

func TestWithCORS(t *testing.T) {
	p := newOriginPolicy([]string{"https://app.example"}, slog.New(slog.DiscardHandler))
	called := false
	handler := p.withCORS(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodOptions, "/ice", nil)
	r.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.False(t, called)

	r = httptest.NewRequest(http.MethodGet, "/ice", nil)
	r.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, called)
}

func TestWithCORSWildcardOmitsCredentials(t *testing.T) {
	p := newOriginPolicy([]string{"*"}, slog.New(slog.DiscardHandler))
	handler := p.withCORS(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest(http.MethodGet, "/ice", nil)
	r.Header.Set("Origin", "https://anything.example")
	w := httptest.NewRecorder()
	handler(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://anything.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}
