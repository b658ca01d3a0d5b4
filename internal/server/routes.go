// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import (
	"net/http"

	"github.com/Tyrowin/signalrelay/internal/metrics"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up the WebSocket endpoint, health checks, ICE configuration,
// statistics, metrics and the test page.
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", HealthHandler)
	mux.HandleFunc("GET /healthz", HealthzHandler)
	mux.HandleFunc("GET /ws/{room}/{client}", WebSocketHandler(hub))
	mux.HandleFunc("GET /ice", ICEHandler(hub))
	mux.HandleFunc("OPTIONS /ice", ICEHandler(hub))
	mux.HandleFunc("GET /stats", StatsHandler(hub))
	mux.HandleFunc("GET /rooms/{room}", RoomHandler(hub))
	mux.Handle("GET /metrics", metrics.PrometheusHandler(hub.Metrics()))
	mux.HandleFunc("GET /test", TestPageHandler)
	return mux
}
