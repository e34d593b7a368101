package server

import (
	"net/http"
	"time"

	meetinghandler "emeet/backend/internal/meeting/handler"
	"emeet/backend/internal/room/gateway"
	"emeet/backend/internal/server/middleware"
	"emeet/backend/internal/telemetry"
)

const readHeaderTimeout = 10 * time.Second

// HTTPDeps holds the HTTP surfaces. Health and Events are optional.
type HTTPDeps struct {
	API    *meetinghandler.Handler
	Rooms  *gateway.Handler
	Health http.Handler
	Tokens middleware.Tokens
	Events telemetry.EventEmitter
}

// NewHTTPHandler routes:
//   - GET /ws/rooms/{room}  → room gateway (authenticates its own token)
//   - /api/...              → meeting API behind Bearer auth and request telemetry
//   - GET /healthz          → readiness
func NewHTTPHandler(d HTTPDeps) http.Handler {
	root := http.NewServeMux()
	if d.Rooms != nil {
		d.Rooms.Register(root)
	}
	if d.Health != nil {
		root.Handle("GET /healthz", d.Health)
	}
	if d.API != nil {
		api := http.NewServeMux()
		d.API.Register(api)
		root.Handle("/api/", middleware.Auth(d.Tokens, middleware.Telemetry(d.Events, nil, api)))
	}
	return root
}

// NewHTTPServer returns an http.Server for handler on addr.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
