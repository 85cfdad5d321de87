// Package router wires handlers and middleware into the HTTP routing table.
package router

import (
	"net/http"

	"github.com/contactrelay/contactrelay/internal/config"
	"github.com/contactrelay/contactrelay/internal/handler"
	"github.com/contactrelay/contactrelay/internal/middleware"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Index)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /_test_page", h.TestPage)

	// Only the relay endpoint is rate limited
	sendLimit := mw.RateLimit(middleware.IPKey)
	mux.Handle("POST /send-email", sendLimit(http.HandlerFunc(h.SendEmail)))

	// Apply middleware stack
	var handler http.Handler = mux

	handler = mw.CORS(cfg.Server.CORSOrigins)(handler)

	// Security headers
	handler = mw.SecurityHeaders(handler)

	// Request logging
	handler = mw.Logger(handler)

	// Timing
	handler = mw.Timing(handler)

	// Client address for logging and rate limiting
	handler = mw.RealIP(handler)

	// Request ID
	handler = mw.RequestID(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
