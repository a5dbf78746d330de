package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Webhook - acquire session, locate order, dispatch
	mux.HandleFunc("/webhook", s.rateLimited(s.app.WebhookHandler.WebhookHandler))

	// API routes - Session management
	mux.HandleFunc("/api/session", s.handleSessionRoute)                                        // GET (status), DELETE (clear)
	mux.HandleFunc("/api/session/refresh", s.rateLimited(s.app.SessionHandler.RefreshHandler)) // POST

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleSessionRoute routes GET/DELETE /api/session
func (s *Server) handleSessionRoute(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet:    s.app.SessionHandler.StatusHandler,
		http.MethodDelete: s.app.SessionHandler.ClearHandler,
	})
}
