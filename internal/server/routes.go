package server

import "net/http"

// setupRoutes wires all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket notification fan-out
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Interventions
	mux.HandleFunc("/api/interventions", s.app.InterventionHandler.ListHandler)
	mux.HandleFunc("/api/interventions/paused-sessions", s.app.InterventionHandler.PausedSessionsHandler)
	mux.HandleFunc("/api/interventions/", s.app.InterventionHandler.ItemHandler) // GET /{id}, POST /{id}/resolve, GET /{id}/view

	// Browser sessions
	mux.HandleFunc("/api/sessions", s.app.APIHandler.ListSessionsHandler)
	mux.HandleFunc("/api/sessions/", s.app.APIHandler.SessionHandler) // GET/DELETE /{id}

	// Service endpoints
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// Catch-all for unknown API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
