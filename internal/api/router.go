package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomchat/loom/server/internal/api/recovery"
	"github.com/loomchat/loom/server/internal/distribute"
	"github.com/loomchat/loom/server/internal/health"
	"github.com/loomchat/loom/server/internal/store"
	"github.com/loomchat/loom/server/internal/unread"
)

// Deps carries everything the HTTP layer needs. Health may be nil in
// tests; the endpoint then reports healthy.
type Deps struct {
	Store       store.Store
	Distributor *distribute.Distributor
	Unread      *unread.Service
	Health      *health.ServiceHealthChecker
}

// NewRouter wires all API routes. Handlers are thin transport adapters;
// behavior lives in the domain services.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()

	router.Use(recovery.Middleware)

	directoryHandler := NewDirectoryHandler(d.Store)
	messageHandler := NewMessageHandler(d.Store, d.Distributor, d.Unread)
	healthHandler := NewHealthHandler(d.Health)

	// Operational endpoints
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Directory endpoints
	router.HandleFunc("/api/users", directoryHandler.CreateUser).Methods("POST")
	router.HandleFunc("/api/users/{userId}", directoryHandler.GetUser).Methods("GET")
	router.HandleFunc("/api/channels", directoryHandler.CreateChannel).Methods("POST")
	router.HandleFunc("/api/workspaces/{workspaceId}/members", directoryHandler.AddWorkspaceMember).Methods("POST")
	router.HandleFunc("/api/dms", directoryHandler.CreateDMChannel).Methods("POST")

	// Message endpoints
	router.HandleFunc("/api/messages", messageHandler.CreateMessage).Methods("POST")
	router.HandleFunc("/api/messages/{messageId}", messageHandler.GetMessage).Methods("GET")

	// Read state endpoints
	router.HandleFunc("/api/users/{userId}/reads", messageHandler.MarkConversationRead).Methods("POST")
	router.HandleFunc("/api/users/{userId}/unread", messageHandler.GetUnread).Methods("GET")

	return router
}
