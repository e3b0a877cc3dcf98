package api

import (
	"net/http"
	"time"

	"github.com/loomchat/loom/server/internal/api/respond"
	"github.com/loomchat/loom/server/internal/health"
)

// HealthHandler reports aggregated service health.
type HealthHandler struct {
	checker *health.ServiceHealthChecker
}

func NewHealthHandler(checker *health.ServiceHealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

// CheckHealth handles GET /api/health. Returns 503 while any dependency
// probe fails.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	if h.checker != nil && !h.checker.IsHealthy() {
		respond.WriteError(w, http.StatusServiceUnavailable, "one or more dependencies are unhealthy")
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
