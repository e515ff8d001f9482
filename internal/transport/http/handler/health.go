package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ride-identity/internal/domain"
	"github.com/ride-identity/internal/infrastructure/tenant"
)

// StatusReporter reports the connection state of every tenant.
type StatusReporter interface {
	Status() map[domain.Tenant]string
}

// HealthHandler handles health-check endpoints.
type HealthHandler struct {
	tenants StatusReporter
}

func NewHealthHandler(tenants StatusReporter) *HealthHandler { return &HealthHandler{tenants: tenants} }

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	switch chi.URLParam(r, "action") {
	case "ping":
		writeJSON(w, http.StatusOK, MessageEnvelope{Message: "pong"})
	case "db":
		states := h.tenants.Status()
		status, code := "ok", http.StatusOK
		for _, s := range states {
			if s != tenant.StateConnected {
				status, code = "degraded", http.StatusServiceUnavailable
				break
			}
		}
		writeJSON(w, code, HealthEnvelope{Status: status, Tenants: states})
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}
