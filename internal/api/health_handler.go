package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jparker/dispatch-api/internal/api/shared"
)

// HealthHandler answers liveness/readiness probes.
type HealthHandler struct {
	db *sql.DB
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// healthResponse is the health check payload.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// Check handles GET /healthz requests. It pings the database with a
// short deadline so a wedged pool turns the probe unhealthy instead of
// hanging it.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		shared.RespondWithJSON(w, r, http.StatusServiceUnavailable, healthResponse{
			Status:   "unhealthy",
			Database: "unreachable",
		})
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, healthResponse{
		Status:   "ok",
		Database: "ok",
	})
}
