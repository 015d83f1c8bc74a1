package api

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/jparker/dispatch-api/internal/api/shared"
	"github.com/jparker/dispatch-api/internal/service"
)

// AdminHandler exposes the operational endpoints backed by AdminService.
type AdminHandler struct {
	adminService *service.AdminService
	validator    *validator.Validate
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adminService *service.AdminService) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		validator:    validator.New(),
	}
}

// TaskStats handles GET /admin/tasks/stats requests. An optional tag
// query parameter scopes the aggregate to one task type.
func (h *AdminHandler) TaskStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.adminService.TaskStats(r.Context(), r.URL.Query().Get("tag"))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to aggregate task stats", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, stats)
}

// Cleanup handles POST /admin/tasks/cleanup requests.
func (h *AdminHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	result, err := h.adminService.ClearCompleted(r.Context(), req.OlderThanDays, req.DryRun)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to clean up completed tasks", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, result)
}
