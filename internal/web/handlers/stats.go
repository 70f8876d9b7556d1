package handlers

import (
	"net/http"

	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/stats"
	"github.com/ormea-systems/maildesk/internal/web/middleware"
)

// StatsHandler serves the dashboard and reporting rollups.
type StatsHandler struct {
	stats *stats.Service
}

func NewStatsHandler(statsService *stats.Service) *StatsHandler {
	return &StatsHandler{stats: statsService}
}

func (h *StatsHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	out, err := h.stats.Dashboard(r.Context(), actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *StatsHandler) HandleAdvanced(w http.ResponseWriter, r *http.Request) {
	q := models.AdvancedStatsQuery{
		Period:      r.URL.Query().Get("period"),
		ServiceID:   r.URL.Query().Get("service_id"),
		MessageType: r.URL.Query().Get("message_type"),
	}
	out, err := h.stats.Advanced(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
