package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/servicedir"
	"github.com/ormea-systems/maildesk/internal/web/middleware"
)

// ServiceHandler serves the service directory endpoints.
type ServiceHandler struct {
	services *servicedir.Service
}

func NewServiceHandler(services *servicedir.Service) *ServiceHandler {
	return &ServiceHandler{services: services}
}

type serviceRequest struct {
	Name        string              `json:"name"`
	SubServices []models.SubService `json:"sub_services"`
}

func (h *ServiceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	svc, err := h.services.Create(r.Context(), req.Name, req.SubServices)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (h *ServiceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	includeArchived := r.URL.Query().Get("include_archived") == "true"
	services, err := h.services.List(r.Context(), includeArchived)
	if err != nil {
		writeError(w, err)
		return
	}
	if services == nil {
		services = []models.Service{}
	}
	writeJSON(w, http.StatusOK, services)
}

func (h *ServiceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (h *ServiceHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	svc, err := h.services.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.SubServices)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// HandleArchive handles service deletion, which archives rather than
// removes: the service is flagged and its open mails are swept into the
// archive status. The response reports how many were swept.
func (h *ServiceHandler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	swept, err := h.services.Archive(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"archived_mails": swept})
}

func (h *ServiceHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Restore(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
