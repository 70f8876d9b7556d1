package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ormea-systems/maildesk/internal/correspondent"
	"github.com/ormea-systems/maildesk/internal/models"
)

// CorrespondentHandler serves the correspondent directory endpoints.
type CorrespondentHandler struct {
	correspondents *correspondent.Service
}

func NewCorrespondentHandler(correspondents *correspondent.Service) *CorrespondentHandler {
	return &CorrespondentHandler{correspondents: correspondents}
}

func (h *CorrespondentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CorrespondentFields
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.correspondents.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CorrespondentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.correspondents.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CorrespondentHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req models.CorrespondentFields
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	c, err := h.correspondents.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *CorrespondentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.correspondents.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSearch lists correspondents matching the search query parameter;
// an empty query returns the whole directory.
func (h *CorrespondentHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	matches, err := h.correspondents.Search(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		writeError(w, err)
		return
	}
	if matches == nil {
		matches = []models.Correspondent{}
	}
	writeJSON(w, http.StatusOK, matches)
}
