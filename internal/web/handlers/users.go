package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ormea-systems/maildesk/internal/auth"
	"github.com/ormea-systems/maildesk/internal/web/middleware"
)

// UserHandler serves user administration endpoints.
type UserHandler struct {
	auth *auth.Service
}

func NewUserHandler(authService *auth.Service) *UserHandler {
	return &UserHandler{auth: authService}
}

type registerRequest struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Password  string `json:"password"`
	Role      string `json:"role"`
	ServiceID string `json:"service_id"`
}

func (h *UserHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	actor := middleware.UserFromContext(r.Context())
	user, err := h.auth.Register(r.Context(), actor, req.Email, req.Name, req.Password, req.Role, req.ServiceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	users, err := h.auth.ListUsers(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleUpdateRole sets a user's role from the role query parameter.
func (h *UserHandler) HandleUpdateRole(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if err := h.auth.UpdateRole(r.Context(), actor, chi.URLParam(r, "id"), r.URL.Query().Get("role")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	actor := middleware.UserFromContext(r.Context())
	if err := h.auth.UpdatePassword(r.Context(), actor, chi.URLParam(r, "id"), req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if err := h.auth.DeleteUser(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
