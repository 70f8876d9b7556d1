package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ormea-systems/maildesk/internal/apperr"
	"github.com/ormea-systems/maildesk/internal/mail"
	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/web/middleware"
)

// MailHandler serves the mail lifecycle endpoints.
type MailHandler struct {
	mails              *mail.Service
	maxAttachmentBytes int64
}

func NewMailHandler(mails *mail.Service, maxAttachmentBytes int64) *MailHandler {
	return &MailHandler{mails: mails, maxAttachmentBytes: maxAttachmentBytes}
}

func (h *MailHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var params mail.CreateParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, err)
		return
	}

	actor := middleware.UserFromContext(r.Context())
	m, err := h.mails.Create(r.Context(), params, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MailHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := models.MailQuery{
		Type:      r.URL.Query().Get("type"),
		Status:    r.URL.Query().Get("status"),
		ServiceID: r.URL.Query().Get("service_id"),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, apperr.Validationf("invalid limit %q", v))
			return
		}
		q.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, apperr.Validationf("invalid offset %q", v))
			return
		}
		q.Offset = n
	}

	mails, err := h.mails.List(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	if mails == nil {
		mails = []models.Mail{}
	}
	writeJSON(w, http.StatusOK, mails)
}

func (h *MailHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	m, err := h.mails.Get(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MailHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var patch mail.UpdatePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, err)
		return
	}

	actor := middleware.UserFromContext(r.Context())
	m, err := h.mails.Update(r.Context(), chi.URLParam(r, "id"), patch, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *MailHandler) HandleReply(w http.ResponseWriter, r *http.Request) {
	var params mail.CreateParams
	if err := decodeJSON(r, &params); err != nil {
		writeError(w, err)
		return
	}

	actor := middleware.UserFromContext(r.Context())
	m, err := h.mails.Reply(r.Context(), chi.URLParam(r, "id"), params, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *MailHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if err := h.mails.Delete(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMarkOpened records the requester as the mail's first opener
// without returning the mail body.
func (h *MailHandler) HandleMarkOpened(w http.ResponseWriter, r *http.Request) {
	actor := middleware.UserFromContext(r.Context())
	if err := h.mails.MarkOpened(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAddAttachment accepts a multipart upload under the "file" field.
func (h *MailHandler) HandleAddAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxAttachmentBytes)
	if err := r.ParseMultipartForm(h.maxAttachmentBytes); err != nil {
		writeError(w, apperr.Validationf("invalid or oversized upload"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.Validationf("file field is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, fmt.Errorf("reading upload: %w", err))
		return
	}

	att, err := h.mails.AddAttachment(r.Context(), chi.URLParam(r, "id"),
		header.Filename, header.Header.Get("Content-Type"), content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, att)
}

// HandleGetAttachment streams the attachment content for download.
func (h *MailHandler) HandleGetAttachment(w http.ResponseWriter, r *http.Request) {
	att, err := h.mails.GetAttachment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "attachmentID"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", att.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", att.Filename))
	w.Header().Set("Content-Length", strconv.FormatInt(att.SizeBytes, 10))
	w.Write(att.Content)
}

func (h *MailHandler) HandleRemoveAttachment(w http.ResponseWriter, r *http.Request) {
	if err := h.mails.RemoveAttachment(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "attachmentID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
