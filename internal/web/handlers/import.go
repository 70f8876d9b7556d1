package handlers

import (
	"net/http"

	"github.com/ormea-systems/maildesk/internal/apperr"
	"github.com/ormea-systems/maildesk/internal/importer"
	"github.com/ormea-systems/maildesk/internal/web/middleware"
)

// maxImportBytes caps the uploaded CSV file.
const maxImportBytes = 20 << 20

// ImportHandler accepts legacy CSV exports. Admin only, enforced by the
// router.
type ImportHandler struct {
	importer *importer.Service
}

func NewImportHandler(imp *importer.Service) *ImportHandler {
	return &ImportHandler{importer: imp}
}

func (h *ImportHandler) HandleImportCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	if err := r.ParseMultipartForm(maxImportBytes); err != nil {
		writeError(w, apperr.Validationf("invalid or oversized upload"))
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperr.Validationf("file field is required"))
		return
	}
	defer file.Close()

	actor := middleware.UserFromContext(r.Context())
	report, err := h.importer.Run(r.Context(), file, actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
