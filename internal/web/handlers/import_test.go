package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ormea-systems/maildesk/internal/models"
)

func multipartCSV(t *testing.T, csv string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "import.csv")
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	part.Write([]byte(csv))
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHandleImportCSV(t *testing.T) {
	env := newTestEnv(t)

	csv := "nom,prenom,titre_message,type,statut\nDupont,Marie,Demande d'acte,entrant,en_cours\n,Paul,Sans nom,entrant,\n"
	buf, contentType := multipartCSV(t, csv)

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/import/csv", buf), env.admin)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.imports.HandleImportCSV(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var report models.ImportReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.MailsCreated != 1 || report.CorrespondentsCreated != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(report.Errors) != 1 {
		t.Errorf("errors = %v, want one line error", report.Errors)
	}
}

func TestHandleImportCSVMissingFile(t *testing.T) {
	env := newTestEnv(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.Close()

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/import/csv", &buf), env.admin)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	env.imports.HandleImportCSV(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
