// Package importer loads correspondents and mails from legacy CSV
// exports. Row failures are reported per line and never abort the run.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ormea-systems/maildesk/internal/apperr"
	"github.com/ormea-systems/maildesk/internal/correspondent"
	"github.com/ormea-systems/maildesk/internal/mail"
	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/store"
)

// Service runs CSV imports against the correspondent directory and the
// mail engine, so every imported row goes through the same validation
// and reference allocation as interactive creation.
type Service struct {
	correspondents *correspondent.Service
	mails          *mail.Service
	services       store.ServiceStore

	// defaultServiceID routes imported mails. Empty means the first
	// active service in the directory.
	defaultServiceID string
}

func NewService(correspondents *correspondent.Service, mails *mail.Service, services store.ServiceStore, defaultServiceID string) *Service {
	return &Service{
		correspondents:   correspondents,
		mails:            mails,
		services:         services,
		defaultServiceID: defaultServiceID,
	}
}

// row is one parsed CSV record, keyed by the legacy export's header.
type row struct {
	nom     string
	prenom  string
	telFixe string
	telMob  string
	email   string
	adresse string
	titre   string
	typ     string
	statut  string
}

// Run reads the CSV stream and imports every row, returning a report of
// what was created and which lines failed. The actor must already have
// been checked for admin rights by the caller.
func (s *Service) Run(ctx context.Context, r io.Reader, actor *models.User) (*models.ImportReport, error) {
	target, err := s.targetService(ctx)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperr.Validationf("fichier CSV vide ou illisible")
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}

	report := &models.ImportReport{Errors: []string{}}
	line := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Ligne %d: %v", line, err))
			continue
		}
		if err := s.importRow(ctx, parseRow(record, cols), target, actor, report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Ligne %d: %v", line, err))
		}
	}

	slog.Info("csv import finished",
		"mails_created", report.MailsCreated,
		"correspondents_created", report.CorrespondentsCreated,
		"correspondents_updated", report.CorrespondentsUpdated,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (s *Service) targetService(ctx context.Context) (*models.Service, error) {
	if s.defaultServiceID != "" {
		svc, err := s.services.GetServiceByID(ctx, s.defaultServiceID)
		if err != nil {
			return nil, fmt.Errorf("loading default import service: %w", err)
		}
		return svc, nil
	}
	all, err := s.services.ListServices(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}
	if len(all) == 0 {
		return nil, apperr.Validationf("Aucun service disponible. Créez au moins un service avant d'importer.")
	}
	return &all[0], nil
}

func parseRow(record []string, cols map[string]int) row {
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	return row{
		nom:     field("nom"),
		prenom:  field("prenom"),
		telFixe: field("telephone_fixe"),
		telMob:  field("telephone_mobile"),
		email:   field("adresse_mail"),
		adresse: field("adresse_postale"),
		titre:   field("titre_message"),
		typ:     strings.ToLower(field("type")),
		statut:  strings.ToLower(field("statut")),
	}
}

func (s *Service) importRow(ctx context.Context, rw row, target *models.Service, actor *models.User, report *models.ImportReport) error {
	if rw.nom == "" || rw.titre == "" {
		return errors.New("nom et titre_message sont requis")
	}

	fullName := rw.nom
	if rw.prenom != "" {
		fullName = rw.prenom + " " + rw.nom
	}
	phone := rw.telMob
	if phone == "" {
		phone = rw.telFixe
	}

	c, created, err := s.correspondents.UpsertByName(ctx, fullName, models.CorrespondentFields{
		Email:   rw.email,
		Phone:   phone,
		Address: rw.adresse,
	})
	if err != nil {
		return err
	}
	if created {
		report.CorrespondentsCreated++
	} else {
		report.CorrespondentsUpdated++
	}

	_, err = s.mails.Create(ctx, mail.CreateParams{
		Type:            importType(rw.typ),
		Subject:         rw.titre,
		Content:         fmt.Sprintf("Message importé depuis CSV\n\nTitre: %s", rw.titre),
		CorrespondentID: c.ID,
		Recipients:      []models.RecipientRef{{ServiceID: target.ID}},
		MessageType:     models.MessageTypeCourrier,
		InitialStatus:   importStatus(rw.statut),
		InitialComment:  "Import CSV",
	}, actor)
	if err != nil {
		return err
	}
	report.MailsCreated++
	return nil
}

// importStatus maps the legacy export's status labels. Anything
// unrecognized lands in recu rather than failing the row.
func importStatus(statut string) string {
	switch statut {
	case "archivé", "archive", "archivés":
		return models.StatusArchive
	default:
		return models.StatusRecu
	}
}

// importType maps the legacy export's type labels, defaulting to entrant.
func importType(typ string) string {
	switch typ {
	case "sortant", "envoyé", "envoye", "out":
		return models.MailTypeSortant
	default:
		return models.MailTypeEntrant
	}
}
