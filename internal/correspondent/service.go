// Package correspondent implements the contact directory used to
// address mail.
package correspondent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/ormea-systems/maildesk/internal/apperr"
	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/store"
)

var folder = cases.Fold()

// NormalizeName is the dedup key for correspondent names: trimmed,
// Unicode case-folded, inner whitespace collapsed.
func NormalizeName(name string) string {
	return folder.String(strings.Join(strings.Fields(name), " "))
}

// Service provides correspondent directory business logic.
type Service struct {
	correspondents store.CorrespondentStore
	mails          store.MailRefCounter
}

func NewService(correspondents store.CorrespondentStore, mails store.MailRefCounter) *Service {
	return &Service{
		correspondents: correspondents,
		mails:          mails,
	}
}

func (s *Service) Create(ctx context.Context, fields models.CorrespondentFields) (*models.Correspondent, error) {
	name := strings.TrimSpace(fields.Name)
	if name == "" {
		return nil, apperr.Validationf("correspondent name is required")
	}

	c := &models.Correspondent{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        strings.TrimSpace(fields.Email),
		Organization: strings.TrimSpace(fields.Organization),
		Phone:        strings.TrimSpace(fields.Phone),
		Address:      strings.TrimSpace(fields.Address),
	}
	if err := s.correspondents.CreateCorrespondent(ctx, c, NormalizeName(name)); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflictf("a correspondent named %q already exists", name)
		}
		return nil, fmt.Errorf("creating correspondent: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Correspondent, error) {
	c, err := s.correspondents.GetCorrespondentByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("correspondent %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading correspondent: %w", err)
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, id string, fields models.CorrespondentFields) (*models.Correspondent, error) {
	name := strings.TrimSpace(fields.Name)
	if name == "" {
		return nil, apperr.Validationf("correspondent name is required")
	}

	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name = name
	c.Email = strings.TrimSpace(fields.Email)
	c.Organization = strings.TrimSpace(fields.Organization)
	c.Phone = strings.TrimSpace(fields.Phone)
	c.Address = strings.TrimSpace(fields.Address)

	if err := s.correspondents.UpdateCorrespondent(ctx, c, NormalizeName(name)); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, apperr.NotFoundf("correspondent %s not found", id)
		case errors.Is(err, store.ErrDuplicate):
			return nil, apperr.Conflictf("a correspondent named %q already exists", name)
		}
		return nil, fmt.Errorf("updating correspondent: %w", err)
	}
	return c, nil
}

// Delete removes a correspondent. It is rejected while any mail still
// references the record.
func (s *Service) Delete(ctx context.Context, id string) error {
	count, err := s.mails.CountMailsByCorrespondent(ctx, id)
	if err != nil {
		return fmt.Errorf("counting referencing mails: %w", err)
	}
	if count > 0 {
		return apperr.Conflictf("correspondent is referenced by %d mail(s) and cannot be deleted", count)
	}

	if err := s.correspondents.DeleteCorrespondent(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFoundf("correspondent %s not found", id)
		}
		return fmt.Errorf("deleting correspondent: %w", err)
	}
	return nil
}

// Search returns correspondents matching the query as a case-insensitive
// substring of name, email or organization. Matches whose name starts
// with the query come first, then the rest, each group alphabetical.
func (s *Service) Search(ctx context.Context, query string) ([]models.Correspondent, error) {
	matches, err := s.correspondents.SearchCorrespondents(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, fmt.Errorf("searching correspondents: %w", err)
	}

	folded := folder.String(strings.TrimSpace(query))
	if folded != "" {
		sort.SliceStable(matches, func(i, j int) bool {
			pi := strings.HasPrefix(folder.String(matches[i].Name), folded)
			pj := strings.HasPrefix(folder.String(matches[j].Name), folded)
			if pi != pj {
				return pi
			}
			return folder.String(matches[i].Name) < folder.String(matches[j].Name)
		})
	}
	return matches, nil
}

// UpsertByName matches an existing correspondent by normalized name and
// fills its empty fields from the given ones, or creates a new record.
// Used by the CSV import; safe under concurrent imports of the same
// name.
func (s *Service) UpsertByName(ctx context.Context, name string, fields models.CorrespondentFields) (*models.Correspondent, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, false, apperr.Validationf("correspondent name is required")
	}
	normalized := NormalizeName(name)

	existing, err := s.correspondents.GetCorrespondentByNormalizedName(ctx, normalized)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("looking up correspondent: %w", err)
	}

	if existing == nil {
		c := &models.Correspondent{
			ID:           uuid.NewString(),
			Name:         name,
			Email:        strings.TrimSpace(fields.Email),
			Organization: strings.TrimSpace(fields.Organization),
			Phone:        strings.TrimSpace(fields.Phone),
			Address:      strings.TrimSpace(fields.Address),
		}
		err := s.correspondents.CreateCorrespondent(ctx, c, normalized)
		if err == nil {
			return c, true, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return nil, false, fmt.Errorf("creating correspondent: %w", err)
		}
		// Lost the race against a concurrent import of the same name;
		// fall through to update the winner's record.
		existing, err = s.correspondents.GetCorrespondentByNormalizedName(ctx, normalized)
		if err != nil {
			return nil, false, fmt.Errorf("reloading correspondent after duplicate insert: %w", err)
		}
	}

	if fillEmptyFields(existing, fields) {
		if err := s.correspondents.UpdateCorrespondent(ctx, existing, normalized); err != nil {
			return nil, false, fmt.Errorf("updating correspondent: %w", err)
		}
	}
	return existing, false, nil
}

// fillEmptyFields copies non-empty incoming fields into empty slots of
// c and reports whether anything changed. Existing values are never
// overwritten.
func fillEmptyFields(c *models.Correspondent, fields models.CorrespondentFields) bool {
	changed := false
	set := func(dst *string, v string) {
		v = strings.TrimSpace(v)
		if *dst == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	set(&c.Email, fields.Email)
	set(&c.Organization, fields.Organization)
	set(&c.Phone, fields.Phone)
	set(&c.Address, fields.Address)
	return changed
}
