// Package servicedir implements the organizational service catalog mail
// is routed to. Services are archived rather than deleted.
package servicedir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ormea-systems/maildesk/internal/apperr"
	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/store"
)

// Service provides routing directory business logic.
type Service struct {
	services store.ServiceStore
}

func NewService(services store.ServiceStore) *Service {
	return &Service{services: services}
}

func validate(name string, subs []models.SubService) error {
	if strings.TrimSpace(name) == "" {
		return apperr.Validationf("service name is required")
	}
	seen := make(map[string]bool, len(subs))
	for _, sub := range subs {
		subName := strings.TrimSpace(sub.Name)
		if subName == "" {
			return apperr.Validationf("sub-service name is required")
		}
		key := strings.ToLower(subName)
		if seen[key] {
			return apperr.Validationf("duplicate sub-service name %q", subName)
		}
		seen[key] = true
	}
	return nil
}

func (s *Service) Create(ctx context.Context, name string, subs []models.SubService) (*models.Service, error) {
	if err := validate(name, subs); err != nil {
		return nil, err
	}

	svc := &models.Service{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		SubServices: make([]models.SubService, 0, len(subs)),
	}
	for _, sub := range subs {
		id := sub.ID
		if id == "" {
			id = uuid.NewString()
		}
		svc.SubServices = append(svc.SubServices, models.SubService{
			ID:   id,
			Name: strings.TrimSpace(sub.Name),
		})
	}

	if err := s.services.CreateService(ctx, svc); err != nil {
		return nil, fmt.Errorf("creating service: %w", err)
	}
	return svc, nil
}

func (s *Service) Update(ctx context.Context, id, name string, subs []models.SubService) (*models.Service, error) {
	if err := validate(name, subs); err != nil {
		return nil, err
	}

	svc, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	svc.Name = strings.TrimSpace(name)
	svc.SubServices = make([]models.SubService, 0, len(subs))
	for _, sub := range subs {
		subID := sub.ID
		if subID == "" {
			subID = uuid.NewString()
		}
		svc.SubServices = append(svc.SubServices, models.SubService{
			ID:   subID,
			Name: strings.TrimSpace(sub.Name),
		})
	}

	if err := s.services.UpdateService(ctx, svc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFoundf("service %s not found", id)
		}
		return nil, fmt.Errorf("updating service: %w", err)
	}
	return svc, nil
}

// Get resolves a service by id, archived or not.
func (s *Service) Get(ctx context.Context, id string) (*models.Service, error) {
	svc, err := s.services.GetServiceByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("service %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading service: %w", err)
	}
	return svc, nil
}

func (s *Service) List(ctx context.Context, includeArchived bool) ([]models.Service, error) {
	services, err := s.services.ListServices(ctx, includeArchived)
	if err != nil {
		return nil, fmt.Errorf("listing services: %w", err)
	}
	return services, nil
}

// Archive flags the service and sweeps every non-archived mail addressed
// to it into the archive status, one workflow entry each, attributed to
// the system actor. It returns the number of mails swept.
func (s *Service) Archive(ctx context.Context, id string, actor *models.User) (int, error) {
	sweep := models.WorkflowEntry{
		Status:    models.StatusArchive,
		UserID:    models.SystemUserID,
		UserName:  models.SystemUserName,
		Timestamp: time.Now(),
		Comment:   "Service archivé",
	}

	count, err := s.services.ArchiveService(ctx, id, actor.Name, sweep)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, apperr.NotFoundf("service %s not found", id)
		}
		return 0, fmt.Errorf("archiving service: %w", err)
	}

	slog.Info("service archived", "service_id", id, "archived_mails", count, "by", actor.Name)
	return count, nil
}

func (s *Service) Restore(ctx context.Context, id string) error {
	if err := s.services.RestoreService(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFoundf("service %s not found", id)
		}
		return fmt.Errorf("restoring service: %w", err)
	}
	return nil
}
