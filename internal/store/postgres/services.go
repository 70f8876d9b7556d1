package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/store"
)

type ServiceStore struct {
	db *sql.DB
}

func NewServiceStore(db *sql.DB) *ServiceStore {
	return &ServiceStore{db: db}
}

func (s *ServiceStore) CreateService(ctx context.Context, svc *models.Service) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO services (id, name) VALUES ($1, $2) RETURNING created_at`,
		svc.ID, svc.Name,
	).Scan(&svc.CreatedAt)
	if err != nil {
		return err
	}

	if err := insertSubServices(ctx, tx, svc.ID, svc.SubServices); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *ServiceStore) UpdateService(ctx context.Context, svc *models.Service) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE services SET name = $2 WHERE id = $1`, svc.ID, svc.Name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM sub_services WHERE service_id = $1`, svc.ID); err != nil {
		return err
	}
	if err := insertSubServices(ctx, tx, svc.ID, svc.SubServices); err != nil {
		return err
	}

	return tx.Commit()
}

func insertSubServices(ctx context.Context, tx *sql.Tx, serviceID string, subs []models.SubService) error {
	for i, sub := range subs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sub_services (id, service_id, name, position)
			 VALUES ($1, $2, $3, $4)`,
			sub.ID, serviceID, sub.Name, i); err != nil {
			if isUniqueViolation(err) {
				return store.ErrDuplicate
			}
			return err
		}
	}
	return nil
}

func (s *ServiceStore) GetServiceByID(ctx context.Context, id string) (*models.Service, error) {
	svc := &models.Service{}
	var archivedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, archived, archived_at, archived_by, created_at
		 FROM services WHERE id = $1`,
		id,
	).Scan(&svc.ID, &svc.Name, &svc.Archived, &archivedAt, &svc.ArchivedBy, &svc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if archivedAt.Valid {
		svc.ArchivedAt = &archivedAt.Time
	}

	subs, err := s.subServices(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	svc.SubServices = subs[id]
	if svc.SubServices == nil {
		svc.SubServices = []models.SubService{}
	}
	return svc, nil
}

func (s *ServiceStore) ListServices(ctx context.Context, includeArchived bool) ([]models.Service, error) {
	query := `SELECT id, name, archived, archived_at, archived_by, created_at FROM services`
	if !includeArchived {
		query += ` WHERE archived = FALSE`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []models.Service
	var ids []string
	for rows.Next() {
		var svc models.Service
		var archivedAt sql.NullTime
		if err := rows.Scan(&svc.ID, &svc.Name, &svc.Archived, &archivedAt, &svc.ArchivedBy, &svc.CreatedAt); err != nil {
			return nil, err
		}
		if archivedAt.Valid {
			svc.ArchivedAt = &archivedAt.Time
		}
		svc.SubServices = []models.SubService{}
		services = append(services, svc)
		ids = append(ids, svc.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	subs, err := s.subServices(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range services {
		if list, ok := subs[services[i].ID]; ok {
			services[i].SubServices = list
		}
	}
	return services, nil
}

func (s *ServiceStore) subServices(ctx context.Context, serviceIDs []string) (map[string][]models.SubService, error) {
	out := make(map[string][]models.SubService)
	if len(serviceIDs) == 0 {
		return out, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT service_id, id, name FROM sub_services
		 WHERE service_id = ANY($1) ORDER BY service_id, position`,
		pq.Array(serviceIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var serviceID string
		var sub models.SubService
		if err := rows.Scan(&serviceID, &sub.ID, &sub.Name); err != nil {
			return nil, err
		}
		out[serviceID] = append(out[serviceID], sub)
	}
	return out, rows.Err()
}

// ArchiveService runs the archive cascade in one transaction so a
// concurrent create either lands before the sweep (and is swept) or
// after it (and is untouched).
func (s *ServiceStore) ArchiveService(ctx context.Context, id, archivedBy string, sweep models.WorkflowEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE services SET archived = TRUE, archived_at = $2, archived_by = $3 WHERE id = $1`,
		id, time.Now(), archivedBy)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, store.ErrNotFound
	}

	// A locking clause cannot be combined with DISTINCT, so the
	// recipient match is an EXISTS predicate rather than a join.
	rows, err := tx.QueryContext(ctx,
		`SELECT m.id FROM mails m
		 WHERE m.status <> $2 AND EXISTS (
		     SELECT 1 FROM mail_recipients r
		     WHERE r.mail_id = m.id AND r.service_id = $1
		 )
		 FOR UPDATE`,
		id, models.StatusArchive)
	if err != nil {
		return 0, err
	}
	var mailIDs []string
	for rows.Next() {
		var mailID string
		if err := rows.Scan(&mailID); err != nil {
			rows.Close()
			return 0, err
		}
		mailIDs = append(mailIDs, mailID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	if len(mailIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE mails SET status = $2 WHERE id = ANY($1)`,
			pq.Array(mailIDs), models.StatusArchive); err != nil {
			return 0, err
		}
		for _, mailID := range mailIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO mail_workflow (mail_id, status, user_id, user_name, comment, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				mailID, models.StatusArchive, sweep.UserID, sweep.UserName, sweep.Comment, time.Now()); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing archive cascade: %w", err)
	}
	return len(mailIDs), nil
}

func (s *ServiceStore) RestoreService(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE services SET archived = FALSE, archived_at = NULL, archived_by = '' WHERE id = $1`,
		id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
