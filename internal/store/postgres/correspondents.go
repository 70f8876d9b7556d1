package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/store"
)

type CorrespondentStore struct {
	db *sql.DB
}

func NewCorrespondentStore(db *sql.DB) *CorrespondentStore {
	return &CorrespondentStore{db: db}
}

const correspondentColumns = `id, name, email, organization, phone, address, created_at`

func (s *CorrespondentStore) CreateCorrespondent(ctx context.Context, c *models.Correspondent, normalizedName string) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO correspondents (id, name, normalized_name, email, organization, phone, address)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		c.ID, c.Name, normalizedName, c.Email, c.Organization, c.Phone, c.Address,
	).Scan(&c.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	return err
}

func (s *CorrespondentStore) GetCorrespondentByID(ctx context.Context, id string) (*models.Correspondent, error) {
	return s.getCorrespondent(ctx, `WHERE id = $1`, id)
}

func (s *CorrespondentStore) GetCorrespondentByNormalizedName(ctx context.Context, normalizedName string) (*models.Correspondent, error) {
	return s.getCorrespondent(ctx, `WHERE normalized_name = $1`, normalizedName)
}

func (s *CorrespondentStore) getCorrespondent(ctx context.Context, where string, arg any) (*models.Correspondent, error) {
	c := &models.Correspondent{}
	err := s.db.QueryRowContext(ctx,
		`SELECT `+correspondentColumns+` FROM correspondents `+where,
		arg,
	).Scan(&c.ID, &c.Name, &c.Email, &c.Organization, &c.Phone, &c.Address, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CorrespondentStore) UpdateCorrespondent(ctx context.Context, c *models.Correspondent, normalizedName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE correspondents
		 SET name = $2, normalized_name = $3, email = $4, organization = $5, phone = $6, address = $7
		 WHERE id = $1`,
		c.ID, c.Name, normalizedName, c.Email, c.Organization, c.Phone, c.Address)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
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

func (s *CorrespondentStore) DeleteCorrespondent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM correspondents WHERE id = $1`, id)
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

func (s *CorrespondentStore) SearchCorrespondents(ctx context.Context, query string) ([]models.Correspondent, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+correspondentColumns+` FROM correspondents
		 WHERE name ILIKE $1 OR email ILIKE $1 OR organization ILIKE $1
		 ORDER BY name`,
		pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Correspondent
	for rows.Next() {
		var c models.Correspondent
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Organization, &c.Phone, &c.Address, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
