package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/store"
)

type MailStore struct {
	db *sql.DB
}

func NewMailStore(db *sql.DB) *MailStore {
	return &MailStore{db: db}
}

// NextReferenceSequence atomically increments the per-(type, year)
// counter and returns the new value. A single upsert statement keeps the
// allocation collision-free across server instances.
func (s *MailStore) NextReferenceSequence(ctx context.Context, mailType string, year int) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO mail_counters (mail_type, year, value)
		 VALUES ($1, $2, 1)
		 ON CONFLICT (mail_type, year)
		 DO UPDATE SET value = mail_counters.value + 1
		 RETURNING value`,
		mailType, year,
	).Scan(&value)
	return value, err
}

const mailColumns = `id, mail_type, reference, subject, content,
	correspondent_id, correspondent_name, message_type, is_registered,
	registered_number, no_response_needed, status, assigned_to_id,
	assigned_to_name, parent_mail_id, parent_mail_reference,
	created_by_id, created_by_name, created_at, opened_by_id,
	opened_by_name, opened_at`

func (s *MailStore) CreateMail(ctx context.Context, m *models.Mail) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO mails (id, mail_type, reference, subject, content,
		 correspondent_id, correspondent_name, message_type, is_registered,
		 registered_number, no_response_needed, status, assigned_to_id,
		 assigned_to_name, parent_mail_id, parent_mail_reference,
		 created_by_id, created_by_name, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		 $14, $15, $16, $17, $18, $19)`,
		m.ID, m.Type, m.Reference, m.Subject, m.Content,
		m.CorrespondentID, m.CorrespondentName, m.MessageType, m.IsRegistered,
		m.RegisteredNumber, m.NoResponseNeeded, m.Status, m.AssignedToID,
		m.AssignedToName, m.ParentMailID, m.ParentMailReference,
		m.CreatedByID, m.CreatedByName, m.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrDuplicate
	}
	if err != nil {
		return err
	}

	if err := insertRecipients(ctx, tx, m.ID, m.Recipients); err != nil {
		return err
	}
	for _, entry := range m.Workflow {
		if err := insertWorkflowEntry(ctx, tx, m.ID, entry); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertRecipients(ctx context.Context, tx *sql.Tx, mailID string, recipients []models.Recipient) error {
	for i, r := range recipients {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO mail_recipients (mail_id, position, service_id, service_name, sub_service_id, sub_service_name)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			mailID, i, r.ServiceID, r.ServiceName, r.SubServiceID, r.SubServiceName); err != nil {
			return err
		}
	}
	return nil
}

func insertWorkflowEntry(ctx context.Context, tx *sql.Tx, mailID string, entry models.WorkflowEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO mail_workflow (mail_id, status, user_id, user_name, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		mailID, entry.Status, entry.UserID, entry.UserName, entry.Comment, entry.Timestamp)
	return err
}

func (s *MailStore) GetMailByID(ctx context.Context, id string) (*models.Mail, error) {
	m := &models.Mail{}
	var openedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT `+mailColumns+` FROM mails WHERE id = $1`, id,
	).Scan(&m.ID, &m.Type, &m.Reference, &m.Subject, &m.Content,
		&m.CorrespondentID, &m.CorrespondentName, &m.MessageType, &m.IsRegistered,
		&m.RegisteredNumber, &m.NoResponseNeeded, &m.Status, &m.AssignedToID,
		&m.AssignedToName, &m.ParentMailID, &m.ParentMailReference,
		&m.CreatedByID, &m.CreatedByName, &m.CreatedAt, &m.OpenedByID,
		&m.OpenedByName, &openedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if openedAt.Valid {
		m.OpenedAt = &openedAt.Time
	}

	if m.Recipients, err = s.recipients(ctx, id); err != nil {
		return nil, err
	}
	if m.Workflow, err = s.workflow(ctx, id); err != nil {
		return nil, err
	}
	if m.Attachments, err = s.attachmentMeta(ctx, id); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MailStore) recipients(ctx context.Context, mailID string) ([]models.Recipient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT service_id, service_name, sub_service_id, sub_service_name
		 FROM mail_recipients WHERE mail_id = $1 ORDER BY position`,
		mailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Recipient
	for rows.Next() {
		var r models.Recipient
		if err := rows.Scan(&r.ServiceID, &r.ServiceName, &r.SubServiceID, &r.SubServiceName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *MailStore) workflow(ctx context.Context, mailID string) ([]models.WorkflowEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, user_id, user_name, comment, created_at
		 FROM mail_workflow WHERE mail_id = $1 ORDER BY id`,
		mailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WorkflowEntry
	for rows.Next() {
		var e models.WorkflowEntry
		if err := rows.Scan(&e.Status, &e.UserID, &e.UserName, &e.Comment, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *MailStore) attachmentMeta(ctx context.Context, mailID string) ([]models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, content_type, size_bytes, created_at
		 FROM mail_attachments WHERE mail_id = $1 ORDER BY created_at, id`,
		mailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Attachment{}
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(&a.ID, &a.Filename, &a.ContentType, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *MailStore) GetMailSummary(ctx context.Context, id string) (*models.MailSummary, error) {
	sum := &models.MailSummary{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, reference, mail_type, subject, status, created_at
		 FROM mails WHERE id = $1`, id,
	).Scan(&sum.ID, &sum.Reference, &sum.Type, &sum.Subject, &sum.Status, &sum.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func (s *MailStore) ListMails(ctx context.Context, q models.MailQuery) ([]models.Mail, error) {
	query := `SELECT ` + mailColumns + ` FROM mails`
	var args []any
	var conds []string
	if q.Type != "" {
		args = append(args, q.Type)
		conds = append(conds, fmt.Sprintf(`mail_type = $%d`, len(args)))
	}
	if q.Status != "" {
		args = append(args, q.Status)
		conds = append(conds, fmt.Sprintf(`status = $%d`, len(args)))
	}
	if q.ServiceID != "" {
		args = append(args, q.ServiceID)
		conds = append(conds, fmt.Sprintf(`id IN (SELECT mail_id FROM mail_recipients WHERE service_id = $%d)`, len(args)))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY created_at DESC`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mails []models.Mail
	for rows.Next() {
		var m models.Mail
		var openedAt sql.NullTime
		if err := rows.Scan(&m.ID, &m.Type, &m.Reference, &m.Subject, &m.Content,
			&m.CorrespondentID, &m.CorrespondentName, &m.MessageType, &m.IsRegistered,
			&m.RegisteredNumber, &m.NoResponseNeeded, &m.Status, &m.AssignedToID,
			&m.AssignedToName, &m.ParentMailID, &m.ParentMailReference,
			&m.CreatedByID, &m.CreatedByName, &m.CreatedAt, &m.OpenedByID,
			&m.OpenedByName, &openedAt); err != nil {
			return nil, err
		}
		if openedAt.Valid {
			m.OpenedAt = &openedAt.Time
		}
		mails = append(mails, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range mails {
		if mails[i].Recipients, err = s.recipients(ctx, mails[i].ID); err != nil {
			return nil, err
		}
	}
	return mails, nil
}

func (s *MailStore) UpdateMail(ctx context.Context, m *models.Mail, appended []models.WorkflowEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE mails SET subject = $2, content = $3, status = $4,
		 assigned_to_id = $5, assigned_to_name = $6, is_registered = $7,
		 registered_number = $8, no_response_needed = $9
		 WHERE id = $1`,
		m.ID, m.Subject, m.Content, m.Status,
		m.AssignedToID, m.AssignedToName, m.IsRegistered,
		m.RegisteredNumber, m.NoResponseNeeded)
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
		`DELETE FROM mail_recipients WHERE mail_id = $1`, m.ID); err != nil {
		return err
	}
	if err := insertRecipients(ctx, tx, m.ID, m.Recipients); err != nil {
		return err
	}
	for _, entry := range appended {
		if err := insertWorkflowEntry(ctx, tx, m.ID, entry); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *MailStore) SetMailOpened(ctx context.Context, mailID, userID, userName string, at time.Time, assign bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mails SET opened_by_id = $2, opened_by_name = $3, opened_at = $4,
		 assigned_to_id = CASE WHEN $5 THEN $2 ELSE assigned_to_id END,
		 assigned_to_name = CASE WHEN $5 THEN $3 ELSE assigned_to_name END
		 WHERE id = $1 AND opened_by_id = ''`,
		mailID, userID, userName, at, assign)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *MailStore) DeleteMail(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mails WHERE id = $1`, id)
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

func (s *MailStore) AddMailAttachment(ctx context.Context, mailID string, att *models.Attachment) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM mails WHERE id = $1)`, mailID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	return s.db.QueryRowContext(ctx,
		`INSERT INTO mail_attachments (id, mail_id, filename, content_type, size_bytes, content)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at`,
		att.ID, mailID, att.Filename, att.ContentType, att.SizeBytes, att.Content,
	).Scan(&att.CreatedAt)
}

func (s *MailStore) GetMailAttachment(ctx context.Context, mailID, attachmentID string) (*models.Attachment, error) {
	a := &models.Attachment{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, filename, content_type, size_bytes, content, created_at
		 FROM mail_attachments WHERE mail_id = $1 AND id = $2`,
		mailID, attachmentID,
	).Scan(&a.ID, &a.Filename, &a.ContentType, &a.SizeBytes, &a.Content, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *MailStore) RemoveMailAttachment(ctx context.Context, mailID, attachmentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM mail_attachments WHERE mail_id = $1 AND id = $2`,
		mailID, attachmentID)
	return err
}

func (s *MailStore) ListMailChildren(ctx context.Context, parentID string) ([]models.MailSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, reference, mail_type, subject, status, created_at
		 FROM mails WHERE parent_mail_id = $1 ORDER BY created_at`,
		parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MailSummary
	for rows.Next() {
		var sum models.MailSummary
		if err := rows.Scan(&sum.ID, &sum.Reference, &sum.Type, &sum.Subject, &sum.Status, &sum.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *MailStore) CountMailsByCorrespondent(ctx context.Context, correspondentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM mails WHERE correspondent_id = $1`,
		correspondentID,
	).Scan(&count)
	return count, err
}
