// Package mail implements the correspondence lifecycle engine: the mail
// entity, its status workflow, multi-recipient addressing, attachments
// and replies.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ormea-systems/maildesk/internal/apperr"
	"github.com/ormea-systems/maildesk/internal/auth"
	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/reference"
	"github.com/ormea-systems/maildesk/internal/store"
	"github.com/ormea-systems/maildesk/internal/thread"
)

// createAttempts bounds the retry loop on a reference collision. The
// counter is atomic, so a collision means another instance raced us and
// the next sequence value is free.
const createAttempts = 3

// Service owns the mail entity and its lifecycle rules.
type Service struct {
	mails          store.MailStore
	correspondents store.CorrespondentStore
	services       store.ServiceStore
	users          store.UserStore
	refs           *reference.Generator
	policy         *auth.Policy
	threads        *thread.Resolver
}

func NewService(
	mails store.MailStore,
	correspondents store.CorrespondentStore,
	services store.ServiceStore,
	users store.UserStore,
	refs *reference.Generator,
	policy *auth.Policy,
	threads *thread.Resolver,
) *Service {
	return &Service{
		mails:          mails,
		correspondents: correspondents,
		services:       services,
		users:          users,
		refs:           refs,
		policy:         policy,
		threads:        threads,
	}
}

// CreateParams is the input to Create and Reply.
type CreateParams struct {
	Type             string               `json:"type"`
	Subject          string               `json:"subject"`
	Content          string               `json:"content"`
	CorrespondentID  string               `json:"correspondent_id"`
	Recipients       []models.RecipientRef `json:"recipients"`
	MessageType      string               `json:"message_type"`
	IsRegistered     bool                 `json:"is_registered"`
	RegisteredNumber string               `json:"registered_number"`
	NoResponseNeeded bool                 `json:"no_response_needed"`
	ParentMailID     string               `json:"parent_mail_id"`

	// InitialStatus and InitialComment let the CSV import land rows
	// directly in their historical status with a single workflow entry.
	// Empty InitialStatus means recu.
	InitialStatus  string `json:"-"`
	InitialComment string `json:"-"`
}

// UpdatePatch carries the mutable fields of a mail. Nil means "leave
// unchanged"; an explicit empty AssignedToID clears the assignment.
type UpdatePatch struct {
	Subject      *string                `json:"subject"`
	Content      *string                `json:"content"`
	Status       *string                `json:"status"`
	AssignedToID *string                `json:"assigned_to_id"`
	Recipients   *[]models.RecipientRef `json:"recipients"`
	Comment      *string                `json:"comment"`
}

// Create validates the input, allocates a reference and durably stores
// the mail together with its first workflow entry.
func (s *Service) Create(ctx context.Context, params CreateParams, actor *models.User) (*models.Mail, error) {
	if !models.ValidMailType(params.Type) {
		return nil, apperr.Validationf("invalid mail type %q", params.Type)
	}
	if strings.TrimSpace(params.Subject) == "" {
		return nil, apperr.Validationf("subject is required")
	}
	if strings.TrimSpace(params.Content) == "" {
		return nil, apperr.Validationf("content is required")
	}

	messageType := models.NormalizeMessageType(params.MessageType)
	if messageType == "" {
		return nil, apperr.Validationf("invalid message type %q", params.MessageType)
	}
	if params.IsRegistered {
		if !models.RegisteredAllowed(messageType) {
			return nil, apperr.Validationf("registered delivery only applies to courrier or colis")
		}
		if strings.TrimSpace(params.RegisteredNumber) == "" {
			return nil, apperr.Validationf("registered number is required for registered mail")
		}
	}
	noResponse := params.NoResponseNeeded
	if messageType == models.MessageTypeColis {
		// A parcel never expects an answer, whatever the caller sent.
		noResponse = true
	}

	status := params.InitialStatus
	if status == "" {
		status = models.StatusRecu
	}
	if !models.ValidStatus(status) {
		return nil, apperr.Validationf("invalid status %q", status)
	}

	correspondent, err := s.correspondents.GetCorrespondentByID(ctx, params.CorrespondentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Conflictf("correspondent %s does not exist", params.CorrespondentID)
		}
		return nil, fmt.Errorf("resolving correspondent: %w", err)
	}

	recipients, err := s.resolveRecipients(ctx, params.Recipients)
	if err != nil {
		return nil, err
	}

	var parentRef string
	if params.ParentMailID != "" {
		parent, err := s.mails.GetMailByID(ctx, params.ParentMailID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.Conflictf("parent mail %s does not exist", params.ParentMailID)
			}
			return nil, fmt.Errorf("resolving parent mail: %w", err)
		}
		parentRef = parent.Reference
	}

	now := time.Now()
	m := &models.Mail{
		ID:                  uuid.NewString(),
		Type:                params.Type,
		Subject:             strings.TrimSpace(params.Subject),
		Content:             params.Content,
		CorrespondentID:     correspondent.ID,
		CorrespondentName:   correspondent.Name,
		Recipients:          recipients,
		MessageType:         messageType,
		IsRegistered:        params.IsRegistered,
		RegisteredNumber:    strings.TrimSpace(params.RegisteredNumber),
		NoResponseNeeded:    noResponse,
		Status:              status,
		ParentMailID:        params.ParentMailID,
		ParentMailReference: parentRef,
		CreatedByID:         actor.ID,
		CreatedByName:       actor.Name,
		CreatedAt:           now,
		Attachments:         []models.Attachment{},
		Workflow: []models.WorkflowEntry{{
			Status:    status,
			UserID:    actor.ID,
			UserName:  actor.Name,
			Timestamp: now,
			Comment:   params.InitialComment,
		}},
	}

	for attempt := 1; ; attempt++ {
		ref, err := s.refs.Next(ctx, m.Type, m.CreatedAt)
		if err != nil {
			return nil, err
		}
		m.Reference = ref

		err = s.mails.CreateMail(ctx, m)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrDuplicate) && attempt < createAttempts {
			slog.Warn("reference collision, retrying", "reference", ref, "attempt", attempt)
			continue
		}
		return nil, fmt.Errorf("storing mail: %w", err)
	}

	slog.Info("mail created", "mail_id", m.ID, "reference", m.Reference, "type", m.Type)
	return m, nil
}

func (s *Service) resolveRecipients(ctx context.Context, refs []models.RecipientRef) ([]models.Recipient, error) {
	if len(refs) == 0 {
		return nil, apperr.Validationf("at least one recipient service is required")
	}

	recipients := make([]models.Recipient, 0, len(refs))
	for _, ref := range refs {
		if ref.ServiceID == "" {
			return nil, apperr.Validationf("recipient service id is required")
		}
		svc, err := s.services.GetServiceByID(ctx, ref.ServiceID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.Conflictf("service %s does not exist", ref.ServiceID)
			}
			return nil, fmt.Errorf("resolving service: %w", err)
		}
		// This check runs outside ArchiveService's transaction. A create
		// racing an archive can still commit against a just-archived
		// service; such a mail counts as created after the archive and
		// is not swept.
		if svc.Archived {
			return nil, apperr.Conflictf("service %s is archived", svc.Name)
		}

		recipient := models.Recipient{ServiceID: svc.ID, ServiceName: svc.Name}
		if ref.SubServiceID != "" {
			found := false
			for _, sub := range svc.SubServices {
				if sub.ID == ref.SubServiceID {
					recipient.SubServiceID = sub.ID
					recipient.SubServiceName = sub.Name
					found = true
					break
				}
			}
			if !found {
				return nil, apperr.Conflictf("sub-service %s does not belong to service %s", ref.SubServiceID, svc.Name)
			}
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// Get loads a mail, records the first opener, and assembles the
// related-mails view.
func (s *Service) Get(ctx context.Context, id string, actor *models.User) (*models.Mail, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if actor != nil && m.OpenedByID == "" && actor.ID != m.CreatedByID {
		assign := m.AssignedToID == "" && s.policy.CanBeAssigned(actor, m)
		now := time.Now()
		won, err := s.mails.SetMailOpened(ctx, m.ID, actor.ID, actor.Name, now, assign)
		if err != nil {
			return nil, fmt.Errorf("recording first opener: %w", err)
		}
		if won {
			m.OpenedByID = actor.ID
			m.OpenedByName = actor.Name
			m.OpenedAt = &now
			if assign {
				m.AssignedToID = actor.ID
				m.AssignedToName = actor.Name
			}
		}
	}

	related, err := s.threads.Related(ctx, m)
	if err != nil {
		return nil, err
	}
	m.RelatedMails = related
	return m, nil
}

func (s *Service) load(ctx context.Context, id string) (*models.Mail, error) {
	m, err := s.mails.GetMailByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("mail %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading mail: %w", err)
	}
	return m, nil
}

func (s *Service) List(ctx context.Context, q models.MailQuery) ([]models.Mail, error) {
	if q.Type != "" && !models.ValidMailType(q.Type) {
		return nil, apperr.Validationf("invalid mail type %q", q.Type)
	}
	if q.Status != "" && !models.ValidStatus(q.Status) {
		return nil, apperr.Validationf("invalid status %q", q.Status)
	}
	mails, err := s.mails.ListMails(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("listing mails: %w", err)
	}
	return mails, nil
}

// Update applies a patch to a mail. Status, assignment and comment
// changes append exactly one workflow entry; pure subject/content edits
// do not.
func (s *Service) Update(ctx context.Context, id string, patch UpdatePatch, actor *models.User) (*models.Mail, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Subject != nil || patch.Content != nil {
		if !s.policy.CanEditContent(actor, m) {
			return nil, apperr.Forbiddenf("only the creator or an administrator may edit subject and content")
		}
		if patch.Subject != nil {
			if strings.TrimSpace(*patch.Subject) == "" {
				return nil, apperr.Validationf("subject is required")
			}
			m.Subject = strings.TrimSpace(*patch.Subject)
		}
		if patch.Content != nil {
			if strings.TrimSpace(*patch.Content) == "" {
				return nil, apperr.Validationf("content is required")
			}
			m.Content = *patch.Content
		}
	}

	statusChanged := false
	if patch.Status != nil {
		if !models.ValidStatus(*patch.Status) {
			return nil, apperr.Validationf("invalid status %q", *patch.Status)
		}
		if *patch.Status != m.Status {
			m.Status = *patch.Status
			statusChanged = true
		}
	}

	assignChanged := false
	if patch.AssignedToID != nil && *patch.AssignedToID != m.AssignedToID {
		if *patch.AssignedToID == "" {
			m.AssignedToID = ""
			m.AssignedToName = ""
		} else {
			assignee, err := s.users.GetUserByID(ctx, *patch.AssignedToID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, apperr.Conflictf("user %s does not exist", *patch.AssignedToID)
				}
				return nil, fmt.Errorf("resolving assignee: %w", err)
			}
			if !s.policy.CanBeAssigned(assignee, m) {
				return nil, apperr.Validationf("assignee must belong to a recipient service or be an administrator")
			}
			m.AssignedToID = assignee.ID
			m.AssignedToName = assignee.Name
		}
		assignChanged = true
	}

	if patch.Recipients != nil {
		recipients, err := s.resolveRecipients(ctx, *patch.Recipients)
		if err != nil {
			return nil, err
		}
		m.Recipients = recipients
	}

	var appended []models.WorkflowEntry
	hasComment := patch.Comment != nil && strings.TrimSpace(*patch.Comment) != ""
	if statusChanged || assignChanged || hasComment {
		entry := models.WorkflowEntry{
			Status:    m.Status,
			UserID:    actor.ID,
			UserName:  actor.Name,
			Timestamp: time.Now(),
		}
		if patch.Comment != nil {
			entry.Comment = strings.TrimSpace(*patch.Comment)
		}
		appended = append(appended, entry)
		m.Workflow = append(m.Workflow, entry)
	}

	if err := s.mails.UpdateMail(ctx, m, appended); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFoundf("mail %s not found", id)
		}
		return nil, fmt.Errorf("updating mail: %w", err)
	}
	return m, nil
}

// UpdateStatus is the single entry point for status transitions. Any
// status may follow any other; the engine records the transition rather
// than policing it.
func (s *Service) UpdateStatus(ctx context.Context, id, newStatus string, actor *models.User, comment string) (*models.Mail, error) {
	patch := UpdatePatch{Status: &newStatus}
	if comment != "" {
		patch.Comment = &comment
	}
	return s.Update(ctx, id, patch, actor)
}

// Reply creates a new mail linked to its parent, with the type flipped.
// The parent itself is untouched.
func (s *Service) Reply(ctx context.Context, parentID string, params CreateParams, actor *models.User) (*models.Mail, error) {
	parent, err := s.load(ctx, parentID)
	if err != nil {
		return nil, err
	}
	params.ParentMailID = parent.ID
	params.Type = models.OppositeMailType(parent.Type)
	return s.Create(ctx, params, actor)
}

// MarkOpened records actor as the first opener. Calls after the first
// are no-ops, as are reads by the creator.
func (s *Service) MarkOpened(ctx context.Context, id string, actor *models.User) error {
	m, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if m.OpenedByID != "" || actor.ID == m.CreatedByID {
		return nil
	}
	assign := m.AssignedToID == "" && s.policy.CanBeAssigned(actor, m)
	if _, err := s.mails.SetMailOpened(ctx, m.ID, actor.ID, actor.Name, time.Now(), assign); err != nil {
		return fmt.Errorf("recording first opener: %w", err)
	}
	return nil
}

func (s *Service) AddAttachment(ctx context.Context, mailID, filename, contentType string, content []byte) (*models.Attachment, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, apperr.Validationf("attachment filename is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	att := &models.Attachment{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
		Content:     content,
	}
	if err := s.mails.AddMailAttachment(ctx, mailID, att); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFoundf("mail %s not found", mailID)
		}
		return nil, fmt.Errorf("storing attachment: %w", err)
	}
	return att, nil
}

func (s *Service) GetAttachment(ctx context.Context, mailID, attachmentID string) (*models.Attachment, error) {
	att, err := s.mails.GetMailAttachment(ctx, mailID, attachmentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFoundf("attachment %s not found", attachmentID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading attachment: %w", err)
	}
	return att, nil
}

// RemoveAttachment is an idempotent no-op when the attachment is absent.
func (s *Service) RemoveAttachment(ctx context.Context, mailID, attachmentID string) error {
	if err := s.mails.RemoveMailAttachment(ctx, mailID, attachmentID); err != nil {
		return fmt.Errorf("removing attachment: %w", err)
	}
	return nil
}

// Delete permanently removes a mail. Administrators only.
func (s *Service) Delete(ctx context.Context, id string, actor *models.User) error {
	if !s.policy.IsAdmin(actor) {
		return apperr.Forbiddenf("admin access required")
	}
	if err := s.mails.DeleteMail(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFoundf("mail %s not found", id)
		}
		return fmt.Errorf("deleting mail: %w", err)
	}
	return nil
}
