// Package store defines the persistence interfaces consumed by the
// domain services. Implementations live in subpackages.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ormea-systems/maildesk/internal/models"
)

// Sentinel errors shared by all implementations so services never depend
// on driver-specific errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUserRole(ctx context.Context, id, role string) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	DeleteUser(ctx context.Context, id string) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, token, userID string, expiresAt time.Time) (*models.Session, error)
	GetSessionByToken(ctx context.Context, token string) (*models.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteExpiredSessions(ctx context.Context) error
}

type CorrespondentStore interface {
	// CreateCorrespondent returns ErrDuplicate when another record
	// already holds the same normalized name.
	CreateCorrespondent(ctx context.Context, c *models.Correspondent, normalizedName string) error
	GetCorrespondentByID(ctx context.Context, id string) (*models.Correspondent, error)
	GetCorrespondentByNormalizedName(ctx context.Context, normalizedName string) (*models.Correspondent, error)
	UpdateCorrespondent(ctx context.Context, c *models.Correspondent, normalizedName string) error
	DeleteCorrespondent(ctx context.Context, id string) error
	// SearchCorrespondents matches the query as a case-insensitive
	// substring of name, email or organization, alphabetically by name.
	// An empty query returns everything.
	SearchCorrespondents(ctx context.Context, query string) ([]models.Correspondent, error)
}

type ServiceStore interface {
	CreateService(ctx context.Context, svc *models.Service) error
	GetServiceByID(ctx context.Context, id string) (*models.Service, error)
	ListServices(ctx context.Context, includeArchived bool) ([]models.Service, error)
	UpdateService(ctx context.Context, svc *models.Service) error
	// ArchiveService flags the service and, in the same transaction,
	// moves every non-archived mail addressed to it into the archive
	// status, appending sweep (with per-mail timestamps) to each mail's
	// workflow. It returns the number of mails swept.
	ArchiveService(ctx context.Context, id, archivedBy string, sweep models.WorkflowEntry) (int, error)
	RestoreService(ctx context.Context, id string) error
}

// CounterStore allocates per-(type, year) reference sequence numbers.
// The increment must be a single atomic operation.
type CounterStore interface {
	NextReferenceSequence(ctx context.Context, mailType string, year int) (int64, error)
}

type MailStore interface {
	// CreateMail durably stores the mail together with its recipients
	// and initial workflow entries, or nothing at all. It returns
	// ErrDuplicate when the reference is already taken.
	CreateMail(ctx context.Context, m *models.Mail) error
	GetMailByID(ctx context.Context, id string) (*models.Mail, error)
	ListMails(ctx context.Context, q models.MailQuery) ([]models.Mail, error)
	// UpdateMail persists the mutable fields and recipient list of m and
	// appends the given workflow entries, atomically.
	UpdateMail(ctx context.Context, m *models.Mail, appended []models.WorkflowEntry) error
	// SetMailOpened records the first opener. It is a no-op returning
	// false when the mail has already been opened. When assign is true
	// the opener also becomes the assignee.
	SetMailOpened(ctx context.Context, mailID, userID, userName string, at time.Time, assign bool) (bool, error)
	DeleteMail(ctx context.Context, id string) error

	AddMailAttachment(ctx context.Context, mailID string, att *models.Attachment) error
	GetMailAttachment(ctx context.Context, mailID, attachmentID string) (*models.Attachment, error)
	// RemoveMailAttachment is an idempotent no-op when the attachment is
	// absent.
	RemoveMailAttachment(ctx context.Context, mailID, attachmentID string) error

	ThreadStore
	MailRefCounter
}

// ThreadStore is the read-side slice of MailStore used by the threading
// resolver.
type ThreadStore interface {
	GetMailSummary(ctx context.Context, id string) (*models.MailSummary, error)
	ListMailChildren(ctx context.Context, parentID string) ([]models.MailSummary, error)
}

// MailRefCounter is the slice of MailStore the correspondent directory
// needs to guard hard deletes.
type MailRefCounter interface {
	CountMailsByCorrespondent(ctx context.Context, correspondentID string) (int, error)
}

type StatsStore interface {
	GetStats(ctx context.Context, userID string) (*models.Stats, error)
	GetAdvancedStats(ctx context.Context, q models.AdvancedStatsQuery) (*models.AdvancedStats, error)
}
