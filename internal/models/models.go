package models

import (
	"time"
)

// Mail types.
const (
	MailTypeEntrant = "entrant"
	MailTypeSortant = "sortant"
)

// Mail statuses.
const (
	StatusRecu       = "recu"
	StatusTraitement = "traitement"
	StatusTraite     = "traite"
	StatusArchive    = "archive"
)

// Message types. "message" and "accueil_physique" are legacy aliases
// normalized at the boundary (see NormalizeMessageType).
const (
	MessageTypeCourrier            = "courrier"
	MessageTypeEmail               = "email"
	MessageTypeDepotMainPropre     = "depot_main_propre"
	MessageTypeAccueilTelephonique = "accueil_telephonique"
	MessageTypeColis               = "colis"
)

// User roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// SystemUserID attributes workflow entries written by the engine itself,
// e.g. during an archive cascade.
const (
	SystemUserID   = "system"
	SystemUserName = "Système"
)

func ValidMailType(t string) bool {
	return t == MailTypeEntrant || t == MailTypeSortant
}

func ValidStatus(s string) bool {
	switch s {
	case StatusRecu, StatusTraitement, StatusTraite, StatusArchive:
		return true
	}
	return false
}

func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAdmin
}

// NormalizeMessageType maps legacy aliases onto the closed enumeration.
// It returns "" for values outside the enumeration.
func NormalizeMessageType(t string) string {
	switch t {
	case "", "message", MessageTypeCourrier:
		return MessageTypeCourrier
	case MessageTypeEmail:
		return MessageTypeEmail
	case "accueil_physique", MessageTypeDepotMainPropre:
		return MessageTypeDepotMainPropre
	case MessageTypeAccueilTelephonique:
		return MessageTypeAccueilTelephonique
	case MessageTypeColis:
		return MessageTypeColis
	}
	return ""
}

// RegisteredAllowed reports whether the registered-mail flag may be set
// for the given (already normalized) message type.
func RegisteredAllowed(messageType string) bool {
	return messageType == MessageTypeCourrier || messageType == MessageTypeColis
}

// OppositeMailType flips entrant/sortant, used when creating a reply.
func OppositeMailType(t string) string {
	if t == MailTypeEntrant {
		return MailTypeSortant
	}
	return MailTypeEntrant
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	ServiceID    string     `json:"service_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Session struct {
	ID        int64
	Token     string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type Correspondent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Organization string    `json:"organization,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Address      string    `json:"address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// CorrespondentFields carries the mutable fields of a correspondent for
// create, update and import upsert.
type CorrespondentFields struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Organization string `json:"organization"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
}

type SubService struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Service struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	SubServices []SubService `json:"sub_services"`
	Archived    bool         `json:"archived"`
	ArchivedAt  *time.Time   `json:"archived_at,omitempty"`
	ArchivedBy  string       `json:"archived_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Recipient is one (service, optional sub-service) pair a mail is
// addressed to. Names are snapshots taken at addressing time.
type Recipient struct {
	ServiceID      string `json:"service_id"`
	ServiceName    string `json:"service_name"`
	SubServiceID   string `json:"sub_service_id,omitempty"`
	SubServiceName string `json:"sub_service_name,omitempty"`
}

// RecipientRef addresses a recipient by ids only, before resolution.
type RecipientRef struct {
	ServiceID    string `json:"service_id"`
	SubServiceID string `json:"sub_service_id,omitempty"`
}

type Attachment struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Content     []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// WorkflowEntry is one row of a mail's append-only workflow log.
type WorkflowEntry struct {
	Status    string    `json:"status"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name"`
	Timestamp time.Time `json:"timestamp"`
	Comment   string    `json:"comment,omitempty"`
}

type Mail struct {
	ID                  string          `json:"id"`
	Type                string          `json:"type"`
	Reference           string          `json:"reference"`
	Subject             string          `json:"subject"`
	Content             string          `json:"content"`
	CorrespondentID     string          `json:"correspondent_id"`
	CorrespondentName   string          `json:"correspondent_name"`
	Recipients          []Recipient     `json:"recipients"`
	MessageType         string          `json:"message_type"`
	IsRegistered        bool            `json:"is_registered"`
	RegisteredNumber    string          `json:"registered_number,omitempty"`
	NoResponseNeeded    bool            `json:"no_response_needed"`
	Status              string          `json:"status"`
	AssignedToID        string          `json:"assigned_to_id,omitempty"`
	AssignedToName      string          `json:"assigned_to_name,omitempty"`
	ParentMailID        string          `json:"parent_mail_id,omitempty"`
	ParentMailReference string          `json:"parent_mail_reference,omitempty"`
	Attachments         []Attachment    `json:"attachments"`
	Workflow            []WorkflowEntry `json:"workflow"`
	CreatedByID         string          `json:"created_by_id"`
	CreatedByName       string          `json:"created_by_name"`
	CreatedAt           time.Time       `json:"created_at"`
	OpenedByID          string          `json:"opened_by_id,omitempty"`
	OpenedByName        string          `json:"opened_by_name,omitempty"`
	OpenedAt            *time.Time      `json:"opened_at,omitempty"`

	// RelatedMails is a read-side projection assembled by the threading
	// resolver; it is never persisted.
	RelatedMails []MailSummary `json:"related_mails,omitempty"`
}

// PrimaryRecipient returns the first recipient, used for default
// assignment pools and single-service views.
func (m *Mail) PrimaryRecipient() Recipient {
	if len(m.Recipients) == 0 {
		return Recipient{}
	}
	return m.Recipients[0]
}

// AddressedTo reports whether the mail's recipient list includes the
// given service.
func (m *Mail) AddressedTo(serviceID string) bool {
	for _, r := range m.Recipients {
		if r.ServiceID == serviceID {
			return true
		}
	}
	return false
}

// MailSummary is the compact shape used in the related-mails view.
type MailSummary struct {
	ID        string    `json:"id"`
	Reference string    `json:"reference"`
	Type      string    `json:"type"`
	Subject   string    `json:"subject"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// MailQuery filters mail listings.
type MailQuery struct {
	Type      string
	Status    string
	ServiceID string
	Limit     int
	Offset    int
}

// Stats is the dashboard rollup.
type Stats struct {
	TotalMails   int            `json:"total_mails"`
	EntrantMails int            `json:"entrant_mails"`
	SortantMails int            `json:"sortant_mails"`
	StatusCounts map[string]int `json:"status_counts"`
	AssignedToMe int            `json:"assigned_to_me"`
}

// AdvancedStatsQuery filters the advanced rollup. Period is one of
// "week", "month", "year" or "all".
type AdvancedStatsQuery struct {
	Period      string
	ServiceID   string
	MessageType string
}

type AdvancedStats struct {
	TotalMails        int            `json:"total_mails"`
	EntrantMails      int            `json:"entrant_mails"`
	SortantMails      int            `json:"sortant_mails"`
	StatusCounts      map[string]int `json:"status_counts"`
	MessageTypeCounts map[string]int `json:"message_type_counts"`
	ServiceCounts     map[string]int `json:"service_counts"`
}

// ImportReport summarizes one CSV import run. It is transient.
type ImportReport struct {
	CorrespondentsCreated int      `json:"correspondents_created"`
	CorrespondentsUpdated int      `json:"correspondents_updated"`
	MailsCreated          int      `json:"mails_created"`
	Errors                []string `json:"errors"`
}
