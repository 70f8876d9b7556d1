package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ormea-systems/maildesk/internal/auth"
	"github.com/ormea-systems/maildesk/internal/correspondent"
	"github.com/ormea-systems/maildesk/internal/importer"
	"github.com/ormea-systems/maildesk/internal/mail"
	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/reference"
	"github.com/ormea-systems/maildesk/internal/servicedir"
	"github.com/ormea-systems/maildesk/internal/stats"
	"github.com/ormea-systems/maildesk/internal/store"
	"github.com/ormea-systems/maildesk/internal/thread"
	"github.com/ormea-systems/maildesk/internal/web/middleware"
)

// memStore is a single in-memory backing store implementing every store
// interface, so handler tests run the real service stack end to end.
type memStore struct {
	users          map[string]*models.User
	sessions       map[string]*models.Session
	correspondents map[string]*models.Correspondent
	byNorm         map[string]string
	services       map[string]*models.Service
	mails          map[string]*models.Mail
	refs           map[string]bool
	seqs           map[string]int64
}

func newMemStore() *memStore {
	return &memStore{
		users:          make(map[string]*models.User),
		sessions:       make(map[string]*models.Session),
		correspondents: make(map[string]*models.Correspondent),
		byNorm:         make(map[string]string),
		services:       make(map[string]*models.Service),
		mails:          make(map[string]*models.Mail),
		refs:           make(map[string]bool),
		seqs:           make(map[string]int64),
	}
}

// --- UserStore ---

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return store.ErrDuplicate
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListUsers(_ context.Context) ([]models.User, error) {
	var out []models.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memStore) UpdateUserRole(_ context.Context, id, role string) error {
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.Role = role
	return nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, id, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memStore) DeleteUser(_ context.Context, id string) error {
	delete(m.users, id)
	return nil
}

// --- SessionStore ---

func (m *memStore) CreateSession(_ context.Context, token, userID string, expiresAt time.Time) (*models.Session, error) {
	s := &models.Session{Token: token, UserID: userID, ExpiresAt: expiresAt, CreatedAt: time.Now()}
	m.sessions[token] = s
	return s, nil
}

func (m *memStore) GetSessionByToken(_ context.Context, token string) (*models.Session, error) {
	s, ok := m.sessions[token]
	if !ok || s.ExpiresAt.Before(time.Now()) {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (m *memStore) DeleteSession(_ context.Context, token string) error {
	delete(m.sessions, token)
	return nil
}

func (m *memStore) DeleteExpiredSessions(_ context.Context) error { return nil }

// --- CorrespondentStore ---

func (m *memStore) CreateCorrespondent(_ context.Context, c *models.Correspondent, norm string) error {
	if _, ok := m.byNorm[norm]; ok {
		return store.ErrDuplicate
	}
	m.correspondents[c.ID] = c
	m.byNorm[norm] = c.ID
	return nil
}

func (m *memStore) GetCorrespondentByID(_ context.Context, id string) (*models.Correspondent, error) {
	c, ok := m.correspondents[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (m *memStore) GetCorrespondentByNormalizedName(_ context.Context, norm string) (*models.Correspondent, error) {
	id, ok := m.byNorm[norm]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.correspondents[id], nil
}

func (m *memStore) UpdateCorrespondent(_ context.Context, c *models.Correspondent, norm string) error {
	m.correspondents[c.ID] = c
	return nil
}

func (m *memStore) DeleteCorrespondent(_ context.Context, id string) error {
	delete(m.correspondents, id)
	return nil
}

func (m *memStore) SearchCorrespondents(_ context.Context, query string) ([]models.Correspondent, error) {
	var out []models.Correspondent
	for _, c := range m.correspondents {
		out = append(out, *c)
	}
	return out, nil
}

// --- ServiceStore ---

func (m *memStore) CreateService(_ context.Context, svc *models.Service) error {
	m.services[svc.ID] = svc
	return nil
}

func (m *memStore) GetServiceByID(_ context.Context, id string) (*models.Service, error) {
	svc, ok := m.services[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return svc, nil
}

func (m *memStore) ListServices(_ context.Context, includeArchived bool) ([]models.Service, error) {
	var out []models.Service
	for _, svc := range m.services {
		if svc.Archived && !includeArchived {
			continue
		}
		out = append(out, *svc)
	}
	return out, nil
}

func (m *memStore) UpdateService(_ context.Context, svc *models.Service) error {
	if _, ok := m.services[svc.ID]; !ok {
		return store.ErrNotFound
	}
	m.services[svc.ID] = svc
	return nil
}

func (m *memStore) ArchiveService(_ context.Context, id, archivedBy string, sweep models.WorkflowEntry) (int, error) {
	svc, ok := m.services[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	now := time.Now()
	svc.Archived = true
	svc.ArchivedAt = &now
	svc.ArchivedBy = archivedBy

	swept := 0
	for _, mm := range m.mails {
		if mm.Status != models.StatusArchive && mm.AddressedTo(id) {
			mm.Status = models.StatusArchive
			entry := sweep
			entry.Timestamp = now
			mm.Workflow = append(mm.Workflow, entry)
			swept++
		}
	}
	return swept, nil
}

func (m *memStore) RestoreService(_ context.Context, id string) error {
	svc, ok := m.services[id]
	if !ok {
		return store.ErrNotFound
	}
	svc.Archived = false
	svc.ArchivedAt = nil
	svc.ArchivedBy = ""
	return nil
}

// --- CounterStore ---

func (m *memStore) NextReferenceSequence(_ context.Context, mailType string, year int) (int64, error) {
	key := fmt.Sprintf("%s|%d", mailType, year)
	m.seqs[key]++
	return m.seqs[key], nil
}

// --- MailStore ---

func (m *memStore) CreateMail(_ context.Context, mail *models.Mail) error {
	if m.refs[mail.Reference] {
		return store.ErrDuplicate
	}
	cp := *mail
	m.mails[mail.ID] = &cp
	m.refs[mail.Reference] = true
	return nil
}

func (m *memStore) GetMailByID(_ context.Context, id string) (*models.Mail, error) {
	mail, ok := m.mails[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *mail
	return &cp, nil
}

func (m *memStore) ListMails(_ context.Context, q models.MailQuery) ([]models.Mail, error) {
	var out []models.Mail
	for _, mail := range m.mails {
		if q.Type != "" && mail.Type != q.Type {
			continue
		}
		if q.Status != "" && mail.Status != q.Status {
			continue
		}
		if q.ServiceID != "" && !mail.AddressedTo(q.ServiceID) {
			continue
		}
		out = append(out, *mail)
	}
	return out, nil
}

func (m *memStore) UpdateMail(_ context.Context, mail *models.Mail, _ []models.WorkflowEntry) error {
	if _, ok := m.mails[mail.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *mail
	m.mails[mail.ID] = &cp
	return nil
}

func (m *memStore) SetMailOpened(_ context.Context, mailID, userID, userName string, at time.Time, assign bool) (bool, error) {
	mail, ok := m.mails[mailID]
	if !ok {
		return false, store.ErrNotFound
	}
	if mail.OpenedByID != "" {
		return false, nil
	}
	mail.OpenedByID = userID
	mail.OpenedByName = userName
	mail.OpenedAt = &at
	if assign {
		mail.AssignedToID = userID
		mail.AssignedToName = userName
	}
	return true, nil
}

func (m *memStore) DeleteMail(_ context.Context, id string) error {
	mail, ok := m.mails[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(m.refs, mail.Reference)
	delete(m.mails, id)
	return nil
}

func (m *memStore) AddMailAttachment(_ context.Context, mailID string, att *models.Attachment) error {
	mail, ok := m.mails[mailID]
	if !ok {
		return store.ErrNotFound
	}
	mail.Attachments = append(mail.Attachments, *att)
	return nil
}

func (m *memStore) GetMailAttachment(_ context.Context, mailID, attachmentID string) (*models.Attachment, error) {
	mail, ok := m.mails[mailID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, att := range mail.Attachments {
		if att.ID == attachmentID {
			cp := att
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) RemoveMailAttachment(_ context.Context, mailID, attachmentID string) error {
	mail, ok := m.mails[mailID]
	if !ok {
		return store.ErrNotFound
	}
	for i, att := range mail.Attachments {
		if att.ID == attachmentID {
			mail.Attachments = append(mail.Attachments[:i], mail.Attachments[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) GetMailSummary(_ context.Context, id string) (*models.MailSummary, error) {
	mail, ok := m.mails[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &models.MailSummary{
		ID: mail.ID, Reference: mail.Reference, Type: mail.Type,
		Subject: mail.Subject, Status: mail.Status, CreatedAt: mail.CreatedAt,
	}, nil
}

func (m *memStore) ListMailChildren(_ context.Context, parentID string) ([]models.MailSummary, error) {
	var out []models.MailSummary
	for _, mail := range m.mails {
		if mail.ParentMailID == parentID {
			out = append(out, models.MailSummary{
				ID: mail.ID, Reference: mail.Reference, Type: mail.Type,
				Subject: mail.Subject, Status: mail.Status, CreatedAt: mail.CreatedAt,
			})
		}
	}
	return out, nil
}

func (m *memStore) CountMailsByCorrespondent(_ context.Context, correspondentID string) (int, error) {
	n := 0
	for _, mail := range m.mails {
		if mail.CorrespondentID == correspondentID {
			n++
		}
	}
	return n, nil
}

// --- StatsStore ---

func (m *memStore) GetStats(_ context.Context, userID string) (*models.Stats, error) {
	out := &models.Stats{StatusCounts: map[string]int{}}
	for _, mail := range m.mails {
		out.TotalMails++
		if mail.Type == models.MailTypeEntrant {
			out.EntrantMails++
		} else {
			out.SortantMails++
		}
		out.StatusCounts[mail.Status]++
		if mail.AssignedToID == userID {
			out.AssignedToMe++
		}
	}
	return out, nil
}

func (m *memStore) GetAdvancedStats(_ context.Context, q models.AdvancedStatsQuery) (*models.AdvancedStats, error) {
	return &models.AdvancedStats{
		StatusCounts:      map[string]int{},
		MessageTypeCounts: map[string]int{},
		ServiceCounts:     map[string]int{},
	}, nil
}

// --- Test fixture ---

type testEnv struct {
	store *memStore

	auth           *AuthHandler
	users          *UserHandler
	services       *ServiceHandler
	correspondents *CorrespondentHandler
	mails          *MailHandler
	stats          *StatsHandler
	imports        *ImportHandler

	admin *models.User
	user  *models.User
}

// newTestEnv wires the full service stack over a memStore and seeds an
// admin, a regular user attached to "svc-1", a service and a
// correspondent.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ms := newMemStore()

	policy := auth.NewPolicy()
	authService := auth.NewService(ms, ms, policy, 72)
	correspondentService := correspondent.NewService(ms, ms)
	serviceDirectory := servicedir.NewService(ms)
	mailService := mail.NewService(ms, ms, ms, ms, reference.NewGenerator(ms), policy, thread.NewResolver(ms))
	statsService := stats.NewService(ms)
	importService := importer.NewService(correspondentService, mailService, ms, "")

	env := &testEnv{
		store:          ms,
		auth:           NewAuthHandler(authService, false, 72),
		users:          NewUserHandler(authService),
		services:       NewServiceHandler(serviceDirectory),
		correspondents: NewCorrespondentHandler(correspondentService),
		mails:          NewMailHandler(mailService, 1<<20),
		stats:          NewStatsHandler(statsService),
		imports:        NewImportHandler(importService),
	}

	hash, err := auth.HashPassword("secret-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	env.admin = &models.User{ID: "u-admin", Email: "admin@mairie.fr", Name: "Admin", Role: models.RoleAdmin, PasswordHash: hash}
	env.user = &models.User{ID: "u-user", Email: "agent@mairie.fr", Name: "Agent", Role: models.RoleUser, ServiceID: "svc-1", PasswordHash: hash}
	ms.users[env.admin.ID] = env.admin
	ms.users[env.user.ID] = env.user

	ms.services["svc-1"] = &models.Service{ID: "svc-1", Name: "Accueil"}
	ms.correspondents["corr-1"] = &models.Correspondent{ID: "corr-1", Name: "Jean Dupont"}
	ms.byNorm["jean dupont"] = "corr-1"

	return env
}

// asUser stores the acting user in the request context, the way
// middleware.RequireAuth does in production.
func asUser(r *http.Request, u *models.User) *http.Request {
	ctx := context.WithValue(r.Context(), middleware.UserContextKey, u)
	return r.WithContext(ctx)
}

// withURLParams attaches chi route parameters to the request context.
func withURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
