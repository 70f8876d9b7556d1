package thread

import (
	"context"
	"testing"
	"time"

	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/store"
)

type mockThreadStore struct {
	summaries map[string]models.MailSummary
	children  map[string][]models.MailSummary
}

func newMockThreadStore() *mockThreadStore {
	return &mockThreadStore{
		summaries: make(map[string]models.MailSummary),
		children:  make(map[string][]models.MailSummary),
	}
}

func (m *mockThreadStore) GetMailSummary(ctx context.Context, id string) (*models.MailSummary, error) {
	s, ok := m.summaries[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (m *mockThreadStore) ListMailChildren(ctx context.Context, parentID string) ([]models.MailSummary, error) {
	return m.children[parentID], nil
}

func TestRelatedMergesParentAndChildren(t *testing.T) {
	ms := newMockThreadStore()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	ms.summaries["parent"] = models.MailSummary{ID: "parent", Reference: "ENT-2026-00001", CreatedAt: base}
	ms.children["mail"] = []models.MailSummary{
		{ID: "reply2", Reference: "ENT-2026-00004", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "reply1", Reference: "SOR-2026-00002", CreatedAt: base.Add(time.Hour)},
	}

	r := NewResolver(ms)
	related, err := r.Related(context.Background(), &models.Mail{ID: "mail", ParentMailID: "parent"})
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(related) != 3 {
		t.Fatalf("expected 3 related mails, got %d", len(related))
	}
	want := []string{"parent", "reply1", "reply2"}
	for i, id := range want {
		if related[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, related[i].ID)
		}
	}
}

func TestRelatedOmitsMissingParent(t *testing.T) {
	ms := newMockThreadStore()
	ms.children["mail"] = []models.MailSummary{{ID: "reply", CreatedAt: time.Now()}}

	r := NewResolver(ms)
	related, err := r.Related(context.Background(), &models.Mail{ID: "mail", ParentMailID: "gone"})
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(related) != 1 || related[0].ID != "reply" {
		t.Fatalf("expected only the reply, got %v", related)
	}
}

func TestRelatedEmptyWithoutLinks(t *testing.T) {
	r := NewResolver(newMockThreadStore())
	related, err := r.Related(context.Background(), &models.Mail{ID: "lonely"})
	if err != nil {
		t.Fatalf("Related: %v", err)
	}
	if len(related) != 0 {
		t.Fatalf("expected no related mails, got %v", related)
	}
}
