// Package thread computes the related-mails view over the reply links.
package thread

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/store"
)

// Resolver assembles the bidirectional related-mails projection: a
// mail's parent (when it still exists) and its direct replies. It never
// mutates state.
type Resolver struct {
	mails store.ThreadStore
}

func NewResolver(mails store.ThreadStore) *Resolver {
	return &Resolver{mails: mails}
}

// Related returns the parent and direct children of m, ordered by
// creation time ascending. A parent that no longer resolves is omitted
// rather than reported as an error.
func (r *Resolver) Related(ctx context.Context, m *models.Mail) ([]models.MailSummary, error) {
	related, err := r.mails.ListMailChildren(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("listing replies: %w", err)
	}

	if m.ParentMailID != "" {
		parent, err := r.mails.GetMailSummary(ctx, m.ParentMailID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Parent was deleted; the reply stands alone.
		case err != nil:
			return nil, fmt.Errorf("loading parent mail: %w", err)
		default:
			related = append(related, *parent)
		}
	}

	sort.Slice(related, func(i, j int) bool {
		return related[i].CreatedAt.Before(related[j].CreatedAt)
	})
	return related, nil
}
