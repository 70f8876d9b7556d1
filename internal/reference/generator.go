// Package reference assigns human-readable mail references, unique per
// (type, year).
package reference

import (
	"context"
	"fmt"
	"time"

	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/store"
)

// Generator allocates references like ENT-2026-00042 from a shared,
// atomically incremented per-(type, year) counter.
type Generator struct {
	counters store.CounterStore
}

func NewGenerator(counters store.CounterStore) *Generator {
	return &Generator{counters: counters}
}

// Next returns the next reference for a mail of the given type created
// at createdAt.
func (g *Generator) Next(ctx context.Context, mailType string, createdAt time.Time) (string, error) {
	year := createdAt.Year()
	seq, err := g.counters.NextReferenceSequence(ctx, mailType, year)
	if err != nil {
		return "", fmt.Errorf("allocating reference sequence: %w", err)
	}
	return fmt.Sprintf("%s-%d-%05d", prefix(mailType), year, seq), nil
}

func prefix(mailType string) string {
	if mailType == models.MailTypeSortant {
		return "SOR"
	}
	return "ENT"
}
