// Package stats serves the dashboard and reporting rollups. All
// aggregation happens in the database; this layer validates filters.
package stats

import (
	"context"
	"fmt"

	"github.com/ormea-systems/maildesk/internal/apperr"
	"github.com/ormea-systems/maildesk/internal/models"
	"github.com/ormea-systems/maildesk/internal/store"
)

// Periods accepted by the advanced rollup.
const (
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodYear  = "year"
	PeriodAll   = "all"
)

type Service struct {
	stats store.StatsStore
}

func NewService(stats store.StatsStore) *Service {
	return &Service{stats: stats}
}

// Dashboard returns the headline counters, with AssignedToMe computed
// for the given user.
func (s *Service) Dashboard(ctx context.Context, userID string) (*models.Stats, error) {
	out, err := s.stats.GetStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading stats: %w", err)
	}
	return out, nil
}

// Advanced returns the filtered per-status, per-message-type and
// per-service breakdowns. An empty period means all.
func (s *Service) Advanced(ctx context.Context, q models.AdvancedStatsQuery) (*models.AdvancedStats, error) {
	if q.Period == "" {
		q.Period = PeriodAll
	}
	switch q.Period {
	case PeriodWeek, PeriodMonth, PeriodYear, PeriodAll:
	default:
		return nil, apperr.Validationf("invalid period %q", q.Period)
	}
	if q.MessageType != "" {
		normalized := models.NormalizeMessageType(q.MessageType)
		if normalized == "" {
			return nil, apperr.Validationf("invalid message type %q", q.MessageType)
		}
		q.MessageType = normalized
	}

	out, err := s.stats.GetAdvancedStats(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("loading advanced stats: %w", err)
	}
	return out, nil
}
