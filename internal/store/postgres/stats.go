package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ormea-systems/maildesk/internal/models"
)

type StatsStore struct {
	db *sql.DB
}

func NewStatsStore(db *sql.DB) *StatsStore {
	return &StatsStore{db: db}
}

func (s *StatsStore) GetStats(ctx context.Context, userID string) (*models.Stats, error) {
	stats := &models.Stats{StatusCounts: map[string]int{}}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE mail_type = $1),
		        COUNT(*) FILTER (WHERE mail_type = $2),
		        COUNT(*) FILTER (WHERE assigned_to_id = $3)
		 FROM mails`,
		models.MailTypeEntrant, models.MailTypeSortant, userID,
	).Scan(&stats.TotalMails, &stats.EntrantMails, &stats.SortantMails, &stats.AssignedToMe)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM mails GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.StatusCounts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Every status appears in the rollup, even when zero.
	for _, status := range []string{models.StatusRecu, models.StatusTraitement, models.StatusTraite, models.StatusArchive} {
		if _, ok := stats.StatusCounts[status]; !ok {
			stats.StatusCounts[status] = 0
		}
	}
	return stats, nil
}

func (s *StatsStore) GetAdvancedStats(ctx context.Context, q models.AdvancedStatsQuery) (*models.AdvancedStats, error) {
	where, args := advancedFilter(q)

	stats := &models.AdvancedStats{
		StatusCounts:      map[string]int{},
		MessageTypeCounts: map[string]int{},
		ServiceCounts:     map[string]int{},
	}

	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE mail_type = '%s'),
		        COUNT(*) FILTER (WHERE mail_type = '%s')
		 FROM mails m %s`, models.MailTypeEntrant, models.MailTypeSortant, where),
		args...,
	).Scan(&stats.TotalMails, &stats.EntrantMails, &stats.SortantMails)
	if err != nil {
		return nil, err
	}

	if err := s.groupCount(ctx, `m.status`, where, args, stats.StatusCounts); err != nil {
		return nil, err
	}
	if err := s.groupCount(ctx, `m.message_type`, where, args, stats.MessageTypeCounts); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.service_name, COUNT(DISTINCT m.id)
		 FROM mails m JOIN mail_recipients r ON r.mail_id = m.id `+where+`
		 GROUP BY r.service_name`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		stats.ServiceCounts[name] = count
	}
	return stats, rows.Err()
}

func (s *StatsStore) groupCount(ctx context.Context, column, where string, args []any, out map[string]int) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM mails m `+where+` GROUP BY `+column,
		args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		out[key] = count
	}
	return rows.Err()
}

func advancedFilter(q models.AdvancedStatsQuery) (string, []any) {
	var conds []string
	var args []any

	if cutoff, ok := periodCutoff(q.Period, time.Now()); ok {
		args = append(args, cutoff)
		conds = append(conds, fmt.Sprintf(`m.created_at >= $%d`, len(args)))
	}
	if q.ServiceID != "" {
		args = append(args, q.ServiceID)
		conds = append(conds, fmt.Sprintf(`m.id IN (SELECT mail_id FROM mail_recipients WHERE service_id = $%d)`, len(args)))
	}
	if q.MessageType != "" {
		args = append(args, q.MessageType)
		conds = append(conds, fmt.Sprintf(`m.message_type = $%d`, len(args)))
	}

	where := ""
	for i, c := range conds {
		if i == 0 {
			where = `WHERE ` + c
		} else {
			where += ` AND ` + c
		}
	}
	return where, args
}

func periodCutoff(period string, now time.Time) (time.Time, bool) {
	switch period {
	case "week":
		return now.AddDate(0, 0, -7), true
	case "month":
		return now.AddDate(0, 0, -30), true
	case "year":
		return now.AddDate(-1, 0, 0), true
	}
	return time.Time{}, false
}
