package reports

import (
	"context"
	"time"

	"sales_enforcer_backend/internal/ledger"
)

// ScoreboardRow is one rep's standing: lifetime score, the current
// week's points against the weekly minimum, and progress toward the
// quarterly target.
type ScoreboardRow struct {
	UserID        int    `json:"userId"`
	Name          string `json:"name"`
	TotalPoints   int    `json:"totalPoints"`
	WeeklyPoints  int    `json:"weeklyPoints"`
	WeeklyMinimum int    `json:"weeklyMinimum"`
	OnTrack       bool   `json:"onTrack"`
	QuarterPoints int    `json:"quarterPoints"`
	QuarterTarget int    `json:"quarterTarget"`
	CurrentRank   string `json:"currentRank,omitempty"`
	NextRank      string `json:"nextRank,omitempty"`
	PointsToNext  int    `json:"pointsToNext,omitempty"`
}

// Scoreboard aggregates every scored user, ordered by lifetime total.
// Rep names are resolved best-effort; a CRM hiccup leaves the name blank
// rather than failing the board.
func (s *Service) Scoreboard(ctx context.Context) ([]ScoreboardRow, error) {
	totals, err := s.store.UserTotals(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	weekStart := startOfWeek(now)
	quarterStart := startOfQuarter(now)

	rows := make([]ScoreboardRow, 0, len(totals))
	for _, t := range totals {
		weekly, err := s.store.ScoreSince(ctx, t.UserID, weekStart)
		if err != nil {
			return nil, err
		}
		quarterly, err := s.store.ScoreSince(ctx, t.UserID, quarterStart)
		if err != nil {
			return nil, err
		}

		row := ScoreboardRow{
			UserID:        t.UserID,
			TotalPoints:   t.Total,
			WeeklyPoints:  weekly,
			WeeklyMinimum: s.cfg.Points.WeeklyMinimum,
			OnTrack:       weekly >= s.cfg.Points.WeeklyMinimum,
			QuarterPoints: quarterly,
			QuarterTarget: s.cfg.QuarterlyPointsTarget,
		}
		row.CurrentRank, row.NextRank, row.PointsToNext = s.rankPosition(t.Total)

		if user, err := s.crm.GetUser(ctx, t.UserID); err == nil {
			row.Name = user.Name
		} else {
			s.log.Warn("could not resolve user for scoreboard", "user_id", t.UserID)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// UserHistory returns a user's most recent ledger entries, newest first.
func (s *Service) UserHistory(ctx context.Context, userID, limit int) ([]ledger.Entry, error) {
	return s.store.EntriesForUser(ctx, userID, limit)
}

// rankPosition places a lifetime total on the milestone ladder.
func (s *Service) rankPosition(total int) (current, next string, pointsToNext int) {
	for _, m := range s.cfg.MilestonesDescending() {
		if total >= m.Threshold {
			if current == "" {
				current = m.Rank
			}
		} else {
			next = m.Rank
			pointsToNext = m.Threshold - total
		}
	}
	return current, next, pointsToNext
}

// startOfWeek is Monday 00:00 UTC of the week containing t.
func startOfWeek(t time.Time) time.Time {
	t = t.UTC()
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return day.AddDate(0, 0, -(weekday - 1))
}

func startOfQuarter(t time.Time) time.Time {
	t = t.UTC()
	quarterMonth := time.Month(((int(t.Month())-1)/3)*3 + 1)
	return time.Date(t.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
}
