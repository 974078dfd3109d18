package reports

import (
	"context"
	"sort"
	"time"
)

// DueActivityItem is one open activity inside the requested window.
type DueActivityItem struct {
	ID        int    `json:"id"`
	Subject   string `json:"subject"`
	Type      string `json:"type"`
	DueDate   string `json:"dueDate"`
	OwnerName string `json:"ownerName"`
	DealID    *int   `json:"dealId,omitempty"`
	DealTitle string `json:"dealTitle"`
	IsOverdue bool   `json:"isOverdue"`
}

// DueActivities lists open (not done) activities due inside the window,
// sorted by due date. Zero times default the window to today through 30
// days out; anything due before today is flagged overdue. Activities
// with missing or malformed due dates are skipped.
func (s *Service) DueActivities(ctx context.Context, userID int, start, end time.Time) ([]DueActivityItem, error) {
	open, err := s.crm.ListOpenActivities(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	if start.IsZero() {
		start = today
	}
	if end.IsZero() {
		end = today.Add(30 * 24 * time.Hour)
	}

	items := make([]DueActivityItem, 0, len(open))
	for _, act := range open {
		if act.DueDate == "" {
			continue
		}
		due, err := time.Parse("2006-01-02", act.DueDate)
		if err != nil {
			continue
		}
		if due.Before(start) || due.After(end) {
			continue
		}

		subject := act.Subject
		if subject == "" {
			subject = "No Subject"
		}
		activityType := act.Type
		if activityType == "" {
			activityType = "task"
		}
		ownerName := act.OwnerName
		if ownerName == "" {
			ownerName = "Unknown"
		}
		dealTitle := act.DealTitle
		if dealTitle == "" {
			dealTitle = "No Associated Deal"
		}

		items = append(items, DueActivityItem{
			ID:        act.ID,
			Subject:   subject,
			Type:      activityType,
			DueDate:   act.DueDate,
			OwnerName: ownerName,
			DealID:    act.DealID,
			DealTitle: dealTitle,
			IsOverdue: due.Before(today),
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].DueDate < items[j].DueDate
	})
	return items, nil
}
