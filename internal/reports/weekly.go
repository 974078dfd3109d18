package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sales_enforcer_backend/internal/crm"

	"golang.org/x/sync/errgroup"
)

const stuckDaysThreshold = 5

// activityFetchLimit caps concurrent per-deal activity fetches so a busy
// week does not hammer the CRM API.
const activityFetchLimit = 10

// ActivityDetail is one CRM activity in the weekly report.
type ActivityDetail struct {
	ID        int       `json:"id"`
	Subject   string    `json:"subject"`
	Type      string    `json:"type"`
	Done      bool      `json:"done"`
	DueDate   string    `json:"dueDate,omitempty"`
	AddTime   time.Time `json:"addTime"`
	OwnerName string    `json:"ownerName"`
}

// WeeklyDealReportItem is one deal row of the weekly pipeline report.
type WeeklyDealReportItem struct {
	ID                    int              `json:"id"`
	Title                 string           `json:"title"`
	OwnerName             string           `json:"ownerName"`
	OwnerID               int              `json:"ownerId"`
	StageName             string           `json:"stageName"`
	Value                 string           `json:"value"`
	StageAgeDays          int              `json:"stageAgeDays"`
	IsStuck               bool             `json:"isStuck"`
	StuckReason           string           `json:"stuckReason,omitempty"`
	LastActivityFormatted string           `json:"lastActivityFormatted"`
	Activities            []ActivityDetail `json:"activities"`
}

// WeeklyReport lists the open deals added to the sales pipeline in the
// last 7 days, each with its activity history and a stuck assessment.
// Per-deal activity fetches run concurrently under a fixed limit.
func (s *Service) WeeklyReport(ctx context.Context, userID int) ([]WeeklyDealReportItem, error) {
	now := s.now().UTC()
	since := now.Add(-7 * 24 * time.Hour)

	deals, err := s.crm.ListDeals(ctx, crm.ListDealsParams{
		Status:       "open",
		PipelineID:   s.pipelineID,
		UserID:       userID,
		AddTimeSince: since.Format("2006-01-02 15:04:05"),
	})
	if err != nil {
		return nil, err
	}
	if len(deals) == 0 {
		return []WeeklyDealReportItem{}, nil
	}

	stages, err := s.crm.ListStages(ctx)
	if err != nil {
		return nil, err
	}
	stageNames := make(map[int]string, len(stages))
	for _, st := range stages {
		stageNames[st.ID] = st.Name
	}

	activitiesByDeal := make([][]crm.Activity, len(deals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(activityFetchLimit)
	for i, deal := range deals {
		g.Go(func() error {
			acts, err := s.crm.ListDealActivities(gctx, deal.ID())
			if err != nil {
				return err
			}
			activitiesByDeal[i] = acts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]WeeklyDealReportItem, 0, len(deals))
	for i, deal := range deals {
		items = append(items, s.buildReportItem(deal, activitiesByDeal[i], stageNames, now))
	}
	return items, nil
}

func (s *Service) buildReportItem(deal crm.Snapshot, raw []crm.Activity, stageNames map[int]string, now time.Time) WeeklyDealReportItem {
	sort.Slice(raw, func(i, j int) bool {
		return raw[i].AddTime > raw[j].AddTime
	})

	var lastActivity time.Time
	activities := make([]ActivityDetail, 0, len(raw))
	for _, act := range raw {
		addTime, ok := crm.ParseTime(act.AddTime)
		if act.ID == 0 || !ok {
			continue
		}
		if lastActivity.IsZero() {
			lastActivity = addTime
		}
		subject := act.Subject
		if subject == "" {
			subject = "No Subject"
		}
		activityType := act.Type
		if activityType == "" {
			activityType = "task"
		}
		activities = append(activities, ActivityDetail{
			ID:        act.ID,
			Subject:   subject,
			Type:      activityType,
			Done:      act.Done,
			DueDate:   act.DueDate,
			AddTime:   addTime,
			OwnerName: act.OwnerName,
		})
	}

	stageAgeDays := 0
	if changed, ok := deal.StageChangeTime(); ok {
		stageAgeDays = int(now.Sub(changed).Hours() / 24)
	}

	var isStuck bool
	var stuckReason string
	if !lastActivity.IsZero() {
		if days := int(now.Sub(lastActivity).Hours() / 24); days > stuckDaysThreshold {
			isStuck = true
			stuckReason = fmt.Sprintf("No activity for %d days.", days)
		}
	} else if stageAgeDays > stuckDaysThreshold {
		isStuck = true
		stuckReason = fmt.Sprintf("In stage for %d days with no activities logged.", stageAgeDays)
	}

	title := deal.Title()
	if title == "" {
		title = "Untitled Deal"
	}
	ownerName := deal.OwnerName()
	if ownerName == "" {
		ownerName = "Unknown Owner"
	}
	stageName, ok := stageNames[deal.StageID()]
	if !ok {
		stageName = "Unknown Stage"
	}
	currency := deal.Currency()
	if currency == "" {
		currency = "$"
	}

	return WeeklyDealReportItem{
		ID:                    deal.ID(),
		Title:                 title,
		OwnerName:             ownerName,
		OwnerID:               deal.OwnerID(),
		StageName:             stageName,
		Value:                 fmt.Sprintf("%s %.0f", currency, deal.Value()),
		StageAgeDays:          stageAgeDays,
		IsStuck:               isStuck,
		StuckReason:           stuckReason,
		LastActivityFormatted: timeAgo(lastActivity, now),
		Activities:            activities,
	}
}
