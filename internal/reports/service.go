// Package reports is the read side: dashboard aggregations over the
// point ledger and live CRM data (scoreboard, weekly pipeline report,
// due activities) plus the weekly emailed digest.
package reports

import (
	"context"
	"strconv"
	"time"

	"sales_enforcer_backend/internal/crm"
	"sales_enforcer_backend/internal/ledger"
	"sales_enforcer_backend/internal/scorecard"
	"sales_enforcer_backend/platform/logger"
)

// CRMReader is the read-only slice of the CRM client the reports need.
// Satisfied by *crm.Client.
type CRMReader interface {
	ListDeals(ctx context.Context, p crm.ListDealsParams) ([]crm.Snapshot, error)
	ListStages(ctx context.Context) ([]crm.PipelineStage, error)
	ListOpenActivities(ctx context.Context, userID int) ([]crm.Activity, error)
	ListDealActivities(ctx context.Context, dealID int) ([]crm.Activity, error)
	GetUser(ctx context.Context, userID int) (crm.User, error)
}

// LedgerReader is the scoring history the reports aggregate.
// Satisfied by *ledger.Repository.
type LedgerReader interface {
	UserTotals(ctx context.Context) ([]ledger.UserTotal, error)
	ScoreSince(ctx context.Context, userID int, since time.Time) (int, error)
	EntriesForUser(ctx context.Context, userID, limit int) ([]ledger.Entry, error)
}

type Service struct {
	crm        CRMReader
	store      LedgerReader
	cfg        *scorecard.Config
	pipelineID int
	log        *logger.Logger

	now func() time.Time
}

func New(crmReader CRMReader, store LedgerReader, cfg *scorecard.Config, pipelineID int, log *logger.Logger) *Service {
	return &Service{
		crm:        crmReader,
		store:      store,
		cfg:        cfg,
		pipelineID: pipelineID,
		log:        log,
		now:        time.Now,
	}
}

// timeAgo renders an instant as a short relative string for dashboards.
func timeAgo(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "Just now"
	case diff < time.Hour:
		return strconv.Itoa(int(diff.Minutes())) + "m ago"
	case diff < 24*time.Hour:
		return strconv.Itoa(int(diff.Hours())) + "h ago"
	default:
		return strconv.Itoa(int(diff.Hours()/24)) + "d ago"
	}
}
