// Package scoring implements the stage-transition compliance and scoring
// engine: the state machine that decides whether a deal may advance, the
// bonus and milestone derivation on top of the point ledger, the revival
// handler, and the decay sweep.
package scoring

import (
	"context"
	"time"

	"sales_enforcer_backend/internal/crm"
	"sales_enforcer_backend/internal/events"
	"sales_enforcer_backend/internal/ledger"
	"sales_enforcer_backend/internal/scorecard"
	"sales_enforcer_backend/platform/logger"
)

// Ledger is the persistence the engine needs from the point ledger.
// Satisfied by *ledger.Repository.
type Ledger interface {
	Apply(ctx context.Context, outcome ledger.Outcome) error
	Append(ctx context.Context, entry ledger.Entry) error
	TotalScore(ctx context.Context, userID int) (int, error)
	HasEvent(ctx context.Context, dealID int, eventType ledger.EventType) (bool, error)
	HasStageEvent(ctx context.Context, dealID, stageID int) (bool, error)
	LatestSuspension(ctx context.Context, dealID int) (*ledger.Entry, error)
	HasMilestone(ctx context.Context, userID int, rank string) (bool, error)
}

// CRM is the slice of the CRM client the engine needs: snapshot reads and
// the remediation mutations (revert stage, annotate, create follow-up).
// Satisfied by *crm.Client.
type CRM interface {
	GetDeal(ctx context.Context, dealID int) (crm.Snapshot, error)
	UpdateDeal(ctx context.Context, dealID int, fields map[string]any) error
	AddNote(ctx context.Context, dealID int, content string) error
	AddTask(ctx context.Context, dealID, userID int, subject string) error
	ListStaleDeals(ctx context.Context) ([]crm.Snapshot, error)
}

// Service is the scoring engine. It owns no state beyond its injected
// collaborators; all scoring state lives in the ledger.
type Service struct {
	cfg   *scorecard.Config
	store Ledger
	crm   CRM
	log   *logger.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a scoring service.
func New(cfg *scorecard.Config, store Ledger, crmClient CRM, log *logger.Logger) *Service {
	return &Service{
		cfg:   cfg,
		store: store,
		crm:   crmClient,
		log:   log,
		now:   time.Now,
	}
}

// Disposition is the terminal state the stage part of an event reached.
type Disposition string

const (
	// DispositionNoChange means the event carried no stage delta.
	DispositionNoChange Disposition = "no_change"
	// DispositionAutoResolved means an automatic WON/LOST predicate fired
	// and short-circuited the event.
	DispositionAutoResolved Disposition = "auto_resolved"
	// DispositionStageSkipped means the deal jumped more than one stage
	// and was pushed back.
	DispositionStageSkipped Disposition = "stage_skipped"
	// DispositionNonCompliant means the target stage's ruleset failed and
	// the deal was pushed back.
	DispositionNonCompliant Disposition = "non_compliant"
	// DispositionAccepted means the transition was scored.
	DispositionAccepted Disposition = "accepted"
	// DispositionAlreadyProcessed means the (deal, stage) pair was scored
	// by an earlier delivery of this transition.
	DispositionAlreadyProcessed Disposition = "already_processed"
)

// Result describes what one processed webhook event did. Notifications
// are an outbox: the engine never publishes them itself, the caller
// drains them only after the ledger transaction has committed, so a
// failed alert can never roll back or block scoring.
type Result struct {
	Disposition   Disposition
	Revived       bool
	WonScored     bool
	Outcome       ledger.Outcome
	Notifications []events.Event
}

func (r *Result) addNotification(e events.Event) {
	r.Notifications = append(r.Notifications, e)
}
