// Package ledger persists the scoring state: the append-only points
// ledger, first-entry stage events, and credited user milestones. Entries
// are never updated or deleted; a user's score is always the signed sum
// of their entries.
package ledger

import "time"

// EventType enumerates the kinds of point transactions.
type EventType string

const (
	EventStageAdvance                EventType = "STAGE_ADVANCE"
	EventBonusLeadIntakeSameDay      EventType = "BONUS_LEAD_INTAKE_SAME_DAY"
	EventBonusWonFast                EventType = "BONUS_WON_FAST"
	EventBonusProposalPaymentSameDay EventType = "BONUS_PROPOSAL_PAYMENT_SAME_DAY"
	EventDealRottedSuspension        EventType = "DEAL_ROTTED_SUSPENSION"
	EventDealRevived                 EventType = "DEAL_REVIVED"
	EventBonus                       EventType = "BONUS"
)

// Entry is one immutable signed point transaction attributed to a deal
// and a user. Penalties carry negative points.
type Entry struct {
	ID        int64
	DealID    int
	UserID    int
	EventType EventType
	Points    int
	Note      string
	CreatedAt time.Time
}

// StageEvent marks the first entry of a deal into a stage. The
// (deal, stage) pair is unique at the storage layer; it is the idempotency
// guard against repeated webhook delivery of the same transition.
type StageEvent struct {
	DealID    int
	StageID   int
	EnteredAt time.Time
}

// MilestoneAward records that a user has been credited for a rank.
// Unique per (user, rank): the milestone alert fires at most once.
type MilestoneAward struct {
	UserID int
	Rank   string
}

// Outcome is everything one processed event wants to persist. Apply
// writes it in a single transaction: either all of it lands or none.
type Outcome struct {
	StageEvents []StageEvent
	Entries     []Entry
	Milestones  []MilestoneAward
}

// IsEmpty reports whether the outcome carries no writes.
func (o Outcome) IsEmpty() bool {
	return len(o.StageEvents) == 0 && len(o.Entries) == 0 && len(o.Milestones) == 0
}

// PointsDelta is the signed sum of the outcome's entries.
func (o Outcome) PointsDelta() int {
	total := 0
	for _, e := range o.Entries {
		total += e.Points
	}
	return total
}

// UserTotal is a scoreboard row: one user's cumulative score.
type UserTotal struct {
	UserID int
	Total  int
}
