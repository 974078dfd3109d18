// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	platformevents "sales_enforcer_backend/platform/events"
	"sales_enforcer_backend/platform/logger"
)

// Re-export platform types for convenience
type (
	Event       = platformevents.Event
	Bus         = platformevents.Bus
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
	BaseEvent   = platformevents.BaseEvent
	InMemoryBus = platformevents.InMemoryBus
)

// Re-export platform functions
var NewBaseEvent = platformevents.NewBaseEvent

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}

// =============================================================================
// Scoring Domain Events
// =============================================================================

// DealWon is published after the ledger transaction that first credited a
// won deal commits. Alert delivery is best-effort and decoupled from the
// transaction.
type DealWon struct {
	BaseEvent
	DealID    int     `json:"dealId"`
	UserID    int     `json:"userId"`
	DealTitle string  `json:"dealTitle"`
	DealValue float64 `json:"dealValue"`
	Currency  string  `json:"currency"`
}

func (e DealWon) EventName() string { return "scoring.deal.won" }

// MilestoneReached is published when a user first crosses a rank
// threshold. At most one fires per (user, rank) ever, and at most one per
// triggering event.
type MilestoneReached struct {
	BaseEvent
	UserID int    `json:"userId"`
	Rank   string `json:"rank"`
	Score  int    `json:"score"`
}

func (e MilestoneReached) EventName() string { return "scoring.milestone.reached" }

// DealReverted is published when the engine pushes a deal back to its
// previous stage (skip or compliance failure). Informational; the deal
// owner is told through the CRM note, not through this event.
type DealReverted struct {
	BaseEvent
	DealID      int      `json:"dealId"`
	FromStageID int      `json:"fromStageId"`
	ToStageID   int      `json:"toStageId"`
	Reasons     []string `json:"reasons,omitempty"`
}

func (e DealReverted) EventName() string { return "scoring.deal.reverted" }

// DealRevived is published when a deal's rotting penalty is credited back.
type DealRevived struct {
	BaseEvent
	DealID         int `json:"dealId"`
	UserID         int `json:"userId"`
	PointsRestored int `json:"pointsRestored"`
}

func (e DealRevived) EventName() string { return "scoring.deal.revived" }

// DealRotted is published when the decay sweep penalizes a stale deal.
type DealRotted struct {
	BaseEvent
	DealID  int `json:"dealId"`
	UserID  int `json:"userId"`
	Penalty int `json:"penalty"`
}

func (e DealRotted) EventName() string { return "scoring.deal.rotted" }
