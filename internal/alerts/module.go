package alerts

import (
	"context"
	"fmt"

	"sales_enforcer_backend/internal/crm"
	"sales_enforcer_backend/internal/events"
	"sales_enforcer_backend/platform/logger"
)

// UserReader resolves a CRM user id to display info for alert payloads.
// Satisfied by *crm.Client.
type UserReader interface {
	GetUser(ctx context.Context, userID int) (crm.User, error)
}

// Module subscribes the alert client to the domain events that should
// reach the outside world.
type Module struct {
	client *Client
	users  UserReader
	log    *logger.Logger
}

func New(client *Client, users UserReader, log *logger.Logger) *Module {
	return &Module{client: client, users: users, log: log}
}

// RegisterHandlers wires the module onto the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.DealWon{}.EventName(), events.HandlerFunc(m.handleDealWon))
	bus.Subscribe(events.MilestoneReached{}.EventName(), events.HandlerFunc(m.handleMilestoneReached))
}

func (m *Module) handleDealWon(ctx context.Context, event events.Event) error {
	won, ok := event.(events.DealWon)
	if !ok {
		return nil
	}

	repName := m.repName(ctx, won.UserID)
	if err := m.client.NotifyDealWon(ctx, won.DealTitle, won.DealValue, repName); err != nil {
		m.log.AlertError("deal_won", err)
	}
	return nil
}

func (m *Module) handleMilestoneReached(ctx context.Context, event events.Event) error {
	milestone, ok := event.(events.MilestoneReached)
	if !ok {
		return nil
	}

	repName := m.repName(ctx, milestone.UserID)
	if err := m.client.NotifyMilestone(ctx, repName, milestone.Rank, milestone.Score); err != nil {
		m.log.AlertError("milestone", err)
	}
	return nil
}

// repName is best-effort: an unreachable CRM must not block the alert.
func (m *Module) repName(ctx context.Context, userID int) string {
	if m.users == nil || userID == 0 {
		return fmt.Sprintf("Rep %d", userID)
	}
	user, err := m.users.GetUser(ctx, userID)
	if err != nil || user.Name == "" {
		m.log.Warn("could not resolve rep name for alert", "user_id", userID)
		return fmt.Sprintf("Rep %d", userID)
	}
	return user.Name
}
