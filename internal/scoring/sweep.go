package scoring

import (
	"context"
	"fmt"

	"sales_enforcer_backend/internal/events"
	"sales_enforcer_backend/internal/ledger"
)

// SweepResult reports what one decay sweep run did. Notifications follow
// the same outbox contract as Result: drained by the caller after the
// writes are on the books.
type SweepResult struct {
	Checked       int
	Penalized     int
	Notifications []events.Event
}

// RunDecaySweep penalizes every deal the CRM currently flags as stale.
// Each deal is penalized at most once ever, guarded by a per-deal ledger
// existence check, so overlapping or repeated runs are harmless. The CRM
// itself is never mutated. A storage failure aborts the run; the next
// scheduled run picks up where this one left off.
func (s *Service) RunDecaySweep(ctx context.Context) (*SweepResult, error) {
	deals, err := s.crm.ListStaleDeals(ctx)
	if err != nil {
		return nil, err
	}

	res := &SweepResult{Checked: len(deals)}
	for _, deal := range deals {
		dealID := deal.ID()
		if dealID == 0 {
			continue
		}

		penalized, err := s.store.HasEvent(ctx, dealID, ledger.EventDealRottedSuspension)
		if err != nil {
			return res, err
		}
		if penalized {
			continue
		}

		stage, ok := s.cfg.StageByID(deal.StageID())
		if !ok {
			// Scorecard drift. Report and move on so one misconfigured
			// deal cannot starve the rest of the sweep.
			s.log.WithDeal(dealID).Warn("stale deal in unknown stage", "stage_id", deal.StageID())
			continue
		}
		if stage.Points <= 0 {
			continue
		}

		userID := deal.OwnerID()
		entry := ledger.Entry{
			UserID:    userID,
			DealID:    dealID,
			EventType: ledger.EventDealRottedSuspension,
			Points:    -stage.Points,
			Note:      fmt.Sprintf("Deal rotted in stage: %s", stage.Name),
		}
		if err := s.store.Append(ctx, entry); err != nil {
			return res, err
		}

		res.Penalized++
		res.Notifications = append(res.Notifications, events.DealRotted{
			BaseEvent: events.NewBaseEvent(),
			DealID:    dealID,
			UserID:    userID,
			Penalty:   -stage.Points,
		})
		s.log.WithDeal(dealID).Info("rotting penalty applied", "points", -stage.Points, "stage", stage.Name)
	}
	return res, nil
}
