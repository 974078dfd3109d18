package scoring

import (
	"context"

	"sales_enforcer_backend/internal/crm"
	"sales_enforcer_backend/internal/events"
	"sales_enforcer_backend/internal/ledger"
)

// checkRevival credits back a rotting suspension when the deal's
// staleness flag transitions from set to unset. The credit is the exact
// magnitude of the most recent suspension; without a suspension on record
// there is nothing to revive. A deal is revived at most once.
func (s *Service) checkRevival(ctx context.Context, previous, current crm.Snapshot, res *Result) error {
	if !previous.Rotten() || current.Rotten() {
		return nil
	}
	dealID := current.ID()
	log := s.log.WithDeal(dealID)

	if order := s.cfg.StageOrder(current.StageID()); order < s.cfg.RevivalMinimumStageOrder {
		log.Info("deal recovered but below revival minimum", "stage_order", order)
		return nil
	}

	revived, err := s.store.HasEvent(ctx, dealID, ledger.EventDealRevived)
	if err != nil {
		return err
	}
	if revived {
		return nil
	}

	suspension, err := s.store.LatestSuspension(ctx, dealID)
	if err != nil {
		return err
	}
	if suspension == nil {
		return nil
	}

	credit := -suspension.Points
	if credit <= 0 {
		return nil
	}

	userID := current.OwnerID()
	res.Revived = true
	res.Outcome.Entries = append(res.Outcome.Entries, ledger.Entry{
		UserID:    userID,
		DealID:    dealID,
		EventType: ledger.EventDealRevived,
		Points:    credit,
		Note:      "Deal revived by advancing.",
	})
	res.addNotification(events.DealRevived{
		BaseEvent:      events.NewBaseEvent(),
		DealID:         dealID,
		UserID:         userID,
		PointsRestored: credit,
	})
	log.Info("deal revived", "points_restored", credit)
	return nil
}
