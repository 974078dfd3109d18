package scoring

import (
	"context"
	"fmt"
	"time"

	"sales_enforcer_backend/internal/crm"
	"sales_enforcer_backend/internal/events"
	"sales_enforcer_backend/internal/ledger"
)

// scoreWin credits the flat win award and the fast-win bonus the first
// time a deal's status becomes won. The win is modeled as entry into a
// reserved pseudo-stage so the storage-level (deal, stage) uniqueness
// guards the base award against redelivery and concurrent processing.
func (s *Service) scoreWin(ctx context.Context, current crm.Snapshot, res *Result) error {
	dealID := current.ID()
	userID := current.OwnerID()

	scored, err := s.store.HasStageEvent(ctx, dealID, wonPseudoStage)
	if err != nil {
		return err
	}
	if scored {
		return nil
	}

	res.WonScored = true
	res.Outcome.StageEvents = append(res.Outcome.StageEvents, ledger.StageEvent{
		DealID:  dealID,
		StageID: wonPseudoStage,
	})
	res.Outcome.Entries = append(res.Outcome.Entries, ledger.Entry{
		UserID:    userID,
		DealID:    dealID,
		EventType: ledger.EventStageAdvance,
		Points:    s.cfg.Points.WonDeal,
		Note:      "Deal won.",
	})

	if added, ok := current.AddTime(); ok {
		wonAt, ok := current.WonTime()
		if !ok {
			wonAt = s.now()
		}
		days := wholeDays(added, wonAt)
		if days >= 0 && days <= s.cfg.Points.BonusWonFastDays {
			dup, err := s.store.HasEvent(ctx, dealID, ledger.EventBonusWonFast)
			if err != nil {
				return err
			}
			if !dup {
				res.Outcome.Entries = append(res.Outcome.Entries, ledger.Entry{
					UserID:    userID,
					DealID:    dealID,
					EventType: ledger.EventBonusWonFast,
					Points:    s.cfg.Points.BonusWonFast,
					Note:      fmt.Sprintf("Bonus: Deal won in %d days.", days),
				})
			}
		}
	}

	res.addNotification(events.DealWon{
		BaseEvent: events.NewBaseEvent(),
		DealID:    dealID,
		UserID:    userID,
		DealTitle: current.Title(),
		DealValue: current.Value(),
		Currency:  current.Currency(),
	})
	return nil
}

// applyTransitionBonuses stages the bonuses tied to an accepted stage
// advance. Each has its own ledger event type as idempotency key, checked
// here and enforced again by the transaction the outcome lands in.
func (s *Service) applyTransitionBonuses(ctx context.Context, previous, current crm.Snapshot, res *Result) error {
	dealID := current.ID()
	userID := current.OwnerID()

	// Leaving lead intake on the same calendar day the deal was created.
	if previous.StageID() == s.cfg.BonusStages.LeadIntakeStageID {
		added, okAdd := current.AddTime()
		updated, okUpd := current.UpdateTime()
		if okAdd && okUpd && sameDay(added, updated) {
			dup, err := s.store.HasEvent(ctx, dealID, ledger.EventBonusLeadIntakeSameDay)
			if err != nil {
				return err
			}
			if !dup {
				res.Outcome.Entries = append(res.Outcome.Entries, ledger.Entry{
					UserID:    userID,
					DealID:    dealID,
					EventType: ledger.EventBonusLeadIntakeSameDay,
					Points:    s.cfg.Points.BonusLeadIntakeSameDay,
					Note:      "Bonus: Lead worked same day.",
				})
			}
		}
	}

	// Proposal to close in one day with payment already taken.
	if current.StageID() == s.cfg.BonusStages.CloseStageID &&
		previous.StageID() == s.cfg.BonusStages.ProposalStageID {
		paidID, ok := current.FieldID(s.cfg.Automation.PaymentTaken.Key)
		proposedAt, okProp := previous.StageChangeTime()
		updated, okUpd := current.UpdateTime()
		if ok && paidID == s.cfg.Automation.PaymentTaken.YesID &&
			okProp && okUpd && sameDay(proposedAt, updated) {
			dup, err := s.store.HasEvent(ctx, dealID, ledger.EventBonusProposalPaymentSameDay)
			if err != nil {
				return err
			}
			if !dup {
				res.Outcome.Entries = append(res.Outcome.Entries, ledger.Entry{
					UserID:    userID,
					DealID:    dealID,
					EventType: ledger.EventBonusProposalPaymentSameDay,
					Points:    s.cfg.Points.BonusProposalPaymentSameDay,
					Note:      "Bonus: Payment taken same day as proposal.",
				})
			}
		}
	}
	return nil
}

// detectMilestone checks whether the points this event earns push the
// user over a rank threshold. Thresholds are walked from highest to
// lowest and the first unmet-then-met rank wins; ranks the user passed
// long ago stay silent. At most one award per event.
func (s *Service) detectMilestone(ctx context.Context, userID int, res *Result) error {
	delta := res.Outcome.PointsDelta()
	if delta <= 0 || userID == 0 {
		return nil
	}
	total, err := s.store.TotalScore(ctx, userID)
	if err != nil {
		return err
	}
	newTotal := total + delta

	for _, m := range s.cfg.MilestonesDescending() {
		if newTotal < m.Threshold {
			continue
		}
		credited, err := s.store.HasMilestone(ctx, userID, m.Rank)
		if err != nil {
			return err
		}
		if !credited {
			res.Outcome.Milestones = append(res.Outcome.Milestones, ledger.MilestoneAward{
				UserID: userID,
				Rank:   m.Rank,
			})
			res.addNotification(events.MilestoneReached{
				BaseEvent: events.NewBaseEvent(),
				UserID:    userID,
				Rank:      m.Rank,
				Score:     newTotal,
			})
		}
		// Highest met rank decides; everything below was passed earlier.
		break
	}
	return nil
}

// wholeDays is the elapsed whole-day count between two instants.
func wholeDays(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// sameDay reports whether two instants fall on the same UTC calendar day.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
