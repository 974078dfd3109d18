package scoring

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sales_enforcer_backend/internal/crm"
	"sales_enforcer_backend/internal/events"
	"sales_enforcer_backend/internal/ledger"
	"sales_enforcer_backend/internal/rules"
	"sales_enforcer_backend/platform/apperr"
)

const (
	statusOpen = "open"
	statusWon  = "won"
	statusLost = "lost"

	// wonPseudoStage marks the one-time win award in deal_stage_events.
	// A win is terminal, so it is modeled as a reserved stage id no real
	// pipeline stage can collide with; the unique (deal_id, stage_id)
	// index then guards the base award exactly like a normal advance.
	wonPseudoStage = -1
)

// ProcessDealEvent runs one deal-updated webhook through the full state
// machine: automatic status resolution first, then the revival check, then
// status-change scoring, then stage-change enforcement. All ledger
// mutations for the event are collected into a single Outcome and applied
// in one transaction. Remediation calls to the CRM (revert, note, task)
// happen inline because they are the product of a rejection, not a score.
func (s *Service) ProcessDealEvent(ctx context.Context, previous, current crm.Snapshot) (*Result, error) {
	dealID := current.ID()
	if dealID == 0 {
		return nil, apperr.BadRequest("event payload has no deal id")
	}
	userID := current.OwnerID()
	log := s.log.WithDeal(dealID)

	res := &Result{Disposition: DispositionNoChange}

	// Automation fields can resolve the deal before any stage logic runs.
	resolved, err := s.autoResolve(ctx, current, res)
	if err != nil {
		return nil, err
	}
	if resolved {
		log.Info("deal auto-resolved, skipping stage logic")
		return res, nil
	}

	// Revival is independent of stage movement: the rotten flag clearing
	// is its own signal and its credit rides in the same transaction.
	if err := s.checkRevival(ctx, previous, current, res); err != nil {
		return nil, err
	}

	if previous.Status() != current.Status() && current.Status() == statusWon {
		if err := s.scoreWin(ctx, current, res); err != nil {
			return nil, err
		}
	}

	prevStageID := previous.StageID()
	currStageID := current.StageID()
	if currStageID != 0 && currStageID != prevStageID {
		if err := s.processStageChange(ctx, previous, current, res); err != nil {
			return nil, err
		}
	}

	if res.Outcome.IsEmpty() {
		return res, nil
	}

	// One milestone check per event, over everything the event earned.
	if err := s.detectMilestone(ctx, userID, res); err != nil {
		return nil, err
	}

	if err := s.store.Apply(ctx, res.Outcome); err != nil {
		if errors.Is(err, ledger.ErrDuplicateStageEvent) {
			// A concurrent delivery of the same transition won the race.
			log.Info("duplicate stage event, outcome discarded")
			res.Disposition = DispositionAlreadyProcessed
			res.Outcome = ledger.Outcome{}
			res.Notifications = nil
			return res, nil
		}
		return nil, err
	}

	log.Info("scoring outcome committed",
		"disposition", string(res.Disposition),
		"points_delta", res.Outcome.PointsDelta(),
		"entries", len(res.Outcome.Entries),
	)
	return res, nil
}

// autoResolve checks the configured automation predicates and, when one
// matches a still-open deal, issues the status mutation to the CRM and
// short-circuits the event. The status-change webhook that mutation
// triggers is what carries the win scoring.
func (s *Service) autoResolve(ctx context.Context, current crm.Snapshot, res *Result) (bool, error) {
	if current.Status() != statusOpen {
		return false, nil
	}
	auto := s.cfg.Automation

	signedID, signed := current.FieldID(auto.ContractSigned.Key)
	paidID, paid := current.FieldID(auto.PaymentTaken.Key)
	if signed && paid && signedID == auto.ContractSigned.YesID && paidID == auto.PaymentTaken.YesID {
		if err := s.crm.UpdateDeal(ctx, current.ID(), map[string]any{"status": statusWon}); err != nil {
			return false, err
		}
		res.Disposition = DispositionAutoResolved
		return true, nil
	}

	if current.FieldSet(auto.LossReason.Key) {
		if err := s.crm.UpdateDeal(ctx, current.ID(), map[string]any{"status": statusLost}); err != nil {
			return false, err
		}
		res.Disposition = DispositionAutoResolved
		return true, nil
	}
	return false, nil
}

// processStageChange enforces order and compliance on a stage delta and,
// when accepted, stages the advance entry plus any transition bonuses.
func (s *Service) processStageChange(ctx context.Context, previous, current crm.Snapshot, res *Result) error {
	dealID := current.ID()
	prevStageID := previous.StageID()
	currStageID := current.StageID()
	log := s.log.WithDeal(dealID)

	target, ok := s.cfg.StageByID(currStageID)
	if !ok {
		// An unknown stage means the scorecard and the pipeline have
		// drifted apart. That needs a human, not a retry.
		return apperr.ConfigGap(fmt.Sprintf("stage %d is not in the scorecard", currStageID))
	}
	prevOrder := s.cfg.StageOrder(prevStageID)

	// A jump of more than one step is rejected before compliance is even
	// looked at: the skipped stage's rules were never satisfiable.
	if target.Order > prevOrder+1 {
		note := fmt.Sprintf("Deal reverted: stages cannot be skipped. Moved back from %q.", target.Name)
		if err := s.revertStage(ctx, dealID, prevStageID, note); err != nil {
			return err
		}
		log.Warn("stage skip rejected", "from_stage", prevStageID, "to_stage", currStageID)
		res.Disposition = DispositionStageSkipped
		res.addNotification(events.DealReverted{
			BaseEvent:   events.NewBaseEvent(),
			DealID:      dealID,
			FromStageID: currStageID,
			ToStageID:   prevStageID,
			Reasons:     []string{"stages cannot be skipped"},
		})
		return nil
	}

	// Rules run against a fresh full snapshot: webhook payloads may omit
	// the custom fields a ruleset depends on.
	full, err := s.crm.GetDeal(ctx, dealID)
	if err != nil {
		return err
	}
	verdict := rules.Evaluate(s.cfg.RulesetFor(currStageID), full)
	if !verdict.Passed {
		var b strings.Builder
		fmt.Fprintf(&b, "Deal reverted from %q, missing requirements:\n", target.Name)
		for _, msg := range verdict.Messages {
			fmt.Fprintf(&b, "- %s\n", msg)
		}
		if err := s.revertStage(ctx, dealID, prevStageID, b.String()); err != nil {
			return err
		}
		if err := s.crm.AddTask(ctx, dealID, current.OwnerID(), "Fix compliance issues to advance deal"); err != nil {
			return err
		}
		log.Warn("compliance rejected", "to_stage", currStageID, "failures", len(verdict.Messages))
		res.Disposition = DispositionNonCompliant
		res.addNotification(events.DealReverted{
			BaseEvent:   events.NewBaseEvent(),
			DealID:      dealID,
			FromStageID: currStageID,
			ToStageID:   prevStageID,
			Reasons:     verdict.Messages,
		})
		return nil
	}

	processed, err := s.store.HasStageEvent(ctx, dealID, currStageID)
	if err != nil {
		return err
	}
	if processed {
		res.Disposition = DispositionAlreadyProcessed
		return nil
	}

	res.Disposition = DispositionAccepted
	res.Outcome.StageEvents = append(res.Outcome.StageEvents, ledger.StageEvent{
		DealID:  dealID,
		StageID: currStageID,
	})
	if target.Points > 0 {
		res.Outcome.Entries = append(res.Outcome.Entries, ledger.Entry{
			UserID:    current.OwnerID(),
			DealID:    dealID,
			EventType: ledger.EventStageAdvance,
			Points:    target.Points,
			Note:      fmt.Sprintf("Advanced to stage: %s", target.Name),
		})
	}
	return s.applyTransitionBonuses(ctx, previous, current, res)
}

// revertStage pushes the deal back to its previous stage with an
// explanatory note. A deal with no known previous stage cannot be pushed
// anywhere, so only the note lands.
func (s *Service) revertStage(ctx context.Context, dealID, prevStageID int, note string) error {
	if err := s.crm.AddNote(ctx, dealID, note); err != nil {
		return err
	}
	if prevStageID == 0 {
		return nil
	}
	return s.crm.UpdateDeal(ctx, dealID, map[string]any{"stage_id": prevStageID})
}
