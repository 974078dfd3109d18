package scoring

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"sales_enforcer_backend/internal/crm"
	"sales_enforcer_backend/internal/events"
	"sales_enforcer_backend/internal/ledger"
	"sales_enforcer_backend/internal/scorecard"
	"sales_enforcer_backend/platform/apperr"
	"sales_enforcer_backend/platform/logger"
)

// fakeLedger is an in-memory Ledger that mimics the storage-level
// uniqueness guarantees of the real repository.
type fakeLedger struct {
	entries     []ledger.Entry
	stageEvents map[[2]int]bool
	milestones  map[string]bool
	totals      map[int]int
	applied     int
	applyErr    error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		stageEvents: make(map[[2]int]bool),
		milestones:  make(map[string]bool),
		totals:      make(map[int]int),
	}
}

func milestoneKey(userID int, rank string) string {
	return fmt.Sprintf("%d:%s", userID, rank)
}

func (f *fakeLedger) Apply(_ context.Context, o ledger.Outcome) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	for _, se := range o.StageEvents {
		if f.stageEvents[[2]int{se.DealID, se.StageID}] {
			return ledger.ErrDuplicateStageEvent
		}
	}
	for _, m := range o.Milestones {
		if f.milestones[milestoneKey(m.UserID, m.Rank)] {
			return ledger.ErrDuplicateMilestone
		}
	}
	for _, se := range o.StageEvents {
		f.stageEvents[[2]int{se.DealID, se.StageID}] = true
	}
	f.entries = append(f.entries, o.Entries...)
	for _, m := range o.Milestones {
		f.milestones[milestoneKey(m.UserID, m.Rank)] = true
	}
	f.applied++
	return nil
}

func (f *fakeLedger) Append(_ context.Context, e ledger.Entry) error {
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeLedger) TotalScore(_ context.Context, userID int) (int, error) {
	total := f.totals[userID]
	for _, e := range f.entries {
		if e.UserID == userID {
			total += e.Points
		}
	}
	return total, nil
}

func (f *fakeLedger) HasEvent(_ context.Context, dealID int, eventType ledger.EventType) (bool, error) {
	for _, e := range f.entries {
		if e.DealID == dealID && e.EventType == eventType {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLedger) HasStageEvent(_ context.Context, dealID, stageID int) (bool, error) {
	return f.stageEvents[[2]int{dealID, stageID}], nil
}

func (f *fakeLedger) LatestSuspension(_ context.Context, dealID int) (*ledger.Entry, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.DealID == dealID && e.EventType == ledger.EventDealRottedSuspension {
			return &e, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) HasMilestone(_ context.Context, userID int, rank string) (bool, error) {
	return f.milestones[milestoneKey(userID, rank)], nil
}

func (f *fakeLedger) entriesOfType(t ledger.EventType) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range f.entries {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

// fakeCRM records the mutations the engine requests.
type fakeCRM struct {
	deal    crm.Snapshot
	getErr  error
	updates []map[string]any
	notes   []string
	tasks   []string
	stale   []crm.Snapshot
}

func (f *fakeCRM) GetDeal(_ context.Context, _ int) (crm.Snapshot, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.deal, nil
}

func (f *fakeCRM) UpdateDeal(_ context.Context, _ int, fields map[string]any) error {
	f.updates = append(f.updates, fields)
	return nil
}

func (f *fakeCRM) AddNote(_ context.Context, _ int, content string) error {
	f.notes = append(f.notes, content)
	return nil
}

func (f *fakeCRM) AddTask(_ context.Context, _, _ int, subject string) error {
	f.tasks = append(f.tasks, subject)
	return nil
}

func (f *fakeCRM) ListStaleDeals(_ context.Context) ([]crm.Snapshot, error) {
	return f.stale, nil
}

func newTestService(t *testing.T) (*Service, *fakeLedger, *fakeCRM) {
	t.Helper()
	cfg, err := scorecard.Load("")
	if err != nil {
		t.Fatalf("load scorecard: %v", err)
	}
	store := newFakeLedger()
	crmClient := &fakeCRM{}
	svc := New(cfg, store, crmClient, logger.New("development"))
	svc.now = func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	}
	return svc, store, crmClient
}

func snap(dealID, userID, stageID int, status string) crm.Snapshot {
	return crm.Snapshot{
		"id":       float64(dealID),
		"user_id":  float64(userID),
		"stage_id": float64(stageID),
		"status":   status,
	}
}

func TestProcessDealEvent_NoChange(t *testing.T) {
	svc, store, _ := newTestService(t)

	prev := snap(1, 7, 90, "open")
	curr := snap(1, 7, 90, "open")
	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Disposition != DispositionNoChange {
		t.Fatalf("disposition = %s, want %s", res.Disposition, DispositionNoChange)
	}
	if store.applied != 0 || len(store.entries) != 0 {
		t.Fatalf("no-change event must not touch the ledger")
	}
}

func TestProcessDealEvent_AcceptedAdvance(t *testing.T) {
	svc, store, crmClient := newTestService(t)

	prev := snap(1, 7, 99, "open")
	curr := snap(1, 7, 90, "open")
	crmClient.deal = curr

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Disposition != DispositionAccepted {
		t.Fatalf("disposition = %s, want %s", res.Disposition, DispositionAccepted)
	}
	if !store.stageEvents[[2]int{1, 90}] {
		t.Fatalf("stage event (1, 90) not recorded")
	}
	advances := store.entriesOfType(ledger.EventStageAdvance)
	if len(advances) != 1 || advances[0].Points != 10 {
		t.Fatalf("advance entries = %+v, want one worth 10 points", advances)
	}
	if !strings.Contains(advances[0].Note, "1. Lead Intake") {
		t.Fatalf("advance note = %q, want stage name", advances[0].Note)
	}
	if len(crmClient.updates) != 0 || len(crmClient.notes) != 0 {
		t.Fatalf("accepted advance must not mutate the CRM")
	}
}

func TestProcessDealEvent_ZeroPointStageRecordsNoEntry(t *testing.T) {
	svc, store, crmClient := newTestService(t)

	// Backwards into the nurture zone: order check passes, zero points.
	prev := snap(2, 7, 90, "open")
	curr := snap(2, 7, 99, "open")
	crmClient.deal = curr

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Disposition != DispositionAccepted {
		t.Fatalf("disposition = %s, want %s", res.Disposition, DispositionAccepted)
	}
	if !store.stageEvents[[2]int{2, 99}] {
		t.Fatalf("stage event (2, 99) not recorded")
	}
	if len(store.entries) != 0 {
		t.Fatalf("zero-point stage must not create a ledger entry, got %+v", store.entries)
	}
}

func TestProcessDealEvent_StageSkipReverted(t *testing.T) {
	svc, store, crmClient := newTestService(t)

	prev := snap(3, 7, 90, "open")
	curr := snap(3, 7, 92, "open") // order 4 from order 2

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Disposition != DispositionStageSkipped {
		t.Fatalf("disposition = %s, want %s", res.Disposition, DispositionStageSkipped)
	}
	if len(crmClient.notes) != 1 || !strings.Contains(crmClient.notes[0], "skipped") {
		t.Fatalf("notes = %q, want skip explanation", crmClient.notes)
	}
	if len(crmClient.updates) != 1 || crmClient.updates[0]["stage_id"] != 90 {
		t.Fatalf("updates = %+v, want revert to stage 90", crmClient.updates)
	}
	if len(store.entries) != 0 || store.applied != 0 {
		t.Fatalf("skip rejection must not award points")
	}
}

func TestProcessDealEvent_NonCompliantReverted(t *testing.T) {
	svc, store, crmClient := newTestService(t)

	prev := snap(4, 7, 90, "open")
	curr := snap(4, 7, 91, "open")
	crmClient.deal = curr // qualification fields absent

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Disposition != DispositionNonCompliant {
		t.Fatalf("disposition = %s, want %s", res.Disposition, DispositionNonCompliant)
	}
	if len(crmClient.notes) != 1 {
		t.Fatalf("expected one compliance note, got %q", crmClient.notes)
	}
	note := crmClient.notes[0]
	q1 := strings.Index(note, "Qualifying Question 1 is missing.")
	q2 := strings.Index(note, "Qualifying Question 2 is missing.")
	if q1 < 0 || q2 < 0 || q2 < q1 {
		t.Fatalf("note must list every failure in declaration order, got %q", note)
	}
	if len(crmClient.tasks) != 1 || crmClient.tasks[0] != "Fix compliance issues to advance deal" {
		t.Fatalf("tasks = %q, want follow-up task", crmClient.tasks)
	}
	if len(crmClient.updates) != 1 || crmClient.updates[0]["stage_id"] != 90 {
		t.Fatalf("updates = %+v, want revert to stage 90", crmClient.updates)
	}
	if len(store.entries) != 0 {
		t.Fatalf("compliance rejection must not award points")
	}
}

func TestProcessDealEvent_CompliantAdvanceScores(t *testing.T) {
	svc, store, crmClient := newTestService(t)

	prev := snap(5, 7, 90, "open")
	curr := snap(5, 7, 91, "open")
	full := snap(5, 7, 91, "open")
	full["a46e8e4a3b0ec6d6dfe820ace2a80721f7078725"] = "Budget discussed"
	full["aceebe87f042b5cdb1915ceeb604277dbd0072b7"] = "Timeline agreed"
	crmClient.deal = full

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Disposition != DispositionAccepted {
		t.Fatalf("disposition = %s, want %s", res.Disposition, DispositionAccepted)
	}
	advances := store.entriesOfType(ledger.EventStageAdvance)
	if len(advances) != 1 || advances[0].Points != 20 {
		t.Fatalf("advance entries = %+v, want one worth 20 points", advances)
	}
}

func TestProcessDealEvent_AlreadyProcessed(t *testing.T) {
	svc, store, crmClient := newTestService(t)
	store.stageEvents[[2]int{6, 90}] = true

	prev := snap(6, 7, 99, "open")
	curr := snap(6, 7, 90, "open")
	crmClient.deal = curr

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Disposition != DispositionAlreadyProcessed {
		t.Fatalf("disposition = %s, want %s", res.Disposition, DispositionAlreadyProcessed)
	}
	if len(store.entries) != 0 {
		t.Fatalf("redelivered transition must not award points again")
	}
}

func TestProcessDealEvent_ConcurrentDuplicateDiscarded(t *testing.T) {
	svc, store, crmClient := newTestService(t)
	store.applyErr = ledger.ErrDuplicateStageEvent

	prev := snap(7, 7, 99, "open")
	curr := snap(7, 7, 90, "open")
	crmClient.deal = curr

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("duplicate race must not surface as an error, got %v", err)
	}
	if res.Disposition != DispositionAlreadyProcessed {
		t.Fatalf("disposition = %s, want %s", res.Disposition, DispositionAlreadyProcessed)
	}
	if len(res.Notifications) != 0 {
		t.Fatalf("discarded outcome must not notify")
	}
}

func TestProcessDealEvent_UnknownStageIsConfigGap(t *testing.T) {
	svc, _, _ := newTestService(t)

	prev := snap(8, 7, 90, "open")
	curr := snap(8, 7, 555, "open")

	_, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err == nil {
		t.Fatal("expected error for unknown stage")
	}
	if apperr.GetKind(err) != apperr.KindConfigGap {
		t.Fatalf("kind = %v, want KindConfigGap", apperr.GetKind(err))
	}
}

func TestProcessDealEvent_AutoResolveWon(t *testing.T) {
	svc, store, crmClient := newTestService(t)

	prev := snap(9, 7, 94, "open")
	curr := snap(9, 7, 95, "open")
	curr["0ede563fbd2d22869b5c63a15ac1f1b8e4ddf610"] = float64(91) // contract signed
	curr["c61044a44d813064e799a96c88cb55bca465d04e"] = float64(90) // payment taken

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Disposition != DispositionAutoResolved {
		t.Fatalf("disposition = %s, want %s", res.Disposition, DispositionAutoResolved)
	}
	if len(crmClient.updates) != 1 || crmClient.updates[0]["status"] != "won" {
		t.Fatalf("updates = %+v, want status won", crmClient.updates)
	}
	// Scoring happens on the status-change webhook this mutation triggers.
	if len(store.entries) != 0 || store.applied != 0 {
		t.Fatalf("auto-resolution must short-circuit before any scoring")
	}
}

func TestProcessDealEvent_AutoResolveLost(t *testing.T) {
	svc, _, crmClient := newTestService(t)

	prev := snap(10, 7, 91, "open")
	curr := snap(10, 7, 91, "open")
	curr["f7767455d77a063bc765e0b323813f513bcca2f9"] = "Went with competitor"

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Disposition != DispositionAutoResolved {
		t.Fatalf("disposition = %s, want %s", res.Disposition, DispositionAutoResolved)
	}
	if len(crmClient.updates) != 1 || crmClient.updates[0]["status"] != "lost" {
		t.Fatalf("updates = %+v, want status lost", crmClient.updates)
	}
}

func TestProcessDealEvent_WonScoresBaseAndFastBonus(t *testing.T) {
	svc, store, _ := newTestService(t)

	prev := snap(11, 7, 95, "open")
	curr := snap(11, 7, 95, "won")
	curr["add_time"] = "2026-03-05 09:00:00"
	curr["won_time"] = "2026-03-10 11:00:00"

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if !res.WonScored {
		t.Fatal("WonScored = false, want true")
	}
	advances := store.entriesOfType(ledger.EventStageAdvance)
	if len(advances) != 1 || advances[0].Points != 200 {
		t.Fatalf("base win entries = %+v, want one worth 200", advances)
	}
	fast := store.entriesOfType(ledger.EventBonusWonFast)
	if len(fast) != 1 || fast[0].Points != 50 {
		t.Fatalf("fast-win entries = %+v, want one worth 50", fast)
	}
	if !strings.Contains(fast[0].Note, "5 days") {
		t.Fatalf("fast-win note = %q, want elapsed days", fast[0].Note)
	}
	var won bool
	for _, n := range res.Notifications {
		if _, ok := n.(events.DealWon); ok {
			won = true
		}
	}
	if !won {
		t.Fatal("expected a DealWon notification")
	}
}

func TestProcessDealEvent_SlowWinGetsNoFastBonus(t *testing.T) {
	svc, store, _ := newTestService(t)

	prev := snap(12, 7, 95, "open")
	curr := snap(12, 7, 95, "won")
	curr["add_time"] = "2026-01-02 09:00:00"
	curr["won_time"] = "2026-03-10 11:00:00"

	if _, err := svc.ProcessDealEvent(context.Background(), prev, curr); err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if got := store.entriesOfType(ledger.EventBonusWonFast); len(got) != 0 {
		t.Fatalf("fast-win entries = %+v, want none past threshold", got)
	}
	if got := store.entriesOfType(ledger.EventStageAdvance); len(got) != 1 || got[0].Points != 200 {
		t.Fatalf("base win entries = %+v, want one worth 200", got)
	}
}

func TestProcessDealEvent_WonRedeliveryIsNoop(t *testing.T) {
	svc, store, _ := newTestService(t)

	prev := snap(13, 7, 95, "open")
	curr := snap(13, 7, 95, "won")
	curr["add_time"] = "2026-03-05 09:00:00"
	curr["won_time"] = "2026-03-10 11:00:00"

	if _, err := svc.ProcessDealEvent(context.Background(), prev, curr); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	before := len(store.entries)
	if _, err := svc.ProcessDealEvent(context.Background(), prev, curr); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if len(store.entries) != before {
		t.Fatalf("redelivered win added entries: %d -> %d", before, len(store.entries))
	}
}

func TestProcessDealEvent_LeadIntakeSameDayBonus(t *testing.T) {
	svc, store, crmClient := newTestService(t)

	prev := snap(14, 7, 90, "open")
	curr := snap(14, 7, 91, "open")
	curr["add_time"] = "2026-03-10 08:30:00"
	curr["update_time"] = "2026-03-10 16:45:00"
	full := snap(14, 7, 91, "open")
	full["a46e8e4a3b0ec6d6dfe820ace2a80721f7078725"] = "Q1 answered"
	full["aceebe87f042b5cdb1915ceeb604277dbd0072b7"] = "Q2 answered"
	crmClient.deal = full

	if _, err := svc.ProcessDealEvent(context.Background(), prev, curr); err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	bonus := store.entriesOfType(ledger.EventBonusLeadIntakeSameDay)
	if len(bonus) != 1 || bonus[0].Points != 5 {
		t.Fatalf("lead intake bonus = %+v, want one worth 5", bonus)
	}
}

func TestProcessDealEvent_LeadIntakeNextDayNoBonus(t *testing.T) {
	svc, store, crmClient := newTestService(t)

	prev := snap(15, 7, 90, "open")
	curr := snap(15, 7, 91, "open")
	curr["add_time"] = "2026-03-09 18:00:00"
	curr["update_time"] = "2026-03-10 09:00:00"
	full := snap(15, 7, 91, "open")
	full["a46e8e4a3b0ec6d6dfe820ace2a80721f7078725"] = "Q1"
	full["aceebe87f042b5cdb1915ceeb604277dbd0072b7"] = "Q2"
	crmClient.deal = full

	if _, err := svc.ProcessDealEvent(context.Background(), prev, curr); err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if got := store.entriesOfType(ledger.EventBonusLeadIntakeSameDay); len(got) != 0 {
		t.Fatalf("lead intake bonus = %+v, want none across days", got)
	}
}

func TestProcessDealEvent_ProposalPaymentSameDayBonus(t *testing.T) {
	svc, store, crmClient := newTestService(t)

	prev := snap(16, 7, 94, "open")
	prev["stage_change_time"] = "2026-03-10 09:00:00"
	curr := snap(16, 7, 95, "open")
	curr["update_time"] = "2026-03-10 15:00:00"
	curr["c61044a44d813064e799a96c88cb55bca465d04e"] = float64(90)
	full := snap(16, 7, 95, "open")
	full["c61044a44d813064e799a96c88cb55bca465d04e"] = float64(90)
	crmClient.deal = full

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Disposition != DispositionAccepted {
		t.Fatalf("disposition = %s, want %s", res.Disposition, DispositionAccepted)
	}
	advances := store.entriesOfType(ledger.EventStageAdvance)
	if len(advances) != 1 || advances[0].Points != 100 {
		t.Fatalf("advance entries = %+v, want one worth 100", advances)
	}
	bonus := store.entriesOfType(ledger.EventBonusProposalPaymentSameDay)
	if len(bonus) != 1 || bonus[0].Points != 25 {
		t.Fatalf("proposal bonus = %+v, want one worth 25", bonus)
	}
}

func TestProcessDealEvent_MilestoneCreditedOnce(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.totals[7] = 900

	prev := snap(17, 7, 95, "open")
	curr := snap(17, 7, 95, "won")
	curr["add_time"] = "2026-01-02 09:00:00"
	curr["won_time"] = "2026-03-10 11:00:00"

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	// 900 + 200 = 1100, across Bronze, short of Silver.
	if !store.milestones[milestoneKey(7, "Bronze")] {
		t.Fatal("Bronze milestone not recorded")
	}
	if store.milestones[milestoneKey(7, "Silver")] {
		t.Fatal("Silver must not be recorded at 1100 points")
	}
	var reached []events.MilestoneReached
	for _, n := range res.Notifications {
		if m, ok := n.(events.MilestoneReached); ok {
			reached = append(reached, m)
		}
	}
	if len(reached) != 1 || reached[0].Rank != "Bronze" || reached[0].Score != 1100 {
		t.Fatalf("milestone notifications = %+v, want one Bronze at 1100", reached)
	}
}

func TestProcessDealEvent_MilestoneNotRepeated(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.totals[7] = 1100
	store.milestones[milestoneKey(7, "Bronze")] = true

	prev := snap(18, 7, 95, "open")
	curr := snap(18, 7, 95, "won")
	curr["add_time"] = "2026-01-02 09:00:00"
	curr["won_time"] = "2026-03-10 11:00:00"

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if len(res.Outcome.Milestones) != 0 {
		t.Fatalf("milestones = %+v, want none below the next threshold", res.Outcome.Milestones)
	}
}

func TestProcessDealEvent_RevivalRestoresSuspension(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.entries = append(store.entries, ledger.Entry{
		DealID:    19,
		UserID:    7,
		EventType: ledger.EventDealRottedSuspension,
		Points:    -40,
		Note:      "Deal rotted in stage: 4. Design Intake Completed",
	})

	prev := snap(19, 7, 93, "open")
	prev["rotten"] = true
	curr := snap(19, 7, 93, "open")
	curr["rotten"] = false

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if !res.Revived {
		t.Fatal("Revived = false, want true")
	}
	revived := store.entriesOfType(ledger.EventDealRevived)
	if len(revived) != 1 || revived[0].Points != 40 {
		t.Fatalf("revival entries = %+v, want one crediting 40", revived)
	}
}

func TestProcessDealEvent_RevivalWithoutSuspensionIsNoop(t *testing.T) {
	svc, store, _ := newTestService(t)

	prev := snap(20, 7, 93, "open")
	prev["rotten"] = true
	curr := snap(20, 7, 93, "open")

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Revived || len(store.entries) != 0 {
		t.Fatalf("nothing to revive: entries = %+v", store.entries)
	}
}

func TestProcessDealEvent_RevivalBelowMinimumStage(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.entries = append(store.entries, ledger.Entry{
		DealID:    21,
		UserID:    7,
		EventType: ledger.EventDealRottedSuspension,
		Points:    -30,
	})

	// Stage 92 has order 4, below the revival minimum of 5.
	prev := snap(21, 7, 92, "open")
	prev["rotten"] = true
	curr := snap(21, 7, 92, "open")

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Revived {
		t.Fatal("deal below revival minimum must not be credited")
	}
	if got := store.entriesOfType(ledger.EventDealRevived); len(got) != 0 {
		t.Fatalf("revival entries = %+v, want none", got)
	}
}

func TestProcessDealEvent_RevivalOnlyOnce(t *testing.T) {
	svc, store, _ := newTestService(t)
	store.entries = append(store.entries,
		ledger.Entry{DealID: 22, UserID: 7, EventType: ledger.EventDealRottedSuspension, Points: -40},
		ledger.Entry{DealID: 22, UserID: 7, EventType: ledger.EventDealRevived, Points: 40},
	)

	prev := snap(22, 7, 93, "open")
	prev["rotten"] = true
	curr := snap(22, 7, 93, "open")

	res, err := svc.ProcessDealEvent(context.Background(), prev, curr)
	if err != nil {
		t.Fatalf("ProcessDealEvent: %v", err)
	}
	if res.Revived {
		t.Fatal("second revival must not fire")
	}
}

func TestRunDecaySweep(t *testing.T) {
	svc, store, crmClient := newTestService(t)
	store.entries = append(store.entries, ledger.Entry{
		DealID:    31,
		UserID:    7,
		EventType: ledger.EventDealRottedSuspension,
		Points:    -40,
	})

	crmClient.stale = []crm.Snapshot{
		snap(30, 7, 93, "open"),  // penalizable, -40
		snap(31, 7, 93, "open"),  // already penalized
		snap(32, 8, 99, "open"),  // zero-point stage
		snap(33, 8, 777, "open"), // unknown stage
	}

	res, err := svc.RunDecaySweep(context.Background())
	if err != nil {
		t.Fatalf("RunDecaySweep: %v", err)
	}
	if res.Checked != 4 {
		t.Fatalf("Checked = %d, want 4", res.Checked)
	}
	if res.Penalized != 1 {
		t.Fatalf("Penalized = %d, want 1", res.Penalized)
	}
	var penalty *ledger.Entry
	for i := range store.entries {
		if store.entries[i].DealID == 30 {
			penalty = &store.entries[i]
		}
	}
	if penalty == nil || penalty.Points != -40 {
		t.Fatalf("penalty for deal 30 = %+v, want -40", penalty)
	}
	if len(res.Notifications) != 1 {
		t.Fatalf("notifications = %d, want 1", len(res.Notifications))
	}
}

func TestRunDecaySweep_Rerun(t *testing.T) {
	svc, store, crmClient := newTestService(t)
	crmClient.stale = []crm.Snapshot{snap(40, 7, 93, "open")}

	if _, err := svc.RunDecaySweep(context.Background()); err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	res, err := svc.RunDecaySweep(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if res.Penalized != 0 {
		t.Fatalf("Penalized = %d on rerun, want 0", res.Penalized)
	}
	if got := store.entriesOfType(ledger.EventDealRottedSuspension); len(got) != 1 {
		t.Fatalf("suspension entries = %d, want exactly 1", len(got))
	}
}
