package reconcile

import (
	"reflect"
	"testing"
	"time"

	"tally-service/internal/domain"
)

var base = time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func inc(id, servant string, amount int64, ts time.Time) domain.TallyEvent {
	return domain.TallyEvent{
		ID:          id,
		TempleID:    "TPL1",
		ServantID:   servant,
		ServantName: "Servant " + servant,
		Kind:        domain.KindIncrement,
		Amount:      amount,
		Timestamp:   ts,
	}
}

func resetInd(id, servant string, prev int64, ts time.Time) domain.TallyEvent {
	return domain.TallyEvent{
		ID:             id,
		TempleID:       "TPL1",
		ServantID:      servant,
		Kind:           domain.KindResetIndividual,
		Timestamp:      ts,
		PreviousAmount: &prev,
	}
}

func resetAuth(id, servant, actor string, ts time.Time) domain.TallyEvent {
	return domain.TallyEvent{
		ID:        id,
		TempleID:  "TPL1",
		ServantID: servant,
		Kind:      domain.KindResetAuthority,
		ResetBy:   actor,
		Timestamp: ts,
	}
}

func TestReconcile_NoResets(t *testing.T) {
	res := Reconcile([]domain.TallyEvent{
		inc("e1", "s1", 2, at(0)),
		inc("e2", "s2", 5, at(1)),
		inc("e3", "s1", 3, at(2)),
	})

	if res.Totals["s1"] != 5 || res.Totals["s2"] != 5 {
		t.Fatalf("totals = %v, want s1=5 s2=5", res.Totals)
	}
	if res.GrandTotal != 10 {
		t.Fatalf("grand total = %d, want 10", res.GrandTotal)
	}
	if len(res.Ledger) != 3 {
		t.Fatalf("ledger has %d entries, want 3", len(res.Ledger))
	}
	if res.Ledger[0].Event.ID != "e3" {
		t.Fatalf("ledger[0] = %s, want newest event e3", res.Ledger[0].Event.ID)
	}
}

func TestReconcile_AuthorityResetCutsEarlierIncrements(t *testing.T) {
	// Increments 3, 4, 5 at t1 < t2 < t3 with an authority reset at t2:
	// only the t3 increment survives.
	res := Reconcile([]domain.TallyEvent{
		inc("e1", "s1", 3, at(1)),
		inc("e2", "s1", 4, at(2)),
		resetAuth("r1", "s1", "boss@temple", at(2)),
		inc("e3", "s1", 5, at(3)),
	})

	if res.Totals["s1"] != 5 {
		t.Fatalf("total = %d, want 5", res.Totals["s1"])
	}
	if res.GrandTotal != 5 {
		t.Fatalf("grand total = %d, want 5", res.GrandTotal)
	}
}

func TestReconcile_AuthorityResetAppliesToAllServants(t *testing.T) {
	// The authority reset is recorded against s1 but cuts off s2 as well.
	res := Reconcile([]domain.TallyEvent{
		inc("e1", "s1", 3, at(1)),
		inc("e2", "s2", 7, at(2)),
		resetAuth("r1", "s1", "boss@temple", at(3)),
		inc("e3", "s2", 2, at(4)),
	})

	if res.Totals["s1"] != 0 {
		t.Fatalf("s1 total = %d, want 0", res.Totals["s1"])
	}
	if res.Totals["s2"] != 2 {
		t.Fatalf("s2 total = %d, want 2", res.Totals["s2"])
	}
}

func TestReconcile_IndividualVsAuthorityPrecedence(t *testing.T) {
	// s1 has an individual reset after the authority reset; s2 is cut off
	// only by the authority reset. cutoff(s) = max(T_auth, T_ind[s]).
	res := Reconcile([]domain.TallyEvent{
		inc("e1", "s1", 10, at(0)),
		inc("e2", "s2", 10, at(0)),
		resetAuth("r1", "s1", "boss@temple", at(1)),
		inc("e3", "s1", 4, at(2)),
		inc("e4", "s2", 6, at(2)),
		resetInd("r2", "s1", 4, at(3)),
		inc("e5", "s1", 1, at(4)),
	})

	if res.Totals["s1"] != 1 {
		t.Fatalf("s1 total = %d, want 1 (individual reset is later)", res.Totals["s1"])
	}
	if res.Totals["s2"] != 6 {
		t.Fatalf("s2 total = %d, want 6 (authority cutoff only)", res.Totals["s2"])
	}
}

func TestReconcile_SameInstantTieBreak(t *testing.T) {
	// Authority and individual reset share one timestamp. The record seen
	// later in the window wins; either way the increment strictly after the
	// shared instant still counts exactly once.
	events := []domain.TallyEvent{
		inc("e1", "s1", 9, at(0)),
		resetInd("r1", "s1", 9, at(1)),
		resetAuth("r2", "s1", "boss@temple", at(1)),
		inc("e2", "s1", 2, at(2)),
	}

	res := Reconcile(events)
	if res.Totals["s1"] != 2 {
		t.Fatalf("total = %d, want 2", res.Totals["s1"])
	}

	// Swapped order of the tied resets must not change the outcome.
	swapped := []domain.TallyEvent{events[0], events[2], events[1], events[3]}
	res2 := Reconcile(swapped)
	if res2.Totals["s1"] != 2 {
		t.Fatalf("total after swap = %d, want 2", res2.Totals["s1"])
	}
}

func TestReconcile_IncrementAtCutoffExcluded(t *testing.T) {
	// Strictly-greater rule: an increment sharing the reset's timestamp does
	// not count.
	res := Reconcile([]domain.TallyEvent{
		inc("e1", "s1", 5, at(1)),
		resetInd("r1", "s1", 5, at(2)),
		inc("e2", "s1", 3, at(2)),
	})

	if res.Totals["s1"] != 0 {
		t.Fatalf("total = %d, want 0", res.Totals["s1"])
	}
}

func TestReconcile_MalformedEventsSkipped(t *testing.T) {
	res := Reconcile([]domain.TallyEvent{
		inc("e1", "s1", 2, at(0)),
		{ID: "bad", TempleID: "TPL1", ServantID: "s1", Kind: domain.KindIncrement, Amount: 4}, // no timestamp
		inc("e2", "s1", 3, at(1)),
	})

	if res.Totals["s1"] != 5 {
		t.Fatalf("total = %d, want 5", res.Totals["s1"])
	}
	if res.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", res.Skipped)
	}
	if len(res.Ledger) != 2 {
		t.Fatalf("ledger has %d entries, want 2", len(res.Ledger))
	}
}

func TestReconcile_ScenarioLedger(t *testing.T) {
	// [Inc(2), Inc(3), ResetIndividual, Inc(4)] -> total 4, 4 ledger
	// entries, reset entry carries previous amount 5, excluded increments
	// still shown.
	res := ReconcileServant([]domain.TallyEvent{
		inc("e1", "s1", 2, at(1)),
		inc("e2", "s1", 3, at(2)),
		resetInd("r1", "s1", 5, at(3)),
		inc("e3", "s1", 4, at(4)),
	}, "s1")

	if res.GrandTotal != 4 {
		t.Fatalf("grand total = %d, want 4", res.GrandTotal)
	}
	if len(res.Ledger) != 4 {
		t.Fatalf("ledger has %d entries, want 4", len(res.Ledger))
	}

	// Newest first: e3, r1, e2, e1.
	if res.Ledger[0].Event.ID != "e3" || !res.Ledger[0].Included {
		t.Fatalf("ledger[0] = %+v, want included e3", res.Ledger[0])
	}
	resetEntry := res.Ledger[1]
	if resetEntry.Event.Kind != domain.KindResetIndividual {
		t.Fatalf("ledger[1] kind = %s, want reset", resetEntry.Event.Kind)
	}
	if resetEntry.Event.PreviousAmount == nil || *resetEntry.Event.PreviousAmount != 5 {
		t.Fatalf("reset previous amount = %v, want 5", resetEntry.Event.PreviousAmount)
	}
	for _, idx := range []int{2, 3} {
		if res.Ledger[idx].Included {
			t.Fatalf("ledger[%d] (%s) marked included, want excluded", idx, res.Ledger[idx].Event.ID)
		}
	}
}

func TestReconcile_RunningTotals(t *testing.T) {
	res := Reconcile([]domain.TallyEvent{
		inc("e1", "s1", 2, at(1)),
		resetInd("r1", "s1", 2, at(2)),
		inc("e2", "s1", 4, at(3)),
		inc("e3", "s1", 1, at(4)),
	})

	// Chronological running totals are 0, 0, 4, 5; ledger is newest first.
	want := []int64{5, 4, 0, 0}
	for i, entry := range res.Ledger {
		if entry.Running != want[i] {
			t.Fatalf("ledger[%d].Running = %d, want %d", i, entry.Running, want[i])
		}
	}
}

func TestReconcile_Deterministic(t *testing.T) {
	events := []domain.TallyEvent{
		inc("e1", "s1", 3, at(1)),
		resetAuth("r1", "s1", "boss@temple", at(2)),
		inc("e2", "s2", 4, at(3)),
		resetInd("r2", "s2", 4, at(4)),
		inc("e3", "s2", 6, at(5)),
	}

	first := Reconcile(events)
	second := Reconcile(events)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reconcile is not idempotent:\nfirst  = %+v\nsecond = %+v", first, second)
	}
}

func TestReconcileServant_FiltersOtherServants(t *testing.T) {
	res := ReconcileServant([]domain.TallyEvent{
		inc("e1", "s1", 2, at(1)),
		inc("e2", "s2", 9, at(2)),
		resetAuth("r1", "s2", "boss@temple", at(3)),
		inc("e3", "s1", 4, at(4)),
	}, "s1")

	if res.GrandTotal != 4 {
		t.Fatalf("grand total = %d, want 4 (authority reset still applies)", res.GrandTotal)
	}
	if _, ok := res.Totals["s2"]; ok {
		t.Fatal("totals leaked another servant into single-servant scope")
	}
	for _, entry := range res.Ledger {
		if entry.Event.Kind == domain.KindIncrement && entry.Event.ServantID != "s1" {
			t.Fatalf("ledger leaked increment for %s", entry.Event.ServantID)
		}
	}
}
