package service

import (
	"context"
	"testing"
	"time"

	"tally-service/internal/domain"
	"tally-service/internal/reconcile"
)

// fakeEventStore serves canned windows from an in-memory ascending log.
type fakeEventStore struct {
	events []domain.TallyEvent
}

func (f *fakeEventStore) listRange(from, to time.Time) []domain.TallyEvent {
	var out []domain.TallyEvent
	for _, evt := range f.events {
		if !evt.Timestamp.Before(from) && evt.Timestamp.Before(to) {
			out = append(out, evt)
		}
	}
	return out
}

func (f *fakeEventStore) ListDay(ctx context.Context, templeID string, day time.Time) ([]domain.TallyEvent, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return f.listRange(start, start.AddDate(0, 0, 1)), nil
}

func (f *fakeEventStore) ListMonth(ctx context.Context, templeID string, year int, month time.Month) ([]domain.TallyEvent, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return f.listRange(start, start.AddDate(0, 1, 0)), nil
}

func ts(day, hour, min, sec int) time.Time {
	return time.Date(2025, time.March, day, hour, min, sec, 0, time.UTC)
}

func incEvent(id, servant, name string, amount int64, at time.Time) domain.TallyEvent {
	return domain.TallyEvent{
		ID: id, TempleID: "TPL1", ServantID: servant, ServantName: name,
		Kind: domain.KindIncrement, Amount: amount, Timestamp: at,
	}
}

func authResetEvent(id, servant, name, actor string, prev int64, at time.Time) domain.TallyEvent {
	return domain.TallyEvent{
		ID: id, TempleID: "TPL1", ServantID: servant, ServantName: name,
		Kind: domain.KindResetAuthority, ResetBy: actor, Timestamp: at, PreviousAmount: &prev,
	}
}

func TestDailyTotals_PartitionsByDay(t *testing.T) {
	store := &fakeEventStore{events: []domain.TallyEvent{
		incEvent("e1", "s1", "Asha", 2, ts(9, 10, 0, 0)),
		incEvent("e2", "s2", "Ravi", 3, ts(9, 11, 0, 0)),
		incEvent("e3", "s1", "Asha", 4, ts(10, 8, 0, 0)),
	}}
	svc := NewReportService(store)

	totals, err := svc.DailyTotals(context.Background(), "TPL1", 2025, time.March)
	if err != nil {
		t.Fatalf("DailyTotals failed: %v", err)
	}

	if totals["2025-03-09"] != 5 {
		t.Fatalf("2025-03-09 total = %d, want 5", totals["2025-03-09"])
	}
	if totals["2025-03-10"] != 4 {
		t.Fatalf("2025-03-10 total = %d, want 4", totals["2025-03-10"])
	}
	if len(totals) != 2 {
		t.Fatalf("totals = %v, want exactly 2 days", totals)
	}
}

func TestDailyTotals_ResetScopedToItsDay(t *testing.T) {
	// The reset on the 9th wipes that day's earlier increments but does not
	// carry across midnight: the 10th still counts everything.
	store := &fakeEventStore{events: []domain.TallyEvent{
		incEvent("e1", "s1", "Asha", 7, ts(9, 10, 0, 0)),
		authResetEvent("r1", "s1", "Asha", "boss@temple", 7, ts(9, 12, 0, 0)),
		incEvent("e2", "s1", "Asha", 1, ts(9, 14, 0, 0)),
		incEvent("e3", "s1", "Asha", 6, ts(10, 8, 0, 0)),
	}}
	svc := NewReportService(store)

	totals, err := svc.DailyTotals(context.Background(), "TPL1", 2025, time.March)
	if err != nil {
		t.Fatalf("DailyTotals failed: %v", err)
	}

	if totals["2025-03-09"] != 1 {
		t.Fatalf("reset day total = %d, want 1", totals["2025-03-09"])
	}
	if totals["2025-03-10"] != 6 {
		t.Fatalf("day after reset total = %d, want 6", totals["2025-03-10"])
	}
}

func TestDailyTotals_AgreesWithSingleServantMonthTotal(t *testing.T) {
	// Summing every calendar cell of the month must match reconciling the
	// whole month's window for the only servant, as long as no cutoff
	// crosses midnight.
	store := &fakeEventStore{events: []domain.TallyEvent{
		incEvent("e1", "s1", "Asha", 2, ts(3, 9, 0, 0)),
		incEvent("e2", "s1", "Asha", 3, ts(3, 10, 0, 0)),
		incEvent("e3", "s1", "Asha", 5, ts(12, 9, 0, 0)),
		incEvent("e4", "s1", "Asha", 8, ts(21, 18, 0, 0)),
	}}
	svc := NewReportService(store)
	ctx := context.Background()

	totals, err := svc.DailyTotals(ctx, "TPL1", 2025, time.March)
	if err != nil {
		t.Fatalf("DailyTotals failed: %v", err)
	}
	var cellSum int64
	for _, day := range SortedDays(totals) {
		cellSum += totals[day]
	}

	monthTotal, err := svc.ServantMonthTotal(ctx, "TPL1", "s1", 2025, time.March)
	if err != nil {
		t.Fatalf("ServantMonthTotal failed: %v", err)
	}

	if cellSum != monthTotal {
		t.Fatalf("sum of daily cells = %d, month reconcile = %d; views disagree", cellSum, monthTotal)
	}
}

func TestDayLedger_GrandTotalAndOrdering(t *testing.T) {
	store := &fakeEventStore{events: []domain.TallyEvent{
		incEvent("e1", "s1", "Asha", 2, ts(10, 8, 5, 0)),
		incEvent("e2", "s2", "Ravi", 3, ts(10, 9, 10, 30)),
		authResetEvent("r1", "s1", "Asha", "boss@temple", 5, ts(10, 9, 30, 0)),
		incEvent("e3", "s1", "Asha", 4, ts(10, 10, 0, 0)),
	}}
	svc := NewReportService(store)

	ledger, err := svc.DayLedger(context.Background(), "TPL1", "2025-03-10")
	if err != nil {
		t.Fatalf("DayLedger failed: %v", err)
	}

	if ledger.GrandTotal != 4 {
		t.Fatalf("grand total = %d, want 4", ledger.GrandTotal)
	}
	if len(ledger.Entries) != 4 {
		t.Fatalf("ledger has %d entries, want 4", len(ledger.Entries))
	}
	if ledger.Entries[0].Event.ID != "e3" {
		t.Fatalf("ledger[0] = %s, want newest event e3", ledger.Entries[0].Event.ID)
	}

	var resetEntry *reconcile.Entry
	for i := range ledger.Entries {
		if ledger.Entries[i].Event.Kind == domain.KindResetAuthority {
			resetEntry = &ledger.Entries[i]
		}
	}
	if resetEntry == nil {
		t.Fatal("reset entry missing from ledger")
	}
	if resetEntry.Event.ResetBy != "boss@temple" {
		t.Fatalf("reset actor = %q, want boss@temple", resetEntry.Event.ResetBy)
	}
}

func TestDayLedger_InvalidDate(t *testing.T) {
	svc := NewReportService(&fakeEventStore{})
	if _, err := svc.DayLedger(context.Background(), "TPL1", "10-03-2025"); err == nil {
		t.Fatal("expected error for invalid date format")
	}
}

func TestExportDayCSV_LegacyLayout(t *testing.T) {
	store := &fakeEventStore{events: []domain.TallyEvent{
		incEvent("e1", "s1", "Asha", 2, ts(10, 8, 5, 0)),
		incEvent("e2", "s2", "Ravi", 3, ts(10, 9, 10, 30)),
		authResetEvent("r1", "s1", "Asha", "boss@temple", 5, ts(10, 9, 30, 0)),
		incEvent("e3", "s1", "Asha", 4, ts(10, 10, 0, 0)),
	}}
	svc := NewReportService(store)

	data, filename, err := svc.ExportDayCSV(context.Background(), "TPL1", "2025-03-10")
	if err != nil {
		t.Fatalf("ExportDayCSV failed: %v", err)
	}

	if filename != "prasad_count_2025-03-10.csv" {
		t.Fatalf("filename = %q, want prasad_count_2025-03-10.csv", filename)
	}

	want := "Time,Servant,Plates Count\n" +
		"TOTAL,,4\n" +
		"10:00:00 AM,Asha,4\n" +
		"09:30:00 AM,RESET by boss@temple (Asha),\n" +
		"09:10:30 AM,Ravi,3\n" +
		"08:05:00 AM,Asha,2\n"
	if string(data) != want {
		t.Fatalf("csv mismatch:\ngot:\n%s\nwant:\n%s", data, want)
	}
}
