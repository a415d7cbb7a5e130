package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"tally-service/internal/domain"
	"tally-service/internal/metrics"
	"tally-service/internal/reconcile"
)

// EventStore is the read surface over the append-only log.
type EventStore interface {
	ListDay(ctx context.Context, templeID string, day time.Time) ([]domain.TallyEvent, error)
	ListMonth(ctx context.Context, templeID string, year int, month time.Month) ([]domain.TallyEvent, error)
}

// DayLedger is the detailed per-day view: reconciled totals plus the full
// ordered ledger, newest first.
type DayLedger struct {
	TempleID   string            `json:"temple_id"`
	Date       string            `json:"date"`
	GrandTotal int64             `json:"grand_total"`
	Totals     map[string]int64  `json:"totals"`
	Entries    []reconcile.Entry `json:"entries"`
	Skipped    int               `json:"skipped,omitempty"`
}

// ReportService reconstructs historical totals from the event log alone. It
// never reads the live aggregates, which is what lets the calendar agree with
// them: both views are derived from the same committed events.
type ReportService struct {
	events EventStore
}

func NewReportService(events EventStore) *ReportService {
	return &ReportService{events: events}
}

// DailyTotals reconstructs the calendar cells for one month. Events are
// partitioned by UTC day first and each day's partition is reconciled
// independently, so a reset affects only the day it occurred in and never
// carries across midnight.
func (s *ReportService) DailyTotals(ctx context.Context, templeID string, year int, month time.Month) (map[string]int64, error) {
	events, err := s.events.ListMonth(ctx, templeID, year, month)
	if err != nil {
		return nil, fmt.Errorf("failed to load month window: %w", err)
	}

	days := make(map[string][]domain.TallyEvent)
	for _, evt := range events {
		day := evt.Day()
		days[day] = append(days[day], evt)
	}

	totals := make(map[string]int64, len(days))
	for day, window := range days {
		res := reconcile.Reconcile(window)
		metrics.ReconcileRuns.Inc()
		metrics.MalformedEvents.Add(float64(res.Skipped))
		totals[day] = res.GrandTotal
	}
	return totals, nil
}

// DayLedger reconciles a single day and returns the ordered ledger for the
// detail view. date is an ISO calendar date (2006-01-02).
func (s *ReportService) DayLedger(ctx context.Context, templeID, date string) (*DayLedger, error) {
	day, err := time.ParseInLocation(domain.DayLayout, date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	events, err := s.events.ListDay(ctx, templeID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load day window: %w", err)
	}

	res := reconcile.Reconcile(events)
	metrics.ReconcileRuns.Inc()
	metrics.MalformedEvents.Add(float64(res.Skipped))

	return &DayLedger{
		TempleID:   templeID,
		Date:       date,
		GrandTotal: res.GrandTotal,
		Totals:     res.Totals,
		Entries:    res.Ledger,
		Skipped:    res.Skipped,
	}, nil
}

// ServantMonthTotal reconciles the whole month window scoped to one servant.
func (s *ReportService) ServantMonthTotal(ctx context.Context, templeID, servantID string, year int, month time.Month) (int64, error) {
	events, err := s.events.ListMonth(ctx, templeID, year, month)
	if err != nil {
		return 0, fmt.Errorf("failed to load month window: %w", err)
	}

	res := reconcile.ReconcileServant(events, servantID)
	metrics.ReconcileRuns.Inc()
	metrics.MalformedEvents.Add(float64(res.Skipped))
	return res.GrandTotal, nil
}

// csvTimeLayout matches the 12-hour clock the exports have always used.
const csvTimeLayout = "03:04:05 PM"

// ExportDayCSV renders the day ledger as the legacy spreadsheet export:
// header, leading TOTAL summary row, then one row per ledger entry, newest
// first. Reset entries appear as rows with a RESET marker and no amount.
func (s *ReportService) ExportDayCSV(ctx context.Context, templeID, date string) ([]byte, string, error) {
	ledger, err := s.DayLedger(ctx, templeID, date)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	records := [][]string{
		{"Time", "Servant", "Plates Count"},
		{"TOTAL", "", strconv.FormatInt(ledger.GrandTotal, 10)},
	}
	for _, entry := range ledger.Entries {
		evt := entry.Event
		ts := evt.Timestamp.UTC().Format(csvTimeLayout)
		switch evt.Kind {
		case domain.KindIncrement:
			records = append(records, []string{ts, evt.ServantName, strconv.FormatInt(evt.Amount, 10)})
		case domain.KindResetAuthority:
			records = append(records, []string{ts, fmt.Sprintf("RESET by %s (%s)", evt.ResetBy, evt.ServantName), ""})
		case domain.KindResetIndividual:
			records = append(records, []string{ts, fmt.Sprintf("RESET (%s)", evt.ServantName), ""})
		}
	}

	if err := w.WriteAll(records); err != nil {
		return nil, "", fmt.Errorf("failed to write csv: %w", err)
	}
	w.Flush()

	filename := fmt.Sprintf("prasad_count_%s.csv", date)
	return buf.Bytes(), filename, nil
}

// SortedDays returns the keys of a daily totals map in ascending order.
// Handy for stable rendering and tests.
func SortedDays(totals map[string]int64) []string {
	days := make([]string, 0, len(totals))
	for day := range totals {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}
