// Package reconcile re-derives "current total since last reset" from a window
// of append-only tally events. It is a pure function of its input: no clock,
// no store, no hidden state, so the calendar view can recompute history
// independently of the live aggregates and always get the same answer.
package reconcile

import (
	"time"

	"tally-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

// Entry annotates one event in the ordered ledger. Increments that fall on or
// before their servant's reset cutoff are still listed for audit, marked as
// excluded from the total.
type Entry struct {
	Event domain.TallyEvent `json:"event"`
	// Included is true for increments that count toward the total. It is
	// always false for reset entries.
	Included bool `json:"included"`
	// Running is the effective grand total after this entry, in
	// chronological order.
	Running int64 `json:"running"`
}

// Result is the outcome of reconciling one window of events.
type Result struct {
	// Totals maps servant ID to the effective total since that servant's
	// last applicable reset.
	Totals map[string]int64 `json:"totals"`
	// GrandTotal is the sum of all servant totals in the window.
	GrandTotal int64 `json:"grand_total"`
	// Ledger lists every valid event in the window, newest first.
	Ledger []Entry `json:"ledger"`
	// Skipped counts malformed records dropped from the window.
	Skipped int `json:"skipped"`
}

// cutoff is a reset horizon. Ties on identical timestamps are broken by input
// position: the record seen later in the window wins, so a tie can never
// double-count or double-exclude an increment.
type cutoff struct {
	at  time.Time
	pos int
	set bool
}

func (c cutoff) before(other cutoff) bool {
	if !c.set {
		return other.set
	}
	if !other.set {
		return false
	}
	if c.at.Equal(other.at) {
		return c.pos < other.pos
	}
	return c.at.Before(other.at)
}

func laterCutoff(a, b cutoff) cutoff {
	if a.before(b) {
		return b
	}
	return a
}

// Reconcile computes effective per-servant totals and the ordered ledger for
// one window of events. The window must be in ascending timestamp order, the
// order the log was written in. Calling it twice on the same input yields
// identical output.
func Reconcile(events []domain.TallyEvent) Result {
	valid := make([]domain.TallyEvent, 0, len(events))
	skipped := 0
	for _, evt := range events {
		if err := evt.Validate(); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"event_id":  evt.ID,
				"temple_id": evt.TempleID,
				"kind":      evt.Kind,
			}).Warn("Skipping malformed event during reconciliation")
			skipped++
			continue
		}
		valid = append(valid, evt)
	}

	// Pass 1: discover the reset horizon. A single authority reset applies
	// to every servant in the window; individual resets apply only to their
	// own servant.
	var authority cutoff
	individual := make(map[string]cutoff)
	for i, evt := range valid {
		switch evt.Kind {
		case domain.KindResetAuthority:
			authority = laterCutoff(authority, cutoff{at: evt.Timestamp, pos: i, set: true})
		case domain.KindResetIndividual:
			individual[evt.ServantID] = laterCutoff(individual[evt.ServantID], cutoff{at: evt.Timestamp, pos: i, set: true})
		}
	}

	// Pass 2: an increment counts iff its timestamp is strictly after the
	// servant's effective cutoff, which is the later of the tenant-wide
	// authority reset and the servant's own reset. Resets themselves never
	// contribute to the numeric total.
	totals := make(map[string]int64)
	ledger := make([]Entry, 0, len(valid))
	var grand int64
	for _, evt := range valid {
		entry := Entry{Event: evt}
		if evt.Kind == domain.KindIncrement {
			cut := laterCutoff(authority, individual[evt.ServantID])
			if !cut.set || evt.Timestamp.After(cut.at) {
				entry.Included = true
				totals[evt.ServantID] += evt.Amount
				grand += evt.Amount
			} else if _, seen := totals[evt.ServantID]; !seen {
				totals[evt.ServantID] = 0
			}
		}
		entry.Running = grand
		ledger = append(ledger, entry)
	}

	// Ledger is displayed newest first.
	for i, j := 0, len(ledger)-1; i < j; i, j = i+1, j-1 {
		ledger[i], ledger[j] = ledger[j], ledger[i]
	}

	return Result{
		Totals:     totals,
		GrandTotal: grand,
		Ledger:     ledger,
		Skipped:    skipped,
	}
}

// ReconcileServant reconciles the window scoped to a single servant. Authority
// resets in the window still apply to the servant even though they are
// recorded against other servant IDs, so they are kept before filtering.
func ReconcileServant(events []domain.TallyEvent, servantID string) Result {
	scoped := make([]domain.TallyEvent, 0, len(events))
	for _, evt := range events {
		if evt.ServantID == servantID || evt.Kind == domain.KindResetAuthority {
			scoped = append(scoped, evt)
		}
	}
	res := Reconcile(scoped)

	// Drop foreign authority-reset markers from the ledger and totals so the
	// result reads as a single-servant view.
	ledger := res.Ledger[:0]
	for _, entry := range res.Ledger {
		if entry.Event.ServantID != servantID && entry.Event.Kind != domain.KindResetAuthority {
			continue
		}
		ledger = append(ledger, entry)
	}
	res.Ledger = ledger
	for id := range res.Totals {
		if id != servantID {
			delete(res.Totals, id)
		}
	}
	res.GrandTotal = res.Totals[servantID]
	return res
}
