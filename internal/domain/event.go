package domain

import (
	"errors"
	"fmt"
	"time"
)

// Event kinds recorded in the append-only tally log.
const (
	KindIncrement       = "increment"
	KindResetIndividual = "reset_individual"
	KindResetAuthority  = "reset_authority"
)

var (
	ErrMalformedEvent = errors.New("malformed tally event")
	ErrInvalidAmount  = errors.New("increment amount must be a positive integer")
)

// TallyEvent is one immutable record in a temple's log. Events are appended by
// the write path at commit time and never mutated or deleted afterwards.
type TallyEvent struct {
	ID          string    `json:"id"`
	TempleID    string    `json:"temple_id"`
	ServantID   string    `json:"servant_id"`
	ServantName string    `json:"servant_name"`
	Kind        string    `json:"kind"`
	Amount      int64     `json:"amount,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	// ResetBy identifies the authority principal for authority-wide resets.
	ResetBy string `json:"reset_by,omitempty"`
	// PreviousAmount snapshots the total immediately before a reset. It is
	// informational only and never feeds back into totals math.
	PreviousAmount *int64 `json:"previous_amount,omitempty"`
}

// Validate checks the per-kind schema of an event. Reconciliation skips
// records that fail validation instead of aborting the whole window.
func (e TallyEvent) Validate() error {
	if e.ServantID == "" {
		return fmt.Errorf("%w: missing servant id", ErrMalformedEvent)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrMalformedEvent)
	}
	switch e.Kind {
	case KindIncrement:
		if e.Amount <= 0 {
			return fmt.Errorf("%w: increment with non-positive amount %d", ErrMalformedEvent, e.Amount)
		}
	case KindResetIndividual:
	case KindResetAuthority:
		if e.ResetBy == "" {
			return fmt.Errorf("%w: authority reset without actor identity", ErrMalformedEvent)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, e.Kind)
	}
	return nil
}

// IsReset reports whether the event zeroes a counter rather than adding to it.
func (e TallyEvent) IsReset() bool {
	return e.Kind == KindResetIndividual || e.Kind == KindResetAuthority
}

// Day returns the UTC calendar date bucket of the event. Day bucketing is UTC
// everywhere: the write path, the range queries and the calendar view must
// agree on it.
func (e TallyEvent) Day() string {
	return e.Timestamp.UTC().Format(DayLayout)
}

// DayLayout is the ISO date layout used for calendar buckets.
const DayLayout = "2006-01-02"
