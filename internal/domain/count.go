package domain

import (
	"errors"
	"time"
)

var (
	ErrCountNotFound = errors.New("count not found")

	// ErrConcurrentUpdateConflict signals that the aggregate changed between
	// read and write inside a transaction. The write path retries a bounded
	// number of times before surfacing ErrTransientWriteFailure.
	ErrConcurrentUpdateConflict = errors.New("concurrent update conflict")
	ErrTransientWriteFailure    = errors.New("transient write failure, retries exhausted")

	// ErrPartialResetFailure means the batch reset could not be committed
	// atomically. State is guaranteed unchanged when it is returned.
	ErrPartialResetFailure = errors.New("authority reset could not be committed atomically")
)

// Count is the live aggregate for one servant in one temple. It is mutated
// only by the increment write path and the reset executors; the calendar view
// re-derives the same number independently from the event log.
type Count struct {
	TempleID     string    `json:"temple_id"`
	ServantID    string    `json:"servant_id"`
	Name         string    `json:"name"`
	CurrentTotal int64     `json:"current_total"`
	LastUpdated  time.Time `json:"last_updated"`
}

// Snapshot is the full current state of a temple's counts, pushed to live
// dashboard subscribers on every committed change.
type Snapshot struct {
	TempleID string    `json:"temple_id"`
	Total    int64     `json:"total"`
	Counts   []Count   `json:"counts"`
	At       time.Time `json:"at"`
}
