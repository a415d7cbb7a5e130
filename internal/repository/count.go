package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tally-service/internal/domain"

	"github.com/google/uuid"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// maxWriteAttempts bounds the optimistic retry loop on serialization
// conflicts before the failure is surfaced to the caller.
const maxWriteAttempts = 3

type postgresCountRepository struct {
	db *sql.DB
}

func NewPostgresCountRepository(db *sql.DB) *postgresCountRepository {
	return &postgresCountRepository{db: db}
}

// isSerializationFailure reports whether the error is a Postgres
// serialization failure or deadlock, both of which are safe to retry after
// the implicit rollback.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// classifyWriteError maps a Postgres write failure onto the domain taxonomy.
// Retryable serialization failures surface as ErrConcurrentUpdateConflict;
// anything else passes through unchanged.
func classifyWriteError(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %v", domain.ErrConcurrentUpdateConflict, err)
	}
	return err
}

// ApplyIncrement atomically adds amount to the servant's aggregate (creating
// the row on first increment) and appends the matching increment event. Both
// happen in one transaction or not at all; the event's timestamp is the
// commit timestamp later used for ordering and day bucketing.
func (r *postgresCountRepository) ApplyIncrement(ctx context.Context, templeID, servantID, servantName string, amount int64) (int64, domain.TallyEvent, error) {
	if amount <= 0 {
		return 0, domain.TallyEvent{}, domain.ErrInvalidAmount
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		newTotal, evt, err := r.applyIncrementOnce(ctx, templeID, servantID, servantName, amount)
		if err == nil {
			return newTotal, evt, nil
		}
		classified := classifyWriteError(err)
		if !errors.Is(classified, domain.ErrConcurrentUpdateConflict) {
			log.WithError(err).WithFields(log.Fields{
				"temple_id":  templeID,
				"servant_id": servantID,
			}).Error("Failed to apply increment")
			return 0, domain.TallyEvent{}, fmt.Errorf("failed to apply increment: %w", err)
		}
		lastErr = classified
		log.WithError(err).WithFields(log.Fields{
			"temple_id":  templeID,
			"servant_id": servantID,
			"attempt":    attempt,
		}).Warn("Increment transaction conflicted, retrying")
	}

	return 0, domain.TallyEvent{}, fmt.Errorf("%w: %w", domain.ErrTransientWriteFailure, lastErr)
}

func (r *postgresCountRepository) applyIncrementOnce(ctx context.Context, templeID, servantID, servantName string, amount int64) (int64, domain.TallyEvent, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.TallyEvent{}, err
	}
	defer tx.Rollback()

	// The upsert serializes concurrent writers for the same servant on the
	// row lock, so two overlapping increments always land as a sum, never a
	// lost update. Writers for different servants touch different rows and
	// do not conflict.
	//
	// clock_timestamp() is evaluated when the locked update actually runs,
	// after any wait on the row lock. NOW() would be transaction start time
	// and could predate a reset that held the lock, making the log disagree
	// with the aggregate. The event reuses the returned value so both rows
	// carry the same instant.
	query := `
		INSERT INTO counts (temple_id, servant_id, name, current_total, last_updated)
		VALUES ($1, $2, $3, $4, clock_timestamp())
		ON CONFLICT (temple_id, servant_id) DO UPDATE SET
			current_total = counts.current_total + EXCLUDED.current_total,
			last_updated = clock_timestamp()
		RETURNING current_total, last_updated
	`

	var newTotal int64
	var now time.Time
	if err := tx.QueryRowContext(ctx, query, templeID, servantID, servantName, amount).Scan(&newTotal, &now); err != nil {
		return 0, domain.TallyEvent{}, err
	}
	now = now.UTC()

	evt := domain.TallyEvent{
		ID:          uuid.NewString(),
		TempleID:    templeID,
		ServantID:   servantID,
		ServantName: servantName,
		Kind:        domain.KindIncrement,
		Amount:      amount,
		Timestamp:   now,
	}
	if err := appendEvent(ctx, tx, evt); err != nil {
		return 0, domain.TallyEvent{}, err
	}

	if err := tx.Commit(); err != nil {
		return 0, domain.TallyEvent{}, err
	}
	return newTotal, evt, nil
}

// ResetIndividual zeroes one servant's aggregate and appends a
// reset_individual event carrying the pre-reset total, atomically.
func (r *postgresCountRepository) ResetIndividual(ctx context.Context, templeID, servantID string) (domain.TallyEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.TallyEvent{}, fmt.Errorf("failed to begin reset transaction: %w", err)
	}
	defer tx.Rollback()

	var name string
	var previous int64
	row := tx.QueryRowContext(ctx, `
		SELECT name, current_total FROM counts
		WHERE temple_id = $1 AND servant_id = $2
		FOR UPDATE
	`, templeID, servantID)
	if err := row.Scan(&name, &previous); err != nil {
		if err == sql.ErrNoRows {
			return domain.TallyEvent{}, domain.ErrCountNotFound
		}
		log.WithError(err).WithField("servant_id", servantID).Error("Failed to read count for reset")
		return domain.TallyEvent{}, fmt.Errorf("failed to read count for reset: %w", err)
	}

	// Stamped by the database clock with the row lock held, the same clock
	// the increment path uses.
	var now time.Time
	if err := tx.QueryRowContext(ctx, `
		UPDATE counts SET current_total = 0, last_updated = clock_timestamp()
		WHERE temple_id = $1 AND servant_id = $2
		RETURNING last_updated
	`, templeID, servantID).Scan(&now); err != nil {
		return domain.TallyEvent{}, fmt.Errorf("failed to zero count: %w", err)
	}
	now = now.UTC()

	evt := domain.TallyEvent{
		ID:             uuid.NewString(),
		TempleID:       templeID,
		ServantID:      servantID,
		ServantName:    name,
		Kind:           domain.KindResetIndividual,
		Timestamp:      now,
		PreviousAmount: &previous,
	}
	if err := appendEvent(ctx, tx, evt); err != nil {
		return domain.TallyEvent{}, err
	}

	if err := tx.Commit(); err != nil {
		return domain.TallyEvent{}, fmt.Errorf("failed to commit reset: %w", err)
	}

	log.WithFields(log.Fields{
		"temple_id":  templeID,
		"servant_id": servantID,
		"previous":   previous,
	}).Info("Individual count reset")
	return evt, nil
}

// ResetAuthority zeroes every aggregate in the temple and appends one
// reset_authority event per affected servant, stamped with the acting
// authority. The whole batch commits or none of it does; on any failure the
// transaction rolls back and state is exactly as before the attempt.
func (r *postgresCountRepository) ResetAuthority(ctx context.Context, templeID, actor string) (int, []domain.TallyEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrPartialResetFailure, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT servant_id, name, current_total FROM counts
		WHERE temple_id = $1
		ORDER BY servant_id
		FOR UPDATE
	`, templeID)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrPartialResetFailure, err)
	}

	type affected struct {
		servantID string
		name      string
		previous  int64
	}
	var counts []affected
	for rows.Next() {
		var a affected
		if err := rows.Scan(&a.servantID, &a.name, &a.previous); err != nil {
			rows.Close()
			return 0, nil, fmt.Errorf("%w: %v", domain.ErrPartialResetFailure, err)
		}
		counts = append(counts, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrPartialResetFailure, err)
	}
	rows.Close()

	if len(counts) == 0 {
		return 0, nil, nil
	}

	// All row locks are held at this point, so the database clock gives the
	// batch a single post-lock instant shared by every zeroed row and event.
	var now time.Time
	if err := tx.QueryRowContext(ctx, `SELECT clock_timestamp()`).Scan(&now); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrPartialResetFailure, err)
	}
	now = now.UTC()

	if _, err := tx.ExecContext(ctx, `
		UPDATE counts SET current_total = 0, last_updated = $2
		WHERE temple_id = $1
	`, templeID, now); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrPartialResetFailure, err)
	}

	events := make([]domain.TallyEvent, 0, len(counts))
	for _, a := range counts {
		previous := a.previous
		evt := domain.TallyEvent{
			ID:             uuid.NewString(),
			TempleID:       templeID,
			ServantID:      a.servantID,
			ServantName:    a.name,
			Kind:           domain.KindResetAuthority,
			Timestamp:      now,
			ResetBy:        actor,
			PreviousAmount: &previous,
		}
		if err := appendEvent(ctx, tx, evt); err != nil {
			return 0, nil, fmt.Errorf("%w: %v", domain.ErrPartialResetFailure, err)
		}
		events = append(events, evt)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", domain.ErrPartialResetFailure, err)
	}

	log.WithFields(log.Fields{
		"temple_id": templeID,
		"actor":     actor,
		"affected":  len(counts),
	}).Info("Authority reset committed")
	return len(counts), events, nil
}

// Create inserts a zero count for a newly registered servant inside the
// caller's transaction.
func createCount(ctx context.Context, tx execer, templeID, servantID, name string) error {
	query := `
		INSERT INTO counts (temple_id, servant_id, name, current_total, last_updated)
		VALUES ($1, $2, $3, 0, $4)
		ON CONFLICT (temple_id, servant_id) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, query, templeID, servantID, name, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to create count: %w", err)
	}
	return nil
}

// GetByServant returns one servant's live aggregate. A servant with no
// counter yet is reported as ErrCountNotFound; readers treat that as zero.
func (r *postgresCountRepository) GetByServant(ctx context.Context, templeID, servantID string) (*domain.Count, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var count domain.Count
	query := `
		SELECT temple_id, servant_id, name, current_total, last_updated
		FROM counts
		WHERE temple_id = $1 AND servant_id = $2
	`

	err := r.db.QueryRowContext(ctx, query, templeID, servantID).Scan(
		&count.TempleID,
		&count.ServantID,
		&count.Name,
		&count.CurrentTotal,
		&count.LastUpdated,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrCountNotFound
	}
	if err != nil {
		log.WithError(err).WithField("servant_id", servantID).Error("Failed to get count")
		return nil, fmt.Errorf("failed to get count: %w", err)
	}

	return &count, nil
}

// ListByTemple returns all live aggregates of a temple ordered by name.
func (r *postgresCountRepository) ListByTemple(ctx context.Context, templeID string) ([]domain.Count, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT temple_id, servant_id, name, current_total, last_updated
		FROM counts
		WHERE temple_id = $1
		ORDER BY name ASC, servant_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, templeID)
	if err != nil {
		log.WithError(err).WithField("temple_id", templeID).Error("Failed to list counts")
		return nil, fmt.Errorf("failed to list counts: %w", err)
	}
	defer rows.Close()

	var counts []domain.Count
	for rows.Next() {
		var count domain.Count
		err := rows.Scan(
			&count.TempleID,
			&count.ServantID,
			&count.Name,
			&count.CurrentTotal,
			&count.LastUpdated,
		)
		if err != nil {
			log.WithError(err).Error("Failed to scan count row")
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts = append(counts, count)
	}

	return counts, rows.Err()
}
