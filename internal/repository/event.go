package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tally-service/internal/domain"

	log "github.com/sirupsen/logrus"

	_ "github.com/lib/pq"
)

// execer is satisfied by both *sql.DB and *sql.Tx so event appends can join
// the write path's transaction.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

type postgresEventRepository struct {
	db *sql.DB
}

func NewPostgresEventRepository(db *sql.DB) *postgresEventRepository {
	return &postgresEventRepository{db: db}
}

// append writes one event inside the given transaction. The log is
// append-only: there is no update or delete path anywhere in this repository.
func appendEvent(ctx context.Context, tx execer, evt domain.TallyEvent) error {
	query := `
		INSERT INTO tally_events (
			id, temple_id, servant_id, servant_name,
			kind, amount, ts, reset_by, previous_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	var amount sql.NullInt64
	if evt.Kind == domain.KindIncrement {
		amount = sql.NullInt64{Int64: evt.Amount, Valid: true}
	}
	var resetBy sql.NullString
	if evt.ResetBy != "" {
		resetBy = sql.NullString{String: evt.ResetBy, Valid: true}
	}
	var previous sql.NullInt64
	if evt.PreviousAmount != nil {
		previous = sql.NullInt64{Int64: *evt.PreviousAmount, Valid: true}
	}

	if _, err := tx.ExecContext(ctx, query,
		evt.ID,
		evt.TempleID,
		evt.ServantID,
		evt.ServantName,
		evt.Kind,
		amount,
		evt.Timestamp,
		resetBy,
		previous,
	); err != nil {
		return fmt.Errorf("failed to append tally event: %w", err)
	}
	return nil
}

// ListRange returns all events for a temple with timestamps in [from, to),
// in ascending commit order. Ascending order is what the reconciliation
// engine expects.
func (r *postgresEventRepository) ListRange(ctx context.Context, templeID string, from, to time.Time) ([]domain.TallyEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
		SELECT id, temple_id, servant_id, servant_name,
			kind, amount, ts, reset_by, previous_amount
		FROM tally_events
		WHERE temple_id = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, templeID, from, to)
	if err != nil {
		log.WithError(err).WithField("temple_id", templeID).Error("Failed to list tally events")
		return nil, fmt.Errorf("failed to list tally events: %w", err)
	}
	defer rows.Close()

	var events []domain.TallyEvent
	for rows.Next() {
		var evt domain.TallyEvent
		var amount, previous sql.NullInt64
		var resetBy sql.NullString

		err := rows.Scan(
			&evt.ID,
			&evt.TempleID,
			&evt.ServantID,
			&evt.ServantName,
			&evt.Kind,
			&amount,
			&evt.Timestamp,
			&resetBy,
			&previous,
		)
		if err != nil {
			log.WithError(err).Error("Failed to scan tally event row")
			return nil, fmt.Errorf("failed to scan tally event row: %w", err)
		}

		if amount.Valid {
			evt.Amount = amount.Int64
		}
		if resetBy.Valid {
			evt.ResetBy = resetBy.String
		}
		if previous.Valid {
			evt.PreviousAmount = &previous.Int64
		}

		events = append(events, evt)
	}

	return events, rows.Err()
}

// ListDay returns the events of one UTC calendar day in ascending order.
func (r *postgresEventRepository) ListDay(ctx context.Context, templeID string, day time.Time) ([]domain.TallyEvent, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return r.ListRange(ctx, templeID, start, start.AddDate(0, 0, 1))
}

// ListMonth returns the events of one calendar month in ascending order.
func (r *postgresEventRepository) ListMonth(ctx context.Context, templeID string, year int, month time.Month) ([]domain.TallyEvent, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return r.ListRange(ctx, templeID, start, start.AddDate(0, 1, 0))
}
