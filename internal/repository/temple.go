package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tally-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

type postgresTempleRepository struct {
	db *sql.DB
}

func NewPostgresTempleRepository(db *sql.DB) *postgresTempleRepository {
	return &postgresTempleRepository{db: db}
}

func (r *postgresTempleRepository) GetByID(ctx context.Context, id string) (*domain.Temple, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var temple domain.Temple
	query := `SELECT id, name, created_at FROM temples WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(&temple.ID, &temple.Name, &temple.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, domain.ErrTempleNotFound
	}
	if err != nil {
		log.WithError(err).WithField("temple_id", id).Error("Failed to get temple")
		return nil, fmt.Errorf("failed to get temple: %w", err)
	}

	return &temple, nil
}

// ensureTemple lazily creates the temple on first use inside the caller's
// transaction. An existing temple keeps its name.
func ensureTemple(ctx context.Context, tx execer, id, name string) error {
	query := `
		INSERT INTO temples (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, query, id, name, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to ensure temple: %w", err)
	}
	return nil
}
