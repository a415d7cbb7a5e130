package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tally-service/internal/domain"

	log "github.com/sirupsen/logrus"
)

type postgresProfileRepository struct {
	db *sql.DB
}

func NewPostgresProfileRepository(db *sql.DB) *postgresProfileRepository {
	return &postgresProfileRepository{db: db}
}

func (r *postgresProfileRepository) GetByUID(ctx context.Context, uid string) (*domain.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var profile domain.Profile
	query := `
		SELECT uid, email, name, role, temple_id, created_at
		FROM profiles
		WHERE uid = $1
	`

	err := r.db.QueryRowContext(ctx, query, uid).Scan(
		&profile.UID,
		&profile.Email,
		&profile.Name,
		&profile.Role,
		&profile.TempleID,
		&profile.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		log.WithError(err).WithField("uid", uid).Error("Failed to get profile")
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &profile, nil
}

// Register creates the profile, the owning temple if absent, and (for
// servants) the zero count, all in one transaction. Registration is the only
// place a count row is created outside the increment path.
func (r *postgresProfileRepository) Register(ctx context.Context, profile *domain.Profile, templeName string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin registration transaction: %w", err)
	}
	defer tx.Rollback()

	if err := ensureTemple(ctx, tx, profile.TempleID, templeName); err != nil {
		return err
	}

	query := `
		INSERT INTO profiles (uid, email, name, role, temple_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (uid) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query,
		profile.UID,
		profile.Email,
		profile.Name,
		profile.Role,
		profile.TempleID,
		time.Now().UTC(),
	)
	if err != nil {
		log.WithError(err).WithField("uid", profile.UID).Error("Failed to create profile")
		return fmt.Errorf("failed to create profile: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not determine rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrProfileExists
	}

	if profile.Role == domain.RoleServant {
		if err := createCount(ctx, tx, profile.TempleID, profile.UID, profile.Name); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}

	log.WithFields(log.Fields{
		"uid":       profile.UID,
		"role":      profile.Role,
		"temple_id": profile.TempleID,
	}).Info("Profile registered")
	return nil
}
