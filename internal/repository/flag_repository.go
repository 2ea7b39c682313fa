package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/arvichandar/facemark-api/internal/models"
)

// flagRowID pins the singleton row; the table holds exactly one entry.
const flagRowID = 1

// FlagRepository persists the student self-auth feature flag.
type FlagRepository struct {
	db *sqlx.DB
}

// NewFlagRepository constructs the repository.
func NewFlagRepository(db *sqlx.DB) *FlagRepository {
	return &FlagRepository{db: db}
}

// Get loads the flag. A missing row reads as enabled, matching the
// fail-open default of the cache layer.
func (r *FlagRepository) Get(ctx context.Context) (*models.FeatureFlag, error) {
	const query = `SELECT enabled, updated_at, updated_by FROM feature_flags WHERE id = $1 LIMIT 1`
	var flag models.FeatureFlag
	if err := r.db.GetContext(ctx, &flag, query, flagRowID); err != nil {
		if err == sql.ErrNoRows {
			return &models.FeatureFlag{Enabled: true}, nil
		}
		return nil, fmt.Errorf("get feature flag: %w", err)
	}
	return &flag, nil
}

// Update writes the flag value and audit fields.
func (r *FlagRepository) Update(ctx context.Context, enabled bool, actorID string) (*models.FeatureFlag, error) {
	now := time.Now().UTC()
	const query = `INSERT INTO feature_flags (id, enabled, updated_at, updated_by)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id)
DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at, updated_by = EXCLUDED.updated_by
RETURNING enabled, updated_at, updated_by`
	var flag models.FeatureFlag
	if err := r.db.GetContext(ctx, &flag, query, flagRowID, enabled, now, actorID); err != nil {
		return nil, fmt.Errorf("update feature flag: %w", err)
	}
	return &flag, nil
}
