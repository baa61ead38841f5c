package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a site does not exist or has no baseline
// path recorded yet.
var ErrNotFound = errors.New("repository: site not found")

// SiteRepository defines data access for monitored sites' baselines
type SiteRepository interface {
	GetBaselinePath(ctx context.Context, siteID int64) (string, error)
	UpdateBaselinePath(ctx context.Context, siteID int64, path string) error
	PurgeTestData(ctx context.Context) (int64, error)
}

// PostgresSiteRepository implements SiteRepository for PostgreSQL
type PostgresSiteRepository struct {
	db *sql.DB
}

func NewPostgresSiteRepository(db *sql.DB) *PostgresSiteRepository {
	return &PostgresSiteRepository{db: db}
}

// GetBaselinePath retrieves the logical baseline path stored for a site.
// The stored path may be stale; resolution against the filesystem is the
// caller's concern.
func (r *PostgresSiteRepository) GetBaselinePath(
	ctx context.Context,
	siteID int64,
) (string, error) {
	query := `
		SELECT baseline_path
		FROM sites
		WHERE id = $1
	`

	var path sql.NullString
	err := r.db.QueryRowContext(ctx, query, siteID).Scan(&path)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf(
			"failed to query baseline path for site %d: %w",
			siteID,
			err,
		)
	}

	if !path.Valid || path.String == "" {
		return "", ErrNotFound
	}

	return path.String, nil
}

// UpdateBaselinePath rewrites the stored baseline path for a site, used
// when capture-time normalization finds the record pointing at a stale
// location.
func (r *PostgresSiteRepository) UpdateBaselinePath(
	ctx context.Context,
	siteID int64,
	path string,
) error {
	query := `
		UPDATE sites
		SET baseline_path = $1, updated_at = $2
		WHERE id = $3
	`

	res, err := r.db.ExecContext(ctx, query, path, time.Now(), siteID)
	if err != nil {
		return fmt.Errorf(
			"failed to update baseline path for site %d: %w",
			siteID,
			err,
		)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// PurgeTestData deletes sites created by test runs. Returns the number of
// sites removed.
func (r *PostgresSiteRepository) PurgeTestData(
	ctx context.Context,
) (int64, error) {
	query := `
		DELETE FROM sites
		WHERE is_test = TRUE
		OR name ILIKE 'test%'
	`

	res, err := r.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge test sites: %w", err)
	}

	return res.RowsAffected()
}
