package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/repository"
)

const driverColumns = `id, lat, lng, location_updated_at, online, available, approved, created_at, updated_at`

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

var _ repository.DriverRepository = (*DriverRepository)(nil)

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

// GetByID retrieves a driver's state.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.DriverState, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`

	driver, err := scanDriver(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return driver, nil
}

// GetMany retrieves the states of the given drivers. Unknown ids are skipped.
func (r *DriverRepository) GetMany(ctx context.Context, ids []string) ([]*domain.DriverState, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = ANY($1)`
	rows, err := r.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drivers := make([]*domain.DriverState, 0, len(ids))
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, driver)
	}
	return drivers, rows.Err()
}

// UpdateLocation records a location ping without touching any flag.
// A ping older than the stored one is ignored and the stored state returned.
func (r *DriverRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64, at time.Time) (*domain.DriverState, error) {
	query := `
		INSERT INTO drivers (id, lat, lng, location_updated_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			location_updated_at = EXCLUDED.location_updated_at,
			updated_at = EXCLUDED.updated_at
		WHERE drivers.location_updated_at IS NULL OR drivers.location_updated_at <= EXCLUDED.location_updated_at
		RETURNING ` + driverColumns

	driver, err := scanDriver(r.q.QueryRowContext(ctx, query, id, lat, lng, at))
	if isNoRows(err) {
		return r.GetByID(ctx, id)
	}
	return driver, err
}

// SetAvailability sets the online and available flags together.
func (r *DriverRepository) SetAvailability(ctx context.Context, id string, online, available bool, at time.Time) (*domain.DriverState, error) {
	query := `
		INSERT INTO drivers (id, online, available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE
		SET online = EXCLUDED.online,
			available = EXCLUDED.available,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + driverColumns

	return scanDriver(r.q.QueryRowContext(ctx, query, id, online, available && online, at))
}

// MarkUnavailable clears only the available flag, leaving online as the
// driver last set it.
func (r *DriverRepository) MarkUnavailable(ctx context.Context, id string, at time.Time) (*domain.DriverState, error) {
	query := `
		UPDATE drivers
		SET available = FALSE,
			updated_at = $2
		WHERE id = $1
		RETURNING ` + driverColumns

	driver, err := scanDriver(r.q.QueryRowContext(ctx, query, id, at))
	if isNoRows(err) {
		return nil, repository.ErrNotFound
	}
	return driver, err
}

// SetApproved sets the approval flag. Revoking approval also clears available.
func (r *DriverRepository) SetApproved(ctx context.Context, id string, approved bool, at time.Time) (*domain.DriverState, error) {
	query := `
		INSERT INTO drivers (id, approved, created_at, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO UPDATE
		SET approved = EXCLUDED.approved,
			available = drivers.available AND EXCLUDED.approved,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + driverColumns

	return scanDriver(r.q.QueryRowContext(ctx, query, id, approved, at))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriver(row rowScanner) (*domain.DriverState, error) {
	var driver domain.DriverState
	var lat, lng sql.NullFloat64
	var locatedAt sql.NullTime

	err := row.Scan(
		&driver.DriverID,
		&lat,
		&lng,
		&locatedAt,
		&driver.Online,
		&driver.Available,
		&driver.Approved,
		&driver.CreatedAt,
		&driver.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		driver.Position = &geo.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if locatedAt.Valid {
		driver.LastUpdatedAt = locatedAt.Time
	}
	return &driver, nil
}
