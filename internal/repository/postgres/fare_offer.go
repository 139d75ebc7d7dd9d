package postgres

import (
	"context"
	"database/sql"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/repository"
)

const fareOfferColumns = `id, ride_request_id, driver_id, price, status, created_at, responded_at`

// FareOfferRepository is a PostgreSQL implementation of repository.FareOfferRepository.
type FareOfferRepository struct {
	q Querier
}

var _ repository.FareOfferRepository = (*FareOfferRepository)(nil)

// NewFareOfferRepository creates a new PostgreSQL fare offer repository.
func NewFareOfferRepository(db *sql.DB) *FareOfferRepository {
	return &FareOfferRepository{q: db}
}

// NewFareOfferRepositoryWithTx creates a fare offer repository using a transaction.
func NewFareOfferRepositoryWithTx(tx *sql.Tx) *FareOfferRepository {
	return &FareOfferRepository{q: tx}
}

// Submit stores a pending offer while the request is open.
func (r *FareOfferRepository) Submit(ctx context.Context, offer *domain.FareOffer, now time.Time) (*domain.FareOffer, error) {
	var stored *domain.FareOffer
	err := inTx(ctx, r.q, func(q Querier) error {
		if err := lockOpenRequest(ctx, q, offer.RideRequestID, now); err != nil {
			return err
		}

		query := `
			INSERT INTO fare_offers (id, ride_request_id, driver_id, price, status, created_at)
			VALUES ($1, $2, $3, $4, 'pending', $5)
			ON CONFLICT (ride_request_id, driver_id) WHERE status = 'pending'
			DO UPDATE SET price = EXCLUDED.price
			RETURNING ` + fareOfferColumns

		var err error
		stored, err = scanFareOffer(q.QueryRowContext(ctx, query,
			offer.ID, offer.RideRequestID, offer.DriverID, offer.Price, now,
		))
		return err
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// GetByID retrieves a fare offer.
func (r *FareOfferRepository) GetByID(ctx context.Context, id string) (*domain.FareOffer, error) {
	query := `SELECT ` + fareOfferColumns + ` FROM fare_offers WHERE id = $1`
	offer, err := scanFareOffer(r.q.QueryRowContext(ctx, query, id))
	if isNoRows(err) {
		return nil, repository.ErrNotFound
	}
	return offer, err
}

// ListByRequest retrieves every offer for a ride request, oldest first.
func (r *FareOfferRepository) ListByRequest(ctx context.Context, requestID string) ([]*domain.FareOffer, error) {
	query := `SELECT ` + fareOfferColumns + ` FROM fare_offers WHERE ride_request_id = $1 ORDER BY created_at, id`
	rows, err := r.q.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var offers []*domain.FareOffer
	for rows.Next() {
		offer, err := scanFareOffer(rows)
		if err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}
	return offers, rows.Err()
}

// Reject moves a pending offer to rejected.
func (r *FareOfferRepository) Reject(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE fare_offers SET status = 'rejected', responded_at = $2 WHERE id = $1 AND status = 'pending'`
	result, err := r.q.ExecContext(ctx, query, id, now)
	if err != nil {
		return err
	}
	if err := expectOneRow(result); err != nil {
		if !isNoRows(err) {
			return err
		}
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return repository.ErrConflict
	}
	return nil
}

func scanFareOffer(row rowScanner) (*domain.FareOffer, error) {
	var offer domain.FareOffer
	var respondedAt sql.NullTime
	err := row.Scan(
		&offer.ID,
		&offer.RideRequestID,
		&offer.DriverID,
		&offer.Price,
		&offer.Status,
		&offer.CreatedAt,
		&respondedAt,
	)
	if err != nil {
		return nil, err
	}
	offer.RespondedAt = timePtr(respondedAt)
	return &offer, nil
}
