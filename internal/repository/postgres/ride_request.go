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

const rideRequestColumns = `
	id, rider_id, pickup_lat, pickup_lng, pickup_address,
	destination_lat, destination_lng, destination_address,
	requested_price, suggested_price, final_price, distance_km, estimated_duration_min, search_radius_km,
	status, expires_at, created_at, updated_at, accepted_by_driver_id, accepted_at,
	cancelled_at, cancel_reason, vehicle_type, payment_method, notes`

const candidateColumns = `
	driver_id, distance_from_pickup_km, estimated_arrival_min, counter_offer_price, status, viewed_at, responded_at`

// openStatuses is the SQL list of statuses that still accept mutations.
const openStatuses = `('searching', 'pending')`

// RideRequestRepository is a PostgreSQL implementation of repository.RideRequestRepository.
// Every conditional mutation locks the request row first, so concurrent
// accepts on one request are serialized by the database.
type RideRequestRepository struct {
	q Querier
}

var _ repository.RideRequestRepository = (*RideRequestRepository)(nil)

// NewRideRequestRepository creates a new PostgreSQL ride request repository.
func NewRideRequestRepository(db *sql.DB) *RideRequestRepository {
	return &RideRequestRepository{q: db}
}

// NewRideRequestRepositoryWithTx creates a ride request repository using a transaction.
func NewRideRequestRepositoryWithTx(tx *sql.Tx) *RideRequestRepository {
	return &RideRequestRepository{q: tx}
}

// Create persists a new ride request.
func (r *RideRequestRepository) Create(ctx context.Context, req *domain.RideRequest) error {
	query := `
		INSERT INTO ride_requests (
			id, rider_id, pickup_lat, pickup_lng, pickup_address,
			destination_lat, destination_lng, destination_address,
			requested_price, suggested_price, distance_km, estimated_duration_min, search_radius_km,
			status, expires_at, created_at, updated_at, vehicle_type, payment_method, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := r.q.ExecContext(ctx, query,
		req.ID,
		req.RiderID,
		req.Pickup.Lat,
		req.Pickup.Lng,
		req.Pickup.Address,
		req.Destination.Lat,
		req.Destination.Lng,
		req.Destination.Address,
		req.RequestedPrice,
		req.SuggestedPrice,
		req.DistanceKm,
		req.EstimatedDurationMin,
		req.SearchRadiusKm,
		req.Status,
		req.ExpiresAt,
		req.CreatedAt,
		req.UpdatedAt,
		req.VehicleTypePreference,
		req.PaymentMethod,
		req.Notes,
	)
	return err
}

// GetByID retrieves a ride request with its candidates ordered by distance.
func (r *RideRequestRepository) GetByID(ctx context.Context, id string) (*domain.RideRequest, error) {
	query := `SELECT ` + rideRequestColumns + ` FROM ride_requests WHERE id = $1`

	req, err := scanRideRequest(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	req.Candidates, err = r.listCandidates(ctx, id)
	if err != nil {
		return nil, err
	}
	return req, nil
}

// RecordDispatch stores the trip estimate and appends candidates while the request is open.
func (r *RideRequestRepository) RecordDispatch(ctx context.Context, id string, estimate repository.TripEstimate, candidates []domain.CandidateEntry, now time.Time) error {
	return inTx(ctx, r.q, func(q Querier) error {
		if err := lockOpenRequest(ctx, q, id, now); err != nil {
			return err
		}

		update := `
			UPDATE ride_requests
			SET distance_km = $2,
				estimated_duration_min = $3,
				suggested_price = $4,
				status = CASE WHEN $5 THEN 'pending' ELSE status END,
				updated_at = $6
			WHERE id = $1
		`
		if _, err := q.ExecContext(ctx, update, id,
			estimate.DistanceKm,
			estimate.EstimatedDurationMin,
			estimate.SuggestedPrice,
			len(candidates) > 0,
			now,
		); err != nil {
			return err
		}

		insert := `
			INSERT INTO ride_candidates (ride_request_id, ` + candidateColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (ride_request_id, driver_id) DO NOTHING
		`
		for _, c := range candidates {
			if _, err := q.ExecContext(ctx, insert, id,
				c.DriverID,
				c.DistanceFromPickupKm,
				c.EstimatedArrivalMin,
				nullFloat(c.CounterOfferPrice),
				c.Status,
				c.ViewedAt,
				nullTime(c.RespondedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateCandidate changes one candidate's status while the request is open.
func (r *RideRequestRepository) UpdateCandidate(ctx context.Context, id, driverID string, status domain.CandidateStatus, counterOfferPrice *float64, now time.Time) error {
	return inTx(ctx, r.q, func(q Querier) error {
		if err := lockOpenRequest(ctx, q, id, now); err != nil {
			return err
		}

		query := `
			UPDATE ride_candidates
			SET status = $3, counter_offer_price = $4, responded_at = $5
			WHERE ride_request_id = $1 AND driver_id = $2
		`
		result, err := q.ExecContext(ctx, query, id, driverID, status, nullFloat(counterOfferPrice), now)
		if err != nil {
			return err
		}
		if err := expectOneRow(result); err != nil {
			if isNoRows(err) {
				return repository.ErrNotFound
			}
			return err
		}

		_, err = q.ExecContext(ctx, `UPDATE ride_requests SET updated_at = $2 WHERE id = $1`, id, now)
		return err
	})
}

// Resolve accepts the request for res.DriverID.
func (r *RideRequestRepository) Resolve(ctx context.Context, id string, res repository.Resolution) error {
	return inTx(ctx, r.q, func(q Querier) error {
		if err := lockOpenRequest(ctx, q, id, res.At); err != nil {
			return err
		}

		var candidateStatus domain.CandidateStatus
		var counterPrice sql.NullFloat64
		err := q.QueryRowContext(ctx,
			`SELECT status, counter_offer_price FROM ride_candidates WHERE ride_request_id = $1 AND driver_id = $2`,
			id, res.DriverID,
		).Scan(&candidateStatus, &counterPrice)
		if isNoRows(err) {
			return repository.ErrConflict
		}
		if err != nil {
			return err
		}
		if res.CounterOffer {
			if candidateStatus != domain.CandidateCounterOffered || !counterPrice.Valid || counterPrice.Float64 != res.FinalPrice {
				return repository.ErrConflict
			}
		}

		if res.FareOfferID != "" {
			var offerDriver string
			var offerPrice float64
			var offerStatus domain.FareOfferStatus
			err := q.QueryRowContext(ctx,
				`SELECT driver_id, price, status FROM fare_offers WHERE id = $1 AND ride_request_id = $2 FOR UPDATE`,
				res.FareOfferID, id,
			).Scan(&offerDriver, &offerPrice, &offerStatus)
			if isNoRows(err) {
				return repository.ErrNotFound
			}
			if err != nil {
				return err
			}
			if offerStatus != domain.FareOfferPending || offerDriver != res.DriverID || offerPrice != res.FinalPrice {
				return repository.ErrConflict
			}
		}

		accept := `
			UPDATE ride_requests
			SET status = 'accepted', accepted_by_driver_id = $2, accepted_at = $3, final_price = $4, updated_at = $3
			WHERE id = $1
		`
		if _, err := q.ExecContext(ctx, accept, id, res.DriverID, res.At, res.FinalPrice); err != nil {
			return err
		}

		winner := `UPDATE ride_candidates SET status = 'accepted', responded_at = $3 WHERE ride_request_id = $1 AND driver_id = $2`
		if _, err := q.ExecContext(ctx, winner, id, res.DriverID, res.At); err != nil {
			return err
		}

		losers := `
			UPDATE ride_candidates SET status = 'rejected', responded_at = $3
			WHERE ride_request_id = $1 AND driver_id <> $2 AND status IN ('viewed', 'interested', 'counter_offered')
		`
		if _, err := q.ExecContext(ctx, losers, id, res.DriverID, res.At); err != nil {
			return err
		}

		offers := `
			UPDATE fare_offers
			SET status = CASE WHEN id = $2 THEN 'accepted' ELSE 'rejected' END, responded_at = $3
			WHERE ride_request_id = $1 AND status = 'pending'
		`
		_, err = q.ExecContext(ctx, offers, id, res.FareOfferID, res.At)
		return err
	})
}

// Cancel moves an open request to cancelled.
func (r *RideRequestRepository) Cancel(ctx context.Context, id, reason string, now time.Time) error {
	return inTx(ctx, r.q, func(q Querier) error {
		if err := lockOpenRequest(ctx, q, id, now); err != nil {
			return err
		}

		query := `
			UPDATE ride_requests SET status = 'cancelled', cancelled_at = $2, cancel_reason = $3, updated_at = $2
			WHERE id = $1
		`
		if _, err := q.ExecContext(ctx, query, id, now, reason); err != nil {
			return err
		}
		return rejectPendingOffers(ctx, q, []string{id}, now)
	})
}

// MarkExpired moves an open request whose deadline has passed to expired.
func (r *RideRequestRepository) MarkExpired(ctx context.Context, id string, now time.Time) (bool, error) {
	var expired bool
	err := inTx(ctx, r.q, func(q Querier) error {
		query := `
			UPDATE ride_requests SET status = 'expired', updated_at = $2
			WHERE id = $1 AND status IN ` + openStatuses + ` AND expires_at <= $2
		`
		result, err := q.ExecContext(ctx, query, id, now)
		if err != nil {
			return err
		}
		if err := expectOneRow(result); err != nil {
			if isNoRows(err) {
				return nil
			}
			return err
		}
		expired = true
		return rejectPendingOffers(ctx, q, []string{id}, now)
	})
	return expired, err
}

// ExpireDue moves every open request past its deadline to expired.
func (r *RideRequestRepository) ExpireDue(ctx context.Context, now time.Time) ([]repository.ExpiredRequest, error) {
	var expired []repository.ExpiredRequest
	err := inTx(ctx, r.q, func(q Querier) error {
		query := `
			UPDATE ride_requests SET status = 'expired', updated_at = $1
			WHERE status IN ` + openStatuses + ` AND expires_at <= $1
			RETURNING id, rider_id
		`
		rows, err := q.QueryContext(ctx, query, now)
		if err != nil {
			return err
		}
		defer rows.Close()

		var ids []string
		for rows.Next() {
			var e repository.ExpiredRequest
			if err := rows.Scan(&e.ID, &e.RiderID); err != nil {
				return err
			}
			expired = append(expired, e)
			ids = append(ids, e.ID)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return rejectPendingOffers(ctx, q, ids, now)
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// ListOpenForDriver returns open, unexpired requests where the driver is a
// candidate that has not rejected. Each request carries only that driver's entry.
func (r *RideRequestRepository) ListOpenForDriver(ctx context.Context, driverID string, now time.Time) ([]*domain.RideRequest, error) {
	query := `
		SELECT ` + prefixColumns("r", rideRequestColumns) + `, ` + prefixColumns("c", candidateColumns) + `
		FROM ride_requests r
		JOIN ride_candidates c ON c.ride_request_id = r.id
		WHERE c.driver_id = $1
			AND c.status <> 'rejected'
			AND r.status IN ` + openStatuses + `
			AND r.expires_at > $2
		ORDER BY r.created_at DESC
	`
	rows, err := r.q.QueryContext(ctx, query, driverID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*domain.RideRequest
	for rows.Next() {
		req, cand, err := scanRideRequestWithCandidate(rows)
		if err != nil {
			return nil, err
		}
		req.Candidates = []domain.CandidateEntry{*cand}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// ListOpenPickups returns the pickup points of open, unexpired requests.
func (r *RideRequestRepository) ListOpenPickups(ctx context.Context, now time.Time) ([]geo.Point, error) {
	query := `
		SELECT pickup_lat, pickup_lng FROM ride_requests
		WHERE status IN ` + openStatuses + ` AND expires_at > $1
	`
	rows, err := r.q.QueryContext(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []geo.Point
	for rows.Next() {
		var p geo.Point
		if err := rows.Scan(&p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (r *RideRequestRepository) listCandidates(ctx context.Context, id string) ([]domain.CandidateEntry, error) {
	query := `SELECT ` + candidateColumns + ` FROM ride_candidates WHERE ride_request_id = $1 ORDER BY distance_from_pickup_km, driver_id`
	rows, err := r.q.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []domain.CandidateEntry
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}

// lockOpenRequest takes the row lock on a request and checks it is still
// open at now. A missing row is ErrNotFound, a closed one ErrConflict.
func lockOpenRequest(ctx context.Context, q Querier, id string, now time.Time) error {
	var status domain.RideRequestStatus
	var expiresAt time.Time
	err := q.QueryRowContext(ctx,
		`SELECT status, expires_at FROM ride_requests WHERE id = $1 FOR UPDATE`, id,
	).Scan(&status, &expiresAt)
	if isNoRows(err) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	if !status.IsOpen() || !now.Before(expiresAt) {
		return repository.ErrConflict
	}
	return nil
}

func rejectPendingOffers(ctx context.Context, q Querier, requestIDs []string, now time.Time) error {
	query := `
		UPDATE fare_offers SET status = 'rejected', responded_at = $2
		WHERE ride_request_id = ANY($1) AND status = 'pending'
	`
	_, err := q.ExecContext(ctx, query, pq.Array(requestIDs), now)
	return err
}

func rideRequestDest(req *domain.RideRequest, finalPrice *sql.NullFloat64, acceptedBy *sql.NullString, acceptedAt, cancelledAt *sql.NullTime) []any {
	return []any{
		&req.ID,
		&req.RiderID,
		&req.Pickup.Lat,
		&req.Pickup.Lng,
		&req.Pickup.Address,
		&req.Destination.Lat,
		&req.Destination.Lng,
		&req.Destination.Address,
		&req.RequestedPrice,
		&req.SuggestedPrice,
		finalPrice,
		&req.DistanceKm,
		&req.EstimatedDurationMin,
		&req.SearchRadiusKm,
		&req.Status,
		&req.ExpiresAt,
		&req.CreatedAt,
		&req.UpdatedAt,
		acceptedBy,
		acceptedAt,
		cancelledAt,
		&req.CancelReason,
		&req.VehicleTypePreference,
		&req.PaymentMethod,
		&req.Notes,
	}
}

func candidateDest(c *domain.CandidateEntry, counterPrice *sql.NullFloat64, respondedAt *sql.NullTime) []any {
	return []any{
		&c.DriverID,
		&c.DistanceFromPickupKm,
		&c.EstimatedArrivalMin,
		counterPrice,
		&c.Status,
		&c.ViewedAt,
		respondedAt,
	}
}

type rideRequestNulls struct {
	finalPrice  sql.NullFloat64
	acceptedBy  sql.NullString
	acceptedAt  sql.NullTime
	cancelledAt sql.NullTime
}

func (n *rideRequestNulls) apply(req *domain.RideRequest) {
	req.FinalPrice = floatPtr(n.finalPrice)
	req.AcceptedByDriverID = n.acceptedBy.String
	req.AcceptedAt = timePtr(n.acceptedAt)
	req.CancelledAt = timePtr(n.cancelledAt)
}

func scanRideRequest(row rowScanner) (*domain.RideRequest, error) {
	var req domain.RideRequest
	var n rideRequestNulls
	if err := row.Scan(rideRequestDest(&req, &n.finalPrice, &n.acceptedBy, &n.acceptedAt, &n.cancelledAt)...); err != nil {
		return nil, err
	}
	n.apply(&req)
	return &req, nil
}

func scanCandidate(row rowScanner) (*domain.CandidateEntry, error) {
	var c domain.CandidateEntry
	var counterPrice sql.NullFloat64
	var respondedAt sql.NullTime
	if err := row.Scan(candidateDest(&c, &counterPrice, &respondedAt)...); err != nil {
		return nil, err
	}
	c.CounterOfferPrice = floatPtr(counterPrice)
	c.RespondedAt = timePtr(respondedAt)
	return &c, nil
}

func scanRideRequestWithCandidate(row rowScanner) (*domain.RideRequest, *domain.CandidateEntry, error) {
	var req domain.RideRequest
	var n rideRequestNulls
	var c domain.CandidateEntry
	var counterPrice sql.NullFloat64
	var respondedAt sql.NullTime

	dest := rideRequestDest(&req, &n.finalPrice, &n.acceptedBy, &n.acceptedAt, &n.cancelledAt)
	dest = append(dest, candidateDest(&c, &counterPrice, &respondedAt)...)
	if err := row.Scan(dest...); err != nil {
		return nil, nil, err
	}

	n.apply(&req)
	c.CounterOfferPrice = floatPtr(counterPrice)
	c.RespondedAt = timePtr(respondedAt)
	return &req, &c, nil
}
