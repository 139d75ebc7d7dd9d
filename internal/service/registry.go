package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/redis"
	"ridedispatch/internal/repository"
)

// DriverRegistryDeps contains the collaborators of a DriverRegistry.
// Cache and LocationPublisher are optional.
type DriverRegistryDeps struct {
	Repo               repository.DriverRepository
	Locations          redis.LocationStoreInterface
	Cache              redis.DriverCacheInterface
	LocationPublisher  LocationPublisher
	Clock              Clock
	LocationStaleAfter time.Duration
	Logger             *zap.Logger
}

// DriverRegistry owns every driver's online, available and approved flags
// and their last known position.
type DriverRegistry struct {
	repo       repository.DriverRepository
	locations  redis.LocationStoreInterface
	cache      redis.DriverCacheInterface
	publisher  LocationPublisher
	clock      Clock
	staleAfter time.Duration
	logger     *zap.Logger
}

// NewDriverRegistry creates a new DriverRegistry.
func NewDriverRegistry(deps DriverRegistryDeps) *DriverRegistry {
	return &DriverRegistry{
		repo:       deps.Repo,
		locations:  deps.Locations,
		cache:      deps.Cache,
		publisher:  deps.LocationPublisher,
		clock:      clockOrSystem(deps.Clock),
		staleAfter: deps.LocationStaleAfter,
		logger:     logger.OrNop(deps.Logger),
	}
}

// Get returns a driver's state. Unknown drivers are reported as a fresh,
// offline record without being persisted.
func (r *DriverRegistry) Get(ctx context.Context, driverID string) (*domain.DriverState, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	driver, err := r.repo.GetByID(ctx, driverID)
	if errors.Is(err, repository.ErrNotFound) {
		return &domain.DriverState{DriverID: driverID}, nil
	}
	return driver, err
}

// SetOnline toggles a driver online or offline. Going online makes the
// driver available only when a fresh position is on record; a driver without
// one stays unavailable until they go online again after pinging. Going
// offline clears both flags.
func (r *DriverRegistry) SetOnline(ctx context.Context, driverID string, online bool) (*domain.DriverState, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	now := r.clock.Now()
	available := false
	if online {
		current, err := r.Get(ctx, driverID)
		if err != nil {
			return nil, fmt.Errorf("load driver: %w", err)
		}
		available = !current.IsStale(now, r.staleAfter)
	}

	driver, err := r.repo.SetAvailability(ctx, driverID, online, available, now)
	if err != nil {
		return nil, fmt.Errorf("set availability: %w", err)
	}
	r.invalidate(ctx, driverID)

	if !online {
		if err := r.locations.RemoveLocation(ctx, driverID); err != nil {
			return nil, fmt.Errorf("remove from geo index: %w", err)
		}
	} else if driver.HasPosition() {
		if err := r.locations.UpdateLocation(ctx, driverID, driver.Position.Lat, driver.Position.Lng); err != nil {
			return nil, fmt.Errorf("add to geo index: %w", err)
		}
	}

	r.logger.Info("driver availability changed",
		zap.String("driver_id", driverID),
		zap.Bool("online", driver.Online),
		zap.Bool("available", driver.Available),
	)
	return driver, nil
}

// UpdateLocation records a location ping. Flags are left untouched.
func (r *DriverRegistry) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) (*domain.DriverState, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}
	if !(geo.Point{Lat: lat, Lng: lng}).Valid() {
		return nil, ErrInvalidLocation
	}

	now := r.clock.Now()
	driver, err := r.repo.UpdateLocation(ctx, driverID, lat, lng, now)
	if err != nil {
		return nil, fmt.Errorf("store location: %w", err)
	}
	r.invalidate(ctx, driverID)

	if driver.Online {
		if err := r.locations.UpdateLocation(ctx, driverID, lat, lng); err != nil {
			return nil, fmt.Errorf("update geo index: %w", err)
		}
	}

	if r.publisher != nil {
		event := domain.DriverLocationEvent{DriverID: driverID, Lat: lat, Lng: lng, RecordedAt: now}
		if err := r.publisher.PublishLocation(ctx, event); err != nil {
			r.logger.Warn("failed to publish driver location", zap.String("driver_id", driverID), zap.Error(err))
		}
	}
	return driver, nil
}

// SetApproved grants or revokes a driver's approval. Revoking also clears available.
func (r *DriverRegistry) SetApproved(ctx context.Context, driverID string, approved bool) (*domain.DriverState, error) {
	if driverID == "" {
		return nil, ErrInvalidDriverID
	}

	driver, err := r.repo.SetApproved(ctx, driverID, approved, r.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("set approval: %w", err)
	}
	r.invalidate(ctx, driverID)

	r.logger.Info("driver approval changed", zap.String("driver_id", driverID), zap.Bool("approved", approved))
	return driver, nil
}

// MarkBusy takes a driver out of dispatch without taking them offline.
func (r *DriverRegistry) MarkBusy(ctx context.Context, driverID string) error {
	if driverID == "" {
		return ErrInvalidDriverID
	}
	if _, err := r.repo.MarkUnavailable(ctx, driverID, r.clock.Now()); err != nil {
		return fmt.Errorf("mark unavailable: %w", err)
	}
	r.invalidate(ctx, driverID)
	return nil
}

// IsEligibleCandidate reports whether the driver may currently receive ride requests.
func (r *DriverRegistry) IsEligibleCandidate(ctx context.Context, driverID string) (bool, error) {
	driver, err := r.Get(ctx, driverID)
	if err != nil {
		return false, err
	}
	return driver.IsEligible(), nil
}

// GetMany returns the known states of the given drivers keyed by id,
// reading through the cache when one is configured.
func (r *DriverRegistry) GetMany(ctx context.Context, driverIDs []string) (map[string]*domain.DriverState, error) {
	states := make(map[string]*domain.DriverState, len(driverIDs))
	missing := driverIDs

	if r.cache != nil {
		cached, miss, err := r.cache.GetDriversBatch(ctx, driverIDs)
		if err != nil {
			r.logger.Warn("driver cache read failed", zap.Error(err))
		} else {
			for id, c := range cached {
				states[id] = fromCached(c)
			}
			missing = miss
		}
	}

	if len(missing) == 0 {
		return states, nil
	}

	drivers, err := r.repo.GetMany(ctx, missing)
	if err != nil {
		return nil, fmt.Errorf("load drivers: %w", err)
	}

	toCache := make([]*redis.CachedDriver, 0, len(drivers))
	for _, d := range drivers {
		states[d.DriverID] = d
		toCache = append(toCache, toCached(d))
	}
	if r.cache != nil {
		if err := r.cache.SetDriversBatch(ctx, toCache); err != nil {
			r.logger.Warn("driver cache write failed", zap.Error(err))
		}
	}
	return states, nil
}

func (r *DriverRegistry) invalidate(ctx context.Context, driverID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.InvalidateDriver(ctx, driverID); err != nil {
		r.logger.Warn("driver cache invalidation failed", zap.String("driver_id", driverID), zap.Error(err))
	}
}

func toCached(d *domain.DriverState) *redis.CachedDriver {
	c := &redis.CachedDriver{
		ID:            d.DriverID,
		LastUpdatedAt: d.LastUpdatedAt,
		Online:        d.Online,
		Available:     d.Available,
		Approved:      d.Approved,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.Position != nil {
		lat, lng := d.Position.Lat, d.Position.Lng
		c.Lat, c.Lng = &lat, &lng
	}
	return c
}

func fromCached(c *redis.CachedDriver) *domain.DriverState {
	d := &domain.DriverState{
		DriverID:      c.ID,
		LastUpdatedAt: c.LastUpdatedAt,
		Online:        c.Online,
		Available:     c.Available,
		Approved:      c.Approved,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.Lat != nil && c.Lng != nil {
		d.Position = &geo.Point{Lat: *c.Lat, Lng: *c.Lng}
	}
	return d
}
