package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"ridedispatch/internal/domain"
	"ridedispatch/internal/geo"
	"ridedispatch/internal/redis"
)

// Redis measures GEO distances with a slightly larger earth radius than
// geo.EarthRadiusKm, so the coarse query is padded and the exact boundary
// is enforced with geo.HaversineKm afterwards.
const (
	geoQueryPaddingRatio = 1.005
	geoQueryPaddingKm    = 0.05
)

// driverStateSource resolves driver states in bulk.
type driverStateSource interface {
	GetMany(ctx context.Context, driverIDs []string) (map[string]*domain.DriverState, error)
}

// NearbyDriver is an eligible driver and their distance from the search center.
type NearbyDriver struct {
	Driver     *domain.DriverState
	DistanceKm float64
}

// GeoIndex answers "which eligible drivers are within r km of a point".
type GeoIndex struct {
	locations  redis.LocationStoreInterface
	drivers    driverStateSource
	clock      Clock
	staleAfter time.Duration
}

// NewGeoIndex creates a new GeoIndex. A zero staleAfter disables the freshness filter.
func NewGeoIndex(locations redis.LocationStoreInterface, drivers driverStateSource, clock Clock, staleAfter time.Duration) *GeoIndex {
	return &GeoIndex{
		locations:  locations,
		drivers:    drivers,
		clock:      clockOrSystem(clock),
		staleAfter: staleAfter,
	}
}

// FindWithinRadius returns eligible drivers whose last known position is at
// most radiusKm from center, nearest first. Ties are ordered by driver id.
func (g *GeoIndex) FindWithinRadius(ctx context.Context, center geo.Point, radiusKm float64) ([]NearbyDriver, error) {
	if radiusKm < 0 {
		return nil, ErrInvalidSearchRadius
	}

	coarse := radiusKm*geoQueryPaddingRatio + geoQueryPaddingKm
	locations, err := g.locations.FindNearbyDrivers(ctx, center.Lat, center.Lng, coarse)
	if err != nil {
		return nil, fmt.Errorf("query geo index: %w", err)
	}
	if len(locations) == 0 {
		return nil, nil
	}

	ids := make([]string, len(locations))
	for i, loc := range locations {
		ids[i] = loc.DriverID
	}
	states, err := g.drivers.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	now := g.clock.Now()
	nearby := make([]NearbyDriver, 0, len(locations))
	for _, id := range ids {
		driver, ok := states[id]
		if !ok || !driver.IsEligible() || driver.IsStale(now, g.staleAfter) {
			continue
		}
		d := geo.HaversineKm(*driver.Position, center)
		if d > radiusKm {
			continue
		}
		nearby = append(nearby, NearbyDriver{Driver: driver, DistanceKm: d})
	}

	sort.SliceStable(nearby, func(i, j int) bool {
		if nearby[i].DistanceKm != nearby[j].DistanceKm {
			return nearby[i].DistanceKm < nearby[j].DistanceKm
		}
		return nearby[i].Driver.DriverID < nearby[j].Driver.DriverID
	})
	return nearby, nil
}
