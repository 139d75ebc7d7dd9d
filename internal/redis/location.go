package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// onlineDriversGeoKey holds the last position of every online driver.
// Offline drivers are removed, so membership alone is never eligibility.
const onlineDriversGeoKey = "geo:drivers:online"

// DriverLocation is one member of the online-driver geo set.
type DriverLocation struct {
	DriverID string
	Lat      float64
	Lng      float64
	// DistanceKm is Redis's own estimate from the query center. Callers
	// decide the boundary with their own distance function.
	DistanceKm float64
}

// LocationStore keeps online driver positions in a Redis geo set.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation adds or moves a driver in the geo set.
func (s *LocationStore) UpdateLocation(ctx context.Context, driverID string, lat, lng float64) error {
	err := s.client.GeoAdd(ctx, onlineDriversGeoKey, &redis.GeoLocation{
		Name:      driverID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("geoadd %s: %w", driverID, err)
	}
	return nil
}

// FindNearbyDrivers runs a GEOSEARCH around lat/lng, nearest first.
func (s *LocationStore) FindNearbyDrivers(ctx context.Context, lat, lng, radiusKm float64) ([]DriverLocation, error) {
	results, err := s.client.GeoSearchLocation(ctx, onlineDriversGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geosearch: %w", err)
	}

	locations := make([]DriverLocation, 0, len(results))
	for _, r := range results {
		locations = append(locations, DriverLocation{
			DriverID:   r.Name,
			Lat:        r.Latitude,
			Lng:        r.Longitude,
			DistanceKm: r.Dist,
		})
	}
	return locations, nil
}

// RemoveLocation drops a driver from the geo set. Removing an absent
// driver is not an error.
func (s *LocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	if err := s.client.ZRem(ctx, onlineDriversGeoKey, driverID).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", driverID, err)
	}
	return nil
}
