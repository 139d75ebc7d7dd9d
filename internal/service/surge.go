package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"ridedispatch/internal/geo"
	"ridedispatch/internal/logger"
)

// supplyFinder counts nearby eligible drivers.
type supplyFinder interface {
	FindWithinRadius(ctx context.Context, center geo.Point, radiusKm float64) ([]NearbyDriver, error)
}

// openPickupLister lists where open ride requests are waiting.
type openPickupLister interface {
	ListOpenPickups(ctx context.Context, now time.Time) ([]geo.Point, error)
}

// SurgeService calculates surge pricing based on supply and demand.
type SurgeService struct {
	supply supplyFinder
	rides  openPickupLister
	clock  Clock
	config SurgeConfig
	logger *zap.Logger
}

// NewSurgeService creates a new SurgeService with DefaultSurgeConfig.
func NewSurgeService(supply supplyFinder, rides openPickupLister, clock Clock, log *zap.Logger) *SurgeService {
	return &SurgeService{
		supply: supply,
		rides:  rides,
		clock:  clockOrSystem(clock),
		config: DefaultSurgeConfig(),
		logger: logger.OrNop(log),
	}
}

// SurgeConfig contains surge pricing configuration.
type SurgeConfig struct {
	RadiusKm       float64 // Radius to check for supply/demand
	LowSurgeRatio  float64 // Demand/supply ratio for 1.25x surge
	MedSurgeRatio  float64 // Demand/supply ratio for 1.5x surge
	HighSurgeRatio float64 // Demand/supply ratio for MaxSurge
	MaxSurge       float64
}

// DefaultSurgeConfig returns the default surge configuration.
func DefaultSurgeConfig() SurgeConfig {
	return SurgeConfig{
		RadiusKm:       5.0,
		LowSurgeRatio:  1.2,
		MedSurgeRatio:  1.5,
		HighSurgeRatio: 2.0,
		MaxSurge:       2.0,
	}
}

// GetMultiplier calculates the surge multiplier around a pickup point.
// Lookup failures fall back to no surge.
func (s *SurgeService) GetMultiplier(ctx context.Context, pickup geo.Point) float64 {
	supply, err := s.countDriversInArea(ctx, pickup)
	if err != nil {
		s.logger.Warn("surge supply lookup failed", zap.Error(err))
		return 1.0
	}

	demand, err := s.countOpenRequestsInArea(ctx, pickup)
	if err != nil {
		s.logger.Warn("surge demand lookup failed", zap.Error(err))
		return 1.0
	}

	return calculateSurgeMultiplier(supply, demand, s.config)
}

func (s *SurgeService) countDriversInArea(ctx context.Context, pickup geo.Point) (int, error) {
	drivers, err := s.supply.FindWithinRadius(ctx, pickup, s.config.RadiusKm)
	if err != nil {
		return 0, err
	}
	return len(drivers), nil
}

func (s *SurgeService) countOpenRequestsInArea(ctx context.Context, pickup geo.Point) (int, error) {
	pickups, err := s.rides.ListOpenPickups(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, p := range pickups {
		if geo.HaversineKm(p, pickup) <= s.config.RadiusKm {
			count++
		}
	}
	return count, nil
}

// calculateSurgeMultiplier determines the multiplier based on supply/demand ratio.
func calculateSurgeMultiplier(supply, demand int, config SurgeConfig) float64 {
	if supply == 0 {
		if demand > 0 {
			return config.MaxSurge
		}
		return 1.0
	}

	ratio := float64(demand) / float64(supply)

	switch {
	case ratio >= config.HighSurgeRatio:
		return config.MaxSurge
	case ratio >= config.MedSurgeRatio:
		return 1.5
	case ratio >= config.LowSurgeRatio:
		return 1.25
	default:
		return 1.0
	}
}
