package service

import "math"

// FarePolicy computes the suggested price shown next to the rider's own offer.
type FarePolicy struct {
	BaseFare    float64
	PerKm       float64
	PerMinute   float64
	MinimumFare float64
}

// Estimate returns the fare for a trip, scaled by surge and floored at
// MinimumFare, rounded to two decimals.
func (p FarePolicy) Estimate(distanceKm float64, durationMin int, surge float64) float64 {
	fare := p.BaseFare + p.PerKm*distanceKm + p.PerMinute*float64(durationMin)
	if surge > 1 {
		fare *= surge
	}
	fare = math.Max(fare, p.MinimumFare)
	return math.Round(fare*100) / 100
}
