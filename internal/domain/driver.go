package domain

import (
	"time"

	"ridedispatch/internal/geo"
)

// DriverState is the dispatch-relevant record kept for every driver.
// Records are created lazily on first contact and never hard-deleted.
type DriverState struct {
	DriverID      string
	Position      *geo.Point // nil until the first location ping
	LastUpdatedAt time.Time  // time of the last location ping
	Online        bool
	Available     bool // implies Online
	Approved      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPosition reports whether a location ping has ever been recorded.
func (d *DriverState) HasPosition() bool {
	return d.Position != nil
}

// IsEligible reports whether the driver may be offered ride requests.
func (d *DriverState) IsEligible() bool {
	return d.Online && d.Available && d.Approved
}

// IsStale reports whether the last ping is older than maxAge at now.
// A zero maxAge disables staleness.
func (d *DriverState) IsStale(now time.Time, maxAge time.Duration) bool {
	if !d.HasPosition() {
		return true
	}
	if maxAge <= 0 {
		return false
	}
	return now.Sub(d.LastUpdatedAt) > maxAge
}
