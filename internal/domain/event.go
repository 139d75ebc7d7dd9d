package domain

import "time"

// RideStatusEvent is published whenever a ride request changes status.
type RideStatusEvent struct {
	RideRequestID string            `json:"ride_request_id"`
	RiderID       string            `json:"rider_id"`
	Status        RideRequestStatus `json:"status"`
	DriverID      string            `json:"driver_id,omitempty"`
	FinalPrice    *float64          `json:"final_price,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// DriverLocationEvent is published for every accepted location ping.
type DriverLocationEvent struct {
	DriverID   string    `json:"driver_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	RecordedAt time.Time `json:"recorded_at"`
}
