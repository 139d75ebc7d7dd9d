package domain

import "time"

// Rider represents a rider account known to the dispatch service.
type Rider struct {
	ID        string
	Name      string
	Phone     string
	CreatedAt time.Time
}

// RiderProfile is the public part of a rider shown to drivers.
type RiderProfile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PublicProfile returns the fields drivers are allowed to see.
func (r *Rider) PublicProfile() RiderProfile {
	return RiderProfile{ID: r.ID, Name: r.Name}
}
