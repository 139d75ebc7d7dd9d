package domain

import "time"

// CandidateStatus tracks one driver's engagement with a ride request.
type CandidateStatus string

const (
	CandidateViewed         CandidateStatus = "viewed"
	CandidateInterested     CandidateStatus = "interested"
	CandidateCounterOffered CandidateStatus = "counter_offered"
	CandidateAccepted       CandidateStatus = "accepted"
	CandidateRejected       CandidateStatus = "rejected"
)

// IsPending reports whether the candidate has not reached a final answer.
// Pending candidates are force-rejected when another driver wins.
func (s CandidateStatus) IsPending() bool {
	switch s {
	case CandidateViewed, CandidateInterested, CandidateCounterOffered:
		return true
	}
	return false
}

// CandidateEntry records a driver that was notified about a ride request.
type CandidateEntry struct {
	DriverID             string
	DistanceFromPickupKm float64
	EstimatedArrivalMin  int
	CounterOfferPrice    *float64
	Status               CandidateStatus
	ViewedAt             time.Time
	RespondedAt          *time.Time
}
