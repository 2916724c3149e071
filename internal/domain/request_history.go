package domain

import "time"

// RequestHistory is an immutable audit trail entry, one per accepted action.
type RequestHistory struct {
	ID         string
	RequestID  string
	ActorID    string
	Action     string
	FromStatus *RequestStatus
	ToStatus   RequestStatus
	Remarks    string
	CreatedAt  time.Time
}
