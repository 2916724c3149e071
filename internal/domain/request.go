package domain

import "time"

// RequestStatus enumerates lifecycle states for maintenance requests.
type RequestStatus string

const (
	StatusUnassigned     RequestStatus = "Unassigned"
	StatusAssigned       RequestStatus = "Assigned"
	StatusWorkInProgress RequestStatus = "Work in progress"
	StatusClosed         RequestStatus = "Closed"
	StatusRejected       RequestStatus = "Rejected"
)

// Valid reports whether s is a known status.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusUnassigned, StatusAssigned, StatusWorkInProgress, StatusClosed, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further workflow action is accepted.
func (s RequestStatus) Terminal() bool {
	return s == StatusClosed || s == StatusRejected
}

// AllStatuses lists statuses in workflow order.
func AllStatuses() []RequestStatus {
	return []RequestStatus{StatusUnassigned, StatusAssigned, StatusWorkInProgress, StatusClosed, StatusRejected}
}

// Severity enumerates request urgency.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// ManagerHandle is the head manager's verdict on a closing reason.
type ManagerHandle string

const (
	HandleApproved ManagerHandle = "approved"
	HandleDeclined ManagerHandle = "declined"
)

func (h ManagerHandle) Valid() bool {
	return h == HandleApproved || h == HandleDeclined
}

// Request is the aggregate for facility maintenance tickets.
type Request struct {
	ID            string
	CreatedBy     string
	AssignedTo    *string
	AssignedBy    *string
	Facility      string
	Title         string
	Description   string
	Severity      Severity
	Status        RequestStatus
	Remarks       string
	ClosingReason *string
	ManagerHandle *ManagerHandle
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64
}

// AwaitingReview reports whether a closing reason waits for the head manager.
func (r *Request) AwaitingReview() bool {
	return r.ClosingReason != nil && r.ManagerHandle == nil
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (r Request) Clone() Request {
	out := r
	out.AssignedTo = cloneString(r.AssignedTo)
	out.AssignedBy = cloneString(r.AssignedBy)
	out.ClosingReason = cloneString(r.ClosingReason)
	if r.ManagerHandle != nil {
		h := *r.ManagerHandle
		out.ManagerHandle = &h
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}
