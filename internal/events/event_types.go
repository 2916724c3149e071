package events

import (
	"time"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated         EventType = "request_created"
	EventTechnicianAssigned     EventType = "technician_assigned"
	EventWorkStarted            EventType = "work_started"
	EventRemarksUpdated         EventType = "remarks_updated"
	EventWorkCompleted          EventType = "work_completed"
	EventRequestRejected        EventType = "request_rejected"
	EventClosingReasonSubmitted EventType = "closing_reason_submitted"
	EventClosingApproved        EventType = "closing_approved"
	EventClosingDeclined        EventType = "closing_declined"
)

// AllTypes lists every lifecycle event type.
func AllTypes() []EventType {
	return []EventType{
		EventRequestCreated,
		EventTechnicianAssigned,
		EventWorkStarted,
		EventRemarksUpdated,
		EventWorkCompleted,
		EventRequestRejected,
		EventClosingReasonSubmitted,
		EventClosingApproved,
		EventClosingDeclined,
	}
}

// Event represents a lifecycle event emitted by the state machine.
// Request is the snapshot after the transition was applied.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	RequestID string            `json:"requestId"`
	ActorID   string            `json:"actorId"`
	Timestamp time.Time         `json:"timestamp"`
	Request   domain.Request    `json:"-"`
	Payload   TransitionPayload `json:"payload"`
}

// TransitionPayload describes the status edge an event records.
type TransitionPayload struct {
	Action     string                `json:"action"`
	FromStatus *domain.RequestStatus `json:"fromStatus,omitempty"`
	ToStatus   domain.RequestStatus  `json:"toStatus"`
	Remarks    string                `json:"remarks,omitempty"`
}
