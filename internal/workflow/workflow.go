// Package workflow is the request state machine. It is pure: callers load the
// request and facility, call Apply, and persist the result.
package workflow

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/events"
	apperrors "github.com/ohd-platform/facility-helpdesk/pkg/util/errorutil"
)

// Action names a workflow transition.
type Action string

const (
	ActionCreate              Action = "create"
	ActionAssignTechnician    Action = "assign_technician"
	ActionStartWork           Action = "start_work"
	ActionUpdateRemarks       Action = "update_remarks"
	ActionCompleteWork        Action = "complete_work"
	ActionManagerReject       Action = "manager_reject"
	ActionSubmitClosingReason Action = "submit_closing_reason"
	ActionManagerApprove      Action = "manager_approve"
	ActionManagerDecline      Action = "manager_decline"
)

// ParseAction resolves an update action. create is not an update action.
func ParseAction(s string) (Action, error) {
	a := Action(strings.TrimSpace(s))
	if _, ok := rules[a]; !ok {
		return "", apperrors.NewValidationError("unknown update action", map[string]any{"updateAction": s})
	}
	return a, nil
}

// Input is the optional update payload. Status and ManagerHandle are echoes of
// the transition's effect and must agree with it when present.
type Input struct {
	Status        *domain.RequestStatus
	Remarks       *string
	AssignedTo    *string
	ClosingReason *string
	ManagerHandle *domain.ManagerHandle
}

// Context carries what a transition is evaluated against.
type Context struct {
	Actor    domain.Actor
	Facility *domain.Facility
	Now      time.Time
}

// CreateInput is the payload for a new request.
type CreateInput struct {
	CreatedBy   string
	Facility    string
	Title       string
	Description string
	Severity    domain.Severity
	Status      *domain.RequestStatus
	Remarks     string
}

type rule struct {
	from      []domain.RequestStatus
	target    domain.RequestStatus
	handle    domain.ManagerHandle
	event     events.EventType
	validate  func(Input) error
	authorize func(*domain.Request, Context) error
	check     func(*domain.Request, Input, Context) error
	apply     func(*domain.Request, Input, Context)
}

var rules = map[Action]rule{
	ActionAssignTechnician: {
		from:   []domain.RequestStatus{domain.StatusUnassigned},
		target: domain.StatusAssigned,
		event:  events.EventTechnicianAssigned,
		validate: func(in Input) error {
			return required("assignedTo", in.AssignedTo)
		},
		authorize: headManager,
		check: func(r *domain.Request, in Input, c Context) error {
			if !c.Facility.HasTechnician(strings.TrimSpace(*in.AssignedTo)) {
				return apperrors.NewInvalidTransition(r.ID, string(ActionAssignTechnician), string(r.Status),
					"technician is not on the facility roster")
			}
			return nil
		},
		apply: func(r *domain.Request, in Input, c Context) {
			tech := strings.TrimSpace(*in.AssignedTo)
			r.AssignedTo = domain.StringPtr(tech)
			r.AssignedBy = domain.StringPtr(c.Actor.ID)
			r.Remarks = remarksOr(in, "Assigned to technician "+tech)
		},
	},
	ActionStartWork: {
		from:      []domain.RequestStatus{domain.StatusAssigned},
		target:    domain.StatusWorkInProgress,
		event:     events.EventWorkStarted,
		authorize: assignedTechnician,
		apply: func(r *domain.Request, in Input, _ Context) {
			r.Remarks = remarksOr(in, r.Remarks)
		},
	},
	ActionUpdateRemarks: {
		from:  []domain.RequestStatus{domain.StatusWorkInProgress},
		event: events.EventRemarksUpdated,
		validate: func(in Input) error {
			return required("remarks", in.Remarks)
		},
		authorize: assignedTechnician,
		apply: func(r *domain.Request, in Input, _ Context) {
			r.Remarks = strings.TrimSpace(*in.Remarks)
		},
	},
	ActionCompleteWork: {
		from:      []domain.RequestStatus{domain.StatusWorkInProgress},
		target:    domain.StatusClosed,
		event:     events.EventWorkCompleted,
		authorize: assignedTechnician,
		apply: func(r *domain.Request, in Input, _ Context) {
			r.Remarks = remarksOr(in, r.Remarks)
		},
	},
	ActionManagerReject: {
		from:      []domain.RequestStatus{domain.StatusUnassigned},
		target:    domain.StatusRejected,
		event:     events.EventRequestRejected,
		authorize: headManager,
		apply: func(r *domain.Request, in Input, _ Context) {
			r.Remarks = remarksOr(in, "Rejected by facility manager")
		},
	},
	ActionSubmitClosingReason: {
		from:  []domain.RequestStatus{domain.StatusAssigned, domain.StatusWorkInProgress},
		event: events.EventClosingReasonSubmitted,
		validate: func(in Input) error {
			return required("closingReason", in.ClosingReason)
		},
		authorize: creator,
		check: func(r *domain.Request, _ Input, _ Context) error {
			if r.ClosingReason != nil {
				return apperrors.NewInvalidTransition(r.ID, string(ActionSubmitClosingReason), string(r.Status),
					"closing reason already submitted")
			}
			return nil
		},
		apply: func(r *domain.Request, in Input, _ Context) {
			r.ClosingReason = domain.StringPtr(strings.TrimSpace(*in.ClosingReason))
		},
	},
	ActionManagerApprove: {
		from:      []domain.RequestStatus{domain.StatusAssigned, domain.StatusWorkInProgress},
		target:    domain.StatusClosed,
		handle:    domain.HandleApproved,
		event:     events.EventClosingApproved,
		authorize: headManager,
		check:     awaitingReview(ActionManagerApprove),
		apply: func(r *domain.Request, in Input, _ Context) {
			h := domain.HandleApproved
			r.ManagerHandle = &h
			r.Remarks = remarksOr(in, r.Remarks)
		},
	},
	ActionManagerDecline: {
		from:      []domain.RequestStatus{domain.StatusAssigned, domain.StatusWorkInProgress},
		handle:    domain.HandleDeclined,
		event:     events.EventClosingDeclined,
		authorize: headManager,
		check:     awaitingReview(ActionManagerDecline),
		apply: func(r *domain.Request, in Input, _ Context) {
			h := domain.HandleDeclined
			r.ManagerHandle = &h
			r.Remarks = remarksOr(in, r.Remarks)
		},
	},
}

// Apply validates action against current and returns the updated request with
// the events it emits. current is never modified; on error nothing changes.
//
// Checks run in a fixed order: payload, status, actor, remaining preconditions.
func Apply(current domain.Request, action Action, in Input, c Context) (domain.Request, []events.Event, error) {
	rl, ok := rules[action]
	if !ok {
		return current, nil, apperrors.NewValidationError("unknown update action", map[string]any{"updateAction": string(action)})
	}

	if err := validateEchoes(current, rl, in); err != nil {
		return current, nil, err
	}
	if rl.validate != nil {
		if err := rl.validate(in); err != nil {
			return current, nil, err
		}
	}

	if current.Status.Terminal() {
		return current, nil, apperrors.NewInvalidTransition(current.ID, string(action), string(current.Status), "request is in a terminal status")
	}
	if !statusIn(current.Status, rl.from) {
		return current, nil, apperrors.NewInvalidTransition(current.ID, string(action), string(current.Status),
			"action not allowed in current status")
	}

	if err := rl.authorize(&current, c); err != nil {
		return current, nil, err
	}
	if rl.check != nil {
		if err := rl.check(&current, in, c); err != nil {
			return current, nil, err
		}
	}

	next := current.Clone()
	from := current.Status
	rl.apply(&next, in, c)
	if rl.target != "" {
		next.Status = rl.target
	}
	next.UpdatedAt = c.Now

	event := newEvent(rl.event, &next, c, events.TransitionPayload{
		Action:     string(action),
		FromStatus: &from,
		ToStatus:   next.Status,
		Remarks:    next.Remarks,
	})
	return next, []events.Event{event}, nil
}

// Create builds a new Unassigned request. The facility must already be resolved.
func Create(in CreateInput, c Context) (domain.Request, []events.Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Request{}, nil, apperrors.NewValidationError("title is required", nil)
	}
	if strings.TrimSpace(in.Facility) == "" {
		return domain.Request{}, nil, apperrors.NewValidationError("facility is required", nil)
	}
	if !in.Severity.Valid() {
		return domain.Request{}, nil, apperrors.NewValidationError("unknown severity", map[string]any{"severity": string(in.Severity)})
	}
	if in.Status != nil && *in.Status != domain.StatusUnassigned {
		return domain.Request{}, nil, apperrors.NewValidationError("new requests start Unassigned", map[string]any{"status": string(*in.Status)})
	}
	createdBy := strings.TrimSpace(in.CreatedBy)
	if createdBy == "" {
		createdBy = c.Actor.ID
	}
	if createdBy != c.Actor.ID && !c.Actor.IsAdmin() {
		return domain.Request{}, nil, apperrors.NewNotAuthorized("requests can only be created on your own behalf")
	}
	if c.Facility == nil || c.Facility.ID != strings.TrimSpace(in.Facility) {
		return domain.Request{}, nil, apperrors.NewNotFound("facility", map[string]any{"facility": in.Facility})
	}

	r := domain.Request{
		ID:          uuid.NewString(),
		CreatedBy:   createdBy,
		Facility:    c.Facility.ID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Severity:    in.Severity,
		Status:      domain.StatusUnassigned,
		Remarks:     strings.TrimSpace(in.Remarks),
		CreatedAt:   c.Now,
		UpdatedAt:   c.Now,
	}
	event := newEvent(events.EventRequestCreated, &r, c, events.TransitionPayload{
		Action:   string(ActionCreate),
		ToStatus: r.Status,
		Remarks:  r.Remarks,
	})
	return r, []events.Event{event}, nil
}

// Available lists the update actions actor could take on r right now, in table order.
func Available(r domain.Request, c Context) []Action {
	out := []Action{}
	for _, a := range orderedActions {
		rl := rules[a]
		if r.Status.Terminal() || !statusIn(r.Status, rl.from) {
			continue
		}
		if rl.authorize(&r, c) != nil {
			continue
		}
		if a == ActionSubmitClosingReason && r.ClosingReason != nil {
			continue
		}
		if (a == ActionManagerApprove || a == ActionManagerDecline) && !r.AwaitingReview() {
			continue
		}
		out = append(out, a)
	}
	return out
}

var orderedActions = []Action{
	ActionAssignTechnician,
	ActionStartWork,
	ActionUpdateRemarks,
	ActionCompleteWork,
	ActionManagerReject,
	ActionSubmitClosingReason,
	ActionManagerApprove,
	ActionManagerDecline,
}

func newEvent(t events.EventType, r *domain.Request, c Context, payload events.TransitionPayload) events.Event {
	return events.Event{
		ID:        uuid.NewString(),
		Type:      t,
		RequestID: r.ID,
		ActorID:   c.Actor.ID,
		Timestamp: c.Now,
		Request:   r.Clone(),
		Payload:   payload,
	}
}

func validateEchoes(current domain.Request, rl rule, in Input) error {
	if in.Status != nil {
		if !in.Status.Valid() {
			return apperrors.NewValidationError("unknown status", map[string]any{"status": string(*in.Status)})
		}
		want := rl.target
		if want == "" {
			want = current.Status
		}
		if *in.Status != want {
			return apperrors.NewValidationError("status does not match the action", map[string]any{
				"status":   string(*in.Status),
				"expected": string(want),
			})
		}
	}
	if in.ManagerHandle != nil {
		if !in.ManagerHandle.Valid() {
			return apperrors.NewValidationError("unknown managerHandle", map[string]any{"managerHandle": string(*in.ManagerHandle)})
		}
		if rl.handle != "" && *in.ManagerHandle != rl.handle {
			return apperrors.NewValidationError("managerHandle does not match the action", map[string]any{
				"managerHandle": string(*in.ManagerHandle),
				"expected":      string(rl.handle),
			})
		}
	}
	return nil
}

func headManager(_ *domain.Request, c Context) error {
	if c.Facility == nil || !c.Actor.IsManager() || c.Facility.HeadManagerID != c.Actor.ID {
		return apperrors.NewNotAuthorized("only the facility's head manager can do this")
	}
	return nil
}

func assignedTechnician(r *domain.Request, c Context) error {
	if r.AssignedTo == nil || *r.AssignedTo != c.Actor.ID {
		return apperrors.NewNotAuthorized("only the assigned technician can do this")
	}
	return nil
}

func creator(r *domain.Request, c Context) error {
	if r.CreatedBy != c.Actor.ID {
		return apperrors.NewNotAuthorized("only the request's creator can do this")
	}
	return nil
}

func awaitingReview(a Action) func(*domain.Request, Input, Context) error {
	return func(r *domain.Request, _ Input, _ Context) error {
		if !r.AwaitingReview() {
			return apperrors.NewInvalidTransition(r.ID, string(a), string(r.Status), "no closing reason awaiting review")
		}
		return nil
	}
}

func required(field string, v *string) error {
	if v == nil || strings.TrimSpace(*v) == "" {
		return apperrors.NewValidationError(field+" is required", map[string]any{"field": field})
	}
	return nil
}

func remarksOr(in Input, fallback string) string {
	if in.Remarks != nil && strings.TrimSpace(*in.Remarks) != "" {
		return strings.TrimSpace(*in.Remarks)
	}
	return fallback
}

func statusIn(s domain.RequestStatus, set []domain.RequestStatus) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}
