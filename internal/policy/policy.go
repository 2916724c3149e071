// Package policy maps an actor's role set and list filters to a predicate over requests.
package policy

import (
	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	apperrors "github.com/ohd-platform/facility-helpdesk/pkg/util/errorutil"
)

// Filters are the caller-supplied list options.
type Filters struct {
	Status      *domain.RequestStatus
	Facility    *string
	Severity    *domain.Severity
	CreatedByMe bool
	Managing    bool
	AssignedTo  *string
	NeedHandle  bool
	Page        int
	Limit       int
}

// Criteria is the conjunction of field filters and role scoping.
// Nil fields do not constrain.
type Criteria struct {
	Status         *domain.RequestStatus
	Facility       *string
	Severity       *domain.Severity
	ScopeFacility  *string
	CreatedBy      *string
	AssignedTo     *string
	AwaitingReview bool
}

// Validate rejects unknown enum values.
func (f Filters) Validate() error {
	if f.Status != nil && !f.Status.Valid() {
		return apperrors.NewValidationError("unknown status filter", map[string]any{"status": string(*f.Status)})
	}
	if f.Severity != nil && !f.Severity.Valid() {
		return apperrors.NewValidationError("unknown severity filter", map[string]any{"severity": string(*f.Severity)})
	}
	return nil
}

// NeedsHeadedFacility reports whether Scope requires the facility the actor heads.
func NeedsHeadedFacility(actor domain.Actor, f Filters) bool {
	if actor.IsAdmin() || !actor.IsManager() {
		return false
	}
	return !f.CreatedByMe && f.AssignedTo == nil
}

// Scope computes the criteria for actor. headed is the facility the actor heads,
// or nil when there is none; it is consulted only when NeedsHeadedFacility is true.
func Scope(actor domain.Actor, f Filters, headed *domain.Facility) (Criteria, error) {
	if err := f.Validate(); err != nil {
		return Criteria{}, err
	}
	c := Criteria{
		Status:   f.Status,
		Facility: f.Facility,
		Severity: f.Severity,
	}
	self := actor.ID

	switch {
	case actor.IsAdmin():
	case actor.IsManager():
		switch {
		case f.CreatedByMe:
			c.CreatedBy = &self
		case f.AssignedTo != nil:
			c.AssignedTo = f.AssignedTo
		default:
			if headed == nil {
				return Criteria{}, apperrors.NewNotAuthorizedForFacility(actor.ID)
			}
			if f.Managing {
				id := headed.ID
				c.ScopeFacility = &id
			}
			if f.NeedHandle {
				c.AwaitingReview = true
			}
		}
	case actor.IsTechnician():
		switch {
		case f.CreatedByMe:
			c.CreatedBy = &self
		case f.AssignedTo != nil:
			c.AssignedTo = f.AssignedTo
		}
	default:
		c.CreatedBy = &self
	}
	return c, nil
}

// Matches evaluates the criteria against one request.
func (c Criteria) Matches(r *domain.Request) bool {
	if c.Status != nil && r.Status != *c.Status {
		return false
	}
	if c.Facility != nil && r.Facility != *c.Facility {
		return false
	}
	if c.ScopeFacility != nil && r.Facility != *c.ScopeFacility {
		return false
	}
	if c.Severity != nil && r.Severity != *c.Severity {
		return false
	}
	if c.CreatedBy != nil && r.CreatedBy != *c.CreatedBy {
		return false
	}
	if c.AssignedTo != nil && (r.AssignedTo == nil || *r.AssignedTo != *c.AssignedTo) {
		return false
	}
	if c.AwaitingReview && !r.AwaitingReview() {
		return false
	}
	return true
}

// CanView answers single-request reads under the unfiltered scope.
// Requester-only actors see their own requests; staff roles see all.
func CanView(actor domain.Actor, r *domain.Request) bool {
	if actor.IsAdmin() || actor.IsTechnician() {
		return true
	}
	return r.CreatedBy == actor.ID
}
