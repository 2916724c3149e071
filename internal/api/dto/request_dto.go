package dto

import (
	"time"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

// CreateRequestRequest payload.
type CreateRequestRequest struct {
	CreatedBy   string                `json:"createdBy"`
	Facility    string                `json:"facility"`
	Title       string                `json:"title"`
	Description string                `json:"description"`
	Severity    domain.Severity       `json:"severity"`
	Status      *domain.RequestStatus `json:"status"`
	Remarks     string                `json:"remarks"`
}

// UpdateRequestRequest payload. AssignedBy is accepted for compatibility and
// ignored; the acting user is always recorded.
type UpdateRequestRequest struct {
	UpdateAction  string                `json:"updateAction"`
	Status        *domain.RequestStatus `json:"status"`
	Remarks       *string               `json:"remarks"`
	AssignedBy    *string               `json:"assignedBy"`
	AssignedTo    *string               `json:"assignedTo"`
	ClosingReason *string               `json:"closingReason"`
	ManagerHandle *domain.ManagerHandle `json:"managerHandle"`
}

// RequestResponse is the request representation.
type RequestResponse struct {
	ID               string                `json:"id"`
	CreatedBy        string                `json:"createdBy"`
	AssignedTo       *string               `json:"assignedTo"`
	AssignedBy       *string               `json:"assignedBy"`
	Facility         string                `json:"facility"`
	Title            string                `json:"title"`
	Description      string                `json:"description"`
	Severity         domain.Severity       `json:"severity"`
	Status           domain.RequestStatus  `json:"status"`
	Remarks          string                `json:"remarks"`
	ClosingReason    *string               `json:"closingReason"`
	ManagerHandle    *domain.ManagerHandle `json:"managerHandle"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	AvailableActions []string              `json:"availableActions,omitempty"`
}

// RequestPageResponse is one page of requests.
type RequestPageResponse struct {
	TotalItems  int               `json:"totalItems"`
	TotalPages  int               `json:"totalPages"`
	CurrentPage int               `json:"currentPage"`
	Data        []RequestResponse `json:"data"`
}

// HistoryEntryResponse is one audit trail entry.
type HistoryEntryResponse struct {
	ID         string                `json:"id"`
	ActorID    string                `json:"actorId"`
	Action     string                `json:"action"`
	FromStatus *domain.RequestStatus `json:"fromStatus"`
	ToStatus   domain.RequestStatus  `json:"toStatus"`
	Remarks    string                `json:"remarks"`
	CreatedAt  time.Time             `json:"createdAt"`
}

// OverviewStatsResponse is the admin dashboard summary.
type OverviewStatsResponse struct {
	TotalRequests          int            `json:"totalRequests"`
	PendingClosingRequests int            `json:"pendingClosingRequests"`
	StatusCounts           map[string]int `json:"statusCounts"`
}

// MonthCountResponse is one month of the request trend.
type MonthCountResponse struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// FacilityDetails identifies a facility in dashboard responses.
type FacilityDetails struct {
	FacilityID string `json:"facilityId"`
	Name       string `json:"name"`
}

// FacilityCountResponse is the request total of one facility.
type FacilityCountResponse struct {
	FacilityID      string           `json:"facilityId"`
	Count           int              `json:"count"`
	FacilityDetails *FacilityDetails `json:"facilityDetails"`
}

// NewRequestResponse maps a domain request.
func NewRequestResponse(r *domain.Request) RequestResponse {
	return RequestResponse{
		ID:            r.ID,
		CreatedBy:     r.CreatedBy,
		AssignedTo:    r.AssignedTo,
		AssignedBy:    r.AssignedBy,
		Facility:      r.Facility,
		Title:         r.Title,
		Description:   r.Description,
		Severity:      r.Severity,
		Status:        r.Status,
		Remarks:       r.Remarks,
		ClosingReason: r.ClosingReason,
		ManagerHandle: r.ManagerHandle,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}
