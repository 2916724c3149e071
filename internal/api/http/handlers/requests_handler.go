package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ohd-platform/facility-helpdesk/internal/api/dto"
	"github.com/ohd-platform/facility-helpdesk/internal/auth"
	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/policy"
	"github.com/ohd-platform/facility-helpdesk/internal/service"
	"github.com/ohd-platform/facility-helpdesk/internal/workflow"
	apperrors "github.com/ohd-platform/facility-helpdesk/pkg/util/errorutil"
)

// RequestsHandler manages facility request endpoints.
type RequestsHandler struct {
	service *service.RequestService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requestService *service.RequestService) *RequestsHandler {
	return &RequestsHandler{service: requestService}
}

// ListRequests GET /api/requests.
func (h *RequestsHandler) ListRequests(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	filters, err := parseRequestFilters(c)
	if err != nil {
		return err
	}
	page, err := h.service.ListRequests(c.UserContext(), actor, filters)
	if err != nil {
		return err
	}
	items := make([]dto.RequestResponse, 0, len(page.Data))
	for i := range page.Data {
		items = append(items, dto.NewRequestResponse(&page.Data[i]))
	}
	return c.JSON(dto.RequestPageResponse{
		TotalItems:  page.TotalItems,
		TotalPages:  page.TotalPages,
		CurrentPage: page.CurrentPage,
		Data:        items,
	})
}

// GetRequest GET /api/requests/:id.
func (h *RequestsHandler) GetRequest(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	request, err := h.service.GetRequest(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return h.respondWithActions(c, http.StatusOK, actor, request)
}

// CreateRequest POST /api/requests.
func (h *RequestsHandler) CreateRequest(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.CreateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Facility) == "" || strings.TrimSpace(req.Title) == "" || req.Severity == "" {
		return apperrors.NewValidationError("facility, title, severity required", nil)
	}

	request, err := h.service.CreateRequest(c.UserContext(), actor, workflow.CreateInput{
		CreatedBy:   req.CreatedBy,
		Facility:    req.Facility,
		Title:       req.Title,
		Description: req.Description,
		Severity:    req.Severity,
		Status:      req.Status,
		Remarks:     req.Remarks,
	})
	if err != nil {
		return err
	}
	return h.respondWithActions(c, http.StatusCreated, actor, request)
}

// UpdateRequest PUT /api/requests/:id.
func (h *RequestsHandler) UpdateRequest(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	var req dto.UpdateRequestRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.UpdateAction) == "" {
		return apperrors.NewValidationError("updateAction required", nil)
	}

	request, err := h.service.UpdateRequest(c.UserContext(), actor, c.Params("id"), req.UpdateAction, workflow.Input{
		Status:        req.Status,
		Remarks:       req.Remarks,
		AssignedTo:    req.AssignedTo,
		ClosingReason: req.ClosingReason,
		ManagerHandle: req.ManagerHandle,
	})
	if err != nil {
		return err
	}
	return h.respondWithActions(c, http.StatusOK, actor, request)
}

// DeleteRequest DELETE /api/requests/:id.
func (h *RequestsHandler) DeleteRequest(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteRequest(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListHistory GET /api/requests/:id/history.
func (h *RequestsHandler) ListHistory(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	entries, err := h.service.ListHistory(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	resp := make([]dto.HistoryEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp = append(resp, dto.HistoryEntryResponse{
			ID:         entry.ID,
			ActorID:    entry.ActorID,
			Action:     entry.Action,
			FromStatus: entry.FromStatus,
			ToStatus:   entry.ToStatus,
			Remarks:    entry.Remarks,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}

// OverviewStats GET /api/requests/admin/overview-stats.
func (h *RequestsHandler) OverviewStats(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	stats, err := h.service.OverviewStats(c.UserContext(), actor)
	if err != nil {
		return err
	}
	counts := make(map[string]int, len(stats.StatusCounts))
	for status, n := range stats.StatusCounts {
		counts[string(status)] = n
	}
	return c.JSON(dto.OverviewStatsResponse{
		TotalRequests:          stats.TotalRequests,
		PendingClosingRequests: stats.PendingClosingRequests,
		StatusCounts:           counts,
	})
}

// RequestsOverTime GET /api/requests/admin/requests-over-time.
func (h *RequestsHandler) RequestsOverTime(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	months, err := h.service.RequestsOverTime(c.UserContext(), actor)
	if err != nil {
		return err
	}
	out := make([]dto.MonthCountResponse, 0, len(months))
	for _, m := range months {
		out = append(out, dto.MonthCountResponse{Month: m.Month, Count: m.Count})
	}
	return c.JSON(out)
}

// RequestsByFacility GET /api/requests/admin/requests-by-facility.
func (h *RequestsHandler) RequestsByFacility(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}
	totals, err := h.service.RequestsByFacility(c.UserContext(), actor)
	if err != nil {
		return err
	}
	out := make([]dto.FacilityCountResponse, 0, len(totals))
	for _, t := range totals {
		item := dto.FacilityCountResponse{FacilityID: t.FacilityID, Count: t.Count}
		if t.Facility != nil {
			item.FacilityDetails = &dto.FacilityDetails{FacilityID: t.Facility.ID, Name: t.Facility.Name}
		}
		out = append(out, item)
	}
	return c.JSON(out)
}

func (h *RequestsHandler) respondWithActions(c *fiber.Ctx, status int, actor domain.Actor, request *domain.Request) error {
	resp := dto.NewRequestResponse(request)
	actions, err := h.service.AvailableActions(c.UserContext(), actor, request)
	if err != nil {
		return err
	}
	for _, a := range actions {
		resp.AvailableActions = append(resp.AvailableActions, string(a))
	}
	return c.Status(status).JSON(fiber.Map{"data": resp})
}

func currentActor(c *fiber.Ctx) (domain.Actor, error) {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return domain.Actor{}, apperrors.NewUnauthorized("authentication required")
	}
	return actor, nil
}

func parseRequestFilters(c *fiber.Ctx) (policy.Filters, error) {
	filters := policy.Filters{
		Page:  parseInt(c.Query("page"), domain.DefaultPage),
		Limit: parseInt(c.Query("limit"), domain.DefaultLimit),
	}
	if v := strings.TrimSpace(c.Query("status")); v != "" {
		status := domain.RequestStatus(v)
		filters.Status = &status
	}
	if v := strings.TrimSpace(c.Query("facility")); v != "" {
		filters.Facility = &v
	}
	if v := strings.TrimSpace(c.Query("severity")); v != "" {
		severity := domain.Severity(v)
		filters.Severity = &severity
	}
	if v := strings.TrimSpace(c.Query("assignedTo")); v != "" {
		filters.AssignedTo = &v
	}

	var err error
	if filters.CreatedByMe, err = parseBool(c, "createdByMe"); err != nil {
		return filters, err
	}
	if filters.Managing, err = parseBool(c, "managing"); err != nil {
		return filters, err
	}
	if filters.NeedHandle, err = parseBool(c, "needHandle"); err != nil {
		return filters, err
	}
	return filters, nil
}

func parseBool(c *fiber.Ctx, key string) (bool, error) {
	val := strings.TrimSpace(c.Query(key))
	if val == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return false, apperrors.NewValidationError("invalid boolean query parameter", map[string]any{key: val})
	}
	return parsed, nil
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
