package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/events"
	"github.com/ohd-platform/facility-helpdesk/internal/observability"
	"github.com/ohd-platform/facility-helpdesk/internal/policy"
	"github.com/ohd-platform/facility-helpdesk/internal/repository"
	"github.com/ohd-platform/facility-helpdesk/internal/workflow"
	apperrors "github.com/ohd-platform/facility-helpdesk/pkg/util/errorutil"
)

// RequestService coordinates request workflows.
type RequestService struct {
	requests   repository.RequestRepository
	history    repository.RequestHistoryRepository
	facilities repository.FacilityDirectory
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	locks      *keyedMutex
	now        func() time.Time
}

// RequestDependencies bundles collaborators for the request service.
type RequestDependencies struct {
	RequestRepo repository.RequestRepository
	HistoryRepo repository.RequestHistoryRepository
	Facilities  repository.FacilityDirectory
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Clock       func() time.Time
}

// OverviewStats is the admin dashboard summary.
type OverviewStats struct {
	TotalRequests          int
	PendingClosingRequests int
	StatusCounts           map[domain.RequestStatus]int
}

// MonthCount is the number of requests created in one UTC month ("2006-01").
type MonthCount struct {
	Month string
	Count int
}

// FacilityCount is the number of requests filed against one facility. Facility
// is nil when the directory no longer knows the id.
type FacilityCount struct {
	FacilityID string
	Facility   *domain.Facility
	Count      int
}

// trendMonths is how many calendar months RequestsOverTime covers, current included.
const trendMonths = 6

// NewRequestService constructs the service.
func NewRequestService(deps RequestDependencies) *RequestService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &RequestService{
		requests:   deps.RequestRepo,
		history:    deps.HistoryRepo,
		facilities: deps.Facilities,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		locks:      newKeyedMutex(),
		now:        clock,
	}
}

// ListRequests returns the page of requests the actor may see under filters.
func (s *RequestService) ListRequests(ctx context.Context, actor domain.Actor, filters policy.Filters) (domain.Page[domain.Request], error) {
	if err := filters.Validate(); err != nil {
		return domain.Page[domain.Request]{}, err
	}
	var headed *domain.Facility
	if policy.NeedsHeadedFacility(actor, filters) {
		f, err := s.facilities.HeadedBy(ctx, actor.ID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return domain.Page[domain.Request]{}, err
		}
		headed = f
	}
	criteria, err := policy.Scope(actor, filters, headed)
	if err != nil {
		return domain.Page[domain.Request]{}, err
	}
	return s.requests.List(ctx, criteria, filters.Page, filters.Limit)
}

// GetRequest fetches one request. Requests outside the actor's view read as missing.
func (s *RequestService) GetRequest(ctx context.Context, actor domain.Actor, id string) (*domain.Request, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "request", id)
	}
	if !policy.CanView(actor, request) {
		return nil, apperrors.NewNotFound("request", map[string]any{"id": id})
	}
	return request, nil
}

// AvailableActions lists the update actions actor could take on request now.
func (s *RequestService) AvailableActions(ctx context.Context, actor domain.Actor, request *domain.Request) ([]workflow.Action, error) {
	facility, err := s.resolveFacility(ctx, request.Facility)
	if err != nil {
		return nil, err
	}
	return workflow.Available(*request, workflow.Context{Actor: actor, Facility: facility, Now: s.now()}), nil
}

// CreateRequest opens a new Unassigned request.
func (s *RequestService) CreateRequest(ctx context.Context, actor domain.Actor, input workflow.CreateInput) (*domain.Request, error) {
	facility, err := s.resolveFacility(ctx, input.Facility)
	if err != nil {
		return nil, err
	}
	request, evs, err := workflow.Create(input, workflow.Context{Actor: actor, Facility: facility, Now: s.now()})
	if err != nil {
		s.metrics.RecordTransition(string(workflow.ActionCreate), outcome(err))
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.requests.Create(ctx, &request); err != nil {
		return nil, mapRepoError(err, "request", request.ID)
	}
	s.metrics.RecordTransition(string(workflow.ActionCreate), "ok")
	s.recordHistory(ctx, evs)
	s.publish(ctx, evs)
	return &request, nil
}

// UpdateRequest applies one workflow action. Transitions on the same request
// are serialized in-process; the store's version check catches races with
// other processes and reports them as Conflict. Once the store write starts
// it is not cancelled with the caller's context. Events are published after
// the per-request lock is released.
func (s *RequestService) UpdateRequest(ctx context.Context, actor domain.Actor, id, updateAction string, input workflow.Input) (*domain.Request, error) {
	action, err := workflow.ParseAction(updateAction)
	if err != nil {
		return nil, err
	}

	next, evs, err := s.applyLocked(ctx, actor, id, action, input)
	if err != nil {
		s.metrics.RecordTransition(string(action), outcome(err))
		return nil, err
	}
	s.metrics.RecordTransition(string(action), "ok")
	s.publish(context.WithoutCancel(ctx), evs)
	return next, nil
}

func (s *RequestService) applyLocked(ctx context.Context, actor domain.Actor, id string, action workflow.Action, input workflow.Input) (*domain.Request, []events.Event, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	current, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, nil, mapRepoError(err, "request", id)
	}
	facility, err := s.resolveFacility(ctx, current.Facility)
	if err != nil {
		return nil, nil, err
	}

	next, evs, err := workflow.Apply(*current, action, input, workflow.Context{Actor: actor, Facility: facility, Now: s.now()})
	if err != nil {
		return nil, nil, err
	}

	ctx = context.WithoutCancel(ctx)
	if err := s.requests.Update(ctx, &next); err != nil {
		err = mapRepoError(err, "request", id)
		if apperrors.HasCode(err, apperrors.CodeConflict) {
			if de := apperrors.ToDomainError(err); de != nil {
				de.Details["action"] = string(action)
				de.Details["status"] = string(current.Status)
			}
		}
		return nil, nil, err
	}
	s.recordHistory(ctx, evs)
	return &next, evs, nil
}

// DeleteRequest removes a request outside the workflow. Admin only.
func (s *RequestService) DeleteRequest(ctx context.Context, actor domain.Actor, id string) error {
	if !actor.IsAdmin() {
		return apperrors.NewNotAuthorized("only administrators can delete requests")
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := s.requests.Delete(ctx, id); err != nil {
		return mapRepoError(err, "request", id)
	}
	s.logger.Info("request deleted", zap.String("request_id", id), zap.String("actor_id", actor.ID))
	return nil
}

// ListHistory returns the audit trail of a visible request, oldest first.
func (s *RequestService) ListHistory(ctx context.Context, actor domain.Actor, id string) ([]domain.RequestHistory, error) {
	if _, err := s.GetRequest(ctx, actor, id); err != nil {
		return nil, err
	}
	if s.history == nil {
		return []domain.RequestHistory{}, nil
	}
	return s.history.ListByRequest(ctx, id)
}

// OverviewStats summarizes all requests. Admin only.
func (s *RequestService) OverviewStats(ctx context.Context, actor domain.Actor) (OverviewStats, error) {
	if !actor.IsAdmin() {
		return OverviewStats{}, apperrors.NewNotAuthorized("only administrators can view overview stats")
	}
	stats, err := s.requests.Stats(ctx)
	if err != nil {
		return OverviewStats{}, err
	}
	counts := make(map[domain.RequestStatus]int, len(domain.AllStatuses()))
	for _, st := range domain.AllStatuses() {
		counts[st] = stats.StatusCounts[st]
	}
	return OverviewStats{
		TotalRequests:          stats.TotalRequests,
		PendingClosingRequests: stats.PendingClosingRequests,
		StatusCounts:           counts,
	}, nil
}

// RequestsOverTime counts requests per creation month over the last six
// calendar months, oldest first. Months without requests are omitted. Admin only.
func (s *RequestService) RequestsOverTime(ctx context.Context, actor domain.Actor) ([]MonthCount, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewNotAuthorized("only administrators can view request trends")
	}
	stats, err := s.requests.Stats(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	since := repository.MonthKey(time.Date(now.Year(), now.Month()-(trendMonths-1), 1, 0, 0, 0, 0, time.UTC))

	out := make([]MonthCount, 0, trendMonths)
	for month, n := range stats.MonthlyCounts {
		if month >= since && n > 0 {
			out = append(out, MonthCount{Month: month, Count: n})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// RequestsByFacility counts requests per facility, busiest first. Admin only.
func (s *RequestService) RequestsByFacility(ctx context.Context, actor domain.Actor) ([]FacilityCount, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewNotAuthorized("only administrators can view facility totals")
	}
	stats, err := s.requests.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]FacilityCount, 0, len(stats.FacilityCounts))
	for id, n := range stats.FacilityCounts {
		facility, err := s.resolveFacility(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, FacilityCount{FacilityID: id, Facility: facility, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].FacilityID < out[j].FacilityID
	})
	return out, nil
}

func (s *RequestService) resolveFacility(ctx context.Context, id string) (*domain.Facility, error) {
	if id == "" {
		return nil, nil
	}
	facility, err := s.facilities.Resolve(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return facility, nil
}

// recordHistory appends one audit entry per event. The transition is already
// stored, so failures are logged and never returned.
func (s *RequestService) recordHistory(ctx context.Context, evs []events.Event) {
	if s.history == nil {
		return
	}
	for _, event := range evs {
		entry := &domain.RequestHistory{
			ID:         uuid.NewString(),
			RequestID:  event.RequestID,
			ActorID:    event.ActorID,
			Action:     event.Payload.Action,
			FromStatus: event.Payload.FromStatus,
			ToStatus:   event.Payload.ToStatus,
			Remarks:    event.Payload.Remarks,
			CreatedAt:  event.Timestamp,
		}
		if err := s.history.Create(ctx, entry); err != nil {
			s.logger.Warn("failed to record request history",
				zap.String("request_id", event.RequestID),
				zap.String("action", event.Payload.Action),
				zap.Error(err))
		}
	}
}

// publish hands events to the dispatcher. Subscribers must not block; the
// notification worker only enqueues.
func (s *RequestService) publish(ctx context.Context, evs []events.Event) {
	if s.dispatcher == nil {
		return
	}
	for _, event := range evs {
		if err := s.dispatcher.Publish(ctx, event); err != nil {
			s.logger.Warn("failed to publish request event",
				zap.String("request_id", event.RequestID),
				zap.String("event", string(event.Type)),
				zap.Error(err))
		}
	}
}

func mapRepoError(err error, resource, id string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, map[string]any{"id": id})
	case errors.Is(err, repository.ErrStaleVersion):
		return apperrors.NewConflict(resource+" was modified concurrently", map[string]any{"requestId": id})
	case errors.Is(err, repository.ErrAlreadyExists):
		return apperrors.NewConflict(resource+" already exists", map[string]any{"id": id})
	}
	return err
}

func outcome(err error) string {
	if de := apperrors.ToDomainError(err); de != nil {
		return de.Code
	}
	return "ok"
}
