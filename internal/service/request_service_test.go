package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/events"
	"github.com/ohd-platform/facility-helpdesk/internal/observability"
	"github.com/ohd-platform/facility-helpdesk/internal/policy"
	"github.com/ohd-platform/facility-helpdesk/internal/repository"
	"github.com/ohd-platform/facility-helpdesk/internal/repository/memory"
	"github.com/ohd-platform/facility-helpdesk/internal/service"
	"github.com/ohd-platform/facility-helpdesk/internal/workflow"
	apperrors "github.com/ohd-platform/facility-helpdesk/pkg/util/errorutil"
)

var (
	headM   = domain.Actor{ID: "m1", Roles: domain.NewRoleSet(domain.RoleManager)}
	otherM  = domain.Actor{ID: "m2", Roles: domain.NewRoleSet(domain.RoleManager)}
	tech1   = domain.Actor{ID: "t1", Roles: domain.NewRoleSet(domain.RoleTechnician)}
	creator = domain.Actor{ID: "u1", Roles: domain.NewRoleSet()}
	other   = domain.Actor{ID: "u2", Roles: domain.NewRoleSet()}
	admin   = domain.Actor{ID: "a1", Roles: domain.NewRoleSet(domain.RoleAdmin)}
)

type fixture struct {
	requests      *service.RequestService
	notifications *service.NotificationService
	requestRepo   *memory.RequestRepository
	notifyRepo    *memory.NotificationRepository
	history       *memory.HistoryRepository
	metrics       *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	facilities := memory.NewFacilityRepository()
	require.NoError(t, facilities.Save(ctx, &domain.Facility{ID: "f1", Name: "North", HeadManagerID: "m1", TechnicianIDs: []string{"t1"}}))
	require.NoError(t, facilities.Save(ctx, &domain.Facility{ID: "f2", Name: "South", HeadManagerID: "m2", TechnicianIDs: []string{"t2"}}))

	users := memory.NewUserRepository()
	f := &fixture{
		requestRepo: memory.NewRequestRepository(),
		notifyRepo:  memory.NewNotificationRepository(),
		history:     memory.NewHistoryRepository(),
		metrics:     observability.NewMetrics(),
	}
	f.notifications = service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: f.notifyRepo,
		Facilities:       facilities,
		Users:            users,
		Metrics:          f.metrics,
		Logger:           logger,
	})

	dispatcher := events.NewInMemoryDispatcher(logger)
	for eventType, handler := range f.notifications.Handlers() {
		dispatcher.Subscribe(eventType, handler)
	}

	f.requests = service.NewRequestService(service.RequestDependencies{
		RequestRepo: f.requestRepo,
		HistoryRepo: f.history,
		Facilities:  facilities,
		Dispatcher:  dispatcher,
		Metrics:     f.metrics,
		Logger:      logger,
		Clock:       func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	return f
}

func (f *fixture) create(t *testing.T, facility string) *domain.Request {
	t.Helper()
	r, err := f.requests.CreateRequest(context.Background(), creator, workflow.CreateInput{
		Facility: facility,
		Title:    "Flickering lights",
		Severity: domain.SeverityLow,
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) update(t *testing.T, actor domain.Actor, id string, action workflow.Action, in workflow.Input) *domain.Request {
	t.Helper()
	r, err := f.requests.UpdateRequest(context.Background(), actor, id, string(action), in)
	require.NoError(t, err, "action %s by %s", action, actor.ID)
	return r
}

func (f *fixture) unread(t *testing.T, userID string) int {
	t.Helper()
	n, err := f.notifyRepo.CountUnread(context.Background(), userID)
	require.NoError(t, err)
	return n
}

func TestAssignStartComplete(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, "f1")
	assert.Equal(t, domain.StatusUnassigned, r.Status)
	assert.Equal(t, 1, f.unread(t, "u1"))
	assert.Equal(t, 1, f.unread(t, "m1"))

	r = f.update(t, headM, r.ID, workflow.ActionAssignTechnician, workflow.Input{AssignedTo: domain.StringPtr("t1")})
	assert.Equal(t, domain.StatusAssigned, r.Status)
	assert.Equal(t, 2, f.unread(t, "m1"))
	assert.Equal(t, 1, f.unread(t, "t1"))
	assert.Equal(t, 2, f.unread(t, "u1"))

	r = f.update(t, tech1, r.ID, workflow.ActionStartWork, workflow.Input{})
	assert.Equal(t, domain.StatusWorkInProgress, r.Status)

	r = f.update(t, tech1, r.ID, workflow.ActionCompleteWork, workflow.Input{})
	assert.Equal(t, domain.StatusClosed, r.Status)
	require.NotNil(t, r.AssignedTo)
	assert.Equal(t, "t1", *r.AssignedTo)
	assert.Equal(t, 2, f.unread(t, "t1"))
	assert.Equal(t, 4, f.unread(t, "u1"))

	stored, err := f.requests.GetRequest(context.Background(), creator, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, stored.Status)
	assert.Equal(t, int64(4), stored.Version)

	trail, err := f.requests.ListHistory(context.Background(), creator, r.ID)
	require.NoError(t, err)
	require.Len(t, trail, 4)
	assert.Equal(t, string(workflow.ActionCreate), trail[0].Action)
	assert.Nil(t, trail[0].FromStatus)
	assert.Equal(t, string(workflow.ActionCompleteWork), trail[3].Action)
	assert.Equal(t, domain.StatusClosed, trail[3].ToStatus)

	snap := f.metrics.Snapshot()
	assert.Equal(t, int64(4), snap.Transitions["complete_work|ok"]+snap.Transitions["start_work|ok"]+snap.Transitions["assign_technician|ok"]+snap.Transitions["create|ok"])
}

func TestRejectedRequestCannotBeAssigned(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, "f1")

	r = f.update(t, headM, r.ID, workflow.ActionManagerReject, workflow.Input{})
	assert.Equal(t, domain.StatusRejected, r.Status)
	assert.Equal(t, "Rejected by facility manager", r.Remarks)

	_, err := f.requests.UpdateRequest(context.Background(), headM, r.ID, string(workflow.ActionAssignTechnician),
		workflow.Input{AssignedTo: domain.StringPtr("t1")})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition))
}

func TestClosingReasonApproved(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, "f1")
	r = f.update(t, headM, r.ID, workflow.ActionAssignTechnician, workflow.Input{AssignedTo: domain.StringPtr("t1")})

	r = f.update(t, creator, r.ID, workflow.ActionSubmitClosingReason, workflow.Input{ClosingReason: domain.StringPtr("fixed it myself")})
	require.NotNil(t, r.ClosingReason)
	assert.Equal(t, "fixed it myself", *r.ClosingReason)
	assert.Nil(t, r.ManagerHandle)

	page, err := f.requests.ListRequests(context.Background(), headM, policy.Filters{NeedHandle: true})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalItems)

	r = f.update(t, headM, r.ID, workflow.ActionManagerApprove, workflow.Input{})
	assert.Equal(t, domain.StatusClosed, r.Status)
	require.NotNil(t, r.ManagerHandle)
	assert.Equal(t, domain.HandleApproved, *r.ManagerHandle)
}

func TestUpdateRequestErrors(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, "f1")
	ctx := context.Background()

	_, err := f.requests.UpdateRequest(ctx, headM, r.ID, "close_everything", workflow.Input{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = f.requests.UpdateRequest(ctx, headM, "missing", string(workflow.ActionManagerReject), workflow.Input{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.requests.UpdateRequest(ctx, otherM, r.ID, string(workflow.ActionManagerReject), workflow.Input{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthorized))

	_, err = f.requests.UpdateRequest(ctx, admin, r.ID, string(workflow.ActionManagerReject), workflow.Input{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthorized))

	stored, err := f.requests.GetRequest(ctx, admin, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusUnassigned, stored.Status)
	assert.Equal(t, int64(1), stored.Version)
}

func TestConcurrentAssignOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, "f1")

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.requests.UpdateRequest(context.Background(), headM, r.ID,
				string(workflow.ActionAssignTechnician), workflow.Input{AssignedTo: domain.StringPtr("t1")})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTransition), "unexpected error %v", err)
	}
	assert.Equal(t, 1, f.unread(t, "t1"))
}

// staleRepo simulates another process winning the version race.
type staleRepo struct {
	*memory.RequestRepository
}

func (s staleRepo) Update(ctx context.Context, r *domain.Request) error {
	return repository.ErrStaleVersion
}

func TestUpdateRequestReportsConflictOnStaleVersion(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRequestRepository()
	facilities := memory.NewFacilityRepository()
	require.NoError(t, facilities.Save(ctx, &domain.Facility{ID: "f1", HeadManagerID: "m1", TechnicianIDs: []string{"t1"}}))

	svc := service.NewRequestService(service.RequestDependencies{
		RequestRepo: staleRepo{repo},
		Facilities:  facilities,
		Logger:      zaptest.NewLogger(t),
	})
	r, err := svc.CreateRequest(ctx, creator, workflow.CreateInput{Facility: "f1", Title: "Door", Severity: domain.SeverityHigh})
	require.NoError(t, err)

	_, err = svc.UpdateRequest(ctx, headM, r.ID, string(workflow.ActionManagerReject), workflow.Input{})
	require.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	de := apperrors.ToDomainError(err)
	assert.Equal(t, "manager_reject", de.Details["action"])
	assert.Equal(t, string(domain.StatusUnassigned), de.Details["status"])
}

func TestCreateRequestValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.requests.CreateRequest(ctx, creator, workflow.CreateInput{Facility: "nowhere", Title: "x", Severity: domain.SeverityLow})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = f.requests.CreateRequest(ctx, creator, workflow.CreateInput{Facility: "f1", Title: "x", Severity: domain.SeverityLow, CreatedBy: "u2"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthorized))

	r, err := f.requests.CreateRequest(ctx, admin, workflow.CreateInput{Facility: "f1", Title: "x", Severity: domain.SeverityLow, CreatedBy: "u2"})
	require.NoError(t, err)
	assert.Equal(t, "u2", r.CreatedBy)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Transitions["create|"+apperrors.CodeNotFound])
}

func TestListRequestsScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	mine := f.create(t, "f1")
	f.create(t, "f2")
	_, err := f.requests.CreateRequest(ctx, other, workflow.CreateInput{Facility: "f1", Title: "Other", Severity: domain.SeverityHigh})
	require.NoError(t, err)

	page, err := f.requests.ListRequests(ctx, creator, policy.Filters{Managing: true})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalItems)
	for _, r := range page.Data {
		assert.Equal(t, "u1", r.CreatedBy)
	}

	page, err = f.requests.ListRequests(ctx, headM, policy.Filters{Managing: true})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalItems)

	page, err = f.requests.ListRequests(ctx, headM, policy.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalItems)

	page, err = f.requests.ListRequests(ctx, admin, policy.Filters{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, mine.ID, page.Data[0].ID)

	roamer := domain.Actor{ID: "m9", Roles: domain.NewRoleSet(domain.RoleManager)}
	_, err = f.requests.ListRequests(ctx, roamer, policy.Filters{Managing: true})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthorizedForFacility))

	page, err = f.requests.ListRequests(ctx, roamer, policy.Filters{CreatedByMe: true})
	require.NoError(t, err)
	assert.Zero(t, page.TotalItems)

	bad := domain.RequestStatus("Lost")
	_, err = f.requests.ListRequests(ctx, admin, policy.Filters{Status: &bad})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestGetRequestHidesOthersRequests(t *testing.T) {
	f := newFixture(t)
	r := f.create(t, "f1")
	ctx := context.Background()

	_, err := f.requests.GetRequest(ctx, other, r.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	_, err = f.requests.ListHistory(ctx, other, r.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	got, err := f.requests.GetRequest(ctx, tech1, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)

	actions, err := f.requests.AvailableActions(ctx, headM, got)
	require.NoError(t, err)
	assert.Equal(t, []workflow.Action{workflow.ActionAssignTechnician, workflow.ActionManagerReject}, actions)

	actions, err = f.requests.AvailableActions(ctx, creator, got)
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestDeleteAndStatsAreAdminOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.create(t, "f1")
	f.create(t, "f2")
	r2 := f.create(t, "f1")
	f.update(t, headM, r2.ID, workflow.ActionAssignTechnician, workflow.Input{AssignedTo: domain.StringPtr("t1")})
	f.update(t, creator, r2.ID, workflow.ActionSubmitClosingReason, workflow.Input{ClosingReason: domain.StringPtr("done")})

	_, err := f.requests.OverviewStats(ctx, headM)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthorized))

	stats, err := f.requests.OverviewStats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalRequests)
	assert.Equal(t, 1, stats.PendingClosingRequests)
	assert.Equal(t, 2, stats.StatusCounts[domain.StatusUnassigned])
	assert.Equal(t, 1, stats.StatusCounts[domain.StatusAssigned])
	assert.Equal(t, 0, stats.StatusCounts[domain.StatusClosed])

	assert.True(t, apperrors.HasCode(f.requests.DeleteRequest(ctx, headM, r.ID), apperrors.CodeNotAuthorized))
	require.NoError(t, f.requests.DeleteRequest(ctx, admin, r.ID))
	assert.True(t, apperrors.HasCode(f.requests.DeleteRequest(ctx, admin, r.ID), apperrors.CodeNotFound))
}

func TestDashboardTrends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "f1")
	f.create(t, "f1")
	f.create(t, "f2")
	for i, seed := range []struct {
		facility string
		created  time.Time
	}{
		{"f2", time.Date(2025, 9, 15, 0, 0, 0, 0, time.UTC)},
		{"f1", time.Date(2025, 10, 2, 0, 0, 0, 0, time.UTC)},
		{"gone", time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)},
	} {
		require.NoError(t, f.requestRepo.Create(ctx, &domain.Request{
			ID:        fmt.Sprintf("old-%d", i),
			CreatedBy: "u1",
			Facility:  seed.facility,
			Title:     "Old request",
			Severity:  domain.SeverityLow,
			Status:    domain.StatusUnassigned,
			CreatedAt: seed.created,
		}))
	}

	_, err := f.requests.RequestsOverTime(ctx, headM)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthorized))
	_, err = f.requests.RequestsByFacility(ctx, headM)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthorized))

	months, err := f.requests.RequestsOverTime(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, []service.MonthCount{
		{Month: "2025-10", Count: 1},
		{Month: "2026-01", Count: 1},
		{Month: "2026-03", Count: 3},
	}, months)

	totals, err := f.requests.RequestsByFacility(ctx, admin)
	require.NoError(t, err)
	require.Len(t, totals, 3)
	assert.Equal(t, "f1", totals[0].FacilityID)
	assert.Equal(t, 3, totals[0].Count)
	require.NotNil(t, totals[0].Facility)
	assert.Equal(t, "North", totals[0].Facility.Name)
	assert.Equal(t, "f2", totals[1].FacilityID)
	assert.Equal(t, 2, totals[1].Count)
	assert.Equal(t, "gone", totals[2].FacilityID)
	assert.Nil(t, totals[2].Facility)
}
