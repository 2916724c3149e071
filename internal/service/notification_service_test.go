package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/events"
	"github.com/ohd-platform/facility-helpdesk/internal/observability"
	"github.com/ohd-platform/facility-helpdesk/internal/repository/memory"
	"github.com/ohd-platform/facility-helpdesk/internal/service"
	"github.com/ohd-platform/facility-helpdesk/internal/workflow"
	apperrors "github.com/ohd-platform/facility-helpdesk/pkg/util/errorutil"
)

type MockPusher struct {
	mock.Mock
}

func (m *MockPusher) Push(ctx context.Context, n domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

type notifyFixture struct {
	svc     *service.NotificationService
	repo    *memory.NotificationRepository
	pusher  *MockPusher
	mailer  *MockMailer
	metrics *observability.Metrics
}

func newNotifyFixture(t *testing.T) *notifyFixture {
	t.Helper()
	ctx := context.Background()
	facilities := memory.NewFacilityRepository()
	require.NoError(t, facilities.Save(ctx, &domain.Facility{ID: "f1", HeadManagerID: "m1", TechnicianIDs: []string{"t1"}}))
	users := memory.NewUserRepository()
	require.NoError(t, users.Save(ctx, &domain.User{ID: "u1", Email: "u1@example.com", Roles: domain.NewRoleSet()}))
	require.NoError(t, users.Save(ctx, &domain.User{ID: "m1", Roles: domain.NewRoleSet(domain.RoleManager)}))

	f := &notifyFixture{
		repo:    memory.NewNotificationRepository(),
		pusher:  new(MockPusher),
		mailer:  new(MockMailer),
		metrics: observability.NewMetrics(),
	}
	f.svc = service.NewNotificationService(service.NotificationDependencies{
		NotificationRepo: f.repo,
		Facilities:       facilities,
		Users:            users,
		Pusher:           f.pusher,
		Mailer:           f.mailer,
		Metrics:          f.metrics,
		Logger:           zaptest.NewLogger(t),
	})
	return f
}

func createdEvent() events.Event {
	return events.Event{
		ID:        "evt-1",
		Type:      events.EventRequestCreated,
		RequestID: "r1",
		ActorID:   "u1",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Request: domain.Request{
			ID:        "r1",
			CreatedBy: "u1",
			Facility:  "f1",
			Title:     "Broken heater",
			Status:    domain.StatusUnassigned,
		},
		Payload: events.TransitionPayload{Action: string(workflow.ActionCreate), ToStatus: domain.StatusUnassigned},
	}
}

func TestHandleEventStoresPushesAndMails(t *testing.T) {
	f := newNotifyFixture(t)
	ctx := context.Background()

	f.pusher.On("Push", mock.Anything, mock.MatchedBy(func(n domain.Notification) bool {
		return n.RecipientID == "u1" || n.RecipientID == "m1"
	})).Return(nil).Twice()
	f.mailer.On("Send", mock.Anything, "u1@example.com", mock.Anything, `Your request "Broken heater" was created.`).
		Return(nil).Once()

	require.NoError(t, f.svc.HandleEvent(ctx, createdEvent()))

	list, err := f.svc.ListNotifications(ctx, creator, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, list.Count)
	got := list.Notifications[0]
	assert.Equal(t, "r1", got.RequestID)
	assert.Equal(t, string(events.EventRequestCreated), got.Event)
	assert.False(t, got.IsRead)

	head, err := f.svc.ListNotifications(ctx, headM, "m1")
	require.NoError(t, err)
	require.Equal(t, 1, head.Count)
	assert.Equal(t, "There is a new request submitted to your facility.", head.Notifications[0].Message)

	f.pusher.AssertExpectations(t)
	f.mailer.AssertExpectations(t)
	assert.Equal(t, int64(2), f.metrics.Snapshot().Notifications["stored"])
	assert.Equal(t, int64(1), f.metrics.Snapshot().Notifications["emailed"])
}

func TestHandleEventRetryIsIdempotent(t *testing.T) {
	f := newNotifyFixture(t)
	ctx := context.Background()
	f.pusher.On("Push", mock.Anything, mock.Anything).Return(nil)
	f.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	event := createdEvent()
	require.NoError(t, f.svc.HandleEvent(ctx, event))
	require.NoError(t, f.svc.HandleEvent(ctx, event))

	count, err := f.svc.UnreadCount(ctx, creator, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	f.pusher.AssertNumberOfCalls(t, "Push", 2)
	f.mailer.AssertNumberOfCalls(t, "Send", 1)
}

func TestHandleEventPushFailureKeepsNotification(t *testing.T) {
	f := newNotifyFixture(t)
	ctx := context.Background()
	f.pusher.On("Push", mock.Anything, mock.Anything).Return(errors.New("socket closed"))
	f.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	require.NoError(t, f.svc.HandleEvent(ctx, createdEvent()))

	count, err := f.svc.UnreadCount(ctx, creator, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Zero(t, f.metrics.Snapshot().Notifications["pushed"])
}

func TestHandleEventUnknownFacilityFails(t *testing.T) {
	f := newNotifyFixture(t)
	event := createdEvent()
	event.Request.Facility = "gone"

	err := f.svc.HandleEvent(context.Background(), event)
	assert.Error(t, err)
	assert.Equal(t, int64(1), f.metrics.Snapshot().Notifications["failed"])
}

func TestRecipientsPerEvent(t *testing.T) {
	tech := "t1"
	reason := "done already"
	base := domain.Request{ID: "r1", CreatedBy: "u1", Facility: "f1", Title: "Leak", AssignedTo: &tech, AssignedBy: domain.StringPtr("m1"), ClosingReason: &reason}

	cases := []struct {
		eventType events.EventType
		actor     string
		want      map[string]string
	}{
		{events.EventTechnicianAssigned, "m1", map[string]string{
			"m1": "You have assigned a request to technician t1.",
			"t1": "There is a new request assigned to you.",
			"u1": `Your request "Leak" has been assigned to technician.`,
		}},
		{events.EventWorkStarted, "t1", map[string]string{"u1": `Work on your request "Leak" has started.`}},
		{events.EventRemarksUpdated, "t1", map[string]string{"u1": `Remarks on your request "Leak" were updated.`}},
		{events.EventWorkCompleted, "t1", map[string]string{
			"t1": "A request assigned to you has been closed.",
			"u1": `Your request "Leak" has been closed.`,
		}},
		{events.EventRequestRejected, "m1", map[string]string{
			"m1": `You have rejected request "Leak".`,
			"u1": `Your request "Leak" has been rejected by facility manager.`,
		}},
		{events.EventClosingReasonSubmitted, "u1", map[string]string{
			"u1": `You have submitted a closing reason for your request "Leak".`,
			"m1": "There is a new request that needs handling.",
		}},
		{events.EventClosingApproved, "m1", map[string]string{
			"m1": `You have approved the closing request for "Leak".`,
			"u1": `Your closing request for "Leak" has been approved.`,
		}},
		{events.EventClosingDeclined, "m1", map[string]string{
			"m1": `You have declined the closing request for "Leak".`,
			"u1": `Your closing request for "Leak" has been declined.`,
		}},
	}

	for _, tc := range cases {
		t.Run(string(tc.eventType), func(t *testing.T) {
			ctx := context.Background()
			facilities := memory.NewFacilityRepository()
			require.NoError(t, facilities.Save(ctx, &domain.Facility{ID: "f1", HeadManagerID: "m1"}))
			repo := memory.NewNotificationRepository()
			svc := service.NewNotificationService(service.NotificationDependencies{NotificationRepo: repo, Facilities: facilities})

			require.NoError(t, svc.HandleEvent(ctx, events.Event{
				ID: "evt-" + string(tc.eventType), Type: tc.eventType, RequestID: "r1", ActorID: tc.actor, Request: base,
			}))

			total := 0
			for recipient, message := range tc.want {
				items, err := repo.ListByRecipient(ctx, recipient)
				require.NoError(t, err)
				require.Len(t, items, 1, "recipient %s", recipient)
				assert.Equal(t, message, items[0].Message)
				total++
			}
			for _, stranger := range []string{"u9", "t9"} {
				items, err := repo.ListByRecipient(ctx, stranger)
				require.NoError(t, err)
				assert.Empty(t, items)
			}
			assert.Equal(t, len(tc.want), total)
		})
	}
}

func TestNotificationOperations(t *testing.T) {
	f := newNotifyFixture(t)
	ctx := context.Background()
	f.pusher.On("Push", mock.Anything, mock.Anything).Return(nil)
	f.mailer.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first := createdEvent()
	second := createdEvent()
	second.ID = "evt-2"
	second.Timestamp = first.Timestamp.Add(time.Minute)
	require.NoError(t, f.svc.HandleEvent(ctx, first))
	require.NoError(t, f.svc.HandleEvent(ctx, second))

	list, err := f.svc.ListNotifications(ctx, creator, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, list.Count)
	assert.True(t, list.Notifications[0].CreatedAt.After(list.Notifications[1].CreatedAt))

	_, err = f.svc.ListNotifications(ctx, other, "u1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthorized))
	_, err = f.svc.ListNotifications(ctx, admin, "u1")
	assert.NoError(t, err)

	newest := list.Notifications[0].ID
	assert.True(t, apperrors.HasCode(f.svc.MarkRead(ctx, other, newest), apperrors.CodeNotAuthorized))
	assert.True(t, apperrors.HasCode(f.svc.MarkRead(ctx, creator, "missing"), apperrors.CodeNotFound))
	require.NoError(t, f.svc.MarkRead(ctx, creator, newest))

	count, err := f.svc.UnreadCount(ctx, creator, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = f.svc.MarkAllRead(ctx, admin, "u1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotAuthorized))
	updated, err := f.svc.MarkAllRead(ctx, creator, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	require.NoError(t, f.svc.DeleteNotification(ctx, creator, newest))
	assert.True(t, apperrors.HasCode(f.svc.DeleteNotification(ctx, creator, newest), apperrors.CodeNotFound))

	removed, err := f.svc.ClearAll(ctx, creator, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	list, err = f.svc.ListNotifications(ctx, creator, "u1")
	require.NoError(t, err)
	assert.Zero(t, list.Count)
}
