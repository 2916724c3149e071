package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/events"
	"github.com/ohd-platform/facility-helpdesk/internal/observability"
	"github.com/ohd-platform/facility-helpdesk/internal/repository"
	apperrors "github.com/ohd-platform/facility-helpdesk/pkg/util/errorutil"
)

// notificationNamespace seeds deterministic notification ids so a retried
// event maps onto the rows its first attempt already stored.
var notificationNamespace = uuid.MustParse("6f1c1d2e-4b8a-4e63-9a55-2f0f3c9d7a10")

// Pusher delivers a stored notification to a recipient's live connections.
type Pusher interface {
	Push(ctx context.Context, n domain.Notification) error
}

// Mailer sends a plain email copy of a notification.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NotificationService turns lifecycle events into stored notifications and
// serves the recipient-facing notification operations.
type NotificationService struct {
	repo       repository.NotificationRepository
	facilities repository.FacilityDirectory
	users      repository.UserDirectory
	pusher     Pusher
	mailer     Mailer
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NotificationDependencies bundles collaborators for the notification service.
// Pusher, Mailer and Users are optional.
type NotificationDependencies struct {
	NotificationRepo repository.NotificationRepository
	Facilities       repository.FacilityDirectory
	Users            repository.UserDirectory
	Pusher           Pusher
	Mailer           Mailer
	Metrics          *observability.Metrics
	Logger           *zap.Logger
}

// NotificationList is the listing response shape.
type NotificationList struct {
	Count         int
	Notifications []domain.Notification
}

type delivery struct {
	recipient string
	message   string
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:       deps.NotificationRepo,
		facilities: deps.Facilities,
		users:      deps.Users,
		pusher:     deps.Pusher,
		mailer:     deps.Mailer,
		metrics:    deps.Metrics,
		logger:     logger,
	}
}

// Handlers returns one handler per lifecycle event type.
func (n *NotificationService) Handlers() map[events.EventType]events.EventHandler {
	out := make(map[events.EventType]events.EventHandler, len(events.AllTypes()))
	for _, t := range events.AllTypes() {
		out[t] = n.HandleEvent
	}
	return out
}

// HandleEvent stores one notification per recipient, then pushes and mails
// the newly stored ones. Storage errors are returned so the caller can retry;
// push and mail are best-effort.
func (n *NotificationService) HandleEvent(ctx context.Context, event events.Event) error {
	deliveries, err := n.recipients(ctx, event)
	if err != nil {
		n.metrics.RecordNotification("failed")
		return fmt.Errorf("resolve recipients for %s: %w", event.Type, err)
	}

	for i, d := range deliveries {
		if d.recipient == "" {
			continue
		}
		notification := domain.Notification{
			ID:          notificationID(event.ID, d.recipient, i),
			RecipientID: d.recipient,
			RequestID:   event.RequestID,
			Event:       string(event.Type),
			Message:     d.message,
			CreatedAt:   event.Timestamp,
		}
		if notification.CreatedAt.IsZero() {
			notification.CreatedAt = time.Now().UTC()
		}

		inserted, err := n.repo.Insert(ctx, &notification)
		if err != nil {
			n.metrics.RecordNotification("failed")
			return fmt.Errorf("store notification for %s: %w", d.recipient, err)
		}
		if !inserted {
			continue
		}
		n.metrics.RecordNotification("stored")
		n.deliver(ctx, notification)
	}
	return nil
}

func (n *NotificationService) deliver(ctx context.Context, notification domain.Notification) {
	if n.pusher != nil {
		if err := n.pusher.Push(ctx, notification); err != nil {
			n.logger.Warn("live push failed",
				zap.String("notification_id", notification.ID),
				zap.String("recipient_id", notification.RecipientID),
				zap.Error(err))
		} else {
			n.metrics.RecordNotification("pushed")
		}
	}
	if n.mailer == nil || n.users == nil {
		return
	}
	user, err := n.users.Get(ctx, notification.RecipientID)
	if err != nil || user.Email == "" {
		return
	}
	if err := n.mailer.Send(ctx, user.Email, "Facility request update", notification.Message); err != nil {
		n.logger.Warn("notification email failed",
			zap.String("notification_id", notification.ID),
			zap.String("recipient_id", notification.RecipientID),
			zap.Error(err))
		return
	}
	n.metrics.RecordNotification("emailed")
}

func (n *NotificationService) recipients(ctx context.Context, event events.Event) ([]delivery, error) {
	r := event.Request
	title := r.Title
	creator := r.CreatedBy
	technician := ""
	if r.AssignedTo != nil {
		technician = *r.AssignedTo
	}

	switch event.Type {
	case events.EventRequestCreated:
		head, err := n.headManager(ctx, r.Facility)
		if err != nil {
			return nil, err
		}
		return []delivery{
			{creator, fmt.Sprintf("Your request %q was created.", title)},
			{head, "There is a new request submitted to your facility."},
		}, nil
	case events.EventTechnicianAssigned:
		assigner := event.ActorID
		if r.AssignedBy != nil {
			assigner = *r.AssignedBy
		}
		return []delivery{
			{assigner, fmt.Sprintf("You have assigned a request to technician %s.", technician)},
			{technician, "There is a new request assigned to you."},
			{creator, fmt.Sprintf("Your request %q has been assigned to technician.", title)},
		}, nil
	case events.EventWorkStarted:
		return []delivery{
			{creator, fmt.Sprintf("Work on your request %q has started.", title)},
		}, nil
	case events.EventRemarksUpdated:
		return []delivery{
			{creator, fmt.Sprintf("Remarks on your request %q were updated.", title)},
		}, nil
	case events.EventWorkCompleted:
		return []delivery{
			{technician, "A request assigned to you has been closed."},
			{creator, fmt.Sprintf("Your request %q has been closed.", title)},
		}, nil
	case events.EventRequestRejected:
		return []delivery{
			{event.ActorID, fmt.Sprintf("You have rejected request %q.", title)},
			{creator, fmt.Sprintf("Your request %q has been rejected by facility manager.", title)},
		}, nil
	case events.EventClosingReasonSubmitted:
		head, err := n.headManager(ctx, r.Facility)
		if err != nil {
			return nil, err
		}
		return []delivery{
			{creator, fmt.Sprintf("You have submitted a closing reason for your request %q.", title)},
			{head, "There is a new request that needs handling."},
		}, nil
	case events.EventClosingApproved, events.EventClosingDeclined:
		verdict := string(domain.HandleApproved)
		if event.Type == events.EventClosingDeclined {
			verdict = string(domain.HandleDeclined)
		}
		head, err := n.headManager(ctx, r.Facility)
		if err != nil {
			return nil, err
		}
		return []delivery{
			{head, fmt.Sprintf("You have %s the closing request for %q.", verdict, title)},
			{creator, fmt.Sprintf("Your closing request for %q has been %s.", title, verdict)},
		}, nil
	}
	return nil, fmt.Errorf("unhandled event type %q", event.Type)
}

func (n *NotificationService) headManager(ctx context.Context, facilityID string) (string, error) {
	if n.facilities == nil {
		return "", errors.New("facility directory not configured")
	}
	f, err := n.facilities.Resolve(ctx, facilityID)
	if err != nil {
		return "", err
	}
	return f.HeadManagerID, nil
}

func notificationID(eventID, recipient string, index int) string {
	return uuid.NewSHA1(notificationNamespace, []byte(eventID+"|"+recipient+"|"+strconv.Itoa(index))).String()
}

// ListNotifications returns a user's notifications, newest first.
func (n *NotificationService) ListNotifications(ctx context.Context, actor domain.Actor, userID string) (NotificationList, error) {
	if actor.ID != userID && !actor.IsAdmin() {
		return NotificationList{}, apperrors.NewNotAuthorized("cannot read another user's notifications")
	}
	items, err := n.repo.ListByRecipient(ctx, userID)
	if err != nil {
		return NotificationList{}, err
	}
	return NotificationList{Count: len(items), Notifications: items}, nil
}

// UnreadCount counts a user's unread notifications.
func (n *NotificationService) UnreadCount(ctx context.Context, actor domain.Actor, userID string) (int, error) {
	if actor.ID != userID && !actor.IsAdmin() {
		return 0, apperrors.NewNotAuthorized("cannot read another user's notifications")
	}
	return n.repo.CountUnread(ctx, userID)
}

// MarkRead flags one notification as read. Recipient only.
func (n *NotificationService) MarkRead(ctx context.Context, actor domain.Actor, id string) error {
	if _, err := n.owned(ctx, actor, id); err != nil {
		return err
	}
	return mapRepoError(n.repo.MarkRead(ctx, id), "notification", id)
}

// MarkAllRead flags every unread notification of userID. Recipient only.
func (n *NotificationService) MarkAllRead(ctx context.Context, actor domain.Actor, userID string) (int, error) {
	if actor.ID != userID {
		return 0, apperrors.NewNotAuthorized("only the recipient can update notifications")
	}
	return n.repo.MarkAllRead(ctx, userID)
}

// DeleteNotification removes one notification. Recipient only.
func (n *NotificationService) DeleteNotification(ctx context.Context, actor domain.Actor, id string) error {
	if _, err := n.owned(ctx, actor, id); err != nil {
		return err
	}
	return mapRepoError(n.repo.Delete(ctx, id), "notification", id)
}

// ClearAll removes every notification of userID. Recipient only.
func (n *NotificationService) ClearAll(ctx context.Context, actor domain.Actor, userID string) (int, error) {
	if actor.ID != userID {
		return 0, apperrors.NewNotAuthorized("only the recipient can delete notifications")
	}
	return n.repo.DeleteAll(ctx, userID)
}

func (n *NotificationService) owned(ctx context.Context, actor domain.Actor, id string) (*domain.Notification, error) {
	notification, err := n.repo.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "notification", id)
	}
	if notification.RecipientID != actor.ID {
		return nil, apperrors.NewNotAuthorized("only the recipient can update this notification")
	}
	return notification, nil
}
