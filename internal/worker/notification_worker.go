package worker

import (
	"context"

	"github.com/ohd-platform/facility-helpdesk/internal/events"
	"github.com/ohd-platform/facility-helpdesk/internal/service"
)

// StartNotificationWorker subscribes the notification handlers so that each
// event is processed on the pool, off the caller's path.
func StartNotificationWorker(dispatcher events.Dispatcher, pool *Pool, notificationService *service.NotificationService) {
	if dispatcher == nil || notificationService == nil {
		return
	}
	for eventType, handler := range notificationService.Handlers() {
		dispatcher.Subscribe(eventType, Async(pool, handler))
	}
}

// Async wraps handler so Publish only hands it to the pool and never waits
// for queue space. The job gets the pool's context, detached from the publisher.
func Async(pool *Pool, handler events.EventHandler) events.EventHandler {
	return func(_ context.Context, event events.Event) error {
		return pool.Dispatch(Job{
			Name: string(event.Type) + ":" + event.ID,
			Run: func(jobCtx context.Context) error {
				return handler(jobCtx, event)
			},
		})
	}
}
