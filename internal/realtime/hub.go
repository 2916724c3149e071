// Package realtime pushes stored notifications to connected clients.
package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

const (
	FrameReady        = "ready"
	FrameNotification = "notification"
)

// Frame is one message written to a client connection.
type Frame struct {
	Type string             `json:"type"`
	Data *NotificationFrame `json:"data,omitempty"`
}

// NotificationFrame is the wire form of a pushed notification.
type NotificationFrame struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	RequestID   string    `json:"requestId"`
	Event       string    `json:"event"`
	Message     string    `json:"message"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

func frameFor(n domain.Notification) Frame {
	return Frame{Type: FrameNotification, Data: &NotificationFrame{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		RequestID:   n.RequestID,
		Event:       n.Event,
		Message:     n.Message,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}}
}

// Subscription receives frames for one connected user.
type Subscription struct {
	UserID string
	C      <-chan Frame
	ch     chan Frame
}

// Hub fans notifications out to the local connections of each recipient.
// A slow connection drops frames rather than blocking delivery; the
// notification stays stored and shows up on the next list call.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), logger: logger}
}

// Subscribe registers a connection for userID.
func (h *Hub) Subscribe(userID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Frame, buffer)
	sub := &Subscription{UserID: userID, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.UserID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.UserID)
	}
	close(sub.ch)
}

// Connections counts the live subscriptions of userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Deliver hands n to every local connection of its recipient and returns
// how many received it.
func (h *Hub) Deliver(n domain.Notification) int {
	frame := frameFor(n)

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for sub := range h.subs[n.RecipientID] {
		select {
		case sub.ch <- frame:
			delivered++
		default:
			h.logger.Warn("dropping push for slow connection",
				zap.String("recipient_id", n.RecipientID),
				zap.String("notification_id", n.ID))
		}
	}
	return delivered
}

// Push delivers to local connections only.
func (h *Hub) Push(_ context.Context, n domain.Notification) error {
	h.Deliver(n)
	return nil
}
