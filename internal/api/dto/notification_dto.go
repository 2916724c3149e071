package dto

import (
	"time"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

// NotificationResponse is the notification representation.
type NotificationResponse struct {
	ID          string    `json:"id"`
	RecipientID string    `json:"recipientId"`
	RequestID   string    `json:"requestId"`
	Event       string    `json:"event"`
	Message     string    `json:"message"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NotificationListResponse wraps a user's notifications.
type NotificationListResponse struct {
	Count         int                    `json:"count"`
	Notifications []NotificationResponse `json:"notifications"`
}

// NewNotificationResponse maps a domain notification.
func NewNotificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		RequestID:   n.RequestID,
		Event:       n.Event,
		Message:     n.Message,
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt,
	}
}
