package domain

import "time"

// Notification is a persisted, recipient-addressed record of a lifecycle event.
type Notification struct {
	ID          string
	RecipientID string
	RequestID   string
	Event       string
	Message     string
	IsRead      bool
	CreatedAt   time.Time
}
