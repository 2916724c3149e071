package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/policy"
)

var (
	// ErrNotFound is returned when no row matches the lookup key.
	ErrNotFound = errors.New("record not found")
	// ErrStaleVersion is returned by RequestRepository.Update when the stored
	// version no longer matches the caller's.
	ErrStaleVersion = errors.New("stale request version")
	// ErrAlreadyExists is returned when creating a record whose id is taken.
	ErrAlreadyExists = errors.New("record already exists")
)

// RequestStats summarizes the request table for the admin overview.
type RequestStats struct {
	TotalRequests          int
	PendingClosingRequests int
	StatusCounts           map[domain.RequestStatus]int
	// MonthlyCounts is keyed by the UTC creation month, "2006-01".
	MonthlyCounts  map[string]int
	FacilityCounts map[string]int
}

// MonthKey is the MonthlyCounts key for t.
func MonthKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// RequestRepository stores versioned request records in insertion order.
type RequestRepository interface {
	Create(ctx context.Context, request *domain.Request) error
	// Update writes request if the stored version equals request.Version and
	// bumps request.Version on success.
	Update(ctx context.Context, request *domain.Request) error
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	List(ctx context.Context, criteria policy.Criteria, page, limit int) (domain.Page[domain.Request], error)
	Delete(ctx context.Context, id string) error
	Stats(ctx context.Context) (RequestStats, error)
}

// RequestHistoryRepository stores audit entries.
type RequestHistoryRepository interface {
	Create(ctx context.Context, entry *domain.RequestHistory) error
	ListByRequest(ctx context.Context, requestID string) ([]domain.RequestHistory, error)
}

// NotificationRepository stores notifications per recipient.
type NotificationRepository interface {
	// Insert stores n unless a notification with the same ID exists and
	// reports whether a row was written.
	Insert(ctx context.Context, n *domain.Notification) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Notification, error)
	// ListByRecipient returns newest first.
	ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, recipientID string) (int, error)
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context, recipientID string) (int, error)
}

// FacilityDirectory resolves facilities. Read-only from the engine's side.
type FacilityDirectory interface {
	Resolve(ctx context.Context, id string) (*domain.Facility, error)
	// HeadedBy returns ErrNotFound when managerID heads no facility.
	HeadedBy(ctx context.Context, managerID string) (*domain.Facility, error)
}

// FacilityRepository is the writable facility store behind the directory.
type FacilityRepository interface {
	FacilityDirectory
	Save(ctx context.Context, facility *domain.Facility) error
}

// UserDirectory resolves accounts and their role sets.
type UserDirectory interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	RolesOf(ctx context.Context, id string) (domain.RoleSet, error)
}

// UserRepository is the writable user store behind the directory.
type UserRepository interface {
	UserDirectory
	Save(ctx context.Context, user *domain.User) error
}
