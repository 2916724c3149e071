package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/repository"
)

type NotificationRepository struct {
	mu    sync.RWMutex
	seq   int64
	items map[string]*storedNotification
}

type storedNotification struct {
	domain.Notification
	seq int64
}

var _ repository.NotificationRepository = (*NotificationRepository)(nil)

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{items: make(map[string]*storedNotification)}
}

func (r *NotificationRepository) Insert(ctx context.Context, n *domain.Notification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[n.ID]; exists {
		return false, nil
	}
	r.seq++
	r.items[n.ID] = &storedNotification{Notification: *n, seq: r.seq}
	return true, nil
}

func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := stored.Notification
	return &out, nil
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]domain.Notification, error) {
	r.mu.RLock()
	matched := make([]*storedNotification, 0)
	for _, stored := range r.items {
		if stored.RecipientID == recipientID {
			matched = append(matched, stored)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})
	out := make([]domain.Notification, len(matched))
	for i, stored := range matched {
		out[i] = stored.Notification
	}
	return out, nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, recipientID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, stored := range r.items {
		if stored.RecipientID == recipientID && !stored.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[id]
	if !ok {
		return repository.ErrNotFound
	}
	stored.IsRead = true
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	updated := 0
	for _, stored := range r.items {
		if stored.RecipientID == recipientID && !stored.IsRead {
			stored.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (r *NotificationRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *NotificationRepository) DeleteAll(ctx context.Context, recipientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, stored := range r.items {
		if stored.RecipientID == recipientID {
			delete(r.items, id)
			deleted++
		}
	}
	return deleted, nil
}
