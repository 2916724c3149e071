package memory

import (
	"context"
	"sync"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/repository"
)

type HistoryRepository struct {
	mu      sync.RWMutex
	entries map[string][]domain.RequestHistory
}

var _ repository.RequestHistoryRepository = (*HistoryRepository)(nil)

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{entries: make(map[string][]domain.RequestHistory)}
}

func (r *HistoryRepository) Create(ctx context.Context, entry *domain.RequestHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.RequestID] = append(r.entries[entry.RequestID], *entry)
	return nil
}

func (r *HistoryRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.RequestHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RequestHistory, len(r.entries[requestID]))
	copy(out, r.entries[requestID])
	return out, nil
}
