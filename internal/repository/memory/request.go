package memory

import (
	"context"
	"sync"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/policy"
	"github.com/ohd-platform/facility-helpdesk/internal/repository"
)

// RequestRepository keeps requests in insertion order.
type RequestRepository struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]*domain.Request
}

var _ repository.RequestRepository = (*RequestRepository)(nil)

func NewRequestRepository() *RequestRepository {
	return &RequestRepository{byID: make(map[string]*domain.Request)}
}

func (r *RequestRepository) Create(ctx context.Context, request *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[request.ID]; exists {
		return repository.ErrAlreadyExists
	}
	request.Version = 1
	stored := request.Clone()
	r.byID[request.ID] = &stored
	r.order = append(r.order, request.ID)
	return nil
}

func (r *RequestRepository) Update(ctx context.Context, request *domain.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[request.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != request.Version {
		return repository.ErrStaleVersion
	}
	request.Version++
	stored := request.Clone()
	stored.CreatedAt = current.CreatedAt
	r.byID[request.ID] = &stored
	return nil
}

func (r *RequestRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := stored.Clone()
	return &out, nil
}

func (r *RequestRepository) List(ctx context.Context, criteria policy.Criteria, page, limit int) (domain.Page[domain.Request], error) {
	r.mu.RLock()
	matched := make([]domain.Request, 0)
	for _, id := range r.order {
		stored := r.byID[id]
		if criteria.Matches(stored) {
			matched = append(matched, stored.Clone())
		}
	}
	r.mu.RUnlock()

	return domain.Paginate(matched, page, limit), nil
}

func (r *RequestRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.byID, id)
	for i, candidate := range r.order {
		if candidate == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *RequestRepository) Stats(ctx context.Context) (repository.RequestStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := repository.RequestStats{
		StatusCounts:   make(map[domain.RequestStatus]int),
		MonthlyCounts:  make(map[string]int),
		FacilityCounts: make(map[string]int),
	}
	for _, stored := range r.byID {
		stats.TotalRequests++
		stats.StatusCounts[stored.Status]++
		stats.MonthlyCounts[repository.MonthKey(stored.CreatedAt)]++
		stats.FacilityCounts[stored.Facility]++
		if stored.AwaitingReview() {
			stats.PendingClosingRequests++
		}
	}
	return stats, nil
}
