package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/repository"
)

type FacilityRepository struct {
	mu         sync.RWMutex
	facilities map[string]*domain.Facility
}

var _ repository.FacilityRepository = (*FacilityRepository)(nil)

func NewFacilityRepository() *FacilityRepository {
	return &FacilityRepository{facilities: make(map[string]*domain.Facility)}
}

func copyFacility(f *domain.Facility) *domain.Facility {
	out := *f
	out.TechnicianIDs = append([]string(nil), f.TechnicianIDs...)
	return &out
}

func (r *FacilityRepository) Save(ctx context.Context, f *domain.Facility) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facilities[f.ID] = copyFacility(f)
	return nil
}

func (r *FacilityRepository) Resolve(ctx context.Context, id string) (*domain.Facility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.facilities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyFacility(f), nil
}

// HeadedBy picks the lowest facility id when a manager heads several.
func (r *FacilityRepository) HeadedBy(ctx context.Context, managerID string) (*domain.Facility, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0)
	for id, f := range r.facilities {
		if f.HeadManagerID == managerID {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, repository.ErrNotFound
	}
	sort.Strings(ids)
	return copyFacility(r.facilities[ids[0]]), nil
}

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*domain.User
}

var _ repository.UserRepository = (*UserRepository)(nil)

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*domain.User)}
}

func copyUser(u *domain.User) *domain.User {
	out := *u
	out.Roles = domain.NewRoleSet(u.Roles.Slice()...)
	return &out
}

func (r *UserRepository) Save(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = copyUser(u)
	return nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyUser(u), nil
}

func (r *UserRepository) RolesOf(ctx context.Context, id string) (domain.RoleSet, error) {
	u, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Roles, nil
}
