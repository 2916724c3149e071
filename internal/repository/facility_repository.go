package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

type facilityRepository struct {
	pool *pgxpool.Pool
}

// NewFacilityRepository returns a Postgres-backed implementation.
func NewFacilityRepository(pool *pgxpool.Pool) FacilityRepository {
	return &facilityRepository{pool: pool}
}

func (r *facilityRepository) Save(ctx context.Context, f *domain.Facility) error {
	const query = `
        INSERT INTO facilities (id, name, head_manager_id, technician_ids)
        VALUES ($1,$2,$3,$4)
        ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, head_manager_id=EXCLUDED.head_manager_id,
            technician_ids=EXCLUDED.technician_ids`
	technicians := f.TechnicianIDs
	if technicians == nil {
		technicians = []string{}
	}
	_, err := r.pool.Exec(ctx, query, f.ID, f.Name, f.HeadManagerID, technicians)
	return err
}

func (r *facilityRepository) Resolve(ctx context.Context, id string) (*domain.Facility, error) {
	return r.fetchSingle(ctx, `SELECT id, name, head_manager_id, technician_ids FROM facilities WHERE id=$1`, id)
}

func (r *facilityRepository) HeadedBy(ctx context.Context, managerID string) (*domain.Facility, error) {
	return r.fetchSingle(ctx,
		`SELECT id, name, head_manager_id, technician_ids FROM facilities WHERE head_manager_id=$1 ORDER BY id LIMIT 1`,
		managerID)
}

func (r *facilityRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Facility, error) {
	var f domain.Facility
	err := r.pool.QueryRow(ctx, query, arg).Scan(&f.ID, &f.Name, &f.HeadManagerID, &f.TechnicianIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}
