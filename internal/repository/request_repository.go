package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
	"github.com/ohd-platform/facility-helpdesk/internal/policy"
)

const requestColumns = `id, created_by, assigned_to, assigned_by, facility, title, description, severity,
               status, remarks, closing_reason, manager_handle, created_at, updated_at, version`

type requestRepository struct {
	pool *pgxpool.Pool
}

// NewRequestRepository instantiates a Postgres-backed repository.
func NewRequestRepository(pool *pgxpool.Pool) RequestRepository {
	return &requestRepository{pool: pool}
}

func (r *requestRepository) Create(ctx context.Context, request *domain.Request) error {
	const query = `
        INSERT INTO requests (id, created_by, assigned_to, assigned_by, facility, title, description, severity,
            status, remarks, closing_reason, manager_handle, created_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,1)
        RETURNING version`
	return r.pool.QueryRow(ctx, query,
		request.ID,
		request.CreatedBy,
		request.AssignedTo,
		request.AssignedBy,
		request.Facility,
		request.Title,
		request.Description,
		string(request.Severity),
		string(request.Status),
		request.Remarks,
		request.ClosingReason,
		handleArg(request.ManagerHandle),
		request.CreatedAt,
		request.UpdatedAt,
	).Scan(&request.Version)
}

func (r *requestRepository) Update(ctx context.Context, request *domain.Request) error {
	const query = `
        UPDATE requests SET assigned_to=$1, assigned_by=$2, status=$3, remarks=$4, closing_reason=$5,
            manager_handle=$6, updated_at=$7, version=version+1
        WHERE id=$8 AND version=$9
        RETURNING version`
	err := r.pool.QueryRow(ctx, query,
		request.AssignedTo,
		request.AssignedBy,
		string(request.Status),
		request.Remarks,
		request.ClosingReason,
		handleArg(request.ManagerHandle),
		request.UpdatedAt,
		request.ID,
		request.Version,
	).Scan(&request.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.GetByID(ctx, request.ID); getErr != nil {
			return getErr
		}
		return ErrStaleVersion
	}
	return err
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id=$1`
	request, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return request, err
}

// List counts and slices inside one read-only repeatable-read transaction so
// both see the same snapshot.
func (r *requestRepository) List(ctx context.Context, criteria policy.Criteria, page, limit int) (domain.Page[domain.Request], error) {
	page, limit = domain.NormalizePaging(page, limit)
	where, args := criteriaClause(criteria)

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return domain.Page[domain.Request]{}, err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var total int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM requests WHERE `+where, args...).Scan(&total); err != nil {
		return domain.Page[domain.Request]{}, err
	}

	data := make([]domain.Request, 0, limit)
	offset := domain.Offset(page, limit)
	if offset < total {
		query := fmt.Sprintf(`SELECT %s FROM requests WHERE %s ORDER BY seq ASC LIMIT %d OFFSET %d`,
			requestColumns, where, limit, offset)
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return domain.Page[domain.Request]{}, err
		}
		defer rows.Close()

		for rows.Next() {
			request, err := scanRequest(rows)
			if err != nil {
				return domain.Page[domain.Request]{}, err
			}
			data = append(data, *request)
		}
		if err := rows.Err(); err != nil {
			return domain.Page[domain.Request]{}, err
		}
	}

	return domain.Page[domain.Request]{
		TotalItems:  total,
		TotalPages:  domain.TotalPages(total, limit),
		CurrentPage: page,
		Data:        data,
	}, tx.Commit(ctx)
}

func (r *requestRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM requests WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *requestRepository) Stats(ctx context.Context) (RequestStats, error) {
	stats := RequestStats{
		StatusCounts:   make(map[domain.RequestStatus]int),
		MonthlyCounts:  make(map[string]int),
		FacilityCounts: make(map[string]int),
	}
	const pending = `
        SELECT COUNT(*), COUNT(*) FILTER (WHERE closing_reason IS NOT NULL AND manager_handle IS NULL)
        FROM requests`
	if err := r.pool.QueryRow(ctx, pending).Scan(&stats.TotalRequests, &stats.PendingClosingRequests); err != nil {
		return stats, err
	}

	groups := []struct {
		query string
		put   func(key string, count int)
	}{
		{`SELECT status, COUNT(*) FROM requests GROUP BY status`,
			func(key string, count int) { stats.StatusCounts[domain.RequestStatus(key)] = count }},
		{`SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM'), COUNT(*) FROM requests GROUP BY 1`,
			func(key string, count int) { stats.MonthlyCounts[key] = count }},
		{`SELECT facility, COUNT(*) FROM requests GROUP BY facility`,
			func(key string, count int) { stats.FacilityCounts[key] = count }},
	}
	for _, g := range groups {
		if err := r.countGroups(ctx, g.query, g.put); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (r *requestRepository) countGroups(ctx context.Context, query string, put func(string, int)) error {
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		put(key, count)
	}
	return rows.Err()
}

func criteriaClause(c policy.Criteria) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}
	eq := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if c.Status != nil {
		eq("status", string(*c.Status))
	}
	if c.Facility != nil {
		eq("facility", *c.Facility)
	}
	if c.ScopeFacility != nil {
		eq("facility", *c.ScopeFacility)
	}
	if c.Severity != nil {
		eq("severity", string(*c.Severity))
	}
	if c.CreatedBy != nil {
		eq("created_by", *c.CreatedBy)
	}
	if c.AssignedTo != nil {
		eq("assigned_to", *c.AssignedTo)
	}
	if c.AwaitingReview {
		clauses = append(clauses, "closing_reason IS NOT NULL AND manager_handle IS NULL")
	}
	return strings.Join(clauses, " AND "), args
}

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var (
		request  domain.Request
		severity string
		status   string
		handle   *string
	)
	if err := row.Scan(
		&request.ID,
		&request.CreatedBy,
		&request.AssignedTo,
		&request.AssignedBy,
		&request.Facility,
		&request.Title,
		&request.Description,
		&severity,
		&status,
		&request.Remarks,
		&request.ClosingReason,
		&handle,
		&request.CreatedAt,
		&request.UpdatedAt,
		&request.Version,
	); err != nil {
		return nil, err
	}
	request.Severity = domain.Severity(severity)
	request.Status = domain.RequestStatus(status)
	if handle != nil {
		h := domain.ManagerHandle(*handle)
		request.ManagerHandle = &h
	}
	return &request, nil
}

func handleArg(h *domain.ManagerHandle) *string {
	if h == nil {
		return nil
	}
	s := string(*h)
	return &s
}
