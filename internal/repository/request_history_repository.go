package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

type requestHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewRequestHistoryRepository builds repository.
func NewRequestHistoryRepository(pool *pgxpool.Pool) RequestHistoryRepository {
	return &requestHistoryRepository{pool: pool}
}

func (r *requestHistoryRepository) Create(ctx context.Context, entry *domain.RequestHistory) error {
	const query = `
        INSERT INTO request_history (id, request_id, actor_id, action, from_status, to_status, remarks, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	var from *string
	if entry.FromStatus != nil {
		s := string(*entry.FromStatus)
		from = &s
	}
	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.RequestID,
		entry.ActorID,
		entry.Action,
		from,
		string(entry.ToStatus),
		entry.Remarks,
		entry.CreatedAt,
	)
	return err
}

func (r *requestHistoryRepository) ListByRequest(ctx context.Context, requestID string) ([]domain.RequestHistory, error) {
	const query = `
        SELECT id, request_id, actor_id, action, from_status, to_status, remarks, created_at
        FROM request_history WHERE request_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.RequestHistory{}
	for rows.Next() {
		var (
			entry domain.RequestHistory
			from  *string
			to    string
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.ActorID,
			&entry.Action,
			&from,
			&to,
			&entry.Remarks,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if from != nil {
			s := domain.RequestStatus(*from)
			entry.FromStatus = &s
		}
		entry.ToStatus = domain.RequestStatus(to)
		result = append(result, entry)
	}
	return result, rows.Err()
}
