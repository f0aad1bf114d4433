package datarequest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists DataRequest rows in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgx pool for DataRequest access.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new pending DataRequest.
func (s *Store) Create(ctx context.Context, dr *DataRequest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO data_requests (id, customer_id, requester_id, status, request_key, sealed_email, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		dr.ID, dr.CustomerID, dr.RequesterID, dr.Status, dr.RequestKey, dr.SealedEmail, dr.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting data request: %w", err)
	}
	return nil
}

// Get loads a DataRequest by id.
func (s *Store) Get(ctx context.Context, id string) (*DataRequest, error) {
	var dr DataRequest
	err := s.pool.QueryRow(ctx,
		`SELECT id, customer_id, requester_id, status, request_key, sealed_email, created_at, approved_at
		 FROM data_requests WHERE id = $1`, id,
	).Scan(&dr.ID, &dr.CustomerID, &dr.RequesterID, &dr.Status, &dr.RequestKey, &dr.SealedEmail, &dr.CreatedAt, &dr.ApprovedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading data request %q: %w", id, err)
	}
	return &dr, nil
}

// Approve transitions a pending DataRequest to approved.
func (s *Store) Approve(ctx context.Context, id string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE data_requests SET status = $1, approved_at = $2 WHERE id = $3 AND status = $4`,
		StatusApproved, now, id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("approving data request %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("data request %q is not pending", id)
	}
	return nil
}

// ListByStatus returns every DataRequest in the given status, most recent first.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]DataRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, customer_id, requester_id, status, request_key, sealed_email, created_at, approved_at
		 FROM data_requests WHERE status = $1 ORDER BY created_at DESC`, status,
	)
	if err != nil {
		return nil, fmt.Errorf("listing data requests by status %q: %w", status, err)
	}
	defer rows.Close()

	var out []DataRequest
	for rows.Next() {
		var dr DataRequest
		if err := rows.Scan(&dr.ID, &dr.CustomerID, &dr.RequesterID, &dr.Status, &dr.RequestKey, &dr.SealedEmail, &dr.CreatedAt, &dr.ApprovedAt); err != nil {
			return nil, fmt.Errorf("scanning data request row: %w", err)
		}
		out = append(out, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating data request rows: %w", err)
	}
	return out, nil
}
