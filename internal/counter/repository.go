package counter

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists counters in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Next increments the counter and returns the new value in a single
// statement. A missing counter is created with count 1, so concurrent
// first calls never race a read-then-write cycle.
func (r *Repository) Next(ctx context.Context, id string) (int64, error) {
	if r == nil {
		return 0, errors.New("counter repository not initialised")
	}
	var count int64
	err := r.pool.QueryRow(ctx, `INSERT INTO counters (id, count, updated_at)
VALUES ($1, 1, NOW())
ON CONFLICT (id) DO UPDATE SET count = counters.count + 1, updated_at = NOW()
RETURNING count`, id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counter next %s: %w", id, err)
	}
	return count, nil
}

// Current reads the counter without incrementing. Absent counters
// report zero.
func (r *Repository) Current(ctx context.Context, id string) (int64, error) {
	if r == nil {
		return 0, errors.New("counter repository not initialised")
	}
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count FROM counters WHERE id=$1`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("counter current %s: %w", id, err)
	}
	return count, nil
}

// List returns every counter row.
func (r *Repository) List(ctx context.Context) ([]Counter, error) {
	if r == nil {
		return nil, errors.New("counter repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, count, updated_at FROM counters ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counters := []Counter{}
	for rows.Next() {
		var c Counter
		if err := rows.Scan(&c.ID, &c.Count, &c.UpdatedAt); err != nil {
			return nil, err
		}
		counters = append(counters, c)
	}
	return counters, rows.Err()
}

var _ RepositoryPort = (*Repository)(nil)
