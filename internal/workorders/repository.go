package workorders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockline-erp/stockline/internal/shared"
)

// ErrBOMNotFound indicates a missing bill of materials.
var ErrBOMNotFound = errors.New("bill of materials not found")

// ErrWorkOrderNotFound indicates a missing work order.
var ErrWorkOrderNotFound = errors.New("work order not found")

// Repository persists BOMs and work orders in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertBOM writes a bill of materials.
func (r *Repository) InsertBOM(ctx context.Context, bom BOM) (int64, error) {
	components, err := json.Marshal(bom.Components)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO boms (name, components, created_at) VALUES ($1,$2,NOW()) RETURNING id`,
		bom.Name, components).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: bom %s already exists", shared.ErrConflict, bom.Name)
		}
		return 0, err
	}
	return id, nil
}

// GetBOM loads one bill of materials.
func (r *Repository) GetBOM(ctx context.Context, id int64) (BOM, error) {
	var bom BOM
	var components []byte
	err := r.pool.QueryRow(ctx, `SELECT id, name, components, created_at FROM boms WHERE id=$1`, id).
		Scan(&bom.ID, &bom.Name, &components, &bom.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BOM{}, ErrBOMNotFound
		}
		return BOM{}, err
	}
	if err := json.Unmarshal(components, &bom.Components); err != nil {
		return BOM{}, err
	}
	return bom, nil
}

// ListBOMs returns every bill of materials.
func (r *Repository) ListBOMs(ctx context.Context) ([]BOM, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, components, created_at FROM boms ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	boms := []BOM{}
	for rows.Next() {
		var bom BOM
		var components []byte
		if err := rows.Scan(&bom.ID, &bom.Name, &components, &bom.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(components, &bom.Components); err != nil {
			return nil, err
		}
		boms = append(boms, bom)
	}
	return boms, rows.Err()
}

// InsertWorkOrder writes a work order.
func (r *Repository) InsertWorkOrder(ctx context.Context, wo WorkOrder) (int64, error) {
	lines, err := json.Marshal(wo.Lines)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO work_orders (number, lines, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW()) RETURNING id`,
		wo.Number, lines, wo.Notes, wo.CreatedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: work order %s already exists", shared.ErrConflict, wo.Number)
		}
		return 0, err
	}
	return id, nil
}

// GetWorkOrder loads one work order by number.
func (r *Repository) GetWorkOrder(ctx context.Context, number string) (WorkOrder, error) {
	var wo WorkOrder
	var lines []byte
	err := r.pool.QueryRow(ctx, `SELECT id, number, lines, notes, created_by, created_at, updated_at
FROM work_orders WHERE number=$1`, number).
		Scan(&wo.ID, &wo.Number, &lines, &wo.Notes, &wo.CreatedBy, &wo.CreatedAt, &wo.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return WorkOrder{}, ErrWorkOrderNotFound
		}
		return WorkOrder{}, err
	}
	if err := json.Unmarshal(lines, &wo.Lines); err != nil {
		return WorkOrder{}, err
	}
	return wo, nil
}

// ListWorkOrders returns work orders newest first.
func (r *Repository) ListWorkOrders(ctx context.Context, limit int) ([]WorkOrder, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, number, lines, notes, created_by, created_at, updated_at
FROM work_orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []WorkOrder{}
	for rows.Next() {
		var wo WorkOrder
		var lines []byte
		if err := rows.Scan(&wo.ID, &wo.Number, &lines, &wo.Notes, &wo.CreatedBy, &wo.CreatedAt, &wo.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(lines, &wo.Lines); err != nil {
			return nil, err
		}
		orders = append(orders, wo)
	}
	return orders, rows.Err()
}

// UpdateWorkOrder rewrites the lines and notes of a work order.
func (r *Repository) UpdateWorkOrder(ctx context.Context, wo WorkOrder) error {
	lines, err := json.Marshal(wo.Lines)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE work_orders SET lines=$2, notes=$3, updated_at=NOW() WHERE number=$1`,
		wo.Number, lines, wo.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkOrderNotFound
	}
	return nil
}

// DeleteWorkOrder removes a work order.
func (r *Repository) DeleteWorkOrder(ctx context.Context, number string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM work_orders WHERE number=$1`, number)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkOrderNotFound
	}
	return nil
}
