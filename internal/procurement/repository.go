package procurement

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

// ErrPONotFound indicates a missing purchase order.
var ErrPONotFound = errors.New("purchase order not found")

// ErrGRNNotFound indicates a missing goods receipt.
var ErrGRNNotFound = errors.New("goods receipt not found")

// Repository persists procurement documents in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertPO writes a purchase order.
func (r *Repository) InsertPO(ctx context.Context, po PurchaseOrder) (int64, error) {
	lines, err := json.Marshal(po.Lines)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO purchase_orders (number, vendor_name, lines, status, notes, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW()) RETURNING id`,
		po.Number, po.VendorName, lines, string(po.Status), po.Notes, po.CreatedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: purchase order %s already exists", shared.ErrConflict, po.Number)
		}
		return 0, err
	}
	return id, nil
}

// GetPO loads one purchase order by number.
func (r *Repository) GetPO(ctx context.Context, number string) (PurchaseOrder, error) {
	var po PurchaseOrder
	var lines []byte
	var status string
	err := r.pool.QueryRow(ctx, `SELECT id, number, vendor_name, lines, status, notes, created_by, created_at, updated_at
FROM purchase_orders WHERE number=$1`, number).
		Scan(&po.ID, &po.Number, &po.VendorName, &lines, &status, &po.Notes, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrPONotFound
		}
		return PurchaseOrder{}, err
	}
	po.Status = Status(status)
	if err := json.Unmarshal(lines, &po.Lines); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// ListPOs returns purchase orders newest first.
func (r *Repository) ListPOs(ctx context.Context, limit int) ([]PurchaseOrder, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, number, vendor_name, lines, status, notes, created_by, created_at, updated_at
FROM purchase_orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	orders := []PurchaseOrder{}
	for rows.Next() {
		var po PurchaseOrder
		var lines []byte
		var status string
		if err := rows.Scan(&po.ID, &po.Number, &po.VendorName, &lines, &status, &po.Notes, &po.CreatedBy, &po.CreatedAt, &po.UpdatedAt); err != nil {
			return nil, err
		}
		po.Status = Status(status)
		if err := json.Unmarshal(lines, &po.Lines); err != nil {
			return nil, err
		}
		orders = append(orders, po)
	}
	return orders, rows.Err()
}

// UpdatePO rewrites the mutable purchase order fields.
func (r *Repository) UpdatePO(ctx context.Context, po PurchaseOrder) error {
	lines, err := json.Marshal(po.Lines)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE purchase_orders SET vendor_name=$2, lines=$3, status=$4, notes=$5, updated_at=NOW() WHERE number=$1`,
		po.Number, po.VendorName, lines, string(po.Status), po.Notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

// DeletePO removes a purchase order.
func (r *Repository) DeletePO(ctx context.Context, number string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM purchase_orders WHERE number=$1`, number)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPONotFound
	}
	return nil
}

// CountGRNsForPO counts receipts referencing a purchase order.
func (r *Repository) CountGRNsForPO(ctx context.Context, poNumber string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM goods_receipts WHERE po_number=$1`, poNumber).Scan(&count)
	return count, err
}

// InsertGRN writes a goods receipt.
func (r *Repository) InsertGRN(ctx context.Context, grn GoodsReceipt) (int64, error) {
	lines, err := json.Marshal(grn.Lines)
	if err != nil {
		return 0, err
	}
	var id int64
	err = r.pool.QueryRow(ctx, `INSERT INTO goods_receipts (number, po_number, lines, received_by, created_at)
VALUES ($1,$2,$3,$4,NOW()) RETURNING id`,
		grn.Number, grn.PONumber, lines, grn.ReceivedBy).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, fmt.Errorf("%w: goods receipt %s already exists", shared.ErrConflict, grn.Number)
		}
		return 0, err
	}
	return id, nil
}

// GetGRN loads one goods receipt by number.
func (r *Repository) GetGRN(ctx context.Context, number string) (GoodsReceipt, error) {
	var grn GoodsReceipt
	var lines []byte
	err := r.pool.QueryRow(ctx, `SELECT id, number, po_number, lines, received_by, created_at
FROM goods_receipts WHERE number=$1`, number).
		Scan(&grn.ID, &grn.Number, &grn.PONumber, &lines, &grn.ReceivedBy, &grn.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceipt{}, ErrGRNNotFound
		}
		return GoodsReceipt{}, err
	}
	if err := json.Unmarshal(lines, &grn.Lines); err != nil {
		return GoodsReceipt{}, err
	}
	return grn, nil
}

// ListGRNs returns receipts newest first.
func (r *Repository) ListGRNs(ctx context.Context, limit int) ([]GoodsReceipt, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, number, po_number, lines, received_by, created_at
FROM goods_receipts ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	receipts := []GoodsReceipt{}
	for rows.Next() {
		var grn GoodsReceipt
		var lines []byte
		if err := rows.Scan(&grn.ID, &grn.Number, &grn.PONumber, &lines, &grn.ReceivedBy, &grn.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(lines, &grn.Lines); err != nil {
			return nil, err
		}
		receipts = append(receipts, grn)
	}
	return receipts, rows.Err()
}

// DeleteGRN removes a goods receipt.
func (r *Repository) DeleteGRN(ctx context.Context, number string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM goods_receipts WHERE number=$1`, number)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGRNNotFound
	}
	return nil
}
