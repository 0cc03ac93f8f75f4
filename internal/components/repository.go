package components

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStockNotFound indicates no stock row exists yet for an item.
var ErrStockNotFound = errors.New("component stock not found")

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetStockForUpdate(ctx context.Context, itemID int64) (Stock, error)
	UpsertStock(ctx context.Context, stock Stock) error
}

// Repository persists component stock in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("components repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetStock loads the gauges for one item.
func (r *Repository) GetStock(ctx context.Context, itemID int64) (Stock, error) {
	var s Stock
	err := r.pool.QueryRow(ctx, `SELECT item_id, current_stock, in_use, defect, total_rate_sum, rate_count, total_qty, average_price, updated_at
FROM component_stock WHERE item_id=$1`, itemID).
		Scan(&s.ItemID, &s.CurrentStock, &s.InUse, &s.Defect, &s.TotalRateSum, &s.RateCount, &s.TotalQty, &s.AveragePrice, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{ItemID: itemID}, ErrStockNotFound
		}
		return Stock{}, err
	}
	return s, nil
}

// ListStock returns every item gauge row.
func (r *Repository) ListStock(ctx context.Context) ([]Stock, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_id, current_stock, in_use, defect, total_rate_sum, rate_count, total_qty, average_price, updated_at
FROM component_stock ORDER BY item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	stocks := []Stock{}
	for rows.Next() {
		var s Stock
		if err := rows.Scan(&s.ItemID, &s.CurrentStock, &s.InUse, &s.Defect, &s.TotalRateSum, &s.RateCount, &s.TotalQty, &s.AveragePrice, &s.UpdatedAt); err != nil {
			return nil, err
		}
		stocks = append(stocks, s)
	}
	return stocks, rows.Err()
}

func (r *txRepository) GetStockForUpdate(ctx context.Context, itemID int64) (Stock, error) {
	var s Stock
	err := r.tx.QueryRow(ctx, `SELECT item_id, current_stock, in_use, defect, total_rate_sum, rate_count, total_qty, average_price, updated_at
FROM component_stock WHERE item_id=$1 FOR UPDATE`, itemID).
		Scan(&s.ItemID, &s.CurrentStock, &s.InUse, &s.Defect, &s.TotalRateSum, &s.RateCount, &s.TotalQty, &s.AveragePrice, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Stock{ItemID: itemID}, ErrStockNotFound
		}
		return Stock{}, err
	}
	return s, nil
}

func (r *txRepository) UpsertStock(ctx context.Context, stock Stock) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO component_stock (item_id, current_stock, in_use, defect, total_rate_sum, rate_count, total_qty, average_price, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
ON CONFLICT (item_id) DO UPDATE SET
  current_stock=EXCLUDED.current_stock,
  in_use=EXCLUDED.in_use,
  defect=EXCLUDED.defect,
  total_rate_sum=EXCLUDED.total_rate_sum,
  rate_count=EXCLUDED.rate_count,
  total_qty=EXCLUDED.total_qty,
  average_price=EXCLUDED.average_price,
  updated_at=NOW()`,
		stock.ItemID, stock.CurrentStock, stock.InUse, stock.Defect, stock.TotalRateSum, stock.RateCount, stock.TotalQty, stock.AveragePrice)
	return err
}
