package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrProductNotFound indicates a missing ledger entry.
var ErrProductNotFound = errors.New("inventory product not found")

// ErrBatchNotFound indicates a missing batch row.
var ErrBatchNotFound = errors.New("inventory batch not found")

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetProductForUpdate(ctx context.Context, productID int64) (Product, error)
	GetBatchForUpdate(ctx context.Context, productID int64, batchNumber string) (Batch, error)
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	AddBatchQuantity(ctx context.Context, productID int64, batchNumber string, delta int64) (int64, error)
	DecrementBatchQuantity(ctx context.Context, productID int64, batchNumber string, qty int64) (int64, error)
	DeleteBatch(ctx context.Context, productID int64, batchNumber string) error
	InsertPricePoint(ctx context.Context, productID int64, rate decimal.Decimal, at time.Time) error
}

// Repository persists the batch ledger in PostgreSQL.
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
		return errors.New("inventory repository not initialised")
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

// GetProduct loads a product with its batches and price history.
func (r *Repository) GetProduct(ctx context.Context, productID int64) (Product, error) {
	var p Product
	err := r.pool.QueryRow(ctx, `SELECT id, name, sku, created_at, updated_at FROM products WHERE id=$1`, productID).
		Scan(&p.ID, &p.Name, &p.SKU, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	batches, err := r.listBatches(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	p.Batches = batches
	history, err := r.listPriceHistory(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	p.PriceHistory = history
	return p, nil
}

// ListProducts returns every product with batch details.
func (r *Repository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, sku, created_at, updated_at FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	products := []Product{}
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range products {
		batches, err := r.listBatches(ctx, products[i].ID)
		if err != nil {
			return nil, err
		}
		products[i].Batches = batches
	}
	return products, nil
}

func (r *Repository) listBatches(ctx context.Context, productID int64) ([]Batch, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, batch_number, quantity, manufacture_date, expiry_date, rate, added_at
FROM batches WHERE product_id=$1 ORDER BY expiry_date ASC, id ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	batches := []Batch{}
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.BatchNumber, &b.Quantity, &b.ManufactureDate, &b.ExpiryDate, &b.Rate, &b.AddedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

func (r *Repository) listPriceHistory(ctx context.Context, productID int64) ([]PricePoint, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, rate, recorded_at FROM price_history WHERE product_id=$1 ORDER BY recorded_at ASC`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	history := []PricePoint{}
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.ID, &p.ProductID, &p.Rate, &p.RecordedAt); err != nil {
			return nil, err
		}
		history = append(history, p)
	}
	return history, rows.Err()
}

func (r *txRepository) GetProductForUpdate(ctx context.Context, productID int64) (Product, error) {
	var p Product
	err := r.tx.QueryRow(ctx, `SELECT id, name, sku, created_at, updated_at FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.Name, &p.SKU, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, product_id, batch_number, quantity, manufacture_date, expiry_date, rate, added_at
FROM batches WHERE product_id=$1 ORDER BY expiry_date ASC, id ASC`, productID)
	if err != nil {
		return Product{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.BatchNumber, &b.Quantity, &b.ManufactureDate, &b.ExpiryDate, &b.Rate, &b.AddedAt); err != nil {
			return Product{}, err
		}
		p.Batches = append(p.Batches, b)
	}
	return p, rows.Err()
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, productID int64, batchNumber string) (Batch, error) {
	var b Batch
	err := r.tx.QueryRow(ctx, `SELECT id, product_id, batch_number, quantity, manufacture_date, expiry_date, rate, added_at
FROM batches WHERE product_id=$1 AND batch_number=$2 FOR UPDATE`, productID, batchNumber).
		Scan(&b.ID, &b.ProductID, &b.BatchNumber, &b.Quantity, &b.ManufactureDate, &b.ExpiryDate, &b.Rate, &b.AddedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (r *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO batches (product_id, batch_number, quantity, manufacture_date, expiry_date, rate, added_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`,
		batch.ProductID, batch.BatchNumber, batch.Quantity, batch.ManufactureDate, batch.ExpiryDate, batch.Rate).Scan(&id)
	return id, err
}

func (r *txRepository) AddBatchQuantity(ctx context.Context, productID int64, batchNumber string, delta int64) (int64, error) {
	var qty int64
	err := r.tx.QueryRow(ctx, `UPDATE batches SET quantity = quantity + $3
WHERE product_id=$1 AND batch_number=$2 RETURNING quantity`, productID, batchNumber, delta).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBatchNotFound
		}
		return 0, err
	}
	return qty, nil
}

// DecrementBatchQuantity draws down stock only when enough remains. The
// quantity guard lives in the statement so concurrent consumers can
// never push a batch negative.
func (r *txRepository) DecrementBatchQuantity(ctx context.Context, productID int64, batchNumber string, qty int64) (int64, error) {
	var remaining int64
	err := r.tx.QueryRow(ctx, `UPDATE batches SET quantity = quantity - $3
WHERE product_id=$1 AND batch_number=$2 AND quantity >= $3 RETURNING quantity`, productID, batchNumber, qty).Scan(&remaining)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrBatchNotFound
		}
		return 0, err
	}
	return remaining, nil
}

func (r *txRepository) DeleteBatch(ctx context.Context, productID int64, batchNumber string) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM batches WHERE product_id=$1 AND batch_number=$2`, productID, batchNumber)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBatchNotFound
	}
	return nil
}

func (r *txRepository) InsertPricePoint(ctx context.Context, productID int64, rate decimal.Decimal, at time.Time) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO price_history (product_id, rate, recorded_at) VALUES ($1,$2,$3)`, productID, rate, at)
	return err
}
